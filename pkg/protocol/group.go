package protocol

// ===== GROUP ROUTING =====

// ScopeKind tags a payload as direct (1:1) or group
type ScopeKind uint8

const (
	ScopeDirect ScopeKind = iota
	ScopeGroup
)

// GroupRoute identifies a group conversation on the wire
type GroupRoute struct {
	Creator Identity // Group creator identity
	ID      GroupID  // Group identifier, unique per creator
}

// GroupRouteSize is the length of the group prefix on group payloads
const GroupRouteSize = IdentityLength + GroupIDLength

// Scope is the direct/group variant shared by every box payload. The
// payload fields are declared once; a group payload is the direct
// payload with the route prepended.
type Scope struct {
	Kind  ScopeKind
	Group GroupRoute // Only meaningful when Kind == ScopeGroup
}

// Direct returns the scope of a 1:1 payload
func Direct() Scope {
	return Scope{Kind: ScopeDirect}
}

// Group returns the scope of a payload routed to the given group
func Group(route GroupRoute) Scope {
	return Scope{Kind: ScopeGroup, Group: route}
}

// IsGroup reports whether the payload carries a group route
func (s Scope) IsGroup() bool {
	return s.Kind == ScopeGroup
}

// appendPrefix writes the group route (if any) in front of the shared fields
func (s Scope) appendPrefix(buf []byte) []byte {
	if !s.IsGroup() {
		return buf
	}
	buf = append(buf, s.Group.Creator[:]...)
	return append(buf, s.Group.ID[:]...)
}

// readScope consumes the group route for group payloads
func readScope(kind ScopeKind, r *reader) Scope {
	if kind != ScopeGroup {
		return Direct()
	}
	var route GroupRoute
	r.fixed(route.Creator[:], "group creator")
	r.fixed(route.ID[:], "group id")
	return Group(route)
}

// SharedFields strips the group route from an encoded payload, leaving
// the bytes a direct and a group variant have in common
func SharedFields(scope Scope, encoded []byte) []byte {
	if scope.IsGroup() && len(encoded) >= GroupRouteSize {
		return encoded[GroupRouteSize:]
	}
	return encoded
}

// scopeForType maps a box message type to its scope kind
func scopeForType(msgType uint16) ScopeKind {
	switch msgType {
	case MsgTypeGroupBallotCreate, MsgTypeGroupBallotVote, MsgTypeGroupFile:
		return ScopeGroup
	default:
		return ScopeDirect
	}
}
