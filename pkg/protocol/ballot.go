package protocol

import (
	"encoding/binary"
	"fmt"
)

// Meta carries the envelope fields a payload was delivered with. It is
// filled by Unpack and is not part of the payload encoding.
type Meta struct {
	From      Identity  // Sender identity
	MessageID MessageID // Box message id
	Date      uint64    // Sender timestamp (Unix ms)
}

// Payload is implemented by every box payload type
type Payload interface {
	Type() uint16
	Encode() []byte
}

// ===== BALLOT CREATE =====

// BallotCreateMessage announces a new ballot or a structural update of one
type BallotCreateMessage struct {
	Meta          Meta
	Scope         Scope
	BallotCreator Identity // Creator of the ballot
	BallotID      BallotID // Ballot identifier, unique per creator
	Document      []byte   // CBOR ballot document (see ballotdoc.go)
}

// Type returns the box message type for the payload's scope
func (m *BallotCreateMessage) Type() uint16 {
	if m.Scope.IsGroup() {
		return MsgTypeGroupBallotCreate
	}
	return MsgTypeBallotCreate
}

// Encode encodes ballot create message to bytes
func (m *BallotCreateMessage) Encode() []byte {
	size := IdentityLength + BallotIDLength + 4 + len(m.Document)
	if m.Scope.IsGroup() {
		size += GroupRouteSize
	}
	buf := make([]byte, 0, size)

	buf = m.Scope.appendPrefix(buf)
	buf = append(buf, m.BallotCreator[:]...)
	buf = append(buf, m.BallotID[:]...)
	buf = appendBlob(buf, m.Document)

	return buf
}

// Decode decodes ballot create message from bytes
func (m *BallotCreateMessage) Decode(kind ScopeKind, buf []byte) error {
	r := newReader(buf)

	m.Scope = readScope(kind, r)
	r.fixed(m.BallotCreator[:], "ballot creator")
	r.fixed(m.BallotID[:], "ballot id")
	m.Document = r.blob(MaxBallotDocumentSize, "ballot document")

	if err := r.finish(); err != nil {
		return err
	}
	if !m.BallotCreator.Valid() {
		return fmt.Errorf("%w: invalid ballot creator", ErrMalformedPayload)
	}
	return nil
}

// InGroup returns a copy of the message routed to the given group
func (m *BallotCreateMessage) InGroup(route GroupRoute) *BallotCreateMessage {
	out := *m
	out.Scope = Group(route)
	out.Document = append([]byte(nil), m.Document...)
	return &out
}

// ===== BALLOT VOTE =====

// VoteEntry is one (choice, value) pair of a vote message
type VoteEntry struct {
	ChoiceID uint32
	Value    bool
}

// BallotVoteMessage carries one participant's votes on a ballot
type BallotVoteMessage struct {
	Meta          Meta
	Scope         Scope
	BallotCreator Identity    // Creator of the ballot voted on
	BallotID      BallotID    // Ballot voted on
	Voter         Identity    // Participant casting the votes
	Votes         []VoteEntry // Votes in choice order
}

// Type returns the box message type for the payload's scope
func (m *BallotVoteMessage) Type() uint16 {
	if m.Scope.IsGroup() {
		return MsgTypeGroupBallotVote
	}
	return MsgTypeBallotVote
}

// Encode encodes ballot vote message to bytes
func (m *BallotVoteMessage) Encode() []byte {
	size := IdentityLength + BallotIDLength + IdentityLength + 2 + len(m.Votes)*5
	if m.Scope.IsGroup() {
		size += GroupRouteSize
	}
	buf := make([]byte, 0, size)

	buf = m.Scope.appendPrefix(buf)
	buf = append(buf, m.BallotCreator[:]...)
	buf = append(buf, m.BallotID[:]...)
	buf = append(buf, m.Voter[:]...)

	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Votes)))
	for _, v := range m.Votes {
		buf = binary.BigEndian.AppendUint32(buf, v.ChoiceID)
		if v.Value {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}

	return buf
}

// Decode decodes ballot vote message from bytes
func (m *BallotVoteMessage) Decode(kind ScopeKind, buf []byte) error {
	r := newReader(buf)

	m.Scope = readScope(kind, r)
	r.fixed(m.BallotCreator[:], "ballot creator")
	r.fixed(m.BallotID[:], "ballot id")
	r.fixed(m.Voter[:], "voter")

	count := int(r.u16("vote count"))
	if r.fail == nil && count > MaxVoteEntries {
		return fmt.Errorf("%w: %d vote entries exceeds %d", ErrMalformedPayload, count, MaxVoteEntries)
	}

	m.Votes = make([]VoteEntry, 0, count)
	for i := 0; i < count && r.fail == nil; i++ {
		choiceID := r.u32("vote choice id")
		value := r.u8("vote value")
		if r.fail == nil && value > 1 {
			return fmt.Errorf("%w: vote value %d is not boolean", ErrMalformedPayload, value)
		}
		m.Votes = append(m.Votes, VoteEntry{ChoiceID: choiceID, Value: value == 1})
	}

	if err := r.finish(); err != nil {
		return err
	}
	if !m.BallotCreator.Valid() || !m.Voter.Valid() {
		return fmt.Errorf("%w: invalid identity in vote", ErrMalformedPayload)
	}
	return nil
}

// InGroup returns a copy of the message routed to the given group
func (m *BallotVoteMessage) InGroup(route GroupRoute) *BallotVoteMessage {
	out := *m
	out.Scope = Group(route)
	out.Votes = append([]VoteEntry(nil), m.Votes...)
	return &out
}
