package entity

import (
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// Contact represents a chat peer
type Contact struct {
	Identity protocol.Identity
	Nickname string
	Blocked  bool
}

// Conversation is a 1:1 chat with a contact or a group chat
type Conversation struct {
	ID      string
	Contact protocol.Identity    // Set for direct conversations
	Group   *protocol.GroupRoute // Set for group conversations
}

// IsGroup reports whether the conversation is a group chat
func (c *Conversation) IsGroup() bool {
	return c.Group != nil
}

// DirectConversationID returns the id of the 1:1 conversation with identity
func DirectConversationID(identity protocol.Identity) string {
	return "d-" + identity.String()
}

// GroupConversationID returns the id of the group conversation for route
func GroupConversationID(route protocol.GroupRoute) string {
	return "g-" + route.Creator.String() + "-" + route.ID.String()
}

// NewDirectConversation builds the conversation with a contact
func NewDirectConversation(contact protocol.Identity) *Conversation {
	return &Conversation{ID: DirectConversationID(contact), Contact: contact}
}

// NewGroupConversation builds the conversation for a group route
func NewGroupConversation(route protocol.GroupRoute) *Conversation {
	r := route
	return &Conversation{ID: GroupConversationID(route), Group: &r}
}
