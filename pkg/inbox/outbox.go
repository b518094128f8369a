package inbox

import (
	"fmt"

	"github.com/ZentaChain/zentalk-client/pkg/codec"
	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// Outbox builds padded boxes for locally authored ballots and files
type Outbox struct {
	local   protocol.Identity
	encoder *codec.BallotEncoder
}

// NewOutbox creates an outbox for the local identity
func NewOutbox(local protocol.Identity) *Outbox {
	return &Outbox{local: local, encoder: codec.NewBallotEncoder(local)}
}

// BallotCreate builds the create boxes of b, one per recipient. Direct
// conversations default to the contact when no recipient is given.
func (o *Outbox) BallotCreate(b *entity.Ballot, conv *entity.Conversation, recipients ...protocol.Identity) ([]*protocol.Message, error) {
	msg, err := o.encoder.EncodeCreate(b)
	if err != nil {
		return nil, err
	}
	var payload protocol.Payload = msg
	if conv.IsGroup() {
		if payload, err = codec.GroupBallotCreateMessageFrom(msg, conv); err != nil {
			return nil, err
		}
	}
	return o.wrap(payload, conv, recipients)
}

// BallotVote builds the vote boxes carrying the local user's votes on b
func (o *Outbox) BallotVote(b *entity.Ballot, conv *entity.Conversation, recipients ...protocol.Identity) ([]*protocol.Message, error) {
	msg, err := o.encoder.EncodeVote(b)
	if err != nil {
		return nil, err
	}
	var payload protocol.Payload = msg
	if conv.IsGroup() {
		if payload, err = codec.GroupBallotVoteMessageFrom(msg, conv); err != nil {
			return nil, err
		}
	}
	return o.wrap(payload, conv, recipients)
}

// File builds the boxes of a file message whose blobs are already uploaded
func (o *Outbox) File(msg *protocol.FileMessage, conv *entity.Conversation, recipients ...protocol.Identity) ([]*protocol.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if conv.IsGroup() {
		msg = msg.InGroup(*conv.Group)
	}
	return o.wrap(msg, conv, recipients)
}

func (o *Outbox) wrap(p protocol.Payload, conv *entity.Conversation, recipients []protocol.Identity) ([]*protocol.Message, error) {
	if len(recipients) == 0 {
		if conv.IsGroup() {
			return nil, fmt.Errorf("group conversation %s needs explicit recipients", conv.ID)
		}
		recipients = []protocol.Identity{conv.Contact}
	}

	// One message id and date across all recipients of the same payload
	boxes := make([]*protocol.Message, 0, len(recipients))
	for _, to := range recipients {
		msg := protocol.NewMessage(p, o.local, to)
		if len(boxes) > 0 {
			msg.Header.MessageID = boxes[0].Header.MessageID
			msg.Header.Date = boxes[0].Header.Date
		}
		box, err := protocol.AddMessagePadding(msg)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, box)
	}
	return boxes, nil
}
