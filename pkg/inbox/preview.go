package inbox

import (
	"github.com/ZentaChain/zentalk-client/pkg/codec"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// Preview is what a notification shows for a box, decoded without
// touching the store
type Preview struct {
	Kind      Kind
	From      protocol.Identity
	MessageID protocol.MessageID
	Group     bool

	Title string // Ballot create
	State int    // Ballot create: 0 open, 1 closed

	Filename string // File
	Caption  string // File
	MIMEType string // File
	Size     int64  // File
}

// Preview decodes the notification fields of a raw box
func (r *Receiver) Preview(raw []byte) (*Preview, error) {
	msg, err := protocol.ParseMessage(raw)
	if err != nil {
		return nil, err
	}
	payload, err := protocol.Unpack(msg)
	if err != nil {
		return nil, err
	}

	p := &Preview{
		Kind:      kindOf(payload),
		From:      msg.Header.From,
		MessageID: msg.Header.MessageID,
		Group:     scopeOf(payload).IsGroup(),
	}

	switch m := payload.(type) {
	case *protocol.BallotCreateMessage:
		if p.Title, err = r.ballots.DecodeCreateTitle(m); err != nil {
			return nil, err
		}
		if p.State, err = r.ballots.DecodeCreateNotificationState(m); err != nil {
			return nil, err
		}
	case *protocol.FileMessage:
		if p.Filename, err = codec.DecodeFilename(m); err != nil {
			return nil, err
		}
		if p.Caption, err = codec.DecodeFileCaption(m); err != nil {
			return nil, err
		}
		p.MIMEType = m.MIMEType
		p.Size = m.Size
	}
	return p, nil
}
