package protocol

import (
	"fmt"
	"io"
)

// Message represents a complete box message
type Message struct {
	Header  *Header
	Payload []byte
}

// NewMessage wraps an encoded payload in a box addressed from → to
func NewMessage(p Payload, from, to Identity) *Message {
	payload := p.Encode()
	msg := &Message{
		Header: &Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      p.Type(),
			Length:    uint32(len(payload)),
			Flags:     0,
			MessageID: GenerateMessageID(),
			From:      from,
			To:        to,
			Date:      uint64(NowUnixMilli()),
		},
		Payload: payload,
	}
	if scopeForType(p.Type()) == ScopeGroup {
		msg.Header.SetFlag(FlagGroup)
	}
	return msg
}

// Encode encodes header and payload into one buffer
func (m *Message) Encode() []byte {
	m.Header.Length = uint32(len(m.Payload))
	buf := make([]byte, 0, HeaderSize+len(m.Payload))
	buf = append(buf, m.Header.Encode()...)
	return append(buf, m.Payload...)
}

// ParseMessage parses a complete box from a byte slice
func ParseMessage(buf []byte) (*Message, error) {
	header := &Header{}
	if err := header.Decode(buf); err != nil {
		return nil, err
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}

	if uint32(len(buf)-HeaderSize) != header.Length {
		return nil, fmt.Errorf("%w: header declares %d payload bytes, have %d",
			ErrInvalidHeader, header.Length, len(buf)-HeaderSize)
	}

	payload := make([]byte, header.Length)
	copy(payload, buf[HeaderSize:])

	return &Message{Header: header, Payload: payload}, nil
}

// ReadMessage reads one box from an io.Reader
func ReadMessage(r io.Reader) (*Message, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	return &Message{Header: header, Payload: payload}, nil
}

// WriteMessage writes one box to an io.Writer
func WriteMessage(w io.Writer, m *Message) error {
	_, err := w.Write(m.Encode())
	return err
}

// Unpack strips padding and decodes the payload into its typed wire
// message. The result is one of *BallotCreateMessage,
// *BallotVoteMessage or *FileMessage with Meta filled from the header.
func Unpack(m *Message) (Payload, error) {
	unpadded, err := RemoveMessagePadding(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	h := unpadded.Header
	meta := Meta{From: h.From, MessageID: h.MessageID, Date: h.Date}
	kind := scopeForType(h.Type)

	switch h.Type {
	case MsgTypeBallotCreate, MsgTypeGroupBallotCreate:
		msg := &BallotCreateMessage{}
		if err := msg.Decode(kind, unpadded.Payload); err != nil {
			return nil, err
		}
		msg.Meta = meta
		return msg, nil

	case MsgTypeBallotVote, MsgTypeGroupBallotVote:
		msg := &BallotVoteMessage{}
		if err := msg.Decode(kind, unpadded.Payload); err != nil {
			return nil, err
		}
		msg.Meta = meta
		return msg, nil

	case MsgTypeFile, MsgTypeGroupFile:
		msg := &FileMessage{}
		if err := msg.Decode(kind, unpadded.Payload); err != nil {
			return nil, err
		}
		msg.Meta = meta
		return msg, nil

	default:
		return nil, fmt.Errorf("%w: 0x%04x", ErrUnknownType, h.Type)
	}
}
