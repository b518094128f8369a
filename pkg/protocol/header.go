package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidMagic     = errors.New("invalid protocol magic")
	ErrInvalidVersion   = errors.New("unsupported protocol version")
	ErrInvalidHeader    = errors.New("invalid header")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrUnknownType      = errors.New("unknown message type")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Header represents the box message header
type Header struct {
	Magic     uint32    // Magic number (0x5A424F58)
	Version   uint16    // Protocol version
	Type      uint16    // Message type
	Length    uint32    // Payload length
	Flags     uint16    // Feature flags
	MessageID MessageID // Unique message ID
	From      Identity  // Sender identity
	To        Identity  // Recipient identity
	Date      uint64    // Sender timestamp (Unix ms)
}

// Encode encodes the header to bytes
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)

	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Type)
	binary.BigEndian.PutUint32(buf[8:12], h.Length)
	binary.BigEndian.PutUint16(buf[12:14], h.Flags)
	copy(buf[14:22], h.MessageID[:])
	copy(buf[22:30], h.From[:])
	copy(buf[30:38], h.To[:])
	binary.BigEndian.PutUint64(buf[38:46], h.Date)

	return buf
}

// Decode decodes the header from bytes
func (h *Header) Decode(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrInvalidHeader
	}

	h.Magic = binary.BigEndian.Uint32(buf[0:4])
	h.Version = binary.BigEndian.Uint16(buf[4:6])
	h.Type = binary.BigEndian.Uint16(buf[6:8])
	h.Length = binary.BigEndian.Uint32(buf[8:12])
	h.Flags = binary.BigEndian.Uint16(buf[12:14])
	copy(h.MessageID[:], buf[14:22])
	copy(h.From[:], buf[22:30])
	copy(h.To[:], buf[30:38])
	h.Date = binary.BigEndian.Uint64(buf[38:46])

	return nil
}

// Validate validates the header
func (h *Header) Validate() error {
	if h.Magic != ProtocolMagic {
		return ErrInvalidMagic
	}

	if h.Version != ProtocolVersion {
		return ErrInvalidVersion
	}

	if h.Length > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.Length)
	}

	if !KnownType(h.Type) {
		return fmt.Errorf("%w: 0x%04x", ErrUnknownType, h.Type)
	}

	// The group flag must agree with the type so the payload is parsed
	// with the right prefix
	if h.HasFlag(FlagGroup) != (scopeForType(h.Type) == ScopeGroup) {
		return fmt.Errorf("%w: group flag does not match type 0x%04x", ErrInvalidHeader, h.Type)
	}

	return nil
}

// HasFlag checks if a flag is set
func (h *Header) HasFlag(flag uint16) bool {
	return (h.Flags & flag) != 0
}

// SetFlag sets a flag
func (h *Header) SetFlag(flag uint16) {
	h.Flags |= flag
}

// ClearFlag clears a flag
func (h *Header) ClearFlag(flag uint16) {
	h.Flags &^= flag
}

// KnownType reports whether the message type is one this package decodes
func KnownType(t uint16) bool {
	switch t {
	case MsgTypeBallotCreate, MsgTypeBallotVote, MsgTypeFile,
		MsgTypeGroupFile, MsgTypeGroupBallotCreate, MsgTypeGroupBallotVote:
		return true
	}
	return false
}

// ReadHeader reads a header from an io.Reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)

	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	header := &Header{}
	if err := header.Decode(buf); err != nil {
		return nil, err
	}

	if err := header.Validate(); err != nil {
		return nil, err
	}

	return header, nil
}

// WriteHeader writes a header to an io.Writer
func WriteHeader(w io.Writer, h *Header) error {
	buf := h.Encode()
	_, err := w.Write(buf)
	return err
}
