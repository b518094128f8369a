package protocol

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// Padding bounds. Each padded payload carries 1-255 bytes of padding,
// every padding byte holding the padding length, and is never shorter
// than MinPaddedSize.
const (
	MinPaddingLength = 1
	MaxPaddingLength = 255
	MinPaddedSize    = 32
)

var ErrInvalidPadding = errors.New("invalid padding")

// AddPadding appends a random amount of PKCS#7 style padding
func AddPadding(payload []byte) ([]byte, error) {
	var rb [1]byte
	if _, err := rand.Read(rb[:]); err != nil {
		return nil, fmt.Errorf("failed to read random padding length: %w", err)
	}
	return addPadding(payload, int(rb[0]))
}

// addPadding pads with n bytes, raising n where needed so that
// the result reaches MinPaddedSize
func addPadding(payload []byte, n int) ([]byte, error) {
	if n < MinPaddingLength {
		n = MinPaddingLength
	}
	if len(payload)+n < MinPaddedSize {
		n = MinPaddedSize - len(payload)
	}
	if n > MaxPaddingLength {
		return nil, fmt.Errorf("%w: padding length %d", ErrInvalidPadding, n)
	}

	padded := make([]byte, len(payload)+n)
	copy(padded, payload)
	for i := len(payload); i < len(padded); i++ {
		padded[i] = byte(n)
	}

	return padded, nil
}

// RemovePadding strips the padding added by AddPadding
func RemovePadding(padded []byte) ([]byte, error) {
	if len(padded) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPadding)
	}

	n := int(padded[len(padded)-1])
	if n < MinPaddingLength || n > len(padded) {
		return nil, fmt.Errorf("%w: padding length %d for %d bytes", ErrInvalidPadding, n, len(padded))
	}
	for _, b := range padded[len(padded)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: inconsistent padding bytes", ErrInvalidPadding)
		}
	}

	return padded[:len(padded)-n], nil
}

// AddMessagePadding pads the message payload and sets FlagPadded
func AddMessagePadding(msg *Message) (*Message, error) {
	if msg.Header.HasFlag(FlagPadded) {
		return msg, nil
	}

	paddedPayload, err := AddPadding(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to add padding: %w", err)
	}

	header := *msg.Header
	header.Length = uint32(len(paddedPayload))
	header.SetFlag(FlagPadded)

	return &Message{Header: &header, Payload: paddedPayload}, nil
}

// RemoveMessagePadding removes padding from a message payload
func RemoveMessagePadding(msg *Message) (*Message, error) {
	// Check if message is padded
	if !msg.Header.HasFlag(FlagPadded) {
		// No padding, return as-is
		return msg, nil
	}

	originalPayload, err := RemovePadding(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to remove padding: %w", err)
	}

	header := *msg.Header
	header.Length = uint32(len(originalPayload))
	header.ClearFlag(FlagPadded)

	return &Message{Header: &header, Payload: originalPayload}, nil
}
