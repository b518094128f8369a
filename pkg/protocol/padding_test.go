package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestPaddingRoundTrip(t *testing.T) {
	testCases := []struct {
		name      string
		inputSize int
	}{
		{"empty", 0},
		{"tiny", 5},
		{"just under minimum", MinPaddedSize - 1},
		{"at minimum", MinPaddedSize},
		{"large", 4096},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			original := bytes.Repeat([]byte{0xAB}, tc.inputSize)

			padded, err := AddPadding(original)
			if err != nil {
				t.Fatalf("AddPadding() error = %v", err)
			}
			if len(padded) < MinPaddedSize {
				t.Errorf("padded length = %d, want >= %d", len(padded), MinPaddedSize)
			}
			if n := len(padded) - len(original); n < MinPaddingLength || n > MaxPaddingLength {
				t.Errorf("padding length = %d, want 1..255", n)
			}

			unpadded, err := RemovePadding(padded)
			if err != nil {
				t.Fatalf("RemovePadding() error = %v", err)
			}
			if !bytes.Equal(unpadded, original) {
				t.Errorf("RemovePadding() = %x, want %x", unpadded, original)
			}
		})
	}
}

func TestAddPaddingRaisesShortPayloads(t *testing.T) {
	padded, err := addPadding([]byte("abc"), 1)
	if err != nil {
		t.Fatalf("addPadding() error = %v", err)
	}
	if len(padded) != MinPaddedSize {
		t.Errorf("padded length = %d, want %d", len(padded), MinPaddedSize)
	}
	if padded[len(padded)-1] != byte(MinPaddedSize-3) {
		t.Errorf("padding byte = %d, want %d", padded[len(padded)-1], MinPaddedSize-3)
	}
}

func TestRemovePaddingInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"zero padding byte", []byte{1, 2, 3, 0}},
		{"padding longer than payload", []byte{9, 9, 9}},
		{"inconsistent padding", []byte{1, 2, 3, 2, 3, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RemovePadding(tt.input); !errors.Is(err, ErrInvalidPadding) {
				t.Errorf("RemovePadding() error = %v, want %v", err, ErrInvalidPadding)
			}
		})
	}
}

func TestMessagePadding(t *testing.T) {
	vote := &BallotVoteMessage{
		Scope:         Direct(),
		BallotCreator: MustParseIdentity("ALICE001"),
		BallotID:      BallotID{1, 2, 3, 4, 5, 6, 7, 8},
		Voter:         MustParseIdentity("BOBBOB02"),
		Votes:         []VoteEntry{{ChoiceID: 1, Value: true}},
	}
	msg := NewMessage(vote, vote.Voter, vote.BallotCreator)
	originalPayload := append([]byte(nil), msg.Payload...)

	padded, err := AddMessagePadding(msg)
	if err != nil {
		t.Fatalf("AddMessagePadding() error = %v", err)
	}
	if !padded.Header.HasFlag(FlagPadded) {
		t.Error("FlagPadded not set after padding")
	}
	if msg.Header.HasFlag(FlagPadded) {
		t.Error("AddMessagePadding modified the input header")
	}
	if int(padded.Header.Length) != len(padded.Payload) {
		t.Errorf("Header.Length = %d, payload = %d", padded.Header.Length, len(padded.Payload))
	}

	unpadded, err := RemoveMessagePadding(padded)
	if err != nil {
		t.Fatalf("RemoveMessagePadding() error = %v", err)
	}
	if unpadded.Header.HasFlag(FlagPadded) {
		t.Error("FlagPadded still set after removing padding")
	}
	if !bytes.Equal(unpadded.Payload, originalPayload) {
		t.Error("payload changed across padding round-trip")
	}
}

func TestRemoveMessagePaddingUnpadded(t *testing.T) {
	msg := &Message{Header: &Header{}, Payload: []byte("plain")}

	out, err := RemoveMessagePadding(msg)
	if err != nil {
		t.Fatalf("RemoveMessagePadding() error = %v", err)
	}
	if out != msg {
		t.Error("unpadded message should be returned as-is")
	}
}
