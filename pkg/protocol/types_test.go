package protocol

import (
	"errors"
	"testing"
)

func TestGenerateMessageID(t *testing.T) {
	id1 := GenerateMessageID()
	id2 := GenerateMessageID()

	if id1 == id2 {
		t.Error("GenerateMessageID() produced identical IDs (collision)")
	}
	if id1 == (MessageID{}) {
		t.Error("GenerateMessageID() produced zero ID")
	}
}

func TestGenerateBallotIDUniqueness(t *testing.T) {
	ids := make(map[BallotID]bool)
	count := 1000

	for i := 0; i < count; i++ {
		id := GenerateBallotID()
		if ids[id] {
			t.Errorf("GenerateBallotID() collision detected at iteration %d", i)
		}
		ids[id] = true
	}
}

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"regular", "ECHOECHO", false},
		{"digits", "0123ABCD", false},
		{"gateway", "*THREEMA", false},
		{"too short", "ECHO", true},
		{"too long", "ECHOECHO1", true},
		{"lowercase", "echoecho", true},
		{"star not first", "ECHO*CHO", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseIdentity(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Errorf("ParseIdentity(%q) error = %v, want %v", tt.input, err, ErrMalformedPayload)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIdentity(%q) error = %v", tt.input, err)
			}
			if id.String() != tt.input {
				t.Errorf("String() = %q, want %q", id.String(), tt.input)
			}
			if !id.Valid() {
				t.Error("Valid() = false for parsed identity")
			}
		})
	}
}

func TestIdentityIsZero(t *testing.T) {
	if !(Identity{}).IsZero() {
		t.Error("IsZero() = false for zero identity")
	}
	if MustParseIdentity("ECHOECHO").IsZero() {
		t.Error("IsZero() = true for set identity")
	}
	if (Identity{}).Valid() {
		t.Error("Valid() = true for zero identity")
	}
}

func TestParseBlobID(t *testing.T) {
	id := BlobID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}

	parsed, err := ParseBlobID(id.String())
	if err != nil {
		t.Fatalf("ParseBlobID() error = %v", err)
	}
	if parsed != id {
		t.Errorf("ParseBlobID() = %v, want %v", parsed, id)
	}

	if _, err := ParseBlobID("zz"); err == nil {
		t.Error("ParseBlobID(non-hex) succeeded")
	}
	if _, err := ParseBlobID("0102"); err == nil {
		t.Error("ParseBlobID(short) succeeded")
	}
}

func TestParseMessageID(t *testing.T) {
	id := GenerateMessageID()

	parsed, err := ParseMessageID(id.String())
	if err != nil {
		t.Fatalf("ParseMessageID() error = %v", err)
	}
	if parsed != id {
		t.Errorf("ParseMessageID() = %v, want %v", parsed, id)
	}
}

func TestBlobIDIsZero(t *testing.T) {
	if !(BlobID{}).IsZero() {
		t.Error("IsZero() = false for zero blob id")
	}
	if (BlobID{1}).IsZero() {
		t.Error("IsZero() = true for set blob id")
	}
}
