package crypto

import (
	"encoding/hex"
	"testing"
)

func TestHash(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string // BLAKE2b-256 hash in hex
	}{
		{
			name:     "empty input",
			input:    []byte{},
			expected: "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8",
		},
		{
			name:     "simple string",
			input:    []byte("hello world"),
			expected: "256c83b297114d201b30179f3f0ef0cace9783622da5974326b436178aeef610",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := Hash(tt.input)
			if err != nil {
				t.Fatalf("Hash() error = %v", err)
			}

			if got := hex.EncodeToString(hash); got != tt.expected {
				t.Errorf("Hash() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestBlobIDFor(t *testing.T) {
	data := []byte("hello world")

	id := BlobIDFor(data)
	if got, want := id.String(), "256c83b297114d201b30179f3f0ef0ca"; got != want {
		t.Errorf("BlobIDFor() = %s, want %s", got, want)
	}

	if !VerifyBlobID(data, id) {
		t.Error("VerifyBlobID() = false for matching data")
	}
	if VerifyBlobID([]byte("hello world!"), id) {
		t.Error("VerifyBlobID() = true for different data")
	}
}

func TestGenerateBlobKey(t *testing.T) {
	k1, err := GenerateBlobKey()
	if err != nil {
		t.Fatalf("GenerateBlobKey() error = %v", err)
	}
	k2, _ := GenerateBlobKey()

	if k1 == k2 {
		t.Error("GenerateBlobKey() produced identical keys")
	}
}
