package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpenBlob(t *testing.T) {
	key, _ := GenerateBlobKey()
	plaintext := []byte("thumbnail bytes")

	sealed := SealBlob(plaintext, key, &ThumbnailNonce)

	opened, err := OpenBlob(sealed, key, &ThumbnailNonce)
	if err != nil {
		t.Fatalf("OpenBlob() error = %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("OpenBlob() = %q, want %q", opened, plaintext)
	}
}

func TestOpenBlobRejects(t *testing.T) {
	key, _ := GenerateBlobKey()
	otherKey, _ := GenerateBlobKey()
	sealed := SealBlob([]byte("file"), key, &FileNonce)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xFF

	tests := []struct {
		name  string
		data  []byte
		key   [32]byte
		nonce *[24]byte
	}{
		{"wrong key", sealed, otherKey, &FileNonce},
		{"wrong nonce", sealed, key, &ThumbnailNonce},
		{"tampered", tampered, key, &FileNonce},
		{"too short", sealed[:4], key, &FileNonce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := OpenBlob(tt.data, tt.key, tt.nonce); !errors.Is(err, ErrBlobDecrypt) {
				t.Errorf("OpenBlob() error = %v, want %v", err, ErrBlobDecrypt)
			}
		})
	}
}

func TestAESEncryptDecrypt(t *testing.T) {
	key := DeriveStorageKey("correct horse", []byte("salt-1234567890"))
	if len(key) != StorageKeySize {
		t.Fatalf("DeriveStorageKey() length = %d, want %d", len(key), StorageKeySize)
	}

	plaintext := []byte("blob key material")
	ciphertext, err := AESEncrypt(plaintext, key)
	if err != nil {
		t.Fatalf("AESEncrypt() error = %v", err)
	}

	decrypted, err := AESDecrypt(ciphertext, key)
	if err != nil {
		t.Fatalf("AESDecrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("AESDecrypt() = %q, want %q", decrypted, plaintext)
	}

	wrongKey := DeriveStorageKey("wrong", []byte("salt-1234567890"))
	if _, err := AESDecrypt(ciphertext, wrongKey); err == nil {
		t.Error("AESDecrypt() with wrong key succeeded")
	}
	if _, err := AESDecrypt(ciphertext[:5], key); err == nil {
		t.Error("AESDecrypt() on short input succeeded")
	}
}
