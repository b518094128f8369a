package crypto

import (
	"errors"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// Blob nonces. Every blob key encrypts exactly one file and at most one
// thumbnail, so fixed nonces per kind are safe.
var (
	FileNonce      = [24]byte{23: 0x01}
	ThumbnailNonce = [24]byte{23: 0x02}
)

var ErrBlobDecrypt = errors.New("blob decryption failed")

// SealBlob encrypts a file or thumbnail with the message's blob key
func SealBlob(plaintext []byte, key protocol.BlobKey, nonce *[24]byte) []byte {
	k := [32]byte(key)
	return secretbox.Seal(nil, plaintext, nonce, &k)
}

// OpenBlob decrypts and authenticates a blob sealed by SealBlob
func OpenBlob(ciphertext []byte, key protocol.BlobKey, nonce *[24]byte) ([]byte, error) {
	if len(ciphertext) < secretbox.Overhead {
		return nil, ErrBlobDecrypt
	}

	k := [32]byte(key)
	plaintext, ok := secretbox.Open(nil, ciphertext, nonce, &k)
	if !ok {
		return nil, ErrBlobDecrypt
	}
	return plaintext, nil
}
