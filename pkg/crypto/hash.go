package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/blake2b"

	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// Hash generates a BLAKE2b-256 hash
func Hash(data []byte) ([]byte, error) {
	hash, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}

	hash.Write(data)
	return hash.Sum(nil), nil
}

// BlobIDFor derives the blob id of an encrypted blob: the first 16
// bytes of its BLAKE2b-256 hash
func BlobIDFor(encrypted []byte) protocol.BlobID {
	sum := blake2b.Sum256(encrypted)

	var id protocol.BlobID
	copy(id[:], sum[:protocol.BlobIDLength])
	return id
}

// VerifyBlobID checks that encrypted content matches its blob id
func VerifyBlobID(encrypted []byte, id protocol.BlobID) bool {
	actual := BlobIDFor(encrypted)
	return subtle.ConstantTimeCompare(actual[:], id[:]) == 1
}

// GenerateBlobKey generates a random blob key
func GenerateBlobKey() (protocol.BlobKey, error) {
	var key protocol.BlobKey
	_, err := rand.Read(key[:])
	return key, err
}
