package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// Protocol constants
const (
	// Magic number for box framing ('ZBOX')
	ProtocolMagic = 0x5A424F58

	// Protocol version
	ProtocolVersion = 0x0100 // v1.0

	// Header size
	HeaderSize = 4 + 2 + 2 + 4 + 2 + MessageIDLength + IdentityLength + IdentityLength + 8

	// MaxPayloadSize bounds the payload length a header may declare
	MaxPayloadSize = 1 << 20
)

// Box message types. Values match the ones peers already use on the wire.
const (
	MsgTypeBallotCreate      uint16 = 0x0015
	MsgTypeBallotVote        uint16 = 0x0016
	MsgTypeFile              uint16 = 0x0017
	MsgTypeGroupFile         uint16 = 0x0046
	MsgTypeGroupBallotCreate uint16 = 0x0052
	MsgTypeGroupBallotVote   uint16 = 0x0053
)

// Flags
const (
	FlagSendPush          uint16 = 0x0001 // Recipient should get a push notification
	FlagDontQueue         uint16 = 0x0002 // Drop instead of queueing when recipient is offline
	FlagDontAck           uint16 = 0x0004 // No server acknowledgment requested
	FlagGroup             uint16 = 0x0010 // Payload carries a group route
	FlagPadded            uint16 = 0x0020 // Payload has PKCS#7 style padding
	FlagNoDeliveryReceipt uint16 = 0x0080 // Recipient must not send a delivery receipt
)

// Identifier sizes
const (
	IdentityLength  = 8
	MessageIDLength = 8
	BallotIDLength  = 8
	GroupIDLength   = 8
	BlobIDLength    = 16
	BlobKeyLength   = 32
)

// Text limits in bytes
const (
	MaxTitleLength    = 256
	MaxLabelLength    = 256
	MaxFilenameLength = 255
	MaxCaptionLength  = 4096
	MaxMIMELength     = 255
	MaxCorrelationLen = 64

	MaxChoices      = 128
	MaxParticipants = 256
	MaxVoteEntries  = MaxChoices

	MaxBallotDocumentSize = 64 << 10
	MaxFileMetadataSize   = 4 << 10

	// MaxFileSize is the largest declared file size accepted (100 MiB)
	MaxFileSize = 100 << 20
)

// Identity is an 8 character chat identity (e.g. "ECHOECHO")
type Identity [IdentityLength]byte

// MessageID represents a unique message identifier (8 bytes)
type MessageID [MessageIDLength]byte

// BallotID identifies a ballot together with its creator identity
type BallotID [BallotIDLength]byte

// GroupID identifies a group together with its creator identity
type GroupID [GroupIDLength]byte

// BlobID is the fixed-width handle of an encrypted blob
type BlobID [BlobIDLength]byte

// BlobKey is the symmetric key a sender encrypted a blob with
type BlobKey [BlobKeyLength]byte

// ===== HELPER FUNCTIONS =====

// ParseIdentity validates and converts an identity string
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	if len(s) != IdentityLength {
		return id, fmt.Errorf("%w: identity %q must be %d characters", ErrMalformedPayload, s, IdentityLength)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '*' && i == 0:
			// Gateway identities start with '*'
		default:
			return id, fmt.Errorf("%w: identity %q contains invalid character", ErrMalformedPayload, s)
		}
	}
	copy(id[:], s)
	return id, nil
}

// MustParseIdentity is ParseIdentity for constants and tests
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (i Identity) String() string {
	return string(i[:])
}

// IsZero checks if identity is unset
func (i Identity) IsZero() bool {
	return i == Identity{}
}

// Valid reports whether the identity would survive ParseIdentity
func (i Identity) Valid() bool {
	_, err := ParseIdentity(string(i[:]))
	return err == nil
}

func (id MessageID) String() string { return hex.EncodeToString(id[:]) }
func (id BallotID) String() string  { return hex.EncodeToString(id[:]) }
func (id GroupID) String() string   { return hex.EncodeToString(id[:]) }
func (id BlobID) String() string    { return hex.EncodeToString(id[:]) }

// IsZero reports whether the blob id is unset (no blob attached)
func (id BlobID) IsZero() bool {
	return id == BlobID{}
}

// ParseBlobID parses the hex form produced by BlobID.String
func ParseBlobID(s string) (BlobID, error) {
	var id BlobID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid blob id: %w", err)
	}
	if len(raw) != BlobIDLength {
		return id, fmt.Errorf("invalid blob id length: %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// ParseMessageID parses the hex form produced by MessageID.String
func ParseMessageID(s string) (MessageID, error) {
	var id MessageID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid message id: %w", err)
	}
	if len(raw) != MessageIDLength {
		return id, fmt.Errorf("invalid message id length: %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// GenerateMessageID generates a random message ID
func GenerateMessageID() MessageID {
	var id MessageID
	if _, err := rand.Read(id[:]); err != nil {
		// Fallback: timestamp-based if crypto/rand fails
		binary.BigEndian.PutUint64(id[:], uint64(time.Now().UnixNano()^0x5DEECE66D))
	}
	return id
}

// GenerateBallotID generates a random ballot ID
func GenerateBallotID() BallotID {
	var id BallotID
	if _, err := rand.Read(id[:]); err != nil {
		binary.BigEndian.PutUint64(id[:], uint64(time.Now().UnixNano()))
	}
	return id
}

// NowUnixMilli returns current time in Unix milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
