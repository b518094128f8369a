package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// RenderingType tells the receiver how to present a file
type RenderingType uint8

const (
	RenderingFile    RenderingType = 0
	RenderingMedia   RenderingType = 1
	RenderingSticker RenderingType = 2
)

func (r RenderingType) String() string {
	switch r {
	case RenderingFile:
		return "file"
	case RenderingMedia:
		return "media"
	case RenderingSticker:
		return "sticker"
	default:
		return fmt.Sprintf("rendering(%d)", uint8(r))
	}
}

// Presence flags for the optional text fields of a file payload
const (
	fileHasFilename    uint8 = 0x01
	fileHasCaption     uint8 = 0x02
	fileHasCorrelation uint8 = 0x04
	fileKnownFlags           = fileHasFilename | fileHasCaption | fileHasCorrelation
)

// DefaultThumbnailMIME is assumed when a thumbnail is attached without a type
const DefaultThumbnailMIME = "image/jpeg"

// FileMetadata holds the optional media attributes of a file message
type FileMetadata struct {
	Duration float64 `cbor:"d,omitempty"` // Seconds, audio and video
	Width    uint32  `cbor:"w,omitempty"`
	Height   uint32  `cbor:"h,omitempty"`
	Animated bool    `cbor:"a,omitempty"`
}

// IsZero reports whether no attribute is set
func (m FileMetadata) IsZero() bool {
	return m == FileMetadata{}
}

// ===== FILE MESSAGE =====

// FileMessage references an encrypted blob and describes its contents
type FileMessage struct {
	Meta            Meta
	Scope           Scope
	BlobID          BlobID        // Encrypted file blob
	ThumbnailBlobID BlobID        // Encrypted thumbnail blob, zero if none
	Key             BlobKey       // Key for both blobs
	Size            int64         // Declared plaintext size in bytes
	Rendering       RenderingType // Presentation hint
	MIMEType        string        // Declared file MIME type
	ThumbnailMIME   string        // Thumbnail MIME type
	Filename        string        // Optional
	Caption         string        // Optional
	CorrelationID   string        // Optional, groups files sent together
	Metadata        FileMetadata  // Optional media attributes
}

// Type returns the box message type for the payload's scope
func (m *FileMessage) Type() uint16 {
	if m.Scope.IsGroup() {
		return MsgTypeGroupFile
	}
	return MsgTypeFile
}

// HasThumbnail reports whether a thumbnail blob is attached
func (m *FileMessage) HasThumbnail() bool {
	return !m.ThumbnailBlobID.IsZero()
}

// Encode encodes file message to bytes
func (m *FileMessage) Encode() []byte {
	var meta []byte
	if !m.Metadata.IsZero() {
		// Fixed struct of scalars; marshalling cannot fail
		meta, _ = docEncMode.Marshal(m.Metadata)
	}

	var flags uint8
	if m.Filename != "" {
		flags |= fileHasFilename
	}
	if m.Caption != "" {
		flags |= fileHasCaption
	}
	if m.CorrelationID != "" {
		flags |= fileHasCorrelation
	}

	buf := make([]byte, 0, GroupRouteSize+BlobIDLength*2+BlobKeyLength+8+2+
		len(m.MIMEType)+len(m.ThumbnailMIME)+len(m.Filename)+len(m.Caption)+len(m.CorrelationID)+10+4+len(meta))

	buf = m.Scope.appendPrefix(buf)
	buf = append(buf, m.BlobID[:]...)
	buf = append(buf, m.ThumbnailBlobID[:]...)
	buf = append(buf, m.Key[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.Size))
	buf = append(buf, uint8(m.Rendering), flags)

	buf = appendText(buf, m.MIMEType)
	buf = appendText(buf, m.ThumbnailMIME)
	if flags&fileHasFilename != 0 {
		buf = appendText(buf, m.Filename)
	}
	if flags&fileHasCaption != 0 {
		buf = appendText(buf, m.Caption)
	}
	if flags&fileHasCorrelation != 0 {
		buf = appendText(buf, m.CorrelationID)
	}
	buf = appendBlob(buf, meta)

	return buf
}

// Decode decodes file message from bytes. It checks structure only;
// Validate checks the values.
func (m *FileMessage) Decode(kind ScopeKind, buf []byte) error {
	r := newReader(buf)

	m.Scope = readScope(kind, r)
	r.fixed(m.BlobID[:], "blob id")
	r.fixed(m.ThumbnailBlobID[:], "thumbnail blob id")
	r.fixed(m.Key[:], "blob key")
	m.Size = int64(r.u64("file size"))
	m.Rendering = RenderingType(r.u8("rendering type"))
	flags := r.u8("presence flags")
	if r.fail == nil && flags&^fileKnownFlags != 0 {
		return fmt.Errorf("%w: unknown presence flags 0x%02x", ErrMalformedPayload, flags)
	}

	m.MIMEType = r.text(MaxMIMELength, "mime type")
	m.ThumbnailMIME = r.text(MaxMIMELength, "thumbnail mime type")
	if flags&fileHasFilename != 0 {
		m.Filename = r.text(MaxFilenameLength, "filename")
	}
	if flags&fileHasCaption != 0 {
		m.Caption = r.text(MaxCaptionLength, "caption")
	}
	if flags&fileHasCorrelation != 0 {
		m.CorrelationID = r.text(MaxCorrelationLen, "correlation id")
	}
	meta := r.blob(MaxFileMetadataSize, "file metadata")

	if err := r.finish(); err != nil {
		return err
	}

	m.Metadata = FileMetadata{}
	if len(meta) > 0 {
		if err := docDecMode.Unmarshal(meta, &m.Metadata); err != nil {
			return fmt.Errorf("%w: file metadata: %v", ErrMalformedPayload, err)
		}
	}

	return nil
}

// Validate checks the declared values of a decoded file message
func (m *FileMessage) Validate() error {
	if m.Size <= 0 || m.Size > MaxFileSize {
		return fmt.Errorf("%w: declared size %d out of range", ErrMalformedPayload, m.Size)
	}
	if m.BlobID.IsZero() {
		return fmt.Errorf("%w: missing blob id", ErrMalformedPayload)
	}
	if m.Key == (BlobKey{}) {
		return fmt.Errorf("%w: missing blob key", ErrMalformedPayload)
	}
	if !validMIME(m.MIMEType) {
		return fmt.Errorf("%w: invalid mime type %q", ErrMalformedPayload, m.MIMEType)
	}
	if m.ThumbnailMIME != "" && !validMIME(m.ThumbnailMIME) {
		return fmt.Errorf("%w: invalid thumbnail mime type %q", ErrMalformedPayload, m.ThumbnailMIME)
	}
	if m.Rendering > RenderingSticker {
		return fmt.Errorf("%w: unknown rendering type %d", ErrMalformedPayload, m.Rendering)
	}
	if len(m.Filename) > MaxFilenameLength || len(m.Caption) > MaxCaptionLength ||
		len(m.MIMEType) > MaxMIMELength || len(m.ThumbnailMIME) > MaxMIMELength ||
		len(m.CorrelationID) > MaxCorrelationLen {
		return fmt.Errorf("%w: text field too long", ErrMalformedPayload)
	}
	return nil
}

// InGroup returns a copy of the message routed to the given group
func (m *FileMessage) InGroup(route GroupRoute) *FileMessage {
	out := *m
	out.Scope = Group(route)
	return &out
}

// validMIME accepts "type/subtype" with printable ASCII and no spaces
func validMIME(s string) bool {
	slash := strings.IndexByte(s, '/')
	if slash <= 0 || slash == len(s)-1 || len(s) > MaxMIMELength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] > '~' {
			return false
		}
	}
	return strings.Count(s, "/") == 1
}
