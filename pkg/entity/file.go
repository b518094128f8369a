package entity

import (
	"time"

	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// DownloadState tracks the thumbnail pipeline of a file message
type DownloadState uint8

const (
	DownloadPending DownloadState = iota
	DownloadThumbnailFetching
	DownloadThumbnailReady
	DownloadThumbnailFailed
	DownloadComplete
)

func (s DownloadState) String() string {
	switch s {
	case DownloadPending:
		return "pending"
	case DownloadThumbnailFetching:
		return "thumbnail-fetching"
	case DownloadThumbnailReady:
		return "thumbnail-ready"
	case DownloadThumbnailFailed:
		return "thumbnail-failed"
	case DownloadComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// FileMessage is a received or sent file attachment
type FileMessage struct {
	MessageID       protocol.MessageID
	ConversationID  string
	Sender          protocol.Identity // Zero for messages of the local user
	BlobID          protocol.BlobID
	ThumbnailBlobID protocol.BlobID
	Key             protocol.BlobKey
	MIMEType        string
	ThumbnailMIME   string
	Size            int64
	Filename        string
	Caption         string
	CorrelationID   string
	Rendering       protocol.RenderingType
	Metadata        protocol.FileMetadata
	Thumbnail       []byte
	IsOwn           bool
	Date            time.Time
	State           DownloadState
}

// HasThumbnail reports whether a thumbnail blob is referenced
func (f *FileMessage) HasThumbnail() bool {
	return !f.ThumbnailBlobID.IsZero()
}

// Clone returns a deep copy
func (f *FileMessage) Clone() *FileMessage {
	out := *f
	out.Thumbnail = append([]byte(nil), f.Thumbnail...)
	return &out
}
