package codec

import (
	"errors"

	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

var (
	// ErrMalformedPayload is the wire-level parse error; it is the same
	// value the protocol package wraps
	ErrMalformedPayload = protocol.ErrMalformedPayload

	ErrUnknownBallot           = errors.New("unknown ballot")
	ErrUnknownConversation     = errors.New("unknown conversation")
	ErrThumbnailFetchFailed    = errors.New("thumbnail fetch failed")
	ErrEntityPersistenceFailed = errors.New("entity persistence failed")
	ErrSanityCheckFailed       = errors.New("ballot failed sanity check")
)
