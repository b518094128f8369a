package codec

import (
	"context"

	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// EntityStore is the persistence boundary the codecs depend on. Find
// methods return entity.ErrNotFound for missing rows; Create methods
// return entity.ErrAlreadyExists when the key is taken.
type EntityStore interface {
	FindBallot(ctx context.Context, key entity.BallotKey) (*entity.Ballot, error)
	CreateBallot(ctx context.Context, b *entity.Ballot) error
	SaveBallot(ctx context.Context, b *entity.Ballot) error

	// UpdateBallot runs a read-modify-write on one ballot. Calls for the
	// same ballot are serialized. fn receives a private copy; the copy
	// is saved only when fn returns true.
	UpdateBallot(ctx context.Context, key entity.BallotKey, fn func(b *entity.Ballot) (bool, error)) (bool, error)

	FindFileMessage(ctx context.Context, conversationID string, id protocol.MessageID) (*entity.FileMessage, error)
	CreateFileMessage(ctx context.Context, f *entity.FileMessage) error
	SaveFileMessage(ctx context.Context, f *entity.FileMessage) error
}

// BlobFetcher downloads an encrypted blob. Implementations should honor
// the ctx deadline; the file decoder enforces it regardless.
type BlobFetcher interface {
	Fetch(ctx context.Context, id protocol.BlobID) ([]byte, error)
}
