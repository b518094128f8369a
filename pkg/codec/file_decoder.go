package codec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZentaChain/zentalk-client/pkg/crypto"
	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/metrics"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// DefaultThumbnailTimeout bounds a thumbnail fetch when the caller sets none
const DefaultThumbnailTimeout = 30 * time.Second

// FileDecodeOptions are the per-call settings of a file decode
type FileDecodeOptions struct {
	// Timeout bounds the thumbnail fetch. Zero means DefaultThumbnailTimeout.
	Timeout time.Duration

	// Sender is the resolved contact; nil for reflected messages
	Sender *entity.Contact

	// Reflected marks a message the local user sent from another device
	Reflected bool
}

// FileDecoder turns inbound file messages into persisted file messages
// and fetches their thumbnails
type FileDecoder struct {
	store   EntityStore
	fetcher BlobFetcher
	opts    options
}

// NewFileDecoder creates a file decoder
func NewFileDecoder(store EntityStore, fetcher BlobFetcher, opts ...Option) *FileDecoder {
	return &FileDecoder{store: store, fetcher: fetcher, opts: buildOptions(opts)}
}

// Decode validates msg and starts the decode pipeline. Validation errors
// resolve the returned task before Decode returns; everything else runs
// on its own goroutine.
func (d *FileDecoder) Decode(ctx context.Context, msg *protocol.FileMessage, conv *entity.Conversation, opts FileDecodeOptions) *Task {
	t := newTask()

	if err := msg.Validate(); err != nil {
		d.opts.metrics.Decode("file", metrics.OutcomeMalformed)
		t.resolve(nil, err)
		return t
	}
	if opts.Sender != nil && !msg.Meta.From.IsZero() && opts.Sender.Identity != msg.Meta.From {
		d.opts.metrics.Decode("file", metrics.OutcomeMalformed)
		t.resolve(nil, fmt.Errorf("%w: sender does not match box sender", ErrMalformedPayload))
		return t
	}
	if err := checkScope(msg.Scope, conv); err != nil {
		d.opts.metrics.Decode("file", metrics.OutcomeUnknown)
		t.resolve(nil, err)
		return t
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultThumbnailTimeout
	}

	go d.run(ctx, t, msg, conv, opts)
	return t
}

// DecodeWithCallbacks is Decode for callers that want callbacks. Exactly
// one of onCompletion and onError is called, once, from a single
// goroutine after the decode resolves.
func (d *FileDecoder) DecodeWithCallbacks(ctx context.Context, msg *protocol.FileMessage, conv *entity.Conversation, opts FileDecodeOptions,
	onCompletion func(*entity.FileMessage), onError func(error)) {
	t := d.Decode(ctx, msg, conv, opts)

	go func() {
		<-t.Done()
		f, err := t.Result()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onCompletion != nil {
			onCompletion(f)
		}
	}()
}

func (d *FileDecoder) run(ctx context.Context, t *Task, msg *protocol.FileMessage, conv *entity.Conversation, opts FileDecodeOptions) {
	f, err := d.persist(ctx, msg, conv, opts)
	if err != nil {
		d.opts.logger.Error("failed to persist file message", "message", msg.Meta.MessageID, "error", err)
		d.opts.metrics.Decode("file", metrics.OutcomeFailed)
		t.resolve(nil, err)
		return
	}

	if !f.HasThumbnail() {
		d.opts.metrics.Decode("file", metrics.OutcomeCreated)
		t.resolve(f, nil)
		return
	}

	f.State = entity.DownloadThumbnailFetching
	if err := d.store.SaveFileMessage(ctx, f); err != nil {
		d.opts.metrics.Decode("file", metrics.OutcomeFailed)
		t.resolve(nil, fmt.Errorf("%w: save file message: %v", ErrEntityPersistenceFailed, err))
		return
	}

	thumbnail, err := d.fetchThumbnail(ctx, f, opts.Timeout)
	if err != nil {
		// Degrade: the message stays usable without a thumbnail
		d.opts.logger.Warn("thumbnail unavailable", "message", f.MessageID, "blob", f.ThumbnailBlobID, "error", err)
		f.State = entity.DownloadThumbnailFailed
	} else {
		f.Thumbnail = thumbnail
		f.State = entity.DownloadThumbnailReady
	}

	if err := d.store.SaveFileMessage(ctx, f); err != nil {
		d.opts.metrics.Decode("file", metrics.OutcomeFailed)
		t.resolve(nil, fmt.Errorf("%w: save file message: %v", ErrEntityPersistenceFailed, err))
		return
	}

	d.opts.metrics.Decode("file", metrics.OutcomeCreated)
	t.resolve(f, nil)
}

// persist creates the file message in pending state. A reflected message
// may already exist locally and is updated in place instead.
func (d *FileDecoder) persist(ctx context.Context, msg *protocol.FileMessage, conv *entity.Conversation, opts FileDecodeOptions) (*entity.FileMessage, error) {
	f := d.fileFromMessage(msg, conv, opts)

	if opts.Reflected {
		existing, err := d.store.FindFileMessage(ctx, conv.ID, msg.Meta.MessageID)
		switch {
		case err == nil:
			existing.BlobID = f.BlobID
			existing.ThumbnailBlobID = f.ThumbnailBlobID
			existing.Key = f.Key
			existing.MIMEType = f.MIMEType
			existing.ThumbnailMIME = f.ThumbnailMIME
			existing.Size = f.Size
			existing.Filename = f.Filename
			existing.Caption = f.Caption
			existing.CorrelationID = f.CorrelationID
			existing.Rendering = f.Rendering
			existing.Metadata = f.Metadata
			existing.IsOwn = true
			existing.State = entity.DownloadPending
			if err := d.store.SaveFileMessage(ctx, existing); err != nil {
				return nil, fmt.Errorf("%w: save file message: %v", ErrEntityPersistenceFailed, err)
			}
			return existing, nil
		case !errors.Is(err, entity.ErrNotFound):
			return nil, fmt.Errorf("%w: find file message: %v", ErrEntityPersistenceFailed, err)
		}
	}

	if err := d.store.CreateFileMessage(ctx, f); err != nil {
		return nil, fmt.Errorf("%w: create file message: %v", ErrEntityPersistenceFailed, err)
	}
	return f, nil
}

func (d *FileDecoder) fileFromMessage(msg *protocol.FileMessage, conv *entity.Conversation, opts FileDecodeOptions) *entity.FileMessage {
	f := &entity.FileMessage{
		MessageID:       msg.Meta.MessageID,
		ConversationID:  conv.ID,
		BlobID:          msg.BlobID,
		ThumbnailBlobID: msg.ThumbnailBlobID,
		Key:             msg.Key,
		MIMEType:        msg.MIMEType,
		ThumbnailMIME:   msg.ThumbnailMIME,
		Size:            msg.Size,
		Filename:        sanitizeFilename(msg.Filename),
		Caption:         sanitizeCaption(msg.Caption),
		CorrelationID:   msg.CorrelationID,
		Rendering:       msg.Rendering,
		Metadata:        msg.Metadata,
		IsOwn:           opts.Reflected,
		Date:            d.opts.messageTime(msg.Meta),
		State:           entity.DownloadPending,
	}
	if !opts.Reflected {
		f.Sender = msg.Meta.From
		if opts.Sender != nil {
			f.Sender = opts.Sender.Identity
		}
	}
	if f.HasThumbnail() && f.ThumbnailMIME == "" {
		f.ThumbnailMIME = protocol.DefaultThumbnailMIME
	}
	return f
}

type fetchResult struct {
	data []byte
	err  error
}

// fetchThumbnail downloads and decrypts the thumbnail. The fetch runs on
// its own goroutine; a result arriving after the deadline is dropped.
func (d *FileDecoder) fetchThumbnail(ctx context.Context, f *entity.FileMessage, timeout time.Duration) ([]byte, error) {
	if d.fetcher == nil {
		return nil, fmt.Errorf("%w: no blob fetcher configured", ErrThumbnailFetchFailed)
	}

	fetchCtx, cancel := d.opts.clock.WithTimeout(ctx, timeout)
	defer cancel()

	started := d.opts.clock.Now()
	results := make(chan fetchResult, 1)
	go func() {
		data, err := d.fetcher.Fetch(fetchCtx, f.ThumbnailBlobID)
		results <- fetchResult{data: data, err: err}
	}()

	var r fetchResult
	select {
	case r = <-results:
	case <-fetchCtx.Done():
		r.err = fetchCtx.Err()
	}
	if r.err != nil {
		d.opts.metrics.ThumbnailFetch(d.opts.clock.Since(started), false)
		return nil, fmt.Errorf("%w: %v", ErrThumbnailFetchFailed, r.err)
	}

	plaintext, err := crypto.OpenBlob(r.data, f.Key, &crypto.ThumbnailNonce)
	if err != nil {
		d.opts.metrics.ThumbnailFetch(d.opts.clock.Since(started), false)
		return nil, fmt.Errorf("%w: %v", ErrThumbnailFetchFailed, err)
	}

	d.opts.metrics.ThumbnailFetch(d.opts.clock.Since(started), true)
	return plaintext, nil
}
