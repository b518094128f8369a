// Package inbox ties the box wire format to the codecs: it parses raw
// boxes, resolves sender and conversation, and dispatches to the ballot
// and file decoders. Outbox does the reverse for locally authored ballots.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZentaChain/zentalk-client/pkg/codec"
	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/logger"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

var (
	ErrWrongRecipient = errors.New("box is not addressed to the local identity")
	ErrUnknownContact = errors.New("unknown contact")
)

// Directory resolves contacts and conversations
type Directory interface {
	FindContact(ctx context.Context, identity protocol.Identity) (*entity.Contact, error)
	FindDirectConversation(ctx context.Context, contact protocol.Identity) (*entity.Conversation, error)
	FindGroupConversation(ctx context.Context, route protocol.GroupRoute) (*entity.Conversation, error)
}

// Kind names the payload kind of a box
type Kind string

const (
	KindBallotCreate Kind = "ballot-create"
	KindBallotVote   Kind = "ballot-vote"
	KindFile         Kind = "file"
)

// Outcome describes what a received box did
type Outcome struct {
	Kind         Kind
	MessageID    protocol.MessageID
	Reflected    bool
	Conversation *entity.Conversation

	// Dropped is set when the sender is blocked; nothing was decoded
	Dropped bool

	Ballot      *entity.Ballot // Ballot create
	VoteApplied bool           // Ballot vote
	File        *codec.Task    // File, resolves when the thumbnail step is done
}

// Config configures a Receiver
type Config struct {
	Local            protocol.Identity
	ThumbnailTimeout time.Duration
	Logger           *slog.Logger
}

// Receiver decodes inbound boxes for one local identity
type Receiver struct {
	cfg     Config
	dir     Directory
	ballots *codec.BallotDecoder
	files   *codec.FileDecoder
	log     *slog.Logger
}

// NewReceiver creates a receiver. opts are passed to the codecs.
func NewReceiver(cfg Config, dir Directory, store codec.EntityStore, fetcher codec.BlobFetcher, opts ...codec.Option) *Receiver {
	log := logger.OrDefault(cfg.Logger)
	opts = append([]codec.Option{codec.WithLogger(log), codec.WithLocalIdentity(cfg.Local)}, opts...)

	return &Receiver{
		cfg:     cfg,
		dir:     dir,
		ballots: codec.NewBallotDecoder(store, opts...),
		files:   codec.NewFileDecoder(store, fetcher, opts...),
		log:     log,
	}
}

// Receive decodes one raw box. File outcomes carry a task that resolves
// after the thumbnail step; everything else is complete on return.
func (r *Receiver) Receive(ctx context.Context, raw []byte) (*Outcome, error) {
	msg, err := protocol.ParseMessage(raw)
	if err != nil {
		return nil, err
	}
	h := msg.Header

	reflected := h.From == r.cfg.Local
	if !reflected && h.To != r.cfg.Local {
		return nil, fmt.Errorf("%w: to %s", ErrWrongRecipient, h.To)
	}

	payload, err := protocol.Unpack(msg)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Kind: kindOf(payload), MessageID: h.MessageID, Reflected: reflected}

	var sender *entity.Contact
	if !reflected {
		sender, err = r.dir.FindContact(ctx, h.From)
		if errors.Is(err, entity.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownContact, h.From)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: find contact: %v", codec.ErrEntityPersistenceFailed, err)
		}
		if sender.Blocked {
			r.log.Info("dropping box from blocked contact", "from", h.From, "message", h.MessageID)
			out.Dropped = true
			return out, nil
		}
	}

	peer := h.From
	if reflected {
		peer = h.To
	}
	conv, err := r.conversation(ctx, scopeOf(payload), peer)
	if err != nil {
		return nil, err
	}
	out.Conversation = conv

	switch p := payload.(type) {
	case *protocol.BallotCreateMessage:
		out.Ballot, err = r.ballots.DecodeCreate(ctx, p, sender, conv)
	case *protocol.BallotVoteMessage:
		out.VoteApplied, err = r.ballots.DecodeVote(ctx, p, conv)
	case *protocol.FileMessage:
		out.File = r.files.Decode(ctx, p, conv, codec.FileDecodeOptions{
			Timeout:   r.cfg.ThumbnailTimeout,
			Sender:    sender,
			Reflected: reflected,
		})
	}
	if err != nil {
		return nil, err
	}

	r.log.Debug("box received", "kind", out.Kind, "message", h.MessageID, "conversation", conv.ID, "reflected", reflected)
	return out, nil
}

// conversation resolves the conversation a payload belongs to
func (r *Receiver) conversation(ctx context.Context, scope protocol.Scope, peer protocol.Identity) (*entity.Conversation, error) {
	var conv *entity.Conversation
	var err error
	if scope.IsGroup() {
		conv, err = r.dir.FindGroupConversation(ctx, scope.Group)
	} else {
		conv, err = r.dir.FindDirectConversation(ctx, peer)
	}

	if errors.Is(err, entity.ErrNotFound) {
		return nil, codec.ErrUnknownConversation
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find conversation: %v", codec.ErrEntityPersistenceFailed, err)
	}
	return conv, nil
}

func kindOf(p protocol.Payload) Kind {
	switch p.(type) {
	case *protocol.BallotCreateMessage:
		return KindBallotCreate
	case *protocol.BallotVoteMessage:
		return KindBallotVote
	default:
		return KindFile
	}
}

func scopeOf(p protocol.Payload) protocol.Scope {
	switch p := p.(type) {
	case *protocol.BallotCreateMessage:
		return p.Scope
	case *protocol.BallotVoteMessage:
		return p.Scope
	case *protocol.FileMessage:
		return p.Scope
	}
	return protocol.Direct()
}
