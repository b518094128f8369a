package codec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/metrics"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// BallotDecoder turns inbound ballot create and vote messages into
// persisted ballots
type BallotDecoder struct {
	store EntityStore
	opts  options
}

// NewBallotDecoder creates a ballot decoder on top of store
func NewBallotDecoder(store EntityStore, opts ...Option) *BallotDecoder {
	return &BallotDecoder{store: store, opts: buildOptions(opts)}
}

// ===== CREATE =====

// DecodeCreate creates the ballot announced by msg, or replaces the
// title, settings and choices of the ballot it already names. sender is
// nil for reflected messages, which must be created by the local identity.
func (d *BallotDecoder) DecodeCreate(ctx context.Context, msg *protocol.BallotCreateMessage, sender *entity.Contact, conv *entity.Conversation) (*entity.Ballot, error) {
	doc, err := protocol.DecodeBallotDocument(msg.Document)
	if err != nil {
		d.opts.metrics.Decode("ballot-create", metrics.OutcomeMalformed)
		return nil, err
	}
	from := d.opts.local
	if sender != nil {
		from = sender.Identity
	}
	if from.IsZero() || from != msg.BallotCreator {
		d.opts.metrics.Decode("ballot-create", metrics.OutcomeMalformed)
		return nil, fmt.Errorf("%w: sender %s is not ballot creator %s", ErrMalformedPayload, from, msg.BallotCreator)
	}
	if err := checkScope(msg.Scope, conv); err != nil {
		d.opts.metrics.Decode("ballot-create", metrics.OutcomeUnknown)
		return nil, err
	}

	key := entity.BallotKey{Creator: msg.BallotCreator, ID: msg.BallotID}
	at := d.opts.messageTime(msg.Meta)
	incoming := ballotFromDocument(key, conv.ID, doc, at)

	_, err = d.store.FindBallot(ctx, key)
	switch {
	case errors.Is(err, entity.ErrNotFound):
		err = d.store.CreateBallot(ctx, incoming)
		if err == nil {
			d.opts.logger.Info("ballot created", "ballot", key, "conversation", conv.ID, "choices", len(incoming.Choices))
			d.opts.metrics.Decode("ballot-create", metrics.OutcomeCreated)
			return incoming, nil
		}
		if !errors.Is(err, entity.ErrAlreadyExists) {
			d.opts.metrics.Decode("ballot-create", metrics.OutcomeFailed)
			return nil, fmt.Errorf("%w: create ballot %s: %v", ErrEntityPersistenceFailed, key, err)
		}
		// Lost a race against a concurrent create; update instead
	case err != nil:
		d.opts.metrics.Decode("ballot-create", metrics.OutcomeFailed)
		return nil, fmt.Errorf("%w: find ballot %s: %v", ErrEntityPersistenceFailed, key, err)
	}

	var updated *entity.Ballot
	_, err = d.store.UpdateBallot(ctx, key, func(b *entity.Ballot) (bool, error) {
		if b.ConversationID != conv.ID {
			return false, ErrUnknownConversation
		}
		applyDocument(b, incoming)
		b.ModifiedAt = at
		updated = b
		return true, nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownConversation) {
			d.opts.metrics.Decode("ballot-create", metrics.OutcomeUnknown)
			return nil, err
		}
		d.opts.metrics.Decode("ballot-create", metrics.OutcomeFailed)
		return nil, fmt.Errorf("%w: update ballot %s: %v", ErrEntityPersistenceFailed, key, err)
	}

	d.opts.logger.Info("ballot updated", "ballot", key, "state", updated.State, "choices", len(updated.Choices))
	d.opts.metrics.Decode("ballot-create", metrics.OutcomeUpdated)
	return updated, nil
}

// DecodeCreateTitle returns the ballot title without touching the store
func (d *BallotDecoder) DecodeCreateTitle(msg *protocol.BallotCreateMessage) (string, error) {
	title, _, err := protocol.PeekBallotDocument(msg.Document)
	return title, err
}

// DecodeCreateNotificationState returns the ballot state code
// (0 open, 1 closed) without touching the store
func (d *BallotDecoder) DecodeCreateNotificationState(msg *protocol.BallotCreateMessage) (int, error) {
	_, state, err := protocol.PeekBallotDocument(msg.Document)
	return int(state), err
}

func ballotFromDocument(key entity.BallotKey, conversationID string, doc *protocol.BallotDocument, at time.Time) *entity.Ballot {
	b := &entity.Ballot{
		Key:            key,
		ConversationID: conversationID,
		Title:          doc.Title,
		State:          entity.BallotState(doc.State),
		Assessment:     entity.Assessment(doc.Assessment),
		DisplayMode:    entity.DisplayMode(doc.DisplayMode),
		Visibility:     entity.ResultVisibility(doc.Visibility),
		CreatedAt:      at,
		ModifiedAt:     at,
	}

	for _, p := range doc.Participants {
		// Validated by DecodeBallotDocument
		id, _ := protocol.ParseIdentity(p)
		b.Participants = append(b.Participants, id)
	}

	for _, c := range doc.Choices {
		b.Choices = append(b.Choices, entity.Choice{ID: c.ID, Order: c.Order, Label: c.Label})
		for i, v := range c.Results {
			b.Votes = append(b.Votes, entity.Vote{
				ChoiceID:    c.ID,
				Participant: b.Participants[i],
				Value:       v == 1,
				At:          at,
			})
		}
	}

	return b
}

// applyDocument replaces the structure of an existing ballot with the
// incoming one. Votes on removed choices are dropped. Published results
// replace the collected votes.
func applyDocument(b, incoming *entity.Ballot) {
	b.Title = incoming.Title
	b.State = incoming.State
	b.Assessment = incoming.Assessment
	b.DisplayMode = incoming.DisplayMode
	b.Visibility = incoming.Visibility
	b.Participants = incoming.Participants
	b.ReplaceChoices(incoming.Choices)

	if len(incoming.Votes) > 0 {
		b.Votes = append(b.Votes[:0], incoming.Votes...)
	}
}

// ===== VOTE =====

// DecodeVote applies a vote message, delivered through conv, to its
// ballot. Votes are stamped with the time of receipt so the latest
// received vote wins. It reports whether at least one vote entry changed
// the ballot. An unknown ballot yields false with ErrUnknownBallot; the
// caller may ignore it.
func (d *BallotDecoder) DecodeVote(ctx context.Context, msg *protocol.BallotVoteMessage, conv *entity.Conversation) (bool, error) {
	if !msg.Meta.From.IsZero() && msg.Meta.From != msg.Voter {
		d.opts.metrics.Decode("ballot-vote", metrics.OutcomeMalformed)
		return false, fmt.Errorf("%w: sender %s voted as %s", ErrMalformedPayload, msg.Meta.From, msg.Voter)
	}
	if err := checkScope(msg.Scope, conv); err != nil {
		d.opts.metrics.Decode("ballot-vote", metrics.OutcomeUnknown)
		return false, err
	}

	key := entity.BallotKey{Creator: msg.BallotCreator, ID: msg.BallotID}
	at := d.opts.clock.Now()

	applied, err := d.store.UpdateBallot(ctx, key, func(b *entity.Ballot) (bool, error) {
		if err := checkVoter(b, conv, msg.Voter); err != nil {
			return false, err
		}
		if b.IsClosed() {
			d.opts.logger.Debug("vote on closed ballot ignored", "ballot", key, "voter", msg.Voter)
			return false, nil
		}
		return applyVotes(b, msg.Voter, msg.Votes, at)
	})

	switch {
	case errors.Is(err, entity.ErrNotFound):
		d.opts.logger.Warn("vote for unknown ballot", "ballot", key, "voter", msg.Voter)
		d.opts.metrics.Decode("ballot-vote", metrics.OutcomeUnknown)
		return false, ErrUnknownBallot
	case errors.Is(err, ErrMalformedPayload):
		d.opts.metrics.Decode("ballot-vote", metrics.OutcomeMalformed)
		return false, err
	case errors.Is(err, ErrUnknownConversation):
		d.opts.logger.Warn("vote outside its ballot's conversation", "ballot", key, "voter", msg.Voter, "conversation", conv.ID)
		d.opts.metrics.Decode("ballot-vote", metrics.OutcomeUnknown)
		return false, err
	case err != nil:
		d.opts.metrics.Decode("ballot-vote", metrics.OutcomeFailed)
		return false, fmt.Errorf("%w: update ballot %s: %v", ErrEntityPersistenceFailed, key, err)
	}

	if applied {
		d.opts.metrics.Decode("ballot-vote", metrics.OutcomeApplied)
	} else {
		d.opts.metrics.Decode("ballot-vote", metrics.OutcomeIgnored)
	}
	return applied, nil
}

// checkVoter makes sure a vote arrives through the conversation its
// ballot lives in. Group ballots that list participants only accept
// votes from them.
func checkVoter(b *entity.Ballot, conv *entity.Conversation, voter protocol.Identity) error {
	if b.ConversationID != conv.ID {
		return fmt.Errorf("%w: ballot lives in %s, vote came through %s", ErrUnknownConversation, b.ConversationID, conv.ID)
	}
	if !conv.IsGroup() || len(b.Participants) == 0 {
		return nil
	}
	for _, p := range b.Participants {
		if p == voter {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not a participant", ErrUnknownConversation, voter)
}

// applyVotes upserts the voter's entries. Entries naming unknown choices
// are skipped. On a single-choice ballot a yes clears the voter's other
// yes votes, and more than one yes is malformed.
func applyVotes(b *entity.Ballot, voter protocol.Identity, votes []protocol.VoteEntry, at time.Time) (bool, error) {
	var yesChoice uint32
	yesChoices := make(map[uint32]struct{})
	for _, v := range votes {
		if _, ok := b.Choice(v.ChoiceID); ok && v.Value {
			yesChoice = v.ChoiceID
			yesChoices[v.ChoiceID] = struct{}{}
		}
	}
	yesCount := len(yesChoices)
	if b.Assessment == entity.AssessmentSingle && yesCount > 1 {
		return false, fmt.Errorf("%w: %d yes votes on single-choice ballot", ErrMalformedPayload, yesCount)
	}

	applied := false
	for _, v := range votes {
		if _, ok := b.Choice(v.ChoiceID); !ok {
			continue
		}
		if b.SetVote(entity.Vote{ChoiceID: v.ChoiceID, Participant: voter, Value: v.Value, At: at}) {
			applied = true
		}
	}

	if b.Assessment == entity.AssessmentSingle && yesCount == 1 && applied {
		for _, v := range b.VotesBy(voter) {
			if v.ChoiceID != yesChoice && v.Value {
				b.SetVote(entity.Vote{ChoiceID: v.ChoiceID, Participant: voter, Value: false, At: at})
			}
		}
	}

	return applied, nil
}
