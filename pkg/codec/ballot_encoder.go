package codec

import (
	"fmt"

	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// BallotEncoder builds outbound ballot messages for the local user
type BallotEncoder struct {
	local protocol.Identity
}

// NewBallotEncoder creates an encoder voting as local
func NewBallotEncoder(local protocol.Identity) *BallotEncoder {
	return &BallotEncoder{local: local}
}

// EncodeCreate builds the direct create message for b. Closed ballots
// publish each participant's results.
func (e *BallotEncoder) EncodeCreate(b *entity.Ballot) (*protocol.BallotCreateMessage, error) {
	if !PassesSanityCheck(b) {
		return nil, ErrSanityCheckFailed
	}

	doc := &protocol.BallotDocument{
		Title:       b.Title,
		State:       uint8(b.State),
		Assessment:  uint8(b.Assessment),
		Visibility:  uint8(b.Visibility),
		ChoiceType:  protocol.BallotChoiceTypeText,
		DisplayMode: uint8(b.DisplayMode),
	}

	participants := b.ParticipantsWithVotes()
	for _, p := range participants {
		doc.Participants = append(doc.Participants, p.String())
	}

	for _, c := range b.SortedChoices() {
		choice := protocol.BallotChoice{ID: c.ID, Order: c.Order, Label: c.Label}
		if b.IsClosed() && len(participants) > 0 {
			choice.Results = resultsFor(b, c.ID, participants)
		}
		doc.Choices = append(doc.Choices, choice)
	}

	data, err := protocol.EncodeBallotDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("encode ballot document: %w", err)
	}

	return &protocol.BallotCreateMessage{
		Scope:         protocol.Direct(),
		BallotCreator: b.Key.Creator,
		BallotID:      b.Key.ID,
		Document:      data,
	}, nil
}

// EncodeVote builds the direct vote message carrying the local user's
// answer to every choice, in ordinal order
func (e *BallotEncoder) EncodeVote(b *entity.Ballot) (*protocol.BallotVoteMessage, error) {
	if !PassesSanityCheck(b) {
		return nil, ErrSanityCheckFailed
	}

	mine := make(map[uint32]bool)
	for _, v := range b.VotesBy(e.local) {
		mine[v.ChoiceID] = v.Value
	}

	msg := &protocol.BallotVoteMessage{
		Scope:         protocol.Direct(),
		BallotCreator: b.Key.Creator,
		BallotID:      b.Key.ID,
		Voter:         e.local,
	}
	for _, c := range b.SortedChoices() {
		msg.Votes = append(msg.Votes, protocol.VoteEntry{ChoiceID: c.ID, Value: mine[c.ID]})
	}

	return msg, nil
}

// GroupBallotCreateMessageFrom rewraps a create message for a group
// conversation. The bytes after the group route are unchanged.
func GroupBallotCreateMessageFrom(msg *protocol.BallotCreateMessage, conv *entity.Conversation) (*protocol.BallotCreateMessage, error) {
	if conv == nil || !conv.IsGroup() {
		return nil, ErrUnknownConversation
	}
	return msg.InGroup(*conv.Group), nil
}

// GroupBallotVoteMessageFrom rewraps a vote message for a group
// conversation
func GroupBallotVoteMessageFrom(msg *protocol.BallotVoteMessage, conv *entity.Conversation) (*protocol.BallotVoteMessage, error) {
	if conv == nil || !conv.IsGroup() {
		return nil, ErrUnknownConversation
	}
	return msg.InGroup(*conv.Group), nil
}

func resultsFor(b *entity.Ballot, choiceID uint32, participants []protocol.Identity) []uint8 {
	yes := make(map[protocol.Identity]bool)
	for _, v := range b.Votes {
		if v.ChoiceID == choiceID && v.Value {
			yes[v.Participant] = true
		}
	}

	out := make([]uint8, len(participants))
	for i, p := range participants {
		if yes[p] {
			out[i] = 1
		}
	}
	return out
}
