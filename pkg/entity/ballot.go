// Package entity defines the persisted domain objects the box codecs
// produce and consume.
package entity

import (
	"sort"
	"time"

	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// BallotState is open or closed
type BallotState uint8

const (
	BallotOpen   BallotState = BallotState(protocol.BallotStateOpen)
	BallotClosed BallotState = BallotState(protocol.BallotStateClosed)
)

func (s BallotState) String() string {
	if s == BallotClosed {
		return "closed"
	}
	return "open"
}

// Assessment decides how many choices a participant may vote yes on
type Assessment uint8

const (
	AssessmentSingle   Assessment = Assessment(protocol.BallotAssessmentSingle)
	AssessmentMultiple Assessment = Assessment(protocol.BallotAssessmentMultiple)
)

// DisplayMode is how the ballot is presented
type DisplayMode uint8

const (
	DisplayList    DisplayMode = DisplayMode(protocol.BallotDisplayList)
	DisplaySummary DisplayMode = DisplayMode(protocol.BallotDisplaySummary)
)

// ResultVisibility controls when participants see each other's votes
type ResultVisibility uint8

const (
	ResultsIntermediate ResultVisibility = ResultVisibility(protocol.BallotVisibilityIntermediate)
	ResultsOnClose      ResultVisibility = ResultVisibility(protocol.BallotVisibilityClosed)
)

// BallotKey identifies a ballot. Ballot ids are only unique per creator.
type BallotKey struct {
	Creator protocol.Identity
	ID      protocol.BallotID
}

func (k BallotKey) String() string {
	return k.Creator.String() + "/" + k.ID.String()
}

// Ballot is a poll attached to a conversation
type Ballot struct {
	Key            BallotKey
	ConversationID string
	Title          string
	State          BallotState
	Assessment     Assessment
	DisplayMode    DisplayMode
	Visibility     ResultVisibility
	Choices        []Choice
	Participants   []protocol.Identity
	Votes          []Vote
	CreatedAt      time.Time
	ModifiedAt     time.Time
}

// Choice is one selectable option of a ballot
type Choice struct {
	ID    uint32
	Order uint32
	Label string
}

// Vote is one participant's answer to one choice
type Vote struct {
	ChoiceID    uint32
	Participant protocol.Identity
	Value       bool
	At          time.Time
}

// IsClosed reports whether the ballot no longer accepts votes
func (b *Ballot) IsClosed() bool {
	return b.State == BallotClosed
}

// Choice returns the choice with the given id
func (b *Ballot) Choice(id uint32) (Choice, bool) {
	for _, c := range b.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// SortedChoices returns the choices in ordinal order
func (b *Ballot) SortedChoices() []Choice {
	out := append([]Choice(nil), b.Choices...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// VotesBy returns the votes of one participant
func (b *Ballot) VotesBy(participant protocol.Identity) []Vote {
	var out []Vote
	for _, v := range b.Votes {
		if v.Participant == participant {
			out = append(out, v)
		}
	}
	return out
}

// SetVote upserts the vote for (choice, participant). An existing vote
// recorded later than v wins. SetVote reports false when nothing changed,
// which includes a vote repeating the current value.
func (b *Ballot) SetVote(v Vote) bool {
	for i := range b.Votes {
		cur := &b.Votes[i]
		if cur.ChoiceID != v.ChoiceID || cur.Participant != v.Participant {
			continue
		}
		if v.At.Before(cur.At) {
			return false
		}
		changed := cur.Value != v.Value
		cur.Value = v.Value
		cur.At = v.At
		return changed
	}
	b.Votes = append(b.Votes, v)
	return true
}

// ReplaceChoices swaps in a new choice list and drops votes on choices
// that no longer exist
func (b *Ballot) ReplaceChoices(choices []Choice) {
	b.Choices = append([]Choice(nil), choices...)

	kept := b.Votes[:0]
	for _, v := range b.Votes {
		if _, ok := b.Choice(v.ChoiceID); ok {
			kept = append(kept, v)
		}
	}
	b.Votes = kept
}

// ParticipantsWithVotes returns the announced participants followed by
// any other identity that voted, in first-seen order
func (b *Ballot) ParticipantsWithVotes() []protocol.Identity {
	seen := make(map[protocol.Identity]bool, len(b.Participants))
	out := make([]protocol.Identity, 0, len(b.Participants))
	for _, p := range b.Participants {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, v := range b.Votes {
		if !seen[v.Participant] {
			seen[v.Participant] = true
			out = append(out, v.Participant)
		}
	}
	return out
}

// Clone returns a deep copy
func (b *Ballot) Clone() *Ballot {
	out := *b
	out.Choices = append([]Choice(nil), b.Choices...)
	out.Participants = append([]protocol.Identity(nil), b.Participants...)
	out.Votes = append([]Vote(nil), b.Votes...)
	return &out
}
