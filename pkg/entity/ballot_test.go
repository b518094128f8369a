package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

var (
	alice = protocol.MustParseIdentity("ALICE001")
	bob   = protocol.MustParseIdentity("BOBBOB02")
)

func TestSetVoteLatestWins(t *testing.T) {
	b := &Ballot{Choices: []Choice{{ID: 1}, {ID: 2}}}
	t0 := time.UnixMilli(1000)

	assert.True(t, b.SetVote(Vote{ChoiceID: 1, Participant: alice, Value: true, At: t0}))
	assert.True(t, b.SetVote(Vote{ChoiceID: 1, Participant: alice, Value: false, At: t0.Add(time.Second)}))
	assert.False(t, b.SetVote(Vote{ChoiceID: 1, Participant: alice, Value: true, At: t0}), "older vote must not win")
	assert.False(t, b.SetVote(Vote{ChoiceID: 1, Participant: alice, Value: false, At: t0.Add(time.Second)}), "redelivery")
	assert.False(t, b.SetVote(Vote{ChoiceID: 1, Participant: alice, Value: false, At: t0.Add(time.Minute)}), "same value received later")
	assert.Equal(t, t0.Add(time.Minute), b.Votes[0].At)

	require.Len(t, b.Votes, 1)
	assert.False(t, b.Votes[0].Value)

	assert.True(t, b.SetVote(Vote{ChoiceID: 1, Participant: bob, Value: true, At: t0}))
	assert.Len(t, b.Votes, 2)
	assert.Len(t, b.VotesBy(alice), 1)
}

func TestSortedChoices(t *testing.T) {
	b := &Ballot{Choices: []Choice{{ID: 3, Order: 2}, {ID: 1, Order: 0}, {ID: 2, Order: 1}}}

	got := b.SortedChoices()
	assert.Equal(t, []uint32{1, 2, 3}, []uint32{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, uint32(3), b.Choices[0].ID, "SortedChoices must not reorder the ballot")
}

func TestReplaceChoicesDropsOrphanVotes(t *testing.T) {
	b := &Ballot{
		Choices: []Choice{{ID: 1}, {ID: 2}},
		Votes: []Vote{
			{ChoiceID: 1, Participant: alice, Value: true},
			{ChoiceID: 2, Participant: bob, Value: true},
		},
	}

	b.ReplaceChoices([]Choice{{ID: 2, Label: "kept"}, {ID: 3, Label: "new"}})

	require.Len(t, b.Votes, 1)
	assert.Equal(t, uint32(2), b.Votes[0].ChoiceID)
	_, ok := b.Choice(1)
	assert.False(t, ok)
}

func TestParticipantsWithVotes(t *testing.T) {
	carol := protocol.MustParseIdentity("CAROL003")
	b := &Ballot{
		Participants: []protocol.Identity{alice, bob},
		Votes:        []Vote{{ChoiceID: 1, Participant: carol}, {ChoiceID: 1, Participant: alice}},
	}

	assert.Equal(t, []protocol.Identity{alice, bob, carol}, b.ParticipantsWithVotes())
}

func TestCloneIsDeep(t *testing.T) {
	b := &Ballot{Choices: []Choice{{ID: 1, Label: "a"}}, Votes: []Vote{{ChoiceID: 1}}}
	c := b.Clone()

	c.Choices[0].Label = "changed"
	c.Votes[0].Value = true

	assert.Equal(t, "a", b.Choices[0].Label)
	assert.False(t, b.Votes[0].Value)
}

func TestConversationIDs(t *testing.T) {
	route := protocol.GroupRoute{Creator: alice, ID: protocol.GroupID{0xAB, 0, 0, 0, 0, 0, 0, 1}}

	assert.Equal(t, "d-BOBBOB02", NewDirectConversation(bob).ID)

	g := NewGroupConversation(route)
	assert.Equal(t, "g-ALICE001-ab00000000000001", g.ID)
	assert.True(t, g.IsGroup())
	assert.False(t, NewDirectConversation(bob).IsGroup())
}

func TestDownloadStateString(t *testing.T) {
	assert.Equal(t, "thumbnail-failed", DownloadThumbnailFailed.String())
	assert.Equal(t, "unknown", DownloadState(42).String())
}
