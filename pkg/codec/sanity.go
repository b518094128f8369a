package codec

import (
	"strings"

	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// PassesSanityCheck reports whether a ballot may be encoded and sent.
// It is the mandatory gate in front of every outbound ballot message.
func PassesSanityCheck(b *entity.Ballot) bool {
	if b == nil {
		return false
	}
	if strings.TrimSpace(b.Title) == "" || len(b.Title) > protocol.MaxTitleLength {
		return false
	}
	if len(b.Choices) == 0 || len(b.Choices) > protocol.MaxChoices {
		return false
	}
	if b.Key.Creator.IsZero() || !b.Key.Creator.Valid() {
		return false
	}

	choices := make(map[uint32]bool, len(b.Choices))
	for _, c := range b.Choices {
		if choices[c.ID] || len(c.Label) > protocol.MaxLabelLength {
			return false
		}
		choices[c.ID] = true
	}

	yes := make(map[protocol.Identity]int)
	for _, v := range b.Votes {
		if !choices[v.ChoiceID] {
			return false
		}
		if v.Value {
			yes[v.Participant]++
		}
	}

	if b.Assessment == entity.AssessmentSingle {
		for _, n := range yes {
			if n > 1 {
				return false
			}
		}
	}

	return len(b.ParticipantsWithVotes()) <= protocol.MaxParticipants
}
