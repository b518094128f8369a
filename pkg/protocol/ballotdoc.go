package protocol

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Ballot document enum values as they appear on the wire
const (
	BallotStateOpen   uint8 = 0
	BallotStateClosed uint8 = 1

	BallotAssessmentSingle   uint8 = 0
	BallotAssessmentMultiple uint8 = 1

	BallotVisibilityIntermediate uint8 = 0 // Results visible while open
	BallotVisibilityClosed       uint8 = 1 // Results published on close

	BallotDisplayList    uint8 = 0
	BallotDisplaySummary uint8 = 1

	BallotChoiceTypeText uint8 = 0
)

// BallotDocument is the structured body of a ballot create message
type BallotDocument struct {
	Title        string         `cbor:"d"`
	State        uint8          `cbor:"s"`
	Assessment   uint8          `cbor:"a"`
	Visibility   uint8          `cbor:"t"`
	ChoiceType   uint8          `cbor:"o"`
	DisplayMode  uint8          `cbor:"u"`
	Choices      []BallotChoice `cbor:"c"`
	Participants []string       `cbor:"p,omitempty"`
}

// BallotChoice is one choice tuple. Results, when present, holds one
// 0/1 value per entry of BallotDocument.Participants.
type BallotChoice struct {
	_       struct{} `cbor:",toarray"`
	ID      uint32
	Order   uint32
	Label   string
	Results []uint8
}

var (
	docEncMode cbor.EncMode
	docDecMode cbor.DecMode
)

func init() {
	var err error

	// Core deterministic encoding: identical documents yield identical bytes
	docEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}

	docDecMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		UTF8:             cbor.UTF8RejectInvalid,
		MaxNestedLevels:  8,
		MaxArrayElements: MaxParticipants * 4,
		MaxMapPairs:      64,
		IndefLength:      cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeBallotDocument serializes a ballot document
func EncodeBallotDocument(doc *BallotDocument) ([]byte, error) {
	return docEncMode.Marshal(doc)
}

// DecodeBallotDocument parses and validates a ballot document
func DecodeBallotDocument(data []byte) (*BallotDocument, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty ballot document", ErrMalformedPayload)
	}

	var doc BallotDocument
	if err := docDecMode.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: ballot document: %v", ErrMalformedPayload, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the structural invariants of a ballot document
func (d *BallotDocument) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: ballot title is empty", ErrMalformedPayload)
	}
	if len(d.Title) > MaxTitleLength {
		return fmt.Errorf("%w: ballot title exceeds %d bytes", ErrMalformedPayload, MaxTitleLength)
	}
	if d.State > BallotStateClosed || d.Assessment > BallotAssessmentMultiple ||
		d.Visibility > BallotVisibilityClosed || d.DisplayMode > BallotDisplaySummary ||
		d.ChoiceType != BallotChoiceTypeText {
		return fmt.Errorf("%w: ballot flags out of range", ErrMalformedPayload)
	}
	if len(d.Choices) == 0 {
		return fmt.Errorf("%w: ballot has no choices", ErrMalformedPayload)
	}
	if len(d.Choices) > MaxChoices {
		return fmt.Errorf("%w: ballot has %d choices (max %d)", ErrMalformedPayload, len(d.Choices), MaxChoices)
	}
	if len(d.Participants) > MaxParticipants {
		return fmt.Errorf("%w: ballot has %d participants (max %d)", ErrMalformedPayload, len(d.Participants), MaxParticipants)
	}
	for _, p := range d.Participants {
		if _, err := ParseIdentity(p); err != nil {
			return err
		}
	}

	seen := make(map[uint32]bool, len(d.Choices))
	for _, c := range d.Choices {
		if seen[c.ID] {
			return fmt.Errorf("%w: duplicate choice id %d", ErrMalformedPayload, c.ID)
		}
		seen[c.ID] = true

		if len(c.Label) > MaxLabelLength {
			return fmt.Errorf("%w: choice %d label exceeds %d bytes", ErrMalformedPayload, c.ID, MaxLabelLength)
		}
		if len(c.Results) != 0 && len(c.Results) != len(d.Participants) {
			return fmt.Errorf("%w: choice %d has %d results for %d participants",
				ErrMalformedPayload, c.ID, len(c.Results), len(d.Participants))
		}
		for _, v := range c.Results {
			if v > 1 {
				return fmt.Errorf("%w: choice %d result %d is not boolean", ErrMalformedPayload, c.ID, v)
			}
		}
	}

	return nil
}

// PeekBallotDocument decodes only what notification previews need. It
// runs the same validation as DecodeBallotDocument so a preview never
// shows a ballot the full decode would reject.
func PeekBallotDocument(data []byte) (title string, state uint8, err error) {
	doc, err := DecodeBallotDocument(data)
	if err != nil {
		return "", 0, err
	}
	return doc.Title, doc.State, nil
}
