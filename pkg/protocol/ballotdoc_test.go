package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestBallotDocumentRoundTrip(t *testing.T) {
	closed := testDocument()
	closed.State = BallotStateClosed
	closed.Visibility = BallotVisibilityClosed
	closed.Participants = []string{"ALICE001", "BOBBOB02"}
	closed.Choices[0].Results = []uint8{1, 0}
	closed.Choices[1].Results = []uint8{0, 1}

	tests := []struct {
		name string
		doc  *BallotDocument
	}{
		{"open", testDocument()},
		{"closed with results", closed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeBallotDocument(tt.doc)
			if err != nil {
				t.Fatalf("EncodeBallotDocument() error = %v", err)
			}

			decoded, err := DecodeBallotDocument(data)
			if err != nil {
				t.Fatalf("DecodeBallotDocument() error = %v", err)
			}
			if !reflect.DeepEqual(decoded, tt.doc) {
				t.Errorf("DecodeBallotDocument() = %+v, want %+v", decoded, tt.doc)
			}
		})
	}
}

func TestBallotDocumentDeterministic(t *testing.T) {
	a, _ := EncodeBallotDocument(testDocument())
	b, _ := EncodeBallotDocument(testDocument())

	if !bytes.Equal(a, b) {
		t.Error("identical documents encoded differently")
	}
}

func TestDecodeBallotDocumentInvalid(t *testing.T) {
	valid, _ := EncodeBallotDocument(testDocument())

	mutate := func(f func(d *BallotDocument)) []byte {
		d := testDocument()
		f(d)
		// Bypass Validate by marshalling directly
		data, err := cbor.Marshal(d)
		if err != nil {
			t.Fatalf("cbor.Marshal() error = %v", err)
		}
		return data
	}

	// A choice tuple with a missing element
	shortChoice, _ := cbor.Marshal(map[string]any{
		"d": "Lunch?",
		"c": []any{[]any{uint32(1), uint32(0)}},
	})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", valid[:len(valid)-2]},
		{"trailing data", append(append([]byte(nil), valid...), 0x00)},
		{"blank title", mutate(func(d *BallotDocument) { d.Title = "   " })},
		{"title too long", mutate(func(d *BallotDocument) { d.Title = strings.Repeat("x", MaxTitleLength+1) })},
		{"no choices", mutate(func(d *BallotDocument) { d.Choices = nil })},
		{"duplicate choice ids", mutate(func(d *BallotDocument) { d.Choices[1].ID = d.Choices[0].ID })},
		{"label too long", mutate(func(d *BallotDocument) { d.Choices[0].Label = strings.Repeat("y", MaxLabelLength+1) })},
		{"state out of range", mutate(func(d *BallotDocument) { d.State = 7 })},
		{"results without participants", mutate(func(d *BallotDocument) { d.Choices[0].Results = []uint8{1} })},
		{"non-boolean result", mutate(func(d *BallotDocument) {
			d.Participants = []string{"ALICE001"}
			d.Choices[0].Results = []uint8{3}
		})},
		{"invalid participant", mutate(func(d *BallotDocument) { d.Participants = []string{"nope"} })},
		{"wrong choice field count", shortChoice},
		{"invalid utf-8", mutate(func(d *BallotDocument) { d.Title = "\xff\xfe" })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeBallotDocument(tt.data); !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("DecodeBallotDocument() error = %v, want %v", err, ErrMalformedPayload)
			}
		})
	}
}

func TestPeekBallotDocumentAgreesWithDecode(t *testing.T) {
	doc := testDocument()
	doc.State = BallotStateClosed
	data, _ := EncodeBallotDocument(doc)

	title, state, err := PeekBallotDocument(data)
	if err != nil {
		t.Fatalf("PeekBallotDocument() error = %v", err)
	}
	full, _ := DecodeBallotDocument(data)
	if title != full.Title || state != full.State {
		t.Errorf("PeekBallotDocument() = (%q, %d), want (%q, %d)", title, state, full.Title, full.State)
	}

	if _, _, err := PeekBallotDocument(data[:3]); err == nil {
		t.Error("PeekBallotDocument() accepted a document Decode rejects")
	}
}
