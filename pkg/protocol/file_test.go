package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func testFile() *FileMessage {
	return &FileMessage{
		Scope:           Direct(),
		BlobID:          BlobID{0xB1, 0x0B},
		ThumbnailBlobID: BlobID{0x7B},
		Key:             BlobKey{0x42},
		Size:            123456,
		Rendering:       RenderingMedia,
		MIMEType:        "image/png",
		ThumbnailMIME:   "image/jpeg",
		Filename:        "holiday.png",
		Caption:         "Look at this",
		CorrelationID:   "batch-1",
		Metadata:        FileMetadata{Width: 640, Height: 480},
	}
}

func TestFileMessageEncodeDecode(t *testing.T) {
	minimal := &FileMessage{
		Scope:    Direct(),
		BlobID:   BlobID{1},
		Key:      BlobKey{2},
		Size:     1,
		MIMEType: "application/octet-stream",
	}

	tests := []struct {
		name string
		msg  *FileMessage
	}{
		{"full", testFile()},
		{"group", testFile().InGroup(testRoute)},
		{"minimal", minimal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := &FileMessage{}
			if err := decoded.Decode(tt.msg.Scope.Kind, tt.msg.Encode()); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(decoded, tt.msg) {
				t.Errorf("Decode() = %+v, want %+v", decoded, tt.msg)
			}
			if err := decoded.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestFileMessageGroupSymmetry(t *testing.T) {
	direct := testFile()
	group := direct.InGroup(testRoute)

	if group.Type() != MsgTypeGroupFile {
		t.Errorf("Type() = %x, want %x", group.Type(), MsgTypeGroupFile)
	}
	if !bytes.Equal(SharedFields(group.Scope, group.Encode()), direct.Encode()) {
		t.Error("group payload minus route differs from direct payload")
	}
}

func TestFileMessageDecodeMalformed(t *testing.T) {
	valid := testFile().Encode()
	flagsAt := BlobIDLength*2 + BlobKeyLength + 8 + 1

	unknownFlag := append([]byte(nil), valid...)
	unknownFlag[flagsAt] |= 0x80

	badUTF8 := (&FileMessage{Scope: Direct(), MIMEType: "\xff/x"}).Encode()

	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"truncated", valid[:len(valid)-1]},
		{"trailing", append(append([]byte(nil), valid...), 0)},
		{"unknown presence flag", unknownFlag},
		{"invalid utf-8", badUTF8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &FileMessage{}
			if err := m.Decode(ScopeDirect, tt.buf); !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Decode() error = %v, want %v", err, ErrMalformedPayload)
			}
		})
	}
}

func TestFileMessageValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *FileMessage)
		valid  bool
	}{
		{"valid", func(m *FileMessage) {}, true},
		{"no thumbnail mime", func(m *FileMessage) { m.ThumbnailMIME = "" }, true},
		{"zero size", func(m *FileMessage) { m.Size = 0 }, false},
		{"negative size", func(m *FileMessage) { m.Size = -1 }, false},
		{"oversized", func(m *FileMessage) { m.Size = MaxFileSize + 1 }, false},
		{"missing blob id", func(m *FileMessage) { m.BlobID = BlobID{} }, false},
		{"missing key", func(m *FileMessage) { m.Key = BlobKey{} }, false},
		{"empty mime", func(m *FileMessage) { m.MIMEType = "" }, false},
		{"mime without subtype", func(m *FileMessage) { m.MIMEType = "image/" }, false},
		{"mime with space", func(m *FileMessage) { m.MIMEType = "image/ png" }, false},
		{"unknown rendering", func(m *FileMessage) { m.Rendering = 9 }, false},
		{"caption too long", func(m *FileMessage) { m.Caption = strings.Repeat("c", MaxCaptionLength+1) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testFile()
			tt.mutate(m)
			err := m.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
			if !tt.valid && !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Validate() error = %v, want %v", err, ErrMalformedPayload)
			}
		})
	}
}

func TestRenderingTypeString(t *testing.T) {
	if RenderingSticker.String() != "sticker" {
		t.Errorf("String() = %q, want sticker", RenderingSticker.String())
	}
	if RenderingType(9).String() != "rendering(9)" {
		t.Errorf("String() = %q", RenderingType(9).String())
	}
}
