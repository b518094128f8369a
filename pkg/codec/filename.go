package codec

import (
	"path"
	"strings"
	"unicode"

	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// sanitizeFilename reduces a peer-supplied filename to a safe base name:
// no directories, no control characters, no leading dots
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, name)

	return strings.TrimLeft(strings.TrimSpace(name), ".")
}

// sanitizeCaption trims surrounding whitespace and drops control
// characters other than line breaks and tabs
func sanitizeCaption(caption string) string {
	caption = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, caption)
	return strings.TrimSpace(caption)
}

// DecodeFilename returns the filename a full decode would persist,
// without touching the store. Covers direct and group file messages.
func DecodeFilename(msg *protocol.FileMessage) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	return sanitizeFilename(msg.Filename), nil
}

// DecodeFileCaption returns the caption a full decode would persist
func DecodeFileCaption(msg *protocol.FileMessage) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	return sanitizeCaption(msg.Caption), nil
}
