package protocol

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// reader walks a payload with bounds checks on every read. The first
// failure sticks; later reads return zero values and err() reports it.
type reader struct {
	buf    []byte
	offset int
	fail   error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) take(n int, what string) []byte {
	if r.fail != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.offset < n {
		r.fail = fmt.Errorf("%w: buffer too short for %s", ErrMalformedPayload, what)
		return nil
	}
	out := r.buf[r.offset : r.offset+n]
	r.offset += n
	return out
}

func (r *reader) fixed(dst []byte, what string) {
	if b := r.take(len(dst), what); b != nil {
		copy(dst, b)
	}
}

func (r *reader) u8(what string) uint8 {
	if b := r.take(1, what); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16(what string) uint16 {
	if b := r.take(2, what); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32(what string) uint32 {
	if b := r.take(4, what); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64(what string) uint64 {
	if b := r.take(8, what); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// text reads a u16 length-prefixed UTF-8 string of at most max bytes
func (r *reader) text(max int, what string) string {
	n := int(r.u16(what + " length"))
	if r.fail != nil {
		return ""
	}
	if n > max {
		r.fail = fmt.Errorf("%w: %s exceeds %d bytes", ErrMalformedPayload, what, max)
		return ""
	}
	b := r.take(n, what)
	if b == nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.fail = fmt.Errorf("%w: %s is not valid UTF-8", ErrMalformedPayload, what)
		return ""
	}
	return string(b)
}

// blob reads a u32 length-prefixed byte field of at most max bytes
func (r *reader) blob(max int, what string) []byte {
	n := r.u32(what + " length")
	if r.fail != nil {
		return nil
	}
	if n > uint32(max) {
		r.fail = fmt.Errorf("%w: %s exceeds %d bytes", ErrMalformedPayload, what, max)
		return nil
	}
	b := r.take(int(n), what)
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// finish reports the sticky error, or trailing bytes after a complete parse
func (r *reader) finish() error {
	if r.fail != nil {
		return r.fail
	}
	if r.offset != len(r.buf) {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedPayload, len(r.buf)-r.offset)
	}
	return nil
}

// ===== WRITE HELPERS =====

func appendText(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func appendBlob(buf []byte, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}
