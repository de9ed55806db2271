// Package pattern compiles hex signatures with byte wildcards and scans
// memory for them.
//
// The text form is whitespace-separated hex byte pairs. A token of "?" or
// "??" matches any byte. Both spellings are full-byte wildcards; there is
// no nibble matching.
package pattern

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPattern is returned for malformed pattern text.
var ErrInvalidPattern = errors.New("invalid pattern")

// Pattern is a compiled byte signature. Mask[i] is false at wildcard
// positions.
type Pattern struct {
	Bytes []byte
	Mask  []bool
}

// Parse compiles pattern text.
func Parse(text string) (Pattern, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Pattern{}, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	p := Pattern{
		Bytes: make([]byte, len(fields)),
		Mask:  make([]bool, len(fields)),
	}
	for i, tok := range fields {
		if tok == "?" || tok == "??" {
			continue
		}
		if len(tok) != 2 {
			return Pattern{}, fmt.Errorf("%w: token %q at %d", ErrInvalidPattern, tok, i)
		}
		hi, ok1 := hexNibble(tok[0])
		lo, ok2 := hexNibble(tok[1])
		if !ok1 || !ok2 {
			return Pattern{}, fmt.Errorf("%w: token %q at %d", ErrInvalidPattern, tok, i)
		}
		p.Bytes[i] = hi<<4 | lo
		p.Mask[i] = true
	}
	return p, nil
}

// MustParse is Parse for package-level signature tables. It panics on
// malformed text.
func MustParse(text string) Pattern {
	p, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return p
}

// FromBytes returns a literal pattern with no wildcards.
func FromBytes(b []byte) Pattern {
	p := Pattern{
		Bytes: append([]byte(nil), b...),
		Mask:  make([]bool, len(b)),
	}
	for i := range p.Mask {
		p.Mask[i] = true
	}
	return p
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// Len returns the pattern length in bytes.
func (p Pattern) Len() int { return len(p.Bytes) }

// Wildcards counts wildcard positions.
func (p Pattern) Wildcards() int {
	n := 0
	for _, m := range p.Mask {
		if !m {
			n++
		}
	}
	return n
}

// Match reports whether p matches data at offset off.
func (p Pattern) Match(data []byte, off int) bool {
	if off < 0 || off+len(p.Bytes) > len(data) {
		return false
	}
	for i, b := range p.Bytes {
		if p.Mask[i] && data[off+i] != b {
			return false
		}
	}
	return true
}

// Index returns the first offset >= from where p matches, or -1.
func (p Pattern) Index(data []byte, from int) int {
	if len(p.Bytes) == 0 {
		return -1
	}
	if from < 0 {
		from = 0
	}
	for off := from; off+len(p.Bytes) <= len(data); off++ {
		if p.Match(data, off) {
			return off
		}
	}
	return -1
}

func (p Pattern) String() string {
	var b strings.Builder
	for i, c := range p.Bytes {
		if i > 0 {
			b.WriteByte(' ')
		}
		if !p.Mask[i] {
			b.WriteString("??")
			continue
		}
		fmt.Fprintf(&b, "%02X", c)
	}
	return b.String()
}
