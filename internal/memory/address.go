// Package memory defines the address and region primitives and the
// read-only memory interface the resolver consumes.
package memory

import (
	"fmt"
	"strconv"
)

// Address is a linear virtual address inside a loaded image.
type Address uint64

// Add returns a advanced by n bytes.
func (a Address) Add(n uint64) Address { return a + Address(n) }

// Sub returns a moved back by n bytes.
func (a Address) Sub(n uint64) Address { return a - Address(n) }

// Diff returns a - b as a signed byte distance.
func (a Address) Diff(b Address) int64 { return int64(a) - int64(b) }

// Less reports whether a orders before b.
func (a Address) Less(b Address) bool { return a < b }

// AlignDown rounds a down to a multiple of align, which must be a power of two.
func (a Address) AlignDown(align uint64) Address {
	return a &^ Address(align-1)
}

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// ParseAddress parses a hex address with or without the 0x prefix.
func ParseAddress(s string) (Address, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if s == "" {
		return 0, fmt.Errorf("parse address: empty")
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse address %q: %w", s, err)
	}
	return Address(v), nil
}
