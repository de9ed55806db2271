package xref

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/pattern"
)

// maxLiteralBacktrack bounds the walk from a substring hit back to the start
// of the enclosing literal.
const maxLiteralBacktrack = 256

// FindString returns the start addresses of string literals in non-code
// readable regions that contain text. A hit inside a longer literal is
// reported at that literal's first byte, which is what ADRP+ADD references.
func FindString(r memory.Reader, text string) ([]memory.Address, error) {
	if text == "" {
		return nil, fmt.Errorf("find string: empty text")
	}
	regions, err := r.Regions()
	if err != nil {
		return nil, fmt.Errorf("find string %q: %w", text, err)
	}
	scanner := pattern.NewScanner(r)
	needle := pattern.FromBytes([]byte(text))

	seen := make(map[memory.Address]bool)
	var out []memory.Address
	for _, reg := range regions {
		if !reg.IsData() {
			continue
		}
		hits, err := scanner.All(needle, reg.Start, reg.End)
		if err != nil {
			if errors.Is(err, pattern.ErrNotFound) || errors.Is(err, pattern.ErrScanFailed) {
				continue
			}
			return nil, err
		}
		for _, hit := range hits {
			start := literalStart(r, reg, hit)
			if !seen[start] {
				seen[start] = true
				out = append(out, start)
			}
		}
	}
	return out, nil
}

func literalStart(r memory.Reader, reg memory.Region, hit memory.Address) memory.Address {
	cur := hit
	for i := 0; i < maxLiteralBacktrack && cur > reg.Start; i++ {
		c, err := r.ReadU8(cur - 1)
		if err != nil || c == 0 {
			break
		}
		cur--
	}
	return cur
}

// StringIndex memoizes FindString results. Concurrent lookups of cached
// literals take only the read lock.
type StringIndex struct {
	reader memory.Reader
	mu     sync.RWMutex
	cache  map[string][]memory.Address
}

// NewStringIndex returns an empty index over r.
func NewStringIndex(r memory.Reader) *StringIndex {
	return &StringIndex{reader: r, cache: make(map[string][]memory.Address)}
}

// Find returns the literal start addresses containing text.
func (s *StringIndex) Find(text string) ([]memory.Address, error) {
	s.mu.RLock()
	addrs, ok := s.cache[text]
	s.mu.RUnlock()
	if ok {
		return addrs, nil
	}
	addrs, err := FindString(s.reader, text)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[text] = addrs
	s.mu.Unlock()
	return addrs, nil
}
