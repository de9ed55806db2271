package pattern

import (
	"errors"
	"fmt"

	"github.com/zboralski/offscan/internal/memory"
)

var (
	// ErrNotFound means the range was scanned completely without a match.
	ErrNotFound = errors.New("pattern not found")
	// ErrMultipleMatches means a unique match was required but several exist.
	ErrMultipleMatches = errors.New("pattern matched multiple times")
	// ErrScanFailed means no chunk of the range could be read.
	ErrScanFailed = errors.New("pattern scan failed")
)

// DefaultChunkSize is the read size used when Scanner.ChunkSize is zero.
const DefaultChunkSize = 64 * 1024

// Scanner searches address ranges of a memory reader.
type Scanner struct {
	Reader    memory.ByteReader
	ChunkSize int
}

// NewScanner returns a Scanner with the default chunk size.
func NewScanner(r memory.ByteReader) *Scanner {
	return &Scanner{Reader: r, ChunkSize: DefaultChunkSize}
}

// First returns the lowest match address in [start, end).
func (s *Scanner) First(p Pattern, start, end memory.Address) (memory.Address, error) {
	var hit memory.Address
	found := false
	err := s.scan(p, start, end, func(addr memory.Address) bool {
		hit, found = addr, true
		return false
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%s in [%s, %s): %w", p, start, end, ErrNotFound)
	}
	return hit, nil
}

// All returns every match address in [start, end) in ascending order.
func (s *Scanner) All(p Pattern, start, end memory.Address) ([]memory.Address, error) {
	var hits []memory.Address
	err := s.scan(p, start, end, func(addr memory.Address) bool {
		hits = append(hits, addr)
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("%s in [%s, %s): %w", p, start, end, ErrNotFound)
	}
	return hits, nil
}

// Each calls fn for every match in [start, end) in ascending order until fn
// returns false.
func (s *Scanner) Each(p Pattern, start, end memory.Address, fn func(memory.Address) bool) error {
	return s.scan(p, start, end, fn)
}

// Unique returns the only match in [start, end), or ErrMultipleMatches.
func (s *Scanner) Unique(p Pattern, start, end memory.Address) (memory.Address, error) {
	var hits []memory.Address
	err := s.scan(p, start, end, func(addr memory.Address) bool {
		hits = append(hits, addr)
		return len(hits) < 2
	})
	if err != nil {
		return 0, err
	}
	switch len(hits) {
	case 0:
		return 0, fmt.Errorf("%s in [%s, %s): %w", p, start, end, ErrNotFound)
	case 1:
		return hits[0], nil
	}
	return 0, fmt.Errorf("%s in [%s, %s): %w", p, start, end, ErrMultipleMatches)
}

// scan walks [start, end) in chunks overlapped by len(p)-1 so matches that
// straddle a chunk boundary are found once. fn returns false to stop.
// An unreadable chunk contributes no matches; if no chunk could be read the
// scan fails with ErrScanFailed.
func (s *Scanner) scan(p Pattern, start, end memory.Address, fn func(memory.Address) bool) error {
	n := p.Len()
	if n == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	if end <= start || uint64(end-start) < uint64(n) {
		return nil
	}
	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	if chunk < n {
		chunk = n
	}
	step := chunk - (n - 1)

	var (
		reads, failures int
		lastErr         error
	)
	for pos := start; pos < end; pos = pos.Add(uint64(step)) {
		size := chunk
		if rem := uint64(end - pos); rem < uint64(size) {
			size = int(rem)
		}
		if size < n {
			break
		}
		reads++
		data, err := s.Reader.ReadBytes(pos, size)
		if err != nil {
			failures++
			lastErr = err
			continue
		}
		// Offsets past step are scanned by the next chunk.
		limit := step
		if size < chunk {
			limit = size - n + 1
		}
		for off := 0; off < limit; off++ {
			if p.Match(data, off) && !fn(pos.Add(uint64(off))) {
				return nil
			}
		}
	}
	if reads > 0 && failures == reads {
		return fmt.Errorf("%w: [%s, %s): %w", ErrScanFailed, start, end, lastErr)
	}
	return nil
}
