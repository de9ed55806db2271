package layout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zboralski/offscan/internal/arm64"
	"github.com/zboralski/offscan/internal/finder"
	"github.com/zboralski/offscan/internal/log"
	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/pattern"
	"github.com/zboralski/offscan/internal/trace"
)

// Resolver samples pattern matches and votes on member offsets.
type Resolver struct {
	Reader   memory.Reader
	Scanner  *pattern.Scanner
	Patterns *pattern.Cache
	Threads  int
	MaxHits  int

	// OnEvent receives one event per field. It must be safe for concurrent
	// use.
	OnEvent func(*trace.Event)
}

// NewResolver returns a Resolver over r with default collaborators.
func NewResolver(r memory.Reader) *Resolver {
	return &Resolver{
		Reader:   r,
		Scanner:  pattern.NewScanner(r),
		Patterns: pattern.NewCache(),
		MaxHits:  DefaultMaxHits,
	}
}

// Batch is the outcome of resolving many fields.
type Batch struct {
	Offsets    []Offset
	Unresolved map[string]error
}

// Get returns the offset resolved for key.
func (b *Batch) Get(key string) (Offset, bool) {
	for _, o := range b.Offsets {
		if o.Key() == key {
			return o, true
		}
	}
	return Offset{}, false
}

// ResolveAll resolves every field over ranges concurrently. The error is
// non-nil only for cancellation or when no range could be read at all.
func (r *Resolver) ResolveAll(ctx context.Context, fields []*Field, ranges []finder.Range) (*Batch, error) {
	var (
		mu    sync.Mutex
		batch = &Batch{Unresolved: make(map[string]error)}
	)
	g, ctx := errgroup.WithContext(ctx)
	if r.Threads > 0 {
		g.SetLimit(r.Threads)
	}
	for _, f := range fields {
		g.Go(func() error {
			off, err := r.Resolve(ctx, f, ranges)
			if err != nil && (finder.IsSystemic(err) || ctx.Err() != nil) {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Unresolved[f.Key()] = err
				log.L.Debug("field unresolved", log.Target(f.Key()), zap.Error(err))
				return nil
			}
			batch.Offsets = append(batch.Offsets, off)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(batch.Offsets, func(i, j int) bool {
		a, b := batch.Offsets[i], batch.Offsets[j]
		if a.Struct != b.Struct {
			return a.Struct < b.Struct
		}
		if a.Offset != b.Offset {
			return a.Offset < b.Offset
		}
		return a.Field < b.Field
	})
	return batch, nil
}

// tally collects the in-bounds offsets seen for one pattern.
type tally struct {
	votes    map[uint64]int
	evidence map[uint64]memory.Address
	size     map[uint64]int
	total    int
}

func newTally() *tally {
	return &tally{
		votes:    make(map[uint64]int),
		evidence: make(map[uint64]memory.Address),
		size:     make(map[uint64]int),
	}
}

func (t *tally) add(off uint64, size int, at memory.Address) {
	if _, ok := t.votes[off]; !ok {
		t.evidence[off] = at
		t.size[off] = size
	}
	t.votes[off]++
	t.total++
}

// winner returns the offset with the most votes; ties go to the smaller
// offset.
func (t *tally) winner() (uint64, int) {
	var best uint64
	n := -1
	for off, v := range t.votes {
		if v > n || v == n && off < best {
			best, n = off, v
		}
	}
	return best, n
}

// Resolve samples the patterns of f in order. The first pattern with any
// in-bounds access decides: a unanimous sample resolves with the pattern
// tier, a split one with the heuristic tier.
func (r *Resolver) Resolve(ctx context.Context, f *Field, ranges []finder.Range) (Offset, error) {
	if len(f.Patterns) == 0 {
		return Offset{}, fmt.Errorf("%s: no patterns: %w", f.Key(), finder.ErrNotFound)
	}
	maxHits := r.MaxHits
	if maxHits <= 0 {
		maxHits = DefaultMaxHits
	}

	var (
		reasons    []error
		unreadable int
		scans      int
	)
	for _, text := range f.Patterns {
		p, err := r.Patterns.Get(text)
		if err != nil {
			reasons = append(reasons, err)
			continue
		}
		t := newTally()
		hits := 0
		for _, rg := range ranges {
			if err := ctx.Err(); err != nil {
				return Offset{}, err
			}
			scans++
			err := r.Scanner.Each(p, rg.Start, rg.End, func(hit memory.Address) bool {
				hits++
				at := memory.Address(uint64(hit) &^ (arm64.InsnSize - 1)).Add(uint64(f.Word * arm64.InsnSize))
				if acc, ok := r.access(f, at); ok {
					t.add(acc.Offset, acc.Size, at)
				}
				return hits < maxHits
			})
			if errors.Is(err, pattern.ErrScanFailed) {
				unreadable++
				continue
			}
			if err != nil {
				return Offset{}, fmt.Errorf("%s: %w", f.Key(), err)
			}
			if hits >= maxHits {
				break
			}
		}
		if t.total == 0 {
			reasons = append(reasons, fmt.Errorf("%s: %d matches, no in-bounds access", text, hits))
			continue
		}

		off, votes := t.winner()
		m := finder.MethodPattern
		if votes < t.total {
			m = finder.MethodHeuristic
		}
		res := Offset{
			Struct:     f.Struct,
			Field:      f.Name,
			Category:   f.Category,
			Offset:     off,
			Size:       t.size[off],
			Evidence:   t.evidence[off],
			Votes:      votes,
			Candidates: t.total,
			Confidence: m.Confidence(),
			Method:     m,
		}
		r.emit(res.Evidence, f, text, trace.Resolved, res)
		return res, nil
	}
	if scans > 0 && unreadable == scans {
		return Offset{}, fmt.Errorf("%s: %w", f.Key(), finder.ErrPatternScanFailed)
	}
	r.emit(0, f, "", trace.Miss, Offset{})
	if len(reasons) == 0 {
		return Offset{}, fmt.Errorf("%s: %w", f.Key(), finder.ErrNotFound)
	}
	return Offset{}, fmt.Errorf("%s: %w: %w", f.Key(), finder.ErrNotFound, errors.Join(reasons...))
}

// access decodes the instruction at addr and applies the field's filters.
func (r *Resolver) access(f *Field, addr memory.Address) (arm64.MemAccess, bool) {
	w, err := r.Reader.ReadU32(addr)
	if err != nil {
		return arm64.MemAccess{}, false
	}
	acc, ok := arm64.DecodeMemAccess(w)
	if !ok || !acc.Load && !f.Store {
		return arm64.MemAccess{}, false
	}
	if f.Size != 0 && acc.Size != f.Size {
		return arm64.MemAccess{}, false
	}
	return acc, f.inBounds(acc.Offset)
}

func (r *Resolver) emit(addr memory.Address, f *Field, detail string, outcome trace.Tag, res Offset) {
	log.L.Attempt(uint64(addr), string(trace.Field), f.Key(), detail)
	if r.OnEvent == nil {
		return
	}
	ev := trace.NewEvent(uint64(addr), string(trace.Field), f.Key(), detail)
	ev.AddTag(outcome)
	if outcome == trace.Resolved {
		ev.Annotate("offset", fmt.Sprintf("%#x", res.Offset))
		ev.Annotate("votes", fmt.Sprintf("%d/%d", res.Votes, res.Candidates))
	}
	r.OnEvent(ev)
}
