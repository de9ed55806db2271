package finder

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/zboralski/offscan/internal/arm64"
	"github.com/zboralski/offscan/internal/log"
	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/xref"
)

// Validator reconciles a batch of results against the cross-reference
// index.
type Validator struct {
	Graph      *xref.Graph
	Locator    *arm64.Locator
	Thresholds Thresholds
	Threads    int
}

// NewValidator returns a Validator with the default thresholds.
func NewValidator(g *xref.Graph, loc *arm64.Locator) *Validator {
	return &Validator{Graph: g, Locator: loc, Thresholds: DefaultThresholds, Threads: 4}
}

// CrossValidate keeps every result at or above the corroboration threshold
// and every lower result that a high-trust result calls or is called by.
// Uncorroborated results below the keep threshold are dropped. Confidence is
// never changed, so running it again on its own output is a no-op. With no
// graph nothing can be corroborated.
func (v *Validator) CrossValidate(ctx context.Context, results []Result) (kept, dropped []Result, err error) {
	th := v.Thresholds
	var high []Result
	for _, r := range results {
		if r.Confidence >= th.HighTrust {
			high = append(high, r)
		}
	}

	counts := make([]int, len(results))
	g, ctx := errgroup.WithContext(ctx)
	if v.Threads > 0 {
		g.SetLimit(v.Threads)
	}
	for i, r := range results {
		if r.Confidence >= th.Corroborate {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			counts[i] = v.corroborations(r, high)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for i, r := range results {
		if r.Confidence < th.Corroborate && counts[i] == 0 && r.Confidence < th.Keep {
			log.L.Dropped(r.Name, uint64(r.Address), r.Confidence)
			dropped = append(dropped, r)
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped, nil
}

// corroborations counts high-trust results linked to r by a call or jump
// in either direction.
func (v *Validator) corroborations(r Result, high []Result) int {
	if v.Graph == nil {
		return 0
	}
	n := 0
	for _, h := range high {
		if h.Address == r.Address {
			continue
		}
		if v.linked(h.Address, r.Address) || v.linked(r.Address, h.Address) {
			n++
		}
	}
	return n
}

// linked reports whether code in the function starting at from transfers
// control to to.
func (v *Validator) linked(from, to memory.Address) bool {
	for _, e := range v.Graph.ReferencesTo(to) {
		if !e.Kind.IsControlFlow() {
			continue
		}
		if v.functionStart(e.From) == from {
			return true
		}
	}
	return false
}

func (v *Validator) functionStart(addr memory.Address) memory.Address {
	if v.Locator == nil {
		return addr
	}
	return v.Locator.FunctionStart(addr)
}
