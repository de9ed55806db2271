// Package finder resolves named targets in an ARM64 image by chaining
// symbol, pattern, cross-reference and heuristic strategies, and
// reconciles a batch of results against the cross-reference index.
//
// Each strategy assigns a fixed confidence (see the Confidence* constants).
// Failures inside a strategy fall through to the next one; only a systemic
// read failure aborts a batch.
package finder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zboralski/offscan/internal/arm64"
	"github.com/zboralski/offscan/internal/log"
	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/pattern"
	"github.com/zboralski/offscan/internal/symbol"
	"github.com/zboralski/offscan/internal/trace"
	"github.com/zboralski/offscan/internal/xref"
)

// Env holds the collaborators the strategies read from. Symbols and Graph
// may be nil; the strategies that need them then fall through.
type Env struct {
	Reader   memory.Reader
	Symbols  symbol.Resolver
	Graph    *xref.Graph
	Locator  *arm64.Locator
	Scanner  *pattern.Scanner
	Patterns *pattern.Cache
	Strings  *xref.StringIndex

	// OnEvent receives every attempt outcome. It must be safe for
	// concurrent use.
	OnEvent func(*trace.Event)
}

// Options toggles strategies. The pattern strategy cannot be disabled.
type Options struct {
	DisableSymbol    bool
	DisableXRef      bool
	DisableHeuristic bool
	Threads          int
}

// Finder runs the strategy chain.
type Finder struct {
	env   *Env
	chain Chain
	opts  Options
}

// New builds a Finder, filling unset collaborators in env with defaults
// derived from env.Reader.
func New(env Env, opts Options) *Finder {
	if env.Locator == nil {
		env.Locator = arm64.NewLocator(env.Reader, env.Reader.BaseAddress())
	}
	if env.Scanner == nil {
		env.Scanner = pattern.NewScanner(env.Reader)
	}
	if env.Patterns == nil {
		env.Patterns = pattern.NewCache()
	}
	if env.Strings == nil {
		env.Strings = xref.NewStringIndex(env.Reader)
	}
	f := &Finder{env: &env, opts: opts}

	if !opts.DisableSymbol {
		f.chain = append(f.chain, SymbolStep{f.env})
	}
	f.chain = append(f.chain, PatternStep{f.env})
	if !opts.DisableXRef {
		f.chain = append(f.chain, XRefStep{f.env})
	}
	if !opts.DisableHeuristic {
		f.chain = append(f.chain, HeuristicStep{f.env})
	}
	return f
}

// Chain returns the ordered strategy list.
func (f *Finder) Chain() Chain { return f.chain }

// Env returns the collaborators in use.
func (f *Finder) Env() *Env { return f.env }

// Chain is an ordered strategy list; the first success wins.
type Chain []Step

// Resolve tries each step over each range and returns the first success.
// Steps are the outer loop, so a higher-trust strategy in any range beats
// a lower-trust one in an earlier range. The symbol step ignores ranges and
// runs once. If every step fails the error wraps ErrNotFound and joins each
// step's reason.
//
// A range that cannot be read at all is skipped. The scan failure becomes
// systemic, and is returned immediately, only when a step could read none
// of the ranges.
func (c Chain) Resolve(ctx context.Context, t *Target, ranges []Range) (Result, error) {
	var reasons []error
	for _, step := range c {
		if step.Method() == MethodSymbol {
			res, err := step.Find(ctx, t, Range{})
			if err == nil {
				return res, nil
			}
			if abort(err) {
				return Result{}, err
			}
			reasons = append(reasons, fmt.Errorf("%s: %w", step.Method(), err))
			continue
		}
		var unreadable []error
		for _, r := range ranges {
			res, err := step.Find(ctx, t, r)
			if err == nil {
				return res, nil
			}
			if IsSystemic(err) {
				unreadable = append(unreadable, err)
				continue
			}
			if abort(err) {
				return Result{}, err
			}
			reasons = append(reasons, fmt.Errorf("%s: %w", step.Method(), err))
		}
		if len(unreadable) > 0 && len(unreadable) == len(ranges) {
			return Result{}, errors.Join(unreadable...)
		}
		for _, err := range unreadable {
			reasons = append(reasons, fmt.Errorf("%s: %w", step.Method(), skipped(err)))
		}
	}
	return Result{}, notFound(t, reasons)
}

// abort reports whether err ends resolution of the whole target.
func abort(err error) bool {
	return IsSystemic(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// skipped records a range scan failure that did not fail the step. The cause
// is flattened so it no longer classifies as systemic.
func skipped(err error) error {
	return fmt.Errorf("range skipped: %v: %w", err, ErrNotFound)
}

// notFound builds the ErrNotFound error for t, joining reasons when there
// are any.
func notFound(t *Target, reasons []error) error {
	if len(reasons) == 0 {
		return fmt.Errorf("%s: %w", t.Name, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", t.Name, ErrNotFound, errors.Join(reasons...))
}

// Resolve runs the chain for one target.
func (f *Finder) Resolve(ctx context.Context, t *Target, ranges []Range) (Result, error) {
	res, err := f.chain.Resolve(ctx, t, ranges)
	if err == nil {
		log.L.Resolved(res.Name, res.Method.String(), uint64(res.Address), res.Confidence)
	}
	return res, err
}

// Batch is the outcome of resolving many targets.
type Batch struct {
	Results    []Result
	Unresolved map[string]error
}

// ResolveAll runs the chain for every target concurrently. Unresolved
// targets are reported in Batch.Unresolved; the error is non-nil only for
// a systemic failure or cancellation.
func (f *Finder) ResolveAll(ctx context.Context, targets []*Target, ranges []Range) (*Batch, error) {
	return f.run(ctx, targets, func(ctx context.Context, t *Target) ([]Result, error) {
		res, err := f.Resolve(ctx, t, ranges)
		if err != nil {
			return nil, err
		}
		return []Result{res}, nil
	})
}

// ResolveEach runs every enabled step independently for every target and
// returns all successes, at most one per step per target. Merging them with
// Collect applies trust order.
func (f *Finder) ResolveEach(ctx context.Context, targets []*Target, ranges []Range) (*Batch, error) {
	return f.run(ctx, targets, func(ctx context.Context, t *Target) ([]Result, error) {
		var out []Result
		var reasons []error
		for _, step := range f.chain {
			res, err := Chain{step}.Resolve(ctx, t, ranges)
			if err != nil {
				if IsSystemic(err) || ctx.Err() != nil {
					return nil, err
				}
				reasons = append(reasons, err)
				continue
			}
			out = append(out, res)
		}
		if len(out) == 0 {
			return nil, notFound(t, reasons)
		}
		return out, nil
	})
}

func (f *Finder) run(ctx context.Context, targets []*Target, resolve func(context.Context, *Target) ([]Result, error)) (*Batch, error) {
	var (
		mu    sync.Mutex
		batch = &Batch{Unresolved: make(map[string]error)}
	)
	g, ctx := errgroup.WithContext(ctx)
	if f.opts.Threads > 0 {
		g.SetLimit(f.opts.Threads)
	}
	for _, t := range targets {
		g.Go(func() error {
			res, err := resolve(ctx, t)
			if err != nil && (IsSystemic(err) || ctx.Err() != nil) {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Unresolved[t.Name] = err
				log.L.Debug("unresolved", log.Target(t.Name), zap.Error(err))
				return nil
			}
			batch.Results = append(batch.Results, res...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	SortResults(batch.Results)
	return batch, nil
}

// SortResults orders results by name, then trust.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Name != results[j].Name {
			return results[i].Name < results[j].Name
		}
		return results[i].Method < results[j].Method
	})
}
