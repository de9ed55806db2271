package finder

import (
	"context"
	"errors"
	"fmt"

	"github.com/zboralski/offscan/internal/arm64"
	"github.com/zboralski/offscan/internal/log"
	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/pattern"
	"github.com/zboralski/offscan/internal/shape"
	"github.com/zboralski/offscan/internal/trace"
)

// Range is a half-open address range [Start, End) to search.
type Range struct {
	Start memory.Address
	End   memory.Address
}

// Contains reports whether addr lies in the range.
func (r Range) Contains(addr memory.Address) bool {
	return addr >= r.Start && addr < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start, r.End)
}

// Step is one resolution strategy.
type Step interface {
	Method() Method
	Find(ctx context.Context, t *Target, r Range) (Result, error)
}

// SymbolStep resolves targets by name.
type SymbolStep struct{ env *Env }

func (SymbolStep) Method() Method { return MethodSymbol }

// Find tries each alias in order. A named symbol is trusted without
// structural checks.
func (s SymbolStep) Find(_ context.Context, t *Target, _ Range) (Result, error) {
	if s.env.Symbols == nil {
		return Result{}, fmt.Errorf("%s: no symbol table: %w", t.Name, ErrSymbolResolutionFailed)
	}
	for _, name := range t.SymbolNames() {
		if addr, ok := s.env.Symbols.Resolve(name); ok {
			s.env.emit(uint64(addr), trace.Symbol, t.Name, name, trace.Resolved)
			return NewResult(t, addr, MethodSymbol), nil
		}
	}
	s.env.emit(0, trace.Symbol, t.Name, "", trace.Miss)
	return Result{}, fmt.Errorf("%s: no alias in symbol table: %w", t.Name, ErrSymbolResolutionFailed)
}

// PatternStep scans for each of the target's byte signatures.
type PatternStep struct{ env *Env }

func (PatternStep) Method() Method { return MethodPattern }

// Find normalizes the first match of each pattern to its function start and
// validates it. A rejected candidate moves on to the next pattern.
func (s PatternStep) Find(_ context.Context, t *Target, r Range) (Result, error) {
	if len(t.Patterns) == 0 {
		return Result{}, fmt.Errorf("%s: no patterns: %w", t.Name, ErrNotFound)
	}
	var errs []error
	for _, text := range t.Patterns {
		p, err := s.env.Patterns.Get(text)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var hit memory.Address
		if t.Unique {
			hit, err = s.env.Scanner.Unique(p, r.Start, r.End)
		} else {
			hit, err = s.env.Scanner.First(p, r.Start, r.End)
		}
		switch {
		case errors.Is(err, pattern.ErrScanFailed):
			s.env.emit(uint64(r.Start), trace.Pattern, t.Name, text, trace.Unreadable)
			return Result{}, fmt.Errorf("%s: %w: %w", t.Name, ErrPatternScanFailed, err)
		case errors.Is(err, pattern.ErrMultipleMatches):
			s.env.emit(0, trace.Pattern, t.Name, text, trace.Ambiguous)
			errs = append(errs, fmt.Errorf("%s: %w", text, ErrMultipleMatches))
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", text, ErrNotFound))
			continue
		}

		start := s.env.Locator.FunctionStart(hit)
		if s.env.check(t, start) {
			s.env.emit(uint64(start), trace.Pattern, t.Name, text, trace.Resolved)
			return NewResult(t, start, MethodPattern), nil
		}
		s.env.emit(uint64(start), trace.Pattern, t.Name, text, trace.Rejected)
		errs = append(errs, fmt.Errorf("%s at %s: %w", text, start, ErrValidationFailed))
	}
	return Result{}, fmt.Errorf("%s: %w", t.Name, errors.Join(errs...))
}

// XRefStep follows references to the target's string literals.
type XRefStep struct{ env *Env }

func (XRefStep) Method() Method { return MethodXRef }

// Find looks up each literal, takes every referencing instruction inside
// the range, normalizes it to the enclosing function and validates it.
func (s XRefStep) Find(ctx context.Context, t *Target, r Range) (Result, error) {
	if s.env.Graph == nil {
		return Result{}, fmt.Errorf("%s: no xref index: %w", t.Name, ErrXRefAnalysisFailed)
	}
	if len(t.Strings) == 0 {
		return Result{}, fmt.Errorf("%s: no string hints: %w", t.Name, ErrXRefAnalysisFailed)
	}
	rejected := 0
	for _, text := range t.Strings {
		addrs, err := s.env.Strings.Find(text)
		if err != nil {
			return Result{}, fmt.Errorf("%s: locate %q: %w: %w", t.Name, text, ErrXRefAnalysisFailed, err)
		}
		for _, str := range addrs {
			for _, e := range s.env.Graph.ReferencesTo(str) {
				if err := ctx.Err(); err != nil {
					return Result{}, err
				}
				if !r.Contains(e.From) {
					continue
				}
				start := s.env.Locator.FunctionStart(e.From)
				if s.env.check(t, start) {
					s.env.emit(uint64(start), trace.XRef, t.Name, text, trace.Resolved)
					return NewResult(t, start, MethodXRef), nil
				}
				s.env.emit(uint64(start), trace.XRef, t.Name, text, trace.Rejected)
				rejected++
			}
		}
	}
	if rejected > 0 {
		return Result{}, fmt.Errorf("%s: %d referencing functions: %w", t.Name, rejected, ErrValidationFailed)
	}
	return Result{}, fmt.Errorf("%s: no references to string hints: %w", t.Name, ErrNotFound)
}

// HeuristicStep scans linearly for the target's shape.
type HeuristicStep struct{ env *Env }

func (HeuristicStep) Method() Method { return MethodHeuristic }

// heuristicChunk is the read size of the linear scan.
const heuristicChunk = 64 * 1024

// Find walks the range in instruction steps. Only prologue words are
// candidates; the target shape is tested on the window that follows, and a
// hit is normalized and validated like the other strategies.
func (s HeuristicStep) Find(ctx context.Context, t *Target, r Range) (Result, error) {
	window := t.shapeWindow()
	rejected := 0
	start := r.Start.Add((arm64.InsnSize - uint64(r.Start)%arm64.InsnSize) % arm64.InsnSize)
	for pos := start; pos < r.End; pos = pos.Add(heuristicChunk) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		size := heuristicChunk + window
		if rem := uint64(r.End - pos); rem < uint64(size) {
			size = int(rem)
		}
		buf, err := s.env.Reader.ReadBytes(pos, size)
		if err != nil {
			continue
		}
		limit := heuristicChunk
		if limit > len(buf) {
			limit = len(buf)
		}
		for off := 0; off+arm64.InsnSize <= limit; off += arm64.InsnSize {
			if !arm64.IsPrologue(arm64.Word(buf[off:])) {
				continue
			}
			end := off + window
			if end > len(buf) {
				end = len(buf)
			}
			addr := pos.Add(uint64(off))
			if !t.shape(shape.NewFunc(addr, buf[off:end])) {
				continue
			}
			fstart := s.env.Locator.FunctionStart(addr)
			if s.env.check(t, fstart) {
				s.env.emit(uint64(fstart), trace.Heuristic, t.Name, "", trace.Resolved)
				return NewResult(t, fstart, MethodHeuristic), nil
			}
			rejected++
		}
	}
	if rejected > 0 {
		s.env.emit(0, trace.Heuristic, t.Name, fmt.Sprintf("%d shape hits rejected", rejected), trace.Rejected)
		return Result{}, fmt.Errorf("%s: %d shape hits: %w", t.Name, rejected, ErrValidationFailed)
	}
	s.env.emit(0, trace.Heuristic, t.Name, "", trace.Miss)
	return Result{}, fmt.Errorf("%s: no shape match in %s: %w", t.Name, r, ErrNotFound)
}

// check runs the target's structural validator on the code at start.
func (e *Env) check(t *Target, start memory.Address) bool {
	fn, err := shape.Read(e.Reader, start, t.validateWindow())
	if err != nil {
		return false
	}
	return t.validate(fn)
}

func (e *Env) emit(addr uint64, strategy trace.Tag, target, detail string, outcome trace.Tag) {
	log.L.Attempt(addr, string(strategy), target, detail)
	if e.OnEvent == nil {
		return
	}
	ev := trace.NewEvent(addr, string(strategy), target, detail)
	ev.AddTag(outcome)
	e.OnEvent(ev)
}
