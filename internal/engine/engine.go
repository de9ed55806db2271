// Package engine drives one resolution run over a loaded image: it indexes
// cross-references, resolves every selected target, cross-validates the
// batch and merges the survivors with the classes named by vtable symbols.
// Structure member offsets and named constants of the catalog are resolved
// in the same run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zboralski/offscan/internal/arm64"
	"github.com/zboralski/offscan/internal/constants"
	"github.com/zboralski/offscan/internal/finder"
	"github.com/zboralski/offscan/internal/layout"
	"github.com/zboralski/offscan/internal/log"
	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/pattern"
	"github.com/zboralski/offscan/internal/symbol"
	"github.com/zboralski/offscan/internal/trace"
	"github.com/zboralski/offscan/internal/xref"
)

// ErrNoCode is returned when the image has no executable region.
var ErrNoCode = errors.New("no executable region")

// Options configure a run.
type Options struct {
	Threads int

	// Exhaustive runs every strategy for every target and lets trust order
	// pick the winner, instead of stopping at the first success.
	Exhaustive bool

	Strategies finder.Options
	Thresholds finder.Thresholds

	MaxSteps  int // locator budget
	ChunkSize int // pattern scanner read size

	// MinConfidence filters Report.Reported; it does not affect
	// cross-validation.
	MinConfidence float64

	// SkipClasses disables vtable class discovery.
	SkipClasses bool
}

// DefaultOptions returns the options used by the CLI when no config is
// given.
func DefaultOptions() Options {
	return Options{
		Threads:       8,
		Thresholds:    finder.DefaultThresholds,
		MaxSteps:      arm64.DefaultMaxSteps,
		ChunkSize:     pattern.DefaultChunkSize,
		MinConfidence: finder.ConfidenceHeuristic,
	}
}

// Engine holds the image under analysis.
type Engine struct {
	reader  memory.Reader
	symbols *symbol.Table
	opts    Options
	trace   *trace.Recorder
}

// New returns an engine over r. syms may be nil for stripped images.
func New(r memory.Reader, syms *symbol.Table, opts Options) *Engine {
	if opts.Threads <= 0 {
		opts.Threads = 1
	}
	if opts.Thresholds == (finder.Thresholds{}) {
		opts.Thresholds = finder.DefaultThresholds
	}
	return &Engine{reader: r, symbols: syms, opts: opts, trace: trace.NewRecorder()}
}

// Trace returns the recorder that receives every attempt of the last run.
func (e *Engine) Trace() *trace.Recorder { return e.trace }

// Catalog is everything a run resolves.
type Catalog struct {
	Targets   []*finder.Target
	Fields    []*layout.Field
	Constants []*constants.Constant
}

// Report is the outcome of a run.
type Report struct {
	Base       memory.Address
	Results    *finder.Results
	Dropped    []finder.Result
	Unresolved map[string]error
	Targets    int

	Fields    *layout.Batch
	Constants *constants.Batch

	GraphNodes int
	GraphEdges int
	Duration   time.Duration

	minConfidence float64
}

// Reported returns the kept function results at or above the run's
// minimum confidence, ordered by address.
func (r *Report) Reported() []finder.Result {
	return r.Results.Filter(r.minConfidence)
}

// ReportedOffsets returns the member offsets at or above the run's minimum
// confidence.
func (r *Report) ReportedOffsets() []layout.Offset {
	if r.Fields == nil {
		return nil
	}
	var out []layout.Offset
	for _, o := range r.Fields.Offsets {
		if o.Confidence >= r.minConfidence {
			out = append(out, o)
		}
	}
	return out
}

// ReportedConstants returns the constants at or above the run's minimum
// confidence.
func (r *Report) ReportedConstants() []constants.Found {
	if r.Constants == nil {
		return nil
	}
	var out []constants.Found
	for _, c := range r.Constants.Found {
		if c.Confidence >= r.minConfidence {
			out = append(out, c)
		}
	}
	return out
}

// Run resolves targets only. See RunCatalog.
func (e *Engine) Run(ctx context.Context, targets []*finder.Target) (*Report, error) {
	return e.RunCatalog(ctx, Catalog{Targets: targets})
}

// RunCatalog resolves every entry of c. An error is returned only when the
// image cannot be analyzed at all; unresolved entries are listed in the
// report.
func (e *Engine) RunCatalog(ctx context.Context, c Catalog) (*Report, error) {
	start := time.Now()
	targets := c.Targets

	regions, err := e.reader.Regions()
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	ranges := codeRanges(regions)
	if len(ranges) == 0 {
		return nil, ErrNoCode
	}

	graph := e.buildGraph(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loc := arm64.NewLocator(e.reader, e.reader.BaseAddress())
	if e.opts.MaxSteps > 0 {
		loc.MaxSteps = e.opts.MaxSteps
	}
	scanner := pattern.NewScanner(e.reader)
	if e.opts.ChunkSize > 0 {
		scanner.ChunkSize = e.opts.ChunkSize
	}

	env := finder.Env{
		Reader:  e.reader,
		Graph:   graph,
		Locator: loc,
		Scanner: scanner,
		OnEvent: e.trace.Record,
	}
	if e.symbols != nil {
		env.Symbols = e.symbols
	}
	fopts := e.opts.Strategies
	fopts.Threads = e.opts.Threads
	f := finder.New(env, fopts)

	var batch *finder.Batch
	if e.opts.Exhaustive {
		batch, err = f.ResolveEach(ctx, targets, ranges)
	} else {
		batch, err = f.ResolveAll(ctx, targets, ranges)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	v := &finder.Validator{Graph: graph, Locator: loc, Thresholds: e.opts.Thresholds, Threads: e.opts.Threads}
	kept, dropped, err := v.CrossValidate(ctx, batch.Results)
	if err != nil {
		return nil, fmt.Errorf("cross-validate: %w", err)
	}
	for _, d := range dropped {
		ev := trace.NewEvent(uint64(d.Address), d.Method.String(), d.Name, "uncorroborated")
		ev.AddTag(trace.Dropped)
		ev.Annotate("conf", fmt.Sprintf("%.2f", d.Confidence))
		e.trace.Record(ev)
	}

	results := finder.Collect(kept)
	unresolved := batch.Unresolved
	for _, d := range dropped {
		if _, ok := results.Functions[d.Name]; !ok {
			unresolved[d.Name] = fmt.Errorf("%s at %s: dropped by cross-validation: %w", d.Name, d.Address, finder.ErrNotFound)
		}
	}

	if !e.opts.SkipClasses && e.symbols != nil {
		for name, addr := range e.symbols.Classes() {
			results.AddClass(name, addr)
		}
	}

	fields := &layout.Batch{Unresolved: make(map[string]error)}
	if len(c.Fields) > 0 {
		lr := layout.NewResolver(e.reader)
		lr.Scanner, lr.Threads, lr.OnEvent = scanner, e.opts.Threads, e.trace.Record
		fields, err = lr.ResolveAll(ctx, c.Fields, ranges)
		if err != nil {
			return nil, fmt.Errorf("resolve fields: %w", err)
		}
	}
	consts := &constants.Batch{}
	if len(c.Constants) > 0 {
		cr := constants.NewResolver(e.reader, graph)
		cr.Threads, cr.OnEvent = e.opts.Threads, e.trace.Record
		consts, err = cr.ResolveAll(ctx, c.Constants)
		if err != nil {
			return nil, fmt.Errorf("resolve constants: %w", err)
		}
	}

	rep := &Report{
		Base:          e.reader.BaseAddress(),
		Results:       results,
		Dropped:       dropped,
		Unresolved:    unresolved,
		Targets:       len(targets),
		Fields:        fields,
		Constants:     consts,
		Duration:      time.Since(start),
		minConfidence: e.opts.MinConfidence,
	}
	if graph != nil {
		rep.GraphNodes = graph.NodeCount()
		rep.GraphEdges = graph.EdgeCount()
	}

	log.L.Debug("run complete",
		zap.Int("targets", len(targets)),
		zap.Int("resolved", len(results.Functions)),
		zap.Int("dropped", len(dropped)),
		zap.Int("classes", len(results.Classes)),
		zap.Int("offsets", len(fields.Offsets)),
		zap.Int("constants", len(consts.Found)),
		zap.Duration("took", rep.Duration),
	)
	return rep, nil
}

// buildGraph indexes cross-references. The graph is built even with the
// xref strategy disabled because cross-validation reads it. A failed build
// leaves both without evidence but does not stop the run.
func (e *Engine) buildGraph(ctx context.Context) *xref.Graph {
	b := xref.NewBuilder(e.reader)
	b.Threads = e.opts.Threads
	if e.symbols != nil {
		b.Names = e.symbols.NameAt
	}
	g, err := b.Build(ctx)
	if err != nil {
		log.L.Warn("xref index unavailable", zap.Error(err))
		return nil
	}
	return g
}

func codeRanges(regions []memory.Region) []finder.Range {
	var out []finder.Range
	for _, r := range memory.Executable(regions) {
		out = append(out, finder.Range{Start: r.Start, End: r.End})
	}
	return out
}
