// Package constants confirms well-known named constants and string
// literals by finding their names in the image's data and the code that
// references them.
package constants

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zboralski/offscan/internal/finder"
	"github.com/zboralski/offscan/internal/log"
	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/trace"
	"github.com/zboralski/offscan/internal/xref"
)

// Kind distinguishes integer constants from string literals.
type Kind int

const (
	Integer Kind = iota
	String
)

func (k Kind) String() string {
	if k == String {
		return "string"
	}
	return "integer"
}

// Constant is a catalog entry. Integer constants carry their documented
// value and are evidenced by their name; string constants are evidenced by
// the literal itself.
type Constant struct {
	Name     string
	Category string
	Kind     Kind
	Value    int64
	Text     string

	// Literals overrides the strings searched for. By default an integer
	// constant looks for its name and a string constant for its text.
	Literals []string
}

func (c *Constant) literals() []string {
	switch {
	case len(c.Literals) > 0:
		return c.Literals
	case c.Kind == String && c.Text != "":
		return []string{c.Text}
	}
	return []string{c.Name}
}

// Found is a confirmed constant.
type Found struct {
	Name     string
	Category string
	Kind     Kind
	Value    int64
	Text     string

	// Address is the first exact literal found.
	Address memory.Address
	// Refs counts code references to any matching literal.
	Refs int

	Confidence float64
	Method     finder.Method
}

func (f Found) String() string {
	if f.Kind == String {
		return fmt.Sprintf("%s=%q@%s (%s %.2f)", f.Name, f.Text, f.Address, f.Method, f.Confidence)
	}
	return fmt.Sprintf("%s=%d@%s (%s %.2f)", f.Name, f.Value, f.Address, f.Method, f.Confidence)
}

// Registry holds constant definitions.
type Registry struct {
	mu     sync.RWMutex
	consts map[string]*Constant
	order  []string
}

// DefaultRegistry is the global registry used by init() functions.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{consts: make(map[string]*Constant)}
}

// Register adds c. A duplicate name panics.
func (r *Registry) Register(c Constant) {
	if c.Name == "" {
		panic("constants: register constant with empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.consts[c.Name]; dup {
		panic(fmt.Sprintf("constants: %q registered twice", c.Name))
	}
	r.consts[c.Name] = &c
	r.order = append(r.order, c.Name)
}

// List returns constants in registration order.
func (r *Registry) List() []*Constant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Constant, len(r.order))
	for i, name := range r.order {
		out[i] = r.consts[name]
	}
	return out
}

// Select filters by name and category like finder.Registry.Select.
func (r *Registry) Select(names, categories []string) []*Constant {
	var out []*Constant
	for _, c := range r.List() {
		if finder.Selects(c.Name, c.Category, names, categories) {
			out = append(out, c)
		}
	}
	return out
}

// Register adds a constant to the default registry.
func Register(c Constant) {
	DefaultRegistry.Register(c)
}

// Integers registers integer constants sharing a category.
func Integers(category string, values map[string]int64) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		Register(Constant{Name: name, Category: category, Value: values[name]})
	}
}

// Strings registers string constants named after their text.
func Strings(category string, texts ...string) {
	for _, s := range texts {
		Register(Constant{Name: s, Category: category, Kind: String, Text: s})
	}
}

// Resolver looks constants up in a string index.
type Resolver struct {
	Reader  memory.Reader
	Strings *xref.StringIndex
	Graph   *xref.Graph // may be nil
	Threads int

	OnEvent func(*trace.Event)
}

// NewResolver returns a Resolver over r. g may be nil; every found constant
// then has the heuristic tier.
func NewResolver(r memory.Reader, g *xref.Graph) *Resolver {
	return &Resolver{Reader: r, Strings: xref.NewStringIndex(r), Graph: g}
}

// Batch is the outcome of resolving many constants.
type Batch struct {
	Found   []Found
	Missing []string
}

// ResolveAll resolves every constant. Missing constants are listed by name.
func (r *Resolver) ResolveAll(ctx context.Context, consts []*Constant) (*Batch, error) {
	var (
		mu    sync.Mutex
		batch = &Batch{}
	)
	g, ctx := errgroup.WithContext(ctx)
	if r.Threads > 0 {
		g.SetLimit(r.Threads)
	}
	for _, c := range consts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := r.Resolve(c)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, finder.ErrNotFound):
				batch.Missing = append(batch.Missing, c.Name)
				return nil
			case err != nil:
				return err
			}
			batch.Found = append(batch.Found, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(batch.Found, func(i, j int) bool { return batch.Found[i].Name < batch.Found[j].Name })
	sort.Strings(batch.Missing)
	return batch, nil
}

// Resolve finds c. Only literals exactly equal to a searched string count,
// not longer literals containing it. A literal referenced from code gets
// the xref tier, an unreferenced one the heuristic tier.
func (r *Resolver) Resolve(c *Constant) (Found, error) {
	var (
		first memory.Address
		found bool
		refs  int
	)
	for _, text := range c.literals() {
		addrs, err := r.Strings.Find(text)
		if err != nil {
			return Found{}, fmt.Errorf("%s: %w", c.Name, err)
		}
		for _, a := range addrs {
			if !r.exact(a, text) {
				continue
			}
			if !found || a < first {
				first, found = a, true
			}
			if r.Graph != nil {
				refs += len(r.Graph.ReferencesTo(a))
			}
		}
	}
	if !found {
		r.emit(0, c, trace.Miss)
		return Found{}, fmt.Errorf("%s: no literal: %w", c.Name, finder.ErrNotFound)
	}
	m := finder.MethodHeuristic
	if refs > 0 {
		m = finder.MethodXRef
	}
	f := Found{
		Name:       c.Name,
		Category:   c.Category,
		Kind:       c.Kind,
		Value:      c.Value,
		Text:       c.Text,
		Address:    first,
		Refs:       refs,
		Confidence: m.Confidence(),
		Method:     m,
	}
	r.emit(first, c, trace.Resolved)
	log.L.Debug("constant", log.Target(c.Name), log.Addr(uint64(first)), zap.Int("refs", refs))
	return f, nil
}

// exact reports whether the NUL-terminated literal at addr is text.
func (r *Resolver) exact(addr memory.Address, text string) bool {
	b, err := r.Reader.ReadBytes(addr, len(text)+1)
	if err != nil {
		return false
	}
	return bytes.Equal(b[:len(text)], []byte(text)) && b[len(text)] == 0
}

func (r *Resolver) emit(addr memory.Address, c *Constant, outcome trace.Tag) {
	if r.OnEvent == nil {
		return
	}
	ev := trace.NewEvent(uint64(addr), string(trace.Constant), c.Name, c.Kind.String())
	ev.AddTag(outcome)
	r.OnEvent(ev)
}
