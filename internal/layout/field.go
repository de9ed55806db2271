// Package layout recovers structure member offsets from the immediates of
// the loads and stores that access them.
//
// A Field names a member and the byte signatures of code touching it. Every
// match contributes the offset of the access instruction it lands on; the
// most common in-bounds value wins.
package layout

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/zboralski/offscan/internal/finder"
	"github.com/zboralski/offscan/internal/log"
	"github.com/zboralski/offscan/internal/memory"
)

// DefaultMaxHits bounds the matches sampled per pattern.
const DefaultMaxHits = 256

// Field describes one structure member.
type Field struct {
	Struct   string
	Name     string
	Category string
	Patterns []string

	// Word is the access instruction, counted in words from the word that
	// holds the first byte of a match.
	Word int

	// Size is the access width in bytes; zero accepts any width.
	Size int

	// Store accepts stores as well as loads.
	Store bool

	// Min and Max bound plausible offsets, inclusive. A zero Max means no
	// upper bound.
	Min, Max uint64
}

// Key is the qualified member name, Struct.Name.
func (f *Field) Key() string { return f.Struct + "." + f.Name }

func (f *Field) inBounds(off uint64) bool {
	return off >= f.Min && (f.Max == 0 || off <= f.Max)
}

// Offset is a resolved member offset.
type Offset struct {
	Struct   string
	Field    string
	Category string
	Offset   uint64
	Size     int

	// Evidence is the first access instruction that carried Offset.
	Evidence memory.Address

	// Votes is how many sampled accesses agreed on Offset, out of
	// Candidates in-bounds accesses.
	Votes      int
	Candidates int

	Confidence float64
	Method     finder.Method
}

// Key is the qualified member name.
func (o Offset) Key() string { return o.Struct + "." + o.Field }

func (o Offset) String() string {
	return fmt.Sprintf("%s=%#x (%s %.2f, %d/%d)", o.Key(), o.Offset, o.Method, o.Confidence, o.Votes, o.Candidates)
}

// Registry holds field definitions. Catalog packages register into
// DefaultRegistry from init().
type Registry struct {
	mu     sync.RWMutex
	fields map[string]*Field
	order  []string
}

// DefaultRegistry is the global registry used by init() functions.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fields: make(map[string]*Field)}
}

// Register adds f. A duplicate key panics.
func (r *Registry) Register(f Field) {
	if f.Struct == "" || f.Name == "" {
		panic("layout: register field without struct or name")
	}
	key := f.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.fields[key]; dup {
		panic(fmt.Sprintf("layout: field %q registered twice", key))
	}
	r.fields[key] = &f
	r.order = append(r.order, key)

	log.L.WithCategory(f.Category).Debug("registered field",
		log.Target(key),
		zap.Int("patterns", len(f.Patterns)),
	)
}

// Get returns the field registered under key.
func (r *Registry) Get(key string) (*Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fields[key]
	return f, ok
}

// List returns fields in registration order.
func (r *Registry) List() []*Field {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Field, len(r.order))
	for i, key := range r.order {
		out[i] = r.fields[key]
	}
	return out
}

// Select filters by qualified key and category the way finder.Registry
// does: "lua_State.*" selects every lua_State member.
func (r *Registry) Select(names, categories []string) []*Field {
	var out []*Field
	for _, f := range r.List() {
		if finder.Selects(f.Key(), f.Category, names, categories) {
			out = append(out, f)
		}
	}
	return out
}

// Structs returns the distinct structure names, sorted.
func (r *Registry) Structs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range r.List() {
		if !seen[f.Struct] {
			seen[f.Struct] = true
			out = append(out, f.Struct)
		}
	}
	sort.Strings(out)
	return out
}

// Register adds a field to the default registry.
func Register(f Field) {
	DefaultRegistry.Register(f)
}
