// Package symbol resolves names to addresses for a loaded image.
package symbol

import (
	"sort"
	"strings"
	"sync"

	"github.com/ianlancetaylor/demangle"

	"github.com/zboralski/offscan/internal/memory"
)

// Kind classifies a symbol.
type Kind int

const (
	KindUnknown Kind = iota
	KindFunc
	KindObject
	KindImport
)

func (k Kind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindObject:
		return "object"
	case KindImport:
		return "import"
	}
	return "unknown"
}

// Symbol is a named address.
type Symbol struct {
	Name    string
	Address memory.Address
	Size    uint64
	Kind    Kind
}

// IsFunction reports whether the symbol names code.
func (s Symbol) IsFunction() bool {
	return s.Kind == KindFunc || s.Kind == KindImport
}

// Demangled returns the demangled C++ name, or Name when it is not mangled.
func (s Symbol) Demangled() string {
	return demangle.Filter(stripUnderscore(s.Name), demangle.NoParams)
}

// Resolver looks up symbols by name.
type Resolver interface {
	Resolve(name string) (memory.Address, bool)
	FindByPrefix(prefix string) []Symbol
	FindByContains(s string) []Symbol
}

// Table is a concurrent symbol table. The demangled index is built on first
// use under the write lock; all other queries take the read lock.
type Table struct {
	mu        sync.RWMutex
	byName    map[string]Symbol
	byAddr    map[memory.Address]Symbol
	demangled map[string]Symbol
}

// NewTable returns a table holding syms.
func NewTable(syms ...Symbol) *Table {
	t := &Table{
		byName: make(map[string]Symbol, len(syms)),
		byAddr: make(map[memory.Address]Symbol, len(syms)),
	}
	for _, s := range syms {
		t.add(s)
	}
	return t
}

// Add inserts s. A later symbol with the same name replaces the earlier one.
func (t *Table) Add(s Symbol) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.add(s)
	t.demangled = nil
}

func (t *Table) add(s Symbol) {
	if s.Name == "" {
		return
	}
	t.byName[s.Name] = s
	if old, ok := t.byAddr[s.Address]; !ok || (!old.IsFunction() && s.IsFunction()) {
		t.byAddr[s.Address] = s
	}
}

// Lookup returns the symbol with exactly this name, falling back to its
// demangled form.
func (t *Table) Lookup(name string) (Symbol, bool) {
	t.mu.RLock()
	s, ok := t.byName[name]
	idx := t.demangled
	t.mu.RUnlock()
	if ok {
		return s, true
	}
	if idx == nil {
		idx = t.buildDemangled()
	}
	s, ok = idx[name]
	return s, ok
}

// Resolve returns the address of name.
func (t *Table) Resolve(name string) (memory.Address, bool) {
	s, ok := t.Lookup(name)
	return s.Address, ok
}

func (t *Table) buildDemangled() map[string]Symbol {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.demangled != nil {
		return t.demangled
	}
	idx := make(map[string]Symbol)
	for name, s := range t.byName {
		d := s.Demangled()
		if d == name {
			continue
		}
		if _, dup := idx[d]; !dup {
			idx[d] = s
		}
	}
	t.demangled = idx
	return idx
}

// NameAt returns the name of a symbol at addr, preferring functions.
func (t *Table) NameAt(addr memory.Address) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byAddr[addr].Name
}

// FindByPrefix returns symbols whose name starts with prefix, by address.
func (t *Table) FindByPrefix(prefix string) []Symbol {
	return t.Match(func(name string) bool { return strings.HasPrefix(name, prefix) })
}

// FindByContains returns symbols whose name contains sub, by address.
func (t *Table) FindByContains(sub string) []Symbol {
	return t.Match(func(name string) bool { return strings.Contains(name, sub) })
}

// Match returns symbols whose name satisfies pred, sorted by address then name.
func (t *Table) Match(pred func(name string) bool) []Symbol {
	t.mu.RLock()
	var out []Symbol
	for name, s := range t.byName {
		if pred(name) {
			out = append(out, s)
		}
	}
	t.mu.RUnlock()
	sortSymbols(out)
	return out
}

// All returns every symbol sorted by address.
func (t *Table) All() []Symbol {
	return t.Match(func(string) bool { return true })
}

// Len returns the number of names in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byName)
}

func sortSymbols(syms []Symbol) {
	sort.Slice(syms, func(i, j int) bool {
		if syms[i].Address != syms[j].Address {
			return syms[i].Address < syms[j].Address
		}
		return syms[i].Name < syms[j].Name
	})
}

// stripUnderscore removes the extra leading underscore Mach-O adds to C and
// C++ symbols.
func stripUnderscore(name string) string {
	if strings.HasPrefix(name, "__Z") {
		return name[1:]
	}
	return name
}

// CleanName removes ELF symbol version suffixes (@@VER or @VER).
func CleanName(name string) string {
	if idx := strings.Index(name, "@"); idx > 0 {
		return name[:idx]
	}
	return name
}

var _ Resolver = (*Table)(nil)
