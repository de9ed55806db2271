package finder

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/zboralski/offscan/internal/log"
)

// Registry holds target definitions. Catalog packages register into
// DefaultRegistry from init().
type Registry struct {
	mu      sync.RWMutex
	targets map[string]*Target
	order   []string
}

// DefaultRegistry is the global registry used by init() functions.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]*Target)}
}

// Register adds t. Registering a name twice panics: catalogs are static and
// a duplicate is a programming error.
func (r *Registry) Register(t Target) {
	if t.Name == "" {
		panic("finder: register target with empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.targets[t.Name]; dup {
		panic(fmt.Sprintf("finder: target %q registered twice", t.Name))
	}
	r.targets[t.Name] = &t
	r.order = append(r.order, t.Name)

	log.L.WithCategory(t.Category).Debug("registered",
		log.Target(t.Name),
		zap.Int("patterns", len(t.Patterns)),
		zap.Int("strings", len(t.Strings)),
	)
}

// RegisterPatterns is a convenience for targets described by patterns and
// the default checks only.
func (r *Registry) RegisterPatterns(category, name string, patterns []string, aliases ...string) {
	r.Register(Target{
		Name:     name,
		Category: category,
		Patterns: patterns,
		Aliases:  aliases,
	})
}

// Get returns the target registered as name.
func (r *Registry) Get(name string) (*Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[name]
	return t, ok
}

// Count returns the number of registered targets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}

// List returns targets in registration order.
func (r *Registry) List() []*Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Target, len(r.order))
	for i, name := range r.order {
		out[i] = r.targets[name]
	}
	return out
}

// Categories returns the distinct categories, sorted.
func (r *Registry) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range r.List() {
		if !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	sort.Strings(out)
	return out
}

// Select returns targets whose name matches one of names and whose category
// is one of categories. An empty filter matches everything. Name filters use
// MatchName.
func (r *Registry) Select(names, categories []string) []*Target {
	var out []*Target
	for _, t := range r.List() {
		if !Selects(t.Name, t.Category, names, categories) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Selects reports whether an entry with name and category passes the name
// and category filters of Select.
func Selects(name, category string, names, categories []string) bool {
	if len(categories) > 0 && !contains(categories, category) {
		return false
	}
	return len(names) == 0 || anyMatch(name, names)
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func anyMatch(name string, patterns []string) bool {
	for _, p := range patterns {
		if MatchName(name, p) {
			return true
		}
	}
	return false
}

// MatchName matches name against an exact name or a glob with * at either
// end: "lua_*", "*top", "*thread*".
func MatchName(name, pattern string) bool {
	switch {
	case len(pattern) > 1 && strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		return strings.Contains(name, pattern[1:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	}
	return name == pattern
}

// Convenience functions for the default registry

// Register adds a target to the default registry.
func Register(t Target) {
	DefaultRegistry.Register(t)
}

// RegisterPatterns adds a pattern-only target to the default registry.
func RegisterPatterns(category, name string, patterns []string, aliases ...string) {
	DefaultRegistry.RegisterPatterns(category, name, patterns, aliases...)
}
