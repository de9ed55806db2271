package finder

import (
	"sort"

	"github.com/zboralski/offscan/internal/memory"
)

// Results accumulates resolved functions and classes across strategy
// passes. The first write for a name wins.
type Results struct {
	Functions map[string]memory.Address
	Classes   map[string]memory.Address

	// Details holds the result that produced each function entry.
	Details map[string]Result
}

// NewResults returns empty Results.
func NewResults() *Results {
	return &Results{
		Functions: make(map[string]memory.Address),
		Classes:   make(map[string]memory.Address),
		Details:   make(map[string]Result),
	}
}

// AddFunction records r unless its name is already present. It reports
// whether r was recorded.
func (rs *Results) AddFunction(r Result) bool {
	if _, ok := rs.Functions[r.Name]; ok {
		return false
	}
	rs.Functions[r.Name] = r.Address
	rs.Details[r.Name] = r
	return true
}

// AddClass records a class address unless the name is already present.
func (rs *Results) AddClass(name string, addr memory.Address) bool {
	if _, ok := rs.Classes[name]; ok {
		return false
	}
	rs.Classes[name] = addr
	return true
}

// Merge folds other into rs. Entries already in rs win, so callers merge
// passes in trust order.
func (rs *Results) Merge(other *Results) {
	names := make([]string, 0, len(other.Functions))
	for name := range other.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if d, ok := other.Details[name]; ok {
			rs.AddFunction(d)
			continue
		}
		if _, ok := rs.Functions[name]; !ok {
			rs.Functions[name] = other.Functions[name]
		}
	}
	for name, addr := range other.Classes {
		rs.AddClass(name, addr)
	}
}

// Collect merges results in trust order regardless of input order, so a
// symbol result beats a pattern result for the same name and so on.
func Collect(results []Result) *Results {
	sorted := make([]Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Method < sorted[j].Method
	})
	rs := NewResults()
	for _, r := range sorted {
		rs.AddFunction(r)
	}
	return rs
}

// Sorted returns the recorded function results ordered by address.
func (rs *Results) Sorted() []Result {
	out := make([]Result, 0, len(rs.Details))
	for _, r := range rs.Details {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Filter returns the recorded results with confidence at least min.
func (rs *Results) Filter(min float64) []Result {
	var out []Result
	for _, r := range rs.Sorted() {
		if r.Confidence >= min {
			out = append(out, r)
		}
	}
	return out
}
