package output

import (
	"sort"

	"github.com/zboralski/offscan/internal/memory"
)

// ChangeKind classifies a diff entry.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Moved
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Moved:
		return "moved"
	}
	return "unknown"
}

// Section is the part of an offsets file a change belongs to.
type Section int

const (
	SectionFunction Section = iota
	SectionClass
	SectionMember
)

func (s Section) String() string {
	switch s {
	case SectionClass:
		return "class"
	case SectionMember:
		return "member"
	}
	return "function"
}

// Change is one entry whose value differs between files. Old and New are
// addresses, or byte offsets for members.
type Change struct {
	Name    string
	Section Section
	Kind    ChangeKind
	Old     memory.Address
	New     memory.Address
}

// Delta is the signed address move of a Moved change.
func (c Change) Delta() int64 {
	if c.Kind != Moved {
		return 0
	}
	return c.New.Diff(c.Old)
}

// Diff compares two offsets files.
type Diff struct {
	Changes   []Change
	Unchanged []string
}

// Compare diffs functions, classes, then structure members of before
// against after. Changes are ordered by name within each group.
func Compare(before, after *File) *Diff {
	d := &Diff{}
	fnOld := make(map[string]memory.Address, len(before.Functions))
	for name, f := range before.Functions {
		fnOld[name] = memory.Address(f.Address)
	}
	fnNew := make(map[string]memory.Address, len(after.Functions))
	for name, f := range after.Functions {
		fnNew[name] = memory.Address(f.Address)
	}
	d.compare(fnOld, fnNew, SectionFunction)
	d.compare(addrs(before.Classes), addrs(after.Classes), SectionClass)
	d.compare(members(before), members(after), SectionMember)
	sort.Strings(d.Unchanged)
	return d
}

func members(f *File) map[string]memory.Address {
	out := make(map[string]memory.Address)
	for s, ms := range f.Structures {
		for m, v := range ms {
			out[s+"."+m] = memory.Address(v.Offset)
		}
	}
	return out
}

func addrs(m map[string]Addr) map[string]memory.Address {
	out := make(map[string]memory.Address, len(m))
	for k, v := range m {
		out[k] = memory.Address(v)
	}
	return out
}

func (d *Diff) compare(before, after map[string]memory.Address, sec Section) {
	var changes []Change
	for name, oa := range before {
		na, ok := after[name]
		switch {
		case !ok:
			changes = append(changes, Change{Name: name, Section: sec, Kind: Removed, Old: oa})
		case na != oa:
			changes = append(changes, Change{Name: name, Section: sec, Kind: Moved, Old: oa, New: na})
		default:
			d.Unchanged = append(d.Unchanged, name)
		}
	}
	for name, na := range after {
		if _, ok := before[name]; !ok {
			changes = append(changes, Change{Name: name, Section: sec, Kind: Added, New: na})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Name < changes[j].Name })
	d.Changes = append(d.Changes, changes...)
}

// Count returns the number of changes of kind k.
func (d *Diff) Count(k ChangeKind) int {
	n := 0
	for _, c := range d.Changes {
		if c.Kind == k {
			n++
		}
	}
	return n
}

// Empty reports whether the files agree.
func (d *Diff) Empty() bool { return len(d.Changes) == 0 }
