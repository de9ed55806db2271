package memory

import "strings"

// Protection holds the access flags of a region.
type Protection struct {
	Read    bool
	Write   bool
	Execute bool
}

func (p Protection) String() string {
	var b strings.Builder
	flag := func(on bool, c byte) {
		if on {
			b.WriteByte(c)
		} else {
			b.WriteByte('-')
		}
	}
	flag(p.Read, 'r')
	flag(p.Write, 'w')
	flag(p.Execute, 'x')
	return b.String()
}

// Region is a contiguous mapped range [Start, End).
type Region struct {
	Name  string
	Start Address
	End   Address
	Prot  Protection
}

// Size returns the region length in bytes.
func (r Region) Size() uint64 {
	if r.End < r.Start {
		return 0
	}
	return uint64(r.End - r.Start)
}

// Contains reports whether addr lies inside the region.
func (r Region) Contains(addr Address) bool {
	return addr >= r.Start && addr < r.End
}

// IsCode reports whether the region is executable.
func (r Region) IsCode() bool { return r.Prot.Execute }

// IsData reports whether the region is readable data that is not code.
func (r Region) IsData() bool { return r.Prot.Read && !r.Prot.Execute }

// Executable filters regions down to the executable ones.
func Executable(regions []Region) []Region {
	var out []Region
	for _, r := range regions {
		if r.IsCode() {
			out = append(out, r)
		}
	}
	return out
}

// Readable filters regions down to the readable ones.
func Readable(regions []Region) []Region {
	var out []Region
	for _, r := range regions {
		if r.Prot.Read {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the region containing addr.
func Find(regions []Region, addr Address) (Region, bool) {
	for _, r := range regions {
		if r.Contains(addr) {
			return r, true
		}
	}
	return Region{}, false
}
