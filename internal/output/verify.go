package output

import (
	"fmt"

	"github.com/zboralski/offscan/internal/arm64"
	"github.com/zboralski/offscan/internal/memory"
)

// Issue is an offsets entry that does not hold against a binary.
type Issue struct {
	Name    string
	Address memory.Address
	Reason  string
}

// Verify checks every function entry of f against r: the address must lie
// in an executable region and be a function start.
func Verify(f *File, r memory.Reader) ([]Issue, error) {
	regions, err := r.Regions()
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	code := memory.Executable(regions)
	loc := arm64.NewLocator(r, r.BaseAddress())

	var issues []Issue
	for _, name := range f.Names() {
		addr := memory.Address(f.Functions[name].Address)
		if _, ok := memory.Find(code, addr); !ok {
			issues = append(issues, Issue{name, addr, "not in an executable region"})
			continue
		}
		if addr%arm64.InsnSize != 0 {
			issues = append(issues, Issue{name, addr, "not instruction aligned"})
			continue
		}
		if start := loc.FunctionStart(addr); start != addr {
			issues = append(issues, Issue{name, addr, fmt.Sprintf("inside function at %s", start)})
		}
	}
	return issues, nil
}
