package arm64

import "github.com/zboralski/offscan/internal/memory"

// DefaultMaxSteps bounds the backward walk of a Locator.
const DefaultMaxSteps = 256

// WordReader reads one instruction word.
type WordReader interface {
	ReadU32(addr memory.Address) (uint32, error)
}

// Locator finds the entry of the function enclosing an address by walking
// backward one instruction at a time.
type Locator struct {
	Reader   WordReader
	Lower    memory.Address // lowest address the walk may inspect
	MaxSteps int
}

// NewLocator returns a Locator bounded below by lower with the default step
// budget.
func NewLocator(r WordReader, lower memory.Address) *Locator {
	return &Locator{Reader: r, Lower: lower, MaxSteps: DefaultMaxSteps}
}

// FunctionStart returns the address of the nearest prologue at or before
// addr, or the word after the nearest preceding RET, whichever is met
// first. If neither is found within the step budget or before the lower
// bound, addr is returned unchanged. Unreadable words are stepped over.
func (l *Locator) FunctionStart(addr memory.Address) memory.Address {
	steps := l.MaxSteps
	if steps <= 0 {
		steps = DefaultMaxSteps
	}
	cur := addr
	for i := 0; i < steps; i++ {
		if cur < l.Lower {
			break
		}
		if w, err := l.Reader.ReadU32(cur); err == nil {
			if IsPrologue(w) {
				return cur
			}
			if IsReturn(w) {
				return cur.Add(InsnSize)
			}
		}
		if cur < InsnSize {
			break
		}
		cur = cur.Sub(InsnSize)
	}
	return addr
}
