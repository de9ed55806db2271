// Package shape counts coarse instruction features over a window of AArch64
// code. Target validators and heuristic signatures are written in terms of
// these counts.
package shape

import (
	"encoding/binary"

	"github.com/zboralski/offscan/internal/arm64"
	"github.com/zboralski/offscan/internal/memory"
)

// Feature is one instruction class recognized by a fixed bit-mask test.
type Feature int

const (
	Prologue      Feature = iota // STP/LDP signed offset
	Return                       // RET
	Load64                       // LDR Xt, [Xn, #imm]
	Store64                      // STR Xt, [Xn, #imm]
	Store32                      // STR Wt, [Xn, #imm]
	LoadByte                     // LDRB Wt, [Xn, #imm]
	Compare                      // CMP/SUBS immediate
	CompareReg                   // CMP/SUBS shifted register
	Call                         // BL
	Branch                       // B
	CondBranch                   // B.cond
	CompareBranch                // CBZ Wt/Xt
	Adrp                         // ADRP
	AddImm                       // ADD Xd, Xn, #imm
	MovReg                       // MOV Wd/Xd, Wm/Xm (ORR alias)
	StorePair                    // STP general registers, signed offset
	numFeatures
)

var featureNames = [numFeatures]string{
	"prologue", "ret", "ldr", "str", "str32", "ldrb", "cmp", "cmp.reg",
	"bl", "b", "b.cond", "cbz", "adrp", "add", "mov", "stp",
}

func (f Feature) String() string {
	if f < 0 || f >= numFeatures {
		return "unknown"
	}
	return featureNames[f]
}

// Is reports whether w belongs to feature class f.
func Is(w uint32, f Feature) bool {
	switch f {
	case Prologue:
		return arm64.IsPrologue(w)
	case Return:
		return arm64.IsReturn(w)
	case Load64:
		return w&0xFFC00000 == 0xF9400000
	case Store64:
		return w&0xFFC00000 == 0xF9000000
	case Store32:
		return w&0xFFC00000 == 0xB9000000
	case LoadByte:
		return w&0xFFC00000 == 0x39400000
	case Compare:
		return w&0x7F000000 == 0x71000000
	case CompareReg:
		return w&0x7F000000 == 0x6B000000
	case Call:
		return w&0xFC000000 == 0x94000000
	case Branch:
		return w&0xFC000000 == 0x14000000
	case CondBranch:
		return w&0xFF000000 == 0x54000000
	case CompareBranch:
		return w&0x7F000000 == 0x34000000
	case Adrp:
		return w&0x9F000000 == 0x90000000
	case AddImm:
		return w&0xFFC00000 == 0x91000000
	case MovReg:
		return w&0x7FE0FFE0 == 0x2A0003E0
	case StorePair:
		return w&0x7F800000 == 0x29000000
	}
	return false
}

// Counts holds per-feature occurrence counts.
type Counts [numFeatures]int

// Of returns the count for f.
func (c *Counts) Of(f Feature) int { return c[f] }

// Func is a window of code starting at Addr.
type Func struct {
	Addr   memory.Address
	Code   []byte
	counts *Counts
}

// NewFunc wraps code read at addr. Trailing bytes that do not form a whole
// word are ignored.
func NewFunc(addr memory.Address, code []byte) Func {
	code = code[:len(code)&^3]
	f := Func{Addr: addr, Code: code, counts: new(Counts)}
	for i := 0; i < len(code); i += 4 {
		w := binary.LittleEndian.Uint32(code[i:])
		for ft := Feature(0); ft < numFeatures; ft++ {
			if Is(w, ft) {
				f.counts[ft]++
			}
		}
	}
	return f
}

// Read loads size bytes at addr and wraps them. The window is truncated at
// the end of the containing region rather than failing.
func Read(r memory.Reader, addr memory.Address, size int) (Func, error) {
	b, err := r.ReadBytes(addr, size)
	if err == nil {
		return NewFunc(addr, b), nil
	}
	regions, rerr := r.Regions()
	if rerr != nil {
		return Func{}, err
	}
	reg, ok := memory.Find(regions, addr)
	if !ok {
		return Func{}, err
	}
	n := int(uint64(reg.End - addr))
	if n >= size || n < arm64.InsnSize {
		return Func{}, err
	}
	b, err = r.ReadBytes(addr, n)
	if err != nil {
		return Func{}, err
	}
	return NewFunc(addr, b), nil
}

// Words returns the number of whole instruction words in the window.
func (f Func) Words() int { return len(f.Code) / 4 }

// Word returns the i-th instruction word.
func (f Func) Word(i int) uint32 {
	return binary.LittleEndian.Uint32(f.Code[i*4:])
}

// First returns the first instruction word, or 0 for an empty window.
func (f Func) First() uint32 {
	if len(f.Code) < 4 {
		return 0
	}
	return f.Word(0)
}

// StartsWithPrologue reports whether the first word is a prologue marker.
func (f Func) StartsWithPrologue() bool {
	return len(f.Code) >= 4 && arm64.IsPrologue(f.First())
}

// Count returns how many words in the window belong to ft.
func (f Func) Count(ft Feature) int {
	if f.counts == nil {
		return 0
	}
	return f.counts[ft]
}

// Has reports whether every listed feature occurs at least once.
func (f Func) Has(fts ...Feature) bool {
	for _, ft := range fts {
		if f.Count(ft) == 0 {
			return false
		}
	}
	return true
}

// Any reports whether at least one listed feature occurs.
func (f Func) Any(fts ...Feature) bool {
	for _, ft := range fts {
		if f.Count(ft) > 0 {
			return true
		}
	}
	return false
}

// AnyWord reports whether some word satisfies pred.
func (f Func) AnyWord(pred func(uint32) bool) bool {
	for i := 0; i < f.Words(); i++ {
		if pred(f.Word(i)) {
			return true
		}
	}
	return false
}

// Min is a requirement of at least N occurrences of a feature.
type Min struct {
	Feature Feature
	N       int
}

// AtLeast reports whether every requirement is met.
func (f Func) AtLeast(reqs ...Min) bool {
	for _, r := range reqs {
		if f.Count(r.Feature) < r.N {
			return false
		}
	}
	return true
}
