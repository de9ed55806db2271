// Package arm64 classifies raw AArch64 instruction words and locates
// function entry points from addresses inside a function body.
package arm64

import "encoding/binary"

// InsnSize is the fixed AArch64 instruction width.
const InsnSize = 4

const (
	pairMask    = 0x7F800000
	pairStore   = 0x29000000 // STP/LDP general registers, signed offset
	pairStoreFP = 0x6D000000 // STP/LDP SIMD&FP registers, signed offset

	retMask = 0xFFFFFC1F
	retBits = 0xD65F0000 // RET Xn
)

// Word decodes a little-endian instruction word from the first four bytes of b.
func Word(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// IsPrologue reports whether w is a register-pair store/load of the kind
// compilers emit at function entry.
func IsPrologue(w uint32) bool {
	return w&pairMask == pairStore || w&pairMask == pairStoreFP
}

// IsReturn reports whether w is RET. The word after it is a plausible start
// of the next function.
func IsReturn(w uint32) bool {
	return w&retMask == retBits
}

const (
	ldstMask = 0x3F000000
	ldstUimm = 0x39000000 // LDR/STR general registers, unsigned offset
)

// MemAccess is a decoded load or store with an unsigned immediate offset.
type MemAccess struct {
	Offset uint64 // byte offset from the base register
	Size   int    // access width in bytes
	Load   bool
	Rt, Rn int
}

// DecodeMemAccess decodes w as LDR/LDRB/LDRH/STR/STRB/STRH with an unsigned
// immediate. Sign-extending loads and prefetches are not matched.
func DecodeMemAccess(w uint32) (MemAccess, bool) {
	if w&ldstMask != ldstUimm {
		return MemAccess{}, false
	}
	opc := (w >> 22) & 3
	if opc > 1 {
		return MemAccess{}, false
	}
	size := 1 << (w >> 30)
	return MemAccess{
		Offset: uint64((w>>10)&0xFFF) * uint64(size),
		Size:   size,
		Load:   opc == 1,
		Rt:     int(w & 0x1F),
		Rn:     int((w >> 5) & 0x1F),
	}, true
}
