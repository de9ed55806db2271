// Package testutil builds AArch64 code fixtures and in-memory images for
// tests.
package testutil

import (
	"encoding/binary"
	"fmt"

	"github.com/zboralski/offscan/internal/memory"
)

// Fixed encodings.
const (
	NOP = 0xD503201F
	RET = 0xD65F03C0
)

// Register numbers.
const (
	SP  = 31
	XZR = 31
	FP  = 29
	LR  = 30
)

// STP encodes stp Xt1, Xt2, [Xn, #imm] (signed offset, imm multiple of 8).
func STP(rt1, rt2, rn int, imm int) uint32 {
	imm7 := uint32(imm/8) & 0x7F
	return 0xA9000000 | imm7<<15 | uint32(rt2)<<10 | uint32(rn)<<5 | uint32(rt1)
}

// Prologue encodes stp x29, x30, [sp, #16].
func Prologue() uint32 { return STP(FP, LR, SP, 16) }

// BL encodes a branch-with-link from pc to target. It panics if target is
// out of range.
func BL(pc, target memory.Address) uint32 {
	return 0x94000000 | disp(pc, target, 26)
}

// B encodes an unconditional branch from pc to target.
func B(pc, target memory.Address) uint32 {
	return 0x14000000 | disp(pc, target, 26)
}

// BCond encodes b.<cond> from pc to target.
func BCond(pc, target memory.Address, cond int) uint32 {
	return 0x54000000 | disp(pc, target, 19)<<5 | uint32(cond)&0xF
}

// CBZ encodes cbz Xt from pc to target.
func CBZ(rt int, pc, target memory.Address) uint32 {
	return 0xB4000000 | disp(pc, target, 19)<<5 | uint32(rt)
}

// disp returns the word displacement from pc to target as a bits-wide
// two's complement field.
func disp(pc, target memory.Address, bits uint) uint32 {
	d := target.Diff(pc)
	if d%4 != 0 {
		panic(fmt.Sprintf("testutil: branch %s -> %s not word aligned", pc, target))
	}
	d /= 4
	if lim := int64(1) << (bits - 1); d < -lim || d >= lim {
		panic(fmt.Sprintf("testutil: branch %s -> %s exceeds imm%d", pc, target, bits))
	}
	return uint32(d) & (1<<bits - 1)
}

// ADRP encodes adrp Xd for the page containing target.
func ADRP(rd int, pc, target memory.Address) uint32 {
	delta := (int64(target) >> 12) - (int64(pc) >> 12)
	imm := uint32(delta) & 0x1FFFFF
	immlo := imm & 3
	immhi := imm >> 2
	return 0x90000000 | immlo<<29 | immhi<<5 | uint32(rd)
}

// ADD encodes add Xd, Xn, #imm12.
func ADD(rd, rn int, imm uint32) uint32 {
	return 0x91000000 | (imm&0xFFF)<<10 | uint32(rn)<<5 | uint32(rd)
}

// LDR encodes ldr Xt, [Xn, #imm] (unsigned offset, imm multiple of 8).
func LDR(rt, rn int, imm uint32) uint32 {
	return 0xF9400000 | (imm/8&0xFFF)<<10 | uint32(rn)<<5 | uint32(rt)
}

// STR encodes str Xt, [Xn, #imm] (unsigned offset, imm multiple of 8).
func STR(rt, rn int, imm uint32) uint32 {
	return 0xF9000000 | (imm/8&0xFFF)<<10 | uint32(rn)<<5 | uint32(rt)
}

// STRW encodes str Wt, [Xn, #imm] (unsigned offset, imm multiple of 4).
func STRW(rt, rn int, imm uint32) uint32 {
	return 0xB9000000 | (imm/4&0xFFF)<<10 | uint32(rn)<<5 | uint32(rt)
}

// LDRB encodes ldrb Wt, [Xn, #imm].
func LDRB(rt, rn int, imm uint32) uint32 {
	return 0x39400000 | (imm&0xFFF)<<10 | uint32(rn)<<5 | uint32(rt)
}

// STRB encodes strb Wt, [Xn, #imm].
func STRB(rt, rn int, imm uint32) uint32 {
	return 0x39000000 | (imm&0xFFF)<<10 | uint32(rn)<<5 | uint32(rt)
}

// CMP encodes cmp Wn, #imm12.
func CMP(rn int, imm uint32) uint32 {
	return 0x7100001F | (imm&0xFFF)<<10 | uint32(rn)<<5
}

// MOV encodes mov Xd, Xm.
func MOV(rd, rm int) uint32 {
	return 0xAA0003E0 | uint32(rm)<<16 | uint32(rd)
}

// MOVW encodes mov Wd, Wm.
func MOVW(rd, rm int) uint32 {
	return 0x2A0003E0 | uint32(rm)<<16 | uint32(rd)
}

// MOVZ encodes movz Wd, #imm16.
func MOVZ(rd int, imm uint32) uint32 {
	return 0x52800000 | (imm&0xFFFF)<<5 | uint32(rd)
}

// Code assembles instruction words at consecutive addresses.
type Code struct {
	Base  memory.Address
	Words []uint32
}

// NewCode starts an empty code buffer at base.
func NewCode(base memory.Address) *Code {
	return &Code{Base: base}
}

// PC returns the address of the next emitted word.
func (c *Code) PC() memory.Address {
	return c.Base.Add(uint64(len(c.Words)) * 4)
}

// Emit appends words.
func (c *Code) Emit(words ...uint32) *Code {
	c.Words = append(c.Words, words...)
	return c
}

// EmitFunc appends words produced from the current pc, for pc-relative
// encodings.
func (c *Code) EmitFunc(fn func(pc memory.Address) uint32) *Code {
	return c.Emit(fn(c.PC()))
}

// PadTo fills with w until PC reaches addr.
func (c *Code) PadTo(addr memory.Address, w uint32) *Code {
	for c.PC() < addr {
		c.Words = append(c.Words, w)
	}
	return c
}

// Bytes returns the little-endian encoding of the buffer.
func (c *Code) Bytes() []byte {
	out := make([]byte, len(c.Words)*4)
	for i, w := range c.Words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// Segment returns the buffer as an executable segment.
func (c *Code) Segment(name string) memory.Segment {
	data := c.Bytes()
	return memory.Segment{
		Region: memory.Region{
			Name:  name,
			Start: c.Base,
			End:   c.Base.Add(uint64(len(data))),
			Prot:  memory.Protection{Read: true, Execute: true},
		},
		Data: data,
	}
}
