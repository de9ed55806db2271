package shape

import (
	"testing"

	"github.com/zboralski/offscan/internal/testutil"
)

const pc = 0x10000

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		w    uint32
		f    Feature
	}{
		{"ldr", testutil.LDR(0, 1, 8), Load64},
		{"str", testutil.STR(0, 1, 8), Store64},
		{"str32", testutil.STRW(0, 1, 4), Store32},
		{"ldrb", testutil.LDRB(0, 1, 8), LoadByte},
		{"cmp", testutil.CMP(0, 3), Compare},
		{"cmp.reg", 0x6B01001F, CompareReg},
		{"bl", testutil.BL(pc, pc+0x100), Call},
		{"b", testutil.B(pc, pc-0x100), Branch},
		{"b.cond", testutil.BCond(pc, pc+8, 1), CondBranch},
		{"cbz", testutil.CBZ(0, pc, pc+8), CompareBranch},
		{"adrp", testutil.ADRP(0, pc, pc+0x5000), Adrp},
		{"add", testutil.ADD(0, 0, 0x10), AddImm},
		{"mov", testutil.MOV(0, 19), MovReg},
		{"stp", testutil.Prologue(), StorePair},
		{"ret", testutil.RET, Return},
	}
	for _, tt := range tests {
		if !Is(tt.w, tt.f) {
			t.Errorf("%s %#08x not classified as %s", tt.name, tt.w, tt.f)
		}
		if tt.f != Prologue && tt.f != StorePair && Is(tt.w, Prologue) {
			t.Errorf("%s %#08x misclassified as prologue", tt.name, tt.w)
		}
	}
}

func TestIsOperandForms(t *testing.T) {
	tests := []struct {
		name string
		w    uint32
		f    Feature
		want bool
	}{
		{"mov x19, x0", testutil.MOV(19, 0), MovReg, true},
		{"mov w0, w1", testutil.MOVW(0, 1), MovReg, true},
		{"orr x0, x1, x2", 0xAA020020, MovReg, false},
		{"orr x0, xzr, x2, lsl #4", 0xAA0213E0, MovReg, false},
		{"cbz x8", testutil.CBZ(8, pc, pc+8), CompareBranch, true},
		{"cbz w3", 0x34000043, CompareBranch, true},
		{"cbnz x8", 0xB5000048, CompareBranch, false},
		{"ldrb w8, [x0, #8]", testutil.LDRB(8, 0, 8), LoadByte, true},
		{"strb w8, [x0]", testutil.STRB(8, 0, 0), LoadByte, false},
	}
	for _, tt := range tests {
		if got := Is(tt.w, tt.f); got != tt.want {
			t.Errorf("Is(%s %#08x, %s) = %v, want %v", tt.name, tt.w, tt.f, got, tt.want)
		}
	}

	fn := NewFunc(0x1000, testutil.NewCode(0x1000).Emit(testutil.MOV(19, 0), testutil.MOV(20, 1)).Bytes())
	if fn.Count(MovReg) != 2 {
		t.Errorf("Count(mov) = %d, want 2", fn.Count(MovReg))
	}
}

func TestFuncCounts(t *testing.T) {
	code := testutil.NewCode(0x1000).Emit(
		testutil.Prologue(),
		testutil.LDR(0, 0, 8),
		testutil.LDR(1, 0, 16),
		testutil.CMP(1, 0),
		testutil.RET,
		0x000000ff, // udf
	)
	fn := NewFunc(0x1000, append(code.Bytes(), 0xAA)) // trailing partial word dropped
	if fn.Words() != 6 {
		t.Fatalf("Words = %d", fn.Words())
	}
	if !fn.StartsWithPrologue() {
		t.Error("StartsWithPrologue = false")
	}
	if fn.Count(Load64) != 2 || fn.Count(Compare) != 1 || fn.Count(Return) != 1 {
		t.Errorf("counts ldr=%d cmp=%d ret=%d", fn.Count(Load64), fn.Count(Compare), fn.Count(Return))
	}
	if !fn.AtLeast(Min{Load64, 2}, Min{Compare, 1}) {
		t.Error("AtLeast(2 ldr, 1 cmp) = false")
	}
	if fn.AtLeast(Min{Load64, 3}) {
		t.Error("AtLeast(3 ldr) = true")
	}
	if !fn.Has(Load64, Return) || fn.Has(Call) {
		t.Error("Has mismatch")
	}
	if !fn.Any(Call, Compare) || fn.Any(Call, Adrp) {
		t.Error("Any mismatch")
	}
}

func TestReadTruncatesAtRegionEnd(t *testing.T) {
	code := testutil.NewCode(0x1000).Emit(testutil.Prologue(), testutil.LDR(0, 0, 8), testutil.RET)
	img := testutil.NewImage(t, 0x1000, code.Segment("text"))

	fn, err := Read(img, 0x1000, 64)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if fn.Words() != 3 || !fn.Has(Load64) {
		t.Errorf("Read window words=%d", fn.Words())
	}
	if _, err := Read(img, 0x9000, 64); err == nil {
		t.Error("Read unmapped succeeded")
	}
}

func TestEmptyFunc(t *testing.T) {
	var fn Func
	if fn.StartsWithPrologue() || fn.First() != 0 || fn.Count(Load64) != 0 {
		t.Error("zero Func not empty")
	}
}

func TestFeatureString(t *testing.T) {
	if Call.String() != "bl" || Feature(-1).String() != "unknown" {
		t.Errorf("String = %q", Call.String())
	}
}
