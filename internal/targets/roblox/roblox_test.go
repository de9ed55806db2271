package roblox

import (
	"context"
	"testing"

	"github.com/zboralski/offscan/internal/finder"
	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/shape"
	"github.com/zboralski/offscan/internal/testutil"
)

const text = 0x100000000

func TestTaskSchedulerShape(t *testing.T) {
	tgt, ok := finder.DefaultRegistry.Get("TaskScheduler")
	if !ok {
		t.Fatal("TaskScheduler not registered")
	}

	code := testutil.NewCode(text)
	// unrelated function first: no adrp within its window
	code.Emit(testutil.Prologue(), testutil.LDR(0, 0, 0), testutil.RET)
	code.PadTo(text+0x80, testutil.NOP)
	getter := code.PC()
	code.Emit(testutil.Prologue())
	code.EmitFunc(func(pc memory.Address) uint32 { return testutil.ADRP(8, pc, text+0x2000) })
	code.Emit(testutil.LDR(0, 8, 0x18), testutil.RET)
	code.PadTo(text+0x1000, testutil.NOP)

	img := testutil.NewImage(t, text, code.Segment("__text"))
	f := finder.New(finder.Env{Reader: img}, finder.Options{DisableSymbol: true, DisableXRef: true})

	res, err := f.Resolve(context.Background(), tgt, []finder.Range{{Start: text, End: text + 0x1000}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Address != getter || res.Method != finder.MethodHeuristic {
		t.Errorf("got %v, want heuristic at %s", res, getter)
	}
	if res.Category != Category || res.Signature == "" {
		t.Errorf("metadata = %q %q", res.Category, res.Signature)
	}
}

func TestLuauLoadValidate(t *testing.T) {
	tgt, _ := finder.DefaultRegistry.Get("LuauLoad")

	code := testutil.NewCode(text).Emit(
		testutil.Prologue(),
		testutil.LDR(8, 0, 0x10),
		testutil.MOV(2, 1),
	)
	code.EmitFunc(func(pc memory.Address) uint32 { return testutil.BL(pc, text) })
	fn := shape.NewFunc(text, code.Bytes())
	if !tgt.Validate(fn) {
		t.Error("loader-shaped function rejected")
	}

	noArgs := testutil.NewCode(text).Emit(testutil.Prologue(), testutil.LDR(8, 0, 0x10))
	noArgs.EmitFunc(func(pc memory.Address) uint32 { return testutil.BL(pc, text) })
	if tgt.Validate(shape.NewFunc(text, noArgs.Bytes())) {
		t.Error("function without argument setup accepted")
	}
}

func TestPushCClosureShape(t *testing.T) {
	tgt, ok := finder.DefaultRegistry.Get("PushCClosure")
	if !ok {
		t.Fatal("PushCClosure not registered")
	}

	code := testutil.NewCode(text)
	// one register move short of the closure shape
	code.Emit(testutil.Prologue(), testutil.MOV(19, 0),
		testutil.STR(1, 19, 0x10), testutil.STR(2, 19, 0x18), testutil.STR(3, 19, 0x20))
	code.EmitFunc(func(pc memory.Address) uint32 { return testutil.BL(pc, text) })
	code.Emit(testutil.RET)
	code.PadTo(text+0x100, testutil.NOP)
	push := code.PC()
	code.Emit(testutil.Prologue(), testutil.MOV(19, 0), testutil.MOV(20, 1),
		testutil.STR(20, 19, 0x10), testutil.STR(2, 19, 0x18), testutil.STRW(3, 19, 0x20), testutil.STR(4, 19, 0x28))
	code.EmitFunc(func(pc memory.Address) uint32 { return testutil.BL(pc, text) })
	code.Emit(testutil.RET)
	code.PadTo(text+0x1000, testutil.NOP)

	img := testutil.NewImage(t, text, code.Segment("__text"))
	f := finder.New(finder.Env{Reader: img}, finder.Options{DisableSymbol: true, DisableXRef: true})

	res, err := f.Resolve(context.Background(), tgt, []finder.Range{{Start: text, End: text + 0x1000}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Address != push || res.Method != finder.MethodHeuristic {
		t.Errorf("got %v, want heuristic at %s", res, push)
	}
}

func TestGetTypenameValidate(t *testing.T) {
	tgt, _ := finder.DefaultRegistry.Get("GetTypename")

	load := testutil.NewCode(text).Emit(testutil.Prologue(), testutil.LDRB(8, 0, 8), testutil.CMP(8, 5), testutil.RET)
	if !tgt.Validate(shape.NewFunc(text, load.Bytes())) {
		t.Error("tag load rejected")
	}
	store := testutil.NewCode(text).Emit(testutil.Prologue(), testutil.STRB(8, 0, 8), testutil.CMP(8, 5), testutil.RET)
	if tgt.Validate(shape.NewFunc(text, store.Bytes())) {
		t.Error("byte store accepted as tag load")
	}
}
