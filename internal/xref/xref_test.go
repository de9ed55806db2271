package xref

import (
	"context"
	"errors"
	"testing"

	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/testutil"
)

func TestGraphAdjacency(t *testing.T) {
	g := NewGraph()
	g.AddNode(Node{Address: 0x100, Kind: NodeFunction})
	g.AddNode(Node{Address: 0x100, Name: "main", Kind: NodeData})
	g.AddEdge(Edge{From: 0x104, To: 0x200, Kind: EdgeCall})
	g.AddEdge(Edge{From: 0x108, To: 0x200, Kind: EdgeJump})
	g.AddEdge(Edge{From: 0x10c, To: 0x300, Kind: EdgeString})

	if n, ok := g.Node(0x100); !ok || n.Name != "main" || n.Kind != NodeFunction {
		t.Errorf("Node(0x100) = %+v, %v", n, ok)
	}
	if refs := g.ReferencesTo(0x200); len(refs) != 2 {
		t.Errorf("ReferencesTo(0x200) = %v", refs)
	}
	if refs := g.ReferencesFrom(0x10c); len(refs) != 1 || refs[0].To != 0x300 {
		t.Errorf("ReferencesFrom(0x10c) = %v", refs)
	}
	if callers := g.Callers(0x300); len(callers) != 0 {
		t.Errorf("string ref counted as caller: %v", callers)
	}
	if callers := g.Callers(0x200); len(callers) != 2 {
		t.Errorf("Callers(0x200) = %v", callers)
	}
	// Edges may target addresses with no node.
	if _, ok := g.Node(0x200); ok {
		t.Error("edge created a node")
	}
	if g.EdgeCount() != 3 || g.NodeCount() != 1 {
		t.Errorf("counts = %d edges, %d nodes", g.EdgeCount(), g.NodeCount())
	}
	if st := g.Stats(); st[EdgeCall] != 1 || st[EdgeString] != 1 {
		t.Errorf("Stats = %v", st)
	}
}

func TestGraphSealed(t *testing.T) {
	g := NewGraph()
	g.Seal()
	if err := g.AddEdge(Edge{From: 1, To: 2}); !errors.Is(err, ErrSealed) {
		t.Errorf("AddEdge after Seal = %v", err)
	}
	if err := g.AddNode(Node{Address: 1}); !errors.Is(err, ErrSealed) {
		t.Errorf("AddNode after Seal = %v", err)
	}
}

const (
	textBase = 0x100000
	dataBase = 0x200000
)

func buildImage(t *testing.T) (*memory.Image, map[string]memory.Address) {
	t.Helper()
	strs, addrs := testutil.Strings(dataBase, "padding", "attempt to call a nil value", "stack overflow")

	code := testutil.NewCode(textBase)
	// callee at textBase
	code.Emit(testutil.Prologue(), testutil.RET)
	// caller at textBase+8
	code.Emit(testutil.Prologue())
	code.EmitFunc(func(pc memory.Address) uint32 { return testutil.BL(pc, textBase) })
	code.EmitFunc(func(pc memory.Address) uint32 { return testutil.ADRP(0, pc, addrs["attempt to call a nil value"]) })
	code.Emit(testutil.ADD(0, 0, uint32(addrs["attempt to call a nil value"]&0xfff)))
	code.EmitFunc(func(pc memory.Address) uint32 { return testutil.ADRP(1, pc, dataBase) })
	code.Emit(testutil.LDR(2, 1, 0x10))
	code.EmitFunc(func(pc memory.Address) uint32 { return testutil.B(pc, textBase) })
	code.Emit(testutil.RET)

	img := testutil.NewImage(t, textBase,
		code.Segment("__text"),
		testutil.DataSegment("__cstring", dataBase, strs),
	)
	return img, addrs
}

func TestBuilder(t *testing.T) {
	img, addrs := buildImage(t)
	b := NewBuilder(img)
	b.Names = func(addr memory.Address) string {
		if addr == textBase {
			return "callee"
		}
		return ""
	}
	g, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !g.Sealed() {
		t.Error("graph not sealed")
	}

	calls := g.ReferencesTo(textBase)
	if len(calls) != 2 {
		t.Fatalf("ReferencesTo(callee) = %v", calls)
	}
	if calls[0].Kind != EdgeCall || calls[0].From != textBase+12 {
		t.Errorf("call edge = %+v", calls[0])
	}
	if calls[1].Kind != EdgeJump {
		t.Errorf("jump edge = %+v", calls[1])
	}
	if n, _ := g.Node(textBase); n.Name != "callee" || n.Kind != NodeFunction {
		t.Errorf("callee node = %+v", n)
	}

	str := addrs["attempt to call a nil value"]
	refs := g.ReferencesTo(str)
	if len(refs) != 1 || refs[0].Kind != EdgeString || refs[0].From != textBase+20 {
		t.Fatalf("ReferencesTo(string) = %v", refs)
	}
	if n, _ := g.Node(str); n.Kind != NodeString || n.Name != "attempt to call a nil value" {
		t.Errorf("string node = %+v", n)
	}

	data := g.ReferencesTo(dataBase + 0x10)
	if len(data) != 1 || data[0].Kind != EdgeData {
		t.Errorf("ReferencesTo(data) = %v", data)
	}
}

func TestBuilderUnreadable(t *testing.T) {
	g, err := NewBuilder(failingReader{}).Build(context.Background())
	if err == nil {
		t.Fatalf("Build = %v, want error", g)
	}
}

func TestFindString(t *testing.T) {
	img, addrs := buildImage(t)

	got, err := FindString(img, "stack overflow")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != addrs["stack overflow"] {
		t.Errorf("FindString = %v, want %s", got, addrs["stack overflow"])
	}

	// A hit inside a literal resolves to the literal start.
	got, _ = FindString(img, "nil value")
	if len(got) != 1 || got[0] != addrs["attempt to call a nil value"] {
		t.Errorf("FindString(substring) = %v", got)
	}

	got, _ = FindString(img, "not present")
	if len(got) != 0 {
		t.Errorf("FindString(missing) = %v", got)
	}
}

type failingReader struct{}

func (failingReader) ReadBytes(memory.Address, int) ([]byte, error) { return nil, errors.New("io") }
func (failingReader) ReadU8(memory.Address) (uint8, error)          { return 0, errors.New("io") }
func (failingReader) ReadU16(memory.Address) (uint16, error)        { return 0, errors.New("io") }
func (failingReader) ReadU32(memory.Address) (uint32, error)        { return 0, errors.New("io") }
func (failingReader) ReadU64(memory.Address) (uint64, error)        { return 0, errors.New("io") }
func (failingReader) BaseAddress() memory.Address                   { return 0 }
func (failingReader) Regions() ([]memory.Region, error) {
	return []memory.Region{{Name: "text", Start: 0, End: 0x100, Prot: memory.Protection{Read: true, Execute: true}}}, nil
}

func TestStringIndex(t *testing.T) {
	img, addrs := buildImage(t)
	idx := NewStringIndex(img)
	for i := 0; i < 2; i++ {
		got, err := idx.Find("stack overflow")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0] != addrs["stack overflow"] {
			t.Errorf("Find = %v", got)
		}
	}
}
