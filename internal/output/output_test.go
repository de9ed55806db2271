package output

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zboralski/offscan/internal/constants"
	"github.com/zboralski/offscan/internal/engine"
	"github.com/zboralski/offscan/internal/finder"
	"github.com/zboralski/offscan/internal/layout"
)

func sampleReport() *engine.Report {
	rs := finder.NewResults()
	rs.AddFunction(finder.Result{
		Name: "lua_gettop", Address: 0x40001000, Confidence: finder.ConfidenceSymbol,
		Method: finder.MethodSymbol, Category: "lua_api", Signature: "int lua_gettop(lua_State *L)",
	})
	rs.AddFunction(finder.Result{
		Name: "TaskScheduler", Address: 0x40002000, Confidence: finder.ConfidenceHeuristic,
		Method: finder.MethodHeuristic, Category: "roblox",
	})
	rs.AddClass("Instance", 0x40100010)
	return &engine.Report{
		Base:       0x40000000,
		Results:    rs,
		Unresolved: map[string]error{"lua_pcall": finder.ErrNotFound, "lua_call": finder.ErrNotFound},
		Fields: &layout.Batch{
			Offsets: []layout.Offset{{
				Struct: "lua_State", Field: "top", Offset: 0x10, Size: 8, Evidence: 0x40001004,
				Votes: 3, Candidates: 3, Confidence: finder.ConfidencePattern, Method: finder.MethodPattern,
			}},
			Unresolved: map[string]error{"lua_State.base": finder.ErrNotFound},
		},
		Constants: &constants.Batch{
			Found: []constants.Found{
				{Name: "LUA_TSTRING", Category: "lua_api", Value: 5, Address: 0x40200000, Confidence: finder.ConfidenceHeuristic, Method: finder.MethodHeuristic},
				{Name: "Workspace", Category: "roblox", Kind: constants.String, Text: "Workspace", Address: 0x40200100, Refs: 2, Confidence: finder.ConfidenceXRef, Method: finder.MethodXRef},
			},
		},
	}
}

func TestFromReport(t *testing.T) {
	f := FromReport(sampleReport(), Binary{Path: "libroblox.so", Format: "elf"})
	if f.Version != Version || f.RunID == "" || f.GeneratedAt.IsZero() {
		t.Errorf("header = %+v", f)
	}
	if f.Binary.Base != 0x40000000 {
		t.Errorf("base = %#x", uint64(f.Binary.Base))
	}
	got := f.Functions["lua_gettop"]
	if got.Address != 0x40001000 || got.Method != "symbol" || got.Category != "lua_api" {
		t.Errorf("lua_gettop = %+v", got)
	}
	if f.Classes["Instance"] != 0x40100010 {
		t.Errorf("classes = %v", f.Classes)
	}
	if strings.Join(f.Unresolved, ",") != "lua_State.base,lua_call,lua_pcall" {
		t.Errorf("unresolved = %v", f.Unresolved)
	}
	if strings.Join(f.Names(), ",") != "TaskScheduler,lua_gettop" {
		t.Errorf("names = %v", f.Names())
	}
	top := f.Structures["lua_State"]["top"]
	if top.Offset != 0x10 || top.Votes != "3/3" || top.Evidence != 0x40001004 || top.Method != "pattern" {
		t.Errorf("lua_State.top = %+v", top)
	}
	if strings.Join(f.Members(), ",") != "lua_State.top" {
		t.Errorf("members = %v", f.Members())
	}
	ts := f.Constants["LUA_TSTRING"]
	if ts.Value == nil || *ts.Value != 5 || ts.Text != "" {
		t.Errorf("LUA_TSTRING = %+v", ts)
	}
	ws := f.Constants["Workspace"]
	if ws.Value != nil || ws.Text != "Workspace" || ws.Refs != 2 || ws.Method != "xref" {
		t.Errorf("Workspace = %+v", ws)
	}
}

func TestHex(t *testing.T) {
	b, err := Hex(0x1a0).MarshalText()
	if err != nil || string(b) != "0x1a0" {
		t.Fatalf("marshal = %s, %v", b, err)
	}
	var h Hex
	for in, want := range map[string]Hex{"0x1a0": 0x1a0, "16": 16, "0": 0} {
		if err := h.UnmarshalText([]byte(in)); err != nil || h != want {
			t.Errorf("unmarshal %q = %#x, %v", in, uint64(h), err)
		}
	}
	if err := h.UnmarshalText([]byte("0xzz")); err == nil {
		t.Error("expected parse error")
	}
}

func TestWriteHexAddresses(t *testing.T) {
	f := FromReport(sampleReport(), Binary{Path: "lib.so", Format: "elf"})

	var js bytes.Buffer
	if err := Write(&js, f, "json"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(js.String(), `"address": "0x40001000"`) {
		t.Errorf("json addresses not hex strings:\n%s", js.String())
	}

	for _, format := range []string{"json", "yaml"} {
		var buf bytes.Buffer
		if err := Write(&buf, f, format); err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		back, err := Read(&buf, format)
		if err != nil {
			t.Fatalf("%s: read: %v", format, err)
		}
		if back.RunID != f.RunID || back.Binary.Base != f.Binary.Base {
			t.Errorf("%s: header = %+v", format, back)
		}
		if back.Functions["TaskScheduler"] != f.Functions["TaskScheduler"] {
			t.Errorf("%s: TaskScheduler = %+v", format, back.Functions["TaskScheduler"])
		}
		if back.Classes["Instance"] != 0x40100010 {
			t.Errorf("%s: classes = %v", format, back.Classes)
		}
		if back.Structures["lua_State"]["top"] != f.Structures["lua_State"]["top"] {
			t.Errorf("%s: lua_State.top = %+v", format, back.Structures["lua_State"]["top"])
		}
		if c := back.Constants["LUA_TSTRING"]; c.Value == nil || *c.Value != 5 {
			t.Errorf("%s: LUA_TSTRING = %+v", format, c)
		}
	}
	if !strings.Contains(js.String(), `"offset": "0x10"`) {
		t.Errorf("json offsets not hex strings:\n%s", js.String())
	}

	if err := Write(&js, f, "xml"); err == nil {
		t.Error("expected unknown format error")
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.yaml")
	f := FromReport(sampleReport(), Binary{})
	if err := WriteFile(path, f, Format(path)); err != nil {
		t.Fatal(err)
	}
	back, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Functions) != 2 {
		t.Errorf("functions = %v", back.Functions)
	}
}

func TestFormat(t *testing.T) {
	for path, want := range map[string]string{
		"offsets.json": "json",
		"out.YML":      "yaml",
		"a.yaml":       "yaml",
		"noext":        "json",
	} {
		if got := Format(path); got != want {
			t.Errorf("Format(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestCompare(t *testing.T) {
	old := &File{
		Functions: map[string]Function{
			"a": {Address: 0x1000},
			"b": {Address: 0x2000},
			"c": {Address: 0x3000},
		},
		Classes: map[string]Addr{"Instance": 0x9000},
	}
	cur := &File{
		Functions: map[string]Function{
			"a": {Address: 0x1000},
			"b": {Address: 0x2040},
			"d": {Address: 0x4000},
		},
		Classes: map[string]Addr{"Instance": 0x9000, "Part": 0x9100},
	}

	d := Compare(old, cur)
	type row struct {
		name string
		sec  Section
		kind ChangeKind
	}
	want := []row{
		{"b", SectionFunction, Moved},
		{"c", SectionFunction, Removed},
		{"d", SectionFunction, Added},
		{"Part", SectionClass, Added},
	}
	if len(d.Changes) != len(want) {
		t.Fatalf("changes = %+v", d.Changes)
	}
	for i, w := range want {
		c := d.Changes[i]
		if c.Name != w.name || c.Section != w.sec || c.Kind != w.kind {
			t.Errorf("change %d = %+v, want %+v", i, c, w)
		}
	}
	if delta := d.Changes[0].Delta(); delta != 0x40 {
		t.Errorf("delta = %#x", delta)
	}
	if strings.Join(d.Unchanged, ",") != "Instance,a" {
		t.Errorf("unchanged = %v", d.Unchanged)
	}
	if d.Count(Added) != 2 || d.Empty() {
		t.Errorf("added = %d", d.Count(Added))
	}
	if !Compare(old, old).Empty() {
		t.Error("self diff not empty")
	}
}

func TestCompareMembers(t *testing.T) {
	old := &File{Structures: map[string]map[string]Member{
		"lua_State": {"top": {Offset: 0x10}, "base": {Offset: 0x18}},
	}}
	cur := &File{Structures: map[string]map[string]Member{
		"lua_State": {"top": {Offset: 0x10}, "base": {Offset: 0x20}},
	}}
	d := Compare(old, cur)
	if len(d.Changes) != 1 {
		t.Fatalf("changes = %+v", d.Changes)
	}
	c := d.Changes[0]
	if c.Name != "lua_State.base" || c.Section != SectionMember || c.Kind != Moved || c.Delta() != 8 {
		t.Errorf("change = %+v", c)
	}
	if strings.Join(d.Unchanged, ",") != "lua_State.top" {
		t.Errorf("unchanged = %v", d.Unchanged)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(FromReport(sampleReport(), Binary{}))
	if s.Functions != 2 || s.Classes != 1 || s.Structures != 1 || s.Members != 1 || s.Constants != 2 || s.Unresolved != 3 {
		t.Errorf("stats = %+v", s)
	}
	if s.Total() != 6 {
		t.Errorf("total = %d", s.Total())
	}
	// lua_gettop is the only entry at or above HighConfidence
	if s.High != 1 {
		t.Errorf("high = %d", s.High)
	}
	if s.ByMethod["heuristic"] != 2 || s.ByMethod["pattern"] != 1 || s.ByMethod["xref"] != 1 {
		t.Errorf("by method = %v", s.ByMethod)
	}
	if strings.Join(s.CategoryNames(), ",") != "lua_api,roblox" || s.Categories["roblox"] != 2 {
		t.Errorf("categories = %v", s.Categories)
	}
}
