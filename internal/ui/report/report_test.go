package report

import (
	"strings"
	"testing"
	"time"

	"github.com/zboralski/offscan/internal/constants"
	"github.com/zboralski/offscan/internal/engine"
	"github.com/zboralski/offscan/internal/finder"
	"github.com/zboralski/offscan/internal/layout"
	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/output"
)

func sample() *engine.Report {
	rs := finder.NewResults()
	rs.AddFunction(finder.Result{Name: "lua_gettop", Address: 0x40001000, Confidence: 0.99, Method: finder.MethodSymbol, Category: "lua_api"})
	rs.AddFunction(finder.Result{Name: "LuauLoad", Address: 0x40002000, Confidence: 0.85, Method: finder.MethodPattern, Category: "roblox"})
	rs.AddClass("Instance", 0x40100010)
	return &engine.Report{
		Results:    rs,
		Targets:    3,
		Unresolved: map[string]error{"lua_pcall": finder.ErrNotFound},
		Duration:   1500 * time.Millisecond,
		Fields: &layout.Batch{
			Offsets: []layout.Offset{{
				Struct: "lua_State", Field: "top", Offset: 0x10, Size: 8, Evidence: 0x40001004,
				Votes: 2, Candidates: 3, Confidence: 0.70, Method: finder.MethodHeuristic,
			}},
			Unresolved: map[string]error{"lua_State.base": finder.ErrNotFound},
		},
		Constants: &constants.Batch{
			Found: []constants.Found{
				{Name: "LUA_TNIL", Value: 0, Address: 0x40200000, Confidence: 0.70, Method: finder.MethodHeuristic},
				{Name: "Workspace", Kind: constants.String, Text: "Workspace", Address: 0x40200100, Refs: 4, Confidence: 0.80, Method: finder.MethodXRef},
			},
			Missing: []string{"LUA_TTHREAD"},
		},
	}
}

func TestFunctions(t *testing.T) {
	out := Functions(sample().Results.Sorted())
	for _, want := range []string{"NAME", "lua_gettop", "0x40001000", "0.99", "pattern", "roblox"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
	if strings.Index(out, "lua_gettop") > strings.Index(out, "LuauLoad") {
		t.Error("rows not in input order")
	}
}

func TestSummary(t *testing.T) {
	r := sample()
	out := Summary(r)
	if !strings.Contains(out, "resolved 2/3 targets") {
		t.Errorf("summary:\n%s", out)
	}
	if !strings.Contains(out, "symbol 1") || !strings.Contains(out, "unresolved 1") {
		t.Errorf("summary counts:\n%s", out)
	}
	if !strings.Contains(Unresolved(r), "lua_pcall") {
		t.Error("unresolved table missing target")
	}
	if !strings.Contains(Classes(r.Results.Classes), "Instance") {
		t.Error("classes table missing Instance")
	}
	if !strings.Contains(out, "offsets 1/2  constants 2/3") {
		t.Errorf("catalog counts:\n%s", out)
	}
}

func TestStructuresAndConstants(t *testing.T) {
	r := sample()
	out := Structures(r.Fields.Offsets)
	for _, want := range []string{"MEMBER", "lua_State.top", "0x10", "2/3", "0x40001004", "heuristic"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
	out = Constants(r.Constants.Found)
	for _, want := range []string{"LUA_TNIL", `"Workspace"`, "0x40200100", "xref"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
}

func TestDocument(t *testing.T) {
	f := output.FromReport(sample(), output.Binary{Path: "libroblox.so", Format: "elf"})

	md, err := Document(f, FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"# offscan report",
		"- **Binary:** libroblox.so (elf)",
		"## Functions (2)",
		"## Structures (1)",
		"## Constants (2)",
		"## Unresolved (2)",
		"- `lua_State.base`",
		"| lua_gettop ",
		"|---",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q in\n%s", want, md)
		}
	}
	if strings.Contains(md, "\x1b[") {
		t.Error("markdown contains escape sequences")
	}

	txt, err := Document(f, FormatText)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"offscan report\n==============", "Functions (2)\n-------------", "lua_State.top", "  lua_pcall"} {
		if !strings.Contains(txt, want) {
			t.Errorf("text missing %q in\n%s", want, txt)
		}
	}
	if strings.Contains(txt, "## ") {
		t.Error("text report has markdown headings")
	}

	if _, err := Document(f, "html"); err == nil {
		t.Error("expected unknown format error")
	}
}

func TestStats(t *testing.T) {
	s := output.Summarize(output.FromReport(sample(), output.Binary{}))
	out := Stats(s)
	for _, want := range []string{"functions", "members", "heuristic 2", "symbol 1", "xref 1", "1 of 5 entries at confidence 0.90"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
}

func TestDiff(t *testing.T) {
	d := &output.Diff{
		Changes: []output.Change{
			{Name: "a", Kind: output.Moved, Old: 0x1000, New: 0x1040},
			{Name: "b", Kind: output.Added, New: memory.Address(0x2000)},
		},
		Unchanged: []string{"c"},
	}
	out := Diff(d)
	for _, want := range []string{"moved", "+0x40", "added", "1 added", "1 unchanged"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
}

func TestTargetsAndIssues(t *testing.T) {
	out := Targets([]*finder.Target{{Name: "lua_gettop", Category: "lua_api", Patterns: []string{"F9"}, Signature: "int lua_gettop(lua_State *L)"}})
	if !strings.Contains(out, "lua_gettop") || !strings.Contains(out, "lua_State") {
		t.Errorf("targets:\n%s", out)
	}
	out = Issues([]output.Issue{{Name: "x", Address: 0x1004, Reason: "inside function at 0x1000"}})
	if !strings.Contains(out, "0x1004") || !strings.Contains(out, "inside function") {
		t.Errorf("issues:\n%s", out)
	}
}
