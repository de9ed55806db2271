package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/zboralski/offscan/internal/config"
	"github.com/zboralski/offscan/internal/output"
	"github.com/zboralski/offscan/internal/symbol"
	"github.com/zboralski/offscan/internal/testutil"
)

func TestScanFlagsOverrideConfig(t *testing.T) {
	cmd := &cobra.Command{}
	var f scanFlags
	bindScanFlags(cmd, &f)
	if err := cmd.ParseFlags([]string{"-o", "out.yaml", "-j", "2", "-c", "lua_api", "--no-heuristic"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	if err := f.apply(cmd, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Output != "out.yaml" || cfg.Format != config.FormatYAML {
		t.Errorf("output = %s (%s)", cfg.Output, cfg.Format)
	}
	if cfg.Threads != 2 || cfg.Strategies.Heuristic || !cfg.Strategies.Symbol {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Categories) != 1 || cfg.Categories[0] != "lua_api" {
		t.Errorf("categories = %v", cfg.Categories)
	}
	// untouched flags keep config values
	if cfg.MinConfidence != config.Default().MinConfidence {
		t.Errorf("min confidence = %v", cfg.MinConfidence)
	}
}

func TestScanFlagsCatalog(t *testing.T) {
	cmd := &cobra.Command{}
	var f scanFlags
	bindScanFlags(cmd, &f)
	if err := cmd.ParseFlags([]string{"--no-constants", "--markdown", "report.md"}); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	if err := f.apply(cmd, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Catalog.Constants || !cfg.Catalog.Structures {
		t.Errorf("catalog = %+v", cfg.Catalog)
	}
	if f.markdown != "report.md" || f.text != "" {
		t.Errorf("reports = %q %q", f.text, f.markdown)
	}
}

func TestStatsCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.json")
	file := &output.File{
		Version:   output.Version,
		Functions: map[string]output.Function{"lua_gettop": {Address: 0x40001000, Confidence: 0.99, Method: "symbol"}},
		Structures: map[string]map[string]output.Member{
			"lua_State": {"top": {Offset: 0x10, Confidence: 0.85, Method: "pattern"}},
		},
	}
	if err := output.WriteFile(path, file, "json"); err != nil {
		t.Fatal(err)
	}
	cmd := newStatsCmd()
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	cmd = newStatsCmd()
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.json")})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestScanFlagsRejectInvalid(t *testing.T) {
	cmd := &cobra.Command{}
	var f scanFlags
	bindScanFlags(cmd, &f)
	if err := cmd.ParseFlags([]string{"--min-confidence", "2"}); err != nil {
		t.Fatal(err)
	}
	if err := f.apply(cmd, config.Default()); err == nil {
		t.Error("expected validation error")
	}
}

func TestResolveAddress(t *testing.T) {
	syms := symbol.NewTable(symbol.Symbol{Name: "lua_pcallk", Address: 0x40002000, Kind: symbol.KindFunc})

	tests := []struct {
		in   string
		want uint64
	}{
		{"lua_pcallk", 0x40002000},
		{"lua_pcall", 0x40002000}, // registry alias
		{"0x40001000", 0x40001000},
		{"40001000", 0x40001000},
	}
	for _, tt := range tests {
		got, err := resolveAddress(syms, tt.in)
		if err != nil || uint64(got) != tt.want {
			t.Errorf("resolveAddress(%q) = %s, %v; want %#x", tt.in, got, err, tt.want)
		}
	}
	if _, err := resolveAddress(syms, "nope"); err == nil {
		t.Error("expected error for unknown name")
	}
}

func TestFormatLine(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	code := testutil.NewCode(0).Emit(testutil.Prologue()).Bytes()
	line := formatLine(0x40001000, code, disasm(code), "lua_gettop", []string{"call lua_settop"})
	for _, want := range []string{"40001000", "A9017BFD", "STP", "#prologue", "call lua_settop", "lua_gettop"} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %q in %q", want, line)
		}
	}

	ret := testutil.NewCode(0).Emit(testutil.RET).Bytes()
	if dis := disasm(ret); !isBlockEnd(dis) {
		t.Errorf("%q not a block end", dis)
	}
	if got := instructionTags(testutil.RET, "RET"); len(got) != 1 || got[0] != "#ret" {
		t.Errorf("tags = %v", got)
	}
	if got := disasm([]byte{1, 2}); got != "???" {
		t.Errorf("short disasm = %q", got)
	}
}
