package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zboralski/offscan/internal/config"
	"github.com/zboralski/offscan/internal/engine"
	"github.com/zboralski/offscan/internal/loader"
	"github.com/zboralski/offscan/internal/output"
	"github.com/zboralski/offscan/internal/trace"
	"github.com/zboralski/offscan/internal/ui/colorize"
	"github.com/zboralski/offscan/internal/ui/report"
)

type scanFlags struct {
	output        string
	format        string
	minConfidence float64
	threads       int
	timeout       time.Duration
	targets       []string
	categories    []string
	exhaustive    bool
	noSymbol      bool
	noXRef        bool
	noHeuristic   bool
	noStructures  bool
	noConstants   bool

	text     string
	markdown string

	quiet     bool
	showTrace bool
}

func newScanCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan <binary>",
		Short: "Resolve targets and write an offsets file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, cfg); err != nil {
				return err
			}
			return runScan(cmd.Context(), args[0], cfg, f)
		},
	}

	bindScanFlags(cmd, &f)
	return cmd
}

func bindScanFlags(cmd *cobra.Command, f *scanFlags) {
	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "offsets file (default from config, offsets.json)")
	fl.StringVarP(&f.format, "format", "f", "", "output format: json or yaml")
	fl.Float64Var(&f.minConfidence, "min-confidence", 0, "minimum confidence to report")
	fl.IntVarP(&f.threads, "threads", "j", 0, "worker threads")
	fl.DurationVar(&f.timeout, "timeout", 0, "abort the run after this long")
	fl.StringSliceVarP(&f.targets, "target", "t", nil, "target names or globs (lua_*)")
	fl.StringSliceVarP(&f.categories, "category", "c", nil, "target categories")
	fl.BoolVar(&f.exhaustive, "exhaustive", false, "run every strategy for every target")
	fl.BoolVar(&f.noSymbol, "no-symbol", false, "disable symbol lookup")
	fl.BoolVar(&f.noXRef, "no-xref", false, "disable string cross-references")
	fl.BoolVar(&f.noHeuristic, "no-heuristic", false, "disable shape heuristics")
	fl.BoolVar(&f.noStructures, "no-structures", false, "skip structure member offsets")
	fl.BoolVar(&f.noConstants, "no-constants", false, "skip constant confirmation")
	fl.StringVar(&f.text, "text", "", "also write a plain text report to this file")
	fl.StringVar(&f.markdown, "markdown", "", "also write a markdown report to this file")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "summary only")
	fl.BoolVar(&f.showTrace, "trace", false, "print every strategy attempt")
}

// apply overrides cfg with the flags set on the command line.
func (f *scanFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fl := cmd.Flags()
	if fl.Changed("output") {
		cfg.Output = f.output
		if !fl.Changed("format") {
			cfg.Format = output.Format(f.output)
		}
	}
	if fl.Changed("format") {
		cfg.Format = f.format
	}
	if fl.Changed("min-confidence") {
		cfg.MinConfidence = f.minConfidence
	}
	if fl.Changed("threads") {
		cfg.Threads = f.threads
	}
	if fl.Changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if fl.Changed("target") {
		cfg.Targets = f.targets
	}
	if fl.Changed("category") {
		cfg.Categories = f.categories
	}
	if f.exhaustive {
		cfg.Exhaustive = true
	}
	if f.noSymbol {
		cfg.Strategies.Symbol = false
	}
	if f.noXRef {
		cfg.Strategies.XRef = false
	}
	if f.noHeuristic {
		cfg.Strategies.Heuristic = false
	}
	if f.noStructures {
		cfg.Catalog.Structures = false
	}
	if f.noConstants {
		cfg.Catalog.Constants = false
	}
	return cfg.Validate()
}

func runScan(ctx context.Context, path string, cfg *config.Config, f scanFlags) error {
	info, err := loader.Open(path)
	if err != nil {
		return err
	}

	catalog := cfg.Select()
	if len(catalog.Targets)+len(catalog.Fields)+len(catalog.Constants) == 0 {
		return fmt.Errorf("no targets match names %v categories %v", cfg.Targets, cfg.Categories)
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if !f.quiet {
		printHeader(info, catalog)
	}

	eng := engine.New(info.Image, info.Symbols, cfg.Engine())
	rep, err := eng.RunCatalog(ctx, catalog)
	if err != nil {
		return err
	}

	if f.showTrace {
		printTrace(eng.Trace().Events())
	}
	if !f.quiet {
		if reported := rep.Reported(); len(reported) > 0 {
			fmt.Println(report.Functions(reported))
		}
		if len(rep.Results.Classes) > 0 {
			fmt.Println(report.Classes(rep.Results.Classes))
		}
		if offsets := rep.ReportedOffsets(); len(offsets) > 0 {
			fmt.Println(report.Structures(offsets))
		}
		if found := rep.ReportedConstants(); len(found) > 0 {
			fmt.Println(report.Constants(found))
		}
		if len(rep.Unresolved) > 0 {
			fmt.Println(report.Unresolved(rep))
		}
	}
	fmt.Print(report.Summary(rep))

	file := output.FromReport(rep, output.Binary{Path: info.Path, Format: string(info.Format)})
	if err := output.WriteFile(cfg.Output, file, cfg.Format); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", colorize.Detail("wrote"), cfg.Output)

	for _, doc := range []struct{ path, format string }{
		{f.text, report.FormatText},
		{f.markdown, report.FormatMarkdown},
	} {
		if doc.path == "" {
			continue
		}
		if err := writeDocument(doc.path, file, doc.format); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", colorize.Detail("wrote"), doc.path)
	}
	return nil
}

func writeDocument(path string, file *output.File, format string) error {
	body, err := report.Document(file, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write %s report: %w", format, err)
	}
	return nil
}

func printHeader(info *loader.Info, catalog engine.Catalog) {
	binary := info.Path
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, binary); err == nil && !strings.HasPrefix(rel, "..") {
			binary = rel
		}
	}

	fmt.Println()
	fmt.Printf("%s offscan ─ ARM64 offset resolver\n", colorize.Header("▶"))
	fmt.Printf("  %s %s %s\n", colorize.Detail("Loading:"), binary, colorize.Detail("("+string(info.Format)+")"))
	fmt.Printf("  %s %s  %s %s\n",
		colorize.Detail("Base:"), colorize.Address(uint64(info.Base)),
		colorize.Detail("End:"), colorize.Address(uint64(info.End)))
	fmt.Printf("  %s %s  %s %s  %s %s\n",
		colorize.Detail("Symbols:"), colorize.FuncName(fmt.Sprint(info.Symbols.Len())),
		colorize.Detail("Imports:"), colorize.FuncName(fmt.Sprint(info.Imports)),
		colorize.Detail("Targets:"), colorize.FuncName(fmt.Sprint(len(catalog.Targets))))
	if n := len(catalog.Fields) + len(catalog.Constants); n > 0 {
		fmt.Printf("  %s %s  %s %s\n",
			colorize.Detail("Fields:"), colorize.FuncName(fmt.Sprint(len(catalog.Fields))),
			colorize.Detail("Constants:"), colorize.FuncName(fmt.Sprint(len(catalog.Constants))))
	}
	fmt.Println()
}

// printTrace prints one line per event grouped by target.
func printTrace(events []*trace.Event) {
	last := ""
	for _, e := range events {
		if e.Target != last {
			if last != "" {
				fmt.Println()
			}
			fmt.Println(colorize.FuncName(e.Target))
			last = e.Target
		}
		addr := strings.Repeat(" ", 8)
		if e.Addr != 0 {
			addr = colorize.Address(e.Addr)
		}
		detail := e.Detail
		for _, k := range sortedKeys(e.Annotations) {
			detail += " " + k + "=" + e.Annotations[k]
		}
		fmt.Printf("  %s  %s %s\n", addr, colorize.Tag(strings.Join(e.Tags.Strings(), " ")), colorize.Detail(strings.TrimSpace(detail)))
	}
	if last != "" {
		fmt.Println()
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
