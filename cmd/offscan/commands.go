package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zboralski/offscan/internal/finder"
	"github.com/zboralski/offscan/internal/loader"
	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/output"
	"github.com/zboralski/offscan/internal/symbol"
	"github.com/zboralski/offscan/internal/ui/colorize"
	"github.com/zboralski/offscan/internal/ui/report"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <binary>",
		Short: "Show regions, symbols and which targets are exported",
		Args:  cobra.ExactArgs(1),
		RunE:  showInfo,
	}
}

func showInfo(cmd *cobra.Command, args []string) error {
	info, err := loader.Open(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Binary:  %s (%s)\n", filepath.Base(info.Path), info.Format)
	fmt.Printf("Base:    %s\n", info.Base)
	fmt.Printf("End:     %s\n", info.End)
	fmt.Printf("Entry:   %s\n", info.Entry)

	kinds := make(map[symbol.Kind]int)
	for _, s := range info.Symbols.All() {
		kinds[s.Kind]++
	}
	fmt.Printf("Symbols: %d (%d functions, %d objects, %d imports)\n",
		info.Symbols.Len(), kinds[symbol.KindFunc], kinds[symbol.KindObject], kinds[symbol.KindImport])
	fmt.Printf("Classes: %d\n\n", len(info.Symbols.Classes()))

	regions, err := info.Image.Regions()
	if err != nil {
		return err
	}
	fmt.Println("Regions:")
	for _, r := range regions {
		fmt.Printf("  %s-%s %s %8d %s\n",
			colorize.Address(uint64(r.Start)), colorize.Address(uint64(r.End)), r.Prot, r.Size(), r.Name)
	}

	var exported []string
	for _, t := range finder.DefaultRegistry.List() {
		for _, name := range t.SymbolNames() {
			if addr, ok := info.Symbols.Resolve(name); ok {
				exported = append(exported, fmt.Sprintf("  %s %s", colorize.Address(uint64(addr)), colorize.FuncName(t.Name)))
				break
			}
		}
	}
	if len(exported) > 0 {
		fmt.Printf("\nExported targets: %d/%d\n", len(exported), finder.DefaultRegistry.Count())
		for _, line := range exported {
			fmt.Println(line)
		}
	}
	return nil
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Compare two offsets files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := output.ReadFile(args[0])
			if err != nil {
				return err
			}
			after, err := output.ReadFile(args[1])
			if err != nil {
				return err
			}
			d := output.Compare(before, after)
			if d.Empty() {
				fmt.Printf("no changes (%d entries)\n", len(d.Unchanged))
				return nil
			}
			fmt.Print(report.Diff(d))
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <offsets> <binary>",
		Short: "Check that every offset is a function start in the binary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := output.ReadFile(args[0])
			if err != nil {
				return err
			}
			info, err := loader.Open(args[1])
			if err != nil {
				return err
			}
			if base := memory.Address(file.Binary.Base); base != 0 && base != info.Base {
				fmt.Printf("%s offsets base %s, binary base %s\n", colorize.Error("warning:"), base, info.Base)
			}
			issues, err := output.Verify(file, info.Image)
			if err != nil {
				return err
			}
			if len(issues) > 0 {
				fmt.Println(report.Issues(issues))
				return fmt.Errorf("%w: %d of %d offsets", finder.ErrValidationFailed, len(issues), len(file.Functions))
			}
			fmt.Printf("%d offsets valid\n", len(file.Functions))
			return nil
		},
	}
}

func newTargetsCmd() *cobra.Command {
	var categories []string
	cmd := &cobra.Command{
		Use:   "targets [name|glob ...]",
		Short: "List registered targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := finder.DefaultRegistry.Select(args, categories)
			fmt.Println(report.Targets(targets))
			fmt.Printf("%d targets in %v\n", len(targets), finder.DefaultRegistry.Categories())
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&categories, "category", "c", nil, "target categories")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <offsets>",
		Short: "Summarize an offsets file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := output.ReadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s (%s) base %s\n", colorize.Detail("binary"), file.Binary.Path, file.Binary.Format,
				memory.Address(file.Binary.Base))
			fmt.Print(report.Stats(output.Summarize(file)))
			return nil
		},
	}
}
