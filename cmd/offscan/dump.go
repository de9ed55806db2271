package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/arch/arm64/arm64asm"

	"github.com/zboralski/offscan/internal/arm64"
	"github.com/zboralski/offscan/internal/finder"
	"github.com/zboralski/offscan/internal/loader"
	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/symbol"
	"github.com/zboralski/offscan/internal/ui/colorize"
	"github.com/zboralski/offscan/internal/xref"
)

func newDumpCmd() *cobra.Command {
	var (
		count    int
		function bool
		xrefs    bool
	)
	cmd := &cobra.Command{
		Use:   "dump <binary> <address|symbol>",
		Short: "Disassemble instructions at an address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := loader.Open(args[0])
			if err != nil {
				return err
			}
			addr, err := resolveAddress(info.Symbols, args[1])
			if err != nil {
				return err
			}
			if function {
				addr = arm64.NewLocator(info.Image, info.Base).FunctionStart(addr)
			}

			var g *xref.Graph
			if xrefs {
				b := xref.NewBuilder(info.Image)
				b.Names = info.Symbols.NameAt
				if g, err = b.Build(cmd.Context()); err != nil {
					return err
				}
				printCallers(g, info.Symbols, addr)
			}
			return dump(info, g, addr, count)
		},
	}
	cmd.Flags().IntVarP(&count, "num", "n", 32, "instructions to show")
	cmd.Flags().BoolVar(&function, "function", false, "start at the enclosing function entry")
	cmd.Flags().BoolVar(&xrefs, "xrefs", false, "index cross-references and annotate them")
	return cmd
}

// resolveAddress accepts a hex address, a symbol, or a target alias.
func resolveAddress(syms *symbol.Table, s string) (memory.Address, error) {
	if addr, ok := syms.Resolve(s); ok {
		return addr, nil
	}
	if t, ok := finder.DefaultRegistry.Get(s); ok {
		for _, name := range t.SymbolNames() {
			if addr, ok := syms.Resolve(name); ok {
				return addr, nil
			}
		}
	}
	addr, err := memory.ParseAddress(s)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a symbol nor an address", s)
	}
	return addr, nil
}

func dump(info *loader.Info, g *xref.Graph, addr memory.Address, count int) error {
	for i := 0; i < count; i++ {
		code, err := info.Image.ReadBytes(addr, 4)
		if err != nil {
			if i == 0 {
				return err
			}
			break
		}
		dis := disasm(code)
		var refs []string
		if g != nil {
			for _, e := range g.ReferencesFrom(addr) {
				refs = append(refs, describeEdge(g, info.Symbols, e))
			}
		}
		fmt.Println(formatLine(uint64(addr), code, dis, info.Symbols.NameAt(addr), refs))
		if isBlockEnd(dis) {
			fmt.Println()
		}
		addr = addr.Add(arm64.InsnSize)
	}
	return nil
}

func printCallers(g *xref.Graph, syms *symbol.Table, addr memory.Address) {
	edges := append([]xref.Edge(nil), g.ReferencesTo(addr)...)
	if len(edges) == 0 {
		fmt.Println(colorize.Detail("no references"))
		fmt.Println()
		return
	}
	xref.SortEdges(edges)
	fmt.Printf("%s %d\n", colorize.Header("references:"), len(edges))
	for _, e := range edges {
		from := ""
		if n := syms.NameAt(e.From); n != "" {
			from = colorize.FuncName(n)
		}
		fmt.Printf("  %s  %s %s\n", colorize.Address(uint64(e.From)), colorize.Tag("#"+e.Kind.String()), from)
	}
	fmt.Println()
}

func describeEdge(g *xref.Graph, syms *symbol.Table, e xref.Edge) string {
	name := syms.NameAt(e.To)
	if name == "" {
		if n, ok := g.Node(e.To); ok {
			name = n.Name
		}
	}
	if name == "" {
		name = e.To.String()
	}
	if e.Kind == xref.EdgeString {
		name = fmt.Sprintf("%q", name)
	}
	return e.Kind.String() + " " + name
}

func instructionTags(w uint32, dis string) []string {
	fields := strings.Fields(strings.ToUpper(dis))
	if len(fields) == 0 {
		return nil
	}

	var tags []string
	if arm64.IsPrologue(w) && fields[0] == "STP" {
		tags = append(tags, "#prologue")
	}
	switch fields[0] {
	case "BL":
		tags = append(tags, "#call")
	case "BLR":
		tags = append(tags, "#call", "#br")
	case "BR":
		tags = append(tags, "#br")
	case "RET":
		tags = append(tags, "#ret")
	case "ADRP":
		tags = append(tags, "#page")
	case "SVC":
		tags = append(tags, "#syscall")
	}
	return tags
}

func isBlockEnd(dis string) bool {
	fields := strings.Fields(strings.ToUpper(dis))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "RET", "BR", "B", "ERET":
		return true
	}
	return false
}

func formatLine(addr uint64, code []byte, dis string, funcName string, refs []string) string {
	var b strings.Builder
	b.Grow(256)

	visibleLen := 0

	b.WriteString(colorize.Address(addr))
	b.WriteString("  ")
	visibleLen += 8 + 2

	w := arm64.Word(code)
	b.WriteString(colorize.HexBytes(fmt.Sprintf("%08X", w)))
	b.WriteString("  ")
	visibleLen += 8 + 2

	b.WriteString(colorize.Instruction(dis))
	visibleLen += len(dis)

	const insnCol = 50
	for visibleLen < insnCol {
		b.WriteByte(' ')
		visibleLen++
	}

	var parts []string
	if tags := instructionTags(w, dis); len(tags) > 0 {
		parts = append(parts, strings.Join(tags, " "))
	}
	if len(refs) > 0 {
		parts = append(parts, strings.Join(refs, ", "))
	}
	if len(parts) > 0 {
		b.WriteString(colorize.Comment("; " + strings.Join(parts, " ")))
		b.WriteString("  ")
	}

	if funcName != "" {
		b.WriteString(colorize.FuncName(funcName))
	}
	return b.String()
}

func disasm(code []byte) string {
	if len(code) < 4 {
		return "???"
	}
	inst, err := arm64asm.Decode(code)
	if err != nil {
		return fmt.Sprintf(".word 0x%08x", arm64.Word(code))
	}
	return inst.String()
}
