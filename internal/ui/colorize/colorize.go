package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

type rgb struct{ r, g, b uint8 }

var (
	yellow    = rgb{255, 200, 0}
	pink      = rgb{255, 180, 200}
	lightGray = rgb{180, 180, 180}
	darkGray  = rgb{100, 100, 100}
	white     = rgb{255, 255, 255}
	blue      = rgb{86, 156, 214}
	magenta   = rgb{255, 128, 192}
	green     = rgb{80, 220, 100}
	orange    = rgb{255, 128, 0}
	red       = rgb{255, 80, 80}
)

func paint(c rgb, s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;%d;%d;%dm%s\033[0m", c.r, c.g, c.b, s)
}

// IsDisabled returns true if colors are disabled via environment
func IsDisabled() bool {
	return os.Getenv("OFFSCAN_NO_COLOR") != "" || os.Getenv("NO_COLOR") != ""
}

func lexer() chroma.Lexer {
	for _, name := range []string{"armasm", "gas", "nasm"} {
		if l := lexers.Get(name); l != nil {
			return l
		}
	}
	return nil
}

func style() *chroma.Style {
	for _, name := range []string{StyleName, "dracula", "monokai"} {
		if s := styles.Get(name); s != nil {
			return s
		}
	}
	return styles.Fallback
}

func formatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if f := formatters.Get(name); f != nil {
			return f
		}
	}
	return formatters.Fallback
}

// Instruction colorizes one disassembled ARM64 instruction.
func Instruction(insn string) string {
	if IsDisabled() {
		return insn
	}
	l := lexer()
	if l == nil {
		return insn
	}
	it, err := l.Tokenise(nil, insn)
	if err != nil {
		return insn
	}
	var buf strings.Builder
	if err := formatter().Format(&buf, style(), it); err != nil {
		return insn
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// Address formats an address in yellow
func Address(addr uint64) string {
	return paint(yellow, fmt.Sprintf("%08X", addr))
}

// FuncName formats a function or target name as a label.
func FuncName(name string) string { return paint(yellow, name) }

// Tag formats a trace tag such as #pattern.
func Tag(tag string) string { return paint(pink, tag) }

func Detail(s string) string   { return paint(lightGray, s) }
func HexBytes(s string) string { return paint(lightGray, s) }
func Border(s string) string   { return paint(darkGray, s) }
func Comment(s string) string  { return paint(white, s) }
func Header(s string) string   { return paint(blue, s) }
func Error(s string) string    { return paint(magenta, s) }

// Confidence formats c with two decimals: green at 0.9 and above, yellow
// from 0.8, orange from 0.75 and red below.
func Confidence(c float64) string {
	s := fmt.Sprintf("%.2f", c)
	switch {
	case c >= 0.9:
		return paint(green, s)
	case c >= 0.8:
		return paint(yellow, s)
	case c >= 0.75:
		return paint(orange, s)
	}
	return paint(red, s)
}

// Method colors a strategy name by its trust tier.
func Method(m string) string {
	switch m {
	case "symbol":
		return paint(green, m)
	case "pattern":
		return paint(blue, m)
	case "xref":
		return paint(yellow, m)
	case "heuristic":
		return paint(orange, m)
	}
	return m
}
