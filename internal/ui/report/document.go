package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/zboralski/offscan/internal/output"
)

// Document formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

var (
	plainCell = lipgloss.NewStyle().Padding(0, 1)

	markdownBorder = lipgloss.Border{
		Top:         "-",
		Left:        "|",
		Right:       "|",
		Middle:      "|",
		MiddleLeft:  "|",
		MiddleRight: "|",
	}
)

// document writes an offsets file as uncolored tables under section titles.
type document struct {
	b        strings.Builder
	markdown bool
}

func (d *document) title(s string) {
	if d.markdown {
		fmt.Fprintf(&d.b, "# %s\n\n", s)
		return
	}
	fmt.Fprintf(&d.b, "%s\n%s\n\n", s, strings.Repeat("=", len(s)))
}

func (d *document) section(s string, n int) {
	s = fmt.Sprintf("%s (%d)", s, n)
	if d.markdown {
		fmt.Fprintf(&d.b, "## %s\n\n", s)
		return
	}
	fmt.Fprintf(&d.b, "%s\n%s\n\n", s, strings.Repeat("-", len(s)))
}

func (d *document) field(name, value string) {
	if d.markdown {
		fmt.Fprintf(&d.b, "- **%s:** %s\n", name, value)
		return
	}
	fmt.Fprintf(&d.b, "%-10s %s\n", name+":", value)
}

func (d *document) table(headers []string, rows [][]string) {
	t := table.New().Headers(headers...).Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style { return plainCell })
	if d.markdown {
		t.Border(markdownBorder).BorderTop(false).BorderBottom(false)
	} else {
		t.Border(lipgloss.NormalBorder())
	}
	d.b.WriteString(t.String())
	d.b.WriteString("\n\n")
}

// Document renders f as a plain text or markdown report.
func Document(f *output.File, format string) (string, error) {
	d := &document{}
	switch format {
	case FormatText:
	case FormatMarkdown:
		d.markdown = true
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}

	d.title("offscan report")
	d.field("Binary", fmt.Sprintf("%s (%s)", f.Binary.Path, f.Binary.Format))
	d.field("Base", fmt.Sprintf("%#x", uint64(f.Binary.Base)))
	d.field("Run", f.RunID)
	if !f.GeneratedAt.IsZero() {
		d.field("Generated", f.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	}
	s := output.Summarize(f)
	d.field("Resolved", fmt.Sprintf("%d functions, %d classes, %d members, %d constants, %d unresolved",
		s.Functions, s.Classes, s.Members, s.Constants, s.Unresolved))
	d.b.WriteByte('\n')

	if len(f.Functions) > 0 {
		d.section("Functions", len(f.Functions))
		var rows [][]string
		for _, name := range f.Names() {
			fn := f.Functions[name]
			rows = append(rows, []string{name, hex(fn.Address), fmt.Sprintf("%.2f", fn.Confidence), fn.Method, fn.Category, fn.Signature})
		}
		d.table([]string{"Name", "Address", "Conf", "Method", "Category", "Signature"}, rows)
	}
	if len(f.Classes) > 0 {
		d.section("Classes", len(f.Classes))
		var rows [][]string
		for _, name := range sortedNames(f.Classes) {
			rows = append(rows, []string{name, hex(f.Classes[name])})
		}
		d.table([]string{"Class", "Vtable"}, rows)
	}
	if s.Members > 0 {
		d.section("Structures", s.Members)
		var rows [][]string
		for _, key := range f.Members() {
			st, name, _ := strings.Cut(key, ".")
			m := f.Structures[st][name]
			rows = append(rows, []string{key, fmt.Sprintf("%#x", uint64(m.Offset)), fmt.Sprint(m.Size),
				fmt.Sprintf("%.2f", m.Confidence), m.Method, m.Votes, hex(m.Evidence)})
		}
		d.table([]string{"Member", "Offset", "Size", "Conf", "Method", "Votes", "Evidence"}, rows)
	}
	if len(f.Constants) > 0 {
		d.section("Constants", len(f.Constants))
		var rows [][]string
		for _, name := range sortedNames(f.Constants) {
			c := f.Constants[name]
			value := fmt.Sprintf("%q", c.Text)
			if c.Value != nil {
				value = fmt.Sprint(*c.Value)
			}
			rows = append(rows, []string{name, value, hex(c.Address), fmt.Sprint(c.Refs),
				fmt.Sprintf("%.2f", c.Confidence), c.Method, c.Category})
		}
		d.table([]string{"Constant", "Value", "Literal", "Refs", "Conf", "Method", "Category"}, rows)
	}
	if len(f.Unresolved) > 0 {
		d.section("Unresolved", len(f.Unresolved))
		for _, name := range f.Unresolved {
			if d.markdown {
				fmt.Fprintf(&d.b, "- `%s`\n", name)
			} else {
				fmt.Fprintf(&d.b, "  %s\n", name)
			}
		}
		d.b.WriteByte('\n')
	}
	return d.b.String(), nil
}

func hex(a output.Addr) string {
	return fmt.Sprintf("%#x", uint64(a))
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Stats renders the totals of an offsets file.
func Stats(s output.Stats) string {
	t := newTable("SECTION", "COUNT")
	t.Row("functions", fmt.Sprint(s.Functions))
	t.Row("classes", fmt.Sprint(s.Classes))
	t.Row("structures", fmt.Sprint(s.Structures))
	t.Row("members", fmt.Sprint(s.Members))
	t.Row("constants", fmt.Sprint(s.Constants))
	t.Row("unresolved", fmt.Sprint(s.Unresolved))
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	})

	var b strings.Builder
	b.WriteString(t.String())
	b.WriteByte('\n')
	var parts []string
	for _, m := range s.Methods() {
		parts = append(parts, fmt.Sprintf("%s %d", m, s.ByMethod[m]))
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, "%s\n", strings.Join(parts, "  "))
	}
	parts = parts[:0]
	for _, c := range s.CategoryNames() {
		parts = append(parts, fmt.Sprintf("%s %d", c, s.Categories[c]))
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, "%s\n", strings.Join(parts, "  "))
	}
	fmt.Fprintf(&b, "%s\n", titleStyle.Render(fmt.Sprintf("%d of %d entries at confidence %.2f or above",
		s.High, s.Total()-s.Classes, output.HighConfidence)))
	return b.String()
}
