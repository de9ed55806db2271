// Package report renders scan results as terminal tables.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/zboralski/offscan/internal/constants"
	"github.com/zboralski/offscan/internal/engine"
	"github.com/zboralski/offscan/internal/finder"
	"github.com/zboralski/offscan/internal/layout"
	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/output"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	addrStyle   = cellStyle.Foreground(lipgloss.Color("220"))
	dimStyle    = cellStyle.Foreground(lipgloss.Color("245"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle  = lipgloss.NewStyle().Bold(true)

	confStyles = []struct {
		min   float64
		style lipgloss.Style
	}{
		{0.9, cellStyle.Foreground(lipgloss.Color("78"))},
		{0.8, cellStyle.Foreground(lipgloss.Color("220"))},
		{0.75, cellStyle.Foreground(lipgloss.Color("208"))},
		{0, cellStyle.Foreground(lipgloss.Color("203"))},
	}
)

func confidenceStyle(c float64) lipgloss.Style {
	for _, s := range confStyles {
		if c >= s.min {
			return s.style
		}
	}
	return cellStyle
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...)
}

// Functions renders results ordered as given.
func Functions(results []finder.Result) string {
	t := newTable("NAME", "ADDRESS", "CONF", "METHOD", "CATEGORY")
	for _, r := range results {
		t.Row(r.Name, r.Address.String(), fmt.Sprintf("%.2f", r.Confidence), r.Method.String(), r.Category)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		switch col {
		case 1:
			return addrStyle
		case 2:
			return confidenceStyle(results[row].Confidence)
		case 4:
			return dimStyle
		}
		return cellStyle
	})
	return t.String()
}

// Classes renders class vtable addresses by name.
func Classes(classes map[string]memory.Address) string {
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)
	t := newTable("CLASS", "VTABLE")
	for _, name := range names {
		t.Row(name, classes[name].String())
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 1:
			return addrStyle
		}
		return cellStyle
	})
	return t.String()
}

// Structures renders member offsets ordered as given.
func Structures(offsets []layout.Offset) string {
	t := newTable("MEMBER", "OFFSET", "SIZE", "CONF", "METHOD", "VOTES", "EVIDENCE")
	for _, o := range offsets {
		t.Row(o.Key(), fmt.Sprintf("%#x", o.Offset), fmt.Sprint(o.Size), fmt.Sprintf("%.2f", o.Confidence),
			o.Method.String(), fmt.Sprintf("%d/%d", o.Votes, o.Candidates), o.Evidence.String())
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 1 || col == 6:
			return addrStyle
		case col == 3:
			return confidenceStyle(offsets[row].Confidence)
		case col == 5:
			return dimStyle
		}
		return cellStyle
	})
	return t.String()
}

// Constants renders confirmed constants ordered as given.
func Constants(found []constants.Found) string {
	t := newTable("CONSTANT", "VALUE", "LITERAL", "REFS", "CONF", "METHOD")
	for _, c := range found {
		value := fmt.Sprint(c.Value)
		if c.Kind == constants.String {
			value = fmt.Sprintf("%q", c.Text)
		}
		t.Row(c.Name, value, c.Address.String(), fmt.Sprint(c.Refs), fmt.Sprintf("%.2f", c.Confidence), c.Method.String())
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 2:
			return addrStyle
		case col == 4:
			return confidenceStyle(found[row].Confidence)
		case col == 3:
			return dimStyle
		}
		return cellStyle
	})
	return t.String()
}

// Summary renders the run totals.
func Summary(r *engine.Report) string {
	reported := r.Reported()
	byMethod := make(map[finder.Method]int)
	for _, res := range reported {
		byMethod[res.Method]++
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("resolved %d/%d targets in %s", len(reported), r.Targets, r.Duration.Round(time.Millisecond))))
	b.WriteByte('\n')
	var parts []string
	for _, m := range finder.Methods {
		parts = append(parts, fmt.Sprintf("%s %d", m, byMethod[m]))
	}
	fmt.Fprintf(&b, "%s\n", strings.Join(parts, "  "))
	fmt.Fprintf(&b, "dropped %d  unresolved %d  classes %d  xref %d nodes %d edges\n",
		len(r.Dropped), len(r.Unresolved), len(r.Results.Classes), r.GraphNodes, r.GraphEdges)
	var catalog []string
	if r.Fields != nil {
		if n := len(r.Fields.Offsets) + len(r.Fields.Unresolved); n > 0 {
			catalog = append(catalog, fmt.Sprintf("offsets %d/%d", len(r.ReportedOffsets()), n))
		}
	}
	if r.Constants != nil {
		if n := len(r.Constants.Found) + len(r.Constants.Missing); n > 0 {
			catalog = append(catalog, fmt.Sprintf("constants %d/%d", len(r.ReportedConstants()), n))
		}
	}
	if len(catalog) > 0 {
		fmt.Fprintf(&b, "%s\n", strings.Join(catalog, "  "))
	}
	return b.String()
}

// Unresolved lists targets without a result and the reason.
func Unresolved(r *engine.Report) string {
	names := make([]string, 0, len(r.Unresolved))
	for name := range r.Unresolved {
		names = append(names, name)
	}
	sort.Strings(names)
	t := newTable("TARGET", "REASON")
	for _, name := range names {
		t.Row(name, r.Unresolved[name].Error())
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 1:
			return dimStyle
		}
		return cellStyle
	})
	return t.String()
}

// Diff renders changes between two offsets files.
func Diff(d *output.Diff) string {
	t := newTable("NAME", "CHANGE", "OLD", "NEW", "DELTA")
	for _, c := range d.Changes {
		name := c.Name
		if c.Section != output.SectionFunction {
			name += " (" + c.Section.String() + ")"
		}
		old, cur, delta := "-", "-", ""
		if c.Kind != output.Added {
			old = c.Old.String()
		}
		if c.Kind != output.Removed {
			cur = c.New.String()
		}
		if c.Kind == output.Moved {
			delta = fmt.Sprintf("%+#x", c.Delta())
		}
		t.Row(name, c.Kind.String(), old, cur, delta)
	}
	kindStyle := map[output.ChangeKind]lipgloss.Style{
		output.Added:   cellStyle.Foreground(lipgloss.Color("78")),
		output.Removed: cellStyle.Foreground(lipgloss.Color("203")),
		output.Moved:   cellStyle.Foreground(lipgloss.Color("220")),
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 1:
			return kindStyle[d.Changes[row].Kind]
		case col == 2 || col == 3:
			return addrStyle
		}
		return cellStyle
	})
	return fmt.Sprintf("%s\n%d added  %d removed  %d moved  %d unchanged\n", t.String(),
		d.Count(output.Added), d.Count(output.Removed), d.Count(output.Moved), len(d.Unchanged))
}

// Targets renders the registry.
func Targets(targets []*finder.Target) string {
	t := newTable("TARGET", "CATEGORY", "PATTERNS", "STRINGS", "SIGNATURE")
	for _, tg := range targets {
		t.Row(tg.Name, tg.Category, fmt.Sprint(len(tg.Patterns)), fmt.Sprint(len(tg.Strings)), tg.Signature)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 1 || col == 4:
			return dimStyle
		}
		return cellStyle
	})
	return t.String()
}

// Issues renders offsets entries that failed verification.
func Issues(issues []output.Issue) string {
	t := newTable("NAME", "ADDRESS", "PROBLEM")
	for _, is := range issues {
		t.Row(is.Name, is.Address.String(), is.Reason)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 1:
			return addrStyle
		case col == 2:
			return confStyles[len(confStyles)-1].style
		}
		return cellStyle
	})
	return t.String()
}
