package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/michaelscutari/galactic/internal/db"
	"github.com/michaelscutari/galactic/internal/entry"
)

const (
	colGap        = 2
	minNameWidth  = 10
	barBlockWidth = 10
	barColWidth   = barBlockWidth + 2 + 4 // blocks, gap, "100%"
)

// column is one right-aligned numeric column of the listing.
type column struct {
	label string
	sort  SortColumn
	value func(db.DisplayEntry) string
}

var columns = []column{
	{"SIZE", SortBySize, func(e db.DisplayEntry) string {
		if e.Kind == entry.KindFile && !e.Size.Valid {
			return "?"
		}
		return FormatSize(e.TotalSize)
	}},
	{"FILES", SortByFiles, func(e db.DisplayEntry) string { return FormatCount(e.TotalFiles) }},
	{"DIRS", -1, func(e db.DisplayEntry) string { return FormatCount(e.TotalDirs) }},
	{"INDEXED", SortByIndexed, func(e db.DisplayEntry) string { return FormatAge(e.LastIndexed) }},
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err)
	}
	if m.runMeta == nil {
		return "Loading..."
	}

	var header []string
	header = append(header,
		titleStyle.Render("galactic - Index Browser"),
		statsStyle.Render(m.runLine()),
		breadcrumbStyle.Render("Path: "+truncateMiddle(m.currentPath, max(10, m.width-6))),
		statusStyle.Render(m.statusLine()),
	)
	if m.filterActive {
		header = append(header, filterStyle.Render("Filter: "+m.filter+"_"))
	} else if m.filter != "" {
		header = append(header, filterStyle.Render("Filter: "+m.filter))
	}

	var footer []string
	if m.rollup != nil {
		footer = append(footer, statsStyle.Render(rollupLine(m.rollup)))
	}
	help := m.helpLine()
	if len(m.entries) > 0 {
		help = fmt.Sprintf("%s [%d/%d]", help, m.cursor+1, len(m.entries))
	}
	footer = append(footer, helpStyle.Render(help))

	// One line for the column header, one blank line before the footer.
	rows := max(m.height-len(header)-len(footer)-2, 5)
	start := max(m.cursor-rows+1, 0)
	end := min(len(m.entries), start+rows)

	widths := m.columnWidths(start, end)
	nameWidth := m.nameWidth(widths)

	var b strings.Builder
	for _, line := range header {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(headerStyle.Render(m.headerRow(widths, nameWidth)))
	b.WriteByte('\n')
	for i := start; i < end; i++ {
		b.WriteString(m.row(m.entries[i], i == m.cursor, widths, nameWidth))
		b.WriteByte('\n')
	}
	for i := end - start; i < rows; i++ {
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(strings.Join(footer, "\n"))
	return b.String()
}

func (m *Model) runLine() string {
	r := m.runMeta
	return fmt.Sprintf("Run #%d: %s (%s) | Files: %s | Dirs: %s | Written: %s | Errors: %s",
		r.ID,
		r.StartTime.Local().Format("2006-01-02 15:04"),
		renderStatus(r.Status),
		FormatCount(r.FileCount),
		FormatCount(r.DirectoryCount),
		FormatCount(r.Written),
		FormatCount(r.ErrorCount),
	)
}

func (m *Model) statusLine() string {
	status := "Items: " + FormatCount(int64(len(m.entries)))
	if m.filter != "" {
		status += fmt.Sprintf(" | Filter: %q", m.filter)
	}
	if m.cursor < len(m.entries) {
		sel := m.entries[m.cursor]
		status += fmt.Sprintf(" | Sel: %s (%s, indexed %s)",
			sel.Name, FormatSize(sel.TotalSize), FormatAge(sel.LastIndexed))
	}
	return status
}

func rollupLine(r *entry.Rollup) string {
	line := fmt.Sprintf("Size: %s | %s files | %s subdirs",
		FormatSize(r.TotalSize), FormatCount(r.TotalFiles), FormatCount(r.TotalDirs))
	if r.UnknownSize > 0 {
		line += fmt.Sprintf(" | %s without size", FormatCount(r.UnknownSize))
	}
	return line
}

func (m *Model) label(c column) string {
	if c.sort == m.sort {
		return c.label + "v"
	}
	return c.label
}

// columnWidths sizes each column to the widest visible cell.
func (m *Model) columnWidths(start, end int) []int {
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = len(m.label(c))
		for _, e := range m.entries[start:end] {
			widths[i] = max(widths[i], len(c.value(e)))
		}
	}
	return widths
}

func (m *Model) nameWidth(widths []int) int {
	used := barColWidth + colGap*(len(columns)+1)
	for _, w := range widths {
		used += w
	}
	return max(minNameWidth, m.width-used)
}

func (m *Model) headerRow(widths []int, nameWidth int) string {
	gap := strings.Repeat(" ", colGap)
	var b strings.Builder
	for i, c := range columns {
		fmt.Fprintf(&b, "%*s%s", widths[i], m.label(c), gap)
	}
	name := "NAME"
	if m.sort == SortByName {
		name += "^"
	}
	fmt.Fprintf(&b, "%-*s%s%*s", nameWidth, truncateRight(name, nameWidth), gap, barColWidth, barHeaderLabel(m.sort))
	return b.String()
}

func (m *Model) row(e db.DisplayEntry, selected bool, widths []int, nameWidth int) string {
	gap := strings.Repeat(" ", colGap)
	var b strings.Builder
	for i, c := range columns {
		cell := fmt.Sprintf("%*s", widths[i], c.value(e))
		if c.sort == SortBySize && e.Kind == entry.KindFile && !e.Size.Valid {
			cell = unknownSizeStyle.Render(cell)
		}
		b.WriteString(cell)
		b.WriteString(gap)
	}

	name := e.Name
	style := fileStyle
	if e.Kind == entry.KindDir {
		name += "/"
		style = dirStyle
	}
	name = truncateRight(name, nameWidth)
	b.WriteString(style.Render(name))
	b.WriteString(strings.Repeat(" ", max(0, nameWidth-len(name))))
	b.WriteString(gap)

	val, total := barValues(m.sort, e, m.rollup)
	b.WriteString(formatBar(val, total))

	if selected {
		return selectedStyle.Render(b.String())
	}
	return b.String()
}

func barHeaderLabel(sort SortColumn) string {
	if sort == SortByFiles {
		return "FILE%"
	}
	return "SIZE%"
}

func barValues(sort SortColumn, e db.DisplayEntry, r *entry.Rollup) (int64, int64) {
	if r == nil {
		return 0, 0
	}
	if sort == SortByFiles {
		return e.TotalFiles, r.TotalFiles
	}
	return e.TotalSize, r.TotalSize
}

// formatBar renders entryVal as a share of parentTotal. Any non-zero share
// shows at least one filled block.
func formatBar(entryVal, parentTotal int64) string {
	if parentTotal <= 0 || entryVal <= 0 {
		return barEmptyStyle.Render(strings.Repeat("░", barBlockWidth)) + fmt.Sprintf("  %3d%%", 0)
	}

	pct := math.Min(float64(entryVal)/float64(parentTotal)*100, 100)
	filled := min(max(int(math.Round(pct/100*barBlockWidth)), 1), barBlockWidth)

	return barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", barBlockWidth-filled)) +
		fmt.Sprintf("  %3d%%", int(math.Round(pct)))
}

func truncateRight(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func truncateMiddle(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	head := (maxLen - 3) / 2
	tail := maxLen - 3 - head
	return s[:head] + "..." + s[len(s)-tail:]
}
