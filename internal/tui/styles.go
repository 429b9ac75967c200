package tui

import (
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/michaelscutari/galactic/internal/entry"
)

var (
	colorPrimary   = lipgloss.Color("39")
	colorSecondary = lipgloss.Color("245")
	colorHighlight = lipgloss.Color("212")
	colorWarning   = lipgloss.Color("214")
	colorMuted     = lipgloss.Color("240")
	colorOK        = lipgloss.Color("42")
	colorFailed    = lipgloss.Color("196")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	breadcrumbStyle = lipgloss.NewStyle().
			Foreground(colorSecondary)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorMuted).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorMuted)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(colorPrimary)

	dirStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	fileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	barFilledStyle = lipgloss.NewStyle().
			Foreground(colorHighlight)

	barEmptyStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorSecondary)

	filterStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	statsStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			MarginBottom(1)

	unknownSizeStyle = lipgloss.NewStyle().
				Foreground(colorWarning)

	runStatusStyles = map[entry.RunStatus]lipgloss.Style{
		entry.RunCompleted: lipgloss.NewStyle().Foreground(colorOK),
		entry.RunRunning:   lipgloss.NewStyle().Foreground(colorPrimary),
		entry.RunCanceled:  lipgloss.NewStyle().Foreground(colorWarning),
		entry.RunFailed:    lipgloss.NewStyle().Foreground(colorFailed).Bold(true),
	}
)

// renderStatus colors a run status; unknown values render plain.
func renderStatus(s entry.RunStatus) string {
	if style, ok := runStatusStyles[s]; ok {
		return style.Render(string(s))
	}
	return string(s)
}

// FormatSize formats a byte count for display.
func FormatSize(bytes int64) string {
	return humanize.Bytes(uint64(bytes))
}

// FormatCount formats a count for display.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

// FormatAge formats a timestamp relative to now, e.g. "3 hours ago".
func FormatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
