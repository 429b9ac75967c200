package tui

import (
	"github.com/michaelscutari/galactic/internal/db"
	"github.com/michaelscutari/galactic/internal/entry"
	"github.com/michaelscutari/galactic/internal/pathutil"

	tea "github.com/charmbracelet/bubbletea"
)

var sortKeys = map[string]SortColumn{
	"s": SortBySize,
	"n": SortByName,
	"f": SortByFiles,
	"i": SortByIndexed,
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filterActive {
			return m, m.filterKey(msg)
		}
		return m, m.browseKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case dataLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			break
		}
		m.runMeta = msg.runMeta
		m.rootPath = msg.root
		m.currentPath = msg.current
		m.show(msg.entries, msg.rollup)

	case entriesLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			break
		}
		m.show(msg.entries, msg.rollup)
	}
	return m, nil
}

func (m *Model) show(entries []db.DisplayEntry, r *entry.Rollup) {
	m.filter = ""
	m.filterActive = false
	m.setEntries(entries)
	m.rollup = r
}

// filterKey edits the name filter while it has focus.
func (m *Model) filterKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit
	case "enter":
		m.filterActive = false
	case "esc":
		m.filterActive = false
		m.filter = ""
		m.applyFilter()
	case "backspace":
		if runes := []rune(m.filter); len(runes) > 0 {
			m.filter = string(runes[:len(runes)-1])
			m.applyFilter()
		}
	default:
		if msg.Type == tea.KeyRunes {
			m.filter += msg.String()
			m.applyFilter()
		}
	}
	return nil
}

func (m *Model) browseKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if col, ok := sortKeys[key]; ok {
		m.sort = col
		return m.loadEntries(m.currentPath)
	}

	switch key {
	case "q", "ctrl+c":
		return tea.Quit
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "pgup":
		m.moveCursor(-m.pageSize())
	case "pgdown":
		m.moveCursor(m.pageSize())
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.moveCursor(len(m.entries))
	case "enter", "l", "right":
		return m.open()
	case "backspace", "h", "left":
		return m.up()
	case "r":
		// The index may have been refreshed by a scan since we loaded it.
		m.rollups.Invalidate()
		return m.loadRun(m.currentPath)
	case "/":
		m.filterActive = true
	}
	return nil
}

func (m *Model) moveCursor(delta int) {
	m.cursor = min(max(m.cursor+delta, 0), max(len(m.entries)-1, 0))
}

func (m *Model) pageSize() int {
	return max(m.height/2, 1)
}

// open descends into the selected directory. Files are leaves.
func (m *Model) open() tea.Cmd {
	if m.cursor >= len(m.entries) {
		return nil
	}
	selected := m.entries[m.cursor]
	if selected.Kind != entry.KindDir {
		return nil
	}
	m.currentPath = selected.Path
	return m.loadEntries(selected.Path)
}

// up moves to the parent directory, never above the run root.
func (m *Model) up() tea.Cmd {
	if m.runMeta == nil || m.currentPath == m.rootPath {
		return nil
	}
	parent := pathutil.Parent(m.currentPath)
	if parent == "" {
		return nil
	}
	m.currentPath = parent
	return m.loadEntries(parent)
}
