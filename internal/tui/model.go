package tui

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/michaelscutari/galactic/internal/db"
	"github.com/michaelscutari/galactic/internal/entry"
	"github.com/michaelscutari/galactic/internal/pathutil"
	"github.com/michaelscutari/galactic/internal/rollup"

	tea "github.com/charmbracelet/bubbletea"
)

// SortColumn represents the current sort field.
type SortColumn int

const (
	SortBySize SortColumn = iota
	SortByName
	SortByFiles
	SortByIndexed
)

func (s SortColumn) String() string {
	switch s {
	case SortByName:
		return "name"
	case SortByFiles:
		return "files"
	case SortByIndexed:
		return "indexed"
	default:
		return "size"
	}
}

const pageLimit = 1000

// errNoRuns is shown when the index has never been populated.
var errNoRuns = errors.New("index has no runs yet (run `galactic scan`)")

// Model holds the TUI state.
type Model struct {
	db           *sql.DB
	rollups      *rollup.Builder
	rootPath     string
	currentPath  string
	allEntries   []db.DisplayEntry
	entries      []db.DisplayEntry
	cursor       int
	sort         SortColumn
	width        int
	height       int
	runMeta      *entry.RunMeta
	rollup       *entry.Rollup
	filter       string
	filterActive bool
	err          error
}

// NewModel creates a new TUI model. An empty root starts at the root of
// the latest run.
func NewModel(database *sql.DB, root string) *Model {
	return &Model{
		db:       database,
		rollups:  rollup.NewBuilder(database),
		rootPath: pathutil.Normalize(root),
		sort:     SortBySize,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.loadInitialData
}

type dataLoadedMsg struct {
	runMeta *entry.RunMeta
	root    string
	current string
	entries []db.DisplayEntry
	rollup  *entry.Rollup
	err     error
}

func (m *Model) loadInitialData() tea.Msg {
	return m.loadRun("")()
}

// loadRun reads the latest run and lists path, or the run root when path
// is empty.
func (m *Model) loadRun(path string) tea.Cmd {
	root := m.rootPath
	sortBy := m.sort.String()
	return func() tea.Msg {
		ctx := context.Background()
		meta, err := db.GetLatestRun(ctx, m.db)
		if err != nil {
			return dataLoadedMsg{err: err}
		}
		if meta == nil {
			return dataLoadedMsg{err: errNoRuns}
		}
		if root == "" {
			root = meta.RootPath
		}
		if path == "" {
			path = root
		}

		entries, err := db.LoadChildren(ctx, m.db, path, sortBy, pageLimit)
		if err != nil {
			return dataLoadedMsg{err: err}
		}
		r, err := m.rollups.ForPath(ctx, path)
		if err != nil {
			return dataLoadedMsg{err: err}
		}

		return dataLoadedMsg{
			runMeta: meta,
			root:    root,
			current: path,
			entries: entries,
			rollup:  r,
		}
	}
}

type entriesLoadedMsg struct {
	entries []db.DisplayEntry
	rollup  *entry.Rollup
	err     error
}

func (m *Model) loadEntries(path string) tea.Cmd {
	sortBy := m.sort.String()
	return func() tea.Msg {
		ctx := context.Background()
		entries, err := db.LoadChildren(ctx, m.db, path, sortBy, pageLimit)
		if err != nil {
			return entriesLoadedMsg{err: err}
		}

		r, _ := m.rollups.ForPath(ctx, path)

		return entriesLoadedMsg{
			entries: entries,
			rollup:  r,
		}
	}
}

func (m *Model) helpLine() string {
	if m.filterActive {
		return "Type to filter | Enter: apply | Esc: clear | q: quit"
	}
	return "↑/↓ move | Enter: open | Backspace: close | s/n/f/i: sort | r: reload | /: filter | q: quit"
}

func (m *Model) setEntries(entries []db.DisplayEntry) {
	m.allEntries = entries
	m.applyFilter()
}

func (m *Model) applyFilter() {
	if m.filter == "" {
		m.entries = m.allEntries
	} else {
		filtered := make([]db.DisplayEntry, 0, len(m.allEntries))
		needle := strings.ToLower(m.filter)
		for _, e := range m.allEntries {
			if strings.Contains(strings.ToLower(e.Name), needle) {
				filtered = append(filtered, e)
			}
		}
		m.entries = filtered
	}
	m.cursor = 0
}
