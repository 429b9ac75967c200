package rollup

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/michaelscutari/galactic/internal/db"
	"github.com/michaelscutari/galactic/internal/entry"
	"github.com/michaelscutari/galactic/internal/pathutil"
)

// Builder computes subtree rollups from the index at query time.
type Builder struct {
	db *sql.DB

	mu    sync.Mutex
	cache map[string]*entry.Rollup
}

// NewBuilder creates a new rollup builder. Results are cached per builder,
// so a builder should not outlive the snapshot of the index it describes.
func NewBuilder(db *sql.DB) *Builder {
	return &Builder{
		db:    db,
		cache: make(map[string]*entry.Rollup),
	}
}

// ForPath returns totals for every file and directory strictly below path.
func (b *Builder) ForPath(ctx context.Context, path string) (*entry.Rollup, error) {
	path = pathutil.Normalize(path)
	b.mu.Lock()
	r, ok := b.cache[path]
	b.mu.Unlock()
	if ok {
		return r, nil
	}

	lo, hi := db.SubtreeBounds(path)
	r = &entry.Rollup{Path: path}

	err := b.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(Size), 0), COUNT(*), COALESCE(SUM(CASE WHEN Size IS NULL THEN 1 ELSE 0 END), 0)
		FROM Files
		WHERE Path >= ? AND Path < ?
	`, lo, hi).Scan(&r.TotalSize, &r.TotalFiles, &r.UnknownSize)
	if err != nil {
		return nil, fmt.Errorf("failed to sum files under %s: %w", path, err)
	}

	err = b.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM Directories WHERE Path >= ? AND Path < ?
	`, lo, hi).Scan(&r.TotalDirs)
	if err != nil {
		return nil, fmt.Errorf("failed to count directories under %s: %w", path, err)
	}

	b.mu.Lock()
	b.cache[path] = r
	b.mu.Unlock()
	return r, nil
}

// Invalidate drops cached rollups, e.g. after the index has been rescanned.
func (b *Builder) Invalidate() {
	b.mu.Lock()
	b.cache = make(map[string]*entry.Rollup)
	b.mu.Unlock()
}
