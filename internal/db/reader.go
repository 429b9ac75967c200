package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/michaelscutari/galactic/internal/entry"
	"github.com/michaelscutari/galactic/internal/pathutil"
)

// DisplayEntry combines a record with subtree totals for display.
type DisplayEntry struct {
	Path        string
	Name        string
	Kind        entry.Kind
	Size        sql.NullInt64
	LastIndexed time.Time
	TotalSize   int64 // Sum of known file sizes in the subtree
	TotalFiles  int64
	TotalDirs   int64
}

// SubtreeBounds returns the half-open key range [lo, hi) that covers every
// path strictly below dir. Range predicates use the Path unique index where
// a LIKE prefix would not, and need no escaping of '%' or '_'.
func SubtreeBounds(dir string) (string, string) {
	sep := string(filepath.Separator)
	next := string(rune(filepath.Separator) + 1)
	return dir + sep, dir + next
}

// LoadChildren loads the indexed children of a directory with subtree totals.
func LoadChildren(ctx context.Context, db *sql.DB, parentPath, sortBy string, limit int) ([]DisplayEntry, error) {
	parentPath = pathutil.Normalize(parentPath)
	orderClause := "total_size DESC, name ASC"
	switch sortBy {
	case "name":
		orderClause = "name ASC"
	case "files":
		orderClause = "total_files DESC, name ASC"
	case "indexed":
		orderClause = "last_indexed DESC, name ASC"
	case "size":
		orderClause = "total_size DESC, name ASC"
	}
	if limit <= 0 {
		limit = -1
	}

	query := fmt.Sprintf(`
		SELECT d.Path AS path, d.Name AS name, %d AS kind, NULL AS size, d.LastModified AS last_indexed,
		       (SELECT COALESCE(SUM(f.Size), 0) FROM Files f
		         WHERE f.Path >= d.Path || ? AND f.Path < d.Path || ?) AS total_size,
		       (SELECT COUNT(*) FROM Files f
		         WHERE f.Path >= d.Path || ? AND f.Path < d.Path || ?) AS total_files,
		       (SELECT COUNT(*) FROM Directories c
		         WHERE c.Path >= d.Path || ? AND c.Path < d.Path || ?) AS total_dirs
		FROM Directories d
		WHERE d.DirectoryPath = ?

		UNION ALL

		SELECT f.Path, f.Name, %d, f.Size, f.LastModified,
		       COALESCE(f.Size, 0), 1, 0
		FROM Files f
		WHERE f.DirectoryPath = ?
		ORDER BY %s
		LIMIT ?
	`, entry.KindDir, entry.KindFile, orderClause)

	sep := string(filepath.Separator)
	next := string(rune(filepath.Separator) + 1)
	rows, err := db.QueryContext(ctx, query,
		sep, next, sep, next, sep, next,
		parentPath, parentPath, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var entries []DisplayEntry
	for rows.Next() {
		var e DisplayEntry
		var stamp string
		if err := rows.Scan(&e.Path, &e.Name, &e.Kind, &e.Size, &stamp, &e.TotalSize, &e.TotalFiles, &e.TotalDirs); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if e.LastIndexed, err = ParseTime(stamp); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// TableCounts returns the number of rows in Directories and Files.
func TableCounts(ctx context.Context, db *sql.DB) (dirs, files int64, err error) {
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM Directories`).Scan(&dirs); err != nil {
		return 0, 0, fmt.Errorf("count directories: %w", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM Files`).Scan(&files); err != nil {
		return 0, 0, fmt.Errorf("count files: %w", err)
	}
	return dirs, files, nil
}
