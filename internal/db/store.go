package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/michaelscutari/galactic/internal/entry"

	_ "modernc.org/sqlite"
)

const upsertFileSQL = `
INSERT INTO Files (Path, Name, DirectoryPath, Size, LastModified)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(Path) DO UPDATE SET
    Name = excluded.Name,
    DirectoryPath = excluded.DirectoryPath,
    Size = excluded.Size,
    LastModified = excluded.LastModified
WHERE Files.Size IS NOT excluded.Size
`

const insertDirectorySQL = `
INSERT INTO Directories (Path, Name, DirectoryPath, LastModified)
VALUES (?, ?, ?, ?)
ON CONFLICT(Path) DO NOTHING
`

const selectFileSQL = `SELECT Path, Name, DirectoryPath, Size, LastModified FROM Files WHERE Path = ?`
const selectDirectorySQL = `SELECT Path, Name, DirectoryPath, LastModified FROM Directories WHERE Path = ?`

// DefaultBusyTimeout is how long a connection waits on a locked database
// before a write fails.
const DefaultBusyTimeout = 5 * time.Second

// ErrStoreUnreachable is returned by Open when the database cannot be reached.
var ErrStoreUnreachable = errors.New("store unreachable")

// Store is the relational index of directories and files.
type Store struct {
	db *sql.DB
}

// Options tunes the connection pool behind a Store.
type Options struct {
	// MaxOpenConns bounds pooled connections. Each concurrent reconciliation
	// borrows its own connection, so this should be at least the worker count.
	MaxOpenConns int

	// BusyTimeout is applied to every connection via PRAGMA busy_timeout.
	BusyTimeout time.Duration

	// ReadOnly rejects writes on every connection.
	ReadOnly bool
}

// Open connects to the store described by conn and verifies it is reachable.
// conn is either a filesystem path or a "file:" URI.
func Open(ctx context.Context, conn string, opts Options) (*Store, error) {
	if strings.TrimSpace(conn) == "" {
		return nil, errors.New("connection string cannot be empty")
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}

	database, err := sql.Open("sqlite", DSN(conn, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		database.SetMaxOpenConns(opts.MaxOpenConns)
		database.SetMaxIdleConns(opts.MaxOpenConns)
	}

	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("%w: %w", ErrStoreUnreachable, err)
	}

	return &Store{db: database}, nil
}

// timeFormatParam makes the driver write time.Time values in a form SQLite's
// date functions understand.
const timeFormatParam = "_time_format=sqlite"

// DSN builds the driver data source name for conn, attaching per-connection
// pragmas unless the caller already supplied some. The time format is always
// set.
func DSN(conn string, opts Options) string {
	if conn == ":memory:" || strings.Contains(conn, "_pragma=") {
		if strings.Contains(conn, "_time_format=") {
			return conn
		}
		return conn + querySep(conn) + timeFormatParam
	}

	sep := querySep(conn)

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = DefaultBusyTimeout
	}
	params := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", busy.Milliseconds()),
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
	}
	if !strings.Contains(conn, "_time_format=") {
		params = append(params, timeFormatParam)
	}
	if opts.ReadOnly {
		params = append(params, "_pragma=query_only(1)")
	}
	return conn + sep + strings.Join(params, "&")
}

func querySep(conn string) string {
	if strings.Contains(conn, "?") {
		return "&"
	}
	return "?"
}

// DB exposes the underlying handle for read-side queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertFile inserts rec if its Path is absent, or updates it when the stored
// Size differs. It reports whether a row was written. The check and the write
// are one statement, so concurrent callers never observe a half-applied row.
func (s *Store) UpsertFile(ctx context.Context, rec entry.FileRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, upsertFileSQL,
		rec.Path, rec.Name, rec.ParentPath, rec.Size, rec.LastIndexed.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("upsert file %q: %w", rec.Path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert file %q: %w", rec.Path, err)
	}
	return n > 0, nil
}

// InsertDirectory inserts rec unless a directory with the same Path exists.
// It reports whether a row was written.
func (s *Store) InsertDirectory(ctx context.Context, rec entry.DirectoryRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, insertDirectorySQL,
		rec.Path, rec.Name, rec.ParentPath, rec.LastIndexed.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert directory %q: %w", rec.Path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert directory %q: %w", rec.Path, err)
	}
	return n > 0, nil
}

// FileByPath returns the stored file record, or nil if none exists.
func (s *Store) FileByPath(ctx context.Context, path string) (*entry.FileRecord, error) {
	var rec entry.FileRecord
	var stamp string
	err := s.db.QueryRowContext(ctx, selectFileSQL, path).
		Scan(&rec.Path, &rec.Name, &rec.ParentPath, &rec.Size, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query file %q: %w", path, err)
	}
	if rec.LastIndexed, err = ParseTime(stamp); err != nil {
		return nil, fmt.Errorf("query file %q: %w", path, err)
	}
	return &rec, nil
}

// DirectoryByPath returns the stored directory record, or nil if none exists.
func (s *Store) DirectoryByPath(ctx context.Context, path string) (*entry.DirectoryRecord, error) {
	var rec entry.DirectoryRecord
	var stamp string
	err := s.db.QueryRowContext(ctx, selectDirectorySQL, path).
		Scan(&rec.Path, &rec.Name, &rec.ParentPath, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query directory %q: %w", path, err)
	}
	if rec.LastIndexed, err = ParseTime(stamp); err != nil {
		return nil, fmt.Errorf("query directory %q: %w", path, err)
	}
	return &rec, nil
}

// AllFiles returns every file record keyed by Path.
func (s *Store) AllFiles(ctx context.Context) (map[string]entry.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT Path, Name, DirectoryPath, Size, LastModified FROM Files`)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	files := make(map[string]entry.FileRecord)
	for rows.Next() {
		var rec entry.FileRecord
		var stamp string
		if err := rows.Scan(&rec.Path, &rec.Name, &rec.ParentPath, &rec.Size, &stamp); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		if rec.LastIndexed, err = ParseTime(stamp); err != nil {
			return nil, fmt.Errorf("scan file %q: %w", rec.Path, err)
		}
		files[rec.Path] = rec
	}
	return files, rows.Err()
}

// AllDirectories returns every directory record keyed by Path.
func (s *Store) AllDirectories(ctx context.Context) (map[string]entry.DirectoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT Path, Name, DirectoryPath, LastModified FROM Directories`)
	if err != nil {
		return nil, fmt.Errorf("query directories: %w", err)
	}
	defer rows.Close()

	dirs := make(map[string]entry.DirectoryRecord)
	for rows.Next() {
		var rec entry.DirectoryRecord
		var stamp string
		if err := rows.Scan(&rec.Path, &rec.Name, &rec.ParentPath, &stamp); err != nil {
			return nil, fmt.Errorf("scan directory: %w", err)
		}
		if rec.LastIndexed, err = ParseTime(stamp); err != nil {
			return nil, fmt.Errorf("scan directory %q: %w", rec.Path, err)
		}
		dirs[rec.Path] = rec
	}
	return dirs, rows.Err()
}

// timeLayouts lists the textual forms a datetime column may come back in:
// the driver's own write format, and RFC 3339 when database/sql converts a
// parsed time.Time into a string destination.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTime decodes a datetime column value into UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
