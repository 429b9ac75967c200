package db

import (
	"context"
	"database/sql"
	"fmt"
)

// MaxFieldLength mirrors the varchar(256) limit on Path, Name and DirectoryPath.
const MaxFieldLength = 256

const directoriesTableDDL = `
CREATE TABLE IF NOT EXISTS Directories (
    Path varchar(256) NOT NULL UNIQUE,
    Name varchar(256) NOT NULL,
    DirectoryPath varchar(256) NOT NULL,
    LastModified datetime NOT NULL
);
`

const filesTableDDL = `
CREATE TABLE IF NOT EXISTS Files (
    Path varchar(256) NOT NULL UNIQUE,
    Name varchar(256) NOT NULL,
    DirectoryPath varchar(256) NOT NULL,
    Size bigint NULL,
    LastModified datetime NOT NULL
);
`

const runsTableDDL = `
CREATE TABLE IF NOT EXISTS Runs (
    Id INTEGER PRIMARY KEY AUTOINCREMENT,
    RootPath varchar(256) NOT NULL,
    StartTime datetime NOT NULL,
    EndTime datetime NULL,
    Status TEXT NOT NULL,
    DirectoryCount INTEGER NOT NULL DEFAULT 0,
    FileCount INTEGER NOT NULL DEFAULT 0,
    Written INTEGER NOT NULL DEFAULT 0,
    Unchanged INTEGER NOT NULL DEFAULT 0,
    ErrorCount INTEGER NOT NULL DEFAULT 0
);
`

const scanErrorsTableDDL = `
CREATE TABLE IF NOT EXISTS ScanErrors (
    Id INTEGER PRIMARY KEY AUTOINCREMENT,
    RunId INTEGER NOT NULL,
    Path TEXT NOT NULL,
    Stage TEXT NOT NULL,
    Message TEXT NOT NULL
);
`

const directoriesParentIndexDDL = `CREATE INDEX IF NOT EXISTS idx_directories_parent ON Directories(DirectoryPath);`
const filesParentIndexDDL = `CREATE INDEX IF NOT EXISTS idx_files_parent ON Files(DirectoryPath);`
const scanErrorsRunIndexDDL = `CREATE INDEX IF NOT EXISTS idx_scan_errors_run ON ScanErrors(RunId);`

var requiredTables = []string{"Directories", "Files", "Runs", "ScanErrors"}

// InitSchema creates all tables and indexes. It is idempotent and is the
// bootstrap step that must run before the first scan.
func InitSchema(ctx context.Context, db *sql.DB) error {
	ddls := []string{
		directoriesTableDDL,
		filesTableDDL,
		runsTableDDL,
		scanErrorsTableDDL,
		directoriesParentIndexDDL,
		filesParentIndexDDL,
		scanErrorsRunIndexDDL,
	}

	for _, ddl := range ddls {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}

// SchemaReady reports whether every table the pipeline writes to exists.
func SchemaReady(ctx context.Context, db *sql.DB) (bool, error) {
	for _, table := range requiredTables {
		var n int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&n)
		if err != nil {
			return false, fmt.Errorf("failed to inspect schema: %w", err)
		}
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}

// ApplyReadPragmas configures SQLite for read-only browsing sessions.
func ApplyReadPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 268435456",
		"PRAGMA query_only = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	return nil
}

// Optimize refreshes planner statistics after a run.
func Optimize(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to optimize: %w", err)
	}
	return nil
}
