package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/michaelscutari/galactic/internal/entry"
)

// BeginRun records the start of an indexing run and returns its id.
func (s *Store) BeginRun(ctx context.Context, root string, start time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO Runs (RootPath, StartTime, Status) VALUES (?, ?, ?)`,
		root, start.UTC(), string(entry.RunRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record run start: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun stores the final counters and status of a run.
func (s *Store) FinishRun(ctx context.Context, meta entry.RunMeta) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE Runs SET EndTime = ?, Status = ?, DirectoryCount = ?, FileCount = ?,
		       Written = ?, Unchanged = ?, ErrorCount = ?
		WHERE Id = ?`,
		meta.EndTime.UTC(), string(meta.Status), meta.DirectoryCount, meta.FileCount,
		meta.Written, meta.Unchanged, meta.ErrorCount, meta.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to record run end: %w", err)
	}
	return nil
}

// LatestRun returns the most recent run, or nil if the index was never scanned.
func (s *Store) LatestRun(ctx context.Context) (*entry.RunMeta, error) {
	return GetLatestRun(ctx, s.db)
}

// GetLatestRun reads the most recent Runs row from db.
func GetLatestRun(ctx context.Context, db *sql.DB) (*entry.RunMeta, error) {
	var m entry.RunMeta
	var start string
	var end sql.NullString
	var status string

	err := db.QueryRowContext(ctx, `
		SELECT Id, RootPath, StartTime, EndTime, Status, DirectoryCount, FileCount, Written, Unchanged, ErrorCount
		FROM Runs ORDER BY Id DESC LIMIT 1
	`).Scan(&m.ID, &m.RootPath, &start, &end, &status, &m.DirectoryCount, &m.FileCount, &m.Written, &m.Unchanged, &m.ErrorCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.Status = entry.RunStatus(status)
	if m.StartTime, err = ParseTime(start); err != nil {
		return nil, err
	}
	if end.Valid {
		if m.EndTime, err = ParseTime(end.String); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// RunErrors returns the sampled errors recorded for a run.
func RunErrors(ctx context.Context, db *sql.DB, runID int64, limit int) ([]entry.ScanError, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT Path, Stage, Message FROM ScanErrors WHERE RunId = ? ORDER BY Id LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("query scan errors: %w", err)
	}
	defer rows.Close()

	var out []entry.ScanError
	for rows.Next() {
		var e entry.ScanError
		var stage string
		if err := rows.Scan(&e.Path, &stage, &e.Message); err != nil {
			return nil, fmt.Errorf("scan error row: %w", err)
		}
		e.Stage = entry.Stage(stage)
		out = append(out, e)
	}
	return out, rows.Err()
}
