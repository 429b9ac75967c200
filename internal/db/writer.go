package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/michaelscutari/galactic/internal/entry"
)

const insertErrorSQL = `INSERT INTO ScanErrors (RunId, Path, Stage, Message) VALUES (?, ?, ?, ?)`

const maxErrorsSampled = 1000

// ErrorRecorder drains scan errors, counts them, and persists a bounded
// sample to the ScanErrors table in batches.
type ErrorRecorder struct {
	db              *sql.DB
	runID           int64
	errorCh         <-chan entry.ScanError
	batchSize       int
	flushIntervalMs int
	maxErrors       int
	cancelFunc      context.CancelFunc
	logger          *slog.Logger

	flushErr    error
	errorBatch  []entry.ScanError
	errorCount  int64
	sampled     int
	errorCapped bool
}

// NewErrorRecorder creates a recorder for runID. When maxErrors is positive,
// cancelFunc is invoked once that many errors have been seen.
func NewErrorRecorder(db *sql.DB, runID int64, errorCh <-chan entry.ScanError, batchSize, flushIntervalMs, maxErrors int, cancelFunc context.CancelFunc) *ErrorRecorder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 1000
	}
	return &ErrorRecorder{
		db:              db,
		runID:           runID,
		errorCh:         errorCh,
		batchSize:       batchSize,
		flushIntervalMs: flushIntervalMs,
		maxErrors:       maxErrors,
		cancelFunc:      cancelFunc,
		logger:          slog.Default(),
		errorBatch:      make([]entry.ScanError, 0, batchSize),
	}
}

// SetLogger replaces the logger used for persistence failures.
func (rec *ErrorRecorder) SetLogger(l *slog.Logger) {
	if l != nil {
		rec.logger = l
	}
}

// Run consumes errors until the channel is closed. Cancellation of ctx does
// not stop it: errors reported while a run shuts down are still persisted.
// A failed flush drops that batch but counting continues, so the max-errors
// limit and ErrorCount stay accurate. The first flush failure is returned.
func (rec *ErrorRecorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(rec.flushIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-rec.errorCh:
			if !ok {
				rec.tryFlush(ctx)
				return rec.flushErr
			}
			count := atomic.AddInt64(&rec.errorCount, 1)
			if rec.maxErrors > 0 && count >= int64(rec.maxErrors) && rec.cancelFunc != nil {
				rec.cancelFunc()
			}
			// Only sample first N errors to bound table growth
			if rec.errorCapped {
				continue
			}
			rec.errorBatch = append(rec.errorBatch, e)
			rec.sampled++
			if rec.sampled >= maxErrorsSampled {
				rec.errorCapped = true
			}
			if len(rec.errorBatch) >= rec.batchSize || rec.errorCapped {
				rec.tryFlush(ctx)
			}

		case <-ticker.C:
			rec.tryFlush(ctx)
		}
	}
}

// ErrorCount returns the total number of errors seen, sampled or not.
func (rec *ErrorRecorder) ErrorCount() int64 {
	return atomic.LoadInt64(&rec.errorCount)
}

func (rec *ErrorRecorder) tryFlush(ctx context.Context) {
	err := rec.flush(ctx)
	if err == nil {
		return
	}
	rec.logger.Warn("run.errors.flush_failed", "run", rec.runID, "dropped", len(rec.errorBatch), "err", err)
	rec.errorBatch = rec.errorBatch[:0]
	if rec.flushErr == nil {
		rec.flushErr = err
	}
}

func (rec *ErrorRecorder) flush(ctx context.Context) error {
	if len(rec.errorBatch) == 0 {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	tx, err := rec.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin error transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertErrorSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare error statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range rec.errorBatch {
		if _, err := stmt.ExecContext(ctx, rec.runID, e.Path, string(e.Stage), e.Message); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert error for %q: %w", e.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit error transaction: %w", err)
	}

	rec.errorBatch = rec.errorBatch[:0]
	return nil
}
