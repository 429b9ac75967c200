package db

import (
	"context"
	"testing"
	"time"

	"github.com/michaelscutari/galactic/internal/entry"
)

func TestErrorRecorderCancelsOnMaxErrors(t *testing.T) {
	store := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runID, err := store.BeginRun(ctx, "/root", time.Now())
	if err != nil {
		t.Fatalf("begin run: %v", err)
	}

	errorCh := make(chan entry.ScanError, 1)
	rec := NewErrorRecorder(store.DB(), runID, errorCh, 10, 10, 1, cancel)
	done := make(chan error, 1)
	go func() {
		done <- rec.Run(ctx)
	}()

	errorCh <- entry.ScanError{Path: "/bad", Stage: entry.StageListDirs, Message: "boom"}
	close(errorCh)

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected context cancellation")
	}

	if err := <-done; err != nil {
		t.Fatalf("recorder error: %v", err)
	}

	if rec.ErrorCount() != 1 {
		t.Fatalf("expected error count 1, got %d", rec.ErrorCount())
	}

	sampled, err := RunErrors(context.Background(), store.DB(), runID, 10)
	if err != nil {
		t.Fatalf("run errors: %v", err)
	}
	if len(sampled) != 1 || sampled[0].Path != "/bad" || sampled[0].Stage != entry.StageListDirs {
		t.Fatalf("unexpected sampled errors: %+v", sampled)
	}
}

func TestErrorRecorderCapsSample(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	errorCh := make(chan entry.ScanError, maxErrorsSampled+50)
	for i := 0; i < maxErrorsSampled+50; i++ {
		errorCh <- entry.ScanError{Path: "/bad", Stage: entry.StageStat, Message: "gone"}
	}
	close(errorCh)

	rec := NewErrorRecorder(store.DB(), 7, errorCh, 100, 1000, 0, nil)
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("recorder error: %v", err)
	}
	if rec.ErrorCount() != maxErrorsSampled+50 {
		t.Fatalf("expected all errors counted, got %d", rec.ErrorCount())
	}

	sampled, err := RunErrors(ctx, store.DB(), 7, maxErrorsSampled*2)
	if err != nil {
		t.Fatalf("run errors: %v", err)
	}
	if len(sampled) != maxErrorsSampled {
		t.Fatalf("expected %d sampled errors, got %d", maxErrorsSampled, len(sampled))
	}
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if latest, err := store.LatestRun(ctx); err != nil || latest != nil {
		t.Fatalf("expected no runs, got %+v %v", latest, err)
	}

	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	id, err := store.BeginRun(ctx, "/root", start)
	if err != nil {
		t.Fatalf("begin run: %v", err)
	}

	err = store.FinishRun(ctx, entry.RunMeta{
		ID:             id,
		EndTime:        start.Add(time.Minute),
		Status:         entry.RunCompleted,
		DirectoryCount: 2,
		FileCount:      3,
		Written:        5,
	})
	if err != nil {
		t.Fatalf("finish run: %v", err)
	}

	latest, err := store.LatestRun(ctx)
	if err != nil || latest == nil {
		t.Fatalf("latest run: %v", err)
	}
	if latest.Status != entry.RunCompleted || latest.FileCount != 3 || !latest.StartTime.Equal(start) {
		t.Fatalf("unexpected run: %+v", latest)
	}
	if got := latest.EndTime.Sub(latest.StartTime); got != time.Minute {
		t.Fatalf("unexpected duration %v", got)
	}
}

func TestErrorRecorderKeepsCountingAfterFlushFailure(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := store.DB().ExecContext(ctx, `DROP TABLE ScanErrors`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	const total = 5
	errorCh := make(chan entry.ScanError, total)
	for i := 0; i < total; i++ {
		errorCh <- entry.ScanError{Path: "/bad", Stage: entry.StageStat, Message: "gone"}
	}
	close(errorCh)

	rec := NewErrorRecorder(store.DB(), 1, errorCh, 1, 1000, total, cancel)
	if err := rec.Run(ctx); err == nil {
		t.Fatalf("expected the flush failure to be reported")
	}
	if rec.ErrorCount() != total {
		t.Fatalf("expected %d errors counted, got %d", total, rec.ErrorCount())
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatalf("expected max-errors cancellation despite flush failures")
	}
}
