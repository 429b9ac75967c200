package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/michaelscutari/galactic/internal/entry"
	"github.com/michaelscutari/galactic/internal/pathutil"
)

var (
	// ErrInvalidRoot is returned when the root is missing or not a directory.
	ErrInvalidRoot = errors.New("invalid root folder")

	// ErrConsumerExited is returned when the pool stops before the walker has
	// finished and the queue was closed.
	ErrConsumerExited = errors.New("worker pool exited before traversal completed")
)

// Result summarizes a pipeline run.
type Result struct {
	Root            string
	Directories     int64 // Directories emitted by the walker
	Files           int64 // Files emitted by the walker
	Stats           Stats
	TraversalErrors int64
	Skipped         int64
	Duration        time.Duration
}

// Scanner wires a Walker to a Pool through a bounded queue.
type Scanner struct {
	opts     *ScanOptions
	errorCh  chan<- entry.ScanError
	counters *Counters
}

// NewScanner creates a new scanner. errorCh receives sampled traversal and
// reconciliation errors and may be nil; the scanner never closes it.
func NewScanner(opts *ScanOptions, errorCh chan<- entry.ScanError) *Scanner {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Scanner{
		opts:     opts.normalized(),
		errorCh:  errorCh,
		counters: &Counters{},
	}
}

// Progress returns current run progress (safe for concurrent access).
func (s *Scanner) Progress() Progress {
	return s.counters.Snapshot()
}

// Run indexes the tree at root into store and blocks until the walker has
// finished and every queued entry has been reconciled.
//
// The returned Result is populated even when err is non-nil. err wraps
// context.Canceled on cancellation, ErrConsumerExited if the pool stops
// early, and otherwise joins any per-entry reconciliation failures.
func (s *Scanner) Run(ctx context.Context, root string, store RecordWriter) (*Result, error) {
	start := time.Now()
	res := &Result{Root: root}

	info, err := os.Stat(root)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}
	root, err = pathutil.Canonical(root)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	res.Root = root

	logger := s.opts.logger()
	logger.Info("scan.start", "root", root, "workers", s.opts.Workers, "queue", s.opts.QueueSize)

	walker := NewWalker(s.opts, s.errorCh, s.counters)
	pool := NewPool(NewReconciler(store, WithClock(s.opts.Now)), s.opts, s.errorCh, s.counters)

	walked, stats, err := coordinate(ctx, s.opts.QueueSize,
		func(ctx context.Context, out chan<- entry.Entry) (int64, int64, error) {
			return walker.Produce(ctx, root, out)
		},
		pool.Consume,
	)

	p := s.counters.Snapshot()
	res.Directories = walked.dirs
	res.Files = walked.files
	res.Stats = stats
	res.TraversalErrors = p.TraversalErrors
	res.Skipped = p.Skipped
	res.Duration = time.Since(start)

	logger.Info("scan.done",
		"root", root,
		"dirs", res.Directories,
		"files", res.Files,
		"written", stats.Written,
		"unchanged", stats.Unchanged,
		"failed", stats.Failed,
		"traversal_errors", res.TraversalErrors,
		"duration", res.Duration,
		"err", err,
	)
	return res, err
}

type produceFunc func(ctx context.Context, out chan<- entry.Entry) (dirs, files int64, err error)

type consumeFunc func(ctx context.Context, in <-chan entry.Entry) (Stats, bool, error)

type walkCounts struct {
	dirs, files int64
}

// coordinate runs produce and consume concurrently over a queue of the given
// capacity. If produce finishes first, the pool drains the rest and any
// walker error is surfaced alongside pool errors. If consume finishes before
// the queue was drained, that is terminal: the walker is canceled and the
// pool's error (or ErrConsumerExited) is returned.
func coordinate(ctx context.Context, queueSize int, produce produceFunc, consume consumeFunc) (walkCounts, Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan entry.Entry, queueSize)

	type walkResult struct {
		counts walkCounts
		err    error
	}
	type poolResult struct {
		stats   Stats
		drained bool
		err     error
	}
	walkDone := make(chan walkResult, 1)
	poolDone := make(chan poolResult, 1)

	go func() {
		dirs, files, err := produce(ctx, queue)
		walkDone <- walkResult{walkCounts{dirs, files}, err}
	}()
	go func() {
		stats, drained, err := consume(ctx, queue)
		poolDone <- poolResult{stats, drained, err}
	}()

	select {
	case wr := <-walkDone:
		pr := <-poolDone
		return wr.counts, pr.stats, errors.Join(wr.err, pr.err)

	case pr := <-poolDone:
		if pr.drained {
			// The queue is closed only once the walker has returned.
			wr := <-walkDone
			return wr.counts, pr.stats, errors.Join(wr.err, pr.err)
		}
		cancel()
		wr := <-walkDone
		if pr.err == nil {
			pr.err = ErrConsumerExited
		}
		return wr.counts, pr.stats, pr.err
	}
}
