package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/michaelscutari/galactic/internal/entry"
	"github.com/michaelscutari/galactic/internal/metrics"
)

// Stats summarizes the reconciliations a pool completed.
type Stats struct {
	Written   int64
	Unchanged int64
	Failed    int64
}

// Pool pulls entries from a queue and reconciles each on its own goroutine,
// admitting at most Workers at a time.
type Pool struct {
	reconciler Reconciler
	workers    int64
	logger     *slog.Logger
	errorCh    chan<- entry.ScanError
	counters   *Counters
}

// NewPool creates a pool around r. errorCh may be nil; sends to it never block.
func NewPool(r Reconciler, opts *ScanOptions, errorCh chan<- entry.ScanError, counters *Counters) *Pool {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts = opts.normalized()
	if counters == nil {
		counters = &Counters{}
	}
	return &Pool{
		reconciler: r,
		workers:    int64(opts.Workers),
		logger:     opts.logger(),
		errorCh:    errorCh,
		counters:   counters,
	}
}

// Consume reconciles entries from in until it is closed and drained, then
// waits for every admitted reconciliation to finish. drained reports whether
// in was exhausted. A failed entry does not stop the pool; all failures are
// joined into the returned error. If ctx is canceled the pool stops pulling,
// lets admitted work complete, and returns an error wrapping ctx.Err().
func (p *Pool) Consume(ctx context.Context, in <-chan entry.Entry) (stats Stats, drained bool, err error) {
	sem := semaphore.NewWeighted(p.workers)
	// Admitted reconciliations outlive cancellation so no write is cut short.
	workCtx := context.WithoutCancel(ctx)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	var stopErr error
loop:
	for {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}

		var e entry.Entry
		var ok bool
		select {
		case <-ctx.Done():
			stopErr = ctx.Err()
			break loop
		case e, ok = <-in:
			if !ok {
				drained = true
				break loop
			}
		}
		metrics.QueueDepth.Set(float64(len(in)))

		if err := sem.Acquire(ctx, 1); err != nil {
			stopErr = err
			break
		}

		wg.Add(1)
		p.counters.InFlight.Add(1)
		metrics.ReconcilesInFlight.Inc()
		go func(e entry.Entry) {
			defer func() {
				metrics.ReconcilesInFlight.Dec()
				p.counters.InFlight.Add(-1)
				sem.Release(1)
				wg.Done()
			}()
			if err := p.reconcile(workCtx, e); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(e)
	}

	wg.Wait()
	metrics.QueueDepth.Set(0)

	stats = Stats{
		Written:   p.counters.Written.Load(),
		Unchanged: p.counters.Unchanged.Load(),
		Failed:    p.counters.Failed.Load(),
	}
	if stopErr != nil {
		errs = append([]error{stopErr}, errs...)
	}
	return stats, drained, errors.Join(errs...)
}

func (p *Pool) reconcile(ctx context.Context, e entry.Entry) error {
	kind := e.Kind.String()
	start := time.Now()
	outcome, err := p.reconciler.Reconcile(ctx, e)
	metrics.ReconcileDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		p.counters.Failed.Add(1)
		metrics.Reconciliations.WithLabelValues(kind, "failed").Inc()
		p.logger.Error("scan.reconcile.error", "path", e.Path, "kind", kind, "err", err)
		// Non-blocking send - drop error if channel full (errors are sampled anyway)
		if p.errorCh != nil {
			select {
			case p.errorCh <- entry.ScanError{Path: e.Path, Stage: entry.StageReconcile, Message: err.Error()}:
			default:
			}
		}
		return err
	}

	switch outcome {
	case OutcomeWritten:
		p.counters.Written.Add(1)
	default:
		p.counters.Unchanged.Add(1)
	}
	metrics.Reconciliations.WithLabelValues(kind, outcome.String()).Inc()
	p.logger.Debug("scan.reconcile", "path", e.Path, "kind", kind, "outcome", outcome.String())
	return nil
}
