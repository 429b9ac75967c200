package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelscutari/galactic/internal/entry"
)

// trackingReconciler records peak concurrency and fails selected paths.
type trackingReconciler struct {
	delay   time.Duration
	fail    map[string]bool
	current atomic.Int64
	peak    atomic.Int64

	mu   sync.Mutex
	seen []string
	ctxs []error
}

func (r *trackingReconciler) Reconcile(ctx context.Context, e entry.Entry) (Outcome, error) {
	n := r.current.Add(1)
	defer r.current.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(r.delay)

	r.mu.Lock()
	r.seen = append(r.seen, e.Path)
	r.ctxs = append(r.ctxs, ctx.Err())
	r.mu.Unlock()

	if r.fail[e.Path] {
		return OutcomeUnchanged, &ReconcileError{Path: e.Path, Kind: e.Kind, Err: errors.New("rejected")}
	}
	if e.Size%2 == 0 {
		return OutcomeWritten, nil
	}
	return OutcomeUnchanged, nil
}

func feed(n int) <-chan entry.Entry {
	in := make(chan entry.Entry, n)
	for i := 0; i < n; i++ {
		in <- entry.Entry{Path: fmt.Sprintf("/idx/f%03d", i), Kind: entry.KindFile, Size: int64(i)}
	}
	close(in)
	return in
}

func TestConsumeBoundsConcurrency(t *testing.T) {
	r := &trackingReconciler{delay: 5 * time.Millisecond}
	pool := NewPool(r, DefaultOptions(), nil, nil)

	stats, drained, err := pool.Consume(context.Background(), feed(40))
	require.NoError(t, err)
	assert.True(t, drained)
	assert.LessOrEqual(t, r.peak.Load(), int64(DefaultWorkers))
	assert.Greater(t, r.peak.Load(), int64(1))
	assert.Len(t, r.seen, 40)
	assert.Equal(t, int64(20), stats.Written)
	assert.Equal(t, int64(20), stats.Unchanged)
	assert.Zero(t, stats.Failed)
}

func TestConsumeHonorsWorkerOption(t *testing.T) {
	r := &trackingReconciler{delay: 2 * time.Millisecond}
	pool := NewPool(r, DefaultOptions().WithWorkers(1), nil, nil)

	_, _, err := pool.Consume(context.Background(), feed(10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.peak.Load())
}

func TestConsumeCollectsFailures(t *testing.T) {
	r := &trackingReconciler{fail: map[string]bool{"/idx/f003": true, "/idx/f007": true}}
	errorCh := make(chan entry.ScanError, 10)
	pool := NewPool(r, DefaultOptions(), errorCh, nil)

	stats, drained, err := pool.Consume(context.Background(), feed(10))
	require.Error(t, err)
	assert.True(t, drained)
	assert.Len(t, r.seen, 10, "a failure must not stop the pool")
	assert.Equal(t, int64(2), stats.Failed)
	assert.Contains(t, err.Error(), "/idx/f003")
	assert.Contains(t, err.Error(), "/idx/f007")

	var rerr *ReconcileError
	assert.True(t, errors.As(err, &rerr))

	close(errorCh)
	var reported []string
	for e := range errorCh {
		assert.Equal(t, entry.StageReconcile, e.Stage)
		reported = append(reported, e.Path)
	}
	assert.ElementsMatch(t, []string{"/idx/f003", "/idx/f007"}, reported)
}

func TestConsumeStopsOnCancelAndFinishesAdmittedWork(t *testing.T) {
	r := &trackingReconciler{delay: 30 * time.Millisecond}
	pool := NewPool(r, DefaultOptions(), nil, nil)

	in := make(chan entry.Entry) // never closed
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var (
		drained bool
		err     error
	)
	go func() {
		defer close(done)
		_, drained, err = pool.Consume(ctx, in)
	}()

	in <- entry.Entry{Path: "/idx/a", Kind: entry.KindFile}
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, drained)

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Equal(t, []string{"/idx/a"}, r.seen, "admitted work must complete")
	assert.NoError(t, r.ctxs[0], "admitted work must not observe cancellation")
}

func TestConsumeStopsWhileWaitingForSlot(t *testing.T) {
	r := &trackingReconciler{delay: 100 * time.Millisecond}
	pool := NewPool(r, DefaultOptions().WithWorkers(1), nil, nil)

	in := make(chan entry.Entry, 3) // never closed
	for _, p := range []string{"/idx/a", "/idx/b", "/idx/c"} {
		in <- entry.Entry{Path: p, Kind: entry.KindFile}
	}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var (
		drained bool
		err     error
	)
	go func() {
		defer close(done)
		_, drained, err = pool.Consume(ctx, in)
	}()

	// /idx/a holds the only slot; /idx/b has been taken off the queue and
	// is waiting for it.
	require.Eventually(t, func() bool { return len(in) == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop while waiting for a slot")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, drained)
	assert.Len(t, in, 1, "no further entries should be taken after cancellation")

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []string{"/idx/a"}, r.seen)
}
