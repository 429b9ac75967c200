package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/michaelscutari/galactic/internal/config"
	"github.com/michaelscutari/galactic/internal/db"
	"github.com/michaelscutari/galactic/internal/entry"
	"github.com/michaelscutari/galactic/internal/metrics"
	"github.com/michaelscutari/galactic/internal/pathutil"
	"github.com/michaelscutari/galactic/internal/scan"
)

var (
	// ErrLocked is returned when another run holds the lock for the same store.
	ErrLocked = errors.New("another run is in progress")

	// ErrSchemaMissing is returned when the store has not been bootstrapped.
	ErrSchemaMissing = errors.New("store schema is not initialized (run `galactic init`)")

	// ErrTooManyErrors is returned when a run is aborted by the max-errors limit.
	ErrTooManyErrors = errors.New("too many errors")
)

// ProgressFunc is called periodically with current run progress.
type ProgressFunc func(p scan.Progress)

// StageFunc is called when the run stage changes.
type StageFunc func(stage string)

// Report describes a finished run.
type Report struct {
	RunID      int64
	Status     entry.RunStatus
	Result     *scan.Result
	ErrorCount int64
}

// Manager handles the run lifecycle: validation, locking, store bootstrap,
// run bookkeeping and the pipeline itself.
type Manager struct {
	cfg          *config.Config
	logger       *slog.Logger
	lockFile     *os.File
	progressFunc ProgressFunc
	stageFunc    StageFunc
	initSchema   bool
	now          func() time.Time
}

// NewManager creates a new run manager. A nil logger uses slog.Default().
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetProgressFunc sets a callback for progress updates during a run.
func (m *Manager) SetProgressFunc(f ProgressFunc) {
	m.progressFunc = f
}

// SetStageFunc sets a callback for run stage updates.
func (m *Manager) SetStageFunc(f StageFunc) {
	m.stageFunc = f
}

// SetInitSchema makes Run bootstrap a missing schema instead of failing.
func (m *Manager) SetInitSchema(v bool) {
	m.initSchema = v
}

// SetClock overrides the clock used for run and record timestamps.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Run executes one indexing run. Configuration problems are reported before
// anything is opened. The returned Report is nil only when the run never
// started; otherwise it is populated even when err is non-nil.
func (m *Manager) Run(ctx context.Context) (*Report, error) {
	if err := m.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	opts, err := m.scanOptions()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	info, err := os.Stat(m.cfg.RootFolder)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scan.ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", scan.ErrInvalidRoot, m.cfg.RootFolder)
	}
	root, err := pathutil.Canonical(m.cfg.RootFolder)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scan.ErrInvalidRoot, err)
	}

	if err := m.acquireLock(); err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer m.releaseLock()

	m.stage("open")
	store, err := db.Open(ctx, m.cfg.ConnectionString, db.Options{MaxOpenConns: opts.Workers + 2})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	ready, err := db.SchemaReady(ctx, store.DB())
	if err != nil {
		return nil, err
	}
	if !ready {
		if !m.initSchema {
			return nil, ErrSchemaMissing
		}
		m.stage("init")
		if err := db.InitSchema(ctx, store.DB()); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	start := m.now()
	runID, err := store.BeginRun(ctx, root, start)
	if err != nil {
		return nil, err
	}
	m.logger.Info("run.start", "run", runID, "root", root, "store", m.cfg.ConnectionString)
	metrics.RunInProgress.Set(1)
	defer metrics.RunInProgress.Set(0)

	// Create cancellable context for max-errors abort
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errorCh := make(chan entry.ScanError, 1000)
	recorder := db.NewErrorRecorder(store.DB(), runID, errorCh, 100, 1000, m.cfg.MaxErrors, cancel)
	recorder.SetLogger(m.logger)
	recorderDone := make(chan error, 1)
	go func() {
		recorderDone <- recorder.Run(runCtx)
	}()

	scanner := scan.NewScanner(opts, errorCh)
	m.stage("scan")

	// Start progress reporter if callback is set
	progressDone := make(chan struct{})
	if m.progressFunc != nil {
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-progressDone:
					return
				case <-ticker.C:
					m.progressFunc(scanner.Progress())
				}
			}
		}()
	}

	res, scanErr := scanner.Run(runCtx, root, store)
	close(progressDone)
	close(errorCh)
	if err := <-recorderDone; err != nil {
		m.logger.Warn("run.errors.persist_failed", "run", runID, "err", err)
	}

	status := entry.RunCompleted
	switch {
	case scanErr == nil:
	case errors.Is(scanErr, context.Canceled) && ctx.Err() == nil:
		// Only the max-errors limit cancels runCtx without ctx.
		status = entry.RunFailed
		scanErr = fmt.Errorf("%w: aborted after %d errors", ErrTooManyErrors, recorder.ErrorCount())
	case errors.Is(scanErr, context.Canceled):
		status = entry.RunCanceled
	default:
		status = entry.RunFailed
	}

	m.stage("finalize")
	end := m.now()
	meta := entry.RunMeta{
		ID:             runID,
		RootPath:       root,
		StartTime:      start,
		EndTime:        end,
		Status:         status,
		DirectoryCount: res.Directories,
		FileCount:      res.Files,
		Written:        res.Stats.Written,
		Unchanged:      res.Stats.Unchanged,
		ErrorCount:     recorder.ErrorCount(),
	}
	// A canceled run is still recorded.
	if err := store.FinishRun(context.WithoutCancel(ctx), meta); err != nil {
		scanErr = errors.Join(scanErr, err)
	}

	metrics.RunsTotal.WithLabelValues(string(status)).Inc()
	metrics.LastRunTimestamp.Set(float64(end.Unix()))
	metrics.LastRunDuration.Set(end.Sub(start).Seconds())

	if status == entry.RunCompleted {
		if err := db.Optimize(ctx, store.DB()); err != nil {
			m.logger.Warn("run.optimize_failed", "err", err)
		}
	}

	m.logger.Info("run.done",
		"run", runID,
		"status", string(status),
		"written", meta.Written,
		"unchanged", meta.Unchanged,
		"errors", meta.ErrorCount,
		"duration", end.Sub(start),
	)

	report := &Report{
		RunID:      runID,
		Status:     status,
		Result:     res,
		ErrorCount: meta.ErrorCount,
	}
	if scanErr != nil {
		return report, fmt.Errorf("run %d %s: %w", runID, status, scanErr)
	}
	return report, nil
}

func (m *Manager) scanOptions() (*scan.ScanOptions, error) {
	opts := scan.DefaultOptions().
		WithXdev(m.cfg.Xdev).
		WithLogger(m.logger).
		WithClock(m.now)
	if m.cfg.Workers > 0 {
		opts.WithWorkers(m.cfg.Workers)
	}
	if m.cfg.QueueSize > 0 {
		opts.WithQueueSize(m.cfg.QueueSize)
	}
	for _, pattern := range m.cfg.Exclude {
		if err := opts.AddExcludePattern(pattern); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}
	return opts, nil
}

func (m *Manager) stage(name string) {
	if m.stageFunc != nil {
		m.stageFunc(name)
	}
}

func (m *Manager) acquireLock() error {
	lockPath := m.cfg.LockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}

	// Try to acquire exclusive lock
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("%w (lock %s)", ErrLocked, lockPath)
	}

	m.lockFile = f
	return nil
}

func (m *Manager) releaseLock() {
	if m.lockFile != nil {
		syscall.Flock(int(m.lockFile.Fd()), syscall.LOCK_UN)
		m.lockFile.Close()
		m.lockFile = nil
	}
}
