package scan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/michaelscutari/galactic/internal/db"
	"github.com/michaelscutari/galactic/internal/entry"
)

// Outcome is the result of reconciling one entry against the index.
type Outcome int

const (
	// OutcomeUnchanged means the stored row already matched.
	OutcomeUnchanged Outcome = iota
	// OutcomeWritten means a row was inserted or updated.
	OutcomeWritten
)

func (o Outcome) String() string {
	if o == OutcomeWritten {
		return "written"
	}
	return "unchanged"
}

var (
	// ErrFieldTooLong is returned when a path or name exceeds the column width.
	ErrFieldTooLong = errors.New("field exceeds maximum length")

	// ErrUnsupportedKind is returned for entries that are neither files nor directories.
	ErrUnsupportedKind = errors.New("unsupported entry kind")
)

// ReconcileError describes a failed reconciliation of a single entry.
type ReconcileError struct {
	Path string
	Kind entry.Kind
	Err  error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile %s %q: %v", e.Kind, e.Path, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// Reconciler brings the index in line with one observed entry.
type Reconciler interface {
	Reconcile(ctx context.Context, e entry.Entry) (Outcome, error)
}

// RecordWriter is the subset of the store used for reconciliation.
// Each method must check and write in one atomic step and report whether
// a row was written.
type RecordWriter interface {
	UpsertFile(ctx context.Context, rec entry.FileRecord) (bool, error)
	InsertDirectory(ctx context.Context, rec entry.DirectoryRecord) (bool, error)
}

// StoreReconciler reconciles entries against a RecordWriter.
type StoreReconciler struct {
	store RecordWriter
	now   func() time.Time
}

// ReconcilerOption configures a StoreReconciler.
type ReconcilerOption func(*StoreReconciler)

// WithClock overrides the clock used to stamp LastIndexed.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *StoreReconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler returns a reconciler writing to store.
func NewReconciler(store RecordWriter, opts ...ReconcilerOption) *StoreReconciler {
	r := &StoreReconciler{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile inserts a new file or directory, updates a file whose size
// changed, and leaves everything else untouched. Existing directories are
// never rewritten.
func (r *StoreReconciler) Reconcile(ctx context.Context, e entry.Entry) (Outcome, error) {
	if err := checkLengths(e); err != nil {
		return OutcomeUnchanged, &ReconcileError{Path: e.Path, Kind: e.Kind, Err: err}
	}

	stamp := r.now().UTC()
	var (
		written bool
		err     error
	)
	switch e.Kind {
	case entry.KindFile:
		written, err = r.store.UpsertFile(ctx, entry.FileRecord{
			Path:        e.Path,
			Name:        e.Name,
			ParentPath:  e.ParentPath,
			Size:        sql.NullInt64{Int64: e.Size, Valid: true},
			LastIndexed: stamp,
		})
	case entry.KindDir:
		written, err = r.store.InsertDirectory(ctx, entry.DirectoryRecord{
			Path:        e.Path,
			Name:        e.Name,
			ParentPath:  e.ParentPath,
			LastIndexed: stamp,
		})
	default:
		err = ErrUnsupportedKind
	}
	if err != nil {
		return OutcomeUnchanged, &ReconcileError{Path: e.Path, Kind: e.Kind, Err: err}
	}
	if written {
		return OutcomeWritten, nil
	}
	return OutcomeUnchanged, nil
}

func checkLengths(e entry.Entry) error {
	for _, f := range []struct{ name, value string }{
		{"path", e.Path},
		{"name", e.Name},
		{"parent path", e.ParentPath},
	} {
		if n := utf8.RuneCountInString(f.value); n > db.MaxFieldLength {
			return fmt.Errorf("%w: %s has %d characters, limit %d", ErrFieldTooLong, f.name, n, db.MaxFieldLength)
		}
	}
	return nil
}
