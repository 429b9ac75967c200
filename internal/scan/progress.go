package scan

import "sync/atomic"

// Counters accumulates live run progress. All fields are safe for
// concurrent use; read them through Snapshot.
type Counters struct {
	Directories     atomic.Int64
	Files           atomic.Int64
	Written         atomic.Int64
	Unchanged       atomic.Int64
	Failed          atomic.Int64
	TraversalErrors atomic.Int64
	Skipped         atomic.Int64
	InFlight        atomic.Int64
}

// Progress is a point-in-time copy of Counters.
type Progress struct {
	Directories     int64
	Files           int64
	Written         int64
	Unchanged       int64
	Failed          int64
	TraversalErrors int64
	Skipped         int64
	InFlight        int64
}

// Snapshot returns the current values.
func (c *Counters) Snapshot() Progress {
	return Progress{
		Directories:     c.Directories.Load(),
		Files:           c.Files.Load(),
		Written:         c.Written.Load(),
		Unchanged:       c.Unchanged.Load(),
		Failed:          c.Failed.Load(),
		TraversalErrors: c.TraversalErrors.Load(),
		Skipped:         c.Skipped.Load(),
		InFlight:        c.InFlight.Load(),
	}
}

// Processed is the number of entries the pool has finished with.
func (p Progress) Processed() int64 {
	return p.Written + p.Unchanged + p.Failed
}
