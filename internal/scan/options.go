package scan

import (
	"log/slog"
	"regexp"
	"time"
)

const (
	// DefaultWorkers is the number of reconciliations admitted concurrently.
	DefaultWorkers = 4

	// DefaultQueueSize is the capacity of the walker-to-pool hand-off queue.
	DefaultQueueSize = 100
)

// ScanOptions configures the scanning behavior.
type ScanOptions struct {
	// Workers bounds concurrent reconciliations.
	Workers int

	// QueueSize is the capacity of the bounded entry queue. A full queue
	// blocks the walker.
	QueueSize int

	// ExcludePatterns are regular expressions for paths to skip.
	ExcludePatterns []*regexp.Regexp

	// Xdev prevents descending into directories on other filesystems.
	Xdev bool

	// Logger receives structured pipeline events. Nil means slog.Default().
	Logger *slog.Logger

	// Now stamps LastIndexed. Nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns sensible defaults for scanning.
func DefaultOptions() *ScanOptions {
	return &ScanOptions{
		Workers:   DefaultWorkers,
		QueueSize: DefaultQueueSize,
	}
}

// WithWorkers sets the number of workers.
func (o *ScanOptions) WithWorkers(n int) *ScanOptions {
	o.Workers = n
	return o
}

// WithQueueSize sets the entry queue capacity.
func (o *ScanOptions) WithQueueSize(n int) *ScanOptions {
	o.QueueSize = n
	return o
}

// WithXdev sets the cross-device flag.
func (o *ScanOptions) WithXdev(xdev bool) *ScanOptions {
	o.Xdev = xdev
	return o
}

// WithLogger sets the logger.
func (o *ScanOptions) WithLogger(l *slog.Logger) *ScanOptions {
	o.Logger = l
	return o
}

// WithClock sets the clock used for LastIndexed.
func (o *ScanOptions) WithClock(now func() time.Time) *ScanOptions {
	o.Now = now
	return o
}

// AddExcludePattern adds a pattern to exclude.
func (o *ScanOptions) AddExcludePattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	o.ExcludePatterns = append(o.ExcludePatterns, re)
	return nil
}

// ShouldExclude checks if a path matches any exclude pattern.
func (o *ScanOptions) ShouldExclude(path string) bool {
	for _, re := range o.ExcludePatterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func (o *ScanOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *ScanOptions) normalized() *ScanOptions {
	c := *o
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return &c
}
