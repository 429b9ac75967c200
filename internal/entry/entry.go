package entry

import (
	"database/sql"
	"os"
	"time"
)

// Kind represents the type of filesystem entry.
type Kind uint8

const (
	KindFile    Kind = 0
	KindDir     Kind = 1
	KindSymlink Kind = 2
	KindOther   Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// KindFromMode derives the Kind from an os.FileMode.
func KindFromMode(mode os.FileMode) Kind {
	switch {
	case mode.IsRegular():
		return KindFile
	case mode.IsDir():
		return KindDir
	case mode&os.ModeSymlink != 0:
		return KindSymlink
	default:
		return KindOther
	}
}

// Entry is a discovered filesystem object handed from the walker to the
// worker pool. Only KindFile and KindDir entries are ever emitted.
type Entry struct {
	Path       string
	Name       string
	ParentPath string
	Kind       Kind
	Size       int64 // Apparent size (st_size), files only
	ModTime    time.Time
}

// IsDir reports whether the entry describes a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDir
}

// DirectoryRecord is a row of the Directories table.
type DirectoryRecord struct {
	Path        string
	Name        string
	ParentPath  string
	LastIndexed time.Time
}

// FileRecord is a row of the Files table. Size is null only when unknown.
type FileRecord struct {
	Path        string
	Name        string
	ParentPath  string
	Size        sql.NullInt64
	LastIndexed time.Time
}

// Stage names the step at which a ScanError occurred.
type Stage string

const (
	StageListDirs  Stage = "list-dirs"
	StageListFiles Stage = "list-files"
	StageStat      Stage = "stat"
	StageReconcile Stage = "reconcile"
)

// ScanError represents an error encountered during a run.
type ScanError struct {
	Path    string
	Stage   Stage
	Message string
}

// RunStatus is the terminal state of an indexing run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCanceled  RunStatus = "canceled"
	RunFailed    RunStatus = "failed"
)

// RunMeta holds bookkeeping about a single indexing run.
type RunMeta struct {
	ID             int64
	RootPath       string
	StartTime      time.Time
	EndTime        time.Time
	Status         RunStatus
	DirectoryCount int64
	FileCount      int64
	Written        int64
	Unchanged      int64
	ErrorCount     int64
}

// Rollup represents aggregated statistics for an indexed subtree.
type Rollup struct {
	Path        string
	TotalSize   int64 // Sum of known file sizes
	TotalFiles  int64
	TotalDirs   int64
	UnknownSize int64 // Files whose size is null
}
