package scan

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/michaelscutari/galactic/internal/entry"
	"github.com/michaelscutari/galactic/internal/metrics"
	"github.com/michaelscutari/galactic/internal/pathutil"
)

// Walker enumerates a tree breadth-first and emits every directory and
// regular file below the root. The root itself is not emitted.
type Walker struct {
	opts     *ScanOptions
	logger   *slog.Logger
	errorCh  chan<- entry.ScanError
	counters *Counters
	rootDev  uint64

	readDir func(string) ([]os.DirEntry, error)
}

// NewWalker creates a walker. errorCh may be nil; sends to it never block.
func NewWalker(opts *ScanOptions, errorCh chan<- entry.ScanError, counters *Counters) *Walker {
	if opts == nil {
		opts = DefaultOptions()
	}
	if counters == nil {
		counters = &Counters{}
	}
	return &Walker{
		opts:     opts,
		logger:   opts.logger(),
		errorCh:  errorCh,
		counters: counters,
		readDir:  os.ReadDir,
	}
}

// Produce walks root and sends entries to out, closing out on every return
// path. Failures listing a directory or stating a child are reported and
// skipped. The only error returned is the context's, when ctx is canceled.
func (w *Walker) Produce(ctx context.Context, root string, out chan<- entry.Entry) (dirs, files int64, err error) {
	defer close(out)

	root = pathutil.Normalize(root)
	if w.opts.Xdev {
		if info, err := os.Lstat(root); err == nil {
			w.rootDev = devOf(info)
		}
	}

	queue := []string{root}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return dirs, files, err
		}
		dir := queue[0]
		queue[0] = ""
		queue = queue[1:]

		subdirs, err := w.emitSubdirs(ctx, dir, out)
		dirs += int64(len(subdirs))
		queue = append(queue, subdirs...)
		if err != nil {
			return dirs, files, err
		}

		n, err := w.emitFiles(ctx, dir, out)
		files += n
		if err != nil {
			return dirs, files, err
		}
	}

	w.logger.Debug("scan.walk.done", "root", root, "dirs", dirs, "files", files)
	return dirs, files, nil
}

// emitSubdirs sends each child directory of dir and returns the paths it sent.
func (w *Walker) emitSubdirs(ctx context.Context, dir string, out chan<- entry.Entry) ([]string, error) {
	dirEntries, err := w.readDir(dir)
	if err != nil {
		w.report(dir, entry.StageListDirs, err)
	}

	var sent []string
	for i, de := range dirEntries {
		if i%100 == 0 && ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if !de.IsDir() {
			continue
		}

		childPath := filepath.Join(dir, de.Name())
		if w.opts.ShouldExclude(childPath) {
			w.skip("excluded")
			continue
		}

		info, err := de.Info()
		if err != nil {
			w.report(childPath, entry.StageStat, err)
			continue
		}
		if !info.IsDir() {
			continue
		}
		if w.opts.Xdev && w.rootDev != 0 && devOf(info) != w.rootDev {
			w.skip("xdev")
			continue
		}

		e := entry.Entry{
			Path:       childPath,
			Name:       de.Name(),
			ParentPath: dir,
			Kind:       entry.KindDir,
			ModTime:    info.ModTime(),
		}
		if err := w.send(ctx, out, e); err != nil {
			return sent, err
		}
		w.counters.Directories.Add(1)
		sent = append(sent, childPath)
	}
	return sent, nil
}

// emitFiles sends each regular file directly inside dir.
func (w *Walker) emitFiles(ctx context.Context, dir string, out chan<- entry.Entry) (int64, error) {
	dirEntries, err := w.readDir(dir)
	if err != nil {
		w.report(dir, entry.StageListFiles, err)
	}

	var sent int64
	for i, de := range dirEntries {
		if i%100 == 0 && ctx.Err() != nil {
			return sent, ctx.Err()
		}

		t := de.Type()
		switch {
		case t.IsDir():
			continue
		case t&os.ModeSymlink != 0:
			w.skip("symlink")
			continue
		case !t.IsRegular():
			w.skip("other")
			continue
		}

		childPath := filepath.Join(dir, de.Name())
		if w.opts.ShouldExclude(childPath) {
			w.skip("excluded")
			continue
		}

		// Always Lstat so a child replaced by a symlink is not followed
		info, err := de.Info()
		if err != nil {
			w.report(childPath, entry.StageStat, err)
			continue
		}
		if entry.KindFromMode(info.Mode()) != entry.KindFile {
			w.skip("other")
			continue
		}

		e := entry.Entry{
			Path:       childPath,
			Name:       de.Name(),
			ParentPath: dir,
			Kind:       entry.KindFile,
			Size:       info.Size(),
			ModTime:    info.ModTime(),
		}
		if err := w.send(ctx, out, e); err != nil {
			return sent, err
		}
		w.counters.Files.Add(1)
		sent++
	}
	return sent, nil
}

func (w *Walker) send(ctx context.Context, out chan<- entry.Entry, e entry.Entry) error {
	select {
	case out <- e:
		metrics.EntriesDiscovered.WithLabelValues(e.Kind.String()).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Walker) skip(reason string) {
	w.counters.Skipped.Add(1)
	metrics.EntriesSkipped.WithLabelValues(reason).Inc()
}

func (w *Walker) report(path string, stage entry.Stage, err error) {
	w.counters.TraversalErrors.Add(1)
	metrics.TraversalErrors.WithLabelValues(string(stage)).Inc()
	w.logger.Warn("scan.walk.error", "path", path, "stage", string(stage), "err", err)

	if w.errorCh == nil {
		return
	}
	// Non-blocking send - drop error if channel full (errors are sampled anyway)
	select {
	case w.errorCh <- entry.ScanError{Path: path, Stage: stage, Message: err.Error()}:
	default:
	}
}

func devOf(info os.FileInfo) uint64 {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(stat.Dev)
	}
	return 0
}
