package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelscutari/galactic/internal/entry"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func collect(out <-chan entry.Entry) []entry.Entry {
	var got []entry.Entry
	for e := range out {
		got = append(got, e)
	}
	return got
}

func relPaths(t *testing.T, root string, entries []entry.Entry) []string {
	t.Helper()
	var rel []string
	for _, e := range entries {
		r, err := filepath.Rel(root, e.Path)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	return rel
}

func TestProduceBreadthFirst(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), 3)
	writeFile(t, filepath.Join(root, "d", "b.txt"), 5)
	writeFile(t, filepath.Join(root, "d", "e", "f.txt"), 7)
	require.NoError(t, os.Mkdir(filepath.Join(root, "z"), 0o755))

	out := make(chan entry.Entry, 100)
	dirs, files, err := NewWalker(nil, nil, nil).Produce(context.Background(), root, out)
	require.NoError(t, err)
	assert.Equal(t, int64(3), dirs)
	assert.Equal(t, int64(3), files)

	got := collect(out)
	assert.Equal(t, []string{"d", "z", "a.txt", "d/e", "d/b.txt", "d/e/f.txt"}, relPaths(t, root, got))

	byName := map[string]entry.Entry{}
	for _, e := range got {
		byName[e.Name] = e
	}
	assert.Equal(t, entry.KindDir, byName["d"].Kind)
	assert.Equal(t, root, byName["d"].ParentPath)
	assert.Equal(t, entry.KindFile, byName["f.txt"].Kind)
	assert.Equal(t, int64(7), byName["f.txt"].Size)
	assert.Equal(t, filepath.Join(root, "d", "e"), byName["f.txt"].ParentPath)
}

func TestProduceEmptyRoot(t *testing.T) {
	out := make(chan entry.Entry, 1)
	dirs, files, err := NewWalker(nil, nil, nil).Produce(context.Background(), t.TempDir(), out)
	require.NoError(t, err)
	assert.Zero(t, dirs)
	assert.Zero(t, files)
	assert.Empty(t, collect(out))
}

func TestProduceSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	target := t.TempDir()
	writeFile(t, filepath.Join(target, "outside.txt"), 1)
	writeFile(t, filepath.Join(root, "real.txt"), 1)
	require.NoError(t, os.Symlink(filepath.Join(target, "outside.txt"), filepath.Join(root, "link.txt")))
	require.NoError(t, os.Symlink(target, filepath.Join(root, "linkdir")))

	counters := &Counters{}
	out := make(chan entry.Entry, 100)
	_, _, err := NewWalker(nil, nil, counters).Produce(context.Background(), root, out)
	require.NoError(t, err)

	assert.Equal(t, []string{"real.txt"}, relPaths(t, root, collect(out)))
	assert.Equal(t, int64(2), counters.Snapshot().Skipped)
}

func TestProduceExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.txt"), 1)
	writeFile(t, filepath.Join(root, "skip.tmp"), 1)
	writeFile(t, filepath.Join(root, "node_modules", "x.js"), 1)

	opts := DefaultOptions()
	require.NoError(t, opts.AddExcludePattern(`\.tmp$`))
	require.NoError(t, opts.AddExcludePattern(`/node_modules$`))

	out := make(chan entry.Entry, 100)
	_, _, err := NewWalker(opts, nil, nil).Produce(context.Background(), root, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.txt"}, relPaths(t, root, collect(out)))
}

func TestProduceIsolatesUnreadableDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bad", "hidden.txt"), 1)
	writeFile(t, filepath.Join(root, "good", "seen.txt"), 1)
	writeFile(t, filepath.Join(root, "top.txt"), 1)

	bad := filepath.Join(root, "bad")
	errorCh := make(chan entry.ScanError, 10)
	w := NewWalker(nil, errorCh, nil)
	w.readDir = func(dir string) ([]os.DirEntry, error) {
		if dir == bad {
			return nil, os.ErrPermission
		}
		return os.ReadDir(dir)
	}

	out := make(chan entry.Entry, 100)
	dirs, files, err := w.Produce(context.Background(), root, out)
	require.NoError(t, err)
	assert.Equal(t, int64(2), dirs)
	assert.Equal(t, int64(2), files)
	assert.Equal(t, []string{"bad", "good", "top.txt", "good/seen.txt"}, relPaths(t, root, collect(out)))

	close(errorCh)
	var stages []entry.Stage
	for e := range errorCh {
		assert.Equal(t, bad, e.Path)
		stages = append(stages, e.Stage)
	}
	assert.Equal(t, []entry.Stage{entry.StageListDirs, entry.StageListFiles}, stages)
}

func TestProduceSubdirFailureStillListsFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), 1)
	writeFile(t, filepath.Join(root, "d", "b.txt"), 1)

	var mu sync.Mutex
	calls := map[string]int{}
	w := NewWalker(nil, nil, nil)
	w.readDir = func(dir string) ([]os.DirEntry, error) {
		mu.Lock()
		calls[dir]++
		n := calls[dir]
		mu.Unlock()
		if dir == root && n == 1 {
			return nil, errors.New("transient listing failure")
		}
		return os.ReadDir(dir)
	}

	out := make(chan entry.Entry, 100)
	dirs, files, err := w.Produce(context.Background(), root, out)
	require.NoError(t, err)
	assert.Zero(t, dirs)
	assert.Equal(t, int64(1), files)
	assert.Equal(t, []string{"a.txt"}, relPaths(t, root, collect(out)))
}

func TestProduceCanceledBeforeStart(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan entry.Entry, 100)
	_, _, err := NewWalker(nil, nil, nil).Produce(ctx, root, out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, collect(out))
}

func TestProduceCanceledWhileBlocked(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d"} {
		writeFile(t, filepath.Join(root, name+".txt"), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan entry.Entry) // nobody reads: the first send blocks
	done := make(chan error, 1)
	go func() {
		_, _, err := NewWalker(nil, nil, nil).Produce(ctx, root, out)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("walker did not observe cancellation")
	}
	_, open := <-out
	assert.False(t, open, "queue must be closed after cancellation")
}
