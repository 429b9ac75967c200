package rollup

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/michaelscutari/galactic/internal/db"
	"github.com/michaelscutari/galactic/internal/entry"
)

func TestBuilderRollup(t *testing.T) {
	ctx := context.Background()
	store, err := db.Open(ctx, filepath.Join(t.TempDir(), "index.db"), db.Options{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer store.Close()

	if err := db.InitSchema(ctx, store.DB()); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	now := time.Now()
	insertDir := func(path string) {
		_, err := store.InsertDirectory(ctx, entry.DirectoryRecord{
			Path: path, Name: filepath.Base(path), ParentPath: filepath.Dir(path), LastIndexed: now,
		})
		if err != nil {
			t.Fatalf("insert %s: %v", path, err)
		}
	}
	insertFile := func(path string, size sql.NullInt64) {
		_, err := store.UpsertFile(ctx, entry.FileRecord{
			Path: path, Name: filepath.Base(path), ParentPath: filepath.Dir(path), Size: size, LastIndexed: now,
		})
		if err != nil {
			t.Fatalf("insert %s: %v", path, err)
		}
	}
	known := func(n int64) sql.NullInt64 { return sql.NullInt64{Int64: n, Valid: true} }

	insertDir("/root/a")
	insertFile("/root/a/file1", known(10))
	insertFile("/root/a/file2", known(5))
	insertDir("/root/b")
	insertFile("/root/b/file3", known(20))
	insertFile("/root/b/file4", sql.NullInt64{})

	builder := NewBuilder(store.DB())

	rootA, err := builder.ForPath(ctx, "/root/a")
	if err != nil || rootA == nil {
		t.Fatalf("rollup /root/a: %v", err)
	}
	if rootA.TotalSize != 15 || rootA.TotalFiles != 2 || rootA.TotalDirs != 0 {
		t.Fatalf("unexpected /root/a rollup: %+v", rootA)
	}

	root, err := builder.ForPath(ctx, "/root/")
	if err != nil || root == nil {
		t.Fatalf("rollup /root: %v", err)
	}
	if root.TotalSize != 35 || root.TotalFiles != 4 || root.TotalDirs != 2 || root.UnknownSize != 1 {
		t.Fatalf("unexpected /root rollup: %+v", root)
	}

	// Cached until invalidated.
	insertFile("/root/a/file5", known(100))
	again, _ := builder.ForPath(ctx, "/root/a")
	if again.TotalSize != 15 {
		t.Fatalf("expected cached rollup, got %+v", again)
	}
	builder.Invalidate()
	fresh, err := builder.ForPath(ctx, "/root/a")
	if err != nil {
		t.Fatalf("rollup after invalidate: %v", err)
	}
	if fresh.TotalSize != 115 || fresh.TotalFiles != 3 {
		t.Fatalf("unexpected fresh rollup: %+v", fresh)
	}
}
