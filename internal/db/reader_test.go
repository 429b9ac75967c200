package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/michaelscutari/galactic/internal/entry"
)

func TestLoadChildrenSortsFilesAndDirsBySize(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Now().UTC()

	insertDir := func(path string) {
		_, err := store.InsertDirectory(ctx, entry.DirectoryRecord{
			Path: path, Name: filepath.Base(path), ParentPath: filepath.Dir(path), LastIndexed: now,
		})
		if err != nil {
			t.Fatalf("insert %s: %v", path, err)
		}
	}
	insertFile := func(path string, size int64) {
		_, err := store.UpsertFile(ctx, entry.FileRecord{
			Path: path, Name: filepath.Base(path), ParentPath: filepath.Dir(path),
			Size: sql.NullInt64{Int64: size, Valid: true}, LastIndexed: now,
		})
		if err != nil {
			t.Fatalf("insert %s: %v", path, err)
		}
	}

	insertDir("/root/dir1")
	insertDir("/root/dir1/nested")
	insertDir("/root/dir10")
	insertFile("/root/file1", 200)
	insertFile("/root/file2", 50)
	insertFile("/root/dir1/a", 60)
	insertFile("/root/dir1/nested/b", 40)
	insertFile("/root/dir10/c", 7)

	children, err := LoadChildren(ctx, store.DB(), "/root/", "size", 10)
	if err != nil {
		t.Fatalf("load children: %v", err)
	}
	if len(children) != 4 {
		t.Fatalf("expected 4 children, got %d", len(children))
	}
	if children[0].Name != "file1" {
		t.Fatalf("expected largest item first, got %s", children[0].Name)
	}

	var dir1 *DisplayEntry
	for i := range children {
		if children[i].Name == "dir1" {
			dir1 = &children[i]
		}
	}
	if dir1 == nil {
		t.Fatalf("dir1 missing from children")
	}
	// dir10 shares a string prefix with dir1 but must not be counted in it.
	if dir1.Kind != entry.KindDir || dir1.TotalSize != 100 || dir1.TotalFiles != 2 || dir1.TotalDirs != 1 {
		t.Fatalf("unexpected dir1 totals: %+v", dir1)
	}
	if dir1.Size.Valid {
		t.Fatalf("directories carry no size")
	}

	byName, err := LoadChildren(ctx, store.DB(), "/root", "name", 2)
	if err != nil {
		t.Fatalf("load by name: %v", err)
	}
	if len(byName) != 2 || byName[0].Name != "dir1" || byName[1].Name != "dir10" {
		t.Fatalf("unexpected name order: %+v", byName)
	}

	dirs, files, err := TableCounts(ctx, store.DB())
	if err != nil {
		t.Fatalf("table counts: %v", err)
	}
	if dirs != 3 || files != 5 {
		t.Fatalf("unexpected counts dirs=%d files=%d", dirs, files)
	}
}
