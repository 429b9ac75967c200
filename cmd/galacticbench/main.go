// Command galacticbench measures reconciliation throughput against a
// throwaway SQLite index.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/michaelscutari/galactic/internal/db"
	"github.com/michaelscutari/galactic/internal/entry"
)

func main() {
	outDir := flag.String("out", ".", "Output directory for temp DB")
	rows := flag.Int("rows", 100000, "Files to upsert")
	dirs := flag.Int("dirs", 100, "Directories the files are spread over")
	workers := flag.Int("workers", 4, "Concurrent reconciliations")
	rerun := flag.Bool("rerun", true, "Upsert every file a second time to measure the unchanged path")
	flag.Parse()

	if *dirs < 1 {
		*dirs = 1
	}
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	dbPath := filepath.Join(*outDir, fmt.Sprintf(".galacticbench-%d.db", time.Now().UnixNano()))
	store, err := db.Open(ctx, dbPath, db.Options{MaxOpenConns: *workers + 1})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db error: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		store.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}()

	if err := db.InitSchema(ctx, store.DB()); err != nil {
		fmt.Fprintf(os.Stderr, "schema error: %v\n", err)
		os.Exit(1)
	}

	now := time.Now().UTC()
	for d := 0; d < *dirs; d++ {
		_, err := store.InsertDirectory(ctx, entry.DirectoryRecord{
			Path:        fmt.Sprintf("/bench/d%d", d),
			Name:        fmt.Sprintf("d%d", d),
			ParentPath:  "/bench",
			LastIndexed: now,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "insert dir error: %v\n", err)
			os.Exit(1)
		}
	}

	pass := func(label string) {
		var written, unchanged int64
		start := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(*workers)
		for i := 0; i < *rows; i++ {
			parent := fmt.Sprintf("/bench/d%d", i%*dirs)
			rec := entry.FileRecord{
				Path:        fmt.Sprintf("%s/f%d", parent, i),
				Name:        fmt.Sprintf("f%d", i),
				ParentPath:  parent,
				Size:        sql.NullInt64{Int64: 1234, Valid: true},
				LastIndexed: now,
			}
			g.Go(func() error {
				ok, err := store.UpsertFile(gctx, rec)
				if err != nil {
					return err
				}
				if ok {
					atomic.AddInt64(&written, 1)
				} else {
					atomic.AddInt64(&unchanged, 1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			fmt.Fprintf(os.Stderr, "upsert error: %v\n", err)
			os.Exit(1)
		}
		elapsed := time.Since(start)

		fmt.Printf("%s: total=%v written=%d unchanged=%d\n", label, elapsed, written, unchanged)
		if elapsed.Seconds() > 0 {
			fmt.Printf("%s: throughput: %.0f rows/sec\n", label, float64(*rows)/elapsed.Seconds())
		}
	}

	fmt.Printf("out=%s rows=%d dirs=%d workers=%d\n", *outDir, *rows, *dirs, *workers)
	pass("insert")
	if *rerun {
		pass("rerun")
	}
}
