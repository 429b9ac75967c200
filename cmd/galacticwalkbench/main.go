// Command galacticwalkbench measures breadth-first traversal speed without
// touching a store.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/michaelscutari/galactic/internal/entry"
	"github.com/michaelscutari/galactic/internal/scan"
)

func main() {
	dir := flag.String("dir", ".", "Directory to walk")
	limit := flag.Int64("limit", 0, "Stop after this many entries (0 = all)")
	queueSize := flag.Int("queue-size", scan.DefaultQueueSize, "Walker queue capacity")
	xdev := flag.Bool("xdev", false, "Don't cross filesystem boundaries")
	flag.Parse()

	opts := scan.DefaultOptions().WithQueueSize(*queueSize).WithXdev(*xdev)
	errorCh := make(chan entry.ScanError, 1000)
	go func() {
		for range errorCh {
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	counters := &scan.Counters{}
	walker := scan.NewWalker(opts, errorCh, counters)
	out := make(chan entry.Entry, opts.QueueSize)

	var consumed int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range out {
			consumed++
			if *limit > 0 && consumed >= *limit {
				cancel()
			}
		}
	}()

	start := time.Now()
	dirs, files, err := walker.Produce(ctx, *dir, out)
	<-done
	elapsed := time.Since(start)
	close(errorCh)
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "walk error: %v\n", err)
		os.Exit(1)
	}

	p := counters.Snapshot()
	fmt.Printf("dir=%s queue=%d xdev=%t\n", *dir, opts.QueueSize, *xdev)
	fmt.Printf("walk:   dirs=%d files=%d skipped=%d errors=%d total=%v\n", dirs, files, p.Skipped, p.TraversalErrors, elapsed)
	if elapsed.Seconds() > 0 {
		fmt.Printf("throughput: %.0f entries/sec\n", float64(dirs+files)/elapsed.Seconds())
	}
}
