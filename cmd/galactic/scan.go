package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/michaelscutari/galactic/internal/entry"
	"github.com/michaelscutari/galactic/internal/metrics"
	"github.com/michaelscutari/galactic/internal/scan"
	"github.com/michaelscutari/galactic/internal/session"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Walk a directory tree and reconcile it into the index",
	Long: `Walk the root breadth-first and upsert every directory and file into
the index. Files whose size is unchanged are left untouched.`,
	RunE: runScan,
}

var (
	scanRoot       string
	scanWorkers    int
	scanQueueSize  int
	scanXdev       bool
	scanExclude    []string
	scanMaxErrors  int
	scanInitSchema bool
	scanLockFile   string
	scanMetrics    string
	scanProgress   time.Duration
)

func init() {
	scanCmd.Flags().StringVarP(&scanRoot, "root", "r", "", "Root directory to index (overrides root_folder)")
	scanCmd.Flags().IntVarP(&scanWorkers, "workers", "w", scan.DefaultWorkers, "Concurrent reconciliations")
	scanCmd.Flags().IntVar(&scanQueueSize, "queue-size", scan.DefaultQueueSize, "Capacity of the walker-to-worker queue")
	scanCmd.Flags().BoolVar(&scanXdev, "xdev", false, "Don't cross filesystem boundaries")
	scanCmd.Flags().StringSliceVarP(&scanExclude, "exclude", "e", nil, "Regex patterns to exclude (can be repeated)")
	scanCmd.Flags().IntVar(&scanMaxErrors, "max-errors", 0, "Stop after N errors (0 = unlimited)")
	scanCmd.Flags().BoolVar(&scanInitSchema, "init-schema", false, "Create the schema if the store is empty")
	scanCmd.Flags().StringVar(&scanLockFile, "lock-file", "", "Lock file serializing runs (default <db>.lock)")
	scanCmd.Flags().StringVar(&scanMetrics, "metrics-addr", "", "Serve Prometheus metrics on this address during the scan")
	scanCmd.Flags().DurationVar(&scanProgress, "progress-interval", 30*time.Second, "Emit progress lines to stderr at this interval when not a TTY (0 to disable)")
}

// applyScanFlags copies explicitly set flags over the loaded config.
func applyScanFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("root") {
		root, err := filepath.Abs(scanRoot)
		if err != nil {
			return fmt.Errorf("failed to resolve root path: %w", err)
		}
		cfg.RootFolder = root
	}
	if flags.Changed("workers") {
		cfg.Workers = scanWorkers
	}
	if flags.Changed("queue-size") {
		cfg.QueueSize = scanQueueSize
	}
	if flags.Changed("xdev") {
		cfg.Xdev = scanXdev
	}
	if flags.Changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, scanExclude...)
	}
	if flags.Changed("max-errors") {
		cfg.MaxErrors = scanMaxErrors
	}
	if flags.Changed("lock-file") {
		cfg.LockFile = scanLockFile
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = scanMetrics
	}
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := applyScanFlags(cmd); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Listen(cfg.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nCanceling... (press Ctrl+C again to force)")
		cancel()
		<-sigCh
		os.Exit(130)
	}()

	mgr := session.NewManager(cfg, logger)
	mgr.SetInitSchema(scanInitSchema)

	fmt.Printf("Indexing %s into %s...\n", cfg.RootFolder, cfg.ConnectionString)
	startTime := time.Now()

	var stage atomic.Value
	stage.Store("scan")
	mgr.SetStageFunc(func(s string) {
		if s != "" {
			stage.Store(s)
		}
	})

	isTTY := isTerminal(os.Stderr)
	var bar *progressbar.ProgressBar
	if isTTY {
		bar = newSpinner()
	}
	var lastLine time.Time
	mgr.SetProgressFunc(func(p scan.Progress) {
		stageStr, _ := stage.Load().(string)
		if bar != nil {
			bar.Describe(describeProgress(stageStr, p))
			bar.Set64(p.Processed())
			return
		}
		if scanProgress <= 0 || time.Since(lastLine) < scanProgress {
			return
		}
		lastLine = time.Now()
		elapsed := time.Since(startTime).Round(time.Millisecond)
		fmt.Fprintf(os.Stderr, "PROGRESS stage=%s dirs=%d files=%d written=%d unchanged=%d failed=%d errors=%d rate=%.0f/sec elapsed=%s\n",
			stageStr, p.Directories, p.Files, p.Written, p.Unchanged, p.Failed, p.TraversalErrors,
			rate(p.Processed(), elapsed), elapsed)
	})

	report, err := mgr.Run(ctx)
	if bar != nil {
		bar.Finish()
	}

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "Scan canceled.")
			return nil
		}
		if report == nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		printSummary(report, time.Since(startTime))
		return fmt.Errorf("scan failed: %w", err)
	}

	printSummary(report, time.Since(startTime))
	return nil
}

func newSpinner() *progressbar.ProgressBar {
	return progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Scanning..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("entries"),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func describeProgress(stage string, p scan.Progress) string {
	if stage != "" && stage != "scan" {
		return stage + "..."
	}
	desc := fmt.Sprintf("Scanning... %s dirs | %s files | %s written",
		humanize.Comma(p.Directories), humanize.Comma(p.Files), humanize.Comma(p.Written))
	if errs := p.Failed + p.TraversalErrors; errs > 0 {
		desc += fmt.Sprintf(" | %s errors", humanize.Comma(errs))
	}
	return desc
}

func printSummary(report *session.Report, elapsed time.Duration) {
	fmt.Printf("Run #%d %s in %s\n", report.RunID, statusColor(report.Status).Sprint(report.Status), elapsed.Round(time.Millisecond))
	res := report.Result
	if res == nil {
		return
	}

	fmt.Printf("\nSummary:\n")
	fmt.Printf("  Directories: %s\n", humanize.Comma(res.Directories))
	fmt.Printf("  Files: %s\n", humanize.Comma(res.Files))
	fmt.Printf("  Written: %s\n", humanize.Comma(res.Stats.Written))
	fmt.Printf("  Unchanged: %s\n", humanize.Comma(res.Stats.Unchanged))
	if res.Skipped > 0 {
		fmt.Printf("  Skipped: %s\n", humanize.Comma(res.Skipped))
	}
	if res.Stats.Failed > 0 {
		fmt.Printf("  Failed: %s\n", humanize.Comma(res.Stats.Failed))
	}
	if report.ErrorCount > 0 {
		fmt.Printf("  Errors: %s (see `galactic info --errors`)\n", humanize.Comma(report.ErrorCount))
	}
	if res.Duration > 0 {
		fmt.Printf("  Rate: %.0f entries/sec\n", rate(res.Stats.Written+res.Stats.Unchanged+res.Stats.Failed, res.Duration))
	}
}

func statusColor(status entry.RunStatus) *color.Color {
	switch status {
	case entry.RunCompleted:
		return color.New(color.FgGreen)
	case entry.RunCanceled:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func rate(n int64, elapsed time.Duration) float64 {
	if elapsed.Seconds() <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
