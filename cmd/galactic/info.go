package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/michaelscutari/galactic/internal/db"
	"github.com/michaelscutari/galactic/internal/rollup"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display index metadata",
	Long:  `Print the latest run, table counts and the root rollup of an index.`,
	RunE:  runInfo,
}

var infoErrors int

func init() {
	infoCmd.Flags().IntVar(&infoErrors, "errors", 0, "Also print up to N recorded errors from the latest run")
}

func runInfo(cmd *cobra.Command, args []string) error {
	if err := requireConnection(); err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := db.Open(ctx, cfg.ConnectionString, db.Options{ReadOnly: true, MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer store.Close()

	meta, err := store.LatestRun(ctx)
	if err != nil {
		return fmt.Errorf("failed to read run metadata: %w", err)
	}
	if meta == nil {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	dirs, files, err := db.TableCounts(ctx, store.DB())
	if err != nil {
		return err
	}

	fmt.Printf("Index Information\n")
	fmt.Printf("=================\n\n")
	fmt.Printf("Run:          #%d (%s)\n", meta.ID, meta.Status)
	fmt.Printf("Root Path:    %s\n", meta.RootPath)
	fmt.Printf("Start Time:   %s\n", meta.StartTime.Local().Format(time.RFC3339))
	if !meta.EndTime.IsZero() {
		fmt.Printf("End Time:     %s\n", meta.EndTime.Local().Format(time.RFC3339))
		fmt.Printf("Duration:     %s\n", meta.EndTime.Sub(meta.StartTime).Round(time.Millisecond))
	}

	fmt.Printf("\nLatest Run\n")
	fmt.Printf("----------\n")
	fmt.Printf("Directories:   %s\n", humanize.Comma(meta.DirectoryCount))
	fmt.Printf("Files:         %s\n", humanize.Comma(meta.FileCount))
	fmt.Printf("Written:       %s\n", humanize.Comma(meta.Written))
	fmt.Printf("Unchanged:     %s\n", humanize.Comma(meta.Unchanged))
	if meta.ErrorCount > 0 {
		fmt.Printf("Errors:        %s\n", humanize.Comma(meta.ErrorCount))
	}

	fmt.Printf("\nIndex\n")
	fmt.Printf("-----\n")
	fmt.Printf("Directories:   %s\n", humanize.Comma(dirs))
	fmt.Printf("Files:         %s\n", humanize.Comma(files))
	if r, err := rollup.NewBuilder(store.DB()).ForPath(ctx, meta.RootPath); err == nil {
		fmt.Printf("Total Size:    %s\n", humanize.Bytes(uint64(r.TotalSize)))
		if r.UnknownSize > 0 {
			fmt.Printf("Unknown Size:  %s files\n", humanize.Comma(r.UnknownSize))
		}
	}

	if infoErrors > 0 && meta.ErrorCount > 0 {
		sample, err := db.RunErrors(ctx, store.DB(), meta.ID, infoErrors)
		if err != nil {
			return err
		}
		fmt.Printf("\nErrors\n")
		fmt.Printf("------\n")
		for _, e := range sample {
			fmt.Printf("[%s] %s: %s\n", e.Stage, e.Path, e.Message)
		}
	}

	return nil
}
