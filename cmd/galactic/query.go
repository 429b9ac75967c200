package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/michaelscutari/galactic/internal/db"
	"github.com/michaelscutari/galactic/internal/entry"
	"github.com/michaelscutari/galactic/internal/pathutil"
	"github.com/michaelscutari/galactic/internal/tui"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the index non-interactively",
	Long:  `List the children of an indexed directory for scripting.`,
	RunE:  runQuery,
}

var (
	queryPath  string
	querySort  string
	queryLimit int
)

func init() {
	queryCmd.Flags().StringVarP(&queryPath, "path", "p", "", "Directory path to query (default: root of the latest run)")
	queryCmd.Flags().StringVarP(&querySort, "sort", "s", "size", "Sort by: size, name, files, indexed")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 20, "Maximum number of results")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if err := requireConnection(); err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := db.Open(ctx, cfg.ConnectionString, db.Options{ReadOnly: true, MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer store.Close()

	path := pathutil.Normalize(queryPath)
	if path == "" {
		meta, err := store.LatestRun(ctx)
		if err != nil {
			return fmt.Errorf("failed to get root path: %w", err)
		}
		if meta == nil {
			return fmt.Errorf("index has no runs yet")
		}
		path = meta.RootPath
	}

	entries, err := db.LoadChildren(ctx, store.DB(), path, querySort, queryLimit)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SIZE\tFILES\tDIRS\tINDEXED\tNAME\n")
	for _, e := range entries {
		size := humanize.Bytes(uint64(e.TotalSize))
		if e.Kind == entry.KindFile && !e.Size.Valid {
			size = "?"
		}
		name := e.Name
		if e.Kind == entry.KindDir {
			name += "/"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			size,
			humanize.Comma(e.TotalFiles),
			humanize.Comma(e.TotalDirs),
			tui.FormatAge(e.LastIndexed),
			name,
		)
	}
	w.Flush()

	return nil
}
