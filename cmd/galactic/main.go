package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelscutari/galactic/internal/config"
	"github.com/michaelscutari/galactic/internal/logging"
)

var version = "0.1.0"

var (
	configPath string
	logLevel   string
	logFile    string
	dbConn     string

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "galactic",
	Short: "Index a directory tree into a relational store",
	Long: `galactic walks a directory tree breadth-first and reconciles every
directory and file into a SQLite index. Rerunning a scan only rewrites
files whose size changed, so the index can be refreshed cheaply.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (default $"+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().StringVarP(&dbConn, "db", "d", "", "SQLite database path or connection string")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a rotated file instead of stderr")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(queryCmd)
}

// setup loads the config, applies persistent flag overrides and installs
// the process logger.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		c.ConnectionString = dbConn
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("log-file") {
		c.LogFile = logFile
	}

	logger, logCloser = logging.Setup(os.Stderr, logging.Options{
		Level: c.LogLevel,
		File:  c.LogFile,
	})
	cfg = c
	return nil
}

// requireConnection fails early for commands that only read the index.
func requireConnection() error {
	if cfg.ConnectionString == "" {
		return fmt.Errorf("%w (use --db or $%s)", config.ErrMissingConnection, config.EnvConnectionString)
	}
	return nil
}
