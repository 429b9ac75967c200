package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelscutari/galactic/internal/config"
	"github.com/michaelscutari/galactic/internal/db"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the index schema",
	Long: `Create the Directories, Files, Runs and ScanErrors tables in the
configured store. Safe to run against an existing index.`,
	RunE: runInit,
}

var initWriteConfig string

func init() {
	initCmd.Flags().StringVar(&initWriteConfig, "write-config", "", "Also write the effective configuration to this YAML file")
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := requireConnection(); err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := db.Open(ctx, cfg.ConnectionString, db.Options{MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer store.Close()

	if err := db.InitSchema(ctx, store.DB()); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.Info("store.init", "store", cfg.ConnectionString)
	fmt.Printf("Initialized index at %s\n", cfg.ConnectionString)

	if initWriteConfig != "" {
		if err := config.Save(cfg, initWriteConfig); err != nil {
			return err
		}
		fmt.Printf("Wrote config to %s\n", initWriteConfig)
	}
	return nil
}
