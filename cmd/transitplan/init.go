package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"transitplan.dev/core/ingest"
	"transitplan.dev/core/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Ingests every feed in the config into a fresh database",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("reading feed config: %w", err)
	}
	sources, err := ingest.LoadFeedConfig(data)
	if err != nil {
		return err
	}

	store, err := storage.NewSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	ig := ingest.New(store, nil)
	return ig.LoadAndPrepare(cmd.Context(), sources, ingest.Options{})
}
