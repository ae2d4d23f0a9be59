package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"transitplan.dev/core/ingest"
	"transitplan.dev/core/storage"
)

var forceUpdate bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Re-ingests every feed and rebuilds transfers if the store is over 24h old or --force is set",
	Args:  cobra.NoArgs,
	RunE:  runUpdate,
}

func init() {
	updateCmd.Flags().BoolVarP(&forceUpdate, "force", "f", false, "re-ingest even if the store was updated recently")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
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
	if err := store.EnsureSchema(cmd.Context()); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	ig := ingest.New(store, nil)
	return ig.Update(cmd.Context(), sources, ingest.Options{}, forceUpdate)
}
