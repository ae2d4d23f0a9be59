package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"transitplan.dev/core/planner"
	"transitplan.dev/core/storage"
)

var stopsCmd = &cobra.Command{
	Use:   "stops <prefix> [limit]",
	Short: "Looks up stops by name prefix",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runStops,
}

func init() {
	rootCmd.AddCommand(stopsCmd)
}

func runStops(cmd *cobra.Command, args []string) error {
	limit := 20
	if len(args) == 2 {
		var err error
		limit, err = strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
	}

	store, err := storage.NewSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	p := planner.New(store, planner.CityPreferences{})
	stops, err := p.SearchStop(cmd.Context(), args[0], limit)
	if err != nil {
		return err
	}

	for _, s := range stops {
		fmt.Printf("%s\t%s\n", s.ID, s.Name)
	}
	return nil
}
