package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"transitplan.dev/core/planner"
	"transitplan.dev/core/storage"
)

var leastTransfers bool

var planCmd = &cobra.Command{
	Use:   "plan <from-stop-id> <to-stop-id> <when:2006-01-02T15:04:05>",
	Short: "Plans a journey and prints a plain-text itinerary",
	Args:  cobra.ExactArgs(3),
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().BoolVarP(&leastTransfers, "least-transfers", "", false, "minimize ride count instead of arrival time")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	from, to := args[0], args[1]
	departure, err := time.Parse("2006-01-02T15:04:05", args[2])
	if err != nil {
		return fmt.Errorf("invalid departure time: %w", err)
	}

	store, err := storage.NewSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	mode := planner.ModeFastest
	if leastTransfers {
		mode = planner.ModeLeastTransfers
	}

	p := planner.New(store, planner.CityPreferences{})
	path, err := p.Search(cmd.Context(), from, to, departure, planner.SearchOptions{Mode: mode})
	if err != nil {
		return err
	}

	steps, err := p.Hydrate(cmd.Context(), path)
	if err != nil {
		return err
	}

	fmt.Printf("depart %s, arrive %s, %d ride(s)\n",
		path.Departure.Format(time.RFC3339), path.Arrival.Format(time.RFC3339), path.RideCount)
	for _, s := range steps {
		if s.IsRide() {
			fmt.Printf("  ride  %-30s -> %-30s  %s -> %s  (route %s)\n",
				s.FromName, s.ToName, s.Departure.Format("15:04"), s.Arrival.Format("15:04"), s.RouteID)
		} else {
			fmt.Printf("  walk  %-30s -> %-30s  %s -> %s\n",
				s.FromName, s.ToName, s.Departure.Format("15:04"), s.Arrival.Format("15:04"))
		}
	}
	return nil
}
