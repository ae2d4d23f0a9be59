package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:          "transitplan",
	Short:        "Multimodal transit journey planner",
	Long:         "Ingests GTFS feeds, synthesizes pedestrian transfers, and answers journey queries",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "", "transitplan.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "", "feeds.json", "feed configuration path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
