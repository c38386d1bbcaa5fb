package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "eternal",
	Short: "Eternal keeps a tiered memory of your days",
	Long: `Eternal turns daily journal transcripts into a layered memory: a short
primary context, a rolling two-week short-term memory, and daily, weekly
and monthly summaries that can be searched and asked about.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(summariesCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
