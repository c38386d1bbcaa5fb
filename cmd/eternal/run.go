package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Abhay-404/Eternal-Memory/internal/consolidation"
	"github.com/Abhay-404/Eternal-Memory/internal/storage"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consolidate every pending day in the drop folder",
	Long: `Consolidate every pending day in the drop folder, oldest first.

A day that fails is reported and retried on the next run; later days are
still processed. The command exits non-zero when any day failed.

Examples:
  eternal run
  eternal run --date 2025-01-14
  eternal run --rule-merge`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dateStr, _ := cmd.Flags().GetString("date")
		ruleMerge, _ := cmd.Flags().GetBool("rule-merge")

		var only time.Time
		if dateStr != "" {
			d, err := tiers.ParseDate(dateStr)
			if err != nil {
				return err
			}
			only = d
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, appOptions{ruleMerge: ruleMerge, checkEngine: true})
		if err != nil {
			return err
		}
		defer a.Close()

		var src consolidation.Source = a.folder
		if !only.IsZero() {
			src = singleDay{Source: a.folder, date: only}
		}

		printStep("Consolidating %s", a.folder.Dir())
		report, err := a.pipeline.RunBatch(ctx, src)
		writeReport(os.Stdout, report)
		if err != nil {
			return err
		}
		if n := report.Failed(); n > 0 {
			return fmt.Errorf("%d day(s) failed", n)
		}
		return nil
	},
}

// singleDay narrows a Source to one date.
type singleDay struct {
	consolidation.Source
	date time.Time
}

func (s singleDay) Pending(ctx context.Context) ([]time.Time, error) {
	dates, err := s.Source.Pending(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range dates {
		if tiers.Day(d).Equal(tiers.Day(s.date)) {
			return []time.Time{d}, nil
		}
	}
	return nil, nil
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Consolidate one day from a transcript file",
	Long: `Consolidate one day from a transcript file, bypassing the drop folder.

Examples:
  eternal consolidate --date 2025-01-14 --file ./2025-01-14.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dateStr, _ := cmd.Flags().GetString("date")
		file, _ := cmd.Flags().GetString("file")
		ruleMerge, _ := cmd.Flags().GetBool("rule-merge")
		if dateStr == "" || file == "" {
			return fmt.Errorf("--date and --file are required")
		}
		date, err := tiers.ParseDate(dateStr)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading transcript: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, appOptions{ruleMerge: ruleMerge, checkEngine: true})
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.pipeline.ConsolidateDay(ctx, storage.Transcript{
			Date:    date,
			Text:    string(data),
			Sources: []string{file},
		})
		if err != nil {
			return err
		}
		if res.Skipped {
			printWarning("%s was already consolidated", tiers.DateKey(date))
			return nil
		}
		printSuccess("%s consolidated (%d words)", tiers.DateKey(date), res.Daily.WordCount)
		for _, key := range res.Rollups {
			printStatus("Rollup", "%s", key)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("date", "", "only consolidate this date (YYYY-MM-DD)")
	runCmd.Flags().Bool("rule-merge", false, "merge with deterministic rules instead of the model")

	consolidateCmd.Flags().String("date", "", "date of the transcript (YYYY-MM-DD)")
	consolidateCmd.Flags().String("file", "", "transcript file")
	consolidateCmd.Flags().Bool("rule-merge", false, "merge with deterministic rules instead of the model")
}
