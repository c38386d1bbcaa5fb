package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Abhay-404/Eternal-Memory/internal/storage"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

// --- memory ---

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Show the always-available memory tiers",
}

var memoryPrimaryCmd = &cobra.Command{
	Use:   "primary",
	Short: "Print the primary context",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		pc, err := a.tiers.PrimaryContext(cmd.Context())
		if err != nil {
			return err
		}
		if pc.Text == "" {
			printWarning("primary context is empty")
			return nil
		}
		fmt.Println(pc.Text)
		printStatus("Words", "%d/%d", pc.WordCount, a.cfg.Memory.PrimaryMaxWords)
		return nil
	},
}

var memoryShortTermCmd = &cobra.Command{
	Use:   "short-term",
	Short: "Print the short-term memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.tiers.ShortTermMemory(cmd.Context())
		if err != nil {
			return err
		}
		if st.Text == "" {
			printWarning("short-term memory is empty")
			return nil
		}
		fmt.Println(st.Text)
		printStatus("Words", "%d", st.WordCount)
		printStatus("Covers", "%s", coverage(st.CoveredFrom, st.CoveredTo))
		return nil
	},
}

func init() {
	memoryCmd.AddCommand(memoryPrimaryCmd)
	memoryCmd.AddCommand(memoryShortTermCmd)
}

// --- summaries ---

var summariesCmd = &cobra.Command{
	Use:   "summaries",
	Short: "Browse daily, weekly and monthly summaries",
}

var summariesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List summaries of one tier",
	Long: `List summaries of one tier in date order.

Examples:
  eternal summaries list --tier weekly
  eternal summaries list --tier daily --from 2025-01-01 --to 2025-01-31 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tierStr, _ := cmd.Flags().GetString("tier")
		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")
		asJSON, _ := cmd.Flags().GetBool("json")

		tier, err := tiers.ParseTier(tierStr)
		if err != nil {
			return err
		}
		from, to, err := parseRange(fromStr, toStr)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.tiers.ListSummaries(ctx, tier, from, to)
		if err != nil {
			return err
		}
		if asJSON {
			return writeSummariesJSON(os.Stdout, list)
		}
		writeSummaries(os.Stdout, list)
		return nil
	},
}

func init() {
	summariesListCmd.Flags().String("tier", "daily", "daily, weekly or monthly")
	summariesListCmd.Flags().String("from", "", "first date (YYYY-MM-DD)")
	summariesListCmd.Flags().String("to", "", "last date (YYYY-MM-DD)")
	summariesListCmd.Flags().Bool("json", false, "print summaries as JSON")
	summariesCmd.AddCommand(summariesListCmd)
}

var lastDate = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// parseRange turns optional --from/--to flags into an inclusive range.
func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from, to := time.Time{}, lastDate
	if fromStr != "" {
		d, err := tiers.ParseDate(fromStr)
		if err != nil {
			return from, to, fmt.Errorf("--from: %w", err)
		}
		from = d
	}
	if toStr != "" {
		d, err := tiers.ParseDate(toStr)
		if err != nil {
			return from, to, fmt.Errorf("--to: %w", err)
		}
		to = d
	}
	if to.Before(from) {
		return from, to, fmt.Errorf("--to is before --from")
	}
	return from, to, nil
}

func writeSummaries(w io.Writer, list []tiers.Summary) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No summaries.")
		return
	}
	for _, s := range list {
		header := fmt.Sprintf("%s (%s, %d words)", s.Key, tiers.DateKey(s.Date), s.WordCount)
		fmt.Fprintln(w, colorize(colorBold, header))
		fmt.Fprintln(w, s.Text)
		fmt.Fprintln(w)
	}
}

func writeSummariesJSON(w io.Writer, list []tiers.Summary) error {
	type item struct {
		Tier      tiers.Tier `json:"tier"`
		Key       string     `json:"key"`
		Date      string     `json:"date"`
		Text      string     `json:"text"`
		WordCount int        `json:"word_count"`
	}
	out := make([]item, len(list))
	for i, s := range list {
		out[i] = item{Tier: s.Tier, Key: s.Key, Date: tiers.DateKey(s.Date), Text: s.Text, WordCount: s.WordCount}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// --- reindex ---

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from the stored summaries and transcripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, appOptions{checkEngine: true})
		if err != nil {
			return err
		}
		defer a.Close()
		return reindex(ctx, a)
	},
}

func reindex(ctx context.Context, a *app) error {
	queued, err := a.worker.Reindex(ctx)
	if err != nil {
		return err
	}
	printStep("Queued %d entries", queued)
	done, err := a.worker.Drain(ctx)
	if err != nil {
		return err
	}
	if jobs, err := a.store.JobCounts(); err == nil && jobs[storage.JobPending]+jobs[storage.JobFailed] > 0 {
		printWarning("%d job(s) still pending, %d failed", jobs[storage.JobPending], jobs[storage.JobFailed])
	}
	if _, err := a.store.PruneJobs(time.Now()); err != nil {
		printWarning("%v", err)
	}
	printSuccess("Processed %d index job(s)", done)
	return nil
}
