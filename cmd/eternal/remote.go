package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// --- search ---

type searchHit struct {
	ID    string  `json:"id"`
	Tier  string  `json:"tier"`
	Date  string  `json:"date"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid search over stored memories (needs a running server)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		hits, err := remoteSearch(cmd.Context(), client, strings.Join(args, " "), limit)
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(hits)
		}
		writeHits(os.Stdout, hits)
		return nil
	},
}

func remoteSearch(ctx context.Context, c *apiClient, query string, limit int) ([]searchHit, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var hits []searchHit
	if err := c.call(ctx, http.MethodGet, "/search?"+q.Encode(), nil, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

func writeHits(w io.Writer, hits []searchHit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "No matching memories found.")
		return
	}
	for i, h := range hits {
		header := fmt.Sprintf("%d. [%s %s] %.2f", i+1, h.Tier, h.Date, h.Score)
		fmt.Fprintln(w, colorize(colorBold, header))
		fmt.Fprintln(w, h.Text)
		fmt.Fprintln(w)
	}
}

// --- journal ---

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Add journal text to the drop folder of a running server",
	Long: `Add journal text to the drop folder of a running server. The text is
consolidated on the next run.

Examples:
  eternal journal --text "Went climbing with Priya"
  eternal journal --date 2025-01-14 --file ./notes.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		date, _ := cmd.Flags().GetString("date")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			text = string(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var result map[string]string
		req := map[string]string{"date": date, "text": text}
		if err := client.call(cmd.Context(), http.MethodPost, "/journal", req, &result); err != nil {
			return err
		}
		printSuccess("Queued %s for %s", result["file"], result["date"])
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 5, "maximum number of results")
	searchCmd.Flags().Bool("json", false, "print results as JSON")

	journalCmd.Flags().String("text", "", "journal text")
	journalCmd.Flags().String("file", "", "read journal text from a file")
	journalCmd.Flags().String("date", "", "date of the entry (YYYY-MM-DD, default today)")
}
