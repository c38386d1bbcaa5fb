package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/consolidation"
	"github.com/Abhay-404/Eternal-Memory/internal/storage"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// stderr is where the print helpers write; tests swap it.
var stderr io.Writer = os.Stderr

func printMarked(color, mark, format string, args []any) {
	fmt.Fprintln(stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printMarked(colorGreen, "✓", format, args) }
func printError(format string, args ...any)   { printMarked(colorRed, "✗", format, args) }
func printWarning(format string, args ...any) { printMarked(colorYellow, "⚠", format, args) }
func printStep(format string, args ...any)    { printMarked(colorCyan, "→", format, args) }

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// writeReport prints one line per day of a batch run followed by a total.
func writeReport(w io.Writer, r consolidation.BatchReport) {
	if len(r.Days) == 0 {
		fmt.Fprintln(w, "nothing to consolidate")
		return
	}
	for _, d := range r.Days {
		fmt.Fprintln(w, dayLine(d))
	}
	fmt.Fprintf(w, "%d day(s), %d failed, took %s\n",
		len(r.Days), r.Failed(), r.Finished.Sub(r.Started).Round(time.Millisecond))
}

func dayLine(d consolidation.DayReport) string {
	date := tiers.DateKey(d.Date)
	switch {
	case d.Skipped:
		return colorize(colorYellow, date+"  skipped (already completed)")
	case d.State == storage.RunCompleted:
		line := date + "  completed"
		if len(d.Rollups) > 0 {
			line += "  rollups: " + strings.Join(d.Rollups, ", ")
		}
		return colorize(colorGreen, line)
	default:
		return colorize(colorRed, fmt.Sprintf("%s  failed at %s: %v", date, d.FailedStep, d.Err))
	}
}
