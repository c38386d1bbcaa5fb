package consolidation

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

// Section headers of the short-term memory text.
const (
	majorHeader  = "MAJOR USER INFO:"
	eventsHeader = "LAST 14 DAYS EVENTS:"
)

// primaryLineWords caps how much of a daily summary one primary context
// line carries.
const primaryLineWords = 40

var entryLine = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2})\]\s*(.*)$`)

// RuleStrategy builds tier text without a model: summaries are extractive
// and merges follow the KEEP/ADD/UPDATE/REMOVE rules mechanically. Its
// output is deterministic, which makes it suitable for tests and offline
// runs.
type RuleStrategy struct{}

// NewRuleStrategy creates a RuleStrategy.
func NewRuleStrategy() *RuleStrategy {
	return &RuleStrategy{}
}

func (RuleStrategy) SummarizeDay(_ context.Context, in DayInput) (string, error) {
	text := firstWords(in.Transcript, dailyMax(in.MaxWords))
	if text == "" {
		return "", fmt.Errorf("summarizing %s: empty transcript", tiers.DateKey(in.Date))
	}
	return text, nil
}

func (RuleStrategy) SummarizeWeek(_ context.Context, week string, dailies []tiers.DailySummary) (string, error) {
	if len(dailies) == 0 {
		return "", fmt.Errorf("summarizing %s: no daily summaries", week)
	}
	per := 600/len(dailies) - 1
	var sb strings.Builder
	fmt.Fprintf(&sb, "Week %s.", week)
	for _, d := range dailies {
		fmt.Fprintf(&sb, "\n[%s] %s", tiers.DateKey(d.Date), firstWords(d.Text, per))
	}
	return sb.String(), nil
}

func (RuleStrategy) SummarizeMonth(_ context.Context, month string, parts []tiers.Summary) (string, error) {
	if len(parts) == 0 {
		return "", fmt.Errorf("summarizing %s: no constituents", month)
	}
	per := 1000/len(parts) - 2
	var sb strings.Builder
	fmt.Fprintf(&sb, "Month %s.", month)
	for _, p := range parts {
		fmt.Fprintf(&sb, "\n[%s %s] %s", p.Tier, p.Key, firstWords(p.Text, per))
	}
	return sb.String(), nil
}

// MergePrimary appends a dated line for the new day and drops the oldest
// dated lines until the text fits.
func (RuleStrategy) MergePrimary(_ context.Context, in PrimaryInput) (string, error) {
	var lines []string
	for _, l := range strings.Split(in.Current, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	prefix := "- " + tiers.DateKey(in.Date) + ":"
	kept := lines[:0]
	for _, l := range lines {
		if !strings.HasPrefix(l, prefix) {
			kept = append(kept, l)
		}
	}
	lines = append(kept, prefix+" "+firstWords(in.Daily, primaryLineWords))

	for len(lines) > 1 && tiers.WordCount(strings.Join(lines, "\n")) > in.MaxWords {
		lines = lines[1:]
	}
	return trimWords(strings.Join(lines, "\n"), in.MaxWords), nil
}

// MergeShortTerm rebuilds the short-term memory from its parsed entries.
// Window days are added or updated from their daily summaries; entries
// older than the window are kept until the text would exceed MaxWords and
// are then removed oldest first.
func (RuleStrategy) MergeShortTerm(_ context.Context, in ShortTermInput) (string, error) {
	_, entries := parseShortTerm(in.Current)
	for _, d := range in.Window {
		entries[tiers.DateKey(d.Date)] = flatten(d.Text)
	}
	entries[tiers.DateKey(in.Date)] = flatten(in.Daily)

	return fitShortTerm(in.Major, entries, in.WindowStart, in.MaxWords), nil
}

// Resize trims text that is over budget. It cannot invent material, so text
// under the minimum comes back unchanged.
func (RuleStrategy) Resize(_ context.Context, in ResizeInput) (string, error) {
	if tiers.WordCount(in.Text) <= in.MaxWords {
		return in.Text, nil
	}
	if in.Target == TargetShortTerm {
		if major, entries := parseShortTerm(in.Text); len(entries) > 0 {
			return fitShortTerm(major, entries, in.WindowStart, in.MaxWords), nil
		}
	}
	return trimWords(in.Text, in.MaxWords), nil
}

// parseShortTerm splits short-term text into its major section and dated
// entries. Text in another layout yields no entries.
func parseShortTerm(text string) (string, map[string]string) {
	entries := make(map[string]string)
	var major []string
	inMajor := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == majorHeader:
			inMajor = true
		case line == eventsHeader:
			inMajor = false
		case entryLine.MatchString(line):
			m := entryLine.FindStringSubmatch(line)
			entries[m[1]] = m[2]
		case inMajor && line != "":
			major = append(major, line)
		}
	}
	return strings.Join(major, "\n"), entries
}

// fitShortTerm renders entries under maxWords. Expired entries go first,
// oldest first; if window entries alone are too long each is shortened
// to an equal share.
func fitShortTerm(major string, entries map[string]string, windowStart time.Time, maxWords int) string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := tiers.DateKey(windowStart)
	for len(keys) > 0 && keys[0] < start && tiers.WordCount(renderShortTerm(major, entries, keys)) > maxWords {
		keys = keys[1:]
	}

	out := renderShortTerm(major, entries, keys)
	if tiers.WordCount(out) <= maxWords || len(keys) == 0 {
		return out
	}

	fixed := tiers.WordCount(renderShortTerm(major, nil, nil))
	share := (maxWords-fixed)/len(keys) - 1
	if share < 1 {
		share = 1
	}
	trimmed := make(map[string]string, len(keys))
	for _, k := range keys {
		trimmed[k] = firstWords(entries[k], share)
	}
	return renderShortTerm(major, trimmed, keys)
}

func renderShortTerm(major string, entries map[string]string, keys []string) string {
	var sb strings.Builder
	sb.WriteString(majorHeader)
	if major != "" {
		sb.WriteString("\n")
		sb.WriteString(major)
	}
	sb.WriteString("\n\n")
	sb.WriteString(eventsHeader)
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n[%s] %s", k, entries[k])
	}
	return sb.String()
}

// firstWords returns at most n words of text joined by single spaces.
func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if n < 0 {
		n = 0
	}
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// trimWords cuts text to at most n words, keeping line breaks between the
// lines that survive.
func trimWords(text string, n int) string {
	if tiers.WordCount(text) <= n {
		return text
	}
	var out []string
	left := n
	for _, line := range strings.Split(text, "\n") {
		if left <= 0 {
			break
		}
		words := strings.Fields(line)
		if len(words) > left {
			words = words[:left]
		}
		left -= len(words)
		out = append(out, strings.Join(words, " "))
	}
	return strings.Join(out, "\n")
}

func flatten(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
