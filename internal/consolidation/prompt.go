package consolidation

import (
	"fmt"
	"strings"

	"github.com/Abhay-404/Eternal-Memory/internal/engine"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

const systemPrompt = `You maintain the long-term memory of one person, built from their spoken daily journal. Write in the third person about "the user". Be specific: keep names, numbers, places, times and feelings. Never invent facts. Return only the requested text with no preamble or commentary.`

const dailyInstructions = `Write a structured daily summary of %d-%d words using these sections, skipping any that would be empty:

OVERVIEW: one sentence
ACTIVITIES: what happened, in order, with times when mentioned
WORK: projects, progress, decisions, blockers
PEOPLE: name and what was discussed or done together
THOUGHTS: insights and decisions
MOOD: energy and emotional state, and what drove it
HEALTH: exercise, sleep, meals, symptoms
GOALS: progress, new goals, obstacles
MENTIONS: books, tools, places, concepts

Prefer searchable specifics ("fixed the rate limiter in the payments API") over vague phrasing ("worked on code").`

const weeklyInstructions = `Write a weekly summary of 400-600 words using these sections:

WEEK OVERVIEW: two or three sentences
WORK: projects, wins, blockers
PATTERNS: recurring themes, energy and mood trends
ACHIEVEMENTS
CHALLENGES
SOCIAL: key people and conversations
INSIGHTS: learnings and decisions
HEALTH: physical and mental trends
FORWARD: what carries into next week

Synthesize across days instead of repeating them one by one.`

const monthlyInstructions = `Write a monthly summary of 600-1000 words using these sections:

MONTH ESSENCE: three or four sentences on what the month was about
WORK
PERSONAL GROWTH
HEALTH
RELATIONSHIPS
GOALS: progress, new goals, abandoned goals and why
PATTERNS: behavioral, emotional, use of time
KEY MOMENTS: the three to seven most important events, with dates
WINS
STRUGGLES

Tell the month as a story with turning points, and quantify where possible.`

const primaryInstructions = `Update the PRIMARY CONTEXT: at most %d words that accompany every question the user asks.

Keep identity, active goals and projects, key preferences, health, important relationships and ongoing habits.
ADD new important facts. UPDATE facts that changed. REMOVE completed or outdated items. IGNORE one-off events and trivia.

Format:
IDENTITY:
WORK:
HEALTH:
PEOPLE:
PREFERENCES:
ACTIVE:
OTHER:

Be dense. Never exceed %d words.`

const shortTermInstructions = `Update the SHORT-TERM MEMORY. It holds everything major about the user plus every event of the last %d days.

For each fact decide one operation:
KEEP facts that are major or dated on or after %s.
ADD new facts from today's summary.
UPDATE facts that today's summary changes.
REMOVE events dated before %s unless they are major, and outdated facts.

Format:
MAJOR USER INFO:
(identity, ongoing projects, relationships, health; these never expire)

LAST 14 DAYS EVENTS:
[YYYY-MM-DD] events of that day, one line per date, oldest first

Every date listed under "Dates that must appear" needs its own [YYYY-MM-DD] line.
Length: %s.`

const resizeInstructions = `The text below is %d words. Rewrite it to %s while keeping its format.`

// dailyPrompt builds the messages for a daily summary.
func dailyPrompt(in DayInput) []engine.Message {
	var sb strings.Builder
	lang := in.Language
	if lang == "" {
		lang = "unknown language"
	}
	fmt.Fprintf(&sb, "Daily journal transcript (%s) for %s.\n\n", lang, in.Date.Format("Monday, 2006-01-02"))
	fmt.Fprintf(&sb, dailyInstructions, 300, dailyMax(in.MaxWords))
	if p := strings.TrimSpace(in.Primary); p != "" {
		fmt.Fprintf(&sb, "\n\nCURRENT PRIMARY CONTEXT (who the speaker is; use it to resolve names and references):\n%s", p)
	}
	fmt.Fprintf(&sb, "\n\nTRANSCRIPT:\n%s", in.Transcript)
	return messages(sb.String())
}

func dailyMax(n int) int {
	if n <= 0 {
		return 400
	}
	return n
}

// weeklyPrompt builds the messages for a weekly rollup.
func weeklyPrompt(week string, dailies []tiers.DailySummary) []engine.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Week %s.\n\n%s\n\nDAILY SUMMARIES:\n", week, weeklyInstructions)
	for _, d := range dailies {
		fmt.Fprintf(&sb, "\n[%s]\n%s\n", tiers.DateKey(d.Date), d.Text)
	}
	return messages(sb.String())
}

// monthlyPrompt builds the messages for a monthly rollup.
func monthlyPrompt(month string, parts []tiers.Summary) []engine.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Month %s.\n\n%s\n\nSUMMARIES:\n", month, monthlyInstructions)
	for _, p := range parts {
		fmt.Fprintf(&sb, "\n[%s %s]\n%s\n", p.Tier, p.Key, p.Text)
	}
	return messages(sb.String())
}

// primaryPrompt builds the messages for a primary context update.
func primaryPrompt(in PrimaryInput) []engine.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, primaryInstructions, in.MaxWords, in.MaxWords)
	current := in.Current
	if current == "" {
		current = "[empty, first entry]"
	}
	fmt.Fprintf(&sb, "\n\nCURRENT CONTEXT (%d words):\n%s", tiers.WordCount(in.Current), current)
	fmt.Fprintf(&sb, "\n\nTODAY (%s):\n%s", tiers.DateKey(in.Date), in.Daily)
	return messages(sb.String())
}

// shortTermPrompt builds the messages for a short-term memory update.
func shortTermPrompt(in ShortTermInput) []engine.Message {
	var sb strings.Builder
	start := tiers.DateKey(in.WindowStart)
	days := int(in.Date.Sub(in.WindowStart).Hours()/24) + 1
	fmt.Fprintf(&sb, shortTermInstructions, days, start, start, band(in.MinWords, in.MaxWords))

	current := in.Current
	if current == "" {
		current = "[empty, first entry]"
	}
	fmt.Fprintf(&sb, "\n\nCURRENT SHORT-TERM MEMORY (%d words):\n%s", tiers.WordCount(in.Current), current)
	if in.Major != "" {
		fmt.Fprintf(&sb, "\n\nPRIMARY CONTEXT (major facts):\n%s", in.Major)
	}
	fmt.Fprintf(&sb, "\n\nTODAY (%s):\n%s", tiers.DateKey(in.Date), in.Daily)
	if in.RecentWeekly != "" {
		fmt.Fprintf(&sb, "\n\nMOST RECENT WEEKLY SUMMARY (reference only):\n%s", in.RecentWeekly)
	}

	sb.WriteString("\n\nDates that must appear:")
	for _, d := range in.Window {
		fmt.Fprintf(&sb, " %s", tiers.DateKey(d.Date))
	}
	if len(in.Missing) > 0 {
		fmt.Fprintf(&sb, "\n\nYour previous answer left out %s. Include them.", strings.Join(in.Missing, ", "))
	}
	return messages(sb.String())
}

// resizePrompt builds the messages for a compression or expansion request.
func resizePrompt(in ResizeInput) []engine.Message {
	var sb strings.Builder
	words := tiers.WordCount(in.Text)
	fmt.Fprintf(&sb, resizeInstructions, words, band(in.MinWords, in.MaxWords))
	switch {
	case words > in.MaxWords && in.Target == TargetPrimary:
		sb.WriteString("\nKeep identity, active goals, health issues and key people. Drop completed projects and redundancy. Use terse phrasing.")
	case words > in.MaxWords:
		fmt.Fprintf(&sb, "\nDrop events dated before %s first, then shorten the oldest entries. Keep MAJOR USER INFO and every date from %s on.", tiers.DateKey(in.WindowStart), tiers.DateKey(in.WindowStart))
	default:
		sb.WriteString("\nAdd detail from the existing entries (people, places, numbers, feelings). Do not invent events.")
	}
	fmt.Fprintf(&sb, "\n\nTEXT:\n%s", in.Text)
	return messages(sb.String())
}

func band(lo, hi int) string {
	if lo > 0 {
		return fmt.Sprintf("between %d and %d words", lo, hi)
	}
	return fmt.Sprintf("at most %d words", hi)
}

func messages(user string) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}
}
