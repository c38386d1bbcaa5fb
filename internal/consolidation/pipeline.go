package consolidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/retrieval"
	"github.com/Abhay-404/Eternal-Memory/internal/storage"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

const defaultCompressRetries = 2

// RunStore persists transcripts and per-date progress.
// Implemented by storage.Store.
type RunStore interface {
	SaveTranscript(t storage.Transcript, mark *storage.RunMark) error
	GetTranscript(date time.Time) (storage.Transcript, error)
	GetDayRun(date time.Time) (storage.DayRun, error)
	StartDayRun(date time.Time) (storage.DayRun, error)
	MarkStep(mark storage.RunMark) error
	FailDayRun(date time.Time, step, errMsg string) error
	CompleteDayRun(date time.Time, step string) error
	ListDayRunsBetween(from, to time.Time) ([]storage.DayRun, error)
	LatestCompletedDate() (time.Time, bool, error)
}

// Indexer embeds tier entries into the vector store.
// Implemented by retrieval.Indexer.
type Indexer interface {
	Index(ctx context.Context, entries []retrieval.Entry) (int, error)
}

// Options tune a Pipeline. Zero values select defaults.
type Options struct {
	// CompressRetries bounds how many times a proposal outside its word
	// band is sent back for compression or expansion.
	CompressRetries int
	// DailyMaxWords is the target length of daily summaries.
	DailyMaxWords int
	// Clock supplies "today" for weekly rollup decisions.
	Clock  tiers.Clock
	Logger *slog.Logger
}

// Result describes the outcome of one date's consolidation.
type Result struct {
	Date     time.Time
	State    string
	LastStep string
	Daily    tiers.DailySummary
	Rollups  []string // weekly and monthly keys created by this run
	Skipped  bool     // the date was already completed
}

// Pipeline consolidates days into the tier store.
type Pipeline struct {
	store    *tiers.Store
	runs     RunStore
	strategy MergeStrategy
	indexer  Indexer
	retries  int
	dailyMax int
	clock    tiers.Clock
	logger   *slog.Logger
}

// New creates a Pipeline.
func New(store *tiers.Store, runs RunStore, strategy MergeStrategy, indexer Indexer, opts Options) *Pipeline {
	if opts.CompressRetries <= 0 {
		opts.CompressRetries = defaultCompressRetries
	}
	if opts.DailyMaxWords <= 0 {
		opts.DailyMaxWords = 400
	}
	if opts.Clock == nil {
		opts.Clock = wallClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		store:    store,
		runs:     runs,
		strategy: strategy,
		indexer:  indexer,
		retries:  opts.CompressRetries,
		dailyMax: opts.DailyMaxWords,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// ConsolidateDay runs the steps for t.Date, resuming after the last step a
// previous attempt committed. A date that already completed is left alone.
// When t.Text is empty the persisted transcript is used.
func (p *Pipeline) ConsolidateDay(ctx context.Context, t storage.Transcript) (Result, error) {
	date := tiers.Day(t.Date)
	res := Result{Date: date}

	if run, err := p.runs.GetDayRun(date); err == nil && run.State == storage.RunCompleted {
		res.State, res.LastStep, res.Skipped = run.State, run.LastStep, true
		if d, err := p.store.DailySummary(ctx, date); err == nil {
			res.Daily = d
		}
		return res, nil
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return res, fmt.Errorf("loading run for %s: %w", tiers.DateKey(date), err)
	}

	run, err := p.runs.StartDayRun(date)
	if err != nil {
		return res, err
	}
	log := p.logger.With("date", tiers.DateKey(date))
	log.Info("consolidating day", "attempt", run.Attempts, "resume_after", run.LastStep)

	done := stepIndex(run.LastStep)
	res.LastStep = run.LastStep
	fail := func(step string, err error) (Result, error) {
		if ferr := p.runs.FailDayRun(date, step, err.Error()); ferr != nil {
			log.Error("recording failed step", "step", step, "error", ferr)
		}
		log.Warn("consolidation step failed", "step", step, "error", err)
		res.State = storage.RunFailed
		return res, &StepError{Date: date, Step: step, Err: err}
	}

	if done < stepIndex(StepTranscribed) {
		if strings.TrimSpace(t.Text) == "" {
			return fail(StepTranscribed, errors.New("empty transcript"))
		}
		t.Date = date
		if err := p.runs.SaveTranscript(t, &storage.RunMark{Date: date, Step: StepTranscribed}); err != nil {
			return fail(StepTranscribed, err)
		}
		res.LastStep = StepTranscribed
	} else if done < stepIndex(StepEmbedded) {
		stored, err := p.runs.GetTranscript(date)
		if err != nil {
			return fail(stepOrder[done+1], fmt.Errorf("loading transcript: %w", err))
		}
		t = stored
	}

	if done < stepIndex(StepDailySummarized) {
		d, err := p.summarizeDay(ctx, t, run.Attempts > 1)
		if err != nil {
			return fail(StepDailySummarized, err)
		}
		res.Daily = d
		res.LastStep = StepDailySummarized
	} else {
		d, err := p.store.DailySummary(ctx, date)
		if err != nil {
			return fail(stepOrder[done+1], fmt.Errorf("loading daily summary: %w", err))
		}
		res.Daily = d
	}

	if done < stepIndex(StepPrimaryContextUpdated) {
		if _, err := p.UpdatePrimaryContext(ctx, date, res.Daily.Text); err != nil {
			return fail(StepPrimaryContextUpdated, err)
		}
		res.LastStep = StepPrimaryContextUpdated
	}

	if done < stepIndex(StepShortTermUpdated) {
		if _, err := p.UpdateShortTermMemory(ctx, date, res.Daily.Text); err != nil {
			return fail(StepShortTermUpdated, err)
		}
		res.LastStep = StepShortTermUpdated
	}

	if done < stepIndex(StepEmbedded) {
		entries := append([]retrieval.Entry{dailyEntry(res.Daily)}, retrieval.TranscriptEntries(date, t.Text)...)
		if _, err := p.indexer.Index(ctx, entries); err != nil {
			return fail(StepEmbedded, err)
		}
		if err := p.runs.MarkStep(storage.RunMark{Date: date, Step: StepEmbedded}); err != nil {
			return fail(StepEmbedded, err)
		}
		res.LastStep = StepEmbedded
	}

	if done < stepIndex(StepRollupChecked) {
		created, err := p.CheckRollups(ctx, date)
		if err != nil {
			return fail(StepRollupChecked, err)
		}
		res.Rollups = created
		if err := p.runs.MarkStep(storage.RunMark{Date: date, Step: StepRollupChecked}); err != nil {
			return fail(StepRollupChecked, err)
		}
		res.LastStep = StepRollupChecked
	}

	if err := p.runs.CompleteDayRun(date, StepCompleted); err != nil {
		return fail(StepCompleted, err)
	}
	res.State = storage.RunCompleted
	res.LastStep = StepCompleted
	log.Info("day consolidated", "daily_words", res.Daily.WordCount, "rollups", len(res.Rollups))
	return res, nil
}

// summarizeDay writes the daily summary. A retry of a date may replace a
// summary from an earlier attempt; identical text is a no-op.
func (p *Pipeline) summarizeDay(ctx context.Context, t storage.Transcript, overwrite bool) (tiers.DailySummary, error) {
	date := tiers.Day(t.Date)
	primary, err := p.store.PrimaryContext(ctx)
	if err != nil {
		return tiers.DailySummary{}, err
	}
	text, err := p.strategy.SummarizeDay(ctx, DayInput{Date: date, Language: t.Language, Transcript: t.Text, Primary: primary.Text, MaxWords: p.dailyMax})
	if err != nil {
		return tiers.DailySummary{}, err
	}
	mark := &storage.RunMark{Date: date, Step: StepDailySummarized}
	d, err := p.store.UpsertDailySummary(ctx, date, text, tiers.DateKey(date), overwrite, mark)
	if errors.Is(err, tiers.ErrDuplicateDate) {
		if err := p.runs.MarkStep(*mark); err != nil {
			return tiers.DailySummary{}, err
		}
		return d, nil
	}
	return d, err
}

// UpdatePrimaryContext folds daily into the primary context. Proposals over
// the budget are sent back for compression up to the retry limit; the
// last one is rejected with ErrTierBudgetExceeded.
func (p *Pipeline) UpdatePrimaryContext(ctx context.Context, date time.Time, daily string) (tiers.PrimaryContext, error) {
	current, err := p.store.PrimaryContext(ctx)
	if err != nil {
		return tiers.PrimaryContext{}, err
	}
	limit := p.store.Limits().PrimaryMaxWords

	proposal, err := p.strategy.MergePrimary(ctx, PrimaryInput{Date: date, Current: current.Text, Daily: daily, MaxWords: limit})
	if err != nil {
		return tiers.PrimaryContext{}, err
	}
	for attempt := 0; tiers.WordCount(proposal) > limit; attempt++ {
		if attempt == p.retries {
			return tiers.PrimaryContext{}, &tiers.BudgetError{Tier: "primary context", Words: tiers.WordCount(proposal), Max: limit}
		}
		p.logger.Debug("compressing primary context", "date", tiers.DateKey(date), "words", tiers.WordCount(proposal), "attempt", attempt+1)
		proposal, err = p.strategy.Resize(ctx, ResizeInput{Target: TargetPrimary, Text: proposal, MaxWords: limit})
		if err != nil {
			return tiers.PrimaryContext{}, err
		}
	}
	return p.store.SavePrimaryContext(ctx, proposal, &storage.RunMark{Date: date, Step: StepPrimaryContextUpdated})
}

// UpdateShortTermMemory folds daily into the short-term memory. The result
// must list every window date that has a daily summary and land in the
// word band; misses are sent back up to the retry limit.
func (p *Pipeline) UpdateShortTermMemory(ctx context.Context, date time.Time, daily string) (tiers.ShortTermMemory, error) {
	limits := p.store.Limits()
	date = tiers.Day(date)
	windowStart := tiers.WindowStart(date, limits.ShortTermDays)

	history, err := p.store.HistoryDays(ctx)
	if err != nil {
		return tiers.ShortTermMemory{}, err
	}
	window, err := p.store.DailySummaries(ctx, windowStart, date)
	if err != nil {
		return tiers.ShortTermMemory{}, err
	}
	current, err := p.store.ShortTermMemory(ctx)
	if err != nil {
		return tiers.ShortTermMemory{}, err
	}
	primary, err := p.store.PrimaryContext(ctx)
	if err != nil {
		return tiers.ShortTermMemory{}, err
	}
	weeklies, err := p.store.ListSummaries(ctx, tiers.TierWeekly, windowStart.AddDate(0, 0, -7), date)
	if err != nil {
		return tiers.ShortTermMemory{}, err
	}

	in := ShortTermInput{
		Date:        date,
		WindowStart: windowStart,
		Current:     current.Text,
		Daily:       daily,
		Major:       primary.Text,
		Window:      window,
		MaxWords:    limits.ShortTermMaxWords,
	}
	if history >= limits.ShortTermDays {
		in.MinWords = limits.ShortTermMinWords
	}
	if len(weeklies) > 0 {
		in.RecentWeekly = weeklies[len(weeklies)-1].Text
	}

	proposal, err := p.strategy.MergeShortTerm(ctx, in)
	if err != nil {
		return tiers.ShortTermMemory{}, err
	}
	for attempt := 0; ; attempt++ {
		missing := missingDates(proposal, window)
		budgetErr := p.store.CheckShortTermBudget(proposal, history)
		if len(missing) == 0 && budgetErr == nil {
			break
		}
		if attempt == p.retries {
			if budgetErr != nil {
				return tiers.ShortTermMemory{}, budgetErr
			}
			return tiers.ShortTermMemory{}, &CoverageError{Missing: missing}
		}
		p.logger.Debug("revising short-term memory", "date", tiers.DateKey(date), "words", tiers.WordCount(proposal), "missing", len(missing), "attempt", attempt+1)
		if len(missing) > 0 {
			in.Current, in.Missing = proposal, missing
			proposal, err = p.strategy.MergeShortTerm(ctx, in)
		} else {
			proposal, err = p.strategy.Resize(ctx, ResizeInput{
				Target:      TargetShortTerm,
				Text:        proposal,
				WindowStart: windowStart,
				MinWords:    in.MinWords,
				MaxWords:    in.MaxWords,
			})
		}
		if err != nil {
			return tiers.ShortTermMemory{}, err
		}
	}

	from := windowStart
	if len(window) > 0 && window[0].Date.After(from) {
		from = window[0].Date
	}
	return p.store.SaveShortTermMemory(ctx, proposal, from, date, history, &storage.RunMark{Date: date, Step: StepShortTermUpdated})
}

// missingDates returns the keys of window days not mentioned as [YYYY-MM-DD].
func missingDates(text string, window []tiers.DailySummary) []string {
	var missing []string
	for _, d := range window {
		key := tiers.DateKey(d.Date)
		if !strings.Contains(text, "["+key+"]") {
			missing = append(missing, key)
		}
	}
	return missing
}

// EmbedSummary embeds one tier entry. Unchanged text is not re-embedded.
func (p *Pipeline) EmbedSummary(ctx context.Context, s tiers.Summary) error {
	_, err := p.indexer.Index(ctx, []retrieval.Entry{{Tier: s.Tier, Key: s.Key, Date: s.Date, Text: s.Text}})
	if err != nil {
		return fmt.Errorf("embedding %s %s: %w", s.Tier, s.Key, err)
	}
	return nil
}

func dailyEntry(d tiers.DailySummary) retrieval.Entry {
	return retrieval.Entry{Tier: tiers.TierDaily, Key: tiers.DateKey(d.Date), Date: d.Date, Text: d.Text}
}
