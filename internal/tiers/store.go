package tiers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/storage"
)

// Backend defines the persistence operations the Store needs.
// Implemented by storage.Store.
type Backend interface {
	GetPrimaryContext() (storage.PrimaryContext, error)
	SavePrimaryContext(pc storage.PrimaryContext, mark *storage.RunMark) error
	GetShortTermMemory() (storage.ShortTermMemory, error)
	SaveShortTermMemory(m storage.ShortTermMemory, mark *storage.RunMark) error
	GetDailySummary(date time.Time) (storage.DailySummary, error)
	SaveDailySummary(d storage.DailySummary, mark *storage.RunMark) error
	ListDailySummaries(from, to time.Time) ([]storage.DailySummary, error)
	CountDailySummaries() (int, error)
	GetWeeklySummary(week string) (storage.WeeklySummary, error)
	InsertWeeklySummary(w storage.WeeklySummary) (bool, error)
	ListWeeklySummaries(from, to time.Time) ([]storage.WeeklySummary, error)
	GetMonthlySummary(month string) (storage.MonthlySummary, error)
	InsertMonthlySummary(m storage.MonthlySummary) (bool, error)
	ListMonthlySummaries(from, to time.Time) ([]storage.MonthlySummary, error)
	DailyDatesWithoutRollup(tier string) ([]time.Time, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store enforces tier invariants on top of a Backend. Writes are serialized;
// readers see either the state before or after a write.
type Store struct {
	backend Backend
	limits  Limits
	clock   Clock

	mu sync.RWMutex
}

// NewStore creates a Store with the given word budgets.
func NewStore(backend Backend, limits Limits) *Store {
	return &Store{backend: backend, limits: limits, clock: realClock{}}
}

// NewStoreWithClock creates a Store with a custom clock (for testing).
func NewStoreWithClock(backend Backend, limits Limits, clock Clock) *Store {
	return &Store{backend: backend, limits: limits, clock: clock}
}

// Limits returns the word budgets this store enforces.
func (s *Store) Limits() Limits {
	return s.limits
}

// PrimaryContext returns the current primary context, or a zero value if none
// has been written yet. It always reads the backend, so writes made by
// another process are visible.
func (s *Store) PrimaryContext(ctx context.Context) (PrimaryContext, error) {
	if err := ctx.Err(); err != nil {
		return PrimaryContext{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	pc, err := s.backend.GetPrimaryContext()
	if errors.Is(err, storage.ErrNotFound) {
		return PrimaryContext{}, nil
	}
	if err != nil {
		return PrimaryContext{}, fmt.Errorf("loading primary context: %w", err)
	}
	return pc, nil
}

// SavePrimaryContext replaces the primary context. Text over the word budget
// is rejected with ErrTierBudgetExceeded, never truncated.
func (s *Store) SavePrimaryContext(ctx context.Context, text string, mark *storage.RunMark) (PrimaryContext, error) {
	if err := ctx.Err(); err != nil {
		return PrimaryContext{}, err
	}
	words := WordCount(text)
	if words > s.limits.PrimaryMaxWords {
		return PrimaryContext{}, &BudgetError{Tier: "primary context", Words: words, Max: s.limits.PrimaryMaxWords}
	}

	pc := PrimaryContext{Text: text, WordCount: words, LastUpdated: s.clock.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.SavePrimaryContext(pc, mark); err != nil {
		return PrimaryContext{}, fmt.Errorf("saving primary context: %w", err)
	}
	return pc, nil
}

// ShortTermMemory returns the current short-term memory, or a zero value.
func (s *Store) ShortTermMemory(ctx context.Context) (ShortTermMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.backend.GetShortTermMemory()
	if errors.Is(err, storage.ErrNotFound) {
		return ShortTermMemory{}, nil
	}
	if err != nil {
		return ShortTermMemory{}, fmt.Errorf("loading short-term memory: %w", err)
	}
	return m, nil
}

// CheckShortTermBudget reports whether text fits the short-term band given
// how many days of history exist. The lower bound applies only once a full
// window of history is available.
func (s *Store) CheckShortTermBudget(text string, historyDays int) error {
	words := WordCount(text)
	lower := 0
	if historyDays >= s.limits.ShortTermDays {
		lower = s.limits.ShortTermMinWords
	}
	if words > s.limits.ShortTermMaxWords || words < lower {
		return &BudgetError{Tier: "short-term memory", Words: words, Min: lower, Max: s.limits.ShortTermMaxWords}
	}
	return nil
}

// SaveShortTermMemory replaces the short-term memory covering [from, to].
func (s *Store) SaveShortTermMemory(ctx context.Context, text string, from, to time.Time, historyDays int, mark *storage.RunMark) (ShortTermMemory, error) {
	if err := ctx.Err(); err != nil {
		return ShortTermMemory{}, err
	}
	if err := s.CheckShortTermBudget(text, historyDays); err != nil {
		return ShortTermMemory{}, err
	}

	m := ShortTermMemory{
		Text:        text,
		WordCount:   WordCount(text),
		CoveredFrom: Day(from),
		CoveredTo:   Day(to),
		LastUpdated: s.clock.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.SaveShortTermMemory(m, mark); err != nil {
		return ShortTermMemory{}, fmt.Errorf("saving short-term memory: %w", err)
	}
	return m, nil
}

// DailySummary returns the summary for date or ErrNotFound.
func (s *Store) DailySummary(ctx context.Context, date time.Time) (DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.GetDailySummary(Day(date))
}

// UpsertDailySummary records the summary for date. Re-submitting identical
// text yields ErrDuplicateDate; different text yields ErrConflict unless
// overwrite is set.
func (s *Store) UpsertDailySummary(ctx context.Context, date time.Time, text, transcriptRef string, overwrite bool, mark *storage.RunMark) (DailySummary, error) {
	if err := ctx.Err(); err != nil {
		return DailySummary{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	date = Day(date)
	existing, err := s.backend.GetDailySummary(date)
	switch {
	case err == nil && existing.Text == text:
		return existing, ErrDuplicateDate
	case err == nil && !overwrite:
		return existing, fmt.Errorf("%s: %w", DateKey(date), ErrConflict)
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return DailySummary{}, fmt.Errorf("loading daily summary: %w", err)
	}

	d := DailySummary{Date: date, Text: text, WordCount: WordCount(text), TranscriptRef: transcriptRef}
	if err := s.backend.SaveDailySummary(d, mark); err != nil {
		return DailySummary{}, fmt.Errorf("saving daily summary: %w", err)
	}
	return s.backend.GetDailySummary(date)
}

// DailySummaries returns daily summaries with from <= date <= to, ascending.
func (s *Store) DailySummaries(ctx context.Context, from, to time.Time) ([]DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.ListDailySummaries(Day(from), Day(to))
}

// HistoryDays returns how many dates have a daily summary.
func (s *Store) HistoryDays(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.CountDailySummaries()
}

// WeeklySummary returns the summary for an ISO week key such as "2025-W02", or ErrNotFound.
func (s *Store) WeeklySummary(ctx context.Context, week string) (WeeklySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.GetWeeklySummary(week)
}

// SaveWeeklySummary stores w unless the week already has one. It reports
// whether the summary was created.
func (s *Store) SaveWeeklySummary(ctx context.Context, w WeeklySummary) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(w.DailyRefs) != 7 {
		return false, &RollupIntegrityError{Period: w.Week, Missing: []string{fmt.Sprintf("%d of 7 daily summaries", 7-len(w.DailyRefs))}}
	}
	w.WordCount = WordCount(w.Text)

	s.mu.Lock()
	defer s.mu.Unlock()
	created, err := s.backend.InsertWeeklySummary(w)
	if err != nil {
		return false, fmt.Errorf("saving weekly summary %s: %w", w.Week, err)
	}
	return created, nil
}

// MonthlySummary returns the summary for a month key such as "2025-01", or ErrNotFound.
func (s *Store) MonthlySummary(ctx context.Context, month string) (MonthlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.GetMonthlySummary(month)
}

// SaveMonthlySummary stores m unless the month already has one.
func (s *Store) SaveMonthlySummary(ctx context.Context, m MonthlySummary) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(m.Refs) == 0 {
		return false, &RollupIntegrityError{Period: m.Month, Missing: []string{"all constituents"}}
	}
	m.WordCount = WordCount(m.Text)

	s.mu.Lock()
	defer s.mu.Unlock()
	created, err := s.backend.InsertMonthlySummary(m)
	if err != nil {
		return false, fmt.Errorf("saving monthly summary %s: %w", m.Month, err)
	}
	return created, nil
}

// UnrolledPeriods returns the start of every week or month holding daily
// summaries that have no rollup of tier yet, ascending.
func (s *Store) UnrolledPeriods(ctx context.Context, tier Tier) ([]time.Time, error) {
	var bounds func(time.Time) (time.Time, time.Time)
	switch tier {
	case TierWeekly:
		bounds = WeekBounds
	case TierMonthly:
		bounds = MonthBounds
	default:
		return nil, fmt.Errorf("unrolled periods: unsupported tier %q", tier)
	}

	s.mu.RLock()
	dates, err := s.backend.DailyDatesWithoutRollup(string(tier))
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for _, d := range dates {
		start, _ := bounds(d)
		if n := len(out); n == 0 || !out[n-1].Equal(start) {
			out = append(out, start)
		}
	}
	return out, nil
}

// ListSummaries returns the summaries of one tier whose period starts within
// [from, to], ascending by date.
func (s *Store) ListSummaries(ctx context.Context, tier Tier, from, to time.Time) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Summary
	switch tier {
	case TierDaily:
		list, err := s.backend.ListDailySummaries(Day(from), Day(to))
		if err != nil {
			return nil, err
		}
		for _, d := range list {
			out = append(out, Summary{Tier: tier, Key: DateKey(d.Date), Date: d.Date, Text: d.Text, WordCount: d.WordCount})
		}
	case TierWeekly:
		list, err := s.backend.ListWeeklySummaries(Day(from), Day(to))
		if err != nil {
			return nil, err
		}
		for _, w := range list {
			out = append(out, Summary{Tier: tier, Key: w.Week, Date: w.WeekStart, Text: w.Text, WordCount: w.WordCount})
		}
	case TierMonthly:
		list, err := s.backend.ListMonthlySummaries(Day(from), Day(to))
		if err != nil {
			return nil, err
		}
		for _, m := range list {
			out = append(out, Summary{Tier: tier, Key: m.Month, Date: m.MonthStart, Text: m.Text, WordCount: m.WordCount})
		}
	default:
		return nil, fmt.Errorf("listing summaries: unsupported tier %q", tier)
	}
	return out, nil
}
