package consolidation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/storage"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

// CheckRollups creates the weekly and monthly summaries that became due
// with date. Besides the period containing date and the one before it,
// every older period with daily summaries but no rollup is checked, so
// gaps in the history and late retries still close their periods.
//
// A week rolls up once it has all seven daily summaries and has ended
// relative to the pipeline clock. A month rolls up once the latest
// processed date lies past its end and every other run inside it has
// completed. Periods that are not ready are logged and retried on later
// dates; only storage and model failures are returned. The keys of
// created summaries are returned.
func (p *Pipeline) CheckRollups(ctx context.Context, date time.Time) ([]string, error) {
	date = tiers.Day(date)
	latest := date
	if done, ok, err := p.runs.LatestCompletedDate(); err != nil {
		return nil, fmt.Errorf("finding latest processed date: %w", err)
	} else if ok && done.After(latest) {
		latest = done
	}

	var created []string
	weeks, err := p.rollupCandidates(ctx, tiers.TierWeekly, date)
	if err != nil {
		return nil, err
	}
	for _, start := range weeks {
		key, err := p.rollupWeek(ctx, start)
		if err := p.deferIntegrity(err); err != nil {
			return created, err
		}
		if key != "" {
			created = append(created, key)
		}
	}

	months, err := p.rollupCandidates(ctx, tiers.TierMonthly, date)
	if err != nil {
		return created, err
	}
	for _, start := range months {
		key, err := p.rollupMonth(ctx, start, date, latest)
		if err := p.deferIntegrity(err); err != nil {
			return created, err
		}
		if key != "" {
			created = append(created, key)
		}
	}
	return created, nil
}

// rollupCandidates returns the period starts to check for date, ascending.
func (p *Pipeline) rollupCandidates(ctx context.Context, tier tiers.Tier, date time.Time) ([]time.Time, error) {
	starts, err := p.store.UnrolledPeriods(ctx, tier)
	if err != nil {
		return nil, fmt.Errorf("listing unrolled %s periods: %w", tier, err)
	}
	if tier == tiers.TierWeekly {
		start, _ := tiers.WeekBounds(date)
		starts = append(starts, start.AddDate(0, 0, -7), start)
	} else {
		start, _ := tiers.MonthBounds(date)
		starts = append(starts, start.AddDate(0, -1, 0), start)
	}
	slices.SortFunc(starts, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(starts, time.Time.Equal), nil
}

func (p *Pipeline) deferIntegrity(err error) error {
	var ie *tiers.RollupIntegrityError
	if errors.As(err, &ie) {
		p.logger.Info("rollup deferred", "period", ie.Period, "missing", ie.Missing)
		return nil
	}
	return err
}

// rollupWeek summarizes the ISO week containing day when it is complete.
func (p *Pipeline) rollupWeek(ctx context.Context, day time.Time) (string, error) {
	start, end := tiers.WeekBounds(day)
	key := tiers.WeekKey(start)

	if existing, err := p.store.WeeklySummary(ctx, key); err == nil {
		return "", p.EmbedSummary(ctx, tiers.Summary{Tier: tiers.TierWeekly, Key: key, Date: existing.WeekStart, Text: existing.Text})
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	if !tiers.Day(p.clock.Now()).After(end) {
		return "", nil
	}
	dailies, err := p.store.DailySummaries(ctx, start, end)
	if err != nil {
		return "", err
	}
	if len(dailies) == 0 {
		return "", nil
	}
	if len(dailies) < 7 {
		return "", &tiers.RollupIntegrityError{Period: key, Missing: missingDays(start, end, dailies)}
	}

	text, err := p.strategy.SummarizeWeek(ctx, key, dailies)
	if err != nil {
		return "", fmt.Errorf("weekly rollup %s: %w", key, err)
	}
	refs := make([]string, len(dailies))
	for i, d := range dailies {
		refs[i] = tiers.DateKey(d.Date)
	}
	ok, err := p.store.SaveWeeklySummary(ctx, tiers.WeeklySummary{Week: key, WeekStart: start, WeekEnd: end, Text: text, DailyRefs: refs})
	if err != nil || !ok {
		return "", err
	}
	p.logger.Info("weekly rollup created", "week", key)
	return key, p.EmbedSummary(ctx, tiers.Summary{Tier: tiers.TierWeekly, Key: key, Date: start, Text: text})
}

// rollupMonth summarizes the month containing day once latest lies past
// its end. current is the date being consolidated; its run is still open. Weeks falling entirely inside the month contribute their weekly
// summary; remaining days contribute their daily summaries.
func (p *Pipeline) rollupMonth(ctx context.Context, day, current, latest time.Time) (string, error) {
	start, end := tiers.MonthBounds(day)
	key := tiers.MonthKey(start)

	if existing, err := p.store.MonthlySummary(ctx, key); err == nil {
		return "", p.EmbedSummary(ctx, tiers.Summary{Tier: tiers.TierMonthly, Key: key, Date: existing.MonthStart, Text: existing.Text})
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	if !latest.After(end) {
		return "", nil
	}
	dailies, err := p.store.DailySummaries(ctx, start, end)
	if err != nil {
		return "", err
	}
	if len(dailies) == 0 {
		return "", nil
	}

	runs, err := p.runs.ListDayRunsBetween(start, end)
	if err != nil {
		return "", err
	}
	var unfinished []string
	for _, r := range runs {
		if r.State != storage.RunCompleted && !r.Date.Equal(current) {
			unfinished = append(unfinished, tiers.DateKey(r.Date)+" ("+r.State+")")
		}
	}
	if len(unfinished) > 0 {
		return "", &tiers.RollupIntegrityError{Period: key, Missing: unfinished}
	}

	weeklies, err := p.store.ListSummaries(ctx, tiers.TierWeekly, start, end)
	if err != nil {
		return "", err
	}
	covered := make(map[string]bool)
	var parts []tiers.Summary
	var refs []string
	for _, w := range weeklies {
		if w.Date.AddDate(0, 0, 6).After(end) {
			continue
		}
		parts = append(parts, w)
		refs = append(refs, w.Key)
		for _, d := range tiers.Dates(w.Date, w.Date.AddDate(0, 0, 6)) {
			covered[tiers.DateKey(d)] = true
		}
	}
	for _, d := range dailies {
		k := tiers.DateKey(d.Date)
		if covered[k] {
			continue
		}
		parts = append(parts, tiers.Summary{Tier: tiers.TierDaily, Key: k, Date: d.Date, Text: d.Text, WordCount: d.WordCount})
		refs = append(refs, k)
	}
	sortSummaries(parts)

	text, err := p.strategy.SummarizeMonth(ctx, key, parts)
	if err != nil {
		return "", fmt.Errorf("monthly rollup %s: %w", key, err)
	}
	ok, err := p.store.SaveMonthlySummary(ctx, tiers.MonthlySummary{Month: key, MonthStart: start, MonthEnd: end, Text: text, Refs: refs})
	if err != nil || !ok {
		return "", err
	}
	p.logger.Info("monthly rollup created", "month", key, "constituents", len(refs))
	return key, p.EmbedSummary(ctx, tiers.Summary{Tier: tiers.TierMonthly, Key: key, Date: start, Text: text})
}

func missingDays(start, end time.Time, have []tiers.DailySummary) []string {
	seen := make(map[string]bool, len(have))
	for _, d := range have {
		seen[tiers.DateKey(d.Date)] = true
	}
	var missing []string
	for _, d := range tiers.Dates(start, end) {
		if k := tiers.DateKey(d); !seen[k] {
			missing = append(missing, k)
		}
	}
	return missing
}

// sortSummaries orders constituents by date, weekly before daily on ties.
func sortSummaries(parts []tiers.Summary) {
	sort.SliceStable(parts, func(i, j int) bool {
		if !parts[i].Date.Equal(parts[j].Date) {
			return parts[i].Date.Before(parts[j].Date)
		}
		return parts[i].Tier == tiers.TierWeekly && parts[j].Tier != tiers.TierWeekly
	})
}
