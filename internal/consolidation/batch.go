package consolidation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/storage"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

// Source supplies the days waiting to be consolidated.
type Source interface {
	// Pending lists the dates with material not yet released.
	Pending(ctx context.Context) ([]time.Time, error)
	// Transcript returns the combined transcript for date, transcribing
	// audio when needed.
	Transcript(ctx context.Context, date time.Time) (storage.Transcript, error)
	// MarkDeletable releases the source material of a completed date.
	MarkDeletable(ctx context.Context, date time.Time) error
}

// DayReport is one date's line in a BatchReport.
type DayReport struct {
	Date       time.Time
	State      string
	LastStep   string
	FailedStep string
	Rollups    []string
	Skipped    bool
	Err        error
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	Started  time.Time
	Finished time.Time
	Days     []DayReport
}

// Failed returns how many dates did not complete.
func (r BatchReport) Failed() int {
	n := 0
	for _, d := range r.Days {
		if d.State != storage.RunCompleted {
			n++
		}
	}
	return n
}

// RunBatch consolidates every pending date of src in ascending order. A
// date's failure is recorded in the report and does not stop later dates.
// Source material is released only for dates that completed.
func (p *Pipeline) RunBatch(ctx context.Context, src Source) (BatchReport, error) {
	report := BatchReport{Started: p.clock.Now()}
	dates, err := src.Pending(ctx)
	if err != nil {
		return report, fmt.Errorf("listing pending days: %w", err)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			report.Finished = p.clock.Now()
			return report, err
		}
		report.Days = append(report.Days, p.runDay(ctx, src, tiers.Day(date)))
	}

	report.Finished = p.clock.Now()
	p.logger.Info("batch finished", "days", len(report.Days), "failed", report.Failed())
	return report, nil
}

func (p *Pipeline) runDay(ctx context.Context, src Source, date time.Time) DayReport {
	rep := DayReport{Date: date}

	t, err := p.loadTranscript(ctx, src, date)
	if err != nil {
		p.recordFailure(date, StepTranscribed, err)
		rep.State, rep.FailedStep, rep.Err = storage.RunFailed, StepTranscribed, err
		if run, rerr := p.runs.GetDayRun(date); rerr == nil {
			rep.LastStep = run.LastStep
		}
		return rep
	}

	res, err := p.ConsolidateDay(ctx, t)
	rep.State, rep.LastStep, rep.Rollups, rep.Skipped = res.State, res.LastStep, res.Rollups, res.Skipped
	if err != nil {
		var se *StepError
		if errors.As(err, &se) {
			rep.FailedStep = se.Step
		}
		rep.State, rep.Err = storage.RunFailed, err
		return rep
	}

	if err := src.MarkDeletable(ctx, date); err != nil {
		p.logger.Warn("releasing source material", "date", tiers.DateKey(date), "error", err)
	}
	return rep
}

// loadTranscript prefers a transcript persisted by an earlier attempt so
// audio is transcribed once per date. Completed dates need none.
func (p *Pipeline) loadTranscript(ctx context.Context, src Source, date time.Time) (storage.Transcript, error) {
	if run, err := p.runs.GetDayRun(date); err == nil && run.State == storage.RunCompleted {
		return storage.Transcript{Date: date}, nil
	}
	if t, err := p.runs.GetTranscript(date); err == nil {
		return t, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.Transcript{}, err
	}
	t, err := src.Transcript(ctx, date)
	if err != nil {
		return storage.Transcript{}, err
	}
	t.Date = date
	return t, nil
}

func (p *Pipeline) recordFailure(date time.Time, step string, err error) {
	if _, serr := p.runs.StartDayRun(date); serr != nil {
		p.logger.Error("recording run", "date", tiers.DateKey(date), "error", serr)
		return
	}
	if ferr := p.runs.FailDayRun(date, step, err.Error()); ferr != nil {
		p.logger.Error("recording failed step", "date", tiers.DateKey(date), "error", ferr)
	}
	p.logger.Warn("consolidation step failed", "date", tiers.DateKey(date), "step", step, "error", err)
}
