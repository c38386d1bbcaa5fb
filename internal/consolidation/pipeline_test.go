package consolidation

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/Abhay-404/Eternal-Memory/internal/retrieval"
	"github.com/Abhay-404/Eternal-Memory/internal/storage"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

func TestConsolidateDay_CompletesAllSteps(t *testing.T) {
	h := newHarness(t, day(t, "2025-02-01"), NewRuleStrategy())
	ctx := context.Background()
	date := day(t, "2025-01-06")

	res := h.consolidate(t, date)
	if res.State != storage.RunCompleted || res.LastStep != StepCompleted {
		t.Fatalf("result = %s/%s, want completed/completed", res.State, res.LastStep)
	}
	if res.Daily.WordCount != 400 {
		t.Errorf("daily word count = %d, want 400", res.Daily.WordCount)
	}

	pc, err := h.tiers.PrimaryContext(ctx)
	if err != nil {
		t.Fatalf("PrimaryContext: %v", err)
	}
	if !strings.HasPrefix(pc.Text, "- 2025-01-06:") {
		t.Errorf("primary context = %q", pc.Text)
	}

	stm, err := h.tiers.ShortTermMemory(ctx)
	if err != nil {
		t.Fatalf("ShortTermMemory: %v", err)
	}
	if !strings.Contains(stm.Text, "[2025-01-06]") {
		t.Error("short-term memory misses the new day")
	}
	if !stm.CoveredFrom.Equal(date) || !stm.CoveredTo.Equal(date) {
		t.Errorf("covered = %s..%s", stm.CoveredFrom, stm.CoveredTo)
	}

	ids := h.indexer.ids()
	for _, id := range []string{"daily:2025-01-06", "transcript:2025-01-06#0"} {
		if !ids[id] {
			t.Errorf("indexer missing %s (have %v)", id, ids)
		}
	}

	run, err := h.db.GetDayRun(date)
	if err != nil {
		t.Fatalf("GetDayRun: %v", err)
	}
	if run.State != storage.RunCompleted || run.Attempts != 1 {
		t.Errorf("run = %+v", run)
	}
	tr, err := h.db.GetTranscript(date)
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if tr.Language != "en" {
		t.Errorf("transcript language = %q", tr.Language)
	}
}

func TestConsolidateDay_DailySummaryGroundedInPrimaryContext(t *testing.T) {
	h := newHarness(t, day(t, "2025-02-01"), NewRuleStrategy())
	ctx := context.Background()

	h.consolidate(t, day(t, "2025-01-06"))
	pc, err := h.tiers.PrimaryContext(ctx)
	if err != nil || pc.Text == "" {
		t.Fatalf("primary context after first day = %q, %v", pc.Text, err)
	}
	h.consolidate(t, day(t, "2025-01-07"))

	if len(h.strategy.days) != 2 {
		t.Fatalf("daily summaries requested = %d, want 2", len(h.strategy.days))
	}
	if h.strategy.days[0].Primary != "" {
		t.Errorf("first day grounded on %q, want empty", h.strategy.days[0].Primary)
	}
	if h.strategy.days[1].Primary != pc.Text {
		t.Errorf("second day grounded on %q, want %q", h.strategy.days[1].Primary, pc.Text)
	}
}

func TestConsolidateDay_Idempotent(t *testing.T) {
	h := newHarness(t, day(t, "2025-02-01"), NewRuleStrategy())
	ctx := context.Background()
	date := day(t, "2025-01-06")

	h.consolidate(t, date)
	before, _ := h.tiers.PrimaryContext(ctx)
	stmBefore, _ := h.tiers.ShortTermMemory(ctx)
	indexCalls := h.indexer.calls

	res := h.consolidate(t, date)
	if !res.Skipped {
		t.Error("second run should be skipped")
	}
	if res.Daily.Text == "" {
		t.Error("skipped result should carry the existing daily summary")
	}
	if h.strategy.n("day") != 1 || h.strategy.n("primary") != 1 {
		t.Errorf("strategy called again: %v", h.strategy.calls)
	}
	if h.indexer.calls != indexCalls {
		t.Errorf("indexer called again")
	}

	after, _ := h.tiers.PrimaryContext(ctx)
	stmAfter, _ := h.tiers.ShortTermMemory(ctx)
	if after.Text != before.Text || stmAfter.Text != stmBefore.Text {
		t.Error("tiers changed on a repeated run")
	}
	run, _ := h.db.GetDayRun(date)
	if run.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", run.Attempts)
	}
}

func TestConsolidateDay_ResumesAfterFailedStep(t *testing.T) {
	h := newHarness(t, day(t, "2025-02-01"), NewRuleStrategy())
	date := day(t, "2025-01-06")
	h.indexer.failFn = func([]retrieval.Entry) error { return errors.New("embedding backend down") }

	_, err := h.pipeline.ConsolidateDay(context.Background(), storage.Transcript{Date: date, Text: journal(date, 450)})
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StepError", err)
	}
	if se.Step != StepEmbedded {
		t.Errorf("failed step = %s, want %s", se.Step, StepEmbedded)
	}

	run, _ := h.db.GetDayRun(date)
	if run.State != storage.RunFailed || run.FailedStep != StepEmbedded || run.LastStep != StepShortTermUpdated {
		t.Fatalf("run = %+v", run)
	}
	if !strings.Contains(run.LastError, "embedding backend down") {
		t.Errorf("last error = %q", run.LastError)
	}

	h.indexer.failFn = nil
	res, err := h.pipeline.ConsolidateDay(context.Background(), storage.Transcript{Date: date})
	if err != nil {
		t.Fatalf("resumed ConsolidateDay: %v", err)
	}
	if res.State != storage.RunCompleted {
		t.Errorf("state = %s", res.State)
	}
	if h.strategy.n("day") != 1 || h.strategy.n("primary") != 1 {
		t.Errorf("completed steps re-ran: %v", h.strategy.calls)
	}
	if !h.indexer.ids()["transcript:2025-01-06#0"] {
		t.Error("resumed run did not embed the stored transcript")
	}
}

func TestConsolidateDay_EmptyTranscript(t *testing.T) {
	h := newHarness(t, day(t, "2025-02-01"), NewRuleStrategy())
	_, err := h.pipeline.ConsolidateDay(context.Background(), storage.Transcript{Date: day(t, "2025-01-06"), Text: "  "})
	var se *StepError
	if !errors.As(err, &se) || se.Step != StepTranscribed {
		t.Fatalf("err = %v, want failure at %s", err, StepTranscribed)
	}
}

func TestConsolidateDay_ConflictingDailySummary(t *testing.T) {
	h := newHarness(t, day(t, "2025-02-01"), NewRuleStrategy())
	ctx := context.Background()
	date := day(t, "2025-01-06")

	if _, err := h.tiers.UpsertDailySummary(ctx, date, "written by hand", "", false, nil); err != nil {
		t.Fatalf("UpsertDailySummary: %v", err)
	}
	_, err := h.pipeline.ConsolidateDay(ctx, storage.Transcript{Date: date, Text: journal(date, 450)})
	if !errors.Is(err, tiers.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	d, _ := h.tiers.DailySummary(ctx, date)
	if d.Text != "written by hand" {
		t.Error("conflicting summary was overwritten")
	}
}

func TestUpdatePrimaryContext_NeverExceedsBudget(t *testing.T) {
	h := newHarness(t, day(t, "2030-01-01"), NewRuleStrategy())
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	date := day(t, "2025-01-01")

	for i := 0; i < 200; i++ {
		d := date.AddDate(0, 0, i)
		pc, err := h.pipeline.UpdatePrimaryContext(ctx, d, journal(d, 1+rng.Intn(900)))
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if pc.WordCount > 500 || tiers.WordCount(pc.Text) > 500 {
			t.Fatalf("iteration %d: primary context has %d words", i, tiers.WordCount(pc.Text))
		}
	}
}

// oversized proposes text that never fits the primary budget.
type oversized struct {
	RuleStrategy
	resizes int
}

func (o *oversized) MergePrimary(context.Context, PrimaryInput) (string, error) {
	return strings.Repeat("word ", 800), nil
}

func (o *oversized) Resize(_ context.Context, in ResizeInput) (string, error) {
	o.resizes++
	return strings.Repeat("word ", 600), nil
}

func TestUpdatePrimaryContext_RejectsAfterRetries(t *testing.T) {
	strategy := &oversized{}
	h := newHarness(t, day(t, "2025-02-01"), strategy)
	ctx := context.Background()
	date := day(t, "2025-01-06")

	_, err := h.pipeline.ConsolidateDay(ctx, storage.Transcript{Date: date, Text: journal(date, 450)})
	if !errors.Is(err, tiers.ErrTierBudgetExceeded) {
		t.Fatalf("err = %v, want ErrTierBudgetExceeded", err)
	}
	if strategy.resizes != defaultCompressRetries {
		t.Errorf("resizes = %d, want %d", strategy.resizes, defaultCompressRetries)
	}

	pc, _ := h.tiers.PrimaryContext(ctx)
	if pc.Text != "" {
		t.Error("oversized proposal was persisted")
	}
	run, _ := h.db.GetDayRun(date)
	if run.State != storage.RunFailed || run.FailedStep != StepPrimaryContextUpdated || run.LastStep != StepDailySummarized {
		t.Errorf("run = %+v", run)
	}
}

func TestUpdateShortTermMemory_StaysInBand(t *testing.T) {
	h := newHarness(t, day(t, "2030-01-01"), NewRuleStrategy())
	ctx := context.Background()
	start := day(t, "2025-03-03")
	limits := tiers.DefaultLimits()

	for i := 0; i < 24; i++ {
		date := start.AddDate(0, 0, i)
		h.consolidate(t, date)

		stm, err := h.tiers.ShortTermMemory(ctx)
		if err != nil {
			t.Fatalf("ShortTermMemory: %v", err)
		}
		words := tiers.WordCount(stm.Text)
		if words > limits.ShortTermMaxWords {
			t.Fatalf("day %d: %d words over the maximum", i+1, words)
		}
		if i+1 >= limits.ShortTermDays && words < limits.ShortTermMinWords {
			t.Fatalf("day %d: %d words under the minimum", i+1, words)
		}
		for _, d := range tiers.Dates(tiers.WindowStart(date, limits.ShortTermDays), date) {
			if d.Before(start) {
				continue
			}
			if !strings.Contains(stm.Text, "["+tiers.DateKey(d)+"]") {
				t.Fatalf("day %d: window date %s missing", i+1, tiers.DateKey(d))
			}
		}
	}
}

// forgetful drops the first window date from every short-term proposal.
type forgetful struct {
	RuleStrategy
}

func (forgetful) MergeShortTerm(ctx context.Context, in ShortTermInput) (string, error) {
	out, _ := RuleStrategy{}.MergeShortTerm(ctx, in)
	if len(in.Window) == 0 {
		return out, nil
	}
	first := "[" + tiers.DateKey(in.Window[0].Date) + "]"
	return strings.ReplaceAll(out, first, ""), nil
}

func TestUpdateShortTermMemory_RequiresWindowCoverage(t *testing.T) {
	h := newHarness(t, day(t, "2025-02-01"), forgetful{})
	date := day(t, "2025-01-06")

	_, err := h.pipeline.ConsolidateDay(context.Background(), storage.Transcript{Date: date, Text: journal(date, 450)})
	if !errors.Is(err, ErrWindowCoverage) {
		t.Fatalf("err = %v, want ErrWindowCoverage", err)
	}
	var ce *CoverageError
	if !errors.As(err, &ce) || len(ce.Missing) != 1 || ce.Missing[0] != "2025-01-06" {
		t.Errorf("coverage error = %+v", ce)
	}
}

func TestMissingDates(t *testing.T) {
	window := []tiers.DailySummary{{Date: day(t, "2025-01-06")}, {Date: day(t, "2025-01-07")}}
	got := missingDates("[2025-01-07] cinema", window)
	if len(got) != 1 || got[0] != "2025-01-06" {
		t.Errorf("missingDates = %v", got)
	}
}
