package tiers

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/storage"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestStore(t *testing.T) (*Store, *storage.Store) {
	t.Helper()
	backend, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	clock := fixedClock{t: time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)}
	return NewStoreWithClock(backend, DefaultLimits(), clock), backend
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestPrimaryContext_EmptyStore(t *testing.T) {
	s, _ := newTestStore(t)

	pc, err := s.PrimaryContext(context.Background())
	if err != nil {
		t.Fatalf("PrimaryContext: %v", err)
	}
	if pc.Text != "" || pc.WordCount != 0 {
		t.Errorf("expected zero value, got %+v", pc)
	}
}

func TestSavePrimaryContext_RejectsOverBudget(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SavePrimaryContext(ctx, words(500), nil); err != nil {
		t.Fatalf("500 words should fit: %v", err)
	}

	_, err := s.SavePrimaryContext(ctx, words(501), nil)
	if !errors.Is(err, ErrTierBudgetExceeded) {
		t.Fatalf("err = %v, want ErrTierBudgetExceeded", err)
	}

	pc, err := s.PrimaryContext(ctx)
	if err != nil {
		t.Fatalf("PrimaryContext: %v", err)
	}
	if pc.WordCount != 500 {
		t.Errorf("WordCount = %d, want previous value 500", pc.WordCount)
	}
}

// Every accepted primary context write stays within budget, whatever size is proposed.
func TestPrimaryContext_BudgetProperty(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		n := rng.Intn(1200)
		_, err := s.SavePrimaryContext(ctx, words(n), nil)
		if n <= 500 && err != nil {
			t.Fatalf("proposal of %d words rejected: %v", n, err)
		}
		if n > 500 && !errors.Is(err, ErrTierBudgetExceeded) {
			t.Fatalf("proposal of %d words: err = %v, want ErrTierBudgetExceeded", n, err)
		}

		persisted, err := backend.GetPrimaryContext()
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("GetPrimaryContext: %v", err)
		}
		if WordCount(persisted.Text) > 500 {
			t.Fatalf("persisted primary context has %d words", WordCount(persisted.Text))
		}
	}
}

func TestShortTermBudget_LowerBoundRelaxedEarly(t *testing.T) {
	s, _ := newTestStore(t)

	tests := []struct {
		name        string
		words       int
		historyDays int
		wantErr     bool
	}{
		{"short history small text", 300, 3, false},
		{"short history over max", 7001, 3, true},
		{"full history under min", 5999, 14, true},
		{"full history lower edge", 6000, 14, false},
		{"full history upper edge", 7000, 20, false},
		{"full history over max", 7001, 20, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CheckShortTermBudget(words(tt.words), tt.historyDays)
			if tt.wantErr && !errors.Is(err, ErrTierBudgetExceeded) {
				t.Errorf("err = %v, want ErrTierBudgetExceeded", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSaveShortTermMemory_RejectionKeepsPrevious(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	from, to := mustDate(t, "2025-01-01"), mustDate(t, "2025-01-14")

	if _, err := s.SaveShortTermMemory(ctx, words(6500), from, to, 14, nil); err != nil {
		t.Fatalf("SaveShortTermMemory: %v", err)
	}
	if _, err := s.SaveShortTermMemory(ctx, words(100), from, to.AddDate(0, 0, 1), 15, nil); !errors.Is(err, ErrTierBudgetExceeded) {
		t.Fatalf("err = %v, want ErrTierBudgetExceeded", err)
	}

	m, err := s.ShortTermMemory(ctx)
	if err != nil {
		t.Fatalf("ShortTermMemory: %v", err)
	}
	if m.WordCount != 6500 || !m.CoveredTo.Equal(to) {
		t.Errorf("short-term memory changed after rejected write: %d words to %s", m.WordCount, DateKey(m.CoveredTo))
	}
}

func TestUpsertDailySummary(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	d := mustDate(t, "2025-01-06")

	if _, err := s.UpsertDailySummary(ctx, d, "went hiking", "transcript:2025-01-06", false, nil); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	if _, err := s.UpsertDailySummary(ctx, d, "went hiking", "transcript:2025-01-06", false, nil); !errors.Is(err, ErrDuplicateDate) {
		t.Errorf("identical upsert: err = %v, want ErrDuplicateDate", err)
	}

	if _, err := s.UpsertDailySummary(ctx, d, "stayed home", "transcript:2025-01-06", false, nil); !errors.Is(err, ErrConflict) {
		t.Errorf("conflicting upsert: err = %v, want ErrConflict", err)
	}

	got, err := s.UpsertDailySummary(ctx, d, "stayed home", "transcript:2025-01-06", true, nil)
	if err != nil {
		t.Fatalf("overwrite upsert: %v", err)
	}
	if got.Text != "stayed home" {
		t.Errorf("Text = %q, want overwritten", got.Text)
	}
}

func TestListSummaries_AscendingByTier(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, d := range []string{"2025-01-08", "2025-01-06", "2025-01-07"} {
		if _, err := s.UpsertDailySummary(ctx, mustDate(t, d), "day "+d, "", false, nil); err != nil {
			t.Fatalf("UpsertDailySummary %s: %v", d, err)
		}
	}

	list, err := s.ListSummaries(ctx, TierDaily, mustDate(t, "2025-01-01"), mustDate(t, "2025-01-31"))
	if err != nil {
		t.Fatalf("ListSummaries: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d summaries, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if !list[i].Date.After(list[i-1].Date) {
			t.Errorf("summaries not ascending: %s then %s", list[i-1].Key, list[i].Key)
		}
	}

	if _, err := s.ListSummaries(ctx, Tier("yearly"), time.Time{}, time.Time{}); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestSaveWeeklySummary_RequiresSevenRefs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	start, end := WeekBounds(mustDate(t, "2025-01-08"))

	_, err := s.SaveWeeklySummary(ctx, WeeklySummary{Week: "2025-W02", WeekStart: start, WeekEnd: end, Text: "x", DailyRefs: []string{"2025-01-06"}})
	if !errors.Is(err, ErrRollupIntegrity) {
		t.Fatalf("err = %v, want ErrRollupIntegrity", err)
	}

	var refs []string
	for _, d := range Dates(start, end) {
		refs = append(refs, DateKey(d))
	}
	created, err := s.SaveWeeklySummary(ctx, WeeklySummary{Week: "2025-W02", WeekStart: start, WeekEnd: end, Text: "a week", DailyRefs: refs})
	if err != nil {
		t.Fatalf("SaveWeeklySummary: %v", err)
	}
	if !created {
		t.Error("expected weekly summary to be created")
	}
}

func TestPrimaryContext_SeesWritesFromOtherStore(t *testing.T) {
	reader, backend := newTestStore(t)
	writer := NewStore(backend, DefaultLimits())
	ctx := context.Background()

	if _, err := reader.PrimaryContext(ctx); err != nil {
		t.Fatalf("PrimaryContext: %v", err)
	}
	for _, text := range []string{"IDENTITY: Ana", "IDENTITY: Ana, nurse in Lisbon"} {
		if _, err := writer.SavePrimaryContext(ctx, text, nil); err != nil {
			t.Fatalf("SavePrimaryContext: %v", err)
		}
		pc, err := reader.PrimaryContext(ctx)
		if err != nil {
			t.Fatalf("PrimaryContext: %v", err)
		}
		if pc.Text != text {
			t.Errorf("reader sees %q, want %q", pc.Text, text)
		}
	}
}

func TestUnrolledPeriods(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, d := range []string{"2025-01-06", "2025-01-08", "2025-01-13", "2025-02-03"} {
		if _, err := s.UpsertDailySummary(ctx, mustDate(t, d), "day "+d, "", false, nil); err != nil {
			t.Fatalf("UpsertDailySummary %s: %v", d, err)
		}
	}

	tests := []struct {
		tier Tier
		want []string
	}{
		{TierWeekly, []string{"2025-01-06", "2025-01-13", "2025-02-03"}},
		{TierMonthly, []string{"2025-01-01", "2025-02-01"}},
	}
	for _, tt := range tests {
		got, err := s.UnrolledPeriods(ctx, tt.tier)
		if err != nil {
			t.Fatalf("UnrolledPeriods(%s): %v", tt.tier, err)
		}
		var keys []string
		for _, d := range got {
			keys = append(keys, DateKey(d))
		}
		if strings.Join(keys, ",") != strings.Join(tt.want, ",") {
			t.Errorf("%s: got %v, want %v", tt.tier, keys, tt.want)
		}
	}

	if _, err := s.UnrolledPeriods(ctx, TierDaily); err == nil {
		t.Error("daily tier accepted")
	}
}
