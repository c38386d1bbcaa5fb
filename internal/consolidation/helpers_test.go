package consolidation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/retrieval"
	"github.com/Abhay-404/Eternal-Memory/internal/storage"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// fakeIndexer records indexed entries. failFn, when set, can reject a call.
type fakeIndexer struct {
	mu      sync.Mutex
	calls   int
	entries []retrieval.Entry
	failFn  func(entries []retrieval.Entry) error
}

func (f *fakeIndexer) Index(_ context.Context, entries []retrieval.Entry) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failFn != nil {
		if err := f.failFn(entries); err != nil {
			return 0, err
		}
	}
	f.entries = append(f.entries, entries...)
	return len(entries), nil
}

func (f *fakeIndexer) ids() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(f.entries))
	for _, e := range f.entries {
		out[e.ID()] = true
	}
	return out
}

// countingStrategy wraps a strategy and counts calls per method.
type countingStrategy struct {
	MergeStrategy
	mu    sync.Mutex
	calls map[string]int
	days  []DayInput
}

func newCounting(s MergeStrategy) *countingStrategy {
	return &countingStrategy{MergeStrategy: s, calls: make(map[string]int)}
}

func (c *countingStrategy) count(name string) {
	c.mu.Lock()
	c.calls[name]++
	c.mu.Unlock()
}

func (c *countingStrategy) n(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *countingStrategy) SummarizeDay(ctx context.Context, in DayInput) (string, error) {
	c.count("day")
	c.mu.Lock()
	c.days = append(c.days, in)
	c.mu.Unlock()
	return c.MergeStrategy.SummarizeDay(ctx, in)
}

func (c *countingStrategy) SummarizeWeek(ctx context.Context, week string, d []tiers.DailySummary) (string, error) {
	c.count("week")
	return c.MergeStrategy.SummarizeWeek(ctx, week, d)
}

func (c *countingStrategy) MergePrimary(ctx context.Context, in PrimaryInput) (string, error) {
	c.count("primary")
	return c.MergeStrategy.MergePrimary(ctx, in)
}

// fakeSource serves transcripts from memory and records released dates.
type fakeSource struct {
	mu          sync.Mutex
	texts       map[string]string
	released    []string
	transcribed map[string]int
	fail        map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{texts: make(map[string]string), transcribed: make(map[string]int)}
}

func (s *fakeSource) add(date time.Time, text string) {
	s.mu.Lock()
	s.texts[tiers.DateKey(date)] = text
	s.mu.Unlock()
}

func (s *fakeSource) Pending(context.Context) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for k := range s.texts {
		d, _ := tiers.ParseDate(k)
		out = append(out, d)
	}
	return out, nil
}

func (s *fakeSource) Transcript(_ context.Context, date time.Time) (storage.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := tiers.DateKey(date)
	s.transcribed[k]++
	if err := s.fail[k]; err != nil {
		return storage.Transcript{}, err
	}
	text, ok := s.texts[k]
	if !ok {
		return storage.Transcript{}, fmt.Errorf("no material for %s", k)
	}
	return storage.Transcript{Date: date, Text: text, Language: "en", Sources: []string{k + ".txt"}}, nil
}

func (s *fakeSource) MarkDeletable(_ context.Context, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := tiers.DateKey(date)
	delete(s.texts, k)
	s.released = append(s.released, k)
	return nil
}

type harness struct {
	db       *storage.Store
	tiers    *tiers.Store
	indexer  *fakeIndexer
	strategy *countingStrategy
	pipeline *Pipeline
}

func newHarness(t *testing.T, now time.Time, strategy MergeStrategy) *harness {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := fixedClock{t: now}
	ts := tiers.NewStoreWithClock(db, tiers.DefaultLimits(), clock)
	h := &harness{db: db, tiers: ts, indexer: &fakeIndexer{}, strategy: newCounting(strategy)}
	h.pipeline = New(ts, db, h.strategy, h.indexer, Options{Clock: clock})
	return h
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := tiers.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// journal returns n distinct words tagged with the date.
func journal(date time.Time, n int) string {
	tag := date.Format("0102")
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("d%sw%d", tag, i)
	}
	return strings.Join(words, " ")
}

func (h *harness) consolidate(t *testing.T, date time.Time) Result {
	t.Helper()
	res, err := h.pipeline.ConsolidateDay(context.Background(), storage.Transcript{Date: date, Text: journal(date, 450), Language: "en"})
	if err != nil {
		t.Fatalf("ConsolidateDay(%s): %v", tiers.DateKey(date), err)
	}
	return res
}

func transcriptFor(t *testing.T, s string) storage.Transcript {
	t.Helper()
	d := day(t, s)
	return storage.Transcript{Date: d, Text: journal(d, 450), Language: "en"}
}
