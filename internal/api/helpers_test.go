package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/engine"
	"github.com/Abhay-404/Eternal-Memory/internal/retrieval"
	"github.com/Abhay-404/Eternal-Memory/internal/router"
	"github.com/Abhay-404/Eternal-Memory/internal/storage"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

const testToken = "test-token-12345"

// --- mocks ---

type fakeMemory struct {
	primary   tiers.PrimaryContext
	shortTerm tiers.ShortTermMemory
	summaries map[tiers.Tier][]tiers.Summary
	err       error
}

func (f *fakeMemory) PrimaryContext(context.Context) (tiers.PrimaryContext, error) {
	return f.primary, f.err
}

func (f *fakeMemory) ShortTermMemory(context.Context) (tiers.ShortTermMemory, error) {
	return f.shortTerm, f.err
}

func (f *fakeMemory) ListSummaries(_ context.Context, tier tiers.Tier, from, to time.Time) ([]tiers.Summary, error) {
	var out []tiers.Summary
	for _, s := range f.summaries[tier] {
		if !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, s)
		}
	}
	return out, f.err
}

type mockSearcher struct {
	results  []retrieval.Result
	err      error
	gotQuery string
	gotLimit int
}

func (m *mockSearcher) Search(_ context.Context, query string, topK int) ([]retrieval.Result, error) {
	m.gotQuery, m.gotLimit = query, topK
	return m.results, m.err
}

type mockRuns struct {
	runs     []storage.DayRun
	gotState string
}

func (m *mockRuns) ListDayRuns(state string) ([]storage.DayRun, error) {
	m.gotState = state
	return m.runs, nil
}

type mockInbox struct {
	date time.Time
	text string
}

func (m *mockInbox) Add(date time.Time, text string) (string, error) {
	m.date, m.text = date, text
	return tiers.DateKey(date) + " journal-test.txt", nil
}

// echoEngine answers every question with "answer N" where N counts calls.
type echoEngine struct {
	mu    sync.Mutex
	calls int
}

func (e *echoEngine) Chat(context.Context, string, []engine.Message, *engine.Schema) (string, error) {
	return "", fmt.Errorf("not implemented")
}
func (e *echoEngine) ChatTools(_ context.Context, _ string, msgs []engine.Message, _ []engine.ToolDef) (engine.Reply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return engine.Reply{Content: fmt.Sprintf("answer %d (saw %d messages)", e.calls, len(msgs))}, nil
}
func (e *echoEngine) Embed(context.Context, string, string) ([]float32, error) { return nil, nil }
func (e *echoEngine) IsRunning(context.Context) bool                         { return true }
func (e *echoEngine) ListModels(context.Context) ([]string, error)           { return nil, nil }
func (e *echoEngine) HasModel(context.Context, string) bool                  { return true }
func (e *echoEngine) PullModel(context.Context, string, func(engine.PullProgress)) error {
	return nil
}

// --- helpers ---

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := tiers.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func newTestSessions(mem router.MemoryReader, s router.Searcher) *Sessions {
	r := router.New(&echoEngine{}, "test-model", mem, router.DefaultTools(mem, s), router.Options{})
	return NewSessions(r, 0)
}

type testApp struct {
	handler  http.Handler
	memory   *fakeMemory
	searcher *mockSearcher
	runs     *mockRuns
	inbox    *mockInbox
}

func setupAppHandler(t *testing.T) *testApp {
	t.Helper()
	app := &testApp{
		memory: &fakeMemory{
			primary: tiers.PrimaryContext{Text: "IDENTITY: Ana", WordCount: 2, LastUpdated: time.Date(2025, 1, 20, 22, 0, 0, 0, time.UTC)},
			summaries: map[tiers.Tier][]tiers.Summary{
				tiers.TierDaily: {
					{Tier: tiers.TierDaily, Key: "2025-01-06", Date: mustDate(t, "2025-01-06"), Text: "climbing", WordCount: 1},
					{Tier: tiers.TierDaily, Key: "2025-01-07", Date: mustDate(t, "2025-01-07"), Text: "dentist", WordCount: 1},
				},
			},
		},
		searcher: &mockSearcher{},
		runs:     &mockRuns{},
		inbox:    &mockInbox{},
	}
	app.handler = NewAppHandler(AppDeps{
		Memory:   app.memory,
		Searcher: app.searcher,
		Sessions: newTestSessions(app.memory, app.searcher),
		Runs:     app.runs,
		Inbox:    app.inbox,
		Token:    testToken,
	})
	return app
}

func (a *testApp) do(method, url, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, authReq(method, url, body, testToken))
	return rr
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}
