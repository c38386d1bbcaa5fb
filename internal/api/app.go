package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Abhay-404/Eternal-Memory/internal/retrieval"
	"github.com/Abhay-404/Eternal-Memory/internal/router"
	"github.com/Abhay-404/Eternal-Memory/internal/storage"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxJournalBodySize = 10 << 20 // 10MB
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// MemoryStore reads the tiers. Implemented by tiers.Store.
type MemoryStore interface {
	router.MemoryReader
	ListSummaries(ctx context.Context, tier tiers.Tier, from, to time.Time) ([]tiers.Summary, error)
}

// RunLister reads pipeline progress. Implemented by storage.Store.
type RunLister interface {
	ListDayRuns(state string) ([]storage.DayRun, error)
}

// Inbox accepts journal text for later consolidation. Implemented by
// dropfolder.Folder.
type Inbox interface {
	Add(date time.Time, text string) (string, error)
}

type AppDeps struct {
	Memory   MemoryStore
	Searcher router.Searcher
	Sessions *Sessions
	Runs     RunLister
	Inbox    Inbox // optional; if nil, POST /journal is not served
	Token    string
}

// NewAppHandler returns the memory API. Everything except /health requires
// the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/primary-context", handlePrimaryContext(deps))
		r.Get("/short-term-memory", handleShortTermMemory(deps))
		r.Get("/summaries/{tier}", handleListSummaries(deps))
		r.Get("/search", handleSearch(deps))
		r.Post("/ask", handleAsk(deps))
		r.Get("/runs", handleListRuns(deps))
		if deps.Inbox != nil {
			r.Post("/journal", handleJournal(deps))
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type memoryResponse struct {
	Text        string     `json:"text"`
	WordCount   int        `json:"word_count"`
	CoveredFrom string     `json:"covered_from,omitempty"`
	CoveredTo   string     `json:"covered_to,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

func lastUpdated(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func handlePrimaryContext(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pc, err := deps.Memory.PrimaryContext(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to load primary context: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, memoryResponse{Text: pc.Text, WordCount: pc.WordCount, LastUpdated: lastUpdated(pc.LastUpdated)})
	}
}

func handleShortTermMemory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.Memory.ShortTermMemory(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to load short-term memory: %v", err)
			return
		}
		resp := memoryResponse{Text: m.Text, WordCount: m.WordCount, LastUpdated: lastUpdated(m.LastUpdated)}
		if !m.CoveredTo.IsZero() {
			resp.CoveredFrom, resp.CoveredTo = tiers.DateKey(m.CoveredFrom), tiers.DateKey(m.CoveredTo)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type summaryResponse struct {
	Tier      tiers.Tier `json:"tier"`
	Key       string     `json:"key"`
	Date      string     `json:"date"`
	Text      string     `json:"text"`
	WordCount int        `json:"word_count"`
}

func handleListSummaries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tier, err := tiers.ParseTier(chi.URLParam(r, "tier"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		from, err := parseDateParam(r, "from", time.Time{})
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		to, err := parseDateParam(r, "to", time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}

		list, err := deps.Memory.ListSummaries(r.Context(), tier, from, to)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list summaries: %v", err)
			return
		}
		out := make([]summaryResponse, len(list))
		for i, s := range list {
			out[i] = summaryResponse{Tier: s.Tier, Key: s.Key, Date: tiers.DateKey(s.Date), Text: s.Text, WordCount: s.WordCount}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type searchResult struct {
	ID           string     `json:"id"`
	Tier         tiers.Tier `json:"tier"`
	Date         string     `json:"date"`
	Text         string     `json:"text"`
	Score        float64    `json:"score"`
	VectorScore  float64    `json:"vector_score"`
	LexicalScore float64    `json:"lexical_score"`
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			httpError(w, http.StatusBadRequest, "q is required")
			return
		}
		limit := parseIntParam(r, "limit", defaultSearchLimit, maxSearchLimit)

		results, err := deps.Searcher.Search(r.Context(), query, limit)
		if err != nil {
			httpError(w, http.StatusBadGateway, "search failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toSearchResults(results))
	}
}

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

type askResponse struct {
	SessionID string   `json:"session_id"`
	Answer    string   `json:"answer"`
	ToolsUsed []string `json:"tools_used"`
}

func handleAsk(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			httpError(w, http.StatusBadRequest, "question is required")
			return
		}

		session, err := deps.Sessions.Get(req.SessionID)
		if err != nil {
			httpError(w, http.StatusNotFound, "session %q not found", req.SessionID)
			return
		}

		ans, err := session.Ask(r.Context(), req.Question)
		if err != nil {
			httpError(w, http.StatusBadGateway, "failed to answer: %v", err)
			return
		}
		if ans.ToolsUsed == nil {
			ans.ToolsUsed = []string{}
		}
		writeJSON(w, http.StatusOK, askResponse{SessionID: session.ID, Answer: ans.Text, ToolsUsed: ans.ToolsUsed})
	}
}

type runResponse struct {
	Date       string    `json:"date"`
	State      string    `json:"state"`
	LastStep   string    `json:"last_step"`
	FailedStep string    `json:"failed_step,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Attempts   int       `json:"attempts"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func handleListRuns(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		switch state {
		case "", storage.RunPending, storage.RunRunning, storage.RunCompleted, storage.RunFailed:
		default:
			httpError(w, http.StatusBadRequest, "unknown state %q", state)
			return
		}

		runs, err := deps.Runs.ListDayRuns(state)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list runs: %v", err)
			return
		}
		out := make([]runResponse, len(runs))
		for i, run := range runs {
			out[i] = runResponse{
				Date:       tiers.DateKey(run.Date),
				State:      run.State,
				LastStep:   run.LastStep,
				FailedStep: run.FailedStep,
				LastError:  run.LastError,
				Attempts:   run.Attempts,
				UpdatedAt:  run.UpdatedAt,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type journalRequest struct {
	Date string `json:"date"`
	Text string `json:"text"`
}

func handleJournal(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJournalBodySize)
		defer r.Body.Close()

		var req journalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "text is required")
			return
		}
		date := tiers.Day(time.Now())
		if req.Date != "" {
			d, err := tiers.ParseDate(req.Date)
			if err != nil {
				httpError(w, http.StatusBadRequest, "%v", err)
				return
			}
			date = d
		}

		name, err := deps.Inbox.Add(date, req.Text)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to store journal entry: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"date":   tiers.DateKey(date),
			"file":   name,
			"status": "queued",
		})
	}
}

func toSearchResults(results []retrieval.Result) []searchResult {
	out := make([]searchResult, len(results))
	for i, res := range results {
		out[i] = searchResult{
			ID:           res.ID,
			Tier:         res.Tier,
			Date:         tiers.DateKey(res.Date),
			Text:         res.Text,
			Score:        res.Score,
			VectorScore:  res.VectorScore,
			LexicalScore: res.LexicalScore,
		}
	}
	return out
}

func parseIntParam(r *http.Request, name string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if v == 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func parseDateParam(r *http.Request, name string, def time.Time) (time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	return tiers.ParseDate(s)
}
