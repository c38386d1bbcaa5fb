// Package index keeps the vector index in step with the tier store through
// the SQLite job queue. Consolidation embeds inline; the queue carries
// re-embedding that can happen in the background, such as a full reindex
// after the embedding model changes.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Abhay-404/Eternal-Memory/internal/retrieval"
	"github.com/Abhay-404/Eternal-Memory/internal/storage"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

// JobEmbed is the job type for embedding one tier entry.
const JobEmbed = "embed_summary"

// JobStore abstracts the job queue and transcript operations.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetTranscript(date time.Time) (storage.Transcript, error)
	ListDayRuns(state string) ([]storage.DayRun, error)
}

// TierReader reads the summaries to embed. Implemented by tiers.Store.
type TierReader interface {
	DailySummary(ctx context.Context, date time.Time) (tiers.DailySummary, error)
	WeeklySummary(ctx context.Context, week string) (tiers.WeeklySummary, error)
	MonthlySummary(ctx context.Context, month string) (tiers.MonthlySummary, error)
	ListSummaries(ctx context.Context, tier tiers.Tier, from, to time.Time) ([]tiers.Summary, error)
}

// EntryIndexer embeds entries. Implemented by retrieval.Indexer.
type EntryIndexer interface {
	Index(ctx context.Context, entries []retrieval.Entry) (int, error)
}

// Worker processes embed_summary jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	tiers   TierReader
	indexer EntryIndexer
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, tr TierReader, indexer EntryIndexer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		tiers:   tr,
		indexer: indexer,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

type embedPayload struct {
	Tier tiers.Tier `json:"tier"`
	Key  string     `json:"key"`
}

// Enqueue schedules the entry identified by tier and key for embedding.
func (w *Worker) Enqueue(tier tiers.Tier, key string) error {
	payload, err := json.Marshal(embedPayload{Tier: tier, Key: key})
	if err != nil {
		return err
	}
	return w.store.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        JobEmbed,
		PayloadJSON: string(payload),
	})
}

// Reindex enqueues every stored summary and the transcript of every
// completed day. It returns the number of jobs enqueued.
func (w *Worker) Reindex(ctx context.Context) (int, error) {
	n := 0
	end := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	for _, tier := range []tiers.Tier{tiers.TierDaily, tiers.TierWeekly, tiers.TierMonthly} {
		list, err := w.tiers.ListSummaries(ctx, tier, time.Time{}, end)
		if err != nil {
			return n, fmt.Errorf("listing %s summaries: %w", tier, err)
		}
		for _, s := range list {
			if err := w.Enqueue(tier, s.Key); err != nil {
				return n, fmt.Errorf("enqueueing %s %s: %w", tier, s.Key, err)
			}
			n++
		}
	}

	runs, err := w.store.ListDayRuns(storage.RunCompleted)
	if err != nil {
		return n, fmt.Errorf("listing completed days: %w", err)
	}
	for _, r := range runs {
		if err := w.Enqueue(tiers.TierTranscript, tiers.DateKey(r.Date)); err != nil {
			return n, fmt.Errorf("enqueueing transcript %s: %w", tiers.DateKey(r.Date), err)
		}
		n++
	}
	w.logger.Info("reindex enqueued", "jobs", n)
	return n, nil
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// Drain processes claimable jobs until none are left and returns how many
// were processed. Jobs waiting out a retry backoff are not waited for.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		done, err := w.RunOnce(ctx)
		if err != nil {
			return n, err
		}
		if !done {
			return n, nil
		}
		n++
	}
}

// RunOnce claims and processes a single embed_summary job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobEmbed})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload embedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	entries, err := w.entries(ctx, payload)
	if errors.Is(err, storage.ErrNotFound) {
		// Nothing left to embed.
		w.logger.Debug("entry gone, skipping", "tier", payload.Tier, "key", payload.Key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s %s: %w", payload.Tier, payload.Key, err)
	}

	n, err := w.indexer.Index(ctx, entries)
	if err != nil {
		return fmt.Errorf("embedding %s %s: %w", payload.Tier, payload.Key, err)
	}
	w.logger.Debug("entry embedded", "tier", payload.Tier, "key", payload.Key, "updated", n)
	return nil
}

func (w *Worker) entries(ctx context.Context, p embedPayload) ([]retrieval.Entry, error) {
	switch p.Tier {
	case tiers.TierDaily:
		date, err := tiers.ParseDate(p.Key)
		if err != nil {
			return nil, err
		}
		d, err := w.tiers.DailySummary(ctx, date)
		if err != nil {
			return nil, err
		}
		return []retrieval.Entry{{Tier: p.Tier, Key: p.Key, Date: d.Date, Text: d.Text}}, nil
	case tiers.TierWeekly:
		s, err := w.tiers.WeeklySummary(ctx, p.Key)
		if err != nil {
			return nil, err
		}
		return []retrieval.Entry{{Tier: p.Tier, Key: p.Key, Date: s.WeekStart, Text: s.Text}}, nil
	case tiers.TierMonthly:
		s, err := w.tiers.MonthlySummary(ctx, p.Key)
		if err != nil {
			return nil, err
		}
		return []retrieval.Entry{{Tier: p.Tier, Key: p.Key, Date: s.MonthStart, Text: s.Text}}, nil
	case tiers.TierTranscript:
		date, err := tiers.ParseDate(p.Key)
		if err != nil {
			return nil, err
		}
		t, err := w.store.GetTranscript(date)
		if err != nil {
			return nil, err
		}
		return retrieval.TranscriptEntries(date, t.Text), nil
	default:
		return nil, fmt.Errorf("unsupported tier %q", p.Tier)
	}
}
