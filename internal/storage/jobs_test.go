package storage

import (
	"errors"
	"testing"
	"time"
)

func embedJob(id, key string) Job {
	return Job{ID: id, Type: "embed_summary", PayloadJSON: `{"tier":"daily","key":"` + key + `"}`}
}

func jobState(t *testing.T, s *Store, id string) (status string, attempts int, lastError string, runAfter time.Time) {
	t.Helper()
	var ra string
	var le *string
	if err := s.db.QueryRow(`SELECT status, attempts, last_error, run_after FROM jobs WHERE id = ?`, id).
		Scan(&status, &attempts, &le, &ra); err != nil {
		t.Fatalf("reading job %s: %v", id, err)
	}
	if le != nil {
		lastError = *le
	}
	runAfter, err := time.Parse(time.RFC3339, ra)
	if err != nil {
		t.Fatal(err)
	}
	return status, attempts, lastError, runAfter
}

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(embedJob("j-1", "2025-01-06")); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"embed_summary"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-1" || got.Type != "embed_summary" || got.Status != JobRunning {
		t.Errorf("job = %+v", got)
	}
	if got.PayloadJSON != `{"tier":"daily","key":"2025-01-06"}` {
		t.Errorf("PayloadJSON = %q", got.PayloadJSON)
	}
	if got.MaxAttempts != defaultMaxAttempts || got.Attempts != 0 {
		t.Errorf("attempts = %d/%d", got.Attempts, got.MaxAttempts)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Errorf("timestamps not parsed: %+v", got)
	}

	again, err := s.ClaimNextJob([]string{"embed_summary"})
	if err != nil || again != nil {
		t.Errorf("second claim = %+v, %v; want nothing", again, err)
	}
}

func TestClaimNextJob_NoTypes(t *testing.T) {
	s := openTestStore(t)
	s.EnqueueJob(embedJob("j-1", "2025-01-06"))
	got, err := s.ClaimNextJob(nil)
	if err != nil || got != nil {
		t.Errorf("got %+v, %v", got, err)
	}
}

func TestClaimNextJob_Order(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	s.EnqueueJob(Job{ID: "later", Type: "embed_summary", PayloadJSON: `{"key":"b"}`, RunAfter: now.Add(-time.Minute)})
	s.EnqueueJob(Job{ID: "earlier", Type: "embed_summary", PayloadJSON: `{"key":"a"}`, RunAfter: now.Add(-time.Hour)})
	s.EnqueueJob(Job{ID: "future", Type: "embed_summary", PayloadJSON: `{"key":"c"}`, RunAfter: now.Add(time.Hour)})
	s.EnqueueJob(Job{ID: "other", Type: "other", PayloadJSON: `{}`, RunAfter: now.Add(-2 * time.Hour)})

	var ids []string
	for {
		j, err := s.ClaimNextJob([]string{"embed_summary"})
		if err != nil {
			t.Fatal(err)
		}
		if j == nil {
			break
		}
		ids = append(ids, j.ID)
	}
	if len(ids) != 2 || ids[0] != "earlier" || ids[1] != "later" {
		t.Errorf("claimed %v, want [earlier later]", ids)
	}
}

func TestEnqueueJob_DeduplicatesPending(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(embedJob("j-1", "2025-01-06")); err != nil {
		t.Fatal(err)
	}
	if err := s.EnqueueJob(embedJob("j-2", "2025-01-06")); err != nil {
		t.Fatal(err)
	}
	if err := s.EnqueueJob(embedJob("j-3", "2025-01-07")); err != nil {
		t.Fatal(err)
	}
	counts, _ := s.JobCounts()
	if counts[JobPending] != 2 {
		t.Errorf("pending = %d, want 2", counts[JobPending])
	}

	// Once claimed, the same entry may be queued again.
	if _, err := s.ClaimNextJob([]string{"embed_summary"}); err != nil {
		t.Fatal(err)
	}
	if err := s.EnqueueJob(embedJob("j-4", "2025-01-06")); err != nil {
		t.Fatal(err)
	}
	counts, _ = s.JobCounts()
	if counts[JobPending] != 2 || counts[JobRunning] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)

	s.EnqueueJob(embedJob("j-1", "2025-01-06"))
	if _, err := s.ClaimNextJob([]string{"embed_summary"}); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteJob("j-1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if status, _, _, _ := jobState(t, s, "j-1"); status != JobCompleted {
		t.Errorf("status = %q", status)
	}
	if err := s.CompleteJob("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing job: err = %v, want ErrNotFound", err)
	}
}

func TestFailJob_RetriesWithBackoff(t *testing.T) {
	s := openTestStore(t)

	s.EnqueueJob(embedJob("j-1", "2025-01-06"))
	s.ClaimNextJob([]string{"embed_summary"})

	before := time.Now().Truncate(time.Second)
	if err := s.FailJob("j-1", "embedding backend down"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	status, attempts, lastError, runAfter := jobState(t, s, "j-1")
	if status != JobPending || attempts != 1 || lastError != "embedding backend down" {
		t.Errorf("job = %s/%d/%q", status, attempts, lastError)
	}
	if runAfter.Before(before.Add(retryDelay(1))) {
		t.Errorf("run_after %v is earlier than the backoff", runAfter)
	}

	// Not claimable until the backoff passes.
	if j, _ := s.ClaimNextJob([]string{"embed_summary"}); j != nil {
		t.Errorf("claimed %s during backoff", j.ID)
	}
}

func TestFailJob_ExhaustsAttempts(t *testing.T) {
	s := openTestStore(t)

	job := embedJob("j-1", "2025-01-06")
	job.MaxAttempts = 1
	s.EnqueueJob(job)
	s.ClaimNextJob([]string{"embed_summary"})

	if err := s.FailJob("j-1", "fatal"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	if status, attempts, _, _ := jobState(t, s, "j-1"); status != JobFailed || attempts != 1 {
		t.Errorf("job = %s/%d, want failed/1", status, attempts)
	}
	if err := s.FailJob("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing job: err = %v, want ErrNotFound", err)
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{9, maxRetryDelay},
		{40, maxRetryDelay},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.attempts); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestJobCounts(t *testing.T) {
	s := openTestStore(t)

	for i, key := range []string{"2025-01-06", "2025-01-07", "2025-01-08"} {
		if err := s.EnqueueJob(embedJob(string(rune('a'+i)), key)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.ClaimNextJob([]string{"embed_summary"}); err != nil {
		t.Fatal(err)
	}

	counts, err := s.JobCounts()
	if err != nil {
		t.Fatalf("JobCounts: %v", err)
	}
	if counts[JobPending] != 2 || counts[JobRunning] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestPruneJobs(t *testing.T) {
	s := openTestStore(t)

	s.EnqueueJob(embedJob("done", "2025-01-06"))
	s.EnqueueJob(embedJob("waiting", "2025-01-07"))
	j, _ := s.ClaimNextJob([]string{"embed_summary"})
	s.CompleteJob(j.ID)

	n, err := s.PruneJobs(time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PruneJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	counts, _ := s.JobCounts()
	if counts[JobCompleted] != 0 || counts[JobPending] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
