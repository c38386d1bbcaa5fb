package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strconv"
	"strings"
	"testing"
)

// modelHost fakes the model-management half of Engine. Chat and Embed are
// not used by EnsureReady and panic through the nil embedded interface.
type modelHost struct {
	Engine
	down    bool
	have    []string
	pullErr error
	pulled  []string
}

func (h *modelHost) IsRunning(context.Context) bool { return !h.down }

func (h *modelHost) ListModels(context.Context) ([]string, error) { return h.have, nil }

func (h *modelHost) HasModel(_ context.Context, name string) bool {
	return slices.Contains(h.have, name)
}

func (h *modelHost) PullModel(_ context.Context, name string, onProgress func(PullProgress)) error {
	if h.pullErr != nil {
		return h.pullErr
	}
	h.pulled = append(h.pulled, name)
	onProgress(PullProgress{Status: "success"})
	return nil
}

func TestEnsureReady(t *testing.T) {
	tests := []struct {
		name       string
		host       *modelHost
		models     []string
		wantPulled []string
		wantErr    string
	}{
		{
			name:   "everything present",
			host:   &modelHost{have: []string{"llama3.1", "nomic-embed-text"}},
			models: []string{"llama3.1", "nomic-embed-text"},
		},
		{
			name:       "missing embed model is pulled",
			host:       &modelHost{have: []string{"llama3.1"}},
			models:     []string{"llama3.1", "nomic-embed-text"},
			wantPulled: []string{"nomic-embed-text"},
		},
		{
			name:       "blank and repeated names",
			host:       &modelHost{},
			models:     []string{"llama3.1", "", "llama3.1"},
			wantPulled: []string{"llama3.1"},
		},
		{
			name:    "engine down",
			host:    &modelHost{down: true},
			models:  []string{"llama3.1"},
			wantErr: "ollama serve",
		},
		{
			name:    "pull fails",
			host:    &modelHost{pullErr: errors.New("disk full")},
			models:  []string{"llama3.1"},
			wantErr: "pulling model llama3.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EnsureReady(context.Background(), tt.host, io.Discard, tt.models...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want it to mention %q", err, tt.wantErr)
				}
				if !errors.Is(err, ErrUpstream) {
					t.Errorf("err = %v, want ErrUpstream", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EnsureReady: %v", err)
			}
			if !slices.Equal(tt.host.pulled, tt.wantPulled) {
				t.Errorf("pulled = %v, want %v", tt.host.pulled, tt.wantPulled)
			}
		})
	}
}

func TestProgressPrinter(t *testing.T) {
	var out bytes.Buffer
	report := progressPrinter(&out)

	report(PullProgress{Status: "pulling manifest"})
	report(PullProgress{Status: "pulling manifest"})
	for done := int64(0); done <= 1000; done += 25 {
		report(PullProgress{Status: "downloading", Total: 1000, Completed: done})
	}
	report(PullProgress{Status: "verifying digest"})

	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{"  pulling manifest"}
	for pct := 0; pct <= 100; pct += 10 {
		want = append(want, "  downloading "+strconv.Itoa(pct)+"%")
	}
	want = append(want, "  verifying digest")
	if !slices.Equal(got, want) {
		t.Errorf("output:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}
