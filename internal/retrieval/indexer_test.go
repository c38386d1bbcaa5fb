package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := tiers.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func countingEmbedder(calls *int32) *Embedder {
	return NewEmbedder(&mockEngine{
		embedFn: func(_ context.Context, _ string, text string) ([]float32, error) {
			atomic.AddInt32(calls, 1)
			return []float32{float32(len(text)), 1}, nil
		},
	}, "test-embed")
}

func TestIndexer_SkipsUnchangedText(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var calls int32
	ix := NewIndexer(countingEmbedder(&calls), s)

	day := mustDate(t, "2025-01-06")
	entries := []Entry{{Tier: tiers.TierDaily, Key: "2025-01-06", Date: day, Text: "first version"}}

	n, err := ix.Index(ctx, entries)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n != 1 || calls != 1 {
		t.Fatalf("first index: n=%d calls=%d, want 1/1", n, calls)
	}

	n, err = ix.Index(ctx, entries)
	if err != nil {
		t.Fatalf("Index again: %v", err)
	}
	if n != 0 || calls != 1 {
		t.Errorf("unchanged text re-embedded: n=%d calls=%d", n, calls)
	}

	entries[0].Text = "second version"
	n, err = ix.Index(ctx, entries)
	if err != nil {
		t.Fatalf("Index changed: %v", err)
	}
	if n != 1 || calls != 2 {
		t.Errorf("changed text: n=%d calls=%d, want 1/2", n, calls)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1", count)
	}
}

func TestIndexer_EmbedFailureWritesNothing(t *testing.T) {
	s := openTestStore(t)
	ix := NewIndexer(NewEmbedder(&mockEngine{
		embedFn: func(context.Context, string, string) ([]float32, error) {
			return nil, fmt.Errorf("unreachable")
		},
	}, "m"), s)

	_, err := ix.Index(context.Background(), []Entry{{Tier: tiers.TierDaily, Key: "2025-01-06", Date: mustDate(t, "2025-01-06"), Text: "x"}})
	if err == nil {
		t.Fatal("expected error")
	}
	n, _ := s.Count(context.Background())
	if n != 0 {
		t.Errorf("Count = %d after failed index, want 0", n)
	}
}

func TestTranscriptEntries(t *testing.T) {
	words := make([]string, 2500)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	entries := TranscriptEntries(mustDate(t, "2025-01-06"), strings.Join(words, " "))
	if len(entries) != 3 {
		t.Fatalf("got %d chunks, want 3", len(entries))
	}
	if entries[1].ID() != "transcript:2025-01-06#1" {
		t.Errorf("ID = %q", entries[1].ID())
	}
	second := strings.Fields(entries[1].Text)
	if second[0] != "w920" {
		t.Errorf("second chunk starts at %q, want w920 (80-word overlap)", second[0])
	}
}

func TestChunkWords(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{"empty", "   ", 3, 1, nil},
		{"single chunk", "a b c", 5, 1, []string{"a b c"}},
		{"overlap", "a b c d e", 3, 1, []string{"a b c", "c d e"}},
		{"bad overlap ignored", "a b c d", 2, 5, []string{"a b", "c d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkWords(tt.text, tt.size, tt.overlap)
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
