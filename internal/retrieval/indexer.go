package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

// Transcript chunking parameters, in words.
const (
	TranscriptChunkWords   = 1000
	TranscriptChunkOverlap = 80
)

// Entry is a tier entry to be embedded.
type Entry struct {
	Tier tiers.Tier
	Key  string
	Date time.Time
	Text string
}

// ID returns the vector record key of the entry.
func (e Entry) ID() string {
	return RecordID(e.Tier, e.Key)
}

// Indexer keeps the vector store in step with the tier store.
type Indexer struct {
	embedder *Embedder
	store    VectorStore
}

// NewIndexer creates an Indexer writing to store.
func NewIndexer(embedder *Embedder, store VectorStore) *Indexer {
	return &Indexer{embedder: embedder, store: store}
}

// Index embeds and upserts entries whose text changed since they were last
// indexed. It returns how many entries were embedded.
func (ix *Indexer) Index(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID()
	}
	known, err := ix.store.ContentHashes(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("loading content hashes: %w", err)
	}

	var stale []Entry
	var texts []string
	for _, e := range entries {
		hash := ContentHash(e.Text)
		if known[e.ID()] == hash {
			continue
		}
		stale = append(stale, e)
		texts = append(texts, e.Text)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	records := make([]Record, len(stale))
	for i, e := range stale {
		records[i] = Record{
			ID:          e.ID(),
			Tier:        e.Tier,
			Date:        tiers.Day(e.Date),
			Text:        e.Text,
			Embedding:   vecs[i],
			ContentHash: ContentHash(e.Text),
		}
	}
	if err := ix.store.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("upserting vectors: %w", err)
	}
	return len(records), nil
}

// TranscriptEntries splits a day's transcript into overlapping chunks keyed
// "<date>#<n>".
func TranscriptEntries(date time.Time, text string) []Entry {
	chunks := ChunkWords(text, TranscriptChunkWords, TranscriptChunkOverlap)
	entries := make([]Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = Entry{
			Tier: tiers.TierTranscript,
			Key:  fmt.Sprintf("%s#%d", tiers.DateKey(date), i),
			Date: date,
			Text: c,
		}
	}
	return entries
}

// ChunkWords splits text into chunks of at most size words, each sharing
// overlap words with the previous chunk.
func ChunkWords(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || size <= 0 {
		return nil
	}
	if overlap >= size || overlap < 0 {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(words); start += size - overlap {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
