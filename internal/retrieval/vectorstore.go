package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

// VectorStore persists summary embeddings and ranks them against a query,
// both by vector similarity and lexically. The current implementation uses
// SQLite with brute-force cosine similarity and an FTS5 mirror table.
//
// The store is a derived projection of the tier store; ExportAll and a
// reindex rebuild it without loss.
type VectorStore interface {
	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, records []Record) error

	// Search returns the top-K records by cosine similarity to vector.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// LexicalSearch returns the top-K records by BM25 relevance to query.
	LexicalSearch(ctx context.Context, query string, topK int) ([]ScoredRecord, error)

	// GetByIDs returns records matching the given IDs.
	GetByIDs(ctx context.Context, ids []string) ([]Record, error)

	// ContentHashes returns the stored content hash for each known ID.
	ContentHashes(ctx context.Context, ids []string) (map[string]string, error)

	// Delete removes a record by ID.
	Delete(ctx context.Context, id string) error

	// ExportAll returns all records ordered by date.
	ExportAll(ctx context.Context) ([]Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// Record is one embedded tier entry.
type Record struct {
	ID          string
	Tier        tiers.Tier
	Date        time.Time // the day, week start or month start
	Text        string
	Embedding   []float32
	ContentHash string
	UpdatedAt   time.Time
}

// ScoredRecord is a Record with a raw ranking score attached.
type ScoredRecord struct {
	Record
	Score float32
}

// RecordID builds the vector record key for a tier entry.
func RecordID(tier tiers.Tier, key string) string {
	return fmt.Sprintf("%s:%s", tier, key)
}
