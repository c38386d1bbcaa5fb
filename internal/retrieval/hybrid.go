package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// candidateFactor sets how many candidates each ranking contributes
// relative to the requested result count.
const candidateFactor = 3

// Result is one hybrid search hit.
type Result struct {
	Record
	Score        float64
	VectorScore  float64
	LexicalScore float64
}

// Searcher answers queries by fusing vector similarity with BM25 relevance.
type Searcher struct {
	embedder *Embedder
	store    VectorStore
	weights  Weights
}

// NewSearcher creates a Searcher. Zero weights fall back to DefaultWeights.
func NewSearcher(embedder *Embedder, store VectorStore, w Weights) *Searcher {
	if w.Vector == 0 && w.Lexical == 0 {
		w = DefaultWeights()
	}
	return &Searcher{embedder: embedder, store: store, weights: w}
}

// Search returns up to topK records ranked by fused score.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search: empty query")
	}
	if topK <= 0 {
		return nil, nil
	}
	n := topK * candidateFactor

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	vecHits, err := s.store.Search(ctx, vec, n)
	if err != nil {
		return nil, fmt.Errorf("search: vector ranking: %w", err)
	}
	lexHits, err := s.store.LexicalSearch(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("search: lexical ranking: %w", err)
	}

	records := make(map[string]Record, len(vecHits)+len(lexHits))
	dates := make(map[string]time.Time, len(vecHits)+len(lexHits))
	toCandidates := func(hits []ScoredRecord) []Candidate {
		out := make([]Candidate, len(hits))
		for i, h := range hits {
			out[i] = Candidate{ID: h.ID, Score: float64(h.Score)}
			if _, ok := records[h.ID]; !ok {
				rec := h.Record
				rec.Embedding = nil
				records[h.ID] = rec
				dates[h.ID] = h.Date
			}
		}
		return out
	}

	fused := Fuse(Normalize(toCandidates(vecHits)), Normalize(toCandidates(lexHits)), dates, s.weights)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	results := make([]Result, len(fused))
	for i, f := range fused {
		results[i] = Result{Record: records[f.ID], Score: f.Score, VectorScore: f.Vector, LexicalScore: f.Lexical}
	}
	return results, nil
}
