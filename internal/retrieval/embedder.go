package retrieval

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Abhay-404/Eternal-Memory/internal/engine"
)

const defaultEmbedConcurrency = 4

// ErrEmptyEmbedding is returned when the model answers with a zero-length vector.
var ErrEmptyEmbedding = errors.New("empty embedding")

// Embedder turns memory text into vectors with one embedding model. Every
// vector it returns for a batch has the same dimension.
type Embedder struct {
	engine      engine.Engine
	model       string
	concurrency int
}

func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model, concurrency: defaultEmbedConcurrency}
}

// Model names the embedding model.
func (e *Embedder) Model() string { return e.model }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding with %s: %w", e.model, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding with %s: %w", e.model, ErrEmptyEmbedding)
	}
	return vec, nil
}

// EmbedBatch embeds texts with bounded concurrency, preserving order. An
// empty input yields nil without calling the model.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(results[0])
	for i, vec := range results[1:] {
		if len(vec) != dim {
			return nil, fmt.Errorf("chunk %d has %d dimensions, chunk 0 has %d", i+1, len(vec), dim)
		}
	}
	return results, nil
}
