package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Abhay-404/Eternal-Memory/internal/config"
	"github.com/Abhay-404/Eternal-Memory/internal/consolidation"
	"github.com/Abhay-404/Eternal-Memory/internal/dropfolder"
	"github.com/Abhay-404/Eternal-Memory/internal/engine"
	"github.com/Abhay-404/Eternal-Memory/internal/index"
	"github.com/Abhay-404/Eternal-Memory/internal/retrieval"
	"github.com/Abhay-404/Eternal-Memory/internal/router"
	"github.com/Abhay-404/Eternal-Memory/internal/storage"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

// app holds the components shared by the commands that work on the local
// database directly.
type app struct {
	cfg         config.Config
	store       *storage.Store
	tiers       *tiers.Store
	engine      engine.Engine
	transcriber engine.Transcriber
	vectors     *retrieval.SQLiteStore
	searcher    *retrieval.Searcher
	indexer     *retrieval.Indexer
	pipeline    *consolidation.Pipeline
	folder      *dropfolder.Folder
	router      *router.Router
	worker      *index.Worker
}

type appOptions struct {
	// ruleMerge replaces model-written merges with the deterministic rules.
	ruleMerge bool
	// checkEngine verifies the engine and pulls missing models.
	checkEngine bool
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)

	eng, transcriber, err := engine.Detect(engine.DetectConfig{
		Provider:        cfg.LLM.Provider,
		OllamaBaseURL:   cfg.Ollama.BaseURL,
		OpenAIAPIKey:    cfg.OpenAI.APIKey,
		OpenAIBaseURL:   cfg.OpenAI.BaseURL,
		TranscribeModel: cfg.OpenAI.TranscribeModel,
	})
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	if opts.checkEngine {
		models := []string{cfg.ChatModel(), cfg.EmbedModel()}
		if opts.ruleMerge {
			models = models[1:]
		}
		if err := engine.EnsureReady(ctx, eng, os.Stderr, models...); err != nil {
			return nil, err
		}
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a := &app{cfg: cfg, store: store, engine: eng, transcriber: transcriber}
	a.tiers = tiers.NewStore(store, tiers.Limits{
		PrimaryMaxWords:   cfg.Memory.PrimaryMaxWords,
		ShortTermMinWords: cfg.Memory.ShortTermMinWords,
		ShortTermMaxWords: cfg.Memory.ShortTermMaxWords,
		ShortTermDays:     cfg.Memory.ShortTermDays,
	})

	embedder := retrieval.NewEmbedder(eng, cfg.EmbedModel())
	a.vectors = retrieval.NewSQLiteStore(store.DB())
	a.indexer = retrieval.NewIndexer(embedder, a.vectors)
	a.searcher = retrieval.NewSearcher(embedder, a.vectors, retrieval.Weights{
		Vector:  cfg.Retrieval.VectorWeight,
		Lexical: cfg.Retrieval.LexicalWeight,
	})

	var strategy consolidation.MergeStrategy = consolidation.NewLLMStrategy(eng, cfg.ChatModel())
	if opts.ruleMerge {
		strategy = consolidation.NewRuleStrategy()
	}
	a.pipeline = consolidation.New(a.tiers, store, strategy, a.indexer, consolidation.Options{
		CompressRetries: cfg.Memory.CompressRetries,
	})

	a.folder, err = dropfolder.New(dropfolder.Options{
		Dir:             cfg.Sync.DropDir,
		DeleteProcessed: cfg.Sync.DeleteProcessed,
		LanguageHints:   cfg.Sync.LanguageHints,
		Transcriber:     transcriber,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	a.router = router.New(eng, cfg.ChatModel(), a.tiers, router.DefaultTools(a.tiers, a.searcher), router.Options{
		MaxRounds: cfg.Router.MaxToolRounds,
	})
	a.worker = index.NewWorker(store, a.tiers, a.indexer, 0)
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}
