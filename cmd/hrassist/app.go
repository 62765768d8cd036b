package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/hrassist/internal/chunker"
	"github.com/kalambet/hrassist/internal/composer"
	"github.com/kalambet/hrassist/internal/config"
	"github.com/kalambet/hrassist/internal/engine"
	"github.com/kalambet/hrassist/internal/generator"
	"github.com/kalambet/hrassist/internal/ingest"
	"github.com/kalambet/hrassist/internal/orchestrator"
	"github.com/kalambet/hrassist/internal/retrieval"
	"github.com/kalambet/hrassist/internal/storage"
	"github.com/kalambet/hrassist/internal/tools"
)

// app is the fully wired assistant shared by serve, ask, chat and ingest.
type app struct {
	cfg        config.Config
	store      *storage.Store
	engine     engine.Engine
	index      *retrieval.SQLiteIndex
	builder    *retrieval.ContextBuilder
	dispatcher *tools.Dispatcher
	pipeline   *ingest.Pipeline
	orch       *orchestrator.Orchestrator
}

func setupLogging(level string, w io.Writer) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})))
}

// modelNames picks the chat and embedding models of the configured provider.
func modelNames(cfg config.Config) (chat, embed string) {
	if cfg.Engine.Provider == engine.ProviderOpenAI {
		return cfg.OpenAI.ChatModel, cfg.OpenAI.EmbedModel
	}
	return cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel
}

// newApp opens storage, checks the inference engine and wires every
// component. progress receives model pull output; nil skips the readiness
// check.
func newApp(ctx context.Context, cfg config.Config, progress io.Writer) (*app, error) {
	eng, err := engine.Detect(engine.DetectConfig{
		Provider:      cfg.Engine.Provider,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OpenAIAPIKey:  cfg.OpenAI.APIKey,
		OpenAIBaseURL: cfg.OpenAI.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	chatModel, embedModel := modelNames(cfg)
	if progress != nil {
		if err := engine.EnsureReady(ctx, eng, chatModel, embedModel, progress); err != nil {
			return nil, err
		}
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	catalog, err := tools.LoadCatalog(cfg.Tools.Catalog)
	if err != nil {
		store.Close()
		return nil, err
	}

	embedder := retrieval.NewEmbedder(eng, embedModel, retrieval.WithTimeout(cfg.Timeouts.Embed))
	index := retrieval.NewSQLiteIndex(store.DB())
	builder := retrieval.NewContextBuilder(embedder, index, retrieval.BuilderConfig{
		TopK:     cfg.Retrieval.TopK,
		MaxChars: cfg.Retrieval.MaxContextChars,
		MinScore: cfg.Retrieval.MinScore,
	})

	registry := tools.NewRegistry(catalog, cfg.HR.DefaultEmployee)
	dispatcher := tools.NewDispatcher(registry, cfg.HR.BaseURL,
		tools.WithTimeout(cfg.Timeouts.Tool),
		tools.WithRateLimit(cfg.Tools.RatePerSecond),
		tools.WithSearcher(builder),
	)

	gen := generator.New(eng, chatModel, generator.WithTimeout(cfg.Timeouts.Model))

	// Zero iterations in config means tools are never executed.
	maxIterations := cfg.Agent.MaxToolIterations
	if maxIterations == 0 {
		maxIterations = -1
	}
	orch := orchestrator.New(orchestrator.Deps{
		Retriever:  builder,
		Model:      gen,
		Dispatcher: dispatcher,
		Composer:   composer.New(registry, 0),
		Documents:  store,
	}, orchestrator.Config{
		MaxToolIterations: maxIterations,
		HistoryTurns:      cfg.Agent.HistoryTurns,
	})

	pipeline := ingest.NewPipeline(embedder, index, store, chunker.New(cfg.Chunk.Size, cfg.Chunk.Overlap))

	return &app{
		cfg:        cfg,
		store:      store,
		engine:     eng,
		index:      index,
		builder:    builder,
		dispatcher: dispatcher,
		pipeline:   pipeline,
		orch:       orch,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

// ingestDir loads every document in dir and prints one line per document.
func (a *app) ingestDir(ctx context.Context, dir string) (ingest.Report, error) {
	rep, err := a.pipeline.IngestDir(ctx, dir)
	if err != nil {
		return rep, err
	}
	for _, r := range rep.Results {
		if r.OK() {
			printSuccess("%s: %d chunks", r.Name, r.Chunks)
		} else {
			printError("%v", r.Err)
		}
	}
	return rep, nil
}

// sourceNames lists the distinct document names of the sources, in order.
func sourceNames(sources []retrieval.Source) []string {
	seen := make(map[string]bool, len(sources))
	var names []string
	for _, s := range sources {
		if s.DocumentName == "" || seen[s.DocumentName] {
			continue
		}
		seen[s.DocumentName] = true
		names = append(names, s.DocumentName)
	}
	return names
}
