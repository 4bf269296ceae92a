// Package app assembles the adapters and use cases from a Config.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/0xcro3dile/hybridrag-go/internal/adapters/embedcache"
	"github.com/0xcro3dile/hybridrag-go/internal/adapters/embedding"
	"github.com/0xcro3dile/hybridrag-go/internal/adapters/extractor"
	"github.com/0xcro3dile/hybridrag-go/internal/adapters/llm"
	"github.com/0xcro3dile/hybridrag-go/internal/adapters/ratelimit"
	"github.com/0xcro3dile/hybridrag-go/internal/adapters/sidecar"
	"github.com/0xcro3dile/hybridrag-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/hybridrag-go/internal/config"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/usecases"
	"github.com/0xcro3dile/hybridrag-go/internal/infrastructure/jobs"
)

// App holds one fully wired pipeline.
type App struct {
	Config *config.Config

	Store     *vectordb.Store
	Embedder  *embedcache.Service
	Generator ports.Generator
	Extractor *extractor.Multi
	PDF       *extractor.PDFExtractor
	Sidecars  *sidecar.FileStore

	Index     *usecases.IndexManager
	Retriever *usecases.Retriever
	Answers   *usecases.AnswerPolicy
	Curator   *usecases.SnippetCurator

	Jobs *jobs.Pool
	Sync *Syncer
}

// New opens the persisted state under cfg.Paths and wires every component.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, dir := range []string{cfg.Paths.IndexDir(), cfg.Paths.SidecarDir(), cfg.Paths.CacheDir(), cfg.Paths.Docs()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	chunker, err := extractor.NewChunker(cfg.Chunking.Size, cfg.Chunking.Overlap, cfg.Chunking.MaxChars)
	if err != nil {
		return nil, err
	}
	pdf := extractor.NewPDFExtractor(cfg.PDF.ServiceURL, cfg.PDF.Timeout(), chunker)
	multi := extractor.NewMulti(extractor.NewTextExtractor(chunker), pdf)

	retry := ratelimit.Options{
		MaxRetries:  cfg.Retry.MaxRetries,
		BaseBackoff: cfg.Retry.BaseBackoff(),
		MaxBackoff:  cfg.Retry.MaxBackoff(),
	}
	embedOpts, genOpts := retry, retry
	embedOpts.MinInterval = cfg.Embedding.MinInterval()
	genOpts.MinInterval = cfg.Generation.MinInterval()

	remote := embedding.NewOllamaAdapter(embedding.Options{
		BaseURL:        cfg.Ollama.BaseURL,
		Model:          cfg.Ollama.EmbedModel,
		Dimensions:     cfg.Embedding.Dim,
		Timeout:        cfg.Ollama.Timeout(),
		DocumentPrefix: cfg.Embedding.DocumentPrefix,
		QueryPrefix:    cfg.Embedding.QueryPrefix,
	})
	cache, err := embedcache.Open(cfg.Embedding.CacheBackend, cfg.Paths.CacheDir())
	if err != nil {
		return nil, fmt.Errorf("opening embedding cache: %w", err)
	}
	embedder := embedcache.NewService(
		ratelimit.NewEmbedder(remote, ratelimit.NewCaller("embed", embedOpts)),
		cache, cfg.Embedding.BatchSize, cfg.Embedding.Dim,
	)
	generator := ratelimit.NewGenerator(
		llm.NewOllamaLLMAdapter(cfg.Ollama.BaseURL, cfg.Ollama.GenModel, cfg.Ollama.Timeout()),
		ratelimit.NewCaller("generate", genOpts),
	)

	store, err := vectordb.Open(cfg.Paths.IndexDir(), cfg.Embedding.Dim)
	if err != nil {
		embedder.Close()
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	sidecars, err := sidecar.NewFileStore(cfg.Paths.SidecarDir())
	if err != nil {
		embedder.Close()
		return nil, err
	}

	retriever := usecases.NewRetriever(embedder, store, cfg.Retrieval.SnippetChars)
	a := &App{
		Config:    cfg,
		Store:     store,
		Embedder:  embedder,
		Generator: generator,
		Extractor: multi,
		PDF:       pdf,
		Sidecars:  sidecars,
		Index:     usecases.NewIndexManager(multi, embedder, store, sidecars, generator.Model()),
		Retriever: retriever,
		Answers: usecases.NewAnswerPolicy(retriever, embedder, generator, sidecars, usecases.AnswerOptions{
			Threshold:         cfg.Answer.Threshold,
			Temperature:       cfg.Generation.Temperature,
			MaxTokens:         cfg.Generation.MaxTokens,
			Attempts:          cfg.Generation.Attempts,
			TemperatureStep:   cfg.Generation.TemperatureStep,
			ContextBudget:     cfg.Retrieval.ContextBudget,
			SnippetBudget:     cfg.Answer.SnippetBudget,
			SnippetsPerSource: cfg.Answer.SnippetsPerSource,
			MaxSnippets:       cfg.Answer.MaxSnippets,
			FallbackContexts:  cfg.Answer.FallbackContexts,
			FallbackChars:     cfg.Answer.FallbackChars,
		}),
		Curator: usecases.NewSnippetCurator(multi, generator, sidecars, usecases.CuratorOptions{
			K:             cfg.Snippets.K,
			MaxCandidates: cfg.Snippets.MaxCandidates,
			PreviewChars:  cfg.Snippets.PreviewChars,
			Temperature:   cfg.Generation.Temperature,
			MaxTokens:     cfg.Generation.MaxTokens,
		}),
		Jobs: jobs.NewPool(cfg.Jobs.Workers),
	}
	a.Sync = NewSyncer(a.Jobs, a.Index, a.Curator, cfg.Snippets.AutoBuild, cfg.Snippets.K)
	return a, nil
}

// Healthy reports whether the PDF parse service answers.
func (a *App) Healthy(ctx context.Context) bool { return a.PDF.Healthy(ctx) }

// Close waits for running jobs and releases the embedding cache.
func (a *App) Close() error {
	a.Jobs.Close()
	return a.Embedder.Close()
}
