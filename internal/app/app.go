// Package app wires configuration into the storage, provider and pipeline
// components shared by the CLI commands and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/perspectives-ai/rag/config"
	"github.com/perspectives-ai/rag/internal/db"
	"github.com/perspectives-ai/rag/internal/documents"
	"github.com/perspectives-ai/rag/internal/embeddings"
	"github.com/perspectives-ai/rag/internal/llm"
	"github.com/perspectives-ai/rag/internal/rag"
	"github.com/perspectives-ai/rag/internal/vectorstore"
	"github.com/perspectives-ai/rag/internal/vectorstore/memory"
	"github.com/perspectives-ai/rag/internal/vectorstore/qdrant"
)

// App holds the wired components
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Catalog    vectorstore.Catalog
	Index      vectorstore.Index
	Embeddings *embeddings.Service
	Processor  *documents.Processor
	Pipeline   *rag.Pipeline

	db      *db.DB
	closers []func() error
}

// New builds every component from cfg. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.openStores(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	factory := NewFactory(ctx)
	embedders, err := BuildEmbedders(factory, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	generators := BuildGenerators(factory, cfg, logger)

	a.Embeddings = embeddings.NewService(embedders, embeddings.Options{
		BatchSize:     cfg.Embeddings.BatchSize,
		MaxInputChars: cfg.Embeddings.MaxInputChars,
		CallTimeout:   cfg.Processing.StageTimeout,
	}, logger)

	p := cfg.Processing
	chunker := documents.NewChunker(p.ChunkSize, p.ChunkOverlap, p.MinChunkSize)
	a.Processor = documents.NewProcessor(a.Catalog, a.Index, a.Embeddings, chunker, logger)

	g := cfg.Generation
	synth := rag.NewSynthesizer(generators, rag.SynthesizerOptions{
		ContextTokens: g.ContextTokens,
		MaxTokens:     g.MaxTokens,
		Temperature:   g.Temperature,
		TopP:          g.TopP,
		TopK:          g.TopK,
		Timeout:       p.StageTimeout,
		Confidence: rag.ConfidencePolicy{
			TopWeight:       cfg.Confidence.TopWeight,
			CountWeight:     cfg.Confidence.CountWeight,
			CountSaturation: cfg.Confidence.CountSaturation,
			Floor:           p.SimilarityFloor,
		},
	}, logger)
	retriever := rag.NewRetriever(a.Embeddings, a.Index, p.SimilarityFloor, logger)
	a.Pipeline = rag.NewPipeline(retriever, synth, p.MaxResultsLimit, logger)

	return a, nil
}

// openStores connects the catalog and index backends
func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config

	var mem *memory.Store
	switch cfg.Store.Catalog {
	case config.BackendMemory:
		mem = memory.New()
		a.Catalog = mem
	case config.BackendPostgres:
		database, err := a.Database(ctx)
		if err != nil {
			return err
		}
		a.Catalog = database
	default:
		return fmt.Errorf("unknown catalog backend %q", cfg.Store.Catalog)
	}

	switch cfg.Store.Index {
	case config.BackendMemory:
		if mem == nil {
			mem = memory.New()
		}
		a.Index = mem
	case config.BackendPostgres:
		if cfg.Store.Catalog != config.BackendPostgres {
			return errors.New("the postgres index requires the postgres catalog")
		}
		a.Index = db.NewIndex(a.db)
	case config.BackendQdrant:
		index, err := qdrant.New(ctx, cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.CollectionPrefix)
		if err != nil {
			return fmt.Errorf("failed to connect to qdrant: %w", err)
		}
		a.Index = index
		a.closers = append(a.closers, index.Close)
	default:
		return fmt.Errorf("unknown index backend %q", cfg.Store.Index)
	}
	return nil
}

// Database connects to Postgres on first use
func (a *App) Database(ctx context.Context) (*db.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	database, err := db.New(ctx, a.Config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = database
	a.closers = append(a.closers, func() error {
		database.Close()
		return nil
	})
	return database, nil
}

// Preload ingests Paths.DocumentsDir when the catalog lives in memory, since
// nothing ingested by an earlier process survives. It does nothing for
// persistent catalogs or when the directory does not exist.
func (a *App) Preload(ctx context.Context) ([]documents.FileResult, error) {
	if a.Config.Store.Catalog != config.BackendMemory {
		return nil, nil
	}
	dir := a.Config.Paths.DocumentsDir
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		a.Logger.Warn("in-memory store starts empty: documents directory unavailable", "dir", dir)
		return nil, nil
	}

	results, err := a.Processor.IngestDirectory(ctx, dir, a.Config.Processing.Workers, false)
	if err != nil {
		return results, fmt.Errorf("failed to preload %s: %w", dir, err)
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	a.Logger.Info("preloaded documents into memory store", "dir", dir, "files", len(results), "failed", failed)
	return results, nil
}

// Close releases every backend connection
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Tier describes one configured provider tier
type Tier struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Status summarizes the running configuration
type Status struct {
	Catalog         string                   `json:"catalog"`
	Index           string                   `json:"index"`
	EmbeddingTiers  []Tier                   `json:"embedding_tiers"`
	GenerationTiers []Tier                   `json:"generation_tiers"`
	Spaces          []vectorstore.SpaceStats `json:"spaces"`
	Documents       int                      `json:"documents"`
	Processed       int                      `json:"processed_documents"`
}

// Status reports tiers, stored vector spaces and document counts
func (a *App) Status(ctx context.Context) (*Status, error) {
	spaces, err := a.Index.Spaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vector spaces: %w", err)
	}
	docs, err := a.Catalog.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	s := &Status{
		Catalog:         a.Config.Store.Catalog,
		Index:           a.Config.Store.Index,
		EmbeddingTiers:  embedderTiers(a.Embeddings.Tiers()),
		GenerationTiers: generatorTiers(a.Pipeline.Synthesizer().Generators()),
		Spaces:          spaces,
		Documents:       len(docs),
	}
	if s.Spaces == nil {
		s.Spaces = []vectorstore.SpaceStats{}
	}
	for _, d := range docs {
		if d.Processed {
			s.Processed++
		}
	}
	return s, nil
}

func embedderTiers(es []llm.Embedder) []Tier {
	out := make([]Tier, len(es))
	for i, e := range es {
		out[i] = Tier{Provider: e.Name(), Model: e.Model()}
	}
	return out
}

func generatorTiers(gs []llm.Generator) []Tier {
	out := make([]Tier, len(gs))
	for i, g := range gs {
		out[i] = Tier{Provider: g.Name(), Model: g.Model()}
	}
	return out
}
