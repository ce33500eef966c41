package documents

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/embeddings"
	"github.com/perspectives-ai/rag/internal/llm"
	"github.com/perspectives-ai/rag/internal/observability"
	"github.com/perspectives-ai/rag/internal/vectorstore"
)

// ErrUnsupported is returned for files no parser handles
var ErrUnsupported = errors.New("unsupported file type")

// Embedder produces document vectors. *embeddings.Service satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string, task llm.TaskType) (*embeddings.Batch, error)
}

// Source is a document ready to ingest
type Source struct {
	Filename    string
	ContentType string
	Title       string
	Pages       []string
	ByteSize    int64
}

// IngestResult describes what ingesting one document did
type IngestResult struct {
	Document *domain.Document
	Chunks   int
	Space    domain.VectorSpace
	Skipped  bool
}

// FileResult is the outcome for one file of a directory ingest
type FileResult struct {
	Path   string
	Result *IngestResult
	Err    error
}

// Processor handles document processing with incremental updates
type Processor struct {
	catalog  vectorstore.Catalog
	index    vectorstore.Index
	embedder Embedder
	chunker  *Chunker
	logger   *slog.Logger
	locks    keyedMutex
}

// NewProcessor creates a new document processor
func NewProcessor(
	catalog vectorstore.Catalog,
	index vectorstore.Index,
	embedder Embedder,
	chunker *Chunker,
	logger *slog.Logger,
) *Processor {
	if chunker == nil {
		chunker = NewChunker(DefaultChunkSize, DefaultChunkOverlap, DefaultMinChunkSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		catalog:  catalog,
		index:    index,
		embedder: embedder,
		chunker:  chunker,
		logger:   logger,
	}
}

// Ingest stores, chunks and embeds a document. A document whose content was
// already processed is skipped unless force is set.
func (p *Processor) Ingest(ctx context.Context, src Source, force bool) (_ *IngestResult, err error) {
	ctx, span := observability.StartIngestSpan(ctx, src.Filename)
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	text, bounds := JoinPages(src.Pages)
	hash := domain.ContentHash(text)
	id := domain.DocumentID(hash)

	unlock := p.locks.Lock(id)
	defer unlock()

	existing, err := p.catalog.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing document: %w", err)
	}
	if existing != nil && existing.Processed && !force {
		p.logger.Debug("document unchanged, skipping", "filename", src.Filename, "document_id", id)
		return &IngestResult{Document: existing, Skipped: true}, nil
	}

	doc := &domain.Document{
		ID:          id,
		Title:       src.Title,
		Filename:    src.Filename,
		ByteSize:    src.ByteSize,
		ContentType: src.ContentType,
		ContentHash: hash,
		UploadedAt:  time.Now().UTC(),
	}
	if doc.Title == "" {
		doc.Title = ExtractTitle(src.Pages, src.Filename)
	}
	if existing != nil {
		doc.UploadedAt = existing.UploadedAt
	}
	if err := p.catalog.UpsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	chunks := p.chunker.Chunk(text, bounds)
	for i := range chunks {
		chunks[i].DocumentID = id
		chunks[i].ID = domain.ChunkID(id, chunks[i].Sequence, chunks[i].Text)
	}

	result := &IngestResult{Document: doc, Chunks: len(chunks)}
	if len(chunks) == 0 {
		if err := p.storeChunks(ctx, id, nil); err != nil {
			return nil, err
		}
		p.logger.Warn("document has no extractable text", "filename", src.Filename, "document_id", id)
		return result, nil
	}

	// embed before touching stored chunks so a re-ingest keeps serving the
	// previous vectors until the new ones are written
	batch, err := p.embed(ctx, chunks)
	if err != nil {
		if serr := p.storeChunks(ctx, id, chunks); serr != nil {
			p.logger.Error("failed to store chunks of unembedded document", "document_id", id, "error", serr)
		}
		return nil, err
	}
	if err := p.catalog.ReplaceChunks(ctx, id, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := p.storeVectors(ctx, doc, chunks, batch); err != nil {
		return nil, err
	}
	result.Space = batch.Space
	doc.Processed = true

	p.logger.Info("document ingested",
		"filename", src.Filename, "document_id", id, "chunks", len(chunks), "space", batch.Space.String())
	return result, nil
}

// storeChunks records chunks that will not be embedded now and drops every
// vector of the document, so it is not searchable until a later ingest
func (p *Processor) storeChunks(ctx context.Context, id uuid.UUID, chunks []domain.Chunk) error {
	if err := p.catalog.ReplaceChunks(ctx, id, chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := p.index.DeleteVectors(ctx, id); err != nil {
		return fmt.Errorf("failed to clear document vectors: %w", err)
	}
	return nil
}

// embed embeds every chunk in one call
func (p *Processor) embed(ctx context.Context, chunks []domain.Chunk) (*embeddings.Batch, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	batch, err := p.embedder.Embed(ctx, texts, llm.TaskDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(batch.Vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch.Vectors), len(chunks))
	}
	return batch, nil
}

// storeVectors writes the batch to the index and marks the document processed
func (p *Processor) storeVectors(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, batch *embeddings.Batch) error {
	records := vectorstore.NewRecords(doc, chunks, batch.Vectors)
	if err := p.index.ReplaceDocument(ctx, doc.ID, batch.Space, records); err != nil {
		return fmt.Errorf("failed to store vectors: %w", err)
	}
	if err := p.catalog.SetProcessed(ctx, doc.ID, true); err != nil {
		return fmt.Errorf("failed to mark document processed: %w", err)
	}
	return nil
}

// IngestFile parses and ingests one file
func (p *Processor) IngestFile(ctx context.Context, path string, force bool) (*IngestResult, error) {
	parser := ParserFor(path)
	if parser == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	parsed, err := parser.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	return p.Ingest(ctx, Source{
		Filename:    filepath.Base(path),
		ContentType: parsed.ContentType,
		Pages:       parsed.Pages,
		ByteSize:    info.Size(),
	}, force)
}

// IngestDirectory ingests every supported file under dir with at most
// workers files in flight. A failing file does not stop the others.
func (p *Processor) IngestDirectory(ctx context.Context, dir string, workers int, force bool) ([]FileResult, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}
	slices.Sort(paths)

	if workers <= 0 {
		workers = 1
	}
	results := make([]FileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = FileResult{Path: path, Err: err}
				return err
			}
			res, err := p.IngestFile(gctx, path, force)
			results[i] = FileResult{Path: path, Result: res, Err: err}
			if err != nil {
				p.logger.Error("failed to ingest file", "path", path, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Reembed embeds an existing document's chunks again with whichever tier is
// available now, replacing its vectors in that space
func (p *Processor) Reembed(ctx context.Context, docID uuid.UUID) (*IngestResult, error) {
	unlock := p.locks.Lock(docID)
	defer unlock()

	doc, err := p.catalog.GetDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
	}

	chunks, err := p.catalog.ListChunks(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	if len(chunks) == 0 {
		return &IngestResult{Document: doc}, nil
	}

	batch, err := p.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if err := p.storeVectors(ctx, doc, chunks, batch); err != nil {
		return nil, err
	}
	doc.Processed = true
	return &IngestResult{Document: doc, Chunks: len(chunks), Space: batch.Space}, nil
}

// Delete removes a document with its chunks and vectors
func (p *Processor) Delete(ctx context.Context, docID uuid.UUID) error {
	unlock := p.locks.Lock(docID)
	defer unlock()

	doc, err := p.catalog.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
	}

	if err := p.index.DeleteVectors(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	if err := p.catalog.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// keyedMutex serializes work per document ID
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until id is free and returns the function that releases it
func (k *keyedMutex) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uuid.UUID]*keyedEntry)
	}
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
