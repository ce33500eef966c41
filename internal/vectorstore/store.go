// Package vectorstore defines document storage and vector search, and the
// ranking rules every backend shares.
package vectorstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/perspectives-ai/rag/internal/domain"
)

// Catalog stores documents and their chunks.
type Catalog interface {
	UpsertDocument(ctx context.Context, doc *domain.Document) error
	// GetDocument returns nil, nil when the document does not exist.
	GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	ListDocuments(ctx context.Context) ([]*domain.Document, error)
	SetProcessed(ctx context.Context, id uuid.UUID, processed bool) error
	// ReplaceChunks swaps the document's chunks. Embeddings of removed chunks
	// go with them; chunks whose ID survives keep theirs.
	ReplaceChunks(ctx context.Context, docID uuid.UUID, chunks []domain.Chunk) error
	ListChunks(ctx context.Context, docID uuid.UUID) ([]domain.Chunk, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
}

// Index stores chunk vectors per vector space and answers similarity queries.
type Index interface {
	Upsert(ctx context.Context, space domain.VectorSpace, records []Record) error
	// ReplaceDocument makes records the document's only vectors in space.
	// Readers never see the document without vectors in between.
	ReplaceDocument(ctx context.Context, docID uuid.UUID, space domain.VectorSpace, records []Record) error
	// DeleteVectors drops the document's vectors in every space. Catalog
	// entries are left alone.
	DeleteVectors(ctx context.Context, docID uuid.UUID) error
	Search(ctx context.Context, q Query) ([]domain.RetrievalResult, error)
	Spaces(ctx context.Context) ([]SpaceStats, error)
	Close() error
}

// Record is one chunk vector plus the metadata returned with search hits.
type Record struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	Title      string
	Filename   string
	Page       int
	Text       string
	Vector     []float32
}

// Query is a similarity search in one vector space.
type Query struct {
	Vector []float32
	Space  domain.VectorSpace
	TopK   int
	Floor  float64
}

// Searchable reports whether the query can match anything at all.
func (q Query) Searchable() bool {
	return !q.Space.IsZero() && len(q.Vector) == q.Space.Dimension && q.TopK > 0
}

// SpaceStats counts stored vectors in one space.
type SpaceStats struct {
	Space   domain.VectorSpace `json:"space"`
	Vectors int                `json:"vectors"`
}

// NewRecords pairs chunks with their vectors and document metadata.
func NewRecords(doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) []Record {
	out := make([]Record, len(chunks))
	for i, c := range chunks {
		out[i] = Record{
			ChunkID:    c.ID,
			DocumentID: doc.ID,
			Title:      doc.Title,
			Filename:   doc.Filename,
			Page:       c.Page,
			Text:       c.Text,
			Vector:     vectors[i],
		}
	}
	return out
}
