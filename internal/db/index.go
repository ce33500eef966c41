package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/vectorstore"
)

// Index serves vector search from the embeddings table through the
// similarity_search function. Chunks must already be in the catalog.
type Index struct {
	db *DB
}

// NewIndex returns an Index backed by db
func NewIndex(db *DB) *Index {
	return &Index{db: db}
}

const insertEmbedding = `INSERT INTO embeddings (id, chunk_id, embedding, model_name, dimension)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (chunk_id, model_name) DO UPDATE SET
    embedding = EXCLUDED.embedding,
    dimension = EXCLUDED.dimension,
    created_at = NOW()`

// Upsert writes the records' vectors into space
func (ix *Index) Upsert(ctx context.Context, space domain.VectorSpace, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, ix.db.pool, func(tx pgx.Tx) error {
		return insertEmbeddings(ctx, tx, space, records)
	})
}

// ReplaceDocument drops the document's vectors in space and writes records
// in one transaction
func (ix *Index) ReplaceDocument(ctx context.Context, docID uuid.UUID, space domain.VectorSpace, records []vectorstore.Record) error {
	return pgx.BeginFunc(ctx, ix.db.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM embeddings e
			 USING document_chunks c
			 WHERE e.chunk_id = c.id AND c.document_id = $1 AND e.model_name = $2`,
			docID, space.Model)
		if err != nil {
			return fmt.Errorf("failed to delete embeddings: %w", err)
		}
		return insertEmbeddings(ctx, tx, space, records)
	})
}

func insertEmbeddings(ctx context.Context, tx pgx.Tx, space domain.VectorSpace, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		if len(r.Vector) != space.Dimension {
			return fmt.Errorf("chunk %s: vector has %d dimensions, space %s expects %d",
				r.ChunkID, len(r.Vector), space, space.Dimension)
		}
		batch.Queue(insertEmbedding,
			domain.EmbeddingID(r.ChunkID, space.Model), r.ChunkID,
			pgvector.NewVector(r.Vector), space.Model, space.Dimension)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for i := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert embedding %d: %w", i, err)
		}
	}
	return nil
}

// DeleteVectors drops the document's vectors in every space
func (ix *Index) DeleteVectors(ctx context.Context, docID uuid.UUID) error {
	_, err := ix.db.pool.Exec(ctx,
		`DELETE FROM embeddings e
		 USING document_chunks c
		 WHERE e.chunk_id = c.id AND c.document_id = $1`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return nil
}

// Search runs similarity_search for q
func (ix *Index) Search(ctx context.Context, q vectorstore.Query) ([]domain.RetrievalResult, error) {
	if !q.Searchable() {
		return []domain.RetrievalResult{}, nil
	}

	rows, err := ix.db.pool.Query(ctx,
		`SELECT chunk_id, document_id, title, filename, page_number, chunk_text, similarity
		 FROM similarity_search($1, $2, $3, $4)`,
		pgvector.NewVector(q.Vector), q.Space.Model, q.Floor, q.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	results := []domain.RetrievalResult{}
	for rows.Next() {
		var r domain.RetrievalResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Title, &r.Filename,
			&r.Page, &r.ChunkText, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	vectorstore.Sort(results)
	return results, nil
}

// Spaces counts stored vectors per space
func (ix *Index) Spaces(ctx context.Context) ([]vectorstore.SpaceStats, error) {
	rows, err := ix.db.pool.Query(ctx,
		`SELECT model_name, dimension, COUNT(*)
		 FROM embeddings
		 GROUP BY model_name, dimension
		 ORDER BY model_name, dimension`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vector spaces: %w", err)
	}
	defer rows.Close()

	var stats []vectorstore.SpaceStats
	for rows.Next() {
		var s vectorstore.SpaceStats
		if err := rows.Scan(&s.Space.Model, &s.Space.Dimension, &s.Vectors); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Close is a no-op; the pool belongs to the DB
func (ix *Index) Close() error {
	return nil
}

var _ vectorstore.Index = (*Index)(nil)
var _ vectorstore.Catalog = (*DB)(nil)
