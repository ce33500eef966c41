package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/perspectives-ai/rag/internal/domain"
)

// UpsertDocument inserts a document or refreshes its descriptive fields
func (db *DB) UpsertDocument(ctx context.Context, doc *domain.Document) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		     title = EXCLUDED.title,
		     filename = EXCLUDED.filename,
		     file_size = EXCLUDED.file_size,
		     content_type = EXCLUDED.content_type,
		     processed = EXCLUDED.processed`,
		doc.ID, doc.Title, doc.Filename, doc.ByteSize,
		doc.ContentType, doc.ContentHash, doc.UploadedAt, doc.Processed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID, or nil when it does not exist
func (db *DB) GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	doc, err := scanDocument(db.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns all documents, newest first
func (db *DB) ListDocuments(ctx context.Context) ([]*domain.Document, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY upload_date DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SetProcessed updates the processed flag
func (db *DB) SetProcessed(ctx context.Context, id uuid.UUID, processed bool) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE documents SET processed = $2 WHERE id = $1`, id, processed)
	if err != nil {
		return fmt.Errorf("failed to update processed flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ReplaceChunks deletes the document's chunks that are not in chunks (their
// embeddings cascade) and upserts the rest in one transaction. Surviving
// chunks keep their embeddings.
func (db *DB) ReplaceChunks(ctx context.Context, docID uuid.UUID, chunks []domain.Chunk) error {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID.String()
	}
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM document_chunks WHERE document_id = $1 AND NOT (id = ANY($2::uuid[]))`,
			docID, ids); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, c := range chunks {
			batch.Queue(
				`INSERT INTO document_chunks (`+chunkColumns+`)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (id) DO UPDATE SET
				     chunk_text = EXCLUDED.chunk_text,
				     page_number = EXCLUDED.page_number,
				     metadata = EXCLUDED.metadata`,
				c.ID, docID, c.Text, c.Sequence, c.Page, c.Section,
			)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for i := range chunks {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", i, err)
			}
		}
		return nil
	})
}

// ListChunks returns a document's chunks in sequence order
func (db *DB) ListChunks(ctx context.Context, docID uuid.UUID) ([]domain.Chunk, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+chunkColumns+` FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteDocument removes a document; chunks and embeddings cascade
func (db *DB) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}
