package db

import (
	"github.com/jackc/pgx/v5"

	"github.com/perspectives-ai/rag/internal/domain"
)

const documentColumns = `id, title, filename, file_size, content_type, content_hash, upload_date, processed`

const chunkColumns = `id, document_id, chunk_text, chunk_index, page_number, metadata`

// scanDocument reads a row selected with documentColumns
func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	err := row.Scan(
		&doc.ID, &doc.Title, &doc.Filename, &doc.ByteSize,
		&doc.ContentType, &doc.ContentHash, &doc.UploadedAt, &doc.Processed,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// scanChunk reads a row selected with chunkColumns
func scanChunk(row pgx.Row) (domain.Chunk, error) {
	var c domain.Chunk
	err := row.Scan(&c.ID, &c.DocumentID, &c.Text, &c.Sequence, &c.Page, &c.Section)
	return c, err
}
