// Package domain holds the types shared by ingestion, retrieval and synthesis.
package domain

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// idNamespace scopes the name-based UUIDs minted for documents and chunks.
var idNamespace = uuid.MustParse("6f1c3b1e-5d0a-4f63-9b7e-2a4c1d8e9f30")

// Document is a source document in the corpus
type Document struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Filename    string    `json:"filename"`
	ByteSize    int64     `json:"file_size"`
	ContentType string    `json:"content_type"`
	ContentHash string    `json:"content_hash"`
	UploadedAt  time.Time `json:"upload_date"`
	Processed   bool      `json:"processed"`
}

// SectionMeta records where a chunk came from inside its page
type SectionMeta struct {
	Heading      string `json:"heading,omitempty"`
	Method       string `json:"method"`
	Offset       int    `json:"offset"`
	OverlapChars int    `json:"overlap_chars"`
}

// Chunking methods stored in SectionMeta.Method
const (
	MethodStructural = "structural"
	MethodWindow     = "window"
)

// Chunk is a contiguous span of a document's text
type Chunk struct {
	ID         uuid.UUID   `json:"id"`
	DocumentID uuid.UUID   `json:"document_id"`
	Text       string      `json:"chunk_text"`
	Sequence   int         `json:"chunk_index"`
	Page       int         `json:"page_number"`
	Section    SectionMeta `json:"metadata"`
}

// Body returns the chunk text without the overlap copied from its predecessor.
func (c Chunk) Body() string {
	if c.Section.OverlapChars <= 0 || c.Section.OverlapChars > len(c.Text) {
		return c.Text
	}
	return c.Text[c.Section.OverlapChars:]
}

// VectorSpace identifies the model and dimension a vector was produced in.
// Vectors from different spaces are never compared.
type VectorSpace struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// IsZero reports whether the space is unset
func (s VectorSpace) IsZero() bool {
	return s.Model == "" || s.Dimension <= 0
}

func (s VectorSpace) String() string {
	return fmt.Sprintf("%s/%d", s.Model, s.Dimension)
}

// Embedding is a vector for one chunk in one space
type Embedding struct {
	ID        uuid.UUID
	ChunkID   uuid.UUID
	Vector    []float32
	Space     VectorSpace
	CreatedAt time.Time
}

// Query is a question asked against the corpus
type Query struct {
	Text       string    `json:"query"`
	MaxResults int       `json:"max_results"`
	Timestamp  time.Time `json:"timestamp"`
}

// RetrievalResult is one chunk returned by similarity search
type RetrievalResult struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Title      string    `json:"title"`
	Filename   string    `json:"filename"`
	Page       int       `json:"page_number"`
	ChunkText  string    `json:"chunk_text"`
	Similarity float64   `json:"similarity_score"`
}

// Answer is the pipeline's response to a query
type Answer struct {
	Text       string            `json:"answer"`
	Sources    []RetrievalResult `json:"sources"`
	Confidence float64           `json:"confidence"`
}

// ContentHash returns the hex SHA-256 of the given text
func ContentHash(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}

// DocumentID derives a stable document ID from its content hash
func DocumentID(contentHash string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte("document:"+contentHash))
}

// ChunkID derives a stable chunk ID from its document, position and text
func ChunkID(documentID uuid.UUID, sequence int, text string) uuid.UUID {
	return uuid.NewSHA1(documentID, []byte(fmt.Sprintf("chunk:%d:%s", sequence, ContentHash(text))))
}

// EmbeddingID derives a stable embedding ID from its chunk and model
func EmbeddingID(chunkID uuid.UUID, model string) uuid.UUID {
	return uuid.NewSHA1(chunkID, []byte("embedding:"+model))
}
