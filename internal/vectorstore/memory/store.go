// Package memory is an in-process catalog and exact vector index.
//
// All state lives in an immutable snapshot. Writers build the next snapshot
// under a mutex and publish it with one atomic store, so a reader sees either
// the whole write or none of it.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/vectorstore"
)

type snapshot struct {
	docs    map[uuid.UUID]domain.Document
	chunks  map[uuid.UUID][]domain.Chunk
	vectors map[domain.VectorSpace]map[uuid.UUID]vectorstore.Record
}

func (s *snapshot) clone() *snapshot {
	return &snapshot{
		docs:    maps.Clone(s.docs),
		chunks:  maps.Clone(s.chunks),
		vectors: maps.Clone(s.vectors),
	}
}

// space returns a private copy of one space's records, safe to modify
func (s *snapshot) space(sp domain.VectorSpace) map[uuid.UUID]vectorstore.Record {
	m := maps.Clone(s.vectors[sp])
	if m == nil {
		m = make(map[uuid.UUID]vectorstore.Record)
	}
	s.vectors[sp] = m
	return m
}

// dropDocumentVectors removes the document's vectors in every space except
// those of chunks listed in keep
func (s *snapshot) dropDocumentVectors(docID uuid.UUID, keep map[uuid.UUID]bool) {
	for sp, recs := range s.vectors {
		if !containsDocument(recs, docID) {
			continue
		}
		m := s.space(sp)
		for id, r := range m {
			if r.DocumentID == docID && !keep[id] {
				delete(m, id)
			}
		}
		if len(m) == 0 {
			delete(s.vectors, sp)
		}
	}
}

func containsDocument(recs map[uuid.UUID]vectorstore.Record, docID uuid.UUID) bool {
	for _, r := range recs {
		if r.DocumentID == docID {
			return true
		}
	}
	return false
}

// Store implements vectorstore.Catalog and vectorstore.Index in memory.
type Store struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// New creates an empty store
func New() *Store {
	s := &Store{}
	s.snap.Store(&snapshot{
		docs:    map[uuid.UUID]domain.Document{},
		chunks:  map[uuid.UUID][]domain.Chunk{},
		vectors: map[domain.VectorSpace]map[uuid.UUID]vectorstore.Record{},
	})
	return s
}

// update applies fn to a copy of the current snapshot and publishes it on success
func (s *Store) update(fn func(next *snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.snap.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	s.snap.Store(next)
	return nil
}

// UpsertDocument inserts or overwrites a document record
func (s *Store) UpsertDocument(ctx context.Context, doc *domain.Document) error {
	return s.update(func(next *snapshot) error {
		next.docs[doc.ID] = *doc
		return nil
	})
}

// GetDocument returns nil, nil for an unknown id
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	doc, ok := s.snap.Load().docs[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

// ListDocuments returns documents newest first
func (s *Store) ListDocuments(ctx context.Context) ([]*domain.Document, error) {
	snap := s.snap.Load()
	out := make([]*domain.Document, 0, len(snap.docs))
	for _, d := range snap.docs {
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

// SetProcessed updates the processed flag
func (s *Store) SetProcessed(ctx context.Context, id uuid.UUID, processed bool) error {
	return s.update(func(next *snapshot) error {
		doc, ok := next.docs[id]
		if !ok {
			return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		doc.Processed = processed
		next.docs[id] = doc
		return nil
	})
}

// ReplaceChunks swaps the document's chunks. Vectors of chunks that are not
// in the new set are dropped; the rest stay searchable.
func (s *Store) ReplaceChunks(ctx context.Context, docID uuid.UUID, chunks []domain.Chunk) error {
	return s.update(func(next *snapshot) error {
		if _, ok := next.docs[docID]; !ok {
			return fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
		}
		keep := make(map[uuid.UUID]bool, len(chunks))
		for _, c := range chunks {
			keep[c.ID] = true
		}
		next.dropDocumentVectors(docID, keep)
		if len(chunks) == 0 {
			delete(next.chunks, docID)
			return nil
		}
		next.chunks[docID] = slices.Clone(chunks)
		return nil
	})
}

// ListChunks returns a copy of the document's chunks
func (s *Store) ListChunks(ctx context.Context, docID uuid.UUID) ([]domain.Chunk, error) {
	return slices.Clone(s.snap.Load().chunks[docID]), nil
}

// DeleteDocument removes the document, its chunks and all of its vectors
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	return s.update(func(next *snapshot) error {
		delete(next.docs, id)
		delete(next.chunks, id)
		next.dropDocumentVectors(id, nil)
		return nil
	})
}

// DeleteVectors drops the document's vectors in every space. The document
// and its chunks stay in the catalog.
func (s *Store) DeleteVectors(ctx context.Context, docID uuid.UUID) error {
	return s.update(func(next *snapshot) error {
		next.dropDocumentVectors(docID, nil)
		return nil
	})
}

// Upsert writes records into space, overwriting vectors with the same chunk ID
func (s *Store) Upsert(ctx context.Context, space domain.VectorSpace, records []vectorstore.Record) error {
	if err := checkRecords(space, records); err != nil {
		return err
	}
	return s.update(func(next *snapshot) error {
		m := next.space(space)
		for _, r := range records {
			m[r.ChunkID] = r
		}
		return nil
	})
}

// ReplaceDocument swaps the document's vectors in space in one write
func (s *Store) ReplaceDocument(ctx context.Context, docID uuid.UUID, space domain.VectorSpace, records []vectorstore.Record) error {
	if err := checkRecords(space, records); err != nil {
		return err
	}
	return s.update(func(next *snapshot) error {
		m := next.space(space)
		for id, r := range m {
			if r.DocumentID == docID {
				delete(m, id)
			}
		}
		for _, r := range records {
			m[r.ChunkID] = r
		}
		if len(m) == 0 {
			delete(next.vectors, space)
		}
		return nil
	})
}

// Search ranks every vector of the query's space exactly
func (s *Store) Search(ctx context.Context, q vectorstore.Query) ([]domain.RetrievalResult, error) {
	recs := s.snap.Load().vectors[q.Space]
	return vectorstore.Rank(q, slices.Collect(maps.Values(recs))), nil
}

// Spaces counts vectors per space, ordered by model then dimension
func (s *Store) Spaces(ctx context.Context) ([]vectorstore.SpaceStats, error) {
	snap := s.snap.Load()
	out := make([]vectorstore.SpaceStats, 0, len(snap.vectors))
	for sp, recs := range snap.vectors {
		out = append(out, vectorstore.SpaceStats{Space: sp, Vectors: len(recs)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Space.Model != out[j].Space.Model {
			return out[i].Space.Model < out[j].Space.Model
		}
		return out[i].Space.Dimension < out[j].Space.Dimension
	})
	return out, nil
}

// Close is a no-op
func (s *Store) Close() error { return nil }

func checkRecords(space domain.VectorSpace, records []vectorstore.Record) error {
	if space.IsZero() {
		return fmt.Errorf("vector space is required")
	}
	for _, r := range records {
		if len(r.Vector) != space.Dimension {
			return fmt.Errorf("chunk %s: vector has %d dimensions, space %s", r.ChunkID, len(r.Vector), space)
		}
	}
	return nil
}
