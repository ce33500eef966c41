package vectorstore

import (
	"bytes"
	"math"
	"sort"

	"github.com/perspectives-ai/rag/internal/domain"
)

// Cosine returns the cosine similarity of a and b, or 0 when either has zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank scores records against q and applies the floor, ordering and TopK.
// Records must already be restricted to q.Space.
func Rank(q Query, records []Record) []domain.RetrievalResult {
	if !q.Searchable() {
		return []domain.RetrievalResult{}
	}

	out := make([]domain.RetrievalResult, 0, len(records))
	for _, r := range records {
		if len(r.Vector) != q.Space.Dimension {
			continue
		}
		sim := Cosine(q.Vector, r.Vector)
		if sim < q.Floor {
			continue
		}
		out = append(out, domain.RetrievalResult{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Title:      r.Title,
			Filename:   r.Filename,
			Page:       r.Page,
			ChunkText:  r.Text,
			Similarity: sim,
		})
	}
	Sort(out)
	if len(out) > q.TopK {
		out = out[:q.TopK]
	}
	return out
}

// Sort orders results by similarity descending, ties by lower chunk ID.
func Sort(results []domain.RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return bytes.Compare(results[i].ChunkID[:], results[j].ChunkID[:]) < 0
	})
}
