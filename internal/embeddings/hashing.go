package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/perspectives-ai/rag/internal/llm"
)

const (
	// DefaultHashDimension matches the width of small sentence-transformer models
	DefaultHashDimension = 384
	hashMaxWords         = 100
)

// HashEmbedder is an in-process feature-hashing embedder. It needs no network
// and always succeeds, which makes it the last tier.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hashing embedder with the given dimension
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Name() string { return "local" }

// Model encodes the dimension so different widths never share a space
func (h *HashEmbedder) Model() string {
	return "local-hash-" + strconv.Itoa(h.dim)
}

// Embed hashes the first words of each text into a signed bag-of-words vector
func (h *HashEmbedder) Embed(ctx context.Context, texts []string, _ llm.TaskType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) > hashMaxWords {
		words = words[:hashMaxWords]
	}

	for _, w := range words {
		f := fnv.New64a()
		_, _ = f.Write([]byte(w))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// A text with no words still gets a valid unit vector
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
