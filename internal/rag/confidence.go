package rag

import (
	"math"

	"github.com/perspectives-ai/rag/internal/domain"
)

// ConfidencePolicy scores an answer from its retrieval results alone.
// The score blends the best similarity with how many results clear Floor.
type ConfidencePolicy struct {
	TopWeight       float64
	CountWeight     float64
	CountSaturation int
	Floor           float64
}

// DefaultConfidencePolicy returns the default weights
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{
		TopWeight:       0.7,
		CountWeight:     0.3,
		CountSaturation: 3,
		Floor:           DefaultSimilarityFloor,
	}
}

// Score returns a confidence in [0, 1] rounded to two decimals
func (p ConfidencePolicy) Score(results []domain.RetrievalResult) float64 {
	if len(results) == 0 {
		return 0
	}
	total := p.TopWeight + p.CountWeight
	if total <= 0 {
		return 0
	}

	top := math.Inf(-1)
	n := 0
	for _, r := range results {
		top = max(top, r.Similarity)
		if r.Similarity >= p.Floor {
			n++
		}
	}

	saturation := max(p.CountSaturation, 1)
	coverage := math.Min(float64(n)/float64(saturation), 1)
	score := (p.TopWeight*clamp01(top) + p.CountWeight*coverage) / total
	return math.Round(clamp01(score)*100) / 100
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(v, 1))
}
