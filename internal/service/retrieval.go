package service

import (
	"math"
	"sort"

	"github.com/docquery-ai/docquery/internal/domain"
)

const (
	// DefaultTopK is the number of chunks retrieved as answer context.
	DefaultTopK = 5
	// DefaultMinScore is the relevance floor: candidates scoring at or below
	// it are dropped even when fewer than TopK results remain.
	DefaultMinScore = 0.1
)

// RankedSource pairs a chunk with its similarity to the query vector.
type RankedSource struct {
	Chunk      *domain.Chunk
	Similarity float64
}

// Retriever scores a document's embedded chunks against a query vector and
// selects the top-K above the relevance floor. It never raises on malformed
// stored vectors; scoring degrades instead.
type Retriever struct {
	TopK     int
	MinScore float64
}

// NewRetriever creates a Retriever, applying defaults for non-positive values.
func NewRetriever(topK int, minScore float64) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &Retriever{TopK: topK, MinScore: minScore}
}

// Retrieve ranks candidate chunks by cosine similarity to the query vector,
// truncates to TopK, then drops entries at or below MinScore. Chunks without
// a usable embedding are excluded before scoring. Ties keep the candidates'
// original order.
//
// Returns domain.ErrDocumentNotReady when no candidate carries an embedding
// at all, so callers can tell a never-embedded document from a low-relevance
// query (which returns an empty slice and no error).
func (r *Retriever) Retrieve(queryVector []float32, candidates []*domain.Chunk) ([]RankedSource, error) {
	scored := make([]RankedSource, 0, len(candidates))
	for _, chunk := range candidates {
		emb := sanitizeEmbedding(chunk.Embedding)
		if len(emb) == 0 {
			continue
		}
		scored = append(scored, RankedSource{
			Chunk:      chunk,
			Similarity: CosineSimilarity(queryVector, emb),
		})
	}

	if len(scored) == 0 {
		return nil, domain.ErrDocumentNotReady
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > r.TopK {
		scored = scored[:r.TopK]
	}

	// The floor applies after truncation, so fewer than TopK results may
	// come back, including zero.
	results := scored[:0]
	for _, s := range scored {
		if s.Similarity > r.MinScore {
			results = append(results, s)
		}
	}

	return results, nil
}

// CosineSimilarity computes the cosine similarity of two vectors truncated to
// their shared minimum length. Mixed embedding models can produce mismatched
// dimensions; truncation degrades the score instead of erroring. A zero norm
// on either side yields 0.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sanitizeEmbedding validates a stored vector, dropping non-finite elements.
// Returns nil when nothing usable remains.
func sanitizeEmbedding(raw []float32) []float32 {
	clean := raw
	for i, v := range raw {
		if isFinite(v) {
			continue
		}
		// First bad element: switch to a filtered copy.
		clean = make([]float32, 0, len(raw))
		clean = append(clean, raw[:i]...)
		for _, w := range raw[i:] {
			if isFinite(w) {
				clean = append(clean, w)
			}
		}
		break
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}

func isFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
