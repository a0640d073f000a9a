package service

import (
	"math"
	"testing"

	"github.com/docquery-ai/docquery/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func retrievalChunk(id string, embedding []float32) *domain.Chunk {
	return &domain.Chunk{ID: id, DocumentID: "doc-1", Text: "text " + id, Embedding: embedding}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{0.5, 0.25, 0.75}
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9, "self similarity is 1")

	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9, "orthogonal vectors")
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9, "opposite vectors")

	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}), "zero vector")
	assert.Equal(t, 0.0, CosineSimilarity(nil, []float32{1, 1}), "empty vector")
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	// Truncates to the shared length instead of erroring.
	a := []float32{1, 0, 5, 5}
	b := []float32{1, 0}
	assert.InDelta(t, 1.0, CosineSimilarity(a[:2], b), 1e-9)
	got := CosineSimilarity(a, b)
	assert.False(t, math.IsNaN(got))
	assert.InDelta(t, CosineSimilarity([]float32{1, 0}, b), got, 1e-9)
}

func TestRetriever_RankingAndTopK(t *testing.T) {
	query := []float32{1, 0}
	chunks := []*domain.Chunk{
		retrievalChunk("low", []float32{0.3, 1}),    // ~0.287
		retrievalChunk("best", []float32{1, 0}),     // 1.0
		retrievalChunk("mid", []float32{1, 1}),      // ~0.707
		retrievalChunk("high", []float32{1, 0.25}),  // ~0.970
		retrievalChunk("floor", []float32{0.05, 1}), // ~0.05, below floor
	}

	retriever := NewRetriever(3, DefaultMinScore)
	results, err := retriever.Retrieve(query, chunks)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "best", results[0].Chunk.ID)
	assert.Equal(t, "high", results[1].Chunk.ID)
	assert.Equal(t, "mid", results[2].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)
}

func TestRetriever_StableTieBreak(t *testing.T) {
	query := []float32{1, 0}
	// C and A tie exactly; B scores lower. Insertion order is C, A, B.
	chunks := []*domain.Chunk{
		retrievalChunk("C", []float32{2, 0}),
		retrievalChunk("A", []float32{3, 0}),
		retrievalChunk("B", []float32{1, 1}),
	}

	retriever := NewRetriever(5, DefaultMinScore)
	results, err := retriever.Retrieve(query, chunks)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "C", results[0].Chunk.ID, "ties preserve insertion order")
	assert.Equal(t, "A", results[1].Chunk.ID)
	assert.Equal(t, "B", results[2].Chunk.ID)
}

func TestRetriever_FloorAppliedAfterTruncation(t *testing.T) {
	query := []float32{1, 0}
	chunks := []*domain.Chunk{
		retrievalChunk("good", []float32{1, 0}),
		retrievalChunk("weak", []float32{0.05, 1}), // ~0.05
	}

	retriever := NewRetriever(3, DefaultMinScore)
	results, err := retriever.Retrieve(query, chunks)
	require.NoError(t, err)

	require.Len(t, results, 1, "candidate below floor excluded even with topK space left")
	assert.Equal(t, "good", results[0].Chunk.ID)
}

func TestNewRetriever_Defaults(t *testing.T) {
	retriever := NewRetriever(0, 0)
	assert.Equal(t, DefaultTopK, retriever.TopK)
	assert.Equal(t, DefaultMinScore, retriever.MinScore)

	retriever = NewRetriever(-1, -0.5)
	assert.Equal(t, DefaultTopK, retriever.TopK)
	assert.Equal(t, DefaultMinScore, retriever.MinScore)

	retriever = NewRetriever(7, 0.3)
	assert.Equal(t, 7, retriever.TopK)
	assert.Equal(t, 0.3, retriever.MinScore)
}

func TestRetriever_ZeroMinScoreUsesDefaultFloor(t *testing.T) {
	query := []float32{1, 0}
	chunks := []*domain.Chunk{
		retrievalChunk("good", []float32{1, 0}),
		retrievalChunk("weak", []float32{0.05, 1}), // ~0.05, below the default floor
	}

	// A request omitting min_score decodes to 0; the default floor still holds.
	retriever := NewRetriever(0, 0)
	results, err := retriever.Retrieve(query, chunks)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "good", results[0].Chunk.ID)
}

func TestRetriever_NoCandidates(t *testing.T) {
	retriever := NewRetriever(5, DefaultMinScore)

	// Zero candidates at all: document never embedded.
	_, err := retriever.Retrieve([]float32{1, 0}, nil)
	assert.ErrorIs(t, err, domain.ErrDocumentNotReady)

	// Chunks without embeddings count as no candidates.
	_, err = retriever.Retrieve([]float32{1, 0}, []*domain.Chunk{
		retrievalChunk("empty", nil),
		retrievalChunk("zero-len", []float32{}),
	})
	assert.ErrorIs(t, err, domain.ErrDocumentNotReady)

	// Candidates exist but none clears the floor: empty result, no error.
	results, err := retriever.Retrieve([]float32{1, 0}, []*domain.Chunk{
		retrievalChunk("orthogonal", []float32{0, 1}),
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSanitizeEmbedding(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	assert.Equal(t, []float32{1, 2, 3}, sanitizeEmbedding([]float32{1, 2, 3}))
	assert.Equal(t, []float32{1, 3}, sanitizeEmbedding([]float32{1, nan, 3}))
	assert.Equal(t, []float32{2}, sanitizeEmbedding([]float32{inf, 2}))
	assert.Nil(t, sanitizeEmbedding([]float32{nan, inf}))
	assert.Nil(t, sanitizeEmbedding(nil))
}

func TestRetriever_MalformedStoredEmbedding(t *testing.T) {
	nan := float32(math.NaN())
	query := []float32{1, 0}
	chunks := []*domain.Chunk{
		retrievalChunk("dirty", []float32{1, nan}), // sanitized to [1], truncation applies
		retrievalChunk("clean", []float32{1, 0}),
	}

	retriever := NewRetriever(5, DefaultMinScore)
	results, err := retriever.Retrieve(query, chunks)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, math.IsNaN(r.Similarity))
	}
}
