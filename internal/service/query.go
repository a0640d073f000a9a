package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/docquery-ai/docquery/internal/domain"
	"github.com/docquery-ai/docquery/internal/telemetry"
)

// NotReadyAnswer is returned when a document has no embedded chunks yet.
// Distinct from FallbackAnswer so callers can tell a document-not-ready state
// from a low-relevance query.
const NotReadyAnswer = "No chunks found. Please process this document first."

// QueryDocumentRepository defines the repository interface for document reads
// at query time
type QueryDocumentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// QueryChunkRepository defines the repository interface for chunk reads at
// query time
type QueryChunkRepository interface {
	ListEmbeddedByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error)
}

// QueryInput represents one question against one document.
type QueryInput struct {
	WorkspaceID string
	DocumentID  string
	Question    string
	TopK        int
	MinScore    float64
}

// QuerySource is one retrieved chunk in a query response.
type QuerySource struct {
	ChunkID       string
	ChunkNumber   int
	DocumentID    string
	DocumentTitle string
	Text          string
	PageNumber    *int
	Similarity    float64
}

// QueryOutput is the full response to a question: the answer is always
// present, possibly a fallback string.
type QueryOutput struct {
	Answer                string
	Sources               []QuerySource
	TotalChunksConsidered int
	Usage                 *GenerationUsage
}

// QueryService runs the retrieval-augmented query pipeline: embed the
// question, score it against the document's chunk vectors, and synthesize a
// grounded answer from the top matches.
type QueryService struct {
	embedding EmbeddingClient
	answer    *AnswerService
	docRepo   QueryDocumentRepository
	chunkRepo QueryChunkRepository
}

// NewQueryService creates a new QueryService instance
func NewQueryService(
	embedding EmbeddingClient,
	answer *AnswerService,
	docRepo QueryDocumentRepository,
	chunkRepo QueryChunkRepository,
) *QueryService {
	return &QueryService{
		embedding: embedding,
		answer:    answer,
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
	}
}

// Query answers a question from one document's retrieved chunks. Retrieval is
// read-only: concurrent queries against the same document need no
// coordination.
func (s *QueryService) Query(ctx context.Context, input QueryInput) (*QueryOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "QueryService.Query", telemetry.SpanAttributes{
		WorkspaceID: input.WorkspaceID,
		DocumentID:  input.DocumentID,
		Operation:   "query",
	})
	defer span.End()

	if input.Question == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "question is required")
	}
	if input.DocumentID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document ID is required")
	}

	doc, err := s.docRepo.GetByID(ctx, input.DocumentID)
	if err != nil {
		return nil, err
	}
	if input.WorkspaceID != "" && doc.WorkspaceID != input.WorkspaceID {
		return nil, domain.ErrDocumentNotFound
	}

	queryVector, err := s.embedding.GenerateEmbedding(ctx, input.Question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	chunks, err := s.chunkRepo.ListEmbeddedByDocument(ctx, input.DocumentID)
	if err != nil {
		return nil, err
	}

	retriever := NewRetriever(input.TopK, input.MinScore)
	ranked, err := retriever.Retrieve(queryVector.Embedding, chunks)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotReady) {
			return &QueryOutput{Answer: NotReadyAnswer, Sources: []QuerySource{}}, nil
		}
		return nil, err
	}

	synthesis := s.answer.Synthesize(ctx, input.Question, ranked, doc.Title)

	sources := make([]QuerySource, 0, len(ranked))
	for _, r := range ranked {
		sources = append(sources, QuerySource{
			ChunkID:       r.Chunk.ID,
			ChunkNumber:   r.Chunk.ChunkNumber,
			DocumentID:    doc.ID,
			DocumentTitle: doc.Title,
			Text:          r.Chunk.Text,
			PageNumber:    r.Chunk.PageNumber,
			Similarity:    roundScore(r.Similarity),
		})
	}

	return &QueryOutput{
		Answer:                synthesis.Answer,
		Sources:               sources,
		TotalChunksConsidered: len(chunks),
		Usage:                 synthesis.Usage,
	}, nil
}

func roundScore(score float64) float64 {
	return math.Round(score*10000) / 10000
}
