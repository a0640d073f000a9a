package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/docquery-ai/docquery/internal/domain"
)

const (
	// DefaultEmbedBatchSize is how many chunk texts go to the provider per call.
	DefaultEmbedBatchSize = 50
	// MaxEmbedBatchSize is the provider's hard input ceiling; the provider
	// rejects oversized batches as a programming error.
	MaxEmbedBatchSize = 128
	// DefaultBatchDelay paces provider calls between batches. It is a simple
	// rate-limit courtesy, not adaptive backoff.
	DefaultBatchDelay = 100 * time.Millisecond
)

// EmbeddingVector is one embedding returned by the provider.
type EmbeddingVector struct {
	Embedding []float32
	Model     string
}

// EmbeddingClient defines the interface for the embedding provider
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) (EmbeddingVector, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([]EmbeddingVector, error)
}

// EmbeddingChunkRepository defines the repository interface for attaching
// embeddings to persisted chunks
type EmbeddingChunkRepository interface {
	UpdateEmbedding(ctx context.Context, chunkID string, embedding []float32, model string, embeddedAt time.Time) error
}

// EmbedReport summarizes one embedding pass over a document's chunks.
type EmbedReport struct {
	ProcessedCount int
	FailedCount    int
}

// EmbeddingService embeds chunks in sequential batches. One failed batch
// does not abort the job: its chunks are counted and the loop moves on.
type EmbeddingService struct {
	client     EmbeddingClient
	chunkRepo  EmbeddingChunkRepository
	batchSize  int
	batchDelay time.Duration
}

// NewEmbeddingService creates an EmbeddingService with default batching.
func NewEmbeddingService(client EmbeddingClient, chunkRepo EmbeddingChunkRepository) *EmbeddingService {
	return NewEmbeddingServiceWithConfig(client, chunkRepo, DefaultEmbedBatchSize, DefaultBatchDelay)
}

// NewEmbeddingServiceWithConfig creates an EmbeddingService with explicit
// batch size and inter-batch delay. Batch size is clamped to the provider's
// input ceiling.
func NewEmbeddingServiceWithConfig(client EmbeddingClient, chunkRepo EmbeddingChunkRepository, batchSize int, batchDelay time.Duration) *EmbeddingService {
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	if batchSize > MaxEmbedBatchSize {
		batchSize = MaxEmbedBatchSize
	}
	if batchDelay < 0 {
		batchDelay = DefaultBatchDelay
	}
	return &EmbeddingService{
		client:     client,
		chunkRepo:  chunkRepo,
		batchSize:  batchSize,
		batchDelay: batchDelay,
	}
}

// EmbedChunks embeds the given chunks batch by batch and persists results as
// they arrive. Each successfully embedded chunk gets its complete
// {embedding, model, embeddedAt} triple in one update; failed batches only
// increment the failure counter.
//
// Cancellation stops between batches and returns the report so far; chunks
// already embedded stay embedded.
func (s *EmbeddingService) EmbedChunks(ctx context.Context, chunks []*domain.Chunk) (EmbedReport, error) {
	var report EmbedReport

	totalBatches := (len(chunks) + s.batchSize - 1) / s.batchSize

	for i := 0; i < len(chunks); i += s.batchSize {
		end := i + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]
		batchNumber := i/s.batchSize + 1

		if err := s.embedBatch(ctx, batch); err != nil {
			log.Printf("embedding batch %d/%d failed (%d chunks): %v", batchNumber, totalBatches, len(batch), err)
			report.FailedCount += len(batch)
		} else {
			report.ProcessedCount += len(batch)
		}

		// Pace between batches, never after the last one.
		if end < len(chunks) {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(s.batchDelay):
			}
		}
	}

	return report, nil
}

// embedBatch makes a single provider call for the whole batch and maps each
// returned vector back to the chunk at the same index.
func (s *EmbeddingService) embedBatch(ctx context.Context, batch []*domain.Chunk) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}

	vectors, err := s.client.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("provider call failed: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("provider returned %d embeddings for %d inputs", len(vectors), len(batch))
	}

	now := time.Now().UTC()
	for i, chunk := range batch {
		if len(vectors[i].Embedding) == 0 {
			return fmt.Errorf("provider returned empty embedding at index %d", i)
		}
		if err := s.chunkRepo.UpdateEmbedding(ctx, chunk.ID, vectors[i].Embedding, vectors[i].Model, now); err != nil {
			return fmt.Errorf("failed to persist embedding for chunk %s: %w", chunk.ID, err)
		}
		chunk.SetEmbedding(vectors[i].Embedding, vectors[i].Model, now)
	}

	return nil
}

// StatusForReport maps an embedding pass outcome to the document-level
// embedding status: completed when nothing failed, partial otherwise.
// A document whose chunking succeeded never regresses to failed because of
// embedding errors.
func StatusForReport(report EmbedReport) domain.EmbeddingStatus {
	if report.FailedCount == 0 {
		return domain.EmbeddingStatusCompleted
	}
	return domain.EmbeddingStatusPartial
}
