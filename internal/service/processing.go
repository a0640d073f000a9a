package service

import (
	"context"
	"fmt"
	"time"

	"github.com/docquery-ai/docquery/internal/domain"
	"github.com/docquery-ai/docquery/internal/telemetry"
)

// ProcessingDocumentRepository defines the repository interface for document
// persistence during processing
type ProcessingDocumentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	Update(ctx context.Context, d *domain.Document) error
}

// ProcessingChunkRepository defines the repository interface for chunk
// persistence during processing
type ProcessingChunkRepository interface {
	BulkCreate(ctx context.Context, chunks []*domain.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
	ListUnembeddedByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error)
}

// DocumentStorage fetches uploaded document bytes by storage key.
type DocumentStorage interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// ExtractedPage is the text content of one document page.
type ExtractedPage struct {
	PageNumber int
	Text       string
}

// TextExtractor pulls per-page text out of an uploaded document.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) ([]ExtractedPage, error)
}

// ProcessingService runs the document ingestion pipeline: download, extract,
// chunk, persist chunks, then embed.
type ProcessingService struct {
	docRepo   ProcessingDocumentRepository
	chunkRepo ProcessingChunkRepository
	storage   DocumentStorage
	extractor TextExtractor
	chunker   ChunkStrategy
	embedding *EmbeddingService
	uuidGen   UUIDGenerator
	now       func() time.Time
}

// NewProcessingService creates a new ProcessingService instance
func NewProcessingService(
	docRepo ProcessingDocumentRepository,
	chunkRepo ProcessingChunkRepository,
	storage DocumentStorage,
	extractor TextExtractor,
	chunker ChunkStrategy,
	embedding *EmbeddingService,
) *ProcessingService {
	return &ProcessingService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		storage:   storage,
		extractor: extractor,
		chunker:   chunker,
		embedding: embedding,
		uuidGen:   &DefaultUUIDGenerator{},
		now:       time.Now,
	}
}

// NewProcessingServiceWithDeps creates a ProcessingService with custom UUID
// generation and clock (for testing)
func NewProcessingServiceWithDeps(
	docRepo ProcessingDocumentRepository,
	chunkRepo ProcessingChunkRepository,
	storage DocumentStorage,
	extractor TextExtractor,
	chunker ChunkStrategy,
	embedding *EmbeddingService,
	uuidGen UUIDGenerator,
	now func() time.Time,
) *ProcessingService {
	return &ProcessingService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		storage:   storage,
		extractor: extractor,
		chunker:   chunker,
		embedding: embedding,
		uuidGen:   uuidGen,
		now:       now,
	}
}

// Process runs the full ingestion pipeline for one document. Extraction and
// chunking failures abort the run but leave the document in processing so the
// job worker can retry; the worker calls MarkFailed once its retries are
// exhausted. Embedding failures are not fatal: the document still completes
// with a partial or failed embedding status.
func (s *ProcessingService) Process(ctx context.Context, documentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "ProcessingService.Process", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "process",
	})
	defer span.End()

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.StorageKey == "" {
		return domain.ErrDocumentNotUploaded
	}
	// A document left in processing by an aborted run may be picked up again.
	if doc.Status != domain.DocumentStatusProcessing && !doc.CanTransitionTo(domain.DocumentStatusProcessing) {
		return domain.NewDomainError(domain.ErrCodeInvalidOperation,
			fmt.Sprintf("document in status %q cannot be processed", doc.Status))
	}

	doc.Status = domain.DocumentStatusProcessing
	doc.EmbeddingStatus = domain.EmbeddingStatusPending
	doc.ErrorMessage = ""
	doc.UpdatedAt = s.now()
	if err := s.docRepo.Update(ctx, doc); err != nil {
		return err
	}

	chunks, pageCount, err := s.extractAndChunk(ctx, doc)
	if err != nil {
		span.SetError(err)
		return err
	}

	// Reprocessing replaces any chunks from an earlier run.
	if err := s.chunkRepo.DeleteByDocument(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.chunkRepo.BulkCreate(ctx, chunks); err != nil {
		return err
	}

	processedAt := s.now()
	doc.Status = domain.DocumentStatusProcessed
	doc.PageCount = pageCount
	doc.ProcessedAt = &processedAt
	doc.EmbeddingStatus = domain.EmbeddingStatusProcessing
	doc.UpdatedAt = processedAt
	if err := s.docRepo.Update(ctx, doc); err != nil {
		return err
	}

	report, err := s.embedding.EmbedChunks(ctx, chunks)
	if err != nil {
		// Cancellation mid-pass: leave statuses as they are so a retry
		// can pick up the remaining chunks.
		return err
	}

	embeddedAt := s.now()
	doc.EmbeddingStatus = StatusForReport(report)
	doc.Status = domain.DocumentStatusCompleted
	doc.EmbeddedAt = &embeddedAt
	doc.UpdatedAt = embeddedAt
	return s.docRepo.Update(ctx, doc)
}

// Reembed retries embedding for chunks that have no vector yet, typically
// after a partial pass.
func (s *ProcessingService) Reembed(ctx context.Context, documentID string) (EmbedReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "ProcessingService.Reembed", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "reembed",
	})
	defer span.End()

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return EmbedReport{}, err
	}

	pending, err := s.chunkRepo.ListUnembeddedByDocument(ctx, documentID)
	if err != nil {
		return EmbedReport{}, err
	}
	if len(pending) == 0 {
		return EmbedReport{}, nil
	}

	report, err := s.embedding.EmbedChunks(ctx, pending)
	if err != nil {
		return report, err
	}

	now := s.now()
	if report.FailedCount == 0 {
		doc.EmbeddingStatus = domain.EmbeddingStatusCompleted
	} else {
		doc.EmbeddingStatus = domain.EmbeddingStatusPartial
	}
	doc.EmbeddedAt = &now
	doc.UpdatedAt = now
	return report, s.docRepo.Update(ctx, doc)
}

func (s *ProcessingService) extractAndChunk(ctx context.Context, doc *domain.Document) ([]*domain.Chunk, int, error) {
	data, err := s.storage.Download(ctx, doc.StorageKey)
	if err != nil {
		return nil, 0, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to download document", err)
	}

	pages, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, 0, domain.NewDomainErrorWithCause(domain.ErrCodeInvalidOperation, "failed to extract text", err)
	}

	now := s.now()
	var chunks []*domain.Chunk
	chunkNumber := 0
	for _, page := range pages {
		pageNum := page.PageNumber
		for _, tc := range s.chunker.Chunk(page.Text) {
			chunks = append(chunks, &domain.Chunk{
				ID:          s.uuidGen.NewString(),
				DocumentID:  doc.ID,
				ChunkNumber: chunkNumber,
				Text:        tc.Text,
				StartIndex:  tc.StartIndex,
				EndIndex:    tc.EndIndex,
				TokenCount:  tc.TokenCount,
				PageNumber:  &pageNum,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			chunkNumber++
		}
	}
	if len(chunks) == 0 {
		if allEmpty(pages) {
			return nil, 0, domain.ErrNoTextExtracted
		}
		return nil, 0, domain.ErrNoChunksCreated
	}

	return chunks, len(pages), nil
}

// MarkFailed moves a document to the terminal failed status, recording the
// cause. The job worker calls it once a job has exhausted its retries; until
// then the document stays in processing so further attempts pass the
// transition gate.
func (s *ProcessingService) MarkFailed(ctx context.Context, documentID string, cause error) error {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status == domain.DocumentStatusFailed {
		return nil
	}

	doc.Status = domain.DocumentStatusFailed
	doc.EmbeddingStatus = domain.EmbeddingStatusFailed
	doc.ErrorMessage = cause.Error()
	doc.UpdatedAt = s.now()
	if updateErr := s.docRepo.Update(ctx, doc); updateErr != nil {
		return fmt.Errorf("failed to mark document failed: %w (original: %v)", updateErr, cause)
	}
	return nil
}

func allEmpty(pages []ExtractedPage) bool {
	for _, p := range pages {
		if p.Text != "" {
			return false
		}
	}
	return true
}
