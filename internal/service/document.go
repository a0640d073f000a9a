package service

import (
	"context"
	"fmt"
	"time"

	"github.com/docquery-ai/docquery/internal/domain"
	"github.com/docquery-ai/docquery/internal/pagination"
	"github.com/docquery-ai/docquery/internal/telemetry"
)

type StorageClientInterface interface {
	GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error)
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
	DeleteObject(ctx context.Context, key string) error
	HeadObject(ctx context.Context, key string) (*ObjectMetadata, error)
}

type ObjectMetadata struct {
	ContentLength int64
	ContentType   string
	ETag          string
}

type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*domain.Document, error)
	ListByWorkspaceWithCursor(ctx context.Context, workspaceID string, cursor *pagination.Cursor, limit int) (*DocumentPageResult, error)
	Update(ctx context.Context, d *domain.Document) error
	Delete(ctx context.Context, id string) error
}

type DocumentPageResult struct {
	Items      []*domain.Document
	NextCursor string
	HasMore    bool
}

type ProcessingJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.ProcessingJob) error
}

// ChunkStatsRepository exposes chunk counters for document status reporting.
type ChunkStatsRepository interface {
	CountByDocument(ctx context.Context, documentID string) (int, error)
	CountEmbeddedByDocument(ctx context.Context, documentID string) (int, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// DocumentService manages the document upload lifecycle: presigned uploads,
// registration, status reporting and deletion.
type DocumentService struct {
	docRepo       DocumentRepositoryInterface
	chunkRepo     ChunkStatsRepository
	jobRepo       ProcessingJobRepositoryInterface
	storageClient StorageClientInterface
	uuidGen       UUIDGenerator
	txRunner      TxRunner
}

func NewDocumentService(
	docRepo DocumentRepositoryInterface,
	chunkRepo ChunkStatsRepository,
	jobRepo ProcessingJobRepositoryInterface,
	storageClient StorageClientInterface,
) *DocumentService {
	return &DocumentService{
		docRepo:       docRepo,
		chunkRepo:     chunkRepo,
		jobRepo:       jobRepo,
		storageClient: storageClient,
		uuidGen:       &DefaultUUIDGenerator{},
		txRunner:      nil,
	}
}

func NewDocumentServiceWithTx(
	docRepo DocumentRepositoryInterface,
	chunkRepo ChunkStatsRepository,
	jobRepo ProcessingJobRepositoryInterface,
	storageClient StorageClientInterface,
	txRunner TxRunner,
) *DocumentService {
	return &DocumentService{
		docRepo:       docRepo,
		chunkRepo:     chunkRepo,
		jobRepo:       jobRepo,
		storageClient: storageClient,
		uuidGen:       &DefaultUUIDGenerator{},
		txRunner:      txRunner,
	}
}

func NewDocumentServiceWithUUIDGen(
	docRepo DocumentRepositoryInterface,
	chunkRepo ChunkStatsRepository,
	jobRepo ProcessingJobRepositoryInterface,
	storageClient StorageClientInterface,
	uuidGen UUIDGenerator,
) *DocumentService {
	return &DocumentService{
		docRepo:       docRepo,
		chunkRepo:     chunkRepo,
		jobRepo:       jobRepo,
		storageClient: storageClient,
		uuidGen:       uuidGen,
		txRunner:      nil,
	}
}

type InitUploadInput struct {
	WorkspaceID string
	Filename    string
	ContentType string
}

type InitUploadResult struct {
	DocumentID string
	StorageKey string
	UploadURL  string
}

// InitUpload reserves a document ID and returns a presigned URL the caller
// uploads the file to. No database record exists until CompleteUpload.
func (s *DocumentService) InitUpload(ctx context.Context, input InitUploadInput) (*InitUploadResult, error) {
	if input.WorkspaceID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "workspace ID is required")
	}
	if input.Filename == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "filename is required")
	}

	documentID := s.uuidGen.NewString()
	storageKey := buildStorageKey(input.WorkspaceID, documentID, input.Filename)

	uploadURL, err := s.storageClient.GenerateUploadURL(ctx, storageKey, input.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to generate upload URL: %w", err)
	}

	return &InitUploadResult{
		DocumentID: documentID,
		StorageKey: storageKey,
		UploadURL:  uploadURL,
	}, nil
}

type CompleteUploadInput struct {
	DocumentID  string
	WorkspaceID string
	Title       string
	Filename    string
	ContentType string
	StorageKey  string
}

// CompleteUpload verifies the object landed in storage, registers the
// document and queues a processing job. The record and the job are created in
// one transaction when a TxRunner is configured.
func (s *DocumentService) CompleteUpload(ctx context.Context, input CompleteUploadInput) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.CompleteUpload", telemetry.SpanAttributes{
		WorkspaceID: input.WorkspaceID,
		DocumentID:  input.DocumentID,
		Operation:   "complete_upload",
	})
	defer span.End()

	meta, err := s.storageClient.HeadObject(ctx, input.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to verify uploaded file: %w", err)
	}

	now := time.Now().UTC()
	title := input.Title
	if title == "" {
		title = input.Filename
	}
	doc := domain.NewDocument(
		input.DocumentID, input.WorkspaceID, title,
		input.Filename, input.StorageKey, input.ContentType,
		meta.ContentLength, now,
	)
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, err
	}

	job := domain.NewProcessingJob(s.uuidGen.NewString(), doc.ID, now)

	if s.txRunner != nil {
		if err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			if err := repos.Documents().Create(ctx, doc); err != nil {
				return fmt.Errorf("failed to create document record: %w", err)
			}
			if err := repos.ProcessingJobs().Create(ctx, job); err != nil {
				return fmt.Errorf("failed to create processing job: %w", err)
			}
			return nil
		}); err != nil {
			return nil, err
		}
		return doc, nil
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create processing job: %w", err)
	}

	return doc, nil
}

type DocumentStatusOutput struct {
	Document       *domain.Document
	TotalChunks    int
	EmbeddedChunks int
}

// GetStatus returns the document with its chunk counters.
func (s *DocumentService) GetStatus(ctx context.Context, workspaceID, documentID string) (*DocumentStatusOutput, error) {
	doc, err := s.getOwned(ctx, workspaceID, documentID)
	if err != nil {
		return nil, err
	}

	total, err := s.chunkRepo.CountByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	embedded, err := s.chunkRepo.CountEmbeddedByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	return &DocumentStatusOutput{
		Document:       doc,
		TotalChunks:    total,
		EmbeddedChunks: embedded,
	}, nil
}

func (s *DocumentService) GetByID(ctx context.Context, workspaceID, documentID string) (*domain.Document, error) {
	return s.getOwned(ctx, workspaceID, documentID)
}

func (s *DocumentService) ListByWorkspace(ctx context.Context, workspaceID string) ([]*domain.Document, error) {
	if workspaceID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "workspace ID is required")
	}
	return s.docRepo.ListByWorkspace(ctx, workspaceID)
}

type ListDocumentsInput struct {
	WorkspaceID string
	Cursor      string
	Limit       int
}

type ListDocumentsOutput struct {
	Items   []*domain.Document
	Cursor  string
	HasMore bool
}

// ListDocuments returns a page of the workspace's documents, newest first.
func (s *DocumentService) ListDocuments(ctx context.Context, input ListDocumentsInput) (*ListDocumentsOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.ListDocuments", telemetry.SpanAttributes{
		WorkspaceID: input.WorkspaceID,
		Operation:   "list",
	})
	defer span.End()

	if input.WorkspaceID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "workspace ID is required")
	}

	cursor, _ := pagination.DecodeCursor(input.Cursor)
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	result, err := s.docRepo.ListByWorkspaceWithCursor(ctx, input.WorkspaceID, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &ListDocumentsOutput{
		Items:   result.Items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

func (s *DocumentService) GetDownloadURL(ctx context.Context, workspaceID, documentID string) (string, error) {
	doc, err := s.getOwned(ctx, workspaceID, documentID)
	if err != nil {
		return "", err
	}

	url, err := s.storageClient.GenerateDownloadURL(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}
	return url, nil
}

// Delete removes the stored object, the document's chunks and the record.
func (s *DocumentService) Delete(ctx context.Context, workspaceID, documentID string) error {
	doc, err := s.getOwned(ctx, workspaceID, documentID)
	if err != nil {
		return err
	}

	if doc.StorageKey != "" {
		if err := s.storageClient.DeleteObject(ctx, doc.StorageKey); err != nil {
			return fmt.Errorf("failed to delete from storage: %w", err)
		}
	}
	if err := s.chunkRepo.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := s.docRepo.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}
	return nil
}

// RequestProcessing queues a processing job for a document that already has
// an uploaded file. The worker picks the job up on its next poll.
func (s *DocumentService) RequestProcessing(ctx context.Context, workspaceID, documentID string) (*domain.ProcessingJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.RequestProcessing", telemetry.SpanAttributes{
		WorkspaceID: workspaceID,
		DocumentID:  documentID,
		Operation:   "request_processing",
	})
	defer span.End()

	doc, err := s.getOwned(ctx, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.StorageKey == "" {
		return nil, domain.ErrDocumentNotUploaded
	}

	job := domain.NewProcessingJob(s.uuidGen.NewString(), doc.ID, time.Now().UTC())
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create processing job: %w", err)
	}
	return job, nil
}

func (s *DocumentService) getOwned(ctx context.Context, workspaceID, documentID string) (*domain.Document, error) {
	if documentID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document ID is required")
	}

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if workspaceID != "" && doc.WorkspaceID != workspaceID {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func buildStorageKey(workspaceID, documentID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", workspaceID, documentID, filename)
}
