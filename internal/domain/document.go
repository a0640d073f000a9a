package domain

import (
	"fmt"
	"time"
)

// DocumentStatus represents the coarse processing status of a document.
// Transitions are forward-only: uploading -> processing -> processed -> completed | failed.
type DocumentStatus string

const (
	DocumentStatusUploading  DocumentStatus = "uploading"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusProcessed  DocumentStatus = "processed"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// EmbeddingStatus reflects whether every chunk of a document embedded successfully.
// "partial" means success with gaps, not a hard failure.
type EmbeddingStatus string

const (
	EmbeddingStatusPending    EmbeddingStatus = "pending"
	EmbeddingStatusProcessing EmbeddingStatus = "processing"
	EmbeddingStatusCompleted  EmbeddingStatus = "completed"
	EmbeddingStatusPartial    EmbeddingStatus = "partial"
	EmbeddingStatusFailed     EmbeddingStatus = "failed"
)

// Document represents an uploaded PDF and its processing state.
type Document struct {
	ID              string
	WorkspaceID     string
	Title           string
	OriginalName    string
	StorageKey      string
	MimeType        string
	Size            int64
	Status          DocumentStatus
	EmbeddingStatus EmbeddingStatus
	ErrorMessage    string
	PageCount       int
	ProcessedAt     *time.Time
	EmbeddedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewDocument creates a new Document in the uploading state.
func NewDocument(id, workspaceID, title, originalName, storageKey, mimeType string, size int64, now time.Time) *Document {
	return &Document{
		ID:              id,
		WorkspaceID:     workspaceID,
		Title:           title,
		OriginalName:    originalName,
		StorageKey:      storageKey,
		MimeType:        mimeType,
		Size:            size,
		Status:          DocumentStatusUploading,
		EmbeddingStatus: EmbeddingStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// statusRank orders document statuses for forward-only transition checks.
// completed and failed are both terminal.
func statusRank(s DocumentStatus) int {
	switch s {
	case DocumentStatusUploading:
		return 0
	case DocumentStatusProcessing:
		return 1
	case DocumentStatusProcessed:
		return 2
	case DocumentStatusCompleted, DocumentStatusFailed:
		return 3
	}
	return -1
}

// CanTransitionTo reports whether moving to the given status is a forward transition.
func (d *Document) CanTransitionTo(next DocumentStatus) bool {
	from := statusRank(d.Status)
	to := statusRank(next)
	if from < 0 || to < 0 {
		return false
	}
	return to > from
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.WorkspaceID == "" {
		return fmt.Errorf("document WorkspaceID is required")
	}

	if d.Title == "" {
		return fmt.Errorf("document Title is required")
	}

	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	if !isValidEmbeddingStatus(d.EmbeddingStatus) {
		return fmt.Errorf("document EmbeddingStatus is invalid: %s", d.EmbeddingStatus)
	}

	return nil
}

func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusUploading, DocumentStatusProcessing, DocumentStatusProcessed,
		DocumentStatusCompleted, DocumentStatusFailed:
		return true
	}
	return false
}

func isValidEmbeddingStatus(s EmbeddingStatus) bool {
	switch s {
	case EmbeddingStatusPending, EmbeddingStatusProcessing, EmbeddingStatusCompleted,
		EmbeddingStatusPartial, EmbeddingStatusFailed:
		return true
	}
	return false
}
