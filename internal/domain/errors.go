package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrInvalidDocumentStatus      = NewDomainError(ErrCodeValidation, "invalid document status")
	ErrInvalidEmbeddingStatus     = NewDomainError(ErrCodeValidation, "invalid embedding status")
	ErrInvalidProcessingJobStatus = NewDomainError(ErrCodeValidation, "invalid processing job status")
	ErrMissingRequiredField       = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrDocumentNotFound      = NewDomainError(ErrCodeNotFound, "document not found")
	ErrChunkNotFound         = NewDomainError(ErrCodeNotFound, "chunk not found")
	ErrWorkspaceNotFound     = NewDomainError(ErrCodeNotFound, "workspace not found")
	ErrAPIKeyNotFound        = NewDomainError(ErrCodeNotFound, "api key not found")
	ErrProcessingJobNotFound = NewDomainError(ErrCodeNotFound, "processing job not found")
)

// Authorization errors
var (
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// Processing errors. Extraction and chunking failures are the only
// processing-stage failures fatal to a whole document.
var (
	ErrNoTextExtracted      = NewDomainError(ErrCodeInvalidOperation, "no text extracted from document")
	ErrNoChunksCreated      = NewDomainError(ErrCodeInvalidOperation, "chunking produced no chunks")
	ErrDocumentNotReady     = NewDomainError(ErrCodeInvalidOperation, "document has no embedded chunks")
	ErrDocumentNotUploaded  = NewDomainError(ErrCodeInvalidOperation, "document upload is not complete")
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
