package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/docquery-ai/docquery/internal/domain"
)

const (
	// MaxRetries is the maximum number of retries for a failed job
	MaxRetries = 3
)

// ProcessingJobRepository defines the interface for processing job persistence
type ProcessingJobRepository interface {
	// GetPendingJobs retrieves and claims pending processing jobs
	GetPendingJobs(ctx context.Context) ([]*domain.ProcessingJob, error)

	// UpdateJobStatus updates the status of a processing job
	UpdateJobStatus(ctx context.Context, jobID string, status domain.ProcessingJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, jobID string) error
}

// DocumentProcessor defines the interface for running the extract-chunk-embed pipeline
type DocumentProcessor interface {
	Process(ctx context.Context, documentID string) error

	// MarkFailed records a terminal failure on the document once retries
	// are exhausted
	MarkFailed(ctx context.Context, documentID string, cause error) error
}

// ProcessingWorker processes document processing jobs
type ProcessingWorker struct {
	repo      ProcessingJobRepository
	processor DocumentProcessor
}

// NewProcessingWorker creates a new ProcessingWorker instance
func NewProcessingWorker(repo ProcessingJobRepository, processor DocumentProcessor) *ProcessingWorker {
	return &ProcessingWorker{
		repo:      repo,
		processor: processor,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *ProcessingWorker) ProcessJobs(ctx context.Context) error {
	// Fetch and claim pending jobs
	jobs, err := w.repo.GetPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("Processing %d pending document jobs", len(jobs))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			log.Printf("Error processing job %s: %v", job.ID, err)
		}
	}

	return nil
}

func (w *ProcessingWorker) processJob(ctx context.Context, job *domain.ProcessingJob) error {
	log.Printf("Processing job %s for document %s", job.ID, job.DocumentID)

	if err := w.processor.Process(ctx, job.DocumentID); err != nil {
		return w.handleJobFailure(ctx, job, err)
	}

	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.ProcessingJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	log.Printf("Job %s completed successfully", job.ID)
	return nil
}

// handleJobFailure handles a failed job with retry logic
func (w *ProcessingWorker) handleJobFailure(ctx context.Context, job *domain.ProcessingJob, jobErr error) error {
	log.Printf("Job %s failed: %v", job.ID, jobErr)

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		log.Printf("Job %s exceeded max retries (%d), marking as failed", job.ID, MaxRetries)
		// The document stays retryable between attempts; only now does it
		// go terminal.
		if err := w.processor.MarkFailed(ctx, job.DocumentID, jobErr); err != nil {
			log.Printf("Failed to mark document %s as failed: %v", job.DocumentID, err)
		}
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.ProcessingJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	// Reset to pending so the next poll picks it up again
	log.Printf("Job %s will be retried (attempt %d/%d)", job.ID, job.Retries+1, MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.ProcessingJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}
