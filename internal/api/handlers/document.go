package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/docquery-ai/docquery/internal/api"
	"github.com/docquery-ai/docquery/internal/api/middleware"
	"github.com/docquery-ai/docquery/internal/domain"
	"github.com/docquery-ai/docquery/internal/service"
)

type DocumentService interface {
	InitUpload(ctx context.Context, input service.InitUploadInput) (*service.InitUploadResult, error)
	CompleteUpload(ctx context.Context, input service.CompleteUploadInput) (*domain.Document, error)
	GetByID(ctx context.Context, workspaceID, documentID string) (*domain.Document, error)
	ListDocuments(ctx context.Context, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error)
	GetStatus(ctx context.Context, workspaceID, documentID string) (*service.DocumentStatusOutput, error)
	GetDownloadURL(ctx context.Context, workspaceID, documentID string) (string, error)
	RequestProcessing(ctx context.Context, workspaceID, documentID string) (*domain.ProcessingJob, error)
	Delete(ctx context.Context, workspaceID, documentID string) error
}

type ReembedService interface {
	Reembed(ctx context.Context, documentID string) (service.EmbedReport, error)
}

type DocumentHandler struct {
	svc     DocumentService
	reembed ReembedService
}

func NewDocumentHandler(svc DocumentService, reembed ReembedService) *DocumentHandler {
	return &DocumentHandler{svc: svc, reembed: reembed}
}

type InitUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type InitUploadResponse struct {
	DocumentID string `json:"document_id"`
	StorageKey string `json:"storage_key"`
	UploadURL  string `json:"upload_url"`
}

type CompleteUploadRequest struct {
	DocumentID  string `json:"document_id"`
	Title       string `json:"title"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	StorageKey  string `json:"storage_key"`
}

type DocumentResponse struct {
	ID              string `json:"id"`
	WorkspaceID     string `json:"workspace_id"`
	Title           string `json:"title"`
	OriginalName    string `json:"original_name"`
	MimeType        string `json:"mime_type"`
	Size            int64  `json:"size"`
	Status          string `json:"status"`
	EmbeddingStatus string `json:"embedding_status"`
	ErrorMessage    string `json:"error_message,omitempty"`
	PageCount       int    `json:"page_count,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:              d.ID,
		WorkspaceID:     d.WorkspaceID,
		Title:           d.Title,
		OriginalName:    d.OriginalName,
		MimeType:        d.MimeType,
		Size:            d.Size,
		Status:          string(d.Status),
		EmbeddingStatus: string(d.EmbeddingStatus),
		ErrorMessage:    d.ErrorMessage,
		PageCount:       d.PageCount,
		CreatedAt:       d.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:       d.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *DocumentHandler) InitUpload(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req InitUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Filename == "" {
		api.Error(w, http.StatusBadRequest, "filename is required")
		return
	}

	result, err := h.svc.InitUpload(r.Context(), service.InitUploadInput{
		WorkspaceID: workspaceID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, InitUploadResponse{
		DocumentID: result.DocumentID,
		StorageKey: result.StorageKey,
		UploadURL:  result.UploadURL,
	})
}

func (h *DocumentHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CompleteUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.DocumentID == "" {
		api.Error(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if req.Filename == "" {
		api.Error(w, http.StatusBadRequest, "filename is required")
		return
	}
	if req.StorageKey == "" {
		api.Error(w, http.StatusBadRequest, "storage_key is required")
		return
	}

	doc, err := h.svc.CompleteUpload(r.Context(), service.CompleteUploadInput{
		DocumentID:  req.DocumentID,
		WorkspaceID: workspaceID,
		Title:       req.Title,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		StorageKey:  req.StorageKey,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, documentToResponse(doc))
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.GetByID(r.Context(), workspaceID, id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

type DocumentListResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limitStr := r.URL.Query().Get("limit")
	limit := 20
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	output, err := h.svc.ListDocuments(r.Context(), service.ListDocumentsInput{
		WorkspaceID: workspaceID,
		Cursor:      cursor,
		Limit:       limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*DocumentResponse, len(output.Items))
	for i, d := range output.Items {
		responses[i] = documentToResponse(d)
	}

	api.Success(w, http.StatusOK, DocumentListResponse{
		Items:   responses,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}

type DocumentStatusResponse struct {
	Document       *DocumentResponse `json:"document"`
	TotalChunks    int               `json:"total_chunks"`
	EmbeddedChunks int               `json:"embedded_chunks"`
}

func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	status, err := h.svc.GetStatus(r.Context(), workspaceID, id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DocumentStatusResponse{
		Document:       documentToResponse(status.Document),
		TotalChunks:    status.TotalChunks,
		EmbeddedChunks: status.EmbeddedChunks,
	})
}

type DownloadURLResponse struct {
	URL string `json:"url"`
}

func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	url, err := h.svc.GetDownloadURL(r.Context(), workspaceID, id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DownloadURLResponse{URL: url})
}

type ProcessingJobResponse struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

func (h *DocumentHandler) Process(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	job, err := h.svc.RequestProcessing(r.Context(), workspaceID, id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, ProcessingJobResponse{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		Status:     string(job.Status),
	})
}

type ReembedResponse struct {
	ProcessedChunks int `json:"processed_chunks"`
	FailedChunks    int `json:"failed_chunks"`
}

func (h *DocumentHandler) Reembed(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	// Ownership check before the reembed pass runs.
	if _, err := h.svc.GetByID(r.Context(), workspaceID, id); err != nil {
		api.HandleError(w, err)
		return
	}

	report, err := h.reembed.Reembed(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ReembedResponse{
		ProcessedChunks: report.ProcessedCount,
		FailedChunks:    report.FailedCount,
	})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), workspaceID, id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}
