package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/docquery-ai/docquery/internal/api/middleware"
	"github.com/docquery-ai/docquery/internal/domain"
	"github.com/docquery-ai/docquery/internal/service"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) InitUpload(ctx context.Context, input service.InitUploadInput) (*service.InitUploadResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.InitUploadResult), args.Error(1)
}

func (m *MockDocumentService) CompleteUpload(ctx context.Context, input service.CompleteUploadInput) (*domain.Document, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) GetByID(ctx context.Context, workspaceID, documentID string) (*domain.Document, error) {
	args := m.Called(ctx, workspaceID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) ListDocuments(ctx context.Context, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListDocumentsOutput), args.Error(1)
}

func (m *MockDocumentService) GetStatus(ctx context.Context, workspaceID, documentID string) (*service.DocumentStatusOutput, error) {
	args := m.Called(ctx, workspaceID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentStatusOutput), args.Error(1)
}

func (m *MockDocumentService) GetDownloadURL(ctx context.Context, workspaceID, documentID string) (string, error) {
	args := m.Called(ctx, workspaceID, documentID)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentService) RequestProcessing(ctx context.Context, workspaceID, documentID string) (*domain.ProcessingJob, error) {
	args := m.Called(ctx, workspaceID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingJob), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, workspaceID, documentID string) error {
	args := m.Called(ctx, workspaceID, documentID)
	return args.Error(0)
}

type MockReembedService struct {
	mock.Mock
}

func (m *MockReembedService) Reembed(ctx context.Context, documentID string) (service.EmbedReport, error) {
	args := m.Called(ctx, documentID)
	return args.Get(0).(service.EmbedReport), args.Error(1)
}

func newTestDocument() *domain.Document {
	now := time.Now().UTC()
	return &domain.Document{
		ID:              "doc-123",
		WorkspaceID:     "ws-456",
		Title:           "Quarterly Report",
		OriginalName:    "report.pdf",
		StorageKey:      "ws-456/doc-123/report.pdf",
		MimeType:        "application/pdf",
		Size:            2048,
		Status:          domain.DocumentStatusCompleted,
		EmbeddingStatus: domain.EmbeddingStatusCompleted,
		PageCount:       3,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func requestWithWorkspaceID(method, url string, body []byte) *http.Request {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	ctx := context.WithValue(req.Context(), middleware.WorkspaceIDKey, "ws-456")
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestDocumentHandler_InitUpload_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc, new(MockReembedService))

	mockSvc.On("InitUpload", mock.Anything, mock.MatchedBy(func(input service.InitUploadInput) bool {
		return input.WorkspaceID == "ws-456" && input.Filename == "report.pdf"
	})).Return(&service.InitUploadResult{
		DocumentID: "doc-123",
		StorageKey: "ws-456/doc-123/report.pdf",
		UploadURL:  "https://storage.example.com/presigned",
	}, nil)

	body := `{"filename":"report.pdf","content_type":"application/pdf"}`
	req := requestWithWorkspaceID(http.MethodPost, "/v1/documents/upload", []byte(body))
	w := httptest.NewRecorder()

	handler.InitUpload(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data InitUploadResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "doc-123", resp.Data.DocumentID)
	assert.Equal(t, "https://storage.example.com/presigned", resp.Data.UploadURL)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_InitUpload_MissingFilename(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentService), new(MockReembedService))

	req := requestWithWorkspaceID(http.MethodPost, "/v1/documents/upload", []byte(`{}`))
	w := httptest.NewRecorder()

	handler.InitUpload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "filename is required")
}

func TestDocumentHandler_InitUpload_Unauthorized(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentService), new(MockReembedService))

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/upload", bytes.NewReader([]byte(`{"filename":"a.pdf"}`)))
	w := httptest.NewRecorder()

	handler.InitUpload(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDocumentHandler_CompleteUpload_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc, new(MockReembedService))

	doc := newTestDocument()
	doc.Status = domain.DocumentStatusUploading
	mockSvc.On("CompleteUpload", mock.Anything, mock.MatchedBy(func(input service.CompleteUploadInput) bool {
		return input.DocumentID == "doc-123" && input.WorkspaceID == "ws-456" && input.StorageKey == "ws-456/doc-123/report.pdf"
	})).Return(doc, nil)

	body := `{"document_id":"doc-123","filename":"report.pdf","storage_key":"ws-456/doc-123/report.pdf","content_type":"application/pdf"}`
	req := requestWithWorkspaceID(http.MethodPost, "/v1/documents/complete", []byte(body))
	w := httptest.NewRecorder()

	handler.CompleteUpload(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_CompleteUpload_MissingStorageKey(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentService), new(MockReembedService))

	body := `{"document_id":"doc-123","filename":"report.pdf"}`
	req := requestWithWorkspaceID(http.MethodPost, "/v1/documents/complete", []byte(body))
	w := httptest.NewRecorder()

	handler.CompleteUpload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "storage_key is required")
}

func TestDocumentHandler_Get_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc, new(MockReembedService))

	mockSvc.On("GetByID", mock.Anything, "ws-456", "doc-123").Return(newTestDocument(), nil)

	req := requestWithWorkspaceID(http.MethodGet, "/v1/documents/doc-123", nil)
	req = withURLParam(req, "id", "doc-123")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data DocumentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "doc-123", resp.Data.ID)
	assert.Equal(t, "completed", resp.Data.Status)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Get_NotFound(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc, new(MockReembedService))

	mockSvc.On("GetByID", mock.Anything, "ws-456", "doc-999").Return(nil, domain.ErrDocumentNotFound)

	req := requestWithWorkspaceID(http.MethodGet, "/v1/documents/doc-999", nil)
	req = withURLParam(req, "id", "doc-999")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_List_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc, new(MockReembedService))

	mockSvc.On("ListDocuments", mock.Anything, service.ListDocumentsInput{
		WorkspaceID: "ws-456",
		Cursor:      "abc",
		Limit:       5,
	}).Return(&service.ListDocumentsOutput{
		Items:   []*domain.Document{newTestDocument()},
		Cursor:  "next",
		HasMore: true,
	}, nil)

	req := requestWithWorkspaceID(http.MethodGet, "/v1/documents?cursor=abc&limit=5", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data DocumentListResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, "next", resp.Data.Cursor)
	assert.True(t, resp.Data.HasMore)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Status_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc, new(MockReembedService))

	mockSvc.On("GetStatus", mock.Anything, "ws-456", "doc-123").Return(&service.DocumentStatusOutput{
		Document:       newTestDocument(),
		TotalChunks:    42,
		EmbeddedChunks: 40,
	}, nil)

	req := requestWithWorkspaceID(http.MethodGet, "/v1/documents/doc-123/status", nil)
	req = withURLParam(req, "id", "doc-123")
	w := httptest.NewRecorder()

	handler.Status(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data DocumentStatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 42, resp.Data.TotalChunks)
	assert.Equal(t, 40, resp.Data.EmbeddedChunks)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Download_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc, new(MockReembedService))

	mockSvc.On("GetDownloadURL", mock.Anything, "ws-456", "doc-123").
		Return("https://storage.example.com/download", nil)

	req := requestWithWorkspaceID(http.MethodGet, "/v1/documents/doc-123/download", nil)
	req = withURLParam(req, "id", "doc-123")
	w := httptest.NewRecorder()

	handler.Download(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://storage.example.com/download")
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Process_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc, new(MockReembedService))

	job := &domain.ProcessingJob{ID: "job-1", DocumentID: "doc-123", Status: domain.ProcessingJobStatusPending}
	mockSvc.On("RequestProcessing", mock.Anything, "ws-456", "doc-123").Return(job, nil)

	req := requestWithWorkspaceID(http.MethodPost, "/v1/documents/doc-123/process", nil)
	req = withURLParam(req, "id", "doc-123")
	w := httptest.NewRecorder()

	handler.Process(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Data ProcessingJobResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.Data.JobID)
	assert.Equal(t, "pending", resp.Data.Status)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Reembed_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	mockReembed := new(MockReembedService)
	handler := NewDocumentHandler(mockSvc, mockReembed)

	mockSvc.On("GetByID", mock.Anything, "ws-456", "doc-123").Return(newTestDocument(), nil)
	mockReembed.On("Reembed", mock.Anything, "doc-123").
		Return(service.EmbedReport{ProcessedCount: 7, FailedCount: 1}, nil)

	req := requestWithWorkspaceID(http.MethodPost, "/v1/documents/doc-123/embed", nil)
	req = withURLParam(req, "id", "doc-123")
	w := httptest.NewRecorder()

	handler.Reembed(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data ReembedResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Data.ProcessedChunks)
	assert.Equal(t, 1, resp.Data.FailedChunks)
	mockReembed.AssertExpectations(t)
}

func TestDocumentHandler_Reembed_WrongWorkspace(t *testing.T) {
	mockSvc := new(MockDocumentService)
	mockReembed := new(MockReembedService)
	handler := NewDocumentHandler(mockSvc, mockReembed)

	mockSvc.On("GetByID", mock.Anything, "ws-456", "doc-123").Return(nil, domain.ErrDocumentNotFound)

	req := requestWithWorkspaceID(http.MethodPost, "/v1/documents/doc-123/embed", nil)
	req = withURLParam(req, "id", "doc-123")
	w := httptest.NewRecorder()

	handler.Reembed(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockReembed.AssertNotCalled(t, "Reembed", mock.Anything, mock.Anything)
}

func TestDocumentHandler_Delete_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc, new(MockReembedService))

	mockSvc.On("Delete", mock.Anything, "ws-456", "doc-123").Return(nil)

	req := requestWithWorkspaceID(http.MethodDelete, "/v1/documents/doc-123", nil)
	req = withURLParam(req, "id", "doc-123")
	w := httptest.NewRecorder()

	handler.Delete(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockSvc.AssertExpectations(t)
}
