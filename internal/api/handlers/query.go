package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/docquery-ai/docquery/internal/api"
	"github.com/docquery-ai/docquery/internal/api/middleware"
	"github.com/docquery-ai/docquery/internal/service"
)

type QueryService interface {
	Query(ctx context.Context, input service.QueryInput) (*service.QueryOutput, error)
}

type QueryHandler struct {
	svc     QueryService
	logRepo service.QueryLogRepository
}

func NewQueryHandler(svc QueryService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

// NewQueryHandlerWithLog creates a QueryHandler that records answered queries.
func NewQueryHandlerWithLog(svc QueryService, logRepo service.QueryLogRepository) *QueryHandler {
	return &QueryHandler{svc: svc, logRepo: logRepo}
}

type QueryRequest struct {
	DocumentID string  `json:"document_id"`
	Question   string  `json:"question"`
	TopK       int     `json:"top_k,omitempty"`
	MinScore   float64 `json:"min_score,omitempty"`
}

type QuerySourceResponse struct {
	ChunkID       string  `json:"chunk_id"`
	ChunkNumber   int     `json:"chunk_number"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	Text          string  `json:"text"`
	PageNumber    *int    `json:"page_number,omitempty"`
	Similarity    float64 `json:"similarity"`
}

type QueryUsageResponse struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type QueryResponse struct {
	Answer                string                `json:"answer"`
	Sources               []QuerySourceResponse `json:"sources"`
	TotalChunksConsidered int                   `json:"total_chunks_considered"`
	Usage                 *QueryUsageResponse   `json:"usage,omitempty"`
	QueryID               string                `json:"query_id,omitempty"`
}

type QueryFeedbackRequest struct {
	QueryID string `json:"query_id"`
	Helpful bool   `json:"helpful"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.DocumentID == "" {
		api.Error(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if req.Question == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}

	start := time.Now()
	output, err := h.svc.Query(r.Context(), service.QueryInput{
		WorkspaceID: workspaceID,
		DocumentID:  req.DocumentID,
		Question:    req.Question,
		TopK:        req.TopK,
		MinScore:    req.MinScore,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	sources := make([]QuerySourceResponse, len(output.Sources))
	for i, src := range output.Sources {
		sources[i] = QuerySourceResponse{
			ChunkID:       src.ChunkID,
			ChunkNumber:   src.ChunkNumber,
			DocumentID:    src.DocumentID,
			DocumentTitle: src.DocumentTitle,
			Text:          src.Text,
			PageNumber:    src.PageNumber,
			Similarity:    src.Similarity,
		}
	}

	resp := QueryResponse{
		Answer:                output.Answer,
		Sources:               sources,
		TotalChunksConsidered: output.TotalChunksConsidered,
	}
	if output.Usage != nil {
		resp.Usage = &QueryUsageResponse{
			PromptTokens:     output.Usage.PromptTokens,
			CompletionTokens: output.Usage.CompletionTokens,
			TotalTokens:      output.Usage.TotalTokens,
		}
	}

	if h.logRepo != nil {
		logSources := make([]service.QueryLogSource, len(output.Sources))
		for i, src := range output.Sources {
			logSources[i] = service.QueryLogSource{
				ChunkID:     src.ChunkID,
				ChunkNumber: src.ChunkNumber,
				Similarity:  src.Similarity,
			}
		}
		entry := service.QueryLogEntry{
			WorkspaceID: workspaceID,
			DocumentID:  req.DocumentID,
			Question:    req.Question,
			Answer:      output.Answer,
			TopK:        req.TopK,
			MinScore:    req.MinScore,
			DurationMs:  int(time.Since(start).Milliseconds()),
			Sources:     logSources,
		}
		if queryID, err := h.logRepo.CreateQueryLog(r.Context(), entry); err == nil {
			resp.QueryID = queryID
		}
	}

	api.Success(w, http.StatusOK, resp)
}

// Feedback records whether a prior answer was helpful.
func (h *QueryHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.logRepo == nil {
		api.Error(w, http.StatusNotImplemented, "query feedback not available")
		return
	}

	var req QueryFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QueryID == "" {
		api.Error(w, http.StatusBadRequest, "query_id is required")
		return
	}

	if err := h.logRepo.RecordQueryFeedback(r.Context(), workspaceID, req.QueryID, req.Helpful); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]any{"status": "ok"})
}
