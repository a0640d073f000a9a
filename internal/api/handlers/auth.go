package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docquery-ai/docquery/internal/api"
	"github.com/docquery-ai/docquery/internal/api/middleware"
	"github.com/docquery-ai/docquery/internal/domain"
)

type AuthService interface {
	CreateWorkspace(ctx context.Context, name string) (*domain.Workspace, error)
	ListWorkspaces(ctx context.Context) ([]*domain.Workspace, error)
	CreateAPIKey(ctx context.Context, workspaceID, name string) (string, error)
	ListAPIKeys(ctx context.Context, workspaceID string) ([]*domain.APIKey, error)
	RevokeAPIKey(ctx context.Context, keyID string) error
}

type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

type WorkspaceResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type CreateAPIKeyRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
}

type APIKeyResponse struct {
	ID        string `json:"id,omitempty"`
	Token     string `json:"token,omitempty"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
	RevokedAt string `json:"revoked_at,omitempty"`
}

func workspaceToResponse(ws *domain.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:        ws.ID,
		Name:      ws.Name,
		CreatedAt: ws.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *AuthHandler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	ws, err := h.svc.CreateWorkspace(r.Context(), req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, workspaceToResponse(ws))
}

func (h *AuthHandler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := h.svc.ListWorkspaces(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]WorkspaceResponse, len(workspaces))
	for i, ws := range workspaces {
		responses[i] = workspaceToResponse(ws)
	}

	api.Success(w, http.StatusOK, responses)
}

func (h *AuthHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.WorkspaceID == "" {
		api.Error(w, http.StatusBadRequest, "workspace_id is required")
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	token, err := h.svc.CreateAPIKey(r.Context(), req.WorkspaceID, req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	// The token is only returned once; the server stores a hash.
	api.Success(w, http.StatusCreated, APIKeyResponse{
		Token: token,
		Name:  req.Name,
	})
}

func (h *AuthHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	keys, err := h.svc.ListAPIKeys(r.Context(), workspaceID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]APIKeyResponse, len(keys))
	for i, key := range keys {
		resp := APIKeyResponse{
			ID:        key.ID,
			Name:      key.Name,
			CreatedAt: key.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
		if key.RevokedAt != nil {
			resp.RevokedAt = key.RevokedAt.Format("2006-01-02T15:04:05Z")
		}
		responses[i] = resp
	}

	api.Success(w, http.StatusOK, responses)
}

func (h *AuthHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.RevokeAPIKey(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}
