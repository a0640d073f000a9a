package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docquery-ai/docquery/internal/api"
	"github.com/docquery-ai/docquery/internal/api/handlers"
	"github.com/docquery-ai/docquery/internal/api/middleware"
)

type RouterConfig struct {
	AuthValidator   middleware.AuthValidator
	DocumentHandler *handlers.DocumentHandler
	QueryHandler    *handlers.QueryHandler
	AuthHandler     *handlers.AuthHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/init", cfg.DocumentHandler.InitUpload)
			r.Post("/complete", cfg.DocumentHandler.CompleteUpload)
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Get("/{id}/status", cfg.DocumentHandler.Status)
			r.Get("/{id}/download", cfg.DocumentHandler.Download)
			r.Post("/{id}/process", cfg.DocumentHandler.Process)
			r.Post("/{id}/embed", cfg.DocumentHandler.Reembed)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
		})

		r.Post("/query", cfg.QueryHandler.Query)
		r.Post("/query/feedback", cfg.QueryHandler.Feedback)

		r.Get("/apikeys", cfg.AuthHandler.ListAPIKeys)
		r.Delete("/apikeys/{id}", cfg.AuthHandler.RevokeAPIKey)
	})

	r.Post("/workspaces", cfg.AuthHandler.CreateWorkspace)
	r.Get("/workspaces", cfg.AuthHandler.ListWorkspaces)
	r.Post("/apikeys", cfg.AuthHandler.CreateAPIKey)

	return r
}
