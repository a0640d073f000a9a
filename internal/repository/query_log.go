package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/docquery-ai/docquery/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QueryLogRepository stores query logs for evaluation/feedback loops.
type QueryLogRepository struct {
	pool *pgxpool.Pool
}

func NewQueryLogRepository(pool *pgxpool.Pool) *QueryLogRepository {
	return &QueryLogRepository{pool: pool}
}

func (r *QueryLogRepository) CreateQueryLog(ctx context.Context, entry service.QueryLogEntry) (string, error) {
	sourcesJSON, _ := json.Marshal(entry.Sources)

	var id string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO query_logs (workspace_id, document_id, question, answer, top_k, min_score, sources, source_count, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		entry.WorkspaceID,
		entry.DocumentID,
		entry.Question,
		entry.Answer,
		entry.TopK,
		entry.MinScore,
		sourcesJSON,
		len(entry.Sources),
		entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *QueryLogRepository) RecordQueryFeedback(ctx context.Context, workspaceID, queryID string, helpful bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE query_logs
		 SET helpful = $1, feedback_at = $2
		 WHERE id = $3 AND workspace_id = $4`,
		helpful,
		time.Now().UTC(),
		queryID,
		workspaceID,
	)
	return err
}
