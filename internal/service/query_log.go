package service

import "context"

// QueryLogSource captures a single retrieved chunk for logging.
type QueryLogSource struct {
	ChunkID     string  `json:"chunk_id"`
	ChunkNumber int     `json:"chunk_number"`
	Similarity  float64 `json:"similarity"`
}

// QueryLogEntry captures an answered query and its sources.
type QueryLogEntry struct {
	WorkspaceID string
	DocumentID  string
	Question    string
	Answer      string
	TopK        int
	MinScore    float64
	DurationMs  int
	Sources     []QueryLogSource
}

// QueryLogRepository persists query logs and feedback.
type QueryLogRepository interface {
	CreateQueryLog(ctx context.Context, entry QueryLogEntry) (string, error)
	RecordQueryFeedback(ctx context.Context, workspaceID, queryID string, helpful bool) error
}
