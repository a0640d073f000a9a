package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/docquery-ai/docquery/internal/domain"
)

// ChunkRepository handles persistence of document chunks and their embeddings.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

const chunkColumns = `id, document_id, chunk_number, text, start_index, end_index, token_count,
	page_number, embedding, embedding_model, embedded_at, created_at, updated_at`

func (r *ChunkRepository) BulkCreate(ctx context.Context, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		updatedAt := c.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}

		var embedding any
		if len(c.Embedding) > 0 {
			embedding = pgvector.NewVector(c.Embedding)
		}

		_, err := r.db.Exec(ctx,
			`INSERT INTO chunks (`+chunkColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			c.ID, c.DocumentID, c.ChunkNumber, c.Text, c.StartIndex, c.EndIndex, c.TokenCount,
			c.PageNumber, embedding, nullableString(c.EmbeddingModel), c.EmbeddedAt,
			createdAt, updatedAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = $1`,
		id,
	)
	chunk, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	return chunk, nil
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM chunks
		 WHERE document_id = $1 ORDER BY chunk_number ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func (r *ChunkRepository) ListEmbeddedByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM chunks
		 WHERE document_id = $1 AND embedding IS NOT NULL
		 ORDER BY chunk_number ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func (r *ChunkRepository) ListUnembeddedByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM chunks
		 WHERE document_id = $1 AND embedding IS NULL
		 ORDER BY chunk_number ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func (r *ChunkRepository) UpdateEmbedding(ctx context.Context, chunkID string, embedding []float32, model string, embeddedAt time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE chunks
		 SET embedding = $1, embedding_model = $2, embedded_at = $3, updated_at = $4
		 WHERE id = $5`,
		pgvector.NewVector(embedding), model, embeddedAt, time.Now().UTC(), chunkID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrChunkNotFound
	}
	return nil
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM chunks WHERE document_id = $1`,
		documentID,
	)
	return err
}

func (r *ChunkRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE document_id = $1`,
		documentID,
	).Scan(&count)
	return count, err
}

func (r *ChunkRepository) CountEmbeddedByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE document_id = $1 AND embedding IS NOT NULL`,
		documentID,
	).Scan(&count)
	return count, err
}

func scanChunk(row pgx.Row) (*domain.Chunk, error) {
	var c domain.Chunk
	var embedding *pgvector.Vector
	var model pgtype.Text
	err := row.Scan(
		&c.ID, &c.DocumentID, &c.ChunkNumber, &c.Text, &c.StartIndex, &c.EndIndex, &c.TokenCount,
		&c.PageNumber, &embedding, &model, &c.EmbeddedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if embedding != nil {
		c.Embedding = embedding.Slice()
	}
	if model.Valid {
		c.EmbeddingModel = model.String
	}
	return &c, nil
}

func scanChunkRows(rows pgx.Rows) ([]*domain.Chunk, error) {
	var chunks []*domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}
