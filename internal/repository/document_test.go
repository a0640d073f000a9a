//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docquery-ai/docquery/internal/domain"
	"github.com/docquery-ai/docquery/internal/pagination"
	"github.com/docquery-ai/docquery/internal/testutil"
)

func createTestWorkspace(ctx context.Context, t *testing.T, repo *WorkspaceRepository) *domain.Workspace {
	t.Helper()
	ws := domain.NewWorkspace(uuid.NewString(), "ws-"+uuid.NewString(), time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, ws))
	return ws
}

func testDocument(workspaceID string) *domain.Document {
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.NewString()
	return domain.NewDocument(id, workspaceID, "Quarterly Report", "report.pdf",
		workspaceID+"/"+id+"/report.pdf", "application/pdf", 2048, now)
}

func TestDocumentRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	ws := createTestWorkspace(ctx, t, NewWorkspaceRepository(pool))
	repo := NewDocumentRepository(pool)

	doc := testDocument(ws.ID)
	require.NoError(t, repo.Create(ctx, doc))

	retrieved, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, retrieved.ID)
	assert.Equal(t, doc.WorkspaceID, retrieved.WorkspaceID)
	assert.Equal(t, "Quarterly Report", retrieved.Title)
	assert.Equal(t, domain.DocumentStatusUploading, retrieved.Status)
	assert.Equal(t, domain.EmbeddingStatusPending, retrieved.EmbeddingStatus)
	assert.Empty(t, retrieved.ErrorMessage)
	assert.Nil(t, retrieved.ProcessedAt)
}

func TestDocumentRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewDocumentRepository(pool)

	_, err := repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentRepository_Update(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	ws := createTestWorkspace(ctx, t, NewWorkspaceRepository(pool))
	repo := NewDocumentRepository(pool)

	doc := testDocument(ws.ID)
	require.NoError(t, repo.Create(ctx, doc))

	processedAt := time.Now().UTC().Truncate(time.Microsecond)
	doc.Status = domain.DocumentStatusProcessed
	doc.EmbeddingStatus = domain.EmbeddingStatusProcessing
	doc.PageCount = 7
	doc.ProcessedAt = &processedAt
	require.NoError(t, repo.Update(ctx, doc))

	retrieved, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusProcessed, retrieved.Status)
	assert.Equal(t, domain.EmbeddingStatusProcessing, retrieved.EmbeddingStatus)
	assert.Equal(t, 7, retrieved.PageCount)
	require.NotNil(t, retrieved.ProcessedAt)
	assert.WithinDuration(t, processedAt, *retrieved.ProcessedAt, time.Millisecond)
}

func TestDocumentRepository_Update_ErrorMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	ws := createTestWorkspace(ctx, t, NewWorkspaceRepository(pool))
	repo := NewDocumentRepository(pool)

	doc := testDocument(ws.ID)
	require.NoError(t, repo.Create(ctx, doc))

	doc.Status = domain.DocumentStatusFailed
	doc.EmbeddingStatus = domain.EmbeddingStatusFailed
	doc.ErrorMessage = "failed to extract text: broken xref"
	require.NoError(t, repo.Update(ctx, doc))

	retrieved, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed to extract text: broken xref", retrieved.ErrorMessage)
}

func TestDocumentRepository_ListByWorkspace(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	wsRepo := NewWorkspaceRepository(pool)
	ws := createTestWorkspace(ctx, t, wsRepo)
	other := createTestWorkspace(ctx, t, wsRepo)
	repo := NewDocumentRepository(pool)

	for i := 0; i < 3; i++ {
		doc := testDocument(ws.ID)
		doc.Title = fmt.Sprintf("Doc %d", i)
		doc.CreatedAt = doc.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, doc))
	}
	require.NoError(t, repo.Create(ctx, testDocument(other.ID)))

	docs, err := repo.ListByWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	// Newest first.
	assert.Equal(t, "Doc 2", docs[0].Title)
	assert.Equal(t, "Doc 0", docs[2].Title)
}

func TestDocumentRepository_ListByWorkspaceWithCursor(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	ws := createTestWorkspace(ctx, t, NewWorkspaceRepository(pool))
	repo := NewDocumentRepository(pool)

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		doc := testDocument(ws.ID)
		doc.Title = fmt.Sprintf("Doc %d", i)
		doc.CreatedAt = base.Add(time.Duration(i) * time.Second)
		doc.UpdatedAt = doc.CreatedAt
		require.NoError(t, repo.Create(ctx, doc))
	}

	page, err := repo.ListByWorkspaceWithCursor(ctx, ws.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.NextCursor)
	assert.Equal(t, "Doc 4", page.Items[0].Title)

	cursor, err := pagination.DecodeCursor(page.NextCursor)
	require.NoError(t, err)

	page2, err := repo.ListByWorkspaceWithCursor(ctx, ws.ID, cursor, 2)
	require.NoError(t, err)
	require.Len(t, page2.Items, 2)
	assert.Equal(t, "Doc 2", page2.Items[0].Title)

	cursor2, err := pagination.DecodeCursor(page2.NextCursor)
	require.NoError(t, err)

	page3, err := repo.ListByWorkspaceWithCursor(ctx, ws.ID, cursor2, 2)
	require.NoError(t, err)
	require.Len(t, page3.Items, 1)
	assert.False(t, page3.HasMore)
	assert.Empty(t, page3.NextCursor)
}

func TestDocumentRepository_Delete(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	ws := createTestWorkspace(ctx, t, NewWorkspaceRepository(pool))
	repo := NewDocumentRepository(pool)

	doc := testDocument(ws.ID)
	require.NoError(t, repo.Create(ctx, doc))
	require.NoError(t, repo.Delete(ctx, doc.ID))

	_, err := repo.GetByID(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}
