package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/docquery-ai/docquery/internal/domain"
)

type MockUUIDGenerator struct {
	mock.Mock
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.callCount < len(m.uuids) {
		uuid := m.uuids[m.callCount]
		m.callCount++
		return uuid
	}
	return "default-uuid"
}

type MockWorkspaceRepository struct {
	mock.Mock
}

func (m *MockWorkspaceRepository) Create(ctx context.Context, workspace *domain.Workspace) error {
	args := m.Called(ctx, workspace)
	return args.Error(0)
}

func (m *MockWorkspaceRepository) GetByID(ctx context.Context, id string) (*domain.Workspace, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Workspace), args.Error(1)
}

func (m *MockWorkspaceRepository) GetByName(ctx context.Context, name string) (*domain.Workspace, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Workspace), args.Error(1)
}

func (m *MockWorkspaceRepository) List(ctx context.Context) ([]*domain.Workspace, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Workspace), args.Error(1)
}

func (m *MockWorkspaceRepository) Update(ctx context.Context, workspace *domain.Workspace) error {
	args := m.Called(ctx, workspace)
	return args.Error(0)
}

func (m *MockWorkspaceRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockAPIKeyRepository struct {
	mock.Mock
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) GetByID(ctx context.Context, id string) (*domain.APIKey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) GetByWorkspaceID(ctx context.Context, workspaceID string) ([]*domain.APIKey, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) Revoke(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestAuthService_CreateWorkspace(t *testing.T) {
	ctx := context.Background()
	mockWorkspaceRepo := new(MockWorkspaceRepository)
	mockAPIKeyRepo := new(MockAPIKeyRepository)
	mockUUIDGen := NewMockUUIDGenerator("ws-123")

	mockWorkspaceRepo.On("Create", ctx, mock.MatchedBy(func(w *domain.Workspace) bool {
		return w.Name == "Test Workspace" && w.ID == "ws-123"
	})).Return(nil)

	service := NewAuthService(mockWorkspaceRepo, mockAPIKeyRepo, mockUUIDGen)
	workspace, err := service.CreateWorkspace(ctx, "Test Workspace")

	require.NoError(t, err)
	assert.Equal(t, "ws-123", workspace.ID)
	assert.Equal(t, "Test Workspace", workspace.Name)
	mockWorkspaceRepo.AssertExpectations(t)
}

func TestAuthService_CreateWorkspace_EmptyName(t *testing.T) {
	ctx := context.Background()
	mockWorkspaceRepo := new(MockWorkspaceRepository)
	mockAPIKeyRepo := new(MockAPIKeyRepository)

	service := NewAuthService(mockWorkspaceRepo, mockAPIKeyRepo, NewMockUUIDGenerator())
	_, err := service.CreateWorkspace(ctx, "")

	assert.Error(t, err)
	mockWorkspaceRepo.AssertNotCalled(t, "Create")
}

func TestAuthService_CreateAPIKey_GeneratesDqToken(t *testing.T) {
	ctx := context.Background()
	mockWorkspaceRepo := new(MockWorkspaceRepository)
	mockAPIKeyRepo := new(MockAPIKeyRepository)
	mockUUIDGen := NewMockUUIDGenerator("key-123")

	mockWorkspaceRepo.On("GetByID", ctx, "ws-123").Return(&domain.Workspace{
		ID:        "ws-123",
		Name:      "Test Workspace",
		CreatedAt: time.Now().UTC(),
	}, nil)

	mockAPIKeyRepo.On("Create", ctx, mock.MatchedBy(func(key *domain.APIKey) bool {
		return key.ID == "key-123" && key.KeyHash != "" && len(key.KeyHash) == 64
	})).Return(nil)

	service := NewAuthService(mockWorkspaceRepo, mockAPIKeyRepo, mockUUIDGen)
	token, err := service.CreateAPIKey(ctx, "ws-123", "test-key")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "dq_"), "token should start with dq_")
	assert.Equal(t, 67, len(token), "token should be dq_ + 64 hex chars")
	mockAPIKeyRepo.AssertExpectations(t)
}

func TestAuthService_CreateAPIKey_StoresSHA256Hash(t *testing.T) {
	ctx := context.Background()
	mockWorkspaceRepo := new(MockWorkspaceRepository)
	mockAPIKeyRepo := new(MockAPIKeyRepository)
	mockUUIDGen := NewMockUUIDGenerator("key-123")

	mockWorkspaceRepo.On("GetByID", ctx, "ws-123").Return(&domain.Workspace{
		ID:        "ws-123",
		Name:      "Test Workspace",
		CreatedAt: time.Now().UTC(),
	}, nil)

	var capturedKey *domain.APIKey
	mockAPIKeyRepo.On("Create", ctx, mock.MatchedBy(func(key *domain.APIKey) bool {
		capturedKey = key
		return true
	})).Return(nil)

	service := NewAuthService(mockWorkspaceRepo, mockAPIKeyRepo, mockUUIDGen)
	token, err := service.CreateAPIKey(ctx, "ws-123", "test-key")

	require.NoError(t, err)
	require.NotNil(t, capturedKey)
	assert.NotEqual(t, token, capturedKey.KeyHash)
	assert.Equal(t, 64, len(capturedKey.KeyHash), "SHA256 hash should be 64 hex chars")
}

func TestAuthService_ValidateAPIKey_ValidToken(t *testing.T) {
	ctx := context.Background()
	mockWorkspaceRepo := new(MockWorkspaceRepository)
	mockAPIKeyRepo := new(MockAPIKeyRepository)
	mockUUIDGen := NewMockUUIDGenerator("key-123")

	mockWorkspaceRepo.On("GetByID", ctx, "ws-123").Return(&domain.Workspace{
		ID:        "ws-123",
		Name:      "Test Workspace",
		CreatedAt: time.Now().UTC(),
	}, nil)

	var storedHash string
	mockAPIKeyRepo.On("Create", ctx, mock.MatchedBy(func(key *domain.APIKey) bool {
		storedHash = key.KeyHash
		return true
	})).Return(nil)

	service := NewAuthService(mockWorkspaceRepo, mockAPIKeyRepo, mockUUIDGen)
	token, _ := service.CreateAPIKey(ctx, "ws-123", "test-key")

	mockAPIKeyRepo.On("GetByHash", ctx, storedHash).Return(&domain.APIKey{
		ID:          "key-123",
		WorkspaceID: "ws-123",
		Name:        "test-key",
		KeyHash:     storedHash,
		CreatedAt:   time.Now().UTC(),
		RevokedAt:   nil,
	}, nil)

	workspaceID, err := service.ValidateAPIKey(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "ws-123", workspaceID)
}

func TestAuthService_ValidateAPIKey_InvalidToken(t *testing.T) {
	ctx := context.Background()
	service := NewAuthService(new(MockWorkspaceRepository), new(MockAPIKeyRepository), NewMockUUIDGenerator())

	_, err := service.ValidateAPIKey(ctx, "invalid-token")

	assert.ErrorIs(t, err, domain.ErrInvalidAPIKey)
}

func TestAuthService_ValidateAPIKey_NotFound(t *testing.T) {
	ctx := context.Background()
	mockAPIKeyRepo := new(MockAPIKeyRepository)
	mockAPIKeyRepo.On("GetByHash", ctx, mock.Anything).Return(nil, domain.ErrAPIKeyNotFound)

	service := NewAuthService(new(MockWorkspaceRepository), mockAPIKeyRepo, NewMockUUIDGenerator())
	_, err := service.ValidateAPIKey(ctx, "dq_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

	assert.ErrorIs(t, err, domain.ErrInvalidAPIKey)
}

func TestAuthService_ValidateAPIKey_RevokedKey(t *testing.T) {
	ctx := context.Background()
	mockAPIKeyRepo := new(MockAPIKeyRepository)

	revokedAt := time.Now().UTC()
	mockAPIKeyRepo.On("GetByHash", ctx, mock.Anything).Return(&domain.APIKey{
		ID:          "key-123",
		WorkspaceID: "ws-123",
		Name:        "test-key",
		KeyHash:     "somehash",
		CreatedAt:   time.Now().UTC(),
		RevokedAt:   &revokedAt,
	}, nil)

	service := NewAuthService(new(MockWorkspaceRepository), mockAPIKeyRepo, NewMockUUIDGenerator())
	_, err := service.ValidateAPIKey(ctx, "dq_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

	assert.ErrorIs(t, err, domain.ErrAPIKeyRevoked)
}

func TestAuthService_RevokeAPIKey(t *testing.T) {
	ctx := context.Background()
	mockAPIKeyRepo := new(MockAPIKeyRepository)
	mockAPIKeyRepo.On("Revoke", ctx, "key-123").Return(nil)

	service := NewAuthService(new(MockWorkspaceRepository), mockAPIKeyRepo, NewMockUUIDGenerator())
	err := service.RevokeAPIKey(ctx, "key-123")

	require.NoError(t, err)
	mockAPIKeyRepo.AssertExpectations(t)
}

func TestAuthService_ListAPIKeys(t *testing.T) {
	ctx := context.Background()
	mockAPIKeyRepo := new(MockAPIKeyRepository)

	keys := []*domain.APIKey{
		{ID: "key-1", WorkspaceID: "ws-123", Name: "key1", KeyHash: "hash1", CreatedAt: time.Now().UTC()},
		{ID: "key-2", WorkspaceID: "ws-123", Name: "key2", KeyHash: "hash2", CreatedAt: time.Now().UTC()},
	}
	mockAPIKeyRepo.On("GetByWorkspaceID", ctx, "ws-123").Return(keys, nil)

	service := NewAuthService(new(MockWorkspaceRepository), mockAPIKeyRepo, NewMockUUIDGenerator())
	result, err := service.ListAPIKeys(ctx, "ws-123")

	require.NoError(t, err)
	assert.Len(t, result, 2)
	mockAPIKeyRepo.AssertExpectations(t)
}

func TestIsValidAPIToken(t *testing.T) {
	valid := "dq_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	assert.True(t, IsValidAPIToken(valid))

	assert.False(t, IsValidAPIToken(""))
	assert.False(t, IsValidAPIToken("dq_short"))
	assert.False(t, IsValidAPIToken("sk_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"))
	assert.False(t, IsValidAPIToken("dq_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdeZ"))
}
