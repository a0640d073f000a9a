package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/docquery-ai/docquery/internal/domain"
)

const apiKeyPrefix = "dq_"

type WorkspaceRepository interface {
	Create(ctx context.Context, workspace *domain.Workspace) error
	GetByID(ctx context.Context, id string) (*domain.Workspace, error)
	GetByName(ctx context.Context, name string) (*domain.Workspace, error)
	List(ctx context.Context) ([]*domain.Workspace, error)
	Update(ctx context.Context, workspace *domain.Workspace) error
	Delete(ctx context.Context, id string) error
}

type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByID(ctx context.Context, id string) (*domain.APIKey, error)
	GetByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	GetByWorkspaceID(ctx context.Context, workspaceID string) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type AuthService struct {
	workspaceRepo WorkspaceRepository
	keyRepo       APIKeyRepository
	uuidGen       UUIDGenerator
}

func NewAuthService(workspaceRepo WorkspaceRepository, keyRepo APIKeyRepository, uuidGen UUIDGenerator) *AuthService {
	return &AuthService{
		workspaceRepo: workspaceRepo,
		keyRepo:       keyRepo,
		uuidGen:       uuidGen,
	}
}

func (s *AuthService) CreateWorkspace(ctx context.Context, name string) (*domain.Workspace, error) {
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "workspace name is required")
	}

	workspace := domain.NewWorkspace(s.uuidGen.NewString(), name, time.Now().UTC())

	if err := domain.ValidateWorkspace(workspace); err != nil {
		return nil, err
	}

	if err := s.workspaceRepo.Create(ctx, workspace); err != nil {
		return nil, err
	}

	return workspace, nil
}

func (s *AuthService) ListWorkspaces(ctx context.Context) ([]*domain.Workspace, error) {
	return s.workspaceRepo.List(ctx)
}

func (s *AuthService) GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error) {
	if id == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "workspace ID is required")
	}
	return s.workspaceRepo.GetByID(ctx, id)
}

func (s *AuthService) CreateAPIKey(ctx context.Context, workspaceID, name string) (string, error) {
	if workspaceID == "" {
		return "", domain.NewDomainError(domain.ErrCodeValidation, "workspace ID is required")
	}
	if name == "" {
		return "", domain.NewDomainError(domain.ErrCodeValidation, "API key name is required")
	}

	_, err := s.workspaceRepo.GetByID(ctx, workspaceID)
	if err != nil {
		return "", err
	}

	token, err := generateAPIToken()
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate API key", err)
	}

	key := domain.NewAPIKey(s.uuidGen.NewString(), workspaceID, name, hashToken(token), time.Now().UTC(), nil)

	if err := domain.ValidateAPIKey(key); err != nil {
		return "", err
	}

	if err := s.keyRepo.Create(ctx, key); err != nil {
		return "", err
	}

	return token, nil
}

// CreateAPIKeyWithToken registers a caller-supplied token, used when keys are
// provisioned out of band.
func (s *AuthService) CreateAPIKeyWithToken(ctx context.Context, workspaceID, name, token string) error {
	if workspaceID == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "workspace ID is required")
	}
	if name == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "API key name is required")
	}
	if !IsValidAPIToken(token) {
		return domain.NewDomainError(domain.ErrCodeValidation, "invalid API key format (expected dq_<64 hex chars>)")
	}

	_, err := s.workspaceRepo.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}

	key := domain.NewAPIKey(s.uuidGen.NewString(), workspaceID, name, hashToken(token), time.Now().UTC(), nil)

	if err := domain.ValidateAPIKey(key); err != nil {
		return err
	}

	return s.keyRepo.Create(ctx, key)
}

// ValidateAPIKey resolves a bearer token to its workspace ID.
func (s *AuthService) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	if !IsValidAPIToken(token) {
		return "", domain.ErrInvalidAPIKey
	}

	key, err := s.keyRepo.GetByHash(ctx, hashToken(token))
	if err != nil {
		if err == domain.ErrAPIKeyNotFound {
			return "", domain.ErrInvalidAPIKey
		}
		return "", err
	}

	if key.IsRevoked() {
		return "", domain.ErrAPIKeyRevoked
	}

	return key.WorkspaceID, nil
}

func (s *AuthService) RevokeAPIKey(ctx context.Context, keyID string) error {
	if keyID == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "API key ID is required")
	}

	return s.keyRepo.Revoke(ctx, keyID)
}

func (s *AuthService) ListAPIKeys(ctx context.Context, workspaceID string) ([]*domain.APIKey, error) {
	if workspaceID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "workspace ID is required")
	}

	return s.keyRepo.GetByWorkspaceID(ctx, workspaceID)
}

func (s *AuthService) GetAPIKeyByHash(ctx context.Context, token string) (*domain.APIKey, error) {
	if !IsValidAPIToken(token) {
		return nil, domain.ErrInvalidAPIKey
	}
	return s.keyRepo.GetByHash(ctx, hashToken(token))
}

func generateAPIToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(bytes), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func IsValidAPIToken(token string) bool {
	if !strings.HasPrefix(token, apiKeyPrefix) {
		return false
	}
	hexPart := token[len(apiKeyPrefix):]
	if len(hexPart) != 64 {
		return false
	}
	for _, c := range hexPart {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
