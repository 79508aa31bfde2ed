// Package mocks provides mock implementations of the apikey use case interfaces for testing.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/audit"
)

// MockTokenUseCase is a mock implementation of TokenUseCase for testing.
type MockTokenUseCase struct {
	mock.Mock
}

// Issue mocks the Issue method of TokenUseCase.
func (m *MockTokenUseCase) Issue(
	ctx context.Context,
	input *domain.IssueTokenInput,
) (*domain.IssueTokenOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IssueTokenOutput), args.Error(1)
}

// IssueGroup mocks the IssueGroup method of TokenUseCase.
func (m *MockTokenUseCase) IssueGroup(
	ctx context.Context,
	input *domain.IssueGroupInput,
) (*domain.IssueGroupOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IssueGroupOutput), args.Error(1)
}

// Get mocks the Get method of TokenUseCase.
func (m *MockTokenUseCase) Get(ctx context.Context, tokenID uuid.UUID) (*domain.Token, error) {
	args := m.Called(ctx, tokenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

// GetGroup mocks the GetGroup method of TokenUseCase.
func (m *MockTokenUseCase) GetGroup(ctx context.Context, groupID uuid.UUID) (*domain.TokenGroup, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenGroup), args.Error(1)
}

// Revoke mocks the Revoke method of TokenUseCase.
func (m *MockTokenUseCase) Revoke(
	ctx context.Context,
	tokenID uuid.UUID,
	strategy string,
) ([]*domain.Token, error) {
	args := m.Called(ctx, tokenID, strategy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Token), args.Error(1)
}

// PreviewRevocation mocks the PreviewRevocation method of TokenUseCase.
func (m *MockTokenUseCase) PreviewRevocation(
	ctx context.Context,
	tokenID uuid.UUID,
	strategy string,
) ([]*domain.Token, error) {
	args := m.Called(ctx, tokenID, strategy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Token), args.Error(1)
}

// Rotate mocks the Rotate method of TokenUseCase.
func (m *MockTokenUseCase) Rotate(
	ctx context.Context,
	tokenID uuid.UUID,
	strategy string,
) (*domain.RotateTokenOutput, error) {
	args := m.Called(ctx, tokenID, strategy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RotateTokenOutput), args.Error(1)
}

// Derive mocks the Derive method of TokenUseCase.
func (m *MockTokenUseCase) Derive(
	ctx context.Context,
	parentID uuid.UUID,
	input *domain.DeriveTokenInput,
) (*domain.IssueTokenOutput, error) {
	args := m.Called(ctx, parentID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IssueTokenOutput), args.Error(1)
}

// Sibling mocks the Sibling method of TokenUseCase.
func (m *MockTokenUseCase) Sibling(
	ctx context.Context,
	tokenID uuid.UUID,
	tokenType domain.TokenType,
) (*domain.Token, error) {
	args := m.Called(ctx, tokenID, tokenType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

// Children mocks the Children method of TokenUseCase.
func (m *MockTokenUseCase) Children(ctx context.Context, tokenID uuid.UUID) ([]*domain.Token, error) {
	args := m.Called(ctx, tokenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Token), args.Error(1)
}

// Descendants mocks the Descendants method of TokenUseCase.
func (m *MockTokenUseCase) Descendants(ctx context.Context, tokenID uuid.UUID) ([]*domain.Token, error) {
	args := m.Called(ctx, tokenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Token), args.Error(1)
}

// RotationChain mocks the RotationChain method of TokenUseCase.
func (m *MockTokenUseCase) RotationChain(ctx context.Context, tokenID uuid.UUID) ([]*domain.Token, error) {
	args := m.Called(ctx, tokenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Token), args.Error(1)
}

// MockTokenRepository is a mock implementation of TokenRepository for testing.
type MockTokenRepository struct {
	mock.Mock
}

// Create mocks the Create method of TokenRepository.
func (m *MockTokenRepository) Create(ctx context.Context, token *domain.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// MarkReplaced mocks the MarkReplaced method of TokenRepository.
func (m *MockTokenRepository) MarkReplaced(
	ctx context.Context,
	tokenID, replacedByID uuid.UUID,
	rotatedAt time.Time,
) error {
	args := m.Called(ctx, tokenID, replacedByID, rotatedAt)
	return args.Error(0)
}

// Get mocks the Get method of TokenRepository.
func (m *MockTokenRepository) Get(ctx context.Context, tokenID uuid.UUID) (*domain.Token, error) {
	args := m.Called(ctx, tokenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

// GetByTokenHash mocks the GetByTokenHash method of TokenRepository.
func (m *MockTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

// ListByGroup mocks the ListByGroup method of TokenRepository.
func (m *MockTokenRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.Token, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Token), args.Error(1)
}

// ListChildren mocks the ListChildren method of TokenRepository.
func (m *MockTokenRepository) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.Token, error) {
	args := m.Called(ctx, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Token), args.Error(1)
}

// ListDescendants mocks the ListDescendants method of TokenRepository.
func (m *MockTokenRepository) ListDescendants(
	ctx context.Context,
	rootID uuid.UUID,
	maxDepth int,
) ([]*domain.Token, error) {
	args := m.Called(ctx, rootID, maxDepth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Token), args.Error(1)
}

// RevokeBatch mocks the RevokeBatch method of TokenRepository.
func (m *MockTokenRepository) RevokeBatch(
	ctx context.Context,
	tokenIDs []uuid.UUID,
	at time.Time,
) (int64, error) {
	args := m.Called(ctx, tokenIDs, at)
	return args.Get(0).(int64), args.Error(1)
}

// TouchLastUsed mocks the TouchLastUsed method of TokenRepository.
func (m *MockTokenRepository) TouchLastUsed(ctx context.Context, tokenID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, tokenID, at)
	return args.Error(0)
}

// CreateGroup mocks the CreateGroup method of TokenRepository.
func (m *MockTokenRepository) CreateGroup(ctx context.Context, group *domain.TokenGroup) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

// GetGroup mocks the GetGroup method of TokenRepository.
func (m *MockTokenRepository) GetGroup(ctx context.Context, groupID uuid.UUID) (*domain.TokenGroup, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenGroup), args.Error(1)
}

// MockAuditEmitter is a mock implementation of AuditEmitter for testing.
type MockAuditEmitter struct {
	mock.Mock
}

// Emit mocks the Emit method of AuditEmitter.
func (m *MockAuditEmitter) Emit(ctx context.Context, event *audit.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
