// Package usecase implements the API key lifecycle: issuance, revocation and rotation
// strategies, the derivation hierarchy and the authentication pipeline (Guard).
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/audit"
)

// TokenRepository defines persistence operations for tokens and token groups.
// Implementations must support transaction-aware operations via context propagation.
type TokenRepository interface {
	// Create stores a new token.
	Create(ctx context.Context, token *domain.Token) error

	// MarkReplaced links a token to its successor only if it has not been replaced yet.
	// Returns ErrTokenAlreadyRotated when another rotation won the race and
	// ErrTokenNotFound when the token does not exist.
	MarkReplaced(ctx context.Context, tokenID, replacedByID uuid.UUID, rotatedAt time.Time) error

	// Get retrieves a token by ID. Returns ErrTokenNotFound if not found.
	Get(ctx context.Context, tokenID uuid.UUID) (*domain.Token, error)

	// GetByTokenHash retrieves a token by digest. Returns ErrTokenNotFound if not found.
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Token, error)

	// ListByGroup returns every member of a group.
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.Token, error)

	// ListChildren returns the direct children of a token.
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.Token, error)

	// ListDescendants returns every descendant of a token down to maxDepth levels below it,
	// shallowest first.
	ListDescendants(ctx context.Context, rootID uuid.UUID, maxDepth int) ([]*domain.Token, error)

	// RevokeBatch sets revoked_at = at on every listed token whose revoked_at is null or
	// later than at, as a single atomic step. Returns the number of tokens changed.
	RevokeBatch(ctx context.Context, tokenIDs []uuid.UUID, at time.Time) (int64, error)

	// TouchLastUsed records a successful authentication.
	TouchLastUsed(ctx context.Context, tokenID uuid.UUID, at time.Time) error

	// CreateGroup stores a new token group. Member tokens are created separately.
	CreateGroup(ctx context.Context, group *domain.TokenGroup) error

	// GetGroup retrieves a group with its members. Returns ErrGroupNotFound if not found.
	GetGroup(ctx context.Context, groupID uuid.UUID) (*domain.TokenGroup, error)
}

// Authenticator validates a presented token against the request it arrived with.
type Authenticator interface {
	Authenticate(ctx context.Context, req AuthRequest) *AuthResult
}

// AuditEmitter accepts audit events.
type AuditEmitter interface {
	Emit(ctx context.Context, event *audit.Event) error
}

// RevocationStrategy decides which tokens a revocation affects and when it takes effect.
type RevocationStrategy interface {
	// Name returns the registry name of the strategy.
	Name() string

	// Revoke applies the revocation and returns the affected tokens with RevokedAt updated.
	// Revoking an already revoked token is a no-op.
	Revoke(ctx context.Context, token *domain.Token) ([]*domain.Token, error)

	// AffectedTokens returns the tokens Revoke would touch without mutating anything.
	AffectedTokens(ctx context.Context, token *domain.Token) ([]*domain.Token, error)
}

// RotationStrategy decides what happens to the superseded token on rotation.
type RotationStrategy interface {
	// Name returns the registry name of the strategy.
	Name() string

	// Rotate transitions oldToken after newToken has been created.
	Rotate(ctx context.Context, oldToken, newToken *domain.Token) error

	// IsOldTokenValid reports whether a rotated token is still accepted.
	IsOldTokenValid(oldToken *domain.Token) bool

	// GracePeriodMinutes returns the grace window, if the strategy has one.
	GracePeriodMinutes() (int, bool)
}

// TokenUseCase defines the token lifecycle operations.
type TokenUseCase interface {
	// Issue creates a root token. The plaintext is only returned once.
	Issue(ctx context.Context, input *domain.IssueTokenInput) (*domain.IssueTokenOutput, error)

	// IssueGroup creates one token per requested type under a new group.
	IssueGroup(ctx context.Context, input *domain.IssueGroupInput) (*domain.IssueGroupOutput, error)

	// Get retrieves a token by ID.
	Get(ctx context.Context, tokenID uuid.UUID) (*domain.Token, error)

	// GetGroup retrieves a group with its members.
	GetGroup(ctx context.Context, groupID uuid.UUID) (*domain.TokenGroup, error)

	// Revoke revokes a token with the named strategy, or the type default when empty.
	Revoke(ctx context.Context, tokenID uuid.UUID, strategy string) ([]*domain.Token, error)

	// PreviewRevocation returns the tokens Revoke would affect without mutating them.
	PreviewRevocation(ctx context.Context, tokenID uuid.UUID, strategy string) ([]*domain.Token, error)

	// Rotate replaces a token with a fresh one using the named strategy, or the type default.
	Rotate(ctx context.Context, tokenID uuid.UUID, strategy string) (*domain.RotateTokenOutput, error)

	// Derive creates a child token bounded by its parent.
	Derive(ctx context.Context, parentID uuid.UUID, input *domain.DeriveTokenInput) (*domain.IssueTokenOutput, error)

	// Sibling returns the group member of the given type.
	Sibling(ctx context.Context, tokenID uuid.UUID, tokenType domain.TokenType) (*domain.Token, error)

	// Children returns the direct children of a token.
	Children(ctx context.Context, tokenID uuid.UUID) ([]*domain.Token, error)

	// Descendants returns every descendant of a token.
	Descendants(ctx context.Context, tokenID uuid.UUID) ([]*domain.Token, error)

	// RotationChain returns the token followed by each token it replaced, newest first.
	RotationChain(ctx context.Context, tokenID uuid.UUID) ([]*domain.Token, error)
}
