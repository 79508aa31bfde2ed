package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/metrics"
)

// tokenUseCaseWithMetrics decorates TokenUseCase with metrics instrumentation.
type tokenUseCaseWithMetrics struct {
	next    TokenUseCase
	metrics metrics.BusinessMetrics
}

// NewTokenUseCaseWithMetrics wraps a TokenUseCase with metrics recording.
func NewTokenUseCaseWithMetrics(useCase TokenUseCase, m metrics.BusinessMetrics) TokenUseCase {
	return &tokenUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (t *tokenUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	t.metrics.RecordOperation(ctx, "apikey", operation, status)
	t.metrics.RecordDuration(ctx, "apikey", operation, time.Since(start), status)
}

// Issue records metrics for token issuance operations.
func (t *tokenUseCaseWithMetrics) Issue(
	ctx context.Context,
	input *domain.IssueTokenInput,
) (*domain.IssueTokenOutput, error) {
	start := time.Now()
	result, err := t.next.Issue(ctx, input)
	t.record(ctx, "issue", start, err)
	return result, err
}

// IssueGroup records metrics for group issuance operations.
func (t *tokenUseCaseWithMetrics) IssueGroup(
	ctx context.Context,
	input *domain.IssueGroupInput,
) (*domain.IssueGroupOutput, error) {
	start := time.Now()
	result, err := t.next.IssueGroup(ctx, input)
	t.record(ctx, "issue_group", start, err)
	return result, err
}

// Get records metrics for token retrieval operations.
func (t *tokenUseCaseWithMetrics) Get(ctx context.Context, tokenID uuid.UUID) (*domain.Token, error) {
	start := time.Now()
	result, err := t.next.Get(ctx, tokenID)
	t.record(ctx, "get", start, err)
	return result, err
}

// GetGroup records metrics for group retrieval operations.
func (t *tokenUseCaseWithMetrics) GetGroup(
	ctx context.Context,
	groupID uuid.UUID,
) (*domain.TokenGroup, error) {
	start := time.Now()
	result, err := t.next.GetGroup(ctx, groupID)
	t.record(ctx, "get_group", start, err)
	return result, err
}

// Revoke records metrics for token revocation operations.
func (t *tokenUseCaseWithMetrics) Revoke(
	ctx context.Context,
	tokenID uuid.UUID,
	strategy string,
) ([]*domain.Token, error) {
	start := time.Now()
	result, err := t.next.Revoke(ctx, tokenID, strategy)
	t.record(ctx, "revoke", start, err)
	if err == nil {
		t.metrics.RecordRevokedTokens(ctx, strategy, len(result))
	}
	return result, err
}

// PreviewRevocation records metrics for token revocation preview operations.
func (t *tokenUseCaseWithMetrics) PreviewRevocation(
	ctx context.Context,
	tokenID uuid.UUID,
	strategy string,
) ([]*domain.Token, error) {
	start := time.Now()
	result, err := t.next.PreviewRevocation(ctx, tokenID, strategy)
	t.record(ctx, "preview_revocation", start, err)
	return result, err
}

// Rotate records metrics for token rotation operations.
func (t *tokenUseCaseWithMetrics) Rotate(
	ctx context.Context,
	tokenID uuid.UUID,
	strategy string,
) (*domain.RotateTokenOutput, error) {
	start := time.Now()
	result, err := t.next.Rotate(ctx, tokenID, strategy)
	t.record(ctx, "rotate", start, err)
	return result, err
}

// Derive records metrics for token derivation operations.
func (t *tokenUseCaseWithMetrics) Derive(
	ctx context.Context,
	parentID uuid.UUID,
	input *domain.DeriveTokenInput,
) (*domain.IssueTokenOutput, error) {
	start := time.Now()
	result, err := t.next.Derive(ctx, parentID, input)
	t.record(ctx, "derive", start, err)
	return result, err
}

// Sibling records metrics for token sibling lookup operations.
func (t *tokenUseCaseWithMetrics) Sibling(
	ctx context.Context,
	tokenID uuid.UUID,
	tokenType domain.TokenType,
) (*domain.Token, error) {
	start := time.Now()
	result, err := t.next.Sibling(ctx, tokenID, tokenType)
	t.record(ctx, "sibling", start, err)
	return result, err
}

// Children records metrics for token children listing operations.
func (t *tokenUseCaseWithMetrics) Children(ctx context.Context, tokenID uuid.UUID) ([]*domain.Token, error) {
	start := time.Now()
	result, err := t.next.Children(ctx, tokenID)
	t.record(ctx, "children", start, err)
	return result, err
}

// Descendants records metrics for token descendant listing operations.
func (t *tokenUseCaseWithMetrics) Descendants(
	ctx context.Context,
	tokenID uuid.UUID,
) ([]*domain.Token, error) {
	start := time.Now()
	result, err := t.next.Descendants(ctx, tokenID)
	t.record(ctx, "descendants", start, err)
	return result, err
}

// RotationChain records metrics for token rotation chain operations.
func (t *tokenUseCaseWithMetrics) RotationChain(
	ctx context.Context,
	tokenID uuid.UUID,
) ([]*domain.Token, error) {
	start := time.Now()
	result, err := t.next.RotationChain(ctx, tokenID)
	t.record(ctx, "rotation_chain", start, err)
	return result, err
}
