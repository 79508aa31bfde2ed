package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/apikey/usecase/mocks"
	"github.com/allisson/apikeys/internal/metrics"
)

// mockBusinessMetrics is a mock implementation of metrics.BusinessMetrics for testing.
type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *mockBusinessMetrics) RecordRevokedTokens(ctx context.Context, strategy string, count int) {
	m.Called(ctx, strategy, count)
}

var _ metrics.BusinessMetrics = (*mockBusinessMetrics)(nil)

func expectRecorded(m *mockBusinessMetrics, ctx context.Context, operation, status string) {
	m.On("RecordOperation", ctx, "apikey", operation, status).Return().Once()
	m.On("RecordDuration", ctx, "apikey", operation, mock.AnythingOfType("time.Duration"), status).
		Return().
		Once()
}

func TestNewTokenUseCaseWithMetrics(t *testing.T) {
	decorator := NewTokenUseCaseWithMetrics(&mocks.MockTokenUseCase{}, &mockBusinessMetrics{})

	assert.NotNil(t, decorator)
	assert.Implements(t, (*TokenUseCase)(nil), decorator)
}

func TestTokenUseCaseWithMetrics_Issue(t *testing.T) {
	ctx := context.Background()
	input := &domain.IssueTokenInput{Type: domain.TypeSecret, Environment: domain.EnvironmentTest}

	t.Run("Success_RecordsSuccessMetrics", func(t *testing.T) {
		mockUseCase := &mocks.MockTokenUseCase{}
		mockMetrics := &mockBusinessMetrics{}

		expected := &domain.IssueTokenOutput{Token: &domain.Token{ID: uuid.New()}, PlainToken: "sk_test_abc"}
		mockUseCase.On("Issue", ctx, input).Return(expected, nil).Once()
		expectRecorded(mockMetrics, ctx, "issue", "success")

		decorator := NewTokenUseCaseWithMetrics(mockUseCase, mockMetrics)
		result, err := decorator.Issue(ctx, input)

		assert.NoError(t, err)
		assert.Equal(t, expected, result)
		mockUseCase.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("Error_RecordsErrorMetrics", func(t *testing.T) {
		mockUseCase := &mocks.MockTokenUseCase{}
		mockMetrics := &mockBusinessMetrics{}

		mockUseCase.On("Issue", ctx, input).Return(nil, domain.ErrEnvironmentNotAllowed).Once()
		expectRecorded(mockMetrics, ctx, "issue", "error")

		decorator := NewTokenUseCaseWithMetrics(mockUseCase, mockMetrics)
		result, err := decorator.Issue(ctx, input)

		assert.ErrorIs(t, err, domain.ErrEnvironmentNotAllowed)
		assert.Nil(t, result)
		mockUseCase.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})
}

func TestTokenUseCaseWithMetrics_Operations(t *testing.T) {
	ctx := context.Background()
	tokenID := uuid.New()
	token := &domain.Token{ID: tokenID}
	tokens := []*domain.Token{token}
	failure := errors.New("store unavailable")

	tests := []struct {
		operation string
		method    string
		args      []any
		result    any
		call      func(TokenUseCase) (any, error)
	}{
		{
			operation: "issue_group",
			method:    "IssueGroup",
			args:      []any{ctx, &domain.IssueGroupInput{Name: "acme"}},
			result:    &domain.IssueGroupOutput{},
			call: func(uc TokenUseCase) (any, error) {
				return uc.IssueGroup(ctx, &domain.IssueGroupInput{Name: "acme"})
			},
		},
		{
			operation: "get",
			method:    "Get",
			args:      []any{ctx, tokenID},
			result:    token,
			call:      func(uc TokenUseCase) (any, error) { return uc.Get(ctx, tokenID) },
		},
		{
			operation: "get_group",
			method:    "GetGroup",
			args:      []any{ctx, tokenID},
			result:    &domain.TokenGroup{ID: tokenID},
			call:      func(uc TokenUseCase) (any, error) { return uc.GetGroup(ctx, tokenID) },
		},
		{
			operation: "revoke",
			method:    "Revoke",
			args:      []any{ctx, tokenID, RevocationCascade},
			result:    tokens,
			call:      func(uc TokenUseCase) (any, error) { return uc.Revoke(ctx, tokenID, RevocationCascade) },
		},
		{
			operation: "preview_revocation",
			method:    "PreviewRevocation",
			args:      []any{ctx, tokenID, ""},
			result:    tokens,
			call:      func(uc TokenUseCase) (any, error) { return uc.PreviewRevocation(ctx, tokenID, "") },
		},
		{
			operation: "rotate",
			method:    "Rotate",
			args:      []any{ctx, tokenID, RotationGracePeriod},
			result:    &domain.RotateTokenOutput{Strategy: RotationGracePeriod},
			call:      func(uc TokenUseCase) (any, error) { return uc.Rotate(ctx, tokenID, RotationGracePeriod) },
		},
		{
			operation: "derive",
			method:    "Derive",
			args:      []any{ctx, tokenID, &domain.DeriveTokenInput{Name: "child"}},
			result:    &domain.IssueTokenOutput{Token: token},
			call: func(uc TokenUseCase) (any, error) {
				return uc.Derive(ctx, tokenID, &domain.DeriveTokenInput{Name: "child"})
			},
		},
		{
			operation: "sibling",
			method:    "Sibling",
			args:      []any{ctx, tokenID, domain.TypePublishable},
			result:    token,
			call:      func(uc TokenUseCase) (any, error) { return uc.Sibling(ctx, tokenID, domain.TypePublishable) },
		},
		{
			operation: "children",
			method:    "Children",
			args:      []any{ctx, tokenID},
			result:    tokens,
			call:      func(uc TokenUseCase) (any, error) { return uc.Children(ctx, tokenID) },
		},
		{
			operation: "descendants",
			method:    "Descendants",
			args:      []any{ctx, tokenID},
			result:    tokens,
			call:      func(uc TokenUseCase) (any, error) { return uc.Descendants(ctx, tokenID) },
		},
		{
			operation: "rotation_chain",
			method:    "RotationChain",
			args:      []any{ctx, tokenID},
			result:    tokens,
			call:      func(uc TokenUseCase) (any, error) { return uc.RotationChain(ctx, tokenID) },
		},
	}

	for _, tt := range tests {
		t.Run("Success_"+tt.operation, func(t *testing.T) {
			mockUseCase := &mocks.MockTokenUseCase{}
			mockMetrics := &mockBusinessMetrics{}

			mockUseCase.On(tt.method, tt.args...).Return(tt.result, nil).Once()
			expectRecorded(mockMetrics, ctx, tt.operation, "success")
			if tt.method == "Revoke" {
				mockMetrics.On("RecordRevokedTokens", ctx, RevocationCascade, len(tokens)).Return().Once()
			}

			result, err := tt.call(NewTokenUseCaseWithMetrics(mockUseCase, mockMetrics))

			assert.NoError(t, err)
			assert.Equal(t, tt.result, result)
			mockUseCase.AssertExpectations(t)
			mockMetrics.AssertExpectations(t)
		})

		t.Run("Error_"+tt.operation, func(t *testing.T) {
			mockUseCase := &mocks.MockTokenUseCase{}
			mockMetrics := &mockBusinessMetrics{}

			mockUseCase.On(tt.method, tt.args...).Return(nil, failure).Once()
			expectRecorded(mockMetrics, ctx, tt.operation, "error")

			_, err := tt.call(NewTokenUseCaseWithMetrics(mockUseCase, mockMetrics))

			assert.ErrorIs(t, err, failure)
			mockUseCase.AssertExpectations(t)
			mockMetrics.AssertExpectations(t)
		})
	}
}
