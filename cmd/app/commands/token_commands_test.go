package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/apikey/usecase/mocks"
)

func commandToken(tokenType domain.TokenType) *domain.Token {
	return &domain.Token{
		ID:          uuid.New(),
		Name:        "ci",
		Prefix:      "sk",
		Type:        tokenType,
		Environment: domain.EnvironmentTest,
		Abilities:   domain.NewAbilities("tokens:manage"),
		CreatedAt:   time.Now().UTC(),
	}
}

func TestRunIssueToken(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("Success_Text", func(t *testing.T) {
		mockUseCase := &mocks.MockTokenUseCase{}
		token := commandToken(domain.TypeSecret)

		mockUseCase.On("Issue", ctx, mock.MatchedBy(func(input *domain.IssueTokenInput) bool {
			return input.Type == domain.TypeSecret &&
				input.Environment == domain.EnvironmentTest &&
				assert.ObjectsAreEqual([]string{"tokens:manage", "read"}, input.Abilities) &&
				assert.ObjectsAreEqual([]string{"10.0.0.0/8"}, input.AllowedIPs) &&
				input.RateLimitPerMinute != nil && *input.RateLimitPerMinute == 60 &&
				input.ExpiresAt != nil &&
				input.Owner != nil && input.Owner.Kind == "user" && input.Owner.ID == "42"
		})).Return(&domain.IssueTokenOutput{Token: token, PlainToken: "sk_test_abc123"}, nil).Once()

		var out bytes.Buffer
		err := RunIssueToken(ctx, mockUseCase, logger, &out, IssueTokenOptions{
			Type:               "secret",
			Environment:        "test",
			Name:               "ci",
			Abilities:          "tokens:manage, read",
			AllowedIPs:         "10.0.0.0/8",
			RateLimitPerMinute: 60,
			ExpiresInHours:     24,
			Owner:              "user:42",
			Format:             "text",
		})

		require.NoError(t, err)
		assert.Contains(t, out.String(), token.ID.String())
		assert.Contains(t, out.String(), "sk_test_abc123")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("Success_JSONDefaultsLeftToUseCase", func(t *testing.T) {
		mockUseCase := &mocks.MockTokenUseCase{}
		token := commandToken(domain.TypePublishable)

		mockUseCase.On("Issue", ctx, mock.MatchedBy(func(input *domain.IssueTokenInput) bool {
			return input.Abilities == nil && input.RateLimitPerMinute == nil && input.ExpiresAt == nil
		})).Return(&domain.IssueTokenOutput{Token: token, PlainToken: "pk_test_xyz"}, nil).Once()

		var out bytes.Buffer
		err := RunIssueToken(ctx, mockUseCase, logger, &out, IssueTokenOptions{
			Type:        "publishable",
			Environment: "test",
			Format:      "json",
		})

		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &body))
		assert.Equal(t, "pk_test_xyz", body["token"])
		mockUseCase.AssertExpectations(t)
	})

	t.Run("Success_Group", func(t *testing.T) {
		mockUseCase := &mocks.MockTokenUseCase{}
		groupID := uuid.New()

		mockUseCase.On("IssueGroup", ctx, &domain.IssueGroupInput{
			Name:        "acme",
			Environment: "live",
		}).Return(&domain.IssueGroupOutput{
			Group: &domain.TokenGroup{ID: groupID, Name: "acme"},
			PlainTokens: map[domain.TokenType]string{
				domain.TypeSecret:      "sk_live_1",
				domain.TypePublishable: "pk_live_2",
			},
		}, nil).Once()

		var out bytes.Buffer
		err := RunIssueToken(ctx, mockUseCase, logger, &out, IssueTokenOptions{
			Name:        "acme",
			Environment: "live",
			Group:       true,
		})

		require.NoError(t, err)
		assert.Contains(t, out.String(), groupID.String())
		assert.Contains(t, out.String(), "publishable: pk_live_2")
		assert.Contains(t, out.String(), "secret: sk_live_1")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("Error_InvalidOwner", func(t *testing.T) {
		mockUseCase := &mocks.MockTokenUseCase{}

		err := RunIssueToken(ctx, mockUseCase, logger, &bytes.Buffer{}, IssueTokenOptions{
			Type:        "secret",
			Environment: "test",
			Owner:       "user",
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid entity reference")
		mockUseCase.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
	})

	t.Run("Error_UseCase", func(t *testing.T) {
		mockUseCase := &mocks.MockTokenUseCase{}
		mockUseCase.On("Issue", ctx, mock.Anything).Return(nil, domain.ErrEnvironmentNotAllowed).Once()

		err := RunIssueToken(ctx, mockUseCase, logger, &bytes.Buffer{}, IssueTokenOptions{
			Type:        "secret",
			Environment: "staging",
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrEnvironmentNotAllowed)
	})
}

func TestRunRevokeToken(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("Success_Revoke", func(t *testing.T) {
		mockUseCase := &mocks.MockTokenUseCase{}
		token := commandToken(domain.TypeSecret)
		revokedAt := time.Now().UTC()
		token.RevokedAt = &revokedAt

		mockUseCase.On("Revoke", ctx, token.ID, "cascade").Return([]*domain.Token{token}, nil).Once()

		var out bytes.Buffer
		err := RunRevokeToken(ctx, mockUseCase, logger, &out, token.ID.String(), "cascade", false, "text")

		require.NoError(t, err)
		assert.Contains(t, out.String(), "Successfully revoked 1 token(s)")
		assert.Contains(t, out.String(), token.ID.String())
		mockUseCase.AssertExpectations(t)
	})

	t.Run("Success_DryRunJSON", func(t *testing.T) {
		mockUseCase := &mocks.MockTokenUseCase{}
		token := commandToken(domain.TypeSecret)

		mockUseCase.On("PreviewRevocation", ctx, token.ID, "").Return([]*domain.Token{token}, nil).Once()

		var out bytes.Buffer
		err := RunRevokeToken(ctx, mockUseCase, logger, &out, token.ID.String(), "", true, "json")

		require.NoError(t, err)
		var body struct {
			Affected []map[string]any `json:"affected"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &body))
		require.Len(t, body.Affected, 1)
		assert.Equal(t, token.ID.String(), body.Affected[0]["id"])
		mockUseCase.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Error_InvalidID", func(t *testing.T) {
		err := RunRevokeToken(ctx, &mocks.MockTokenUseCase{}, logger, &bytes.Buffer{}, "nope", "", false, "text")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid token ID format")
	})

	t.Run("Error_UseCase", func(t *testing.T) {
		mockUseCase := &mocks.MockTokenUseCase{}
		tokenID := uuid.New()
		mockUseCase.On("Revoke", ctx, tokenID, "").Return(nil, domain.ErrTokenNotFound).Once()

		err := RunRevokeToken(ctx, mockUseCase, logger, &bytes.Buffer{}, tokenID.String(), "", false, "text")

		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	})
}

func TestRunRotateToken(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("Success_Text", func(t *testing.T) {
		mockUseCase := &mocks.MockTokenUseCase{}
		oldToken := commandToken(domain.TypeSecret)
		newToken := commandToken(domain.TypeSecret)
		graceEnd := time.Now().UTC().Add(time.Hour)
		oldToken.RevokedAt = &graceEnd

		mockUseCase.On("Rotate", ctx, oldToken.ID, "grace_period").Return(&domain.RotateTokenOutput{
			OldToken:   oldToken,
			NewToken:   newToken,
			PlainToken: "sk_test_new",
			Strategy:   "grace_period",
		}, nil).Once()

		var out bytes.Buffer
		err := RunRotateToken(ctx, mockUseCase, logger, &out, oldToken.ID.String(), "grace_period", "text")

		require.NoError(t, err)
		assert.Contains(t, out.String(), newToken.ID.String())
		assert.Contains(t, out.String(), "sk_test_new")
		assert.Contains(t, out.String(), "Old Token Valid Until")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("Success_JSON", func(t *testing.T) {
		mockUseCase := &mocks.MockTokenUseCase{}
		oldToken := commandToken(domain.TypeSecret)
		newToken := commandToken(domain.TypeSecret)

		mockUseCase.On("Rotate", ctx, oldToken.ID, "").Return(&domain.RotateTokenOutput{
			OldToken:   oldToken,
			NewToken:   newToken,
			PlainToken: "sk_test_new",
			Strategy:   "dual_valid",
		}, nil).Once()

		var out bytes.Buffer
		err := RunRotateToken(ctx, mockUseCase, logger, &out, oldToken.ID.String(), "", "json")

		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &body))
		assert.Equal(t, "dual_valid", body["strategy"])
		assert.Equal(t, "sk_test_new", body["token"])
	})

	t.Run("Error_UseCase", func(t *testing.T) {
		mockUseCase := &mocks.MockTokenUseCase{}
		tokenID := uuid.New()
		failure := errors.New("store unavailable")
		mockUseCase.On("Rotate", ctx, tokenID, "").Return(nil, failure).Once()

		err := RunRotateToken(ctx, mockUseCase, logger, &bytes.Buffer{}, tokenID.String(), "", "text")

		assert.ErrorIs(t, err, failure)
	})
}
