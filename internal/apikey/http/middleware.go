package http

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/allisson/apikeys/internal/apikey/domain"
	apikeyUseCase "github.com/allisson/apikeys/internal/apikey/usecase"
	apperrors "github.com/allisson/apikeys/internal/errors"
	"github.com/allisson/apikeys/internal/httputil"
)

// APIKeyHeader is the alternative header carrying a plaintext token.
const APIKeyHeader = "X-API-Key"

// GuardMiddleware authenticates the request through the Guard pipeline.
//
// The presented token is read from "Authorization: Bearer <token>" (case-insensitive
// scheme) or, when absent, from the X-API-Key header. The request origin is the Origin
// header, falling back to Referer. The client IP comes from c.ClientIP().
//
// Error handling:
//   - Missing, malformed, unknown, revoked or expired token, or a token from another
//     environment → 401 Unauthorized
//   - IP or domain restriction, server-side-only type from a browser → 403 Forbidden
//   - Rate limit exceeded → 429 Too Many Requests with a Retry-After header
//
// On success the token is stored in the request context, see GetToken.
func GuardMiddleware(authenticator apikeyUseCase.Authenticator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := apikeyUseCase.AuthRequest{
			PresentedToken: extractToken(c),
			SourceIP:       c.ClientIP(),
			Origin:         requestOrigin(c),
			UserAgent:      c.Request.UserAgent(),
		}

		result := authenticator.Authenticate(c.Request.Context(), req)

		if result.RateLimit != nil {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.RateLimit.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.RateLimit.Remaining))
		}

		if !result.Authenticated() {
			err := result.Err
			if apperrors.Is(err, apperrors.ErrTooManyRequests) {
				c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(result)))
			}
			// Unknown tokens and environment mismatches are authentication failures here.
			if !apperrors.Is(err, apperrors.ErrUnauthorized) &&
				!apperrors.Is(err, apperrors.ErrForbidden) &&
				!apperrors.Is(err, apperrors.ErrTooManyRequests) {
				err = apperrors.Wrap(apperrors.ErrUnauthorized, err.Error())
			}
			logger.Debug("api key authentication failed",
				slog.String("kind", result.Kind.String()),
				slog.String("error", err.Error()))
			httputil.HandleErrorGin(c, err, logger)
			c.Abort()
			return
		}

		ctx := WithToken(c.Request.Context(), result.Token)
		c.Request = c.Request.WithContext(ctx)

		logger.Debug("api key authentication successful",
			slog.String("token_id", result.Token.ID.String()),
			slog.String("token_type", result.Token.Type.String()))

		c.Next()
	}
}

// RequireAbility rejects requests whose authenticated token lacks ability.
//
// This middleware MUST be used after GuardMiddleware.
//
// Error handling:
//   - No token in context → 401 Unauthorized (GuardMiddleware not run)
//   - Token lacks the ability → 403 Forbidden
func RequireAbility(ability string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := GetToken(c.Request.Context())
		if !ok || token == nil {
			logger.Debug("authorization failed: no authenticated token in context")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		if !token.Can(ability) {
			logger.Debug("authorization failed: missing ability",
				slog.String("token_id", token.ID.String()),
				slog.String("ability", ability))
			httputil.HandleErrorGin(c, apperrors.ErrForbidden, logger)
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractToken reads the bearer token, falling back to the X-API-Key header.
func extractToken(c *gin.Context) string {
	const bearerPrefix = "bearer "
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > len(bearerPrefix) && strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(authHeader[len(bearerPrefix):])
	}
	return strings.TrimSpace(c.GetHeader(APIKeyHeader))
}

func requestOrigin(c *gin.Context) string {
	if origin := c.GetHeader("Origin"); origin != "" {
		return origin
	}
	return c.GetHeader("Referer")
}

// retryAfterSeconds rounds the retry delay up to whole seconds, at least one.
func retryAfterSeconds(result *apikeyUseCase.AuthResult) int {
	retryAfter := result.RetryAfter
	var rateLimitErr *domain.RateLimitExceededError
	if retryAfter <= 0 && apperrors.As(result.Err, &rateLimitErr) {
		retryAfter = rateLimitErr.RetryAfter
	}
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
