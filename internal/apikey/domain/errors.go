package domain

import (
	"fmt"
	"time"

	"github.com/allisson/apikeys/internal/errors"
)

// Token lifecycle and validation errors.
var (
	// ErrTokenMissing indicates the request did not present a token.
	ErrTokenMissing = errors.Wrap(errors.ErrUnauthorized, "token not provided")

	// ErrMalformedToken indicates a plaintext that does not follow the prefix_environment_secret format.
	ErrMalformedToken = errors.Wrap(errors.ErrUnauthorized, "malformed token")

	// ErrTokenNotFound indicates no stored token matches the lookup.
	ErrTokenNotFound = errors.Wrap(errors.ErrNotFound, "token not found")

	// ErrGroupNotFound indicates no stored token group matches the lookup.
	ErrGroupNotFound = errors.Wrap(errors.ErrNotFound, "token group not found")

	// ErrTokenRevoked indicates the token has been revoked.
	ErrTokenRevoked = errors.Wrap(errors.ErrUnauthorized, "token has been revoked")

	// ErrTokenExpired indicates the token has expired.
	ErrTokenExpired = errors.Wrap(errors.ErrUnauthorized, "token has expired")

	// ErrIPRestricted indicates the request IP is not in the token's allow list.
	ErrIPRestricted = errors.Wrap(errors.ErrForbidden, "request ip is not allowed")

	// ErrDomainRestricted indicates the request origin is missing or not in the token's allow list.
	ErrDomainRestricted = errors.Wrap(errors.ErrForbidden, "request origin is not allowed")

	// ErrInvalidDerivedAbilities indicates requested child abilities exceed the parent's.
	ErrInvalidDerivedAbilities = errors.Wrap(errors.ErrInvalidInput, "derived abilities must be a subset of the parent abilities")

	// ErrInvalidDerivedExpiration indicates the requested child expiration outlives the parent.
	ErrInvalidDerivedExpiration = errors.Wrap(errors.ErrInvalidInput, "derived expiration must not exceed the parent expiration")

	// ErrUnknownTokenType indicates a token type that is not configured.
	ErrUnknownTokenType = errors.Wrap(errors.ErrInvalidInput, "unknown token type")

	// ErrEnvironmentNotAllowed indicates the environment is not allowed for the token type.
	ErrEnvironmentNotAllowed = errors.Wrap(errors.ErrInvalidInput, "environment not allowed for token type")

	// ErrInvalidTokenSegment indicates an empty prefix/environment or one containing the delimiter.
	ErrInvalidTokenSegment = errors.Wrap(errors.ErrInvalidInput, "token segment must be non-empty and must not contain the delimiter")

	// ErrDuplicatePrefix indicates two token types share the same prefix.
	ErrDuplicatePrefix = errors.Wrap(errors.ErrConflict, "token prefix already in use")

	// ErrInvalidRestriction indicates a malformed IP/CIDR or domain pattern.
	ErrInvalidRestriction = errors.Wrap(errors.ErrInvalidInput, "invalid restriction")

	// ErrTokenAlreadyRotated indicates the token was already replaced by a newer one.
	ErrTokenAlreadyRotated = errors.Wrap(errors.ErrConflict, "token has already been rotated")

	// ErrInvalidRateLimit indicates a non-positive per-minute rate limit.
	ErrInvalidRateLimit = errors.Wrap(errors.ErrInvalidInput, "rate limit must be a positive number of requests per minute")

	// ErrCannotDerive is the sentinel matched by CannotDeriveError.
	ErrCannotDerive = errors.Wrap(errors.ErrInvalidInput, "cannot derive token")

	// ErrServerSideOnly indicates a server-side-only token presented from a browser origin.
	ErrServerSideOnly = errors.Wrap(errors.ErrForbidden, "token type may only be used server-side")

	// ErrRateLimitExceeded is the sentinel matched by RateLimitExceededError.
	ErrRateLimitExceeded = errors.Wrap(errors.ErrTooManyRequests, "rate limit exceeded")
)

// Reasons reported by CannotDeriveError.
const (
	ReasonDerivationDisabled = "derivation is disabled"
	ReasonParentRevoked      = "parent token is revoked"
	ReasonParentExpired      = "parent token is expired"
	ReasonMaxDepthExceeded   = "maximum derivation depth exceeded"
)

// CannotDeriveError reports why a parent token cannot derive children.
type CannotDeriveError struct {
	Reason string
}

func (e *CannotDeriveError) Error() string {
	return fmt.Sprintf("cannot derive token: %s", e.Reason)
}

// Is lets errors.Is match ErrCannotDerive and its wrapped sentinels.
func (e *CannotDeriveError) Is(target error) bool {
	return target == ErrCannotDerive || target == errors.ErrInvalidInput
}

// RateLimitExceededError reports a rejected attempt and when to retry.
type RateLimitExceededError struct {
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Is lets errors.Is match ErrRateLimitExceeded and its wrapped sentinels.
func (e *RateLimitExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded || target == errors.ErrTooManyRequests
}
