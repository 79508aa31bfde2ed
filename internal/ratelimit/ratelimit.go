// Package ratelimit provides per-key request limiters with an atomic
// check-and-consume primitive. Limits are expressed in requests per minute.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrInvalidLimit is returned for non-positive limits or empty keys.
var ErrInvalidLimit = errors.New("rate limit key must be non-empty and limit must be positive")

// Decision is the outcome of a single check-and-consume call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter consumes one unit from the bucket identified by key when capacity allows.
// Implementations must make the check and the consumption a single atomic step.
type Limiter interface {
	Allow(ctx context.Context, key string, perMinute int) (Decision, error)
}
