package usecase

import (
	"github.com/allisson/apikeys/internal/apikey/domain"
)

// RateLimitPolicy holds the limits that apply when neither the token nor its type
// sets one. Zero means no limit at that level.
type RateLimitPolicy struct {
	GlobalPerMinute     int
	EnvironmentDefaults map[string]int
}

// RateLimitResolver picks the effective per-minute limit for a token.
type RateLimitResolver struct {
	catalog *domain.TypeCatalog
	policy  RateLimitPolicy
}

// NewRateLimitResolver creates a resolver over the type catalog and global policy.
func NewRateLimitResolver(catalog *domain.TypeCatalog, policy RateLimitPolicy) *RateLimitResolver {
	return &RateLimitResolver{catalog: catalog, policy: policy}
}

// Resolve returns the first positive limit in the order: token override, type and
// environment, type, environment, global. It reports false when no level sets one.
func (r *RateLimitResolver) Resolve(token *domain.Token) (int, bool) {
	if token.RateLimitPerMinute != nil && *token.RateLimitPerMinute > 0 {
		return *token.RateLimitPerMinute, true
	}

	if cfg, err := r.catalog.Get(token.Type); err == nil {
		if limit := cfg.EnvironmentRateLimits[token.Environment]; limit > 0 {
			return limit, true
		}
		if cfg.RateLimitPerMinute > 0 {
			return cfg.RateLimitPerMinute, true
		}
	}

	if limit := r.policy.EnvironmentDefaults[token.Environment]; limit > 0 {
		return limit, true
	}

	if r.policy.GlobalPerMinute > 0 {
		return r.policy.GlobalPerMinute, true
	}
	return 0, false
}
