package usecase

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/allisson/apikeys/internal/apikey/domain"
)

// DerivationConfig holds the derivation policy.
type DerivationConfig struct {
	Enabled bool

	// MaxDepth is the deepest level a derived token may sit at. Roots are at depth 0.
	MaxDepth int

	// InheritRestrictions makes the parent's IP, domain and rate limit restrictions
	// mandatory for children. When false they are only defaults a child may override.
	InheritRestrictions bool

	EnforceAbilitySubset bool

	// EnforceExpiration rejects children without an expiration under an expiring parent.
	EnforceExpiration bool
}

// DefaultDerivationConfig returns the policy used when nothing is configured.
func DefaultDerivationConfig() DerivationConfig {
	return DerivationConfig{
		Enabled:              true,
		MaxDepth:             3,
		InheritRestrictions:  true,
		EnforceAbilitySubset: true,
		EnforceExpiration:    true,
	}
}

// Hierarchy validates derivations and traverses the derivation tree.
type Hierarchy struct {
	repo   TokenRepository
	config DerivationConfig
}

// NewHierarchy creates a hierarchy over the token store.
func NewHierarchy(repo TokenRepository, config DerivationConfig) *Hierarchy {
	return &Hierarchy{repo: repo, config: config}
}

// Config returns the derivation policy.
func (h *Hierarchy) Config() DerivationConfig {
	return h.config
}

// Parent returns the direct parent of token, or nil for a root.
func (h *Hierarchy) Parent(ctx context.Context, token *domain.Token) (*domain.Token, error) {
	if token.IsRoot() {
		return nil, nil
	}
	return h.repo.Get(ctx, *token.ParentID)
}

// Children returns the direct children of token.
func (h *Hierarchy) Children(ctx context.Context, token *domain.Token) ([]*domain.Token, error) {
	return h.repo.ListChildren(ctx, token.ID)
}

// Descendants returns every token below token, bounded by the configured maximum depth.
func (h *Hierarchy) Descendants(ctx context.Context, token *domain.Token) ([]*domain.Token, error) {
	return h.repo.ListDescendants(ctx, token.ID, h.traversalLimit(token))
}

// IsRoot reports whether token has no parent.
func (h *Hierarchy) IsRoot(token *domain.Token) bool {
	return token.IsRoot()
}

// Depth returns the distance from token to its root.
func (h *Hierarchy) Depth(token *domain.Token) int {
	return token.Depth
}

// traversalLimit is the number of levels that can exist below token.
func (h *Hierarchy) traversalLimit(token *domain.Token) int {
	limit := h.config.MaxDepth - token.Depth
	if limit < 0 {
		return 0
	}
	return limit
}

// CanDerive reports why parent cannot derive children at now, or nil when it can.
func (h *Hierarchy) CanDerive(parent *domain.Token, now time.Time) error {
	switch {
	case !h.config.Enabled:
		return &domain.CannotDeriveError{Reason: domain.ReasonDerivationDisabled}
	case parent.IsRevokedAt(now):
		return &domain.CannotDeriveError{Reason: domain.ReasonParentRevoked}
	case parent.IsExpiredAt(now):
		return &domain.CannotDeriveError{Reason: domain.ReasonParentExpired}
	case parent.Depth+1 > h.config.MaxDepth:
		return &domain.CannotDeriveError{Reason: domain.ReasonMaxDepthExceeded}
	}
	return nil
}

// Prepare validates a derivation request and returns the child token without
// identity or secret material. Nothing is persisted.
func (h *Hierarchy) Prepare(parent *domain.Token, input *domain.DeriveTokenInput, now time.Time) (*domain.Token, error) {
	if err := h.CanDerive(parent, now); err != nil {
		return nil, err
	}

	abilities := parent.Abilities
	if input.Abilities != nil {
		abilities = domain.NewAbilities(input.Abilities...)
		if h.config.EnforceAbilitySubset && !domain.IsSubset(abilities, parent.Abilities) {
			return nil, domain.ErrInvalidDerivedAbilities
		}
	}

	if input.RateLimitPerMinute != nil && *input.RateLimitPerMinute <= 0 {
		return nil, domain.ErrInvalidRateLimit
	}

	if err := h.validateExpiration(parent, input.ExpiresAt); err != nil {
		return nil, err
	}

	allowedIPs, allowedDomains, rateLimit := h.resolveRestrictions(parent, input)
	if err := domain.ValidateRestrictions(allowedIPs, allowedDomains); err != nil {
		return nil, err
	}

	parentID := parent.ID
	child := &domain.Token{
		Name:               input.Name,
		Prefix:             parent.Prefix,
		Environment:        parent.Environment,
		Type:               parent.Type,
		Abilities:          abilities,
		AllowedIPs:         allowedIPs,
		AllowedDomains:     allowedDomains,
		RateLimitPerMinute: rateLimit,
		ParentID:           &parentID,
		Depth:              parent.Depth + 1,
		Owner:              parent.Owner.Clone(),
		Context:            parent.Context.Clone(),
		Boundary:           parent.Boundary.Clone(),
		Metadata:           maps.Clone(parent.Metadata),
		DerivedMetadata:    maps.Clone(input.DerivedMetadata),
	}
	if input.ExpiresAt != nil {
		expiresAt := input.ExpiresAt.UTC()
		child.ExpiresAt = &expiresAt
	}
	if input.Context != nil {
		child.Context = input.Context.Clone()
	}
	return child, nil
}

func (h *Hierarchy) validateExpiration(parent *domain.Token, childExpiresAt *time.Time) error {
	if parent.ExpiresAt == nil {
		return nil
	}
	if childExpiresAt == nil {
		if h.config.EnforceExpiration {
			return domain.ErrInvalidDerivedExpiration
		}
		return nil
	}
	if childExpiresAt.After(*parent.ExpiresAt) {
		return domain.ErrInvalidDerivedExpiration
	}
	return nil
}

// resolveRestrictions applies the inheritance policy. With mandatory inheritance a
// parent restriction always wins and a child rate limit may only be lower.
func (h *Hierarchy) resolveRestrictions(
	parent *domain.Token,
	input *domain.DeriveTokenInput,
) ([]string, []string, *int) {
	pick := func(parentValue, override []string) []string {
		if override == nil {
			return slices.Clone(parentValue)
		}
		if h.config.InheritRestrictions && len(parentValue) > 0 {
			return slices.Clone(parentValue)
		}
		return slices.Clone(override)
	}

	allowedIPs := pick(parent.AllowedIPs, input.AllowedIPs)
	allowedDomains := pick(parent.AllowedDomains, input.AllowedDomains)

	var rateLimit *int
	switch {
	case input.RateLimitPerMinute == nil:
		rateLimit = cloneIntPtr(parent.RateLimitPerMinute)
	case h.config.InheritRestrictions && parent.RateLimitPerMinute != nil:
		limit := min(*input.RateLimitPerMinute, *parent.RateLimitPerMinute)
		rateLimit = &limit
	default:
		rateLimit = cloneIntPtr(input.RateLimitPerMinute)
	}

	return allowedIPs, allowedDomains, rateLimit
}

func cloneIntPtr(i *int) *int {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
