package domain

import (
	"slices"
	"sort"
	"strings"
	"time"
)

// TokenTypeConfig holds the per-type issuance and enforcement defaults.
type TokenTypeConfig struct {
	Type                  TokenType
	Prefix                string
	DefaultAbilities      []string
	DefaultExpiration     time.Duration // zero means tokens never expire by default
	RateLimitPerMinute    int           // zero means no per-type default
	EnvironmentRateLimits map[string]int
	AllowedEnvironments   []string // empty allows any environment
	ServerSideOnly        bool
	RevocationStrategy    string // empty uses the registry default
	RotationStrategy      string // empty uses the registry default
}

// AllowsEnvironment reports whether tokens of this type may be issued for env.
func (c TokenTypeConfig) AllowsEnvironment(env string) bool {
	return len(c.AllowedEnvironments) == 0 || slices.Contains(c.AllowedEnvironments, env)
}

// TypeCatalog indexes token type configurations by type and by prefix.
type TypeCatalog struct {
	byType   map[TokenType]TokenTypeConfig
	byPrefix map[string]TokenType
}

// NewTypeCatalog builds a catalog. Prefixes containing the token delimiter are rejected.
func NewTypeCatalog(configs ...TokenTypeConfig) (*TypeCatalog, error) {
	c := &TypeCatalog{
		byType:   make(map[TokenType]TokenTypeConfig, len(configs)),
		byPrefix: make(map[string]TokenType, len(configs)),
	}
	for _, cfg := range configs {
		if cfg.Type == "" || cfg.Prefix == "" || strings.Contains(cfg.Prefix, TokenDelimiter) {
			return nil, ErrInvalidTokenSegment
		}
		if _, exists := c.byPrefix[cfg.Prefix]; exists {
			return nil, ErrDuplicatePrefix
		}
		c.byType[cfg.Type] = cfg
		c.byPrefix[cfg.Prefix] = cfg.Type
	}
	return c, nil
}

// Get returns the configuration for a token type.
func (c *TypeCatalog) Get(tokenType TokenType) (TokenTypeConfig, error) {
	cfg, ok := c.byType[tokenType]
	if !ok {
		return TokenTypeConfig{}, ErrUnknownTokenType
	}
	return cfg, nil
}

// ByPrefix returns the configuration owning a wire prefix.
func (c *TypeCatalog) ByPrefix(prefix string) (TokenTypeConfig, bool) {
	tokenType, ok := c.byPrefix[prefix]
	if !ok {
		return TokenTypeConfig{}, false
	}
	return c.byType[tokenType], true
}

// Types returns the configured token types sorted by name.
func (c *TypeCatalog) Types() []TokenType {
	types := make([]TokenType, 0, len(c.byType))
	for t := range c.byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// DefaultTypeConfigs returns the built-in secret (sk), publishable (pk) and restricted (rk) types.
func DefaultTypeConfigs() []TokenTypeConfig {
	return []TokenTypeConfig{
		{
			Type:               TypeSecret,
			Prefix:             "sk",
			DefaultAbilities:   []string{WildcardAbility},
			ServerSideOnly:     true,
			RevocationStrategy: "cascade",
			RotationStrategy:   "grace_period",
		},
		{
			Type:               TypePublishable,
			Prefix:             "pk",
			DefaultAbilities:   []string{"read"},
			RevocationStrategy: "none",
			RotationStrategy:   "immediate",
		},
		{
			Type:               TypeRestricted,
			Prefix:             "rk",
			DefaultAbilities:   []string{},
			ServerSideOnly:     true,
			RevocationStrategy: "none",
			RotationStrategy:   "immediate",
		},
	}
}
