// Package domain defines the API key domain model: typed tokens with abilities,
// restrictions, lifecycle timestamps, sibling groups and a derivation hierarchy.
package domain

// TokenType is the logical class of a token (secret, publishable, restricted, ...).
type TokenType string

// Built-in token types.
const (
	TypeSecret      TokenType = "secret"
	TypePublishable TokenType = "publishable"
	TypeRestricted  TokenType = "restricted"
)

// String returns the string representation of the token type.
func (t TokenType) String() string {
	return string(t)
}

// Standard environments.
const (
	EnvironmentTest = "test"
	EnvironmentLive = "live"
)

// TokenDelimiter separates the prefix, environment and secret segments of a plaintext token.
const TokenDelimiter = "_"

// WildcardAbility grants every ability.
const WildcardAbility = "*"
