package service

import (
	"fmt"
	"strings"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/registry"
)

// Codec builds and parses plaintext tokens of the form prefix_environment_secret.
type Codec struct {
	generators *registry.Registry[SecretGenerator]
}

// NewCodec creates a codec drawing secrets from the given generator registry.
func NewCodec(generators *registry.Registry[SecretGenerator]) *Codec {
	return &Codec{generators: generators}
}

// Generate builds a new plaintext token using the default secret generator.
func (c *Codec) Generate(prefix, environment string) (string, error) {
	return c.GenerateWith("", prefix, environment)
}

// GenerateWith builds a new plaintext token using the named secret generator.
// An empty name selects the default generator.
func (c *Codec) GenerateWith(generator, prefix, environment string) (string, error) {
	if !validSegment(prefix) || !validSegment(environment) {
		return "", domain.ErrInvalidTokenSegment
	}

	gen, err := c.generators.Resolve(generator)
	if err != nil {
		return "", err
	}

	secret, err := gen.Generate()
	if err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	if !validSegment(secret) {
		return "", fmt.Errorf("generator produced an invalid secret segment")
	}

	return prefix + domain.TokenDelimiter + environment + domain.TokenDelimiter + secret, nil
}

// Parse splits a plaintext token into its components. It reports false when the
// token does not have exactly three non-empty segments.
func (c *Codec) Parse(plainToken string) (domain.TokenComponents, bool) {
	return ParseToken(plainToken)
}

// ParseToken is the stateless form of Codec.Parse.
func ParseToken(plainToken string) (domain.TokenComponents, bool) {
	parts := strings.Split(plainToken, domain.TokenDelimiter)
	if len(parts) != 3 {
		return domain.TokenComponents{}, false
	}
	for _, part := range parts {
		if part == "" {
			return domain.TokenComponents{}, false
		}
	}
	return domain.TokenComponents{
		Prefix:      parts[0],
		Environment: parts[1],
		Secret:      parts[2],
		FullToken:   plainToken,
	}, true
}

func validSegment(s string) bool {
	return s != "" && !strings.Contains(s, domain.TokenDelimiter)
}
