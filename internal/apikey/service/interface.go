// Package service provides the technical services behind API key issuance: the
// plaintext token codec, pluggable secret generators and one-way token hashers.
package service

import "context"

// SecretGenerator produces the random secret segment of a plaintext token.
// Implementations must draw from a cryptographically secure random source and must
// never emit the token delimiter.
type SecretGenerator interface {
	// Generate returns a new random secret.
	Generate() (string, error)

	// Validate checks that secret has the shape this generator produces.
	Validate(secret string) error
}

// TokenHasher derives the stored digest of a plaintext token.
// Hash must be deterministic so the digest can serve as a lookup key.
type TokenHasher interface {
	// Name returns the registry name of the hasher, persisted next to each digest.
	Name() string

	// Hash returns the hex-encoded digest of plainToken.
	Hash(plainToken string) string

	// Verify reports whether plainToken hashes to digest using a constant-time comparison.
	Verify(plainToken, digest string) bool
}

// KMSKeeper decrypts data wrapped by a KMS provider.
type KMSKeeper interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}
