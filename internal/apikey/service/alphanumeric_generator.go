package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// unambiguousChars is [A-Za-z0-9] without 0, O, 1, l and I.
const unambiguousChars = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// Secret length bounds shared by the length-configurable generators.
const (
	DefaultSecretLength = 32
	MinSecretLength     = 24
	MaxSecretLength     = 255
)

type alphanumericGenerator struct {
	length int
}

// NewAlphanumericGenerator creates a generator of fixed-length secrets drawn from a
// visually unambiguous alphabet. Returns an error if length is less than 24 or greater than 255.
func NewAlphanumericGenerator(length int) (SecretGenerator, error) {
	if length < MinSecretLength {
		return nil, fmt.Errorf("length must be at least %d", MinSecretLength)
	}
	if length > MaxSecretLength {
		return nil, fmt.Errorf("length must not exceed %d", MaxSecretLength)
	}
	return &alphanumericGenerator{length: length}, nil
}

// Generate creates a cryptographically secure random secret of the configured length.
func (g *alphanumericGenerator) Generate() (string, error) {
	secret := make([]byte, g.length)
	charsLen := big.NewInt(int64(len(unambiguousChars)))

	for i := 0; i < g.length; i++ {
		n, err := rand.Int(rand.Reader, charsLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate random character: %w", err)
		}
		secret[i] = unambiguousChars[n.Int64()]
	}

	return string(secret), nil
}

// Validate checks the secret length and that every character belongs to the alphabet.
func (g *alphanumericGenerator) Validate(secret string) error {
	if len(secret) != g.length {
		return fmt.Errorf("secret must be %d characters", g.length)
	}
	for _, c := range secret {
		if !strings.ContainsRune(unambiguousChars, c) {
			return errors.New("secret contains an ambiguous or invalid character")
		}
	}
	return nil
}
