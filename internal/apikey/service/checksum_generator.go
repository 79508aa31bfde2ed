package service

import (
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/hashicorp/go-secure-stdlib/base62"
)

const (
	base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// checksumLength is the width of the base62 CRC32 suffix. 62^6 > 2^32.
	checksumLength = 6
)

type checksumGenerator struct {
	entropyLength int
}

// NewChecksumGenerator creates a generator of base62 secrets of the given total length:
// random characters followed by a fixed-width CRC32 checksum of those characters. The
// checksum lets callers reject mistyped or truncated secrets without a store lookup; it
// carries no security weight. Returns an error if length is less than 24 or greater than 255.
func NewChecksumGenerator(length int) (SecretGenerator, error) {
	if length < MinSecretLength {
		return nil, fmt.Errorf("length must be at least %d", MinSecretLength)
	}
	if length > MaxSecretLength {
		return nil, fmt.Errorf("length must not exceed %d", MaxSecretLength)
	}
	return &checksumGenerator{entropyLength: length - checksumLength}, nil
}

// Generate creates a random base62 string and appends its checksum.
func (g *checksumGenerator) Generate() (string, error) {
	entropy, err := base62.Random(g.entropyLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate random entropy: %w", err)
	}
	return entropy + encodeChecksum(entropy), nil
}

// Validate checks the alphabet, the length and the trailing checksum.
func (g *checksumGenerator) Validate(secret string) error {
	if len(secret) != g.entropyLength+checksumLength {
		return fmt.Errorf("secret must be %d characters", g.entropyLength+checksumLength)
	}
	for _, c := range secret {
		if !strings.ContainsRune(base62Chars, c) {
			return errors.New("secret must contain only base62 characters")
		}
	}
	entropy, sum := secret[:g.entropyLength], secret[g.entropyLength:]
	if encodeChecksum(entropy) != sum {
		return errors.New("secret checksum mismatch")
	}
	return nil
}

// encodeChecksum renders the CRC32 of s as a zero-padded base62 string.
func encodeChecksum(s string) string {
	n := uint64(crc32.ChecksumIEEE([]byte(s)))
	out := make([]byte, checksumLength)
	for i := checksumLength - 1; i >= 0; i-- {
		out[i] = base62Chars[n%62]
		n /= 62
	}
	return string(out)
}
