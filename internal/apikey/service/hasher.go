package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"hash"

	"golang.org/x/crypto/blake2b"

	"github.com/allisson/apikeys/internal/registry"
)

// Hasher names.
const (
	HasherSHA256     = "sha256"
	HasherSHA512     = "sha512"
	HasherBLAKE2b256 = "blake2b256"
	HasherHMACSHA256 = "hmac_sha256"
)

// digestHasher implements TokenHasher over any hash.Hash constructor.
type digestHasher struct {
	name    string
	newHash func() hash.Hash
}

// NewSHA256Hasher creates a hasher producing hex SHA-256 digests.
func NewSHA256Hasher() TokenHasher {
	return &digestHasher{name: HasherSHA256, newHash: sha256.New}
}

// NewSHA512Hasher creates a hasher producing hex SHA-512 digests.
func NewSHA512Hasher() TokenHasher {
	return &digestHasher{name: HasherSHA512, newHash: sha512.New}
}

// NewBLAKE2b256Hasher creates a hasher producing hex BLAKE2b-256 digests.
func NewBLAKE2b256Hasher() TokenHasher {
	return &digestHasher{name: HasherBLAKE2b256, newHash: func() hash.Hash {
		h, _ := blake2b.New256(nil) // only fails for keys longer than 64 bytes
		return h
	}}
}

// NewHMACSHA256Hasher creates a keyed hasher. The pepper is a server-side secret kept
// outside the token store, so a leaked store alone cannot be brute-forced.
func NewHMACSHA256Hasher(pepper []byte) (TokenHasher, error) {
	if len(pepper) < 16 {
		return nil, errors.New("pepper must be at least 16 bytes")
	}
	key := append([]byte(nil), pepper...)
	return &digestHasher{name: HasherHMACSHA256, newHash: func() hash.Hash {
		return hmac.New(sha256.New, key)
	}}, nil
}

func (h *digestHasher) Name() string {
	return h.name
}

func (h *digestHasher) sum(plainToken string) []byte {
	d := h.newHash()
	d.Write([]byte(plainToken))
	return d.Sum(nil)
}

// Hash returns the hex digest of plainToken.
func (h *digestHasher) Hash(plainToken string) string {
	return hex.EncodeToString(h.sum(plainToken))
}

// Verify compares digests in constant time. A digest that is not valid hex never matches.
func (h *digestHasher) Verify(plainToken, digest string) bool {
	expected, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(h.sum(plainToken), expected) == 1
}

// NewHasherRegistry registers the built-in hashers and makes defaultName the default.
// The HMAC hasher is only registered when a pepper is supplied.
func NewHasherRegistry(pepper []byte, defaultName string) (*registry.Registry[TokenHasher], error) {
	hashers := registry.New[TokenHasher]("token hasher")
	hashers.Register(HasherSHA256, NewSHA256Hasher())
	hashers.Register(HasherSHA512, NewSHA512Hasher())
	hashers.Register(HasherBLAKE2b256, NewBLAKE2b256Hasher())

	if len(pepper) > 0 {
		keyed, err := NewHMACSHA256Hasher(pepper)
		if err != nil {
			return nil, err
		}
		hashers.Register(HasherHMACSHA256, keyed)
	}

	if defaultName != "" {
		if err := hashers.SetDefault(defaultName); err != nil {
			return nil, err
		}
	}
	return hashers, nil
}
