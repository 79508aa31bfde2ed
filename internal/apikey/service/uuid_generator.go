package service

import (
	"errors"

	"github.com/google/uuid"
)

type uuidGenerator struct{}

// NewUUIDGenerator creates a generator of random (version 4) UUID secrets in canonical form.
func NewUUIDGenerator() SecretGenerator {
	return &uuidGenerator{}
}

// Generate creates a new random UUID.
func (g *uuidGenerator) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Validate checks that the secret is a canonical random UUID.
func (g *uuidGenerator) Validate(secret string) error {
	id, err := uuid.Parse(secret)
	if err != nil || id.String() != secret {
		return errors.New("invalid UUID format")
	}
	if id.Version() != 4 {
		return errors.New("UUID must be version 4")
	}
	return nil
}
