package service

import (
	"github.com/allisson/apikeys/internal/registry"
)

// Secret generator names.
const (
	GeneratorAlphanumeric = "alphanumeric"
	GeneratorChecksum     = "checksum"
	GeneratorUUID         = "uuid"
)

// NewGeneratorRegistry registers the built-in secret generators and makes
// defaultName the default. length sizes the alphanumeric and checksum secrets.
func NewGeneratorRegistry(length int, defaultName string) (*registry.Registry[SecretGenerator], error) {
	alphanumeric, err := NewAlphanumericGenerator(length)
	if err != nil {
		return nil, err
	}
	checksum, err := NewChecksumGenerator(length)
	if err != nil {
		return nil, err
	}

	generators := registry.New[SecretGenerator]("secret generator")
	generators.Register(GeneratorAlphanumeric, alphanumeric)
	generators.Register(GeneratorChecksum, checksum)
	generators.Register(GeneratorUUID, NewUUIDGenerator())

	if defaultName != "" {
		if err := generators.SetDefault(defaultName); err != nil {
			return nil, err
		}
	}
	return generators, nil
}
