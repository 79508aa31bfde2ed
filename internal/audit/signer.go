package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// ErrSignatureInvalid indicates an event whose signature does not match its content.
var ErrSignatureInvalid = errors.New("audit event signature is invalid")

// Signer signs audit events with HMAC-SHA256 under a key derived by HKDF-SHA256
// from a root key.
type Signer struct {
	signingKey []byte
}

// NewSigner derives the signing key from rootKey.
func NewSigner(rootKey []byte) (*Signer, error) {
	if len(rootKey) < 32 {
		return nil, errors.New("audit signing key must be at least 32 bytes")
	}

	kdf := hkdf.New(sha256.New, rootKey, nil, []byte("apikey-audit-signing-v1"))
	signingKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, signingKey); err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}

	return &Signer{signingKey: signingKey}, nil
}

// Sign returns the 32-byte signature of event. The Signature field itself is not signed.
func (s *Signer) Sign(event *Event) ([]byte, error) {
	canonical, err := canonicalizeEvent(event)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize event: %w", err)
	}

	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write(canonical)
	return mac.Sum(nil), nil
}

// Verify checks event.Signature against the event content.
func (s *Signer) Verify(event *Event) error {
	expected, err := s.Sign(event)
	if err != nil {
		return fmt.Errorf("failed to compute expected signature: %w", err)
	}
	if !hmac.Equal(event.Signature, expected) {
		return ErrSignatureInvalid
	}
	return nil
}

// canonicalizeEvent encodes the event as
// id || token_id || kind || ip || user_agent || metadata || timestamp
// with variable-length fields length-prefixed.
func canonicalizeEvent(event *Event) ([]byte, error) {
	buf := make([]byte, 0, 512)

	buf = append(buf, event.ID[:]...)
	tokenID := uuid.Nil
	if event.TokenID != nil {
		tokenID = *event.TokenID
	}
	buf = append(buf, tokenID[:]...)

	buf = appendLengthPrefixed(buf, []byte(event.Kind))
	buf = appendLengthPrefixed(buf, []byte(event.IPAddress))
	buf = appendLengthPrefixed(buf, []byte(event.UserAgent))

	if len(event.Metadata) > 0 {
		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		buf = appendLengthPrefixed(buf, metadata)
	} else {
		buf = appendLengthPrefixed(buf, nil)
	}

	buf = binary.BigEndian.AppendUint64(buf, uint64(event.Timestamp.UnixNano()))
	return buf, nil
}

// appendLengthPrefixed adds a 4-byte big-endian length prefix followed by data.
func appendLengthPrefixed(buf []byte, data []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}
