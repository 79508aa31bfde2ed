// Package audit emits structured audit events for token lifecycle operations and
// authentication attempts. Events fan out to pluggable drivers; storage is a driver concern.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies what happened to a token.
type EventKind string

// Audit event kinds.
const (
	KindCreated       EventKind = "created"
	KindAuthenticated EventKind = "authenticated"
	KindRevoked       EventKind = "revoked"
	KindRotated       EventKind = "rotated"
	KindDerived       EventKind = "derived"
	KindFailed        EventKind = "failed"
	KindExpired       EventKind = "expired"
	KindRateLimited   EventKind = "rate_limited"
	KindIPBlocked     EventKind = "ip_blocked"
	KindDomainBlocked EventKind = "domain_blocked"
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a single audit record. TokenID is nil when the presented token could not
// be resolved to a stored record.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	TokenID   *uuid.UUID     `json:"token_id,omitempty"`
	Kind      EventKind      `json:"kind"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Signature []byte         `json:"signature,omitempty"`
}

// NewEvent creates an event for tokenID. A uuid.Nil tokenID leaves TokenID unset.
func NewEvent(kind EventKind, tokenID uuid.UUID, metadata map[string]any) *Event {
	event := &Event{
		Kind:     kind,
		Metadata: metadata,
	}
	if tokenID != uuid.Nil {
		event.TokenID = &tokenID
	}
	return event
}
