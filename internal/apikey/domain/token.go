package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Token is an issued API credential. TokenHash holds the one-way digest of the
// plaintext; the plaintext itself is only returned once at creation.
//
// RevokedAt may hold a future instant when revocation was scheduled (timed
// revocation, rotation grace period). The token stays valid until that instant.
type Token struct {
	ID          uuid.UUID
	Name        string
	Prefix      string
	Environment string
	Type        TokenType
	TokenHash   string
	Hasher      string // name of the hasher that produced TokenHash

	Abilities          Abilities
	AllowedIPs         []string
	AllowedDomains     []string
	RateLimitPerMinute *int

	ExpiresAt  *time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
	RotatedAt  *time.Time

	GroupID      *uuid.UUID
	ParentID     *uuid.UUID
	Depth        int // distance from the root of the derivation tree, root is 0
	ReplacesID   *uuid.UUID
	ReplacedByID *uuid.UUID

	Owner    *EntityRef
	Context  *EntityRef
	Boundary *EntityRef

	Metadata        map[string]any
	DerivedMetadata map[string]any

	CreatedAt time.Time
}

// IsRevokedAt reports whether the revocation, if any, has taken effect at now.
func (t *Token) IsRevokedAt(now time.Time) bool {
	return t.RevokedAt != nil && !t.RevokedAt.After(now)
}

// IsExpiredAt reports whether the token has expired at now. A nil ExpiresAt never expires.
func (t *Token) IsExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// IsValidAt reports whether the token is neither revoked nor expired at now.
func (t *Token) IsValidAt(now time.Time) bool {
	return !t.IsRevokedAt(now) && !t.IsExpiredAt(now)
}

// IsRevocationScheduled reports whether a revocation is recorded but not yet effective.
func (t *Token) IsRevocationScheduled(now time.Time) bool {
	return t.RevokedAt != nil && t.RevokedAt.After(now)
}

// IsRoot reports whether the token has no derivation parent.
func (t *Token) IsRoot() bool {
	return t.ParentID == nil
}

// Can reports whether the token grants ability.
func (t *Token) Can(ability string) bool {
	return t.Abilities.Can(ability)
}

// MarkRevoked records a revocation effective at at. An existing revocation is only
// moved earlier, never later and never cleared. Returns true when RevokedAt changed.
func (t *Token) MarkRevoked(at time.Time) bool {
	if t.RevokedAt != nil && !at.Before(*t.RevokedAt) {
		return false
	}
	at = at.UTC()
	t.RevokedAt = &at
	return true
}

// Clone returns a deep copy of the token.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	c.AllowedIPs = slices.Clone(t.AllowedIPs)
	c.AllowedDomains = slices.Clone(t.AllowedDomains)
	c.Abilities = NewAbilities(t.Abilities.List()...)
	c.RateLimitPerMinute = cloneInt(t.RateLimitPerMinute)
	c.ExpiresAt = cloneTime(t.ExpiresAt)
	c.RevokedAt = cloneTime(t.RevokedAt)
	c.LastUsedAt = cloneTime(t.LastUsedAt)
	c.RotatedAt = cloneTime(t.RotatedAt)
	c.GroupID = cloneUUID(t.GroupID)
	c.ParentID = cloneUUID(t.ParentID)
	c.ReplacesID = cloneUUID(t.ReplacesID)
	c.ReplacedByID = cloneUUID(t.ReplacedByID)
	c.Owner = t.Owner.Clone()
	c.Context = t.Context.Clone()
	c.Boundary = t.Boundary.Clone()
	c.Metadata = maps.Clone(t.Metadata)
	c.DerivedMetadata = maps.Clone(t.DerivedMetadata)
	return &c
}

// IssueTokenInput contains the parameters for issuing a root token.
// Nil Abilities and ExpiresAt fall back to the token type defaults.
type IssueTokenInput struct {
	Type               TokenType
	Environment        string
	Name               string
	Abilities          []string
	AllowedIPs         []string
	AllowedDomains     []string
	RateLimitPerMinute *int
	ExpiresAt          *time.Time
	Owner              *EntityRef
	Context            *EntityRef
	Boundary           *EntityRef
	Metadata           map[string]any
	Generator          string // secret generator name, empty for the default
}

// IssueTokenOutput contains the issued token and its plaintext.
// SECURITY: PlainToken is only returned once and must never be logged.
type IssueTokenOutput struct {
	Token      *Token
	PlainToken string
}

// DeriveTokenInput contains the parameters for deriving a child token.
// Nil restriction fields inherit the parent's values when inheritance applies.
type DeriveTokenInput struct {
	Name               string
	Abilities          []string
	ExpiresAt          *time.Time
	AllowedIPs         []string
	AllowedDomains     []string
	RateLimitPerMinute *int
	Context            *EntityRef
	DerivedMetadata    map[string]any
}

// RotateTokenOutput contains both ends of a rotation.
// SECURITY: PlainToken is only returned once and must never be logged.
type RotateTokenOutput struct {
	OldToken   *Token
	NewToken   *Token
	PlainToken string
	Strategy   string
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
