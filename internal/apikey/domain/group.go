package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenGroup links sibling tokens issued together, e.g. a secret/publishable/restricted
// triplet, so a sibling can be found by type and the group revoked in bulk.
type TokenGroup struct {
	ID        uuid.UUID
	Name      string
	Owner     *EntityRef
	CreatedAt time.Time
	Tokens    []*Token
}

// ByType returns the first member of the given type, or nil.
func (g *TokenGroup) ByType(tokenType TokenType) *Token {
	for _, token := range g.Tokens {
		if token.Type == tokenType {
			return token
		}
	}
	return nil
}

// IssueGroupInput contains the parameters for issuing a sibling group.
// Empty Types issues one token of every built-in type.
type IssueGroupInput struct {
	Name        string
	Environment string
	Types       []TokenType
	AllowedIPs  []string
	Owner       *EntityRef
	Context     *EntityRef
	Boundary    *EntityRef
	Metadata    map[string]any
}

// IssueGroupOutput contains the issued group and each member's plaintext keyed by type.
// SECURITY: plaintexts are only returned once and must never be logged.
type IssueGroupOutput struct {
	Group       *TokenGroup
	PlainTokens map[TokenType]string
}
