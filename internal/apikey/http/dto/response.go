package dto

import (
	"time"

	"github.com/allisson/apikeys/internal/apikey/domain"
)

// TokenResponse represents a token in API responses. The digest is never exposed.
type TokenResponse struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Type               string            `json:"type"`
	Prefix             string            `json:"prefix"`
	Environment        string            `json:"environment"`
	Abilities          []string          `json:"abilities"`
	AllowedIPs         []string          `json:"allowed_ips,omitempty"`
	AllowedDomains     []string          `json:"allowed_domains,omitempty"`
	RateLimitPerMinute *int              `json:"rate_limit_per_minute,omitempty"`
	ExpiresAt          *time.Time        `json:"expires_at,omitempty"`
	RevokedAt          *time.Time        `json:"revoked_at,omitempty"`
	LastUsedAt         *time.Time        `json:"last_used_at,omitempty"`
	RotatedAt          *time.Time        `json:"rotated_at,omitempty"`
	GroupID            *string           `json:"group_id,omitempty"`
	ParentID           *string           `json:"parent_id,omitempty"`
	Depth              int               `json:"depth"`
	ReplacesID         *string           `json:"replaces_id,omitempty"`
	ReplacedByID       *string           `json:"replaced_by_id,omitempty"`
	Owner              *domain.EntityRef `json:"owner,omitempty"`
	Context            *domain.EntityRef `json:"context,omitempty"`
	Boundary           *domain.EntityRef `json:"boundary,omitempty"`
	Metadata           map[string]any    `json:"metadata,omitempty"`
	DerivedMetadata    map[string]any    `json:"derived_metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// MapTokenToResponse converts a domain token to an API response.
func MapTokenToResponse(token *domain.Token) TokenResponse {
	response := TokenResponse{
		ID:                 token.ID.String(),
		Name:               token.Name,
		Type:               token.Type.String(),
		Prefix:             token.Prefix,
		Environment:        token.Environment,
		Abilities:          token.Abilities.List(),
		AllowedIPs:         token.AllowedIPs,
		AllowedDomains:     token.AllowedDomains,
		RateLimitPerMinute: token.RateLimitPerMinute,
		ExpiresAt:          token.ExpiresAt,
		RevokedAt:          token.RevokedAt,
		LastUsedAt:         token.LastUsedAt,
		RotatedAt:          token.RotatedAt,
		Depth:              token.Depth,
		Owner:              token.Owner,
		Context:            token.Context,
		Boundary:           token.Boundary,
		Metadata:           token.Metadata,
		DerivedMetadata:    token.DerivedMetadata,
		CreatedAt:          token.CreatedAt,
	}
	if token.GroupID != nil {
		id := token.GroupID.String()
		response.GroupID = &id
	}
	if token.ParentID != nil {
		id := token.ParentID.String()
		response.ParentID = &id
	}
	if token.ReplacesID != nil {
		id := token.ReplacesID.String()
		response.ReplacesID = &id
	}
	if token.ReplacedByID != nil {
		id := token.ReplacedByID.String()
		response.ReplacedByID = &id
	}
	return response
}

// ListTokensResponse represents a list of tokens in API responses.
type ListTokensResponse struct {
	Data []TokenResponse `json:"data"`
}

// MapTokensToListResponse converts a slice of domain tokens to a list API response.
func MapTokensToListResponse(tokens []*domain.Token) ListTokensResponse {
	responses := make([]TokenResponse, 0, len(tokens))
	for _, token := range tokens {
		responses = append(responses, MapTokenToResponse(token))
	}
	return ListTokensResponse{
		Data: responses,
	}
}

// IssueTokenResponse contains the result of issuing or deriving a token.
// SECURITY: The plaintext token is only returned once and must be saved securely.
type IssueTokenResponse struct {
	Token  string        `json:"token"` //nolint:gosec // returned once on creation
	APIKey TokenResponse `json:"api_key"`
}

// MapIssueOutputToResponse converts an issuance result to an API response.
func MapIssueOutputToResponse(output *domain.IssueTokenOutput) IssueTokenResponse {
	return IssueTokenResponse{
		Token:  output.PlainToken,
		APIKey: MapTokenToResponse(output.Token),
	}
}

// GroupResponse represents a token group with its members.
type GroupResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Owner     *domain.EntityRef `json:"owner,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Tokens    []TokenResponse   `json:"tokens"`
}

// MapGroupToResponse converts a domain group to an API response.
func MapGroupToResponse(group *domain.TokenGroup) GroupResponse {
	return GroupResponse{
		ID:        group.ID.String(),
		Name:      group.Name,
		Owner:     group.Owner,
		CreatedAt: group.CreatedAt,
		Tokens:    MapTokensToListResponse(group.Tokens).Data,
	}
}

// IssueGroupResponse contains the issued group and each member's plaintext keyed by type.
// SECURITY: The plaintext tokens are only returned once and must be saved securely.
type IssueGroupResponse struct {
	Group  GroupResponse     `json:"group"`
	Tokens map[string]string `json:"tokens"`
}

// MapIssueGroupOutputToResponse converts a group issuance result to an API response.
func MapIssueGroupOutputToResponse(output *domain.IssueGroupOutput) IssueGroupResponse {
	plainTokens := make(map[string]string, len(output.PlainTokens))
	for tokenType, plain := range output.PlainTokens {
		plainTokens[tokenType.String()] = plain
	}
	return IssueGroupResponse{
		Group:  MapGroupToResponse(output.Group),
		Tokens: plainTokens,
	}
}

// RevokeTokenResponse lists the tokens a revocation changed or would change.
type RevokeTokenResponse struct {
	Strategy string          `json:"strategy,omitempty"`
	Affected []TokenResponse `json:"affected"`
}

// MapRevokedTokensToResponse converts the affected tokens of a revocation to an API response.
func MapRevokedTokensToResponse(strategy string, tokens []*domain.Token) RevokeTokenResponse {
	return RevokeTokenResponse{
		Strategy: strategy,
		Affected: MapTokensToListResponse(tokens).Data,
	}
}

// RotateTokenResponse contains both ends of a rotation.
// SECURITY: The plaintext token is only returned once and must be saved securely.
type RotateTokenResponse struct {
	Strategy string        `json:"strategy"`
	Token    string        `json:"token"` //nolint:gosec // returned once on creation
	OldToken TokenResponse `json:"old_token"`
	NewToken TokenResponse `json:"new_token"`
}

// MapRotateOutputToResponse converts a rotation result to an API response.
func MapRotateOutputToResponse(output *domain.RotateTokenOutput) RotateTokenResponse {
	return RotateTokenResponse{
		Strategy: output.Strategy,
		Token:    output.PlainToken,
		OldToken: MapTokenToResponse(output.OldToken),
		NewToken: MapTokenToResponse(output.NewToken),
	}
}
