// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/apikey/service"
	customValidation "github.com/allisson/apikeys/internal/validation"
)

// EntityRefRequest references an external owner, context or boundary entity.
type EntityRefRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Validate checks if the entity reference is valid.
func (r EntityRefRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Kind, validation.Required, customValidation.NotBlank, validation.Length(1, 100)),
		validation.Field(&r.ID, validation.Required, customValidation.NotBlank, validation.Length(1, 255)),
	)
}

// ToDomain converts the request into a domain reference. A nil request yields nil.
func (r *EntityRefRequest) ToDomain() *domain.EntityRef {
	if r == nil {
		return nil
	}
	return domain.NewEntityRef(r.Kind, r.ID)
}

// IssueTokenRequest contains the parameters for issuing a root token.
type IssueTokenRequest struct {
	Type               string            `json:"type"`
	Environment        string            `json:"environment"`
	Name               string            `json:"name"`
	Abilities          []string          `json:"abilities"`
	AllowedIPs         []string          `json:"allowed_ips"`
	AllowedDomains     []string          `json:"allowed_domains"`
	RateLimitPerMinute *int              `json:"rate_limit_per_minute"`
	ExpiresAt          *time.Time        `json:"expires_at"`
	Owner              *EntityRefRequest `json:"owner"`
	Context            *EntityRefRequest `json:"context"`
	Boundary           *EntityRefRequest `json:"boundary"`
	Metadata           map[string]any    `json:"metadata"`
	Generator          string            `json:"generator"`
}

// Validate checks if the issue token request is valid.
func (r *IssueTokenRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Type,
			validation.Required,
			customValidation.TokenSegment,
		),
		validation.Field(&r.Environment,
			validation.Required,
			customValidation.TokenSegment,
		),
		validation.Field(&r.Name,
			customValidation.NoWhitespace,
			validation.Length(0, 255),
		),
		validation.Field(&r.Abilities,
			validation.Each(validation.Required, customValidation.Ability),
		),
		validation.Field(&r.AllowedIPs,
			validation.By(validateRestrictions(restrictionIPs)),
		),
		validation.Field(&r.AllowedDomains,
			validation.By(validateRestrictions(restrictionDomains)),
		),
		validation.Field(&r.RateLimitPerMinute,
			validation.NilOrNotEmpty,
			validation.Min(1),
		),
		validation.Field(&r.Owner),
		validation.Field(&r.Context),
		validation.Field(&r.Boundary),
		validation.Field(&r.Generator,
			validation.In(
				service.GeneratorAlphanumeric,
				service.GeneratorChecksum,
				service.GeneratorUUID,
			),
		),
	)
}

// ToDomain converts the request into use case input.
func (r *IssueTokenRequest) ToDomain() *domain.IssueTokenInput {
	return &domain.IssueTokenInput{
		Type:               domain.TokenType(r.Type),
		Environment:        r.Environment,
		Name:               r.Name,
		Abilities:          r.Abilities,
		AllowedIPs:         r.AllowedIPs,
		AllowedDomains:     r.AllowedDomains,
		RateLimitPerMinute: r.RateLimitPerMinute,
		ExpiresAt:          r.ExpiresAt,
		Owner:              r.Owner.ToDomain(),
		Context:            r.Context.ToDomain(),
		Boundary:           r.Boundary.ToDomain(),
		Metadata:           r.Metadata,
		Generator:          r.Generator,
	}
}

// IssueGroupRequest contains the parameters for issuing a sibling token group.
type IssueGroupRequest struct {
	Name        string            `json:"name"`
	Environment string            `json:"environment"`
	Types       []string          `json:"types"`
	AllowedIPs  []string          `json:"allowed_ips"`
	Owner       *EntityRefRequest `json:"owner"`
	Context     *EntityRefRequest `json:"context"`
	Boundary    *EntityRefRequest `json:"boundary"`
	Metadata    map[string]any    `json:"metadata"`
}

// Validate checks if the issue group request is valid.
func (r *IssueGroupRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 255),
		),
		validation.Field(&r.Environment,
			validation.Required,
			customValidation.TokenSegment,
		),
		validation.Field(&r.Types,
			validation.Each(validation.Required, customValidation.TokenSegment),
		),
		validation.Field(&r.AllowedIPs,
			validation.By(validateRestrictions(restrictionIPs)),
		),
		validation.Field(&r.Owner),
		validation.Field(&r.Context),
		validation.Field(&r.Boundary),
	)
}

// ToDomain converts the request into use case input.
func (r *IssueGroupRequest) ToDomain() *domain.IssueGroupInput {
	var types []domain.TokenType
	for _, t := range r.Types {
		types = append(types, domain.TokenType(t))
	}
	return &domain.IssueGroupInput{
		Name:        r.Name,
		Environment: r.Environment,
		Types:       types,
		AllowedIPs:  r.AllowedIPs,
		Owner:       r.Owner.ToDomain(),
		Context:     r.Context.ToDomain(),
		Boundary:    r.Boundary.ToDomain(),
		Metadata:    r.Metadata,
	}
}

// StrategyRequest names the revocation or rotation strategy to apply.
// An empty strategy selects the token type default.
type StrategyRequest struct {
	Strategy string `json:"strategy"`
}

// Validate checks if the strategy request is valid.
func (r *StrategyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Strategy,
			customValidation.NoWhitespace,
			validation.Length(0, 64),
		),
	)
}

// DeriveTokenRequest contains the parameters for deriving a child token.
// Omitted restriction fields inherit the parent's values when inheritance applies.
type DeriveTokenRequest struct {
	Name               string            `json:"name"`
	Abilities          []string          `json:"abilities"`
	ExpiresAt          *time.Time        `json:"expires_at"`
	AllowedIPs         []string          `json:"allowed_ips"`
	AllowedDomains     []string          `json:"allowed_domains"`
	RateLimitPerMinute *int              `json:"rate_limit_per_minute"`
	Context            *EntityRefRequest `json:"context"`
	DerivedMetadata    map[string]any    `json:"derived_metadata"`
}

// Validate checks if the derive token request is valid.
func (r *DeriveTokenRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name,
			customValidation.NoWhitespace,
			validation.Length(0, 255),
		),
		validation.Field(&r.Abilities,
			validation.Each(validation.Required, customValidation.Ability),
		),
		validation.Field(&r.AllowedIPs,
			validation.By(validateRestrictions(restrictionIPs)),
		),
		validation.Field(&r.AllowedDomains,
			validation.By(validateRestrictions(restrictionDomains)),
		),
		validation.Field(&r.RateLimitPerMinute,
			validation.NilOrNotEmpty,
			validation.Min(1),
		),
		validation.Field(&r.Context),
	)
}

// ToDomain converts the request into use case input.
func (r *DeriveTokenRequest) ToDomain() *domain.DeriveTokenInput {
	return &domain.DeriveTokenInput{
		Name:               r.Name,
		Abilities:          r.Abilities,
		ExpiresAt:          r.ExpiresAt,
		AllowedIPs:         r.AllowedIPs,
		AllowedDomains:     r.AllowedDomains,
		RateLimitPerMinute: r.RateLimitPerMinute,
		Context:            r.Context.ToDomain(),
		DerivedMetadata:    r.DerivedMetadata,
	}
}

type restrictionKind int

const (
	restrictionIPs restrictionKind = iota
	restrictionDomains
)

// validateRestrictions checks IP/CIDR entries or domain patterns with the same
// rules the use case applies, so malformed lists fail before reaching it.
func validateRestrictions(kind restrictionKind) validation.RuleFunc {
	return func(value interface{}) error {
		entries, ok := value.([]string)
		if !ok {
			return validation.NewError("validation_restriction_type", "must be a list of strings")
		}
		var err error
		if kind == restrictionIPs {
			err = domain.ValidateRestrictions(entries, nil)
		} else {
			err = domain.ValidateRestrictions(nil, entries)
		}
		if err != nil {
			return validation.NewError("validation_restriction", "contains an invalid entry")
		}
		return nil
	}
}
