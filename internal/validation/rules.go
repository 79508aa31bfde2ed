// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/apikeys/internal/errors"
)

var (
	// segmentRegex matches a token prefix or environment: no delimiter, no whitespace
	segmentRegex = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

	// abilityRegex matches "*" or a colon separated ability such as "tokens:manage"
	abilityRegex = regexp.MustCompile(`^(\*|[A-Za-z0-9][A-Za-z0-9._-]*(:[A-Za-z0-9*][A-Za-z0-9._*-]*)*)$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// TokenSegment validates a token prefix or environment name. The token delimiter
// "_" is rejected because it separates the segments of a plaintext token.
var TokenSegment = validation.NewStringRuleWithError(
	func(s string) bool {
		return segmentRegex.MatchString(s)
	},
	validation.NewError("validation_token_segment", "must contain only letters, digits and hyphens"),
)

// Ability validates a single ability name
var Ability = validation.NewStringRuleWithError(
	func(s string) bool {
		return abilityRegex.MatchString(s)
	},
	validation.NewError("validation_ability", "must be \"*\" or a name such as \"tokens:read\""),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)
