// Package validation provides custom validation rules for the application.
package validation

import (
	"encoding/base64"
	"fmt"

	validation "github.com/jellydator/validation"
)

// Base64 validates that a string is valid base64-encoded data.
var Base64 = Base64MinBytes(0)

// Base64MinBytes validates that a string is base64-encoded and decodes to at least
// minBytes bytes. Used for key material such as the hash pepper and the audit signing key.
func Base64MinBytes(minBytes int) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, ok := value.(string)
		if !ok {
			return validation.NewError("validation_base64_type", "must be a string")
		}
		if s == "" {
			return nil // Let Required handle empty strings
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return validation.NewError("validation_base64", "must be valid base64-encoded data")
		}
		if len(decoded) < minBytes {
			return validation.NewError(
				"validation_base64_length",
				fmt.Sprintf("must decode to at least %d bytes", minBytes),
			)
		}
		return nil
	})
}
