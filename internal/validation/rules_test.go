package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenSegment(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		shouldErr bool
	}{
		{name: "Success_Lowercase", input: "live", shouldErr: false},
		{name: "Success_WithHyphen", input: "eu-staging", shouldErr: false},
		{name: "Success_Digits", input: "sk2", shouldErr: false},
		{name: "Error_ContainsDelimiter", input: "live_eu", shouldErr: true},
		{name: "Error_ContainsSpace", input: "li ve", shouldErr: true},
		{name: "Error_Symbols", input: "live!", shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := TokenSegment.Validate(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAbility(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		shouldErr bool
	}{
		{name: "Success_Wildcard", input: "*", shouldErr: false},
		{name: "Success_Simple", input: "read", shouldErr: false},
		{name: "Success_Scoped", input: "tokens:manage", shouldErr: false},
		{name: "Success_ScopedWildcard", input: "tokens:*", shouldErr: false},
		{name: "Success_Nested", input: "billing:invoices:read", shouldErr: false},
		{name: "Error_Whitespace", input: "tokens manage", shouldErr: true},
		{name: "Error_LeadingColon", input: ":read", shouldErr: true},
		{name: "Error_TrailingColon", input: "tokens:", shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Ability.Validate(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNoWhitespace(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		shouldErr bool
	}{
		{
			name:      "no whitespace",
			input:     "validstring",
			shouldErr: false,
		},
		{
			name:      "leading whitespace",
			input:     " validstring",
			shouldErr: true,
		},
		{
			name:      "trailing whitespace",
			input:     "validstring ",
			shouldErr: true,
		},
		{
			name:      "both leading and trailing",
			input:     " validstring ",
			shouldErr: true,
		},
		{
			name:      "internal spaces allowed",
			input:     "valid string",
			shouldErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NoWhitespace.Validate(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNotBlank(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		shouldErr bool
	}{
		{
			name:      "valid string",
			input:     "validstring",
			shouldErr: false,
		},
		{
			name:      "only spaces",
			input:     "   ",
			shouldErr: true,
		},
		{
			name:      "only tabs",
			input:     "\t\t",
			shouldErr: true,
		},
		{
			name:      "only newlines",
			input:     "\n\n",
			shouldErr: true,
		},
		{
			name:      "mixed whitespace",
			input:     " \t\n ",
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NotBlank.Validate(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWrapValidationError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error returns nil",
			err:      nil,
			expected: false,
		},
		{
			name:     "wraps validation error",
			err:      assert.AnError,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WrapValidationError(tt.err)
			if tt.expected {
				assert.Error(t, result)
				assert.Contains(t, result.Error(), "invalid input")
			} else {
				assert.NoError(t, result)
			}
		})
	}
}

func TestBase64MinBytes(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		minBytes  int
		shouldErr bool
	}{
		{name: "Success_Empty", input: "", minBytes: 32, shouldErr: false},
		{name: "Success_LongEnough", input: "MDEyMzQ1Njc4OWFiY2RlZg==", minBytes: 16, shouldErr: false},
		{name: "Success_AnyLength", input: "c2VjcmV0", minBytes: 0, shouldErr: false},
		{name: "Error_TooShort", input: "c2VjcmV0", minBytes: 16, shouldErr: true},
		{name: "Error_NotBase64", input: "not base64!", minBytes: 0, shouldErr: true},
		{name: "Error_NotString", input: 42, minBytes: 0, shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Base64MinBytes(tt.minBytes).Validate(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
