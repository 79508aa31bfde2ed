package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchIP(t *testing.T) {
	allowed := []string{"192.168.1.10", "10.0.0.0/8", "2001:db8::/32", "not-an-ip"}

	tests := []struct {
		name     string
		ip       string
		expected bool
	}{
		{name: "LiteralMatch", ip: "192.168.1.10", expected: true},
		{name: "LiteralMismatch", ip: "192.168.1.11", expected: false},
		{name: "CIDRMatch", ip: "10.20.30.40", expected: true},
		{name: "IPv6CIDRMatch", ip: "2001:db8::1", expected: true},
		{name: "IPv4MappedIPv6", ip: "::ffff:10.1.1.1", expected: true},
		{name: "OutsideAll", ip: "172.16.0.1", expected: false},
		{name: "InvalidRequestIP", ip: "garbage", expected: false},
		{name: "EmptyRequestIP", ip: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MatchIP(allowed, tt.ip))
		})
	}
}

func TestMatchDomain(t *testing.T) {
	allowed := []string{"shop.example.com", "*.acme.io"}

	tests := []struct {
		name     string
		host     string
		expected bool
	}{
		{name: "ExactMatch", host: "shop.example.com", expected: true},
		{name: "ExactMatchCaseInsensitive", host: "SHOP.Example.com", expected: true},
		{name: "ExactDoesNotCoverSubdomain", host: "a.shop.example.com", expected: false},
		{name: "WildcardMatchesBase", host: "acme.io", expected: true},
		{name: "WildcardMatchesSubdomain", host: "app.acme.io", expected: true},
		{name: "WildcardMatchesDeepSubdomain", host: "a.b.acme.io", expected: true},
		{name: "WildcardRejectsSuffixTrick", host: "evilacme.io", expected: false},
		{name: "NoMatch", host: "example.org", expected: false},
		{name: "EmptyHost", host: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MatchDomain(allowed, tt.host))
		})
	}
}

func TestHostFromOrigin(t *testing.T) {
	tests := []struct {
		name     string
		origin   string
		host     string
		expected bool
	}{
		{name: "OriginWithScheme", origin: "https://app.acme.io", host: "app.acme.io", expected: true},
		{name: "OriginWithPort", origin: "http://localhost:3000", host: "localhost", expected: true},
		{name: "RefererWithPath", origin: "https://shop.example.com/cart?x=1", host: "shop.example.com", expected: true},
		{name: "BareHost", origin: "Example.COM", host: "example.com", expected: true},
		{name: "NullOrigin", origin: "null", expected: false},
		{name: "Empty", origin: "  ", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, ok := HostFromOrigin(tt.origin)
			assert.Equal(t, tt.expected, ok)
			assert.Equal(t, tt.host, host)
		})
	}
}

func TestValidateRestrictions(t *testing.T) {
	t.Run("Success_ValidEntries", func(t *testing.T) {
		assert.NoError(t, ValidateRestrictions(
			[]string{"10.0.0.1", "10.0.0.0/8", "::1", "2001:db8::/32"},
			[]string{"*.acme.io", "example.com", "Partner.IO."},
		))
	})

	t.Run("Error_InvalidIPs", func(t *testing.T) {
		for _, entry := range []string{"10.0.0.0/99", "host", "10.0.0.0/", "fe80::1%eth0/64"} {
			assert.ErrorIs(t, ValidateRestrictions([]string{entry}, nil), ErrInvalidRestriction, entry)
		}
	})

	t.Run("Error_InvalidDomainPatterns", func(t *testing.T) {
		for _, pattern := range []string{" ", "*", "*.", " *. ", "*..", "a.*.com", "**.acme.io", "acme.io/path"} {
			assert.ErrorIs(t, ValidateRestrictions(nil, []string{pattern}), ErrInvalidRestriction, pattern)
		}
	})

	t.Run("Success_AcceptedEntriesMatch", func(t *testing.T) {
		ips := []string{"10.0.0.0/8", "2001:db8::/32"}
		require.NoError(t, ValidateRestrictions(ips, nil))
		assert.True(t, MatchIP(ips, "10.20.30.40"))
		assert.True(t, MatchIP(ips, "2001:db8::1"))

		domains := []string{"*.acme.io"}
		require.NoError(t, ValidateRestrictions(nil, domains))
		assert.True(t, MatchDomain(domains, "api.acme.io"))
	})
}
