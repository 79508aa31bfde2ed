package domain

import (
	"net/netip"
	"net/url"
	"strings"
)

// MatchIP reports whether ip matches any allowed literal address or CIDR range.
// Unparseable entries never match.
func MatchIP(allowed []string, ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				continue
			}
			if prefix.Masked().Contains(addr) {
				return true
			}
			continue
		}
		allowedAddr, err := netip.ParseAddr(entry)
		if err != nil {
			continue
		}
		if allowedAddr.Unmap() == addr {
			return true
		}
	}
	return false
}

// MatchDomain reports whether host matches any allowed pattern. A pattern of the form
// "*.example.com" matches example.com and every subdomain; other patterns match exactly.
// Comparison is case-insensitive.
func MatchDomain(allowed []string, host string) bool {
	host = normalizeHost(host)
	if host == "" {
		return false
	}

	for _, pattern := range allowed {
		pattern = normalizeHost(pattern)
		if pattern == "" {
			continue
		}
		if base, ok := strings.CutPrefix(pattern, "*."); ok {
			if host == base || strings.HasSuffix(host, "."+base) {
				return true
			}
			continue
		}
		if host == pattern {
			return true
		}
	}
	return false
}

// HostFromOrigin extracts the host from an Origin or Referer value. Bare hosts are accepted.
func HostFromOrigin(origin string) (string, bool) {
	origin = strings.TrimSpace(origin)
	if origin == "" || origin == "null" {
		return "", false
	}
	if !strings.Contains(origin, "://") {
		origin = "//" + origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return "", false
	}
	return host, true
}

// ValidateRestrictions checks that every IP entry parses the way MatchIP parses it and
// every domain pattern is a host or a "*." wildcard over a non-empty base.
func ValidateRestrictions(allowedIPs, allowedDomains []string) error {
	for _, entry := range allowedIPs {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			if _, err := netip.ParsePrefix(entry); err != nil {
				return ErrInvalidRestriction
			}
			continue
		}
		if _, err := netip.ParseAddr(entry); err != nil {
			return ErrInvalidRestriction
		}
	}
	for _, pattern := range allowedDomains {
		if !validDomainPattern(pattern) {
			return ErrInvalidRestriction
		}
	}
	return nil
}

func validDomainPattern(pattern string) bool {
	p := strings.ToLower(strings.TrimSpace(pattern))
	if base, ok := strings.CutPrefix(p, "*."); ok {
		p = base
	}
	p = normalizeHost(p)
	return p != "" && !strings.ContainsAny(p, "*/")
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimSuffix(host, ".")
}
