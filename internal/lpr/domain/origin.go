package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// NewOriginPattern validates an origin glob such as "https://*.example.com".
// Patterns are lower-cased; origins compare case-insensitively.
func NewOriginPattern(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if err := validatePattern(p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOrigin, err)
	}
	if p != "*" && !strings.Contains(p, "://") {
		return "", fmt.Errorf("%w: %q has no scheme", ErrInvalidOrigin, p)
	}
	if strings.Count(p, "/") > 2 {
		return "", fmt.Errorf("%w: %q must not contain a path", ErrInvalidOrigin, p)
	}
	return p, nil
}

// NewOriginAllowlist validates patterns, keeping order and dropping duplicates.
func NewOriginAllowlist(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, ErrNoOrigins
	}

	out := make([]string, 0, len(patterns))
	seen := make(map[string]struct{}, len(patterns))
	for _, raw := range patterns {
		p, err := NewOriginPattern(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// OriginAllowed reports whether origin matches at least one allowlist entry.
// An empty origin never matches.
func OriginAllowed(allowlist []string, origin string) bool {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if !isBareOrigin(origin) {
		return false
	}
	for _, p := range allowlist {
		if globMatch(p, origin) {
			return true
		}
	}
	return false
}

// isBareOrigin reports whether origin is exactly scheme://host[:port].
func isBareOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return false
	}
	return u.User == nil && u.Path == "" && u.RawQuery == "" && u.Fragment == "" &&
		!u.ForceQuery && !strings.ContainsAny(origin, "?#")
}
