package domain

import (
	"fmt"
	"net/url"
	"strings"
)

var allowedMethods = map[string]struct{}{
	"GET": {}, "HEAD": {}, "POST": {}, "PUT": {}, "PATCH": {}, "DELETE": {}, "OPTIONS": {},
}

// Scope is a single capability grant: an HTTP method and a URL pattern.
//
// Patterns starting with "/" match the request path plus query. Any other
// pattern must be an absolute http(s) URL pattern and matches the full URL.
type Scope struct {
	Method      string
	URLPattern  string
	Description string
}

// NewScope validates and normalises a grant. The method is upper-cased.
func NewScope(method, pattern, description string) (Scope, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	if _, ok := allowedMethods[m]; !ok {
		return Scope{}, fmt.Errorf("%w: method %q", ErrInvalidScope, method)
	}

	if err := validatePattern(pattern); err != nil {
		return Scope{}, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	if !strings.HasPrefix(pattern, "/") {
		scheme, rest, ok := strings.Cut(pattern, "://")
		if !ok || (scheme != "https" && scheme != "http") || rest == "" {
			return Scope{}, fmt.Errorf("%w: pattern %q must start with / or http(s)://", ErrInvalidScope, pattern)
		}
	}

	return Scope{Method: m, URLPattern: pattern, Description: description}, nil
}

// Matches reports whether the request is covered by this grant. The method
// comparison is case-insensitive and exact; unparsable URLs never match.
func (s Scope) Matches(method, requestURL string) bool {
	if !strings.EqualFold(s.Method, method) {
		return false
	}

	u, err := url.Parse(requestURL)
	if err != nil || hasDotSegment(u.Path) {
		return false
	}

	subject := requestURL
	if strings.HasPrefix(s.URLPattern, "/") {
		subject = u.EscapedPath()
		if subject == "" {
			subject = "/"
		}
		if u.RawQuery != "" {
			subject += "?" + u.RawQuery
		}
	}
	return globMatch(s.URLPattern, subject)
}

// hasDotSegment reports whether the decoded path contains a "." or ".."
// segment. Such paths are normalised downstream to something other than
// what the pattern saw, so they never match.
func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// AnyScopeMatches reports whether at least one grant covers the request.
func AnyScopeMatches(scopes []Scope, method, requestURL string) bool {
	for _, s := range scopes {
		if s.Matches(method, requestURL) {
			return true
		}
	}
	return false
}
