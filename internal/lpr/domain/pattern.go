package domain

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tidwall/match"
)

const (
	maxPatternLength    = 2048
	maxPatternWildcards = 16
)

// validatePattern enforces the glob dialect shared by scopes and origins:
// '*' matches any run of characters and is the only wildcard. '?' is not
// accepted so query strings in request URLs are never ambiguous.
func validatePattern(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("empty pattern")
	case len(p) > maxPatternLength:
		return fmt.Errorf("pattern longer than %d bytes", maxPatternLength)
	case strings.ContainsRune(p, '?'):
		return fmt.Errorf("pattern %q contains '?'", p)
	case strings.Count(p, "*") > maxPatternWildcards:
		return fmt.Errorf("pattern %q has more than %d wildcards", p, maxPatternWildcards)
	}
	for _, r := range p {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("pattern %q contains whitespace or control characters", p)
		}
	}
	return nil
}

// globMatch reports whether s matches a pattern accepted by validatePattern.
func globMatch(pattern, s string) bool {
	return match.Match(s, pattern)
}
