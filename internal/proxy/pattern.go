package proxy

import (
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPattern is returned when a pattern string fails to parse, most
// commonly a "re:" pattern whose remainder does not compile as a regular
// expression.
type ErrInvalidPattern struct {
	Pattern string
	Err     error
}

func (e *ErrInvalidPattern) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, e.Err)
}

func (e *ErrInvalidPattern) Unwrap() error { return e.Err }

// matcherKind tags the closed set of PatternMatcher variants.
type matcherKind int

const (
	matcherExact matcherKind = iota
	matcherWildcard
	matcherRegex
)

// PatternMatcher is a field-level string matcher. It is a closed sum type:
// exactly one of Exact/Wildcard/Regex applies, selected by kind.
type PatternMatcher struct {
	kind     matcherKind
	raw      string // original pattern text, including "re:" prefix for Regex
	compiled *regexp.Regexp
}

// ParsePattern parses a single pattern string:
//   - "re:<expr>" compiles <expr> as a regular expression
//   - a string containing '*' becomes a Wildcard matcher
//   - anything else is an Exact matcher
func ParsePattern(s string) (PatternMatcher, error) {
	if rest, ok := strings.CutPrefix(s, "re:"); ok {
		re, err := regexp.Compile(rest)
		if err != nil {
			return PatternMatcher{}, &ErrInvalidPattern{Pattern: s, Err: err}
		}
		return PatternMatcher{kind: matcherRegex, raw: s, compiled: re}, nil
	}
	if strings.Contains(s, "*") {
		return PatternMatcher{kind: matcherWildcard, raw: s}, nil
	}
	return PatternMatcher{kind: matcherExact, raw: s}, nil
}

// MustParsePattern is ParsePattern but panics on error; intended for tests
// and compile-time-known patterns.
func MustParsePattern(s string) PatternMatcher {
	m, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return m
}

// IsExact reports whether the matcher is the Exact variant.
func (m PatternMatcher) IsExact() bool { return m.kind == matcherExact }

// isRegex reports whether the matcher is the Regex variant.
func (m PatternMatcher) isRegex() bool { return m.kind == matcherRegex }

// String renders the matcher back to its textual form (with "re:" prefix
// restored for Regex, if it was stripped).
func (m PatternMatcher) String() string {
	switch m.kind {
	case matcherRegex:
		if strings.HasPrefix(m.raw, "re:") {
			return m.raw
		}
		return "re:" + m.raw
	default:
		return m.raw
	}
}

// ExactValue returns the literal string and true if this is an Exact matcher.
func (m PatternMatcher) ExactValue() (string, bool) {
	if m.kind == matcherExact {
		return m.raw, true
	}
	return "", false
}

// Matches reports whether value satisfies the matcher. It is pure,
// infallible, and deterministic. Exact and Wildcard matching never allocate.
func (m PatternMatcher) Matches(value string) bool {
	switch m.kind {
	case matcherExact:
		return value == m.raw
	case matcherWildcard:
		if suffix, ok := strings.CutPrefix(m.raw, "*"); ok {
			return strings.HasSuffix(value, suffix)
		}
		if prefix, ok := strings.CutSuffix(m.raw, "*"); ok {
			return strings.HasPrefix(value, prefix)
		}
		// Interior '*' is a documented quirk: degrade to exact
		// equality rather than implementing general glob matching.
		return value == m.raw
	case matcherRegex:
		return m.compiled.MatchString(value)
	default:
		return false
	}
}

// TrimmedWildcardPrefix returns the matcher's literal prefix with a trailing
// '*' removed, used by ProxyManager (matchedPrefixFor) to compute the
// Replace-mode prefix handed to the rewrite engine.
// Only meaningful for Wildcard matchers of the "prefix*" shape.
func (m PatternMatcher) TrimmedWildcardPrefix() string {
	return strings.TrimSuffix(m.raw, "*")
}
