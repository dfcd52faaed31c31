package proxy

import (
	"fmt"
	"net/url"
	"strings"
)

// ErrUriBuildFailed is returned when a rewrite produces components that do
// not form a valid URI.
type ErrUriBuildFailed struct {
	Err error
}

func (e *ErrUriBuildFailed) Error() string { return fmt.Sprintf("uri build failed: %s", e.Err) }
func (e *ErrUriBuildFailed) Unwrap() error  { return e.Err }

// Rewrite maps (original URI, matched rule target, matched prefix) to a
// rewritten URI. It always overrides scheme/host/port with the target's and
// computes the path per the target's PathTransformMode. Rewrite is pure,
// infallible of side effects, and never suspends.
func Rewrite(original *url.URL, target Address, matchedPrefix *string) (*url.URL, error) {
	scheme := target.Protocol.String()
	host := target.Host
	if target.Port != nil {
		host = fmt.Sprintf("%s:%d", target.Host, *target.Port)
	}

	originalPathAndQuery := pathAndQuery(original)
	if originalPathAndQuery == "" {
		originalPathAndQuery = "/"
	}

	var rewrittenPathAndQuery string
	switch target.PathTransformMode {
	case PathPreserve:
		rewrittenPathAndQuery = originalPathAndQuery
	case PathPrepend:
		rewrittenPathAndQuery = rewritePrepend(target, originalPathAndQuery)
	case PathReplace:
		rewrittenPathAndQuery = rewriteReplace(target, originalPathAndQuery, matchedPrefix)
	default:
		rewrittenPathAndQuery = originalPathAndQuery
	}

	built := scheme + "://" + host + ensureLeadingSlash(rewrittenPathAndQuery)
	out, err := url.Parse(built)
	if err != nil {
		return nil, &ErrUriBuildFailed{Err: err}
	}
	return out, nil
}

func ensureLeadingSlash(pathAndQuery string) string {
	if strings.HasPrefix(pathAndQuery, "/") || strings.HasPrefix(pathAndQuery, "?") {
		return pathAndQuery
	}
	return "/" + pathAndQuery
}

func rewritePrepend(target Address, originalPathAndQuery string) string {
	if target.Path == nil {
		return originalPathAndQuery // no path configured: fall back to Preserve
	}
	prefix := strings.TrimSuffix(*target.Path, "/")
	original := originalPathAndQuery
	if !strings.HasPrefix(original, "/") {
		original = "/"
	}
	return prefix + original
}

func rewriteReplace(target Address, originalPathAndQuery string, matchedPrefix *string) string {
	if target.Path == nil || matchedPrefix == nil {
		return originalPathAndQuery // missing parameters: fall back to Preserve
	}
	oldPrefix := strings.TrimSuffix(strings.TrimSuffix(*matchedPrefix, "*"), "/")
	if !strings.HasPrefix(originalPathAndQuery, oldPrefix) {
		return originalPathAndQuery // rule prefix doesn't actually match: fall back to Preserve
	}
	suffix := originalPathAndQuery[len(oldPrefix):]
	newPrefix := strings.TrimSuffix(*target.Path, "/")
	return newPrefix + suffix
}
