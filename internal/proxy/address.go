package proxy

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Protocol is the scheme half of an Address. Only http/https are supported
// end to end today; ws/wss are reserved for a future WebSocket transport but
// already parse so rule files can be written against them ahead of time.
type Protocol int

const (
	ProtocolHTTP Protocol = iota
	ProtocolHTTPS
	ProtocolWS
	ProtocolWSS
)

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http"
	case ProtocolHTTPS:
		return "https"
	case ProtocolWS:
		return "ws"
	case ProtocolWSS:
		return "wss"
	default:
		return "unknown"
	}
}

// ParseProtocol parses a protocol string case-insensitively.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "http":
		return ProtocolHTTP, nil
	case "https":
		return ProtocolHTTPS, nil
	case "ws":
		return ProtocolWS, nil
	case "wss":
		return ProtocolWSS, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
}

// PathTransformMode selects how a target Address's path combines with the
// original request path when rewriting a matched URI.
type PathTransformMode int

const (
	// PathPreserve keeps the original request's path and query untouched;
	// only scheme/host/port are overridden.
	PathPreserve PathTransformMode = iota
	// PathPrepend concatenates the target's path in front of the original.
	PathPrepend
	// PathReplace swaps the matched rule prefix for the target's path.
	PathReplace
)

func (m PathTransformMode) String() string {
	switch m {
	case PathPreserve:
		return "preserve"
	case PathPrepend:
		return "prepend"
	case PathReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// ParsePathTransformMode parses a mode string case-insensitively.
func ParsePathTransformMode(s string) (PathTransformMode, error) {
	switch strings.ToLower(s) {
	case "", "preserve":
		return PathPreserve, nil
	case "prepend":
		return PathPrepend, nil
	case "replace":
		return PathReplace, nil
	default:
		return 0, fmt.Errorf("unknown path_transform mode %q", s)
	}
}

// Address is a target endpoint: a rule's destination, or the address derived
// from an incoming request's URI. Address values are small and are cloned
// freely on every lookup.
type Address struct {
	Protocol         Protocol
	Host             string
	Port             *int // nil means "no explicit port"
	Path             *string
	PathTransformMode PathTransformMode
}

// AddressFromURL builds an Address describing the request URI u. Returns
// false if u has no parseable scheme/host (the caller should treat this as a
// cache miss, per spec.md §4.4's failure semantics).
func AddressFromURL(u *url.URL) (Address, bool) {
	if u == nil || u.Host == "" {
		return Address{}, false
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}
	protocol, err := ParseProtocol(scheme)
	if err != nil {
		return Address{}, false
	}

	host := u.Hostname()
	if host == "" {
		return Address{}, false
	}

	var port *int
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Address{}, false
		}
		port = &n
	}

	var path *string
	if pq := pathAndQuery(u); pq != "" {
		path = &pq
	}

	return Address{
		Protocol: protocol,
		Host:     host,
		Port:     port,
		Path:     path,
	}, true
}

func pathAndQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return u.EscapedPath()
	}
	return u.EscapedPath() + "?" + u.RawQuery
}

// String renders the address as scheme://host[:port]path, defaulting path to
// "/" when unset — mirroring original_source's Display impl for Address.
func (a Address) String() string {
	authority := a.Host
	if a.Port != nil {
		authority = fmt.Sprintf("%s:%d", a.Host, *a.Port)
	}
	path := "/"
	if a.Path != nil {
		path = *a.Path
	}
	return fmt.Sprintf("%s://%s%s", a.Protocol, authority, path)
}

// patternType bundles the host and (optional) path matchers of an
// AddressPattern.
type patternType struct {
	host PatternMatcher
	path *PatternMatcher
}

// AddressPattern is a rule's match predicate.
type AddressPattern struct {
	Protocol Protocol
	Port     *int // nil matches any port
	pattern  patternType
}

// NewAddressPattern builds an AddressPattern from raw host/path strings,
// compiling any "re:" regex predicates. Returns ErrInvalidPattern if either
// fails to compile.
func NewAddressPattern(protocol Protocol, host string, port *int, path string) (AddressPattern, error) {
	hostMatcher, err := ParsePattern(host)
	if err != nil {
		return AddressPattern{}, err
	}

	var pathMatcher *PatternMatcher
	if path != "" {
		pm, err := ParsePattern(path)
		if err != nil {
			return AddressPattern{}, err
		}
		pathMatcher = &pm
	}

	return AddressPattern{
		Protocol: protocol,
		Port:     port,
		pattern: patternType{
			host: hostMatcher,
			path: pathMatcher,
		},
	}, nil
}

// HostMatcher returns the pattern's host matcher.
func (p AddressPattern) HostMatcher() PatternMatcher { return p.pattern.host }

// PathMatcher returns the pattern's path matcher and whether one is set.
func (p AddressPattern) PathMatcher() (PatternMatcher, bool) {
	if p.pattern.path == nil {
		return PatternMatcher{}, false
	}
	return *p.pattern.path, true
}

// Matches applies protocol → port → host → path predicates in order.
func (p AddressPattern) Matches(addr Address) bool {
	if p.Protocol != addr.Protocol {
		return false
	}
	if p.Port != nil {
		if addr.Port == nil || *addr.Port != *p.Port {
			return false
		}
	}
	if !p.pattern.host.Matches(addr.Host) {
		return false
	}

	switch {
	case p.pattern.path == nil:
		return true // pattern does not constrain path
	case addr.Path != nil:
		return p.pattern.path.Matches(*addr.Path)
	default:
		return false // pattern requires a path but the address has none
	}
}

// IsExactClassifiable reports whether this pattern is eligible for the
// ProxyManager's O(1) exact index: host matcher is Exact, and the path
// matcher (if any) is also Exact.
func (p AddressPattern) IsExactClassifiable() bool {
	if !p.pattern.host.IsExact() {
		return false
	}
	if p.pattern.path == nil {
		return true
	}
	return p.pattern.path.IsExact()
}

// ExactKey is the map key ProxyManager uses for its O(1) index. Two ExactKey
// values are equal iff protocol, host, port, and path all match, making it
// usable directly as a Go map key.
type ExactKey struct {
	Protocol Protocol
	Host     string
	Port     int // 0 when the pattern carries no port; HasPort disambiguates
	HasPort  bool
	Path     string
	HasPath  bool
}

// exactKeyFromPattern derives the ExactKey for an exact-classifiable pattern.
// Panics if the pattern is not exact-classifiable — callers must check
// IsExactClassifiable first.
func exactKeyFromPattern(p AddressPattern) ExactKey {
	host, ok := p.pattern.host.ExactValue()
	if !ok {
		panic("exactKeyFromPattern: pattern host is not Exact")
	}
	key := ExactKey{Protocol: p.Protocol, Host: host}
	if p.Port != nil {
		key.Port = *p.Port
		key.HasPort = true
	}
	if p.pattern.path != nil {
		path, ok := p.pattern.path.ExactValue()
		if !ok {
			panic("exactKeyFromPattern: pattern path is not Exact")
		}
		key.Path = path
		key.HasPath = true
	}
	return key
}

// exactKeyFromAddress derives the lookup key for an incoming request address.
func exactKeyFromAddress(a Address) ExactKey {
	key := ExactKey{Protocol: a.Protocol, Host: a.Host}
	if a.Port != nil {
		key.Port = *a.Port
		key.HasPort = true
	}
	if a.Path != nil {
		key.Path = *a.Path
		key.HasPath = true
	}
	return key
}

// PathOrNil returns the exact key's path predicate as *string, for use as a
// MatchResult's matched prefix on exact-rule hits.
func (k ExactKey) PathOrNil() *string {
	if !k.HasPath {
		return nil
	}
	p := k.Path
	return &p
}

// pathPrefixCandidates returns the "/"-bounded ancestor prefixes of path,
// longest first, excluding path itself and excluding the empty prefix. A
// trailing "?query" is stripped first, since exact path predicates are
// written without one. For "/api/v1/users" this yields ["/api/v1", "/api"].
//
// This backs the exact index's sub-path fallback (see
// ProxyManager.lookupExact);
// it is not used anywhere a byte-identical match already suffices.
func pathPrefixCandidates(path string) []string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		return nil
	}
	var candidates []string
	for {
		idx := strings.LastIndexByte(path, '/')
		if idx <= 0 {
			break
		}
		path = path[:idx]
		candidates = append(candidates, path)
	}
	return candidates
}
