package proxy

import (
	"net/url"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ProxyRule pairs a match predicate with the target it routes to.
type ProxyRule struct {
	Pattern AddressPattern
	Target  Address
}

// MatchResult is the outcome of an uncached lookup: the winning rule's
// target, plus the matched path prefix a Replace rewrite needs (nil unless
// the winning rule carried an exact or wildcard path predicate).
type MatchResult struct {
	Target            Address
	MatchedPathPrefix *string
}

const defaultCacheSize = 1000

// ProxyManager is the routing core: an exact-match index plus an
// insertion-ordered pattern-rule list, memoized by a per-URI LRU cache.
//
// ProxyManager does not lock its own rule tables. Per spec.md §5 and §9's
// Design Notes, the caller wraps the whole manager in a reader-writer lock:
// Find* methods are called under a shared (read) lock, AddRule/Clear/
// ResetStats under an exclusive (write) lock. The LRU cache is the one piece
// of state that needs interior mutability even under a shared lock, so it is
// guarded by its own mutex independent of the caller's lock.
type ProxyManager struct {
	exactRules   map[ExactKey]Address
	patternRules []ProxyRule

	cacheMu sync.Mutex
	cache   *lru.Cache[string, *Address]

	stats stats
}

// NewProxyManager creates a manager whose LRU cache holds at most cacheSize
// entries. cacheSize must be >= 1; 0 or negative falls back to the default
// of 1000 rather than failing, since this is a runtime default, not a
// user-supplied config value being validated (validation happens in
// internal/config).
func NewProxyManager(cacheSize int) *ProxyManager {
	if cacheSize < 1 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, *Address](cacheSize)
	if err != nil {
		// Only possible if cacheSize <= 0, which is excluded above.
		panic(err)
	}
	return &ProxyManager{
		exactRules: make(map[ExactKey]Address),
		cache:      cache,
	}
}

// AddRule classifies and installs pattern → target. Exact-classifiable
// patterns (Exact host, and Exact-or-absent path) go into the O(1) index;
// everything else is appended to the pattern list. Every call clears the
// cache, since a new rule can change the outcome of any previously-cached
// lookup (including previously-cached negatives).
func (m *ProxyManager) AddRule(pattern AddressPattern, target Address) {
	if pattern.IsExactClassifiable() {
		m.exactRules[exactKeyFromPattern(pattern)] = target
	} else {
		m.patternRules = append(m.patternRules, ProxyRule{Pattern: pattern, Target: target})
	}
	m.clearCacheLocked()
}

// FindTarget is the cached lookup used on the request hot path. A cache hit
// returns immediately without consulting the rule tables, and is not counted
// as an exact or pattern hit. A cache miss computes the uncached result
// (including a negative one) and memoizes it.
func (m *ProxyManager) FindTarget(u *url.URL) (Address, bool) {
	m.stats.incTotal()

	key := u.String()

	m.cacheMu.Lock()
	if cached, ok := m.cache.Get(key); ok {
		m.cacheMu.Unlock()
		m.stats.incCache()
		if cached == nil {
			return Address{}, false
		}
		return *cached, true
	}
	m.cacheMu.Unlock()

	addr, ok := AddressFromURL(u)
	if !ok {
		m.recordMissAndCache(key, nil)
		return Address{}, false
	}

	result := m.findUncachedNoStats(addr)

	m.cacheMu.Lock()
	m.cache.Add(key, result)
	m.cacheMu.Unlock()

	if result == nil {
		return Address{}, false
	}
	return *result, true
}

func (m *ProxyManager) recordMissAndCache(key string, result *Address) {
	m.stats.incMiss()
	m.cacheMu.Lock()
	m.cache.Add(key, result)
	m.cacheMu.Unlock()
}

// findUncachedNoStats runs the index-then-scan algorithm and records
// exact/pattern/miss stats, but intentionally does not touch totalLookups
// (the caller already counted this as one lookup).
func (m *ProxyManager) findUncachedNoStats(addr Address) *Address {
	if target, _, ok := m.lookupExact(addr); ok {
		m.stats.incExact()
		return &target
	}
	for _, rule := range m.patternRules {
		if rule.Pattern.Matches(addr) {
			m.stats.incPattern()
			target := rule.Target
			return &target
		}
	}
	m.stats.incMiss()
	return nil
}

// lookupExact probes the O(1) index for addr. It tries, in order:
//  1. the address's own exact key (byte-identical host/port/path match);
//  2. the same host/port with no path predicate at all, since a rule with
//     no path predicate matches any request path (spec.md §4.2);
//  3. for exact-classified rules whose target carries a Replace or Prepend
//     path-transform, the "/"-bounded ancestor prefixes of addr.Path,
//     longest first — see DESIGN.md's "Exact path predicates under Replace/
//     Prepend" entry for why this step exists.
//
// Step 3 only fires for Replace/Prepend targets so a plain Preserve-mode
// exact rule keeps the byte-exact semantics spec.md §4.1 states for it.
func (m *ProxyManager) lookupExact(addr Address) (Address, *string, bool) {
	fullKey := exactKeyFromAddress(addr)
	if target, ok := m.exactRules[fullKey]; ok {
		return target, fullKey.PathOrNil(), true
	}
	if !fullKey.HasPath {
		return Address{}, nil, false
	}

	noPathKey := fullKey
	noPathKey.Path = ""
	noPathKey.HasPath = false
	if target, ok := m.exactRules[noPathKey]; ok {
		return target, nil, true
	}

	for _, prefix := range pathPrefixCandidates(fullKey.Path) {
		candidate := fullKey
		candidate.Path = prefix
		candidate.HasPath = true
		target, ok := m.exactRules[candidate]
		if !ok {
			continue
		}
		if target.PathTransformMode != PathReplace && target.PathTransformMode != PathPrepend {
			continue
		}
		return target, candidate.PathOrNil(), true
	}

	return Address{}, nil, false
}

// FindTargetWithMatchInfo performs the uncached index-then-scan lookup and
// additionally reports the matched path prefix a Replace rewrite needs. It
// does not consult or populate the LRU cache.
func (m *ProxyManager) FindTargetWithMatchInfo(u *url.URL) (MatchResult, bool) {
	m.stats.incTotal()

	addr, ok := AddressFromURL(u)
	if !ok {
		m.stats.incMiss()
		return MatchResult{}, false
	}

	if target, prefix, ok := m.lookupExact(addr); ok {
		m.stats.incExact()
		return MatchResult{Target: target, MatchedPathPrefix: prefix}, true
	}

	for _, rule := range m.patternRules {
		if rule.Pattern.Matches(addr) {
			m.stats.incPattern()
			return MatchResult{
				Target:            rule.Target,
				MatchedPathPrefix: matchedPrefixFor(rule.Pattern),
			}, true
		}
	}

	m.stats.incMiss()
	return MatchResult{}, false
}

// matchedPrefixFor derives the Replace-mode prefix for a pattern rule's path
// predicate: the literal string for Exact, the wildcard text with its
// trailing '*' stripped for Wildcard, or nil for Regex (Replace mode is not
// supported against regex predicates; the rewrite engine falls back to
// Preserve).
func matchedPrefixFor(pattern AddressPattern) *string {
	pathMatcher, ok := pattern.PathMatcher()
	if !ok {
		return nil
	}
	if v, ok := pathMatcher.ExactValue(); ok {
		return &v
	}
	if !pathMatcher.isRegex() {
		trimmed := pathMatcher.TrimmedWildcardPrefix()
		return &trimmed
	}
	return nil
}

// AllRules materializes a view of every rule, exact rules first then pattern
// rules in insertion order.
func (m *ProxyManager) AllRules() []ProxyRule {
	rules := make([]ProxyRule, 0, len(m.exactRules)+len(m.patternRules))
	for key, target := range m.exactRules {
		rules = append(rules, ProxyRule{Pattern: addressPatternFromExactKey(key), Target: target})
	}
	rules = append(rules, m.patternRules...)
	return rules
}

func addressPatternFromExactKey(key ExactKey) AddressPattern {
	hostMatcher, err := ParsePattern(key.Host)
	if err != nil {
		// key.Host came from an already-validated Exact pattern; it cannot
		// contain "re:" or "*" in a way that changes classification, since
		// Exact host strings are stored verbatim.
		hostMatcher = PatternMatcher{kind: matcherExact, raw: key.Host}
	}
	p := AddressPattern{
		Protocol: key.Protocol,
		pattern:  patternType{host: hostMatcher},
	}
	if key.HasPort {
		port := key.Port
		p.Port = &port
	}
	if key.HasPath {
		pm := PatternMatcher{kind: matcherExact, raw: key.Path}
		p.pattern.path = &pm
	}
	return p
}

// ExactRuleCount returns the number of rules in the O(1) index.
func (m *ProxyManager) ExactRuleCount() int { return len(m.exactRules) }

// PatternRuleCount returns the number of rules in the linear-scan list.
func (m *ProxyManager) PatternRuleCount() int { return len(m.patternRules) }

// Stats returns a snapshot of the lookup counters.
func (m *ProxyManager) Stats() Stats { return m.stats.snapshot() }

// ResetStats zeroes all counters.
func (m *ProxyManager) ResetStats() { m.stats.reset() }

// Clear removes every rule and cache entry, and resets stats.
func (m *ProxyManager) Clear() {
	m.exactRules = make(map[ExactKey]Address)
	m.patternRules = nil
	m.clearCacheLocked()
	m.stats.reset()
}

// ClearCache empties the LRU cache without touching rules or stats.
func (m *ProxyManager) ClearCache() { m.clearCacheLocked() }

func (m *ProxyManager) clearCacheLocked() {
	m.cacheMu.Lock()
	m.cache.Purge()
	m.cacheMu.Unlock()
}
