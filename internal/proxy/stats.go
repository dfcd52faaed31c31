package proxy

import "sync/atomic"

// stats holds the ProxyManager's five monotonically-increasing counters.
// Each counter is a separate atomic: no ordering is implied between counters
// or between them and the cache/rule tables, per spec.md §5's ordering
// guarantees.
type stats struct {
	totalLookups atomic.Uint64
	cacheHits    atomic.Uint64
	exactHits    atomic.Uint64
	patternHits  atomic.Uint64
	misses       atomic.Uint64
}

func (s *stats) incTotal()   { s.totalLookups.Add(1) }
func (s *stats) incCache()   { s.cacheHits.Add(1) }
func (s *stats) incExact()   { s.exactHits.Add(1) }
func (s *stats) incPattern() { s.patternHits.Add(1) }
func (s *stats) incMiss()    { s.misses.Add(1) }

func (s *stats) reset() {
	s.totalLookups.Store(0)
	s.cacheHits.Store(0)
	s.exactHits.Store(0)
	s.patternHits.Store(0)
	s.misses.Store(0)
}

func (s *stats) snapshot() Stats {
	return Stats{
		TotalLookups: s.totalLookups.Load(),
		CacheHits:    s.cacheHits.Load(),
		ExactHits:    s.exactHits.Load(),
		PatternHits:  s.patternHits.Load(),
		Misses:       s.misses.Load(),
	}
}

// Stats is a consistent snapshot of ProxyManager's lookup counters. The
// counters are not transactionally related to one another: two fields may
// reflect slightly different moments in time under concurrent load.
type Stats struct {
	TotalLookups uint64
	CacheHits    uint64
	ExactHits    uint64
	PatternHits  uint64
	Misses       uint64
}

// HitRate returns the fraction of lookups satisfied by cache, exact, or
// pattern hits (i.e. not a miss).
func (s Stats) HitRate() float64 {
	if s.TotalLookups == 0 {
		return 0
	}
	return float64(s.CacheHits+s.ExactHits+s.PatternHits) / float64(s.TotalLookups)
}

// CacheHitRate returns the fraction of lookups satisfied directly from the
// LRU memoization cache.
func (s Stats) CacheHitRate() float64 {
	if s.TotalLookups == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.TotalLookups)
}
