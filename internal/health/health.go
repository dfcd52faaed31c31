package health

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// RuleCountsFunc reports how many exact and pattern rules are currently
// loaded in a ProxyManager's routing table.
type RuleCountsFunc func() (exact, pattern int)

// Checker provides health and readiness check endpoints.
type Checker struct {
	ready      atomic.Bool
	ruleCounts RuleCountsFunc
}

// NewChecker creates a new health checker.
func NewChecker() *Checker {
	return &Checker{}
}

// SetReady marks the service as ready to accept traffic.
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// SetRuleCountsProvider wires /readyz to report the live routing table size
// alongside process liveness, so an accidentally empty rule set (e.g. a
// rollback to a config with no rules, or a watcher race during reload) is
// visible to whatever is polling readiness, not just to an admin API caller.
func (c *Checker) SetRuleCountsProvider(f RuleCountsFunc) {
	c.ruleCounts = f
}

// HealthzHandler returns a handler for the /healthz endpoint (liveness).
func (c *Checker) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// ReadyzHandler returns a handler for the /readyz endpoint (readiness). When
// a rule counts provider has been wired, the response also reports the
// current exact/pattern rule counts.
func (c *Checker) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := map[string]any{}
		if c.ready.Load() {
			body["status"] = "ready"
			if c.ruleCounts != nil {
				exact, pattern := c.ruleCounts()
				body["exact_rules"] = exact
				body["pattern_rules"] = pattern
			}
			w.WriteHeader(http.StatusOK)
		} else {
			body["status"] = "not ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(body)
	}
}
