package admin

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/warden-proxy/warden/internal/config"
	"github.com/warden-proxy/warden/internal/metrics"
	"github.com/warden-proxy/warden/internal/proxy"
)

// Server is the admin API server: it exposes configuration, version
// history, and the live routing table for inspection and limited runtime
// mutation, all guarded by the same reader-writer lock the request path
// uses to protect the ProxyManager.
type Server struct {
	configLoader   *config.Loader
	versionManager *config.VersionManager
	manager        *proxy.ProxyManager
	managerMu      *sync.RWMutex
	docStore       *DocStore
	mux            *http.ServeMux
}

// New creates a new admin server and registers routes. managerMu must be the
// same lock the proxy request path takes around manager.
func New(cl *config.Loader, vm *config.VersionManager, manager *proxy.ProxyManager, managerMu *sync.RWMutex) *Server {
	s := &Server{
		configLoader:   cl,
		versionManager: vm,
		manager:        manager,
		managerMu:      managerMu,
		docStore:       NewDocStore(),
		mux:            http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /api/v1/config", s.getConfig)
	s.mux.HandleFunc("GET /api/v1/config/versions", s.listVersions)
	s.mux.HandleFunc("POST /api/v1/config/rollback", s.rollbackConfig)
	s.mux.HandleFunc("GET /api/v1/rules", s.listRules)
	s.mux.HandleFunc("GET /api/v1/rules/dump", s.dumpRules)
	s.mux.HandleFunc("POST /api/v1/rules", s.publishRule)
	s.mux.HandleFunc("GET /api/v1/stats", s.getStats)
	s.mux.HandleFunc("GET /api/v1/status", s.getStatus)
	s.mux.HandleFunc("POST /api/v1/docs", s.publishDoc)
	s.mux.HandleFunc("GET /api/v1/docs", s.listDocs)
	s.mux.HandleFunc("GET /api/v1/docs/{pattern}", s.getDoc)
	s.mux.HandleFunc("DELETE /api/v1/docs/{pattern}", s.deleteDoc)
	return s
}

// Handler returns the HTTP handler for the admin server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.configLoader.Current()
	if cfg == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no configuration loaded"})
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	versions := s.versionManager.List()
	type versionInfo struct {
		ID        string `json:"id"`
		Version   int    `json:"version"`
		Hash      string `json:"hash"`
		Timestamp string `json:"timestamp"`
	}
	result := make([]versionInfo, len(versions))
	for i, v := range versions {
		result[i] = versionInfo{
			ID:        v.ID.String(),
			Version:   v.Version,
			Hash:      v.Hash,
			Timestamp: v.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// rollbackConfig rolls back to a specific version when the caller passes
// ?id=<uuid> (any snapshot still in history), or to the immediately
// preceding version otherwise.
func (s *Server) rollbackConfig(w http.ResponseWriter, r *http.Request) {
	var cfg *config.Config
	var err error
	if idParam := r.URL.Query().Get("id"); idParam != "" {
		id, parseErr := uuid.Parse(idParam)
		if parseErr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id: " + parseErr.Error()})
			return
		}
		cfg, err = s.versionManager.RollbackTo(id)
	} else {
		cfg, err = s.versionManager.Rollback()
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.managerMu.Lock()
	s.manager.Clear()
	for _, rc := range cfg.Proxy.Rules {
		if pattern, target, err := RuleFromConfig(rc); err == nil {
			s.manager.AddRule(pattern, target)
		}
	}
	s.managerMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"message": "configuration rolled back successfully"})
}

// ruleListEntry is the JSON projection of a proxy.ProxyRule.
type ruleListEntry struct {
	Pattern string `json:"pattern"`
	Target  string `json:"target"`
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	s.managerMu.RLock()
	rules := s.manager.AllRules()
	s.managerMu.RUnlock()

	entries := make([]ruleListEntry, len(rules))
	for i, rule := range rules {
		entries[i] = ruleListEntry{
			Pattern: rule.Pattern.HostMatcher().String(),
			Target:  rule.Target.String(),
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

// dumpRulesCap is the maximum number of rules rendered before the dump
// collapses the remainder into a single summary line.
const dumpRulesCap = 20

// dumpRules renders a human-readable rule table capped at dumpRulesCap
// entries, with any remainder summarized as "...(N more omitted)".
func (s *Server) dumpRules(w http.ResponseWriter, r *http.Request) {
	s.managerMu.RLock()
	rules := s.manager.AllRules()
	s.managerMu.RUnlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	shown := rules
	truncated := 0
	if len(rules) > dumpRulesCap {
		shown = rules[:dumpRulesCap]
		truncated = len(rules) - dumpRulesCap
	}
	for _, rule := range shown {
		w.Write([]byte(rule.Pattern.HostMatcher().String() + " -> " + rule.Target.String() + "\n"))
	}
	if truncated > 0 {
		w.Write([]byte(formatOmitted(truncated)))
	}
}

func formatOmitted(n int) string {
	return "...(" + itoa(n) + " more omitted)\n"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func (s *Server) publishRule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rule string `json:"rule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}

	pattern, target, err := proxy.ParseRule(body.Rule)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.managerMu.Lock()
	s.manager.AddRule(pattern, target)
	s.managerMu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{"message": "rule published successfully"})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	s.managerMu.RLock()
	stats := s.manager.Stats()
	exactCount := s.manager.ExactRuleCount()
	patternCount := s.manager.PatternRuleCount()
	s.managerMu.RUnlock()

	metrics.RecordRuleStats(stats.CacheHits, stats.ExactHits, stats.PatternHits, stats.Misses)
	metrics.RecordRuleTableSize(exactCount, patternCount)

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "running",
		"config_versions": s.versionManager.Len(),
	})
}

// RuleFromConfig converts a config-file rule entry into the pattern/target
// pair ProxyManager.AddRule expects. Exported so cmd/warden can populate the
// manager at startup with the same conversion logic the admin API uses for
// rollback.
func RuleFromConfig(rc config.RuleConfig) (proxy.AddressPattern, proxy.Address, error) {
	protocol, err := proxy.ParseProtocol(orHTTP(rc.Protocol))
	if err != nil {
		return proxy.AddressPattern{}, proxy.Address{}, err
	}
	var port *int
	if rc.Port != 0 {
		p := rc.Port
		port = &p
	}
	pattern, err := proxy.NewAddressPattern(protocol, rc.Host, port, rc.Path)
	if err != nil {
		return proxy.AddressPattern{}, proxy.Address{}, err
	}

	targetProtocol := protocol
	if rc.TargetProtocol != "" {
		targetProtocol, err = proxy.ParseProtocol(rc.TargetProtocol)
		if err != nil {
			return proxy.AddressPattern{}, proxy.Address{}, err
		}
	}
	var targetPort *int
	if rc.TargetPort != 0 {
		p := rc.TargetPort
		targetPort = &p
	}
	pathTransform, err := proxy.ParsePathTransformMode(rc.PathTransform)
	if err != nil {
		return proxy.AddressPattern{}, proxy.Address{}, err
	}
	var targetPath *string
	if rc.TargetPath != "" {
		targetPath = &rc.TargetPath
	}

	target := proxy.Address{
		Protocol:          targetProtocol,
		Host:              rc.TargetHost,
		Port:              targetPort,
		Path:              targetPath,
		PathTransformMode: pathTransform,
	}
	return pattern, target, nil
}

func orHTTP(s string) string {
	if s == "" {
		return "http"
	}
	return s
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
