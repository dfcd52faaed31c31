package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/warden-proxy/warden/internal/config"
	"github.com/warden-proxy/warden/internal/proxy"
)

const testConfigTOML = `
[server]
listen = ":8080"
read_timeout = "30s"
write_timeout = "30s"
shutdown_timeout = "30s"

[proxy]
cache_size = 1000

[[proxy.rules]]
protocol = "http"
host = "example.com"
target_host = "127.0.0.1"
target_port = 9001

[logging]
level = "info"
format = "json"
`

func setupAdmin(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "warden.toml")
	if err := os.WriteFile(cfgPath, []byte(testConfigTOML), 0644); err != nil {
		t.Fatal(err)
	}
	cl := config.NewLoader(cfgPath)
	cfg, err := cl.Load()
	if err != nil {
		t.Fatal(err)
	}
	vm := config.NewVersionManager(10)
	vm.Save(cfg, []byte(testConfigTOML))

	manager := proxy.NewProxyManager(cfg.Proxy.CacheSize)
	for _, rc := range cfg.Proxy.Rules {
		pattern, target, err := RuleFromConfig(rc)
		if err != nil {
			t.Fatal(err)
		}
		manager.AddRule(pattern, target)
	}
	var mu sync.RWMutex
	return New(cl, vm, manager, &mu)
}

func TestGetConfig(t *testing.T) {
	s := setupAdmin(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if _, ok := result["Proxy"]; !ok {
		t.Fatal("expected proxy config in response")
	}
}

func TestGetConfig_NoConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "warden.toml")
	if err := os.WriteFile(cfgPath, []byte(testConfigTOML), 0644); err != nil {
		t.Fatal(err)
	}
	cl := config.NewLoader(cfgPath)
	vm := config.NewVersionManager(10)
	manager := proxy.NewProxyManager(10)
	var mu sync.RWMutex
	s := New(cl, vm, manager, &mu)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var result map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result["error"] != "no configuration loaded" {
		t.Fatalf("unexpected error: %s", result["error"])
	}
}

func TestListVersions(t *testing.T) {
	s := setupAdmin(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/config/versions", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var result []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 version, got %d", len(result))
	}
}

func TestRollbackConfig(t *testing.T) {
	s := setupAdmin(t)
	cfg := s.configLoader.Current()
	s.versionManager.Save(cfg, []byte(testConfigTOML))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/config/rollback", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var result map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result["message"] != "configuration rolled back successfully" {
		t.Fatalf("unexpected message: %s", result["message"])
	}
}

func TestRollbackConfig_NoHistory(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "warden.toml")
	if err := os.WriteFile(cfgPath, []byte(testConfigTOML), 0644); err != nil {
		t.Fatal(err)
	}
	cl := config.NewLoader(cfgPath)
	vm := config.NewVersionManager(10)
	manager := proxy.NewProxyManager(10)
	var mu sync.RWMutex
	s := New(cl, vm, manager, &mu)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/config/rollback", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListVersionsIncludesID(t *testing.T) {
	s := setupAdmin(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/config/versions", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var result []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 version, got %d", len(result))
	}
	id, _ := result[0]["id"].(string)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected a valid uuid id field, got %q: %v", id, err)
	}
}

func TestRollbackConfigByID(t *testing.T) {
	s := setupAdmin(t)
	first := s.versionManager.Current()
	s.versionManager.Save(s.configLoader.Current(), []byte(testConfigTOML))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/config/rollback?id="+first.ID.String(), nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	cur := s.versionManager.Current()
	if cur.Hash != first.Hash {
		t.Errorf("expected rollback-by-id to restore the targeted snapshot's hash, got %q want %q", cur.Hash, first.Hash)
	}
}

func TestRollbackConfigByIDUnknown(t *testing.T) {
	s := setupAdmin(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/config/rollback?id="+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown version id, got %d", w.Code)
	}
}

func TestListRules(t *testing.T) {
	s := setupAdmin(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var result []ruleListEntry
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(result))
	}
	if result[0].Pattern != "example.com" {
		t.Fatalf("expected pattern example.com, got %v", result[0].Pattern)
	}
}

func TestDumpRulesCapsAndSummarizes(t *testing.T) {
	manager := proxy.NewProxyManager(100)
	for i := 0; i < 25; i++ {
		pattern, err := proxy.NewAddressPattern(proxy.ProtocolHTTP, "re:^h"+itoa(i)+"$", nil, "")
		if err != nil {
			t.Fatal(err)
		}
		manager.AddRule(pattern, proxy.Address{Protocol: proxy.ProtocolHTTP, Host: "backend"})
	}
	var mu sync.RWMutex
	s := &Server{manager: manager, managerMu: &mu}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules/dump", nil)
	w := httptest.NewRecorder()
	s.dumpRules(w, req)

	body := w.Body.String()
	if !bytes.Contains([]byte(body), []byte("5 more omitted")) {
		t.Errorf("expected a summary of the 5 omitted rules, got: %s", body)
	}
}

func TestPublishRule(t *testing.T) {
	s := setupAdmin(t)
	body, _ := json.Marshal(map[string]string{
		"rule": "protocol=http,host=new.example.com,target_host=backend2",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rules", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	s.managerMu.RLock()
	count := s.manager.ExactRuleCount()
	s.managerMu.RUnlock()
	if count != 2 {
		t.Errorf("expected 2 exact rules after publishing, got %d", count)
	}
}

func TestPublishRuleInvalid(t *testing.T) {
	s := setupAdmin(t)
	body, _ := json.Marshal(map[string]string{"rule": "host=missing-protocol"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rules", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetStats(t *testing.T) {
	s := setupAdmin(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestGetStatus(t *testing.T) {
	s := setupAdmin(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result["status"] != "running" {
		t.Fatalf("expected status 'running', got %v", result["status"])
	}
	if result["config_versions"].(float64) != 1 {
		t.Fatalf("expected 1 config version, got %v", result["config_versions"])
	}
}
