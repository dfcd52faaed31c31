package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadValidConfig(t *testing.T) {
	content := `
[server]
listen = ":8080"
read_timeout = "30s"
write_timeout = "30s"
shutdown_timeout = "30s"

[proxy]
cache_size = 500

[[proxy.rules]]
protocol = "http"
host = "example.com"
target_host = "127.0.0.1"
target_port = 9001

[logging]
level = "info"
format = "json"
`
	path := writeTemp(t, content)
	loader := NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("expected listen :8080, got %s", cfg.Server.Listen)
	}
	if len(cfg.Proxy.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(cfg.Proxy.Rules))
	}
	if cfg.Proxy.Rules[0].Host != "example.com" {
		t.Errorf("expected rule host example.com, got %s", cfg.Proxy.Rules[0].Host)
	}

	cur := loader.Current()
	if cur == nil {
		t.Fatal("Current() should return loaded config")
	}
	if cur.Server.Listen != cfg.Server.Listen {
		t.Error("Current() should match loaded config")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := writeTemp(t, "{{invalid toml")
	loader := NewLoader(path)
	_, err := loader.Load()
	if err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader("/nonexistent/path.toml")
	_, err := loader.Load()
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	content := `
[server]
listen = ""
`
	path := writeTemp(t, content)
	loader := NewLoader(path)
	_, err := loader.Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCurrentReturnsNilBeforeLoad(t *testing.T) {
	loader := NewLoader("nonexistent.toml")
	if loader.Current() != nil {
		t.Error("Current() should return nil before Load()")
	}
}

func TestMergeSourcesPrecedence(t *testing.T) {
	dir := t.TempDir()

	userPath := filepath.Join(dir, "user.toml")
	writeFile(t, userPath, `
[server]
listen = "127.0.0.1:1111"
[proxy]
cache_size = 100
`)

	cwdPath := filepath.Join(dir, "config.toml")
	writeFile(t, cwdPath, `
[server]
listen = "127.0.0.1:2222"
`)

	explicitPath := filepath.Join(dir, "explicit.toml")
	writeFile(t, explicitPath, `
[server]
listen = "127.0.0.1:3333"
`)

	cfg, err := MergeSources(Sources{
		UserConfigPath: userPath,
		CWDCandidates:  []string{cwdPath},
		ExplicitPath:   explicitPath,
	}, CLIOverrides{})
	if err != nil {
		t.Fatalf("MergeSources: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:3333" {
		t.Errorf("expected the explicit --config path to win, got %s", cfg.Server.Listen)
	}
	if cfg.Proxy.CacheSize != 100 {
		t.Errorf("expected cache_size inherited from the user config, got %d", cfg.Proxy.CacheSize)
	}
}

func TestMergeSourcesCLIOverridesWinOverFiles(t *testing.T) {
	dir := t.TempDir()
	cwdPath := filepath.Join(dir, "config.toml")
	writeFile(t, cwdPath, `
[server]
listen = "127.0.0.1:2222"
`)

	cfg, err := MergeSources(Sources{CWDCandidates: []string{cwdPath}}, CLIOverrides{
		Listen: "127.0.0.1:9999",
		Rules: []RuleConfig{
			{Protocol: "http", Host: "example.com", TargetHost: "backend"},
		},
	})
	if err != nil {
		t.Fatalf("MergeSources: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:9999" {
		t.Errorf("expected CLI listen override to win, got %s", cfg.Server.Listen)
	}
	if len(cfg.Proxy.Rules) != 1 {
		t.Fatalf("expected the CLI rule to be appended, got %d rules", len(cfg.Proxy.Rules))
	}
}

func TestMergeSourcesDefaultsApplyWhenNothingSet(t *testing.T) {
	cfg, err := MergeSources(Sources{}, CLIOverrides{})
	if err != nil {
		t.Fatalf("MergeSources: %v", err)
	}
	if cfg.Server.Listen == "" {
		t.Error("expected a default listen address")
	}
	if cfg.Proxy.CacheSize == 0 {
		t.Error("expected a default cache size")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, content)
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}
