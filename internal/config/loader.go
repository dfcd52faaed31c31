package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"
)

// Loader handles loading and hot-reloading of proxy configuration from a
// single TOML file. For the full user-dir → cwd → --config → CLI merge used
// at startup, see MergeSources.
type Loader struct {
	path    string
	current atomic.Value // stores *Config
}

// NewLoader creates a new configuration loader for the given file path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads and parses the configuration file.
func (l *Loader) Load() (*Config, error) {
	cfg, err := readTOMLFile(l.path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	l.current.Store(cfg)
	return cfg, nil
}

// Current returns the currently loaded configuration.
func (l *Loader) Current() *Config {
	v := l.current.Load()
	if v == nil {
		return nil
	}
	return v.(*Config)
}

// Watch starts watching the configuration file for changes and calls onChange
// when the file is modified. It blocks until the done channel is closed.
func (l *Loader) Watch(onChange func(*Config), done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.path); err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}

	slog.Info("watching config file for changes", slog.String("path", l.path))

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				slog.Info("config file changed, reloading", slog.String("path", l.path))
				cfg, err := l.Load()
				if err != nil {
					slog.Error("failed to reload config, keeping current",
						slog.String("error", err.Error()),
					)
					continue
				}
				if onChange != nil {
					onChange(cfg)
				}
				slog.Info("config reloaded successfully")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config watcher error", slog.String("error", err.Error()))
		case <-done:
			return nil
		}
	}
}

func readTOMLFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// CLIOverrides carries the subset of start-proxy flags that take precedence
// over every file-sourced setting.
type CLIOverrides struct {
	Listen     string
	CACertPath string
	CAKeyPath  string
	NoCA       bool
	Rules      []RuleConfig
}

// Sources describes where MergeSources should look for config files, in
// ascending precedence order: user directory, current directory, then an
// explicit --config path.
type Sources struct {
	UserConfigPath string   // e.g. $XDG_CONFIG_HOME/warden/config.toml
	CWDCandidates  []string // e.g. ["warden.toml", "config.toml"], first existing wins
	ExplicitPath   string   // --config flag; must exist if set
}

// MergeSources loads and merges configuration the way the CLI entry point
// does: user-directory config, then the first existing current-directory
// candidate, then an explicit --config path (each later source's non-zero
// fields override the earlier ones), and finally applies CLI flag overrides,
// which always win.
func MergeSources(sources Sources, overrides CLIOverrides) (*Config, error) {
	merged := Config{CA: CAConfig{Enabled: true}}

	if sources.UserConfigPath != "" {
		if fileExists(sources.UserConfigPath) {
			cfg, err := readTOMLFile(sources.UserConfigPath)
			if err == nil {
				merged = mergeConfig(merged, *cfg)
			} else {
				slog.Warn("failed to read user config, skipping",
					slog.String("path", sources.UserConfigPath), slog.String("error", err.Error()))
			}
		}
	}

	if cwdPath := firstExisting(sources.CWDCandidates); cwdPath != "" {
		cfg, err := readTOMLFile(cwdPath)
		if err == nil {
			merged = mergeConfig(merged, *cfg)
		} else {
			slog.Warn("failed to read current-directory config, skipping",
				slog.String("path", cwdPath), slog.String("error", err.Error()))
		}
	}

	if sources.ExplicitPath != "" {
		cfg, err := readTOMLFile(sources.ExplicitPath)
		if err != nil {
			return nil, err
		}
		merged = mergeConfig(merged, *cfg)
	}

	applyCLIOverrides(&merged, overrides)
	applyDefaults(&merged)

	if err := Validate(&merged); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &merged, nil
}

// mergeConfig overlays non-zero fields of "over" onto "base", field by
// field, mirroring the original implementation's merge_file_cfg.
func mergeConfig(base, over Config) Config {
	if over.Server.Listen != "" {
		base.Server.Listen = over.Server.Listen
	}
	if over.Server.ReadTimeout != 0 {
		base.Server.ReadTimeout = over.Server.ReadTimeout
	}
	if over.Server.WriteTimeout != 0 {
		base.Server.WriteTimeout = over.Server.WriteTimeout
	}
	if over.Server.ShutdownTimeout != 0 {
		base.Server.ShutdownTimeout = over.Server.ShutdownTimeout
	}

	if over.Proxy.CacheSize != 0 {
		base.Proxy.CacheSize = over.Proxy.CacheSize
	}
	if len(over.Proxy.Rules) > 0 {
		base.Proxy.Rules = over.Proxy.Rules
	}

	if over.CA.CertPath != "" {
		base.CA.CertPath = over.CA.CertPath
	}
	if over.CA.KeyPath != "" {
		base.CA.KeyPath = over.CA.KeyPath
	}
	if over.CA.CommonName != "" {
		base.CA.CommonName = over.CA.CommonName
	}
	if over.CA.Validity != 0 {
		base.CA.Validity = over.CA.Validity
	}
	base.CA.Enabled = over.CA.Enabled || base.CA.Enabled

	if over.Logging.Level != "" {
		base.Logging.Level = over.Logging.Level
	}
	if over.Logging.Format != "" {
		base.Logging.Format = over.Logging.Format
	}

	if over.RateLimit.Enabled {
		base.RateLimit = over.RateLimit
	}
	if over.Auth.APIKey.Enabled {
		base.Auth = over.Auth
	}
	if over.Admin.Enabled {
		base.Admin = over.Admin
	}

	return base
}

func applyCLIOverrides(cfg *Config, overrides CLIOverrides) {
	if overrides.Listen != "" {
		cfg.Server.Listen = overrides.Listen
	}
	if overrides.CACertPath != "" {
		cfg.CA.CertPath = overrides.CACertPath
	}
	if overrides.CAKeyPath != "" {
		cfg.CA.KeyPath = overrides.CAKeyPath
	}
	if overrides.NoCA {
		cfg.CA.Enabled = false
	}
	// CLI rule flags append to whatever rules the merged files already
	// declared, they never replace them.
	cfg.Proxy.Rules = append(cfg.Proxy.Rules, overrides.Rules...)
}

// applyDefaults fills in defaults for anything no source set. CA.Enabled is
// not defaulted here: MergeSources starts from CA.Enabled=true, mergeConfig
// ORs it across layers, and only --noca (applyCLIOverrides) turns it off, so
// the proxy intercepts HTTPS by default. A file's [ca].enabled=false reads
// the same as an unset field and does not disable interception.
func applyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = "127.0.0.1:7898"
	}
	if cfg.Proxy.CacheSize == 0 {
		cfg.Proxy.CacheSize = 1000
	}
	if cfg.CA.CommonName == "" {
		cfg.CA.CommonName = "Warden Proxy CA"
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func firstExisting(candidates []string) string {
	for _, c := range candidates {
		if fileExists(c) {
			return c
		}
	}
	return ""
}
