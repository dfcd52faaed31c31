package config

import (
	"errors"
	"fmt"

	"github.com/warden-proxy/warden/internal/proxy"
)

// Validate checks the configuration for correctness.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if cfg.Server.Listen == "" {
		return errors.New("server.listen is required")
	}

	if cfg.Proxy.CacheSize < 0 {
		return errors.New("proxy.cache_size must not be negative")
	}

	for i, r := range cfg.Proxy.Rules {
		if err := validateRule(i, r); err != nil {
			return err
		}
	}

	if err := validateCA(cfg.CA); err != nil {
		return err
	}

	return nil
}

func validateRule(index int, r RuleConfig) error {
	if r.Host == "" {
		return fmt.Errorf("proxy.rules[%d].host is required", index)
	}
	if r.TargetHost == "" {
		return fmt.Errorf("proxy.rules[%d].target_host is required", index)
	}
	if _, err := proxy.ParseProtocol(orDefault(r.Protocol, "http")); err != nil {
		return fmt.Errorf("proxy.rules[%d]: %w", index, err)
	}
	if r.TargetProtocol != "" {
		if _, err := proxy.ParseProtocol(r.TargetProtocol); err != nil {
			return fmt.Errorf("proxy.rules[%d]: %w", index, err)
		}
	}
	if _, err := proxy.ParsePathTransformMode(r.PathTransform); err != nil {
		return fmt.Errorf("proxy.rules[%d]: %w", index, err)
	}
	if _, err := proxy.ParsePattern(r.Host); err != nil {
		return fmt.Errorf("proxy.rules[%d].host: %w", index, err)
	}
	if r.Path != "" {
		if _, err := proxy.ParsePattern(r.Path); err != nil {
			return fmt.Errorf("proxy.rules[%d].path: %w", index, err)
		}
	}
	return nil
}

func validateCA(ca CAConfig) error {
	if !ca.Enabled {
		return nil
	}
	if (ca.CertPath == "") != (ca.KeyPath == "") {
		return errors.New("ca.cert_path and ca.key_path must both be set, or both left empty to auto-generate")
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
