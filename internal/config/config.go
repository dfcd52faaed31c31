package config

import "time"

// Config is the top-level proxy configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Proxy     ProxyConfig     `toml:"proxy"`
	CA        CAConfig        `toml:"ca"`
	Logging   LoggingConfig   `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Auth      AuthConfig      `toml:"auth"`
	Admin     AdminConfig     `toml:"admin"`
	Version   string          `toml:"version,omitempty"`
}

// ServerConfig defines the proxy listener's HTTP server settings.
type ServerConfig struct {
	Listen          string        `toml:"listen"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// ProxyConfig configures the routing core: the rule table and the
// memoization cache in front of it.
type ProxyConfig struct {
	CacheSize int          `toml:"cache_size"`
	Rules     []RuleConfig `toml:"rules"`
}

// RuleConfig is a single routing rule as it appears in a config file. It
// mirrors the textual rule grammar accepted by --rule on the command line,
// split into fields instead of one key=value string.
type RuleConfig struct {
	Protocol       string `toml:"protocol"`
	Host           string `toml:"host"`
	Path           string `toml:"path,omitempty"`
	Port           int    `toml:"port,omitempty"`
	TargetProtocol string `toml:"target_protocol,omitempty"`
	TargetHost     string `toml:"target_host"`
	TargetPort     int    `toml:"target_port,omitempty"`
	PathTransform  string `toml:"path_transform,omitempty"`
	TargetPath     string `toml:"target_path,omitempty"`
}

// CAConfig configures the certificate authority used for HTTPS interception.
type CAConfig struct {
	// Enabled mirrors the inverse of the --noca flag: false runs in
	// no-certificate mode, where HTTPS connections always pass through.
	Enabled bool `toml:"enabled"`

	// CertPath/KeyPath point at existing CA material to load. When both
	// are empty, the default state-directory paths are used: existing
	// material there is loaded, otherwise a fresh self-signed CA is
	// generated at startup and persisted there.
	CertPath string `toml:"cert_path,omitempty"`
	KeyPath  string `toml:"key_path,omitempty"`

	CommonName string        `toml:"common_name,omitempty"`
	Validity   time.Duration `toml:"validity,omitempty"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// RateLimitConfig defines rate limiting settings.
type RateLimitConfig struct {
	Enabled bool          `toml:"enabled"`
	Rate    int           `toml:"rate"`
	Window  time.Duration `toml:"window"`
}

// AuthConfig defines authentication settings protecting the admin API.
type AuthConfig struct {
	APIKey APIKeyConfig `toml:"api_key"`
}

// APIKeyConfig defines API key authentication settings.
type APIKeyConfig struct {
	Enabled bool              `toml:"enabled"`
	Keys    map[string]string `toml:"keys"` // key → consumer name
}

// AdminConfig defines admin API settings.
type AdminConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}
