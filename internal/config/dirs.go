package config

import (
	"os"
	"path/filepath"
)

// AppName is the directory component used under the user's config and
// state/cache directories.
const AppName = "warden"

// UserConfigDir returns $XDG_CONFIG_HOME/warden (or the platform equivalent
// via os.UserConfigDir), or "" if it cannot be determined.
func UserConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, AppName)
}

// UserConfigFilePath returns the default config.toml path under
// UserConfigDir.
func UserConfigFilePath() string {
	dir := UserConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.toml")
}

// userStateDir returns $XDG_CACHE_HOME/warden (or the platform equivalent via
// os.UserCacheDir) as the home for generated CA material, mirroring the
// original's user_state_dir.
func userStateDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, AppName)
}

// DefaultCACertPath returns the default path CA certificate material is
// generated to and loaded from when --ca-cert is not given.
func DefaultCACertPath() string {
	dir := userStateDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "warden-ca-cert.pem")
}

// DefaultCAKeyPath returns the default path CA private key material is
// generated to and loaded from when --ca-key is not given.
func DefaultCAKeyPath() string {
	dir := userStateDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "warden-ca-key.pem")
}
