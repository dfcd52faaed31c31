package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConfigVersion is a saved snapshot of a loaded rule configuration. Version
// is a monotonically increasing sequence number used for ordering and
// trimming history; ID is the stable identifier an admin API client
// actually addresses a snapshot by (see RollbackTo).
type ConfigVersion struct {
	ID        uuid.UUID
	Version   int
	Hash      string
	Timestamp time.Time
	Config    *Config
}

// VersionManager manages configuration version history with rollback
// support, one per running ProxyManager. The startup load and every
// successful file-watch reload call Save; rules published through the admin
// API are not snapshotted. The admin rollback API walks this history by ID.
type VersionManager struct {
	mu         sync.Mutex
	versions   []ConfigVersion
	maxHistory int
	nextVer    int
}

// NewVersionManager creates a new VersionManager. If maxHistory <= 0, defaults to 10.
func NewVersionManager(maxHistory int) *VersionManager {
	if maxHistory <= 0 {
		maxHistory = 10
	}
	return &VersionManager{
		versions:   make([]ConfigVersion, 0),
		maxHistory: maxHistory,
	}
}

// Save saves a new configuration version computed from rawData and returns
// its ID.
func (vm *VersionManager) Save(cfg *Config, rawData []byte) uuid.UUID {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	hash := fmt.Sprintf("%x", sha256.Sum256(rawData))
	vm.nextVer++
	version := vm.nextVer
	id := uuid.New()

	vm.versions = append(vm.versions, ConfigVersion{
		ID:        id,
		Version:   version,
		Hash:      hash,
		Timestamp: time.Now(),
		Config:    cfg,
	})

	if len(vm.versions) > vm.maxHistory {
		dropped := len(vm.versions) - vm.maxHistory
		vm.versions = vm.versions[dropped:]
	}

	slog.Info("config version saved",
		slog.String("id", id.String()),
		slog.Int("version", version),
		slog.String("hash", hash),
	)
	return id
}

// Current returns the latest configuration version, or nil if none exist.
func (vm *VersionManager) Current() *ConfigVersion {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if len(vm.versions) == 0 {
		return nil
	}
	v := vm.versions[len(vm.versions)-1]
	return &v
}

// Previous returns the second-to-last configuration version, or nil if fewer than 2 exist.
func (vm *VersionManager) Previous() *ConfigVersion {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if len(vm.versions) < 2 {
		return nil
	}
	v := vm.versions[len(vm.versions)-2]
	return &v
}

// List returns a copy of the version history.
func (vm *VersionManager) List() []ConfigVersion {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	out := make([]ConfigVersion, len(vm.versions))
	copy(out, vm.versions)
	return out
}

// Rollback rolls back to the previous configuration version, recording the
// rollback itself as a new version so history reads as an append-only log.
func (vm *VersionManager) Rollback() (*Config, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if len(vm.versions) < 2 {
		return nil, fmt.Errorf("no previous version to rollback to")
	}

	prev := vm.versions[len(vm.versions)-2]
	return vm.appendRollbackLocked(prev)
}

// RollbackTo rolls back to the configuration snapshot identified by id,
// which may be any version still in history, not just the immediately
// preceding one. This is what the admin API's rollback endpoint uses when a
// caller names a specific version instead of "undo the last change".
func (vm *VersionManager) RollbackTo(id uuid.UUID) (*Config, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	for _, v := range vm.versions {
		if v.ID == id {
			return vm.appendRollbackLocked(v)
		}
	}
	return nil, fmt.Errorf("no version with id %s in history", id)
}

// appendRollbackLocked must be called with vm.mu held.
func (vm *VersionManager) appendRollbackLocked(target ConfigVersion) (*Config, error) {
	vm.nextVer++
	version := vm.nextVer
	id := uuid.New()

	vm.versions = append(vm.versions, ConfigVersion{
		ID:        id,
		Version:   version,
		Hash:      target.Hash,
		Timestamp: time.Now(),
		Config:    target.Config,
	})

	if len(vm.versions) > vm.maxHistory {
		dropped := len(vm.versions) - vm.maxHistory
		vm.versions = vm.versions[dropped:]
	}

	slog.Info("config rolled back",
		slog.String("new_id", id.String()),
		slog.String("restored_from_id", target.ID.String()),
		slog.Int("restored_from_version", target.Version),
	)
	return target.Config, nil
}

// Len returns the number of stored versions.
func (vm *VersionManager) Len() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	return len(vm.versions)
}
