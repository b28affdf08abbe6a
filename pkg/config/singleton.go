package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// snapshot pairs a configuration with the file it came from so readers
// never see one without the other.
type snapshot struct {
	cfg  *Config
	path string
}

var (
	current  atomic.Pointer[snapshot]
	initOnce sync.Once
)

// Initialize loads configuration from path with environment overrides and
// installs it as the process-wide configuration. Only the first call loads;
// later calls return nil and leave the configuration alone.
func Initialize(path string) error {
	var initErr error
	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		current.Store(&snapshot{cfg: cfg, path: path})
	})
	return initErr
}

// GetConfig returns the process-wide configuration, or nil before a
// successful Initialize.
func GetConfig() *Config {
	if s := current.Load(); s != nil {
		return s.cfg
	}
	return nil
}

// SetConfig replaces the configuration and keeps the recorded path. Tests
// use it to install fixtures.
func SetConfig(cfg *Config) {
	s := &snapshot{cfg: cfg}
	if prev := current.Load(); prev != nil {
		s.path = prev.path
	}
	current.Store(s)
}

// Path returns the file the configuration was loaded from, empty when it
// came from defaults and the environment alone.
func Path() string {
	if s := current.Load(); s != nil {
		return s.path
	}
	return ""
}

// ReloadConfig loads path and swaps it in. On any load or validation error
// the running configuration stays in place.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	current.Store(&snapshot{cfg: cfg, path: path})
	return nil
}

// MustGetConfig is GetConfig for callers that cannot run unconfigured.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
