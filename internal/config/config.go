// Package config reads and writes the global and per-profile TOML files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Remote modes.
const (
	ModeMemory   = "memory"
	ModePostgres = "postgres"
)

// Global represents ~/.tacsync/config.toml.
type Global struct {
	DefaultProfile string `toml:"default_profile"`
}

// Profile represents a profile's profile.toml.
type Profile struct {
	UserID string `toml:"user_id"`
	Remote Remote `toml:"remote"`
	Sync   Sync   `toml:"sync"`
	Outbox Outbox `toml:"outbox"`
}

// Remote selects and locates the remote feed.
type Remote struct {
	Mode        string `toml:"mode"`
	PostgresURL string `toml:"postgres_url"`
	RedisURL    string `toml:"redis_url"`
}

// Sync tunes paging and connectivity probing.
type Sync struct {
	PageSize      int      `toml:"page_size"`
	ProbeInterval Duration `toml:"probe_interval"`
}

// Outbox tunes send retries.
type Outbox struct {
	InitialBackoff Duration `toml:"initial_backoff"`
	MaxBackoff     Duration `toml:"max_backoff"`
	MaxAttempts    int      `toml:"max_attempts"`
}

// Duration is a time.Duration written as a string such as "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultProfile returns the settings used when profile.toml is missing.
func DefaultProfile() *Profile {
	return &Profile{
		Remote: Remote{Mode: ModeMemory},
		Sync: Sync{
			PageSize:      50,
			ProbeInterval: Duration{5 * time.Second},
		},
		Outbox: Outbox{
			InitialBackoff: Duration{2 * time.Second},
			MaxBackoff:     Duration{5 * time.Hour},
		},
	}
}

// Validate checks the settings a daemon cannot start without.
func (p *Profile) Validate() error {
	switch p.Remote.Mode {
	case ModeMemory:
	case ModePostgres:
		if p.Remote.PostgresURL == "" {
			return errors.New("config: remote.postgres_url is required in postgres mode")
		}
		if p.Remote.RedisURL == "" {
			return errors.New("config: remote.redis_url is required in postgres mode")
		}
	default:
		return fmt.Errorf("config: unknown remote.mode %q", p.Remote.Mode)
	}
	if p.Sync.PageSize <= 0 {
		return fmt.Errorf("config: sync.page_size must be positive, got %d", p.Sync.PageSize)
	}
	if p.Outbox.MaxAttempts < 0 {
		return fmt.Errorf("config: outbox.max_attempts must not be negative, got %d", p.Outbox.MaxAttempts)
	}
	return nil
}

// ApplyEnv overrides connection settings from TACSYNC_USER_ID,
// TACSYNC_POSTGRES_URL and TACSYNC_REDIS_URL when they are set.
func (p *Profile) ApplyEnv() {
	if v := os.Getenv("TACSYNC_USER_ID"); v != "" {
		p.UserID = v
	}
	if v := os.Getenv("TACSYNC_POSTGRES_URL"); v != "" {
		p.Remote.PostgresURL = v
	}
	if v := os.Getenv("TACSYNC_REDIS_URL"); v != "" {
		p.Remote.RedisURL = v
	}
}

// Load reads the global config from the given path. Returns error if file missing.
func Load(path string) (*Global, error) {
	var cfg Global
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the global config to the given path.
func Save(path string, cfg *Global) error {
	return writeTOML(path, cfg)
}

// LoadProfile reads a profile.toml over the defaults. A missing file yields
// the defaults.
func LoadProfile(path string) (*Profile, error) {
	cfg := DefaultProfile()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// SaveProfile writes a profile.toml.
func SaveProfile(path string, cfg *Profile) error {
	return writeTOML(path, cfg)
}

// writeTOML writes v to path with 0600 permissions, creating parent dirs as needed.
func writeTOML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
