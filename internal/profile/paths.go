// Package profile lays out a profile's files on disk and resolves which
// profile is active.
package profile

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/messageai/tacsync/internal/config"
)

// DefaultName is the profile used when nothing else selects one.
const DefaultName = "main"

// Layout roots every profile path. The zero value is not usable; call
// DefaultLayout or set Root.
type Layout struct {
	Root string
}

// DefaultLayout roots paths at $TACSYNC_HOME, else ~/.tacsync.
func DefaultLayout() Layout {
	if v := os.Getenv("TACSYNC_HOME"); v != "" {
		return Layout{Root: v}
	}
	home, _ := os.UserHomeDir()
	return Layout{Root: filepath.Join(home, ".tacsync")}
}

// Dir returns the profile-specific directory.
func (l Layout) Dir(name string) string {
	return filepath.Join(l.Root, "profiles", name)
}

// SocketPath returns the daemon's Unix socket.
func (l Layout) SocketPath(name string) string {
	return filepath.Join(l.Dir(name), "daemon.sock")
}

// LockPath returns the single-daemon lock file.
func (l Layout) LockPath(name string) string {
	return filepath.Join(l.Dir(name), "LOCK")
}

// CachePath returns the local SQLite cache.
func (l Layout) CachePath(name string) string {
	return filepath.Join(l.Dir(name), "cache.db")
}

// LogDir returns the log directory for a profile.
func (l Layout) LogDir(name string) string {
	return filepath.Join(l.Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func (l Layout) LogPath(name string) string {
	return filepath.Join(l.LogDir(name), "tacsyncd.log")
}

// ProfileConfigPath returns the profile's profile.toml.
func (l Layout) ProfileConfigPath(name string) string {
	return filepath.Join(l.Dir(name), "profile.toml")
}

// ConfigPath returns the global config file path.
func (l Layout) ConfigPath() string {
	return filepath.Join(l.Root, "config.toml")
}

// EnsureDir creates the profile directory tree with owner-only permissions.
func (l Layout) EnsureDir(name string) error {
	for _, d := range []string{l.Dir(name), l.LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// List returns the names of existing profiles, sorted.
func (l Layout) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.Root, "profiles"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && ValidateName(e.Name()) == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. config.toml default_profile
// 3. "main"
func (l Layout) Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(l.ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}
