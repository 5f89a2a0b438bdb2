package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/messageai/tacsync/internal/config"
)

func TestDefaultLayoutHonorsEnv(t *testing.T) {
	t.Setenv("TACSYNC_HOME", "/srv/tacsync")
	if got := DefaultLayout().Dir("main"); got != filepath.Join("/srv/tacsync", "profiles", "main") {
		t.Errorf("Dir(main) = %q", got)
	}
}

func TestDefaultLayoutUsesHome(t *testing.T) {
	t.Setenv("TACSYNC_HOME", "")
	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".tacsync", "profiles", "main")
	if got := DefaultLayout().Dir("main"); got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestPaths(t *testing.T) {
	l := Layout{Root: "/r"}
	tests := []struct {
		got, suffix string
	}{
		{l.SocketPath("p"), filepath.Join("profiles", "p", "daemon.sock")},
		{l.LockPath("p"), filepath.Join("profiles", "p", "LOCK")},
		{l.CachePath("p"), filepath.Join("profiles", "p", "cache.db")},
		{l.LogPath("p"), filepath.Join("profiles", "p", "logs", "tacsyncd.log")},
		{l.ProfileConfigPath("p"), filepath.Join("profiles", "p", "profile.toml")},
		{l.ConfigPath(), filepath.Join("/r", "config.toml")},
	}
	for _, tt := range tests {
		if !strings.HasSuffix(tt.got, tt.suffix) {
			t.Errorf("path %q, want suffix %q", tt.got, tt.suffix)
		}
	}
}

func TestEnsureDirAndList(t *testing.T) {
	l := Layout{Root: t.TempDir()}

	names, err := l.List()
	if err != nil || len(names) != 0 {
		t.Fatalf("List() on empty root = %v, %v", names, err)
	}

	for _, n := range []string{"zulu", "alpha"} {
		if err := l.EnsureDir(n); err != nil {
			t.Fatal(err)
		}
	}
	info, err := os.Stat(l.LogDir("alpha"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("log dir permission = %o, want 0700", perm)
	}

	names, err = l.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zulu" {
		t.Errorf("List() = %v, want [alpha zulu]", names)
	}
}

func TestResolvePrecedence(t *testing.T) {
	l := Layout{Root: t.TempDir()}

	if got := l.Resolve(""); got != DefaultName {
		t.Errorf("Resolve with nothing set = %q, want %q", got, DefaultName)
	}

	if err := config.Save(l.ConfigPath(), &config.Global{DefaultProfile: "ops"}); err != nil {
		t.Fatal(err)
	}
	if got := l.Resolve(""); got != "ops" {
		t.Errorf("Resolve with config = %q, want ops", got)
	}
	if got := l.Resolve("flagged"); got != "flagged" {
		t.Errorf("Resolve with flag = %q, want flagged", got)
	}
}
