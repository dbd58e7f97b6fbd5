package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Sync.BatchWidth != 3 {
		t.Errorf("BatchWidth = %d, want 3", cfg.Sync.BatchWidth)
	}
	if cfg.Sync.BatchDelay != 350*time.Millisecond {
		t.Errorf("BatchDelay = %v, want 350ms", cfg.Sync.BatchDelay)
	}
	if cfg.Daemon.Debounce != 2*time.Second {
		t.Errorf("Debounce = %v, want 2s", cfg.Daemon.Debounce)
	}
	if cfg.PageMap.Backend != PageMapDB {
		t.Errorf("PageMap.Backend = %q, want %q", cfg.PageMap.Backend, PageMapDB)
	}
	if got, want := cfg.DBPath(), filepath.Join(dir, "shelf.db"); got != want {
		t.Errorf("DBPath() = %q, want %q", got, want)
	}
	if cfg.LogPath() != "" {
		t.Errorf("LogPath() = %q, want empty", cfg.LogPath())
	}
	if err := cfg.RemoteReady(); err == nil {
		t.Error("RemoteReady() should fail without a token")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	content := `remote:
  token: secret_file
  root_page_id: root-123
sync:
  batch_width: 5
log:
  file: /var/log/shelf.log
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INKSHELF_REMOTE_TOKEN", "secret_env")
	t.Setenv("INKSHELF_DAEMON_DEBOUNCE", "500ms")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Remote.Token != "secret_env" {
		t.Errorf("Token = %q, want the environment override", cfg.Remote.Token)
	}
	if cfg.Remote.RootPageID != "root-123" {
		t.Errorf("RootPageID = %q, want root-123", cfg.Remote.RootPageID)
	}
	if cfg.Sync.BatchWidth != 5 {
		t.Errorf("BatchWidth = %d, want 5", cfg.Sync.BatchWidth)
	}
	if cfg.Daemon.Debounce != 500*time.Millisecond {
		t.Errorf("Debounce = %v, want 500ms", cfg.Daemon.Debounce)
	}
	if cfg.LogPath() != "/var/log/shelf.log" {
		t.Errorf("LogPath() = %q, absolute paths should be kept", cfg.LogPath())
	}
	if err := cfg.RemoteReady(); err != nil {
		t.Errorf("RemoteReady() = %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"zero batch width", "sync:\n  batch_width: 0\n", "batch_width"},
		{"negative delay", "sync:\n  batch_delay: -1s\n", "batch_delay"},
		{"unknown backend", "pagemap:\n  backend: redis\n", "pagemap.backend"},
		{"malformed yaml", "remote: [\n", "failed to read config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(dir)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestFindShelfDir(t *testing.T) {
	root := t.TempDir()
	shelf := filepath.Join(root, DirName)
	nested := filepath.Join(root, "drafts", "book-one")
	for _, dir := range []string{shelf, nested} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}

	got, err := FindShelfDir(nested)
	if err != nil {
		t.Fatalf("FindShelfDir() failed: %v", err)
	}
	if got != shelf {
		t.Errorf("FindShelfDir() = %q, want %q", got, shelf)
	}

	if _, err := FindShelfDir(t.TempDir()); !errors.Is(err, ErrNoShelfDir) {
		t.Errorf("FindShelfDir() error = %v, want ErrNoShelfDir", err)
	}
}

func TestInitWritesConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DirName)

	path, err := Init(dir, "secret_1", "root-1")
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config mode = %o, want 0600", perm)
	}

	// A second init with only a new root keeps the token.
	if _, err := Init(dir, "", "root-2"); err != nil {
		t.Fatalf("second Init() failed: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Remote.Token != "secret_1" || cfg.Remote.RootPageID != "root-2" {
		t.Errorf("remote = %+v", cfg.Remote)
	}
}
