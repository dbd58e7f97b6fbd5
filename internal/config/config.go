// Package config loads inkshelf settings from .inkshelf/config.yaml and
// INKSHELF_* environment variables.
//
// Environment variables override the file; nested keys use underscores, so
// remote.token is INKSHELF_REMOTE_TOKEN.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DirName is the per-project settings directory.
const DirName = ".inkshelf"

// FileName is the config file inside DirName, without extension.
const FileName = "config"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INKSHELF"

// Page map backends.
const (
	PageMapDB   = "db"
	PageMapFile = "file"
)

// ErrNoShelfDir is returned when no .inkshelf directory is found.
var ErrNoShelfDir = errors.New(".inkshelf directory not found (run 'shelf init')")

// Config is the resolved configuration.
type Config struct {
	// Dir is the .inkshelf directory the config was loaded from.
	Dir string `mapstructure:"-"`

	Remote struct {
		Token      string        `mapstructure:"token"`
		RootPageID string        `mapstructure:"root_page_id"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"remote"`

	Sync struct {
		BatchWidth int           `mapstructure:"batch_width"`
		BatchDelay time.Duration `mapstructure:"batch_delay"`
	} `mapstructure:"sync"`

	Daemon struct {
		Debounce time.Duration `mapstructure:"debounce"`
	} `mapstructure:"daemon"`

	Dashboard struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"dashboard"`

	Log struct {
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
	} `mapstructure:"log"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	PageMap struct {
		Backend string `mapstructure:"backend"`
		File    string `mapstructure:"file"`
	} `mapstructure:"pagemap"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.root_page_id", "")
	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("sync.batch_width", 3)
	v.SetDefault("sync.batch_delay", "350ms")
	v.SetDefault("daemon.debounce", "2s")
	v.SetDefault("dashboard.port", 7420)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("db.path", "shelf.db")
	v.SetDefault("pagemap.backend", PageMapDB)
	v.SetDefault("pagemap.file", "pagemap.json")
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName(FileName)
	v.AddConfigPath(dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration of the shelf directory dir. A missing config
// file is not an error; defaults and environment still apply.
func Load(dir string) (*Config, error) {
	v := newViper(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Dir = dir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. Missing remote settings are not an error here;
// commands that talk to the remote check them.
func (c *Config) Validate() error {
	if c.Sync.BatchWidth < 1 {
		return fmt.Errorf("sync.batch_width must be at least 1 (got %d)", c.Sync.BatchWidth)
	}
	if c.Sync.BatchDelay < 0 {
		return fmt.Errorf("sync.batch_delay must not be negative (got %s)", c.Sync.BatchDelay)
	}
	if c.Daemon.Debounce <= 0 {
		return fmt.Errorf("daemon.debounce must be positive (got %s)", c.Daemon.Debounce)
	}
	switch c.PageMap.Backend {
	case PageMapDB, PageMapFile:
	default:
		return fmt.Errorf("invalid pagemap.backend %q (expected: db|file)", c.PageMap.Backend)
	}
	return nil
}

// DBPath returns the database path, resolved against Dir when relative.
func (c *Config) DBPath() string {
	return c.resolve(c.DB.Path)
}

// PageMapPath returns the page map file path used by the file backend.
func (c *Config) PageMapPath() string {
	return c.resolve(c.PageMap.File)
}

// LogPath returns the log file path, or "" when file logging is off.
func (c *Config) LogPath() string {
	if c.Log.File == "" {
		return ""
	}
	return c.resolve(c.Log.File)
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// RemoteReady reports whether remote credentials are configured.
func (c *Config) RemoteReady() error {
	if c.Remote.Token == "" {
		return fmt.Errorf("remote.token is not set (run 'shelf init' or set %s_REMOTE_TOKEN)", EnvPrefix)
	}
	if c.Remote.RootPageID == "" {
		return fmt.Errorf("remote.root_page_id is not set (run 'shelf init' or set %s_REMOTE_ROOT_PAGE_ID)", EnvPrefix)
	}
	return nil
}

// FindShelfDir walks up from start looking for a .inkshelf directory.
func FindShelfDir(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoShelfDir
		}
		dir = parent
	}
}

// Init creates dir and writes config.yaml with the given remote settings.
// Existing keys in the file are kept unless overwritten here.
func Init(dir, token, rootPageID string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	v := newViper(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return "", fmt.Errorf("failed to read config: %w", err)
		}
	}
	if token != "" {
		v.Set("remote.token", token)
	}
	if rootPageID != "" {
		v.Set("remote.root_page_id", rootPageID)
	}

	path := filepath.Join(dir, FileName+".yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return "", fmt.Errorf("failed to restrict %s: %w", path, err)
	}
	return path, nil
}
