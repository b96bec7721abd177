package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

const (
	defaultListen         = "127.0.0.1:8080"
	defaultTimezone       = "Local"
	defaultDatabase       = "./var/jobcal.db"
	defaultCalendarFile   = "./var/jobcal.ics"
	defaultResync         = "*/15 * * * *"
	defaultLookupDebounce = 600
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used when parsing and printing times
	// (e.g. "America/Chicago"). "Local" uses the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// HomeAddress is the origin for drive-time lookups. Empty means unknown;
	// drive-time refresh is rejected until it is set.
	HomeAddress string `yaml:"home_address" json:"home_address"`

	// Database is the sqlite file holding jobs.
	Database string `yaml:"database" json:"database"`

	// CalendarFile is the ICS file jobs are synced into.
	CalendarFile string `yaml:"calendar_file" json:"calendar_file"`

	// Resync is a cron-style schedule for re-submitting calendar events and
	// reminders of open jobs while serving.
	Resync string `yaml:"resync" json:"resync"`

	// LookupDebounceMS is how long address edits settle before a drive-time
	// lookup is started.
	LookupDebounceMS int `yaml:"lookup_debounce_ms" json:"lookup_debounce_ms"`

	// RoutingURL is the drive-time endpoint. Empty disables lookups.
	RoutingURL string `yaml:"routing_url" json:"routing_url"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// mu guards HomeAddress, the only field rewritten while serving, and
	// the snapshot Save marshals.
	mu sync.RWMutex
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           defaultListen,
		Timezone:         defaultTimezone,
		Database:         defaultDatabase,
		CalendarFile:     defaultCalendarFile,
		Resync:           defaultResync,
		LookupDebounceMS: defaultLookupDebounce,
		LogLevel:         "info",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.normalizeLocked()
}

func (c *Config) normalizeLocked() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.CalendarFile == "" {
		c.CalendarFile = defaultCalendarFile
	}
	if c.Resync == "" {
		c.Resync = defaultResync
	}
	if c.LookupDebounceMS <= 0 {
		c.LookupDebounceMS = defaultLookupDebounce
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.HomeAddress = strings.TrimSpace(c.HomeAddress)
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// LookupDebounce is LookupDebounceMS as a duration.
func (c *Config) LookupDebounce() time.Duration {
	return time.Duration(c.LookupDebounceMS) * time.Millisecond
}

// Home returns the configured origin address; ok is false when unset.
func (c *Config) Home() (addr string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	addr = strings.TrimSpace(c.HomeAddress)
	return addr, addr != ""
}

// SetHomeAddress replaces the origin address in memory. Callers persist it
// with Save.
func (c *Config) SetHomeAddress(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.HomeAddress = strings.TrimSpace(addr)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, errors.Wrap(err, "read config")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.mu.Lock()
	cfg.normalizeLocked()
	data, err := yaml.Marshal(cfg)
	cfg.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, leaving a 0600 file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".jobcal-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file")
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return errors.Wrap(err, "chmod temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "rename to %s", path)
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function:
//
//	cfg, _ := config.Load(path)
//	cfg.SetHomeAddress("12 Depot Rd")
//	if err := cfg.Save(path); err != nil { ... }
func (c *Config) Save(path string) error {
	return Save(path, c)
}
