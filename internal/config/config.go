package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/michaelscutari/galactic/internal/pathutil"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfigPath       = "GALACTIC_CONFIG"
	EnvRootFolder       = "GALACTIC_ROOT_FOLDER"
	EnvConnectionString = "GALACTIC_CONNECTION_STRING"
	EnvWorkers          = "GALACTIC_WORKERS"
	EnvQueueSize        = "GALACTIC_QUEUE_SIZE"
	EnvMaxErrors        = "GALACTIC_MAX_ERRORS"
	EnvXdev             = "GALACTIC_XDEV"
	EnvLogLevel         = "GALACTIC_LOG_LEVEL"
	EnvLogFile          = "GALACTIC_LOG_FILE"
	EnvMetricsAddr      = "GALACTIC_METRICS_ADDR"
)

var (
	// ErrMissingRoot is returned by Validate when no root folder is configured.
	ErrMissingRoot = errors.New("root_folder is required")

	// ErrMissingConnection is returned by Validate when no store is configured.
	ErrMissingConnection = errors.New("connection_string is required")
)

// Config holds everything needed to run the indexer.
type Config struct {
	RootFolder       string   `yaml:"root_folder"`
	ConnectionString string   `yaml:"connection_string"`
	Workers          int      `yaml:"workers"`    // concurrent reconciliations
	QueueSize        int      `yaml:"queue_size"` // walker-to-pool queue capacity
	MaxErrors        int      `yaml:"max_errors"` // abort after this many errors, 0 = unlimited
	Exclude          []string `yaml:"exclude"`    // regular expressions matched against full paths
	Xdev             bool     `yaml:"xdev"`       // stay on the root's filesystem
	LockFile         string   `yaml:"lock_file,omitempty"`
	LogLevel         string   `yaml:"log_level"` // empty defers to DEBUG / LOG_LEVEL
	LogFile          string   `yaml:"log_file,omitempty"`
	MetricsAddr      string   `yaml:"metrics_addr,omitempty"`
}

// Default returns a config with the pipeline defaults and no root or store.
func Default() *Config {
	return &Config{
		Workers:   4,
		QueueSize: 100,
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path falls back to $GALACTIC_CONFIG; if
// that is unset too, only defaults and environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from GALACTIC_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvRootFolder); v != "" {
		c.RootFolder = v
	}
	if v := os.Getenv(EnvConnectionString); v != "" {
		c.ConnectionString = v
	}
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{EnvWorkers, &c.Workers},
		{EnvQueueSize, &c.QueueSize},
		{EnvMaxErrors, &c.MaxErrors},
	} {
		if v := os.Getenv(f.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", f.name, v, err)
			}
			*f.dst = n
		}
	}
	if v := os.Getenv(EnvXdev); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvXdev, v, err)
		}
		c.Xdev = b
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.MetricsAddr = v
	}
	return nil
}

// Validate checks that the config can start a run and normalizes the root.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	c.RootFolder = strings.TrimSpace(c.RootFolder)
	if c.RootFolder == "" {
		errs = append(errs, ErrMissingRoot)
	} else {
		c.RootFolder = pathutil.Normalize(c.RootFolder)
	}
	c.ConnectionString = strings.TrimSpace(c.ConnectionString)
	if c.ConnectionString == "" {
		errs = append(errs, ErrMissingConnection)
	}

	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queue_size must not be negative, got %d", c.QueueSize))
	}
	if c.MaxErrors < 0 {
		errs = append(errs, fmt.Errorf("max_errors must not be negative, got %d", c.MaxErrors))
	}
	for _, pattern := range c.Exclude {
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err))
		}
	}

	return errors.Join(errs...)
}

// LockPath returns the file used to serialize runs against one store.
func (c *Config) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	conn := c.ConnectionString
	if i := strings.IndexByte(conn, '?'); i >= 0 {
		conn = conn[:i]
	}
	conn = strings.TrimPrefix(conn, "file:")
	if conn == "" || conn == ":memory:" {
		return filepath.Join(os.TempDir(), "galactic.lock")
	}
	return conn + ".lock"
}
