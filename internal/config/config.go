// Package config handles configuration loading, validation, and management for dotmatrix.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"dotmatrix/internal/alphabet"
	"dotmatrix/internal/logging"
	"dotmatrix/internal/security"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete dotmatrix configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Alphabet is the byte alphabet every layer validates against.
	Alphabet alphabet.Config `toml:"alphabet" json:"alphabet" yaml:"alphabet"`

	// Kernel configures the write-path session.
	Kernel KernelConfig `toml:"kernel" json:"kernel" yaml:"kernel"`

	// Paths configures destination checks.
	Paths PathsConfig `toml:"paths" json:"paths" yaml:"paths"`

	// Journal configures the strike history database.
	Journal JournalConfig `toml:"journal" json:"journal" yaml:"journal"`

	// Metrics configures the textfile metrics export.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Audit configures the JSON-lines audit trail.
	Audit AuditConfig `toml:"audit" json:"audit" yaml:"audit"`

	mu sync.RWMutex
}

// KernelConfig holds write-path settings.
type KernelConfig struct {
	// Executor is an optional external executor binary probed by
	// CheckAvailable. Empty means the in-process kernel.
	Executor string `toml:"executor" json:"executor" yaml:"executor"`

	// FileMode is the octal permission string for created substrates.
	FileMode string `toml:"file_mode" json:"file_mode" yaml:"file_mode"`

	// Lock takes an exclusive advisory lock on the substrate while open.
	Lock bool `toml:"lock" json:"lock" yaml:"lock"`

	// SyncEachStrike fsyncs after every byte.
	SyncEachStrike bool `toml:"sync_each_strike" json:"sync_each_strike" yaml:"sync_each_strike"`
}

// PathsConfig holds destination path settings.
type PathsConfig struct {
	// OutputDir is prepended to relative strike destinations.
	OutputDir string `toml:"output_dir" json:"output_dir" yaml:"output_dir"`

	// AllowedRoots restricts destinations to these directories when set.
	AllowedRoots []string `toml:"allowed_roots" json:"allowed_roots" yaml:"allowed_roots"`

	// MaxPathLength bounds destination length.
	MaxPathLength int `toml:"max_path_length" json:"max_path_length" yaml:"max_path_length"`
}

// JournalConfig holds strike journal settings.
type JournalConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// TextfilePath is rewritten after every command when enabled. A .json
	// extension selects a JSON snapshot over the Prometheus text format.
	TextfilePath string `toml:"textfile_path" json:"textfile_path" yaml:"textfile_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dir := DataDir()
	return &Config{
		Version:  Version,
		Alphabet: alphabet.DefaultConfig(),
		Kernel: KernelConfig{
			FileMode: "0644",
			Lock:     true,
		},
		Paths: PathsConfig{
			MaxPathLength: 4096,
		},
		Journal: JournalConfig{
			Enabled:       false,
			Path:          filepath.Join(dir, "journal.db"),
			BusyTimeoutMs: 5000,
		},
		Metrics: MetricsConfig{
			Enabled:      false,
			TextfilePath: filepath.Join(dir, "metrics", "dotmatrix.prom"),
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "logs", "dotmatrix.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			FilePath:   filepath.Join(dir, "logs", "audit.log"),
			MaxSizeMB:  50,
			MaxBackups: 10,
			MaxAgeDays: 90,
			Compress:   true,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// Model builds an alphabet.Model from the [alphabet] section. Every caller
// gets its own instance.
func (c *Config) Model() (*alphabet.Model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return alphabet.New(c.Alphabet)
}

// FileMode parses Kernel.FileMode, falling back to the substrate default
// when empty.
func (c *Config) FileMode() (os.FileMode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseFileMode(c.Kernel.FileMode)
}

func parseFileMode(s string) (os.FileMode, error) {
	if s == "" {
		return security.PermSubstrate, nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if err != nil || v > 0777 {
		return 0, fmt.Errorf("invalid file mode %q", s)
	}
	return os.FileMode(v), nil
}

// PathValidator builds the destination validator from the [paths] section.
func (c *Config) PathValidator() *security.PathValidator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v := security.DefaultPathValidator()
	if c.Paths.MaxPathLength > 0 {
		v.MaxPathLength = c.Paths.MaxPathLength
	}
	v.AllowedRoots = append([]string(nil), c.Paths.AllowedRoots...)
	return v
}

// LoggerConfig converts the [logging] section for logging.New.
func (c *Config) LoggerConfig() (*logging.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     c.Logging.Output,
		FilePath:   c.Logging.FilePath,
		MaxSize:    int64(c.Logging.MaxSizeMB),
		MaxAge:     c.Logging.MaxAgeDays,
		MaxBackups: c.Logging.MaxBackups,
		Compress:   c.Logging.Compress,
		Component:  "dotmatrix",
	}, nil
}

// AuditLoggerConfig converts the [audit] section. It returns nil when the
// audit trail is disabled.
func (c *Config) AuditLoggerConfig() *logging.AuditLoggerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.Audit.Enabled {
		return nil
	}
	return &logging.AuditLoggerConfig{
		FilePath:   c.Audit.FilePath,
		MaxSize:    int64(c.Audit.MaxSizeMB),
		MaxAge:     c.Audit.MaxAgeDays,
		MaxBackups: c.Audit.MaxBackups,
		Compress:   c.Audit.Compress,
		Component:  "dotmatrix",
	}
}

// ResolveDestination joins a relative destination onto Paths.OutputDir.
// Absolute destinations and an empty OutputDir leave path unchanged.
func (c *Config) ResolveDestination(path string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Paths.OutputDir == "" || path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Paths.OutputDir, path)
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with DOTMATRIX_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("DOTMATRIX_MAX_BYTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Alphabet.MaxByte = n
		}
	}
	if v := os.Getenv("DOTMATRIX_EXECUTOR"); v != "" {
		c.Kernel.Executor = v
	}
	if v := os.Getenv("DOTMATRIX_OUTPUT_DIR"); v != "" {
		c.Paths.OutputDir = v
	}
	if v := os.Getenv("DOTMATRIX_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
		c.Journal.Enabled = true
	}
	if v := os.Getenv("DOTMATRIX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOTMATRIX_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("DOTMATRIX_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("DOTMATRIX_AUDIT_PATH"); v != "" {
		c.Audit.FilePath = v
		c.Audit.Enabled = true
	}
	if v := os.Getenv("DOTMATRIX_METRICS_PATH"); v != "" {
		c.Metrics.TextfilePath = v
		c.Metrics.Enabled = true
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:  c.Version,
		Alphabet: alphabet.Config{MaxByte: c.Alphabet.MaxByte},
		Kernel:   c.Kernel,
		Paths:    c.Paths,
		Journal:  c.Journal,
		Metrics:  c.Metrics,
		Logging:  c.Logging,
		Audit:    c.Audit,
	}
	clone.Alphabet.Forbidden = append([]alphabet.Forbidden{}, c.Alphabet.Forbidden...)
	clone.Paths.AllowedRoots = append([]string{}, c.Paths.AllowedRoots...)
	return clone
}

// EnsureDirectories creates the directories the enabled sections write into.
func (c *Config) EnsureDirectories() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var dirs []string
	if c.Journal.Enabled {
		dirs = append(dirs, filepath.Dir(c.Journal.Path))
	}
	if c.Audit.Enabled {
		dirs = append(dirs, filepath.Dir(c.Audit.FilePath))
	}
	if c.Metrics.Enabled {
		dirs = append(dirs, filepath.Dir(c.Metrics.TextfilePath))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
