package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// Fields returns the offending field names in order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, err := range e {
		fields = append(fields, err.Field)
	}
	return fields
}

// ValidateConfig performs validation of every section.
func ValidateConfig(c *Config) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	if err := c.Alphabet.Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "alphabet", Message: err.Error()})
	}
	errs = append(errs, validateKernel(&c.Kernel)...)
	errs = append(errs, validatePaths(&c.Paths)...)
	errs = append(errs, validateJournal(&c.Journal)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateAudit(&c.Audit)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateKernel(k *KernelConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := parseFileMode(k.FileMode); err != nil {
		errs = append(errs, ValidationError{
			Field:   "kernel.file_mode",
			Message: err.Error(),
		})
	}

	if strings.ContainsRune(k.Executor, 0) {
		errs = append(errs, ValidationError{
			Field:   "kernel.executor",
			Message: "executor contains a null byte",
		})
	}

	return errs
}

func validatePaths(p *PathsConfig) ValidationErrors {
	var errs ValidationErrors

	if p.MaxPathLength < 1 || p.MaxPathLength > 65536 {
		errs = append(errs, *RangeError("paths.max_path_length", 1, 65536))
	}

	if p.OutputDir != "" {
		if info, err := os.Stat(p.OutputDir); err == nil && !info.IsDir() {
			errs = append(errs, ValidationError{
				Field:   "paths.output_dir",
				Message: fmt.Sprintf("not a directory: %s", p.OutputDir),
			})
		}
	}

	for i, root := range p.AllowedRoots {
		if root == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("paths.allowed_roots[%d]", i),
				Message: "root cannot be empty",
			})
		}
	}

	return errs
}

func validateJournal(j *JournalConfig) ValidationErrors {
	var errs ValidationErrors

	if !j.Enabled {
		return errs
	}

	if j.Path == "" {
		errs = append(errs, *RequiredFieldError("journal.path"))
	}
	if j.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "journal.busy_timeout_ms",
			Message: "busy timeout cannot be negative",
		})
	}

	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if m.Enabled && m.TextfilePath == "" {
		return ValidationErrors{*RequiredFieldError("metrics.textfile_path")}
	}
	return nil
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr", "discard":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both, discard)", l.Output),
		})
	}

	errs = append(errs, validateRotation("logging", l.MaxSizeMB, l.MaxBackups, l.MaxAgeDays)...)
	return errs
}

func validateAudit(a *AuditConfig) ValidationErrors {
	var errs ValidationErrors

	if !a.Enabled {
		return errs
	}
	if a.FilePath == "" {
		errs = append(errs, *RequiredFieldError("audit.file_path"))
	}
	errs = append(errs, validateRotation("audit", a.MaxSizeMB, a.MaxBackups, a.MaxAgeDays)...)
	return errs
}

func validateRotation(section string, maxSizeMB, maxBackups, maxAgeDays int) ValidationErrors {
	var errs ValidationErrors

	if maxSizeMB < 0 {
		errs = append(errs, ValidationError{
			Field:   section + ".max_size_mb",
			Message: "max size cannot be negative",
		})
	}
	if maxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   section + ".max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if maxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   section + ".max_age_days",
			Message: "max age cannot be negative",
		})
	}
	return errs
}

// expandPath expands a leading "~/" to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// expandPaths resolves "~/" in every path-valued field. Destinations
// containing "~" are rejected later, so this must run at load time.
func (c *Config) expandPaths() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Paths.OutputDir = expandPath(c.Paths.OutputDir)
	for i, root := range c.Paths.AllowedRoots {
		c.Paths.AllowedRoots[i] = expandPath(root)
	}
	c.Journal.Path = expandPath(c.Journal.Path)
	c.Metrics.TextfilePath = expandPath(c.Metrics.TextfilePath)
	c.Logging.FilePath = expandPath(c.Logging.FilePath)
	c.Audit.FilePath = expandPath(c.Audit.FilePath)
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
