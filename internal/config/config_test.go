package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dotmatrix/internal/alphabet"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	if cfg.Alphabet.MaxByte != 127 {
		t.Errorf("expected max byte 127, got %d", cfg.Alphabet.MaxByte)
	}
	if len(cfg.Alphabet.Forbidden) != 2 {
		t.Errorf("expected 2 forbidden values, got %d", len(cfg.Alphabet.Forbidden))
	}
	if !cfg.Kernel.Lock {
		t.Error("kernel lock should default to true")
	}
	if cfg.Journal.Enabled {
		t.Error("journal should be disabled by default")
	}
	if !strings.Contains(cfg.Journal.Path, "dotmatrix") {
		t.Errorf("journal path should live under dotmatrix: %s", cfg.Journal.Path)
	}
}

func TestDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DOTMATRIX_DATA_DIR", dir)

	if DataDir() != dir {
		t.Errorf("expected %s, got %s", dir, DataDir())
	}
	cfg := DefaultConfig()
	if filepath.Dir(cfg.Journal.Path) != dir {
		t.Errorf("journal path not under override: %s", cfg.Journal.Path)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("DOTMATRIX_CONFIG", "")
	path := ConfigPath()
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}

	t.Setenv("DOTMATRIX_CONFIG", "/etc/dotmatrix.yaml")
	if ConfigPath() != "/etc/dotmatrix.yaml" {
		t.Errorf("DOTMATRIX_CONFIG not honored: %s", ConfigPath())
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Alphabet.MaxByte != 127 {
		t.Errorf("expected defaults, got max byte %d", cfg.Alphabet.MaxByte)
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
version = 1

[alphabet]
max_byte = 255

[[alphabet.forbidden]]
value = 0
description = "null"

[kernel]
file_mode = "0600"
lock = false

[journal]
enabled = true
path = "/var/lib/dotmatrix/journal.db"

[logging]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Alphabet.MaxByte != 255 {
		t.Errorf("expected max byte 255, got %d", cfg.Alphabet.MaxByte)
	}
	if len(cfg.Alphabet.Forbidden) != 1 || cfg.Alphabet.Forbidden[0].Value != 0 {
		t.Errorf("forbidden list not replaced: %+v", cfg.Alphabet.Forbidden)
	}
	if cfg.Kernel.Lock {
		t.Error("expected lock disabled")
	}
	mode, err := cfg.FileMode()
	if err != nil || mode != 0600 {
		t.Errorf("FileMode = %v, %v", mode, err)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Path != "/var/lib/dotmatrix/journal.db" {
		t.Errorf("unexpected journal section %+v", cfg.Journal)
	}
	// Unset keys keep their defaults.
	if cfg.Journal.BusyTimeoutMs != 5000 {
		t.Errorf("expected default busy timeout, got %d", cfg.Journal.BusyTimeoutMs)
	}

	model, err := cfg.Model()
	if err != nil {
		t.Fatalf("Model: %v", err)
	}
	if !model.IsValid(200) || model.IsValid(0) {
		t.Error("model does not reflect the configured alphabet")
	}
}

func TestLoadJSONAndYAML(t *testing.T) {
	jsonPath := writeConfig(t, "config.json", `{"version":1,"paths":{"output_dir":"/srv/out","max_path_length":255}}`)
	yamlPath := writeConfig(t, "config.yaml", "version: 1\npaths:\n  output_dir: /srv/out\n  max_path_length: 255\n")

	for _, path := range []string{jsonPath, yamlPath} {
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) failed: %v", path, err)
		}
		if cfg.Paths.OutputDir != "/srv/out" || cfg.Paths.MaxPathLength != 255 {
			t.Errorf("%s: unexpected paths %+v", filepath.Ext(path), cfg.Paths)
		}
		if cfg.Alphabet.MaxByte != 127 {
			t.Errorf("%s: alphabet default lost", filepath.Ext(path))
		}
	}
}

func TestLoadAutoDetect(t *testing.T) {
	path := writeConfig(t, "dotmatrixrc", `{"kernel":{"executor":"striker-bin"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Kernel.Executor != "striker-bin" {
		t.Errorf("expected executor from JSON, got %q", cfg.Kernel.Executor)
	}
	if cfg.Kernel.FileMode != "0644" {
		t.Errorf("expected default file mode, got %q", cfg.Kernel.FileMode)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", "this is not valid toml {{{\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestValidateErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Version = 9
	cfg.Alphabet.MaxByte = 300
	cfg.Kernel.FileMode = "rwx"
	cfg.Paths.MaxPathLength = 0
	cfg.Logging.Level = "loud"
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = ""
	cfg.Journal.Enabled = true
	cfg.Journal.Path = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("validation errors should match ErrInvalidConfig")
	}

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	want := []string{
		"version", "alphabet", "kernel.file_mode", "paths.max_path_length",
		"journal.path", "logging.level", "logging.file_path",
	}
	got := strings.Join(verrs.Fields(), ",")
	for _, field := range want {
		if !strings.Contains(got, field) {
			t.Errorf("missing error for %s in %s", field, got)
		}
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := writeConfig(t, "config.toml", "[alphabet]\nmax_byte = -1\n")
	_, err := Load(path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DOTMATRIX_MAX_BYTE", "100")
	t.Setenv("DOTMATRIX_EXECUTOR", "/usr/bin/strike")
	t.Setenv("DOTMATRIX_JOURNAL_PATH", filepath.Join(dir, "j.db"))
	t.Setenv("DOTMATRIX_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Alphabet.MaxByte != 100 {
		t.Errorf("expected max byte 100, got %d", cfg.Alphabet.MaxByte)
	}
	if cfg.Kernel.Executor != "/usr/bin/strike" {
		t.Errorf("executor override missing: %q", cfg.Kernel.Executor)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Path != filepath.Join(dir, "j.db") {
		t.Errorf("journal override missing: %+v", cfg.Journal)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level override missing: %s", cfg.Logging.Level)
	}
}

func TestExpandPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	path := writeConfig(t, "config.toml", "[paths]\noutput_dir = \"~/substrates\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Paths.OutputDir != filepath.Join(home, "substrates") {
		t.Errorf("expected expanded output dir, got %s", cfg.Paths.OutputDir)
	}
}

func TestResolveDestination(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ResolveDestination("out.txt"); got != "out.txt" {
		t.Errorf("expected unchanged path, got %s", got)
	}

	cfg.Paths.OutputDir = "/srv/out"
	if got := cfg.ResolveDestination("a/out.txt"); got != filepath.Join("/srv/out", "a/out.txt") {
		t.Errorf("unexpected resolution %s", got)
	}
	if got := cfg.ResolveDestination("/abs/out.txt"); got != "/abs/out.txt" {
		t.Errorf("absolute path should be unchanged, got %s", got)
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.MaxPathLength = 64
	cfg.Paths.AllowedRoots = []string{"/srv"}

	v := cfg.PathValidator()
	if v.MaxPathLength != 64 || len(v.AllowedRoots) != 1 {
		t.Errorf("unexpected validator %+v", v)
	}

	lc, err := cfg.LoggerConfig()
	if err != nil {
		t.Fatalf("LoggerConfig: %v", err)
	}
	if lc.Output != "stderr" || lc.Component != "dotmatrix" {
		t.Errorf("unexpected logger config %+v", lc)
	}

	if cfg.AuditLoggerConfig() != nil {
		t.Error("audit config should be nil while disabled")
	}
	cfg.Audit.Enabled = true
	if ac := cfg.AuditLoggerConfig(); ac == nil || ac.FilePath != cfg.Audit.FilePath {
		t.Errorf("unexpected audit config %+v", ac)
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.AllowedRoots = []string{"/a"}
	clone := cfg.Clone()

	clone.Alphabet.Forbidden[0].Value = 1
	clone.Paths.AllowedRoots[0] = "/b"

	if cfg.Alphabet.Forbidden[0].Value != alphabet.NBSP {
		t.Error("clone shares the forbidden slice")
	}
	if cfg.Paths.AllowedRoots[0] != "/a" {
		t.Error("clone shares the allowed roots slice")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	for _, name := range []string{"config.toml", "config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := DefaultConfig()
			cfg.Alphabet.MaxByte = 126
			cfg.Kernel.Executor = "strike"

			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if loaded.Alphabet.MaxByte != 126 || loaded.Kernel.Executor != "strike" {
				t.Errorf("round trip lost values: %+v %+v", loaded.Alphabet, loaded.Kernel)
			}
			if len(loaded.Alphabet.Forbidden) != 2 {
				t.Errorf("forbidden list lost: %+v", loaded.Alphabet.Forbidden)
			}
		})
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	_, created, err := LoadOrCreate(path)
	if err != nil || !created {
		t.Fatalf("LoadOrCreate = %v, %v", created, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	_, created, err = LoadOrCreate(path)
	if err != nil || created {
		t.Errorf("second LoadOrCreate = %v, %v", created, err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Journal.Enabled = true
	cfg.Journal.Path = filepath.Join(dir, "j", "journal.db")
	cfg.Audit.Enabled = true
	cfg.Audit.FilePath = filepath.Join(dir, "a", "audit.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, sub := range []string{"j", "a"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Errorf("directory %s not created", sub)
		}
	}
}

func TestLoaderWatch(t *testing.T) {
	path := writeConfig(t, "config.toml", "[alphabet]\nmax_byte = 127\n")

	loader := NewLoader(path)
	defer loader.Close()
	loader.debounce = 50 * time.Millisecond

	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	changed := make(chan int, 16)
	loader.OnChange(func(old, new *Config) {
		select {
		case changed <- new.Alphabet.MaxByte:
		default:
		}
	})
	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// Invalid content is reported and the old config kept.
	if err := os.WriteFile(path, []byte("[alphabet]\nmax_byte = 999\n"), 0600); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-loader.Errors():
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("unexpected watch error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for validation error")
	}
	if loader.Config().Alphabet.MaxByte == 999 {
		t.Error("invalid reload replaced the config")
	}

	if err := os.WriteFile(path, []byte("[alphabet]\nmax_byte = 100\n"), 0600); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-changed:
			if got == 100 {
				if loader.Config().Alphabet.MaxByte != 100 {
					t.Error("callback ran before the config was swapped")
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}
