package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the base dotmatrix data directory. DOTMATRIX_DATA_DIR
// overrides the platform default.
func DataDir() string {
	if envDir := os.Getenv("DOTMATRIX_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/dotmatrix/
//   - Linux:   $XDG_DATA_HOME/dotmatrix/ or ~/.local/share/dotmatrix/
//   - Windows: %APPDATA%\dotmatrix\
func PlatformDataDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "dotmatrix")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "dotmatrix")
		}
		return filepath.Join(home, "AppData", "Roaming", "dotmatrix")
	default:
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "dotmatrix")
		}
		return filepath.Join(home, ".local", "share", "dotmatrix")
	}
}

// PlatformConfigDir returns the platform-specific config directory.
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin", "windows":
		return PlatformDataDir()
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "dotmatrix")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "dotmatrix")
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if p := os.Getenv("DOTMATRIX_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// SupportedConfigFormats lists recognized configuration file extensions.
func SupportedConfigFormats() []string {
	return []string{".toml", ".json", ".yaml", ".yml"}
}

// FindConfigFile returns the first existing config.* in the working
// directory or the platform config directory, or "" when none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			p := filepath.Join(dir, "dotmatrix"+ext)
			if dir != "." {
				p = filepath.Join(dir, "config"+ext)
			}
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p
			}
		}
	}
	return ""
}
