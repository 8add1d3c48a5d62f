// Package config loads cobertura settings from viper into typed values.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// AppDir is the directory under the user's config home holding cobertura state.
const AppDir = ".config/cobertura"

// ExpandPath expands ~ and $VAR references in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	return os.ExpandEnv(path)
}

// DefaultPath returns name inside the application directory, or name itself
// when the home directory cannot be determined.
func DefaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, AppDir, name)
}
