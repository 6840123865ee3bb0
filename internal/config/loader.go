package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/clsprep/internal/dataset"
)

// DefaultSettingsFile is the settings file name searched in the working directory.
const DefaultSettingsFile = ".clsprep.yaml"

// UserSettingsFile is the settings file name inside the XDG config directory.
const UserSettingsFile = "settings.yaml"

// ErrSettingsNotFound is returned when the settings file does not exist.
var ErrSettingsNotFound = errors.New("settings file not found")

// LoadSettingsFile loads settings from a YAML file. JSON files are accepted too.
// Empty fields fall back to DefaultSettings, and processor entries must name
// known datasets.
func LoadSettingsFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided settings path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	for name := range s.Processors {
		if _, err := dataset.Parse(name); err != nil {
			return nil, fmt.Errorf("invalid processors entry: %w", err)
		}
	}

	s.fillDefaults(DefaultSettings())
	return &s, nil
}

// FindSettingsFile searches for the settings file in the following order:
// 1. If settingsPath is specified, use it directly
// 2. Look for .clsprep.yaml in the current directory
// 3. Look for settings.yaml in the XDG config directory
//
// Returns the path to the settings file if found, or empty string if not found.
func FindSettingsFile(settingsPath string) string {
	if settingsPath != "" {
		if _, err := os.Stat(settingsPath); err == nil {
			return settingsPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultSettingsFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	p := filepath.Join(XDGConfigDir(), UserSettingsFile)
	if _, err := os.Stat(p); err == nil {
		return p
	}

	return ""
}
