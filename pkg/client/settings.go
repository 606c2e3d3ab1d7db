package client

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SettingsFileName is the Evergreen CLI settings file in the home directory.
const SettingsFileName = ".evergreen.yml"

// Settings is the subset of the Evergreen CLI settings file the client uses.
type Settings struct {
	User          string `yaml:"user"`
	APIKey        string `yaml:"api_key"`
	APIServerHost string `yaml:"api_server_host"`
	UIServerHost  string `yaml:"ui_server_host"`
}

// DefaultSettingsPath returns ~/.evergreen.yml.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return SettingsFileName
	}
	return filepath.Join(home, SettingsFileName)
}

// LoadSettings reads an Evergreen CLI settings file.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read evergreen settings: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse evergreen settings %s: %w", path, err)
	}
	return s, nil
}

// Apply copies the non-empty settings into cfg.
func (s Settings) Apply(cfg *Config) {
	if s.User != "" {
		cfg.User = s.User
	}
	if s.APIKey != "" {
		cfg.APIKey = s.APIKey
	}
	if s.APIServerHost != "" {
		cfg.APIServerHost = s.APIServerHost
	}
	if s.UIServerHost != "" {
		cfg.UIServerHost = s.UIServerHost
	}
}
