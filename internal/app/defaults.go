package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults are the paths used when no flag overrides them.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CMS_CONFIG_PATH: config file location (default: ~/.config/cms.toml)
//   - CMS_HOME: base directory for local stores and logs (default: ~/.local/share/cms)
func GetDefaults() (*Defaults, error) {
	configPath, err := fromEnvOrHome("CMS_CONFIG_PATH", ".config", "cms.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := fromEnvOrHome("CMS_HOME", ".local", "share", "cms")
	if err != nil {
		return nil, err
	}
	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// fromEnvOrHome returns $env when set, otherwise the path elems joined under
// the user's home directory.
func fromEnvOrHome(env string, elems ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elems...)...), nil
}
