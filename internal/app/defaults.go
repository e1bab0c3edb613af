package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - RAWMATCH_CONFIG_PATH: config file location (default: ~/.config/rawmatch.toml)
//   - RAWMATCH_HOME: base directory for rawmatch data (default: ~/.local/share/rawmatch)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"cache_dir":   filepath.Join(baseDir, "cache"),
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking RAWMATCH_CONFIG_PATH env var first,
// then falling back to the default ~/.config/rawmatch.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("RAWMATCH_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "rawmatch.toml"), nil
}

// getBaseDir returns the base directory for rawmatch data, checking RAWMATCH_HOME env var first,
// then falling back to the XDG default ~/.local/share/rawmatch.
func getBaseDir() (string, error) {
	if path := os.Getenv("RAWMATCH_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "rawmatch"), nil
}
