package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for rawmatch. Every field has a
// working default; the tool runs without any config file present.
type Config struct {
	CacheDir string         `toml:"cache_dir"`
	LogDir   string         `toml:"log_dir"`
	Metadata MetadataConfig `toml:"metadata"`
	Index    IndexConfig    `toml:"index"`
	Copy     CopyConfig     `toml:"copy"`
}

// MetadataConfig selects and tunes the capture-time reader.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type MetadataConfig struct {
	Type           string `toml:"type"`                    // "exif" (in-process, default) or "exiftool"
	ExiftoolPath   string `toml:"exiftool_path,omitempty"` // only used for type=exiftool; empty means search PATH
	TimeoutSeconds int    `toml:"timeout_seconds"`         // per-file exiftool timeout; defaults to 30
}

// IndexConfig tunes index building.
type IndexConfig struct {
	Workers int `toml:"workers"` // parallel metadata reads; defaults to 4
}

// CopyConfig tunes the copy phase.
type CopyConfig struct {
	SafetyMarginBytes int64 `toml:"safety_margin_bytes"` // free-space headroom; defaults to 10 MiB
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		CacheDir: filepath.Join(baseDir, "cache"),
		LogDir:   filepath.Join(baseDir, "log"),
		Metadata: MetadataConfig{
			Type:           "exif",
			TimeoutSeconds: 30,
		},
		Index: IndexConfig{Workers: 4},
		Copy:  CopyConfig{SafetyMarginBytes: 10 * 1024 * 1024},
	}
}

// ApplyDefaults fills zero-valued fields with the defaults for baseDir.
// Partial config files stay valid this way.
func (c *Config) ApplyDefaults(baseDir string) {
	d := NewConfig(baseDir)
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
	if c.LogDir == "" {
		c.LogDir = d.LogDir
	}
	if c.Metadata.Type == "" {
		c.Metadata.Type = d.Metadata.Type
	}
	if c.Metadata.TimeoutSeconds <= 0 {
		c.Metadata.TimeoutSeconds = d.Metadata.TimeoutSeconds
	}
	if c.Index.Workers <= 0 {
		c.Index.Workers = d.Index.Workers
	}
	if c.Copy.SafetyMarginBytes <= 0 {
		c.Copy.SafetyMarginBytes = d.Copy.SafetyMarginBytes
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
