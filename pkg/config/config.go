// Package config loads the YAML configuration shared by the server and the
// command line tool.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Taxonomy  TaxonomyConfig  `yaml:"taxonomy"`
	Generator GeneratorConfig `yaml:"generator"`
	Backend   BackendConfig   `yaml:"backend"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds the path of the SQLite cache.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// TaxonomyConfig says where the taxonomy comes from. ArchiveURL and
// ArchiveMember are used when Path is empty.
type TaxonomyConfig struct {
	Path             string `yaml:"path"`
	CalculationsPath string `yaml:"calculations_path"`
	ArchiveURL       string `yaml:"archive_url"`
	ArchiveMember    string `yaml:"archive_member"`
	Watch            bool   `yaml:"watch"`
}

// GeneratorConfig holds inline XBRL output settings.
type GeneratorConfig struct {
	SchemaRef    string `yaml:"schema_ref"`
	MinimalUnits bool   `yaml:"minimal_units"`
	Tooltips     bool   `yaml:"tooltips"`
	Heading      string `yaml:"heading"`
}

// BackendConfig holds report backend settings.
type BackendConfig struct {
	BaseURL   string `yaml:"base_url"`
	RateLimit int    `yaml:"rate_limit"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the config file at path, applies defaults and
// expands relative paths against the config directory. The PORT
// environment variable overrides the server port.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Taxonomy.Path = expandPath(cfg.Taxonomy.Path, configDir)
	cfg.Taxonomy.CalculationsPath = expandPath(cfg.Taxonomy.CalculationsPath, configDir)

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv applies environment overrides.
func ApplyEnv(cfg *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}
	return nil
}

// expandPath makes a relative path relative to configDir. Empty paths stay
// empty.
func expandPath(path, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}
