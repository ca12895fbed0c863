// Package config loads the optional sisyphus.yaml project file from the
// data directory. Values from the file sit below CLI flags and environment
// variables in precedence.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

// ConnectionConfig holds connection defaults from sisyphus.yaml.
type ConnectionConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema,omitempty"`
	SSLMode  string `yaml:"sslmode,omitempty"`
}

// LoadConfig holds bulk-load defaults from sisyphus.yaml.
type LoadConfig struct {
	BatchSize      int      `yaml:"batch_size,omitempty"`
	Workers        int      `yaml:"workers,omitempty"`
	Delimiter      string   `yaml:"delimiter,omitempty"`
	NamePattern    string   `yaml:"name_pattern,omitempty"`
	NoHeader       bool     `yaml:"no_header,omitempty"`
	UnknownColumns string   `yaml:"unknown_columns,omitempty"`
	Tables         []string `yaml:"tables,omitempty"`
	PreScript      string   `yaml:"pre_script,omitempty"`
	PostScript     string   `yaml:"post_script,omitempty"`
}

// ProjectConfig is the root of sisyphus.yaml.
type ProjectConfig struct {
	Connection ConnectionConfig `yaml:"connection"`
	Load       LoadConfig       `yaml:"load"`
}

const ConfigFileName = "sisyphus.yaml"

// Load reads sisyphus.yaml from the data directory.
func Load(dataDir string) (*ProjectConfig, error) {
	configPath := filepath.Join(dataDir, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
