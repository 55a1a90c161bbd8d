package notebook

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds notebook configuration.
type Config struct {
	DBPath       string `yaml:"db_path"`
	MaxNameLen   int    `yaml:"max_name_len"`
	MaxPinned    int    `yaml:"max_pinned"`
	HistoryDepth int    `yaml:"history_depth"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "nerdcalci.db"
	}
	if c.MaxNameLen <= 0 {
		c.MaxNameLen = 50
	}
	if c.MaxPinned <= 0 {
		c.MaxPinned = 10
	}
	if c.HistoryDepth <= 0 {
		c.HistoryDepth = 30
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
