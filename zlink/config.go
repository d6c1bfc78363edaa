package zlink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is a structured session configuration. The JSON form follows
// the substrate's own document layout, and comments (JSONC/JSON5 style)
// are accepted in blobs and .json/.jsonc/.json5 files.
type Config struct {
	Mode     Mode         `json:"mode" yaml:"mode" toml:"mode"`
	Connect  EndpointList `json:"connect" yaml:"connect" toml:"connect"`
	Listen   EndpointList `json:"listen" yaml:"listen" toml:"listen"`
	Scouting Scouting     `json:"scouting" yaml:"scouting" toml:"scouting"`
}

// EndpointList wraps endpoint addresses ("tcp/host:port" style).
type EndpointList struct {
	Endpoints []string `json:"endpoints" yaml:"endpoints" toml:"endpoints"`
}

// Scouting configures discovery.
type Scouting struct {
	Multicast Multicast `json:"multicast" yaml:"multicast" toml:"multicast"`
}

// Multicast configures multicast discovery. Enabled is a tri-state:
// nil means the platform default.
type Multicast struct {
	Enabled *bool `json:"enabled" yaml:"enabled" toml:"enabled"`
}

// DefaultConfig returns a peer-mode configuration with no explicit
// endpoints.
func DefaultConfig() Config {
	return Config{Mode: ModePeer}
}

// ParseConfig parses a JSON configuration blob. Comments and trailing
// commas are tolerated. Returns ErrConfigParse on malformed input or an
// unknown mode.
func ParseConfig(blob []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(blob) == 0 {
		return cfg, fmt.Errorf("%w: empty blob", ErrConfigParse)
	}
	if err := json.Unmarshal(jsonc.ToJSON(blob), &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadConfigFile reads a configuration file, dispatching on extension:
// .json, .jsonc and .json5 are parsed as commented JSON, .yaml and .yml
// as YAML, .toml as TOML.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc", ".json5":
		return ParseConfig(data)
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrConfigParse, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrConfigParse, err)
		}
	default:
		return cfg, fmt.Errorf("%w: unsupported config format %q", ErrConfigParse, filepath.Ext(path))
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case "", ModePeer, ModeClient, ModeRouter:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrConfigParse, c.Mode)
	}
	if c.Mode == "" {
		c.Mode = ModePeer
	}
	return nil
}

// defaultMulticast is the platform default for multicast discovery.
// Disabled on darwin, where multicast scouting misbehaves.
var defaultMulticast = runtime.GOOS != "darwin"

// multicastEnabled resolves the tri-state against the platform default.
func (c *Config) multicastEnabled() bool {
	if c.Scouting.Multicast.Enabled != nil {
		return *c.Scouting.Multicast.Enabled
	}
	return defaultMulticast
}
