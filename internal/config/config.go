package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the project root when no
// --config flag is given.
const DefaultPath = ".cisync.yaml"

// Defaults
const (
	DefaultRegistry      = "canister_ids.json"
	DefaultHost          = "https://ic0.app"
	DefaultNetwork       = "ic"
	DefaultLayoutPattern = "*.toml"
	DefaultOutputDir     = "src"
	DefaultSyncFile      = ".github/sync.yml"
	DefaultArtifactsDir  = ".dfx/local/canisters"
	DefaultDestPrefix    = "src"
)

// DefaultExtensions are the build artifact extensions picked up by sync-list
var DefaultExtensions = []string{".ts", ".did"}

// Config represents the complete cisync configuration
type Config struct {
	Candid   CandidConfig   `yaml:"candid"`
	SyncList SyncListConfig `yaml:"sync_list"`
}

// CandidConfig configures the candid interface synchronizer
type CandidConfig struct {
	Registry      string        `yaml:"registry"`
	Host          string        `yaml:"host"`
	Network       string        `yaml:"network"`
	Concurrency   int           `yaml:"concurrency"`
	Timeout       time.Duration `yaml:"timeout"`
	LayoutPattern string        `yaml:"layout_pattern"`
	OutputDir     string        `yaml:"output_dir"`
}

// SyncListConfig configures the artifact sync-list generator
type SyncListConfig struct {
	File         string   `yaml:"file"`
	ArtifactsDir string   `yaml:"artifacts_dir"`
	Extensions   []string `yaml:"extensions"`
	DestPrefix   string   `yaml:"dest_prefix"`
	Verify       *bool    `yaml:"verify"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads path when given. Otherwise fallback is loaded if it
// exists, and the defaults are returned if it does not.
func LoadOrDefault(path, fallback string) (*Config, error) {
	if path != "" {
		return Load(path)
	}

	cfg, err := Load(fallback)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Candid.Registry = os.ExpandEnv(c.Candid.Registry)
	c.Candid.Host = os.ExpandEnv(c.Candid.Host)
	c.Candid.Network = os.ExpandEnv(c.Candid.Network)
	c.Candid.OutputDir = os.ExpandEnv(c.Candid.OutputDir)
	c.SyncList.File = os.ExpandEnv(c.SyncList.File)
	c.SyncList.ArtifactsDir = os.ExpandEnv(c.SyncList.ArtifactsDir)
	c.SyncList.DestPrefix = os.ExpandEnv(c.SyncList.DestPrefix)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Candid.Registry == "" {
		c.Candid.Registry = DefaultRegistry
	}
	if c.Candid.Host == "" {
		c.Candid.Host = DefaultHost
	}
	if c.Candid.Network == "" {
		c.Candid.Network = DefaultNetwork
	}
	if c.Candid.LayoutPattern == "" {
		c.Candid.LayoutPattern = DefaultLayoutPattern
	}
	if c.Candid.OutputDir == "" {
		c.Candid.OutputDir = DefaultOutputDir
	}
	if c.SyncList.File == "" {
		c.SyncList.File = DefaultSyncFile
	}
	if c.SyncList.ArtifactsDir == "" {
		c.SyncList.ArtifactsDir = DefaultArtifactsDir
	}
	if len(c.SyncList.Extensions) == 0 {
		c.SyncList.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if c.SyncList.DestPrefix == "" {
		c.SyncList.DestPrefix = DefaultDestPrefix
	}
	if c.SyncList.Verify == nil {
		verify := true
		c.SyncList.Verify = &verify
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Validate candid config
	u, err := url.Parse(c.Candid.Host)
	if err != nil {
		return fmt.Errorf("candid.host is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("candid.host must use http or https: %s", c.Candid.Host)
	}
	if c.Candid.Concurrency < 0 {
		return fmt.Errorf("candid.concurrency must not be negative: %d", c.Candid.Concurrency)
	}
	if c.Candid.Timeout < 0 {
		return fmt.Errorf("candid.timeout must not be negative: %s", c.Candid.Timeout)
	}
	if _, err := filepath.Match(c.Candid.LayoutPattern, ""); err != nil {
		return fmt.Errorf("candid.layout_pattern is invalid: %w", err)
	}
	if filepath.IsAbs(c.Candid.OutputDir) {
		return fmt.Errorf("candid.output_dir must be relative to the project root: %s", c.Candid.OutputDir)
	}

	// Validate sync list config
	if filepath.IsAbs(c.SyncList.ArtifactsDir) {
		return fmt.Errorf("sync_list.artifacts_dir must be relative to the project root: %s", c.SyncList.ArtifactsDir)
	}
	for _, ext := range c.SyncList.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("sync_list.extensions entries must start with a dot: %q", ext)
		}
	}

	return nil
}

// VerifySyncList reports whether the rewritten sync file should be parsed
// before it is written.
func (c *Config) VerifySyncList() bool {
	return c.SyncList.Verify == nil || *c.SyncList.Verify
}
