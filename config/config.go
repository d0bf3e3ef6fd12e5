// Package config provides loading and parsing of investigation.yaml files.
// An investigation config carries the storage, discovery, and dispatch
// settings for one engine instance; anything left unset falls back to a
// safe default through the Get* accessors.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lattice-osint/engine/provider/registry"
)

// Config represents an investigation.yaml configuration file.
type Config struct {
	// Storage
	Storage *StorageConfig `yaml:"storage,omitempty"`

	// Registry configures etcd-backed discovery of remote provider
	// adapters. Omitted means local adapters only.
	Registry *registry.Config `yaml:"registry,omitempty"`

	// Dispatch configures the recursion controller.
	Dispatch *DispatchConfig `yaml:"dispatch,omitempty"`

	// Classify configures the verification classifier.
	Classify *ClassifyConfig `yaml:"classify,omitempty"`
}

// StorageConfig selects and configures the graph repository backend.
type StorageConfig struct {
	// Backend is "memory" or "redis". Default: "memory".
	Backend string `yaml:"backend,omitempty"`

	// RedisURL is the connection URL for the redis backend, e.g.
	// "redis://localhost:6379/0". Required when Backend is "redis".
	RedisURL string `yaml:"redis_url,omitempty"`
}

// DispatchConfig tunes the recursion controller.
type DispatchConfig struct {
	// MaxDepth is the recursion ceiling. Depth zero searches only the
	// seed. Default: 3.
	MaxDepth *int `yaml:"max_depth,omitempty"`

	// Concurrency is the number of parallel lookups within one drain
	// tier. Default: 4.
	Concurrency int `yaml:"concurrency,omitempty"`

	// Timeout bounds a single provider lookup.
	// Format: Go duration string (e.g., "30s", "1m"). Default: 30s.
	Timeout string `yaml:"timeout,omitempty"`

	// Policy is a CEL expression gating each dispatch. Empty allows all.
	Policy string `yaml:"policy,omitempty"`

	// RequeueUnverified re-enqueues still-unverified entities for another
	// search pass on later depths instead of leaving them dormant after
	// their single search. Default: false.
	RequeueUnverified bool `yaml:"requeue_unverified,omitempty"`
}

// ClassifyConfig tunes connection reason detection.
type ClassifyConfig struct {
	// SimilarityThreshold is the minimum normalized string similarity for
	// similarity-based reasons, in (0, 1]. Default: 0.7.
	SimilarityThreshold float64 `yaml:"similarity_threshold,omitempty"`
}

// GetBackend returns the storage backend or the default value.
func (s *StorageConfig) GetBackend() string {
	if s == nil || s.Backend == "" {
		return "memory"
	}
	return s.Backend
}

// GetMaxDepth returns the configured recursion ceiling or the default value.
func (d *DispatchConfig) GetMaxDepth() int {
	if d == nil || d.MaxDepth == nil || *d.MaxDepth < 0 {
		return 3
	}
	return *d.MaxDepth
}

// GetConcurrency returns the configured concurrency or the default value.
func (d *DispatchConfig) GetConcurrency() int {
	if d == nil || d.Concurrency <= 0 {
		return 4
	}
	return d.Concurrency
}

// GetTimeout parses the lookup timeout string and returns a duration.
// Returns the default value if not set or invalid.
func (d *DispatchConfig) GetTimeout() time.Duration {
	if d == nil || d.Timeout == "" {
		return 30 * time.Second
	}
	t, err := time.ParseDuration(d.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return t
}

// GetPolicy returns the dispatch policy expression, empty for allow-all.
func (d *DispatchConfig) GetPolicy() string {
	if d == nil {
		return ""
	}
	return d.Policy
}

// GetRequeueUnverified reports whether dormant unverified entities are
// re-enqueued on later depths.
func (d *DispatchConfig) GetRequeueUnverified() bool {
	return d != nil && d.RequeueUnverified
}

// GetSimilarityThreshold returns the threshold or the default value.
func (c *ClassifyConfig) GetSimilarityThreshold() float64 {
	if c == nil || c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return 0.7
	}
	return c.SimilarityThreshold
}

// Validate checks cross-field consistency that the Get* defaults cannot
// paper over.
func (c *Config) Validate() error {
	if c.Storage != nil && c.Storage.GetBackend() == "redis" && c.Storage.RedisURL == "" {
		return fmt.Errorf("storage.redis_url is required for the redis backend")
	}
	if c.Storage != nil {
		switch c.Storage.GetBackend() {
		case "memory", "redis":
		default:
			return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
		}
	}
	if c.Registry != nil && len(c.Registry.Endpoints) == 0 {
		return fmt.Errorf("registry.endpoints cannot be empty when registry is configured")
	}
	if c.Dispatch != nil && c.Dispatch.Timeout != "" {
		if _, err := time.ParseDuration(c.Dispatch.Timeout); err != nil {
			return fmt.Errorf("invalid dispatch.timeout: %w", err)
		}
	}
	return nil
}

// Load reads and parses an investigation.yaml file from the given path.
// If the path is a directory, it looks for investigation.yaml or
// investigation.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	var configPath string
	if info.IsDir() {
		yamlPath := filepath.Join(path, "investigation.yaml")
		if _, err := os.Stat(yamlPath); err == nil {
			configPath = yamlPath
		} else {
			ymlPath := filepath.Join(path, "investigation.yml")
			if _, err := os.Stat(ymlPath); err == nil {
				configPath = ymlPath
			} else {
				return nil, fmt.Errorf("no investigation.yaml or investigation.yml found in %s", path)
			}
		}
	} else {
		configPath = path
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFromDir searches for investigation.yaml starting from the given
// directory and walking up parents until found or root is reached.
func LoadFromDir(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	for {
		config, err := Load(absDir)
		if err == nil {
			return config, nil
		}

		parent := filepath.Dir(absDir)
		if parent == absDir {
			return nil, fmt.Errorf("no investigation.yaml found in %s or parent directories", dir)
		}
		absDir = parent
	}
}
