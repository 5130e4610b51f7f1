// Package config loads the settings shared by the cluster server binaries.
// Values come from the defaults, then an optional JSON file, then
// SUPERCLUSTER_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"web/supercluster/cluster"
)

// DefaultConfigPath is where the binaries look when no -config flag is given.
const DefaultConfigPath = "config/supercluster.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// AccumulatorConfig registers one named accumulator.
type AccumulatorConfig struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"` // see cluster.AccumulatorKind.String
	Threshold int64  `json:"threshold,omitempty"`
}

// Config is the root configuration.
type Config struct {
	// Pyramid params
	MaxZoom      int                 `json:"max_zoom"`
	Radius       float64             `json:"radius"`
	TileSize     int                 `json:"tile_size"`
	NodeSize     int                 `json:"node_size"`
	IndexKind    string              `json:"index_kind"`
	Accumulators []AccumulatorConfig `json:"accumulators,omitempty"`
	Log          bool                `json:"log"`

	// Server params
	HTTPAddr    string `json:"http_addr"`
	GRPCAddr    string `json:"grpc_addr"`
	MaxClusters int    `json:"max_clusters"`
	IdleTimeout string `json:"idle_timeout"` // duration string like "30m"
	SaveDir     string `json:"save_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := cluster.DefaultOptions()
	return &Config{
		MaxZoom:     opts.MaxZoom,
		Radius:      opts.Radius,
		TileSize:    opts.TileSize,
		NodeSize:    opts.NodeSize,
		IndexKind:   opts.IndexKind,
		HTTPAddr:    ":8000",
		GRPCAddr:    ":50051",
		MaxClusters: 5,
		IdleTimeout: "30m",
		SaveDir:     "./data",
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		cleanPath := filepath.Clean(path)
		if ext := filepath.Ext(cleanPath); ext != ".json" {
			return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
		}

		fileInfo, err := os.Stat(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if fileInfo.Size() > maxFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
		}

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SUPERCLUSTER_* variables. Unset or
// unparsable variables leave the field alone.
func (c *Config) ApplyEnv() {
	c.MaxZoom = getInt("SUPERCLUSTER_MAX_ZOOM", c.MaxZoom)
	c.Radius = getFloat("SUPERCLUSTER_RADIUS", c.Radius)
	c.TileSize = getInt("SUPERCLUSTER_TILE_SIZE", c.TileSize)
	c.NodeSize = getInt("SUPERCLUSTER_NODE_SIZE", c.NodeSize)
	c.IndexKind = get("SUPERCLUSTER_INDEX_KIND", c.IndexKind)
	c.Log = getBoolLoose("SUPERCLUSTER_LOG", c.Log)
	c.HTTPAddr = get("SUPERCLUSTER_HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = get("SUPERCLUSTER_GRPC_ADDR", c.GRPCAddr)
	c.MaxClusters = getInt("SUPERCLUSTER_MAX_CLUSTERS", c.MaxClusters)
	c.IdleTimeout = get("SUPERCLUSTER_IDLE_TIMEOUT", c.IdleTimeout)
	// CLUSTER_SAVE_DIR is the older name for the dataset directory.
	c.SaveDir = get("SUPERCLUSTER_SAVE_DIR", get("CLUSTER_SAVE_DIR", c.SaveDir))
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.ClusterOptions().Validate(); err != nil {
		return err
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	if c.MaxClusters < 1 {
		return fmt.Errorf("max_clusters must be at least 1, got %d", c.MaxClusters)
	}
	if _, err := c.IdleTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// ClusterOptions converts the pyramid params to build options.
func (c *Config) ClusterOptions() cluster.Options {
	return cluster.Options{
		MaxZoom:   c.MaxZoom,
		Radius:    c.Radius,
		TileSize:  c.TileSize,
		NodeSize:  c.NodeSize,
		IndexKind: c.IndexKind,
		Log:       c.Log,
	}
}

// Registry returns the default accumulators plus the configured ones. A
// configured name replaces a default of the same name.
func (c *Config) Registry() (cluster.Registry, error) {
	registry := cluster.DefaultRegistry()
	for i, a := range c.Accumulators {
		if a.Name == "" {
			return nil, fmt.Errorf("%w: accumulator %d has no name", cluster.ErrConfiguration, i)
		}
		kind, err := cluster.ParseAccumulatorKind(a.Kind)
		if err != nil {
			return nil, fmt.Errorf("accumulator %q: %w", a.Name, err)
		}
		registry[a.Name] = cluster.Accumulator{Kind: kind, Threshold: a.Threshold}
	}
	return registry, nil
}

// IdleTimeoutDuration parses IdleTimeout. Zero disables idle cleanup.
func (c *Config) IdleTimeoutDuration() (time.Duration, error) {
	if c.IdleTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.IdleTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid idle_timeout '%s': %w", c.IdleTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("idle_timeout must be non-negative, got %s", c.IdleTimeout)
	}
	return d, nil
}
