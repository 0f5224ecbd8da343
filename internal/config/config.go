// Package config loads run configuration for the tomo command.
//
// A run is described by a JSON file. Every scalar field is a pointer so an
// omitted field falls back to the default returned by its getter, which
// keeps partial configs safe.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Defaults for omitted fields.
const (
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultCompression = "zstd"
)

// ErrNoStages is returned when a config lists no stages.
var ErrNoStages = errors.New("config lists no stages")

// RunConfig is the root configuration of a pipeline run.
type RunConfig struct {
	Input       *string `json:"input,omitempty"`  // input container path
	Output      *string `json:"output,omitempty"` // output container path
	Workers     *int    `json:"workers,omitempty"`
	LogLevel    *string `json:"log_level,omitempty"`
	LogFormat   *string `json:"log_format,omitempty"` // "text" or "json"
	IOLimit     *int64  `json:"io_limit_bytes_per_sec,omitempty"`
	WorkDir     *string `json:"work_dir,omitempty"` // intermediate arrays; empty keeps them in memory
	Compression *string `json:"compression,omitempty"`

	// Variant optionally composes the input with an indexing variant.
	Variant *VariantConfig `json:"variant,omitempty"`

	Stages []StageConfig `json:"stages"`
}

// VariantConfig names a registered indexing variant and its parameters.
type VariantConfig struct {
	Name   string `json:"name"`
	Params Params `json:"params,omitempty"`
}

// StageConfig names a registered plugin and its parameters.
type StageConfig struct {
	Plugin string `json:"plugin"`
	Params Params `json:"params,omitempty"`
}

// Load reads a RunConfig from a JSON file and validates it.
func Load(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a RunConfig from JSON.
func Parse(data []byte) (*RunConfig, error) {
	cfg := &RunConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *RunConfig) Validate() error {
	if c.Input == nil || *c.Input == "" {
		return errors.New("input is required")
	}
	if c.Output == nil || *c.Output == "" {
		return errors.New("output is required")
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.IOLimit != nil && *c.IOLimit < 0 {
		return fmt.Errorf("io_limit_bytes_per_sec must be non-negative, got %d", *c.IOLimit)
	}
	if c.LogLevel != nil {
		switch strings.ToLower(*c.LogLevel) {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("invalid log_level %q", *c.LogLevel)
		}
	}
	if c.LogFormat != nil && *c.LogFormat != "text" && *c.LogFormat != "json" {
		return fmt.Errorf("invalid log_format %q", *c.LogFormat)
	}
	if c.Compression != nil {
		switch *c.Compression {
		case "none", "zstd", "lz4":
		default:
			return fmt.Errorf("invalid compression %q", *c.Compression)
		}
	}
	if c.Variant != nil && c.Variant.Name == "" {
		return errors.New("variant name is required")
	}
	if len(c.Stages) == 0 {
		return ErrNoStages
	}
	for i, s := range c.Stages {
		if s.Plugin == "" {
			return fmt.Errorf("stage %d: plugin is required", i)
		}
	}
	return nil
}

// GetWorkers returns the worker count or the number of CPUs.
func (c *RunConfig) GetWorkers() int {
	if c.Workers == nil {
		return runtime.NumCPU()
	}
	return *c.Workers
}

// GetLogLevel returns the log level or the default.
func (c *RunConfig) GetLogLevel() string {
	if c.LogLevel == nil {
		return DefaultLogLevel
	}
	return strings.ToLower(*c.LogLevel)
}

// GetLogFormat returns the log format or the default.
func (c *RunConfig) GetLogFormat() string {
	if c.LogFormat == nil {
		return DefaultLogFormat
	}
	return *c.LogFormat
}

// GetIOLimit returns the I/O limit in bytes per second; zero is unlimited.
func (c *RunConfig) GetIOLimit() int64 {
	if c.IOLimit == nil {
		return 0
	}
	return *c.IOLimit
}

// GetWorkDir returns the intermediate array directory, or "" for memory.
func (c *RunConfig) GetWorkDir() string {
	if c.WorkDir == nil {
		return ""
	}
	return *c.WorkDir
}

// GetCompression returns the output compression or the default.
func (c *RunConfig) GetCompression() string {
	if c.Compression == nil {
		return DefaultCompression
	}
	return *c.Compression
}
