package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration for trace-analytics.
// It can be populated from CLI flags, config files, or both.
type Config struct {
	// Comment field for user documentation (ignored by the application)
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`

	// Span store capacity
	SpanBufferSize int `json:"span_buffer_size,omitempty" yaml:"span_buffer_size,omitempty"`

	// OTLP gRPC receiver
	OTLPHost string `json:"otlp_host,omitempty" yaml:"otlp_host,omitempty"`
	OTLPPort int    `json:"otlp_port,omitempty" yaml:"otlp_port,omitempty"`

	// HTTP API
	HTTPHost string `json:"http_host,omitempty" yaml:"http_host,omitempty"`
	HTTPPort int    `json:"http_port,omitempty" yaml:"http_port,omitempty"`

	// Query limits
	MaxTracesPerQuery int    `json:"max_traces_per_query,omitempty" yaml:"max_traces_per_query,omitempty"`
	ObservationWindow string `json:"observation_window,omitempty" yaml:"observation_window,omitempty"` // e.g. "5m"; empty = span of the data

	// File sources
	WatchDirs  []string `json:"watch_dirs,omitempty" yaml:"watch_dirs,omitempty"`
	OtelConfig string   `json:"otel_config,omitempty" yaml:"otel_config,omitempty"` // collector config with file/* exporters
	ActiveOnly *bool    `json:"active_only,omitempty" yaml:"active_only,omitempty"` // only tail traces.jsonl, skip rotated files

	// MCP on stdio
	MCP bool `json:"mcp,omitempty" yaml:"mcp,omitempty"`

	// Logging configuration
	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty"` // "console" or "json"
	Verbose   bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`       // shorthand for log_level debug
}

// DefaultConfig returns a Config with sensible default values:
// 10,000 spans, OTLP on localhost with an ephemeral port, the HTTP API on
// localhost:4380 and at most 5,000 traces per query.
func DefaultConfig() *Config {
	activeOnly := true
	return &Config{
		SpanBufferSize:    10_000,
		OTLPHost:          "127.0.0.1",
		OTLPPort:          0, // 0 means ephemeral port assignment
		HTTPHost:          "127.0.0.1",
		HTTPPort:          4380,
		MaxTracesPerQuery: 5_000,
		ActiveOnly:        &activeOnly,
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// Window parses ObservationWindow. An empty value returns zero.
func (c *Config) Window() (time.Duration, error) {
	if c.ObservationWindow == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.ObservationWindow)
	if err != nil {
		return 0, fmt.Errorf("invalid observation_window %q: %w", c.ObservationWindow, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid observation_window %q: must not be negative", c.ObservationWindow)
	}
	return d, nil
}

// EffectiveLogLevel returns debug when Verbose is set, LogLevel otherwise.
func (c *Config) EffectiveLogLevel() string {
	if c.Verbose {
		return "debug"
	}
	return c.LogLevel
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if c.SpanBufferSize <= 0 {
		return fmt.Errorf("span_buffer_size must be positive, got %d", c.SpanBufferSize)
	}
	if c.MaxTracesPerQuery < 0 {
		return fmt.Errorf("max_traces_per_query must not be negative, got %d", c.MaxTracesPerQuery)
	}
	for name, port := range map[string]int{"otlp_port": c.OTLPPort, "http_port": c.HTTPPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s out of range: %d", name, port)
		}
	}
	if _, err := c.Window(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// LoadConfigFromFile loads configuration from a JSON or YAML file. The format
// is chosen by extension: .yaml and .yml are YAML, anything else is JSON.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &config, nil
}

// projectConfigNames are checked in order in each directory.
var projectConfigNames = []string{
	".trace-analytics.json",
	".trace-analytics.yaml",
	".trace-analytics.yml",
}

// FindProjectConfig searches for a .trace-analytics config file.
// It starts in the current directory and walks up looking for the file,
// stopping when it finds a .git directory (project root) or reaches root.
func FindProjectConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return findProjectConfigFrom(dir)
}

func findProjectConfigFrom(dir string) (string, error) {
	for {
		for _, name := range projectConfigNames {
			configPath := filepath.Join(dir, name)
			if _, err := os.Stat(configPath); err == nil {
				return configPath, nil
			}
		}

		// Stop at the repo root even if no config was found
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

// GlobalConfigPaths returns the candidate global config files under
// ~/.config/trace-analytics/, in lookup order.
func GlobalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(home, ".config", "trace-analytics")
	return []string{
		filepath.Join(dir, "config.json"),
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.yml"),
	}
}

// GlobalConfigPath returns the first existing global config file, or the
// default JSON location when none exists.
func GlobalConfigPath() string {
	paths := GlobalConfigPaths()
	if len(paths) == 0 {
		return ""
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return paths[0]
}

// MergeConfigs merges two configs with the overlay taking precedence.
// Fields in overlay override corresponding fields in base.
// Returns a new Config with the merged values.
func MergeConfigs(base, overlay *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	if overlay == nil {
		return base
	}

	merged := *base

	if overlay.SpanBufferSize > 0 {
		merged.SpanBufferSize = overlay.SpanBufferSize
	}
	if overlay.OTLPHost != "" {
		merged.OTLPHost = overlay.OTLPHost
	}
	if overlay.OTLPPort != 0 {
		merged.OTLPPort = overlay.OTLPPort
	}
	if overlay.HTTPHost != "" {
		merged.HTTPHost = overlay.HTTPHost
	}
	if overlay.HTTPPort > 0 {
		merged.HTTPPort = overlay.HTTPPort
	}
	if overlay.MaxTracesPerQuery > 0 {
		merged.MaxTracesPerQuery = overlay.MaxTracesPerQuery
	}
	if overlay.ObservationWindow != "" {
		merged.ObservationWindow = overlay.ObservationWindow
	}

	// Watch dirs accumulate across layers
	if len(overlay.WatchDirs) > 0 {
		merged.WatchDirs = appendUnique(append([]string(nil), base.WatchDirs...), overlay.WatchDirs...)
	}
	if overlay.OtelConfig != "" {
		merged.OtelConfig = overlay.OtelConfig
	}
	if overlay.ActiveOnly != nil {
		v := *overlay.ActiveOnly
		merged.ActiveOnly = &v
	}

	if overlay.MCP {
		merged.MCP = true
	}
	if overlay.LogLevel != "" {
		merged.LogLevel = overlay.LogLevel
	}
	if overlay.LogFormat != "" {
		merged.LogFormat = overlay.LogFormat
	}
	if overlay.Verbose {
		merged.Verbose = true
	}

	return &merged
}

// LoadEffectiveConfig loads the effective configuration by merging:
// 1. Built-in defaults
// 2. Global config file (if exists)
// 3. Project config file (if exists and configPath is empty)
// 4. Explicit config file (if specified via configPath)
// Later sources override earlier ones. Flags are applied by the caller.
func LoadEffectiveConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// Global config is optional, so read errors are ignored
	for _, globalPath := range GlobalConfigPaths() {
		if globalCfg, err := LoadConfigFromFile(globalPath); err == nil {
			config = MergeConfigs(config, globalCfg)
			break
		}
	}

	if configPath == "" {
		if projectPath, err := FindProjectConfig(); err == nil {
			projectCfg, err := LoadConfigFromFile(projectPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load project config: %w", err)
			}
			config = MergeConfigs(config, projectCfg)
		}
	} else {
		explicitCfg, err := LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = MergeConfigs(config, explicitCfg)
	}

	return config, nil
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, d := range dst {
		seen[d] = struct{}{}
	}
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		dst = append(dst, item)
	}
	return dst
}
