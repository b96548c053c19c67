package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// isolate points HOME at an empty dir and chdirs into a fresh git repo so
// real user config never leaks into a test.
func isolate(t *testing.T) (home, project string) {
	t.Helper()
	home = t.TempDir()
	project = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	require.NoError(t, os.Mkdir(filepath.Join(project, ".git"), 0o755))
	t.Chdir(project)
	return home, project
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10_000, cfg.SpanBufferSize)
	assert.Equal(t, "127.0.0.1", cfg.OTLPHost)
	assert.Equal(t, 0, cfg.OTLPPort)
	assert.Equal(t, 4380, cfg.HTTPPort)
	assert.Equal(t, 5_000, cfg.MaxTracesPerQuery)
	require.NotNil(t, cfg.ActiveOnly)
	assert.True(t, *cfg.ActiveOnly)
	assert.Equal(t, "info", cfg.EffectiveLogLevel())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "config.json")
	writeFile(t, jsonPath, `{"span_buffer_size": 500, "http_port": 9000, "watch_dirs": ["/a"], "active_only": false}`)
	cfg, err := LoadConfigFromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.SpanBufferSize)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, []string{"/a"}, cfg.WatchDirs)
	require.NotNil(t, cfg.ActiveOnly)
	assert.False(t, *cfg.ActiveOnly)

	yamlPath := filepath.Join(dir, "config.yaml")
	writeFile(t, yamlPath, "span_buffer_size: 700\nobservation_window: 5m\nmcp: true\nlog_format: json\n")
	cfg, err = LoadConfigFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 700, cfg.SpanBufferSize)
	assert.True(t, cfg.MCP)
	assert.Equal(t, "json", cfg.LogFormat)
	window, err := cfg.Window()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, window)

	badPath := filepath.Join(dir, "bad.json")
	writeFile(t, badPath, `{"span_buffer_size": "lots"}`)
	_, err = LoadConfigFromFile(badPath)
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadConfigFromFile(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestMergeConfigs(t *testing.T) {
	off := false
	base := DefaultConfig()
	base.WatchDirs = []string{"/a"}

	merged := MergeConfigs(base, &Config{
		SpanBufferSize: 42,
		OTLPPort:       4317,
		WatchDirs:      []string{"/a", "/b"},
		ActiveOnly:     &off,
		Verbose:        true,
	})

	assert.Equal(t, 42, merged.SpanBufferSize)
	assert.Equal(t, 4317, merged.OTLPPort)
	assert.Equal(t, "127.0.0.1", merged.OTLPHost, "unset overlay fields keep base")
	assert.Equal(t, []string{"/a", "/b"}, merged.WatchDirs)
	assert.False(t, *merged.ActiveOnly)
	assert.Equal(t, "debug", merged.EffectiveLogLevel())

	// base is untouched
	assert.Equal(t, []string{"/a"}, base.WatchDirs)
	assert.True(t, *base.ActiveOnly)

	assert.Same(t, base, MergeConfigs(base, nil))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero buffer", func(c *Config) { c.SpanBufferSize = 0 }, "span_buffer_size"},
		{"negative cap", func(c *Config) { c.MaxTracesPerQuery = -1 }, "max_traces_per_query"},
		{"port range", func(c *Config) { c.HTTPPort = 70000 }, "http_port"},
		{"bad window", func(c *Config) { c.ObservationWindow = "soon" }, "observation_window"},
		{"negative window", func(c *Config) { c.ObservationWindow = "-1m" }, "observation_window"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestFindProjectConfig(t *testing.T) {
	_, project := isolate(t)

	_, err := FindProjectConfig()
	assert.ErrorIs(t, err, os.ErrNotExist)

	nested := filepath.Join(project, "svc", "cmd")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	writeFile(t, filepath.Join(project, ".trace-analytics.yaml"), "span_buffer_size: 5\n")

	found, err := findProjectConfigFrom(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(project, ".trace-analytics.yaml"), found)
}

func TestFindProjectConfigStopsAtGitRoot(t *testing.T) {
	outer := t.TempDir()
	writeFile(t, filepath.Join(outer, ".trace-analytics.json"), `{}`)

	repo := filepath.Join(outer, "repo")
	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git"), 0o755))

	_, err := findProjectConfigFrom(repo)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEffectiveConfigLayers(t *testing.T) {
	home, project := isolate(t)

	writeFile(t, filepath.Join(home, ".config", "trace-analytics", "config.yaml"),
		"span_buffer_size: 100\nhttp_port: 9100\nwatch_dirs: [/global]\n")
	writeFile(t, filepath.Join(project, ".trace-analytics.json"),
		`{"span_buffer_size": 200, "watch_dirs": ["/project"]}`)

	cfg, err := LoadEffectiveConfig("")
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.SpanBufferSize, "project overrides global")
	assert.Equal(t, 9100, cfg.HTTPPort, "global overrides defaults")
	assert.Equal(t, []string{"/global", "/project"}, cfg.WatchDirs)
	assert.Equal(t, 5_000, cfg.MaxTracesPerQuery)

	explicit := filepath.Join(t.TempDir(), "explicit.yml")
	writeFile(t, explicit, "span_buffer_size: 300\n")
	cfg, err = LoadEffectiveConfig(explicit)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.SpanBufferSize)
	assert.Equal(t, []string{"/global"}, cfg.WatchDirs, "explicit config replaces project discovery")

	_, err = LoadEffectiveConfig(filepath.Join(project, "missing.json"))
	assert.ErrorContains(t, err, "failed to load config file")
}

func TestLoadEffectiveConfigBadProjectFile(t *testing.T) {
	_, project := isolate(t)
	writeFile(t, filepath.Join(project, ".trace-analytics.json"), `{`)

	_, err := LoadEffectiveConfig("")
	assert.ErrorContains(t, err, "failed to load project config")
}

func TestGlobalConfigPath(t *testing.T) {
	home, _ := isolate(t)
	dir := filepath.Join(home, ".config", "trace-analytics")

	assert.Equal(t, filepath.Join(dir, "config.json"), GlobalConfigPath())

	writeFile(t, filepath.Join(dir, "config.yml"), "mcp: true\n")
	assert.Equal(t, filepath.Join(dir, "config.yml"), GlobalConfigPath())
}

func TestParseOtelConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otel.yaml")
	writeFile(t, path, `
exporters:
  file/traces:
    path: /var/otel/b/traces.jsonl
  file/logs:
    path: /var/otel/a/logs.jsonl
  file/again:
    path: /var/otel/b/more.jsonl
  otlp:
    endpoint: localhost:4317
`)

	dirs, err := ParseOtelConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/var/otel/a", "/var/otel/b"}, dirs)

	_, err = ParseOtelConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read otel config")
}

func TestParseOtelConfigFollowsTracePipelines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "otel.yaml")
	writeFile(t, path, `
exporters:
  file:
    path: out/traces.jsonl
  file/logs:
    path: /var/otel/logs/logs.jsonl
  file/unused:
    path: /var/otel/unused/traces.jsonl
service:
  pipelines:
    traces:
      exporters: [file]
    traces/archive:
      exporters: [otlp]
    logs:
      exporters: [file/logs]
`)

	dirs, err := ParseOtelConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "out")}, dirs)
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"", "console", "json"} {
		logger, err := NewLogger("debug", format)
		require.NoError(t, err, format)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel), "debug enabled for %q", format)
	}

	logger, err := NewLogger("", "console")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel), "default level is info")

	_, err = NewLogger("loud", "console")
	assert.ErrorContains(t, err, "invalid log level")

	_, err = NewLogger("info", "xml")
	assert.ErrorContains(t, err, "invalid log format")
}
