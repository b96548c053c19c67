package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

// commonFlags are shared by every command that reads the layered config.
// Defaults live in DefaultConfig, so flags only override when explicitly set.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Config file (JSON or YAML); skips project config discovery",
		},
		&cli.IntFlag{
			Name:  "span-buffer-size",
			Usage: "Number of spans to keep in memory (default 10000)",
		},
		&cli.IntFlag{
			Name:  "max-traces-per-query",
			Usage: "Most recent traces considered by one query (default 5000)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: console or json",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
	}
}

// loadConfig resolves the layered config and applies explicitly set flags on top.
func loadConfig(cmd *cli.Command) (*Config, error) {
	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	cfg = MergeConfigs(cfg, flagOverlay(cmd))
	if cmd.IsSet("otlp-port") {
		// 0 is a meaningful flag value (ephemeral) that MergeConfigs would skip
		cfg.OTLPPort = cmd.Int("otlp-port")
	}
	if cmd.IsSet("mcp") {
		cfg.MCP = cmd.Bool("mcp")
	}

	if cfg.OtelConfig != "" {
		dirs, err := ParseOtelConfig(cfg.OtelConfig)
		if err != nil {
			return nil, err
		}
		cfg.WatchDirs = appendUnique(cfg.WatchDirs, dirs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// flagOverlay builds a Config holding only the flags the user set.
func flagOverlay(cmd *cli.Command) *Config {
	overlay := &Config{}
	if cmd.IsSet("span-buffer-size") {
		overlay.SpanBufferSize = cmd.Int("span-buffer-size")
	}
	if cmd.IsSet("max-traces-per-query") {
		overlay.MaxTracesPerQuery = cmd.Int("max-traces-per-query")
	}
	if cmd.IsSet("otlp-host") {
		overlay.OTLPHost = cmd.String("otlp-host")
	}
	if cmd.IsSet("http-host") {
		overlay.HTTPHost = cmd.String("http-host")
	}
	if cmd.IsSet("http-port") {
		overlay.HTTPPort = cmd.Int("http-port")
	}
	if cmd.IsSet("window") {
		overlay.ObservationWindow = cmd.String("window")
	}
	if cmd.IsSet("watch-dir") {
		overlay.WatchDirs = cmd.StringSlice("watch-dir")
	}
	if cmd.IsSet("otel-config") {
		overlay.OtelConfig = cmd.String("otel-config")
	}
	if cmd.IsSet("active-only") {
		v := cmd.Bool("active-only")
		overlay.ActiveOnly = &v
	}
	if cmd.IsSet("log-level") {
		overlay.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		overlay.LogFormat = cmd.String("log-format")
	}
	if cmd.IsSet("verbose") {
		overlay.Verbose = cmd.Bool("verbose")
	}
	return overlay
}

// output returns the writer commands print results to.
func output(cmd *cli.Command) io.Writer {
	if root := cmd.Root(); root != nil && root.Writer != nil {
		return root.Writer
	}
	return os.Stdout
}
