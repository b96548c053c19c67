package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// OtelCollectorConfig is the subset of an OpenTelemetry Collector config
// needed to find where traces are written to disk.
type OtelCollectorConfig struct {
	Exporters map[string]FileExporter `yaml:"exporters"`
	Service   struct {
		Pipelines map[string]Pipeline `yaml:"pipelines"`
	} `yaml:"service"`
}

// FileExporter represents a file exporter configuration.
type FileExporter struct {
	Path string `yaml:"path"`
}

// Pipeline lists the exporters a collector pipeline sends to.
type Pipeline struct {
	Exporters []string `yaml:"exporters"`
}

// ParseOtelConfig reads an OpenTelemetry Collector config file and returns
// the sorted, de-duplicated directories that file exporters write traces to.
//
// When the config declares pipelines, only file exporters wired into a
// "traces" or "traces/..." pipeline count. Without pipelines every file
// exporter counts. Relative exporter paths resolve against the directory of
// the config file.
func ParseOtelConfig(configPath string) ([]string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read otel config: %w", err)
	}

	var config OtelCollectorConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse otel config: %w", err)
	}

	wanted := traceExporters(config.Service.Pipelines)
	base := filepath.Dir(configPath)

	dirSet := make(map[string]struct{})
	for name, exporter := range config.Exporters {
		if !isFileExporter(name) || exporter.Path == "" {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[name]; !ok {
				continue
			}
		}
		path := exporter.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		dirSet[filepath.Dir(path)] = struct{}{}
	}

	dirs := make([]string, 0, len(dirSet))
	for dir := range dirSet {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	return dirs, nil
}

// traceExporters returns the exporters used by trace pipelines, or nil when
// no pipelines are declared at all.
func traceExporters(pipelines map[string]Pipeline) map[string]struct{} {
	if len(pipelines) == 0 {
		return nil
	}
	names := make(map[string]struct{})
	for name, p := range pipelines {
		if name != "traces" && !strings.HasPrefix(name, "traces/") {
			continue
		}
		for _, e := range p.Exporters {
			names[e] = struct{}{}
		}
	}
	return names
}

func isFileExporter(name string) bool {
	return name == "file" || strings.HasPrefix(name, "file/")
}
