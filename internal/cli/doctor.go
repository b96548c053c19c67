package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"
)

// mcpServerName is the key doctor expects under "mcpServers" in agent configs.
const mcpServerName = "trace-analytics"

// DoctorCommand returns the CLI command definition for the 'doctor' subcommand.
// This command runs diagnostic checks to verify trace-analytics is properly configured.
func DoctorCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Diagnose common setup and configuration issues",
		Description: `Run checks to verify trace-analytics is properly configured.

This command checks:
  - Binary location and permissions
  - trace-analytics config files (global, project, --config)
  - Watch directories
  - OTLP and HTTP port availability
  - MCP agent configuration (mcp_settings.json)
  - Optional dependencies (otel-cli)

Exit codes:
  0 - All critical checks passed
  1 - One or more issues found`,
		Flags: commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, cfgErr := loadConfig(cmd)
			return runDoctorWithUtils(output(cmd), version, &realFsUtils{}, cfg, cfgErr)
		},
	}
}

type checkStatus string

const (
	statusPass checkStatus = "pass"
	statusWarn checkStatus = "warn"
	statusFail checkStatus = "fail"
)

type checkResult struct {
	Name       string
	Status     checkStatus
	Message    string
	Suggestion string
	IsCritical bool
}

type fsUtils interface {
	Executable() (string, error)
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	UserHomeDir() (string, error)
	Getwd() (string, error)
	LookPath(file string) (string, error)
	CanListen(addr string) error
}

type realFsUtils struct{}

func (r *realFsUtils) Executable() (string, error)           { return os.Executable() }
func (r *realFsUtils) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (r *realFsUtils) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (r *realFsUtils) UserHomeDir() (string, error)          { return os.UserHomeDir() }
func (r *realFsUtils) Getwd() (string, error)                { return os.Getwd() }
func (r *realFsUtils) LookPath(file string) (string, error)  { return exec.LookPath(file) }

func (r *realFsUtils) CanListen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return l.Close()
}

// doctorEnv is what every check gets to look at.
type doctorEnv struct {
	utils  fsUtils
	cfg    *Config
	cfgErr error
}

func runDoctorWithUtils(w io.Writer, version string, utils fsUtils, cfg *Config, cfgErr error) error {
	fmt.Fprintf(w, "🔍 trace-analytics doctor v%s\n\n", version)

	env := doctorEnv{utils: utils, cfg: cfg, cfgErr: cfgErr}
	checks := []func(env doctorEnv) checkResult{
		checkBinaryLocation,
		checkBinaryExecutable,
		checkConfig,
		checkWatchDirs,
		checkOTLPPort,
		checkHTTPPort,
		checkMCPConfig,
		checkOtelCLI,
	}

	results := make([]checkResult, 0, len(checks))
	for _, check := range checks {
		result := check(env)
		results = append(results, result)
		printCheckResult(w, result)
	}

	fmt.Fprintln(w)
	summary := summarizeResults(results)
	printSummary(w, summary)

	if summary.FailCount > 0 {
		return fmt.Errorf("found %d issues that need attention", summary.FailCount)
	}

	return nil
}

func printCheckResult(w io.Writer, result checkResult) {
	var icon string
	switch result.Status {
	case statusPass:
		icon = "✓"
	case statusWarn:
		icon = "⚠"
	case statusFail:
		icon = "✗"
	}

	fmt.Fprintf(w, "%s %s\n", icon, result.Message)

	if result.Suggestion != "" {
		fmt.Fprintf(w, "  %s\n", result.Suggestion)
	}
}

type resultSummary struct {
	PassCount int
	WarnCount int
	FailCount int
}

func summarizeResults(results []checkResult) resultSummary {
	var summary resultSummary
	for _, r := range results {
		switch r.Status {
		case statusPass:
			summary.PassCount++
		case statusWarn:
			summary.WarnCount++
		case statusFail:
			summary.FailCount++
		}
	}
	return summary
}

func printSummary(w io.Writer, summary resultSummary) {
	if summary.FailCount > 0 {
		fmt.Fprintf(w, "❌ Found %d issue(s) that need attention\n", summary.FailCount)
		if summary.WarnCount > 0 {
			fmt.Fprintf(w, "⚠️  %d warning(s)\n", summary.WarnCount)
		}
	} else if summary.WarnCount > 0 {
		fmt.Fprintf(w, "✅ All critical checks passed!\n")
		fmt.Fprintf(w, "⚠️  %d optional warning(s)\n", summary.WarnCount)
		fmt.Fprintf(w, "💡 Run 'trace-analytics serve --verbose' to start the server\n")
	} else {
		fmt.Fprintf(w, "✅ All checks passed!\n")
		fmt.Fprintf(w, "💡 Run 'trace-analytics serve --verbose' to start the server\n")
	}
}

// Check 1: Binary location
func checkBinaryLocation(env doctorEnv) checkResult {
	executable, err := env.utils.Executable()
	if err != nil {
		return checkResult{
			Name:       "binary_location",
			Status:     statusFail,
			Message:    "Could not determine binary location",
			Suggestion: fmt.Sprintf("Error: %v", err),
			IsCritical: true,
		}
	}

	absPath, err := filepath.Abs(executable)
	if err != nil {
		absPath = executable
	}

	return checkResult{
		Name:    "binary_location",
		Status:  statusPass,
		Message: fmt.Sprintf("Binary location: %s", absPath),
	}
}

// Check 2: Binary executable
func checkBinaryExecutable(env doctorEnv) checkResult {
	executable, err := env.utils.Executable()
	if err != nil {
		return checkResult{
			Name:       "binary_executable",
			Status:     statusFail,
			Message:    "Could not check if binary is executable",
			IsCritical: true,
		}
	}

	info, err := env.utils.Stat(executable)
	if err != nil || info == nil {
		return checkResult{
			Name:       "binary_executable",
			Status:     statusFail,
			Message:    "Could not stat binary",
			Suggestion: fmt.Sprintf("Error: %v", err),
			IsCritical: true,
		}
	}

	if info.Mode()&0111 == 0 {
		return checkResult{
			Name:       "binary_executable",
			Status:     statusFail,
			Message:    "Binary is not executable",
			Suggestion: fmt.Sprintf("Run: chmod +x %s", executable),
			IsCritical: true,
		}
	}

	return checkResult{
		Name:    "binary_executable",
		Status:  statusPass,
		Message: "Binary is executable",
	}
}

// Check 3: trace-analytics config files
func checkConfig(env doctorEnv) checkResult {
	if env.cfgErr != nil {
		return checkResult{
			Name:       "config",
			Status:     statusFail,
			Message:    "Configuration could not be loaded",
			Suggestion: fmt.Sprintf("Error: %v", env.cfgErr),
			IsCritical: true,
		}
	}

	return checkResult{
		Name:   "config",
		Status: statusPass,
		Message: fmt.Sprintf("Configuration OK (buffer %d spans, %d traces per query)",
			env.cfg.SpanBufferSize, env.cfg.MaxTracesPerQuery),
	}
}

// Check 4: watch directories
func checkWatchDirs(env doctorEnv) checkResult {
	if env.cfg == nil || len(env.cfg.WatchDirs) == 0 {
		return checkResult{
			Name:    "watch_dirs",
			Status:  statusPass,
			Message: "No watch directories configured",
		}
	}

	var missing []string
	for _, dir := range env.cfg.WatchDirs {
		info, err := env.utils.Stat(dir)
		if err != nil || info == nil || !info.IsDir() {
			missing = append(missing, dir)
		}
	}
	if len(missing) > 0 {
		return checkResult{
			Name:       "watch_dirs",
			Status:     statusFail,
			Message:    fmt.Sprintf("%d of %d watch directories missing", len(missing), len(env.cfg.WatchDirs)),
			Suggestion: "Missing: " + strings.Join(missing, ", "),
			IsCritical: true,
		}
	}

	return checkResult{
		Name:    "watch_dirs",
		Status:  statusPass,
		Message: fmt.Sprintf("Watch directories found: %s", strings.Join(env.cfg.WatchDirs, ", ")),
	}
}

// Check 5: OTLP port
func checkOTLPPort(env doctorEnv) checkResult {
	if env.cfg == nil {
		return checkResult{Name: "otlp_port", Status: statusWarn, Message: "OTLP port not checked (no configuration)"}
	}
	if env.cfg.OTLPPort == 0 {
		return checkResult{
			Name:    "otlp_port",
			Status:  statusPass,
			Message: "OTLP port: ephemeral (chosen at startup)",
		}
	}
	return checkPort(env.utils, "otlp_port", "OTLP", env.cfg.OTLPHost, env.cfg.OTLPPort, "--otlp-port")
}

// Check 6: HTTP API port
func checkHTTPPort(env doctorEnv) checkResult {
	if env.cfg == nil {
		return checkResult{Name: "http_port", Status: statusWarn, Message: "HTTP port not checked (no configuration)"}
	}
	return checkPort(env.utils, "http_port", "HTTP", env.cfg.HTTPHost, env.cfg.HTTPPort, "--http-port")
}

// checkPort warns rather than fails: a running server holds the port too.
func checkPort(utils fsUtils, name, label, host string, port int, flag string) checkResult {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if err := utils.CanListen(addr); err != nil {
		return checkResult{
			Name:       name,
			Status:     statusWarn,
			Message:    fmt.Sprintf("%s port %s is not available", label, addr),
			Suggestion: fmt.Sprintf("Another process (maybe trace-analytics serve) holds it. Pick another with %s", flag),
		}
	}

	return checkResult{
		Name:    name,
		Status:  statusPass,
		Message: fmt.Sprintf("%s port %s is available", label, addr),
	}
}

// Check 7: MCP configuration
func checkMCPConfig(env doctorEnv) checkResult {
	utils := env.utils
	configPath := getMCPConfigPath(utils)
	allPaths := getMCPConfigPaths(utils)

	if _, err := utils.Stat(configPath); err != nil {
		executable, _ := utils.Executable()
		absPath, _ := filepath.Abs(executable)

		locationsList := ""
		for _, p := range allPaths {
			locationsList += fmt.Sprintf("  - %s\n", p)
		}

		suggestion := fmt.Sprintf(`MCP config not found. Checked:
%s
  Example config:
  {
    "mcpServers": {
      %q: {
        "command": "%s",
        "args": ["serve", "--mcp"]
      }
    }
  }`, locationsList, mcpServerName, absPath)

		return checkResult{
			Name:       "mcp_config",
			Status:     statusWarn,
			Message:    "MCP config not found",
			Suggestion: suggestion,
		}
	}

	data, err := utils.ReadFile(configPath)
	if err != nil {
		return checkResult{
			Name:       "mcp_config",
			Status:     statusFail,
			Message:    "Could not read MCP config",
			Suggestion: fmt.Sprintf("Error reading %s: %v", configPath, err),
			IsCritical: true,
		}
	}

	var config map[string]any
	if err := json.Unmarshal(data, &config); err != nil {
		return checkResult{
			Name:       "mcp_config",
			Status:     statusFail,
			Message:    "MCP config is not valid JSON",
			Suggestion: fmt.Sprintf("Error parsing %s: %v", configPath, err),
			IsCritical: true,
		}
	}

	agentName := "MCP agent"
	if strings.Contains(configPath, ".gemini") {
		agentName = "Gemini CLI"
	} else if strings.Contains(configPath, ".claude") || strings.Contains(configPath, "claude-code") {
		agentName = "Claude"
	}

	mcpServers, ok := config["mcpServers"].(map[string]any)
	if !ok {
		return checkResult{
			Name:       "mcp_config",
			Status:     statusWarn,
			Message:    fmt.Sprintf("%s config found: %s", agentName, configPath),
			Suggestion: "Config does not contain 'mcpServers' section",
		}
	}

	entry, ok := mcpServers[mcpServerName].(map[string]any)
	if !ok {
		return checkResult{
			Name:       "mcp_config",
			Status:     statusWarn,
			Message:    fmt.Sprintf("%s config found: %s", agentName, configPath),
			Suggestion: fmt.Sprintf("Config does not contain a %q server entry", mcpServerName),
		}
	}

	configuredCommand, _ := entry["command"].(string)
	executable, _ := utils.Executable()
	absExecutable, _ := filepath.Abs(executable)

	if configuredCommand != "" && configuredCommand != absExecutable {
		return checkResult{
			Name:    "mcp_config",
			Status:  statusWarn,
			Message: fmt.Sprintf("%s config found: %s", agentName, configPath),
			Suggestion: fmt.Sprintf("Config path (%s) differs from current binary (%s)\n  Update config to use current binary if needed",
				configuredCommand, absExecutable),
		}
	}

	return checkResult{
		Name:    "mcp_config",
		Status:  statusPass,
		Message: fmt.Sprintf("%s config found: %s", agentName, configPath),
	}
}

// Check 8: otel-cli availability
func checkOtelCLI(env doctorEnv) checkResult {
	path, err := env.utils.LookPath("otel-cli")
	if err == nil {
		return checkResult{
			Name:    "otel_cli",
			Status:  statusPass,
			Message: fmt.Sprintf("Optional: otel-cli found at %s", path),
		}
	}

	return checkResult{
		Name:    "otel_cli",
		Status:  statusWarn,
		Message: "Optional: otel-cli not found",
		Suggestion: `otel-cli is handy for sending one-off spans but not required.
  Install with: go install github.com/tobert/otel-cli@latest`,
	}
}

// getMCPConfigPaths returns possible MCP config file paths for various agents
func getMCPConfigPaths(utils fsUtils) []string {
	homeDir, err := utils.UserHomeDir()
	if err != nil {
		return nil
	}

	cwd, _ := utils.Getwd()

	var paths []string

	// Project-level configs first (more specific)
	if cwd != "" {
		paths = append(paths,
			filepath.Join(cwd, ".gemini", "settings.json"),
			filepath.Join(cwd, ".claude", "settings.json"),
		)
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		paths = append(paths, filepath.Join(appData, "Claude Code", "mcp_settings.json"))
	default:
		paths = append(paths, filepath.Join(homeDir, ".config", "claude-code", "mcp_settings.json"))
	}

	return paths
}

// getMCPConfigPath returns the first existing MCP config file path
func getMCPConfigPath(utils fsUtils) string {
	paths := getMCPConfigPaths(utils)
	for _, path := range paths {
		if _, err := utils.Stat(path); err == nil {
			return path
		}
	}
	if len(paths) > 0 {
		return paths[0]
	}
	return ""
}
