// Package config reads agent configuration from environment variables and
// an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the screener agent.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// API server
	BindAddr         string
	BindCandidates   []string
	BindAutoFallback bool

	// Storage settings
	DataDir       string
	ScanLogSizeMB int

	// Tab matching and eval behavior
	TabURLFilter  string
	EvalTimeoutMS int

	// Injection behavior
	ResyncSeconds int
	DebounceMS    int
	ChartBaseURL  string

	// Scanner behavior
	ScanMaxPages    int
	ScanPageDelayMS int
	ScreensPath     string

	// Browser launch
	LaunchBrowser bool
	BrowserBinary string
	ProfileDir    string

	// Notifications
	NtfyEndpoint string

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		BindAddr:         getEnvOrDefault("AGENT_BIND_ADDR", "127.0.0.1:8190"),
		BindCandidates:   getEnvListOrDefault("AGENT_BIND_CANDIDATES", []string{"127.0.0.1:8190", "127.0.0.1:8191", "127.0.0.1:8192"}),
		BindAutoFallback: getEnvBoolOrDefault("AGENT_BIND_AUTO_FALLBACK", true),
		DataDir:          getEnvOrDefault("AGENT_DATA_DIR", "./data"),
		ScanLogSizeMB:    getEnvIntOrDefault("AGENT_SCAN_LOG_SIZE_MB", 10),
		TabURLFilter:     getEnvOrDefault("AGENT_TAB_URL_FILTER", "screener.in"),
		EvalTimeoutMS:    getEnvIntOrDefault("AGENT_EVAL_TIMEOUT_MS", 5000),
		ResyncSeconds:    getEnvIntOrDefault("AGENT_RESYNC_SECONDS", 15),
		DebounceMS:       getEnvIntOrDefault("AGENT_DEBOUNCE_MS", 250),
		ChartBaseURL:     getEnvOrDefault("AGENT_CHART_BASE_URL", "https://www.tradingview.com/chart"),
		ScanMaxPages:     getEnvIntOrDefault("AGENT_SCAN_MAX_PAGES", 50),
		ScanPageDelayMS:  getEnvIntOrDefault("AGENT_SCAN_PAGE_DELAY_MS", 500),
		ScreensPath:      getEnvOrDefault("AGENT_SCREENS_CONFIG", "./config/screens.yaml"),
		LaunchBrowser:    getEnvBoolOrDefault("AGENT_LAUNCH_BROWSER", false),
		BrowserBinary:    getEnvOrDefault("AGENT_BROWSER_BINARY", ""),
		ProfileDir:       getEnvOrDefault("AGENT_PROFILE_DIR", ""),
		NtfyEndpoint:     getEnvOrDefault("AGENT_NTFY_ENDPOINT", ""),
		LogLevel:         strings.ToLower(getEnvOrDefault("AGENT_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("AGENT_LOG_FILE", "logs/screener_agent.log"),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	return cfg, nil
}

// CDPURL returns the full CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
