package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CDPURL() != "http://127.0.0.1:9220" {
		t.Fatalf("cdp url = %q", cfg.CDPURL())
	}
	if cfg.TabURLFilter != "screener.in" {
		t.Fatalf("tab filter = %q", cfg.TabURLFilter)
	}
	if cfg.ScanMaxPages != 50 {
		t.Fatalf("scan max pages = %d", cfg.ScanMaxPages)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHROMIUM_CDP_PORT", "9333")
	t.Setenv("AGENT_SCAN_MAX_PAGES", "5")
	t.Setenv("AGENT_LAUNCH_BROWSER", "true")
	t.Setenv("AGENT_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CDPPort != 9333 {
		t.Fatalf("cdp port = %d", cfg.CDPPort)
	}
	if cfg.ScanMaxPages != 5 {
		t.Fatalf("scan max pages = %d", cfg.ScanMaxPages)
	}
	if !cfg.LaunchBrowser {
		t.Fatal("launch browser not set")
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestEvalTimeoutFloor(t *testing.T) {
	t.Setenv("AGENT_EVAL_TIMEOUT_MS", "100")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EvalTimeoutMS != 1000 {
		t.Fatalf("eval timeout = %d", cfg.EvalTimeoutMS)
	}
}

func TestLoadScreens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screens.yaml")
	data := `screens:
  - name: momentum
    url: https://www.screener.in/screens/1/momentum/
  - name: value
    url: https://www.screener.in/screens/2/value/
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadScreens(path)
	if err != nil {
		t.Fatalf("load screens: %v", err)
	}
	if len(cfg.Screens) != 2 {
		t.Fatalf("screens = %d", len(cfg.Screens))
	}
	url, ok := cfg.Find("value")
	if !ok || url != "https://www.screener.in/screens/2/value/" {
		t.Fatalf("find value = %q %v", url, ok)
	}
	if _, ok := cfg.Find("missing"); ok {
		t.Fatal("found unknown screen")
	}
}

func TestLoadScreensRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":     `screens: []`,
		"no name":   "screens:\n  - url: https://example.com\n",
		"no url":    "screens:\n  - name: x\n",
		"duplicate": "screens:\n  - name: x\n    url: https://a\n  - name: x\n    url: https://b\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "screens.yaml")
			if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := LoadScreens(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadScreensMissingFile(t *testing.T) {
	_, err := LoadScreens(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
