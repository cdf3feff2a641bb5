package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ScreenEntry is one named screener results URL that can be scanned by name.
type ScreenEntry struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// ScreensConfig is the top-level YAML file of saved screens.
type ScreensConfig struct {
	Screens []ScreenEntry `yaml:"screens"`
}

// LoadScreens reads and validates a screens YAML config file. Returns an
// os.ErrNotExist-wrapped error if the file is absent (caller silently skips
// in that case).
func LoadScreens(path string) (*ScreensConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("screens config: %w", err)
	}
	var cfg ScreensConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("screens config: %w", err)
	}
	if len(cfg.Screens) < 1 {
		return nil, fmt.Errorf("screens config: at least one screen entry is required")
	}
	seen := make(map[string]bool, len(cfg.Screens))
	for i, s := range cfg.Screens {
		if s.Name == "" {
			return nil, fmt.Errorf("screens config: screens[%d] missing name", i)
		}
		if s.URL == "" {
			return nil, fmt.Errorf("screens config: screens[%d] missing url", i)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("screens config: duplicate screen name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return &cfg, nil
}

// Find returns the URL registered under name.
func (c *ScreensConfig) Find(name string) (string, bool) {
	for _, s := range c.Screens {
		if s.Name == name {
			return s.URL, true
		}
	}
	return "", false
}
