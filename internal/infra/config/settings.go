package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jesmann/epgmerge/internal/app/config"
)

// RawSettings represents the structure of the setting.json file.
// Pointer fields distinguish "absent" from zero values.
type RawSettings struct {
	Home            *string `json:"home"`
	TickIntervalSec *int    `json:"tick_interval_sec"`
	HistoryLimit    *int    `json:"history_limit"`
	StderrLevel     *string `json:"stderr_level"`
}

// ResolveHome determines the base data directory: the EPGMERGE_HOME
// environment variable when set, otherwise .epgmerge in the working
// directory
func ResolveHome() string {
	if v := os.Getenv("EPGMERGE_HOME"); v != "" {
		return v
	}
	return ".epgmerge"
}

// LoadSettings loads configuration from setting.json under baseDir.
// Priority: setting.json > defaults. A missing file is not an error.
func LoadSettings(baseDir string) (*config.AppConfig, error) {
	settings := &RawSettings{}
	configSource := "default"
	settingPath := ""

	jsonPath := filepath.Join(baseDir, "setting.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		if err := json.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
		configSource = "json"
		settingPath = jsonPath
	}

	applyDefaults(settings, baseDir)

	return config.NewAppConfig(
		*settings.Home,
		*settings.TickIntervalSec,
		*settings.HistoryLimit,
		*settings.StderrLevel,
		configSource,
		settingPath,
	), nil
}

// applyDefaults fills in default values for any nil fields
func applyDefaults(settings *RawSettings, baseDir string) {
	if settings.Home == nil {
		v := baseDir
		settings.Home = &v
	}
	if settings.TickIntervalSec == nil {
		v := 30
		settings.TickIntervalSec = &v
	}
	if settings.HistoryLimit == nil {
		v := 50
		settings.HistoryLimit = &v
	}
	if settings.StderrLevel == nil {
		v := "info"
		settings.StderrLevel = &v
	}
}
