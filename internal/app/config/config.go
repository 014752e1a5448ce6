package config

import (
	"path/filepath"
	"time"
)

// Config provides read-only access to application configuration.
// This interface abstracts the configuration source (JSON, ENV, defaults)
// and keeps the app layer free of infrastructure details. Operational
// settings that change at runtime live in the settings table, not here.
type Config interface {
	// Core settings
	Home() string // Base data directory (EPGMERGE_HOME)

	// Derived paths under Home
	DBPath() string       // SQLite metadata index
	ArtifactsDir() string // Artifact store root (scratch/current/archive)
	CacheDir() string     // Downloaded source cache
	WorkDir() string      // Merge output under construction
	ManifestPath() string // Optional sources.yaml override

	// Runtime behavior
	TickInterval() time.Duration // Scheduler evaluation interval
	HistoryLimit() int           // In-memory job history bound

	// Logging
	StderrLevel() string // Stderr log level (EPGMERGE_STDERR_LEVEL)

	// Metadata
	ConfigSource() string // Source of configuration: "json" or "default"
	SettingPath() string  // Path to setting.json if loaded from file
}

// AppConfig is the concrete implementation of Config
type AppConfig struct {
	home            string
	tickIntervalSec int
	historyLimit    int
	stderrLevel     string

	configSource string
	settingPath  string
}

// NewAppConfig creates an AppConfig with the given values
func NewAppConfig(home string, tickIntervalSec, historyLimit int, stderrLevel, configSource, settingPath string) *AppConfig {
	return &AppConfig{
		home:            home,
		tickIntervalSec: tickIntervalSec,
		historyLimit:    historyLimit,
		stderrLevel:     stderrLevel,
		configSource:    configSource,
		settingPath:     settingPath,
	}
}

func (c *AppConfig) Home() string { return c.home }

func (c *AppConfig) DBPath() string       { return filepath.Join(c.home, "epgmerge.db") }
func (c *AppConfig) ArtifactsDir() string { return filepath.Join(c.home, "artifacts") }
func (c *AppConfig) CacheDir() string     { return filepath.Join(c.home, "cache") }
func (c *AppConfig) WorkDir() string      { return filepath.Join(c.home, "work") }
func (c *AppConfig) ManifestPath() string { return filepath.Join(c.home, "sources.yaml") }

func (c *AppConfig) TickInterval() time.Duration {
	return time.Duration(c.tickIntervalSec) * time.Second
}
func (c *AppConfig) HistoryLimit() int { return c.historyLimit }

func (c *AppConfig) StderrLevel() string { return c.stderrLevel }

func (c *AppConfig) ConfigSource() string { return c.configSource }
func (c *AppConfig) SettingPath() string  { return c.settingPath }
