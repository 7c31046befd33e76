package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const envPrefix = "COURSEDECK_"

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Library     LibraryConfig     `yaml:"library"`
	Playback    PlaybackConfig    `yaml:"playback"`
	Subtitles   SubtitlesConfig   `yaml:"subtitles"`
	Shortcuts   ShortcutsConfig   `yaml:"shortcuts"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Cache       CacheConfig       `yaml:"cache"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LibraryConfig.ImportPath is imported at startup when set.
type LibraryConfig struct {
	ImportPath string `yaml:"import_path"`
}

type PlaybackConfig struct {
	DefaultSpeed        float64       `yaml:"default_speed"`
	AutoPlay            bool          `yaml:"auto_play"`
	RememberPosition    bool          `yaml:"remember_position"`
	AutoMarkCompleted   bool          `yaml:"auto_mark_completed"`
	AutoPlayNext        bool          `yaml:"auto_play_next"`
	SaveInterval        time.Duration `yaml:"save_interval"`
	CompletionThreshold float64       `yaml:"completion_threshold"`
}

type SubtitlesConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	FontSize        string `yaml:"font_size" json:"font_size"`
	FontColor       string `yaml:"font_color" json:"font_color"`
	BackgroundColor string `yaml:"background_color" json:"background_color"`
}

type ShortcutsConfig struct {
	PlayPause        string `yaml:"play_pause" json:"play_pause"`
	SeekForward      string `yaml:"seek_forward" json:"seek_forward"`
	SeekBackward     string `yaml:"seek_backward" json:"seek_backward"`
	VolumeUp         string `yaml:"volume_up" json:"volume_up"`
	VolumeDown       string `yaml:"volume_down" json:"volume_down"`
	ToggleFullscreen string `yaml:"toggle_fullscreen" json:"toggle_fullscreen"`
}

type MaintenanceConfig struct {
	DurationRefresh string        `yaml:"duration_refresh"` // cron spec, empty disables
	ProbeWorkers    int           `yaml:"probe_workers"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
}

type CacheConfig struct {
	LastPlayedCapacity int `yaml:"last_played_capacity"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         6541,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
		},
		Database: DatabaseConfig{
			Path: "data/coursedeck.db",
		},
		Playback: PlaybackConfig{
			DefaultSpeed:        1.0,
			AutoPlay:            true,
			RememberPosition:    true,
			AutoMarkCompleted:   true,
			AutoPlayNext:        true,
			SaveInterval:        5 * time.Second,
			CompletionThreshold: 0.98,
		},
		Subtitles: SubtitlesConfig{
			Enabled:         true,
			FontSize:        "medium",
			FontColor:       "white",
			BackgroundColor: "black",
		},
		Shortcuts: ShortcutsConfig{
			PlayPause:        "Space",
			SeekForward:      "ArrowRight",
			SeekBackward:     "ArrowLeft",
			VolumeUp:         "ArrowUp",
			VolumeDown:       "ArrowDown",
			ToggleFullscreen: "f",
		},
		Maintenance: MaintenanceConfig{
			DurationRefresh: "@every 30m",
			ProbeWorkers:    2,
			ProbeTimeout:    15 * time.Second,
		},
		Cache: CacheConfig{
			LastPlayedCapacity: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies COURSEDECK_*
// environment overrides and validates the result. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvString("HOST", c.Server.Host)
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Database.Path = getEnvString("DB_PATH", c.Database.Path)
	c.Library.ImportPath = getEnvString("IMPORT_PATH", c.Library.ImportPath)
	c.Playback.SaveInterval = getEnvDuration("SAVE_INTERVAL", c.Playback.SaveInterval)
	c.Playback.CompletionThreshold = getEnvFloat("COMPLETION_THRESHOLD", c.Playback.CompletionThreshold)
	c.Maintenance.DurationRefresh = getEnvString("DURATION_REFRESH", c.Maintenance.DurationRefresh)
	c.Maintenance.ProbeWorkers = getEnvInt("PROBE_WORKERS", c.Maintenance.ProbeWorkers)
	c.Logging.Level = getEnvString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Pretty = getEnvBool("LOG_PRETTY", c.Logging.Pretty)

	if strings.EqualFold(c.Maintenance.DurationRefresh, "off") {
		c.Maintenance.DurationRefresh = ""
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Playback.SaveInterval <= 0 {
		return fmt.Errorf("playback.save_interval must be positive")
	}
	if t := c.Playback.CompletionThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("playback.completion_threshold must be in (0, 1], got %v", t)
	}
	if c.Playback.DefaultSpeed <= 0 {
		return fmt.Errorf("playback.default_speed must be positive")
	}
	if c.Maintenance.DurationRefresh != "" {
		if _, err := cron.ParseStandard(c.Maintenance.DurationRefresh); err != nil {
			return fmt.Errorf("invalid maintenance.duration_refresh: %w", err)
		}
	}
	if c.Maintenance.ProbeWorkers < 1 {
		return fmt.Errorf("maintenance.probe_workers must be at least 1")
	}
	if c.Cache.LastPlayedCapacity < 1 {
		return fmt.Errorf("cache.last_played_capacity must be at least 1")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
