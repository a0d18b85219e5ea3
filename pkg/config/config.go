package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration for the
// backupmerge CLI and HTTP server. It backs the edge (cmd/, internal/api);
// the merge engine itself (internal/merge) takes a plain Config struct of
// its own and has no dependency on viper.
type Config struct {
	Profile  string         `mapstructure:"profile"`
	Merge    MergeConfig    `mapstructure:"merge"`
	RestAPI  RestAPIConfig  `mapstructure:"rest_api"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// MergeConfig holds default behavior for the merge engine when driven
// from the CLI or HTTP surface.
type MergeConfig struct {
	OutputDir       string `mapstructure:"output_dir"`
	SizeLimitBytes  int64  `mapstructure:"size_limit_bytes"`
	IncludeNotes       bool `mapstructure:"include_notes"`
	IncludeBookmarks   bool `mapstructure:"include_bookmarks"`
	IncludeHighlights  bool `mapstructure:"include_highlights"`
	IncludeTags        bool `mapstructure:"include_tags"`
	IncludeInputFields bool `mapstructure:"include_inputfields"`
	IncludePlaylists   bool `mapstructure:"include_playlists"`
}

// RestAPIConfig holds REST API server configuration. auto_port enables
// automatic port selection when the configured port is already in use.
type RestAPIConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	AutoPort bool   `mapstructure:"auto_port"`
	Port     int    `mapstructure:"port"`
	Host     string `mapstructure:"host"`
	CORS     bool   `mapstructure:"cors"`
	// APIKey, when set, requires every request (except /health) to carry
	// it via Authorization: Bearer or X-API-Key.
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// DefaultConfig returns configuration with sensible default values.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".backupmerge")

	return &Config{
		Profile: "default",
		Merge: MergeConfig{
			OutputDir:          filepath.Join(configDir, "output"),
			SizeLimitBytes:     200 * 1024 * 1024, // 200 MiB, per §5 resource caps
			IncludeNotes:       true,
			IncludeBookmarks:   true,
			IncludeHighlights:  true,
			IncludeTags:        true,
			IncludeInputFields: true,
			IncludePlaylists:   true,
		},
		RestAPI: RestAPIConfig{
			Enabled:  true,
			AutoPort: true,
			Port:     8420,
			Host:     "localhost",
			CORS:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from YAML file with fallback to defaults.
// Searches in multiple locations:
// 1. ./config.yaml (current directory)
// 2. ~/.backupmerge/config.yaml (user home)
// 3. /etc/backupmerge/config.yaml (system-wide)
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from an explicit file path, or falls back
// to the search behavior of Load when path is empty.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".backupmerge"))
		v.AddConfigPath("/etc/backupmerge")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values in Viper.
func setDefaults(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".backupmerge")

	v.SetDefault("profile", "default")
	v.SetDefault("merge.output_dir", filepath.Join(configDir, "output"))
	v.SetDefault("merge.size_limit_bytes", 200*1024*1024)
	v.SetDefault("merge.include_notes", true)
	v.SetDefault("merge.include_bookmarks", true)
	v.SetDefault("merge.include_highlights", true)
	v.SetDefault("merge.include_tags", true)
	v.SetDefault("merge.include_inputfields", true)
	v.SetDefault("merge.include_playlists", true)

	v.SetDefault("rest_api.enabled", true)
	v.SetDefault("rest_api.auto_port", true)
	v.SetDefault("rest_api.port", 8420)
	v.SetDefault("rest_api.host", "localhost")
	v.SetDefault("rest_api.cors", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Merge.SizeLimitBytes <= 0 {
		return fmt.Errorf("merge.size_limit_bytes must be > 0")
	}

	if c.RestAPI.Enabled {
		if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
			return fmt.Errorf("rest_api.port must be between 1 and 65535")
		}
		if c.RestAPI.Host == "" {
			return fmt.Errorf("rest_api.host is required when REST API is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	return nil
}

// EnsureOutputDir creates the configured output directory if it doesn't exist.
func (c *Config) EnsureOutputDir() error {
	if err := os.MkdirAll(c.Merge.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the configuration directory.
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".backupmerge")
}
