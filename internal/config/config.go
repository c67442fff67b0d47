package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	API       APIConfig      `mapstructure:"api"`
	Feed      FeedConfig     `mapstructure:"feed"`
	Session   SessionConfig  `mapstructure:"session"`
	Mutations MutationConfig `mapstructure:"mutations"`
	Log       LogConfig      `mapstructure:"log"`
	UI        UIConfig       `mapstructure:"ui"`
}

type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	// AllowLocal permits localhost and private addresses as the API host.
	AllowLocal bool `mapstructure:"allow_local"`
}

type FeedConfig struct {
	PageSize          int            `mapstructure:"page_size"`
	DiscoverVideoOnly bool           `mapstructure:"discover_video_only"`
	Endpoints         EndpointConfig `mapstructure:"endpoints"`
}

type EndpointConfig struct {
	Tailored   string `mapstructure:"tailored"`
	Discover   string `mapstructure:"discover"`
	Search     string `mapstructure:"search"`
	ToggleLike string `mapstructure:"toggle_like"`
	AddComment string `mapstructure:"add_comment"`
}

type SessionConfig struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MutationConfig struct {
	// Rollback reverts an optimistic like toggle when the server call fails.
	Rollback bool `mapstructure:"rollback"`
	// Serialize sends mutation requests for the same post one at a time.
	Serialize bool `mapstructure:"serialize"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

type UIConfig struct {
	Colors UIColors `mapstructure:"colors"`
}

type UIColors struct {
	Primary   string `mapstructure:"primary"`
	Secondary string `mapstructure:"secondary"`
	Accent    string `mapstructure:"accent"`
	Text      string `mapstructure:"text"`
	Muted     string `mapstructure:"muted"`
	Error     string `mapstructure:"error"`
	Success   string `mapstructure:"success"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		API: APIConfig{
			BaseURL:   "https://api.tailfeed.app/functions/v1",
			Timeout:   15 * time.Second,
			UserAgent: "tailfeed/1.0 (https://github.com/pders01/tailfeed)",
		},
		Feed: FeedConfig{
			PageSize:          10,
			DiscoverVideoOnly: true,
			Endpoints: EndpointConfig{
				Tailored:   "/fetch-tailored-feed",
				Discover:   "/discover-feed",
				Search:     "/search-feed",
				ToggleLike: "/toggle-like",
				AddComment: "/add-comment",
			},
		},
		Session: SessionConfig{
			Path:    filepath.Join(homeDir, ".tailfeed.db"),
			Timeout: 1 * time.Second,
		},
		Mutations: MutationConfig{
			Rollback:  false,
			Serialize: true,
		},
		Log: LogConfig{
			Level: "off",
			Path:  "",
		},
		UI: UIConfig{
			Colors: UIColors{
				Primary:   "#FF6B6B",
				Secondary: "#4ECDC4",
				Accent:    "#95E1D3",
				Text:      "#EAEAEA",
				Muted:     "#94A3B8",
				Error:     "#F87171",
				Success:   "#4ADE80",
			},
		},
	}
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "tailfeed")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TAILFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults registers every leaf key so a file that sets only part of a
// section keeps the defaults for the rest of it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("api.user_agent", cfg.API.UserAgent)
	v.SetDefault("api.allow_local", cfg.API.AllowLocal)

	v.SetDefault("feed.page_size", cfg.Feed.PageSize)
	v.SetDefault("feed.discover_video_only", cfg.Feed.DiscoverVideoOnly)
	v.SetDefault("feed.endpoints.tailored", cfg.Feed.Endpoints.Tailored)
	v.SetDefault("feed.endpoints.discover", cfg.Feed.Endpoints.Discover)
	v.SetDefault("feed.endpoints.search", cfg.Feed.Endpoints.Search)
	v.SetDefault("feed.endpoints.toggle_like", cfg.Feed.Endpoints.ToggleLike)
	v.SetDefault("feed.endpoints.add_comment", cfg.Feed.Endpoints.AddComment)

	v.SetDefault("session.path", cfg.Session.Path)
	v.SetDefault("session.timeout", cfg.Session.Timeout)

	v.SetDefault("mutations.rollback", cfg.Mutations.Rollback)
	v.SetDefault("mutations.serialize", cfg.Mutations.Serialize)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.path", cfg.Log.Path)

	v.SetDefault("ui.colors.primary", cfg.UI.Colors.Primary)
	v.SetDefault("ui.colors.secondary", cfg.UI.Colors.Secondary)
	v.SetDefault("ui.colors.accent", cfg.UI.Colors.Accent)
	v.SetDefault("ui.colors.text", cfg.UI.Colors.Text)
	v.SetDefault("ui.colors.muted", cfg.UI.Colors.Muted)
	v.SetDefault("ui.colors.error", cfg.UI.Colors.Error)
	v.SetDefault("ui.colors.success", cfg.UI.Colors.Success)
}

// Validate rejects values the feed core cannot work with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must be set")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %v", c.API.Timeout)
	}
	if c.Feed.PageSize <= 0 {
		return fmt.Errorf("feed.page_size must be positive, got %d", c.Feed.PageSize)
	}
	return nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Session.Path = expandPath(cfg.Session.Path)
	cfg.Log.Path = expandPath(cfg.Log.Path)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Plain maps keep the snake_case keys and write durations as strings.
	v.Set("api", map[string]interface{}{
		"base_url":    config.API.BaseURL,
		"timeout":     config.API.Timeout.String(),
		"user_agent":  config.API.UserAgent,
		"allow_local": config.API.AllowLocal,
	})
	v.Set("feed", map[string]interface{}{
		"page_size":           config.Feed.PageSize,
		"discover_video_only": config.Feed.DiscoverVideoOnly,
		"endpoints": map[string]interface{}{
			"tailored":    config.Feed.Endpoints.Tailored,
			"discover":    config.Feed.Endpoints.Discover,
			"search":      config.Feed.Endpoints.Search,
			"toggle_like": config.Feed.Endpoints.ToggleLike,
			"add_comment": config.Feed.Endpoints.AddComment,
		},
	})
	v.Set("session", map[string]interface{}{
		"path":    config.Session.Path,
		"timeout": config.Session.Timeout.String(),
	})
	v.Set("mutations", map[string]interface{}{
		"rollback":  config.Mutations.Rollback,
		"serialize": config.Mutations.Serialize,
	})
	v.Set("log", map[string]interface{}{
		"level": config.Log.Level,
		"path":  config.Log.Path,
	})
	v.Set("ui", map[string]interface{}{
		"colors": map[string]interface{}{
			"primary":   config.UI.Colors.Primary,
			"secondary": config.UI.Colors.Secondary,
			"accent":    config.UI.Colors.Accent,
			"text":      config.UI.Colors.Text,
			"muted":     config.UI.Colors.Muted,
			"error":     config.UI.Colors.Error,
			"success":   config.UI.Colors.Success,
		},
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}

// DefaultPath is where Load looks for a config file when none is given.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tailfeed", "config.toml")
}
