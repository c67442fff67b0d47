package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	defaults := defaultConfig()
	return &Config{
		API: APIConfig{
			BaseURL:    "http://127.0.0.1",
			Timeout:    2 * time.Second,
			UserAgent:  "tailfeed-test/1.0",
			AllowLocal: true,
		},
		Feed: defaults.Feed,
		Session: SessionConfig{
			Path:    "",
			Timeout: 1 * time.Second,
		},
		Mutations: defaults.Mutations,
		Log:       LogConfig{Level: "off"},
		UI:        defaults.UI,
	}
}
