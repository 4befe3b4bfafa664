package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Config represents the gpchat configuration. One required field (api_key);
// everything else has a default.
type Config struct {
	// APIKey is the bearer token for the chat-completions API. Required.
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// APIBase is the API base URL, without a trailing slash.
	APIBase string `json:"api_base" mapstructure:"api_base"`

	// ChatHistory is the storage directory for session logs. Supports a
	// leading "~/".
	ChatHistory string `json:"chat_history" mapstructure:"chat_history"`

	// Model is the chat model name.
	Model string `json:"model" mapstructure:"model"`

	// Temperature is passed through to the API on every request.
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// SystemMessage seeds the first turn of every new session.
	SystemMessage string `json:"system_message" mapstructure:"system_message"`

	// Logging configures the zerolog output.
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns a config with default values. ChatHistory defaults
// to a per-user cache directory.
func DefaultConfig() *Config {
	return &Config{
		APIBase:       "https://api.openai.com/v1",
		ChatHistory:   defaultHistoryDir(),
		Model:         "gpt-3.5-turbo",
		Temperature:   1,
		SystemMessage: "You are a helpful assistant.",
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultHistoryDir() string {
	cache, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "gp-cmdline-chatgpt")
	}
	return filepath.Join(cache, "gp-cmdline-chatgpt")
}

// HistoryDir returns the chat-history directory with "~/" expanded.
func (c *Config) HistoryDir() string {
	return ExpandPath(c.ChatHistory)
}

// ExpandPath expands a leading "~/" to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// String returns a JSON representation of the config with the API key
// masked.
func (c *Config) String() string {
	masked := *c
	if masked.APIKey != "" {
		masked.APIKey = "****"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}
