// Package config loads application configuration from defaults, a JSON
// config file, and LOCALAI_* environment variable overrides, in that order
// of increasing precedence.
package config

import "os"

type Config struct {
	Server ServerConfig
	Ollama OllamaConfig
	Chat   ChatConfig
	Health HealthConfig
	Log    LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL string
}

type ChatConfig struct {
	SystemPrompt string
	DefaultModel string
	Temperature  float64
	MaxTokens    int
}

type HealthConfig struct {
	Interval string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		Chat: ChatConfig{
			SystemPrompt: "You are a helpful AI assistant.",
			DefaultModel: "llama3.1:8b",
			Temperature:  0.7,
			MaxTokens:    0,
		},
		Health: HealthConfig{
			Interval: "60s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/my-local-ai/config.json and applies LOCALAI_* environment
// overrides on top. OLLAMA_HOST, if set, replaces the built-in base URL
// default but sits below both the config file and LOCALAI_OLLAMA_BASE_URL.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.Ollama.BaseURL = host
	}

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
