// Package config loads Komatachi's entire configuration surface from
// environment variables — there is no config file.
package config

import (
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

const (
	defaultContainerDataDir = "/data"
	defaultModel            = "claude-sonnet-4-5"
	defaultMaxTokens        = 4096
	defaultContextWindow    = 200000
)

// Config is populated entirely from environment variables. Fields tagged
// `env:""` are parsed by caarlos0/env; anything not present keeps its
// defaultConfig value.
type Config struct {
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	DataDir         string `env:"KOMATACHI_DATA_DIR"`
	HomeDir         string `env:"KOMATACHI_HOME_DIR"`
	Model           string `env:"KOMATACHI_MODEL"`
	MaxTokens       int    `env:"KOMATACHI_MAX_TOKENS"`
	ContextWindow   int    `env:"KOMATACHI_CONTEXT_WINDOW"`
}

// Load parses the environment into a Config, applying defaults for anything
// the caller left unset. It does not validate AnthropicAPIKey's presence —
// that is cmd/komatachi's job at startup, since a missing credential is a
// fatal startup condition, not a config-loading one.
func Load() (*Config, error) {
	cfg := defaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.HomeDir = home
		}
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Model:         defaultModel,
		MaxTokens:     defaultMaxTokens,
		ContextWindow: defaultContextWindow,
	}
}

// defaultDataDir is /data inside a container, otherwise ~/.komatachi/data.
// Container detection probes for /.dockerenv.
func defaultDataDir() string {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return defaultContainerDataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultContainerDataDir
	}
	return filepath.Join(home, ".komatachi", "data")
}
