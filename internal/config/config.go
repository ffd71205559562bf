package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all medextract configuration.
type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Extract  ExtractConfig  `toml:"extract"`
	Capture  CaptureConfig  `toml:"capture"`
}

// ProviderConfig selects and configures the model backend. Credentials are
// never stored here; APIKeyEnv names the environment variable the caller
// reads the key from.
type ProviderConfig struct {
	Name           string `toml:"name"`
	Model          string `toml:"model"`
	BaseURL        string `toml:"base_url"`
	APIKeyEnv      string `toml:"api_key_env"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type ExtractConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	RetryWaitMS int `toml:"retry_wait_ms"`
}

// CaptureConfig controls the per-run diagnostic bundles.
type CaptureConfig struct {
	Enabled  bool   `toml:"enabled"`
	Dir      string `toml:"dir"`
	Compress bool   `toml:"compress"`
}

// DefaultConfig returns config with sensible defaults. The stub provider is
// the default so a fresh install works with no backend at all.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderConfig{
			Name:           "stub",
			Model:          "gpt-4-turbo-preview",
			APIKeyEnv:      "OPENAI_API_KEY",
			TimeoutSeconds: 60,
		},
		Extract: ExtractConfig{
			MaxAttempts: 3,
			RetryWaitMS: 500,
		},
		Capture: CaptureConfig{
			Enabled:  false,
			Dir:      "~/.local/share/medextract/captures",
			Compress: true,
		},
	}
}

// Load reads config from the standard path, falling back to defaults.
func Load() (Config, error) {
	cfg := DefaultConfig()

	paths := configPaths()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			if _, err := toml.DecodeFile(p, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", p, err)
			}
			break
		}
	}

	// Expand ~ in paths
	cfg.Capture.Dir = expandHome(cfg.Capture.Dir)

	return cfg, nil
}

// APIKey reads the configured credential from the environment. Empty means
// no credential was supplied; the gateway decides whether that is fatal.
func (c Config) APIKey() string {
	if c.Provider.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Provider.APIKeyEnv)
}

func configPaths() []string {
	var paths []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "medextract", "config.toml"))
	}

	home, _ := os.UserHomeDir()
	if home != "" {
		paths = append(paths, filepath.Join(home, ".config", "medextract", "config.toml"))
	}

	return paths
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
