package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigDir returns the medextract config directory path.
// Uses $XDG_CONFIG_HOME/medextract if set, otherwise ~/.config/medextract.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "medextract")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "medextract")
}

// WriteDefault writes a default config.toml. Returns the config file path.
// Skips if config.toml already exists.
func WriteDefault() (string, error) {
	dir := ConfigDir()
	path := filepath.Join(dir, "config.toml")

	if _, err := os.Stat(path); err == nil {
		return path, nil // already exists
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	content := `[provider]
name = "stub"
model = "gpt-4-turbo-preview"
api_key_env = "OPENAI_API_KEY"
timeout_seconds = 60

[extract]
max_attempts = 3
retry_wait_ms = 500

[capture]
enabled = false
dir = "~/.local/share/medextract/captures"
compress = true
`

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}

	return path, nil
}
