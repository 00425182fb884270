// Package appconfig manages application configuration and runtime file paths.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RemoteConfig controls how the file server is managed on the remote host.
// The command templates receive the data path / remote port via fmt verbs.
type RemoteConfig struct {
	// ServeCommand starts the file server; %d is replaced by the remote port.
	// The default uses the python http.server module since python3 is near
	// universally present on the hosts this tool targets.
	ServeCommand string `yaml:"serve_command"`
	// KillPattern is matched by pkill -f to terminate stale servers; %d is
	// replaced by the remote port.
	KillPattern string `yaml:"kill_pattern"`
}

// TimeoutConfig bounds the blocking phases of startup and serving.
type TimeoutConfig struct {
	SSHSeconds   int `yaml:"ssh_seconds"`
	ReadySeconds int `yaml:"ready_seconds"`
}

// Config holds application-level configuration.
type Config struct {
	Remote   RemoteConfig  `yaml:"remote"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Remote: RemoteConfig{
			ServeCommand: "python3 -m http.server %d",
			KillPattern:  "python -m http.server %d",
		},
		Timeouts: TimeoutConfig{
			SSHSeconds:   15,
			ReadySeconds: 10,
		},
	}
}

// SSHTimeout returns the SSH dial/handshake bound as a duration.
func (c Config) SSHTimeout() time.Duration {
	return time.Duration(c.Timeouts.SSHSeconds) * time.Second
}

// ReadyTimeout returns the readiness-probe bound as a duration.
func (c Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Timeouts.ReadySeconds) * time.Second
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/data-proxy.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "data-proxy"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "data-proxy"), nil
}

// EventsFilePath returns the full path to events.jsonl.
func EventsFilePath() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "events.jsonl"), nil
}

// HistoryFilePath returns the full path to history.json.
func HistoryFilePath() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "history.json"), nil
}

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults.
func Load() (Config, error) {
	d, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return Config{}, err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return normalize(cfg), nil
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	d, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func normalize(cfg Config) Config {
	def := Default()
	if cfg.Remote.ServeCommand == "" {
		cfg.Remote.ServeCommand = def.Remote.ServeCommand
	}
	if cfg.Remote.KillPattern == "" {
		cfg.Remote.KillPattern = def.Remote.KillPattern
	}
	if cfg.Timeouts.SSHSeconds <= 0 {
		cfg.Timeouts.SSHSeconds = def.Timeouts.SSHSeconds
	}
	if cfg.Timeouts.ReadySeconds <= 0 {
		cfg.Timeouts.ReadySeconds = def.Timeouts.ReadySeconds
	}
	return cfg
}
