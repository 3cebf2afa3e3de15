// Package config loads the plinth application settings from YAML.
package config

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taigrr/plinth/internal/logger"
	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/fetch"
	"github.com/taigrr/plinth/pkg/viewer"
)

// FileName is the config file looked up in the working directory and the
// user config dir.
const FileName = "plinth.yaml"

// DefaultMountID names the viewer when the file does not.
const DefaultMountID = "plinth"

// Config is the full application configuration.
type Config struct {
	Viewer   viewer.Config  `yaml:"viewer"`
	Logging  logger.Config  `yaml:"logging"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Terminal TerminalConfig `yaml:"terminal"`
	Server   ServerConfig   `yaml:"server"`
}

// FetchConfig controls asset downloads.
type FetchConfig struct {
	CacheDir      string        `yaml:"cacheDir"`
	CacheTTL      time.Duration `yaml:"cacheTTL"`
	RetryAttempts int           `yaml:"retryAttempts"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	Timeout       time.Duration `yaml:"timeout"`
}

// TerminalConfig controls the interactive terminal view.
type TerminalConfig struct {
	FPS int `yaml:"fps"`
	// Columns caps the picture width; 0 uses the whole terminal.
	Columns int `yaml:"columns"`
}

// ServerConfig controls the HTTP bridge.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Viewer:  viewer.DefaultConfig(DefaultMountID),
		Logging: logger.DefaultConfig(),
		Fetch: FetchConfig{
			CacheDir:      filepath.Join(os.TempDir(), "plinth-cache"),
			CacheTTL:      24 * time.Hour,
			RetryAttempts: 3,
			RetryDelay:    500 * time.Millisecond,
			Timeout:       30 * time.Second,
		},
		Terminal: TerminalConfig{FPS: 30},
		Server:   ServerConfig{Addr: "127.0.0.1:8080"},
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Viewer.Validate(); err != nil {
		return err
	}
	if c.Fetch.RetryAttempts < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid fetch.retryAttempts: %d", c.Fetch.RetryAttempts)
	}
	if c.Fetch.RetryDelay < 0 || c.Fetch.CacheTTL < 0 || c.Fetch.Timeout < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "fetch durations must not be negative")
	}
	if c.Terminal.FPS < 1 || c.Terminal.FPS > 240 {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid terminal.fps: %d", c.Terminal.FPS)
	}
	if c.Terminal.Columns < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid terminal.columns: %d", c.Terminal.Columns)
	}
	return nil
}

// FetchOptions maps the fetch section onto client options. An empty cache
// dir disables caching.
func (c Config) FetchOptions() ([]fetch.Option, error) {
	opts := []fetch.Option{fetch.WithRetry(c.Fetch.RetryAttempts, c.Fetch.RetryDelay)}
	if c.Fetch.Timeout > 0 {
		opts = append(opts, fetch.WithHTTPClient(newHTTPClient(c.Fetch.Timeout)))
	}
	if c.Fetch.CacheDir != "" {
		cache, err := fetch.NewCache(c.Fetch.CacheDir, c.Fetch.CacheTTL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fetch.WithCache(cache))
	}
	return opts, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Load reads configuration, layering the file over the defaults. An
// explicit path must exist; otherwise the working directory and then the
// user config dir are searched, and no file at all yields the defaults.
func Load(path string) (Config, string, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path == "" {
		return cfg, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, path, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, path, err
	}
	return cfg, path, nil
}

func findConfigFile() string {
	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}
	if dir := ConfigDir(); dir != "" {
		p := filepath.Join(dir, FileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ConfigDir returns the per-user plinth config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "plinth")
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", "plinth")
		}
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "plinth")
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".config", "plinth")
		}
	}
	return ""
}

// Save writes the configuration to the user config dir.
func (c Config) Save() error {
	dir := ConfigDir()
	if dir == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "no user config directory")
	}
	return c.SaveTo(filepath.Join(dir, FileName))
}

// SaveTo writes the configuration to path, creating parent directories.
func (c Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
