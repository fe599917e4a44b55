package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the dashboard and the bot API it serves.
type Config struct {
	Listen      ListenConfig      `yaml:"listen" toml:"listen"`
	Bot         BotConfig         `yaml:"bot" toml:"bot"`
	OAuth       OAuthConfig       `yaml:"oauth" toml:"oauth"`
	HealthCheck HealthCheckConfig `yaml:"health_check" toml:"health_check"`
	Backend     BackendConfig     `yaml:"backend" toml:"backend"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// ListenConfig defines where the dashboard listens and how /api is protected.
type ListenConfig struct {
	Port       int    `yaml:"port" toml:"port"`
	Bind       string `yaml:"bind" toml:"bind"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	APIKeyHash string `yaml:"api_key_hash" toml:"api_key_hash"`
	TLSCert    string `yaml:"tls_cert" toml:"tls_cert"`
	TLSKey     string `yaml:"tls_key" toml:"tls_key"`
}

// BotConfig locates the bot API. An empty URL means the request's own
// hostname on port 8080, limited to AllowedHosts when that is set. At most
// MaxSessions derived bot URLs are kept; the least recently used is dropped.
type BotConfig struct {
	URL          string        `yaml:"url" toml:"url"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout"`
	AllowedHosts []string      `yaml:"allowed_hosts" toml:"allowed_hosts"`
	MaxSessions  int           `yaml:"max_sessions" toml:"max_sessions"`
}

// OAuthConfig identifies the Twitch application used for login.
type OAuthConfig struct {
	ClientID    string   `yaml:"client_id" toml:"client_id"`
	RedirectURI string   `yaml:"redirect_uri" toml:"redirect_uri"`
	Scopes      []string `yaml:"scopes" toml:"scopes"`
}

// HealthCheckConfig controls the bot API health check.
type HealthCheckConfig struct {
	Interval         time.Duration `yaml:"interval" toml:"interval"`
	FailureThreshold int           `yaml:"failure_threshold" toml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout" toml:"timeout"`
}

// BackendConfig configures the bundled bot API server.
type BackendConfig struct {
	Listen   string `yaml:"listen" toml:"listen"`
	Database string `yaml:"database" toml:"database"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// TLSEnabled returns true if both TLS cert and key paths are configured.
func (lc ListenConfig) TLSEnabled() bool {
	return lc.TLSCert != "" && lc.TLSKey != ""
}

// Addr returns bind:port.
func (lc ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", lc.Bind, lc.Port)
}

// Redacted returns a copy with the API key material masked.
func (c Config) Redacted() Config {
	out := c
	if out.Listen.APIKey != "" {
		out.Listen.APIKey = "***REDACTED***"
	}
	if out.Listen.APIKeyHash != "" {
		out.Listen.APIKeyHash = "***REDACTED***"
	}
	return out
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// LoadEnvFiles loads KEY=value files into the environment without overriding
// variables already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML or, by .toml extension, TOML config file with env var
// substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = 3000
	}
	if cfg.Listen.Bind == "" {
		cfg.Listen.Bind = "127.0.0.1"
	}
	if cfg.Bot.Timeout == 0 {
		cfg.Bot.Timeout = 10 * time.Second
	}
	if cfg.Bot.MaxSessions == 0 {
		cfg.Bot.MaxSessions = 8
	}
	if cfg.OAuth.RedirectURI == "" {
		cfg.OAuth.RedirectURI = "http://localhost:3000"
	}
	if len(cfg.OAuth.Scopes) == 0 {
		cfg.OAuth.Scopes = []string{"chat:read", "chat:edit", "user:edit", "moderation:read"}
	}
	if cfg.HealthCheck.Interval == 0 {
		cfg.HealthCheck.Interval = 15 * time.Second
	}
	if cfg.HealthCheck.FailureThreshold == 0 {
		cfg.HealthCheck.FailureThreshold = 3
	}
	if cfg.HealthCheck.Timeout == 0 {
		cfg.HealthCheck.Timeout = 5 * time.Second
	}
	if cfg.Backend.Listen == "" {
		cfg.Backend.Listen = ":8080"
	}
	if cfg.Backend.Database == "" {
		cfg.Backend.Database = "pleasantbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func validate(cfg *Config) error {
	if cfg.Listen.Port < 0 || cfg.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", cfg.Listen.Port)
	}
	if cfg.Listen.APIKey != "" && cfg.Listen.APIKeyHash != "" {
		return errors.New("listen: set api_key or api_key_hash, not both")
	}
	if cfg.Listen.APIKeyHash != "" && !strings.HasPrefix(cfg.Listen.APIKeyHash, "$2") {
		return errors.New("listen.api_key_hash must be a bcrypt hash")
	}
	if (cfg.Listen.TLSCert == "") != (cfg.Listen.TLSKey == "") {
		return errors.New("listen: tls_cert and tls_key must be set together")
	}
	if cfg.Bot.URL != "" {
		u, err := url.Parse(cfg.Bot.URL)
		if err != nil {
			return fmt.Errorf("bot.url: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("bot.url %q must be an http(s) URL with a host", cfg.Bot.URL)
		}
	}
	if cfg.Bot.Timeout < 0 {
		return errors.New("bot.timeout must not be negative")
	}
	if cfg.Bot.MaxSessions < 0 {
		return errors.New("bot.max_sessions must not be negative")
	}
	if cfg.HealthCheck.FailureThreshold < 0 {
		return errors.New("health_check.failure_threshold must not be negative")
	}
	if cfg.HealthCheck.Interval < 0 || cfg.HealthCheck.Timeout < 0 {
		return errors.New("health_check durations must not be negative")
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", cfg.Log.Format)
	}
	return nil
}

// Watcher watches a config file for changes and calls the callback with the new config.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	// Editors often write a file in several steps; reload once they settle.
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher. Safe to call more than once.
func (cw *Watcher) Stop() error {
	var err error
	cw.stopOnce.Do(func() {
		close(cw.stopCh)
		err = cw.watcher.Close()
	})
	return err
}
