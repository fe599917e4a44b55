package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
listen:
  port: 3100
  bind: 0.0.0.0
  api_key: letmein

bot:
  url: http://bot.local:8080
  timeout: 3s
  allowed_hosts: [dash.local, localhost]
  max_sessions: 2

oauth:
  client_id: abc123
  redirect_uri: http://dash.local:3100/dashboard

health_check:
  interval: 20s
  failure_threshold: 5
  timeout: 2s

backend:
  listen: 127.0.0.1:8081
  database: /tmp/bot.db
`
	path := writeTemp(t, "config.yaml", yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.Port != 3100 {
		t.Errorf("expected port 3100, got %d", cfg.Listen.Port)
	}
	if cfg.Listen.Addr() != "0.0.0.0:3100" {
		t.Errorf("expected addr 0.0.0.0:3100, got %s", cfg.Listen.Addr())
	}
	if cfg.Bot.URL != "http://bot.local:8080" {
		t.Errorf("expected bot url, got %q", cfg.Bot.URL)
	}
	if cfg.Bot.Timeout != 3*time.Second {
		t.Errorf("expected bot timeout 3s, got %v", cfg.Bot.Timeout)
	}
	if len(cfg.Bot.AllowedHosts) != 2 || cfg.Bot.AllowedHosts[0] != "dash.local" {
		t.Errorf("expected allowed hosts, got %v", cfg.Bot.AllowedHosts)
	}
	if cfg.Bot.MaxSessions != 2 {
		t.Errorf("expected max sessions 2, got %d", cfg.Bot.MaxSessions)
	}
	if cfg.OAuth.ClientID != "abc123" {
		t.Errorf("expected client id abc123, got %q", cfg.OAuth.ClientID)
	}
	if cfg.HealthCheck.FailureThreshold != 5 {
		t.Errorf("expected threshold 5, got %d", cfg.HealthCheck.FailureThreshold)
	}
	if cfg.Backend.Database != "/tmp/bot.db" {
		t.Errorf("expected database /tmp/bot.db, got %q", cfg.Backend.Database)
	}
}

func TestLoadTOML(t *testing.T) {
	content := `
[listen]
port = 3200

[bot]
url = "http://127.0.0.1:8080"
timeout = "4s"

[oauth]
client_id = "tomlclient"
scopes = ["chat:read"]
`
	path := writeTemp(t, "config.toml", content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.Port != 3200 {
		t.Errorf("expected port 3200, got %d", cfg.Listen.Port)
	}
	if cfg.Bot.Timeout != 4*time.Second {
		t.Errorf("expected bot timeout 4s, got %v", cfg.Bot.Timeout)
	}
	if len(cfg.OAuth.Scopes) != 1 || cfg.OAuth.Scopes[0] != "chat:read" {
		t.Errorf("expected scopes [chat:read], got %v", cfg.OAuth.Scopes)
	}
	if cfg.Listen.Bind != "127.0.0.1" {
		t.Errorf("expected default bind, got %q", cfg.Listen.Bind)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_TWITCH_CLIENT_ID", "fromenv")

	yaml := `
oauth:
  client_id: ${TEST_TWITCH_CLIENT_ID}
listen:
  api_key: ${TEST_UNSET_VARIABLE}
`
	path := writeTemp(t, "config.yaml", yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.OAuth.ClientID != "fromenv" {
		t.Errorf("expected client id fromenv, got %s", cfg.OAuth.ClientID)
	}
	// Unset variables are left as written.
	if cfg.Listen.APIKey != "${TEST_UNSET_VARIABLE}" {
		t.Errorf("expected unset variable untouched, got %s", cfg.Listen.APIKey)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "port out of range",
			yaml: `
listen:
  port: 70000
`,
		},
		{
			name: "key and hash",
			yaml: `
listen:
  api_key: a
  api_key_hash: $2a$10$abcdefghijklmnopqrstuv
`,
		},
		{
			name: "hash not bcrypt",
			yaml: `
listen:
  api_key_hash: plaintext
`,
		},
		{
			name: "tls cert without key",
			yaml: `
listen:
  tls_cert: /etc/cert.pem
`,
		},
		{
			name: "bot url without scheme",
			yaml: `
bot:
  url: localhost:8080
`,
		},
		{
			name: "negative max sessions",
			yaml: `
bot:
  max_sessions: -1
`,
		},
		{
			name: "negative threshold",
			yaml: `
health_check:
  failure_threshold: -1
`,
		},
		{
			name: "unknown log format",
			yaml: `
log:
  format: xml
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, "config.yaml", tt.yaml)
			_, err := Load(path)
			if err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	path := writeTemp(t, "config.yaml", "{}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.Port != 3000 {
		t.Errorf("expected default port 3000, got %d", cfg.Listen.Port)
	}
	if cfg.Listen.Bind != "127.0.0.1" {
		t.Errorf("expected default bind 127.0.0.1, got %s", cfg.Listen.Bind)
	}
	if cfg.Bot.URL != "" {
		t.Errorf("expected bot url to stay empty, got %q", cfg.Bot.URL)
	}
	if cfg.Bot.Timeout != 10*time.Second {
		t.Errorf("expected default bot timeout 10s, got %v", cfg.Bot.Timeout)
	}
	if cfg.Bot.MaxSessions != 8 {
		t.Errorf("expected default max sessions 8, got %d", cfg.Bot.MaxSessions)
	}
	if len(cfg.Bot.AllowedHosts) != 0 {
		t.Errorf("expected no allowed hosts by default, got %v", cfg.Bot.AllowedHosts)
	}
	if cfg.OAuth.RedirectURI != "http://localhost:3000" {
		t.Errorf("expected default redirect, got %q", cfg.OAuth.RedirectURI)
	}
	if len(cfg.OAuth.Scopes) != 4 {
		t.Errorf("expected 4 default scopes, got %v", cfg.OAuth.Scopes)
	}
	if cfg.HealthCheck.FailureThreshold != 3 {
		t.Errorf("expected default threshold 3, got %d", cfg.HealthCheck.FailureThreshold)
	}
	if cfg.Backend.Listen != ":8080" {
		t.Errorf("expected default backend listen :8080, got %q", cfg.Backend.Listen)
	}
}

func TestDefaultMatchesEmptyFile(t *testing.T) {
	path := writeTemp(t, "config.yaml", "{}\n")
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	def := Default()
	if def.Listen != loaded.Listen || !reflect.DeepEqual(def.Bot, loaded.Bot) || def.HealthCheck != loaded.HealthCheck {
		t.Errorf("Default() = %+v, want %+v", def, loaded)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{Listen: ListenConfig{APIKey: "secret"}}
	r := cfg.Redacted()
	if r.Listen.APIKey == "secret" {
		t.Error("expected api key to be masked")
	}
	if cfg.Listen.APIKey != "secret" {
		t.Error("Redacted must not modify the receiver")
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "TEST_DOTENV_NEW=fromfile\nTEST_DOTENV_SET=fromfile\n"
	if err := os.WriteFile(envPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_DOTENV_SET", "fromenv")
	t.Setenv("TEST_DOTENV_NEW", "")
	os.Unsetenv("TEST_DOTENV_NEW")

	if err := LoadEnvFiles(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("LoadEnvFiles failed: %v", err)
	}

	if got := os.Getenv("TEST_DOTENV_NEW"); got != "fromfile" {
		t.Errorf("expected TEST_DOTENV_NEW=fromfile, got %q", got)
	}
	if got := os.Getenv("TEST_DOTENV_SET"); got != "fromenv" {
		t.Errorf("existing variables must win, got %q", got)
	}
}

func TestWatcherReloads(t *testing.T) {
	path := writeTemp(t, "config.yaml", "listen:\n  port: 3000\n")

	got := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case got <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("listen:\n  port: 3001\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		if cfg.Listen.Port != 3001 {
			t.Errorf("expected reloaded port 3001, got %d", cfg.Listen.Port)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestWatcherDoubleStop(t *testing.T) {
	path := writeTemp(t, "config.yaml", "{}\n")
	w, err := NewWatcher(path, func(*Config) {})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("first Stop: %v", err)
	}
	w.Stop()
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
