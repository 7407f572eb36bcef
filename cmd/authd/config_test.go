package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", strings.Repeat("k", 32))
}

func TestLoadConfigDefaults(t *testing.T) {
	setSecret(t)

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.SessionBackend != "redis" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.JWTAccessTTL != 15*time.Minute || cfg.JWTRefreshTTL != 168*time.Hour {
		t.Fatalf("unexpected ttls: %v %v", cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	}

	ec, err := cfg.engineConfig()
	if err != nil {
		t.Fatalf("engineConfig: %v", err)
	}
	if ec.JWT.AccessTTL != 15*time.Minute || !ec.Security.EnableLoginThrottle || !ec.Metrics.Enabled {
		t.Fatalf("unexpected engine config: %+v", ec)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	setSecret(t)
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("LOGIN_THROTTLE", "false")
	t.Setenv("SESSION_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/tokenauth")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.JWTAccessTTL != 5*time.Minute || cfg.LoginThrottle {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.usesRedis() {
		t.Fatal("postgres backend without throttle must not need redis")
	}
	if got := cfg.corsOrigins(); len(got) != 2 || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", got)
	}
}

func TestLoadConfigReadsDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "JWT_SECRET=" + strings.Repeat("d", 32) + "\nADDR=:9999\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	// godotenv never overrides set variables; register cleanup for the ones it sets.
	t.Setenv("ADDR", "")
	os.Unsetenv("ADDR")
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.JWTSecret != strings.Repeat("d", 32) {
		t.Fatalf("dotenv not applied: %+v", cfg)
	}
}

func TestLoadConfigMissingDotenvIgnored(t *testing.T) {
	setSecret(t)
	if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing dotenv must be ignored: %v", err)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"SESSION_BACKEND": "memcached"}},
		{"postgres without dsn", map[string]string{"SESSION_BACKEND": "postgres"}},
		{"throttle without redis", map[string]string{"REDIS_ADDR": "", "SESSION_BACKEND": "postgres", "DATABASE_URL": "postgres://x"}},
		{"seed without password", map[string]string{"SEED_EMAIL": "a@x.com"}},
		{"bad seed role", map[string]string{"SEED_ROLE": "superuser"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setSecret(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := loadConfig(""); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEngineConfigRejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if _, err := cfg.engineConfig(); err == nil {
		t.Fatal("expected engine config validation error")
	}
}

func TestReadPEM(t *testing.T) {
	inline := "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----"
	got, err := readPEM(inline)
	if err != nil || string(got) != inline {
		t.Fatalf("inline pem: %q %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte(inline), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err = readPEM(path)
	if err != nil || string(got) != inline {
		t.Fatalf("file pem: %q %v", got, err)
	}

	if got, err := readPEM(""); got != nil || err != nil {
		t.Fatalf("empty: %q %v", got, err)
	}
}
