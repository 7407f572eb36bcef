package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/permission"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// serverConfig is the process configuration read from the environment.
type serverConfig struct {
	Addr     string `mapstructure:"ADDR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// SessionBackend is "redis" or "postgres".
	SessionBackend string `mapstructure:"SESSION_BACKEND"`
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	RedisPrefix    string `mapstructure:"REDIS_PREFIX"`
	// DatabaseURL enables the Postgres user store and, with
	// SESSION_BACKEND=postgres, the Postgres session store.
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	SessionPurgeInterval time.Duration `mapstructure:"SESSION_PURGE_INTERVAL"`

	JWTSigningMethod string `mapstructure:"JWT_SIGNING_METHOD"`
	JWTSecret        string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey and JWTPublicKey hold PEM text or a path to a PEM file.
	JWTPrivateKey string        `mapstructure:"JWT_PRIVATE_KEY"`
	JWTPublicKey  string        `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer     string        `mapstructure:"JWT_ISSUER"`
	JWTAudience   string        `mapstructure:"JWT_AUDIENCE"`
	JWTAccessTTL  time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL time.Duration `mapstructure:"JWT_REFRESH_TTL"`
	JWTLeeway     time.Duration `mapstructure:"JWT_LEEWAY"`

	PasswordAlgorithm string `mapstructure:"PASSWORD_ALGORITHM"`
	BcryptCost        int    `mapstructure:"BCRYPT_COST"`

	LoginThrottle    bool          `mapstructure:"LOGIN_THROTTLE"`
	IPThrottle       bool          `mapstructure:"IP_THROTTLE"`
	MaxLoginAttempts int           `mapstructure:"MAX_LOGIN_ATTEMPTS"`
	LoginCooldown    time.Duration `mapstructure:"LOGIN_COOLDOWN"`

	AuditEnabled   bool `mapstructure:"AUDIT_ENABLED"`
	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`

	// CORSOrigins is a comma-separated allow list; empty disables CORS.
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	// Bootstrap account created at startup when SEED_EMAIL is set.
	SeedEmail    string `mapstructure:"SEED_EMAIL"`
	SeedUsername string `mapstructure:"SEED_USERNAME"`
	SeedPassword string `mapstructure:"SEED_PASSWORD"`
	SeedRole     string `mapstructure:"SEED_ROLE"`
}

var configDefaults = map[string]any{
	"ADDR":                   ":8080",
	"LOG_LEVEL":              "info",
	"SESSION_BACKEND":        "redis",
	"REDIS_ADDR":             "localhost:6379",
	"REDIS_PASSWORD":         "",
	"REDIS_DB":               0,
	"REDIS_PREFIX":           "ta",
	"DATABASE_URL":           "",
	"SESSION_PURGE_INTERVAL": "10m",
	"JWT_SIGNING_METHOD":     "hs256",
	"JWT_SECRET":             "",
	"JWT_PRIVATE_KEY":        "",
	"JWT_PUBLIC_KEY":         "",
	"JWT_ISSUER":             "",
	"JWT_AUDIENCE":           "",
	"JWT_ACCESS_TTL":         "15m",
	"JWT_REFRESH_TTL":        "168h",
	"JWT_LEEWAY":             "0s",
	"PASSWORD_ALGORITHM":     "argon2id",
	"BCRYPT_COST":            12,
	"LOGIN_THROTTLE":         true,
	"IP_THROTTLE":            false,
	"MAX_LOGIN_ATTEMPTS":     5,
	"LOGIN_COOLDOWN":         "15m",
	"AUDIT_ENABLED":          true,
	"METRICS_ENABLED":        true,
	"CORS_ORIGINS":           "",
	"SEED_EMAIL":             "",
	"SEED_USERNAME":          "",
	"SEED_PASSWORD":          "",
	"SEED_ROLE":              "user",
}

// loadConfig reads envFile (if present) and then the environment. Real
// environment variables win over the file.
func loadConfig(envFile string) (serverConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return serverConfig{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	for k, val := range configDefaults {
		v.SetDefault(k, val)
	}

	var cfg serverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}

func (c serverConfig) validate() error {
	if c.Addr == "" {
		return errors.New("config: ADDR must be set")
	}
	switch c.SessionBackend {
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set for the redis session backend")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set for the postgres session backend")
		}
	default:
		return fmt.Errorf("config: SESSION_BACKEND must be redis or postgres, got %q", c.SessionBackend)
	}
	if c.LoginThrottle && c.RedisAddr == "" {
		return errors.New("config: LOGIN_THROTTLE requires REDIS_ADDR")
	}
	if c.SeedEmail != "" && c.SeedPassword == "" {
		return errors.New("config: SEED_PASSWORD must be set with SEED_EMAIL")
	}
	if _, err := permission.ParseRole(c.SeedRole); err != nil {
		return fmt.Errorf("config: SEED_ROLE: %w", err)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// usesRedis reports whether any component needs a Redis client.
func (c serverConfig) usesRedis() bool {
	return c.SessionBackend == "redis" || c.LoginThrottle
}

// engineConfig maps the process configuration onto the engine's.
func (c serverConfig) engineConfig() (tokenauth.Config, error) {
	cfg := tokenauth.DefaultConfig()

	cfg.JWT.SigningMethod = strings.ToLower(c.JWTSigningMethod)
	cfg.JWT.Secret = []byte(c.JWTSecret)
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience
	cfg.JWT.AccessTTL = c.JWTAccessTTL
	cfg.JWT.RefreshTTL = c.JWTRefreshTTL
	cfg.JWT.Leeway = c.JWTLeeway

	var err error
	if cfg.JWT.PrivateKey, err = readPEM(c.JWTPrivateKey); err != nil {
		return tokenauth.Config{}, fmt.Errorf("config: JWT_PRIVATE_KEY: %w", err)
	}
	if cfg.JWT.PublicKey, err = readPEM(c.JWTPublicKey); err != nil {
		return tokenauth.Config{}, fmt.Errorf("config: JWT_PUBLIC_KEY: %w", err)
	}

	cfg.Session.RedisPrefix = c.RedisPrefix
	cfg.Password.Algorithm = c.PasswordAlgorithm
	cfg.Password.BcryptCost = c.BcryptCost

	cfg.Security.EnableLoginThrottle = c.LoginThrottle
	cfg.Security.EnableIPThrottle = c.IPThrottle
	cfg.Security.MaxLoginAttempts = c.MaxLoginAttempts
	cfg.Security.LoginCooldown = c.LoginCooldown

	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return tokenauth.Config{}, err
	}
	return cfg, nil
}

func (c serverConfig) corsOrigins() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// readPEM returns v unchanged when it is inline PEM, otherwise reads it as
// a file path.
func readPEM(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if strings.HasPrefix(v, "-----BEGIN") {
		return []byte(v), nil
	}
	return os.ReadFile(v)
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return l, nil
}
