// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Ivan-Madera/autorizador/internal/service"
	"github.com/Ivan-Madera/autorizador/internal/token"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address of the JSON:API listener.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint; empty disables it.
	GRPCAddr       string `mapstructure:"GRPC_ADDR"`
	GRPCReflection bool   `mapstructure:"GRPC_REFLECTION"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL enables the revocation cache when set.
	RedisURL string `mapstructure:"REDIS_URL"`

	JWTSecret   string `mapstructure:"JWT_SECRET"`
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// AccessTTL is the access token lifetime.
	AccessTTL time.Duration `mapstructure:"ACCESS_TTL"`
	// RefreshTTL is the session (and refresh token) lifetime.
	RefreshTTL time.Duration `mapstructure:"REFRESH_TTL"`
	// FailureFloor is the minimum latency of a failed login.
	FailureFloor time.Duration `mapstructure:"FAILURE_FLOOR"`

	// Login limiter; LOGIN_MAX_FAILS=0 disables it.
	LoginWindow   time.Duration `mapstructure:"LOGIN_WINDOW"`
	LoginMaxFails int           `mapstructure:"LOGIN_MAX_FAILS"`
	LoginBlockFor time.Duration `mapstructure:"LOGIN_BLOCK_FOR"`

	// AppKey, when set, must be sent in the "token" header.
	AppKey string `mapstructure:"APP_KEY"`
	// TrustProxy takes the client address from forwarding headers.
	TrustProxy bool `mapstructure:"TRUST_PROXY"`
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`
}

const minSecretLen = 32

// Load reads envFile (".env" when empty) if present, then builds and
// validates Config from the environment via Viper. Env vars override the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	v := viper.New()

	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing file is fine

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("GRPC_REFLECTION", false)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "auth.macropay.mx")
	v.SetDefault("JWT_AUDIENCE", "macropay.mx")
	v.SetDefault("ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "720h") // 30d
	v.SetDefault("FAILURE_FLOOR", "300ms")
	v.SetDefault("LOGIN_WINDOW", "15m")
	v.SetDefault("LOGIN_MAX_FAILS", 5)
	v.SetDefault("LOGIN_BLOCK_FOR", "15m")
	v.SetDefault("APP_KEY", "")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("APP_ENV", "production")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.HTTPAddr == "":
		return errors.New("config: HTTP_ADDR must be set")
	case c.DatabaseURL == "":
		return errors.New("config: DATABASE_URL must be set")
	case len(c.JWTSecret) < minSecretLen:
		return fmt.Errorf("config: JWT_SECRET must be at least %d bytes", minSecretLen)
	case c.JWTIssuer == "" || c.JWTAudience == "":
		return errors.New("config: JWT_ISSUER and JWT_AUDIENCE must be set")
	case c.AccessTTL <= 0 || c.RefreshTTL <= 0:
		return errors.New("config: ACCESS_TTL and REFRESH_TTL must be positive")
	case c.AccessTTL >= c.RefreshTTL:
		return errors.New("config: ACCESS_TTL must be shorter than REFRESH_TTL")
	case c.FailureFloor < 0:
		return errors.New("config: FAILURE_FLOOR must not be negative")
	case c.LoginMaxFails < 0:
		return errors.New("config: LOGIN_MAX_FAILS must not be negative")
	case c.LoginMaxFails > 0 && (c.LoginWindow <= 0 || c.LoginBlockFor <= 0):
		return errors.New("config: LOGIN_WINDOW and LOGIN_BLOCK_FOR must be positive")
	}
	return nil
}

// Development reports whether APP_ENV selects development mode.
func (c *Config) Development() bool { return c.Env == "development" }

// Token builds the token codec configuration.
func (c *Config) Token() token.Config {
	return token.Config{
		Secret:    []byte(c.JWTSecret),
		Issuer:    c.JWTIssuer,
		Audience:  c.JWTAudience,
		AccessTTL: c.AccessTTL,
	}
}

// Session builds the lifecycle engine configuration.
func (c *Config) Session() service.Config {
	return service.Config{
		SessionTTL:   c.RefreshTTL,
		AccessTTL:    c.AccessTTL,
		FailureFloor: c.FailureFloor,
	}
}
