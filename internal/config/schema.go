// Package config loads pledgeledger settings from defaults, an optional YAML
// file and PLEDGELEDGER_* environment variables, in increasing precedence.
package config

import (
	"time"

	"github.com/mmynk/pledgeledger/internal/fx"
	"github.com/mmynk/pledgeledger/internal/ledger"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Schedule ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`
	FX       FXConfig       `yaml:"fx" mapstructure:"fx"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RedisConfig enables the shared rate cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	Password string        `yaml:"password" mapstructure:"password"`
	DB       int           `yaml:"db" mapstructure:"db"`
	RateTTL  time.Duration `yaml:"rate_ttl" mapstructure:"rate_ttl"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Required  bool          `yaml:"required" mapstructure:"required"`
	TokenTTL  time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// ScheduleConfig tunes custom installment validation.
type ScheduleConfig struct {
	MaxPastSkew     time.Duration `yaml:"max_past_skew" mapstructure:"max_past_skew"`
	AutoAdjustCents int64         `yaml:"auto_adjust_cents" mapstructure:"auto_adjust_cents"`
}

// FXConfig tunes the circuit breaker around rate-store reads.
type FXConfig struct {
	BreakerMaxRequests         uint32        `yaml:"breaker_max_requests" mapstructure:"breaker_max_requests"`
	BreakerInterval            time.Duration `yaml:"breaker_interval" mapstructure:"breaker_interval"`
	BreakerTimeout             time.Duration `yaml:"breaker_timeout" mapstructure:"breaker_timeout"`
	BreakerConsecutiveFailures uint32        `yaml:"breaker_consecutive_failures" mapstructure:"breaker_consecutive_failures"`
}

// Ledger returns the engine settings.
func (c *Config) Ledger() ledger.Config {
	cfg := ledger.DefaultConfig()
	cfg.MaxPastSkew = c.Schedule.MaxPastSkew
	cfg.AutoAdjustCents = c.Schedule.AutoAdjustCents
	return cfg
}

// Breaker returns the rate-store breaker settings.
func (c *Config) Breaker() fx.BreakerConfig {
	return fx.BreakerConfig{
		MaxRequests:         c.FX.BreakerMaxRequests,
		Interval:            c.FX.BreakerInterval,
		Timeout:             c.FX.BreakerTimeout,
		ConsecutiveFailures: c.FX.BreakerConsecutiveFailures,
	}
}
