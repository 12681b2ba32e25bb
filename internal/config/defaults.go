package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/mmynk/pledgeledger/internal/calculator"
	"github.com/mmynk/pledgeledger/internal/fx"
	"github.com/mmynk/pledgeledger/internal/money"
)

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	breaker := fx.DefaultBreakerConfig()
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/pledgeledger.db",
		},
		Redis: RedisConfig{
			RateTTL: fx.DefaultCacheTTL,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
		Schedule: ScheduleConfig{
			MaxPastSkew:     calculator.DefaultMaxPastSkew,
			AutoAdjustCents: money.AutoAdjustCents,
		},
		FX: FXConfig{
			BreakerMaxRequests:         breaker.MaxRequests,
			BreakerInterval:            breaker.Interval,
			BreakerTimeout:             breaker.Timeout,
			BreakerConsecutiveFailures: breaker.ConsecutiveFailures,
		},
	}
}

// setDefaults registers every key with viper so environment overrides apply
// even when the config file omits them.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.rate_ttl", d.Redis.RateTTL)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.required", d.Auth.Required)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("schedule.max_past_skew", d.Schedule.MaxPastSkew)
	v.SetDefault("schedule.auto_adjust_cents", d.Schedule.AutoAdjustCents)
	v.SetDefault("fx.breaker_max_requests", d.FX.BreakerMaxRequests)
	v.SetDefault("fx.breaker_interval", d.FX.BreakerInterval)
	v.SetDefault("fx.breaker_timeout", d.FX.BreakerTimeout)
	v.SetDefault("fx.breaker_consecutive_failures", d.FX.BreakerConsecutiveFailures)
}
