// Package config loads the stashd process configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the process configuration. Every field maps to one environment
// variable of the same name as its mapstructure tag.
type Config struct {
	RedisURL            string        `mapstructure:"REDIS_URL"`
	RedisConnectTimeout time.Duration `mapstructure:"REDIS_CONNECT_TIMEOUT"`
	RedisWatchInterval  time.Duration `mapstructure:"REDIS_WATCH_INTERVAL"`

	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	RateLimit       int           `mapstructure:"RATE_LIMIT"`
	RateLimitWindow time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
	// GlobalRPS enables the process-wide token bucket when positive.
	GlobalRPS      float64 `mapstructure:"GLOBAL_RPS"`
	GlobalBurst    int     `mapstructure:"GLOBAL_BURST"`
	TrustedProxies string  `mapstructure:"TRUSTED_PROXIES"`

	SweepInterval     time.Duration `mapstructure:"SWEEP_INTERVAL"`
	Codec             string        `mapstructure:"CODEC"`
	EnableTracing     bool          `mapstructure:"ENABLE_TRACING"`
	ViewNearCacheSize int64         `mapstructure:"VIEW_NEAR_CACHE_SIZE"`
}

var defaults = map[string]any{
	"REDIS_URL":             "",
	"REDIS_CONNECT_TIMEOUT": 2 * time.Second,
	"REDIS_WATCH_INTERVAL":  5 * time.Second,
	"HTTP_ADDR":             ":8080",
	"GRPC_ADDR":             ":9090",
	"LOG_LEVEL":             "info",
	"RATE_LIMIT":            100,
	"RATE_LIMIT_WINDOW":     time.Minute,
	"GLOBAL_RPS":            0.0,
	"GLOBAL_BURST":          0,
	"TRUSTED_PROXIES":       "",
	"SWEEP_INTERVAL":        time.Second,
	"CODEC":                 "json",
	"ENABLE_TRACING":        false,
	"VIEW_NEAR_CACHE_SIZE":  0,
}

// Load reads the configuration. Each existing file in envFiles (".env" when
// none are given) is loaded first; variables already set in the environment
// win over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unable to decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.RateLimit <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT must be positive"))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	if c.GlobalRPS > 0 && c.GlobalBurst <= 0 {
		errs = append(errs, errors.New("GLOBAL_BURST must be positive when GLOBAL_RPS is set"))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Proxies splits TRUSTED_PROXIES on commas.
func (c *Config) Proxies() []string {
	if strings.TrimSpace(c.TrustedProxies) == "" {
		return nil
	}
	return strings.Split(c.TrustedProxies, ",")
}

// NewLogger builds a production zap logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

// String renders the configuration with the Redis password masked.
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "redis=%s http=%s grpc=%s", maskURL(c.RedisURL), c.HTTPAddr, c.GRPCAddr)
	fmt.Fprintf(&sb, " rate_limit=%d/%s codec=%s tracing=%v", c.RateLimit, c.RateLimitWindow, c.Codec, c.EnableTracing)
	return sb.String()
}

func maskURL(u string) string {
	if u == "" {
		return "(none)"
	}
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return u
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return u
	}
	if user, _, hasPass := strings.Cut(creds, ":"); hasPass {
		return scheme + "://" + user + ":********@" + host
	}
	return u
}
