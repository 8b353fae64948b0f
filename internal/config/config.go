package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds environment-driven configuration.
type Config struct {
	Toggl struct {
		APIToken       string
		User           string
		Password       string
		BaseURL        string        `validate:"required,url"` // default: https://api.track.toggl.com/api/v9/
		RequestTimeout time.Duration `validate:"gt=0"`
		RateLimitCalls int           `validate:"gt=0"`
		RateLimitEvery time.Duration `validate:"gt=0"`
		CacheSize      int           `validate:"gte=0"` // 0 keeps lookups memoized forever
		CacheTTL       time.Duration `validate:"gte=0"`
	}
	Server struct {
		Host           string `validate:"required"`
		Port           int    `validate:"gt=0,lte=65535"`
		OriginPatterns []string
	}
	Poll struct {
		Interval      time.Duration `validate:"gte=0"` // 0 recomputes back-to-back
		MaxErrorDelay time.Duration `validate:"gt=0"`
	}
	Earnings struct {
		Timezone string `validate:"required"` // e.g., Local (default), UTC, Europe/Berlin
	}
	MySQL struct {
		DSN string // optional; enables the snapshot sink
	}
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Credential returns the user:password pair for the Basic Authorization
// header. An API token takes precedence over a user and password.
func (c Config) Credential() (user, password string) {
	if c.Toggl.APIToken != "" {
		return c.Toggl.APIToken, "api_token"
	}
	return c.Toggl.User, c.Toggl.Password
}

// Location resolves the earnings timezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Earnings.Timezone)
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first if present; real env vars win.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	var err error

	cfg.Toggl.APIToken = os.Getenv("TOGGL_API_TOKEN")
	cfg.Toggl.User = os.Getenv("TOGGL_TRACK_USER")
	cfg.Toggl.Password = os.Getenv("TOGGL_TRACK_PASS")
	if cfg.Toggl.APIToken == "" && (cfg.Toggl.User == "" || cfg.Toggl.Password == "") {
		return cfg, errors.New("TOGGL_API_TOKEN or TOGGL_TRACK_USER and TOGGL_TRACK_PASS are required")
	}
	cfg.Toggl.BaseURL = envString("TOGGL_BASE_URL", "https://api.track.toggl.com/api/v9/")
	if cfg.Toggl.RequestTimeout, err = envDuration("TOGGL_REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.Toggl.RateLimitCalls, err = envInt("TOGGL_RATE_LIMIT_CALLS", 1); err != nil {
		return cfg, err
	}
	if cfg.Toggl.RateLimitEvery, err = envDuration("TOGGL_RATE_LIMIT_PERIOD", time.Second); err != nil {
		return cfg, err
	}
	if cfg.Toggl.CacheSize, err = envInt("TOGGL_CACHE_SIZE", 0); err != nil {
		return cfg, err
	}
	if cfg.Toggl.CacheTTL, err = envDuration("TOGGL_CACHE_TTL", 0); err != nil {
		return cfg, err
	}

	cfg.Server.Host = envString("TOGGL_TRACK_HOST", "127.0.0.1")
	if cfg.Server.Port, err = envInt("TOGGL_TRACK_PORT", 8000); err != nil {
		return cfg, err
	}
	for _, p := range strings.Split(envString("WS_ORIGIN_PATTERNS", "localhost:*,127.0.0.1:*"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.Server.OriginPatterns = append(cfg.Server.OriginPatterns, p)
		}
	}

	if cfg.Poll.Interval, err = envDuration("POLL_INTERVAL", 0); err != nil {
		return cfg, err
	}
	if cfg.Poll.MaxErrorDelay, err = envDuration("POLL_ERROR_BACKOFF_MAX", time.Minute); err != nil {
		return cfg, err
	}

	cfg.Earnings.Timezone = envString("EARNINGS_TZ", "Local")
	if _, err := cfg.Location(); err != nil {
		return cfg, fmt.Errorf("EARNINGS_TZ: %w", err)
	}

	cfg.MySQL.DSN = os.Getenv("MYSQL_DSN")

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 10s", key)
	}
	return d, nil
}
