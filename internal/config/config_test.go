package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"TOGGL_API_TOKEN", "TOGGL_TRACK_USER", "TOGGL_TRACK_PASS", "TOGGL_BASE_URL",
		"TOGGL_REQUEST_TIMEOUT", "TOGGL_RATE_LIMIT_CALLS", "TOGGL_RATE_LIMIT_PERIOD",
		"TOGGL_CACHE_SIZE", "TOGGL_CACHE_TTL", "TOGGL_TRACK_HOST", "TOGGL_TRACK_PORT",
		"WS_ORIGIN_PATTERNS", "POLL_INTERVAL", "POLL_ERROR_BACKOFF_MAX", "EARNINGS_TZ", "MYSQL_DSN",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOGGL_API_TOKEN", "tok")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.track.toggl.com/api/v9/", cfg.Toggl.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Toggl.RequestTimeout)
	assert.Equal(t, 1, cfg.Toggl.RateLimitCalls)
	assert.Equal(t, time.Second, cfg.Toggl.RateLimitEvery)
	assert.Equal(t, 0, cfg.Toggl.CacheSize)
	assert.Equal(t, "127.0.0.1:8000", cfg.Addr())
	assert.Equal(t, []string{"localhost:*", "127.0.0.1:*"}, cfg.Server.OriginPatterns)
	assert.Equal(t, time.Duration(0), cfg.Poll.Interval)
	assert.Equal(t, time.Minute, cfg.Poll.MaxErrorDelay)
	assert.Equal(t, "Local", cfg.Earnings.Timezone)
	assert.Empty(t, cfg.MySQL.DSN)

	user, pass := cfg.Credential()
	assert.Equal(t, "tok", user)
	assert.Equal(t, "api_token", pass)
}

func TestLoad_UserPassword(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOGGL_TRACK_USER", "me@example.com")
	t.Setenv("TOGGL_TRACK_PASS", "secret")
	t.Setenv("TOGGL_TRACK_PORT", "9000")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("EARNINGS_TZ", "UTC")

	cfg, err := Load()
	require.NoError(t, err)
	user, pass := cfg.Credential()
	assert.Equal(t, "me@example.com", user)
	assert.Equal(t, "secret", pass)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, 30*time.Second, cfg.Poll.Interval)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing credential", map[string]string{}},
		{"user without password", map[string]string{"TOGGL_TRACK_USER": "me"}},
		{"bad port", map[string]string{"TOGGL_API_TOKEN": "tok", "TOGGL_TRACK_PORT": "http"}},
		{"port out of range", map[string]string{"TOGGL_API_TOKEN": "tok", "TOGGL_TRACK_PORT": "70000"}},
		{"bad duration", map[string]string{"TOGGL_API_TOKEN": "tok", "POLL_INTERVAL": "soon"}},
		{"negative interval", map[string]string{"TOGGL_API_TOKEN": "tok", "POLL_INTERVAL": "-1s"}},
		{"bad timezone", map[string]string{"TOGGL_API_TOKEN": "tok", "EARNINGS_TZ": "Mars/Olympus"}},
		{"bad base url", map[string]string{"TOGGL_API_TOKEN": "tok", "TOGGL_BASE_URL": "not a url"}},
		{"zero rate limit", map[string]string{"TOGGL_API_TOKEN": "tok", "TOGGL_RATE_LIMIT_CALLS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
