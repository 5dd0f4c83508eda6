package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/types"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 10*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 30*time.Second, cfg.ReceiveTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff.Initial)
	assert.Equal(t, 30*time.Second, cfg.Backoff.Max)
	assert.Equal(t, time.Second, cfg.StatusInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultServers(), cfg.Servers)
}

func TestLoad_DefaultServers(t *testing.T) {
	names := make([]string, 0, 8)
	for _, s := range DefaultServers() {
		names = append(names, s.Name)
		if s.Name == "cpo" {
			assert.Equal(t, 2, s.Protocol)
		} else {
			assert.Equal(t, 1, s.Protocol, s.Name)
		}
	}
	assert.Equal(t, []string{"cao", "cbro", "cjr", "cpo", "cue", "cwz", "cxc", "lld"}, names)
}

func TestLoad_TOMLFile(t *testing.T) {
	path := writeFile(t, "live.toml", `
listen = "127.0.0.1:9000"
probe_timeout = "3s"

[backoff]
initial = "1s"
max = "1m"

[[servers]]
name = "cpo"
endpoint = "wss://crawl.project357.org/socket"
protocol = 2
watch_url = "https://crawl.project357.org/"
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, 3*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, time.Second, cfg.Backoff.Initial)
	assert.Equal(t, time.Minute, cfg.Backoff.Max)
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, types.Server{
		Name:     "cpo",
		Endpoint: "wss://crawl.project357.org/socket",
		Protocol: 2,
		WatchURL: "https://crawl.project357.org/",
	}, cfg.Servers[0])
}

func TestLoad_JSONCFile(t *testing.T) {
	path := writeFile(t, "live.jsonc", `{
	// only one server for local testing
	"listen": ":7000",
	"servers": [
		{"name": "cao", "endpoint": "ws://localhost:8080/socket", "protocol": 1, "watch_url": "http://localhost:8080/"}, // trailing comma
	],
}`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Listen)
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "cao", cfg.Servers[0].Name)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"), nil)
	require.Error(t, err)
}

func TestLoad_EnvAndFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CRAWL_LIVE_LISTEN", ":9999")
	t.Setenv("CRAWL_LIVE_BACKOFF_MAX", "2m")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(KeyLogLevel, "info", "")
	require.NoError(t, flags.Parse([]string{"--log.level=debug"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, 2*time.Minute, cfg.Backoff.Max)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Listen:          ":8080",
			ProbeTimeout:    time.Second,
			ReceiveTimeout:  time.Second,
			Backoff:         Backoff{Initial: time.Second, Max: time.Minute},
			StatusInterval:  time.Second,
			ShutdownTimeout: time.Second,
			Log:             Log{Level: "info", Format: "json"},
			Servers:         DefaultServers(),
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"ok", func(*Config) {}, ""},
		{"duplicate server", func(c *Config) { c.Servers = append(c.Servers, c.Servers[0]) }, `duplicate server "cao"`},
		{"http endpoint", func(c *Config) { c.Servers[0].Endpoint = "http://x/socket" }, "not a ws:// or wss:// URL"},
		{"protocol zero", func(c *Config) { c.Servers[1].Protocol = 0 }, "protocol must be at least 1"},
		{"no servers", func(c *Config) { c.Servers = nil }, "no servers configured"},
		{"negative timeout", func(c *Config) { c.ProbeTimeout = -time.Second }, "probe_timeout must be positive"},
		{"backoff inverted", func(c *Config) { c.Backoff.Max = time.Millisecond }, "backoff.max is below"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestTOML_RoundTrips(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("", nil)
	require.NoError(t, err)

	out, err := cfg.TOML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "probe_timeout = ")
	assert.Contains(t, string(out), "10s")

	path := writeFile(t, "out.toml", string(out))
	again, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(Log{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, log)

	_, err = NewLogger(Log{Level: "loud", Format: "json"})
	require.ErrorIs(t, err, ErrInvalid)
}
