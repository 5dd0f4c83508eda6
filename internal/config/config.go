// Package config loads service settings from defaults, an optional config
// file, CRAWL_LIVE_* environment variables and command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"
	"go.uber.org/multierr"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/types"
)

const (
	envPrefix  = "CRAWL_LIVE"
	configName = "crawl-live-games"
	configType = "toml"

	KeyListen          = "listen"
	KeyProbeTimeout    = "probe_timeout"
	KeyReceiveTimeout  = "receive_timeout"
	KeyBackoffInitial  = "backoff.initial"
	KeyBackoffMax      = "backoff.max"
	KeyStatusInterval  = "status_interval"
	KeyShutdownTimeout = "shutdown_timeout"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
	KeyServers         = "servers"
)

var ErrInvalid = errors.New("invalid config")

type Backoff struct {
	Initial time.Duration `mapstructure:"initial"`
	Max     time.Duration `mapstructure:"max"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Listen          string         `mapstructure:"listen"`
	ProbeTimeout    time.Duration  `mapstructure:"probe_timeout"`
	ReceiveTimeout  time.Duration  `mapstructure:"receive_timeout"`
	Backoff         Backoff        `mapstructure:"backoff"`
	StatusInterval  time.Duration  `mapstructure:"status_interval"`
	ShutdownTimeout time.Duration  `mapstructure:"shutdown_timeout"`
	Log             Log            `mapstructure:"log"`
	Servers         []types.Server `mapstructure:"servers"`
}

// DefaultServers are the public WebTiles servers polled when no server list
// is configured.
func DefaultServers() []types.Server {
	return []types.Server{
		{Name: "cao", Endpoint: "ws://crawl.akrasiac.org:8080/socket", Protocol: 1, WatchURL: "http://crawl.akrasiac.org:8080/"},
		{Name: "cbro", Endpoint: "ws://crawl.berotato.org:8080/socket", Protocol: 1, WatchURL: "http://crawl.berotato.org:8080/"},
		{Name: "cjr", Endpoint: "wss://crawl.jorgrun.rocks:8081/socket", Protocol: 1, WatchURL: "https://crawl.jorgrun.rocks:8081/"},
		{Name: "cpo", Endpoint: "wss://crawl.project357.org/socket", Protocol: 2, WatchURL: "https://crawl.project357.org/"},
		{Name: "cue", Endpoint: "ws://www.underhound.eu:8080/socket", Protocol: 1, WatchURL: "http://www.underhound.eu:8080/"},
		{Name: "cwz", Endpoint: "ws://webzook.net:8080/socket", Protocol: 1, WatchURL: "http://webzook.net:8080/"},
		{Name: "cxc", Endpoint: "ws://crawl.xtahua.com:8080/socket", Protocol: 1, WatchURL: "http://crawl.xtahua.com:8080/"},
		{Name: "lld", Endpoint: "ws://lazy-life.ddo.jp:8080/socket", Protocol: 1, WatchURL: "http://lazy-life.ddo.jp:8080/"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyListen, ":8080")
	v.SetDefault(KeyProbeTimeout, 10*time.Second)
	v.SetDefault(KeyReceiveTimeout, 30*time.Second)
	v.SetDefault(KeyBackoffInitial, 500*time.Millisecond)
	v.SetDefault(KeyBackoffMax, 30*time.Second)
	v.SetDefault(KeyStatusInterval, time.Second)
	v.SetDefault(KeyShutdownTimeout, 5*time.Second)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")

	servers := make([]map[string]any, 0, 8)
	for _, s := range DefaultServers() {
		servers = append(servers, map[string]any{
			"name":      s.Name,
			"endpoint":  s.Endpoint,
			"protocol":  s.Protocol,
			"watch_url": s.WatchURL,
		})
	}
	v.SetDefault(KeyServers, servers)
}

// Load resolves the effective config. An empty path searches the working
// directory for crawl-live-games.toml and tolerates its absence; an explicit
// path must exist. Flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range []string{KeyListen, KeyLogLevel, KeyLogFormat, KeyProbeTimeout} {
			if f := flags.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", key, err)
				}
			}
		}
	}

	if err := readFile(v, path); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(v *viper.Viper, path string) error {
	if path == "" {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		err := v.ReadInConfig()
		var notFound viper.ConfigFileNotFoundError
		if err != nil && !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
		return nil
	}

	if strings.EqualFold(filepath.Ext(path), ".jsonc") {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		v.SetConfigType("json")
		if err := v.ReadConfig(bytes.NewReader(jsonc.ToJSON(raw))); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var err error
	if c.Listen == "" {
		err = multierr.Append(err, fmt.Errorf("%w: listen is empty", ErrInvalid))
	}
	for key, d := range map[string]time.Duration{
		KeyProbeTimeout:    c.ProbeTimeout,
		KeyReceiveTimeout:  c.ReceiveTimeout,
		KeyBackoffInitial:  c.Backoff.Initial,
		KeyBackoffMax:      c.Backoff.Max,
		KeyStatusInterval:  c.StatusInterval,
		KeyShutdownTimeout: c.ShutdownTimeout,
	} {
		if d <= 0 {
			err = multierr.Append(err, fmt.Errorf("%w: %s must be positive", ErrInvalid, key))
		}
	}
	if c.Backoff.Max < c.Backoff.Initial {
		err = multierr.Append(err, fmt.Errorf("%w: backoff.max is below backoff.initial", ErrInvalid))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("%w: log.format %q is not json or console", ErrInvalid, c.Log.Format))
	}

	if len(c.Servers) == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: no servers configured", ErrInvalid))
	}
	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.Name == "" {
			err = multierr.Append(err, fmt.Errorf("%w: servers[%d] has no name", ErrInvalid, i))
		} else if seen[s.Name] {
			err = multierr.Append(err, fmt.Errorf("%w: duplicate server %q", ErrInvalid, s.Name))
		}
		seen[s.Name] = true

		if u, perr := url.Parse(s.Endpoint); perr != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			err = multierr.Append(err, fmt.Errorf("%w: server %q endpoint %q is not a ws:// or wss:// URL", ErrInvalid, s.Name, s.Endpoint))
		}
		if s.Protocol < 1 {
			err = multierr.Append(err, fmt.Errorf("%w: server %q protocol must be at least 1", ErrInvalid, s.Name))
		}
		if s.WatchURL == "" {
			err = multierr.Append(err, fmt.Errorf("%w: server %q has no watch_url", ErrInvalid, s.Name))
		}
	}
	return err
}

type tomlBackoff struct {
	Initial string `toml:"initial"`
	Max     string `toml:"max"`
}

type tomlLog struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type tomlConfig struct {
	Listen          string         `toml:"listen"`
	ProbeTimeout    string         `toml:"probe_timeout"`
	ReceiveTimeout  string         `toml:"receive_timeout"`
	StatusInterval  string         `toml:"status_interval"`
	ShutdownTimeout string         `toml:"shutdown_timeout"`
	Backoff         tomlBackoff    `toml:"backoff"`
	Log             tomlLog        `toml:"log"`
	Servers         []types.Server `toml:"servers"`
}

// TOML renders c in the config file format, durations as strings so the
// output can be read back by Load.
func (c *Config) TOML() ([]byte, error) {
	out, err := toml.Marshal(tomlConfig{
		Listen:          c.Listen,
		ProbeTimeout:    c.ProbeTimeout.String(),
		ReceiveTimeout:  c.ReceiveTimeout.String(),
		StatusInterval:  c.StatusInterval.String(),
		ShutdownTimeout: c.ShutdownTimeout.String(),
		Backoff:         tomlBackoff{Initial: c.Backoff.Initial.String(), Max: c.Backoff.Max.String()},
		Log:             tomlLog{Level: c.Log.Level, Format: c.Log.Format},
		Servers:         c.Servers,
	})
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
