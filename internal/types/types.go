package types

import (
	"context"
	"errors"
)

// ErrFeedClosed is returned by a Feed once the upstream connection is gone.
var ErrFeedClosed = errors.New("feed closed")

// Message is one decoded feed message. Its schema belongs to the upstream
// server; only a handful of top-level keys are interpreted here.
type Message map[string]any

// Type returns the "msg" discriminator, or "" when it is absent.
func (m Message) Type() string {
	s, _ := m["msg"].(string)
	return s
}

// String returns the value at key if it is a string.
func (m Message) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// Entry is an enriched lobby entry as served by the API.
type Entry map[string]any

func (e Entry) Username() string {
	s, _ := e["username"].(string)
	return s
}

func (e Entry) Server() string {
	s, _ := e["server"].(string)
	return s
}

// Server describes one upstream game server. Immutable after startup.
type Server struct {
	Name     string `mapstructure:"name" toml:"name" json:"name"`
	Endpoint string `mapstructure:"endpoint" toml:"endpoint" json:"endpoint"`
	Protocol int    `mapstructure:"protocol" toml:"protocol" json:"protocol"`
	WatchURL string `mapstructure:"watch_url" toml:"watch_url" json:"watch_url"`
}

// Feed is a message-oriented connection to one upstream server.
//
// Receive returns (nil, nil) when nothing arrived within the feed's receive
// window; callers then consult Closed to tell a quiet feed from a dead one.
// Once the connection is gone Receive returns an error wrapping ErrFeedClosed.
type Feed interface {
	Send(ctx context.Context, msg Message) error
	Receive(ctx context.Context) ([]Message, error)
	Closed() bool
	Close() error
}

// Dialer opens feeds.
type Dialer interface {
	Dial(ctx context.Context, srv Server) (Feed, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, srv Server) (Feed, error)

func (f DialerFunc) Dial(ctx context.Context, srv Server) (Feed, error) { return f(ctx, srv) }
