package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/types"
)

var (
	ErrServerNotFound = errors.New("unknown server")
	ErrGameNotFound   = errors.New("game not found")
	ErrProbeTimeout   = errors.New("timed out waiting for player")
)

const (
	msgWatch   = "watch"
	msgPlayer  = "player"
	msgGoLobby = "go_lobby"
	msgPing    = "ping"
	msgPong    = "pong"
)

// Prober fetches one player's live details over a throwaway feed.
type Prober struct {
	servers map[string]types.Server
	dialer  types.Dialer
	timeout time.Duration
	log     *zap.Logger
}

func NewProber(servers []types.Server, dialer types.Dialer, timeout time.Duration, log *zap.Logger) *Prober {
	byName := make(map[string]types.Server, len(servers))
	for _, s := range servers {
		byName[s.Name] = s
	}
	return &Prober{servers: byName, dialer: dialer, timeout: timeout, log: log}
}

// Server resolves a configured server by name.
func (p *Prober) Server(name string) (types.Server, bool) {
	s, ok := p.servers[name]
	return s, ok
}

// Probe watches player on server until the "player" message arrives. The
// connection is never retried; the whole call is bounded by the probe
// timeout.
func (p *Prober) Probe(ctx context.Context, server, player string) (types.Message, error) {
	srv, ok := p.servers[server]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrServerNotFound, server)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	detail, err := p.watch(ctx, srv, player)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %s on %s after %s", ErrProbeTimeout, player, server, p.timeout)
	}
	if err != nil {
		p.log.Info("probe failed", zap.String("server", server), zap.String("player", player), zap.Error(err))
	}
	return detail, err
}

func (p *Prober) watch(ctx context.Context, srv types.Server, player string) (types.Message, error) {
	feed, err := p.dialer.Dial(ctx, srv)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", srv.Name, err)
	}
	defer func() {
		if cerr := feed.Close(); cerr != nil {
			p.log.Debug("close probe feed", zap.String("server", srv.Name), zap.Error(cerr))
		}
	}()

	if err := feed.Send(ctx, types.Message{"msg": msgWatch, "username": player}); err != nil {
		return nil, fmt.Errorf("watch %s: %w", player, err)
	}

	for {
		msgs, err := feed.Receive(ctx)
		if err != nil {
			return nil, fmt.Errorf("receive: %w", err)
		}
		if len(msgs) == 0 {
			if feed.Closed() {
				return nil, types.ErrFeedClosed
			}
			continue
		}

		for _, m := range msgs {
			switch m.Type() {
			case msgPlayer:
				return m, nil
			case msgGoLobby:
				return nil, fmt.Errorf("%w: %s on %s", ErrGameNotFound, player, srv.Name)
			case msgPing:
				if err := feed.Send(ctx, types.Message{"msg": msgPong}); err != nil {
					return nil, fmt.Errorf("pong: %w", err)
				}
			}
		}
	}
}
