package lobby

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/crawl"
	"github.com/alexjurkiewicz/crawl-live-games-api/internal/types"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	default:
		return "disconnected"
	}
}

// Publisher receives complete, enriched lobbies.
type Publisher interface {
	Replace(ctx context.Context, server string, batch []types.Entry) error
}

type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second}
}

// Supervisor keeps one server's feed connected and publishes its lobby every
// time a complete lobby changes.
type Supervisor struct {
	srv     types.Server
	dialer  types.Dialer
	store   Publisher
	backoff Backoff
	log     *zap.Logger
	state   atomic.Int32
}

func NewSupervisor(srv types.Server, dialer types.Dialer, store Publisher, backoff Backoff, log *zap.Logger) *Supervisor {
	return &Supervisor{
		srv:     srv,
		dialer:  dialer,
		store:   store,
		backoff: backoff,
		log:     log.With(zap.String("server", srv.Name)),
	}
}

func (s *Supervisor) Server() types.Server { return s.srv }

func (s *Supervisor) State() State { return State(s.state.Load()) }

func (s *Supervisor) setState(st State) { s.state.Store(int32(st)) }

// Run loops until ctx is cancelled, reconnecting after every failure. It
// only ever returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateDisconnected)

	wait := s.backoff.Initial
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setState(StateConnecting)
		published, err := s.session(ctx)
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if published {
			wait = s.backoff.Initial
		}
		s.log.Warn("feed lost, reconnecting", zap.Error(err), zap.Duration("backoff", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, s.backoff.Max)
	}
}

// session runs one connection until it fails. published reports whether at
// least one lobby made it into the store.
func (s *Supervisor) session(ctx context.Context) (published bool, err error) {
	feed, err := s.dialer.Dial(ctx, s.srv)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if cerr := feed.Close(); cerr != nil {
			s.log.Debug("close feed", zap.Error(cerr))
		}
	}()

	s.setState(StateActive)
	s.log.Info("connected", zap.String("endpoint", s.srv.Endpoint), zap.Int("protocol", s.srv.Protocol))

	// Protocol 1 servers push the lobby unprompted.
	if s.srv.Protocol > 1 {
		if err := feed.Send(ctx, types.Message{"msg": MsgLobbyRequest}); err != nil {
			return false, fmt.Errorf("request lobby: %w", err)
		}
	}

	tracker := NewTracker(s.srv.Protocol)
	for {
		msgs, err := feed.Receive(ctx)
		if err != nil {
			return published, fmt.Errorf("receive: %w", err)
		}
		if len(msgs) == 0 {
			if feed.Closed() {
				return published, types.ErrFeedClosed
			}
			s.log.Debug("empty receive on open feed")
			continue
		}

		for _, m := range msgs {
			if m.Type() == MsgPing {
				if err := feed.Send(ctx, types.Message{"msg": MsgPong}); err != nil {
					return published, fmt.Errorf("pong: %w", err)
				}
				continue
			}
			tracker.Apply(m)
		}

		if !tracker.Complete() || !tracker.TakeDirty() {
			continue
		}
		batch := crawl.EnrichAll(tracker.Entries(), s.srv)
		if err := s.store.Replace(ctx, s.srv.Name, batch); err != nil {
			return published, fmt.Errorf("publish: %w", err)
		}
		if !published {
			s.log.Info("lobby data collected", zap.Int("games", len(batch)))
		} else {
			s.log.Debug("lobby updated", zap.Int("games", len(batch)))
		}
		published = true
	}
}
