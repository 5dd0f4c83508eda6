package aggregate

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/types"
)

var ErrStoreClosed = errors.New("aggregate store closed")

type storeMsg interface{ isStoreMsg() }

// replaceServer swaps every entry of a server for a new batch in one step.
type replaceServer struct {
	server  string
	entries []types.Entry
	done    chan struct{}
}

type getSnapshot struct {
	reply chan []types.Entry
}

// getCounts asks for the number of entries held per server.
type getCounts struct {
	reply chan map[string]int
}

func (replaceServer) isStoreMsg() {}
func (getSnapshot) isStoreMsg()   {}
func (getCounts) isStoreMsg()     {}

// Store is the merged view of every server's lobby. A single goroutine owns
// the data; all access goes through the inbox, so a reader never sees half of
// a Replace.
type Store struct {
	inbox    chan storeMsg
	byServer map[string][]types.Entry
	view     []types.Entry
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewStore(parent context.Context, log *zap.Logger) *Store {
	ctx, cancel := context.WithCancel(parent)
	s := &Store{
		inbox:    make(chan storeMsg, 64),
		byServer: make(map[string][]types.Entry),
		view:     []types.Entry{},
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

// Close stops the owner goroutine. Pending callers get ErrStoreClosed.
func (s *Store) Close() {
	s.cancel()
	<-s.done
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case replaceServer:
				s.replace(msg.server, msg.entries)
				if msg.done != nil {
					close(msg.done)
				}

			case getSnapshot:
				msg.reply <- slices.Clone(s.view)

			case getCounts:
				counts := make(map[string]int, len(s.byServer))
				for name, entries := range s.byServer {
					counts[name] = len(entries)
				}
				msg.reply <- counts
			}
		}
	}
}

func (s *Store) replace(server string, batch []types.Entry) {
	// One entry per username; the feed's later record wins.
	seen := make(map[string]int, len(batch))
	entries := make([]types.Entry, 0, len(batch))
	for _, e := range batch {
		if i, dup := seen[e.Username()]; dup {
			entries[i] = e
			continue
		}
		seen[e.Username()] = len(entries)
		entries = append(entries, e)
	}
	if dropped := len(batch) - len(entries); dropped > 0 {
		s.log.Warn("duplicate usernames in lobby batch",
			zap.String("server", server), zap.Int("dropped", dropped))
	}

	s.byServer[server] = entries

	view := make([]types.Entry, 0, len(s.view)+len(entries))
	for _, batch := range s.byServer {
		view = append(view, batch...)
	}
	slices.SortFunc(view, func(a, b types.Entry) int {
		if c := strings.Compare(a.Username()+a.Server(), b.Username()+b.Server()); c != 0 {
			return c
		}
		return strings.Compare(a.Username(), b.Username())
	})
	s.view = view
}

// Replace atomically replaces the entries of server with batch and waits for
// the store to apply it. Entries are expected to carry server in their
// "server" field.
func (s *Store) Replace(ctx context.Context, server string, batch []types.Entry) error {
	done := make(chan struct{})
	if err := s.send(ctx, replaceServer{server: server, entries: batch, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-s.done:
		return ErrStoreClosed
	}
}

// Snapshot returns a copy of the current ordered view. Entries are shared and
// must be treated as read-only.
func (s *Store) Snapshot(ctx context.Context) ([]types.Entry, error) {
	reply := make(chan []types.Entry, 1)
	if err := s.send(ctx, getSnapshot{reply: reply}); err != nil {
		return nil, err
	}
	return recv(ctx, s.done, reply)
}

// Counts returns the number of entries per server that has published.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	reply := make(chan map[string]int, 1)
	if err := s.send(ctx, getCounts{reply: reply}); err != nil {
		return nil, err
	}
	return recv(ctx, s.done, reply)
}

// Lookup finds the entry for player on server in the current view.
func (s *Store) Lookup(ctx context.Context, player, server string) (types.Entry, bool, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, e := range snap {
		if e.Username() == player && e.Server() == server {
			return e, true, nil
		}
	}
	return nil, false, nil
}

func (s *Store) send(ctx context.Context, m storeMsg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStoreClosed
	}
}

func recv[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-done:
		return zero, ErrStoreClosed
	}
}
