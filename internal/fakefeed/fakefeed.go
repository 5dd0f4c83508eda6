// Package fakefeed provides an in-memory types.Feed and types.Dialer for tests.
package fakefeed

import (
	"context"
	"sync"
	"time"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/types"
)

// Feed is a scripted feed. Tests Push batches in and read what the code under
// test sent from Sent.
type Feed struct {
	ReceiveTimeout time.Duration

	incoming chan []types.Message
	sent     chan types.Message

	mu       sync.Mutex
	closed   bool
	hungUp   chan struct{}
	hangOnce sync.Once
}

func New() *Feed {
	return &Feed{
		ReceiveTimeout: 5 * time.Millisecond,
		incoming:       make(chan []types.Message, 64),
		sent:           make(chan types.Message, 64),
		hungUp:         make(chan struct{}),
	}
}

// Push queues one batch for Receive.
func (f *Feed) Push(msgs ...types.Message) { f.incoming <- msgs }

// Hangup simulates the server dropping the connection. Batches already
// pushed are still delivered first.
func (f *Feed) Hangup() {
	f.hangOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.hungUp)
	})
}

// Sent delivers every message the code under test sent.
func (f *Feed) Sent() <-chan types.Message { return f.sent }

func (f *Feed) Receive(ctx context.Context) ([]types.Message, error) {
	timer := time.NewTimer(f.ReceiveTimeout)
	defer timer.Stop()

	select {
	case msgs := <-f.incoming:
		return msgs, nil
	case <-f.hungUp:
		select {
		case msgs := <-f.incoming:
			return msgs, nil
		default:
		}
		return nil, types.ErrFeedClosed
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Feed) Send(ctx context.Context, msg types.Message) error {
	if f.Closed() {
		return types.ErrFeedClosed
	}
	select {
	case f.sent <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feed) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Feed) Close() error {
	f.Hangup()
	return nil
}

type dialResult struct {
	feed *Feed
	err  error
}

// Dialer hands out queued feeds in order. Dial blocks until a feed (or an
// error) is queued or ctx ends.
type Dialer struct {
	results chan dialResult

	mu    sync.Mutex
	dials []types.Server
}

func NewDialer() *Dialer {
	return &Dialer{results: make(chan dialResult, 16)}
}

// Next queues f as the result of the next Dial.
func (d *Dialer) Next(f *Feed) { d.results <- dialResult{feed: f} }

// FailNext makes the next Dial return err.
func (d *Dialer) FailNext(err error) { d.results <- dialResult{err: err} }

// Dials returns the servers dialled so far.
func (d *Dialer) Dials() []types.Server {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]types.Server(nil), d.dials...)
}

func (d *Dialer) Dial(ctx context.Context, srv types.Server) (types.Feed, error) {
	d.mu.Lock()
	d.dials = append(d.dials, srv)
	d.mu.Unlock()

	select {
	case r := <-d.results:
		if r.err != nil {
			return nil, r.err
		}
		return r.feed, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var (
	_ types.Feed   = (*Feed)(nil)
	_ types.Dialer = (*Dialer)(nil)
)
