package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/types"
)

var ErrBadFrame = errors.New("malformed frame")

type Options struct {
	// ReceiveTimeout bounds a single Receive call; an idle feed yields an
	// empty batch rather than an error.
	ReceiveTimeout time.Duration
	WriteTimeout   time.Duration
	// InflateTimeout bounds how long one binary frame may take to yield a
	// complete message before the feed is failed.
	InflateTimeout time.Duration
	// ReadLimit caps one websocket frame; lobby dumps get large.
	ReadLimit int64
}

func DefaultOptions() Options {
	return Options{
		ReceiveTimeout: 30 * time.Second,
		WriteTimeout:   3 * time.Second,
		InflateTimeout: 5 * time.Second,
		ReadLimit:      16 << 20,
	}
}

// Dialer opens WebTiles feeds.
type Dialer struct {
	opts Options
	log  *zap.Logger
}

func NewDialer(opts Options, log *zap.Logger) *Dialer {
	return &Dialer{opts: opts, log: log}
}

func (d *Dialer) Dial(ctx context.Context, srv types.Server) (types.Feed, error) {
	conn, _, err := websocket.Dial(ctx, srv.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", srv.Endpoint, err)
	}
	conn.SetReadLimit(d.opts.ReadLimit)
	return newFeed(conn, d.opts, d.log.With(zap.String("server", srv.Name))), nil
}

// Feed is a WebTiles connection. A reader goroutine decodes frames as they
// arrive so Receive can time out without tearing down the socket.
type Feed struct {
	conn   *websocket.Conn
	opts   Options
	log    *zap.Logger
	frames chan []types.Message

	inflate *inflater

	closed    atomic.Bool
	done      chan struct{}
	err       error
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newFeed(conn *websocket.Conn, opts Options, log *zap.Logger) *Feed {
	ctx, cancel := context.WithCancel(context.Background())
	f := &Feed{
		conn:    conn,
		opts:    opts,
		log:     log,
		frames:  make(chan []types.Message, 16),
		inflate: newInflater(),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go f.readLoop(ctx)
	return f
}

func (f *Feed) readLoop(ctx context.Context) {
	defer close(f.done)
	for {
		typ, data, err := f.conn.Read(ctx)
		if err != nil {
			f.fail(err)
			return
		}

		msgs, err := f.decode(ctx, typ, data)
		if err != nil {
			f.fail(err)
			return
		}
		if len(msgs) == 0 {
			continue
		}

		select {
		case f.frames <- msgs:
		case <-ctx.Done():
			f.fail(ctx.Err())
			return
		}
	}
}

func (f *Feed) fail(err error) {
	f.closed.Store(true)
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		f.err = types.ErrFeedClosed
	default:
		f.err = fmt.Errorf("%w: %w", types.ErrFeedClosed, err)
	}
	f.log.Debug("feed reader stopped", zap.Error(err))
}

func (f *Feed) decode(ctx context.Context, typ websocket.MessageType, data []byte) ([]types.Message, error) {
	if typ == websocket.MessageBinary {
		// A bare sync flush carries nothing once its trailer is stripped.
		if len(data) == 0 {
			return nil, nil
		}
		inflated, err := f.inflate.next(ctx, data, f.opts.InflateTimeout)
		if err != nil {
			return nil, err
		}
		data = inflated
	}
	return parseFrame(data)
}

// parseFrame accepts either {"msgs":[...]} or a single message object.
func parseFrame(data []byte) ([]types.Message, error) {
	var batch struct {
		Msgs []types.Message `json:"msgs"`
		Msg  *string         `json:"msg"`
	}
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	if batch.Msgs != nil {
		return batch.Msgs, nil
	}
	if batch.Msg == nil {
		return nil, nil
	}

	var m types.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	return []types.Message{m}, nil
}

// Receive returns the next decoded batch, or an empty batch if nothing
// arrived within the receive timeout.
func (f *Feed) Receive(ctx context.Context) ([]types.Message, error) {
	timer := time.NewTimer(f.opts.ReceiveTimeout)
	defer timer.Stop()

	select {
	case msgs := <-f.frames:
		return msgs, nil
	case <-f.done:
		select {
		case msgs := <-f.frames:
			return msgs, nil
		default:
		}
		return nil, f.err
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Feed) Send(ctx context.Context, msg types.Message) error {
	if f.closed.Load() {
		return types.ErrFeedClosed
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %q: %w", msg.Type(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.WriteTimeout)
	defer cancel()
	if err := f.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("send %q: %w", msg.Type(), err)
	}
	return nil
}

func (f *Feed) Closed() bool { return f.closed.Load() }

func (f *Feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		remoteGone := f.closed.Swap(true)
		err = f.conn.Close(websocket.StatusNormalClosure, "bye")
		if remoteGone || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			err = nil
		}
		f.cancel()
		err = multierr.Append(err, f.inflate.close())
		<-f.done
	})
	return err
}

var _ types.Feed = (*Feed)(nil)
