package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
)

// syncTrailer is the empty stored block the server strips from every
// sync-flushed frame.
var syncTrailer = []byte{0x00, 0x00, 0xff, 0xff}

var errInflaterClosed = errors.New("inflater closed")

type inflateResult struct {
	doc json.RawMessage
	err error
}

// inflater decodes binary WebTiles frames. The server compresses the whole
// session as one raw deflate stream and sync-flushes after every message, so
// the decompressor must persist across frames. Each frame carries exactly one
// JSON document.
//
// One goroutine pushes frames into the pipe and another decodes documents
// out of it, so a frame that never completes a document cannot wedge the
// caller.
type inflater struct {
	in   chan []byte
	docs chan inflateResult
	pw   *io.PipeWriter

	stop      chan struct{}
	closeOnce sync.Once
}

func newInflater() *inflater {
	pr, pw := io.Pipe()
	i := &inflater{
		in:   make(chan []byte, 16),
		docs: make(chan inflateResult, 16),
		pw:   pw,
		stop: make(chan struct{}),
	}
	go i.write()
	go i.decode(json.NewDecoder(flate.NewReader(pr)))
	return i
}

func (i *inflater) write() {
	for {
		select {
		case chunk := <-i.in:
			if _, err := i.pw.Write(chunk); err != nil {
				return
			}
		case <-i.stop:
			return
		}
	}
}

func (i *inflater) decode(dec *json.Decoder) {
	for {
		var doc json.RawMessage
		err := dec.Decode(&doc)
		select {
		case i.docs <- inflateResult{doc: doc, err: err}:
		case <-i.stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// next feeds one frame and waits up to within for the document it completes.
func (i *inflater) next(ctx context.Context, frame []byte, within time.Duration) ([]byte, error) {
	chunk := make([]byte, 0, len(frame)+len(syncTrailer))
	chunk = append(chunk, frame...)
	chunk = append(chunk, syncTrailer...)

	select {
	case i.in <- chunk:
	case <-i.stop:
		return nil, errInflaterClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timer := time.NewTimer(within)
	defer timer.Stop()

	select {
	case r := <-i.docs:
		if r.err != nil {
			return nil, fmt.Errorf("%w: inflate: %w", ErrBadFrame, r.err)
		}
		return r.doc, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no complete message after %s", ErrBadFrame, within)
	case <-i.stop:
		return nil, errInflaterClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// close unblocks both goroutines and any pending next. Safe to call twice.
func (i *inflater) close() error {
	var err error
	i.closeOnce.Do(func() {
		close(i.stop)
		err = i.pw.CloseWithError(errInflaterClosed)
	})
	return err
}
