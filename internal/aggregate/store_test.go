package aggregate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(context.Background(), zaptest.NewLogger(t))
	t.Cleanup(s.Close)
	return s
}

func entry(user, server string) types.Entry {
	return types.Entry{"username": user, "server": server}
}

func keys(entries []types.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Username()+"@"+e.Server())
	}
	return out
}

func TestStore_EmptySnapshotIsNotNil(t *testing.T) {
	s := newStore(t)

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Empty(t, snap)
}

func TestStore_ReplaceSortsAcrossServers(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Replace(ctx, "cao", []types.Entry{entry("zed", "cao"), entry("bob", "cao")}))
	require.NoError(t, s.Replace(ctx, "cbro", []types.Entry{entry("bob", "cbro"), entry("amy", "cbro")}))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"amy@cbro", "bob@cao", "bob@cbro", "zed@cao"}, keys(snap))
}

func TestStore_ReplaceDropsPreviousGeneration(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Replace(ctx, "cao", []types.Entry{entry("a", "cao"), entry("b", "cao")}))
	require.NoError(t, s.Replace(ctx, "cue", []types.Entry{entry("c", "cue")}))
	require.NoError(t, s.Replace(ctx, "cao", []types.Entry{entry("d", "cao")}))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c@cue", "d@cao"}, keys(snap))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cao": 1, "cue": 1}, counts)
}

func TestStore_ReplaceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	batch := []types.Entry{entry("a", "cao"), entry("b", "cao")}

	require.NoError(t, s.Replace(ctx, "cao", batch))
	first, err := s.Snapshot(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Replace(ctx, "cao", batch))
	second, err := s.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestStore_DuplicateUsernameInBatchKeepsLast(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	older := types.Entry{"username": "bob", "server": "cao", "xl": float64(1)}
	newer := types.Entry{"username": "bob", "server": "cao", "xl": float64(2)}
	require.NoError(t, s.Replace(ctx, "cao", []types.Entry{older, newer}))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, float64(2), snap[0]["xl"])
}

func TestStore_SnapshotIsIndependentCopy(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Replace(ctx, "cao", []types.Entry{entry("a", "cao")}))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	snap[0] = entry("mallory", "cao")

	again, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Username())
}

func TestStore_Lookup(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Replace(ctx, "cao", []types.Entry{entry("bob", "cao")}))

	e, ok, err := s.Lookup(ctx, "bob", "cao")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bob", e.Username())

	_, ok, err = s.Lookup(ctx, "bob", "cbro")
	require.NoError(t, err)
	assert.False(t, ok)
}

// Concurrent replaces for different servers must never let a reader observe
// a missing or duplicated server batch.
func TestStore_ConcurrentReplacesAreAtomic(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	batch := func(server string) []types.Entry {
		out := make([]types.Entry, 0, 20)
		for i := 0; i < 20; i++ {
			out = append(out, entry(fmt.Sprintf("p%02d", i), server))
		}
		return out
	}
	require.NoError(t, s.Replace(ctx, "A", batch("A")))
	require.NoError(t, s.Replace(ctx, "B", batch("B")))

	var wg sync.WaitGroup
	for _, server := range []string{"A", "B"} {
		wg.Add(1)
		go func(server string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				assert.NoError(t, s.Replace(ctx, server, batch(server)))
			}
		}(server)
	}

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap, err := s.Snapshot(ctx)
			if !assert.NoError(t, err) {
				return
			}
			perServer := map[string]int{}
			seen := map[string]bool{}
			for _, e := range snap {
				k := e.Username() + "@" + e.Server()
				assert.False(t, seen[k], "duplicate %s", k)
				seen[k] = true
				perServer[e.Server()]++
			}
			assert.Equal(t, map[string]int{"A": 20, "B": 20}, perServer)
		}
	}()

	wg.Wait()
	close(stop)
	<-readerDone
}

func TestStore_ClosedStoreRejectsCalls(t *testing.T) {
	s := NewStore(context.Background(), zaptest.NewLogger(t))
	s.Close()

	_, err := s.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Replace(context.Background(), "cao", nil), ErrStoreClosed)
}

func TestStore_AbandonedReadsDoNotStallOwner(t *testing.T) {
	s := newStore(t)

	gone, cancel := context.WithCancel(context.Background())
	cancel()
	for range 200 {
		_, _ = s.Snapshot(gone)
		_, _ = s.Counts(gone)
	}

	ctx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, s.Replace(ctx, "cao", []types.Entry{entry("amy", "cao")}))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cao": 1}, counts)
}
