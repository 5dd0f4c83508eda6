package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/config"
	"github.com/alexjurkiewicz/crawl-live-games-api/internal/fakefeed"
	"github.com/alexjurkiewicz/crawl-live-games-api/internal/types"
)

func testConfig() *config.Config {
	return &config.Config{
		Listen:          "127.0.0.1:0",
		ProbeTimeout:    time.Second,
		ReceiveTimeout:  time.Second,
		Backoff:         config.Backoff{Initial: time.Millisecond, Max: 10 * time.Millisecond},
		StatusInterval:  10 * time.Millisecond,
		ShutdownTimeout: time.Second,
		Log:             config.Log{Level: "debug", Format: "console"},
		Servers: []types.Server{
			{Name: "cao", Endpoint: "ws://cao/socket", Protocol: 1, WatchURL: "http://cao/"},
		},
	}
}

func fetchGames(base string) ([]map[string]any, error) {
	resp, err := http.Get(base + "/games")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var games []map[string]any
	err = json.Unmarshal(body, &games)
	return games, err
}

func TestRun_ServesLobbyAndShutsDown(t *testing.T) {
	dialer := fakefeed.NewDialer()
	feed := fakefeed.New()
	dialer.Next(feed)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- run(ctx, testConfig(), dialer, ln, zaptest.NewLogger(t)) }()

	games, err := fetchGames(base)
	require.NoError(t, err)
	assert.Empty(t, games)

	feed.Push(
		types.Message{"msg": "lobby_entry", "id": float64(7), "username": "amy", "place": "Zot:5", "char": "DDFE", "xl": float64(27)},
		types.Message{"msg": "lobby_complete"},
	)

	require.Eventually(t, func() bool {
		games, err = fetchGames(base)
		return err == nil && len(games) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "amy", games[0]["username"])
	assert.Equal(t, "cao", games[0]["server"])
	assert.Equal(t, "on level 5 of the Realm of Zot", games[0]["place_human_readable"])
	assert.Equal(t, "http://cao/#watch-amy", games[0]["watchlink"])

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}

	_, err = http.Get(base + "/games")
	assert.Error(t, err, "listener is closed after shutdown")
}
