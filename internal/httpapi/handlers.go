package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/probe"
	"github.com/alexjurkiewicz/crawl-live-games-api/internal/types"
)

// Store is the read side of the aggregate.
type Store interface {
	Snapshot(ctx context.Context) ([]types.Entry, error)
	Lookup(ctx context.Context, player, server string) (types.Entry, bool, error)
	Counts(ctx context.Context) (map[string]int, error)
}

type Prober interface {
	Server(name string) (types.Server, bool)
	Probe(ctx context.Context, server, player string) (types.Message, error)
}

type Deps struct {
	Store  Store
	Prober Prober
	Log    *zap.Logger
	// Status reports each supervisor's connection state by server name.
	Status func() map[string]string
}

func Games(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		games, err := store.Snapshot(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, games, wantsPretty(r))
	}
}

func GameInfo(store Store, prober Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		player, server := q.Get("player"), q.Get("server")
		if player == "" || server == "" {
			writeError(w, http.StatusBadRequest, "player and server are required")
			return
		}

		if _, ok := prober.Server(server); !ok {
			writeError(w, http.StatusNotFound, "unknown server")
			return
		}
		_, found, err := store.Lookup(r.Context(), player, server)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "player not playing on that server")
			return
		}

		detail, err := prober.Probe(r.Context(), server, player)
		if err != nil {
			writeError(w, probeStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, detail, wantsPretty(r))
	}
}

func Healthz(store Store, status func() map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := store.Counts(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}

		type serverHealth struct {
			State string `json:"state,omitempty"`
			Games int    `json:"games"`
		}
		out := make(map[string]serverHealth)
		for name, n := range counts {
			out[name] = serverHealth{Games: n}
		}
		if status != nil {
			for name, st := range status() {
				h := out[name]
				h.State = st
				out[name] = h
			}
		}
		writeJSON(w, http.StatusOK, out, wantsPretty(r))
	}
}

func probeStatus(err error) int {
	switch {
	case errors.Is(err, probe.ErrServerNotFound), errors.Is(err, probe.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, probe.ErrProbeTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// wantsPretty is true whenever ?pretty is present, with or without a value.
func wantsPretty(r *http.Request) bool {
	_, ok := r.URL.Query()["pretty"]
	return ok
}

// writeJSON sends v with an exact Content-Length. Maps encode with sorted
// keys, so pretty output is key-sorted as well as indented.
func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	var body []byte
	var err error
	if pretty {
		body, err = json.MarshalIndent(v, "", "    ")
	} else {
		body, err = json.Marshal(v)
	}
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"encode response"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg}, false)
}
