package crawl

import (
	"encoding/json"
	"strconv"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/types"
)

// Keys added to a raw lobby entry by Enrich.
const (
	KeyServer      = "server"
	KeyWatchLink   = "watchlink"
	KeyIdle        = "idle"
	KeyBranch      = "branch"
	KeyBranchLevel = "branchlevel"
	KeyPlace       = "place_human_readable"
	KeySpecies     = "species"
	KeyBackground  = "background"
)

// WatchLink builds the spectator URL for username on srv.
func WatchLink(srv types.Server, username string) string {
	if srv.Protocol == 1 {
		return srv.WatchURL + "#watch-" + username
	}
	return srv.WatchURL + "watch/" + username
}

// Enrich copies raw and adds the derived fields. Missing or malformed source
// fields only skip the fields derived from them; raw is not modified.
func Enrich(raw types.Message, srv types.Server) types.Entry {
	e := make(types.Entry, len(raw)+8)
	for k, v := range raw {
		e[k] = v
	}

	username, _ := raw.String("username")
	e[KeyServer] = srv.Name
	e[KeyWatchLink] = WatchLink(srv, username)

	if idle, ok := number(raw["idle_time"]); ok {
		e[KeyIdle] = idle != 0
	}

	if place, ok := raw.String("place"); ok {
		p := DecodePlace(place)
		e[KeyBranch] = p.Branch
		e[KeyBranchLevel] = p.Level
		e[KeyPlace] = p.Phrase
	}

	if char, ok := raw.String("char"); ok && len(char) >= 4 {
		e[KeySpecies] = SpeciesName(char[:2])
		e[KeyBackground] = BackgroundName(char[len(char)-2:])
	}

	return e
}

// EnrichAll enriches a whole lobby batch.
func EnrichAll(raw []types.Message, srv types.Server) []types.Entry {
	out := make([]types.Entry, 0, len(raw))
	for _, m := range raw {
		out = append(out, Enrich(m, srv))
	}
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
