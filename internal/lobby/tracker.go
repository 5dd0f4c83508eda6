package lobby

import (
	"fmt"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/types"
)

// Lobby message types understood by the Tracker.
const (
	MsgPing          = "ping"
	MsgPong          = "pong"
	MsgLobbyRequest  = "lobby"
	MsgLobbyClear    = "lobby_clear"
	MsgLobbyEntry    = "lobby_entry"
	MsgLobbyRemove   = "lobby_remove"
	MsgLobbyComplete = "lobby_complete"
	MsgLobbyHTML     = "lobby_html"
)

// Tracker accumulates one connection's view of a server lobby.
//
// A protocol 1 lobby is complete once lobby_complete has been seen since the
// last clear; later protocols mark a full lobby with lobby_html.
type Tracker struct {
	protocol int
	entries  map[string]types.Message
	order    []string

	sawComplete bool
	sawFull     bool
	dirty       bool
}

func NewTracker(protocol int) *Tracker {
	return &Tracker{
		protocol: protocol,
		entries:  make(map[string]types.Message),
	}
}

// Apply folds one message into the lobby. It reports whether the message was
// a lobby message.
func (t *Tracker) Apply(m types.Message) bool {
	if list, ok := m["lobby_entries"].([]any); ok {
		t.reset()
		for _, item := range list {
			if raw, ok := item.(map[string]any); ok {
				t.upsert(types.Message(raw))
			}
		}
		t.dirty = true
		return true
	}

	switch m.Type() {
	case MsgLobbyClear:
		t.reset()
		t.sawComplete = false
		t.sawFull = false
	case MsgLobbyEntry:
		t.upsert(m)
	case MsgLobbyRemove:
		t.remove(entryKey(m))
	case MsgLobbyComplete:
		t.sawComplete = true
	case MsgLobbyHTML:
		t.sawFull = true
	default:
		return false
	}
	t.dirty = true
	return true
}

func (t *Tracker) Complete() bool {
	if t.protocol <= 1 {
		return t.sawComplete
	}
	return t.sawFull
}

// TakeDirty reports whether the lobby changed since the last call.
func (t *Tracker) TakeDirty() bool {
	d := t.dirty
	t.dirty = false
	return d
}

// Entries returns the current lobby in arrival order.
func (t *Tracker) Entries() []types.Message {
	out := make([]types.Message, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.entries[k])
	}
	return out
}

func (t *Tracker) Len() int { return len(t.order) }

func (t *Tracker) reset() {
	clear(t.entries)
	t.order = t.order[:0]
}

func (t *Tracker) upsert(m types.Message) {
	key := entryKey(m)
	if key == "" {
		return
	}
	entry := make(types.Message, len(m))
	for k, v := range m {
		if k != "msg" {
			entry[k] = v
		}
	}
	if _, ok := t.entries[key]; !ok {
		t.order = append(t.order, key)
	}
	t.entries[key] = entry
}

func (t *Tracker) remove(key string) {
	if _, ok := t.entries[key]; !ok {
		return
	}
	delete(t.entries, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// entryKey identifies an entry by its feed id, falling back to username.
func entryKey(m types.Message) string {
	if id, ok := m["id"]; ok && id != nil {
		return fmt.Sprint(id)
	}
	if u, ok := m.String("username"); ok {
		return "user:" + u
	}
	return ""
}
