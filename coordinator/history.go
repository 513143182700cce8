package coordinator

import (
	"sync"

	"github.com/chatmesh/chatmesh/core"
)

// DefaultHistoryLimit caps the rolling conversation buffer per client.
const DefaultHistoryLimit = 30

// historyStore holds the fallback path's rolling conversation buffers, keyed
// by client so one client's turns never leak into another's context. When a
// buffer exceeds its cap the oldest non-system entries are evicted while a
// leading system entry is preserved.
type historyStore struct {
	mu      sync.Mutex
	limit   int
	entries map[string][]core.Entry
}

func newHistoryStore(limit int) *historyStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &historyStore{limit: limit, entries: make(map[string][]core.Entry)}
}

// Snapshot returns a copy of the client's buffer.
func (h *historyStore) Snapshot(clientID string) []core.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	src := h.entries[clientID]
	out := make([]core.Entry, len(src))
	copy(out, src)
	return out
}

// Append adds one entry and applies the eviction policy.
func (h *historyStore) Append(clientID string, e core.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.entries[clientID], e)
	for len(list) > h.limit {
		if list[0].Role == core.RoleSystem && len(list) > 1 {
			list = append(list[:1], list[2:]...)
		} else {
			list = list[1:]
		}
	}
	h.entries[clientID] = list
}

// Clear drops the client's buffer entirely.
func (h *historyStore) Clear(clientID string) {
	h.mu.Lock()
	delete(h.entries, clientID)
	h.mu.Unlock()
}
