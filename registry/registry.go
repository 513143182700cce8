// Package registry tracks every in-flight conversational turn by identifier.
// It is the only component in the orchestration core with shared mutable state
// requiring a lock; all other code observes turns exclusively through its API.
package registry

import (
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/chatmesh/chatmesh/logging"
)

// previewLimit bounds the stored copy of the turn input, kept for diagnostics only.
const previewLimit = 80

// Turn is one tracked in-flight exchange. It exists in the registry from the
// moment streaming begins until the turn terminates (success, error, cancel).
type Turn struct {
	ID             string
	ClientID       string
	StartedAt      time.Time
	LastActivityAt time.Time
	TextPreview    string

	cancelled atomic.Bool
}

// Info is a point-in-time snapshot of a Turn, safe to hand out.
type Info struct {
	ID             string    `json:"id"`
	ClientID       string    `json:"client_id"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	TextPreview    string    `json:"text_preview"`
	Cancelled      bool      `json:"cancelled"`
}

// Options configure a Registry.
type Options struct {
	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// Registry is a concurrency-safe map of in-flight turns. Mutations go through
// the write lock; IsCancelled takes only the read lock plus an atomic load so
// the streaming hot path never contends with writers for exclusivity. A
// one-write-in-flight staleness window is fine: cancellation only needs to be
// observed within one loop iteration.
type Registry struct {
	mu     sync.RWMutex
	turns  map[string]*Turn
	logger logging.Logger
}

// New constructs an empty Registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{turns: make(map[string]*Turn), logger: opts.Logger}
}

// Start inserts a new turn. Reusing an id overwrites the previous entry.
func (r *Registry) Start(id, clientID, text string) {
	if len(text) > previewLimit {
		// Trim back to a rune boundary so the preview stays valid UTF-8.
		cut := previewLimit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	now := time.Now()
	t := &Turn{ID: id, ClientID: clientID, StartedAt: now, LastActivityAt: now, TextPreview: text}

	r.mu.Lock()
	r.turns[id] = t
	r.mu.Unlock()

	r.logger.Debug("turn registered", "turn_id", id, "client_id", clientID)
}

// Cancel marks the turn cancelled and reports whether it was found. Cancelling
// an unknown or already cancelled turn is always safe.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	t, ok := r.turns[id]
	if ok {
		t.cancelled.Store(true)
		t.LastActivityAt = time.Now()
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debug("turn cancelled", "turn_id", id)
	}
	return ok
}

// IsCancelled reports whether the turn should stop. An unknown id returns
// true: a turn that was never registered, or already removed, must never be
// treated as still running.
func (r *Registry) IsCancelled(id string) bool {
	r.mu.RLock()
	t, ok := r.turns[id]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	return t.cancelled.Load()
}

// Touch updates the turn's last activity timestamp. No-op for unknown ids.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	if t, ok := r.turns[id]; ok {
		t.LastActivityAt = time.Now()
	}
	r.mu.Unlock()
}

// End removes the turn. Safe to call multiple times.
func (r *Registry) End(id string) {
	r.mu.Lock()
	_, ok := r.turns[id]
	delete(r.turns, id)
	r.mu.Unlock()

	if ok {
		r.logger.Debug("turn removed", "turn_id", id)
	}
}

// SweepStale removes turns idle longer than maxAge and returns the count
// removed. Intended for periodic background invocation, not the streaming hot
// path.
func (r *Registry) SweepStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	removed := 0
	for id, t := range r.turns {
		if t.LastActivityAt.Before(cutoff) {
			delete(r.turns, id)
			removed++
		}
	}
	r.mu.Unlock()

	if removed > 0 {
		r.logger.Info("stale turns swept", "removed", removed)
	}
	return removed
}

// CancelAll marks every tracked turn cancelled and returns how many were hit.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	n := 0
	for _, t := range r.turns {
		if !t.cancelled.Swap(true) {
			n++
		}
	}
	r.mu.Unlock()
	return n
}

// ListByClient returns snapshots of every turn owned by clientID.
func (r *Registry) ListByClient(clientID string) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []Info
	for _, t := range r.turns {
		if t.ClientID != clientID {
			continue
		}
		res = append(res, Info{
			ID:             t.ID,
			ClientID:       t.ClientID,
			StartedAt:      t.StartedAt,
			LastActivityAt: t.LastActivityAt,
			TextPreview:    t.TextPreview,
			Cancelled:      t.cancelled.Load(),
		})
	}
	return res
}

// Count returns the number of in-flight turns.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.turns)
}
