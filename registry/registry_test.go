package registry

import (
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

func TestRegistry_UnknownIDIsCancelled(t *testing.T) {
	r := New()
	if !r.IsCancelled("never-registered") {
		t.Fatalf("expected unknown id to report cancelled")
	}
}

func TestRegistry_StartCancelEnd(t *testing.T) {
	r := New()
	r.Start("t1", "c1", "hello")

	if r.IsCancelled("t1") {
		t.Fatalf("fresh turn must not be cancelled")
	}
	if !r.Cancel("t1") {
		t.Fatalf("expected cancel to find t1")
	}
	if !r.IsCancelled("t1") {
		t.Fatalf("expected t1 cancelled after Cancel")
	}

	r.End("t1")
	if got := r.Count(); got != 0 {
		t.Fatalf("expected empty registry, got %d", got)
	}
	// End is idempotent.
	r.End("t1")
	if got := r.Count(); got != 0 {
		t.Fatalf("count changed on repeated End: %d", got)
	}
}

func TestRegistry_CancelUnknownIsSafe(t *testing.T) {
	r := New()
	if r.Cancel("ghost") {
		t.Fatalf("cancel of unknown id must report not found")
	}
}

func TestRegistry_StartOverwritesReusedID(t *testing.T) {
	r := New()
	r.Start("t1", "c1", "first")
	r.Cancel("t1")
	r.Start("t1", "c2", "second")

	if r.IsCancelled("t1") {
		t.Fatalf("reused id must start fresh, not inherit cancellation")
	}
	if got := r.Count(); got != 1 {
		t.Fatalf("expected single entry, got %d", got)
	}
}

func TestRegistry_TextPreviewBounded(t *testing.T) {
	r := New()
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	r.Start("t1", "c1", string(long))

	infos := r.ListByClient("c1")
	if len(infos) != 1 {
		t.Fatalf("expected one turn, got %d", len(infos))
	}
	if len(infos[0].TextPreview) != previewLimit {
		t.Fatalf("expected preview of %d bytes, got %d", previewLimit, len(infos[0].TextPreview))
	}
}

func TestRegistry_TextPreviewKeepsRunesIntact(t *testing.T) {
	r := New()
	// 3-byte runes; previewLimit is not a multiple of 3 so a byte-boundary
	// cut would split the rune at the edge.
	long := strings.Repeat("界", previewLimit)
	r.Start("t1", "c1", long)

	infos := r.ListByClient("c1")
	if len(infos) != 1 {
		t.Fatalf("expected one turn, got %d", len(infos))
	}
	preview := infos[0].TextPreview
	if len(preview) > previewLimit {
		t.Fatalf("preview exceeds %d bytes: %d", previewLimit, len(preview))
	}
	if !utf8.ValidString(preview) {
		t.Fatalf("preview is not valid UTF-8: %q", preview)
	}
}

func TestRegistry_SweepStale(t *testing.T) {
	r := New()
	r.Start("old", "c1", "a")
	r.Start("fresh", "c1", "b")

	// Age the first entry directly.
	r.mu.Lock()
	r.turns["old"].LastActivityAt = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	if removed := r.SweepStale(10 * time.Minute); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if !r.IsCancelled("old") {
		t.Fatalf("swept turn must read as cancelled")
	}
	if r.IsCancelled("fresh") {
		t.Fatalf("fresh turn must survive sweep")
	}
}

func TestRegistry_TouchKeepsTurnAlive(t *testing.T) {
	r := New()
	r.Start("t1", "c1", "a")
	r.mu.Lock()
	r.turns["t1"].LastActivityAt = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	r.Touch("t1")
	if removed := r.SweepStale(10 * time.Minute); removed != 0 {
		t.Fatalf("touched turn swept: %d", removed)
	}
}

func TestRegistry_CancelAllAndListByClient(t *testing.T) {
	r := New()
	for i := 0; i < 5; i++ {
		r.Start("t"+strconv.Itoa(i), "c1", "x")
	}
	r.Start("other", "c2", "y")

	if n := r.CancelAll(); n != 6 {
		t.Fatalf("expected 6 cancelled, got %d", n)
	}
	if n := r.CancelAll(); n != 0 {
		t.Fatalf("second CancelAll must be a no-op, got %d", n)
	}

	infos := r.ListByClient("c1")
	if len(infos) != 5 {
		t.Fatalf("expected 5 turns for c1, got %d", len(infos))
	}
	for _, info := range infos {
		if !info.Cancelled {
			t.Fatalf("expected snapshot to show cancellation: %#v", info)
		}
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "t" + strconv.Itoa(i)
			r.Start(id, "c1", "hello")
			for j := 0; j < 100; j++ {
				r.IsCancelled(id)
				r.Touch(id)
			}
			r.Cancel(id)
			r.End(id)
		}(i)
	}
	wg.Wait()
	if got := r.Count(); got != 0 {
		t.Fatalf("expected empty registry after churn, got %d", got)
	}
}
