package connection

import (
	"errors"
	"testing"

	"github.com/go-resty/resty/v2"
)

func TestManager_LazyCreateAndReuse(t *testing.T) {
	m := New()
	if m.Available() {
		t.Fatalf("client must not exist before first use")
	}
	c1 := m.Client()
	if c1 == nil {
		t.Fatalf("expected lazily created client")
	}
	if !m.Available() {
		t.Fatalf("client must be available after first use")
	}
	if c2 := m.Client(); c2 != c1 {
		t.Fatalf("expected the same pooled client on repeated calls")
	}
}

func TestManager_ResetReplacesClientIdentity(t *testing.T) {
	m := New()
	c1 := m.Client()
	m.Reset()
	if c2 := m.Client(); c2 == c1 {
		t.Fatalf("expected a fresh client after Reset")
	}
}

func TestManager_ScopedResetsOnError(t *testing.T) {
	m := New()
	c1 := m.Client()

	boom := errors.New("poisoned connection")
	err := m.Scoped(func(c *resty.Client) error {
		if c != c1 {
			t.Fatalf("scoped block must receive the shared client")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if c2 := m.Client(); c2 == c1 {
		t.Fatalf("expected client replaced after scoped error")
	}
}

func TestManager_ScopedKeepsClientOnSuccess(t *testing.T) {
	m := New()
	c1 := m.Client()
	if err := m.Scoped(func(c *resty.Client) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c2 := m.Client(); c2 != c1 {
		t.Fatalf("client must survive a clean scoped block")
	}
}

func TestManager_CloseSelfHeals(t *testing.T) {
	m := New()
	_ = m.Client()
	m.Close()
	if m.Available() {
		t.Fatalf("client must be gone after Close")
	}
	if c := m.Client(); c == nil {
		t.Fatalf("expected recreated client after Close")
	}
	// Close twice is harmless.
	m.Close()
	m.Close()
}
