// Package connection owns the pooled outbound HTTP client used by the
// fallback completion path. It is the only place the orchestration core is
// allowed to construct network clients; every other component borrows the
// shared handle through Manager.
package connection

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/chatmesh/chatmesh/logging"
)

// Options configure the pooled client. Connect stays short, read stays long
// to support streaming responses, write stays moderate.
type Options struct {
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleConnTimeout time.Duration
	MaxIdleConns    int
	RedirectLimit   int
	UserAgent       string
	Logger          logging.Logger
}

func defaultOptions() Options {
	return Options{
		ConnectTimeout:  10 * time.Second,
		ReadTimeout:     5 * time.Minute,
		WriteTimeout:    30 * time.Second,
		IdleConnTimeout: 90 * time.Second,
		MaxIdleConns:    10,
		RedirectLimit:   5,
		UserAgent:       "chatmesh/1.0",
		Logger:          logging.NoOpLogger{},
	}
}

// Manager guards a single reusable resty client. It lazily creates the
// client, recreates it after Close, and replaces it wholesale on Reset so a
// poisoned connection pool is never reused. No operation fails because the
// client was already closed; the manager self-heals by recreating it.
type Manager struct {
	mu     sync.Mutex
	client *resty.Client
	opts   Options
	logger logging.Logger
}

// New constructs a Manager. The client itself is not built until first use.
func New(optFns ...func(o *Options)) *Manager {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{opts: opts, logger: opts.Logger}
}

// Client returns the shared pooled client, creating it if needed. Concurrent
// callers never observe a half-constructed client.
func (m *Manager) Client() *resty.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		m.client = m.newClient()
	}
	return m.client
}

// Reset closes the current handle (ignoring close errors) and installs a
// fresh one with the same secure defaults. Used after a transport-level
// failure to avoid reusing a connection in an undefined state.
func (m *Manager) Reset() {
	m.mu.Lock()
	old := m.client
	m.client = m.newClient()
	m.mu.Unlock()

	if old != nil {
		old.GetClient().CloseIdleConnections()
	}
	m.logger.Info("connection pool reset")
}

// Scoped runs fn with the shared client and guarantees recovery: if fn
// returns an error the pool is reset before the error is propagated, so
// callers never need their own cleanup logic.
func (m *Manager) Scoped(fn func(c *resty.Client) error) error {
	if err := fn(m.Client()); err != nil {
		m.Reset()
		return err
	}
	return nil
}

// Available reports whether a client handle currently exists. Diagnostics
// only; Client() would create one on demand anyway.
func (m *Manager) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil
}

// Close releases the pooled connections. A later Client() call recreates the
// handle, so Close is safe at any time.
func (m *Manager) Close() {
	m.mu.Lock()
	old := m.client
	m.client = nil
	m.mu.Unlock()

	if old != nil {
		old.GetClient().CloseIdleConnections()
	}
}

// newClient builds the pooled client with bounded timeouts, TLS verification
// on, a bounded redirect count and a fixed identifying header.
func (m *Manager) newClient() *resty.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   m.opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   m.opts.ConnectTimeout,
		ResponseHeaderTimeout: m.opts.WriteTimeout,
		MaxIdleConns:          m.opts.MaxIdleConns,
		MaxIdleConnsPerHost:   m.opts.MaxIdleConns,
		IdleConnTimeout:       m.opts.IdleConnTimeout,
	}

	return resty.New().
		SetTransport(transport).
		SetTimeout(m.opts.ReadTimeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(m.opts.RedirectLimit)).
		SetHeader("User-Agent", m.opts.UserAgent)
}
