package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/chatmesh/chatmesh/coordinator"
	"github.com/chatmesh/chatmesh/core"
	"github.com/chatmesh/chatmesh/document"
	"github.com/chatmesh/chatmesh/internal/testutil"
)

func testSettings() *core.Settings {
	return &core.Settings{APIBase: "http://localhost:1", Model: "m", MaxTokens: 64}
}

func newStarted(t *testing.T, optFns ...func(o *Options)) *Orchestrator {
	t.Helper()
	base := func(o *Options) {
		o.Settings = testSettings()
		o.StartupWaitAttempts = 3
		o.StartupWaitInterval = 10 * time.Millisecond
		o.SweepInterval = time.Hour
	}
	o := New(append([]func(o *Options){base}, optFns...)...)
	if err := o.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(o.Stop)
	return o
}

func TestOrchestrator_Lifecycle(t *testing.T) {
	o := New(func(o *Options) {
		o.Settings = testSettings()
		o.SweepInterval = time.Hour
	})
	if o.State() != StateUninitialized {
		t.Fatalf("expected uninitialized, got %s", o.State())
	}
	if err := o.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if o.State() != StateReady {
		t.Fatalf("expected ready, got %s", o.State())
	}
	// Start is idempotent once ready.
	if err := o.Start(); err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	o.Stop()
	if o.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", o.State())
	}
	// Stop twice is harmless.
	o.Stop()
}

func TestOrchestrator_StreamChatViaEngine(t *testing.T) {
	eng := testutil.NewScriptedEngine(
		core.Frame{Role: core.RoleAssistant, Type: core.FrameMessage, Content: "pong"},
		core.Frame{Role: core.RoleServer, Type: core.FrameStatus, Complete: true},
	)
	o := newStarted(t, func(opt *Options) { opt.EngineAdapter = eng })

	ch := o.StreamChat(context.Background(), coordinator.ChatRequest{ClientID: "c1", Text: "ping", TurnID: "t1"})

	var chunks []core.Chunk
	for ck := range ch {
		chunks = append(chunks, ck)
	}
	if len(chunks) == 0 || chunks[0].Kind != core.KindPath || chunks[0].Content != core.BackendEngine {
		t.Fatalf("expected engine path chunk first, got %#v", chunks)
	}
	if !chunks[len(chunks)-1].End {
		t.Fatalf("expected end marker last, got %#v", chunks)
	}
}

func TestOrchestrator_StreamChatNotReadyYieldsEmptyStream(t *testing.T) {
	o := New(func(opt *Options) {
		opt.Settings = testSettings()
		opt.StartupWaitAttempts = 2
		opt.StartupWaitInterval = time.Millisecond
	})
	// Never started.
	ch := o.StreamChat(context.Background(), coordinator.ChatRequest{ClientID: "c1", Text: "hi"})

	select {
	case ck, ok := <-ch:
		if ok {
			t.Fatalf("expected empty closed stream, got %#v", ck)
		}
	case <-time.After(time.Second):
		t.Fatalf("stream must be closed promptly when not ready")
	}
}

func TestOrchestrator_StopGenerationFansOut(t *testing.T) {
	eng := testutil.NewScriptedEngine()
	eng.SetAutoplay(false)
	o := newStarted(t, func(opt *Options) { opt.EngineAdapter = eng })

	ch := o.StreamChat(context.Background(), coordinator.ChatRequest{ClientID: "c1", Text: "hi", TurnID: "t1"})
	// Wait for the turn to open its framing before cancelling.
	for ck := range ch {
		if ck.Start {
			break
		}
	}

	if !o.StopGeneration("t1") {
		t.Fatalf("expected StopGeneration to find t1")
	}
	if eng.Interrupts() == 0 {
		t.Fatalf("expected engine interrupt signal")
	}
	// Drain to completion: the cancelled turn must still close its stream.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("cancelled stream did not close")
		}
	}
}

func TestOrchestrator_StopGenerationUnknownTurn(t *testing.T) {
	o := newStarted(t)
	if o.StopGeneration("never-registered") {
		t.Fatalf("unknown turn must report not found")
	}
	// Idempotent and safe to repeat.
	if o.StopGeneration("never-registered") {
		t.Fatalf("repeated call must stay not found")
	}
}

func TestOrchestrator_HandleFileChat(t *testing.T) {
	o := newStarted(t, func(opt *Options) {
		opt.DocumentProcessor = document.NewPassthrough()
	})

	res, err := o.HandleFileChat(context.Background(), core.FileRequest{
		FileBytes: []byte("content"),
		Filename:  "notes.txt",
		Prompt:    "summarize",
		TurnID:    "t9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != "accepted" || res.TurnID != "t9" {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestOrchestrator_HandleFileChatWithoutProcessor(t *testing.T) {
	o := newStarted(t)
	if _, err := o.HandleFileChat(context.Background(), core.FileRequest{}); err != ErrNoProcessor {
		t.Fatalf("expected ErrNoProcessor, got %v", err)
	}
}

func TestOrchestrator_GetHealth(t *testing.T) {
	o := New()
	h := o.GetHealth()
	if h.State != "uninitialized" {
		t.Fatalf("expected uninitialized state, got %s", h.State)
	}
	for name, m := range h.Modules {
		if m.Available {
			t.Fatalf("module %s must be unavailable before start", name)
		}
	}

	o2 := newStarted(t, func(opt *Options) {
		opt.DocumentProcessor = document.NewPassthrough()
	})
	h2 := o2.GetHealth()
	if h2.State != "ready" {
		t.Fatalf("expected ready state, got %s", h2.State)
	}
	for _, name := range []string{"registry", "connection", "coordinator", "documents"} {
		if !h2.Modules[name].Available {
			t.Fatalf("module %s must be available after start: %#v", name, h2)
		}
	}
	if h2.Modules["engine"].Available {
		t.Fatalf("engine must report unavailable without an adapter")
	}
}

func TestOrchestrator_StartFailureRollsBack(t *testing.T) {
	o := New(func(opt *Options) {
		opt.EngineAdapter = failingConfigurator{testutil.NewScriptedEngine()}
		opt.Settings = testSettings()
	})
	if err := o.Start(); err == nil {
		t.Fatalf("expected start failure")
	}
	if o.State() != StateUninitialized {
		t.Fatalf("expected rollback to uninitialized, got %s", o.State())
	}
	h := o.GetHealth()
	if h.Modules["connection"].Available || h.Modules["registry"].Available {
		t.Fatalf("modules must be torn down after rollback: %#v", h)
	}
}

type failingConfigurator struct{ *testutil.ScriptedEngine }

func (failingConfigurator) Configure(core.Settings) error {
	return context.DeadlineExceeded
}
