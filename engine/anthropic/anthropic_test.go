package anthropic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/chatmesh/chatmesh/core"
)

func TestAdapter_ErrorFrameOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := anthropic.NewClient(option.WithBaseURL(srv.URL), option.WithAPIKey("test"))
	a := NewFromClient(&client)

	ctx := context.Background()
	for _, f := range []core.Frame{core.NewInputStartFrame(), core.NewInputTextFrame("hello"), core.NewInputEndFrame()} {
		if err := a.Input(ctx, f); err != nil {
			t.Fatalf("input failed: %v", err)
		}
	}

	var frames []core.Frame
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f := <-a.Output():
			frames = append(frames, f)
			if f.Type == core.FrameError {
				if !frames[0].Start {
					t.Fatalf("expected start frame before error, got %#v", frames)
				}
				return
			}
			if f.Complete {
				t.Fatalf("expected error frame, got completion: %#v", frames)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for error frame; got %#v", frames)
		}
	}
}

func TestAdapter_InterruptIsIdempotent(t *testing.T) {
	client := anthropic.NewClient(option.WithAPIKey("test"))
	a := NewFromClient(&client)
	a.Interrupt()
	a.Interrupt()
	if err := a.Input(context.Background(), core.NewInterruptFrame()); err != nil {
		t.Fatalf("interrupt frame must never fail: %v", err)
	}
}
