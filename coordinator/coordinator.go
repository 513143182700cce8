// Package coordinator drives a single conversational turn through one of two
// interchangeable back-ends — the agentic engine or the fallback completion
// endpoint — and normalizes both into one chunked output protocol. It is the
// only component that writes the turn registry's lifecycle (register at entry,
// remove on every exit) and the only consumer of the shared connection pool.
package coordinator

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/chatmesh/chatmesh/connection"
	"github.com/chatmesh/chatmesh/core"
	"github.com/chatmesh/chatmesh/logging"
	"github.com/chatmesh/chatmesh/registry"
)

const (
	chunkBufferSize  = 32
	maxSSELineBytes  = 1 << 20
	ssePrefix        = "data:"
	sseDoneSentinel  = "[DONE]"
	completionsRoute = "/chat/completions"
)

// ChatRequest is one user-initiated turn.
type ChatRequest struct {
	ClientID  string
	Text      string
	ImageData string // base64, optional
	TurnID    string // generated when empty
}

// Options configure a Coordinator.
type Options struct {
	// EngineAdapter selects the agentic path when non-nil; otherwise every
	// turn takes the fallback path.
	EngineAdapter core.EngineAdapter
	// Settings drive the fallback completion call.
	Settings core.Settings
	// HistoryLimit caps the per-client conversation buffer.
	HistoryLimit int
	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// Coordinator makes two structurally different back-ends produce one
// protocol. Safe for many concurrent StreamChat invocations; per-turn state
// lives on the goroutine, shared state is confined to the registry, the
// connection pool and the locked history store.
type Coordinator struct {
	registry *registry.Registry
	conn     *connection.Manager
	adapter  core.EngineAdapter
	settings core.Settings
	history  *historyStore
	logger   logging.Logger
}

// New constructs a Coordinator bound to the shared registry and connection
// pool.
func New(reg *registry.Registry, conn *connection.Manager, optFns ...func(o *Options)) *Coordinator {
	opts := Options{HistoryLimit: DefaultHistoryLimit, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Coordinator{
		registry: reg,
		conn:     conn,
		adapter:  opts.EngineAdapter,
		settings: opts.Settings,
		history:  newHistoryStore(opts.HistoryLimit),
		logger:   opts.Logger,
	}
}

// StreamChat registers the turn and streams normalized chunks until the turn
// terminates. The returned channel is closed on every exit path; the turn is
// removed from the registry on every exit path. Exactly one start chunk
// precedes any content and exactly one terminal chunk follows it.
func (c *Coordinator) StreamChat(ctx context.Context, req ChatRequest) <-chan core.Chunk {
	turnID := req.TurnID
	if turnID == "" {
		turnID = core.NewID()
	}
	c.registry.Start(turnID, req.ClientID, req.Text)

	log := logging.WithTurn(c.logger, turnID, req.ClientID)

	out := make(chan core.Chunk, chunkBufferSize)
	go func() {
		defer close(out)
		defer c.registry.End(turnID)

		if c.adapter != nil {
			c.streamEngine(ctx, req, turnID, out, log)
			return
		}
		c.streamFallback(ctx, req, turnID, out, log)
	}()
	return out
}

// History returns a copy of the client's rolling conversation buffer.
func (c *Coordinator) History(clientID string) []core.Entry {
	return c.history.Snapshot(clientID)
}

// SeedHistory prepends context (typically a system instruction) for a client.
func (c *Coordinator) SeedHistory(clientID string, e core.Entry) {
	c.history.Append(clientID, e)
}

// ClearHistory drops the client's conversation buffer.
func (c *Coordinator) ClearHistory(clientID string) {
	c.history.Clear(clientID)
}

// emit delivers one chunk unless the caller has gone away. Buffer space is
// preferred over the context check so terminal chunks still land when the
// consumer is draining a cancelled stream.
func emit(ctx context.Context, out chan<- core.Chunk, ck core.Chunk) bool {
	select {
	case out <- ck:
		return true
	default:
	}
	select {
	case out <- ck:
		return true
	case <-ctx.Done():
		return false
	}
}

// streamEngine drives the agentic path: feed the turn through the engine's
// input channel, then pull output frames until the engine signals completion,
// the turn is cancelled, or the engine fails. The coordinator owns output
// framing; the engine's own start markers are suppressed and its end markers
// are collapsed into the single terminal end chunk.
func (c *Coordinator) streamEngine(ctx context.Context, req ChatRequest, turnID string, out chan<- core.Chunk, log logging.Logger) {
	if !emit(ctx, out, core.NewPathChunk(turnID, core.BackendEngine)) {
		return
	}

	if err := c.sendEngineInput(ctx, req); err != nil {
		log.Error("engine input failed", "error", err)
		emit(ctx, out, core.NewErrorChunk(turnID, core.BackendEngine, err.Error()))
		emit(ctx, out, core.NewEndChunk(turnID))
		return
	}

	if !emit(ctx, out, core.NewStartChunk(turnID)) {
		return
	}

	endSent := false
	finishEnd := func() {
		if !endSent {
			endSent = emit(ctx, out, core.NewEndChunk(turnID))
		}
	}

	for {
		select {
		case <-ctx.Done():
			// Caller-side cancellation surfaces identically to the polled flag.
			emit(ctx, out, core.NewStoppedChunk(turnID))
			finishEnd()
			return

		case f, ok := <-c.adapter.Output():
			if !ok {
				log.Warn("engine output closed mid-turn")
				finishEnd()
				return
			}

			// The only cancellation check point on this path, taken with the
			// pulled frame in hand so a post-cancel delta is dropped rather
			// than forwarded; latency equals one engine-output pull.
			if c.registry.IsCancelled(turnID) {
				emit(ctx, out, core.NewStoppedChunk(turnID))
				finishEnd()
				return
			}

			switch {
			case f.Complete:
				finishEnd()
				return

			case f.Type == core.FrameError:
				emit(ctx, out, core.NewErrorChunk(turnID, core.BackendEngine, f.Content))
				finishEnd()
				return

			case f.Start:
				// Engine's own start marker: the coordinator already framed
				// the output, drop it.

			case f.End:
				// Collapse the engine's end marker into our single terminal
				// end chunk; the completion sentinel will find endSent set.
				finishEnd()

			case f.Type == core.FrameMessage && f.Content != "":
				if !emit(ctx, out, core.NewMessageChunk(turnID, f.Content)) {
					return
				}
				c.registry.Touch(turnID)

			default:
				// Status frames carry nothing for callers.
			}
		}
	}
}

// sendEngineInput frames the turn for the engine: start marker, text,
// optional image, end marker.
func (c *Coordinator) sendEngineInput(ctx context.Context, req ChatRequest) error {
	frames := []core.Frame{core.NewInputStartFrame(), core.NewInputTextFrame(req.Text)}
	if req.ImageData != "" {
		frames = append(frames, core.NewInputImageFrame(req.ImageData))
	}
	frames = append(frames, core.NewInputEndFrame())

	for _, f := range frames {
		if err := c.adapter.Input(ctx, f); err != nil {
			return fmt.Errorf("engine input: %w", err)
		}
	}
	return nil
}

// streamFallback drives the fallback path: a streaming POST to the
// OpenAI-compatible completion endpoint through the scoped connection,
// decoding SSE lines into message chunks. On transport failure an error chunk
// is the terminal frame (no end chunk) and the pool gets reset by the scoped
// exit; on clean completion the accumulated assistant text joins the history.
func (c *Coordinator) streamFallback(ctx context.Context, req ChatRequest, turnID string, out chan<- core.Chunk, log logging.Logger) {
	blocks := []contentBlock{{Type: "text", Text: req.Text}}
	if c.settings.SupportsVision && req.ImageData != "" {
		blocks = append(blocks, contentBlock{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:image/jpeg;base64," + req.ImageData},
		})
	}

	// Read-before-append so the payload carries prior turns but not this one twice.
	prior := c.history.Snapshot(req.ClientID)
	c.history.Append(req.ClientID, core.Entry{Role: core.RoleUser, Content: req.Text})

	messages := make([]chatMessage, 0, len(prior)+1)
	for _, e := range prior {
		messages = append(messages, chatMessage{Role: string(e.Role), Content: e.Content})
	}
	messages = append(messages, chatMessage{Role: string(core.RoleUser), Content: blocks})

	if !emit(ctx, out, core.NewPathChunk(turnID, core.BackendHTTP)) {
		return
	}
	if !emit(ctx, out, core.NewStartChunk(turnID)) {
		return
	}

	var assistant strings.Builder
	stopped := false

	err := c.conn.Scoped(func(cl *resty.Client) error {
		resp, err := cl.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "text/event-stream").
			SetBody(completionRequest{
				Model:     c.settings.Model,
				Messages:  messages,
				MaxTokens: c.settings.MaxTokens,
				Stream:    true,
			}).
			SetDoNotParseResponse(true).
			Post(strings.TrimRight(c.settings.APIBase, "/") + completionsRoute)
		if err != nil {
			return fmt.Errorf("completion request: %w", err)
		}
		body := resp.RawBody()
		defer body.Close()

		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("completion endpoint returned %s", resp.Status())
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineBytes)
		for scanner.Scan() {
			if c.registry.IsCancelled(turnID) {
				// Break out of the read loop without poisoning the pool; the
				// deferred body close handles the socket.
				emit(ctx, out, core.NewStoppedChunk(turnID))
				stopped = true
				return nil
			}

			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, ssePrefix) {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, ssePrefix))
			if payload == sseDoneSentinel {
				return nil
			}

			var delta streamDelta
			if err := json.Unmarshal([]byte(payload), &delta); err != nil {
				log.Warn("undecodable stream delta", "error", err)
				continue
			}
			if text := delta.text(); text != "" {
				assistant.WriteString(text)
				if !emit(ctx, out, core.NewMessageChunk(turnID, text)) {
					stopped = true
					return nil
				}
				c.registry.Touch(turnID)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("stream read: %w", err)
		}
		return nil
	})
	if err != nil {
		if c.registry.IsCancelled(turnID) {
			// A stop request resets the pool and can kill the in-flight read
			// before the per-line check sees the flag; that is not a failure.
			emit(ctx, out, core.NewStoppedChunk(turnID))
			return
		}
		log.Error("fallback stream failed", "error", err)
		// An error chunk is implicitly terminal; no end chunk follows.
		emit(ctx, out, core.NewErrorChunk(turnID, core.BackendHTTP, err.Error()))
		return
	}
	if stopped {
		return
	}

	emit(ctx, out, core.NewEndChunk(turnID))
	c.history.Append(req.ClientID, core.Entry{Role: core.RoleAssistant, Content: assistant.String()})
}
