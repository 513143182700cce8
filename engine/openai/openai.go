// Package openai bridges the engine adapter frame protocol onto the OpenAI
// Chat Completions streaming API. The adapter collects input frames between
// the start and end markers, then streams the model's output back as frames
// with its own start/end/completion sentinels. It performs no tool selection
// or execution.
package openai

import (
	"context"
	"sync"

	"github.com/openai/openai-go"

	"github.com/chatmesh/chatmesh/core"
	"github.com/chatmesh/chatmesh/logging"
)

// Options configure the OpenAI engine adapter. Fields mirror a minimal subset
// of Chat Completion parameters; extend via functional options without
// breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	OutputBufferSize    int
	Logger              logging.Logger
}

// Adapter implements core.EngineAdapter over the official OpenAI client.
type Adapter struct {
	client *openai.Client
	opts   Options
	logger logging.Logger

	out chan core.Frame

	mu         sync.Mutex
	collecting bool
	text       string
	cancel     context.CancelFunc
}

var _ core.EngineAdapter = (*Adapter)(nil)

// New creates an adapter using the default client (API key from environment).
func New(optFns ...func(o *Options)) *Adapter {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an adapter from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Adapter {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		OutputBufferSize:    64,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Adapter{
		client: client,
		opts:   opts,
		logger: opts.Logger,
		out:    make(chan core.Frame, opts.OutputBufferSize),
	}
}

// Input implements core.EngineAdapter. The end marker triggers generation on
// a background goroutine; an interrupt status frame aborts the in-flight one.
func (a *Adapter) Input(ctx context.Context, f core.Frame) error {
	if f.Type == core.FrameStatus && f.Content == core.InterruptSignal {
		a.Interrupt()
		return nil
	}

	a.mu.Lock()
	switch {
	case f.Start:
		a.collecting = true
		a.text = ""
		a.drainStale()
	case f.End:
		if !a.collecting {
			break
		}
		text := a.text
		a.collecting = false
		runCtx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.mu.Unlock()
		go a.generate(runCtx, text)
		return nil
	default:
		if !a.collecting {
			break
		}
		a.text += f.Content
		if f.Image != "" {
			// The completion bridge is text-only.
			a.logger.Debug("discarding image input frame")
		}
	}
	a.mu.Unlock()
	return nil
}

// Output implements core.EngineAdapter.
func (a *Adapter) Output() <-chan core.Frame { return a.out }

// Interrupt implements core.EngineAdapter; aborts the in-flight generation.
func (a *Adapter) Interrupt() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *Adapter) generate(ctx context.Context, text string) {
	defer func() {
		a.mu.Lock()
		if a.cancel != nil {
			a.cancel()
			a.cancel = nil
		}
		a.mu.Unlock()
	}()

	if !a.send(ctx, core.Frame{Role: core.RoleAssistant, Type: core.FrameMessage, Start: true}) {
		return
	}

	params := openai.ChatCompletionNewParams{
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage(text)},
		Model:               a.opts.Model,
		Temperature:         openai.Float(a.opts.Temperature),
		MaxCompletionTokens: openai.Int(a.opts.MaxCompletionTokens),
	}

	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content == "" {
				continue
			}
			if !a.send(ctx, core.Frame{Role: core.RoleAssistant, Type: core.FrameMessage, Content: ch.Delta.Content}) {
				return
			}
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			// Interrupted: wake the consumer with a status frame so its pull
			// loop can observe the cancellation flag.
			a.send(ctx, core.Frame{Role: core.RoleServer, Type: core.FrameStatus, Content: core.InterruptSignal})
			return
		}
		a.logger.Error("openai streaming failed", "error", err)
		// The error frame is terminal for the consumer; no sentinels follow.
		a.send(ctx, core.Frame{Role: core.RoleServer, Type: core.FrameError, Content: err.Error()})
		return
	}

	a.send(ctx, core.Frame{Role: core.RoleAssistant, Type: core.FrameMessage, End: true})
	a.send(ctx, core.Frame{Role: core.RoleServer, Type: core.FrameStatus, Complete: true})
}

// drainStale discards frames left over from an interrupted or failed turn so
// they never leak into the next one.
func (a *Adapter) drainStale() {
	for {
		select {
		case <-a.out:
		default:
			return
		}
	}
}

// send delivers a frame unless the generation was interrupted and nobody is
// pulling output anymore.
func (a *Adapter) send(ctx context.Context, f core.Frame) bool {
	select {
	case a.out <- f:
		return true
	default:
	}
	select {
	case a.out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
