// Package anthropic bridges the engine adapter frame protocol onto the
// Anthropic Messages streaming API. Same shape as the openai adapter: input
// frames in, output frames with start/end/completion sentinels out, no tool
// execution.
package anthropic

import (
	"context"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/chatmesh/chatmesh/core"
	"github.com/chatmesh/chatmesh/logging"
)

// Options configure the Anthropic engine adapter.
type Options struct {
	Model            anthropic.Model
	Temperature      float64
	MaxTokens        int64
	APIKey           string
	OutputBufferSize int
	Logger           logging.Logger
}

// Adapter implements core.EngineAdapter over the official Anthropic client.
type Adapter struct {
	client *anthropic.Client
	opts   Options
	logger logging.Logger

	out chan core.Frame

	mu         sync.Mutex
	collecting bool
	text       string
	cancel     context.CancelFunc
}

var _ core.EngineAdapter = (*Adapter)(nil)

// New creates an adapter using the official client (API key from options or
// environment).
func New(optFns ...func(o *Options)) *Adapter {
	opts := applyOptions(optFns)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return newAdapter(&client, opts)
}

// NewFromClient creates an adapter from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Adapter {
	return newAdapter(client, applyOptions(optFns))
}

func applyOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:            anthropic.ModelClaude3_5Sonnet20241022,
		Temperature:      0.7,
		MaxTokens:        4096,
		OutputBufferSize: 64,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

func newAdapter(client *anthropic.Client, opts Options) *Adapter {
	return &Adapter{
		client: client,
		opts:   opts,
		logger: opts.Logger,
		out:    make(chan core.Frame, opts.OutputBufferSize),
	}
}

// Input implements core.EngineAdapter.
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
			// The message bridge is text-only.
			a.logger.Debug("discarding image input frame")
		}
	}
	a.mu.Unlock()
	return nil
}

// Output implements core.EngineAdapter.
func (a *Adapter) Output() <-chan core.Frame { return a.out }

// Interrupt implements core.EngineAdapter.
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

	params := anthropic.MessageNewParams{
		Model:       a.opts.Model,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: anthropic.Float(a.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text == "" {
					continue
				}
				if !a.send(ctx, core.Frame{Role: core.RoleAssistant, Type: core.FrameMessage, Content: deltaVariant.Text}) {
					return
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			a.send(ctx, core.Frame{Role: core.RoleServer, Type: core.FrameStatus, Content: core.InterruptSignal})
			return
		}
		a.logger.Error("anthropic streaming failed", "error", err)
		a.send(ctx, core.Frame{Role: core.RoleServer, Type: core.FrameError, Content: err.Error()})
		return
	}

	a.send(ctx, core.Frame{Role: core.RoleAssistant, Type: core.FrameMessage, End: true})
	a.send(ctx, core.Frame{Role: core.RoleServer, Type: core.FrameStatus, Complete: true})
}

func (a *Adapter) drainStale() {
	for {
		select {
		case <-a.out:
		default:
			return
		}
	}
}

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
