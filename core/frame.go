package core

import "context"

// FrameType classifies a frame exchanged with an engine adapter.
type FrameType string

const (
	// FrameMessage carries conversational content or input framing markers.
	FrameMessage FrameType = "message"
	// FrameStatus carries engine-internal signals (completion, interrupt).
	FrameStatus FrameType = "status"
	// FrameError reports an engine-side failure for the current turn.
	FrameError FrameType = "error"
)

// InterruptSignal is the content of a status frame requesting that the engine
// abort its in-flight generation.
const InterruptSignal = "interrupt"

// Frame is one unit of the duplex engine adapter protocol. Input frames wrap
// the user turn between Start and End markers; output frames mirror the chunk
// shape plus engine-internal sentinels. The coordinator owns output framing,
// so engine Start/End markers are never forwarded to callers as-is.
type Frame struct {
	Role     Role      `json:"role"`
	Type     FrameType `json:"type"`
	Content  string    `json:"content,omitempty"`
	Image    string    `json:"image,omitempty"` // base64 payload, input only
	Start    bool      `json:"start,omitempty"`
	End      bool      `json:"end,omitempty"`
	Complete bool      `json:"complete,omitempty"` // engine completion sentinel
}

// NewInputStartFrame opens the input framing around one user turn.
func NewInputStartFrame() Frame {
	return Frame{Role: RoleUser, Type: FrameMessage, Start: true}
}

// NewInputTextFrame carries the turn's text.
func NewInputTextFrame(text string) Frame {
	return Frame{Role: RoleUser, Type: FrameMessage, Content: text}
}

// NewInputImageFrame carries an optional base64-encoded image.
func NewInputImageFrame(data string) Frame {
	return Frame{Role: RoleUser, Type: FrameMessage, Image: data}
}

// NewInputEndFrame closes the input framing; adapters treat it as the signal
// to begin generation.
func NewInputEndFrame() Frame {
	return Frame{Role: RoleUser, Type: FrameMessage, End: true}
}

// NewInterruptFrame asks the engine to abandon the in-flight generation.
func NewInterruptFrame() Frame {
	return Frame{Role: RoleSystem, Type: FrameStatus, Content: InterruptSignal}
}

// EngineAdapter is the contract for the agentic back-end. Implementations
// accept input frames, expose an ordered output frame stream, and support an
// out-of-band interrupt. Adapters own their engine's lifecycle; the
// coordinator only speaks the frame protocol.
type EngineAdapter interface {
	// Input delivers one frame to the engine. Implementations must not block
	// indefinitely once ctx is cancelled.
	Input(ctx context.Context, f Frame) error

	// Output returns the engine's ordered output stream. Receiving from a
	// closed channel means the engine has shut down.
	Output() <-chan Frame

	// Interrupt aborts the in-flight generation, if any. Idempotent.
	Interrupt()
}
