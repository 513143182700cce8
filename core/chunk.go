package core

import "github.com/google/uuid"

// Role identifies the logical author of a streamed chunk.
type Role string

const (
	// RoleAssistant marks content produced by a model or engine.
	RoleAssistant Role = "assistant"
	// RoleServer marks orchestration-level signals (path, stopped, errors).
	RoleServer Role = "server"
	// RoleSystem marks system-authored content such as seeded instructions.
	RoleSystem Role = "system"
	// RoleUser marks caller-authored content (history entries, input frames).
	RoleUser Role = "user"
)

// Kind classifies a chunk within the normalized output protocol.
type Kind string

const (
	// KindMessage carries a text delta or a start/end framing marker.
	KindMessage Kind = "message"
	// KindPath announces which back-end is serving the turn.
	KindPath Kind = "path"
	// KindStopped reports cooperative cancellation of the turn.
	KindStopped Kind = "stopped"
	// KindError reports a per-turn failure; treated as terminal by callers.
	KindError Kind = "error"
)

// Backend names used as the content of KindPath chunks.
const (
	BackendEngine = "engine"
	BackendHTTP   = "http"
)

// Chunk is one unit of the normalized streaming protocol shared by both
// back-ends. For every turn exactly one Start chunk precedes any content and
// exactly one terminal chunk (End marker, stopped, or error) follows it.
// Callers rely on this framing to close their own UI state.
type Chunk struct {
	Role    Role   `json:"role"`
	Kind    Kind   `json:"kind"`
	Content string `json:"content,omitempty"`
	Start   bool   `json:"start,omitempty"`
	End     bool   `json:"end,omitempty"`
	TurnID  string `json:"turn_id,omitempty"`
	Origin  string `json:"origin,omitempty"`
}

// NewStartChunk opens the output framing for a turn.
func NewStartChunk(turnID string) Chunk {
	return Chunk{Role: RoleAssistant, Kind: KindMessage, Start: true, TurnID: turnID}
}

// NewEndChunk closes the output framing for a turn.
func NewEndChunk(turnID string) Chunk {
	return Chunk{Role: RoleAssistant, Kind: KindMessage, End: true, TurnID: turnID}
}

// NewMessageChunk wraps a single text delta.
func NewMessageChunk(turnID, delta string) Chunk {
	return Chunk{Role: RoleAssistant, Kind: KindMessage, Content: delta, TurnID: turnID}
}

// NewPathChunk announces the back-end serving the turn (BackendEngine or
// BackendHTTP). Informational only; protocol correctness does not depend on it.
func NewPathChunk(turnID, backend string) Chunk {
	return Chunk{Role: RoleServer, Kind: KindPath, Content: backend, TurnID: turnID}
}

// NewStoppedChunk reports cooperative cancellation. Cancellation is never an
// error.
func NewStoppedChunk(turnID string) Chunk {
	return Chunk{Role: RoleServer, Kind: KindStopped, TurnID: turnID}
}

// NewErrorChunk reports a per-turn failure with its origin ("engine" or
// "http"). An error chunk is implicitly terminal.
func NewErrorChunk(turnID, origin, message string) Chunk {
	return Chunk{Role: RoleServer, Kind: KindError, Content: message, TurnID: turnID, Origin: origin}
}

// IsTerminal reports whether this chunk ends the stream for its turn.
func (c Chunk) IsTerminal() bool {
	return c.End || c.Kind == KindStopped || c.Kind == KindError
}

// NewID generates a unique identifier for turns and frames.
func NewID() string { return uuid.NewString() }
