package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/chatmesh/chatmesh/core"
)

// ScriptedEngine is a fake engine adapter that records input frames and, when
// the input end marker arrives, replays a scripted sequence of output frames.
// Safe for use from multiple goroutines.
type ScriptedEngine struct {
	mu     sync.Mutex
	script []core.Frame
	inputs []core.Frame

	out        chan core.Frame
	interrupts atomic.Int32
	inputErr   error
	autoplay   bool
}

// NewScriptedEngine builds a fake adapter replaying the given frames after
// each completed input framing.
func NewScriptedEngine(script ...core.Frame) *ScriptedEngine {
	return &ScriptedEngine{script: script, out: make(chan core.Frame, 64), autoplay: true}
}

// SetInputError makes every subsequent Input call fail with err.
func (e *ScriptedEngine) SetInputError(err error) {
	e.mu.Lock()
	e.inputErr = err
	e.mu.Unlock()
}

// SetAutoplay disables replay-on-end when false; tests push frames manually
// via Push.
func (e *ScriptedEngine) SetAutoplay(v bool) {
	e.mu.Lock()
	e.autoplay = v
	e.mu.Unlock()
}

// Push emits one frame on the output channel.
func (e *ScriptedEngine) Push(f core.Frame) { e.out <- f }

// Inputs returns the frames received so far.
func (e *ScriptedEngine) Inputs() []core.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]core.Frame, len(e.inputs))
	copy(cp, e.inputs)
	return cp
}

// Interrupts returns how many times Interrupt was called.
func (e *ScriptedEngine) Interrupts() int { return int(e.interrupts.Load()) }

// Input implements core.EngineAdapter.
func (e *ScriptedEngine) Input(ctx context.Context, f core.Frame) error {
	e.mu.Lock()
	if e.inputErr != nil {
		err := e.inputErr
		e.mu.Unlock()
		return err
	}
	e.inputs = append(e.inputs, f)
	replay := f.End && e.autoplay
	script := e.script
	e.mu.Unlock()

	if replay {
		go func() {
			for _, sf := range script {
				select {
				case e.out <- sf:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return nil
}

// Output implements core.EngineAdapter.
func (e *ScriptedEngine) Output() <-chan core.Frame { return e.out }

// Interrupt implements core.EngineAdapter. Like the real adapters it emits a
// best-effort interrupted status frame so a blocked consumer wakes up.
func (e *ScriptedEngine) Interrupt() {
	e.interrupts.Add(1)
	select {
	case e.out <- core.Frame{Role: core.RoleServer, Type: core.FrameStatus, Content: core.InterruptSignal}:
	default:
	}
}
