// Package chatmesh provides a high-level façade over the streaming chat
// orchestration core: turn registry, pooled connection manager, stream
// coordinator and orchestrator. Most applications interact with this package
// by:
//  1. Creating an Orchestrator via New() (optionally wiring an engine adapter
//     and a document processor)
//  2. Calling Start() and streaming turns through StreamChat
//  3. Cancelling in-flight turns with StopGeneration and shutting down with
//     Stop()
//
// The façade delegates everything to the orchestrator package while keeping
// setup ergonomics concise. Defaults are safe for local development: fallback
// completion endpoint and structured logging from config (env prefix
// CHATMESH), no engine adapter.
package chatmesh

import (
	"github.com/chatmesh/chatmesh/orchestrator"
)

// Options re-exports the orchestrator options for façade construction.
type Options = orchestrator.Options

// New creates an Orchestrator with the given overrides. Call Start before
// streaming.
func New(optFns ...func(o *Options)) *orchestrator.Orchestrator {
	return orchestrator.New(optFns...)
}
