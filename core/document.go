package core

import "context"

// FileRequest describes one document submitted for processing alongside a
// prompt. The orchestrator forwards it verbatim; parsing and conversion are
// the processor's concern.
type FileRequest struct {
	FileBytes []byte `json:"-"`
	Filename  string `json:"filename"`
	Prompt    string `json:"prompt"`
	TurnID    string `json:"turn_id"`
}

// FileResult is the processor's status/result structure.
type FileResult struct {
	TurnID  string `json:"turn_id"`
	Status  string `json:"status"`
	Content string `json:"content,omitempty"`
}

// DocumentProcessor handles file-based chat requests. Implementations live
// outside this core; the document package ships a passthrough for wiring.
type DocumentProcessor interface {
	Process(ctx context.Context, req FileRequest) (FileResult, error)
}
