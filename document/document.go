// Package document ships a minimal DocumentProcessor used to wire the
// orchestrator's file-chat path. Real deployments plug OCR / conversion
// pipelines behind the same interface; those internals are out of scope here.
package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatmesh/chatmesh/core"
	"github.com/chatmesh/chatmesh/logging"
)

// ErrEmptyFile indicates the request carried no file bytes.
var ErrEmptyFile = errors.New("empty file")

// Passthrough is a DocumentProcessor that validates the request and returns
// an accepted status without interpreting the file contents.
type Passthrough struct {
	logger logging.Logger
}

var _ core.DocumentProcessor = (*Passthrough)(nil)

// Options configure a Passthrough processor.
type Options struct {
	Logger logging.Logger
}

// NewPassthrough constructs the processor.
func NewPassthrough(optFns ...func(o *Options)) *Passthrough {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Passthrough{logger: opts.Logger}
}

// Process implements core.DocumentProcessor.
func (p *Passthrough) Process(ctx context.Context, req core.FileRequest) (core.FileResult, error) {
	if err := ctx.Err(); err != nil {
		return core.FileResult{}, err
	}
	if len(req.FileBytes) == 0 {
		return core.FileResult{}, fmt.Errorf("%w: %s", ErrEmptyFile, req.Filename)
	}

	p.logger.Info("file chat accepted", "filename", req.Filename, "bytes", len(req.FileBytes), "turn_id", req.TurnID)
	return core.FileResult{
		TurnID:  req.TurnID,
		Status:  "accepted",
		Content: fmt.Sprintf("%s (%d bytes)", req.Filename, len(req.FileBytes)),
	}, nil
}
