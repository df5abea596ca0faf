// Package engine wraps the speech-to-text model behind a uniform contract.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"transcription-service/internal/entity"
)

// ErrModelNotLoaded is returned by Transcribe when the engine was never initialized.
var ErrModelNotLoaded = errors.New("model not loaded")

// Request describes one transcription run.
type Request struct {
	InputPath string
	// Language is a hint; empty or "auto" asks the model to detect it.
	Language string
}

// Progress is emitted while segments are produced.
type Progress struct {
	Percent  float64
	Segments []entity.Segment
	Language string
}

type Result struct {
	Segments []entity.Segment
	Language string
}

// Engine runs a transcription. When progress is non-nil the engine sends
// zero or more messages on it and returns only after its last send; it never
// closes the channel.
type Engine interface {
	Transcribe(ctx context.Context, req Request, progress chan<- Progress) (Result, error)
	Loaded() bool
}

// ProcessingError is a stage-aware decode or inference failure.
type ProcessingError struct {
	Stage   string
	Message string
	Err     error
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// ModelLoadError aborts startup.
type ModelLoadError struct {
	Model string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// ComputeProgress maps a segment end to a percentage of total.
func ComputeProgress(segmentEnd, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Min(segmentEnd/total*100, 100.0)
}
