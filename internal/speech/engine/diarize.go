package engine

import (
	"context"
	"errors"
)

// ErrDiarizerUnavailable is returned when no diarization backend is
// configured or the backend cannot be reached. The pipeline treats it
// as a degrade signal, not a failure.
var ErrDiarizerUnavailable = errors.New("diarizer unavailable")

// Turn is a diarization turn: a time interval attributed to one
// speaker label, independent of any transcribed text.
type Turn struct {
	Start   float64
	End     float64
	Speaker string
}

// Diarizer segments audio samples into speaker turns ordered by start
// time.
type Diarizer interface {
	Diarize(ctx context.Context, samples []float32, sampleRate int) ([]Turn, error)
	Close() error
}
