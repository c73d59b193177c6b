package engine

import "context"

// TranscriptSpan is a timed piece of transcribed text.
type TranscriptSpan struct {
	Start      float64
	End        float64
	Text       string
	Confidence float32
}

// ModelInfo describes an available model for a backend.
type ModelInfo struct {
	ID          string
	DisplayName string
	IsDefault   bool
}

// Transcriber converts audio samples into ordered transcript spans.
// Samples are mono float32 in [-1, 1]. Implementations return spans
// ordered by start time and never panic into the pipeline; a backend
// that produced nothing returns an empty slice.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) ([]TranscriptSpan, error)
	Models() []ModelInfo
	Close() error
}
