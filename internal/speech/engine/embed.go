package engine

import "context"

// EmbeddingExtractor produces a fixed-dimension voice embedding for an
// audio window. The dimension is fixed by the backing model and is not
// validated here beyond non-emptiness. A nil embedding with a nil error
// means the window was too short to embed.
type EmbeddingExtractor interface {
	Embed(ctx context.Context, samples []float32, sampleRate int) ([]float32, error)
	Close() error
}
