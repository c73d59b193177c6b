// Package pipeline turns raw PCM16 audio chunks into speaker-attributed
// transcript segments.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/talkscribe/talkscribe/internal/align"
	"github.com/talkscribe/talkscribe/internal/audio"
	"github.com/talkscribe/talkscribe/internal/identify"
	"github.com/talkscribe/talkscribe/internal/speech/engine"
)

// TargetSampleRate is the rate every engine consumes. Chunks arriving
// at other rates are resampled on ingest.
const TargetSampleRate = 16000

// MinEmbedWindow is the shortest segment, in seconds, worth extracting
// a voice embedding from. Shorter windows produce unstable vectors.
const MinEmbedWindow = 0.5

// Pipeline runs decode, transcription, diarization, alignment, and
// speaker identification for one audio chunk at a time. It is safe for
// concurrent use across sessions; per-session chunk ordering is the
// caller's concern.
type Pipeline struct {
	transcriber engine.Transcriber
	diarizer    engine.Diarizer
	embedder    engine.EmbeddingExtractor
	speakers    *identify.Registry
	sampleRate  int
}

// New creates a pipeline. The transcriber is required; diarizer and
// embedder may be nil, in which case segments fall back to the default
// speaker label and identification is skipped.
func New(transcriber engine.Transcriber, diarizer engine.Diarizer, embedder engine.EmbeddingExtractor, speakers *identify.Registry) *Pipeline {
	return &Pipeline{
		transcriber: transcriber,
		diarizer:    diarizer,
		embedder:    embedder,
		speakers:    speakers,
		sampleRate:  TargetSampleRate,
	}
}

// ProcessChunk decodes a raw PCM16 chunk and returns the attributed
// segments it contains. Engine failures degrade rather than abort: a
// transcription failure yields no segments, a diarization failure
// yields transcript-only segments under the fallback speaker label.
// The returned error is reserved for malformed input.
func (p *Pipeline) ProcessChunk(ctx context.Context, raw []byte, srcRate int, language string) ([]align.Segment, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("pcm16 payload has odd length %d", len(raw))
	}

	samples := audio.DecodePCM16(raw)
	if srcRate != p.sampleRate {
		resampled, err := audio.Resample(samples, srcRate, p.sampleRate)
		if err != nil {
			return nil, fmt.Errorf("resample %d -> %d: %w", srcRate, p.sampleRate, err)
		}
		samples = resampled
	}

	spans, err := p.transcriber.Transcribe(ctx, samples, p.sampleRate, language)
	if err != nil {
		slog.ErrorContext(ctx, "transcription failed, dropping chunk",
			slog.String("error", err.Error()))
		return nil, nil
	}
	if len(spans) == 0 {
		return nil, nil
	}

	segments := p.attribute(ctx, samples, spans)
	p.identifySpeakers(ctx, samples, segments)
	return segments, nil
}

// attribute assigns speaker labels to transcript spans, falling back to
// the single default speaker when diarization is unavailable or fails.
func (p *Pipeline) attribute(ctx context.Context, samples []float32, spans []engine.TranscriptSpan) []align.Segment {
	if p.diarizer == nil {
		return align.AlignUndiarized(spans)
	}

	turns, err := p.diarizer.Diarize(ctx, samples, p.sampleRate)
	if err != nil {
		if !errors.Is(err, engine.ErrDiarizerUnavailable) {
			slog.WarnContext(ctx, "diarization failed, using fallback speaker",
				slog.String("error", err.Error()))
		}
		return align.AlignUndiarized(spans)
	}
	return align.Align(spans, turns)
}

// identifySpeakers replaces diarizer-local labels with registered
// speaker names where a segment's voice embedding clears the match
// threshold. Segments shorter than MinEmbedWindow keep their labels.
func (p *Pipeline) identifySpeakers(ctx context.Context, samples []float32, segments []align.Segment) {
	if p.embedder == nil || p.speakers == nil || p.speakers.Len() == 0 {
		return
	}

	for i := range segments {
		seg := &segments[i]
		if seg.End-seg.Start < MinEmbedWindow {
			continue
		}
		window := audio.Window(samples, p.sampleRate, seg.Start, seg.End)
		if len(window) == 0 {
			continue
		}

		embedding, err := p.embedder.Embed(ctx, window, p.sampleRate)
		if err != nil {
			slog.WarnContext(ctx, "embedding extraction failed",
				slog.String("speaker", seg.SpeakerID),
				slog.String("error", err.Error()))
			continue
		}
		if len(embedding) == 0 {
			continue
		}
		if name, ok := p.speakers.Identify(embedding); ok {
			seg.SpeakerID = name
		}
	}
}
