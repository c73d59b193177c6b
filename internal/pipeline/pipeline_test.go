package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/talkscribe/talkscribe/internal/align"
	"github.com/talkscribe/talkscribe/internal/identify"
	"github.com/talkscribe/talkscribe/internal/speech/engine"
)

type fakeTranscriber struct {
	spans []engine.TranscriptSpan
	err   error
	got   struct {
		samples  int
		rate     int
		language string
	}
}

func (f *fakeTranscriber) Transcribe(_ context.Context, samples []float32, rate int, language string) ([]engine.TranscriptSpan, error) {
	f.got.samples = len(samples)
	f.got.rate = rate
	f.got.language = language
	return f.spans, f.err
}

func (f *fakeTranscriber) Models() []engine.ModelInfo { return nil }
func (f *fakeTranscriber) Close() error               { return nil }

type fakeDiarizer struct {
	turns []engine.Turn
	err   error
}

func (f *fakeDiarizer) Diarize(context.Context, []float32, int) ([]engine.Turn, error) {
	return f.turns, f.err
}

func (f *fakeDiarizer) Close() error { return nil }

type fakeEmbedder struct {
	embedding []float32
	err       error
	calls     int
}

func (f *fakeEmbedder) Embed(context.Context, []float32, int) ([]float32, error) {
	f.calls++
	return f.embedding, f.err
}

func (f *fakeEmbedder) Close() error { return nil }

// pcm16 builds a raw little-endian chunk of n zero samples.
func pcm16(n int) []byte { return make([]byte, n*2) }

func TestProcessChunkFullPath(t *testing.T) {
	transcriber := &fakeTranscriber{spans: []engine.TranscriptSpan{
		{Start: 0, End: 1.5, Text: "hello there"},
	}}
	diarizer := &fakeDiarizer{turns: []engine.Turn{
		{Start: 0, End: 2, Speaker: "SPEAKER_00"},
	}}
	embedder := &fakeEmbedder{embedding: []float32{1, 0}}
	speakers := identify.NewRegistry(0.8)
	speakers.Register("Alice", []float32{1, 0})

	p := New(transcriber, diarizer, embedder, speakers)
	segments, err := p.ProcessChunk(context.Background(), pcm16(TargetSampleRate*2), TargetSampleRate, "en")
	if err != nil {
		t.Fatalf("ProcessChunk: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(segments))
	}
	if segments[0].SpeakerID != "Alice" {
		t.Errorf("SpeakerID = %q, want Alice after identification", segments[0].SpeakerID)
	}
	if transcriber.got.language != "en" {
		t.Errorf("language hint = %q, want en", transcriber.got.language)
	}
}

func TestProcessChunkEmptyPayload(t *testing.T) {
	p := New(&fakeTranscriber{}, nil, nil, nil)
	segments, err := p.ProcessChunk(context.Background(), nil, TargetSampleRate, "")
	if err != nil {
		t.Fatalf("ProcessChunk: %v", err)
	}
	if segments != nil {
		t.Errorf("got %v, want nil for empty payload", segments)
	}
}

func TestProcessChunkOddLength(t *testing.T) {
	p := New(&fakeTranscriber{}, nil, nil, nil)
	if _, err := p.ProcessChunk(context.Background(), []byte{0, 0, 0}, TargetSampleRate, ""); err == nil {
		t.Fatal("expected an error for odd-length pcm16 payload")
	}
}

func TestProcessChunkTranscriptionFailureDegrades(t *testing.T) {
	p := New(&fakeTranscriber{err: errors.New("server down")}, nil, nil, nil)
	segments, err := p.ProcessChunk(context.Background(), pcm16(100), TargetSampleRate, "")
	if err != nil {
		t.Fatalf("ProcessChunk: %v", err)
	}
	if len(segments) != 0 {
		t.Errorf("got %d segments, want 0 when transcription fails", len(segments))
	}
}

func TestProcessChunkDiarizationFailureFallsBack(t *testing.T) {
	transcriber := &fakeTranscriber{spans: []engine.TranscriptSpan{
		{Start: 0, End: 1, Text: "hi"},
	}}
	p := New(transcriber, &fakeDiarizer{err: errors.New("boom")}, nil, nil)

	segments, err := p.ProcessChunk(context.Background(), pcm16(100), TargetSampleRate, "")
	if err != nil {
		t.Fatalf("ProcessChunk: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(segments))
	}
	if segments[0].SpeakerID != align.FallbackSpeaker {
		t.Errorf("SpeakerID = %q, want %q", segments[0].SpeakerID, align.FallbackSpeaker)
	}
	if segments[0].Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5", segments[0].Confidence)
	}
}

func TestProcessChunkDiarizerUnavailableSentinel(t *testing.T) {
	transcriber := &fakeTranscriber{spans: []engine.TranscriptSpan{
		{Start: 0, End: 1, Text: "hi"},
	}}
	p := New(transcriber, &fakeDiarizer{err: engine.ErrDiarizerUnavailable}, nil, nil)

	segments, err := p.ProcessChunk(context.Background(), pcm16(100), TargetSampleRate, "")
	if err != nil {
		t.Fatalf("ProcessChunk: %v", err)
	}
	if segments[0].SpeakerID != align.FallbackSpeaker {
		t.Errorf("SpeakerID = %q, want %q", segments[0].SpeakerID, align.FallbackSpeaker)
	}
}

func TestShortSegmentSkipsEmbedding(t *testing.T) {
	transcriber := &fakeTranscriber{spans: []engine.TranscriptSpan{
		{Start: 0, End: 0.3, Text: "uh"},
	}}
	diarizer := &fakeDiarizer{turns: []engine.Turn{{Start: 0, End: 1, Speaker: "SPEAKER_00"}}}
	embedder := &fakeEmbedder{embedding: []float32{1, 0}}
	speakers := identify.NewRegistry(0.8)
	speakers.Register("Alice", []float32{1, 0})

	p := New(transcriber, diarizer, embedder, speakers)
	segments, err := p.ProcessChunk(context.Background(), pcm16(TargetSampleRate), TargetSampleRate, "")
	if err != nil {
		t.Fatalf("ProcessChunk: %v", err)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder called %d times for a 0.3s segment, want 0", embedder.calls)
	}
	if segments[0].SpeakerID != "SPEAKER_00" {
		t.Errorf("SpeakerID = %q, want diarizer label preserved", segments[0].SpeakerID)
	}
}

func TestEmbeddingFailureKeepsLabel(t *testing.T) {
	transcriber := &fakeTranscriber{spans: []engine.TranscriptSpan{
		{Start: 0, End: 1, Text: "hello"},
	}}
	diarizer := &fakeDiarizer{turns: []engine.Turn{{Start: 0, End: 1, Speaker: "SPEAKER_01"}}}
	embedder := &fakeEmbedder{err: errors.New("sidecar down")}
	speakers := identify.NewRegistry(0.8)
	speakers.Register("Alice", []float32{1, 0})

	p := New(transcriber, diarizer, embedder, speakers)
	segments, err := p.ProcessChunk(context.Background(), pcm16(TargetSampleRate*2), TargetSampleRate, "")
	if err != nil {
		t.Fatalf("ProcessChunk: %v", err)
	}
	if segments[0].SpeakerID != "SPEAKER_01" {
		t.Errorf("SpeakerID = %q, want SPEAKER_01", segments[0].SpeakerID)
	}
}

func TestEmptyRegistrySkipsEmbedding(t *testing.T) {
	transcriber := &fakeTranscriber{spans: []engine.TranscriptSpan{
		{Start: 0, End: 1, Text: "hello"},
	}}
	embedder := &fakeEmbedder{embedding: []float32{1, 0}}
	p := New(transcriber, &fakeDiarizer{}, embedder, identify.NewRegistry(0.8))

	if _, err := p.ProcessChunk(context.Background(), pcm16(TargetSampleRate*2), TargetSampleRate, ""); err != nil {
		t.Fatalf("ProcessChunk: %v", err)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder called %d times with no registered speakers, want 0", embedder.calls)
	}
}

func TestProcessChunkResamples(t *testing.T) {
	transcriber := &fakeTranscriber{}
	p := New(transcriber, nil, nil, nil)

	// One second at 48 kHz should reach the transcriber at 16 kHz.
	if _, err := p.ProcessChunk(context.Background(), pcm16(48000), 48000, ""); err != nil {
		t.Fatalf("ProcessChunk: %v", err)
	}
	if transcriber.got.rate != TargetSampleRate {
		t.Errorf("transcriber rate = %d, want %d", transcriber.got.rate, TargetSampleRate)
	}
	if transcriber.got.samples < 15000 || transcriber.got.samples > 17000 {
		t.Errorf("resampled length = %d, want roughly 16000", transcriber.got.samples)
	}
}
