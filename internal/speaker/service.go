// Package speaker manages known-speaker profiles: enrollment from
// audio samples, persistence, and the in-memory match registry.
package speaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/talkscribe/talkscribe/internal/audio"
	"github.com/talkscribe/talkscribe/internal/identify"
	"github.com/talkscribe/talkscribe/internal/speech/engine"
	"github.com/talkscribe/talkscribe/internal/store"
	"github.com/talkscribe/talkscribe/pkg/events"
)

// ErrNoEmbedding is returned when the extractor cannot produce a voice
// embedding from the enrollment sample.
var ErrNoEmbedding = errors.New("could not extract speaker embedding from sample")

// ErrSpeakerNotFound is returned for operations on unknown speakers.
var ErrSpeakerNotFound = errors.New("speaker not found")

// Store is the persistence surface the service needs, satisfied by
// store.SpeakerRepository.
type Store interface {
	GetByName(ctx context.Context, name string) (*store.SpeakerProfile, error)
	ListAll(ctx context.Context) ([]store.SpeakerProfile, error)
	Upsert(ctx context.Context, p *store.SpeakerProfile) error
	Delete(ctx context.Context, name string) error
}

// Service enrolls and manages speaker profiles. The in-memory registry
// is kept in lockstep with the store.
type Service struct {
	repo       Store
	embedder   engine.EmbeddingExtractor
	registry   *identify.Registry
	publisher  *events.Publisher
	sampleRate int
}

// NewService creates a speaker service. The embedder may be nil when
// no extractor sidecar is configured; enrollment from audio then fails
// with ErrNoEmbedding.
func NewService(repo Store, embedder engine.EmbeddingExtractor, registry *identify.Registry, pub *events.Publisher, sampleRate int) *Service {
	return &Service{
		repo:       repo,
		embedder:   embedder,
		registry:   registry,
		publisher:  pub,
		sampleRate: sampleRate,
	}
}

// WarmLoad populates the match registry from every stored profile.
// Called once at startup.
func (s *Service) WarmLoad(ctx context.Context) error {
	profiles, err := s.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load speaker profiles: %w", err)
	}
	for _, p := range profiles {
		s.registry.Register(p.Name, p.VoiceEmbedding)
	}
	slog.InfoContext(ctx, "speaker registry loaded", slog.Int("profiles", len(profiles)))
	return nil
}

// Enroll extracts an embedding from a raw PCM16 sample, persists the
// profile, and registers it for identification. An existing profile
// with the same name is replaced.
func (s *Service) Enroll(ctx context.Context, name string, raw []byte, sampleRate int) (*store.SpeakerProfile, error) {
	if name == "" {
		return nil, errors.New("speaker name is required")
	}
	if len(raw) == 0 {
		return nil, errors.New("audio sample is required")
	}
	if s.embedder == nil {
		return nil, ErrNoEmbedding
	}

	samples := audio.DecodePCM16(raw)
	if sampleRate != s.sampleRate {
		resampled, err := audio.Resample(samples, sampleRate, s.sampleRate)
		if err != nil {
			return nil, fmt.Errorf("resample sample: %w", err)
		}
		samples = resampled
	}

	embedding, err := s.embedder.Embed(ctx, samples, s.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("extract embedding: %w", err)
	}
	if len(embedding) == 0 {
		return nil, ErrNoEmbedding
	}

	profile := &store.SpeakerProfile{
		Name:           name,
		VoiceEmbedding: embedding,
		SampleCount:    1,
	}
	if err := s.repo.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("persist speaker profile: %w", err)
	}

	stored, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	s.registry.Register(name, embedding)
	slog.InfoContext(ctx, "speaker enrolled", slog.String("name", name))
	if s.publisher != nil {
		if err := s.publisher.Emit(ctx, events.SpeakerRegistered, "", events.SpeakerRegisteredData{
			Name:        name,
			SampleCount: stored.SampleCount,
		}); err != nil {
			slog.WarnContext(ctx, "event publish failed", slog.String("error", err.Error()))
		}
	}
	return stored, nil
}

// List returns all stored speaker profiles.
func (s *Service) List(ctx context.Context) ([]store.SpeakerProfile, error) {
	return s.repo.ListAll(ctx)
}

// Get returns a speaker profile by name.
func (s *Service) Get(ctx context.Context, name string) (*store.SpeakerProfile, error) {
	p, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSpeakerNotFound
		}
		return nil, err
	}
	return p, nil
}

// Delete removes a speaker profile and its registry entry.
func (s *Service) Delete(ctx context.Context, name string) error {
	if _, err := s.repo.GetByName(ctx, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSpeakerNotFound
		}
		return err
	}
	if err := s.repo.Delete(ctx, name); err != nil {
		return err
	}
	s.registry.Remove(name)
	return nil
}
