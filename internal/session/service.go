// Package session owns the session lifecycle: creation, segment
// append, and completion.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/talkscribe/talkscribe/internal/pipeline"
	"github.com/talkscribe/talkscribe/internal/store"
	"github.com/talkscribe/talkscribe/internal/ws"
	"github.com/talkscribe/talkscribe/pkg/events"
)

// ErrSessionNotFound is returned for operations on unknown sessions.
var ErrSessionNotFound = errors.New("session not found")

// Broadcaster fans session messages out to connected clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionID string, v any)
	ClearSession(sessionID string)
}

// Store is the persistence surface the service needs, satisfied by
// store.SessionRepository.
type Store interface {
	Create(ctx context.Context, s *store.Session) error
	GetByID(ctx context.Context, id string) (*store.Session, error)
	GetWithSegments(ctx context.Context, id string) (*store.Session, error)
	List(ctx context.Context, limit, offset int) ([]store.Session, error)
	Update(ctx context.Context, s *store.Session) error
	Delete(ctx context.Context, id string) error
	AppendSegments(ctx context.Context, segments []store.Segment) error
	ListSegments(ctx context.Context, sessionID string) ([]store.Segment, error)
}

// Service coordinates session state across the store, the ingest
// pipeline, the websocket fanout, and the event bus.
type Service struct {
	repo        Store
	pipeline    *pipeline.Pipeline
	broadcaster Broadcaster
	publisher   *events.Publisher
}

// NewService creates a session service. The publisher may be nil when
// eventing is not configured.
func NewService(repo Store, p *pipeline.Pipeline, b Broadcaster, pub *events.Publisher) *Service {
	return &Service{repo: repo, pipeline: p, broadcaster: b, publisher: pub}
}

// Start creates a new active session. An empty name gets a timestamped
// default.
func (s *Service) Start(ctx context.Context, name, language string) (*store.Session, error) {
	if name == "" {
		name = "Session_" + time.Now().Format("20060102_150405")
	}

	sess := &store.Session{
		Name:     name,
		Language: language,
		Status:   store.StatusActive,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	slog.InfoContext(ctx, "session started",
		slog.String("session_id", sess.ID),
		slog.String("name", name))
	s.emit(ctx, events.SessionStarted, sess.ID, events.SessionStartedData{
		SessionName: name,
		Language:    language,
	})
	return sess, nil
}

// Join validates that a session exists and returns it with its
// transcript so far.
func (s *Service) Join(ctx context.Context, sessionID string) (*store.Session, []store.Segment, error) {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}
	segments, err := s.repo.ListSegments(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return sess, segments, nil
}

// IngestAudio runs one audio chunk through the pipeline, persists the
// resulting segments, and broadcasts them to session participants in
// alignment order. Persistence failure is reported as a StorageError
// after the broadcast has gone out.
func (s *Service) IngestAudio(ctx context.Context, sessionID string, raw []byte, sampleRate int, language string) error {
	if _, err := s.repo.GetByID(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	segments, err := s.pipeline.ProcessChunk(ctx, raw, sampleRate, language)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]store.Segment, 0, len(segments))
	payloads := make([]ws.SegmentPayload, 0, len(segments))
	for _, seg := range segments {
		rows = append(rows, store.Segment{
			SessionID:  sessionID,
			SpeakerID:  seg.SpeakerID,
			StartTime:  seg.Start,
			EndTime:    seg.End,
			Text:       seg.Text,
			Confidence: seg.Confidence,
			Timestamp:  now,
		})
		payloads = append(payloads, ws.SegmentPayload{
			SpeakerID:  seg.SpeakerID,
			StartTime:  seg.Start,
			EndTime:    seg.End,
			Text:       seg.Text,
			Confidence: seg.Confidence,
		})
	}

	storeErr := s.repo.AppendSegments(ctx, rows)

	s.broadcaster.Broadcast(ctx, sessionID, ws.NewSegmentsMessage{
		Type:      ws.TypeNewSegments,
		SessionID: sessionID,
		Segments:  payloads,
	})
	s.emit(ctx, events.SegmentsAppended, sessionID, segmentsEventData(payloads))

	if storeErr != nil {
		slog.ErrorContext(ctx, "segment persistence failed",
			slog.String("session_id", sessionID),
			slog.String("error", storeErr.Error()))
		return &store.StorageError{SessionID: sessionID, Err: storeErr}
	}
	return nil
}

// Stop marks a session completed, notifies participants, and clears
// the broadcast group. Chunks arriving afterwards are still processed
// and persisted; they are just no longer broadcast.
func (s *Service) Stop(ctx context.Context, sessionID string) error {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	sess.Status = store.StatusCompleted
	if err := s.repo.Update(ctx, sess); err != nil {
		return fmt.Errorf("complete session: %w", err)
	}

	s.broadcaster.Broadcast(ctx, sessionID, ws.SessionStoppedMessage{
		Type:      ws.TypeSessionStopped,
		SessionID: sessionID,
	})
	s.broadcaster.ClearSession(sessionID)

	segments, _ := s.repo.ListSegments(ctx, sessionID)
	var duration float64
	for _, seg := range segments {
		if seg.EndTime > duration {
			duration = seg.EndTime
		}
	}

	slog.InfoContext(ctx, "session stopped",
		slog.String("session_id", sessionID),
		slog.Int("segments", len(segments)))
	s.emit(ctx, events.SessionStopped, sessionID, events.SessionStoppedData{
		SessionName:  sess.Name,
		SegmentCount: len(segments),
		DurationSec:  duration,
	})
	return nil
}

// List returns stored sessions, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]store.Session, error) {
	return s.repo.List(ctx, limit, offset)
}

// Get returns a session with its segments.
func (s *Service) Get(ctx context.Context, sessionID string) (*store.Session, error) {
	sess, err := s.repo.GetWithSegments(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// Delete removes a session and its segments.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.repo.GetByID(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	s.broadcaster.ClearSession(sessionID)
	return s.repo.Delete(ctx, sessionID)
}

func (s *Service) emit(ctx context.Context, et events.EventType, sessionID string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, et, sessionID, data); err != nil {
		slog.WarnContext(ctx, "event publish failed",
			slog.String("event_type", string(et)),
			slog.String("error", err.Error()))
	}
}

func segmentsEventData(payloads []ws.SegmentPayload) events.SegmentsAppendedData {
	out := events.SegmentsAppendedData{Segments: make([]events.Segment, 0, len(payloads))}
	for _, p := range payloads {
		out.Segments = append(out.Segments, events.Segment{
			SpeakerID:  p.SpeakerID,
			Text:       p.Text,
			StartTime:  p.StartTime,
			EndTime:    p.EndTime,
			Confidence: p.Confidence,
		})
	}
	return out
}
