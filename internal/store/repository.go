package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pitabwire/frame/datastore/pool"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// StorageError marks data that was produced and delivered to clients
// but could not be persisted. Callers should log it rather than fail
// the originating request.
type StorageError struct {
	SessionID string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store segments for session %s: %v", e.SessionID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// SessionRepository provides CRUD operations for sessions and their
// segments.
type SessionRepository struct {
	pool pool.Pool
}

// NewSessionRepository creates a session repository.
func NewSessionRepository(pool pool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// Create persists a new session.
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	return r.db(ctx, false).Create(s).Error
}

// GetByID returns a session by ID, without its segments.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.db(ctx, true).Where("id = ?", id).First(&s).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// GetWithSegments returns a session with its segments ordered by start
// time.
func (r *SessionRepository) GetWithSegments(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.db(ctx, true).
		Preload("Segments", func(db *gorm.DB) *gorm.DB {
			return db.Order("start_time ASC, created_at ASC")
		}).
		Where("id = ?", id).First(&s).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// List returns sessions ordered newest first.
func (r *SessionRepository) List(ctx context.Context, limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	var sessions []Session
	err := r.db(ctx, true).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&sessions).Error
	return sessions, err
}

// Update persists changes to a session.
func (r *SessionRepository) Update(ctx context.Context, s *Session) error {
	return r.db(ctx, false).Save(s).Error
}

// Delete removes a session and its segments.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	db := r.db(ctx, false)
	if err := db.Where("session_id = ?", id).Delete(&Segment{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&Session{}).Error
}

// AppendSegments persists a batch of segments for a session in one
// insert. An empty batch is a no-op.
func (r *SessionRepository) AppendSegments(ctx context.Context, segments []Segment) error {
	if len(segments) == 0 {
		return nil
	}
	return r.db(ctx, false).Create(&segments).Error
}

// ListSegments returns all segments of a session ordered by start time.
func (r *SessionRepository) ListSegments(ctx context.Context, sessionID string) ([]Segment, error) {
	var segments []Segment
	err := r.db(ctx, true).
		Where("session_id = ?", sessionID).
		Order("start_time ASC, created_at ASC").
		Find(&segments).Error
	return segments, err
}

// SpeakerRepository provides CRUD operations for speaker profiles.
type SpeakerRepository struct {
	pool pool.Pool
}

// NewSpeakerRepository creates a speaker repository.
func NewSpeakerRepository(pool pool.Pool) *SpeakerRepository {
	return &SpeakerRepository{pool: pool}
}

func (r *SpeakerRepository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// Create persists a new speaker profile.
func (r *SpeakerRepository) Create(ctx context.Context, p *SpeakerProfile) error {
	return r.db(ctx, false).Create(p).Error
}

// GetByName returns the profile registered under a speaker name.
func (r *SpeakerRepository) GetByName(ctx context.Context, name string) (*SpeakerProfile, error) {
	var p SpeakerProfile
	err := r.db(ctx, true).Where("name = ?", name).First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// ListAll returns every speaker profile ordered by name.
func (r *SpeakerRepository) ListAll(ctx context.Context) ([]SpeakerProfile, error) {
	var profiles []SpeakerProfile
	err := r.db(ctx, true).Order("name ASC").Find(&profiles).Error
	return profiles, err
}

// Upsert persists a profile, replacing any existing profile with the
// same name.
func (r *SpeakerRepository) Upsert(ctx context.Context, p *SpeakerProfile) error {
	existing, err := r.GetByName(ctx, p.Name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return r.Create(ctx, p)
		}
		return err
	}
	existing.VoiceEmbedding = p.VoiceEmbedding
	existing.SampleCount = p.SampleCount
	return r.db(ctx, false).Save(existing).Error
}

// Delete removes a speaker profile by name.
func (r *SpeakerRepository) Delete(ctx context.Context, name string) error {
	return r.db(ctx, false).Where("name = ?", name).Delete(&SpeakerProfile{}).Error
}
