// Package store persists sessions, transcript segments, and speaker
// profiles.
package store

import (
	"encoding/json"
	"time"

	"github.com/pitabwire/frame/data"
)

// Session statuses. Completed is terminal for the normal flow;
// administrative deletion can remove a session from any state.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Session is one logical transcription conversation.
type Session struct {
	data.BaseModel

	Name          string  `gorm:"type:varchar(255);not null;index:idx_sessions_name" json:"name"`
	Language      string  `gorm:"type:varchar(16)"                                   json:"language,omitempty"`
	Status        string  `gorm:"type:varchar(20);not null;default:'active';index:idx_sessions_status" json:"status"`
	TotalDuration float64 `gorm:"default:0"                                          json:"total_duration"`

	Segments []Segment `gorm:"foreignKey:SessionID" json:"segments,omitempty"`
}

func (Session) TableName() string { return "sessions" }

// Segment is a speaker-attributed transcribed span belonging to
// exactly one session. Segments are appended, never edited.
type Segment struct {
	data.BaseModel

	SessionID  string    `gorm:"type:varchar(50);not null;index:idx_segments_session" json:"session_id"`
	SpeakerID  string    `gorm:"type:varchar(255);not null"                           json:"speaker_id"`
	StartTime  float64   `gorm:"not null"                                             json:"start_time"`
	EndTime    float64   `gorm:"not null"                                             json:"end_time"`
	Text       string    `gorm:"type:text;not null"                                   json:"text"`
	Confidence float32   `gorm:"default:0"                                            json:"confidence"`
	Timestamp  time.Time `gorm:"not null"                                             json:"timestamp"`
}

func (Segment) TableName() string { return "segments" }

// SpeakerProfile holds a known speaker and their voice embedding.
// Name is the unique lookup key for identification.
type SpeakerProfile struct {
	data.BaseModel

	Name           string        `gorm:"type:varchar(255);not null;uniqueIndex:idx_speakers_name" json:"name"`
	VoiceEmbedding EmbeddingJSON `gorm:"type:jsonb;default:'[]'"                                  json:"voice_embedding"`
	SampleCount    int           `gorm:"default:0"                                                json:"sample_count"`
}

func (SpeakerProfile) TableName() string { return "speaker_profiles" }

// EmbeddingJSON stores a float vector as JSONB. The dimension is fixed
// by the embedding model and not validated here.
type EmbeddingJSON []float32

func (e EmbeddingJSON) Value() (interface{}, error) {
	return json.Marshal(e)
}

func (e *EmbeddingJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, e)
	case string:
		return json.Unmarshal([]byte(v), e)
	default:
		*e = EmbeddingJSON{}
		return nil
	}
}
