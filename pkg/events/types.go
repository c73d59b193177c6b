package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	SessionStarted    EventType = "session.started"
	SessionStopped    EventType = "session.stopped"
	SegmentsAppended  EventType = "segments.appended"
	SpeakerRegistered EventType = "speaker.registered"
	ExportCompleted   EventType = "export.completed"
	SystemError       EventType = "error"
	WebhookTest       EventType = "webhook.test"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionStartedData is the payload for session.started events.
type SessionStartedData struct {
	SessionName string `json:"session_name"`
	Language    string `json:"language,omitempty"`
}

// SessionStoppedData is the payload for session.stopped events.
type SessionStoppedData struct {
	SessionName  string  `json:"session_name"`
	SegmentCount int     `json:"segment_count"`
	DurationSec  float64 `json:"duration_sec"`
}

// Segment represents a timed, attributed span of transcribed speech.
type Segment struct {
	SpeakerID  string  `json:"speaker_id"`
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float32 `json:"confidence"`
}

// SegmentsAppendedData is the payload for segments.appended events.
type SegmentsAppendedData struct {
	Segments []Segment `json:"segments"`
}

// SpeakerRegisteredData is the payload for speaker.registered events.
type SpeakerRegisteredData struct {
	Name        string `json:"name"`
	SampleCount int    `json:"sample_count"`
}

// ExportCompletedData is the payload for export.completed events.
type ExportCompletedData struct {
	Format   string `json:"format"`
	Filename string `json:"filename"`
}

// SystemErrorData is the payload for error events.
type SystemErrorData struct {
	Message string `json:"message"`
}

// WebhookTestData is the payload for webhook.test events.
type WebhookTestData struct {
	WebhookID string `json:"webhook_id"`
	Message   string `json:"message"`
}
