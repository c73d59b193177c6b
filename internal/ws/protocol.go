// Package ws implements the realtime JSON protocol: the connection
// registry, session broadcast fanout, and the message dispatch loop.
package ws

import "fmt"

// MessageType enumerates the wire message types. Client and server
// types share one namespace; the dispatch table decides which are
// accepted inbound.
type MessageType string

// Client to server.
const (
	TypeStartSession     MessageType = "start_session"
	TypeJoinSession      MessageType = "join_session"
	TypeAudioData        MessageType = "audio_data"
	TypeStopSession      MessageType = "stop_session"
	TypeAddSpeaker       MessageType = "add_speaker"
	TypeExportTranscript MessageType = "export_transcript"
)

// Server to client.
const (
	TypeSessionStarted MessageType = "session_started"
	TypeSessionJoined  MessageType = "session_joined"
	TypeNewSegments    MessageType = "new_segments"
	TypeSessionStopped MessageType = "session_stopped"
	TypeSpeakerAdded   MessageType = "speaker_added"
	TypeExportReady    MessageType = "export_ready"
	TypeError          MessageType = "error"
)

// ClientMessage is the superset of all inbound message fields. The
// dispatch handler validates the fields its type requires.
type ClientMessage struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id,omitempty"`
	SessionName string      `json:"session_name,omitempty"`
	Language    string      `json:"language,omitempty"`
	AudioData   string      `json:"audio_data,omitempty"`
	AudioSample string      `json:"audio_sample,omitempty"`
	SampleRate  int         `json:"sample_rate,omitempty"`
	SpeakerName string      `json:"speaker_name,omitempty"`
	Format      string      `json:"format,omitempty"`
	Template    string      `json:"template,omitempty"`
}

// SegmentPayload is the wire form of one transcript segment.
type SegmentPayload struct {
	SpeakerID  string  `json:"speaker_id"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
}

// SessionStartedMessage acknowledges a start_session request.
type SessionStartedMessage struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	SessionName string      `json:"session_name"`
}

// SessionJoinedMessage acknowledges a join_session request, replaying
// the transcript so far.
type SessionJoinedMessage struct {
	Type        MessageType      `json:"type"`
	SessionID   string           `json:"session_id"`
	SessionName string           `json:"session_name"`
	Segments    []SegmentPayload `json:"segments"`
}

// NewSegmentsMessage is broadcast to every session participant when a
// chunk yields segments.
type NewSegmentsMessage struct {
	Type      MessageType      `json:"type"`
	SessionID string           `json:"session_id"`
	Segments  []SegmentPayload `json:"segments"`
}

// SessionStoppedMessage is broadcast when a session completes.
type SessionStoppedMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

// SpeakerAddedMessage acknowledges an add_speaker request.
type SpeakerAddedMessage struct {
	Type        MessageType `json:"type"`
	SpeakerID   string      `json:"speaker_id"`
	SpeakerName string      `json:"speaker_name"`
}

// ExportReadyMessage acknowledges an export_transcript request.
type ExportReadyMessage struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Format      string      `json:"format"`
	DownloadURL string      `json:"download_url"`
}

// ErrorMessage is a unicast error reply. The connection stays open.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// NewError builds an error reply.
func NewError(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: msg}
}

// UnknownTypeError reports an inbound message whose type is not in the
// dispatch table.
type UnknownTypeError struct {
	Type MessageType
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type: %s", e.Type)
}
