package ws

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pitabwire/frame/workerpool"
	"github.com/rs/xid"

	"github.com/talkscribe/talkscribe/internal/store"
)

// SessionService is the slice of the session layer the handler needs.
type SessionService interface {
	Start(ctx context.Context, name, language string) (*store.Session, error)
	Join(ctx context.Context, sessionID string) (*store.Session, []store.Segment, error)
	IngestAudio(ctx context.Context, sessionID string, raw []byte, sampleRate int, language string) error
	Stop(ctx context.Context, sessionID string) error
}

// SpeakerService enrolls speaker profiles from audio samples.
type SpeakerService interface {
	Enroll(ctx context.Context, name string, raw []byte, sampleRate int) (*store.SpeakerProfile, error)
}

// ExportService renders a session transcript to a downloadable file.
// An empty template name selects the default text template.
type ExportService interface {
	Export(ctx context.Context, sessionID, format, template string) (filename string, err error)
}

// Handler upgrades HTTP requests to websocket connections and runs the
// per-connection read loop. Model-invoking work goes through the
// shared worker pool so slow sidecars cannot starve the read loops.
type Handler struct {
	hub      *Hub
	sessions SessionService
	speakers SpeakerService
	exporter ExportService
	pool     workerpool.WorkerPool
	upgrader websocket.Upgrader

	dispatch map[MessageType]func(ctx context.Context, connID string, msg ClientMessage)
}

// NewHandler creates a websocket handler. The pool may be nil; work
// then runs inline on the read loop.
func NewHandler(hub *Hub, sessions SessionService, speakers SpeakerService, exporter ExportService, pool workerpool.WorkerPool) *Handler {
	h := &Handler{
		hub:      hub,
		sessions: sessions,
		speakers: speakers,
		exporter: exporter,
		pool:     pool,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	h.dispatch = map[MessageType]func(ctx context.Context, connID string, msg ClientMessage){
		TypeStartSession:     h.handleStartSession,
		TypeJoinSession:      h.handleJoinSession,
		TypeAudioData:        h.handleAudioData,
		TypeStopSession:      h.handleStopSession,
		TypeAddSpeaker:       h.handleAddSpeaker,
		TypeExportTranscript: h.handleExportTranscript,
	}
	return h
}

// ServeHTTP upgrades the request and runs the read loop until the
// client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	connID := xid.New().String()
	h.hub.Connect(connID, conn)
	defer h.hub.Disconnect(connID)

	slog.InfoContext(r.Context(), "client connected", slog.String("connection_id", connID))

	// The read loop owns the connection lifetime; handler work must not
	// outlive the server, so it runs on the request-independent
	// background context captured per message.
	ctx := context.WithoutCancel(r.Context())
	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.WarnContext(ctx, "client read error",
					slog.String("connection_id", connID),
					slog.String("error", err.Error()))
			}
			return
		}
		h.route(ctx, connID, msg)
	}
}

func (h *Handler) route(ctx context.Context, connID string, msg ClientMessage) {
	fn, ok := h.dispatch[msg.Type]
	if !ok {
		err := &UnknownTypeError{Type: msg.Type}
		h.hub.Send(ctx, connID, NewError(err.Error()))
		return
	}
	fn(ctx, connID, msg)
}

// submit runs fn on the worker pool, inline when no pool is wired.
func (h *Handler) submit(ctx context.Context, connID string, fn func()) {
	if h.pool == nil {
		fn()
		return
	}
	if err := h.pool.Submit(ctx, fn); err != nil {
		slog.WarnContext(ctx, "worker pool full",
			slog.String("connection_id", connID))
		h.hub.Send(ctx, connID, NewError("server busy, try again"))
	}
}

func (h *Handler) handleStartSession(ctx context.Context, connID string, msg ClientMessage) {
	sess, err := h.sessions.Start(ctx, msg.SessionName, msg.Language)
	if err != nil {
		slog.ErrorContext(ctx, "start session failed", slog.String("error", err.Error()))
		h.hub.Send(ctx, connID, NewError("failed to start session"))
		return
	}
	h.hub.Join(connID, sess.ID)
	h.hub.Send(ctx, connID, SessionStartedMessage{
		Type:        TypeSessionStarted,
		SessionID:   sess.ID,
		SessionName: sess.Name,
	})
}

func (h *Handler) handleJoinSession(ctx context.Context, connID string, msg ClientMessage) {
	if msg.SessionID == "" {
		h.hub.Send(ctx, connID, NewError("session_id is required"))
		return
	}
	sess, segments, err := h.sessions.Join(ctx, msg.SessionID)
	if err != nil {
		h.hub.Send(ctx, connID, NewError(err.Error()))
		return
	}
	h.hub.Join(connID, sess.ID)

	payloads := make([]SegmentPayload, 0, len(segments))
	for _, seg := range segments {
		payloads = append(payloads, SegmentPayload{
			SpeakerID:  seg.SpeakerID,
			StartTime:  seg.StartTime,
			EndTime:    seg.EndTime,
			Text:       seg.Text,
			Confidence: seg.Confidence,
		})
	}
	h.hub.Send(ctx, connID, SessionJoinedMessage{
		Type:        TypeSessionJoined,
		SessionID:   sess.ID,
		SessionName: sess.Name,
		Segments:    payloads,
	})
}

func (h *Handler) handleAudioData(ctx context.Context, connID string, msg ClientMessage) {
	if msg.SessionID == "" {
		h.hub.Send(ctx, connID, NewError("session_id is required"))
		return
	}
	if msg.AudioData == "" {
		h.hub.Send(ctx, connID, NewError("audio_data is required"))
		return
	}
	raw, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil {
		h.hub.Send(ctx, connID, NewError("audio_data is not valid base64"))
		return
	}
	sampleRate := msg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	h.submit(ctx, connID, func() {
		err := h.sessions.IngestAudio(ctx, msg.SessionID, raw, sampleRate, msg.Language)
		if err == nil {
			return
		}
		var storageErr *store.StorageError
		if errors.As(err, &storageErr) {
			// Segments reached the clients; loss is persistence-only.
			return
		}
		slog.ErrorContext(ctx, "audio chunk failed",
			slog.String("session_id", msg.SessionID),
			slog.String("error", err.Error()))
		h.hub.Send(ctx, connID, NewError("failed to process audio"))
	})
}

func (h *Handler) handleStopSession(ctx context.Context, connID string, msg ClientMessage) {
	if msg.SessionID == "" {
		h.hub.Send(ctx, connID, NewError("session_id is required"))
		return
	}
	if err := h.sessions.Stop(ctx, msg.SessionID); err != nil {
		h.hub.Send(ctx, connID, NewError(err.Error()))
	}
}

func (h *Handler) handleAddSpeaker(ctx context.Context, connID string, msg ClientMessage) {
	if msg.SpeakerName == "" || msg.AudioSample == "" {
		h.hub.Send(ctx, connID, NewError("speaker_name and audio_sample are required"))
		return
	}
	raw, err := base64.StdEncoding.DecodeString(msg.AudioSample)
	if err != nil {
		h.hub.Send(ctx, connID, NewError("audio_sample is not valid base64"))
		return
	}
	sampleRate := msg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	h.submit(ctx, connID, func() {
		profile, err := h.speakers.Enroll(ctx, msg.SpeakerName, raw, sampleRate)
		if err != nil {
			h.hub.Send(ctx, connID, NewError(err.Error()))
			return
		}
		h.hub.Send(ctx, connID, SpeakerAddedMessage{
			Type:        TypeSpeakerAdded,
			SpeakerID:   profile.ID,
			SpeakerName: profile.Name,
		})
	})
}

func (h *Handler) handleExportTranscript(ctx context.Context, connID string, msg ClientMessage) {
	if msg.SessionID == "" {
		h.hub.Send(ctx, connID, NewError("session_id is required"))
		return
	}
	format := msg.Format
	if format == "" {
		format = "txt"
	}

	h.submit(ctx, connID, func() {
		filename, err := h.exporter.Export(ctx, msg.SessionID, format, msg.Template)
		if err != nil {
			h.hub.Send(ctx, connID, NewError(err.Error()))
			return
		}
		h.hub.Send(ctx, connID, ExportReadyMessage{
			Type:        TypeExportReady,
			SessionID:   msg.SessionID,
			Format:      format,
			DownloadURL: "/api/v1/downloads/" + filename,
		})
	})
}
