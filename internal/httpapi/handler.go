// Package httpapi provides the REST surface: session management,
// speaker enrollment, transcript export, and webhook registration.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/talkscribe/talkscribe/internal/export"
	"github.com/talkscribe/talkscribe/internal/session"
	"github.com/talkscribe/talkscribe/internal/speaker"
	"github.com/talkscribe/talkscribe/internal/store"
	"github.com/talkscribe/talkscribe/pkg/events"
	"github.com/talkscribe/talkscribe/pkg/urlvalidation"
	"github.com/talkscribe/talkscribe/pkg/webhook"
)

const maxRequestBodySize = 16 << 20 // audio uploads ride in JSON bodies

// Handler provides the REST endpoints.
type Handler struct {
	sessions *session.Service
	speakers *speaker.Service
	exporter *export.Service
	webhooks *webhook.Repository
}

// NewHandler creates the REST handler. The webhook repository may be
// nil when webhooks are not configured; those routes then 404.
func NewHandler(sessions *session.Service, speakers *speaker.Service, exporter *export.Service, webhooks *webhook.Repository) *Handler {
	return &Handler{sessions: sessions, speakers: speakers, exporter: exporter, webhooks: webhooks}
}

// RegisterRoutes registers all REST routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("GET /api/v1/sessions", h.ListSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.DeleteSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/export", h.ExportSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/audio", h.UploadAudio)
	mux.HandleFunc("GET /api/v1/downloads/{file}", h.Download)

	mux.HandleFunc("GET /api/v1/speakers", h.ListSpeakers)
	mux.HandleFunc("POST /api/v1/speakers", h.CreateSpeaker)
	mux.HandleFunc("GET /api/v1/speakers/{name}", h.GetSpeaker)
	mux.HandleFunc("DELETE /api/v1/speakers/{name}", h.DeleteSpeaker)

	if h.webhooks != nil {
		mux.HandleFunc("POST /api/v1/webhooks", h.CreateWebhook)
		mux.HandleFunc("GET /api/v1/webhooks", h.ListWebhooks)
		mux.HandleFunc("DELETE /api/v1/webhooks/{id}", h.DeleteWebhook)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListSessions handles GET /api/v1/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	sessions, err := h.sessions.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// DeleteSession handles DELETE /api/v1/sessions/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	err := h.sessions.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "session deleted"})
}

// ExportSession handles POST /api/v1/sessions/{id}/export.
func (h *Handler) ExportSession(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "txt"
	}

	filename, err := h.exporter.Export(r.Context(), r.PathValue("id"), format, r.URL.Query().Get("template"))
	if err != nil {
		switch {
		case errors.Is(err, export.ErrUnsupportedFormat), errors.Is(err, export.ErrUnknownTemplate):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to export session")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"filename":     filename,
		"format":       format,
		"download_url": "/api/v1/downloads/" + filename,
	})
}

// Download handles GET /api/v1/downloads/{file}.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	f, err := h.exporter.Open(r.PathValue("file"))
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+r.PathValue("file")+"\"")
	io.Copy(w, f)
}

type uploadAudioRequest struct {
	AudioData  string `json:"audio_data"`
	SampleRate int    `json:"sample_rate"`
	Language   string `json:"language,omitempty"`
}

// UploadAudio handles POST /api/v1/sessions/{id}/audio, the batch
// ingest path sharing the realtime pipeline.
func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req uploadAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AudioData == "" {
		writeError(w, http.StatusBadRequest, "audio_data is required")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio_data is not valid base64")
		return
	}
	sampleRate := req.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	err = h.sessions.IngestAudio(r.Context(), r.PathValue("id"), raw, sampleRate, req.Language)
	if err != nil {
		var storageErr *store.StorageError
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
			return
		case errors.As(err, &storageErr):
			// Segments were broadcast; only persistence failed.
		default:
			writeError(w, http.StatusInternalServerError, "failed to process audio")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "audio processed"})
}

// ListSpeakers handles GET /api/v1/speakers.
func (h *Handler) ListSpeakers(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.speakers.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list speakers")
		return
	}
	if profiles == nil {
		profiles = []store.SpeakerProfile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"speakers": profiles})
}

type createSpeakerRequest struct {
	Name        string `json:"name"`
	AudioSample string `json:"audio_sample"`
	SampleRate  int    `json:"sample_rate"`
}

// CreateSpeaker handles POST /api/v1/speakers.
func (h *Handler) CreateSpeaker(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req createSpeakerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.AudioSample == "" {
		writeError(w, http.StatusBadRequest, "name and audio_sample are required")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.AudioSample)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio_sample is not valid base64")
		return
	}
	sampleRate := req.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	profile, err := h.speakers.Enroll(r.Context(), req.Name, raw, sampleRate)
	if err != nil {
		if errors.Is(err, speaker.ErrNoEmbedding) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create speaker")
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

// GetSpeaker handles GET /api/v1/speakers/{name}.
func (h *Handler) GetSpeaker(w http.ResponseWriter, r *http.Request) {
	profile, err := h.speakers.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, speaker.ErrSpeakerNotFound) {
			writeError(w, http.StatusNotFound, "speaker not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch speaker")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// DeleteSpeaker handles DELETE /api/v1/speakers/{name}.
func (h *Handler) DeleteSpeaker(w http.ResponseWriter, r *http.Request) {
	err := h.speakers.Delete(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, speaker.ErrSpeakerNotFound) {
			writeError(w, http.StatusNotFound, "speaker not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete speaker")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "speaker deleted"})
}

type createWebhookRequest struct {
	Name        string             `json:"name"`
	URL         string             `json:"url"`
	EventTypes  []events.EventType `json:"event_types"`
	Description string             `json:"description,omitempty"`
}

// CreateWebhook handles POST /api/v1/webhooks.
func (h *Handler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "name and url are required")
		return
	}
	if err := urlvalidation.ValidateWebhookURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook URL: "+err.Error())
		return
	}

	secret, err := webhook.GenerateSecret()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate secret")
		return
	}

	wh := &webhook.WebhookEndpoint{
		Name:        req.Name,
		URL:         req.URL,
		Secret:      secret,
		EventTypes:  webhook.EventTypesJSON(req.EventTypes),
		IsActive:    true,
		Description: req.Description,
	}
	if err := h.webhooks.CreateEndpoint(r.Context(), wh); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create webhook")
		return
	}

	// The secret is shown once, on creation.
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          wh.ID,
		"name":        wh.Name,
		"url":         wh.URL,
		"event_types": req.EventTypes,
		"secret":      secret,
	})
}

// ListWebhooks handles GET /api/v1/webhooks.
func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.webhooks.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	if endpoints == nil {
		endpoints = []webhook.WebhookEndpoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": endpoints})
}

// DeleteWebhook handles DELETE /api/v1/webhooks/{id}.
func (h *Handler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.webhooks.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete webhook")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "webhook deleted"})
}
