// Package export renders session transcripts to downloadable files in
// txt, srt, json, and csv formats.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/talkscribe/talkscribe/internal/store"
	"github.com/talkscribe/talkscribe/pkg/events"
)

// ErrUnsupportedFormat is returned for formats outside txt/srt/json/csv.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ErrUnknownTemplate is returned when a requested text template is not
// loaded.
var ErrUnknownTemplate = errors.New("unknown export template")

// SessionSource fetches a session with its segments, satisfied by
// store.SessionRepository.
type SessionSource interface {
	GetWithSegments(ctx context.Context, id string) (*store.Session, error)
}

// Service renders transcripts and writes them into the export
// directory under timestamped filenames.
type Service struct {
	sessions  SessionSource
	templates *TemplateLoader
	dir       string
	publisher *events.Publisher
}

// NewService creates an export service. The publisher may be nil.
func NewService(sessions SessionSource, templates *TemplateLoader, dir string, pub *events.Publisher) *Service {
	return &Service{sessions: sessions, templates: templates, dir: dir, publisher: pub}
}

// Export renders a session transcript and returns the filename of the
// written file, relative to the export directory. templateName selects
// the text template; empty means the default. Non-text formats ignore
// it.
func (s *Service) Export(ctx context.Context, sessionID, format, templateName string) (string, error) {
	format = strings.ToLower(format)

	sess, err := s.sessions.GetWithSegments(ctx, sessionID)
	if err != nil {
		return "", err
	}

	var content []byte
	switch format {
	case "txt", "text":
		format = "txt"
		content, err = s.renderText(sess, templateName)
	case "srt":
		content, err = renderSRT(sess)
	case "json":
		content, err = renderJSON(sess)
	case "csv":
		content, err = renderCSV(sess)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	filename := fmt.Sprintf("%s_%d.%s", sessionID, time.Now().Unix(), format)
	if err := os.WriteFile(filepath.Join(s.dir, filename), content, 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}

	slog.InfoContext(ctx, "transcript exported",
		slog.String("session_id", sessionID),
		slog.String("format", format),
		slog.String("file", filename))
	if s.publisher != nil {
		if err := s.publisher.Emit(ctx, events.ExportCompleted, sessionID, events.ExportCompletedData{
			Format:   format,
			Filename: filename,
		}); err != nil {
			slog.WarnContext(ctx, "event publish failed", slog.String("error", err.Error()))
		}
	}
	return filename, nil
}

// Open resolves a previously exported file for download. The filename
// is constrained to the export directory.
func (s *Service) Open(filename string) (*os.File, error) {
	if filepath.Base(filename) != filename {
		return nil, errors.New("invalid filename")
	}
	return os.Open(filepath.Join(s.dir, filename))
}

// FormatTimestamp renders seconds as HH:MM:SS.mmm.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, sec, ms)
}

type templateSegment struct {
	Speaker    string
	Start      string
	End        string
	Text       string
	Confidence float32
}

type templateData struct {
	SessionName string
	GeneratedAt string
	Segments    []templateSegment
}

func (s *Service) renderText(sess *store.Session, templateName string) ([]byte, error) {
	if templateName == "" {
		templateName = DefaultTemplateName
	}
	tmpl, ok := s.templates.Get(templateName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateName)
	}

	data := templateData{
		SessionName: sess.Name,
		GeneratedAt: time.Now().UTC().Format("2006-01-02 15:04:05"),
	}
	for _, seg := range sess.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		data.Segments = append(data.Segments, templateSegment{
			Speaker:    seg.SpeakerID,
			Start:      FormatTimestamp(seg.StartTime),
			End:        FormatTimestamp(seg.EndTime),
			Text:       text,
			Confidence: seg.Confidence,
		})
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render text template: %w", err)
	}
	return []byte(buf.String()), nil
}

func renderSRT(sess *store.Session) ([]byte, error) {
	var b strings.Builder
	n := 0
	for _, seg := range sess.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d\n", n)
		fmt.Fprintf(&b, "%s --> %s\n", FormatTimestamp(seg.StartTime), FormatTimestamp(seg.EndTime))
		fmt.Fprintf(&b, "%s: %s\n\n", seg.SpeakerID, text)
	}
	return []byte(b.String()), nil
}

type jsonSegment struct {
	SpeakerID  string  `json:"speaker_id"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Duration   float64 `json:"duration"`
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
	Timestamp  string  `json:"timestamp,omitempty"`
}

type jsonExport struct {
	SessionInfo struct {
		ID            string  `json:"id"`
		Name          string  `json:"name"`
		CreatedAt     string  `json:"created_at"`
		Language      string  `json:"language,omitempty"`
		Status        string  `json:"status"`
		TotalDuration float64 `json:"total_duration"`
	} `json:"session_info"`
	Segments   []jsonSegment `json:"segments"`
	ExportInfo struct {
		ExportedAt    string `json:"exported_at"`
		FormatVersion string `json:"format_version"`
		TotalSegments int    `json:"total_segments"`
	} `json:"export_info"`
}

func renderJSON(sess *store.Session) ([]byte, error) {
	var out jsonExport
	out.SessionInfo.ID = sess.ID
	out.SessionInfo.Name = sess.Name
	out.SessionInfo.CreatedAt = sess.CreatedAt.UTC().Format(time.RFC3339)
	out.SessionInfo.Language = sess.Language
	out.SessionInfo.Status = sess.Status
	out.SessionInfo.TotalDuration = sess.TotalDuration

	out.Segments = make([]jsonSegment, 0, len(sess.Segments))
	for _, seg := range sess.Segments {
		out.Segments = append(out.Segments, jsonSegment{
			SpeakerID:  seg.SpeakerID,
			StartTime:  seg.StartTime,
			EndTime:    seg.EndTime,
			Duration:   seg.EndTime - seg.StartTime,
			Text:       strings.TrimSpace(seg.Text),
			Confidence: seg.Confidence,
			Timestamp:  seg.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	out.ExportInfo.ExportedAt = time.Now().UTC().Format(time.RFC3339)
	out.ExportInfo.FormatVersion = "1.0"
	out.ExportInfo.TotalSegments = len(out.Segments)

	return json.MarshalIndent(out, "", "  ")
}

func renderCSV(sess *store.Session) ([]byte, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)

	if err := w.Write([]string{
		"Segment", "Speaker", "Start Time", "End Time", "Duration", "Text", "Confidence",
	}); err != nil {
		return nil, err
	}

	for i, seg := range sess.Segments {
		duration := seg.EndTime - seg.StartTime
		if err := w.Write([]string{
			strconv.Itoa(i + 1),
			seg.SpeakerID,
			FormatTimestamp(seg.StartTime),
			FormatTimestamp(seg.EndTime),
			fmt.Sprintf("%.2fs", duration),
			strings.TrimSpace(seg.Text),
			fmt.Sprintf("%.2f", seg.Confidence),
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
