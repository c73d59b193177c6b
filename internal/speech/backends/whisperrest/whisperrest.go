// Package whisperrest implements the Transcriber interface against a
// whisper.cpp style HTTP inference server.
package whisperrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/talkscribe/talkscribe/internal/audio"
	"github.com/talkscribe/talkscribe/internal/speech/engine"
	"github.com/talkscribe/talkscribe/internal/speech/registry"
)

const (
	defaultBaseURL = "http://localhost:8178"
	defaultTimeout = 120 * time.Second
)

func init() {
	registry.Transcribers.Register("whisper", func(config map[string]string) (engine.Transcriber, error) {
		baseURL := config["whisper_url"]
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		timeout := defaultTimeout
		if s := config["whisper_timeout"]; s != "" {
			if d, err := time.ParseDuration(s); err == nil {
				timeout = d
			}
		}
		return New(baseURL, config["model"], timeout), nil
	})
}

// Client talks to a whisper inference server over HTTP. Audio is
// uploaded as an in-memory WAV file; no temp files are staged.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// New creates a whisper REST transcriber.
func New(baseURL, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// inferenceResponse mirrors the whisper-server verbose JSON shape.
type inferenceResponse struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Error string `json:"error,omitempty"`
}

// Transcribe uploads the samples and returns ordered transcript spans.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) ([]engine.TranscriptSpan, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	wav, err := audio.WAVBytes(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	_ = writer.WriteField("response_format", "verbose_json")
	if language != "" {
		_ = writer.WriteField("language", language)
	}
	if c.model != "" {
		_ = writer.WriteField("model", c.model)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/inference", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("transcription error (status %d): %s", resp.StatusCode, string(body))
	}

	var result inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("transcription error: %s", result.Error)
	}

	spans := make([]engine.TranscriptSpan, 0, len(result.Segments))
	for _, s := range result.Segments {
		spans = append(spans, engine.TranscriptSpan{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		})
	}
	return spans, nil
}

// IsAvailable probes the server health endpoint.
func (c *Client) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Models returns the whisper model families the server can host.
func (c *Client) Models() []engine.ModelInfo {
	return []engine.ModelInfo{
		{ID: "base", DisplayName: "Whisper Base", IsDefault: true},
		{ID: "small", DisplayName: "Whisper Small"},
		{ID: "medium", DisplayName: "Whisper Medium"},
		{ID: "large-v3", DisplayName: "Whisper Large v3"},
	}
}

// Close releases client resources.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
