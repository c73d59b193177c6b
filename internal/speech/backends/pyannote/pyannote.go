// Package pyannote implements the Diarizer and EmbeddingExtractor
// interfaces against a pyannote.audio HTTP sidecar.
package pyannote

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
	defaultBaseURL = "http://localhost:8388"
	defaultTimeout = 300 * time.Second
)

func init() {
	registry.Diarizers.Register("pyannote", func(config map[string]string) (engine.Diarizer, error) {
		c, err := fromConfig(config)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
	registry.Embedders.Register("pyannote", func(config map[string]string) (engine.EmbeddingExtractor, error) {
		c, err := fromConfig(config)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

func fromConfig(config map[string]string) (*Client, error) {
	baseURL := config["pyannote_url"]
	if baseURL == "" {
		return nil, engine.ErrDiarizerUnavailable
	}
	timeout := defaultTimeout
	if s := config["pyannote_timeout"]; s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			timeout = d
		}
	}
	return New(baseURL, timeout), nil
}

// Client talks to the pyannote sidecar. The same sidecar serves both
// diarization and speaker-embedding extraction.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a pyannote sidecar client. An empty baseURL falls back
// to the default local sidecar address.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type diarizeResponse struct {
	Segments []struct {
		Speaker string  `json:"speaker"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
	} `json:"segments"`
	Error string `json:"error,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// Diarize uploads the samples and returns speaker turns ordered by
// start time, as produced by the sidecar.
func (c *Client) Diarize(ctx context.Context, samples []float32, sampleRate int) ([]engine.Turn, error) {
	var result diarizeResponse
	if err := c.postWAV(ctx, "/diarize", samples, sampleRate, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("diarization error: %s", result.Error)
	}

	turns := make([]engine.Turn, 0, len(result.Segments))
	for _, s := range result.Segments {
		turns = append(turns, engine.Turn{
			Start:   s.Start,
			End:     s.End,
			Speaker: s.Speaker,
		})
	}
	return turns, nil
}

// Embed uploads the samples and returns a voice embedding. The sidecar
// answers with an empty embedding for windows it considers too short;
// that maps to a nil result without error.
func (c *Client) Embed(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	var result embedResponse
	if err := c.postWAV(ctx, "/embed", samples, sampleRate, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("embedding error: %s", result.Error)
	}
	if len(result.Embedding) == 0 {
		return nil, nil
	}
	return result.Embedding, nil
}

// IsAvailable probes the sidecar health endpoint.
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

// Close releases client resources.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) postWAV(ctx context.Context, path string, samples []float32, sampleRate int, dest any) error {
	wav, err := audio.WAVBytes(samples, sampleRate)
	if err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sidecar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sidecar error (status %d): %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}
