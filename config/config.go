// Package config defines the environment-driven service configuration.
package config

import (
	"github.com/pitabwire/frame/config"
)

// TalkscribeConfig holds the configuration for the transcription
// service binary.
type TalkscribeConfig struct {
	config.ConfigurationDefault

	// Audio
	SampleRate int `envDefault:"16000" env:"SAMPLE_RATE"`

	// Speech engines
	TranscriberBackend string `envDefault:"whisper"               env:"TRANSCRIBER_BACKEND"`
	DiarizerBackend    string `envDefault:"pyannote"              env:"DIARIZER_BACKEND"`
	EmbedderBackend    string `envDefault:"pyannote"              env:"EMBEDDER_BACKEND"`
	WhisperURL         string `envDefault:"http://localhost:8178" env:"WHISPER_URL"`
	WhisperModel       string `envDefault:"base"                  env:"WHISPER_MODEL"`
	WhisperTimeoutSec  int    `envDefault:"120"                   env:"WHISPER_TIMEOUT_SEC"`
	PyannoteURL        string `envDefault:""                      env:"PYANNOTE_URL"`
	PyannoteTimeoutSec int    `envDefault:"300"                   env:"PYANNOTE_TIMEOUT_SEC"`

	// Speaker identification
	SpeakerMatchThreshold float64 `envDefault:"0.8" env:"SPEAKER_MATCH_THRESHOLD"`

	// Export
	ExportDir   string `envDefault:"./exports"          env:"EXPORT_DIR"`
	TemplateDir string `envDefault:"./export-templates" env:"EXPORT_TEMPLATE_DIR"`

	// Webhooks
	WebhookMaxRetries int `envDefault:"5"   env:"WEBHOOK_MAX_RETRIES"`
	WebhookTimeoutSec int `envDefault:"10"  env:"WEBHOOK_TIMEOUT_SEC"`
	WebhookBackoffSec int `envDefault:"1"   env:"WEBHOOK_BACKOFF_INITIAL_SEC"`
	WebhookBackoffMax int `envDefault:"300" env:"WEBHOOK_BACKOFF_MAX_SEC"`
}
