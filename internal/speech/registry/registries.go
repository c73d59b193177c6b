package registry

import "github.com/talkscribe/talkscribe/internal/speech/engine"

// Transcribers is the global transcription backend registry.
var Transcribers = New[engine.Transcriber]()

// Diarizers is the global diarization backend registry.
var Diarizers = New[engine.Diarizer]()

// Embedders is the global voice-embedding backend registry.
var Embedders = New[engine.EmbeddingExtractor]()
