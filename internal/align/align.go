// Package align merges transcript spans with diarization turns into
// speaker-attributed segments.
package align

import (
	"strings"

	"github.com/talkscribe/talkscribe/internal/speech/engine"
)

// Speaker labels and confidences assigned when diarization gives no
// answer for a span.
const (
	FallbackSpeaker = "Speaker_1"
	UnknownSpeaker  = "Unknown"

	matchedConfidence   = 0.8
	fallbackConfidence  = 0.5
	unmatchedConfidence = 0.3
)

// Segment is a speaker-attributed transcribed span. Immutable once
// created; the pipeline may only overwrite SpeakerID after a successful
// voice identification.
type Segment struct {
	SpeakerID  string  `json:"speaker_id"`
	Start      float64 `json:"start_time"`
	End        float64 `json:"end_time"`
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
}

// Align assigns each transcript span the label of the diarization turn
// it overlaps most. Turns must be ordered by start time; on an overlap
// tie the earlier-starting turn wins because the first maximal
// candidate is kept. Spans whose trimmed text is empty are dropped.
// A span overlapping no turn at all is labeled Unknown with reduced
// confidence.
//
// The scan is O(spans x turns), which is fine for seconds-scale chunks.
// An interval index would pay off if chunk sizes ever grow.
func Align(spans []engine.TranscriptSpan, turns []engine.Turn) []Segment {
	segments := make([]Segment, 0, len(spans))

	for _, span := range spans {
		text := strings.TrimSpace(span.Text)
		if text == "" {
			continue
		}

		bestSpeaker := UnknownSpeaker
		bestOverlap := 0.0

		for _, turn := range turns {
			ov := overlap(span.Start, span.End, turn.Start, turn.End)
			if ov > bestOverlap {
				bestOverlap = ov
				bestSpeaker = turn.Speaker
			}
		}

		confidence := float32(unmatchedConfidence)
		if bestOverlap > 0 {
			confidence = matchedConfidence
		}

		segments = append(segments, Segment{
			SpeakerID:  bestSpeaker,
			Start:      span.Start,
			End:        span.End,
			Text:       text,
			Confidence: confidence,
		})
	}

	return segments
}

// AlignUndiarized labels every non-empty span with the fallback speaker.
// Used when no diarizer is configured or the diarizer failed for the
// chunk.
func AlignUndiarized(spans []engine.TranscriptSpan) []Segment {
	segments := make([]Segment, 0, len(spans))
	for _, span := range spans {
		text := strings.TrimSpace(span.Text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			SpeakerID:  FallbackSpeaker,
			Start:      span.Start,
			End:        span.End,
			Text:       text,
			Confidence: fallbackConfidence,
		})
	}
	return segments
}

func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	lo := aStart
	if bStart > lo {
		lo = bStart
	}
	hi := aEnd
	if bEnd < hi {
		hi = bEnd
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}
