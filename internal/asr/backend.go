package asr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/config"
)

// SegmentResult represents one transcribed span within a chunk. Timestamps
// are relative to the start of the chunk, not the meeting.
type SegmentResult struct {
	Text    string `json:"text"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
}

// Backend abstracts a speech-to-text engine. Implementations must be safe
// for use from a single worker goroutine; they are never called concurrently.
type Backend interface {
	// Name returns the backend identifier, e.g. "whisper"
	Name() string

	// Languages returns the set of supported language codes; empty means
	// the backend is multilingual
	Languages() []string

	// Transcribe converts a run of mono float32 samples into zero or more
	// transcribed segments with chunk-relative timestamps
	Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]SegmentResult, error)
}

// New creates the transcription backend named in the configuration
func New(cfg config.ASRConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Backend {
	case "whisper":
		return NewWhisperBackend(cfg, logger)
	case "parakeet":
		return NewParakeetBackend(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown transcription backend: %q", cfg.Backend)
	}
}
