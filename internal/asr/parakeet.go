package asr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/audio"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/config"
)

// ParakeetBackend transcribes audio via a parakeet inference server. The
// model is English-only, so any other configured language is rejected up
// front rather than producing garbage transcripts.
type ParakeetBackend struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// parakeetRequest is the JSON body posted to the inference server
type parakeetRequest struct {
	Audio      string `json:"audio"` // base64 little-endian PCM16
	SampleRate int    `json:"sample_rate"`
}

// parakeetResponse is the JSON body returned by the inference server
type parakeetResponse struct {
	Segments []struct {
		Text    string `json:"text"`
		StartMS int64  `json:"start_ms"`
		EndMS   int64  `json:"end_ms"`
	} `json:"segments"`
}

// NewParakeetBackend creates a new parakeet transcription backend
func NewParakeetBackend(cfg config.ASRConfig, logger *slog.Logger) (*ParakeetBackend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("parakeet endpoint is required")
	}

	if cfg.Language != "" && cfg.Language != "auto" && cfg.Language != "en" {
		return nil, fmt.Errorf("parakeet only supports English, got language %q", cfg.Language)
	}

	return &ParakeetBackend{
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Timeout: cfg.GetTimeoutDuration(),
		},
		logger: logger,
	}, nil
}

// Name returns the backend identifier
func (p *ParakeetBackend) Name() string {
	return "parakeet"
}

// Languages returns the supported language codes
func (p *ParakeetBackend) Languages() []string {
	return []string{"en"}
}

// Transcribe posts base64 PCM16 audio to the inference server
func (p *ParakeetBackend) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]SegmentResult, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	pcm := audio.Float32ToPCM16(samples)
	raw := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		raw[i*2] = byte(s)
		raw[i*2+1] = byte(s >> 8)
	}

	reqBody, err := json.Marshal(parakeetRequest{
		Audio:      base64.StdEncoding.EncodeToString(raw),
		SampleRate: sampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcription endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed parakeetResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var results []SegmentResult
	for _, seg := range parsed.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		results = append(results, SegmentResult{
			Text:    text,
			StartMS: seg.StartMS,
			EndMS:   seg.EndMS,
		})
	}

	return results, nil
}
