package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/audio"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/config"
)

// WhisperBackend transcribes audio chunks by posting WAV files to a
// whisper-compatible HTTP endpoint. Transport failures are retried with
// exponential backoff; malformed requests are not.
type WhisperBackend struct {
	endpoint   string
	apiKey     string
	language   string
	maxRetries int
	httpClient *http.Client
	logger     *slog.Logger
}

// whisperResponse represents the JSON body returned by the endpoint
type whisperResponse struct {
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"` // seconds, chunk-relative
		End   float64 `json:"end"`
	} `json:"segments"`
	Text string `json:"text"` // fallback for servers without segment timing
}

// NewWhisperBackend creates a new whisper HTTP transcription backend
func NewWhisperBackend(cfg config.ASRConfig, logger *slog.Logger) (*WhisperBackend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("whisper endpoint is required")
	}

	return &WhisperBackend{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		language:   cfg.Language,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout: cfg.GetTimeoutDuration(),
		},
		logger: logger,
	}, nil
}

// Name returns the backend identifier
func (w *WhisperBackend) Name() string {
	return "whisper"
}

// Languages returns an empty set: whisper is multilingual
func (w *WhisperBackend) Languages() []string {
	return nil
}

// Transcribe encodes the samples as WAV and posts them to the endpoint,
// retrying transient failures with exponential backoff
func (w *WhisperBackend) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]SegmentResult, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	wavData, err := audio.EncodeWAVFloat32(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chunk: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			w.logger.Warn("Retrying transcription request",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.String("error", lastErr.Error()))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		segments, retryable, err := w.doRequest(ctx, wavData)
		if err == nil {
			return segments, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("transcription failed after %d attempts: %w", w.maxRetries+1, lastErr)
}

// doRequest performs a single transcription request. The second return value
// reports whether the failure is worth retrying.
func (w *WhisperBackend) doRequest(ctx context.Context, wavData []byte) ([]SegmentResult, bool, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, false, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, false, fmt.Errorf("failed to write audio data: %w", err)
	}

	if w.language != "" && w.language != "auto" {
		if err := writer.WriteField("language", w.language); err != nil {
			return nil, false, fmt.Errorf("failed to write language field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, &body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// Server errors are transient; client errors are not
		retryable := resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("transcription endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed whisperResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, false, fmt.Errorf("failed to parse response: %w", err)
	}

	return w.toSegments(parsed), false, nil
}

// toSegments converts the endpoint's response into chunk-relative segments,
// skipping empty spans
func (w *WhisperBackend) toSegments(parsed whisperResponse) []SegmentResult {
	var results []SegmentResult
	for _, seg := range parsed.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		results = append(results, SegmentResult{
			Text:    text,
			StartMS: int64(seg.Start * 1000),
			EndMS:   int64(seg.End * 1000),
		})
	}

	// Some servers return a bare transcript without timing
	if len(results) == 0 {
		if text := strings.TrimSpace(parsed.Text); text != "" {
			results = append(results, SegmentResult{Text: text})
		}
	}

	return results
}
