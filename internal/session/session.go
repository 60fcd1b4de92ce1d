package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/audio"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/events"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/metrics"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/store"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/transcription"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/vad"
)

// State represents the recording session lifecycle
type State int

const (
	StateActive State = iota
	StatePaused
	StateDraining
	StateClosed
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one recording: it drains captured audio on a poll ticker,
// runs silence detection, accumulates chunks and hands sealed chunks to the
// transcription worker. When the worker queue is full the sealed chunk is
// held and retried on the next tick instead of being dropped.
type Session struct {
	MeetingID string
	Title     string
	StartTime time.Time

	buffer   *audio.CaptureBuffer
	detector *vad.Detector
	chunker  *audio.Chunker
	worker   *transcription.Worker
	store    *store.Store
	bus      *events.Bus
	metrics  *metrics.Metrics
	logger   *slog.Logger

	poll       time.Duration
	ingestRate int
	asrRate    int

	state        State
	held         *audio.Chunk
	chunksSealed uint64
	chunksHeld   uint64
	mu           sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SessionStats contains session counters for monitoring
type SessionStats struct {
	MeetingID    string        `json:"meeting_id"`
	Title        string        `json:"title"`
	State        string        `json:"state"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	PositionMS   int64         `json:"position_ms"`
	ChunksSealed uint64        `json:"chunks_sealed"`
	ChunksHeld   uint64        `json:"chunks_held"`
	Level        float64       `json:"level"`
}

// start launches the poll loop. Called by the manager after the meeting row
// exists and the start event is published.
func (s *Session) start() {
	s.wg.Add(1)
	go s.run()
}

// run polls the capture buffer until the session stops
func (s *Session) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.logger.Debug("Session poll loop started",
		slog.String("meeting_id", s.MeetingID),
		slog.Duration("poll_interval", s.poll))

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick processes one poll interval of captured audio
func (s *Session) tick() {
	if !s.retryHeld() {
		// Backpressure: worker queue still full, seal nothing new
		return
	}

	samples := s.buffer.DrainChunk(s.poll)
	if len(samples) == 0 {
		return
	}
	s.process(samples)
}

// process runs drained samples through detection and chunking
func (s *Session) process(samples []float32) {
	resampled, err := audio.Resample(samples, s.ingestRate, s.asrRate)
	if err != nil {
		s.logger.Warn("Resample failed, discarding audio",
			slog.String("meeting_id", s.MeetingID),
			slog.String("error", err.Error()))
		return
	}

	result := s.detector.Process(resampled)
	chunk := s.chunker.Feed(resampled, result)
	if chunk != nil {
		s.submit(chunk)
	}
}

// retryHeld resubmits a chunk held from a previous tick. Returns false while
// the worker queue remains full.
func (s *Session) retryHeld() bool {
	s.mu.Lock()
	held := s.held
	s.mu.Unlock()

	if held == nil {
		return true
	}
	if err := s.worker.Submit(s.MeetingID, held); err != nil {
		return false
	}

	s.mu.Lock()
	s.held = nil
	s.mu.Unlock()
	return true
}

// submit hands a sealed chunk to the worker, holding it on backpressure
func (s *Session) submit(chunk *audio.Chunk) {
	s.metrics.RecordChunkSealed(string(chunk.Reason), chunk.Duration().Seconds())

	s.mu.Lock()
	s.chunksSealed++
	s.mu.Unlock()

	if err := s.worker.Submit(s.MeetingID, chunk); err != nil {
		if errors.Is(err, transcription.ErrQueueFull) {
			s.mu.Lock()
			s.held = chunk
			s.chunksHeld++
			s.mu.Unlock()

			s.bus.Publish(events.Event{
				Type:      events.TypeChunkBackpressure,
				MeetingID: s.MeetingID,
				Payload: map[string]interface{}{
					"chunk_start_ms": chunk.StartMS,
					"queue_depth":    s.worker.GetStats().QueueDepth,
				},
			})
			s.logger.Warn("Transcription queue full, holding chunk",
				slog.String("meeting_id", s.MeetingID),
				slog.Int64("chunk_start_ms", chunk.StartMS),
				slog.Duration("chunk_duration", chunk.Duration()))
		}
	}
}

// PushSamples feeds captured audio into the session buffer and reports
// dropped samples to metrics. Audio pushed while paused is discarded.
func (s *Session) PushSamples(samples []float32) {
	dropped := s.buffer.Push(samples)
	if dropped > 0 {
		s.metrics.RecordSamplesDropped(dropped)
		s.bus.Publish(events.Event{
			Type:      events.TypeCaptureOverflow,
			MeetingID: s.MeetingID,
			Payload:   map[string]interface{}{"dropped_samples": dropped},
		})
	}
}

// Pause suspends capture. Buffered audio already drained into the chunker is
// discarded and the transcript timeline does not advance while paused.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return fmt.Errorf("cannot pause session in state %s", s.state)
	}
	s.state = StatePaused

	s.buffer.SetPaused(true)
	s.chunker.SetPaused(true)
	s.detector.Reset()

	s.logger.Info("Session paused", slog.String("meeting_id", s.MeetingID))
	return nil
}

// Resume restarts capture after a pause
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused {
		return fmt.Errorf("cannot resume session in state %s", s.state)
	}
	s.state = StateActive

	s.buffer.SetPaused(false)
	s.chunker.SetPaused(false)

	s.logger.Info("Session resumed", slog.String("meeting_id", s.MeetingID))
	return nil
}

// Stop drains remaining audio, flushes the final partial chunk, waits for
// the worker to finish queued work and closes the meeting. After Stop the
// session is closed and cannot be restarted.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateDraining {
		s.mu.Unlock()
		return fmt.Errorf("session already stopping")
	}
	s.state = StateDraining
	s.mu.Unlock()

	s.logger.Info("Stopping session", slog.String("meeting_id", s.MeetingID))

	// Stop the poll loop before the final drain so it cannot race
	s.cancel()
	s.wg.Wait()

	// Feed everything still buffered through detection and chunking
	for {
		samples := s.buffer.DrainChunk(s.poll)
		if len(samples) == 0 {
			break
		}
		if s.waitSubmitHeld(ctx) {
			s.process(samples)
		}
	}
	s.waitSubmitHeld(ctx)

	// Seal whatever partial audio remains
	if final := s.chunker.Flush(); final != nil {
		s.metrics.RecordChunkSealed(string(final.Reason), final.Duration().Seconds())
		s.mu.Lock()
		s.chunksSealed++
		s.held = final
		s.mu.Unlock()
		s.waitSubmitHeld(ctx)
	}

	if err := s.worker.Drain(ctx); err != nil {
		s.logger.Warn("Transcription drain interrupted",
			slog.String("meeting_id", s.MeetingID),
			slog.String("error", err.Error()))
	}

	if err := s.store.CloseMeeting(ctx, s.MeetingID); err != nil && !errors.Is(err, store.ErrAlreadyClosed) {
		return fmt.Errorf("close meeting: %w", err)
	}

	duration := time.Since(s.StartTime)
	s.bus.Publish(events.Event{
		Type:      events.TypeMeetingClosed,
		MeetingID: s.MeetingID,
	})
	s.metrics.SetSessionActive(false)
	s.metrics.RecordSessionEnded(duration.Seconds())

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.logger.Info("Session stopped",
		slog.String("meeting_id", s.MeetingID),
		slog.Duration("duration", duration),
		slog.Uint64("chunks_sealed", s.chunksSealed))
	return nil
}

// waitSubmitHeld retries a held chunk until the worker accepts it or the
// context expires. Returns true once nothing is held.
func (s *Session) waitSubmitHeld(ctx context.Context) bool {
	for {
		if s.retryHeld() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// GetStats returns a snapshot of session counters
func (s *Session) GetStats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionStats{
		MeetingID:    s.MeetingID,
		Title:        s.Title,
		State:        s.state.String(),
		StartTime:    s.StartTime,
		Duration:     time.Since(s.StartTime),
		PositionMS:   s.chunker.PositionMS(),
		ChunksSealed: s.chunksSealed,
		ChunksHeld:   s.chunksHeld,
		Level:        s.detector.Level(),
	}
}
