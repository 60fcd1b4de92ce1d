package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/audio"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/config"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/events"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/metrics"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/retrieval"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/store"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/transcription"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/vad"
)

// ErrNoActiveSession indicates no recording is in progress
var ErrNoActiveSession = errors.New("no active recording session")

// ErrSessionActive indicates a recording is already in progress
var ErrSessionActive = errors.New("a recording session is already active")

// Summarizer generates and persists a meeting summary. The manager runs it
// in the background after a recording stops.
type Summarizer interface {
	Summarize(ctx context.Context, meetingID string) (*retrieval.Summary, error)
}

// Manager owns the single active recording session. Only one recording can
// run at a time; starting a new one while another is active is rejected.
type Manager struct {
	store   *store.Store
	worker  *transcription.Worker
	bus     *events.Bus
	metrics *metrics.Metrics
	config  *config.Config
	logger  *slog.Logger

	summarizer Summarizer

	active *Session
	mu     sync.RWMutex

	summaries sync.WaitGroup
}

// NewManager creates a session manager
func NewManager(st *store.Store, worker *transcription.Worker, bus *events.Bus,
	m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		store:   st,
		worker:  worker,
		bus:     bus,
		metrics: m,
		config:  cfg,
		logger:  logger,
	}
}

// SetSummarizer enables background summary generation after each recording
func (m *Manager) SetSummarizer(s Summarizer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summarizer = s
}

// StartSession creates a meeting and begins recording into it
func (m *Manager) StartSession(ctx context.Context, title string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.State() != StateClosed {
		return nil, ErrSessionActive
	}

	detector, err := vad.NewDetector(
		m.config.Silence.Threshold,
		m.config.Silence.GetHold(),
		m.config.Silence.WindowSize,
		m.config.Silence.Smoothing,
		m.config.ASR.SampleRate,
	)
	if err != nil {
		return nil, fmt.Errorf("create silence detector: %w", err)
	}

	meeting, err := m.store.CreateMeeting(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("create meeting: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	session := &Session{
		MeetingID: meeting.ID,
		Title:     meeting.Title,
		StartTime: time.Now(),

		buffer:   audio.NewCaptureBuffer(m.config.Audio.SampleRate, m.config.Audio.GetBufferCap()),
		detector: detector,
		chunker: audio.NewChunker(audio.ChunkerConfig{
			Nominal:    m.config.Audio.GetChunkNominal(),
			Min:        m.config.Audio.GetChunkMin(),
			Max:        m.config.Audio.GetChunkMax(),
			SampleRate: m.config.ASR.SampleRate,
		}),
		worker:  m.worker,
		store:   m.store,
		bus:     m.bus,
		metrics: m.metrics,
		logger:  m.logger,

		poll:       m.config.Audio.GetPollInterval(),
		ingestRate: m.config.Audio.SampleRate,
		asrRate:    m.config.ASR.SampleRate,

		state:  StateActive,
		ctx:    sessionCtx,
		cancel: cancel,
	}

	m.active = session
	session.start()

	m.bus.Publish(events.Event{
		Type:      events.TypeMeetingStarted,
		MeetingID: meeting.ID,
		Payload:   meeting,
	})
	m.metrics.RecordSessionStarted()
	m.metrics.SetSessionActive(true)

	m.logger.Info("Recording session started",
		slog.String("meeting_id", meeting.ID),
		slog.String("title", meeting.Title))
	return session, nil
}

// StopSession stops the active recording and finalizes its meeting
func (m *Manager) StopSession(ctx context.Context) error {
	m.mu.Lock()
	session := m.active
	m.mu.Unlock()

	if session == nil || session.State() == StateClosed {
		return ErrNoActiveSession
	}

	if err := session.Stop(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if m.active == session {
		m.active = nil
	}
	summarizer := m.summarizer
	m.mu.Unlock()

	if summarizer != nil {
		m.summaries.Add(1)
		go m.autoSummarize(summarizer, session.MeetingID)
	}
	return nil
}

// autoSummarize generates the post-meeting summary off the stop path.
// Failures are non-critical; the transcript is already persisted.
func (m *Manager) autoSummarize(summarizer Summarizer, meetingID string) {
	defer m.summaries.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := summarizer.Summarize(ctx, meetingID); err != nil {
		m.logger.Warn("Auto-summary generation failed",
			slog.String("meeting_id", meetingID),
			slog.String("error", err.Error()))
		return
	}
	m.logger.Info("Auto-summary saved", slog.String("meeting_id", meetingID))
}

// PauseSession pauses the active recording
func (m *Manager) PauseSession() error {
	session, ok := m.ActiveSession()
	if !ok {
		return ErrNoActiveSession
	}
	return session.Pause()
}

// ResumeSession resumes a paused recording
func (m *Manager) ResumeSession() error {
	session, ok := m.ActiveSession()
	if !ok {
		return ErrNoActiveSession
	}
	return session.Resume()
}

// ActiveSession returns the running session, if any
func (m *Manager) ActiveSession() (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active == nil || m.active.State() == StateClosed {
		return nil, false
	}
	return m.active, true
}

// PushSamples routes captured audio to the active session. Audio arriving
// with no recording in progress is discarded.
func (m *Manager) PushSamples(samples []float32) {
	session, ok := m.ActiveSession()
	if !ok {
		return
	}
	session.PushSamples(samples)
}

// Stop shuts down any active session and waits for in-flight summaries
func (m *Manager) Stop(ctx context.Context) {
	if err := m.StopSession(ctx); err != nil && !errors.Is(err, ErrNoActiveSession) {
		m.logger.Warn("Error stopping session during shutdown",
			slog.String("error", err.Error()))
	}
	m.summaries.Wait()
}
