package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/asr"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/config"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/events"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/metrics"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/retrieval"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/store"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/transcription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend transcribes every chunk to a numbered line
type fakeBackend struct {
	calls atomic.Int64
}

func (f *fakeBackend) Name() string {
	return "fake"
}

func (f *fakeBackend) Languages() []string {
	return []string{"en"}
}

func (f *fakeBackend) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]asr.SegmentResult, error) {
	n := f.calls.Add(1)
	durMS := int64(len(samples)) * 1000 / int64(sampleRate)
	return []asr.SegmentResult{
		{Text: fmt.Sprintf("line %d", n), StartMS: 0, EndMS: durMS},
	}, nil
}

type sessionFixture struct {
	manager *Manager
	store   *store.Store
	bus     *events.Bus
	backend *fakeBackend
}

// newSessionFixture wires a manager with fast timing so chunks seal quickly
func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	st, err := store.Open(":memory:", testLogger())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.Audio.SampleRate = 16000
	cfg.Audio.BufferCapSeconds = 5
	cfg.Audio.ChunkNominal = 0.15
	cfg.Audio.ChunkMin = 0.05
	cfg.Audio.ChunkMax = 0.2
	cfg.Audio.PollInterval = 0.02
	cfg.Audio.QueueSize = 8
	cfg.Silence.Hold = 0.05
	cfg.ASR.SampleRate = 16000

	bus := events.NewBus(64, testLogger())
	m := metrics.NewMetricsWith(prometheus.NewRegistry())

	tracker := asr.NewStateTracker("fake", func(asr.StateSnapshot) {})
	if err := tracker.StartLoading(); err != nil {
		t.Fatalf("Failed to start model load: %v", err)
	}
	if err := tracker.SetLoaded(); err != nil {
		t.Fatalf("Failed to mark model loaded: %v", err)
	}

	backend := &fakeBackend{}
	worker := transcription.NewWorker(backend, tracker, st, bus, m, cfg.Audio.QueueSize, testLogger())
	worker.Start()
	t.Cleanup(worker.Stop)

	return &sessionFixture{
		manager: NewManager(st, worker, bus, m, cfg, testLogger()),
		store:   st,
		bus:     bus,
		backend: backend,
	}
}

// loudSamples returns a constant-amplitude signal well above the threshold
func loudSamples(seconds float64, sampleRate int) []float32 {
	samples := make([]float32, int(seconds*float64(sampleRate)))
	for i := range samples {
		samples[i] = 0.5
	}
	return samples
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestManagerSingleActiveSession(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, err := f.manager.StartSession(ctx, "First")
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	if session.State() != StateActive {
		t.Errorf("Expected active state, got %s", session.State())
	}

	if _, err := f.manager.StartSession(ctx, "Second"); !errors.Is(err, ErrSessionActive) {
		t.Errorf("Expected ErrSessionActive, got %v", err)
	}

	if err := f.manager.StopSession(ctx); err != nil {
		t.Fatalf("Failed to stop session: %v", err)
	}
	if _, ok := f.manager.ActiveSession(); ok {
		t.Error("Expected no active session after stop")
	}

	// A new recording can start once the previous one closed
	if _, err := f.manager.StartSession(ctx, "Third"); err != nil {
		t.Fatalf("Failed to start session after stop: %v", err)
	}
	if err := f.manager.StopSession(ctx); err != nil {
		t.Fatalf("Failed to stop session: %v", err)
	}
}

func TestSessionTranscribesPushedAudio(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, err := f.manager.StartSession(ctx, "Standup")
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}

	// Half a second of loud audio seals at least two max-length chunks
	f.manager.PushSamples(loudSamples(0.5, 16000))

	waitFor(t, 5*time.Second, func() bool {
		segments, err := f.store.ListSegments(ctx, session.MeetingID)
		return err == nil && len(segments) >= 2
	}, "segments to be transcribed")

	segments, err := f.store.ListSegments(ctx, session.MeetingID)
	if err != nil {
		t.Fatalf("Failed to list segments: %v", err)
	}

	// Segment timeline is contiguous and ordered
	var lastEnd int64
	for i, seg := range segments {
		if seg.Seq != i+1 {
			t.Errorf("Expected seq %d, got %d", i+1, seg.Seq)
		}
		if seg.StartMS < lastEnd {
			t.Errorf("Segment %d starts at %dms before previous end %dms", i, seg.StartMS, lastEnd)
		}
		lastEnd = seg.EndMS
	}

	if err := f.manager.StopSession(ctx); err != nil {
		t.Fatalf("Failed to stop session: %v", err)
	}
}

func TestSessionStopFlushesPartialChunk(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, err := f.manager.StartSession(ctx, "Quick note")
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}

	// Too short to seal on its own; only the stop flush can produce it
	f.manager.PushSamples(loudSamples(0.08, 16000))
	time.Sleep(50 * time.Millisecond)

	if err := f.manager.StopSession(ctx); err != nil {
		t.Fatalf("Failed to stop session: %v", err)
	}

	segments, err := f.store.ListSegments(ctx, session.MeetingID)
	if err != nil {
		t.Fatalf("Failed to list segments: %v", err)
	}
	if len(segments) == 0 {
		t.Error("Expected the stop flush to produce a segment")
	}

	meeting, err := f.store.GetMeeting(ctx, session.MeetingID)
	if err != nil {
		t.Fatalf("Failed to get meeting: %v", err)
	}
	if meeting.EndedAt == nil {
		t.Error("Expected meeting to be closed after stop")
	}
}

func TestSessionPauseAndResume(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, err := f.manager.StartSession(ctx, "Paused meeting")
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}

	if err := f.manager.PauseSession(); err != nil {
		t.Fatalf("Failed to pause: %v", err)
	}
	if session.State() != StatePaused {
		t.Errorf("Expected paused state, got %s", session.State())
	}

	// Pausing twice is an error, as is pausing with nothing active
	if err := f.manager.PauseSession(); err == nil {
		t.Error("Expected error pausing an already paused session")
	}

	// Audio pushed while paused is discarded
	f.manager.PushSamples(loudSamples(0.5, 16000))
	time.Sleep(200 * time.Millisecond)

	segments, err := f.store.ListSegments(ctx, session.MeetingID)
	if err != nil {
		t.Fatalf("Failed to list segments: %v", err)
	}
	if len(segments) != 0 {
		t.Errorf("Expected no segments from paused audio, got %d", len(segments))
	}

	if err := f.manager.ResumeSession(); err != nil {
		t.Fatalf("Failed to resume: %v", err)
	}
	if session.State() != StateActive {
		t.Errorf("Expected active state after resume, got %s", session.State())
	}
	if err := f.manager.ResumeSession(); err == nil {
		t.Error("Expected error resuming a session that is not paused")
	}

	if err := f.manager.StopSession(ctx); err != nil {
		t.Fatalf("Failed to stop session: %v", err)
	}
}

func TestManagerLifecycleErrors(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if err := f.manager.StopSession(ctx); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Expected ErrNoActiveSession, got %v", err)
	}
	if err := f.manager.PauseSession(); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Expected ErrNoActiveSession, got %v", err)
	}
	if err := f.manager.ResumeSession(); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Expected ErrNoActiveSession, got %v", err)
	}

	// Pushing audio with no session is a no-op
	f.manager.PushSamples(loudSamples(0.1, 16000))
}

func TestSessionPublishesCaptureOverflow(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	eventCh, cancelSub := f.bus.Subscribe()
	defer cancelSub()

	session, err := f.manager.StartSession(ctx, "Overflow")
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}

	// The fixture buffer caps at 5s; pushing 6s at once must drop the excess
	session.PushSamples(loudSamples(6.0, 16000))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-eventCh:
			if ev.Type != events.TypeCaptureOverflow {
				continue
			}
			if ev.MeetingID != session.MeetingID {
				t.Errorf("Expected overflow for %s, got %s", session.MeetingID, ev.MeetingID)
			}
			payload, ok := ev.Payload.(map[string]interface{})
			if !ok || payload["dropped_samples"].(int) <= 0 {
				t.Errorf("Expected dropped sample count in payload, got %v", ev.Payload)
			}
			if err := f.manager.StopSession(ctx); err != nil {
				t.Fatalf("Failed to stop session: %v", err)
			}
			return
		case <-deadline:
			t.Fatal("Timed out waiting for capture overflow event")
		}
	}
}

func TestSessionPublishesChunkBackpressure(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	// Replace the running worker with one that never consumes, so the queue
	// fills and sealed chunks start being held
	stalled := transcription.NewWorker(f.backend, nil, f.store, f.bus,
		metrics.NewMetricsWith(prometheus.NewRegistry()), 2, testLogger())
	f.manager.worker = stalled

	eventCh, cancelSub := f.bus.Subscribe()
	defer cancelSub()

	session, err := f.manager.StartSession(ctx, "Backpressure")
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	session.PushSamples(loudSamples(1.5, 16000))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-eventCh:
			if ev.Type != events.TypeChunkBackpressure {
				continue
			}
			if ev.MeetingID != session.MeetingID {
				t.Errorf("Expected backpressure for %s, got %s", session.MeetingID, ev.MeetingID)
			}
			stopCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
			defer cancel()
			f.manager.StopSession(stopCtx)
			return
		case <-deadline:
			t.Fatal("Timed out waiting for chunk backpressure event")
		}
	}
}

// recordingSummarizer records which meetings it was asked to summarize
type recordingSummarizer struct {
	mu       sync.Mutex
	meetings []string
}

func (r *recordingSummarizer) Summarize(ctx context.Context, meetingID string) (*retrieval.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meetings = append(r.meetings, meetingID)
	return &retrieval.Summary{MeetingID: meetingID}, nil
}

func (r *recordingSummarizer) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.meetings...)
}

func TestManagerSummarizesAfterStop(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	summarizer := &recordingSummarizer{}
	f.manager.SetSummarizer(summarizer)

	session, err := f.manager.StartSession(ctx, "Retro")
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	if len(summarizer.calls()) != 0 {
		t.Error("Expected no summary while recording")
	}

	if err := f.manager.StopSession(ctx); err != nil {
		t.Fatalf("Failed to stop session: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(summarizer.calls()) == 1
	}, "summary after stop")
	if got := summarizer.calls(); got[0] != session.MeetingID {
		t.Errorf("Expected summary for %s, got %s", session.MeetingID, got[0])
	}
}

func TestSessionMeetingEvents(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	eventCh, cancelSub := f.bus.Subscribe()
	defer cancelSub()

	session, err := f.manager.StartSession(ctx, "Eventful")
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	if err := f.manager.StopSession(ctx); err != nil {
		t.Fatalf("Failed to stop session: %v", err)
	}

	var sawStarted, sawClosed bool
	deadline := time.After(2 * time.Second)
	for !(sawStarted && sawClosed) {
		select {
		case ev := <-eventCh:
			if ev.MeetingID != session.MeetingID {
				continue
			}
			switch ev.Type {
			case events.TypeMeetingStarted:
				sawStarted = true
			case events.TypeMeetingClosed:
				sawClosed = true
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for meeting events (started=%v closed=%v)", sawStarted, sawClosed)
		}
	}
}
