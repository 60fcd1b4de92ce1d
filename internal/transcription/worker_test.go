package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/asr"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/audio"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/events"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/metrics"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/store"
)

// fakeBackend returns canned segments and can be told to fail
type fakeBackend struct {
	fail  atomic.Bool
	calls atomic.Int32
}

func (f *fakeBackend) Name() string        { return "fake" }
func (f *fakeBackend) Languages() []string { return nil }

func (f *fakeBackend) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]asr.SegmentResult, error) {
	n := f.calls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("inference exploded")
	}
	return []asr.SegmentResult{
		{Text: fmt.Sprintf("utterance %d", n), StartMS: 0, EndMS: int64(len(samples)) * 1000 / int64(sampleRate)},
	}, nil
}

type workerFixture struct {
	worker  *Worker
	backend *fakeBackend
	tracker *asr.StateTracker
	store   *store.Store
	bus     *events.Bus
	meeting *store.Meeting
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(":memory:", logger)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	meeting, err := st.CreateMeeting(context.Background(), "worker test")
	if err != nil {
		t.Fatalf("failed to create meeting: %v", err)
	}

	backend := &fakeBackend{}
	tracker := asr.NewStateTracker("fake", nil)
	tracker.StartLoading()
	tracker.SetLoaded()

	bus := events.NewBus(64, logger)
	m := metrics.NewMetricsWith(prometheus.NewRegistry())

	worker := NewWorker(backend, tracker, st, bus, m, 4, logger)
	t.Cleanup(worker.Stop)

	return &workerFixture{
		worker:  worker,
		backend: backend,
		tracker: tracker,
		store:   st,
		bus:     bus,
		meeting: meeting,
	}
}

func testChunk(startMS int64, dur time.Duration) *audio.Chunk {
	samples := make([]float32, int(dur.Seconds()*16000))
	return &audio.Chunk{
		Samples:    samples,
		StartMS:    startMS,
		EndMS:      startMS + dur.Milliseconds(),
		SampleRate: 16000,
		Reason:     audio.SealWindow,
	}
}

func drainWorker(t *testing.T, w *Worker) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Drain(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
}

func TestWorkerTranscribesInOrder(t *testing.T) {
	f := newWorkerFixture(t)
	f.worker.Start()

	for i := int64(0); i < 3; i++ {
		if err := f.worker.Submit(f.meeting.ID, testChunk(i*5000, 5*time.Second)); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}

	drainWorker(t, f.worker)

	segments, err := f.store.ListSegments(context.Background(), f.meeting.ID)
	if err != nil {
		t.Fatalf("list segments failed: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}

	// Seal order carried through to the transcript
	for i, seg := range segments {
		if seg.Seq != i {
			t.Errorf("segment %d has seq %d", i, seg.Seq)
		}
		if seg.StartMS != int64(i)*5000 {
			t.Errorf("segment %d starts at %dms", i, seg.StartMS)
		}
		if seg.Text != fmt.Sprintf("utterance %d", i+1) {
			t.Errorf("segment %d text %q out of order", i, seg.Text)
		}
	}

	stats := f.worker.GetStats()
	if stats.ChunksProcessed != 3 || stats.SegmentsWritten != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestWorkerPublishesSegmentReady(t *testing.T) {
	f := newWorkerFixture(t)

	ch, cancel := f.bus.Subscribe()
	defer cancel()

	f.worker.Start()
	if err := f.worker.Submit(f.meeting.ID, testChunk(0, 2*time.Second)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type != events.TypeSegmentReady {
				continue
			}
			segment, ok := ev.Payload.(*store.Segment)
			if !ok {
				t.Fatalf("unexpected payload type %T", ev.Payload)
			}
			if segment.MeetingID != f.meeting.ID {
				t.Errorf("expected meeting %s, got %s", f.meeting.ID, segment.MeetingID)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for segment-ready event")
		}
	}
}

func TestWorkerQueueFull(t *testing.T) {
	f := newWorkerFixture(t)
	// Worker not started: the queue fills and stays full

	var err error
	for i := int64(0); i < 10; i++ {
		err = f.worker.Submit(f.meeting.ID, testChunk(i*1000, time.Second))
		if err != nil {
			break
		}
	}

	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if stats := f.worker.GetStats(); stats.ChunksRejected == 0 {
		t.Error("expected rejected chunks counted")
	}
}

func TestWorkerDropsChunksOnFailure(t *testing.T) {
	f := newWorkerFixture(t)
	f.worker.Start()

	f.backend.fail.Store(true)
	f.worker.Submit(f.meeting.ID, testChunk(0, 5*time.Second))
	drainWorker(t, f.worker)

	f.backend.fail.Store(false)
	f.worker.Submit(f.meeting.ID, testChunk(5000, 5*time.Second))
	drainWorker(t, f.worker)

	// The failed chunk left a gap; the next chunk still landed
	segments, err := f.store.ListSegments(context.Background(), f.meeting.ID)
	if err != nil {
		t.Fatalf("list segments failed: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].StartMS != 5000 {
		t.Errorf("expected surviving segment at 5000ms, got %d", segments[0].StartMS)
	}

	stats := f.worker.GetStats()
	if stats.ChunksFailed != 1 || stats.ChunksProcessed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestWorkerDrainWaitsForSubmittedChunk(t *testing.T) {
	f := newWorkerFixture(t)
	f.worker.Start()

	// Every Drain return must mean the chunk just submitted has been fully
	// processed, even when the loop has popped it but not started inference.
	const rounds = 200
	for i := int64(0); i < rounds; i++ {
		if err := f.worker.Submit(f.meeting.ID, testChunk(i*1000, time.Second)); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		drainWorker(t, f.worker)

		if got := f.worker.GetStats().ChunksProcessed; got != uint64(i)+1 {
			t.Fatalf("drain returned after %d submissions with %d chunks processed", i+1, got)
		}
	}

	segments, err := f.store.ListSegments(context.Background(), f.meeting.ID)
	if err != nil {
		t.Fatalf("list segments failed: %v", err)
	}
	if len(segments) != rounds {
		t.Fatalf("expected %d segments, got %d", rounds, len(segments))
	}
}

func TestWorkerDropsChunksWhenModelNotLoaded(t *testing.T) {
	f := newWorkerFixture(t)
	f.tracker.Unload()
	f.worker.Start()

	f.worker.Submit(f.meeting.ID, testChunk(0, time.Second))
	drainWorker(t, f.worker)

	if f.backend.calls.Load() != 0 {
		t.Error("expected no inference while model unloaded")
	}
	if stats := f.worker.GetStats(); stats.ChunksFailed != 1 {
		t.Errorf("expected 1 failed chunk, got %d", stats.ChunksFailed)
	}
}
