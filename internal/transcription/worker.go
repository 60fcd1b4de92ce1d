package transcription

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/asr"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/audio"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/events"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/metrics"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/store"
)

// ErrQueueFull indicates the chunk queue is at capacity; the caller should
// hold the chunk and retry on its next tick
var ErrQueueFull = errors.New("transcription queue full")

// job pairs a sealed chunk with the meeting it belongs to
type job struct {
	meetingID string
	chunk     *audio.Chunk
}

// Worker serializes chunk transcription. Chunks enter through a bounded
// queue and a single goroutine runs inference, so at most one request is in
// flight and segments land in the store in seal order.
type Worker struct {
	backend asr.Backend
	tracker *asr.StateTracker
	store   *store.Store
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *slog.Logger

	jobs chan job

	// Statistics
	mu              sync.RWMutex
	pending         int
	processed       uint64
	failed          uint64
	rejected        uint64
	segmentsWritten uint64

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	startMu sync.Mutex
}

// WorkerStats represents transcription worker statistics
type WorkerStats struct {
	QueueDepth      int    `json:"queue_depth"`
	QueueCapacity   int    `json:"queue_capacity"`
	ChunksProcessed uint64 `json:"chunks_processed"`
	ChunksFailed    uint64 `json:"chunks_failed"`
	ChunksRejected  uint64 `json:"chunks_rejected"`
	SegmentsWritten uint64 `json:"segments_written"`
}

// statusPayload is published on every processing transition
type statusPayload struct {
	Processing    bool `json:"processing"`
	PendingChunks int  `json:"pending_chunks"`
}

// NewWorker creates a transcription worker with a bounded queue
func NewWorker(backend asr.Backend, tracker *asr.StateTracker, st *store.Store, bus *events.Bus,
	m *metrics.Metrics, queueSize int, logger *slog.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 32
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		backend: backend,
		tracker: tracker,
		store:   st,
		bus:     bus,
		metrics: m,
		logger:  logger,
		jobs:    make(chan job, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the processing goroutine
func (w *Worker) Start() {
	w.startMu.Lock()
	defer w.startMu.Unlock()
	if w.started {
		return
	}
	w.started = true

	w.wg.Add(1)
	go w.processLoop()

	w.logger.Info("Transcription worker started",
		slog.String("backend", w.backend.Name()),
		slog.Int("queue_capacity", cap(w.jobs)))
}

// Submit enqueues a sealed chunk for transcription without blocking. When
// the queue is full it returns ErrQueueFull and the caller keeps the chunk.
func (w *Worker) Submit(meetingID string, chunk *audio.Chunk) error {
	// The chunk counts as pending before it becomes visible to the
	// processing loop, so Drain cannot observe zero while it is in limbo.
	w.mu.Lock()
	w.pending++
	w.mu.Unlock()

	select {
	case w.jobs <- job{meetingID: meetingID, chunk: chunk}:
		w.metrics.RecordChunkQueued()
		return nil
	default:
		w.mu.Lock()
		w.pending--
		w.rejected++
		w.mu.Unlock()
		return ErrQueueFull
	}
}

// Drain blocks until every queued chunk and the in-flight chunk finished
// processing, or the context expires. Submissions racing with Drain are the
// caller's responsibility to stop first.
func (w *Worker) Drain(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if w.pendingJobs() == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop terminates the processing goroutine. Call Drain first to avoid
// abandoning queued chunks.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.logger.Info("Transcription worker stopped")
}

// processLoop is the single consumer of the chunk queue
func (w *Worker) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case j := <-w.jobs:
			w.setProcessing(true, j.meetingID)
			w.processChunk(j)
			w.mu.Lock()
			w.pending--
			w.mu.Unlock()
			w.setProcessing(false, j.meetingID)
		case <-w.ctx.Done():
			return
		}
	}
}

// processChunk runs inference on one chunk and appends the results. Failures
// of any kind drop the chunk and leave a gap in the transcript.
func (w *Worker) processChunk(j job) {
	if !w.tracker.IsLoaded() {
		w.recordFailure()
		w.logger.Warn("Dropping chunk, transcription model not loaded",
			slog.String("meeting_id", j.meetingID),
			slog.String("model_state", string(w.tracker.State())),
			slog.Int64("chunk_start_ms", j.chunk.StartMS))
		return
	}

	timer := w.metrics.StartTranscription()
	results, err := w.backend.Transcribe(w.ctx, j.chunk.Samples, j.chunk.SampleRate)
	timer.Observe()

	if err != nil {
		w.recordFailure()
		w.logger.Warn("Transcription failed, dropping chunk",
			slog.String("meeting_id", j.meetingID),
			slog.Int64("chunk_start_ms", j.chunk.StartMS),
			slog.Int64("chunk_end_ms", j.chunk.EndMS),
			slog.String("error", err.Error()))
		return
	}

	for _, result := range results {
		// Chunk-relative timings map onto the meeting timeline. Spans
		// without timing cover the whole chunk.
		startMS := j.chunk.StartMS + result.StartMS
		endMS := j.chunk.StartMS + result.EndMS
		if result.EndMS == 0 {
			startMS = j.chunk.StartMS
			endMS = j.chunk.EndMS
		}
		if endMS > j.chunk.EndMS {
			endMS = j.chunk.EndMS
		}

		segment, err := w.store.AppendSegment(w.ctx, j.meetingID, result.Text, startMS, endMS)
		if err != nil {
			w.logger.Warn("Failed to append segment",
				slog.String("meeting_id", j.meetingID),
				slog.Int64("start_ms", startMS),
				slog.String("error", err.Error()))
			continue
		}

		w.mu.Lock()
		w.segmentsWritten++
		w.mu.Unlock()
		w.metrics.RecordSegmentWritten()

		w.bus.Publish(events.Event{
			Type:      events.TypeSegmentReady,
			MeetingID: j.meetingID,
			Payload:   segment,
		})
	}

	w.mu.Lock()
	w.processed++
	w.mu.Unlock()
	w.metrics.RecordChunkProcessed()
}

// setProcessing publishes a status event on every processing transition
func (w *Worker) setProcessing(processing bool, meetingID string) {
	w.bus.Publish(events.Event{
		Type:      events.TypeStatus,
		MeetingID: meetingID,
		Payload: statusPayload{
			Processing:    processing,
			PendingChunks: len(w.jobs),
		},
	})
}

// pendingJobs reports how many submitted chunks have not finished processing
func (w *Worker) pendingJobs() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pending
}

// recordFailure counts a dropped chunk
func (w *Worker) recordFailure() {
	w.mu.Lock()
	w.failed++
	w.mu.Unlock()
	w.metrics.RecordChunkFailed()
}

// GetStats returns current worker statistics
func (w *Worker) GetStats() WorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return WorkerStats{
		QueueDepth:      len(w.jobs),
		QueueCapacity:   cap(w.jobs),
		ChunksProcessed: w.processed,
		ChunksFailed:    w.failed,
		ChunksRejected:  w.rejected,
		SegmentsWritten: w.segmentsWritten,
	}
}
