package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription pipeline
type Metrics struct {
	// UDP ingest metrics
	FramesReceived prometheus.Counter
	FramesInvalid  prometheus.Counter
	FramesDropped  prometheus.Counter
	SamplesDropped prometheus.Counter

	// Chunk scheduler metrics
	ChunksSealed  *prometheus.CounterVec
	ChunkDuration prometheus.Histogram

	// Transcription worker metrics
	ChunksQueued          prometheus.Counter
	ChunksProcessed       prometheus.Counter
	ChunksFailed          prometheus.Counter
	SegmentsWritten       prometheus.Counter
	TranscriptionDuration prometheus.Histogram

	// Embedding pipeline metrics
	EmbeddingsStored  prometheus.Counter
	EmbeddingsFailed  prometheus.Counter
	EmbeddingDuration prometheus.Histogram

	// Retrieval metrics
	RetrievalRequests prometheus.Counter
	RetrievalDuration prometheus.Histogram

	// Note monitor metrics
	NoteChecks   prometheus.Counter
	NoteMentions prometheus.Counter

	// Session metrics
	ActiveSession   prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics on the given registerer; tests pass a
// fresh registry to avoid duplicate registration
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// UDP ingest metrics
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_frames_received_total",
			Help: "Total number of UDP audio frames received",
		}),
		FramesInvalid: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_frames_invalid_total",
			Help: "Total number of malformed frames rejected",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_frames_dropped_total",
			Help: "Total number of frames dropped due to backpressure",
		}),
		SamplesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_samples_dropped_total",
			Help: "Total number of samples discarded by the capture buffer",
		}),

		// Chunk scheduler metrics
		ChunksSealed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phantomear_chunks_sealed_total",
			Help: "Total number of chunks sealed, by boundary reason",
		}, []string{"reason"}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "phantomear_chunk_duration_seconds",
			Help:    "Duration of sealed audio chunks",
			Buckets: prometheus.LinearBuckets(0.5, 1, 11), // 0.5s to 10.5s
		}),

		// Transcription worker metrics
		ChunksQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_chunks_queued_total",
			Help: "Total number of chunks accepted into the transcription queue",
		}),
		ChunksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_chunks_processed_total",
			Help: "Total number of chunks transcribed successfully",
		}),
		ChunksFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_chunks_failed_total",
			Help: "Total number of chunks dropped after transcription failure",
		}),
		SegmentsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_segments_written_total",
			Help: "Total number of transcript segments stored",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "phantomear_transcription_duration_seconds",
			Help:    "Duration of transcription inference requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Embedding pipeline metrics
		EmbeddingsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_embeddings_stored_total",
			Help: "Total number of segment embeddings stored",
		}),
		EmbeddingsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_embeddings_failed_total",
			Help: "Total number of segment embedding failures",
		}),
		EmbeddingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "phantomear_embedding_duration_seconds",
			Help:    "Duration of embedding requests",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		}),

		// Retrieval metrics
		RetrievalRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_retrieval_requests_total",
			Help: "Total number of retrieval queries served",
		}),
		RetrievalDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "phantomear_retrieval_duration_seconds",
			Help:    "Duration of retrieval queries",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),

		// Note monitor metrics
		NoteChecks: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_note_checks_total",
			Help: "Total number of note mention checks run",
		}),
		NoteMentions: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_note_mentions_total",
			Help: "Total number of note mentions detected",
		}),

		// Session metrics
		ActiveSession: factory.NewGauge(prometheus.GaugeOpts{
			Name: "phantomear_active_session",
			Help: "Whether a recording session is currently active",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "phantomear_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "phantomear_session_duration_seconds",
			Help:    "Duration of recording sessions",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~3 hours
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phantomear_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "phantomear_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phantomear_http_errors_total",
			Help: "Total number of HTTP error responses",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Timer measures one operation against a histogram
type Timer struct {
	start time.Time
	hist  prometheus.Histogram
}

// Observe records the elapsed time since the timer started
func (t *Timer) Observe() {
	t.hist.Observe(time.Since(t.start).Seconds())
}

// RecordFrameReceived increments the frames received counter
func (m *Metrics) RecordFrameReceived() {
	m.FramesReceived.Inc()
}

// RecordFrameInvalid increments the invalid frames counter
func (m *Metrics) RecordFrameInvalid() {
	m.FramesInvalid.Inc()
}

// RecordFrameDropped increments the dropped frames counter
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// RecordSamplesDropped adds to the dropped samples counter
func (m *Metrics) RecordSamplesDropped(n int) {
	m.SamplesDropped.Add(float64(n))
}

// RecordChunkSealed records a sealed chunk with its boundary reason
func (m *Metrics) RecordChunkSealed(reason string, durationSeconds float64) {
	m.ChunksSealed.WithLabelValues(reason).Inc()
	m.ChunkDuration.Observe(durationSeconds)
}

// RecordChunkQueued increments the queued chunks counter
func (m *Metrics) RecordChunkQueued() {
	m.ChunksQueued.Inc()
}

// RecordChunkProcessed increments the processed chunks counter
func (m *Metrics) RecordChunkProcessed() {
	m.ChunksProcessed.Inc()
}

// RecordChunkFailed increments the failed chunks counter
func (m *Metrics) RecordChunkFailed() {
	m.ChunksFailed.Inc()
}

// RecordSegmentWritten increments the stored segments counter
func (m *Metrics) RecordSegmentWritten() {
	m.SegmentsWritten.Inc()
}

// StartTranscription starts a timer against the transcription histogram
func (m *Metrics) StartTranscription() *Timer {
	return &Timer{start: time.Now(), hist: m.TranscriptionDuration}
}

// RecordEmbeddingStored increments the stored embeddings counter
func (m *Metrics) RecordEmbeddingStored() {
	m.EmbeddingsStored.Inc()
}

// RecordEmbeddingFailed increments the failed embeddings counter
func (m *Metrics) RecordEmbeddingFailed() {
	m.EmbeddingsFailed.Inc()
}

// StartEmbedding starts a timer against the embedding histogram
func (m *Metrics) StartEmbedding() *Timer {
	return &Timer{start: time.Now(), hist: m.EmbeddingDuration}
}

// RecordRetrieval records one retrieval query
func (m *Metrics) RecordRetrieval(durationSeconds float64) {
	m.RetrievalRequests.Inc()
	m.RetrievalDuration.Observe(durationSeconds)
}

// RecordNoteCheck increments the note checks counter
func (m *Metrics) RecordNoteCheck() {
	m.NoteChecks.Inc()
}

// RecordNoteMention increments the note mentions counter
func (m *Metrics) RecordNoteMention() {
	m.NoteMentions.Inc()
}

// SetSessionActive flips the active session gauge
func (m *Metrics) SetSessionActive(active bool) {
	if active {
		m.ActiveSession.Set(1)
	} else {
		m.ActiveSession.Set(0)
	}
}

// RecordSessionStarted increments the sessions started counter
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordSessionEnded records a finished session's duration
func (m *Metrics) RecordSessionEnded(durationSeconds float64) {
	m.SessionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error response
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
