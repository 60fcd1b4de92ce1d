package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/asr"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/config"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/embedding"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/events"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/metrics"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/notes"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/retrieval"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/session"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/store"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/transcription"
)

// Deps collects everything the HTTP API serves
type Deps struct {
	Config      *config.Config
	Store       *store.Store
	Sessions    *session.Manager
	Ingest      *IngestServer
	Worker      *transcription.Worker
	Engine      *retrieval.Engine
	Answerer    *retrieval.Answerer
	Summarizer  *retrieval.Summarizer
	Watches     *notes.Watches
	Bus         *events.Bus
	ASRTracker  *asr.StateTracker
	EmbedStatus *embedding.Pipeline
	Metrics     *metrics.Metrics
}

// HTTPServer provides the local HTTP API for recording control, transcript
// access, retrieval and monitoring
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	deps      Deps
	startTime time.Time
}

// NewHTTPServer creates the HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, deps Deps, logger *slog.Logger) *HTTPServer {
	h := &HTTPServer{
		logger:    logger,
		deps:      deps,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /stats", h.withMetrics("/stats", h.handleStats))

	// Recording control
	mux.HandleFunc("POST /api/v1/recording/start", h.withMetrics("/api/v1/recording/start", h.handleRecordingStart))
	mux.HandleFunc("POST /api/v1/recording/stop", h.withMetrics("/api/v1/recording/stop", h.handleRecordingStop))
	mux.HandleFunc("POST /api/v1/recording/pause", h.withMetrics("/api/v1/recording/pause", h.handleRecordingPause))
	mux.HandleFunc("POST /api/v1/recording/resume", h.withMetrics("/api/v1/recording/resume", h.handleRecordingResume))
	mux.HandleFunc("GET /api/v1/recording/status", h.withMetrics("/api/v1/recording/status", h.handleRecordingStatus))

	// Meetings and transcripts
	mux.HandleFunc("GET /api/v1/meetings", h.withMetrics("/api/v1/meetings", h.handleMeetingList))
	mux.HandleFunc("GET /api/v1/meetings/{id}", h.withMetrics("/api/v1/meetings/{id}", h.handleMeetingGet))
	mux.HandleFunc("PATCH /api/v1/meetings/{id}", h.withMetrics("/api/v1/meetings/{id}", h.handleMeetingUpdate))
	mux.HandleFunc("DELETE /api/v1/meetings/{id}", h.withMetrics("/api/v1/meetings/{id}", h.handleMeetingDelete))
	mux.HandleFunc("GET /api/v1/meetings/{id}/segments", h.withMetrics("/api/v1/meetings/{id}/segments", h.handleMeetingSegments))
	mux.HandleFunc("GET /api/v1/meetings/{id}/stats", h.withMetrics("/api/v1/meetings/{id}/stats", h.handleMeetingStats))
	mux.HandleFunc("GET /api/v1/meetings/{id}/conversations", h.withMetrics("/api/v1/meetings/{id}/conversations", h.handleMeetingConversations))
	mux.HandleFunc("GET /api/v1/meetings/{id}/summary", h.withMetrics("/api/v1/meetings/{id}/summary", h.handleSummaryGet))
	mux.HandleFunc("POST /api/v1/meetings/{id}/summary", h.withMetrics("/api/v1/meetings/{id}/summary", h.handleSummaryGenerate))

	// Segment editing
	mux.HandleFunc("PATCH /api/v1/segments/{id}", h.withMetrics("/api/v1/segments/{id}", h.handleSegmentUpdate))
	mux.HandleFunc("DELETE /api/v1/segments/{id}", h.withMetrics("/api/v1/segments/{id}", h.handleSegmentDelete))

	// Search, retrieval and answering
	mux.HandleFunc("GET /api/v1/search", h.withMetrics("/api/v1/search", h.handleSearch))
	mux.HandleFunc("GET /api/v1/retrieve", h.withMetrics("/api/v1/retrieve", h.handleRetrieve))
	mux.HandleFunc("POST /api/v1/ask", h.withMetrics("/api/v1/ask", h.handleAsk))

	// Watched phrases
	mux.HandleFunc("GET /api/v1/watches", h.withMetrics("/api/v1/watches", h.handleWatchList))
	mux.HandleFunc("POST /api/v1/watches", h.withMetrics("/api/v1/watches", h.handleWatchAdd))
	mux.HandleFunc("DELETE /api/v1/watches/{id}", h.withMetrics("/api/v1/watches/{id}", h.handleWatchRemove))

	// Model and event plumbing
	mux.HandleFunc("GET /api/v1/models/status", h.withMetrics("/api/v1/models/status", h.handleModelStatus))
	mux.HandleFunc("GET /api/v1/events", h.handleEvents)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)
		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.deps.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")
	return h.server.Shutdown(ctx)
}

// writeJSON sends a JSON response with the given status
func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError maps domain errors to HTTP status codes
func (h *HTTPServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrOrderingViolation),
		errors.Is(err, store.ErrAlreadyClosed),
		errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrNoActiveSession),
		errors.Is(err, notes.ErrWatchLimit):
		status = http.StatusConflict
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ingestStats := h.deps.Ingest.GetStats()
	workerStats := h.deps.Worker.GetStats()

	recording := "idle"
	if active, ok := h.deps.Sessions.ActiveSession(); ok {
		recording = active.State().String()
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "phantom-ear",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"ingest": map[string]interface{}{
				"status":          "running",
				"frames_received": ingestStats.FramesReceived,
				"frames_invalid":  ingestStats.FramesInvalid,
				"frames_dropped":  ingestStats.FramesDropped,
			},
			"transcription": map[string]interface{}{
				"status":           "running",
				"model_state":      string(h.deps.ASRTracker.State()),
				"queue_depth":      workerStats.QueueDepth,
				"chunks_processed": workerStats.ChunksProcessed,
				"chunks_failed":    workerStats.ChunksFailed,
			},
			"recording": map[string]interface{}{
				"state": recording,
			},
		},
	}

	h.writeJSON(w, http.StatusOK, health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":        time.Since(h.startTime).String(),
		"timestamp":     time.Now().UTC(),
		"ingest":        h.deps.Ingest.GetStats(),
		"transcription": h.deps.Worker.GetStats(),
		"events": map[string]interface{}{
			"subscribers": h.deps.Bus.SubscriberCount(),
		},
	}

	if active, ok := h.deps.Sessions.ActiveSession(); ok {
		stats["session"] = active.GetStats()
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// handleRecordingStart implements POST /api/v1/recording/start
func (h *HTTPServer) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	sess, err := h.deps.Sessions.StartSession(r.Context(), req.Title)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"meeting_id": sess.MeetingID,
		"title":      sess.Title,
		"state":      sess.State().String(),
	})
}

// handleRecordingStop implements POST /api/v1/recording/stop
func (h *HTTPServer) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	active, ok := h.deps.Sessions.ActiveSession()
	if !ok {
		h.writeError(w, session.ErrNoActiveSession)
		return
	}
	meetingID := active.MeetingID

	// Draining queued chunks can outlive the request context
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := h.deps.Sessions.StopSession(ctx); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"meeting_id": meetingID,
		"state":      "closed",
	})
}

// handleRecordingPause implements POST /api/v1/recording/pause
func (h *HTTPServer) handleRecordingPause(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Sessions.PauseSession(); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"state": "paused"})
}

// handleRecordingResume implements POST /api/v1/recording/resume
func (h *HTTPServer) handleRecordingResume(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Sessions.ResumeSession(); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"state": "active"})
}

// handleRecordingStatus implements GET /api/v1/recording/status
func (h *HTTPServer) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	active, ok := h.deps.Sessions.ActiveSession()
	if !ok {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"recording": false})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"recording": true,
		"session":   active.GetStats(),
	})
}

// handleMeetingList implements GET /api/v1/meetings
func (h *HTTPServer) handleMeetingList(w http.ResponseWriter, r *http.Request) {
	meetings, err := h.deps.Store.ListMeetings(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    len(meetings),
		"meetings": meetings,
	})
}

// handleMeetingGet implements GET /api/v1/meetings/{id}
func (h *HTTPServer) handleMeetingGet(w http.ResponseWriter, r *http.Request) {
	meeting, err := h.deps.Store.GetMeeting(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, meeting)
}

// handleMeetingUpdate implements PATCH /api/v1/meetings/{id}. Only the
// fields present in the body are changed.
func (h *HTTPServer) handleMeetingUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Title  *string  `json:"title"`
		Pinned *bool    `json:"pinned"`
		Tags   []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx := r.Context()
	if req.Title != nil {
		if err := h.deps.Store.RenameMeeting(ctx, id, *req.Title); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.Pinned != nil {
		if err := h.deps.Store.SetMeetingPinned(ctx, id, *req.Pinned); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.Tags != nil {
		if err := h.deps.Store.SetMeetingTags(ctx, id, req.Tags); err != nil {
			h.writeError(w, err)
			return
		}
	}

	meeting, err := h.deps.Store.GetMeeting(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, meeting)
}

// handleMeetingDelete implements DELETE /api/v1/meetings/{id}
func (h *HTTPServer) handleMeetingDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.DeleteMeeting(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMeetingSegments implements GET /api/v1/meetings/{id}/segments
func (h *HTTPServer) handleMeetingSegments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.deps.Store.GetMeeting(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	segments, err := h.deps.Store.ListSegments(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"meeting_id": id,
		"total":      len(segments),
		"segments":   segments,
	})
}

// handleMeetingStats implements GET /api/v1/meetings/{id}/stats
func (h *HTTPServer) handleMeetingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Store.MeetingStats(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// handleMeetingConversations implements GET /api/v1/meetings/{id}/conversations
func (h *HTTPServer) handleMeetingConversations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.deps.Store.GetMeeting(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	conversations, err := h.deps.Store.ListConversations(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"meeting_id":    id,
		"total":         len(conversations),
		"conversations": conversations,
	})
}

// handleSummaryGet implements GET /api/v1/meetings/{id}/summary
func (h *HTTPServer) handleSummaryGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	summary, err := h.deps.Store.MeetingSummary(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"meeting_id": id,
		"summary":    summary,
	})
}

// handleSummaryGenerate implements POST /api/v1/meetings/{id}/summary
func (h *HTTPServer) handleSummaryGenerate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	summary, err := h.deps.Summarizer.Summarize(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// handleSegmentUpdate implements PATCH /api/v1/segments/{id}
func (h *HTTPServer) handleSegmentUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Text      *string `json:"text"`
		SpeakerID *string `json:"speaker_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx := r.Context()
	if req.Text != nil {
		if err := h.deps.Store.UpdateSegmentText(ctx, id, *req.Text); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.SpeakerID != nil {
		if err := h.deps.Store.SetSegmentSpeaker(ctx, id, *req.SpeakerID); err != nil {
			h.writeError(w, err)
			return
		}
	}

	segment, err := h.deps.Store.GetSegment(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, segment)
}

// handleSegmentDelete implements DELETE /api/v1/segments/{id}
func (h *HTTPServer) handleSegmentDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.DeleteSegment(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryLimit resolves the result window for a request. An explicit limit
// wins; otherwise each expand step widens the default window by limit_step,
// so a client asking for more context passes expand=1, then expand=2. Both
// forms cap at max_limit.
func (h *HTTPServer) queryLimit(r *http.Request) int {
	cfg := h.deps.Config.Retrieval

	limit := cfg.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	} else if raw := r.URL.Query().Get("expand"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = cfg.DefaultLimit + parsed*cfg.LimitStep
		}
	}

	if limit > cfg.MaxLimit {
		limit = cfg.MaxLimit
	}
	return limit
}

// handleSearch implements GET /api/v1/search (lexical full-text only)
func (h *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter q is required"})
		return
	}

	results, err := h.deps.Store.SearchText(r.Context(), query, r.URL.Query().Get("meeting_id"), h.queryLimit(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"total":   len(results),
		"results": results,
	})
}

// handleRetrieve implements GET /api/v1/retrieve (hybrid lexical + semantic)
func (h *HTTPServer) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter q is required"})
		return
	}

	results, err := h.deps.Engine.Retrieve(r.Context(), query, r.URL.Query().Get("meeting_id"), h.queryLimit(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"total":   len(results),
		"results": results,
	})
}

// handleAsk implements POST /api/v1/ask
func (h *HTTPServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question  string `json:"question"`
		MeetingID string `json:"meeting_id"`
		Limit     int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = h.deps.Config.Retrieval.DefaultLimit
	}
	if limit > h.deps.Config.Retrieval.MaxLimit {
		limit = h.deps.Config.Retrieval.MaxLimit
	}

	answer, err := h.deps.Answerer.Ask(r.Context(), req.Question, req.MeetingID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, answer)
}

// handleWatchList implements GET /api/v1/watches
func (h *HTTPServer) handleWatchList(w http.ResponseWriter, r *http.Request) {
	watches := h.deps.Watches.List()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":   len(watches),
		"watches": watches,
	})
}

// handleWatchAdd implements POST /api/v1/watches
func (h *HTTPServer) handleWatchAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phrase string `json:"phrase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	watch, err := h.deps.Watches.Add(req.Phrase)
	if err != nil {
		if errors.Is(err, notes.ErrWatchLimit) {
			h.writeError(w, err)
		} else {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, watch)
}

// handleWatchRemove implements DELETE /api/v1/watches/{id}
func (h *HTTPServer) handleWatchRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Watches.Remove(r.PathValue("id")); err != nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleModelStatus implements GET /api/v1/models/status
func (h *HTTPServer) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"asr": h.deps.ASRTracker.Snapshot(),
	}

	if h.deps.EmbedStatus != nil {
		embedStatus, err := h.deps.EmbedStatus.Status(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
		status["embedding"] = embedStatus
	}

	h.writeJSON(w, http.StatusOK, status)
}

// handleEvents implements GET /api/v1/events as a server-sent event stream.
// Every bus event is forwarded as an SSE message until the client hangs up.
func (h *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	eventCh, cancelSub := h.deps.Bus.Subscribe()
	defer cancelSub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("Event stream client connected",
		slog.String("remote_addr", r.RemoteAddr))

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("Event stream client disconnected",
				slog.String("remote_addr", r.RemoteAddr))
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev := <-eventCh:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("Failed to encode event", slog.String("error", err.Error()))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "PhantomEar Meeting Transcription Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                                    "API documentation",
			"GET /health":                              "Service health check",
			"GET /stats":                               "Service statistics",
			"GET /metrics":                             "Prometheus metrics",
			"POST /api/v1/recording/start":             "Start a recording session",
			"POST /api/v1/recording/stop":              "Stop the active recording",
			"POST /api/v1/recording/pause":             "Pause the active recording",
			"POST /api/v1/recording/resume":            "Resume a paused recording",
			"GET /api/v1/recording/status":             "Recording status",
			"GET /api/v1/meetings":                     "List meetings",
			"GET /api/v1/meetings/{id}":                "Get a meeting",
			"PATCH /api/v1/meetings/{id}":              "Rename, pin or tag a meeting",
			"DELETE /api/v1/meetings/{id}":             "Delete a meeting and its transcript",
			"GET /api/v1/meetings/{id}/segments":       "Meeting transcript segments",
			"GET /api/v1/meetings/{id}/stats":          "Meeting statistics",
			"GET /api/v1/meetings/{id}/conversations":  "Saved question/answer pairs",
		"GET /api/v1/meetings/{id}/summary":        "Saved meeting summary",
		"POST /api/v1/meetings/{id}/summary":       "Generate and save a meeting summary",
			"PATCH /api/v1/segments/{id}":              "Edit segment text or speaker",
			"DELETE /api/v1/segments/{id}":             "Delete a segment",
			"GET /api/v1/search":                       "Full-text transcript search",
			"GET /api/v1/retrieve":                     "Hybrid lexical + semantic retrieval",
			"POST /api/v1/ask":                         "Answer a question from transcripts",
			"GET /api/v1/watches":                      "List watched phrases",
			"POST /api/v1/watches":                     "Watch a phrase",
			"DELETE /api/v1/watches/{id}":              "Stop watching a phrase",
			"GET /api/v1/models/status":                "ASR and embedding model state",
			"GET /api/v1/events":                       "Server-sent event stream",
		},
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, http.StatusOK, apiDoc)
}
