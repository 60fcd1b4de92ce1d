package embedding

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/asr"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/events"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/metrics"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/store"
)

// batchSize is how many pending segments one drain pass picks up
const batchSize = 64

// Status summarizes embedding pipeline progress
type Status struct {
	ModelState    asr.ModelState `json:"model_state"`
	EmbeddedCount int            `json:"embedded_count"`
	TotalSegments int            `json:"total_segments"`
	FailedCount   int            `json:"failed_count"`
}

// Pipeline embeds transcript segments asynchronously. Segment-ready events
// trigger a pass while the model is loaded; a sweep ticker and every loaded
// transition drain the backlog so segments written while the model was
// unavailable are picked up later. Embedding never blocks transcription.
type Pipeline struct {
	backend Backend
	tracker *asr.StateTracker
	store   *store.Store
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *slog.Logger

	sweepInterval time.Duration
	kick          chan struct{}

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPipeline creates the embedding pipeline
func NewPipeline(backend Backend, tracker *asr.StateTracker, st *store.Store, bus *events.Bus,
	m *metrics.Metrics, sweepInterval time.Duration, logger *slog.Logger) *Pipeline {
	if sweepInterval <= 0 {
		sweepInterval = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		backend:       backend,
		tracker:       tracker,
		store:         st,
		bus:           bus,
		metrics:       m,
		logger:        logger,
		sweepInterval: sweepInterval,
		kick:          make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start launches the pipeline goroutine
func (p *Pipeline) Start() {
	events, cancelSub := p.bus.Subscribe()

	p.wg.Add(1)
	go p.run(events, cancelSub)

	p.logger.Info("Embedding pipeline started",
		slog.String("model", p.backend.Model()),
		slog.Int("dims", p.backend.Dims()),
		slog.Duration("sweep_interval", p.sweepInterval))
}

// Stop finishes the in-flight pass and terminates the pipeline. Any backlog
// left behind is drained on the next start.
func (p *Pipeline) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("Embedding pipeline stopped")
}

// Kick schedules a drain pass, coalescing with any already scheduled. Model
// loaded transitions call this so the backlog drains immediately.
func (p *Pipeline) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// run is the pipeline goroutine: it reacts to segment-ready events, explicit
// kicks, and the periodic sweep
func (p *Pipeline) run(eventCh <-chan events.Event, cancelSub func()) {
	defer p.wg.Done()
	defer cancelSub()

	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-eventCh:
			if ev.Type == events.TypeSegmentReady {
				p.drainBacklog()
			}
		case <-p.kick:
			p.drainBacklog()
		case <-ticker.C:
			p.drainBacklog()
		case <-p.ctx.Done():
			return
		}
	}
}

// drainBacklog embeds pending and previously failed segments until the
// backlog is empty or the model becomes unavailable. Individual failures
// mark the segment failed and the pass continues. A segment is attempted
// at most once per pass; segments that fail again wait for the next one.
func (p *Pipeline) drainBacklog() {
	attempted := make(map[string]bool)

	for {
		if !p.tracker.IsLoaded() {
			return
		}

		pending, err := p.store.PendingSegments(p.ctx, batchSize)
		if err != nil {
			p.logger.Error("Failed to query pending segments",
				slog.String("error", err.Error()))
			return
		}

		fresh := 0
		for _, segment := range pending {
			if p.ctx.Err() != nil {
				return
			}
			if attempted[segment.ID] {
				continue
			}
			attempted[segment.ID] = true
			fresh++
			p.embedSegment(segment)
		}

		// Only already-attempted segments left means the backlog holds
		// nothing but this pass's failures
		if fresh == 0 {
			return
		}
		if len(pending) < batchSize {
			return
		}
	}
}

// embedSegment embeds one segment and stores the vector
func (p *Pipeline) embedSegment(segment *store.Segment) {
	timer := p.metrics.StartEmbedding()
	vector, err := p.backend.Embed(p.ctx, segment.Text)
	timer.Observe()

	if err != nil {
		p.metrics.RecordEmbeddingFailed()
		p.logger.Warn("Failed to embed segment",
			slog.String("segment_id", segment.ID),
			slog.String("error", err.Error()))
		if err := p.store.MarkEmbeddingFailed(p.ctx, segment.ID); err != nil {
			p.logger.Error("Failed to mark embedding failed",
				slog.String("segment_id", segment.ID),
				slog.String("error", err.Error()))
		}
		return
	}

	if err := p.store.StoreEmbedding(p.ctx, segment.ID, vector, p.backend.Model()); err != nil {
		p.metrics.RecordEmbeddingFailed()
		p.logger.Error("Failed to store embedding",
			slog.String("segment_id", segment.ID),
			slog.String("error", err.Error()))
		return
	}

	p.metrics.RecordEmbeddingStored()
}

// Status returns current pipeline progress
func (p *Pipeline) Status(ctx context.Context) (*Status, error) {
	counts, err := p.store.EmbeddingCounts(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		ModelState:    p.tracker.State(),
		EmbeddedCount: counts.Embedded,
		TotalSegments: counts.Total,
		FailedCount:   counts.Failed,
	}, nil
}
