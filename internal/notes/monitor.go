package notes

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/events"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/metrics"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/store"
)

// MonitorConfig contains note monitor tunables
type MonitorConfig struct {
	CheckEvery int           // run a check every N new segments
	WindowSize int           // recent segments per check
	Cooldown   time.Duration // per-phrase alert suppression window
}

// Monitor watches the transcript stream for mentions of watched phrases.
// Checks trigger every N segment-ready events and are single-flight: a
// trigger landing while a check runs is skipped rather than queued.
type Monitor struct {
	watches   *Watches
	evaluator Evaluator
	store     *store.Store
	bus       *events.Bus
	metrics   *metrics.Metrics
	config    MonitorConfig
	logger    *slog.Logger

	segmentCount int
	checking     bool
	mu           sync.Mutex

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// mentionPayload is published on the bus for each alert
type mentionPayload struct {
	Phrase   string `json:"phrase"`
	Briefing string `json:"briefing"`
}

// NewMonitor creates a note mention monitor
func NewMonitor(watches *Watches, evaluator Evaluator, st *store.Store, bus *events.Bus,
	m *metrics.Metrics, config MonitorConfig, logger *slog.Logger) *Monitor {
	if config.CheckEvery <= 0 {
		config.CheckEvery = 5
	}
	if config.WindowSize <= 0 {
		config.WindowSize = 10
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 60 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		watches:   watches,
		evaluator: evaluator,
		store:     st,
		bus:       bus,
		metrics:   m,
		config:    config,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the monitor goroutine
func (m *Monitor) Start() {
	eventCh, cancelSub := m.bus.Subscribe()

	m.wg.Add(1)
	go m.run(eventCh, cancelSub)

	m.logger.Info("Note monitor started",
		slog.Int("check_every", m.config.CheckEvery),
		slog.Int("window_size", m.config.WindowSize),
		slog.Duration("cooldown", m.config.Cooldown))
}

// Stop terminates the monitor
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
	m.logger.Info("Note monitor stopped")
}

// run counts segment-ready events and triggers checks
func (m *Monitor) run(eventCh <-chan events.Event, cancelSub func()) {
	defer m.wg.Done()
	defer cancelSub()

	for {
		select {
		case ev := <-eventCh:
			if ev.Type != events.TypeSegmentReady {
				continue
			}
			m.onSegment(ev.MeetingID)
		case <-m.ctx.Done():
			return
		}
	}
}

// onSegment counts a new segment and triggers a check every N segments.
// Checks run inline on the monitor goroutine; a trigger arriving while one
// is running is skipped by the single-flight guard.
func (m *Monitor) onSegment(meetingID string) {
	m.mu.Lock()
	m.segmentCount++
	due := m.segmentCount%m.config.CheckEvery == 0
	if !due || m.checking {
		m.mu.Unlock()
		return
	}
	m.checking = true
	m.mu.Unlock()

	m.runCheck(meetingID)

	m.mu.Lock()
	m.checking = false
	m.mu.Unlock()
}

// runCheck evaluates the recent transcript window against the watch list
func (m *Monitor) runCheck(meetingID string) {
	phrases := m.watches.Phrases()
	if len(phrases) == 0 {
		return
	}

	segments, err := m.store.ListSegments(m.ctx, meetingID)
	if err != nil {
		m.logger.Debug("Note check skipped, transcript unavailable",
			slog.String("error", err.Error()))
		return
	}
	if len(segments) == 0 {
		return
	}

	start := len(segments) - m.config.WindowSize
	if start < 0 {
		start = 0
	}
	window := make([]string, 0, len(segments)-start)
	for _, seg := range segments[start:] {
		window = append(window, seg.Text)
	}

	m.metrics.RecordNoteCheck()

	mentions, err := m.evaluator.Evaluate(m.ctx, phrases, window)
	if err != nil {
		// Evaluator failures skip the cycle; the next trigger retries
		m.logger.Debug("Note check skipped, evaluator failed",
			slog.String("error", err.Error()))
		return
	}

	for _, mention := range mentions {
		alert := m.watches.recordMention(mention.Phrase, m.config.Cooldown)
		m.metrics.RecordNoteMention()

		if !alert {
			// Within cooldown: counted but not alerted
			continue
		}

		m.bus.Publish(events.Event{
			Type:      events.TypeNoteMention,
			MeetingID: meetingID,
			Payload: mentionPayload{
				Phrase:   mention.Phrase,
				Briefing: mention.Briefing,
			},
		})
	}
}
