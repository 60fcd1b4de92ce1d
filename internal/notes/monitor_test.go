package notes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/events"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/metrics"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// failingEvaluator always errors
type failingEvaluator struct {
	calls atomic.Int64
}

func (f *failingEvaluator) Evaluate(ctx context.Context, phrases []string, window []string) ([]Mention, error) {
	f.calls.Add(1)
	return nil, errors.New("evaluator unavailable")
}

type monitorFixture struct {
	store     *store.Store
	bus       *events.Bus
	watches   *Watches
	monitor   *Monitor
	meetingID string
	events    <-chan events.Event
}

func newMonitorFixture(t *testing.T, evaluator Evaluator, cooldown time.Duration) *monitorFixture {
	t.Helper()

	st, err := store.Open(":memory:", testLogger())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	meeting, err := st.CreateMeeting(context.Background(), "Standup")
	if err != nil {
		t.Fatalf("Failed to create meeting: %v", err)
	}

	bus := events.NewBus(64, testLogger())
	watches := NewWatches(10)

	monitor := NewMonitor(watches, evaluator, st, bus,
		metrics.NewMetricsWith(prometheus.NewRegistry()),
		MonitorConfig{CheckEvery: 3, WindowSize: 10, Cooldown: cooldown}, testLogger())
	monitor.Start()
	t.Cleanup(monitor.Stop)

	eventCh, cancelSub := bus.Subscribe()
	t.Cleanup(cancelSub)

	return &monitorFixture{
		store:     st,
		bus:       bus,
		watches:   watches,
		monitor:   monitor,
		meetingID: meeting.ID,
		events:    eventCh,
	}
}

// pushSegments appends transcript lines and announces them on the bus
func (f *monitorFixture) pushSegments(t *testing.T, startMS int64, texts ...string) {
	t.Helper()
	for i, text := range texts {
		start := startMS + int64(i)*1000
		if _, err := f.store.AppendSegment(context.Background(), f.meetingID, text, start, start+900); err != nil {
			t.Fatalf("Failed to append segment: %v", err)
		}
		f.bus.Publish(events.Event{Type: events.TypeSegmentReady, MeetingID: f.meetingID})
	}
}

// waitForMention blocks until a note mention arrives or the timeout expires
func (f *monitorFixture) waitForMention(t *testing.T, timeout time.Duration) (events.Event, bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-f.events:
			if ev.Type == events.TypeNoteMention {
				return ev, true
			}
		case <-deadline:
			return events.Event{}, false
		}
	}
}

func TestMonitorPublishesMention(t *testing.T) {
	f := newMonitorFixture(t, KeywordEvaluator{}, time.Hour)

	if _, err := f.watches.Add("budget"); err != nil {
		t.Fatalf("Failed to add watch: %v", err)
	}

	f.pushSegments(t, 0,
		"Good morning everyone.",
		"Yesterday I finished the parser work.",
		"Today we need to revisit the budget numbers.")

	ev, ok := f.waitForMention(t, 2*time.Second)
	if !ok {
		t.Fatal("Expected a note mention event")
	}
	if ev.MeetingID != f.meetingID {
		t.Errorf("Expected meeting %s, got %s", f.meetingID, ev.MeetingID)
	}

	payload, ok := ev.Payload.(mentionPayload)
	if !ok {
		t.Fatalf("Unexpected payload type %T", ev.Payload)
	}
	if payload.Phrase != "budget" {
		t.Errorf("Expected phrase 'budget', got %q", payload.Phrase)
	}
	if payload.Briefing == "" {
		t.Error("Expected a briefing")
	}
}

func TestMonitorCooldownSuppressesRepeatAlerts(t *testing.T) {
	f := newMonitorFixture(t, KeywordEvaluator{}, time.Hour)

	if _, err := f.watches.Add("budget"); err != nil {
		t.Fatalf("Failed to add watch: %v", err)
	}

	f.pushSegments(t, 0, "one", "two", "the budget again")
	if _, ok := f.waitForMention(t, 2*time.Second); !ok {
		t.Fatal("Expected first mention to alert")
	}

	f.pushSegments(t, 10000, "more budget talk", "filler", "still the budget")
	if _, ok := f.waitForMention(t, 500*time.Millisecond); ok {
		t.Error("Expected repeat mention within cooldown to be suppressed")
	}

	// Suppressed mentions still count
	waitFor(t, 2*time.Second, func() bool {
		return f.watches.List()[0].MentionCount >= 2
	}, "mention count to reach 2")
}

func TestMonitorChecksOnlyEveryN(t *testing.T) {
	f := newMonitorFixture(t, KeywordEvaluator{}, time.Hour)

	if _, err := f.watches.Add("budget"); err != nil {
		t.Fatalf("Failed to add watch: %v", err)
	}

	// Two segments, check interval is three: no check yet
	f.pushSegments(t, 0, "budget talk", "more budget")
	if _, ok := f.waitForMention(t, 300*time.Millisecond); ok {
		t.Error("Expected no check before the segment interval elapses")
	}

	f.pushSegments(t, 5000, "third segment")
	if _, ok := f.waitForMention(t, 2*time.Second); !ok {
		t.Error("Expected check to fire on the interval boundary")
	}
}

func TestMonitorEvaluatorFailureSkipsCycle(t *testing.T) {
	evaluator := &failingEvaluator{}
	f := newMonitorFixture(t, evaluator, time.Hour)

	if _, err := f.watches.Add("budget"); err != nil {
		t.Fatalf("Failed to add watch: %v", err)
	}

	f.pushSegments(t, 0, "one", "budget", "three")

	waitFor(t, 2*time.Second, func() bool {
		return evaluator.calls.Load() >= 1
	}, "evaluator to be invoked")

	if _, ok := f.waitForMention(t, 300*time.Millisecond); ok {
		t.Error("Expected no mention when the evaluator fails")
	}
	if f.watches.List()[0].MentionCount != 0 {
		t.Error("Expected no mention bookkeeping on evaluator failure")
	}
}

func TestMonitorIgnoresEmptyWatchList(t *testing.T) {
	evaluator := &failingEvaluator{}
	f := newMonitorFixture(t, evaluator, time.Hour)

	f.pushSegments(t, 0, "one", "two", "three")

	time.Sleep(200 * time.Millisecond)
	if evaluator.calls.Load() != 0 {
		t.Error("Expected no evaluation with an empty watch list")
	}
}

// waitFor polls a condition until it holds or the timeout expires
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
