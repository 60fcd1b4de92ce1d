package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event types published on the bus
const (
	TypeSegmentReady      = "segment_ready"
	TypeMeetingStarted    = "meeting_started"
	TypeMeetingClosed     = "meeting_closed"
	TypeNoteMention       = "note_mention"
	TypeModelState        = "model_state"
	TypeStatus            = "status"
	TypeCaptureOverflow   = "capture_overflow"
	TypeChunkBackpressure = "chunk_backpressure"
)

// Event represents a single notification published on the bus
type Event struct {
	Type      string      `json:"type"`
	MeetingID string      `json:"meeting_id,omitempty"`
	Time      time.Time   `json:"time"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Bus fans events out to subscribers over buffered channels. Publishing
// never blocks: a subscriber that cannot keep up has events dropped with a
// warning rather than stalling the pipeline.
type Bus struct {
	bufferSize  int
	subscribers map[int]chan Event
	nextID      int

	// Statistics
	published uint64
	dropped   uint64

	logger *slog.Logger
	mu     sync.RWMutex
}

// BusStats represents event bus statistics for monitoring
type BusStats struct {
	Subscribers     int    `json:"subscribers"`
	EventsPublished uint64 `json:"events_published"`
	EventsDropped   uint64 `json:"events_dropped"`
}

// NewBus creates a new event bus with the given per-subscriber buffer size
func NewBus(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		bufferSize:  bufferSize,
		subscribers: make(map[int]chan Event),
		logger:      logger,
	}
}

// Subscribe registers a new subscriber and returns its channel along with a
// cancel function. The caller must call cancel when done; the channel is
// closed by cancel, never by Publish.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, b.bufferSize)
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}

	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking. Events are
// dropped for subscribers whose buffers are full.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.published++
	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.dropped++
			b.logger.Warn("Event dropped for slow subscriber",
				slog.Int("subscriber_id", id),
				slog.String("event_type", event.Type))
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// GetStats returns current event bus statistics
func (b *Bus) GetStats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BusStats{
		Subscribers:     len(b.subscribers),
		EventsPublished: b.published,
		EventsDropped:   b.dropped,
	}
}
