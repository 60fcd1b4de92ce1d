package events

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(8, testLogger())

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	if bus.SubscriberCount() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", bus.SubscriberCount())
	}

	bus.Publish(Event{Type: TypeSegmentReady, MeetingID: "m1"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != TypeSegmentReady {
				t.Errorf("subscriber %d: expected segment_ready, got %s", i, ev.Type)
			}
			if ev.MeetingID != "m1" {
				t.Errorf("subscriber %d: expected meeting m1, got %s", i, ev.MeetingID)
			}
			if ev.Time.IsZero() {
				t.Errorf("subscriber %d: expected publish to stamp the time", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out waiting for event", i)
		}
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(2, testLogger())

	_, cancel := bus.Subscribe()
	defer cancel()

	// Overfill the subscriber buffer; Publish must return regardless
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Type: TypeStatus})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	stats := bus.GetStats()
	if stats.EventsPublished != 10 {
		t.Errorf("expected 10 published, got %d", stats.EventsPublished)
	}
	if stats.EventsDropped != 8 {
		t.Errorf("expected 8 dropped, got %d", stats.EventsDropped)
	}
}

func TestBusCancelRemovesSubscriber(t *testing.T) {
	bus := NewBus(8, testLogger())

	ch, cancel := bus.Subscribe()
	cancel()

	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after cancel, got %d", bus.SubscriberCount())
	}

	// The channel is closed so receives do not hang
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after cancel")
	}

	// Double cancel is safe
	cancel()
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(8, testLogger())
	bus.Publish(Event{Type: TypeMeetingStarted})

	if stats := bus.GetStats(); stats.EventsPublished != 1 {
		t.Errorf("expected publish to count with no subscribers, got %d", stats.EventsPublished)
	}
}
