package audio

import (
	"testing"
	"time"
)

func TestCaptureBufferPushDrain(t *testing.T) {
	buf := NewCaptureBuffer(16000, 16000*30)

	samples := make([]float32, 16000) // 1 second
	for i := range samples {
		samples[i] = 0.5
	}

	if dropped := buf.Push(samples); dropped != 0 {
		t.Errorf("expected no drops, got %d", dropped)
	}

	if buf.Len() != 16000 {
		t.Errorf("expected 16000 buffered samples, got %d", buf.Len())
	}

	drained := buf.DrainChunk(500 * time.Millisecond)
	if len(drained) != 8000 {
		t.Errorf("expected 8000 drained samples, got %d", len(drained))
	}

	if buf.Len() != 8000 {
		t.Errorf("expected 8000 remaining samples, got %d", buf.Len())
	}

	for i, s := range drained {
		if s != 0.5 {
			t.Fatalf("sample %d corrupted: got %f", i, s)
		}
	}
}

func TestCaptureBufferOverflowDropsOldest(t *testing.T) {
	buf := NewCaptureBuffer(16000, 100)

	first := make([]float32, 100)
	for i := range first {
		first[i] = 1.0
	}
	buf.Push(first)

	second := make([]float32, 50)
	for i := range second {
		second[i] = -1.0
	}

	dropped := buf.Push(second)
	if dropped != 50 {
		t.Errorf("expected 50 dropped samples, got %d", dropped)
	}

	if buf.Len() != 100 {
		t.Errorf("expected buffer at capacity 100, got %d", buf.Len())
	}

	// The newest audio must survive at the tail
	drained := buf.DrainChunk(time.Second)
	if drained[len(drained)-1] != -1.0 {
		t.Error("expected newest samples to survive overflow")
	}
	if drained[0] != 1.0 {
		t.Error("expected oldest surviving samples at the head")
	}
}

func TestCaptureBufferPausedDiscards(t *testing.T) {
	buf := NewCaptureBuffer(16000, 16000)

	pre := make([]float32, 1000)
	for i := range pre {
		pre[i] = 0.3
	}
	buf.Push(pre)

	buf.SetPaused(true)
	if !buf.IsPaused() {
		t.Fatal("expected buffer to report paused")
	}

	buf.Push(make([]float32, 2000))
	if buf.Len() != 1000 {
		t.Errorf("paused push must be discarded, got len %d", buf.Len())
	}

	// Pre-pause audio stays drainable for the final flush
	drained := buf.DrainChunk(time.Second)
	if len(drained) != 1000 {
		t.Errorf("expected pre-pause samples to drain, got %d", len(drained))
	}

	buf.SetPaused(false)
	buf.Push(pre)
	if buf.Len() != 1000 {
		t.Errorf("expected pushes to land after resume, got %d", buf.Len())
	}
}

func TestCaptureBufferLevel(t *testing.T) {
	buf := NewCaptureBuffer(16000, 16000)

	if level := buf.CurrentLevel(); level != 0 {
		t.Errorf("expected zero level before any audio, got %f", level)
	}

	loud := make([]float32, 2048)
	for i := range loud {
		loud[i] = 0.5
	}
	buf.Push(loud)

	level := buf.CurrentLevel()
	if level < 0.4 || level > 0.6 {
		t.Errorf("expected level near 0.5, got %f", level)
	}

	buf.SetPaused(true)
	if level := buf.CurrentLevel(); level != 0 {
		t.Errorf("expected zero level while paused, got %f", level)
	}
}

func TestCaptureBufferStats(t *testing.T) {
	buf := NewCaptureBuffer(16000, 100)

	buf.Push(make([]float32, 150))
	buf.DrainChunk(time.Second)

	stats := buf.GetStats()
	if stats.Pushed != 150 {
		t.Errorf("expected 150 pushed, got %d", stats.Pushed)
	}
	if stats.Dropped != 50 {
		t.Errorf("expected 50 dropped, got %d", stats.Dropped)
	}
	if stats.Drained != 100 {
		t.Errorf("expected 100 drained, got %d", stats.Drained)
	}
}
