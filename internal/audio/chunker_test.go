package audio

import (
	"testing"
	"time"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/vad"
)

func testChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		Nominal:    5 * time.Second,
		Min:        1 * time.Second,
		Max:        10 * time.Second,
		SampleRate: 16000,
	}
}

func speech(dur time.Duration, rate int) []float32 {
	samples := make([]float32, int(dur.Seconds()*float64(rate)))
	for i := range samples {
		samples[i] = 0.5
	}
	return samples
}

func TestChunkerSealsAtNominalWindow(t *testing.T) {
	c := NewChunker(testChunkerConfig())

	// Feed just under the nominal window during speech: no seal yet
	chunk := c.Feed(speech(4900*time.Millisecond, 16000), vad.Result{Level: 0.5})
	if chunk != nil {
		t.Fatal("expected no seal below the nominal window")
	}
	if c.State() != StateArmed {
		t.Errorf("expected armed state, got %s", c.State())
	}

	// Cross the window at a quiet moment
	chunk = c.Feed(speech(200*time.Millisecond, 16000), vad.Result{Level: 0.001, SilentFor: 100 * time.Millisecond})
	if chunk == nil {
		t.Fatal("expected a sealed chunk at the nominal window")
	}
	if chunk.Reason != SealWindow {
		t.Errorf("expected window seal, got %s", chunk.Reason)
	}
	if chunk.StartMS != 0 {
		t.Errorf("expected chunk start at 0, got %d", chunk.StartMS)
	}
	if chunk.EndMS != 5100 {
		t.Errorf("expected chunk end at 5100ms, got %d", chunk.EndMS)
	}
}

func TestChunkerSealsEarlyOnSilence(t *testing.T) {
	c := NewChunker(testChunkerConfig())

	chunk := c.Feed(speech(4*time.Second, 16000), vad.Result{Level: 0.5})
	if chunk != nil {
		t.Fatal("expected no seal during speech")
	}

	// Held silence after 4s of speech seals before the nominal window
	chunk = c.Feed(speech(600*time.Millisecond, 16000), vad.Result{Silent: true, SilentFor: 600 * time.Millisecond})
	if chunk == nil {
		t.Fatal("expected an early seal on held silence")
	}
	if chunk.Reason != SealSilence {
		t.Errorf("expected silence seal, got %s", chunk.Reason)
	}
	if chunk.EndMS != 4600 {
		t.Errorf("expected chunk end at 4600ms, got %d", chunk.EndMS)
	}
}

func TestChunkerSilenceRespectsMinDuration(t *testing.T) {
	c := NewChunker(testChunkerConfig())

	// Held silence with under a second accumulated must not seal
	chunk := c.Feed(speech(500*time.Millisecond, 16000), vad.Result{Silent: true, SilentFor: time.Second})
	if chunk != nil {
		t.Errorf("expected no seal below minimum duration, got %s", chunk.Reason)
	}
}

func TestChunkerSealsAtMaxDuringContinuousSpeech(t *testing.T) {
	c := NewChunker(testChunkerConfig())

	// Continuous speech defers the window seal until the hard maximum
	chunk := c.Feed(speech(9*time.Second, 16000), vad.Result{Level: 0.5})
	if chunk != nil {
		t.Fatal("expected no seal before the maximum during speech")
	}

	chunk = c.Feed(speech(time.Second, 16000), vad.Result{Level: 0.5})
	if chunk == nil {
		t.Fatal("expected a forced seal at the maximum duration")
	}
	if chunk.Reason != SealMax {
		t.Errorf("expected max seal, got %s", chunk.Reason)
	}
	if chunk.EndMS != 10000 {
		t.Errorf("expected chunk end at 10000ms, got %d", chunk.EndMS)
	}
}

func TestChunkerTimestampsAdvanceMonotonically(t *testing.T) {
	c := NewChunker(testChunkerConfig())
	quiet := vad.Result{Silent: true, SilentFor: time.Second}

	var prev *Chunk
	for i := 0; i < 3; i++ {
		chunk := c.Feed(speech(5*time.Second, 16000), quiet)
		if chunk == nil {
			t.Fatalf("expected seal on iteration %d", i)
		}
		if prev != nil && chunk.StartMS != prev.EndMS {
			t.Errorf("expected contiguous chunks: prev end %d, next start %d", prev.EndMS, chunk.StartMS)
		}
		if chunk.EndMS <= chunk.StartMS {
			t.Errorf("chunk %d has non-positive span: %d..%d", i, chunk.StartMS, chunk.EndMS)
		}
		prev = chunk
	}

	if c.PositionMS() != 15000 {
		t.Errorf("expected position 15000ms after three chunks, got %d", c.PositionMS())
	}
}

func TestChunkerFlushIgnoresMinimum(t *testing.T) {
	c := NewChunker(testChunkerConfig())

	if chunk := c.Flush(); chunk != nil {
		t.Error("expected nil flush with nothing pending")
	}

	c.Feed(speech(300*time.Millisecond, 16000), vad.Result{Level: 0.5})

	chunk := c.Flush()
	if chunk == nil {
		t.Fatal("expected flush to seal the partial accumulation")
	}
	if chunk.Reason != SealFlush {
		t.Errorf("expected flush seal, got %s", chunk.Reason)
	}
	if chunk.EndMS != 300 {
		t.Errorf("expected 300ms chunk, got end %d", chunk.EndMS)
	}
	if c.HasPending() {
		t.Error("expected no pending samples after flush")
	}
}

func TestChunkerPauseDiscardsPartial(t *testing.T) {
	c := NewChunker(testChunkerConfig())

	c.Feed(speech(2*time.Second, 16000), vad.Result{Level: 0.5})
	c.SetPaused(true)

	if c.State() != StatePaused {
		t.Errorf("expected paused state, got %s", c.State())
	}
	if c.HasPending() {
		t.Error("expected pause to discard the partial accumulation")
	}

	// Samples fed while paused are dropped
	if chunk := c.Feed(speech(5*time.Second, 16000), vad.Result{Level: 0.5}); chunk != nil {
		t.Error("expected no seal while paused")
	}
	if c.HasPending() {
		t.Error("expected paused feed to be discarded")
	}

	c.SetPaused(false)
	if c.State() != StateIdle {
		t.Errorf("expected idle state after resume, got %s", c.State())
	}

	// A fresh window starts where the timeline left off
	chunk := c.Feed(speech(5*time.Second, 16000), vad.Result{Silent: true, SilentFor: time.Second})
	if chunk == nil {
		t.Fatal("expected seal after resume")
	}
	if chunk.StartMS != 0 {
		t.Errorf("expected timeline unchanged across pause, got start %d", chunk.StartMS)
	}
}

func TestChunkerStats(t *testing.T) {
	c := NewChunker(testChunkerConfig())
	quiet := vad.Result{Silent: true, SilentFor: time.Second}

	c.Feed(speech(5*time.Second, 16000), quiet)
	c.Feed(speech(2*time.Second, 16000), vad.Result{Level: 0.5})
	c.Flush()

	stats := c.GetStats()
	if stats.ChunksSealed != 2 {
		t.Errorf("expected 2 sealed chunks, got %d", stats.ChunksSealed)
	}
	if stats.SealedByReason["silence"] != 1 {
		t.Errorf("expected 1 silence seal, got %d", stats.SealedByReason["silence"])
	}
	if stats.SealedByReason["flush"] != 1 {
		t.Errorf("expected 1 flush seal, got %d", stats.SealedByReason["flush"])
	}
	if stats.TotalDuration != 7*time.Second {
		t.Errorf("expected 7s total duration, got %s", stats.TotalDuration)
	}
}
