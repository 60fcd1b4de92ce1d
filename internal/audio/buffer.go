package audio

import (
	"math"
	"sync"
	"time"
)

// levelWindow is the number of trailing samples used for the RMS level meter
const levelWindow = 1024

// CaptureBuffer absorbs PCM samples pushed by the audio source at arbitrary
// cadence and exposes a draining read for the chunk scheduler plus a
// non-destructive recent-window level for metering. It is safe for one
// concurrent writer (the source) and one concurrent reader (the scheduler).
type CaptureBuffer struct {
	samples    []float32
	sampleRate int
	maxSamples int // hard cap; oldest samples drop beyond this
	paused     bool

	// Recent samples for RMS metering, ring of levelWindow entries
	recent    [levelWindow]float32
	recentPos int
	recentLen int

	// Statistics
	pushed  uint64
	dropped uint64
	drained uint64

	mu sync.Mutex
}

// BufferStats represents capture buffer statistics for monitoring
type BufferStats struct {
	Pushed     uint64 `json:"samples_pushed"`
	Dropped    uint64 `json:"samples_dropped"`
	Drained    uint64 `json:"samples_drained"`
	Buffered   int    `json:"samples_buffered"`
	MaxSamples int    `json:"max_samples"`
	Paused     bool   `json:"paused"`
}

// NewCaptureBuffer creates a capture buffer holding at most maxSamples samples
func NewCaptureBuffer(sampleRate, maxSamples int) *CaptureBuffer {
	return &CaptureBuffer{
		samples:    make([]float32, 0, maxSamples/4),
		sampleRate: sampleRate,
		maxSamples: maxSamples,
	}
}

// Push appends samples to the buffer and returns the number of old samples
// dropped to stay under the cap. It never blocks. While paused, incoming
// samples are discarded entirely and the level meter reads zero.
func (b *CaptureBuffer) Push(samples []float32) (dropped int) {
	if len(samples) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused {
		return 0
	}

	b.samples = append(b.samples, samples...)
	b.pushed += uint64(len(samples))

	if len(b.samples) > b.maxSamples {
		dropped = len(b.samples) - b.maxSamples
		copy(b.samples, b.samples[dropped:])
		b.samples = b.samples[:b.maxSamples]
		b.dropped += uint64(dropped)
	}

	for _, s := range samples {
		b.recent[b.recentPos] = s
		b.recentPos = (b.recentPos + 1) % levelWindow
	}
	if b.recentLen < levelWindow {
		b.recentLen += len(samples)
		if b.recentLen > levelWindow {
			b.recentLen = levelWindow
		}
	}

	return dropped
}

// DrainChunk atomically removes and returns up to max worth of samples in
// buffer order. It returns fewer (possibly none) if less audio is buffered.
func (b *CaptureBuffer) DrainChunk(max time.Duration) []float32 {
	want := int(max.Seconds() * float64(b.sampleRate))
	if want <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.samples)
	if n == 0 {
		return nil
	}
	if n > want {
		n = want
	}

	out := make([]float32, n)
	copy(out, b.samples[:n])
	copy(b.samples, b.samples[n:])
	b.samples = b.samples[:len(b.samples)-n]
	b.drained += uint64(n)

	return out
}

// CurrentLevel returns the RMS level over the last ~1024 pushed samples,
// clamped to [0, 1]. It reads 0 when idle or paused.
func (b *CaptureBuffer) CurrentLevel() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused || b.recentLen == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < b.recentLen; i++ {
		s := float64(b.recent[i])
		sum += s * s
	}
	level := math.Sqrt(sum / float64(b.recentLen))
	// RMS of full-scale PCM never exceeds 1, but clamp against hot inputs
	if level > 1 {
		level = 1
	}
	return level
}

// SetPaused toggles discard mode. While paused, Push drops all incoming
// samples and the level meter resets to zero. Already-buffered samples stay
// drainable, but a paused chunker discards them on arrival, so anything
// still buffered at pause time is lost along with the paused input.
func (b *CaptureBuffer) SetPaused(paused bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.paused = paused
	if paused {
		b.recentLen = 0
		b.recentPos = 0
	}
}

// IsPaused reports whether the buffer is currently discarding input
func (b *CaptureBuffer) IsPaused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Len returns the number of samples currently buffered
func (b *CaptureBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// SampleRate returns the buffer's sample rate in Hz
func (b *CaptureBuffer) SampleRate() int {
	return b.sampleRate
}

// GetStats returns current buffer statistics
func (b *CaptureBuffer) GetStats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{
		Pushed:     b.pushed,
		Dropped:    b.dropped,
		Drained:    b.drained,
		Buffered:   len(b.samples),
		MaxSamples: b.maxSamples,
		Paused:     b.paused,
	}
}
