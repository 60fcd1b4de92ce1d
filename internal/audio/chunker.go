package audio

import (
	"sync"
	"time"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/vad"
)

// ChunkState represents the current state of the chunk scheduler
type ChunkState int

const (
	StateIdle ChunkState = iota
	StateArmed
	StateSealing
	StatePaused
)

// String returns a human-readable state name
func (s ChunkState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateSealing:
		return "sealing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// SealReason describes why a chunk boundary was placed
type SealReason string

const (
	SealWindow  SealReason = "window"  // nominal window reached at a quiet moment
	SealSilence SealReason = "silence" // trailing silence held long enough
	SealMax     SealReason = "max"     // hard maximum reached during continuous speech
	SealFlush   SealReason = "flush"   // forced seal on stop
)

// Chunk represents a sealed, bounded span of audio ready for transcription.
// Start and end are relative to the meeting start and immutable once sealed.
type Chunk struct {
	Samples    []float32  `json:"-"`
	StartMS    int64      `json:"start_ms"`
	EndMS      int64      `json:"end_ms"`
	SampleRate int        `json:"sample_rate"`
	Reason     SealReason `json:"reason"`
}

// Duration returns the chunk's audio duration
func (c *Chunk) Duration() time.Duration {
	return time.Duration(c.EndMS-c.StartMS) * time.Millisecond
}

// ChunkerConfig contains chunk boundary tunables
type ChunkerConfig struct {
	Nominal    time.Duration // target window
	Min        time.Duration // shortest early seal
	Max        time.Duration // hard latency bound
	SampleRate int
}

// Chunker decides when a run of buffered audio becomes a sealed chunk.
// It is fed drained samples plus the detector result on every poll tick and
// returns a sealed chunk when a boundary condition is met. Chunks are
// non-overlapping and their timestamps advance monotonically.
type Chunker struct {
	config  ChunkerConfig
	state   ChunkState
	current []float32
	nextMS  int64 // meeting-relative start of the chunk being accumulated

	// Statistics
	sealedByReason map[SealReason]uint64
	totalDuration  time.Duration

	mu sync.Mutex
}

// ChunkerStats represents chunk scheduler statistics
type ChunkerStats struct {
	State          string            `json:"state"`
	PendingSamples int               `json:"pending_samples"`
	ChunksSealed   uint64            `json:"chunks_sealed"`
	SealedByReason map[string]uint64 `json:"sealed_by_reason"`
	TotalDuration  time.Duration     `json:"total_duration"`
}

// NewChunker creates a new chunk scheduler
func NewChunker(config ChunkerConfig) *Chunker {
	return &Chunker{
		config:         config,
		state:          StateIdle,
		sealedByReason: make(map[SealReason]uint64),
	}
}

// Feed appends drained samples and evaluates boundary conditions. It returns
// a sealed chunk when one is due, nil otherwise. While paused, samples are
// discarded. Feed never blocks.
func (c *Chunker) Feed(samples []float32, det vad.Result) *Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StatePaused {
		return nil
	}

	if len(samples) > 0 {
		c.current = append(c.current, samples...)
		if c.state == StateIdle {
			c.state = StateArmed
		}
	}

	if c.state != StateArmed {
		return nil
	}

	dur := c.currentDuration()
	switch {
	case dur >= c.config.Max:
		return c.sealLocked(SealMax)
	case det.Silent && dur >= c.config.Min:
		return c.sealLocked(SealSilence)
	case dur >= c.config.Nominal && det.SilentFor > 0:
		// Nominal boundary at a quiet moment; continuous speech defers
		// sealing up to the hard maximum.
		return c.sealLocked(SealWindow)
	}

	return nil
}

// Flush forces an immediate seal of whatever is accumulated, even below the
// minimum duration, so no trailing speech is lost on stop. Returns nil when
// nothing is pending.
func (c *Chunker) Flush() *Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.current) == 0 {
		return nil
	}
	return c.sealLocked(SealFlush)
}

// sealLocked closes the current accumulation into an immutable chunk;
// caller holds the lock
func (c *Chunker) sealLocked(reason SealReason) *Chunk {
	c.state = StateSealing

	durMS := int64(len(c.current)) * 1000 / int64(c.config.SampleRate)
	chunk := &Chunk{
		Samples:    c.current,
		StartMS:    c.nextMS,
		EndMS:      c.nextMS + durMS,
		SampleRate: c.config.SampleRate,
		Reason:     reason,
	}

	c.nextMS = chunk.EndMS
	c.current = nil
	c.state = StateIdle

	c.sealedByReason[reason]++
	c.totalDuration += chunk.Duration()

	return chunk
}

// SetPaused suspends sealing. Pausing discards the partial accumulation so
// a resumed recording starts a fresh window; the meeting timeline does not
// advance across the gap.
func (c *Chunker) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if paused {
		c.current = nil
		c.state = StatePaused
	} else if c.state == StatePaused {
		c.state = StateIdle
	}
}

// State returns the scheduler's current state
func (c *Chunker) State() ChunkState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HasPending reports whether samples are accumulated toward the next chunk
func (c *Chunker) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.current) > 0
}

// PositionMS returns the meeting-relative start of the next chunk
func (c *Chunker) PositionMS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextMS
}

// currentDuration returns the accumulated audio duration; caller holds the lock
func (c *Chunker) currentDuration() time.Duration {
	return time.Duration(len(c.current)) * time.Second / time.Duration(c.config.SampleRate)
}

// GetStats returns current chunk scheduler statistics
func (c *Chunker) GetStats() ChunkerStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sealed uint64
	byReason := make(map[string]uint64, len(c.sealedByReason))
	for reason, n := range c.sealedByReason {
		byReason[string(reason)] = n
		sealed += n
	}

	return ChunkerStats{
		State:          c.state.String(),
		PendingSamples: len(c.current),
		ChunksSealed:   sealed,
		SealedByReason: byReason,
		TotalDuration:  c.totalDuration,
	}
}
