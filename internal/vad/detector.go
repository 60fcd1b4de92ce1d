package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Detector performs RMS-based silence detection over a stream of PCM samples.
// It computes windowed RMS energy with exponential smoothing and reports how
// long the level has stayed below the configured threshold.
type Detector struct {
	threshold  float64 // RMS level below which audio counts as silent
	hold       time.Duration
	windowSize int
	smoothing  float64
	sampleRate int

	// Detection state
	level     float64       // smoothed RMS, 0..1
	silentFor time.Duration // continuous time below threshold
	primed    bool          // first window seen

	// Statistics
	windowsProcessed uint64
	silentWindows    uint64

	mu sync.RWMutex
}

// Result represents the outcome of feeding samples to the detector
type Result struct {
	Level     float64       `json:"level"`      // smoothed RMS, 0..1
	Silent    bool          `json:"silent"`     // below threshold for at least the hold time
	SilentFor time.Duration `json:"silent_for"` // continuous time below threshold
}

// DetectorStats represents detector statistics for monitoring
type DetectorStats struct {
	Threshold        float64 `json:"threshold"`
	WindowsProcessed uint64  `json:"windows_processed"`
	SilentWindows    uint64  `json:"silent_windows"`
	SilentPercentage float64 `json:"silent_percentage"`
	CurrentLevel     float64 `json:"current_level"`
}

// NewDetector creates a new RMS silence detector
func NewDetector(threshold float64, hold time.Duration, windowSize int, smoothing float64, sampleRate int) (*Detector, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}
	if hold <= 0 {
		return nil, fmt.Errorf("hold must be positive, got %v", hold)
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	if smoothing <= 0 || smoothing > 1 {
		return nil, fmt.Errorf("smoothing must be in (0, 1], got %f", smoothing)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	return &Detector{
		threshold:  threshold,
		hold:       hold,
		windowSize: windowSize,
		smoothing:  smoothing,
		sampleRate: sampleRate,
	}, nil
}

// Process feeds a run of samples through the detector and returns the updated
// silence state. The run may be any length; it is evaluated window by window
// so silence timing stays proportional to audio time, not call cadence.
func (d *Detector) Process(samples []float32) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(samples) == 0 {
		return d.resultLocked()
	}

	for start := 0; start < len(samples); start += d.windowSize {
		end := start + d.windowSize
		if end > len(samples) {
			end = len(samples)
		}
		window := samples[start:end]

		rms := RMS(window)
		if d.primed {
			d.level = d.smoothing*rms + (1-d.smoothing)*d.level
		} else {
			d.level = rms
			d.primed = true
		}

		windowDuration := time.Duration(len(window)) * time.Second / time.Duration(d.sampleRate)
		d.windowsProcessed++
		if d.level < d.threshold {
			d.silentFor += windowDuration
			d.silentWindows++
		} else {
			d.silentFor = 0
		}
	}

	return d.resultLocked()
}

// resultLocked builds a Result from current state; caller holds the lock
func (d *Detector) resultLocked() Result {
	return Result{
		Level:     d.level,
		Silent:    d.silentFor >= d.hold,
		SilentFor: d.silentFor,
	}
}

// Reset clears detection state for a fresh recording window
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.level = 0
	d.silentFor = 0
	d.primed = false
}

// Threshold returns the configured silence threshold
func (d *Detector) Threshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// Level returns the current smoothed RMS level
func (d *Detector) Level() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.level
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() DetectorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	silentPercentage := float64(0)
	if d.windowsProcessed > 0 {
		silentPercentage = float64(d.silentWindows) / float64(d.windowsProcessed) * 100
	}

	return DetectorStats{
		Threshold:        d.threshold,
		WindowsProcessed: d.windowsProcessed,
		SilentWindows:    d.silentWindows,
		SilentPercentage: silentPercentage,
		CurrentLevel:     d.level,
	}
}

// RMS computes the root mean square energy of a sample run
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
