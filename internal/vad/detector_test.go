package vad

import (
	"math"
	"testing"
	"time"
)

func testDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(0.01, 600*time.Millisecond, 1024, 0.3, 16000)
	if err != nil {
		t.Fatalf("failed to create detector: %v", err)
	}
	return d
}

func constantSignal(amplitude float32, dur time.Duration, rate int) []float32 {
	samples := make([]float32, int(dur.Seconds()*float64(rate)))
	for i := range samples {
		samples[i] = amplitude
	}
	return samples
}

func TestNewDetectorValidation(t *testing.T) {
	cases := []struct {
		name       string
		threshold  float64
		hold       time.Duration
		windowSize int
		smoothing  float64
		sampleRate int
	}{
		{"negative threshold", -0.1, time.Second, 1024, 0.3, 16000},
		{"threshold above one", 1.5, time.Second, 1024, 0.3, 16000},
		{"zero hold", 0.01, 0, 1024, 0.3, 16000},
		{"zero window", 0.01, time.Second, 0, 0.3, 16000},
		{"zero smoothing", 0.01, time.Second, 1024, 0, 16000},
		{"zero sample rate", 0.01, time.Second, 1024, 0.3, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewDetector(tc.threshold, tc.hold, tc.windowSize, tc.smoothing, tc.sampleRate); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDetectorSpeechIsNotSilent(t *testing.T) {
	d := testDetector(t)

	result := d.Process(constantSignal(0.5, time.Second, 16000))
	if result.Silent {
		t.Error("expected loud signal to not be silent")
	}
	if result.Level < 0.4 {
		t.Errorf("expected level near 0.5, got %f", result.Level)
	}
	if result.SilentFor != 0 {
		t.Errorf("expected zero silent duration, got %s", result.SilentFor)
	}
}

func TestDetectorSilenceRequiresHold(t *testing.T) {
	d := testDetector(t)

	// 300ms of silence: below threshold but not held long enough
	result := d.Process(constantSignal(0.001, 300*time.Millisecond, 16000))
	if result.Silent {
		t.Error("expected silence below the hold time to not count")
	}
	if result.SilentFor < 250*time.Millisecond || result.SilentFor > 350*time.Millisecond {
		t.Errorf("expected ~300ms silent duration, got %s", result.SilentFor)
	}

	// Another 400ms crosses the hold
	result = d.Process(constantSignal(0.001, 400*time.Millisecond, 16000))
	if !result.Silent {
		t.Errorf("expected held silence to register, silent for %s", result.SilentFor)
	}
}

func TestDetectorSpeechResetsSilence(t *testing.T) {
	d := testDetector(t)

	d.Process(constantSignal(0.001, time.Second, 16000))
	result := d.Process(constantSignal(0.5, 200*time.Millisecond, 16000))
	if result.Silent {
		t.Error("expected speech to clear the silence state")
	}
	if result.SilentFor != 0 {
		t.Errorf("expected silent duration reset, got %s", result.SilentFor)
	}
}

func TestDetectorReset(t *testing.T) {
	d := testDetector(t)

	d.Process(constantSignal(0.001, time.Second, 16000))
	d.Reset()

	if d.Level() != 0 {
		t.Errorf("expected zero level after reset, got %f", d.Level())
	}

	result := d.Process(nil)
	if result.Silent || result.SilentFor != 0 {
		t.Error("expected clean state after reset")
	}
}

func TestRMS(t *testing.T) {
	if rms := RMS(nil); rms != 0 {
		t.Errorf("expected zero RMS for empty input, got %f", rms)
	}

	rms := RMS([]float32{0.5, -0.5, 0.5, -0.5})
	if math.Abs(rms-0.5) > 1e-9 {
		t.Errorf("expected RMS 0.5, got %f", rms)
	}
}

func TestDetectorStats(t *testing.T) {
	d := testDetector(t)

	d.Process(constantSignal(0.001, time.Second, 16000))
	d.Process(constantSignal(0.5, time.Second, 16000))

	stats := d.GetStats()
	if stats.WindowsProcessed == 0 {
		t.Error("expected processed windows to be counted")
	}
	if stats.SilentWindows == 0 {
		t.Error("expected silent windows to be counted")
	}
	if stats.SilentPercentage <= 0 || stats.SilentPercentage >= 100 {
		t.Errorf("expected mixed silent percentage, got %f", stats.SilentPercentage)
	}
	if stats.Threshold != 0.01 {
		t.Errorf("expected threshold 0.01, got %f", stats.Threshold)
	}
}
