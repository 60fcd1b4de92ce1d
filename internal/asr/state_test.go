package asr

import (
	"testing"
)

func TestStateTrackerHappyPath(t *testing.T) {
	var transitions []ModelState
	tracker := NewStateTracker("whisper-base", func(s StateSnapshot) {
		transitions = append(transitions, s.State)
	})

	if tracker.State() != StateNotLoaded {
		t.Fatalf("expected not_loaded initial state, got %s", tracker.State())
	}
	if tracker.IsLoaded() {
		t.Error("expected IsLoaded false before loading")
	}

	if err := tracker.StartLoading(); err != nil {
		t.Fatalf("start loading failed: %v", err)
	}
	if err := tracker.SetLoaded(); err != nil {
		t.Fatalf("set loaded failed: %v", err)
	}
	if !tracker.IsLoaded() {
		t.Error("expected IsLoaded true after loading")
	}
	if err := tracker.Unload(); err != nil {
		t.Fatalf("unload failed: %v", err)
	}

	want := []ModelState{StateDownloading, StateLoaded, StateNotLoaded}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(transitions))
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestStateTrackerFailureAndRetry(t *testing.T) {
	tracker := NewStateTracker("parakeet-v2", nil)

	if err := tracker.StartLoading(); err != nil {
		t.Fatalf("start loading failed: %v", err)
	}
	if err := tracker.SetFailed("download interrupted"); err != nil {
		t.Fatalf("set failed failed: %v", err)
	}

	snapshot := tracker.Snapshot()
	if snapshot.State != StateFailed {
		t.Errorf("expected failed state, got %s", snapshot.State)
	}
	if snapshot.Error != "download interrupted" {
		t.Errorf("expected failure reason, got %q", snapshot.Error)
	}

	// Failed models may retry loading
	if err := tracker.StartLoading(); err != nil {
		t.Fatalf("retry after failure should be legal: %v", err)
	}
	if err := tracker.SetLoaded(); err != nil {
		t.Fatalf("set loaded failed: %v", err)
	}

	// The failure reason clears on a successful transition
	if snapshot := tracker.Snapshot(); snapshot.Error != "" {
		t.Errorf("expected cleared error, got %q", snapshot.Error)
	}
}

func TestStateTrackerRejectsIllegalTransitions(t *testing.T) {
	tracker := NewStateTracker("whisper-base", nil)

	if err := tracker.SetLoaded(); err == nil {
		t.Error("expected error: not_loaded -> loaded is illegal")
	}
	if err := tracker.SetFailed("x"); err == nil {
		t.Error("expected error: not_loaded -> failed is illegal")
	}
	if err := tracker.Unload(); err == nil {
		t.Error("expected error: not_loaded -> not_loaded is illegal")
	}

	tracker.StartLoading()
	if err := tracker.StartLoading(); err == nil {
		t.Error("expected error: downloading -> downloading is illegal")
	}
	if err := tracker.Unload(); err == nil {
		t.Error("expected error: downloading -> not_loaded is illegal")
	}
}
