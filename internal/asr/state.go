package asr

import (
	"fmt"
	"sync"
	"time"
)

// ModelState represents the lifecycle state of an inference model
type ModelState string

const (
	StateNotLoaded   ModelState = "not_loaded"
	StateDownloading ModelState = "downloading"
	StateLoaded      ModelState = "loaded"
	StateFailed      ModelState = "failed"
)

// StateSnapshot represents a point-in-time view of a tracked model
type StateSnapshot struct {
	Model     string     `json:"model"`
	State     ModelState `json:"state"`
	Error     string     `json:"error,omitempty"`
	ChangedAt time.Time  `json:"changed_at"`
}

// StateTracker tracks a model through its lifecycle and enforces legal
// transitions: not_loaded -> downloading -> loaded or failed, failed ->
// downloading on retry, and loaded -> not_loaded on unload. An optional
// callback observes every transition.
type StateTracker struct {
	model     string
	state     ModelState
	lastErr   string
	changedAt time.Time
	onChange  func(StateSnapshot)

	mu sync.RWMutex
}

// NewStateTracker creates a tracker for the named model in the not_loaded
// state. onChange may be nil.
func NewStateTracker(model string, onChange func(StateSnapshot)) *StateTracker {
	return &StateTracker{
		model:     model,
		state:     StateNotLoaded,
		changedAt: time.Now(),
		onChange:  onChange,
	}
}

// StartLoading transitions to downloading. Legal from not_loaded and failed.
func (t *StateTracker) StartLoading() error {
	return t.transition(StateDownloading, "", StateNotLoaded, StateFailed)
}

// SetLoaded transitions to loaded. Legal only from downloading.
func (t *StateTracker) SetLoaded() error {
	return t.transition(StateLoaded, "", StateDownloading)
}

// SetFailed transitions to failed with the given reason. Legal only from
// downloading.
func (t *StateTracker) SetFailed(reason string) error {
	return t.transition(StateFailed, reason, StateDownloading)
}

// Unload transitions back to not_loaded. Legal only from loaded.
func (t *StateTracker) Unload() error {
	return t.transition(StateNotLoaded, "", StateLoaded)
}

// transition moves to the target state if the current state is in the
// allowed set, firing the change callback outside the lock
func (t *StateTracker) transition(to ModelState, reason string, from ...ModelState) error {
	t.mu.Lock()

	allowed := false
	for _, s := range from {
		if t.state == s {
			allowed = true
			break
		}
	}
	if !allowed {
		current := t.state
		t.mu.Unlock()
		return fmt.Errorf("illegal model state transition: %s -> %s", current, to)
	}

	t.state = to
	t.lastErr = reason
	t.changedAt = time.Now()
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(snapshot)
	}
	return nil
}

// State returns the current model state
func (t *StateTracker) State() ModelState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// IsLoaded reports whether the model is ready for inference
func (t *StateTracker) IsLoaded() bool {
	return t.State() == StateLoaded
}

// Snapshot returns a point-in-time view of the tracked model
func (t *StateTracker) Snapshot() StateSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// snapshotLocked builds a snapshot; caller holds the lock
func (t *StateTracker) snapshotLocked() StateSnapshot {
	return StateSnapshot{
		Model:     t.model,
		State:     t.state,
		Error:     t.lastErr,
		ChangedAt: t.changedAt,
	}
}
