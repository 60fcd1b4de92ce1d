package notes

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrWatchLimit indicates the watch list is at its configured maximum
var ErrWatchLimit = errors.New("watch limit reached")

// Watch represents one phrase being monitored for mentions
type Watch struct {
	ID              string     `json:"id"`
	Phrase          string     `json:"phrase"`
	CreatedAt       time.Time  `json:"created_at"`
	MentionCount    int        `json:"mention_count"`
	LastMentionedAt *time.Time `json:"last_mentioned_at,omitempty"`
}

// Watches holds the active watch phrases for a session. The list is bounded
// and lives in memory only; it resets when the daemon restarts.
type Watches struct {
	max     int
	watches []*Watch
	mu      sync.RWMutex
}

// NewWatches creates a watch list with the given maximum size
func NewWatches(max int) *Watches {
	if max <= 0 {
		max = 10
	}
	return &Watches{max: max}
}

// Add registers a new phrase to watch. Beyond the maximum it returns
// ErrWatchLimit; duplicate phrases are rejected.
func (w *Watches) Add(phrase string) (*Watch, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil, fmt.Errorf("watch phrase cannot be empty")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.watches) >= w.max {
		return nil, ErrWatchLimit
	}
	for _, existing := range w.watches {
		if strings.EqualFold(existing.Phrase, phrase) {
			return nil, fmt.Errorf("phrase %q is already watched", phrase)
		}
	}

	watch := &Watch{
		ID:        uuid.New().String(),
		Phrase:    phrase,
		CreatedAt: time.Now(),
	}
	w.watches = append(w.watches, watch)
	return watch, nil
}

// Remove deletes a watch by id
func (w *Watches) Remove(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, watch := range w.watches {
		if watch.ID == id {
			w.watches = append(w.watches[:i], w.watches[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("watch %s not found", id)
}

// List returns a snapshot of the current watches
func (w *Watches) List() []*Watch {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]*Watch, len(w.watches))
	for i, watch := range w.watches {
		copied := *watch
		out[i] = &copied
	}
	return out
}

// Phrases returns just the watched phrase strings
func (w *Watches) Phrases() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	phrases := make([]string, len(w.watches))
	for i, watch := range w.watches {
		phrases[i] = watch.Phrase
	}
	return phrases
}

// recordMention bumps a phrase's mention bookkeeping and reports whether
// the alert cooldown has elapsed since the previous mention
func (w *Watches) recordMention(phrase string, cooldown time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, watch := range w.watches {
		if !strings.EqualFold(watch.Phrase, phrase) {
			continue
		}

		now := time.Now()
		alert := watch.LastMentionedAt == nil || now.Sub(*watch.LastMentionedAt) >= cooldown
		watch.MentionCount++
		watch.LastMentionedAt = &now
		return alert
	}
	return false
}
