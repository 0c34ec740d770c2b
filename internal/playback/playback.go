// Package playback drives narration of an open book: it feeds chunks to the
// speech engine one at a time, tracks the listening position, recovers from
// engine stalls, runs the sleep timer, and persists resume progress.
package playback

import (
	"time"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// Defaults for session timing. Tests shrink these through Tuning.
const (
	defaultDebounce       = 50 * time.Millisecond
	defaultWatchdogFloor  = 4 * time.Second
	defaultWatchdogMargin = 2 * time.Second
	defaultSaveInterval   = 30 * time.Second
	defaultSleepTick      = time.Second

	eventBuffer = 256
)

// Tuning overrides session timing and sizing. Zero fields keep the defaults.
type Tuning struct {
	// Debounce is the delay between cancelling narration and issuing the
	// next request, giving the engine time to reset.
	Debounce time.Duration
	// WatchdogFloor is the minimum stall deadline.
	WatchdogFloor time.Duration
	// WatchdogMargin is added to the estimated speech duration.
	WatchdogMargin time.Duration
	// SaveInterval is the periodic progress save cadence.
	SaveInterval time.Duration
	// SleepTick is the sleep timer countdown step.
	SleepTick time.Duration
	// ChunkBudget caps chunk size in bytes; zero keeps the chunker default.
	ChunkBudget int
}

func (t Tuning) withDefaults() Tuning {
	if t.Debounce <= 0 {
		t.Debounce = defaultDebounce
	}
	if t.WatchdogFloor <= 0 {
		t.WatchdogFloor = defaultWatchdogFloor
	}
	if t.WatchdogMargin <= 0 {
		t.WatchdogMargin = defaultWatchdogMargin
	}
	if t.SaveInterval <= 0 {
		t.SaveInterval = defaultSaveInterval
	}
	if t.SleepTick <= 0 {
		t.SleepTick = defaultSleepTick
	}
	return t
}

// ProgressStore persists per-book resume points.
type ProgressStore interface {
	SaveProgress(p *domain.Progress) error
	GetProgress(bookID string) (*domain.Progress, error)
}

// PreferenceStore persists the global narrator selection and rate.
type PreferenceStore interface {
	SaveVoicePreference(p *domain.VoicePreference) error
	GetVoicePreference() (*domain.VoicePreference, error)
}

// Store is the persistence surface the playback layer needs.
type Store interface {
	ProgressStore
	PreferenceStore
}

// Notifier receives a state snapshot after every relevant change, for
// fan-out to SSE clients and the MPRIS adapter. Implementations must not
// block.
type Notifier interface {
	PlaybackChanged(snap Snapshot)
}

// Notifiers fans snapshots out to several notifiers. Nil entries are skipped.
type Notifiers []Notifier

// PlaybackChanged implements Notifier.
func (ns Notifiers) PlaybackChanged(snap Snapshot) {
	for _, n := range ns {
		if n != nil {
			n.PlaybackChanged(snap)
		}
	}
}

// Snapshot is the read-only observable state of a session.
type Snapshot struct {
	BookID         string                `json:"book_id"`
	Title          string                `json:"title"`
	Author         string                `json:"author,omitempty"`
	CoverPath      string                `json:"cover_path,omitempty"`
	Status         domain.PlaybackStatus `json:"status"`
	Position       domain.Position       `json:"position"`
	ChapterTitle   string                `json:"chapter_title,omitempty"`
	ChapterCount   int                   `json:"chapter_count"`
	ChunkText      string                `json:"chunk_text,omitempty"`
	ChapterPercent float64               `json:"chapter_percent"`
	BookPercent    float64               `json:"book_percent"`
	Voice          string                `json:"voice,omitempty"`
	Rate           float64               `json:"rate"`
	SleepTimer     domain.SleepTimer     `json:"sleep_timer"`
	Error          string                `json:"error,omitempty"`
}
