package domain

import "time"

// Voice is one narrator identity offered by a speech engine.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender,omitempty"`
}

// Playback rate bounds. Rates apply multiplicatively to normal speed.
const (
	MinPlaybackRate = 0.5
	MaxPlaybackRate = 2.0
)

// ClampRate forces a playback rate into the supported range, mapping a zero
// value to normal speed.
func ClampRate(rate float64) float64 {
	if rate == 0 {
		return 1.0
	}
	if rate < MinPlaybackRate {
		return MinPlaybackRate
	}
	if rate > MaxPlaybackRate {
		return MaxPlaybackRate
	}
	return rate
}

// VoicePreference is the globally persisted narrator selection and rate.
// It applies across books.
type VoicePreference struct {
	VoiceID   string    `json:"voice_id,omitempty"`
	Rate      float64   `json:"rate"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultVoicePreference returns the startup preference before any selection.
func DefaultVoicePreference() *VoicePreference {
	return &VoicePreference{Rate: 1.0}
}
