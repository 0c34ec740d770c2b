package domain

// PlaybackStatus describes what the narration session is doing.
// Idle and Paused both mean silence; the difference is whether starting again
// requires a fresh narration from the stored position (Idle) or continuing
// the engine's suspended segment (Paused).
type PlaybackStatus string

const (
	StatusIdle     PlaybackStatus = "idle"
	StatusSpeaking PlaybackStatus = "speaking"
	StatusPaused   PlaybackStatus = "paused"
)

// SleepTimerMode enumerates the sleep timer states.
type SleepTimerMode string

const (
	SleepOff          SleepTimerMode = "off"
	SleepCountdown    SleepTimerMode = "countdown"
	SleepEndOfChapter SleepTimerMode = "end_of_chapter"
)

// SleepTimer is either off, a remaining-seconds countdown, or the
// end-of-chapter sentinel. It is consumed (reset to off) once it fires.
type SleepTimer struct {
	Mode      SleepTimerMode `json:"mode"`
	Remaining int            `json:"remaining,omitempty"`
}

// SleepTimerOff returns the absent timer value.
func SleepTimerOff() SleepTimer {
	return SleepTimer{Mode: SleepOff}
}

// SleepTimerSeconds returns a countdown timer. Non-positive seconds yield the
// absent value.
func SleepTimerSeconds(seconds int) SleepTimer {
	if seconds <= 0 {
		return SleepTimerOff()
	}
	return SleepTimer{Mode: SleepCountdown, Remaining: seconds}
}

// SleepTimerEndOfChapter returns the stop-at-chapter-boundary sentinel.
func SleepTimerEndOfChapter() SleepTimer {
	return SleepTimer{Mode: SleepEndOfChapter}
}

// IsOff reports whether no timer is set.
func (t SleepTimer) IsOff() bool {
	return t.Mode == SleepOff || t.Mode == ""
}

// Tick decrements a countdown by one second and reports whether it fired.
// Other modes never tick.
func (t SleepTimer) Tick() (SleepTimer, bool) {
	if t.Mode != SleepCountdown {
		return t, false
	}
	t.Remaining--
	if t.Remaining <= 0 {
		return SleepTimerOff(), true
	}
	return t, false
}
