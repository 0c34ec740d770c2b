package playback

import (
	"time"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// The stall watchdog guards every issued utterance. Engines can silently
// stop emitting progress and completion signals; when nothing has been heard
// for a full deadline, the watchdog takes the completion path itself so
// playback keeps moving.

// armWatchdogLocked schedules a stall check for an utterance of the given
// length. The deadline scales with the speech duration estimate and never
// drops below the floor.
func (s *Session) armWatchdogLocked(chars int) {
	est := time.Duration(domain.EstimateSpeechMs(chars, s.rate)) * time.Millisecond
	deadline := est + s.tuning.WatchdogMargin
	if deadline < s.tuning.WatchdogFloor {
		deadline = s.tuning.WatchdogFloor
	}
	s.deadline = deadline
	token := s.token
	s.watchdog = time.AfterFunc(deadline, func() {
		s.checkStall(token)
	})
}

func (s *Session) stopWatchdogLocked() {
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
}

func (s *Session) stopDebounceLocked() {
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
}

// checkStall fires at the deadline. Progress heard in the meantime pushes
// the check out by the remaining quiet window; true silence forces the
// completion path, exactly as a real end signal would.
func (s *Session) checkStall(token uint64) {
	s.mu.Lock()
	if s.closed || token != s.token || s.status != domain.StatusSpeaking {
		s.mu.Unlock()
		return
	}

	if quiet := time.Since(s.lastSignal); quiet < s.deadline {
		s.watchdog = time.AfterFunc(s.deadline-quiet, func() {
			s.checkStall(token)
		})
		s.mu.Unlock()
		return
	}

	s.log.Warn("narration stalled, forcing advance",
		"book", s.book.ID,
		"chapter", s.pos.Chapter,
		"chunk", s.pos.Chunk,
		"deadline", s.deadline.String(),
	)
	s.watchdog = nil
	s.cancelCurrentLocked()
	s.advanceLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}
