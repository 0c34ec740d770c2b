package playback

import (
	"time"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// clock drives the two session cadences: the one-second sleep timer tick and
// the periodic progress save. Both stop when the session closes.
func (s *Session) clock() {
	defer s.wg.Done()

	sleepTick := time.NewTicker(s.tuning.SleepTick)
	defer sleepTick.Stop()
	saveTick := time.NewTicker(s.tuning.SaveInterval)
	defer saveTick.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-sleepTick.C:
			s.tickSleep()
		case <-saveTick.C:
			s.tickSave()
		}
	}
}

// tickSleep counts a countdown timer down one step. The timer only ticks
// while speaking; expiry pauses playback and consumes the timer.
func (s *Session) tickSleep() {
	s.mu.Lock()
	if s.closed || s.status != domain.StatusSpeaking || s.sleep.Mode != domain.SleepCountdown {
		s.mu.Unlock()
		return
	}

	var fired bool
	s.sleep, fired = s.sleep.Tick()
	if fired {
		s.log.Info("sleep timer expired, pausing", "book", s.book.ID)
		s.pauseLocked()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// tickSave persists progress while the session is audible or suspended.
// An idle session has nothing new to record.
func (s *Session) tickSave() {
	s.mu.Lock()
	if !s.closed && s.status != domain.StatusIdle {
		s.saveLocked()
	}
	s.mu.Unlock()
}
