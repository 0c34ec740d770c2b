package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/aloudapp/aloud-server/internal/chunker"
	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/speech"
)

// SessionOptions configures a narration session for one book.
type SessionOptions struct {
	Book     *domain.Book
	Chapters []domain.ChapterText
	Engine   speech.Engine
	Progress ProgressStore
	Notifier Notifier
	Logger   *logger.Logger
	VoiceID  string
	Rate     float64
	Tuning   Tuning
}

// Session owns narration for a single open book. All state is guarded by one
// mutex; engine callbacks, timers, and facade calls serialize through it.
// Each issued narration request carries a monotonically increasing token so
// callbacks from superseded requests are discarded.
type Session struct {
	log      *logger.Logger
	engine   speech.Engine
	progress ProgressStore
	notifier Notifier
	tuning   Tuning

	book     *domain.Book
	titles   []string
	chapters [][]string

	mu         sync.Mutex
	status     domain.PlaybackStatus
	pos        domain.Position
	token      uint64
	inFlight   bool
	utterBase  int // pos.Char when the current utterance was issued
	utterLen   int
	lastErr    string
	voiceID    string
	rate       float64
	sleep      domain.SleepTimer
	lastSignal time.Time
	deadline   time.Duration
	watchdog   *time.Timer
	debounce   *time.Timer
	warnedOff  bool
	closed     bool

	events chan speech.Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewSession chunks the chapters, seeds the position from persisted progress
// when present, and starts the session's event and clock loops. The session
// begins Idle; narration starts on the first Play.
func NewSession(opts SessionOptions) *Session {
	titles := make([]string, len(opts.Chapters))
	texts := make([]string, len(opts.Chapters))
	for i, ch := range opts.Chapters {
		titles[i] = ch.Title
		texts[i] = ch.Text
	}

	s := &Session{
		log:      opts.Logger,
		engine:   opts.Engine,
		progress: opts.Progress,
		notifier: opts.Notifier,
		tuning:   opts.Tuning.withDefaults(),
		book:     opts.Book,
		titles:   titles,
		chapters: chunker.SplitChapters(texts, opts.Tuning.ChunkBudget),
		status:   domain.StatusIdle,
		voiceID:  opts.VoiceID,
		rate:     domain.ClampRate(opts.Rate),
		sleep:    domain.SleepTimerOff(),
		events:   make(chan speech.Event, eventBuffer),
		done:     make(chan struct{}),
	}

	if rec, err := s.progress.GetProgress(s.book.ID); err == nil {
		s.pos = domain.ClampPosition(rec.Position(), s.chapters)
		s.log.Debug("resuming from saved progress",
			"book", s.book.ID,
			"chapter", s.pos.Chapter,
			"chunk", s.pos.Chunk,
		)
	}

	s.engine.SetHandler(s.onEngineEvent)

	s.wg.Add(2)
	go s.dispatch()
	go s.clock()

	s.publish(s.Snapshot())
	return s
}

// onEngineEvent queues an engine event for the dispatcher. It must never
// block: engines emit from their own goroutines, sometimes while the session
// is mid-operation.
func (s *Session) onEngineEvent(ev speech.Event) {
	select {
	case s.events <- ev:
	default:
		// A dropped end event is recovered by the watchdog.
		s.log.Warn("engine event queue full, dropping event", "type", string(ev.Type))
	}
}

func (s *Session) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		}
	}
}

// Play starts narration at the given chapter and chunk, from the chunk start.
func (s *Session) Play(chapter, chunk int) Snapshot {
	s.mu.Lock()
	s.playFromLocked(domain.Position{Chapter: chapter, Chunk: chunk})
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return snap
}

// Pause suspends narration and saves progress immediately.
func (s *Session) Pause() Snapshot {
	s.mu.Lock()
	s.pauseLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return snap
}

// Resume continues a paused session. When the engine has a suspended
// utterance it is resumed in place; otherwise narration restarts from the
// current position. Resume from Idle is a no-op; use Play.
func (s *Session) Resume() Snapshot {
	s.mu.Lock()
	if s.status == domain.StatusPaused {
		if s.inFlight {
			s.status = domain.StatusSpeaking
			if err := s.engine.Resume(); err != nil {
				s.log.WithError(err).Warn("engine resume failed")
			}
			s.lastSignal = time.Now()
			s.armWatchdogLocked(s.remainingCharsLocked())
		} else {
			s.playFromLocked(s.pos)
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return snap
}

// Skip moves the position by a signed number of seconds, converted through
// the chars-per-second heuristic, and restarts narration there.
func (s *Session) Skip(seconds float64) Snapshot {
	s.mu.Lock()
	offset := domain.CharsForSeconds(seconds, s.rate)
	pos := domain.Advance(s.pos, s.chapters, offset)
	s.playFromLocked(pos)
	s.saveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return snap
}

// JumpToChapter restarts narration at the start of the given chapter.
func (s *Session) JumpToChapter(chapter int) Snapshot {
	s.mu.Lock()
	if chapter < 0 {
		chapter = 0
	}
	if n := len(s.chapters); n > 0 && chapter >= n {
		chapter = n - 1
	}
	s.playFromLocked(domain.Position{Chapter: chapter})
	s.saveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return snap
}

// SetVoice switches the narrator. A speaking session restarts the current
// chunk with the new voice.
func (s *Session) SetVoice(voiceID string) Snapshot {
	s.mu.Lock()
	s.voiceID = voiceID
	if s.status == domain.StatusSpeaking {
		s.playFromLocked(s.pos)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return snap
}

// SetRate changes the playback rate. Engines that honor live rate changes
// keep the current utterance; others restart the current chunk so the new
// rate applies at once.
func (s *Session) SetRate(rate float64) Snapshot {
	s.mu.Lock()
	s.rate = domain.ClampRate(rate)
	if s.status == domain.StatusSpeaking {
		if s.inFlight {
			if err := s.engine.SetRate(s.rate); err != nil {
				s.playFromLocked(s.pos)
			} else {
				s.stopWatchdogLocked()
				s.lastSignal = time.Now()
				s.armWatchdogLocked(s.remainingCharsLocked())
			}
		}
		// With a debounce pending, the next utterance picks the rate up.
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return snap
}

// SetSleepTimer replaces the sleep timer. Setting a countdown while paused
// holds the value; it only ticks while speaking.
func (s *Session) SetSleepTimer(t domain.SleepTimer) Snapshot {
	s.mu.Lock()
	s.sleep = t
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return snap
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close cancels narration, flushes progress, and stops the session's
// goroutines. The engine survives for the next session.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelCurrentLocked()
	s.stopWatchdogLocked()
	s.stopDebounceLocked()
	s.status = domain.StatusIdle
	s.saveLocked()
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	s.engine.SetHandler(nil)
	s.log.Info("playback session closed", "book", s.book.ID)
}

// playFromLocked clears any error, cancels in-flight narration, and schedules
// a fresh utterance at pos after the restart debounce.
func (s *Session) playFromLocked(pos domain.Position) {
	if s.closed {
		return
	}
	s.lastErr = ""
	s.pos = domain.ClampPosition(pos, s.chapters)
	s.status = domain.StatusSpeaking
	s.cancelCurrentLocked()
	s.issueLocked()
}

func (s *Session) pauseLocked() {
	if s.status != domain.StatusSpeaking {
		return
	}
	s.status = domain.StatusPaused
	s.stopWatchdogLocked()
	s.stopDebounceLocked()
	if s.inFlight {
		if err := s.engine.Pause(); err != nil {
			s.log.WithError(err).Warn("engine pause failed")
		}
	}
	s.saveLocked()
}

// cancelCurrentLocked aborts the in-flight utterance, if any. The engine
// reports the abort as an interrupted error, which arrives stale and is
// dropped.
func (s *Session) cancelCurrentLocked() {
	if !s.inFlight {
		return
	}
	s.inFlight = false
	if err := s.engine.Cancel(); err != nil {
		s.log.WithError(err).Warn("engine cancel failed")
	}
}

// issueLocked supersedes all outstanding callbacks and schedules the next
// utterance after the debounce delay.
func (s *Session) issueLocked() {
	s.stopDebounceLocked()
	s.stopWatchdogLocked()
	s.token++
	token := s.token
	s.debounce = time.AfterFunc(s.tuning.Debounce, func() {
		s.startUtterance(token)
	})
}

// startUtterance runs when the debounce fires. A session that was paused,
// superseded, or closed during the debounce discards the start.
func (s *Session) startUtterance(token uint64) {
	s.mu.Lock()
	if s.closed || token != s.token || s.status != domain.StatusSpeaking {
		s.mu.Unlock()
		return
	}
	s.debounce = nil

	text, ok := s.utteranceTextLocked()
	if !ok {
		// Nothing to narrate here (empty chapter or consumed chunk): take
		// the completion path to move on.
		s.mu.Unlock()
		s.handleEvent(speech.Event{Token: token, Type: speech.EventEnd})
		return
	}

	s.utterBase = s.pos.Char
	s.utterLen = len(text)
	s.inFlight = true
	s.lastSignal = time.Now()
	s.armWatchdogLocked(len(text))
	req := speech.Request{Token: token, Text: text, VoiceID: s.voiceID, Rate: s.rate}
	eng := s.engine
	s.mu.Unlock()

	if err := eng.Speak(req); err != nil {
		s.handleEvent(speech.Event{Token: token, Type: speech.EventError, Err: err})
	}
}

// utteranceTextLocked returns the not-yet-spoken remainder of the current
// chunk.
func (s *Session) utteranceTextLocked() (string, bool) {
	if s.pos.Chapter >= len(s.chapters) {
		return "", false
	}
	chunks := s.chapters[s.pos.Chapter]
	if len(chunks) == 0 || s.pos.Chunk >= len(chunks) {
		return "", false
	}
	text := chunks[s.pos.Chunk]
	if s.pos.Char >= len(text) {
		return "", false
	}
	return text[s.pos.Char:], true
}

func (s *Session) remainingCharsLocked() int {
	remaining := s.utterBase + s.utterLen - s.pos.Char
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// handleEvent is the single entry point for engine signals, synthesized
// completions, and immediate speak failures.
func (s *Session) handleEvent(ev speech.Event) {
	s.mu.Lock()
	if s.closed || ev.Token != s.token {
		s.mu.Unlock()
		return
	}

	switch ev.Type {
	case speech.EventProgress:
		if s.status != domain.StatusSpeaking {
			s.mu.Unlock()
			return
		}
		s.lastSignal = time.Now()
		char := s.utterBase + ev.Offset
		if limit := s.utterBase + s.utterLen; char > limit {
			char = limit
		}
		s.pos.Char = char

	case speech.EventEnd:
		if s.status != domain.StatusSpeaking {
			s.mu.Unlock()
			return
		}
		s.inFlight = false
		s.stopWatchdogLocked()
		s.advanceLocked()

	case speech.EventError:
		if errors.Is(ev.Err, speech.ErrInterrupted) {
			// Our own cancel-then-restart; never surfaced.
			s.mu.Unlock()
			return
		}
		s.inFlight = false
		s.stopWatchdogLocked()
		s.stopDebounceLocked()
		if errors.Is(ev.Err, apperrors.ErrEngineUnavailable) {
			if !s.warnedOff {
				s.warnedOff = true
				s.log.Warn("narration engine unavailable, playback disabled")
			}
		} else {
			s.log.WithError(ev.Err).Error("narration fault",
				"book", s.book.ID,
				"chapter", s.pos.Chapter,
				"chunk", s.pos.Chunk,
			)
		}
		s.lastErr = ev.Err.Error()
		s.status = domain.StatusIdle
		s.saveLocked()
	}

	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// advanceLocked is the completion path: next chunk, else next chapter
// (honoring an end-of-chapter sleep timer), else book finished.
func (s *Session) advanceLocked() {
	chunks := s.chapters[s.pos.Chapter]
	if s.pos.Chunk+1 < len(chunks) {
		s.pos = domain.Position{Chapter: s.pos.Chapter, Chunk: s.pos.Chunk + 1}
		s.issueLocked()
		return
	}

	stopHere := s.sleep.Mode == domain.SleepEndOfChapter
	if s.pos.Chapter+1 < len(s.chapters) {
		s.pos = domain.Position{Chapter: s.pos.Chapter + 1}
		if stopHere {
			s.sleep = domain.SleepTimerOff()
			s.log.Info("sleep timer: stopping at chapter end", "next_chapter", s.pos.Chapter)
			s.pauseLocked()
			return
		}
		s.issueLocked()
		return
	}

	// Book finished. The position stays on the last chunk, fully consumed.
	if stopHere {
		s.sleep = domain.SleepTimerOff()
	}
	if len(chunks) > 0 {
		s.pos.Char = len(chunks[s.pos.Chunk])
	}
	s.status = domain.StatusIdle
	s.log.Info("book finished", "book", s.book.ID)
	s.saveLocked()
}

func (s *Session) saveLocked() {
	rec := domain.NewProgress(s.book.ID, s.pos)
	if err := s.progress.SaveProgress(rec); err != nil {
		s.log.WithError(err).Warn("saving progress failed", "book", s.book.ID)
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		BookID:         s.book.ID,
		Title:          s.book.Title,
		Author:         s.book.Author,
		CoverPath:      s.book.CoverPath,
		Status:         s.status,
		Position:       s.pos,
		ChapterCount:   len(s.chapters),
		ChapterPercent: domain.ChapterPercent(s.pos, s.chapters),
		BookPercent:    domain.BookPercent(s.pos, s.chapters),
		Voice:          s.voiceID,
		Rate:           s.rate,
		SleepTimer:     s.sleep,
		Error:          s.lastErr,
	}
	if s.pos.Chapter < len(s.titles) {
		snap.ChapterTitle = s.titles[s.pos.Chapter]
	}
	if s.pos.Chapter < len(s.chapters) {
		if chunks := s.chapters[s.pos.Chapter]; s.pos.Chunk < len(chunks) {
			snap.ChunkText = chunks[s.pos.Chunk]
		}
	}
	return snap
}

func (s *Session) publish(snap Snapshot) {
	if s.notifier != nil {
		s.notifier.PlaybackChanged(snap)
	}
}
