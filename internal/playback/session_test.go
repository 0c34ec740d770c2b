package playback

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/speech"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Writer: io.Discard, Format: "json", Level: slog.LevelError})
}

// Chunked with budget 12:
//
//	chapter 0: "Alpha one." (10), "Beta two." (9)
//	chapter 1: "Gamma three." (12)
func testChapters() []domain.ChapterText {
	return []domain.ChapterText{
		{Title: "One", Text: "Alpha one. Beta two."},
		{Title: "Two", Text: "Gamma three."},
	}
}

// testTuning keeps the debounce tiny and the watchdog effectively disarmed.
// Watchdog tests override the floor and margin themselves.
func testTuning() Tuning {
	return Tuning{
		Debounce:       2 * time.Millisecond,
		WatchdogFloor:  time.Hour,
		WatchdogMargin: time.Hour,
		SaveInterval:   time.Hour,
		SleepTick:      5 * time.Millisecond,
		ChunkBudget:    12,
	}
}

type memStore struct {
	mu       sync.Mutex
	progress map[string]domain.Progress
	pref     *domain.VoicePreference
}

func newMemStore() *memStore {
	return &memStore{progress: map[string]domain.Progress{}}
}

func (m *memStore) SaveProgress(p *domain.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[p.BookID] = *p
	return nil
}

func (m *memStore) GetProgress(bookID string) (*domain.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.progress[bookID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *memStore) SaveVoicePreference(p *domain.VoicePreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.pref = &cp
	return nil
}

func (m *memStore) GetVoicePreference() (*domain.VoicePreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pref == nil {
		return nil, apperrors.ErrNotFound
	}
	cp := *m.pref
	return &cp, nil
}

func (m *memStore) saved(bookID string) (domain.Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.progress[bookID]
	return rec, ok
}

type memNotifier struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (n *memNotifier) PlaybackChanged(snap Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snaps = append(n.snaps, snap)
}

func (n *memNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.snaps)
}

type harness struct {
	eng   *speech.MockEngine
	store *memStore
	notes *memNotifier
	sess  *Session
}

func newTestSession(t *testing.T, tun Tuning, chapters []domain.ChapterText) *harness {
	t.Helper()
	h := &harness{
		eng:   speech.NewMockEngine(),
		store: newMemStore(),
		notes: &memNotifier{},
	}
	h.sess = NewSession(SessionOptions{
		Book:     &domain.Book{ID: "bk-1", Title: "Test Book", Path: "/library/test.epub"},
		Chapters: chapters,
		Engine:   h.eng,
		Progress: h.store,
		Notifier: h.notes,
		Logger:   testLogger(),
		Rate:     1.0,
		Tuning:   tun,
	})
	t.Cleanup(h.sess.Close)
	return h
}

func waitRequest(t *testing.T, eng *speech.MockEngine, n int) speech.Request {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(eng.Requests()) >= n
	}, 3*time.Second, 2*time.Millisecond, "waiting for narration request %d", n)
	return eng.Requests()[n-1]
}

func waitStatus(t *testing.T, s *Session, want domain.PlaybackStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Snapshot().Status == want
	}, 3*time.Second, 2*time.Millisecond, "waiting for status %s", want)
}

func TestPlayStartsSpeaking(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())

	snap := h.sess.Play(0, 0)
	assert.Equal(t, domain.StatusSpeaking, snap.Status)
	assert.Equal(t, domain.Position{}, snap.Position)

	req := waitRequest(t, h.eng, 1)
	assert.Equal(t, "Alpha one.", req.Text)
	assert.Equal(t, 1.0, req.Rate)
}

func TestEndAdvancesToNextChunk(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	req1 := waitRequest(t, h.eng, 1)

	h.eng.EmitEnd(req1.Token)

	req2 := waitRequest(t, h.eng, 2)
	assert.Equal(t, "Beta two.", req2.Text)
	snap := h.sess.Snapshot()
	assert.Equal(t, domain.Position{Chapter: 0, Chunk: 1}, snap.Position)
	assert.Equal(t, domain.StatusSpeaking, snap.Status)
}

func TestEndCrossesChapter(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 1)
	req1 := waitRequest(t, h.eng, 1)
	require.Equal(t, "Beta two.", req1.Text)

	h.eng.EmitEnd(req1.Token)

	req2 := waitRequest(t, h.eng, 2)
	assert.Equal(t, "Gamma three.", req2.Text)
	assert.Equal(t, domain.Position{Chapter: 1}, h.sess.Snapshot().Position)
}

func TestBookFinishGoesIdle(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(1, 0)
	req := waitRequest(t, h.eng, 1)

	h.eng.EmitEnd(req.Token)

	waitStatus(t, h.sess, domain.StatusIdle)
	snap := h.sess.Snapshot()
	assert.Equal(t, 1, snap.Position.Chapter)
	assert.Equal(t, 0, snap.Position.Chunk)
	assert.Equal(t, len("Gamma three."), snap.Position.Char)
	assert.InDelta(t, 100.0, snap.BookPercent, 0.01)
	assert.Empty(t, snap.Error)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.eng.Requests(), 1)
}

func TestProgressMovesChar(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	req := waitRequest(t, h.eng, 1)

	h.eng.EmitProgress(req.Token, 4)
	require.Eventually(t, func() bool {
		return h.sess.Snapshot().Position.Char == 4
	}, time.Second, 2*time.Millisecond)

	// Offsets past the chunk clamp to its length.
	h.eng.EmitProgress(req.Token, 99)
	require.Eventually(t, func() bool {
		return h.sess.Snapshot().Position.Char == len("Alpha one.")
	}, time.Second, 2*time.Millisecond)
}

func TestStaleCallbacksIgnored(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	req1 := waitRequest(t, h.eng, 1)

	h.sess.Play(1, 0)
	req2 := waitRequest(t, h.eng, 2)
	require.Equal(t, "Gamma three.", req2.Text)
	assert.GreaterOrEqual(t, h.eng.CancelCount(), 1)

	// End and progress from the superseded request change nothing.
	h.eng.EmitEnd(req1.Token)
	h.eng.EmitProgress(req1.Token, 7)
	time.Sleep(30 * time.Millisecond)

	snap := h.sess.Snapshot()
	assert.Equal(t, domain.Position{Chapter: 1}, snap.Position)
	assert.Equal(t, domain.StatusSpeaking, snap.Status)
	assert.Len(t, h.eng.Requests(), 2)
}

func TestInterruptedAfterSkipNotSurfaced(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	req1 := waitRequest(t, h.eng, 1)

	// +1s at rate 1.0 is 15 chars: through "Alpha one." (10) into "Beta two."
	snap := h.sess.Skip(1)
	assert.Equal(t, domain.Position{Chapter: 0, Chunk: 1, Char: 5}, snap.Position)
	assert.Empty(t, snap.Error)

	h.eng.EmitError(req1.Token, speech.ErrInterrupted)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, h.sess.Snapshot().Error)

	req2 := waitRequest(t, h.eng, 2)
	assert.Equal(t, "two.", req2.Text)

	rec, ok := h.store.saved("bk-1")
	require.True(t, ok)
	assert.Equal(t, 0, rec.Chapter)
	assert.Equal(t, 1, rec.Chunk)
}

func TestNarrationFaultSetsErrorAndIdle(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	req := waitRequest(t, h.eng, 1)

	h.eng.EmitError(req.Token, errors.New("engine exploded"))

	waitStatus(t, h.sess, domain.StatusIdle)
	snap := h.sess.Snapshot()
	assert.Equal(t, "engine exploded", snap.Error)
	assert.Equal(t, domain.Position{}, snap.Position)

	_, ok := h.store.saved("bk-1")
	assert.True(t, ok)
}

func TestPlayClearsError(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	req := waitRequest(t, h.eng, 1)
	h.eng.EmitError(req.Token, errors.New("boom"))
	waitStatus(t, h.sess, domain.StatusIdle)

	snap := h.sess.Play(0, 0)
	assert.Empty(t, snap.Error)
	assert.Equal(t, domain.StatusSpeaking, snap.Status)
}

func TestPauseSavesAndSuspends(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	req := waitRequest(t, h.eng, 1)
	h.eng.EmitProgress(req.Token, 4)
	require.Eventually(t, func() bool {
		return h.sess.Snapshot().Position.Char == 4
	}, time.Second, 2*time.Millisecond)

	snap := h.sess.Pause()
	assert.Equal(t, domain.StatusPaused, snap.Status)
	assert.True(t, h.eng.Paused())

	rec, ok := h.store.saved("bk-1")
	require.True(t, ok)
	assert.Equal(t, 0, rec.Chapter)
	assert.Equal(t, 0, rec.Chunk)
}

func TestResumeContinuesSuspendedUtterance(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	waitRequest(t, h.eng, 1)
	h.sess.Pause()

	snap := h.sess.Resume()
	assert.Equal(t, domain.StatusSpeaking, snap.Status)
	assert.False(t, h.eng.Paused())

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.eng.Requests(), 1, "resume must continue, not re-speak")
}

func TestResumeFromIdleIsNoop(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())

	snap := h.sess.Resume()
	assert.Equal(t, domain.StatusIdle, snap.Status)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.eng.Requests())
}

func TestPauseDuringDebounceDiscardsStart(t *testing.T) {
	tun := testTuning()
	tun.Debounce = 80 * time.Millisecond
	h := newTestSession(t, tun, testChapters())

	h.sess.Play(0, 0)
	h.sess.Pause()

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, h.eng.Requests(), "superseded debounce must not speak")

	// Nothing is suspended in the engine, so resume restarts narration.
	snap := h.sess.Resume()
	assert.Equal(t, domain.StatusSpeaking, snap.Status)
	req := waitRequest(t, h.eng, 1)
	assert.Equal(t, "Alpha one.", req.Text)
}

func TestSleepCountdownPausesAndClears(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	waitRequest(t, h.eng, 1)

	snap := h.sess.SetSleepTimer(domain.SleepTimerSeconds(3))
	assert.Equal(t, domain.SleepCountdown, snap.SleepTimer.Mode)

	waitStatus(t, h.sess, domain.StatusPaused)
	final := h.sess.Snapshot()
	assert.True(t, final.SleepTimer.IsOff())
	assert.True(t, h.eng.Paused())
}

func TestSleepTimerHeldWhilePaused(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	waitRequest(t, h.eng, 1)
	h.sess.Pause()

	h.sess.SetSleepTimer(domain.SleepTimerSeconds(5))
	time.Sleep(100 * time.Millisecond)

	snap := h.sess.Snapshot()
	assert.Equal(t, domain.SleepCountdown, snap.SleepTimer.Mode)
	assert.Equal(t, 5, snap.SleepTimer.Remaining, "timer must not tick while paused")
}

func TestSleepTimerReplacedNotStacked(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.SetSleepTimer(domain.SleepTimerSeconds(600))
	snap := h.sess.SetSleepTimer(domain.SleepTimerEndOfChapter())
	assert.Equal(t, domain.SleepEndOfChapter, snap.SleepTimer.Mode)

	snap = h.sess.SetSleepTimer(domain.SleepTimerOff())
	assert.True(t, snap.SleepTimer.IsOff())
}

func TestSleepEndOfChapterStopsAtBoundary(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 1)
	req1 := waitRequest(t, h.eng, 1)
	h.sess.SetSleepTimer(domain.SleepTimerEndOfChapter())

	h.eng.EmitEnd(req1.Token)

	waitStatus(t, h.sess, domain.StatusPaused)
	snap := h.sess.Snapshot()
	assert.True(t, snap.SleepTimer.IsOff())
	assert.Equal(t, domain.Position{Chapter: 1}, snap.Position, "paused at the next chapter start")

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, h.eng.Requests(), 1, "next chapter must not start")

	// Resuming picks up the next chapter.
	h.sess.Resume()
	req2 := waitRequest(t, h.eng, 2)
	assert.Equal(t, "Gamma three.", req2.Text)
}

func TestSleepEndOfChapterAtBookEnd(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(1, 0)
	req := waitRequest(t, h.eng, 1)
	h.sess.SetSleepTimer(domain.SleepTimerEndOfChapter())

	h.eng.EmitEnd(req.Token)

	waitStatus(t, h.sess, domain.StatusIdle)
	assert.True(t, h.sess.Snapshot().SleepTimer.IsOff())
}

func TestWatchdogForcesAdvance(t *testing.T) {
	tun := testTuning()
	tun.WatchdogFloor = 50 * time.Millisecond
	tun.WatchdogMargin = 5 * time.Millisecond
	h := newTestSession(t, tun, testChapters())

	h.sess.Play(0, 0)
	waitRequest(t, h.eng, 1)

	// No progress, no end: the stall deadline forces the completion path.
	req2 := waitRequest(t, h.eng, 2)
	assert.Equal(t, "Beta two.", req2.Text)

	snap := h.sess.Snapshot()
	assert.Equal(t, 1, snap.Position.Chunk)
	assert.Empty(t, snap.Error, "a stall is recovered, not surfaced")
	assert.GreaterOrEqual(t, h.eng.CancelCount(), 1)
}

func TestWatchdogDefusedByProgress(t *testing.T) {
	tun := testTuning()
	tun.WatchdogFloor = 50 * time.Millisecond
	tun.WatchdogMargin = 600 * time.Millisecond
	h := newTestSession(t, tun, testChapters())

	h.sess.Play(0, 0)
	req := waitRequest(t, h.eng, 1)

	// "Alpha one." estimates at 667ms; with the margin the deadline is
	// ~1.27s. Steady progress keeps pushing the stall check out.
	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		h.eng.EmitProgress(req.Token, 3)
		time.Sleep(50 * time.Millisecond)
	}
	assert.Len(t, h.eng.Requests(), 1, "progress must defuse the watchdog")

	// Silence afterwards lets it fire.
	waitRequest(t, h.eng, 2)
}

func TestSeedsFromPersistedProgress(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.SaveProgress(&domain.Progress{BookID: "bk-1", Chapter: 1, Chunk: 0}))

	eng := speech.NewMockEngine()
	s := NewSession(SessionOptions{
		Book:     &domain.Book{ID: "bk-1", Title: "Test Book"},
		Chapters: testChapters(),
		Engine:   eng,
		Progress: st,
		Logger:   testLogger(),
		Rate:     1.0,
		Tuning:   testTuning(),
	})
	defer s.Close()

	snap := s.Snapshot()
	assert.Equal(t, domain.Position{Chapter: 1}, snap.Position, "char always reseeds to zero")
	assert.Equal(t, domain.StatusIdle, snap.Status)
}

func TestOutOfRangePersistedProgressClamped(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.SaveProgress(&domain.Progress{BookID: "bk-1", Chapter: 9, Chunk: 9}))

	eng := speech.NewMockEngine()
	s := NewSession(SessionOptions{
		Book:     &domain.Book{ID: "bk-1", Title: "Test Book"},
		Chapters: testChapters(),
		Engine:   eng,
		Progress: st,
		Logger:   testLogger(),
		Tuning:   testTuning(),
	})
	defer s.Close()

	pos := s.Snapshot().Position
	assert.Equal(t, 1, pos.Chapter)
	assert.Equal(t, 0, pos.Chunk)
}

func TestCloseFlushesProgress(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(1, 0)
	waitRequest(t, h.eng, 1)

	h.sess.Close()

	rec, ok := h.store.saved("bk-1")
	require.True(t, ok)
	assert.Equal(t, 1, rec.Chapter)
	assert.Equal(t, 0, rec.Chunk)

	// Events after close are harmless.
	h.eng.EmitEnd(1)
	assert.Equal(t, domain.StatusIdle, h.sess.Snapshot().Status)
}

func TestSetRateRestartsWhenLiveChangeUnsupported(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	req1 := waitRequest(t, h.eng, 1)
	h.eng.EmitProgress(req1.Token, 5)
	require.Eventually(t, func() bool {
		return h.sess.Snapshot().Position.Char == 5
	}, time.Second, 2*time.Millisecond)

	snap := h.sess.SetRate(1.5)
	assert.Equal(t, 1.5, snap.Rate)

	req2 := waitRequest(t, h.eng, 2)
	assert.Equal(t, " one.", req2.Text, "restart resumes mid-chunk")
	assert.Equal(t, 1.5, req2.Rate)
}

func TestSetRateLiveWhenSupported(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.eng.SetRateSupported()
	h.sess.Play(0, 0)
	waitRequest(t, h.eng, 1)

	snap := h.sess.SetRate(2.0)
	assert.Equal(t, 2.0, snap.Rate)

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, h.eng.Requests(), 1, "live rate change must not restart")
}

func TestSetRateClamped(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	assert.Equal(t, 2.0, h.sess.SetRate(7.5).Rate)
	assert.Equal(t, 0.5, h.sess.SetRate(0.1).Rate)
}

func TestSetVoiceRestartsCurrentChunk(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	waitRequest(t, h.eng, 1)

	snap := h.sess.SetVoice("en-GB-Standard-B")
	assert.Equal(t, "en-GB-Standard-B", snap.Voice)

	req2 := waitRequest(t, h.eng, 2)
	assert.Equal(t, "en-GB-Standard-B", req2.VoiceID)
	assert.Equal(t, "Alpha one.", req2.Text)
}

func TestSetVoiceWhilePausedDoesNotSpeak(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	waitRequest(t, h.eng, 1)
	h.sess.Pause()

	h.sess.SetVoice("en-GB-Standard-B")
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, h.eng.Requests(), 1)
	assert.Equal(t, domain.StatusPaused, h.sess.Snapshot().Status)
}

func TestSkipBackwardClampsAtOrigin(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	waitRequest(t, h.eng, 1)

	snap := h.sess.Skip(-600)
	assert.Equal(t, domain.Position{}, snap.Position)
	assert.Equal(t, domain.StatusSpeaking, snap.Status)
}

func TestJumpToChapter(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	h.sess.Play(0, 0)
	waitRequest(t, h.eng, 1)

	snap := h.sess.JumpToChapter(1)
	assert.Equal(t, domain.Position{Chapter: 1}, snap.Position)
	assert.Equal(t, "Two", snap.ChapterTitle)

	rec, ok := h.store.saved("bk-1")
	require.True(t, ok)
	assert.Equal(t, 1, rec.Chapter)

	req2 := waitRequest(t, h.eng, 2)
	assert.Equal(t, "Gamma three.", req2.Text)

	assert.Equal(t, 1, h.sess.JumpToChapter(99).Position.Chapter)
	assert.Equal(t, 0, h.sess.JumpToChapter(-4).Position.Chapter)
}

func TestEmptyChapterSkipped(t *testing.T) {
	chapters := []domain.ChapterText{
		{Title: "One", Text: "Hi."},
		{Title: "Blank", Text: "   "},
		{Title: "Three", Text: "Yo."},
	}
	h := newTestSession(t, testTuning(), chapters)
	h.sess.Play(0, 0)
	req1 := waitRequest(t, h.eng, 1)
	require.Equal(t, "Hi.", req1.Text)

	h.eng.EmitEnd(req1.Token)

	req2 := waitRequest(t, h.eng, 2)
	assert.Equal(t, "Yo.", req2.Text)
	assert.Equal(t, domain.Position{Chapter: 2}, h.sess.Snapshot().Position)
}

func TestEngineUnavailable(t *testing.T) {
	st := newMemStore()
	s := NewSession(SessionOptions{
		Book:     &domain.Book{ID: "bk-1", Title: "Test Book"},
		Chapters: testChapters(),
		Engine:   speech.Disabled{},
		Progress: st,
		Logger:   testLogger(),
		Tuning:   testTuning(),
	})
	defer s.Close()

	s.Play(0, 0)
	waitStatus(t, s, domain.StatusIdle)
	assert.Equal(t, "narration engine unavailable", s.Snapshot().Error)

	// Remaining operations stay safe no-ops.
	s.Pause()
	s.Resume()
	s.Skip(30)
	waitStatus(t, s, domain.StatusIdle)
}

func TestPeriodicSaveOnlyWhileActive(t *testing.T) {
	tun := testTuning()
	tun.SaveInterval = 20 * time.Millisecond
	h := newTestSession(t, tun, testChapters())

	// Idle: nothing to save.
	time.Sleep(80 * time.Millisecond)
	_, ok := h.store.saved("bk-1")
	assert.False(t, ok)

	h.sess.Play(0, 0)
	waitRequest(t, h.eng, 1)
	require.Eventually(t, func() bool {
		_, ok := h.store.saved("bk-1")
		return ok
	}, time.Second, 5*time.Millisecond, "periodic save while speaking")
}

func TestNotifierSeesChanges(t *testing.T) {
	h := newTestSession(t, testTuning(), testChapters())
	before := h.notes.count()
	h.sess.Play(0, 0)
	waitRequest(t, h.eng, 1)
	assert.Greater(t, h.notes.count(), before)
}
