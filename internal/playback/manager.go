package playback

import (
	"context"
	"sync"
	"time"

	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/speech"
)

// ManagerOptions configures the playback manager.
type ManagerOptions struct {
	Engine   speech.Engine
	Store    Store
	Notifier Notifier
	Policy   speech.VoicePolicy
	Logger   *logger.Logger
	Tuning   Tuning
}

// Manager owns the narration engine, the global voice preference, and at
// most one live session. Opening a book tears down and flushes the previous
// session first.
type Manager struct {
	log      *logger.Logger
	engine   speech.Engine
	store    Store
	notifier Notifier
	policy   speech.VoicePolicy
	tuning   Tuning

	mu      sync.Mutex
	session *Session
	pref    domain.VoicePreference
	voices  []domain.Voice
}

// NewManager loads the persisted voice preference and prepares the manager.
// A nil engine disables narration; sessions still open for browsing but
// every play reports the engine as unavailable.
func NewManager(opts ManagerOptions) *Manager {
	engine := opts.Engine
	if engine == nil {
		engine = speech.Disabled{}
	}

	m := &Manager{
		log:      opts.Logger,
		engine:   engine,
		store:    opts.Store,
		notifier: opts.Notifier,
		policy:   opts.Policy,
		tuning:   opts.Tuning,
		pref:     *domain.DefaultVoicePreference(),
	}

	if pref, err := m.store.GetVoicePreference(); err == nil {
		m.pref = *pref
		m.pref.Rate = domain.ClampRate(m.pref.Rate)
	}

	return m
}

// Open starts a session for the given book, closing any previous one. The
// narrator comes from the persisted preference when it is still offered,
// else the locale policy picks a default.
func (m *Manager) Open(ctx context.Context, book *domain.Book, chapters []domain.ChapterText) *Session {
	m.mu.Lock()
	if m.session != nil {
		old := m.session
		m.session = nil
		m.mu.Unlock()
		old.Close()
		m.mu.Lock()
	}

	if len(m.voices) == 0 {
		m.refreshVoicesLocked(ctx)
	}
	voiceID := ""
	if v, ok := speech.ChooseVoice(m.voices, m.pref.VoiceID, m.policy); ok {
		voiceID = v.ID
	}

	s := NewSession(SessionOptions{
		Book:     book,
		Chapters: chapters,
		Engine:   m.engine,
		Progress: m.store,
		Notifier: m.notifier,
		Logger:   m.log,
		VoiceID:  voiceID,
		Rate:     m.pref.Rate,
		Tuning:   m.tuning,
	})
	m.session = s
	m.mu.Unlock()

	m.log.Info("playback session opened",
		"book", book.ID,
		"title", book.Title,
		"voice", voiceID,
	)
	return s
}

// Current returns the live session.
func (m *Manager) Current() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, apperrors.ErrNoSession
	}
	return m.session, nil
}

// CloseCurrent tears down the live session, flushing its progress.
func (m *Manager) CloseCurrent() error {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()
	if s == nil {
		return apperrors.ErrNoSession
	}
	s.Close()
	return nil
}

// Voices returns the engine's narrator catalog. Engines may report an empty
// catalog shortly after startup; callers poll until it fills.
func (m *Manager) Voices(ctx context.Context) ([]domain.Voice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshVoicesLocked(ctx)
	out := make([]domain.Voice, len(m.voices))
	copy(out, m.voices)
	return out, nil
}

func (m *Manager) refreshVoicesLocked(ctx context.Context) {
	voices, err := m.engine.Voices(ctx)
	if err != nil {
		m.log.WithError(err).Debug("listing voices failed")
		return
	}
	if len(voices) > 0 {
		m.voices = voices
	}
}

// Preference returns the persisted narrator selection and rate.
func (m *Manager) Preference() domain.VoicePreference {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pref
}

// SetVoice persists the narrator choice and applies it to the live session.
// The snapshot is nil when no session is open.
func (m *Manager) SetVoice(voiceID string) (*Snapshot, error) {
	m.mu.Lock()
	m.pref.VoiceID = voiceID
	m.pref.UpdatedAt = time.Now()
	err := m.store.SaveVoicePreference(&m.pref)
	sess := m.session
	m.mu.Unlock()

	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "saving voice preference")
	}
	if sess == nil {
		return nil, nil
	}
	snap := sess.SetVoice(voiceID)
	return &snap, nil
}

// SetRate persists the playback rate and applies it to the live session.
// The snapshot is nil when no session is open.
func (m *Manager) SetRate(rate float64) (*Snapshot, error) {
	rate = domain.ClampRate(rate)
	m.mu.Lock()
	m.pref.Rate = rate
	m.pref.UpdatedAt = time.Now()
	err := m.store.SaveVoicePreference(&m.pref)
	sess := m.session
	m.mu.Unlock()

	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "saving rate preference")
	}
	if sess == nil {
		return nil, nil
	}
	snap := sess.SetRate(rate)
	return &snap, nil
}

// EngineName reports which narration backend is active.
func (m *Manager) EngineName() string {
	return m.engine.Name()
}

// Shutdown closes the live session and the engine.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()
	if s != nil {
		s.Close()
	}
	if err := m.engine.Close(); err != nil {
		m.log.WithError(err).Warn("closing narration engine failed")
	}
}
