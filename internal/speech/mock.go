package speech

import (
	"context"
	"sync"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// MockEngine is a scriptable engine for tests. Events are emitted manually
// through EmitProgress, EmitEnd, and EmitError; calls are recorded for
// assertions.
type MockEngine struct {
	mu          sync.Mutex
	handler     Handler
	voices      []domain.Voice
	requests    []Request
	paused      bool
	cancelCount int
	rate        float64
	rateErr     error
	speakErr    error
	closed      bool
}

// NewMockEngine creates a mock with the given voice catalog.
func NewMockEngine(voices ...domain.Voice) *MockEngine {
	return &MockEngine{voices: voices, rateErr: ErrUnsupported}
}

// SetHandler registers the event sink.
func (m *MockEngine) SetHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// Speak records the request.
func (m *MockEngine) Speak(req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.speakErr != nil {
		return m.speakErr
	}
	m.requests = append(m.requests, req)
	m.paused = false
	return nil
}

// Pause records the pause.
func (m *MockEngine) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	return nil
}

// Resume clears the paused flag.
func (m *MockEngine) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	return nil
}

// Cancel counts cancellations. Unlike real engines it does not emit the
// interrupted event itself; tests script that explicitly when they need it.
func (m *MockEngine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCount++
	return nil
}

// SetRate records the requested rate and returns the scripted result.
func (m *MockEngine) SetRate(rate float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = rate
	return m.rateErr
}

// Voices returns the scripted voice catalog.
func (m *MockEngine) Voices(_ context.Context) ([]domain.Voice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voices, nil
}

// Name identifies the mock.
func (m *MockEngine) Name() string { return "mock" }

// Close marks the engine closed.
func (m *MockEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Test hooks.

// SetVoices replaces the voice catalog, simulating late population.
func (m *MockEngine) SetVoices(voices []domain.Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voices = voices
}

// SetSpeakError scripts Speak to fail.
func (m *MockEngine) SetSpeakError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speakErr = err
}

// SetRateSupported scripts SetRate to succeed.
func (m *MockEngine) SetRateSupported() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateErr = nil
}

// Requests returns a copy of all recorded Speak requests.
func (m *MockEngine) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent Speak request.
func (m *MockEngine) LastRequest() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return Request{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// Paused reports the last pause/resume state.
func (m *MockEngine) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// CancelCount reports how many times Cancel ran.
func (m *MockEngine) CancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelCount
}

// Closed reports whether Close ran.
func (m *MockEngine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// EmitProgress delivers a progress event for token.
func (m *MockEngine) EmitProgress(token uint64, offset int) {
	m.emit(Event{Token: token, Type: EventProgress, Offset: offset})
}

// EmitEnd delivers a completion event for token.
func (m *MockEngine) EmitEnd(token uint64) {
	m.emit(Event{Token: token, Type: EventEnd})
}

// EmitError delivers an error event for token.
func (m *MockEngine) EmitError(token uint64, err error) {
	m.emit(Event{Token: token, Type: EventError, Err: err})
}

func (m *MockEngine) emit(ev Event) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(ev)
	}
}
