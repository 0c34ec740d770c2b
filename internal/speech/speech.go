// Package speech abstracts narration engines behind one asynchronous interface.
//
// An Engine accepts one segment of text at a time and reports progress,
// completion, and failure through events. Engines are unreliable by contract:
// they may stall, reorder nothing, and report cancellation as an error. The
// playback layer owns all sequencing and recovery.
package speech

import (
	"context"
	"errors"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// EventType classifies engine callbacks.
type EventType string

const (
	// EventProgress reports how many characters of the segment were spoken.
	EventProgress EventType = "progress"
	// EventEnd reports the segment finished.
	EventEnd EventType = "end"
	// EventError reports the segment failed or was interrupted.
	EventError EventType = "error"
)

// Event is one asynchronous engine callback. Token echoes the request token
// so superseded callbacks can be discarded.
type Event struct {
	Token  uint64
	Type   EventType
	Offset int
	Err    error
}

// Handler receives engine events. Handlers may be called from engine
// goroutines and must do their own locking.
type Handler func(Event)

// Request is one narration segment.
type Request struct {
	Token   uint64
	Text    string
	VoiceID string
	Rate    float64
}

// Engine errors.
var (
	// ErrInterrupted marks the benign cancellation an engine raises when a
	// segment is cancelled mid-flight. Never user-visible.
	ErrInterrupted = errors.New("narration interrupted")
	// ErrUnsupported marks an optional capability an engine does not have.
	ErrUnsupported = errors.New("not supported by engine")
)

// Engine converts text segments to audible speech.
//
// Speak starts narrating asynchronously and returns once the segment is
// issued. Exactly one terminal event (end or error) follows per request
// unless the engine stalls, which the caller must guard against.
type Engine interface {
	// SetHandler registers the event sink. Must be called before Speak.
	SetHandler(h Handler)
	// Speak begins narrating the request.
	Speak(req Request) error
	// Pause suspends the current segment in place.
	Pause() error
	// Resume continues a paused segment.
	Resume() error
	// Cancel aborts the current segment. Engines report the abort as an
	// EventError carrying ErrInterrupted.
	Cancel() error
	// SetRate applies a new rate to the in-flight segment, or returns
	// ErrUnsupported when only subsequent requests can honor it.
	SetRate(rate float64) error
	// Voices lists available narrators. The list may be empty shortly after
	// startup; callers poll until it is populated.
	Voices(ctx context.Context) ([]domain.Voice, error)
	// Name identifies the engine implementation.
	Name() string
	// Close releases engine resources.
	Close() error
}
