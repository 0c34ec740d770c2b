// Package sse implements Server-Sent Events for pushing playback state and
// library changes to connected clients.
package sse

import (
	"time"

	"github.com/aloudapp/aloud-server/internal/domain"
	"github.com/aloudapp/aloud-server/internal/playback"
)

// Narration is server-driven, so SSE carries everything a client needs to
// render: the current playback snapshot, library changes as the scanner finds
// them, and sleep timer countdowns. Client-to-server traffic stays plain
// request/response.

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventPlaybackState carries a full playback snapshot after a state change.
	EventPlaybackState EventType = "playback.state"
	// EventPlaybackError reports a narration fault for the open book.
	EventPlaybackError EventType = "playback.error"
	// EventTimerUpdated carries sleep timer countdown ticks, so clients can
	// update the timer display without re-rendering the whole player.
	EventTimerUpdated EventType = "timer.updated"

	// EventBookAdded represents a newly scanned book.
	EventBookAdded EventType = "book.added"
	// EventBookUpdated represents a rescanned or re-identified book.
	EventBookUpdated EventType = "book.updated"
	// EventBookRemoved represents a book whose file vanished from the library.
	EventBookRemoved EventType = "book.removed"

	// EventScanStarted represents a library scan start.
	EventScanStarted EventType = "scan.started"
	// EventScanCompleted represents a library scan completion.
	EventScanCompleted EventType = "scan.completed"

	// EventVoicesUpdated fires when the narrator catalog becomes available or
	// changes. Engines may report an empty catalog right after startup.
	EventVoicesUpdated EventType = "voices.updated"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"` // Event-specific data as JSON object
	Type      EventType `json:"type"`
}

// PlaybackErrorEventData is the data payload for playback error events.
type PlaybackErrorEventData struct {
	BookID  string `json:"book_id"`
	Message string `json:"message"`
}

// TimerEventData is the data payload for sleep timer events.
type TimerEventData struct {
	BookID string            `json:"book_id"`
	Timer  domain.SleepTimer `json:"timer"`
}

// BookEventData is the data payload for book add/update events.
type BookEventData struct {
	Book *domain.Book `json:"book"`
}

// BookRemovedEventData is the data payload for book removal events.
type BookRemovedEventData struct {
	RemovedAt time.Time `json:"removed_at"`
	BookID    string    `json:"book_id"`
}

// ScanStartedEventData is the data payload for scan start events.
type ScanStartedEventData struct {
	StartedAt time.Time `json:"started_at"`
	ScanID    string    `json:"scan_id"`
	Path      string    `json:"path"`
}

// ScanCompletedEventData is the data payload for scan completion events.
type ScanCompletedEventData struct {
	CompletedAt  time.Time `json:"completed_at"`
	ScanID       string    `json:"scan_id"`
	BooksAdded   int       `json:"books_added"`
	BooksUpdated int       `json:"books_updated"`
	BooksRemoved int       `json:"books_removed"`
	Errors       int       `json:"errors"`
}

// VoicesEventData is the data payload for voice catalog events.
type VoicesEventData struct {
	Engine string         `json:"engine"`
	Voices []domain.Voice `json:"voices"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewPlaybackStateEvent creates a playback.state event carrying the snapshot.
func NewPlaybackStateEvent(snap playback.Snapshot) Event {
	return Event{
		Type:      EventPlaybackState,
		Data:      snap,
		Timestamp: time.Now(),
	}
}

// NewPlaybackErrorEvent creates a playback.error event.
func NewPlaybackErrorEvent(bookID, message string) Event {
	return Event{
		Type: EventPlaybackError,
		Data: PlaybackErrorEventData{
			BookID:  bookID,
			Message: message,
		},
		Timestamp: time.Now(),
	}
}

// NewTimerUpdatedEvent creates a timer.updated event.
func NewTimerUpdatedEvent(bookID string, timer domain.SleepTimer) Event {
	return Event{
		Type: EventTimerUpdated,
		Data: TimerEventData{
			BookID: bookID,
			Timer:  timer,
		},
		Timestamp: time.Now(),
	}
}

// NewBookAddedEvent creates a book.added event.
func NewBookAddedEvent(book *domain.Book) Event {
	return Event{
		Type:      EventBookAdded,
		Data:      BookEventData{Book: book},
		Timestamp: time.Now(),
	}
}

// NewBookUpdatedEvent creates a book.updated event.
func NewBookUpdatedEvent(book *domain.Book) Event {
	return Event{
		Type:      EventBookUpdated,
		Data:      BookEventData{Book: book},
		Timestamp: time.Now(),
	}
}

// NewBookRemovedEvent creates a book.removed event.
func NewBookRemovedEvent(bookID string, removedAt time.Time) Event {
	return Event{
		Type: EventBookRemoved,
		Data: BookRemovedEventData{
			BookID:    bookID,
			RemovedAt: removedAt,
		},
		Timestamp: time.Now(),
	}
}

// NewScanStartedEvent creates a scan.started event.
func NewScanStartedEvent(scanID, path string) Event {
	return Event{
		Type: EventScanStarted,
		Data: ScanStartedEventData{
			ScanID:    scanID,
			Path:      path,
			StartedAt: time.Now(),
		},
		Timestamp: time.Now(),
	}
}

// NewScanCompletedEvent creates a scan.completed event.
func NewScanCompletedEvent(scanID string, added, updated, removed, errs int) Event {
	return Event{
		Type: EventScanCompleted,
		Data: ScanCompletedEventData{
			ScanID:       scanID,
			CompletedAt:  time.Now(),
			BooksAdded:   added,
			BooksUpdated: updated,
			BooksRemoved: removed,
			Errors:       errs,
		},
		Timestamp: time.Now(),
	}
}

// NewVoicesUpdatedEvent creates a voices.updated event.
func NewVoicesUpdatedEvent(engine string, voices []domain.Voice) Event {
	return Event{
		Type: EventVoicesUpdated,
		Data: VoicesEventData{
			Engine: engine,
			Voices: voices,
		},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type: EventHeartbeat,
		Data: HeartbeatEventData{
			ServerTime: time.Now(),
		},
		Timestamp: time.Now(),
	}
}
