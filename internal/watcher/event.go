package watcher

import "time"

// EventType classifies a file system event.
type EventType int

const (
	// EventReady is emitted when a file has finished writing and can be read.
	EventReady EventType = iota
	// EventRemoved is emitted when a file or directory is deleted or moved
	// out of the watched tree.
	EventRemoved
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is one observed change under a watched path.
type Event struct {
	// Type is the kind of event.
	Type EventType

	// Path is the affected file path.
	Path string

	// Size is the file size in bytes. Ready events only.
	Size int64

	// ModTime is the file's last modification time. Ready events only.
	ModTime time.Time
}
