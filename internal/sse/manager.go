package sse

import (
	"context"
	"sync"
	"time"

	"github.com/aloudapp/aloud-server/internal/domain"
	"github.com/aloudapp/aloud-server/internal/id"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/playback"
)

const (
	// eventBuffer absorbs bursts like a library scan adding many books at
	// once. A full buffer drops events rather than blocking emitters.
	eventBuffer = 1000
	// clientBuffer is the per-connection queue. A client that falls this far
	// behind starts losing events instead of stalling the broadcast loop.
	clientBuffer = 100

	heartbeatInterval = 30 * time.Second
)

// Client is one connected event stream.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
}

// Manager fans events out to every connected client; this is a single-owner
// server, so there are no per-client subscriptions.
type Manager struct {
	clients map[string]*Client
	events  chan Event
	log     *logger.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex

	// closing guards the events channel: Emit holds the read side so
	// Shutdown cannot close the channel mid-send.
	closingMu sync.RWMutex
	closing   bool

	// Last published playback snapshot, for deciding between a full
	// playback.state event and a lightweight timer tick. Protected by snapMu.
	snapMu   sync.Mutex
	lastSnap *playback.Snapshot
}

// NewManager creates the event fan-out hub.
func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		events:  make(chan Event, eventBuffer),
		log:     log,
	}
}

// Start runs the broadcast loop until ctx is canceled. Call once, in a
// goroutine, at server startup.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	m.log.Info("event stream starting")

	beat := time.NewTicker(heartbeatInterval)
	defer beat.Stop()

	for {
		select {
		case event := <-m.events:
			m.broadcast(event)
		case <-beat.C:
			m.broadcast(NewHeartbeatEvent())
		case <-ctx.Done():
			m.log.Info("event stream stopping")
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, drains what is already queued, and hangs
// up on every client. Emits racing with Shutdown are dropped, not panicked on.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closingMu.Lock()
	m.closing = true
	close(m.events)
	m.closingMu.Unlock()

	done := make(chan struct{})
	go func() {
		for event := range m.events {
			m.broadcast(event)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn("event drain timed out, queued events lost")
	}

	m.wg.Wait()
	m.log.Info("event stream closed")
	return nil
}

// Emit queues an event for broadcast. Never blocks: a full queue or a closed
// manager drops the event.
func (m *Manager) Emit(event Event) {
	m.closingMu.RLock()
	defer m.closingMu.RUnlock()
	if m.closing {
		return
	}

	select {
	case m.events <- event:
	default:
		m.log.Error("event queue full, dropping event", "event_type", string(event.Type))
	}
}

// broadcast delivers one event to every client, skipping any whose queue is
// full.
func (m *Manager) broadcast(event Event) {
	var delivered, dropped int

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, client := range m.clients {
		select {
		case client.EventChan <- event:
			delivered++
		default:
			dropped++
			m.log.Warn("dropped event for slow client",
				"client_id", client.ID,
				"event_type", string(event.Type),
			)
		}
	}

	if event.Type != EventHeartbeat {
		m.log.Debug("event broadcast",
			"event_type", string(event.Type),
			"delivered", delivered,
			"dropped", dropped,
		)
	}
}

// Connect registers a new client stream.
func (m *Manager) Connect() (*Client, error) {
	clientID, err := id.Generate("sse")
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:          clientID,
		EventChan:   make(chan Event, clientBuffer),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	m.clients[client.ID] = client
	n := len(m.clients)
	m.mu.Unlock()

	m.log.Info("event client connected", "client_id", clientID, "clients", n)
	return client, nil
}

// Disconnect removes a client and closes its channels. Safe to call for an
// already-removed ID.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, clientID)
	n := len(m.clients)
	m.mu.Unlock()

	close(client.Done)
	close(client.EventChan)

	m.log.Info("event client disconnected",
		"client_id", clientID,
		"connected_for", time.Since(client.ConnectedAt),
		"clients", n,
	)
}

// ClientCount returns how many clients are connected.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		close(client.Done)
		close(client.EventChan)
	}
	m.clients = make(map[string]*Client)
}

// PlaybackChanged implements playback.Notifier. Consecutive snapshots that
// differ only in the sleep countdown become lightweight timer.updated events;
// anything else is a full playback.state. A newly surfaced narration fault
// additionally emits playback.error.
func (m *Manager) PlaybackChanged(snap playback.Snapshot) {
	m.snapMu.Lock()
	prev := m.lastSnap
	snapCopy := snap
	m.lastSnap = &snapCopy
	m.snapMu.Unlock()

	if prev != nil && timerTickOnly(*prev, snap) {
		m.Emit(NewTimerUpdatedEvent(snap.BookID, snap.SleepTimer))
		return
	}

	m.Emit(NewPlaybackStateEvent(snap))
	if snap.Error != "" && (prev == nil || prev.Error != snap.Error) {
		m.Emit(NewPlaybackErrorEvent(snap.BookID, snap.Error))
	}
}

// timerTickOnly reports whether the only difference between two snapshots is
// countdown remaining time or the spoken-position char offset. Progress char
// offsets ride along with timer ticks and neither needs a full state event.
func timerTickOnly(prev, cur playback.Snapshot) bool {
	if cur.SleepTimer.Mode != domain.SleepCountdown || prev.SleepTimer.Mode != cur.SleepTimer.Mode {
		return false
	}
	prev.SleepTimer.Remaining = cur.SleepTimer.Remaining
	prev.Position.Char = cur.Position.Char
	return prev == cur
}
