package sse

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aloudapp/aloud-server/internal/domain"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/playback"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Writer: io.Discard, Format: "json", Level: slog.LevelError})
}

// startManager runs the broadcast loop and stops it when the test ends.
func startManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(cancel)
	return m
}

func receiveEvent(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case ev := <-client.EventChan:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestManagerBroadcastsToClients(t *testing.T) {
	m := startManager(t)

	client, err := m.Connect()
	require.NoError(t, err)
	defer m.Disconnect(client.ID)

	assert.Equal(t, 1, m.ClientCount())

	book := &domain.Book{ID: "book_1", Title: "Dracula"}
	m.Emit(NewBookAddedEvent(book))

	ev := receiveEvent(t, client)
	assert.Equal(t, EventBookAdded, ev.Type)

	data, ok := ev.Data.(BookEventData)
	require.True(t, ok)
	assert.Equal(t, "book_1", data.Book.ID)
}

func TestManagerDisconnectRemovesClient(t *testing.T) {
	m := startManager(t)

	client, err := m.Connect()
	require.NoError(t, err)
	m.Disconnect(client.ID)

	assert.Equal(t, 0, m.ClientCount())

	// Done channel is closed so the handler loop unblocks.
	select {
	case <-client.Done:
	default:
		t.Fatal("Done channel should be closed after disconnect")
	}

	// Double disconnect is a no-op.
	m.Disconnect(client.ID)
}

func TestPlaybackChangedEmitsFullState(t *testing.T) {
	m := startManager(t)

	client, err := m.Connect()
	require.NoError(t, err)
	defer m.Disconnect(client.ID)

	snap := playback.Snapshot{
		BookID: "book_1",
		Status: domain.StatusSpeaking,
		Rate:   1.0,
	}
	m.PlaybackChanged(snap)

	ev := receiveEvent(t, client)
	assert.Equal(t, EventPlaybackState, ev.Type)

	got, ok := ev.Data.(playback.Snapshot)
	require.True(t, ok)
	assert.Equal(t, "book_1", got.BookID)
}

func TestPlaybackChangedCollapsesCountdownTicks(t *testing.T) {
	m := startManager(t)

	client, err := m.Connect()
	require.NoError(t, err)
	defer m.Disconnect(client.ID)

	base := playback.Snapshot{
		BookID:     "book_1",
		Status:     domain.StatusSpeaking,
		Rate:       1.0,
		SleepTimer: domain.SleepTimerSeconds(30),
	}

	// First snapshot is always a full state event.
	m.PlaybackChanged(base)
	assert.Equal(t, EventPlaybackState, receiveEvent(t, client).Type)

	// A tick that only moves the countdown and char offset is a timer event.
	tick := base
	tick.SleepTimer.Remaining = 29
	tick.Position.Char = 42
	m.PlaybackChanged(tick)

	ev := receiveEvent(t, client)
	assert.Equal(t, EventTimerUpdated, ev.Type)
	data, ok := ev.Data.(TimerEventData)
	require.True(t, ok)
	assert.Equal(t, 29, data.Timer.Remaining)

	// A chunk advance goes back to a full state event.
	moved := tick
	moved.Position = domain.Position{Chapter: 0, Chunk: 3}
	m.PlaybackChanged(moved)
	assert.Equal(t, EventPlaybackState, receiveEvent(t, client).Type)
}

func TestPlaybackChangedSurfacesErrors(t *testing.T) {
	m := startManager(t)

	client, err := m.Connect()
	require.NoError(t, err)
	defer m.Disconnect(client.ID)

	snap := playback.Snapshot{
		BookID: "book_1",
		Status: domain.StatusIdle,
		Error:  "speech synthesis failed",
	}
	m.PlaybackChanged(snap)

	first := receiveEvent(t, client)
	assert.Equal(t, EventPlaybackState, first.Type)

	second := receiveEvent(t, client)
	assert.Equal(t, EventPlaybackError, second.Type)
	data, ok := second.Data.(PlaybackErrorEventData)
	require.True(t, ok)
	assert.Equal(t, "speech synthesis failed", data.Message)

	// The same unchanged error is not re-announced.
	m.PlaybackChanged(snap)
	assert.Equal(t, EventPlaybackState, receiveEvent(t, client).Type)
	select {
	case ev := <-client.EventChan:
		t.Fatalf("unexpected extra event %s", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEmitAfterShutdownIsDropped(t *testing.T) {
	m := NewManager(testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	// Must not panic on the closed channel.
	m.Emit(NewHeartbeatEvent())
}
