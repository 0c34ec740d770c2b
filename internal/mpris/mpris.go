// Package mpris puts the narration session on the desktop's media keys. It
// claims org.mpris.MediaPlayer2.aloud on the session bus, maps the standard
// player controls onto the playback facade, and mirrors every snapshot into
// the MPRIS properties so desktop widgets stay current.
package mpris

import (
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"github.com/aloudapp/aloud-server/internal/domain"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/playback"
)

const (
	busName         = "org.mpris.MediaPlayer2.aloud"
	rootInterface   = "org.mpris.MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"

	objectPath dbus.ObjectPath = "/org/mpris/MediaPlayer2"

	// noTrack is the MPRIS sentinel for "nothing loaded".
	noTrack dbus.ObjectPath = "/org/mpris/MediaPlayer2/TrackList/NoTrack"
)

// Service is the MPRIS adapter. It implements playback.Notifier, so wiring
// it into the manager's notifier fan-out keeps the desktop in sync; Start
// is separate and optional, and until it runs every notification is a no-op.
type Service struct {
	log *logger.Logger

	mu       sync.Mutex
	playback *playback.Manager
	conn     *dbus.Conn
	props    *prop.Properties
}

// New creates the adapter. Nothing touches the bus until Start.
func New(log *logger.Logger) *Service {
	return &Service{log: log}
}

// Start claims the bus name and exports the MPRIS objects. A missing session
// bus (headless hosts) or an already-claimed name makes it fail; callers log
// and continue, narration does not need a desktop.
func (s *Service) Start(manager *playback.Manager) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("authenticate: %w", err)
	}
	if err := conn.Hello(); err != nil {
		_ = conn.Close()
		return fmt.Errorf("register connection: %w", err)
	}

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		_ = conn.Close()
		return fmt.Errorf("bus name %s is already claimed", busName)
	}

	props, err := prop.Export(conn, objectPath, propSpec())
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("export properties: %w", err)
	}

	if err := conn.Export(rootObject{}, objectPath, rootInterface); err != nil {
		_ = conn.Close()
		return fmt.Errorf("export root object: %w", err)
	}
	if err := conn.Export(playerObject{s}, objectPath, playerInterface); err != nil {
		_ = conn.Close()
		return fmt.Errorf("export player object: %w", err)
	}

	node := &introspect.Node{
		Name: string(objectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{Name: rootInterface, Methods: introspect.Methods(rootObject{})},
			{Name: playerInterface, Methods: introspect.Methods(playerObject{})},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), objectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		_ = conn.Close()
		return fmt.Errorf("export introspection: %w", err)
	}

	s.playback = manager
	s.conn = conn
	s.props = props
	s.log.Info("mpris controls started", "bus_name", busName)
	return nil
}

// Stop releases the bus name and drops the exported objects. Safe before
// Start and safe to repeat.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.stopLocked()
		s.log.Info("mpris controls stopped")
	}
}

func (s *Service) stopLocked() {
	if s.conn == nil {
		return
	}
	// Closing the private connection releases the name and unexports
	// everything in one stroke.
	_ = s.conn.Close()
	s.conn = nil
	s.props = nil
}

// PlaybackChanged implements playback.Notifier: every snapshot becomes a
// property update, which the prop layer turns into PropertiesChanged signals.
func (s *Service) PlaybackChanged(snap playback.Snapshot) {
	s.mu.Lock()
	props := s.props
	s.mu.Unlock()
	if props == nil {
		return
	}

	props.SetMust(playerInterface, "PlaybackStatus", mprisStatus(snap.Status))
	props.SetMust(playerInterface, "Rate", snap.Rate)
	props.SetMust(playerInterface, "Metadata", metadataFor(snap))
}

func mprisStatus(status domain.PlaybackStatus) string {
	switch status {
	case domain.StatusSpeaking:
		return "Playing"
	case domain.StatusPaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

// metadataFor maps a snapshot onto xesam fields the audiobook way: the
// chapter is the track, the book is the album.
func metadataFor(snap playback.Snapshot) map[string]dbus.Variant {
	if snap.BookID == "" {
		return map[string]dbus.Variant{
			"mpris:trackid": dbus.MakeVariant(noTrack),
		}
	}

	title := snap.ChapterTitle
	if title == "" {
		title = snap.Title
	}

	meta := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(trackID(snap.BookID, snap.Position.Chapter)),
		"xesam:title":   dbus.MakeVariant(title),
		"xesam:album":   dbus.MakeVariant(snap.Title),
	}
	if snap.Author != "" {
		meta["xesam:artist"] = dbus.MakeVariant([]string{snap.Author})
	}
	return meta
}

// trackID builds a valid object path from a book ID, which may contain
// characters (like the nanoid hyphen) an object path cannot.
func trackID(bookID string, chapter int) dbus.ObjectPath {
	var b strings.Builder
	for _, r := range bookID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return dbus.ObjectPath(fmt.Sprintf("/org/aloud/track/%s/%d", b.String(), chapter))
}

// Control mapping. Every entry point tolerates a missing session: media keys
// keep firing after a book closes, and that must stay silent.

func (s *Service) session() *playback.Session {
	s.mu.Lock()
	manager := s.playback
	s.mu.Unlock()
	if manager == nil {
		return nil
	}
	sess, err := manager.Current()
	if err != nil {
		return nil
	}
	return sess
}

func (s *Service) play() {
	sess := s.session()
	if sess == nil {
		return
	}
	snap := sess.Snapshot()
	switch snap.Status {
	case domain.StatusPaused:
		sess.Resume()
	case domain.StatusIdle:
		sess.Play(snap.Position.Chapter, snap.Position.Chunk)
	}
}

func (s *Service) pause() {
	if sess := s.session(); sess != nil {
		sess.Pause()
	}
}

func (s *Service) playPause() {
	sess := s.session()
	if sess == nil {
		return
	}
	if sess.Snapshot().Status == domain.StatusSpeaking {
		sess.Pause()
	} else {
		s.play()
	}
}

func (s *Service) stopPlayback() {
	s.mu.Lock()
	manager := s.playback
	s.mu.Unlock()
	if manager != nil {
		_ = manager.CloseCurrent()
	}
}

func (s *Service) jumpChapter(delta int) {
	sess := s.session()
	if sess == nil {
		return
	}
	snap := sess.Snapshot()
	chapter := snap.Position.Chapter + delta
	if chapter < 0 || chapter >= snap.ChapterCount {
		return
	}
	sess.JumpToChapter(chapter)
}

func (s *Service) seek(offsetMicros int64) {
	if sess := s.session(); sess != nil {
		sess.Skip(float64(offsetMicros) / 1e6)
	}
}

// rootObject answers the org.mpris.MediaPlayer2 interface. The server has no
// window to raise and does not quit on a desktop's request.
type rootObject struct{}

func (rootObject) Raise() *dbus.Error { return nil }
func (rootObject) Quit() *dbus.Error  { return nil }

// playerObject answers org.mpris.MediaPlayer2.Player.
type playerObject struct {
	s *Service
}

func (p playerObject) Play() *dbus.Error {
	p.s.play()
	return nil
}

func (p playerObject) Pause() *dbus.Error {
	p.s.pause()
	return nil
}

func (p playerObject) PlayPause() *dbus.Error {
	p.s.playPause()
	return nil
}

func (p playerObject) Stop() *dbus.Error {
	p.s.stopPlayback()
	return nil
}

func (p playerObject) Next() *dbus.Error {
	p.s.jumpChapter(1)
	return nil
}

func (p playerObject) Previous() *dbus.Error {
	p.s.jumpChapter(-1)
	return nil
}

func (p playerObject) Seek(offset int64) *dbus.Error {
	p.s.seek(offset)
	return nil
}

// SetPosition needs an absolute time base narration does not have; chapter
// and chunk are the only addressable positions.
func (p playerObject) SetPosition(_ dbus.ObjectPath, _ int64) *dbus.Error { return nil }

func (p playerObject) OpenUri(_ string) *dbus.Error { return nil }

func propSpec() map[string]map[string]*prop.Prop {
	return map[string]map[string]*prop.Prop{
		rootInterface: {
			"Identity":            {Value: "Aloud", Emit: prop.EmitFalse},
			"CanQuit":             {Value: false, Emit: prop.EmitFalse},
			"CanRaise":            {Value: false, Emit: prop.EmitFalse},
			"HasTrackList":        {Value: false, Emit: prop.EmitFalse},
			"SupportedUriSchemes": {Value: []string{}, Emit: prop.EmitFalse},
			"SupportedMimeTypes":  {Value: []string{}, Emit: prop.EmitFalse},
		},
		playerInterface: {
			"PlaybackStatus": {Value: "Stopped", Emit: prop.EmitTrue},
			"Rate":           {Value: 1.0, Emit: prop.EmitTrue},
			"Metadata":       {Value: map[string]dbus.Variant{"mpris:trackid": dbus.MakeVariant(noTrack)}, Emit: prop.EmitTrue},
			"Volume":         {Value: 1.0, Emit: prop.EmitFalse},
			"Position":       {Value: int64(0), Emit: prop.EmitFalse},
			"MinimumRate":    {Value: domain.MinPlaybackRate, Emit: prop.EmitFalse},
			"MaximumRate":    {Value: domain.MaxPlaybackRate, Emit: prop.EmitFalse},
			"CanGoNext":      {Value: true, Emit: prop.EmitFalse},
			"CanGoPrevious":  {Value: true, Emit: prop.EmitFalse},
			"CanPlay":        {Value: true, Emit: prop.EmitFalse},
			"CanPause":       {Value: true, Emit: prop.EmitFalse},
			"CanSeek":        {Value: true, Emit: prop.EmitFalse},
			"CanControl":     {Value: true, Emit: prop.EmitFalse},
		},
	}
}
