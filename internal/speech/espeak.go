package speech

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aloudapp/aloud-server/internal/domain"
	"github.com/aloudapp/aloud-server/internal/logger"
)

// Words per minute at rate 1.0, espeak-ng's own default.
const espeakBaseWPM = 175

// EspeakEngine narrates through a local espeak-ng binary. It has no word
// callbacks, so progress offsets are estimated from speaking wall time.
// Pause and resume map to SIGSTOP and SIGCONT.
type EspeakEngine struct {
	path string
	log  *logger.Logger
	tick time.Duration

	mu       sync.Mutex
	handler  Handler
	cmd      *exec.Cmd
	token    uint64
	paused   bool
	canceled bool
	closed   bool
}

// NewEspeakEngine locates the espeak binary and prepares the engine.
// An empty path searches PATH for espeak-ng, then espeak.
func NewEspeakEngine(log *logger.Logger, path string, progressInterval time.Duration) (*EspeakEngine, error) {
	resolved, err := lookupEspeak(path)
	if err != nil {
		return nil, fmt.Errorf("espeak binary not found: %w", err)
	}
	if progressInterval <= 0 {
		progressInterval = defaultProgressInterval
	}
	return &EspeakEngine{path: resolved, log: log, tick: progressInterval}, nil
}

func lookupEspeak(explicit string) (string, error) {
	if explicit != "" {
		return exec.LookPath(explicit)
	}
	if p, err := exec.LookPath("espeak-ng"); err == nil {
		return p, nil
	}
	return exec.LookPath("espeak")
}

// SetHandler registers the event sink.
func (e *EspeakEngine) SetHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Speak starts an espeak process reading req.Text from stdin.
func (e *EspeakEngine) Speak(req Request) error {
	rate := domain.ClampRate(req.Rate)
	wpm := int(math.Round(espeakBaseWPM * rate))
	args := []string{"-s", strconv.Itoa(wpm)}
	if req.VoiceID != "" {
		args = append(args, "-v", req.VoiceID)
	}
	cmd := exec.Command(e.path, args...)
	cmd.Stdin = strings.NewReader(req.Text)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("engine closed")
	}
	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("starting espeak: %w", err)
	}
	e.cmd = cmd
	e.token = req.Token
	e.paused = false
	e.canceled = false
	e.mu.Unlock()

	go e.watch(cmd, req, rate)
	return nil
}

func (e *EspeakEngine) watch(cmd *exec.Cmd, req Request, rate float64) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	activeTicks := 0
	for {
		select {
		case err := <-done:
			e.mu.Lock()
			canceled := e.canceled
			if e.cmd == cmd {
				e.cmd = nil
			}
			e.mu.Unlock()
			if canceled {
				return
			}
			if err != nil {
				e.emit(Event{Token: req.Token, Type: EventError, Err: fmt.Errorf("espeak exited: %w", err)})
				return
			}
			e.emit(Event{Token: req.Token, Type: EventEnd})
			return
		case <-ticker.C:
			e.mu.Lock()
			skip := e.paused || e.canceled || e.cmd != cmd
			e.mu.Unlock()
			if skip {
				continue
			}
			activeTicks++
			secs := float64(activeTicks) * e.tick.Seconds()
			off := domain.CharsForSeconds(secs, rate)
			if off > len(req.Text) {
				off = len(req.Text)
			}
			e.emit(Event{Token: req.Token, Type: EventProgress, Offset: off})
		}
	}
}

// Pause stops the process with SIGSTOP.
func (e *EspeakEngine) Pause() error {
	return e.signal(syscall.SIGSTOP, true)
}

// Resume continues a stopped process with SIGCONT.
func (e *EspeakEngine) Resume() error {
	return e.signal(syscall.SIGCONT, false)
}

func (e *EspeakEngine) signal(sig syscall.Signal, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd == nil || e.cmd.Process == nil {
		return nil
	}
	if err := e.cmd.Process.Signal(sig); err != nil {
		return fmt.Errorf("signaling espeak: %w", err)
	}
	e.paused = paused
	return nil
}

// Cancel kills the active process and reports it as interrupted.
func (e *EspeakEngine) Cancel() error {
	e.mu.Lock()
	cmd := e.cmd
	token := e.token
	if cmd == nil {
		e.mu.Unlock()
		return nil
	}
	e.canceled = true
	e.cmd = nil
	e.paused = false
	e.mu.Unlock()

	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	e.emit(Event{Token: token, Type: EventError, Err: ErrInterrupted})
	return nil
}

// SetRate is unsupported live; the wpm flag is set per invocation.
func (e *EspeakEngine) SetRate(float64) error {
	return ErrUnsupported
}

// Voices parses the output of espeak --voices.
func (e *EspeakEngine) Voices(ctx context.Context) ([]domain.Voice, error) {
	out, err := exec.CommandContext(ctx, e.path, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("listing espeak voices: %w", err)
	}
	return parseEspeakVoices(out), nil
}

// Name identifies the engine.
func (e *EspeakEngine) Name() string { return "espeak" }

// Close cancels any active utterance.
func (e *EspeakEngine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return e.Cancel()
}

func (e *EspeakEngine) emit(ev Event) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// parseEspeakVoices reads the table printed by espeak --voices. Voice names
// can contain spaces, so the name runs until the file column, which always
// carries a path separator.
func parseEspeakVoices(out []byte) []domain.Voice {
	var voices []domain.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "Pty") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		lang := fields[1]
		gender := espeakGender(fields[2])
		nameFields := fields[3:]
		for i, f := range nameFields {
			if strings.ContainsRune(f, '/') {
				nameFields = nameFields[:i]
				break
			}
		}
		name := strings.Join(nameFields, " ")
		if name == "" {
			name = lang
		}
		voices = append(voices, domain.Voice{
			ID:       lang,
			Name:     name,
			Language: lang,
			Gender:   gender,
		})
	}
	return voices
}

func espeakGender(col string) string {
	if i := strings.IndexByte(col, '/'); i >= 0 && i+1 < len(col) {
		col = col[i+1:]
	}
	switch col {
	case "M":
		return "male"
	case "F":
		return "female"
	}
	return ""
}
