package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"

	"github.com/aloudapp/aloud-server/internal/domain"
	"github.com/aloudapp/aloud-server/internal/logger"
)

const defaultProgressInterval = 500 * time.Millisecond

// GoogleEngine narrates through the Google Cloud Text-to-Speech API.
// Each utterance is synthesized to MP3 and played locally through beep.
// Progress offsets are estimated from the playhead position.
type GoogleEngine struct {
	client *texttospeech.Client
	log    *logger.Logger
	tick   time.Duration

	mu          sync.Mutex
	handler     Handler
	baseCtx     context.Context
	baseCancel  context.CancelFunc
	utterCancel context.CancelFunc
	ctrl        *beep.Ctrl
	token       uint64
	closed      bool

	speakerOnce sync.Once
	speakerErr  error
	sampleRate  beep.SampleRate
}

// NewGoogleEngine connects to the API using application default credentials.
func NewGoogleEngine(ctx context.Context, log *logger.Logger, progressInterval time.Duration) (*GoogleEngine, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating texttospeech client: %w", err)
	}
	if progressInterval <= 0 {
		progressInterval = defaultProgressInterval
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &GoogleEngine{
		client:     client,
		log:        log,
		tick:       progressInterval,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}, nil
}

// SetHandler registers the event sink.
func (e *GoogleEngine) SetHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Speak synthesizes and plays req asynchronously. Synthesis and playback
// failures surface through the handler as EventError.
func (e *GoogleEngine) Speak(req Request) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("engine closed")
	}
	uctx, ucancel := context.WithCancel(e.baseCtx)
	e.utterCancel = ucancel
	e.token = req.Token
	e.mu.Unlock()

	go e.run(uctx, req)
	return nil
}

func (e *GoogleEngine) run(ctx context.Context, req Request) {
	rate := domain.ClampRate(req.Rate)

	audioCfg := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
	}
	// Chirp voices reject speakingRate; the playhead math still assumes the
	// requested rate, which is close enough for the offset heuristic.
	if !strings.Contains(strings.ToLower(req.VoiceID), "chirp") {
		audioCfg.SpeakingRate = rate
	}

	start := time.Now()
	resp, err := e.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: voiceLanguage(req.VoiceID),
			Name:         req.VoiceID,
		},
		AudioConfig: audioCfg,
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		e.emit(Event{Token: req.Token, Type: EventError, Err: fmt.Errorf("synthesize: %w", err)})
		return
	}
	e.log.Debug("synthesized utterance",
		"voice", req.VoiceID,
		"chars", len(req.Text),
		"bytes", len(resp.AudioContent),
		"took", time.Since(start).Round(time.Millisecond).String(),
	)

	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(resp.AudioContent)))
	if err != nil {
		e.emit(Event{Token: req.Token, Type: EventError, Err: fmt.Errorf("decode mp3: %w", err)})
		return
	}
	if err := e.ensureSpeaker(format); err != nil {
		streamer.Close()
		e.emit(Event{Token: req.Token, Type: EventError, Err: fmt.Errorf("init speaker: %w", err)})
		return
	}

	var playable beep.Streamer = streamer
	if format.SampleRate != e.sampleRate {
		playable = beep.Resample(4, format.SampleRate, e.sampleRate, streamer)
	}

	e.mu.Lock()
	if ctx.Err() != nil {
		e.mu.Unlock()
		streamer.Close()
		return
	}
	ctrl := &beep.Ctrl{Streamer: playable}
	e.ctrl = ctrl
	e.mu.Unlock()

	done := make(chan struct{})
	speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
		close(done)
	})))

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			streamer.Close()
			return
		case <-done:
			streamer.Close()
			e.emit(Event{Token: req.Token, Type: EventEnd})
			return
		case <-ticker.C:
			speaker.Lock()
			pos := streamer.Position()
			paused := ctrl.Paused
			speaker.Unlock()
			if paused {
				continue
			}
			secs := format.SampleRate.D(pos).Seconds()
			off := domain.CharsForSeconds(secs, rate)
			if off > len(req.Text) {
				off = len(req.Text)
			}
			e.emit(Event{Token: req.Token, Type: EventProgress, Offset: off})
		}
	}
}

// Pause freezes the playhead.
func (e *GoogleEngine) Pause() error {
	return e.setPaused(true)
}

// Resume releases a paused playhead.
func (e *GoogleEngine) Resume() error {
	return e.setPaused(false)
}

func (e *GoogleEngine) setPaused(paused bool) error {
	e.mu.Lock()
	ctrl := e.ctrl
	e.mu.Unlock()
	if ctrl == nil {
		return nil
	}
	speaker.Lock()
	ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

// Cancel aborts the active utterance and reports it as interrupted.
func (e *GoogleEngine) Cancel() error {
	e.mu.Lock()
	cancel := e.utterCancel
	token := e.token
	e.utterCancel = nil
	e.ctrl = nil
	e.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	speaker.Clear()
	e.emit(Event{Token: token, Type: EventError, Err: ErrInterrupted})
	return nil
}

// SetRate is unsupported live; the rate on each Speak request is honored
// because speed is baked in at synthesis time.
func (e *GoogleEngine) SetRate(float64) error {
	return ErrUnsupported
}

// Voices lists the API's voice catalog.
func (e *GoogleEngine) Voices(ctx context.Context) ([]domain.Voice, error) {
	resp, err := e.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing voices: %w", err)
	}
	voices := make([]domain.Voice, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		lang := ""
		if len(v.LanguageCodes) > 0 {
			lang = v.LanguageCodes[0]
		}
		voices = append(voices, domain.Voice{
			ID:       v.Name,
			Name:     v.Name,
			Language: lang,
			Gender:   genderLabel(v.SsmlGender),
		})
	}
	return voices, nil
}

// Name identifies the engine.
func (e *GoogleEngine) Name() string { return "google" }

// Close tears down playback and the API client.
func (e *GoogleEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel := e.utterCancel
	e.utterCancel = nil
	e.ctrl = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		speaker.Clear()
	}
	e.baseCancel()
	return e.client.Close()
}

func (e *GoogleEngine) ensureSpeaker(format beep.Format) error {
	e.speakerOnce.Do(func() {
		e.sampleRate = format.SampleRate
		e.speakerErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	return e.speakerErr
}

func (e *GoogleEngine) emit(ev Event) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// voiceLanguage derives the language code from a voice name such as
// "en-GB-Standard-A".
func voiceLanguage(name string) string {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}

func genderLabel(g texttospeechpb.SsmlVoiceGender) string {
	switch g {
	case texttospeechpb.SsmlVoiceGender_MALE:
		return "male"
	case texttospeechpb.SsmlVoiceGender_FEMALE:
		return "female"
	case texttospeechpb.SsmlVoiceGender_NEUTRAL:
		return "neutral"
	default:
		return ""
	}
}
