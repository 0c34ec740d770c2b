// Command speak narrates a book file from the terminal. It runs the same
// extract → chunk → engine pipeline as the server, which makes it the
// quickest way to verify an engine install or hear how a file chapters.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aloudapp/aloud-server/internal/chunker"
	"github.com/aloudapp/aloud-server/internal/config"
	"github.com/aloudapp/aloud-server/internal/extract"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/speech"
)

func main() {
	engineName := flag.String("engine", "auto", "narration backend: auto, google, espeak")
	voiceID := flag.String("voice", "", "voice ID (engine default when empty)")
	rate := flag.Float64("rate", 1.0, "playback rate")
	chapter := flag.Int("chapter", 0, "chapter index to start from")
	budget := flag.Int("budget", 0, "chunk byte budget (0 = server default)")
	listVoices := flag.Bool("voices", false, "list the engine's voices and exit")
	verbose := flag.Bool("v", false, "engine debug logging")
	flag.Parse()

	log.SetFlags(0)

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	lg := logger.New(logger.Config{Writer: os.Stderr, Format: "pretty", Level: level})

	ctx := context.Background()
	engine, err := speech.Detect(ctx, config.SpeechConfig{
		Engine:           *engineName,
		ProgressInterval: time.Second,
	}, lg)
	if err != nil {
		log.Fatalf("no narration engine: %v", err)
	}
	if engine == nil {
		log.Fatal("narration is off; pick an engine with -engine")
	}
	defer engine.Close()

	if *listVoices {
		printVoices(ctx, engine)
		return
	}

	if flag.NArg() != 1 {
		log.Fatal("usage: speak [flags] <book file>")
	}

	content, err := extract.NewRegistry().Extract(flag.Arg(0))
	if err != nil {
		log.Fatalf("reading %s: %v", flag.Arg(0), err)
	}
	if *chapter < 0 || *chapter >= len(content.Chapters) {
		log.Fatalf("chapter %d out of range (%d chapters)", *chapter, len(content.Chapters))
	}

	fmt.Printf("Narrating: %s", content.Title)
	if content.Author != "" {
		fmt.Printf(" by %s", content.Author)
	}
	fmt.Printf(" (%d chapters)\n", len(content.Chapters))
	fmt.Printf("Engine: %s\n\n", engine.Name())

	// One terminal event per request; route them to the speak loop.
	done := make(chan speech.Event, 1)
	engine.SetHandler(func(ev speech.Event) {
		if ev.Type == speech.EventProgress {
			return
		}
		select {
		case done <- ev:
		default:
		}
	})

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	var token uint64
	for ci := *chapter; ci < len(content.Chapters); ci++ {
		ch := content.Chapters[ci]
		if ch.Title != "" {
			fmt.Printf("[%d/%d] %s\n", ci+1, len(content.Chapters), ch.Title)
		}

		for _, chunk := range chunker.Split(ch.Text, *budget) {
			fmt.Printf("  %s\n", chunk)

			token++
			err := engine.Speak(speech.Request{
				Token:   token,
				Text:    chunk,
				VoiceID: *voiceID,
				Rate:    *rate,
			})
			if err != nil {
				log.Fatalf("speak: %v", err)
			}

			for waiting := true; waiting; {
				select {
				case ev := <-done:
					if ev.Token != token {
						continue
					}
					if ev.Type == speech.EventError && ev.Err != nil {
						log.Fatalf("narration failed: %v", ev.Err)
					}
					waiting = false
				case <-sigc:
					_ = engine.Cancel()
					fmt.Println("\ninterrupted")
					return
				}
			}
		}
		fmt.Println()
	}
}

func printVoices(ctx context.Context, engine speech.Engine) {
	// Catalogs may fill a moment after startup; poll briefly.
	deadline := time.Now().Add(10 * time.Second)
	for {
		voices, err := engine.Voices(ctx)
		if err != nil {
			log.Fatalf("listing voices: %v", err)
		}
		if len(voices) > 0 {
			for _, v := range voices {
				fmt.Printf("%-40s %-8s %-8s %s\n", v.ID, v.Language, v.Gender, v.Name)
			}
			return
		}
		if time.Now().After(deadline) {
			fmt.Println("no voices reported")
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
}
