package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/room4-2/roleplay-live/client"
	"github.com/room4-2/roleplay-live/codec"
	"github.com/room4-2/roleplay-live/config"
	"github.com/room4-2/roleplay-live/gemini"
	"github.com/room4-2/roleplay-live/media"
	"github.com/room4-2/roleplay-live/messages"
	"github.com/room4-2/roleplay-live/server"
	"github.com/room4-2/roleplay-live/store"
	"github.com/room4-2/roleplay-live/vad"
)

// consoleNotifier logs UI messages when no control bridge is running
type consoleNotifier struct{}

func (consoleNotifier) Notify(msg *messages.ServerMessage) {
	switch p := msg.Payload.(type) {
	case messages.TurnPayload:
		log.Printf("💬 %s: %s", p.Speaker, p.Text)
	case messages.StatusPayload:
		log.Printf("📶 %s (%s) %s", p.Status, p.Mode, p.Message)
	case messages.NoticePayload:
		log.Printf("📢 %s", p.Message)
	case messages.ErrorPayload:
		log.Printf("❌ %s: %s", p.Code, p.Message)
	}
}

func vadConfig(s config.VADSettings) vad.Config {
	return vad.Config{
		SilenceThreshold:   s.SilenceThreshold,
		SpeechThreshold:    s.SpeechThreshold,
		MinSpeechDuration:  s.MinSpeech,
		MaxSilenceDuration: s.MaxSilence,
		BufferSize:         s.BufferSize,
	}
}

func main() {
	cameraImage := flag.String("camera", os.Getenv("CAMERA_IMAGE"), "image file served as the camera source")
	screenImage := flag.String("screen", os.Getenv("SCREEN_IMAGE"), "image file served as the screen source")
	noAudio := flag.Bool("no-audio", false, "disable sox playback and capture")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	settings, err := config.LoadVADSettings(cfg.VADConfigPath)
	if err != nil {
		log.Printf("⚠️ %v, using default thresholds", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reports := store.NewReportStore(cfg)
	defer reports.Close()

	var generator server.ScenarioGenerator
	if cfg.GeminiAPIKey != "" {
		g, err := gemini.NewScenarioGenerator(ctx, cfg.GeminiAPIKey, cfg.ScenarioModel)
		if err != nil {
			log.Printf("⚠️ Scenario generation disabled: %v", err)
		} else {
			generator = g
		}
	}

	opts := client.Options{
		Config:  cfg,
		VAD:     vadConfig(settings),
		Reports: reports,
	}

	if !*noAudio {
		player, err := media.NewPlayer(cfg.PlaybackRate)
		if err != nil {
			log.Printf("⚠️ Playback disabled: %v", err)
		} else {
			defer player.Close()
			queue := media.NewPlaybackQueue(player, 10*1024*1024)
			go queue.Run(ctx)
			opts.Playback = queue
		}
		opts.Mic = media.NewRecorder(cfg.SampleRate, cfg.FrameSamples)
	}
	if *cameraImage != "" {
		opts.Video = append(opts.Video, &media.ImageFileSource{Path: *cameraImage, Source: codec.SourceCamera})
	}
	if *screenImage != "" {
		opts.Video = append(opts.Video, &media.ImageFileSource{Path: *screenImage, Source: codec.SourceScreen})
	}

	var srv *server.Server
	if cfg.ControlPort > 0 {
		srv = server.NewServer(cfg, generator, reports)
		opts.Notifier = srv
	} else {
		opts.Notifier = consoleNotifier{}
	}

	c := client.New(opts)
	log.Printf("🆔 Session %s", c.SessionID())

	if srv != nil {
		srv.Attach(c)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("Control bridge error: %v", err)
			}
		}()
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nReceived shutdown signal...")
		cancel()
	}()

	_ = c.Run(ctx)

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Control bridge shutdown error: %v", err)
		}
	}
	log.Println("Client stopped")
}
