package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/room4-2/roleplay-live/client"
	"github.com/room4-2/roleplay-live/config"
	"github.com/room4-2/roleplay-live/media"
	"github.com/room4-2/roleplay-live/messages"
)

// printer shows agent output on the terminal
type printer struct {
	turns chan struct{}
}

func (p printer) Notify(msg *messages.ServerMessage) {
	switch payload := msg.Payload.(type) {
	case messages.TextResponsePayload:
		fmt.Print(payload.Text)
	case messages.TurnPayload:
		if payload.Speaker == "ai" {
			fmt.Println()
			log.Println("--- Turn complete ---")
			select {
			case p.turns <- struct{}{}:
			default:
			}
		}
	case messages.StatusPayload:
		log.Printf("📊 Status: %s (%s) %s", payload.Status, payload.Mode, payload.Message)
	case messages.SpeechPayload:
		log.Printf("🎙️ Speaking: %t", payload.Speaking)
	case messages.NoticePayload:
		log.Printf("📢 %s", payload.Message)
	case messages.ErrorPayload:
		log.Printf("❌ Error: %s %s", payload.Code, payload.Message)
	}
}

func main() {
	// Flags
	agentURL := flag.String("agent", "ws://localhost:8000/ws", "Agent websocket base URL")
	audioFile := flag.String("file", "examples/user.pcm", "Audio file to send (16 kHz PCM or WAV)")
	play := flag.Bool("play", true, "Play agent audio via sox")
	flag.Parse()

	cfg := &config.Config{
		AgentURL:             strings.TrimRight(*agentURL, "/"),
		ReconnectDelay:       5 * time.Second,
		AnalysisPollInterval: 500 * time.Millisecond,
		AnalysisPollAttempts: 20,
		AnalysisTimeout:      90 * time.Second,
		SampleRate:           16000,
		PlaybackRate:         24000,
		FrameSamples:         1024,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := printer{turns: make(chan struct{}, 1)}
	opts := client.Options{
		Config: cfg,
		Mic: &media.FileSource{
			Path:         *audioFile,
			SampleRate:   cfg.SampleRate,
			FrameSamples: cfg.FrameSamples,
			Realtime:     true,
		},
		Notifier: out,
	}

	if *play {
		player, err := media.NewPlayer(cfg.PlaybackRate)
		if err != nil {
			log.Fatalf("Failed to create audio player: %v", err)
		}
		defer player.Close()
		queue := media.NewPlaybackQueue(player, 10*1024*1024)
		go queue.Run(ctx)
		opts.Playback = queue
	}

	c := client.New(opts)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	log.Printf("📤 Streaming %s to session %s", *audioFile, c.SessionID())
	c.StartAudio()

	// Handle interrupt
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-out.turns:
		// let the tail of the reply play out
		time.Sleep(2 * time.Second)
	case <-interrupt:
		log.Println("\n👋 Interrupted, closing...")
	case <-time.After(60 * time.Second):
		log.Println("⏰ Timeout waiting for response")
	}

	cancel()
	<-done
}
