package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/room4-2/roleplay-live/client"
	"github.com/room4-2/roleplay-live/config"
	"github.com/room4-2/roleplay-live/messages"
)

type turnWaiter struct {
	open  chan struct{}
	turns chan string
}

func (w turnWaiter) Notify(msg *messages.ServerMessage) {
	switch p := msg.Payload.(type) {
	case messages.StatusPayload:
		if p.Status == "open" {
			select {
			case w.open <- struct{}{}:
			default:
			}
		}
	case messages.TurnPayload:
		if p.Speaker == "ai" {
			w.turns <- p.Text
		}
	}
}

func main() {
	agentURL := flag.String("agent", "ws://localhost:8000/ws", "Agent websocket base URL")
	text := flag.String("text", "Hello! Say hi back in one sentence.", "Message to send")
	flag.Parse()

	cfg := &config.Config{
		AgentURL:             strings.TrimRight(*agentURL, "/"),
		ReconnectDelay:       5 * time.Second,
		AnalysisPollInterval: 500 * time.Millisecond,
		AnalysisPollAttempts: 20,
		AnalysisTimeout:      90 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := turnWaiter{open: make(chan struct{}, 1), turns: make(chan string, 4)}
	c := client.New(client.Options{Config: cfg, Notifier: w})
	go c.Run(ctx)

	select {
	case <-w.open:
	case <-time.After(10 * time.Second):
		log.Fatalf("Failed to connect to %s", cfg.AgentURL)
	}

	c.SendText(*text)
	log.Println("Waiting for response...")

	select {
	case reply := <-w.turns:
		log.Printf("💬 Received text: %s", reply)
		log.Println("✅ Turn complete")
	case <-time.After(30 * time.Second):
		log.Println("⏰ No response")
	}
}
