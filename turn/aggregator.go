// Package turn reassembles streamed agent chunks into complete turns.
package turn

import (
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/room4-2/roleplay-live/codec"
	"github.com/room4-2/roleplay-live/messages"
)

// Sink plays decoded agent audio
type Sink interface {
	Play(pcm []byte)
	EndOfAudio()
}

// Phase is the aggregator state
type Phase int

const (
	PhaseNoTurn Phase = iota
	PhaseAccumulating
)

func (p Phase) String() string {
	if p == PhaseAccumulating {
		return "accumulating"
	}
	return "no_turn"
}

// Turn is one agent utterance being assembled
type Turn struct {
	ID          string
	text        strings.Builder
	AudioChunks int
	AudioBytes  int
}

// Text returns the text accumulated so far
func (t *Turn) Text() string { return t.text.String() }

// Completed is a finalized turn handed to the owner
type Completed struct {
	ID         string
	Text       string
	AudioBytes int
}

// Outcome describes what a single inbound message did
type Outcome struct {
	Kind   messages.InboundKind
	TurnID string
	Delta  string // Text appended by this message
	Opened bool   // This message started a new turn
}

// Aggregator owns at most one open Turn
type Aggregator struct {
	sink    Sink
	deliver func(Completed)
	current *Turn
	newID   func() string
}

// New creates an aggregator. deliver receives completed turns with non-empty text.
func New(sink Sink, deliver func(Completed)) *Aggregator {
	return &Aggregator{
		sink:    sink,
		deliver: deliver,
		newID:   uuid.NewString,
	}
}

// Phase reports whether a turn is open
func (a *Aggregator) Phase() Phase {
	if a.current == nil {
		return PhaseNoTurn
	}
	return PhaseAccumulating
}

// Current returns the open turn, or nil
func (a *Aggregator) Current() *Turn {
	return a.current
}

// Handle applies one inbound agent message
func (a *Aggregator) Handle(msg messages.Inbound) Outcome {
	kind := msg.Kind()
	switch kind {
	case messages.KindText:
		return a.addText(msg.Data)
	case messages.KindAudio:
		return a.addAudio(msg.Data)
	case messages.KindInterrupted:
		id := a.Interrupt()
		return Outcome{Kind: kind, TurnID: id}
	case messages.KindTurnComplete:
		done, ok := a.Complete()
		if !ok {
			return Outcome{Kind: kind}
		}
		return Outcome{Kind: kind, TurnID: done.ID}
	}
	return Outcome{Kind: kind}
}

func (a *Aggregator) open() (*Turn, bool) {
	if a.current != nil {
		return a.current, false
	}
	a.current = &Turn{ID: a.newID()}
	return a.current, true
}

func (a *Aggregator) addText(delta string) Outcome {
	t, opened := a.open()
	t.text.WriteString(delta)
	return Outcome{Kind: messages.KindText, TurnID: t.ID, Delta: delta, Opened: opened}
}

func (a *Aggregator) addAudio(data string) Outcome {
	pcm, err := codec.DecodeBase64(data)
	if err != nil {
		log.Printf("⚠️ Dropping audio chunk: %v", err)
		return Outcome{Kind: messages.KindAudio}
	}
	t, opened := a.open()
	t.AudioChunks++
	t.AudioBytes += len(pcm)
	if a.sink != nil {
		a.sink.Play(pcm)
	}
	return Outcome{Kind: messages.KindAudio, TurnID: t.ID, Opened: opened}
}

// Interrupt flushes playback and discards the open turn. Playback is flushed
// even when no turn is open. It returns the discarded turn id, if any.
func (a *Aggregator) Interrupt() string {
	if a.sink != nil {
		a.sink.EndOfAudio()
	}
	if a.current == nil {
		return ""
	}
	id := a.current.ID
	a.current = nil
	return id
}

// Complete finalizes the open turn. With no open turn it does nothing.
func (a *Aggregator) Complete() (Completed, bool) {
	if a.current == nil {
		return Completed{}, false
	}
	t := a.current
	a.current = nil

	done := Completed{ID: t.ID, Text: t.Text(), AudioBytes: t.AudioBytes}
	if strings.TrimSpace(done.Text) != "" && a.deliver != nil {
		a.deliver(done)
	}
	return done, true
}
