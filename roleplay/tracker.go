package roleplay

import (
	"errors"
	"log"
	"time"
	"unicode/utf8"
)

// ErrNoSession is returned when ending with no session in progress
var ErrNoSession = errors.New("no role-play session in progress")

// Speaker tags a timeline entry
type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerAI     Speaker = "ai"
	SpeakerSystem Speaker = "system"
)

// MaxContentLength bounds the content kept per timeline entry, in characters
const MaxContentLength = 100

// Entry is one exchanged turn
type Entry struct {
	Timestamp     time.Time     `json:"timestamp"`
	Speaker       Speaker       `json:"speaker"`
	Content       string        `json:"content"`
	TimeFromStart time.Duration `json:"timeFromStart"`
}

// Summary is what a finished session hands to analysis
type Summary struct {
	Scenario  Scenario      `json:"scenario"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Timeline  []Entry       `json:"timeline"`
}

// Truncate shortens s to at most MaxContentLength characters, marking the cut with "..."
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxContentLength {
		return s
	}
	r := []rune(s)
	return string(r[:MaxContentLength-3]) + "..."
}

// Tracker records the timeline of one role-play session. It performs no I/O.
type Tracker struct {
	scenario    *Scenario
	started     time.Time
	timeline    []Entry
	awaitingAck bool

	now func() time.Time
}

// NewTracker creates an idle tracker
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Start begins a new session, discarding any previous timeline
func (t *Tracker) Start(s Scenario) {
	t.scenario = &s
	t.started = t.now()
	t.timeline = nil
	t.awaitingAck = true
	log.Printf("🎭 Role-play started: %s", s.Title)
}

// Active reports whether a session is in progress
func (t *Tracker) Active() bool {
	return t.scenario != nil
}

// Scenario returns the active scenario
func (t *Tracker) Scenario() (Scenario, bool) {
	if t.scenario == nil {
		return Scenario{}, false
	}
	return *t.scenario, true
}

// Elapsed returns the time since Start, or zero when idle
func (t *Tracker) Elapsed() time.Duration {
	if t.scenario == nil {
		return 0
	}
	return t.now().Sub(t.started)
}

// Track appends a truncated entry. It is a no-op when no session is active.
func (t *Tracker) Track(speaker Speaker, content string) bool {
	if t.scenario == nil {
		return false
	}
	now := t.now()
	t.timeline = append(t.timeline, Entry{
		Timestamp:     now,
		Speaker:       speaker,
		Content:       Truncate(content),
		TimeFromStart: now.Sub(t.started),
	})
	if len(t.timeline)%5 == 0 {
		log.Printf("💬 Role-play progress: %d messages exchanged", len(t.timeline))
	}
	return true
}

// AwaitingAck reports whether the agent has yet to answer the context prompt
func (t *Tracker) AwaitingAck() bool {
	return t.scenario != nil && t.awaitingAck
}

// Acknowledge marks the context prompt answered. It returns true only for
// the first call of a session.
func (t *Tracker) Acknowledge() bool {
	if !t.AwaitingAck() {
		return false
	}
	t.awaitingAck = false
	return true
}

// Timeline returns a copy of the entries recorded so far
func (t *Tracker) Timeline() []Entry {
	return append([]Entry(nil), t.timeline...)
}

// End stops tracking and returns the session summary. The timeline is cleared.
func (t *Tracker) End() (Summary, error) {
	if t.scenario == nil {
		return Summary{}, ErrNoSession
	}
	summary := Summary{
		Scenario:  *t.scenario,
		StartedAt: t.started,
		Duration:  t.now().Sub(t.started),
		Timeline:  t.timeline,
	}
	t.Reset()
	log.Printf("🎭 Role-play ended after %v (%d entries)", summary.Duration.Round(time.Second), len(summary.Timeline))
	return summary, nil
}

// Reset drops the session and its timeline
func (t *Tracker) Reset() {
	t.scenario = nil
	t.started = time.Time{}
	t.timeline = nil
	t.awaitingAck = false
}
