// Package analysis runs the post-session evaluation exchange with the agent
// and recovers its structured result from free-form text.
package analysis

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/room4-2/roleplay-live/roleplay"
)

var (
	// ErrInProgress is returned when starting while an exchange is running
	ErrInProgress = errors.New("analysis already in progress")
	// ErrReadyTimeout is returned when text mode never becomes ready
	ErrReadyTimeout = errors.New("text connection not ready")
	// ErrResponseTimeout is returned when the agent stops answering
	ErrResponseTimeout = errors.New("analysis response timed out")
	// ErrSendFailed is returned when a protocol message could not be sent
	ErrSendFailed = errors.New("analysis message not sent")
	// ErrConnectionLost is returned when the socket closes mid-exchange
	ErrConnectionLost = errors.New("connection lost during analysis")
)

// User-facing failure messages
const (
	MsgConnectionTimeout = "Connection timeout. Please try again."
	MsgFailed            = "Failed to process analysis. Please try again."
	MsgResponseTimeout   = "Analysis timed out. Please try again."
	MsgConnectionLost    = "Connection lost during analysis. Please try again."
)

// Phase is the exchange state
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSwitching
	PhaseAwaitingResetAck
	PhaseAwaitingResult
	PhaseComplete
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseSwitching:
		return "switching"
	case PhaseAwaitingResetAck:
		return "awaiting_reset_ack"
	case PhaseAwaitingResult:
		return "awaiting_result"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Transport is the agent connection as seen by the exchange
type Transport interface {
	TextReady() bool
	SwitchToText()
	SendText(text string) bool
}

// Capture is the local microphone pipeline
type Capture interface {
	AudioActive() bool
	StopAudio()
}

// Listener receives exchange progress
type Listener interface {
	AnalysisPhaseChanged(phase Phase)
	AnalysisCompleted(res Result)
	AnalysisFailed(err error, message string)
}

// Scheduler runs fn on the owner's loop after d
type Scheduler func(d time.Duration, fn func())

// Config holds the exchange timing
type Config struct {
	PollInterval    time.Duration
	PollAttempts    int
	ResponseTimeout time.Duration
}

// DefaultConfig polls 20 times at 500ms and waits 90s for the agent
func DefaultConfig() Config {
	return Config{
		PollInterval:    500 * time.Millisecond,
		PollAttempts:    20,
		ResponseTimeout: 90 * time.Second,
	}
}

// Result is a completed evaluation
type Result struct {
	ID          string
	Extraction  Extraction
	Scenario    roleplay.Scenario
	Duration    time.Duration
	CompletedAt time.Time
}

// Controller drives one exchange at a time. Its methods must be called from
// the owner's loop, and the Scheduler must run callbacks there too.
type Controller struct {
	cfg       Config
	transport Transport
	capture   Capture
	listener  Listener
	schedule  Scheduler

	phase    Phase
	run      uint64
	scenario roleplay.Scenario
	duration time.Duration
}

// NewController creates an idle controller
func NewController(cfg Config, transport Transport, capture Capture, listener Listener, schedule Scheduler) *Controller {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = def.PollAttempts
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = def.ResponseTimeout
	}
	return &Controller{
		cfg:       cfg,
		transport: transport,
		capture:   capture,
		listener:  listener,
		schedule:  schedule,
	}
}

// Phase returns the current phase
func (c *Controller) Phase() Phase { return c.phase }

// Active reports whether an exchange is waiting on the connection or the agent
func (c *Controller) Active() bool {
	switch c.phase {
	case PhaseSwitching, PhaseAwaitingResetAck, PhaseAwaitingResult:
		return true
	}
	return false
}

// Start begins an exchange for a finished session
func (c *Controller) Start(s roleplay.Scenario, duration time.Duration) error {
	if c.Active() {
		return ErrInProgress
	}
	c.run++
	c.scenario = s
	c.duration = duration
	log.Printf("📊 Analysis requested for %q (%s)", s.Title, FormatDuration(duration))

	if c.capture != nil && c.capture.AudioActive() {
		c.capture.StopAudio()
	}

	if c.transport.TextReady() {
		c.sendReset()
		return nil
	}

	c.setPhase(PhaseSwitching)
	c.transport.SwitchToText()
	c.schedulePoll(c.run, 1)
	return nil
}

func (c *Controller) schedulePoll(run uint64, attempt int) {
	c.schedule(c.cfg.PollInterval, func() { c.poll(run, attempt) })
}

func (c *Controller) poll(run uint64, attempt int) {
	if run != c.run || c.phase != PhaseSwitching {
		return
	}
	if c.transport.TextReady() {
		c.sendReset()
		return
	}
	if attempt >= c.cfg.PollAttempts {
		c.fail(fmt.Errorf("%w after %d attempts", ErrReadyTimeout, attempt), MsgConnectionTimeout)
		return
	}
	c.schedulePoll(run, attempt+1)
}

func (c *Controller) sendReset() {
	if !c.transport.SendText(ResetSentinel) {
		c.fail(fmt.Errorf("%w: reset", ErrSendFailed), MsgFailed)
		return
	}
	c.setPhase(PhaseAwaitingResetAck)

	run := c.run
	c.schedule(c.cfg.ResponseTimeout, func() { c.expire(run) })
}

func (c *Controller) expire(run uint64) {
	if run != c.run {
		return
	}
	if c.phase == PhaseAwaitingResetAck || c.phase == PhaseAwaitingResult {
		c.fail(ErrResponseTimeout, MsgResponseTimeout)
	}
}

// HandleTurn consumes a completed agent turn. It returns false when the turn
// does not belong to a running exchange, including duplicates arriving after
// completion.
func (c *Controller) HandleTurn(text string) bool {
	switch c.phase {
	case PhaseAwaitingResetAck:
		log.Printf("📊 Reset acknowledged (%d chars discarded)", len(text))
		c.setPhase(PhaseAwaitingResult)
		if !c.transport.SendText(RequestPrompt(c.scenario, c.duration)) {
			c.fail(fmt.Errorf("%w: request", ErrSendFailed), MsgFailed)
		}
		return true

	case PhaseAwaitingResult:
		ext, err := Extract(text)
		if err != nil {
			log.Printf("❌ Analysis parse failed (%d chars): %v", len(text), err)
			c.fail(err, MsgFailed)
			return true
		}
		if ext.Degraded() {
			log.Printf("⚠️ Analysis recovered with %s strategy", ext.Strategy)
		}
		c.setPhase(PhaseComplete)
		c.listener.AnalysisCompleted(Result{
			ID:          uuid.NewString(),
			Extraction:  ext,
			Scenario:    c.scenario,
			Duration:    c.duration,
			CompletedAt: time.Now(),
		})
		c.Reset()
		return true
	}
	return false
}

// ConnectionLost fails an exchange that was waiting on the agent. While
// switching, the readiness poll owns the outcome and nothing happens.
func (c *Controller) ConnectionLost() {
	if c.phase == PhaseAwaitingResetAck || c.phase == PhaseAwaitingResult {
		c.fail(ErrConnectionLost, MsgConnectionLost)
	}
}

// Reset abandons any exchange and returns to idle. Pending timers become no-ops.
func (c *Controller) Reset() {
	c.run++
	if c.phase != PhaseIdle {
		c.setPhase(PhaseIdle)
	}
}

// fail reports the failure, then returns to idle so a retry starts clean
func (c *Controller) fail(err error, message string) {
	c.setPhase(PhaseFailed)
	c.listener.AnalysisFailed(err, message)
	c.Reset()
}

func (c *Controller) setPhase(p Phase) {
	log.Printf("📊 Analysis phase: %s -> %s", c.phase, p)
	c.phase = p
	c.listener.AnalysisPhaseChanged(p)
}
