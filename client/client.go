// Package client coordinates the agent connection, local media and the
// role-play and analysis state machines on a single event loop.
package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/room4-2/roleplay-live/analysis"
	"github.com/room4-2/roleplay-live/codec"
	"github.com/room4-2/roleplay-live/config"
	"github.com/room4-2/roleplay-live/media"
	"github.com/room4-2/roleplay-live/messages"
	"github.com/room4-2/roleplay-live/roleplay"
	"github.com/room4-2/roleplay-live/session"
	"github.com/room4-2/roleplay-live/store"
	"github.com/room4-2/roleplay-live/turn"
	"github.com/room4-2/roleplay-live/vad"
)

const eventQueueSize = 256

// ErrStopped is returned by queries made after Run has returned
var ErrStopped = errors.New("client stopped")

// Notifier receives everything the UI should show
type Notifier interface {
	Notify(msg *messages.ServerMessage)
}

// ReportSaver persists completed analyses and tracks the live session
type ReportSaver interface {
	SaveReport(ctx context.Context, r store.Report) error
	TouchSession(ctx context.Context, sessionID, mode string) error
	RemoveSession(ctx context.Context, sessionID string) error
}

// Options wires a Client. Zero durations take their defaults.
type Options struct {
	Config   *config.Config
	VAD      vad.Config
	Dialer   session.Dialer
	Mic      media.MicSource
	Playback media.PlaybackSink
	Video    []media.VideoSource
	Notifier Notifier
	Reports  ReportSaver
	// SessionID is generated when empty
	SessionID string

	ContextRetryInterval time.Duration // 1s
	RolePlayAckTimeout   time.Duration // 10s
	CalibrationPhase     time.Duration // 3s
	FrameInterval        time.Duration // 1s
}

// Client owns every piece of session state. Public methods may be called
// from any goroutine; they post to the loop started by Run.
type Client struct {
	cfg      *config.Config
	mic      media.MicSource
	playback media.PlaybackSink
	video    map[codec.Source]media.VideoSource
	notifier Notifier
	reports  ReportSaver
	touches  sync.WaitGroup

	contextRetry   time.Duration
	ackTimeout     time.Duration
	calibrationDur time.Duration
	frameInterval  time.Duration

	events chan func()
	done   chan struct{}
	ctx    context.Context

	sess     *session.Session
	agg      *turn.Aggregator
	detector *vad.Detector
	analysis *analysis.Controller
	tracker  *roleplay.Tracker

	audio        audioState
	vid          videoState
	rolePlayGen  uint64
	calibGen     uint64
	lastTimeline []roleplay.Entry
}

// New creates a client. Nothing connects until Run.
func New(opts Options) *Client {
	c := &Client{
		cfg:            opts.Config,
		mic:            opts.Mic,
		playback:       opts.Playback,
		video:          make(map[codec.Source]media.VideoSource),
		notifier:       opts.Notifier,
		reports:        opts.Reports,
		contextRetry:   orDefault(opts.ContextRetryInterval, time.Second),
		ackTimeout:     orDefault(opts.RolePlayAckTimeout, 10*time.Second),
		calibrationDur: orDefault(opts.CalibrationPhase, 3*time.Second),
		frameInterval:  orDefault(opts.FrameInterval, media.FrameInterval),
		events:         make(chan func(), eventQueueSize),
		done:           make(chan struct{}),
		ctx:            context.Background(),
	}
	for _, src := range opts.Video {
		c.video[src.Kind()] = src
	}

	c.sess = session.New(context.Background(), session.Options{
		ID:             opts.SessionID,
		URL:            c.cfg.SessionURL,
		Dialer:         opts.Dialer,
		ReconnectDelay: c.cfg.ReconnectDelay,
		Hold:           func() bool { return c.analysis.Active() },
		Post: func(ev session.Event) {
			c.post(func() { c.handleSessionEvent(ev) })
		},
	})
	c.agg = turn.New(c.playback, c.onTurnComplete)
	c.detector = vad.New(opts.VAD)
	c.tracker = roleplay.NewTracker()
	c.analysis = analysis.NewController(analysis.Config{
		PollInterval:    c.cfg.AnalysisPollInterval,
		PollAttempts:    c.cfg.AnalysisPollAttempts,
		ResponseTimeout: c.cfg.AnalysisTimeout,
	}, agentTransport{c}, micCapture{c}, analysisEvents{c}, c.schedule)
	return c
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// SessionID returns the agent session identifier
func (c *Client) SessionID() string { return c.sess.ID }

// Run connects in text mode and processes events until ctx is done
func (c *Client) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)

	log.Printf("🚀 [%s] Client starting", shortID(c.sess.ID))
	c.sess.Connect(session.ModeText)
	c.notifyStatus("connecting", "")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case fn := <-c.events:
			fn()
		}
	}
}

func (c *Client) shutdown() {
	c.stopCapture()
	c.stopVideo()
	c.detector.CancelCalibration()
	c.sess.Close()
	c.removeSession()
	log.Printf("👋 [%s] Client stopped", shortID(c.sess.ID))
}

// post queues fn for the loop. After Run returns, fn is dropped.
func (c *Client) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

// schedule runs fn on the loop after d. fn must re-check state itself.
func (c *Client) schedule(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { c.post(fn) })
}

func (c *Client) notify(msg *messages.ServerMessage) {
	if c.notifier != nil {
		c.notifier.Notify(msg)
	}
}

func (c *Client) notifyStatus(status, message string) {
	c.notify(messages.NewStatusMessage(c.sess.ID, status, c.sess.Mode().String(), message))
}

func (c *Client) notice(message string) {
	c.notify(messages.NewNoticeMessage(c.sess.ID, message))
}

// handleSessionEvent applies socket and reconnect-timer events
func (c *Client) handleSessionEvent(ev session.Event) {
	up := c.sess.Handle(ev)
	switch up.Kind {
	case session.UpdateOpen:
		c.notifyStatus("open", "")
		c.touchSession()

	case session.UpdateConnecting:
		c.notifyStatus("connecting", "")

	case session.UpdateMessage:
		c.handleInbound(up.Message)

	case session.UpdateClosed:
		c.handleClosed(up)
	}
}

func (c *Client) handleClosed(up session.Update) {
	c.agg.Interrupt()

	// media only runs against an open socket; the reconnect comes back in text mode
	if c.audio.active || c.audio.starting {
		c.stopCapture()
		c.notify(messages.NewSpeechMessage(c.sess.ID, false))
	}
	c.stopVideo()

	// an exchange waiting on the agent cannot get its reply over a new socket
	c.analysis.ConnectionLost()
	if !c.analysis.Active() {
		c.sess.SetMode(session.ModeText)
	}

	msg := "connection lost"
	if up.Reconnecting {
		msg = "connection lost, reconnecting in " + c.cfg.ReconnectDelay.String()
	}
	c.notifyStatus("closed", msg)
}

func (c *Client) handleInbound(msg messages.Inbound) {
	out := c.agg.Handle(msg)
	switch out.Kind {
	case messages.KindText:
		// analysis replies are parsed, not shown
		if out.Delta != "" && !c.analysis.Active() {
			c.notify(messages.NewTextMessage(c.sess.ID, out.TurnID, out.Delta))
		}
	case messages.KindInterrupted:
		c.notifyStatus("interrupted", "")
	}
}

// onTurnComplete receives non-empty completed turns from the aggregator
func (c *Client) onTurnComplete(done turn.Completed) {
	if c.analysis.HandleTurn(done.Text) {
		return
	}
	if c.tracker.Acknowledge() {
		c.rolePlayReady("")
	}
	c.tracker.Track(roleplay.SpeakerAI, done.Text)
	c.notify(messages.NewTurnMessage(c.sess.ID, done.ID, string(roleplay.SpeakerAI), done.Text))
}

// SendText sends a typed user message
func (c *Client) SendText(text string) {
	c.post(func() { c.sendText(text) })
}

func (c *Client) sendText(text string) {
	if text == "" {
		return
	}
	if c.analysis.Active() {
		c.notice("Analysis in progress. Messages can be sent once it finishes.")
		return
	}
	if !c.sess.Send(messages.NewTextEnvelope(text)) {
		log.Printf("⚠️ [%s] Not connected, message dropped", shortID(c.sess.ID))
		c.notifyStatus(c.sess.State().String(), "not connected, message not sent")
		return
	}
	c.tracker.Track(roleplay.SpeakerUser, text)
	c.notify(messages.NewTurnMessage(c.sess.ID, "", string(roleplay.SpeakerUser), text))
}

// Status is a point-in-time view of the client
type Status struct {
	SessionID      string  `json:"sessionId"`
	Connection     string  `json:"connection"`
	Mode           string  `json:"mode"`
	AudioActive    bool    `json:"audioActive"`
	Speaking       bool    `json:"speaking"`
	Level          float64 `json:"level"` // RMS of the recent microphone frames
	VideoSource    string  `json:"videoSource,omitempty"`
	Calibrating    bool    `json:"calibrating"`
	RolePlayActive bool    `json:"rolePlayActive"`
	RolePlaySecs   int     `json:"rolePlaySeconds"`
	AnalysisPhase  string  `json:"analysisPhase"`
}

// Snapshot returns the current status from the loop
func (c *Client) Snapshot(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	c.post(func() { reply <- c.status() })
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-c.done:
		return Status{}, ErrStopped
	}
}

func (c *Client) status() Status {
	st := Status{
		SessionID:      c.sess.ID,
		Connection:     c.sess.State().String(),
		Mode:           c.sess.Mode().String(),
		AudioActive:    c.audio.active,
		Speaking:       c.detector.Speaking(),
		Calibrating:    c.detector.CalibrationPhase() != vad.CalibrationIdle,
		RolePlayActive: c.tracker.Active(),
		RolePlaySecs:   int(c.tracker.Elapsed() / time.Second),
		AnalysisPhase:  c.analysis.Phase().String(),
	}
	if c.audio.active {
		st.Level = c.detector.Level()
	}
	if c.vid.stream != nil {
		st.VideoSource = string(c.vid.source)
	}
	return st
}

func (c *Client) touchSession() {
	if c.reports == nil {
		return
	}
	id, mode := c.sess.ID, c.sess.Mode().String()
	c.touches.Add(1)
	go func() {
		defer c.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.reports.TouchSession(ctx, id, mode); err != nil && !errors.Is(err, store.ErrUnavailable) {
			log.Printf("⚠️ [%s] Failed to record session: %v", shortID(id), err)
		}
	}()
}

// removeSession drops the session from the active set before Run returns.
// Pending touches finish first so none re-adds it.
func (c *Client) removeSession() {
	if c.reports == nil {
		return
	}
	c.touches.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.reports.RemoveSession(ctx, c.sess.ID); err != nil && !errors.Is(err, store.ErrUnavailable) {
		log.Printf("⚠️ [%s] Failed to remove session: %v", shortID(c.sess.ID), err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
