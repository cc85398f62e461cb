package client

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/room4-2/roleplay-live/analysis"
	"github.com/room4-2/roleplay-live/messages"
	"github.com/room4-2/roleplay-live/roleplay"
	"github.com/room4-2/roleplay-live/session"
	"github.com/room4-2/roleplay-live/store"
)

// Role-play progress states reported to the UI
const (
	RolePlayPreparing   = "preparing"
	RolePlayContextSent = "context_sent"
	RolePlayReady       = "ready"
	RolePlayEnded       = "ended"
)

// StartRolePlay puts the agent in character for s and starts the timeline
func (c *Client) StartRolePlay(s roleplay.Scenario) {
	c.post(func() { c.startRolePlay(s) })
}

// EndRolePlay closes the timeline and asks the agent for an evaluation
func (c *Client) EndRolePlay() { c.post(c.endRolePlay) }

func (c *Client) startRolePlay(s roleplay.Scenario) {
	if c.analysis.Active() {
		c.notice("Analysis in progress. Start a new role-play once it finishes.")
		return
	}
	if c.tracker.Active() {
		log.Printf("🎭 [%s] Replacing the running role-play", shortID(c.sess.ID))
	}

	c.tracker.Start(s)
	c.lastTimeline = nil
	c.rolePlayGen++
	c.notify(messages.NewRolePlayMessage(c.sess.ID, RolePlayPreparing, s.Title, ""))
	c.sendContext(c.rolePlayGen)
}

// sendContext sends the scenario prompt, retrying until the socket is open
func (c *Client) sendContext(gen uint64) {
	if gen != c.rolePlayGen || !c.tracker.Active() {
		return
	}
	s, _ := c.tracker.Scenario()
	prompt := roleplay.ContextPrompt(s)

	if !c.sess.Send(messages.NewTextEnvelope(prompt)) {
		log.Printf("⏳ [%s] Waiting for connection to send role-play context", shortID(c.sess.ID))
		c.schedule(c.contextRetry, func() { c.sendContext(gen) })
		return
	}

	c.tracker.Track(roleplay.SpeakerSystem, prompt)
	c.notify(messages.NewRolePlayMessage(c.sess.ID, RolePlayContextSent, s.Title, ""))
	c.schedule(c.ackTimeout, func() { c.ackTimedOut(gen) })
}

func (c *Client) ackTimedOut(gen uint64) {
	if gen != c.rolePlayGen {
		return
	}
	if c.tracker.Acknowledge() {
		log.Printf("⏰ [%s] No role-play acknowledgment, continuing", shortID(c.sess.ID))
		c.rolePlayReady("ready (manual start)")
	}
}

func (c *Client) rolePlayReady(message string) {
	s, _ := c.tracker.Scenario()
	c.notify(messages.NewRolePlayMessage(c.sess.ID, RolePlayReady, s.Title, message))
}

func (c *Client) endRolePlay() {
	summary, err := c.tracker.End()
	if err != nil {
		c.notice("No role-play session is running.")
		return
	}
	c.rolePlayGen++
	c.lastTimeline = summary.Timeline
	c.notify(messages.NewRolePlayMessage(c.sess.ID, RolePlayEnded, summary.Scenario.Title,
		analysis.FormatDuration(summary.Duration)))

	if err := c.analysis.Start(summary.Scenario, summary.Duration); err != nil {
		log.Printf("⚠️ [%s] %v", shortID(c.sess.ID), err)
		c.notice("An analysis is already running.")
	}
}

// agentTransport exposes the session to the analysis exchange
type agentTransport struct{ c *Client }

func (t agentTransport) TextReady() bool {
	return t.c.sess.IsOpen() && t.c.sess.Mode() == session.ModeText
}

func (t agentTransport) SwitchToText() {
	t.c.stopVideo()
	t.c.sess.SwitchMode(session.ModeText)
}

func (t agentTransport) SendText(text string) bool {
	return t.c.sess.Send(messages.NewTextEnvelope(text))
}

// micCapture lets the analysis exchange stop the microphone
type micCapture struct{ c *Client }

func (m micCapture) AudioActive() bool {
	return m.c.audio.active || m.c.audio.starting
}

func (m micCapture) StopAudio() {
	m.c.stopCapture()
	m.c.notify(messages.NewSpeechMessage(m.c.sess.ID, false))
}

// analysisEvents reports exchange progress and releases the reconnect hold
type analysisEvents struct{ c *Client }

func (e analysisEvents) AnalysisPhaseChanged(p analysis.Phase) {
	// terminal phases are reported with their outcome, and idle follows them
	if p == analysis.PhaseComplete || p == analysis.PhaseFailed || p == analysis.PhaseIdle {
		return
	}
	e.c.notify(messages.NewAnalysisMessage(e.c.sess.ID, messages.AnalysisPayload{Phase: p.String()}))
}

func (e analysisEvents) AnalysisCompleted(res analysis.Result) {
	c := e.c
	fb := res.Extraction.Feedback
	c.notify(messages.NewAnalysisMessage(c.sess.ID, messages.AnalysisPayload{
		Phase:            analysis.PhaseComplete.String(),
		Strengths:        fb.Strengths,
		Improvements:     fb.Improvements,
		DetailedFeedback: fb.DetailedFeedback,
		Degraded:         res.Extraction.Degraded(),
		Strategy:         string(res.Extraction.Strategy),
		ReportID:         res.ID,
	}))

	if c.reports != nil {
		report := store.NewReport(c.sess.ID, res, c.lastTimeline)
		reports := c.reports
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := reports.SaveReport(ctx, report); err != nil && !errors.Is(err, store.ErrUnavailable) {
				log.Printf("⚠️ Failed to save report %s: %v", report.ID, err)
			}
		}()
	}
	c.sess.ReconnectNow()
}

func (e analysisEvents) AnalysisFailed(err error, message string) {
	c := e.c
	log.Printf("❌ [%s] Analysis failed: %v", shortID(c.sess.ID), err)
	c.notify(messages.NewAnalysisMessage(c.sess.ID, messages.AnalysisPayload{
		Phase:   analysis.PhaseFailed.String(),
		Message: message,
	}))
	c.notify(messages.NewErrorMessage(c.sess.ID, messages.ErrCodeAnalysisFailed, message))
	c.sess.ReconnectNow()
}
