package client

import (
	"fmt"
	"log"

	"github.com/room4-2/roleplay-live/codec"
	"github.com/room4-2/roleplay-live/config"
	"github.com/room4-2/roleplay-live/media"
	"github.com/room4-2/roleplay-live/messages"
	"github.com/room4-2/roleplay-live/session"
	"github.com/room4-2/roleplay-live/vad"
)

type audioState struct {
	active   bool
	starting bool
	gen      uint64
	stream   media.Stream
}

type videoState struct {
	source   codec.Source
	starting bool
	gen      uint64
	stream   media.Stream
}

// StartAudio starts the microphone and moves the agent socket to audio mode
func (c *Client) StartAudio() { c.post(c.startAudio) }

// StopAudio stops the microphone and moves the agent socket back to text mode
func (c *Client) StopAudio() { c.post(c.stopAudio) }

func (c *Client) startAudio() {
	if c.audio.active || c.audio.starting {
		return
	}
	if c.analysis.Active() {
		c.notice("Analysis in progress. The microphone is available once it finishes.")
		return
	}
	if c.mic == nil {
		c.micFailed(media.ErrMicUnavailable)
		return
	}

	c.audio.gen++
	c.audio.starting = true
	gen, ctx := c.audio.gen, c.ctx
	go func() {
		stream, err := c.mic.Start(ctx, func(samples []float32) {
			c.post(func() { c.handleMicFrame(gen, samples) })
		})
		c.post(func() { c.micStarted(gen, stream, err) })
	}()
}

func (c *Client) micStarted(gen uint64, stream media.Stream, err error) {
	if gen != c.audio.gen || !c.audio.starting {
		// stopped while the device was opening
		if stream != nil {
			go stream.Stop()
		}
		return
	}
	c.audio.starting = false
	if err != nil {
		c.micFailed(err)
		return
	}

	c.audio.active = true
	c.audio.stream = stream
	c.detector.Reset()
	log.Printf("🎙️ [%s] Microphone active", shortID(c.sess.ID))
	if c.sess.Mode() != session.ModeAudio {
		c.sess.SwitchMode(session.ModeAudio)
	}
}

// micFailed rolls audio back to inactive without touching the socket
func (c *Client) micFailed(err error) {
	log.Printf("❌ [%s] Microphone unavailable: %v", shortID(c.sess.ID), err)
	c.audio.active = false
	c.audio.starting = false
	c.notice("Microphone access is unavailable. Check the device and permissions, then try again.")
}

func (c *Client) handleMicFrame(gen uint64, samples []float32) {
	if gen != c.audio.gen || !c.audio.active {
		return
	}

	was := c.detector.Speaking()
	forward := c.detector.Classify(samples)
	if now := c.detector.Speaking(); now != was {
		c.notify(messages.NewSpeechMessage(c.sess.ID, now))
	}
	if !forward || c.sess.Mode() != session.ModeAudio {
		return
	}
	pcm := codec.Float32ToPCM16(samples)
	c.sess.Send(messages.NewAudioEnvelope(codec.EncodeBase64(pcm)))
}

func (c *Client) stopAudio() {
	if !c.audio.active && !c.audio.starting {
		return
	}
	c.stopCapture()
	c.notify(messages.NewSpeechMessage(c.sess.ID, false))
	if c.sess.Mode() == session.ModeAudio && !c.analysis.Active() {
		c.sess.SwitchMode(session.ModeText)
	}
}

// stopCapture tears down the microphone pipeline and leaves the socket alone
func (c *Client) stopCapture() {
	if c.audio.stream != nil {
		go c.audio.stream.Stop()
	}
	if c.audio.active {
		log.Printf("🎙️ [%s] Microphone stopped", shortID(c.sess.ID))
	}
	c.audio = audioState{gen: c.audio.gen + 1}

	if c.detector.CalibrationPhase() != vad.CalibrationIdle {
		c.detector.CancelCalibration()
		c.calibGen++
		c.notifyStatus("calibration_cancelled", "")
	}
	c.detector.Reset()
}

// StartVideo starts streaming frames from the camera or screen source
func (c *Client) StartVideo(source codec.Source) {
	c.post(func() { c.startVideo(source) })
}

// StopVideo stops frame streaming
func (c *Client) StopVideo() { c.post(c.stopVideo) }

func (c *Client) startVideo(source codec.Source) {
	if c.analysis.Active() {
		c.notice("Analysis in progress. Video is available once it finishes.")
		return
	}
	src, ok := c.video[source]
	if !ok {
		c.notice(fmt.Sprintf("%s capture is not available.", source))
		return
	}
	if (c.vid.stream != nil || c.vid.starting) && c.vid.source == source {
		return
	}
	c.stopVideo()

	c.vid.gen++
	c.vid.starting = true
	c.vid.source = source
	gen := c.vid.gen
	go func() {
		_, err := src.Snapshot()
		c.post(func() { c.videoReady(gen, src, err) })
	}()
}

func (c *Client) videoReady(gen uint64, src media.VideoSource, err error) {
	if gen != c.vid.gen || !c.vid.starting {
		return
	}
	c.vid.starting = false
	if err != nil {
		log.Printf("❌ [%s] %s unavailable: %v", shortID(c.sess.ID), src.Kind(), err)
		c.notice(fmt.Sprintf("Unable to access %s. Check permissions, then try again.", src.Kind()))
		return
	}

	c.vid.stream = media.StartFrames(c.ctx, src, c.frameInterval, func(f codec.Frame) {
		c.post(func() { c.sendFrame(gen, f) })
	})
	log.Printf("📷 [%s] Streaming %s frames", shortID(c.sess.ID), src.Kind())
}

func (c *Client) sendFrame(gen uint64, f codec.Frame) {
	if gen != c.vid.gen || c.vid.stream == nil {
		return
	}
	c.sess.Send(messages.NewImageEnvelope(codec.EncodeBase64(f.JPEG), messages.FrameMetadata{
		Source: string(f.Source),
		Width:  f.Width,
		Height: f.Height,
	}))
}

func (c *Client) stopVideo() {
	if c.vid.stream != nil {
		go c.vid.stream.Stop()
		log.Printf("📷 [%s] Stopped %s frames", shortID(c.sess.ID), c.vid.source)
	}
	c.vid = videoState{gen: c.vid.gen + 1}
}

// Calibrate measures room noise and speech level to retune the speech gate.
// The microphone must be running.
func (c *Client) Calibrate() { c.post(c.calibrate) }

func (c *Client) calibrate() {
	if !c.audio.active {
		c.notice("Start the microphone before calibrating.")
		return
	}
	wasSpeaking := c.detector.Speaking()
	if err := c.detector.StartCalibration(); err != nil {
		c.notice("Calibration is already running.")
		return
	}
	if wasSpeaking {
		c.notify(messages.NewSpeechMessage(c.sess.ID, false))
	}
	c.calibGen++
	gen := c.calibGen
	c.notifyStatus("calibrating", "stay quiet")
	c.schedule(c.calibrationDur, func() { c.advanceCalibration(gen) })
}

func (c *Client) advanceCalibration(gen uint64) {
	if gen != c.calibGen || c.detector.CalibrationPhase() == vad.CalibrationIdle {
		return
	}

	phase, res, err := c.detector.AdvanceCalibration()
	switch {
	case err != nil:
		log.Printf("❌ [%s] %v", shortID(c.sess.ID), err)
		c.notify(messages.NewErrorMessage(c.sess.ID, messages.ErrCodeCalibration, "Calibration failed. Please try again."))
	case phase == vad.CalibrationSpeech:
		c.notifyStatus("calibrating", "now speak")
		c.schedule(c.calibrationDur, func() { c.advanceCalibration(gen) })
	case res != nil:
		c.saveThresholds(*res)
		c.notifyStatus("calibrated", fmt.Sprintf("silence %.4f, speech %.4f", res.SilenceThreshold, res.SpeechThreshold))
	}
}

func (c *Client) saveThresholds(res vad.CalibrationResult) {
	path := c.cfg.VADConfigPath
	if path == "" {
		return
	}
	cfg := c.detector.Config()
	settings := config.VADSettings{
		SilenceThreshold: res.SilenceThreshold,
		SpeechThreshold:  res.SpeechThreshold,
		MinSpeech:        cfg.MinSpeechDuration,
		MaxSilence:       cfg.MaxSilenceDuration,
		BufferSize:       cfg.BufferSize,
	}
	go func() {
		if err := config.SaveVADSettings(path, settings); err != nil {
			log.Printf("⚠️ Failed to save VAD thresholds: %v", err)
			return
		}
		log.Printf("💾 Saved VAD thresholds to %s", path)
	}()
}
