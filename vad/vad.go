// Package vad gates microphone frames with an energy-based speech detector.
package vad

import (
	"log"
	"math"
	"time"
)

// Config holds the detector thresholds
type Config struct {
	SilenceThreshold   float64       // RMS at or below this counts as silence while speaking
	SpeechThreshold    float64       // RMS above this starts speech
	MinSpeechDuration  time.Duration // Pauses shorter than this are bridged
	MaxSilenceDuration time.Duration // Silence this long ends speech
	BufferSize         int           // Capacity of the rolling sample buffer
	SilenceFloor       float64       // Lowest silence threshold calibration may produce
}

// DefaultConfig returns the detector defaults
func DefaultConfig() Config {
	return Config{
		SilenceThreshold:   0.01,
		SpeechThreshold:    0.02,
		MinSpeechDuration:  300 * time.Millisecond,
		MaxSilenceDuration: 1000 * time.Millisecond,
		BufferSize:         1024,
		SilenceFloor:       0.005,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = def.SilenceThreshold
	}
	if c.SpeechThreshold <= c.SilenceThreshold {
		c.SpeechThreshold = max(def.SpeechThreshold, c.SilenceThreshold*1.5)
	}
	if c.MinSpeechDuration <= 0 {
		c.MinSpeechDuration = def.MinSpeechDuration
	}
	if c.MaxSilenceDuration <= 0 {
		c.MaxSilenceDuration = def.MaxSilenceDuration
	}
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	if c.SilenceFloor <= 0 {
		c.SilenceFloor = def.SilenceFloor
	}
	return c
}

// Detector classifies streamed frames as speech or silence. It is not safe
// for concurrent use; frames must be fed from a single goroutine.
type Detector struct {
	cfg        Config
	speaking   bool
	lastSpeech time.Time
	buffer     []float32
	calib      *calibration

	now func() time.Time
}

// New creates a detector. Zero fields in cfg take their defaults.
func New(cfg Config) *Detector {
	cfg = cfg.withDefaults()
	return &Detector{
		cfg:    cfg,
		buffer: make([]float32, 0, cfg.BufferSize),
		now:    time.Now,
	}
}

// Classify reports whether frame should be forwarded to the agent. While a
// calibration is running frames are collected and never forwarded.
func (d *Detector) Classify(frame []float32) bool {
	d.remember(frame)
	rms := RMS(frame)

	if d.calib != nil {
		d.calib.collect(rms)
		return false
	}

	now := d.now()

	if !d.speaking {
		if rms > d.cfg.SpeechThreshold {
			d.speaking = true
			d.lastSpeech = now
			log.Printf("🎙️ Speech started (rms=%.4f)", rms)
			return true
		}
		return false
	}

	if rms > d.cfg.SilenceThreshold {
		d.lastSpeech = now
		return true
	}

	elapsed := now.Sub(d.lastSpeech)
	if elapsed >= d.cfg.MaxSilenceDuration {
		d.speaking = false
		log.Printf("🔇 Speech ended after %v of silence", elapsed.Round(time.Millisecond))
		return false
	}
	if elapsed < d.cfg.MinSpeechDuration {
		return true
	}
	return d.speaking
}

func (d *Detector) remember(frame []float32) {
	d.buffer = append(d.buffer, frame...)
	if over := len(d.buffer) - d.cfg.BufferSize; over > 0 {
		d.buffer = append(d.buffer[:0], d.buffer[over:]...)
	}
}

// Speaking reports whether the detector is inside a speech region
func (d *Detector) Speaking() bool {
	return d.speaking
}

// Config returns the active thresholds
func (d *Detector) Config() Config {
	return d.cfg
}

// Recent returns a copy of the most recent samples, oldest first
func (d *Detector) Recent() []float32 {
	out := make([]float32, len(d.buffer))
	copy(out, d.buffer)
	return out
}

// Level returns the RMS of the rolling buffer
func (d *Detector) Level() float64 {
	return RMS(d.buffer)
}

// Reset leaves the speech region and clears the rolling buffer. Thresholds
// are kept.
func (d *Detector) Reset() {
	d.speaking = false
	d.lastSpeech = time.Time{}
	d.buffer = d.buffer[:0]
}

// RMS returns the root-mean-square energy of frame
func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
