package vad

import (
	"errors"
	"fmt"
	"log"
	"math"
)

var (
	// ErrCalibrating is returned when a calibration is already running
	ErrCalibrating = errors.New("calibration already in progress")
	// ErrNotCalibrating is returned when advancing with no calibration running
	ErrNotCalibrating = errors.New("no calibration in progress")
	// ErrCalibrationFailed is returned when a phase collected no samples
	ErrCalibrationFailed = errors.New("calibration failed")
)

// CalibrationPhase is the step a calibration is in
type CalibrationPhase int

const (
	CalibrationIdle CalibrationPhase = iota
	CalibrationSilence
	CalibrationSpeech
)

func (p CalibrationPhase) String() string {
	switch p {
	case CalibrationSilence:
		return "silence"
	case CalibrationSpeech:
		return "speech"
	default:
		return "idle"
	}
}

// CalibrationResult describes the thresholds a calibration produced
type CalibrationResult struct {
	SilenceThreshold float64
	SpeechThreshold  float64
	MaxSilenceRMS    float64
	MinSpeechRMS     float64
	SilenceSamples   int
	SpeechSamples    int
}

type calibration struct {
	phase   CalibrationPhase
	silence []float64
	speech  []float64
}

func (c *calibration) collect(rms float64) {
	switch c.phase {
	case CalibrationSilence:
		c.silence = append(c.silence, rms)
	case CalibrationSpeech:
		c.speech = append(c.speech, rms)
	}
}

// StartCalibration begins collecting the silence phase. The caller advances
// phases on its own timer with AdvanceCalibration.
func (d *Detector) StartCalibration() error {
	if d.calib != nil {
		return ErrCalibrating
	}
	d.speaking = false
	d.calib = &calibration{phase: CalibrationSilence}
	log.Println("🎚️ Calibration started: stay quiet")
	return nil
}

// CalibrationPhase returns the running calibration step
func (d *Detector) CalibrationPhase() CalibrationPhase {
	if d.calib == nil {
		return CalibrationIdle
	}
	return d.calib.phase
}

// AdvanceCalibration moves from the silence phase to the speech phase, or
// finishes the calibration. On success the new thresholds are applied. On
// failure the previous thresholds stay in place. Either way the detector
// returns to normal classification.
func (d *Detector) AdvanceCalibration() (CalibrationPhase, *CalibrationResult, error) {
	if d.calib == nil {
		return CalibrationIdle, nil, ErrNotCalibrating
	}

	if d.calib.phase == CalibrationSilence {
		d.calib.phase = CalibrationSpeech
		log.Printf("🎚️ Calibration: %d silence frames, now speak", len(d.calib.silence))
		return CalibrationSpeech, nil, nil
	}

	c := d.calib
	d.calib = nil
	d.speaking = false

	if len(c.silence) == 0 {
		return CalibrationIdle, nil, fmt.Errorf("%w: no silence samples", ErrCalibrationFailed)
	}
	if len(c.speech) == 0 {
		return CalibrationIdle, nil, fmt.Errorf("%w: no speech samples", ErrCalibrationFailed)
	}

	res := computeThresholds(c.silence, c.speech, d.cfg.SilenceFloor)
	d.cfg.SilenceThreshold = res.SilenceThreshold
	d.cfg.SpeechThreshold = res.SpeechThreshold
	log.Printf("🎚️ Calibration complete: silence=%.4f speech=%.4f", res.SilenceThreshold, res.SpeechThreshold)
	return CalibrationIdle, &res, nil
}

// CancelCalibration abandons a running calibration without touching thresholds
func (d *Detector) CancelCalibration() {
	if d.calib != nil {
		log.Println("🎚️ Calibration cancelled")
	}
	d.calib = nil
}

func computeThresholds(silence, speech []float64, floor float64) CalibrationResult {
	maxSilence := 0.0
	for _, v := range silence {
		maxSilence = math.Max(maxSilence, v)
	}
	minSpeech := math.Inf(1)
	for _, v := range speech {
		minSpeech = math.Min(minSpeech, v)
	}

	silenceThreshold := math.Max(maxSilence*1.5, floor)
	speechThreshold := math.Max(minSpeech*0.8, silenceThreshold*1.5)

	return CalibrationResult{
		SilenceThreshold: silenceThreshold,
		SpeechThreshold:  speechThreshold,
		MaxSilenceRMS:    maxSilence,
		MinSpeechRMS:     minSpeech,
		SilenceSamples:   len(silence),
		SpeechSamples:    len(speech),
	}
}
