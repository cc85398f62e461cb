package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// VADSettings is the on-disk form of the speech gate thresholds.
type VADSettings struct {
	SilenceThreshold float64       `yaml:"silence_threshold"`
	SpeechThreshold  float64       `yaml:"speech_threshold"`
	MinSpeech        time.Duration `yaml:"min_speech"`
	MaxSilence       time.Duration `yaml:"max_silence"`
	BufferSize       int           `yaml:"buffer_size"`
}

type vadFile struct {
	VAD VADSettings `yaml:"vad"`
}

// DefaultVADSettings returns the thresholds used before any calibration.
func DefaultVADSettings() VADSettings {
	return VADSettings{
		SilenceThreshold: 0.01,
		SpeechThreshold:  0.02,
		MinSpeech:        300 * time.Millisecond,
		MaxSilence:       1000 * time.Millisecond,
		BufferSize:       1024,
	}
}

// LoadVADSettings reads thresholds from path. A missing file yields defaults.
func LoadVADSettings(path string) (VADSettings, error) {
	settings := DefaultVADSettings()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to read VAD config: %w", err)
	}

	file := vadFile{VAD: settings}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return settings, fmt.Errorf("failed to parse VAD config: %w", err)
	}

	if file.VAD.SpeechThreshold <= file.VAD.SilenceThreshold {
		return settings, fmt.Errorf("invalid VAD config: speech_threshold must exceed silence_threshold")
	}
	return file.VAD, nil
}

// SaveVADSettings writes thresholds to path, replacing any previous file.
func SaveVADSettings(path string, settings VADSettings) error {
	data, err := yaml.Marshal(vadFile{VAD: settings})
	if err != nil {
		return fmt.Errorf("failed to encode VAD config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write VAD config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace VAD config: %w", err)
	}
	return nil
}
