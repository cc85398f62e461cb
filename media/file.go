package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/room4-2/roleplay-live/codec"
)

const wavHeaderSize = 44

// LoadAudioFile loads a PCM or WAV file and returns raw PCM bytes
func LoadAudioFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	// canonical WAV header, no extension chunks
	if len(data) > wavHeaderSize && string(data[0:4]) == "RIFF" {
		log.Println("📁 Detected WAV file, skipping header")
		return data[wavHeaderSize:], nil
	}

	log.Println("📁 Detected raw PCM file")
	return data, nil
}

// FileSource replays a recording as if it came from a microphone
type FileSource struct {
	Path         string
	SampleRate   int
	FrameSamples int
	// Realtime paces frames at the sample rate; otherwise they are emitted
	// back to back.
	Realtime bool
}

// Start emits the file frame by frame. The stream ends by itself at the end
// of the file; a trailing partial frame is dropped.
func (f *FileSource) Start(ctx context.Context, onFrame func(samples []float32)) (Stream, error) {
	pcm, err := LoadAudioFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMicUnavailable, err)
	}
	frameBytes := f.FrameSamples * 2
	if frameBytes <= 0 {
		return nil, fmt.Errorf("%w: frame size must be positive", ErrMicUnavailable)
	}

	run := func(ctx context.Context) error {
		var tick <-chan time.Time
		if f.Realtime && f.SampleRate > 0 {
			ticker := time.NewTicker(time.Duration(f.FrameSamples) * time.Second / time.Duration(f.SampleRate))
			defer ticker.Stop()
			tick = ticker.C
		}

		for off := 0; off+frameBytes <= len(pcm); off += frameBytes {
			if tick != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-tick:
				}
			} else if ctx.Err() != nil {
				return ctx.Err()
			}
			onFrame(codec.PCM16ToFloat32(pcm[off : off+frameBytes]))
		}
		log.Printf("📁 Finished replaying %s", f.Path)
		return nil
	}
	return startLoop(ctx, run, nil), nil
}
