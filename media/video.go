package media

import (
	"context"
	"fmt"
	"image"
	_ "image/png"
	"log"
	"os"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/room4-2/roleplay-live/codec"
)

// FrameInterval is how often frames are captured while video is on
const FrameInterval = time.Second

// ImageFileSource re-reads a still image on each snapshot, so another
// process can keep the file updated. JPEG, PNG, BMP and WebP are accepted.
type ImageFileSource struct {
	Path   string
	Source codec.Source
}

func (s *ImageFileSource) Kind() codec.Source { return s.Source }

func (s *ImageFileSource) Snapshot() (image.Image, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVideoUnavailable, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return img, nil
}

// StartFrames snapshots src every interval, encodes each image for the wire
// and hands it to onFrame. A failed snapshot is logged and skipped.
func StartFrames(ctx context.Context, src VideoSource, interval time.Duration, onFrame func(codec.Frame)) Stream {
	run := func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			img, err := src.Snapshot()
			if err != nil {
				log.Printf("⚠️ %s snapshot failed: %v", src.Kind(), err)
				continue
			}
			frame, err := codec.EncodeFrame(img, src.Kind())
			if err != nil {
				log.Printf("⚠️ %v", err)
				continue
			}
			onFrame(frame)
		}
	}
	return startLoop(ctx, run, nil)
}
