package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Source identifies where a video frame came from
type Source string

const (
	SourceCamera Source = "camera"
	SourceScreen Source = "screen"
)

// FrameProfile bounds the size and quality of an encoded frame
type FrameProfile struct {
	MaxWidth  int
	MaxHeight int
	Quality   int // JPEG quality 1-100
}

// ProfileFor returns the encoding limits for a source. Screen content keeps a
// larger size at lower quality.
func ProfileFor(source Source) FrameProfile {
	if source == SourceScreen {
		return FrameProfile{MaxWidth: 1024, MaxHeight: 768, Quality: 60}
	}
	return FrameProfile{MaxWidth: 640, MaxHeight: 480, Quality: 80}
}

// Frame is an encoded JPEG ready for the wire
type Frame struct {
	Source Source
	Width  int
	Height int
	JPEG   []byte
}

// FitWithin scales (w, h) down to fit inside (maxW, maxH), preserving the
// aspect ratio. Dimensions already inside the bounds are returned unchanged.
func FitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	if w*maxH >= h*maxW {
		return maxW, max(1, h*maxW/w)
	}
	return max(1, w*maxH/h), maxH
}

// EncodeFrame downscales img per the source profile and encodes it as JPEG.
func EncodeFrame(img image.Image, source Source) (Frame, error) {
	b := img.Bounds()
	if b.Empty() {
		return Frame{}, fmt.Errorf("empty %s frame", source)
	}

	profile := ProfileFor(source)
	w, h := FitWithin(b.Dx(), b.Dy(), profile.MaxWidth, profile.MaxHeight)

	src := img
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: profile.Quality}); err != nil {
		return Frame{}, fmt.Errorf("failed to encode %s frame: %w", source, err)
	}

	return Frame{Source: source, Width: w, Height: h, JPEG: buf.Bytes()}, nil
}
