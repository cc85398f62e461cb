// Package media holds the local audio and video endpoints the client streams
// from and plays into.
package media

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/room4-2/roleplay-live/codec"
)

// ErrMicUnavailable is returned when capture cannot start
var ErrMicUnavailable = errors.New("microphone unavailable")

// ErrVideoUnavailable is returned when a video source cannot produce frames
var ErrVideoUnavailable = errors.New("video source unavailable")

// PlaybackSink plays agent audio
type PlaybackSink interface {
	Play(pcm []byte)
	EndOfAudio()
}

// MicSource starts microphone capture. onFrame receives fixed-size frames of
// samples in [-1, 1) and is called from the capture goroutine.
type MicSource interface {
	Start(ctx context.Context, onFrame func(samples []float32)) (Stream, error)
}

// VideoSource yields still frames on demand
type VideoSource interface {
	Kind() codec.Source
	Snapshot() (image.Image, error)
}

// Stream is a running capture
type Stream interface {
	Stop() error
	Done() <-chan struct{}
}

// loop is a Stream backed by a cancellable goroutine
type loop struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
	// release runs once after the goroutine exits
	release func() error
}

func startLoop(ctx context.Context, run func(ctx context.Context) error, release func() error) *loop {
	ctx, cancel := context.WithCancel(ctx)
	l := &loop{cancel: cancel, done: make(chan struct{}), release: release}
	go func() {
		defer close(l.done)
		err := run(ctx)
		if l.release != nil {
			if rerr := l.release(); err == nil {
				err = rerr
			}
		}
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
	}()
	return l
}

func (l *loop) Stop() error {
	l.cancel()
	<-l.done
	l.mu.Lock()
	defer l.mu.Unlock()
	if errors.Is(l.err, context.Canceled) {
		return nil
	}
	return l.err
}

func (l *loop) Done() <-chan struct{} { return l.done }
