package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"sync"

	"github.com/room4-2/roleplay-live/codec"
)

const soxCommand = "sox"

func rawFormat(rate int) []string {
	return []string{
		"-t", "raw",
		"-r", strconv.Itoa(rate),
		"-b", "16",
		"-c", "1",
		"-e", "signed-integer",
	}
}

// Player streams raw 16-bit mono PCM to the default sound device via sox
type Player struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	mu     sync.Mutex
	closed bool
}

// NewPlayer starts sox reading PCM at the given rate from stdin
func NewPlayer(rate int) (*Player, error) {
	args := append(rawFormat(rate), "-", "-d")
	cmd := exec.Command(soxCommand, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("sox stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("sox start (is sox installed?): %w", err)
	}
	log.Printf("🔊 Playback started at %d Hz", rate)
	return &Player{cmd: cmd, stdin: stdin}, nil
}

// Write sends PCM to sox
func (p *Player) Write(pcm []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.stdin.Write(pcm)
}

// Close stops playback after sox drains its input
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.stdin.Close()
	return p.cmd.Wait()
}

// Recorder captures the default input device via sox
type Recorder struct {
	SampleRate   int
	FrameSamples int
}

// NewRecorder creates a recorder emitting frameSamples-long frames
func NewRecorder(rate, frameSamples int) *Recorder {
	return &Recorder{SampleRate: rate, FrameSamples: frameSamples}
}

// Start launches sox and delivers frames until the stream is stopped
func (r *Recorder) Start(ctx context.Context, onFrame func(samples []float32)) (Stream, error) {
	args := append([]string{"-q", "-d"}, rawFormat(r.SampleRate)...)
	args = append(args, "-")

	cmdCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cmdCtx, soxCommand, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrMicUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrMicUnavailable, err)
	}
	log.Printf("🎙️ Capture started at %d Hz", r.SampleRate)

	frameBytes := r.FrameSamples * 2
	run := func(ctx context.Context) error {
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		buf := make([]byte, frameBytes)
		for {
			if _, err := io.ReadFull(stdout, buf); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("capture ended: %w", err)
			}
			onFrame(codec.PCM16ToFloat32(buf))
		}
	}
	release := func() error {
		cancel()
		err := cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return startLoop(ctx, run, release), nil
}
