package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/room4-2/roleplay-live/codec"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func TestPlaybackQueueLimits(t *testing.T) {
	t.Parallel()

	q := NewPlaybackQueue(&syncBuffer{}, 4)
	if err := q.Append([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := q.Append([]byte{4, 5}); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
	q.Play([]byte{6, 7})
	if q.Size() != 3 || q.Dropped() != 4 {
		t.Fatalf("size=%d dropped=%d", q.Size(), q.Dropped())
	}

	q.EndOfAudio()
	if q.Size() != 0 {
		t.Fatal("end of audio should discard pending audio")
	}
}

func TestPlaybackQueueRunWritesInOrder(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	q := NewPlaybackQueue(out, 1024)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	q.Play([]byte{1, 2})
	q.Play([]byte{3})
	q.Play([]byte{4, 5})

	deadline := time.After(2 * time.Second)
	for out.Len() < 5 {
		select {
		case <-deadline:
			t.Fatalf("only %d bytes written", out.Len())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if !bytes.Equal(out.Bytes(), []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("unexpected output %v", out.Bytes())
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}

// gatedWriter blocks its first write until release is closed
type gatedWriter struct {
	syncBuffer
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *gatedWriter) Write(p []byte) (int, error) {
	first := false
	w.once.Do(func() { first = true })
	if first {
		close(w.started)
		<-w.release
	}
	return w.syncBuffer.Write(p)
}

func TestPlaybackQueueInterruptDuringWrite(t *testing.T) {
	t.Parallel()

	out := &gatedWriter{started: make(chan struct{}), release: make(chan struct{})}
	q := NewPlaybackQueue(out, 1024)
	q.slice = 2
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	q.Play([]byte{1, 2, 3, 4, 5, 6})
	select {
	case <-out.started:
	case <-time.After(2 * time.Second):
		t.Fatal("nothing written")
	}
	if q.Size() != 4 {
		t.Fatalf("expected 4 bytes still queued, got %d", q.Size())
	}

	// the interruption lands while the device is busy with the first slice
	q.EndOfAudio()
	close(out.release)
	q.Play([]byte{9})

	deadline := time.After(2 * time.Second)
	for out.Len() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d bytes written", out.Len())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if !bytes.Equal(out.Bytes(), []byte{1, 2, 9}) {
		t.Fatalf("stale audio played after the interruption: %v", out.Bytes())
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}

func TestPlaybackQueueSplitsChunks(t *testing.T) {
	t.Parallel()

	q := NewPlaybackQueue(&syncBuffer{}, 1024)
	q.Play([]byte{1, 2, 3})
	q.Play([]byte{4, 5})

	var got [][]byte
	for data := q.next(2); data != nil; data = q.next(2) {
		got = append(got, data)
	}
	want := [][]byte{{1, 2}, {3, 4}, {5}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if q.Size() != 0 {
		t.Fatalf("queue should be drained, size %d", q.Size())
	}
}

func writeWAV(t *testing.T, samples int) string {
	t.Helper()
	header := make([]byte, wavHeaderSize)
	copy(header, "RIFF")
	pcm := codec.Float32ToPCM16(make([]float32, samples))
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, append(header, pcm...), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestLoadAudioFileSkipsWAVHeader(t *testing.T) {
	t.Parallel()

	data, err := LoadAudioFile(writeWAV(t, 10))
	if err != nil {
		t.Fatalf("LoadAudioFile: %v", err)
	}
	if len(data) != 20 {
		t.Fatalf("expected 20 PCM bytes, got %d", len(data))
	}
}

func TestFileSourceEmitsWholeFrames(t *testing.T) {
	t.Parallel()

	src := &FileSource{Path: writeWAV(t, 1000), SampleRate: 16000, FrameSamples: 256}

	var mu sync.Mutex
	var frames [][]float32
	stream, err := src.Start(context.Background(), func(s []float32) {
		mu.Lock()
		frames = append(frames, s)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("file stream did not finish")
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) != 3 {
		t.Fatalf("expected 3 whole frames, got %d", len(frames))
	}
	for _, f := range frames {
		if len(f) != 256 {
			t.Fatalf("unexpected frame length %d", len(f))
		}
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	t.Parallel()

	src := &FileSource{Path: filepath.Join(t.TempDir(), "missing.pcm"), FrameSamples: 256}
	if _, err := src.Start(context.Background(), func([]float32) {}); !errors.Is(err, ErrMicUnavailable) {
		t.Fatalf("expected ErrMicUnavailable, got %v", err)
	}
}

func TestStartFramesEncodesSnapshots(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 1280, 960))
	for y := 0; y < 960; y++ {
		for x := 0; x < 1280; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "cam.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	frames := make(chan codec.Frame, 4)
	stream := StartFrames(context.Background(), &ImageFileSource{Path: path, Source: codec.SourceCamera},
		10*time.Millisecond, func(fr codec.Frame) {
			select {
			case frames <- fr:
			default:
			}
		})
	defer stream.Stop()

	select {
	case fr := <-frames:
		if fr.Source != codec.SourceCamera || fr.Width != 640 || fr.Height != 480 {
			t.Fatalf("unexpected frame %s %dx%d", fr.Source, fr.Width, fr.Height)
		}
		if len(fr.JPEG) == 0 {
			t.Fatal("empty JPEG")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame captured")
	}

	if err := stream.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestImageFileSourceMissing(t *testing.T) {
	t.Parallel()

	src := &ImageFileSource{Path: filepath.Join(t.TempDir(), "none.png"), Source: codec.SourceScreen}
	if _, err := src.Snapshot(); !errors.Is(err, ErrVideoUnavailable) {
		t.Fatalf("expected ErrVideoUnavailable, got %v", err)
	}
}
