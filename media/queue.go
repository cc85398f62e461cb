package media

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
)

// ErrBufferFull is returned when a chunk would exceed the queue's maximum size
var ErrBufferFull = errors.New("playback buffer full")

// playbackSlice bounds a single device write: 100ms of 24 kHz 16-bit mono
const playbackSlice = 4800

// PlaybackQueue buffers agent audio ahead of a blocking writer such as a
// sound device. Audio is written in short slices, so EndOfAudio discards
// everything past the slice currently playing.
type PlaybackQueue struct {
	out     io.Writer
	maxSize int
	slice   int

	mu        sync.Mutex
	chunks    [][]byte
	totalSize int
	dropped   int
	wake      chan struct{}
}

// NewPlaybackQueue creates a queue holding at most maxSize bytes
func NewPlaybackQueue(out io.Writer, maxSize int) *PlaybackQueue {
	return &PlaybackQueue{
		out:     out,
		maxSize: maxSize,
		slice:   playbackSlice,
		wake:    make(chan struct{}, 1),
	}
}

// Append queues a chunk, returning ErrBufferFull when it does not fit
func (q *PlaybackQueue) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	q.mu.Lock()
	if q.totalSize+len(chunk) > q.maxSize {
		q.dropped += len(chunk)
		q.mu.Unlock()
		return ErrBufferFull
	}
	q.chunks = append(q.chunks, chunk)
	q.totalSize += len(chunk)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Play queues a chunk, dropping it when the queue is full
func (q *PlaybackQueue) Play(pcm []byte) {
	if err := q.Append(pcm); err != nil {
		log.Printf("⚠️ Dropped %d bytes of playback audio: %v", len(pcm), err)
	}
}

// EndOfAudio clears pending audio
func (q *PlaybackQueue) EndOfAudio() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = nil
	q.totalSize = 0
}

// Size returns the pending byte count
func (q *PlaybackQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalSize
}

// Dropped returns the number of bytes rejected because the queue was full
func (q *PlaybackQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// next pops up to limit pending bytes, splitting a chunk when needed
func (q *PlaybackQueue) next(limit int) []byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.chunks) == 0 {
		return nil
	}
	result := make([]byte, 0, min(limit, q.totalSize))
	for len(q.chunks) > 0 && len(result) < limit {
		chunk := q.chunks[0]
		n := min(limit-len(result), len(chunk))
		result = append(result, chunk[:n]...)
		if n == len(chunk) {
			q.chunks = q.chunks[1:]
		} else {
			q.chunks[0] = chunk[n:]
		}
	}
	q.totalSize -= len(result)
	if len(q.chunks) == 0 {
		q.chunks = nil
	}
	return result
}

// Run writes queued audio to the output until ctx is done
func (q *PlaybackQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		}

		for {
			data := q.next(q.slice)
			if data == nil {
				break
			}
			if _, err := q.out.Write(data); err != nil {
				return err
			}
		}
	}
}
