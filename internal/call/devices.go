package call

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrCaptureClosed = errors.New("call: capture device closed")
	ErrCaptureBusy   = errors.New("call: capture device already acquired")
)

// AudioSource is the capture device of one call. Frames flow only between
// Acquire and Release.
type AudioSource interface {
	Acquire() (<-chan []byte, error)
	Release()
}

// AudioSink is the playback channel of one call.
type AudioSink interface {
	WriteAudio(ctx context.Context, pcm []byte) error
	// Reset drops audio queued on the far side.
	Reset()
}

// Microphone is an AudioSource fed by the transport. Frames pushed while
// nobody holds the device are discarded, so audio captured during agent
// speech never reaches the recognizer.
type Microphone struct {
	mu     sync.Mutex
	ch     chan []byte
	size   int
	closed bool
}

func NewMicrophone(buffer int) *Microphone {
	if buffer <= 0 {
		buffer = 64
	}
	return &Microphone{size: buffer}
}

func (m *Microphone) Acquire() (<-chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrCaptureClosed
	}
	if m.ch != nil {
		return nil, ErrCaptureBusy
	}
	m.ch = make(chan []byte, m.size)
	return m.ch, nil
}

func (m *Microphone) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *Microphone) release() {
	if m.ch != nil {
		close(m.ch)
		m.ch = nil
	}
}

// Push offers one frame. It never blocks; it reports whether the frame
// was accepted.
func (m *Microphone) Push(pcm []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ch == nil {
		return false
	}
	select {
	case m.ch <- pcm:
		return true
	default:
		return false
	}
}

func (m *Microphone) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch != nil
}

// Close releases the device for good; later Acquire calls fail.
func (m *Microphone) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.release()
}
