// Package transcript holds the ordered turn log of a single call.
package transcript

import (
	"errors"
	"sync"
	"time"

	"github.com/yoockh/medivoice/internal/models"
)

var ErrFrozen = errors.New("transcript: buffer is frozen")

// Buffer is an append-only, ordered log of turns. Append order is
// conversational order. It is safe for concurrent readers; the call
// orchestrator is the only writer.
type Buffer struct {
	mu     sync.RWMutex
	turns  []models.Turn
	frozen bool
	now    func() time.Time
}

func New() *Buffer {
	return &Buffer{now: time.Now}
}

// NewWithClock is used by tests that need deterministic timestamps.
func NewWithClock(now func() time.Time) *Buffer {
	if now == nil {
		now = time.Now
	}
	return &Buffer{now: now}
}

// Append records a turn and returns it as stored.
func (b *Buffer) Append(speaker models.Speaker, text string) (models.Turn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return models.Turn{}, ErrFrozen
	}
	t := models.Turn{Speaker: speaker, Text: text, Timestamp: b.now().UTC()}
	b.turns = append(b.turns, t)
	return t, nil
}

// Snapshot returns a copy of the turns in order.
func (b *Buffer) Snapshot() []models.Turn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.turns)
}

// Count returns the number of turns by the given speaker.
func (b *Buffer) Count(speaker models.Speaker) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, t := range b.turns {
		if t.Speaker == speaker {
			n++
		}
	}
	return n
}

// Last returns the newest turn, if any.
func (b *Buffer) Last() (models.Turn, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.turns) == 0 {
		return models.Turn{}, false
	}
	return b.turns[len(b.turns)-1], true
}

// Freeze stops further appends and returns the final contents.
func (b *Buffer) Freeze() []models.Turn {
	b.mu.Lock()
	b.frozen = true
	b.mu.Unlock()
	return b.Snapshot()
}

func (b *Buffer) Frozen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frozen
}
