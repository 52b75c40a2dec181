package tts

import (
	"context"
	"errors"
	"io"
)

// ErrUnavailable wraps every synthesis failure reported upward.
var ErrUnavailable = errors.New("tts: synthesis unavailable")

// Synthesizer turns text into raw 16-bit little-endian mono PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (io.ReadCloser, error)
	// SampleRate of the PCM returned by Synthesize.
	SampleRate() int
}
