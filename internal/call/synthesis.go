package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/medivoice/internal/providers/tts"
)

type SynthesisOptions struct {
	Voice string
	// ChunkBytes is the size of each playback write.
	ChunkBytes int
	// Pace holds completion until the written audio has had time to play.
	Pace bool
}

// SynthesisController owns at most one utterance and the playback channel
// while it is in flight. A new Speak always preempts the previous one.
type SynthesisController struct {
	synth tts.Synthesizer
	sink  AudioSink
	opts  SynthesisOptions
	post  func(context.Context, event)
	log   *logrus.Entry

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func newSynthesisController(synth tts.Synthesizer, sink AudioSink, opts SynthesisOptions, post func(context.Context, event), log *logrus.Entry) *SynthesisController {
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = 4800
	}
	return &SynthesisController{synth: synth, sink: sink, opts: opts, post: post, log: log}
}

func (c *SynthesisController) Speak(ctx context.Context, gen uint64, text string) {
	c.Cancel()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.gen, c.cancel, c.done = gen, cancel, done
	c.mu.Unlock()

	go c.run(runCtx, gen, text, done)
}

// Cancel stops the utterance in flight and clears queued playback.
// Safe to call repeatedly or when nothing is speaking.
func (c *SynthesisController) Cancel() {
	if c.release() {
		c.sink.Reset()
	}
}

// finish clears the handle of an utterance that already completed.
func (c *SynthesisController) finish() { c.release() }

func (c *SynthesisController) release() bool {
	c.mu.Lock()
	cancel, done, gen := c.cancel, c.done, c.gen
	c.cancel, c.done, c.gen = nil, nil, 0
	c.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()

	t := time.NewTimer(stopGrace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		c.log.WithField("gen", gen).Warn("utterance slow to cancel")
	}
	return true
}

func (c *SynthesisController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *SynthesisController) run(ctx context.Context, gen uint64, text string, done chan struct{}) {
	defer close(done)

	rc, err := c.synth.Synthesize(ctx, text, c.opts.Voice)
	if err != nil {
		c.post(ctx, synthesisDone{gen: gen, err: unavailable(err), cancelled: ctx.Err() != nil})
		return
	}
	defer rc.Close()

	c.post(ctx, synthesisStarted{gen: gen})

	start := time.Now()
	written := 0
	buf := make([]byte, c.opts.ChunkBytes)
	for {
		n, rerr := io.ReadFull(rc, buf)
		if n > 0 {
			if werr := c.sink.WriteAudio(ctx, buf[:n]); werr != nil {
				c.post(ctx, synthesisDone{gen: gen, err: unavailable(werr), cancelled: ctx.Err() != nil})
				return
			}
			written += n
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			c.post(ctx, synthesisDone{gen: gen, err: unavailable(rerr), cancelled: ctx.Err() != nil})
			return
		}
	}

	if c.opts.Pace {
		if rate := c.synth.SampleRate(); rate > 0 {
			playout := time.Duration(written) * time.Second / time.Duration(rate*2)
			t := time.NewTimer(time.Until(start.Add(playout)))
			select {
			case <-ctx.Done():
				t.Stop()
				c.post(ctx, synthesisDone{gen: gen, cancelled: true})
				return
			case <-t.C:
			}
		}
	}

	c.post(ctx, synthesisDone{gen: gen})
}

func unavailable(err error) error {
	if errors.Is(err, tts.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", tts.ErrUnavailable, err)
}
