package call

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/medivoice/internal/providers/stt"
)

const stopGrace = 2 * time.Second

type RecognitionOptions struct {
	Config stt.Config
	// Debounce delays each start so back-to-back restarts do not hammer
	// the recognizer.
	Debounce    time.Duration
	OpenTimeout time.Duration
}

// RecognitionController owns at most one recognizer session and the
// capture device while that session is live.
type RecognitionController struct {
	rec  stt.Recognizer
	mic  AudioSource
	opts RecognitionOptions
	post func(context.Context, event)
	log  *logrus.Entry

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func newRecognitionController(rec stt.Recognizer, mic AudioSource, opts RecognitionOptions, post func(context.Context, event), log *logrus.Entry) *RecognitionController {
	return &RecognitionController{rec: rec, mic: mic, opts: opts, post: post, log: log}
}

// Start begins a session tagged gen and returns immediately. Results and
// the end of the session are delivered as events.
func (c *RecognitionController) Start(ctx context.Context, gen uint64) {
	c.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.gen, c.cancel, c.done = gen, cancel, done
	c.mu.Unlock()

	go c.run(runCtx, gen, done)
}

// Stop invalidates the live session and waits for it to release the
// capture device. It is a no-op when nothing is live.
func (c *RecognitionController) Stop() {
	c.mu.Lock()
	cancel, done, gen := c.cancel, c.done, c.gen
	c.cancel, c.done, c.gen = nil, nil, 0
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	t := time.NewTimer(stopGrace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		c.log.WithField("gen", gen).Warn("recognition session slow to stop")
	}
}

func (c *RecognitionController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *RecognitionController) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	if c.opts.Debounce > 0 {
		t := time.NewTimer(c.opts.Debounce)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	frames, err := c.mic.Acquire()
	if err != nil {
		kind := stt.DeviceError
		if errors.Is(err, ErrCaptureClosed) {
			kind = stt.PermissionDenied
		}
		c.post(ctx, recognitionEnded{gen: gen, err: &stt.Error{Kind: kind, Err: err}})
		return
	}

	streamCtx, cancelStream := context.WithCancel(ctx)
	pumpDone := make(chan struct{})
	defer func() {
		cancelStream()
		c.mic.Release()
		<-pumpDone
	}()

	stream, err := c.open(streamCtx)
	if err != nil {
		close(pumpDone)
		if ctx.Err() == nil {
			c.post(ctx, recognitionEnded{gen: gen, err: stt.Classify(err)})
		}
		return
	}

	go func() {
		defer close(pumpDone)
		pump(streamCtx, stream, frames)
	}()

	// only the first final of a cycle is forwarded
	consumed := false
	for {
		res, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				err = nil
			}
			c.post(ctx, recognitionEnded{gen: gen, err: stt.Classify(err)})
			return
		}
		if consumed || res.Text == "" {
			continue
		}
		if res.Final {
			consumed = true
		}
		c.post(ctx, recognized{gen: gen, text: res.Text, final: res.Final})
	}
}

func (c *RecognitionController) open(ctx context.Context) (stt.Stream, error) {
	if c.opts.OpenTimeout <= 0 {
		return c.rec.Open(ctx, c.opts.Config)
	}

	type opened struct {
		s   stt.Stream
		err error
	}
	ch := make(chan opened, 1)
	go func() {
		s, err := c.rec.Open(ctx, c.opts.Config)
		ch <- opened{s, err}
	}()

	t := time.NewTimer(c.opts.OpenTimeout)
	defer t.Stop()
	select {
	case o := <-ch:
		return o.s, o.err
	case <-t.C:
		return nil, &stt.Error{Kind: stt.TransientNetworkError, Err: errors.New("recognizer did not open in time")}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func pump(ctx context.Context, stream stt.Stream, frames <-chan []byte) {
	defer stream.CloseSend()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := stream.Send(f); err != nil {
				return
			}
		}
	}
}
