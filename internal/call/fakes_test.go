package call

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yoockh/medivoice/internal/models"
	"github.com/yoockh/medivoice/internal/providers/llm"
	"github.com/yoockh/medivoice/internal/providers/stt"
)

// --- recognizer ---

type fakeStream struct {
	ctx     context.Context
	results chan stt.Result
	end     chan error

	mu   sync.Mutex
	sent int
}

func (s *fakeStream) Send(pcm []byte) error {
	s.mu.Lock()
	s.sent += len(pcm)
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Recv() (stt.Result, error) {
	select {
	case <-s.ctx.Done():
		return stt.Result{}, s.ctx.Err()
	case r := <-s.results:
		return r, nil
	case err := <-s.end:
		return stt.Result{}, err
	}
}

func (s *fakeStream) CloseSend() error { return nil }

func (s *fakeStream) say(text string, final bool) {
	s.results <- stt.Result{Text: text, Final: final}
}

type fakeRecognizer struct {
	opens   atomic.Int32
	streams chan *fakeStream
	openErr error
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{streams: make(chan *fakeStream, 32)}
}

func (r *fakeRecognizer) Open(ctx context.Context, cfg stt.Config) (stt.Stream, error) {
	r.opens.Add(1)
	if r.openErr != nil {
		return nil, r.openErr
	}
	s := &fakeStream{ctx: ctx, results: make(chan stt.Result, 8), end: make(chan error, 1)}
	r.streams <- s
	return s, nil
}

func (r *fakeRecognizer) Close() error { return nil }

func (r *fakeRecognizer) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-r.streams:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("recognizer was not opened")
		return nil
	}
}

// --- synthesizer ---

type gatedReader struct {
	ctx  context.Context
	gate <-chan struct{}
	data []byte
	sent bool
}

func (g *gatedReader) Read(p []byte) (int, error) {
	if !g.sent {
		g.sent = true
		return copy(p, g.data), nil
	}
	select {
	case <-g.ctx.Done():
		return 0, g.ctx.Err()
	case <-g.gate:
		return 0, io.EOF
	}
}

func (g *gatedReader) Close() error { return nil }

type fakeSynth struct {
	mu    sync.Mutex
	texts []string
	err   error
	// gate, when set, holds every utterance open until closed
	gate chan struct{}
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	err, gate := f.err, f.gate
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if gate == nil {
		closed := make(chan struct{})
		close(closed)
		gate = closed
	}
	return &gatedReader{ctx: ctx, gate: gate, data: []byte{1, 2, 3, 4}}, nil
}

func (f *fakeSynth) SampleRate() int { return 24000 }

func (f *fakeSynth) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeSink struct {
	written atomic.Int64
	resets  atomic.Int32
}

func (s *fakeSink) WriteAudio(ctx context.Context, pcm []byte) error {
	s.written.Add(int64(len(pcm)))
	return nil
}

func (s *fakeSink) Reset() { s.resets.Add(1) }

// --- inference ---

type fakeLLM struct {
	mu    sync.Mutex
	reqs  []llm.Request
	reply func(n int, req llm.Request) (string, error)
	block bool
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	n := len(f.reqs)
	reply, block := f.reply, f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if reply == nil {
		return "ok", nil
	}
	return reply(n, req)
}

func (f *fakeLLM) Close() error { return nil }

func (f *fakeLLM) calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.reqs...)
}

func (f *fakeLLM) setBlock(b bool) {
	f.mu.Lock()
	f.block = b
	f.mu.Unlock()
}

// --- clock ---

type fakeTimer struct {
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// latest returns the most recently armed timer, live or not.
func (c *fakeClock) latest() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

// fire runs the newest live timer.
func (c *fakeClock) fire() bool {
	c.mu.Lock()
	var live *fakeTimer
	for i := len(c.timers) - 1; i >= 0; i-- {
		if !c.timers[i].stopped.Load() {
			live = c.timers[i]
			break
		}
	}
	c.mu.Unlock()
	if live == nil {
		return false
	}
	live.stopped.Store(true)
	go live.f()
	return true
}

// --- collaborators ---

type fakeExporter struct {
	mu    sync.Mutex
	turns []models.Turn
	calls int
	err   error
}

func (e *fakeExporter) Export(ctx context.Context, sessionID string, doctor models.DoctorProfile, turns []models.Turn) (*models.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.turns = turns
	r := &models.Report{SessionID: sessionID, Agent: doctor.Specialist, ConversationLength: len(turns)}
	return r, e.err
}

type fakeStore struct {
	mu    sync.Mutex
	turns []models.Turn
}

func (s *fakeStore) AppendTurn(ctx context.Context, sessionID string, t models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	return nil
}

type fakePublisher struct {
	mu      sync.Mutex
	updates []Update
}

func (p *fakePublisher) Publish(ctx context.Context, sessionID string, v any) error {
	u, ok := v.(Update)
	if !ok {
		return errors.New("unexpected payload")
	}
	p.mu.Lock()
	p.updates = append(p.updates, u)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) notices() []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Notice
	for _, u := range p.updates {
		if u.Type == UpdateNotice && u.Notice != nil {
			out = append(out, *u.Notice)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
