package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/medivoice/internal/models"
	"github.com/yoockh/medivoice/internal/providers/llm"
	"github.com/yoockh/medivoice/internal/providers/stt"
	"github.com/yoockh/medivoice/internal/providers/tts"
	"github.com/yoockh/medivoice/internal/transcript"
)

var (
	ErrAlreadyStarted = errors.New("call: already started")
	ErrAlreadyRunning = errors.New("call: loop already running")
	ErrEnded          = errors.New("call: ended")
)

const (
	defaultNoSpeechTimeout  = 15 * time.Second
	defaultInferenceTimeout = 20 * time.Second
	defaultExportTimeout    = 30 * time.Second
)

// Exporter turns the frozen transcript into a report and stores it.
type Exporter interface {
	Export(ctx context.Context, sessionID string, doctor models.DoctorProfile, turns []models.Turn) (*models.Report, error)
}

// TurnStore persists each committed turn as it is appended.
type TurnStore interface {
	AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error
}

// Publisher fans call updates out to subscribers of a session.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, v any) error
}

// Config describes one call. Zero timeouts fall back to the package defaults.
type Config struct {
	SessionID string
	Doctor    models.DoctorProfile
	Notes     string

	NoSpeechTimeout  time.Duration
	InferenceTimeout time.Duration
	ExportTimeout    time.Duration

	Recognition RecognitionOptions
	Synthesis   SynthesisOptions
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Recognizer  stt.Recognizer
	Microphone  AudioSource
	Synthesizer tts.Synthesizer
	Speaker     AudioSink
	Inference   llm.Provider
	Exporter    Exporter

	Store     TurnStore // optional
	Publisher Publisher // optional
	Clock     Clock
	Buffer    *transcript.Buffer
	Log       *logrus.Logger

	// Observe, when set, sees the machine after every handled event.
	Observe func(Snapshot)
}

// Snapshot is the machine as seen after one handled event.
type Snapshot struct {
	State     State
	Listening bool
	Speaking  bool
	Turns     int
}

// Orchestrator is the turn-taking state machine of one call. All state
// below is owned by the Run goroutine; other goroutines talk to it through
// the event channel.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *logrus.Entry

	buf *transcript.Buffer
	rec *RecognitionController
	syn *SynthesisController
	jr  *journal

	events  chan event
	done    chan struct{}
	running atomic.Bool
	state   atomic.Int32
	final   stopResult

	ctx       context.Context
	gen       uint64
	recGen    uint64
	synGen    uint64
	infGen    uint64
	timerGen  uint64
	timer     Timer
	infCancel context.CancelFunc
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.NoSpeechTimeout <= 0 {
		cfg.NoSpeechTimeout = defaultNoSpeechTimeout
	}
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = defaultInferenceTimeout
	}
	if cfg.ExportTimeout <= 0 {
		cfg.ExportTimeout = defaultExportTimeout
	}
	if cfg.Synthesis.Voice == "" {
		cfg.Synthesis.Voice = cfg.Doctor.VoiceID
	}
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Buffer == nil {
		deps.Buffer = transcript.New()
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}

	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		log:    deps.Log.WithField("session_id", cfg.SessionID),
		buf:    deps.Buffer,
		events: make(chan event, 64),
		done:   make(chan struct{}),
	}
	o.rec = newRecognitionController(deps.Recognizer, deps.Microphone, cfg.Recognition, o.post, o.log)
	o.syn = newSynthesisController(deps.Synthesizer, deps.Speaker, cfg.Synthesis, o.post, o.log)
	o.jr = newJournal(cfg.SessionID, deps.Store, deps.Publisher, o.log)
	return o
}

func (o *Orchestrator) SessionID() string { return o.cfg.SessionID }

func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) Transcript() []models.Turn { return o.buf.Snapshot() }

// Done is closed once the call has ended and the report export finished.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Run drives the call until Stop is handled or ctx is cancelled. A
// cancelled ctx ends the call like Stop does.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(o.done)

	o.ctx = ctx
	go o.jr.run(context.WithoutCancel(ctx))

	for {
		select {
		case <-ctx.Done():
			o.end("teardown")
			o.observe()
			return nil
		case ev := <-o.events:
			if o.handle(ev) {
				o.observe()
				return nil
			}
			o.observe()
		}
	}
}

// Start speaks the greeting; listening begins once it has been played.
func (o *Orchestrator) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := o.send(ctx, startRequested{reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-o.done:
		return ErrEnded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitTranscript feeds a final user utterance that did not come from the
// recognizer, such as typed text. While the agent is speaking it interrupts
// the utterance.
func (o *Orchestrator) SubmitTranscript(ctx context.Context, text string) error {
	return o.send(ctx, transcriptSubmitted{text: text})
}

// Stop ends the call, waits for the report export and returns its outcome.
// Calling Stop on an ended call returns the same outcome again.
func (o *Orchestrator) Stop(ctx context.Context, reason string) (*models.Report, error) {
	reply := make(chan stopResult, 1)
	if err := o.send(ctx, stopRequested{reason: reason, reply: reply}); err != nil {
		if errors.Is(err, ErrEnded) {
			return o.final.report, o.final.err
		}
		return nil, err
	}
	select {
	case r := <-reply:
		return r.report, r.err
	case <-o.done:
		return o.final.report, o.final.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) send(ctx context.Context, ev event) error {
	select {
	case <-o.done:
		return ErrEnded
	default:
	}
	select {
	case o.events <- ev:
		return nil
	case <-o.done:
		return ErrEnded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post is used by handles and timers; events for a dead call are dropped.
func (o *Orchestrator) post(ctx context.Context, ev event) {
	select {
	case o.events <- ev:
	case <-o.done:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) handle(ev event) bool {
	switch e := ev.(type) {
	case startRequested:
		e.reply <- o.onStart()
	case recognized:
		o.onRecognized(e)
	case recognitionEnded:
		o.onRecognitionEnded(e)
	case synthesisStarted:
		if e.gen == o.synGen {
			o.log.WithField("gen", e.gen).Debug("utterance started")
		}
	case synthesisDone:
		o.onSynthesisDone(e)
	case inferenceDone:
		o.onInferenceDone(e)
	case noSpeechTimeout:
		o.onNoSpeech(e)
	case transcriptSubmitted:
		o.onSubmitted(e)
	case stopRequested:
		e.reply <- o.end(e.reason)
		return true
	}
	return false
}

func (o *Orchestrator) onStart() error {
	if o.State() != StateIdle {
		return ErrAlreadyStarted
	}
	greeting := Greeting(o.cfg.Doctor)
	if !o.appendTurn(models.SpeakerAgent, greeting) {
		return ErrEnded
	}
	o.speak(greeting)
	return nil
}

func (o *Orchestrator) onRecognized(e recognized) {
	if e.gen != o.recGen || o.State() != StateListening {
		o.dropStale("recognized", e.gen)
		return
	}
	if !e.final {
		o.jr.publishLossy(o.update(UpdateInterim, func(u *Update) { u.Text = e.text }))
		// the user is talking; restart the no-speech window
		o.armTimer()
		return
	}
	text := strings.TrimSpace(e.text)
	if text == "" {
		return
	}
	o.stopRecognition()
	o.userTurn(text)
}

func (o *Orchestrator) onRecognitionEnded(e recognitionEnded) {
	if e.gen != o.recGen || o.State() != StateListening {
		o.dropStale("recognition_ended", e.gen)
		return
	}
	o.stopRecognition()
	if e.err == nil {
		o.log.Debug("recognition ended without a result, restarting")
		o.enterListening()
		return
	}
	kind := stt.KindOf(e.err)
	if kind == "" {
		kind = stt.DeviceError
	}
	o.fail(NoticeInput, string(kind), inputMessage(kind), e.err)
}

func (o *Orchestrator) onNoSpeech(e noSpeechTimeout) {
	if e.gen != o.timerGen || o.State() != StateListening {
		o.dropStale("no_speech_timeout", e.gen)
		return
	}
	o.log.WithField("timeout", o.cfg.NoSpeechTimeout.String()).Info("no speech detected, restarting recognition")
	o.stopRecognition()
	o.enterListening()
}

func (o *Orchestrator) onInferenceDone(e inferenceDone) {
	if e.gen != o.infGen || o.State() != StateThinking {
		o.dropStale("inference_done", e.gen)
		return
	}
	o.cancelInference()

	if e.err != nil {
		code := "inference_failed"
		var le *llm.Error
		if errors.As(e.err, &le) {
			code = fmt.Sprintf("inference_%d", le.Status)
		}
		o.fail(NoticeReasoning, code, "I couldn't process that. Please try again.", e.err)
		return
	}
	reply := strings.TrimSpace(e.reply)
	if reply == "" {
		o.fail(NoticeReasoning, "empty_reply", "I didn't catch a reply. Please say that again.", errors.New("empty inference reply"))
		return
	}
	if !o.appendTurn(models.SpeakerAgent, reply) {
		return
	}
	o.speak(reply)
}

func (o *Orchestrator) onSynthesisDone(e synthesisDone) {
	if e.gen != o.synGen || o.State() != StateSpeaking {
		o.dropStale("synthesis_done", e.gen)
		return
	}
	o.synGen = 0
	o.syn.finish()

	if e.err != nil {
		o.fail(NoticeOutput, "synthesis_unavailable", "Audio playback failed; the reply is shown as text.", e.err)
		return
	}
	o.enterListening()
}

func (o *Orchestrator) onSubmitted(e transcriptSubmitted) {
	text := strings.TrimSpace(e.text)
	if text == "" {
		return
	}
	switch o.State() {
	case StateListening:
		o.stopRecognition()
	case StateSpeaking:
		o.log.Info("barge-in, cancelling utterance")
		o.cancelSynthesis()
	case StateThinking:
		o.log.Info("new utterance while thinking, superseding inference")
		o.cancelInference()
	default:
		o.log.WithField("state", o.State().String()).Debug("transcript ignored")
		return
	}
	o.userTurn(text)
}

func (o *Orchestrator) userTurn(text string) {
	if !o.appendTurn(models.SpeakerUser, text) {
		return
	}
	o.setState(StateThinking)
	o.infer()
}

// enterListening is the only place recognition is (re)started.
func (o *Orchestrator) enterListening() {
	if o.synGen != 0 {
		o.cancelSynthesis()
	}
	o.setState(StateListening)

	o.gen++
	o.recGen = o.gen
	o.rec.Start(o.ctx, o.gen)
	o.armTimer()
}

func (o *Orchestrator) speak(text string) {
	o.stopRecognition()
	o.setState(StateSpeaking)

	o.gen++
	o.synGen = o.gen
	o.syn.Speak(o.ctx, o.gen, text)
}

func (o *Orchestrator) infer() {
	o.gen++
	gen := o.gen
	ctx, cancel := context.WithTimeout(o.ctx, o.cfg.InferenceTimeout)
	o.infGen, o.infCancel = gen, cancel

	req := o.inferenceRequest()
	go func() {
		reply, err := o.deps.Inference.Complete(ctx, req)
		o.post(o.ctx, inferenceDone{gen: gen, reply: reply, err: err})
	}()
}

func (o *Orchestrator) inferenceRequest() llm.Request {
	prompt := o.cfg.Doctor.AgentPrompt
	if o.cfg.Notes != "" {
		prompt += "\n\nNotes shared by the patient before the call: " + o.cfg.Notes
	}
	turns := o.buf.Snapshot()
	history := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		history = append(history, llm.Message{Role: t.Role(), Content: t.Text})
	}
	return llm.Request{SystemPrompt: prompt, History: history, Temperature: 0.7, MaxTokens: 300}
}

// fail passes through the error pseudo-state back into listening.
func (o *Orchestrator) fail(kind NoticeKind, code, msg string, err error) {
	o.setState(StateError)
	o.log.WithError(err).WithFields(logrus.Fields{"notice": kind, "code": code}).Warn("recoverable call error")
	o.notice(Notice{Kind: kind, Code: code, Message: msg})
	o.enterListening()
}

func (o *Orchestrator) end(reason string) stopResult {
	if o.State() == StateEnded {
		return o.final
	}
	o.log.WithField("reason", reason).Info("ending call")

	o.stopRecognition()
	o.cancelSynthesis()
	o.cancelInference()
	o.setState(StateEnded)

	turns := o.buf.Freeze()
	o.jr.close()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), o.cfg.ExportTimeout)
	defer cancel()

	var res stopResult
	if o.deps.Exporter != nil {
		res.report, res.err = o.deps.Exporter.Export(ctx, o.cfg.SessionID, o.cfg.Doctor, turns)
	}
	if res.err != nil {
		o.log.WithError(res.err).Warn("report export degraded")
		n := Notice{ID: uuid.NewString(), Kind: NoticeExport, Code: "report_degraded",
			Message: "Call ended. The report may be incomplete.", Degraded: true}
		o.publishNow(ctx, o.update(UpdateNotice, func(u *Update) { u.Notice = &n }))
	}
	if res.report != nil {
		o.publishNow(ctx, o.update(UpdateReport, func(u *Update) { u.Report = res.report }))
	}
	o.final = res
	return res
}

func (o *Orchestrator) stopRecognition() {
	o.stopTimer()
	if o.recGen != 0 {
		o.recGen = 0
		o.rec.Stop()
	}
}

func (o *Orchestrator) cancelSynthesis() {
	if o.synGen != 0 {
		o.synGen = 0
		o.syn.Cancel()
	}
}

func (o *Orchestrator) cancelInference() {
	if o.infGen != 0 {
		o.infGen = 0
		o.infCancel()
		o.infCancel = nil
	}
}

// armTimer starts a fresh no-speech window. Each arm takes its own tag so a
// callback that already fired for a replaced timer is dropped as stale.
func (o *Orchestrator) armTimer() {
	o.stopTimer()
	o.gen++
	gen := o.gen
	o.timerGen = gen
	o.timer = o.deps.Clock.AfterFunc(o.cfg.NoSpeechTimeout, func() {
		o.post(o.ctx, noSpeechTimeout{gen: gen})
	})
}

func (o *Orchestrator) stopTimer() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.timerGen = 0
}

func (o *Orchestrator) appendTurn(speaker models.Speaker, text string) bool {
	t, err := o.buf.Append(speaker, text)
	if err != nil {
		o.log.WithError(err).Warn("turn rejected")
		return false
	}
	o.jr.turn(t, o.update(UpdateTurn, func(u *Update) { u.Turn = &t }))
	return true
}

func (o *Orchestrator) setState(s State) {
	prev := State(o.state.Swap(int32(s)))
	if prev == s {
		return
	}
	o.log.WithFields(logrus.Fields{"from": prev.String(), "to": s.String(), "gen": o.gen}).Debug("state")
	o.jr.publish(o.update(UpdateState, func(u *Update) {
		u.State = s.String()
		u.From = prev.String()
	}))
}

func (o *Orchestrator) notice(n Notice) {
	n.ID = uuid.NewString()
	o.jr.publish(o.update(UpdateNotice, func(u *Update) { u.Notice = &n }))
}

func (o *Orchestrator) publishNow(ctx context.Context, u Update) {
	if o.deps.Publisher == nil {
		return
	}
	if err := o.deps.Publisher.Publish(ctx, o.cfg.SessionID, u); err != nil {
		o.log.WithError(err).WithField("type", u.Type).Warn("publish update failed")
	}
}

func (o *Orchestrator) update(t UpdateType, fill func(*Update)) Update {
	u := Update{Type: t, SessionID: o.cfg.SessionID, At: time.Now().UTC()}
	if fill != nil {
		fill(&u)
	}
	return u
}

func (o *Orchestrator) dropStale(kind string, gen uint64) {
	o.log.WithFields(logrus.Fields{"event": kind, "gen": gen, "state": o.State().String()}).Debug("stale event dropped")
}

func (o *Orchestrator) observe() {
	if o.deps.Observe == nil {
		return
	}
	o.deps.Observe(Snapshot{
		State:     o.State(),
		Listening: o.rec.Active(),
		Speaking:  o.syn.Active(),
		Turns:     o.buf.Len(),
	})
}

func inputMessage(k stt.Kind) string {
	switch k {
	case stt.NoInputDetected:
		return "No speech detected. Please try speaking again."
	case stt.PermissionDenied:
		return "Microphone access is unavailable."
	case stt.TransientNetworkError:
		return "Speech recognition connection dropped. Listening again."
	default:
		return "Speech recognition failed. Listening again."
	}
}
