package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/medivoice/internal/call"
	"github.com/yoockh/medivoice/internal/models"
	"github.com/yoockh/medivoice/internal/providers/llm"
	"github.com/yoockh/medivoice/internal/providers/stt"
	"github.com/yoockh/medivoice/internal/providers/tts"
	"github.com/yoockh/medivoice/internal/utils"
)

type CallSettings struct {
	NoSpeechTimeout  time.Duration
	InferenceTimeout time.Duration
	ExportTimeout    time.Duration
	Recognition      call.RecognitionOptions
	// PaceSpeech holds synthesis completion until the audio has played.
	PaceSpeech bool
}

type CallDeps struct {
	Sessions    SessionService
	Turns       call.TurnStore
	Recognizer  stt.Recognizer
	Synthesizer tts.Synthesizer
	Inference   llm.Provider
	Exporter    call.Exporter
	Publisher   call.Publisher
	Settings    CallSettings
	Log         *logrus.Logger
}

// LiveCall is a connected call: its state machine plus the microphone the
// transport feeds.
type LiveCall struct {
	*call.Orchestrator
	Mic *call.Microphone
}

type CallService interface {
	Attach(ctx context.Context, userID, sessionID string, speaker call.AudioSink) (*LiveCall, error)
	End(ctx context.Context, userID, sessionID string) (*models.Report, error)
	Active() int
	Shutdown(ctx context.Context)
}

type callService struct {
	d CallDeps

	base   context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	live map[string]*LiveCall
	wg   sync.WaitGroup
}

func NewCallService(d CallDeps) CallService {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	base, cancel := context.WithCancel(context.Background())
	return &callService{d: d, base: base, cancel: cancel, live: map[string]*LiveCall{}}
}

func (s *callService) Attach(ctx context.Context, userID, sessionID string, speaker call.AudioSink) (*LiveCall, error) {
	const op = "CallService.Attach"

	sess, err := s.d.Sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.SessionEnded {
		return nil, utils.E(utils.CodeConflict, op, "session already ended", nil)
	}
	if speaker == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "speaker is required", nil)
	}

	s.mu.Lock()
	if _, ok := s.live[sessionID]; ok {
		s.mu.Unlock()
		return nil, utils.E(utils.CodeConflict, op, "call already connected", nil)
	}
	mic := call.NewMicrophone(64)
	st := s.d.Settings
	o := call.New(call.Config{
		SessionID:        sessionID,
		Doctor:           sess.Doctor,
		Notes:            sess.Notes,
		NoSpeechTimeout:  st.NoSpeechTimeout,
		InferenceTimeout: st.InferenceTimeout,
		ExportTimeout:    st.ExportTimeout,
		Recognition:      st.Recognition,
		Synthesis:        call.SynthesisOptions{Voice: sess.Doctor.VoiceID, Pace: st.PaceSpeech},
	}, call.Deps{
		Recognizer:  s.d.Recognizer,
		Microphone:  mic,
		Synthesizer: s.d.Synthesizer,
		Speaker:     speaker,
		Inference:   s.d.Inference,
		Exporter:    s.d.Exporter,
		Store:       s.d.Turns,
		Publisher:   s.d.Publisher,
		Log:         s.d.Log,
	})
	lc := &LiveCall{Orchestrator: o, Mic: mic}
	s.live[sessionID] = lc
	s.wg.Add(1)
	s.mu.Unlock()

	if err := s.d.Sessions.MarkActive(ctx, sessionID); err != nil {
		s.d.Log.WithError(err).WithField("session_id", sessionID).Warn("mark session active failed")
	}

	go s.run(lc)
	return lc, nil
}

func (s *callService) run(lc *LiveCall) {
	defer s.wg.Done()
	l := s.d.Log.WithField("session_id", lc.SessionID())
	l.Info("call connected")

	_ = lc.Run(s.base)
	lc.Mic.Close()

	s.mu.Lock()
	delete(s.live, lc.SessionID())
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.d.Sessions.End(ctx, lc.SessionID()); err != nil {
		l.WithError(err).Error("mark session ended failed")
	}
	l.Info("call finished")
}

func (s *callService) lookup(sessionID string) (*LiveCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lc, ok := s.live[sessionID]
	return lc, ok
}

// End stops a connected call, or ends an idle session and builds its
// report from the stored conversation. A degraded report is still
// returned without error.
func (s *callService) End(ctx context.Context, userID, sessionID string) (*models.Report, error) {
	const op = "CallService.End"

	sess, err := s.d.Sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	if lc, ok := s.lookup(sessionID); ok {
		rep, err := lc.Stop(ctx, "user")
		if rep != nil {
			return rep, nil
		}
		if err != nil {
			return nil, utils.E(utils.CodeBadGateway, op, "report generation failed", err)
		}
		return nil, nil
	}

	if _, err := s.d.Sessions.End(ctx, sessionID); err != nil {
		return nil, err
	}
	if sess.Report != nil {
		return sess.Report, nil
	}
	if len(sess.Conversation) == 0 || s.d.Exporter == nil {
		return nil, nil
	}

	timeout := s.d.Settings.ExportTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	exportCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rep, err := s.d.Exporter.Export(exportCtx, sessionID, sess.Doctor, sess.Conversation)
	if rep != nil {
		return rep, nil
	}
	return nil, utils.E(utils.CodeBadGateway, op, "report generation failed", err)
}

func (s *callService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Shutdown ends every live call, exporting their reports, then waits for
// the call loops to exit or ctx to expire.
func (s *callService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	calls := make([]*LiveCall, 0, len(s.live))
	for _, lc := range s.live {
		calls = append(calls, lc)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, lc := range calls {
		wg.Add(1)
		go func(lc *LiveCall) {
			defer wg.Done()
			_, _ = lc.Stop(ctx, "shutdown")
		}(lc)
	}
	wg.Wait()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.d.Log.Warn("shutdown timed out with calls still running")
	}
}
