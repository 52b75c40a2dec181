package call

import "github.com/yoockh/medivoice/internal/models"

// event is everything the orchestrator loop consumes. Events produced by a
// handle carry that handle's generation.
type event interface{ isEvent() }

type recognized struct {
	gen   uint64
	text  string
	final bool
}

type recognitionEnded struct {
	gen uint64
	err error
}

type synthesisStarted struct{ gen uint64 }

type synthesisDone struct {
	gen       uint64
	err       error
	cancelled bool
}

type inferenceDone struct {
	gen   uint64
	reply string
	err   error
}

type noSpeechTimeout struct{ gen uint64 }

type startRequested struct{ reply chan error }

// transcriptSubmitted is a final user utterance from outside the
// recognizer, e.g. typed text or an interruption while the agent speaks.
type transcriptSubmitted struct{ text string }

type stopRequested struct {
	reason string
	reply  chan stopResult
}

type stopResult struct {
	report *models.Report
	err    error
}

func (recognized) isEvent()          {}
func (recognitionEnded) isEvent()    {}
func (synthesisStarted) isEvent()    {}
func (synthesisDone) isEvent()       {}
func (inferenceDone) isEvent()       {}
func (noSpeechTimeout) isEvent()     {}
func (startRequested) isEvent()      {}
func (transcriptSubmitted) isEvent() {}
func (stopRequested) isEvent()       {}
