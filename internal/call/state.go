package call

// State is the turn-taking state of a call.
type State int

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
	// StateError is transient; it always resolves to Listening or Ended.
	StateError
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateThinking:
		return "THINKING"
	case StateSpeaking:
		return "SPEAKING"
	case StateError:
		return "ERROR"
	case StateEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}
