package session

// State is the lifecycle position of one viewer's session. Closed is
// terminal; a viewer that negotiates again gets a brand-new session.
type State int

const (
	StateIdle State = iota
	StateAttaching
	StateNegotiating
	StateAwaitingAnswer
	StateConnected
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttaching:
		return "attaching"
	case StateNegotiating:
		return "negotiating"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Teardown reasons, used for logging and the teardown counter.
const (
	ReasonPeerLeft         = "peer_left"
	ReasonTransportClosed  = "transport_closed"
	ReasonAnswerTimeout    = "answer_timeout"
	ReasonConnectionFailed = "connection_failed"
	ReasonEngineFailure    = "engine_failure"
	ReasonReplaced         = "replaced"
	ReasonShutdown         = "shutdown"
)
