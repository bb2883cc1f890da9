package wssrecv

// State is a step in the life of a single receive.
type State int

const (
	StateStart State = iota
	StateTLSContextBuilt
	StateConnected
	StateMessageReceived
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateTLSContextBuilt:
		return "tls-context-built"
	case StateConnected:
		return "connected"
	case StateMessageReceived:
		return "message-received"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// CanTransition reports whether moving from s to next is allowed.
// Every non-terminal state may fail; otherwise states advance strictly in order.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	return next == s+1
}
