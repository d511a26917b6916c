package stream

// State is the lifecycle stage of a session.
type State int32

const (
	// StateAwaiting: connected, no symbols tracked yet (or cleared).
	StateAwaiting State = iota
	// StateStreaming: pushing a batch every interval.
	StateStreaming
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaiting:
		return "awaiting_subscription"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
