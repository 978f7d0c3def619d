package session

// State is the connection lifecycle state. The numeric values match the
// secplugin_session_state gauge.
type State int32

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Ready
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateHook observes state transitions. Hooks run synchronously on the
// goroutine that changed the state and must not block.
type StateHook func(from, to State)
