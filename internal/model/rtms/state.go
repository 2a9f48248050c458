package rtms

// State is a Session lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateSubscribed State = "subscribed"
	StateStreaming  State = "streaming"
	StateClosed     State = "closed"
	StateErrored    State = "errored"
)

// Terminal reports whether no further transitions are possible except Close.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}
