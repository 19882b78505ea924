package realtime

// State is the connection lifecycle state. Exactly one value is active per
// Manager at any time; transitions happen only inside the Manager.
type State string

const (
	StateDisconnected        State = "disconnected"
	StateConnecting          State = "connecting"
	StateConnected           State = "connected"
	StateAuthenticated       State = "authenticated"
	StateReconnecting        State = "reconnecting"
	StateError               State = "error"
	StateAuthorizationFailed State = "authorization_failed"
)

// String implements fmt.Stringer.
func (s State) String() string { return string(s) }

// Live reports whether the transport is open and writable.
func (s State) Live() bool {
	return s == StateConnected || s == StateAuthenticated
}
