package realtime

// Status represents the current state of the realtime connection.
type Status int

const (
	// StatusDisconnected means the client is not connected.
	StatusDisconnected Status = iota

	// StatusConnecting means the client is establishing a connection.
	StatusConnecting

	// StatusConnected means the client is connected and ready.
	StatusConnected

	// StatusError means the last connection attempt failed. The retry
	// loop keeps running until Stop is called.
	StatusError
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// StatusChange is delivered to status observers on every transition.
type StatusChange struct {
	Old Status
	New Status
	Err error // set when the transition was caused by a failure
}

// ConnState is a snapshot of the connection for UI badges and diagnostics.
type ConnState struct {
	Status  Status
	Retries int
	LastErr error
}
