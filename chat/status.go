package chat

// ConnectionStatus represents the state of a federation's stream session.
type ConnectionStatus uint8

const (
	// ConnectionOffline means no transport is up.
	ConnectionOffline ConnectionStatus = iota
	// ConnectionConnecting means a transport is being established.
	ConnectionConnecting
	// ConnectionOnline means the stream is negotiated and usable.
	ConnectionOnline
	// ConnectionError means the last connection attempt failed.
	ConnectionError
)

// String returns a human-readable form of the status.
func (s ConnectionStatus) String() string {
	switch s {
	case ConnectionConnecting:
		return "connecting"
	case ConnectionOnline:
		return "online"
	case ConnectionError:
		return "error"
	default:
		return "offline"
	}
}
