package timeline

// ConnectionState describes the streaming connection for presentation
// purposes. It is never persisted.
type ConnectionState struct {
	Kind    ConnectionKind
	Message string // set only for ConnectionError
}

// ConnectionKind enumerates the connection states.
type ConnectionKind int

const (
	// Disconnected is the idle state, before a stream opens and after it
	// closes for any reason.
	Disconnected ConnectionKind = iota
	// Connected means a live stream is open.
	Connected
	// ConnectionError carries a human-readable failure description. It is
	// produced by the consumer layer, not by the streaming client itself.
	ConnectionError
)

// StateDisconnected and StateConnected are the two message-free states.
var (
	StateDisconnected = ConnectionState{Kind: Disconnected}
	StateConnected    = ConnectionState{Kind: Connected}
)

// StateError builds an error state with the given message.
func StateError(msg string) ConnectionState {
	return ConnectionState{Kind: ConnectionError, Message: msg}
}

func (k ConnectionKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case ConnectionError:
		return "error"
	default:
		return "disconnected"
	}
}
