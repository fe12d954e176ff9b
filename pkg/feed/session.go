package feed

// SessionStatus is the observable connectivity state of the client.
type SessionStatus int

const (
	StatusDisconnected SessionStatus = iota
	StatusConnecting
	StatusConnected
	StatusFailedRetrying
)

func (s SessionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusFailedRetrying:
		return "failed, retrying"
	}
	return "disconnected"
}

// Session represents one live transport connection. Every session
// carries a strictly increasing epoch; events tagged with a superseded
// epoch never reach the engine state.
type Session struct {
	epoch int64
	conn  Conn
}

// Epoch returns the session identity used for stale-event filtering.
func (s *Session) Epoch() int64 {
	return s.epoch
}

// Subscribe establishes a topic subscription on this session.
func (s *Session) Subscribe(subject string, handler func(data []byte)) (Subscription, error) {
	return s.conn.Subscribe(subject, handler)
}
