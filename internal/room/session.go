package room

import "sync"

// sessionBuffer bounds the per-session outbound queue. Broadcasts are
// best-effort: a session that cannot keep up has frames dropped rather
// than stalling the actor.
const sessionBuffer = 32

// Session is one live bidirectional connection as seen by the actor.
// The transport layer reads Outbound and watches Done; everything else
// is owned by the actor goroutine.
type Session struct {
	ID string

	out    chan []byte
	done   chan struct{}
	once   sync.Once
	reason string
}

// NewSession builds a session for a freshly assigned client id.
func NewSession(clientID string) *Session {
	return &Session{
		ID:   clientID,
		out:  make(chan []byte, sessionBuffer),
		done: make(chan struct{}),
	}
}

// Outbound is the stream of marshaled server messages for this session.
func (s *Session) Outbound() <-chan []byte {
	return s.out
}

// Done is closed when the actor force-closes the session (finish or
// expiry). CloseReason is valid once Done is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// CloseReason returns the reason the actor closed the session.
func (s *Session) CloseReason() string {
	return s.reason
}

// send queues a payload without blocking. Actor-side only.
func (s *Session) send(payload []byte) {
	select {
	case s.out <- payload:
	default:
		// Drop if slow consumer.
	}
}

// close marks the session ended. Actor-side only; idempotent.
func (s *Session) close(reason string) {
	s.once.Do(func() {
		s.reason = reason
		close(s.done)
	})
}
