package station

import (
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
)

// ErrSessionBusy is returned by Acquire while another caller holds the
// session.
var ErrSessionBusy = errors.New("instrument session already in use")

// Session owns one transport and one driver for the lifetime of a
// connection. Only one search may hold it at a time.
type Session struct {
	*Gateway

	id     string
	closer io.Closer
	inUse  sync.Mutex
}

// NewSession binds codec and transport into a session. closer, if non-nil,
// is closed by Close (normally the serial mux).
func NewSession(codec Codec, transport Transport, closer io.Closer, opts ...GatewayOption) *Session {
	return &Session{
		Gateway: NewGateway(codec, transport, opts...),
		id:      uuid.New().String(),
		closer:  closer,
	}
}

// ID returns the session id used to correlate log lines and reports.
func (s *Session) ID() string { return s.id }

// Acquire claims exclusive use. It fails fast rather than queueing.
func (s *Session) Acquire() (release func(), err error) {
	if !s.inUse.TryLock() {
		return nil, ErrSessionBusy
	}
	return s.inUse.Unlock, nil
}

// Close releases the underlying link.
func (s *Session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
