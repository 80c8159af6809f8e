package station

import (
	"context"
	"time"
)

// Request is a protocol-neutral encoded command.
type Request struct {
	Command Command
	Payload string
	// Wait is how long the instrument may legitimately take before
	// answering (e.g. a measurement fetch); transports extend their
	// timeout by it.
	Wait time.Duration
	// Accept reports whether a received line answers this request. Lines
	// it rejects are discarded. Nil accepts the first line.
	Accept func(payload string) bool
}

// Reply is the raw answer to a Request.
type Reply struct {
	Payload string
}

// Codec turns commands into requests and replies into fields for one
// vendor protocol. Implementations are bound once per session.
type Codec interface {
	Name() string
	Capabilities() CapabilitySet
	// Encode returns an error wrapping ErrUnsupported when the driver has
	// no such command.
	Encode(cmd Command, p Params) (Request, error)
	// Decode returns a *DeviceError when the instrument reported a fault
	// and any other error when the payload cannot be parsed.
	Decode(cmd Command, reply Reply) (Fields, error)
}

// Transport delivers a request and returns the reply. The returned error is
// the per-call link status; there is no shared state between calls.
type Transport interface {
	Send(ctx context.Context, req Request) (Reply, error)
}

// Exchanger is a line-oriented request/reply link such as
// serialmux.SerialMux.
type Exchanger interface {
	ExchangeMatch(ctx context.Context, command string, timeout time.Duration, accept func(line string) bool) (string, error)
}

// DefaultReplyTimeout is the link timeout before any request Wait is added.
const DefaultReplyTimeout = 5 * time.Second

// SerialTransport adapts an Exchanger to Transport.
type SerialTransport struct {
	link    Exchanger
	timeout time.Duration
}

// NewSerialTransport wraps link. A zero timeout uses DefaultReplyTimeout.
func NewSerialTransport(link Exchanger, timeout time.Duration) *SerialTransport {
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	return &SerialTransport{link: link, timeout: timeout}
}

// Send implements Transport.
func (t *SerialTransport) Send(ctx context.Context, req Request) (Reply, error) {
	line, err := t.link.ExchangeMatch(ctx, req.Payload, t.timeout+req.Wait, req.Accept)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Payload: line}, nil
}
