package station

import (
	"errors"
	"fmt"
)

// Normalised command failures. Every failed Result unwraps to exactly one.
var (
	ErrTransport   = errors.New("TRANSPORT")
	ErrProtocol    = errors.New("PROTOCOL")
	ErrInstrument  = errors.New("INSTRUMENT")
	ErrUnsupported = errors.New("UNSUPPORTED")
)

// ErrorKind classifies a failed command.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTransport
	KindProtocol
	KindInstrument
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindInstrument:
		return "instrument"
	case KindUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindProtocol:
		return ErrProtocol
	case KindInstrument:
		return ErrInstrument
	case KindUnsupported:
		return ErrUnsupported
	default:
		return nil
	}
}

// CommandError wraps the underlying failure with its normalised kind and
// keeps the raw reply for diagnostics.
type CommandError struct {
	Command Command
	Kind    ErrorKind
	Code    int    // device return code, KindInstrument only
	Raw     string // reply payload as received, if any
	Err     error
}

func (e *CommandError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("%s: %s failure: %v (reply %q)", e.Command, e.Kind, e.Err, e.Raw)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Command, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *CommandError) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}

// DeviceError is returned by codecs when the instrument answered with a
// fault code (no prism, out of range, motor error).
type DeviceError struct {
	Code    int
	Message string
}

func (e *DeviceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("device error %d", e.Code)
	}
	return fmt.Sprintf("device error %d: %s", e.Code, e.Message)
}
