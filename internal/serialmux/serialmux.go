// Serialmux provides an abstraction over a serial port with the ability for
// multiple clients to subscribe to lines from the serial port and to run
// request/reply exchanges against a single serial port device.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/station-orient/internal/monitoring"
	"github.com/banshee-data/station-orient/internal/timeutil"
)

var (
	ErrWriteFailed  = fmt.Errorf("failed to write to serial port")
	ErrReplyTimeout = errors.New("timed out waiting for reply")
	ErrClosed       = errors.New("serial mux closed")
)

// DefaultExchangeTimeout bounds an Exchange when the caller passes zero.
const DefaultExchangeTimeout = 5 * time.Second

// SerialMux is a generic serial port multiplexer that allows multiple clients to
// subscribe to lines from a single serial port.
type SerialMux[T SerialPorter] struct {
	port         T
	terminator   string
	clock        timeutil.Clock
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	exchangeMu   sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving line events from the serial
	// port. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command to the serial port.
	SendCommand(string) error
	// Exchange writes a command and returns the next non-empty line read
	// from the port. Exchanges are serialised.
	Exchange(ctx context.Context, command string, timeout time.Duration) (string, error)
	// ExchangeMatch is Exchange that skips lines accept rejects.
	ExchangeMatch(ctx context.Context, command string, timeout time.Duration, accept func(line string) bool) (string, error)
	// Monitor reads lines from the serial port and sends them to the
	// appropriate channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// Option configures a SerialMux.
type Option func(*muxConfig)

type muxConfig struct {
	terminator string
	clock      timeutil.Clock
}

// WithTerminator sets the line terminator appended to outgoing commands.
// GeoCOM instruments expect "\r\n".
func WithTerminator(term string) Option {
	return func(c *muxConfig) { c.terminator = term }
}

// WithClock replaces the clock used for exchange timeouts.
func WithClock(clock timeutil.Clock) Option {
	return func(c *muxConfig) { c.clock = clock }
}

// NewSerialMux creates a SerialMux instance backed by the given port.
func NewSerialMux[T SerialPorter](port T, opts ...Option) *SerialMux[T] {
	cfg := muxConfig{terminator: "\n", clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &SerialMux[T]{
		port:        port,
		terminator:  cfg.terminator,
		clock:       cfg.clock,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	return s.subscribe(0)
}

// subscribe registers a channel with the given buffer. Exchange uses a
// buffered channel so a reply arriving before it starts waiting is kept.
func (s *SerialMux[T]) subscribe(buffer int) (string, chan string) {
	id := randomID()
	ch := make(chan string, buffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SendCommand sends a command to the serial port.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, s.terminator) {
		command += s.terminator
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Exchange sends command and waits for the next non-empty line. A zero
// timeout uses DefaultExchangeTimeout.
func (s *SerialMux[T]) Exchange(ctx context.Context, command string, timeout time.Duration) (string, error) {
	return s.ExchangeMatch(ctx, command, timeout, nil)
}

// ExchangeMatch sends command and waits for the next non-empty line that
// accept reports as its reply. Rejected lines, such as a late answer to an
// earlier exchange that timed out, are dropped. A nil accept takes the first
// line.
func (s *SerialMux[T]) ExchangeMatch(ctx context.Context, command string, timeout time.Duration, accept func(line string) bool) (string, error) {
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}

	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()

	if s.isClosing() {
		return "", ErrClosed
	}

	id, ch := s.subscribe(4)
	defer s.Unsubscribe(id)

	monitoring.Debugf("serial tx %q", command)
	if err := s.SendCommand(command); err != nil {
		return "", err
	}

	timer := s.clock.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return "", ErrClosed
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if accept != nil && !accept(line) {
				monitoring.Debugf("serial rx %q dropped: not a reply to %q", line, command)
				continue
			}
			monitoring.Debugf("serial rx %q", line)
			return line, nil
		case <-timer.C():
			return "", fmt.Errorf("%w after %v: %q", ErrReplyTimeout, timeout, command)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Monitor monitors the serial port for lines and sends them to subscribers
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// start a goroutine to read from the serial port & send any lines that are scanned to linesChan.
	// and any errors to the scanErrChan
	//
	// the blocking scan.Scan will not interfere with our outer loop awaiting
	// lines & context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			if s.isClosing() {
				return nil
			}
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					if !s.isClosing() {
						return err
					}
				default:
				}
				return nil
			}
			if s.isClosing() {
				return nil
			}

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					// if the channel is full/blocking skip so as not to block the outer loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

// AttachAdminRoutes exposes a manual exchange endpoint and a live tail of the
// instrument link for field debugging.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("instrument-exchange", "send a raw command to the instrument and show its reply", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		reply, err := s.Exchange(r.Context(), command, 0)
		if err != nil {
			http.Error(w, fmt.Sprintf("Exchange failed: %v", err), http.StatusBadGateway)
			return
		}
		io.WriteString(w, fmt.Sprintf("%q -> %q\n", command, reply))
	})

	// API endpoint to issue Server-Side Events (SSE) in response to lines coming from the serial port.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload))); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	})
}
