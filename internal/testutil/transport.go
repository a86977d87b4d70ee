package testutil

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/roach88/gridsync/internal/conn"
	"github.com/roach88/gridsync/internal/ir"
)

// ErrSocketClosed is returned by MemorySocket after Close.
var ErrSocketClosed = errors.New("memory socket closed")

// deliveryTimeout bounds how long Push waits for the reader goroutine.
const deliveryTimeout = 5 * time.Second

// MemoryDialer is an in-memory conn.Dialer. Every Dial creates a fresh
// MemorySocket unless Fail is set.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryDialer struct {
	mu      sync.Mutex
	fail    error
	sockets []*MemorySocket
	urls    []string
	headers []http.Header
}

// NewMemoryDialer creates a dialer that always succeeds.
func NewMemoryDialer() *MemoryDialer {
	return &MemoryDialer{}
}

// Fail makes subsequent dials return err. A nil err restores success.
func (d *MemoryDialer) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

// Dial implements conn.Dialer.
func (d *MemoryDialer) Dial(ctx context.Context, url string, header http.Header) (conn.Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	d.headers = append(d.headers, header.Clone())
	if d.fail != nil {
		return nil, d.fail
	}
	s := NewMemorySocket()
	d.sockets = append(d.sockets, s)
	return s, nil
}

// Dials returns the number of dial attempts, including failed ones.
func (d *MemoryDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

// LastURL returns the URL of the most recent dial attempt.
func (d *MemoryDialer) LastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.urls) == 0 {
		return ""
	}
	return d.urls[len(d.urls)-1]
}

// LastHeader returns the handshake header of the most recent dial attempt.
func (d *MemoryDialer) LastHeader() http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.headers) == 0 {
		return nil
	}
	return d.headers[len(d.headers)-1]
}

// Socket returns the most recently created socket, or nil.
func (d *MemoryDialer) Socket() *MemorySocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

type delivery struct {
	data []byte
	err  error
	done chan struct{}
}

// MemorySocket is the client end of an in-memory session. The test plays
// the server: Push delivers an inbound frame, Sent returns what the client
// wrote.
//
// Push returns only after the reader has come back for the next message,
// so every frame handler has run by then.
type MemorySocket struct {
	inbound chan delivery
	closed  chan struct{}

	mu        sync.Mutex
	sent      [][]byte
	isClosed  bool
	inFlight  chan struct{}
	closeOnce sync.Once
}

// NewMemorySocket creates an open socket.
func NewMemorySocket() *MemorySocket {
	return &MemorySocket{
		inbound: make(chan delivery),
		closed:  make(chan struct{}),
	}
}

// ReadMessage implements conn.Socket.
func (s *MemorySocket) ReadMessage() ([]byte, error) {
	s.finishInFlight()

	select {
	case d := <-s.inbound:
		if d.err != nil {
			close(d.done)
			return nil, d.err
		}
		s.mu.Lock()
		s.inFlight = d.done
		s.mu.Unlock()
		return d.data, nil
	case <-s.closed:
		return nil, ErrSocketClosed
	}
}

// WriteMessage implements conn.Socket.
func (s *MemorySocket) WriteMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return ErrSocketClosed
	}
	s.sent = append(s.sent, append([]byte(nil), data...))
	return nil
}

// Close implements conn.Socket.
func (s *MemorySocket) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.isClosed = true
		s.mu.Unlock()
		close(s.closed)
	})
	s.finishInFlight()
	return nil
}

// Closed reports whether Close was called.
func (s *MemorySocket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosed
}

func (s *MemorySocket) finishInFlight() {
	s.mu.Lock()
	done := s.inFlight
	s.inFlight = nil
	s.mu.Unlock()
	if done != nil {
		close(done)
	}
}

// Push delivers one inbound frame and waits until the client has
// processed it.
func (s *MemorySocket) Push(data []byte) error {
	return s.deliver(delivery{data: append([]byte(nil), data...), done: make(chan struct{})})
}

// PushJSON is Push for a string literal.
func (s *MemorySocket) PushJSON(frame string) error {
	return s.Push([]byte(frame))
}

// Drop makes the pending read fail with err, simulating a lost session.
func (s *MemorySocket) Drop(err error) error {
	return s.deliver(delivery{err: err, done: make(chan struct{})})
}

func (s *MemorySocket) deliver(d delivery) error {
	timer := time.NewTimer(deliveryTimeout)
	defer timer.Stop()

	select {
	case s.inbound <- d:
	case <-s.closed:
		return ErrSocketClosed
	case <-timer.C:
		return errors.New("memory socket: no reader")
	}

	select {
	case <-d.done:
		return nil
	case <-timer.C:
		return errors.New("memory socket: frame not processed")
	}
}

// Sent returns a copy of every frame the client wrote.
func (s *MemorySocket) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// SentCommands decodes every frame the client wrote.
func (s *MemorySocket) SentCommands() ([]ir.Command, error) {
	var out []ir.Command
	for _, data := range s.Sent() {
		cmd, err := ir.DecodeCommand(data)
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}

// Reset forgets the recorded outbound frames.
func (s *MemorySocket) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}
