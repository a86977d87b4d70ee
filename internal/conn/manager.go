package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/roach88/gridsync/internal/ir"
)

// State is the session state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ResourceKind is the kind of remote resource a session is bound to.
type ResourceKind string

const (
	KindTable  ResourceKind = "table"
	KindQuery  ResourceKind = "query"
	KindScript ResourceKind = "script"
)

// Resource identifies the remote resource behind a session.
type Resource struct {
	Kind ResourceKind
	Name string
}

// Table returns the resource for a named table.
func Table(name string) Resource {
	return Resource{Kind: KindTable, Name: name}
}

// String returns "kind/name".
func (r Resource) String() string {
	return string(r.Kind) + "/" + r.Name
}

// path returns the URL path segment for the resource.
func (r Resource) path() string {
	return string(r.Kind) + "/" + url.PathEscape(r.Name)
}

// Default fetch window requested right after a session opens.
const (
	DefaultFetchBegin = 0
	DefaultFetchEnd   = 500
)

// Config holds connection parameters.
type Config struct {
	// BaseURL is the websocket endpoint root, e.g. "ws://localhost:1845".
	BaseURL string

	// Token is an optional bearer token sent on the handshake.
	Token string

	// FetchBegin and FetchEnd bound the first getTableData request.
	FetchBegin int
	FetchEnd   int
}

// FrameHandler receives each decoded inbound frame.
type FrameHandler func(ir.Frame)

// StateHandler receives state transitions. err is non-nil when the
// transition was caused by a failure.
type StateHandler func(State, error)

// SendHandler observes each command written to the transport.
type SendHandler func(ir.Command)

// Manager owns one logical streaming session.
//
// Thread-safety: all methods are safe for concurrent use. Handlers are
// invoked without the manager's lock held, from the reader goroutine for
// frames and session loss, and from the calling goroutine for other state
// changes. Handlers run on the reader goroutine must not call Open or
// Close: once Close returns, nothing from the closed session is delivered,
// and Close waits for in-flight handlers to get there.
type Manager struct {
	cfg    Config
	dialer Dialer
	now    func() time.Time

	// deliver is held while a reader goroutine delivers and while a session
	// is torn down, so a replaced session cannot hand over a late frame.
	deliver sync.Mutex

	mu       sync.Mutex
	state    State
	resource Resource
	sock     Socket
	gen      int // incremented per session; stale reader goroutines compare against it

	frameHandlers []FrameHandler
	stateHandlers []StateHandler
	sendHandlers  []SendHandler
}

// Option configures a Manager.
type Option func(*Manager)

// WithNow overrides the time source used for token expiry checks.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a disconnected manager.
// A zero fetch window defaults to 0..500.
func NewManager(cfg Config, dialer Dialer, opts ...Option) *Manager {
	if cfg.FetchBegin == 0 && cfg.FetchEnd == 0 {
		cfg.FetchBegin = DefaultFetchBegin
		cfg.FetchEnd = DefaultFetchEnd
	}
	m := &Manager{
		cfg:    cfg,
		dialer: dialer,
		now:    time.Now,
		state:  StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnFrame registers a handler invoked once per inbound frame.
// Handlers run in registration order.
func (m *Manager) OnFrame(h FrameHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameHandlers = append(m.frameHandlers, h)
}

// OnState registers a handler invoked on every state transition.
func (m *Manager) OnState(h StateHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateHandlers = append(m.stateHandlers, h)
}

// OnSend registers a handler invoked after each successful send.
func (m *Manager) OnSend(h SendHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendHandlers = append(m.sendHandlers, h)
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Resource returns the resource of the current or last session.
func (m *Manager) Resource() Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resource
}

// URL returns the websocket URL for a resource.
func (m *Manager) URL(res Resource) string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + "/" + res.path()
}

// Open establishes a session for res, then requests the schema and the
// first page of rows.
//
// Any existing session is closed first. On failure the manager is left
// Disconnected and a *ConnectionError is returned; calling Open again
// retries.
func (m *Manager) Open(ctx context.Context, res Resource) error {
	m.closeSession(nil)

	m.mu.Lock()
	m.resource = res
	m.mu.Unlock()

	if err := CheckToken(m.cfg.Token, m.now()); err != nil {
		cerr := &ConnectionError{Code: ErrCodeAuth, Resource: res.String(), Err: err}
		m.transition(StateDisconnected, cerr)
		return cerr
	}

	m.transition(StateConnecting, nil)

	header := http.Header{}
	if m.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+m.cfg.Token)
	}

	target := m.URL(res)
	slog.Info("opening session", "resource", res.String(), "url", target)

	sock, err := m.dialer.Dial(ctx, target, header)
	if err != nil {
		cerr := &ConnectionError{Code: ErrCodeDial, Resource: res.String(), Err: err}
		m.transition(StateDisconnected, cerr)
		return cerr
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.sock = sock
	m.mu.Unlock()

	m.transition(StateConnected, nil)
	go m.readLoop(gen, sock)

	if err := m.Send(ir.GetTable()); err != nil {
		return err
	}
	if err := m.Send(ir.GetTableData(m.cfg.FetchBegin, m.cfg.FetchEnd)); err != nil {
		return err
	}

	slog.Info("session open", "resource", res.String())
	return nil
}

// Retry reopens the last resource.
func (m *Manager) Retry(ctx context.Context) error {
	res := m.Resource()
	if res.Name == "" {
		return &ConnectionError{Code: ErrCodeDial, Err: errors.New("no resource to retry")}
	}
	return m.Open(ctx, res)
}

// Send serializes cmd and writes it to the session.
// Fire-and-forget: returns once the transport accepted the frame.
func (m *Manager) Send(cmd ir.Command) error {
	data, err := cmd.Encode()
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.state != StateConnected || m.sock == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	sock := m.sock
	res := m.resource
	handlers := append([]SendHandler(nil), m.sendHandlers...)
	m.mu.Unlock()

	if err := sock.WriteMessage(data); err != nil {
		return &ConnectionError{Code: ErrCodeSend, Resource: res.String(), Err: err}
	}

	slog.Debug("command sent", "resource", res.String(), "action", cmd.Action)
	for _, h := range handlers {
		h(cmd)
	}
	return nil
}

// Close tears down the session. Later sends fail with ErrNotConnected.
func (m *Manager) Close() error {
	return m.closeSession(nil)
}

// closeSession drops the current socket (if any) and moves to
// Disconnected, reporting cause to state handlers.
func (m *Manager) closeSession(cause error) error {
	m.deliver.Lock()
	m.mu.Lock()
	sock := m.sock
	wasOpen := m.state != StateDisconnected
	m.sock = nil
	m.gen++
	m.mu.Unlock()
	m.deliver.Unlock()

	var err error
	if sock != nil {
		err = sock.Close()
	}
	if wasOpen {
		m.transition(StateDisconnected, cause)
	}
	return err
}

// readLoop delivers frames until the socket fails or the session is
// replaced.
func (m *Manager) readLoop(gen int, sock Socket) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			m.lost(gen, sock, err)
			return
		}

		frame, err := ir.DecodeFrame(data)
		if err != nil {
			slog.Warn("dropping undecodable frame", "error", err, "bytes", len(data))
			continue
		}

		if !m.deliverFrame(gen, frame) {
			return
		}
	}
}

// deliverFrame hands frame to the handlers unless the session was
// replaced. Returns false for a stale session.
func (m *Manager) deliverFrame(gen int, frame ir.Frame) bool {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	handlers := append([]FrameHandler(nil), m.frameHandlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(frame)
	}
	return true
}

// lost reports a read failure on the current session. A stale session
// exits quietly.
func (m *Manager) lost(gen int, sock Socket, cause error) {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	current := m.gen == gen
	var res Resource
	if current {
		m.sock = nil
		m.gen++
		res = m.resource
	}
	m.mu.Unlock()

	if !current {
		return
	}
	slog.Warn("session lost", "resource", res.String(), "error", cause)
	_ = sock.Close()
	m.transition(StateDisconnected, &ConnectionError{Code: ErrCodeLost, Resource: res.String(), Err: cause})
}

// transition records the new state and notifies handlers outside the lock.
func (m *Manager) transition(s State, cause error) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	handlers := append([]StateHandler(nil), m.stateHandlers...)
	m.mu.Unlock()

	slog.Debug("connection state", "from", prev.String(), "to", s.String())
	for _, h := range handlers {
		h(s, cause)
	}
}
