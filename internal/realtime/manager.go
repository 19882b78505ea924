package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Bigdez55/Elson-TB2-sub005/internal/dispatch"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/protocol"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/session"
)

// Errors surfaced by the Manager.
var (
	ErrNotConnected      = errors.New("not connected")
	ErrAlreadyClosed     = errors.New("already closed")
	ErrNoToken           = errors.New("authentication required but no token available")
	ErrAuthFailed        = errors.New("authentication rejected")
	ErrDisconnected      = errors.New("disconnected before connect completed")
	ErrAttemptsExhausted = errors.New("reconnect attempts exhausted")
)

// Config configures the connection lifecycle manager. All fields have
// defaults; see DefaultConfig.
type Config struct {
	URL                  string        // Streaming endpoint
	AuthRequired         bool          // Whether the authenticate handshake is required
	HeartbeatInterval    time.Duration // Interval between ping envelopes
	ReconnectInterval    time.Duration // Fixed wait between reconnect attempts
	MaxReconnectAttempts int           // Attempt cap before terminal error
	HandshakeTimeout     time.Duration // Dial deadline
	WriteTimeout         time.Duration // Write deadline for sends
	BufferSize           int           // Inbound frame buffer size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:                  "ws://localhost:8000/ws",
		AuthRequired:         true,
		HeartbeatInterval:    30 * time.Second,
		ReconnectInterval:    3 * time.Second,
		MaxReconnectAttempts: 5,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		BufferSize:           1000,
	}
}

// StateListener observes state transitions. Listeners run synchronously with
// the transition, in registration order, before the next inbound frame is
// processed.
type StateListener func(State)

// Stats is a snapshot of manager runtime state.
type Stats struct {
	State             State  `json:"state"`
	SessionID         string `json:"session_id,omitempty"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	LastError         string `json:"last_error,omitempty"`
}

// connectAttempt coalesces concurrent Connect calls onto one outcome.
type connectAttempt struct {
	done chan struct{}
	err  error
}

func (a *connectAttempt) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return a.err
	}
}

// Manager drives the connection state machine. It owns at most one Client at
// a time and is constructed once per session.
type Manager struct {
	cfg        Config
	tokens     session.TokenSource
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger

	// Test seam; defaults to NewClient.
	newClient func(ClientConfig, *slog.Logger) Client

	mu             sync.Mutex
	state          State
	lastErr        error
	client         Client
	connDone       chan struct{} // closed when the current transport is torn down
	gen            int           // transport generation; stale callbacks bail out
	attempt        *connectAttempt
	attempts       int // consecutive reconnect attempts
	sessionID      string
	reconnectTimer *time.Timer
	listeners      []StateListener
}

// NewManager creates a connection lifecycle manager. The manager registers
// itself on the dispatcher for the control message types it consumes
// (auth_success, auth_failed, pong).
func NewManager(cfg Config, tokens session.TokenSource, d *dispatch.Dispatcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:        cfg,
		tokens:     tokens,
		dispatcher: d,
		logger:     logger.With("component", "realtime"),
		newClient:  NewClient,
		state:      StateDisconnected,
	}

	d.Handle(protocol.TypeAuthSuccess, m.handleAuthSuccess)
	d.Handle(protocol.TypeAuthFailed, m.handleAuthFailed)
	d.Handle(protocol.TypePong, m.handlePong)

	return m
}

// OnStateChange registers a state transition listener.
func (m *Manager) OnStateChange(l StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Authenticated reports whether the session is fully established.
func (m *Manager) Authenticated() bool {
	return m.State() == StateAuthenticated
}

// LastError returns the most recent connection-level error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Attempts returns the consecutive reconnect attempt count.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Stats returns a snapshot of manager state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		State:             m.state,
		SessionID:         m.sessionID,
		ReconnectAttempts: m.attempts,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// Connect establishes and authenticates the connection. It is idempotent: a
// call while a connect is already in flight joins the pending outcome instead
// of opening a second transport, and a call while authenticated returns nil.
//
// The credential token is read at call time. With authentication required and
// no token available, Connect resolves immediately with ErrNoToken and no
// transport is opened.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()

	if m.state == StateAuthenticated {
		m.mu.Unlock()
		return nil
	}
	if m.attempt != nil {
		a := m.attempt
		m.mu.Unlock()
		return a.wait(ctx)
	}

	// An explicit connect restarts the retry budget and preempts any pending
	// backoff timer.
	m.stopReconnectTimerLocked()
	m.attempts = 0

	token := m.readToken()
	if m.cfg.AuthRequired && token == "" {
		m.lastErr = ErrNoToken
		notify := m.transitionLocked(StateAuthorizationFailed)
		m.mu.Unlock()
		notify()
		return ErrNoToken
	}

	a := &connectAttempt{done: make(chan struct{})}
	m.attempt = a
	m.mu.Unlock()

	go m.runConnect(token)

	return a.wait(ctx)
}

// Disconnect tears the connection down with a normal-closure code, cancels
// the heartbeat and any pending reconnect timer, and resets the attempt
// counter. It is safe to call from any state, including Disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()

	m.stopReconnectTimerLocked()
	m.teardownTransportLocked()
	resolve := m.detachAttemptLocked(ErrDisconnected)
	m.attempts = 0
	m.lastErr = nil

	if m.state == StateDisconnected {
		m.mu.Unlock()
		resolve()
		return
	}
	notify := m.transitionLocked(StateDisconnected)
	m.mu.Unlock()
	notify()
	resolve()

	m.logger.Info("disconnected")
}

// Send serializes and writes an envelope. It fails with ErrNotConnected
// unless the transport is open.
func (m *Manager) Send(env protocol.Envelope) error {
	m.mu.Lock()
	c := m.client
	s := m.state
	m.mu.Unlock()

	if c == nil || !s.Live() {
		return ErrNotConnected
	}

	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return c.Send(data)
}

// readToken fetches the credential token from the session source.
func (m *Manager) readToken() string {
	if m.tokens == nil {
		return ""
	}
	return m.tokens.Token()
}

// transitionLocked changes state and returns the listener notification to run
// after the lock is released.
func (m *Manager) transitionLocked(s State) func() {
	if m.state == s {
		return func() {}
	}
	m.state = s
	m.logger.Debug("state change", "state", s)

	ls := append([]StateListener(nil), m.listeners...)
	return func() {
		for _, l := range ls {
			l(s)
		}
	}
}

// detachAttemptLocked removes the pending connect attempt and returns the
// completion to run once listeners have observed the transition, so a
// resolved Connect never races the registry flush.
func (m *Manager) detachAttemptLocked(err error) func() {
	a := m.attempt
	if a == nil {
		return func() {}
	}
	m.attempt = nil
	return func() {
		a.err = err
		close(a.done)
	}
}

// teardownTransportLocked closes the current transport and invalidates its
// callbacks.
func (m *Manager) teardownTransportLocked() {
	m.gen++
	if m.connDone != nil {
		close(m.connDone)
		m.connDone = nil
	}
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
}

func (m *Manager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// dialURL embeds the session id and credential token into the endpoint query
// so the server can reject bad credentials at handshake time. The token is
// sent again as an explicit authenticate envelope once the transport opens.
func (m *Manager) dialURL(token string) string {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return m.cfg.URL
	}
	q := u.Query()
	q.Set("client_id", m.sessionID)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// runConnect performs one full connect+authenticate sequence.
func (m *Manager) runConnect(token string) {
	m.mu.Lock()
	if m.attempt == nil {
		// Disconnected before the sequence started.
		m.mu.Unlock()
		return
	}

	m.gen++
	gen := m.gen
	m.sessionID = uuid.NewString()
	notify := m.transitionLocked(StateConnecting)

	clientCfg := ClientConfig{
		URL:              m.dialURL(token),
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}
	c := m.newClient(clientCfg, m.logger.With("session_id", m.sessionID))
	m.mu.Unlock()
	notify()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	err := c.Connect(ctx)
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		// Disconnected while dialing.
		m.mu.Unlock()
		c.Close()
		return
	}

	if err != nil {
		m.mu.Unlock()
		c.Close()
		m.transportFailed(gen, fmt.Errorf("open transport: %w", err))
		return
	}

	m.client = c
	connDone := make(chan struct{})
	m.connDone = connDone
	notify = m.transitionLocked(StateConnected)
	m.mu.Unlock()
	notify()

	go m.readLoop(c, gen, connDone)
	go m.heartbeatLoop(connDone)

	if !m.cfg.AuthRequired {
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.attempts = 0
		m.lastErr = nil
		notify = m.transitionLocked(StateAuthenticated)
		resolve := m.detachAttemptLocked(nil)
		m.mu.Unlock()
		notify()
		resolve()
		return
	}

	// Token already traveled in the dial URL; servers that validate after the
	// handshake need the explicit envelope too.
	if err := m.Send(protocol.NewAuthenticate(token)); err != nil {
		m.logger.Warn("failed to send authenticate envelope", "error", err)
	}
}

// readLoop forwards inbound frames to the dispatcher until the transport
// closes. Frames are dispatched in delivery order from a single goroutine.
func (m *Manager) readLoop(c Client, gen int, connDone chan struct{}) {
	for {
		select {
		case <-connDone:
			return
		case err := <-c.Errors():
			m.transportFailed(gen, err)
			return
		case msg, ok := <-c.Messages():
			if !ok {
				m.transportFailed(gen, ErrNotConnected)
				return
			}
			m.dispatcher.Dispatch(msg.Data)
		}
	}
}

// heartbeatLoop sends ping envelopes on a fixed interval while the transport
// is open. A missed pong does not tear the connection down; liveness is
// inferred from the transport close event.
func (m *Manager) heartbeatLoop(connDone chan struct{}) {
	if m.cfg.HeartbeatInterval <= 0 {
		return
	}

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-connDone:
			return
		case <-ticker.C:
			if err := m.Send(protocol.NewPing()); err != nil {
				m.logger.Debug("heartbeat send failed", "error", err)
			}
		}
	}
}

// transportFailed classifies an unclean close or dial failure and schedules
// the next reconnect attempt, or parks in terminal Error once the cap is hit.
func (m *Manager) transportFailed(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		// A newer transport exists or the close was intentional.
		m.mu.Unlock()
		return
	}

	m.teardownTransportLocked()
	m.lastErr = err
	resolve := m.detachAttemptLocked(err)
	notifyErr := m.transitionLocked(StateError)

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.lastErr = fmt.Errorf("%w after %d attempts: %v", ErrAttemptsExhausted, m.attempts, err)
		m.mu.Unlock()
		notifyErr()
		resolve()
		m.logger.Error("reconnect attempts exhausted", "attempts", m.cfg.MaxReconnectAttempts, "error", err)
		return
	}

	m.attempts++
	attemptNo := m.attempts
	notifyRec := m.transitionLocked(StateReconnecting)
	m.reconnectTimer = time.AfterFunc(m.cfg.ReconnectInterval, m.retry)
	m.mu.Unlock()

	notifyErr()
	notifyRec()
	resolve()

	m.logger.Warn("connection lost, scheduling reconnect",
		"attempt", attemptNo,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"interval", m.cfg.ReconnectInterval,
		"error", err,
	)
}

// retry re-runs the full connect+authenticate sequence after the backoff
// interval.
func (m *Manager) retry() {
	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}

	token := m.readToken()
	if m.cfg.AuthRequired && token == "" {
		m.lastErr = ErrNoToken
		notify := m.transitionLocked(StateAuthorizationFailed)
		m.mu.Unlock()
		notify()
		return
	}

	if m.attempt == nil {
		m.attempt = &connectAttempt{done: make(chan struct{})}
	}
	m.mu.Unlock()

	m.runConnect(token)
}

// handleAuthSuccess completes the handshake and resolves the pending connect.
func (m *Manager) handleAuthSuccess(protocol.Message) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	m.attempts = 0
	m.lastErr = nil
	sid := m.sessionID
	notify := m.transitionLocked(StateAuthenticated)
	resolve := m.detachAttemptLocked(nil)
	m.mu.Unlock()
	notify()
	resolve()

	m.logger.Info("authenticated", "session_id", sid)
}

// handleAuthFailed parks the manager in AuthorizationFailed. No automatic
// retry happens until a fresh Connect with new credentials.
func (m *Manager) handleAuthFailed(msg protocol.Message) {
	af, _ := msg.(protocol.AuthFailed)

	err := ErrAuthFailed
	if af.Reason != "" {
		err = fmt.Errorf("%w: %s", ErrAuthFailed, af.Reason)
	}

	m.mu.Lock()
	m.stopReconnectTimerLocked()
	m.teardownTransportLocked()
	m.lastErr = err
	notify := m.transitionLocked(StateAuthorizationFailed)
	resolve := m.detachAttemptLocked(err)
	m.mu.Unlock()
	notify()
	resolve()

	m.logger.Error("authentication failed", "reason", af.Reason)
}

func (m *Manager) handlePong(protocol.Message) {
	m.logger.Debug("pong received")
}
