package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chathub/internal/protocol"
	"chathub/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// State is the connection lifecycle position. Closed is terminal.
type State string

const (
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// CloseAuthFailure is the application close code a server sends when
// the bearer credential is rejected. It disables auto-reconnect; the
// client must re-authenticate instead of retrying.
const CloseAuthFailure = 4401

var (
	// ErrReconnectExhausted is surfaced through OnTerminalError once
	// every allowed reconnect attempt has failed.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrAuthRejected is surfaced when the server closes with
	// CloseAuthFailure.
	ErrAuthRejected = errors.New("authentication rejected by server")
)

// TransportError wraps a socket-level failure. It is the only
// recoverable error category: it drives the reconnect machinery rather
// than surfacing to callers directly.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Transport is one live duplex connection. Read and write calls are
// the only blocking points in the session.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a fresh transport. The session calls it once on Connect
// and again for every reconnect attempt.
type Dialer func(ctx context.Context) (Transport, error)

type Config struct {
	PingInterval         time.Duration
	PongTimeout          time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
}

func (c *Config) applyDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 10 * time.Second
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
}

type Callbacks struct {
	// OnOpen fires each time the transport comes up, including after a
	// reconnect.
	OnOpen func()
	// OnFrame receives every decoded inbound frame except the ping/pong
	// pairs the session consumes itself.
	OnFrame func(protocol.Frame)
	// OnTerminalError fires exactly once, when the session gives up:
	// reconnects exhausted or authentication rejected.
	OnTerminalError func(error)
}

// Session is one client connection with automatic recovery. The
// heartbeat is the sole liveness signal: a ping goes out every
// PingInterval and the echoed pong must arrive within PongTimeout, or
// the session drops the transport and walks the reconnect path with
// exponential backoff. A clean Close, or an auth-failure close from
// the server, disables reconnection permanently.
type Session struct {
	ID       string
	UserID   int
	Username string
	RoomID   int

	cfg  Config
	dial Dialer
	cb   Callbacks

	ctx    context.Context
	cancel context.CancelFunc

	// wmu serializes every transport write; the websocket layer allows
	// at most one writer at a time.
	wmu sync.Mutex

	mu          sync.Mutex
	state       State
	attempts    int
	transport   Transport
	hbStop      chan struct{}
	retryTimer  *time.Timer
	pongTimer   *time.Timer
	pendingPing int64
	lastPingAt  time.Time
	lastPongAt  time.Time
	closed      bool
}

func New(userID int, username string, roomID int, cfg Config, dial Dialer, cb Callbacks) *Session {
	cfg.applyDefaults()
	return &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		RoomID:   roomID,
		cfg:      cfg,
		dial:     dial,
		cb:       cb,
		state:    StateConnecting,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Session) LastPingAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPingAt
}

func (s *Session) LastPongAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPongAt
}

// Connect opens the transport. A dial failure here enters the same
// backoff path as a lost connection, so the returned error only means
// the first attempt did not succeed immediately.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session is closed")
	}
	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(ctx)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	t, err := s.dial(s.ctx)
	if err != nil {
		terr := &TransportError{Op: "dial", Err: err}
		s.dialFailed(err, terr)
		return terr
	}

	s.handleOpen(t)
	return nil
}

// dialFailed routes a failed dial: auth rejections are terminal,
// anything else burns one reconnect attempt.
func (s *Session) dialFailed(err error, terr *TransportError) {
	if isCloseCode(err, CloseAuthFailure) {
		s.mu.Lock()
		s.closed = true
		s.state = StateClosed
		s.mu.Unlock()
		logger.Error("Session %s: authentication rejected on dial, not retrying", s.ID)
		if s.cb.OnTerminalError != nil {
			s.cb.OnTerminalError(ErrAuthRejected)
		}
		return
	}

	s.mu.Lock()
	if !s.closed {
		s.state = StateReconnecting
		s.scheduleRetryLocked(terr)
	}
	s.mu.Unlock()
}

// Send writes one frame. It never raises on transient disconnection:
// when the session is not open the frame is dropped, logged, and false
// is returned.
func (s *Session) Send(frame protocol.Frame) bool {
	s.mu.Lock()
	t := s.transport
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open || t == nil {
		logger.Debug("Session %s: dropping %s frame, connection not open", s.ID, frame.Kind())
		return false
	}

	data, err := protocol.Encode(frame)
	if err != nil {
		logger.Error("Session %s: failed to encode %s frame: %v", s.ID, frame.Kind(), err)
		return false
	}

	if err := s.write(t, data); err != nil {
		s.lostConnection(t, &TransportError{Op: "write", Err: err})
		return false
	}
	return true
}

// write is the single funnel for outbound data. Caller sends, the
// heartbeat goroutine, and the read loop's ping echo all pass through
// here, so no two writes ever reach the transport concurrently.
func (s *Session) write(t Transport, data []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return t.WriteMessage(data)
}

// Close is the clean, caller-initiated shutdown. It permanently
// disables auto-reconnect for this session.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = StateClosed
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.stopHeartbeatLocked()
	t := s.transport
	s.transport = nil
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t != nil {
		return t.Close()
	}
	return nil
}

// handleOpen installs a freshly dialed transport: resets the attempt
// counter, starts the heartbeat and read loop, sends the handshake.
func (s *Session) handleOpen(t Transport) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.Close()
		return
	}
	s.state = StateOpen
	s.attempts = 0
	s.transport = t
	s.hbStop = make(chan struct{})
	hbStop := s.hbStop
	s.mu.Unlock()

	logger.Info("Session %s: connection open", s.ID)

	hs, err := protocol.Encode(&protocol.Handshake{
		UserID:   s.UserID,
		Username: s.Username,
		RoomID:   s.RoomID,
	})
	if err == nil {
		if werr := s.write(t, hs); werr != nil {
			s.lostConnection(t, &TransportError{Op: "handshake", Err: werr})
			return
		}
	}

	go s.readLoop(t)
	go s.heartbeat(t, hbStop)

	if s.cb.OnOpen != nil {
		s.cb.OnOpen()
	}
}

func (s *Session) readLoop(t Transport) {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			s.lostConnection(t, &TransportError{Op: "read", Err: err})
			return
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			logger.Debug("Session %s: dropping inbound frame: %v", s.ID, err)
			continue
		}

		switch f := frame.(type) {
		case *protocol.Pong:
			s.handlePong(f.Timestamp)
		case *protocol.Ping:
			s.Send(protocol.NewPong(f.Timestamp))
		default:
			if s.cb.OnFrame != nil {
				s.cb.OnFrame(frame)
			}
		}
	}
}

func (s *Session) heartbeat(t Transport, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sendPing(t)
		}
	}
}

func (s *Session) sendPing(t Transport) {
	ts := time.Now().UnixMilli()
	data, err := protocol.Encode(protocol.NewPing(ts))
	if err != nil {
		return
	}
	if err := s.write(t, data); err != nil {
		s.lostConnection(t, &TransportError{Op: "ping", Err: err})
		return
	}

	s.mu.Lock()
	if s.transport != t {
		s.mu.Unlock()
		return
	}
	s.lastPingAt = time.Now()
	s.pendingPing = ts
	if s.pongTimer != nil {
		s.pongTimer.Stop()
	}
	s.pongTimer = time.AfterFunc(s.cfg.PongTimeout, func() { s.pongMissed(t, ts) })
	s.mu.Unlock()
}

func (s *Session) handlePong(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingPing != ts {
		// Stale or unsolicited pong; only the echo of the outstanding
		// ping counts as liveness.
		return
	}
	s.pendingPing = 0
	s.lastPongAt = time.Now()
	if s.pongTimer != nil {
		s.pongTimer.Stop()
		s.pongTimer = nil
	}
}

func (s *Session) pongMissed(t Transport, ts int64) {
	s.mu.Lock()
	missed := s.transport == t && s.pendingPing == ts
	s.mu.Unlock()
	if !missed {
		return
	}
	logger.Info("Session %s: pong timeout, reconnecting", s.ID)
	s.lostConnection(t, &TransportError{Op: "heartbeat", Err: errors.New("pong timeout")})
}

// lostConnection tears down a dead transport and decides what happens
// next: nothing on clean close, terminal error on auth rejection or
// exhausted attempts, otherwise one scheduled reconnect.
func (s *Session) lostConnection(t Transport, cause error) {
	s.mu.Lock()
	if s.transport != t {
		// Another path already handled this epoch.
		s.mu.Unlock()
		return
	}
	s.transport = nil
	s.stopHeartbeatLocked()
	t.Close()

	if s.closed {
		s.state = StateClosed
		s.mu.Unlock()
		return
	}

	if isCloseCode(cause, websocket.CloseNormalClosure) {
		s.closed = true
		s.state = StateClosed
		s.mu.Unlock()
		logger.Info("Session %s: closed by server", s.ID)
		return
	}

	if isCloseCode(cause, CloseAuthFailure) {
		s.closed = true
		s.state = StateClosed
		s.mu.Unlock()
		logger.Error("Session %s: authentication rejected, not retrying", s.ID)
		if s.cb.OnTerminalError != nil {
			s.cb.OnTerminalError(ErrAuthRejected)
		}
		return
	}

	s.state = StateReconnecting
	s.scheduleRetryLocked(cause)
	s.mu.Unlock()
}

// scheduleRetryLocked counts one failed attempt and either arms the
// single retry timer with exponential backoff or gives up. Caller
// holds s.mu; the terminal callback is deferred until after unlock.
func (s *Session) scheduleRetryLocked(cause error) {
	s.attempts++
	if s.attempts > s.cfg.MaxReconnectAttempts {
		s.closed = true
		s.state = StateClosed
		logger.Error("Session %s: %v after %d attempts, giving up", s.ID, cause, s.cfg.MaxReconnectAttempts)
		if s.cb.OnTerminalError != nil {
			cb := s.cb.OnTerminalError
			go cb(fmt.Errorf("%w: %v", ErrReconnectExhausted, cause))
		}
		return
	}

	delay := s.cfg.ReconnectInterval * (1 << (s.attempts - 1))
	logger.Info("Session %s: reconnect attempt %d/%d in %v (%v)",
		s.ID, s.attempts, s.cfg.MaxReconnectAttempts, delay, cause)
	s.retryTimer = time.AfterFunc(delay, s.redial)
}

func (s *Session) redial() {
	s.mu.Lock()
	if s.closed || s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	t, err := s.dial(ctx)
	if err != nil {
		s.dialFailed(err, &TransportError{Op: "dial", Err: err})
		return
	}

	s.handleOpen(t)
}

func (s *Session) stopHeartbeatLocked() {
	if s.hbStop != nil {
		close(s.hbStop)
		s.hbStop = nil
	}
	if s.pongTimer != nil {
		s.pongTimer.Stop()
		s.pongTimer = nil
	}
	s.pendingPing = 0
}

func isCloseCode(err error, code int) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
