package obsws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/logging"
	"github.com/GriffinCanCode/capture-watchdog/internal/shared/id"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultRequestTimeout   = 10 * time.Second
	eventBuffer             = 64
	maxFrameSize            = 16 << 20
	writeWait               = 5 * time.Second
)

// State is the authentication state of a session
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateReady
	StateClosed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// RequestObserver is notified after every request completes.
type RequestObserver func(requestType string, took time.Duration, err error)

// Options configures Connect.
type Options struct {
	Host     string
	Port     int
	Password string

	HandshakeTimeout   time.Duration
	RequestTimeout     time.Duration
	EventSubscriptions EventSubscription

	Logger   *logging.Logger
	Dialer   *websocket.Dialer
	Observer RequestObserver
}

// Addr returns host:port.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	if o.EventSubscriptions == 0 {
		o.EventSubscriptions = DefaultEvents
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

// Session is one authenticated connection to the control server. Requests
// may be issued from any goroutine; responses are matched to callers by
// request ID in a pending table fed by a dedicated receive goroutine.
type Session struct {
	id     id.SessionID
	conn   *websocket.Conn
	opts   Options
	logger *logging.Logger
	seq    id.Sequence

	writeMu sync.Mutex

	mu         sync.Mutex
	state      State
	pending    map[id.RequestID]chan *RequestResponse
	closeErr   error
	negotiated int

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Connect dials the server and completes the Hello/Identify handshake.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	addr := opts.Addr()
	u := url.URL{Scheme: "ws", Host: addr}

	dialCtx, cancel := context.WithTimeout(ctx, opts.HandshakeTimeout)
	defer cancel()

	conn, _, err := opts.Dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return nil, &ConnectError{Kind: Unreachable, Addr: addr, Err: err}
	}
	conn.SetReadLimit(maxFrameSize)

	s := &Session{
		id:      id.NewSessionID(),
		conn:    conn,
		opts:    opts,
		state:   StateUnauthenticated,
		pending: make(map[id.RequestID]chan *RequestResponse),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
	s.logger = opts.Logger.With(zap.String("session_id", s.id.String()), zap.String("addr", addr))

	// Abort a handshake stuck on a read when the caller gives up.
	stop := context.AfterFunc(dialCtx, func() { _ = conn.Close() })
	err = s.handshake(dialCtx)
	stop()
	if err != nil {
		_ = conn.Close()
		var cerr *ConnectError
		if errors.As(err, &cerr) {
			cerr.Addr = addr
			return nil, cerr
		}
		return nil, &ConnectError{Kind: ProtocolViolation, Addr: addr, Err: err}
	}

	go s.readLoop()

	s.logger.Debug("Session ready", zap.Int("rpc_version", s.negotiated))
	return s, nil
}

// handshake runs Hello -> Identify -> Identified on the raw connection.
func (s *Session) handshake(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
		_ = s.conn.SetWriteDeadline(deadline)
	}

	var hello Hello
	if err := s.readHandshakeFrame(OpHello, &hello, false); err != nil {
		return err
	}

	s.setState(StateAuthenticating)

	identify := Identify{
		RPCVersion:         RPCVersion,
		EventSubscriptions: s.opts.EventSubscriptions,
	}
	credentialed := false
	if hello.Authentication != nil && s.opts.Password != "" {
		identify.Authentication = AuthResponse(s.opts.Password, hello.Authentication.Salt, hello.Authentication.Challenge)
		credentialed = true
	} else if hello.Authentication != nil {
		s.logger.Warn("Server requires authentication but no password is configured")
	}

	frame, err := encodeFrame(OpIdentify, identify)
	if err != nil {
		return &ConnectError{Kind: ProtocolViolation, Err: err}
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return &ConnectError{Kind: Unreachable, Err: err}
	}

	var identified Identified
	if err := s.readHandshakeFrame(OpIdentified, &identified, credentialed || hello.Authentication != nil); err != nil {
		return err
	}

	_ = s.conn.SetReadDeadline(time.Time{})
	_ = s.conn.SetWriteDeadline(time.Time{})

	s.mu.Lock()
	s.negotiated = identified.NegotiatedRPCVersion
	s.state = StateReady
	s.mu.Unlock()
	return nil
}

// readHandshakeFrame reads one frame and requires the given opcode. When
// authRelevant is set, a dropped connection is attributed to rejected
// credentials rather than a protocol fault.
func (s *Session) readHandshakeFrame(want OpCode, out any, authRelevant bool) error {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code == CloseAuthenticationFailed {
			return &ConnectError{Kind: AuthRejected, Err: err}
		}
		if authRelevant {
			return &ConnectError{Kind: AuthRejected, Err: err}
		}
		return &ConnectError{Kind: ProtocolViolation, Err: err}
	}

	env, err := decodeFrame(data)
	if err != nil {
		return &ConnectError{Kind: ProtocolViolation, Err: fmt.Errorf("undecodable frame: %w", err)}
	}
	if env.Op != want {
		kind := ProtocolViolation
		if want == OpIdentified && authRelevant {
			kind = AuthRejected
		}
		return &ConnectError{Kind: kind, Err: fmt.Errorf("expected op %d, got op %d", want, env.Op)}
	}
	if len(env.D) == 0 {
		return &ConnectError{Kind: ProtocolViolation, Err: fmt.Errorf("op %d without payload", want)}
	}
	if err := codec.Unmarshal(env.D, out); err != nil {
		return &ConnectError{Kind: ProtocolViolation, Err: fmt.Errorf("op %d payload: %w", want, err)}
	}
	return nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() id.SessionID { return s.id }

// State returns the current authentication state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session is unusable.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the session closed, or nil while it is open.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// Events streams server events. The channel is closed when the session ends.
func (s *Session) Events() <-chan Event { return s.events }

// Request sends a request and waits for the response with the same ID.
// A response whose status reports failure is returned together with a
// *StatusError.
func (s *Session) Request(ctx context.Context, requestType string, data any) (*RequestResponse, error) {
	start := time.Now()
	resp, err := s.request(ctx, requestType, data)
	if s.opts.Observer != nil {
		s.opts.Observer(requestType, time.Since(start), err)
	}
	return resp, err
}

func (s *Session) request(ctx context.Context, requestType string, data any) (*RequestResponse, error) {
	rid := s.seq.Next()
	slot := make(chan *RequestResponse, 1)

	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return nil, &RequestError{Kind: Disconnected, RequestType: requestType, Err: s.Err()}
	}
	s.pending[rid] = slot
	s.mu.Unlock()

	frame, err := encodeFrame(OpRequest, Request{RequestType: requestType, RequestID: rid.String(), RequestData: data})
	if err != nil {
		s.forget(rid)
		return nil, &RequestError{Kind: Malformed, RequestType: requestType, Err: err}
	}

	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = s.conn.WriteMessage(websocket.TextMessage, frame)
	s.writeMu.Unlock()
	if err != nil {
		s.forget(rid)
		s.fail(fmt.Errorf("write: %w", err))
		return nil, &RequestError{Kind: Disconnected, RequestType: requestType, Err: err}
	}

	timer := time.NewTimer(s.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-slot:
		return s.settle(requestType, resp)
	case <-s.done:
		// A response may have landed just before the session closed.
		select {
		case resp := <-slot:
			return s.settle(requestType, resp)
		default:
		}
		return nil, &RequestError{Kind: Disconnected, RequestType: requestType, Err: s.Err()}
	case <-timer.C:
		s.forget(rid)
		return nil, &RequestError{Kind: Timeout, RequestType: requestType,
			Err: fmt.Errorf("no response to %s within %s", rid, s.opts.RequestTimeout)}
	case <-ctx.Done():
		s.forget(rid)
		return nil, &RequestError{Kind: Timeout, RequestType: requestType, Err: ctx.Err()}
	}
}

func (s *Session) settle(requestType string, resp *RequestResponse) (*RequestResponse, error) {
	if resp.decodeErr != nil {
		return nil, &RequestError{Kind: Malformed, RequestType: requestType, Err: resp.decodeErr}
	}
	if !resp.Status.Result {
		return resp, &StatusError{RequestType: requestType, Code: resp.Status.Code, Comment: resp.Status.Comment}
	}
	return resp, nil
}

func (s *Session) forget(rid id.RequestID) {
	s.mu.Lock()
	delete(s.pending, rid)
	s.mu.Unlock()
}

// Pending returns the number of requests awaiting a response.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// readLoop is the only reader of the connection once the handshake is done.
func (s *Session) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("read: %w", err))
			return
		}
		s.dispatch(data)
	}
}

func (s *Session) dispatch(data []byte) {
	env, err := decodeFrame(data)
	if err != nil {
		s.logger.Warn("Dropping undecodable frame", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}

	switch env.Op {
	case OpRequestResponse:
		s.deliver(env)
	case OpEvent:
		var ev Event
		if err := codec.Unmarshal(env.D, &ev); err != nil {
			s.logger.Warn("Dropping undecodable event", zap.Error(err))
			return
		}
		select {
		case s.events <- ev:
		default:
			s.logger.Warn("Event buffer full, dropping event", zap.String("event_type", ev.EventType))
		}
	default:
		s.logger.Debug("Ignoring frame", zap.Int("op", int(env.Op)))
	}
}

func (s *Session) deliver(env envelope) {
	resp := &RequestResponse{}
	if err := codec.Unmarshal(env.D, resp); err != nil {
		// Salvage the ID so the waiting caller fails fast instead of timing out.
		var idOnly struct {
			RequestID string `json:"requestId"`
		}
		if codec.Unmarshal(env.D, &idOnly) != nil || idOnly.RequestID == "" {
			s.logger.Warn("Dropping undecodable response", zap.Error(err))
			return
		}
		resp = &RequestResponse{RequestID: idOnly.RequestID, decodeErr: err}
	}

	rid := id.RequestID(resp.RequestID)
	s.mu.Lock()
	slot, ok := s.pending[rid]
	delete(s.pending, rid)
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("Discarding response with unknown request id",
			zap.String("request_id", resp.RequestID),
			zap.String("request_type", resp.RequestType),
		)
		return
	}
	slot <- resp
}

// fail marks the session closed exactly once and wakes every waiter.
func (s *Session) fail(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.closeErr = cause
		abandoned := len(s.pending)
		s.pending = make(map[id.RequestID]chan *RequestResponse)
		s.mu.Unlock()

		close(s.done)
		_ = s.conn.Close()

		if !errors.Is(cause, errSessionClosed) {
			s.logger.Warn("Session lost", zap.Error(cause), zap.Int("abandoned_requests", abandoned))
		}
	})
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() {
	select {
	case <-s.done:
		return
	default:
	}

	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	s.fail(errSessionClosed)
	s.logger.Info("Disconnected from control server")
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
