package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/secplugin/correlator"
	"github.com/c360/secplugin/errors"
	"github.com/c360/secplugin/frame"
	"github.com/c360/secplugin/health"
	"github.com/c360/secplugin/message"
	"github.com/c360/secplugin/metric"
	"github.com/c360/secplugin/pkg/retry"
)

// Dispatcher receives inbound conversation messages.
type Dispatcher interface {
	Start(ctx context.Context) error
	Dispatch(ctx context.Context, msg *message.Message) (int, error)
	Stop()
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records session, request and frame metrics.
func WithMetrics(m *metric.ClientMetrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithCodec selects the frame codec. JSON is the default.
func WithCodec(c frame.Codec) Option {
	return func(s *Session) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithStateHook registers an observer of state transitions.
func WithStateHook(h StateHook) Option {
	return func(s *Session) {
		if h != nil {
			s.hooks = append(s.hooks, h)
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(s *Session) {
		if d != nil {
			s.dialer = d
		}
	}
}

// Session keeps one authenticated connection to the relay alive, routes
// replies to the correlator and feeds pushed messages to the dispatcher.
type Session struct {
	cfg        Config
	codec      frame.Codec
	dispatcher Dispatcher
	correlator *correlator.Correlator
	dialer     *websocket.Dialer
	logger     *slog.Logger
	metrics    *metric.ClientMetrics
	hooks      []StateHook

	inbound chan *message.Message

	mu        sync.Mutex
	state     State
	running   bool
	closing   bool
	cancel    context.CancelFunc
	lastErr   error
	startedAt time.Time

	connMu      sync.Mutex
	conn        *websocket.Conn
	connID      string
	connectedAt time.Time

	// serializes writes on the current connection
	writeMu sync.Mutex

	reconnects     atomic.Int64
	heartbeats     atomic.Int64
	lastHeartbeat  atomic.Int64 // unix nanos
	framesReceived atomic.Int64
	framesSent     atomic.Int64
	framesDropped  atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a Session. d may be nil, in which case pushed messages are
// logged and discarded.
func New(cfg Config, d Dispatcher, opts ...Option) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:        cfg,
		codec:      frame.JSONCodec{},
		dispatcher: d,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
		logger:  slog.Default(),
		inbound: make(chan *message.Message, cfg.DispatchBuffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session", "pid", cfg.PID)

	s.correlator = correlator.New(writer{s},
		correlator.WithTimeout(cfg.RequestTimeout),
		correlator.WithLogger(s.logger),
		correlator.WithMetrics(s.metrics))

	s.metrics.SetSessionState(int(Disconnected))
	return s, nil
}

// Run connects, authenticates and serves frames until ctx ends or Close is
// called, reconnecting with backoff after every failure. It returns nil on a
// requested shutdown and an error when a fatal condition stops the session,
// including ErrMaxRetriesExceeded.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.closing || s.state == Closed {
		s.mu.Unlock()
		return errors.ErrClosed
	}
	if s.running {
		s.mu.Unlock()
		return errors.WrapFatal(fmt.Errorf("session already running"), "Session", "Run", "check running state")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.startedAt = time.Now()
	s.mu.Unlock()

	defer close(s.done)
	defer s.shutdown()

	if s.dispatcher != nil {
		if err := s.dispatcher.Start(ctx); err != nil {
			return errors.WrapFatal(err, "Session", "Run", "start dispatcher")
		}
	}
	s.wg.Add(1)
	go s.dispatchLoop(ctx)

	backoff := retry.NewBackoff(s.cfg.Backoff)
	for {
		err := s.connectOnce(ctx, backoff)
		if ctx.Err() != nil || s.isClosing() {
			return nil
		}
		s.setLastError(err)
		if errors.IsFatal(err) {
			s.logger.Error("session stopped", "error", err)
			return err
		}

		s.setState(Reconnecting)
		delay, ok := backoff.Next()
		if !ok {
			err := errors.WrapFatal(errors.ErrMaxRetriesExceeded, "Session", "Run",
				fmt.Sprintf("reconnect after %d attempts", s.cfg.Backoff.MaxAttempts))
			s.setLastError(err)
			s.logger.Error("giving up on relay", "error", err)
			return err
		}

		s.reconnects.Add(1)
		s.metrics.RecordReconnect()
		s.logger.Warn("connection lost, reconnecting",
			"error", err,
			"attempt", backoff.Attempt(),
			"delay", delay)

		if retry.Sleep(ctx, delay) != nil {
			return nil
		}
	}
}

// connectOnce runs one connection from dial to disconnect.
func (s *Session) connectOnce(ctx context.Context, backoff *retry.Backoff) error {
	s.setState(Connecting)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	conn, resp, err := s.dialer.DialContext(dialCtx, s.cfg.URL, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrTransport, err), "Session", "connect", "dial relay")
	}

	connID := uuid.NewString()
	logger := s.logger.With("conn_id", connID)
	s.attach(conn, connID)
	defer s.detach(ctx, conn)

	s.armLiveness(conn)

	readErr := make(chan error, 1)
	go func() {
		readErr <- s.readLoop(ctx, conn, logger)
	}()

	s.setState(Authenticating)
	if err := s.authenticate(ctx, logger); err != nil {
		_ = conn.Close()
		<-readErr
		return err
	}

	s.setState(Ready)
	backoff.Reset()

	stopPing := make(chan struct{})
	defer close(stopPing)
	if s.cfg.PingInterval > 0 {
		go s.pingLoop(conn, stopPing, logger)
	}

	select {
	case err := <-readErr:
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrTransport, err), "Session", "readLoop", "read frame")
	case <-ctx.Done():
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		<-readErr
		return ctx.Err()
	}
}

// authenticate sends the SyncOicq handshake and checks the reply status.
func (s *Session) authenticate(ctx context.Context, logger *slog.Logger) error {
	auth := frame.AuthPayload{PID: s.cfg.PID, Name: s.cfg.Name, Token: s.cfg.Token}
	reply, err := s.correlator.Send(ctx, frame.CmdSync, auth, true, s.cfg.AuthTimeout)
	if err != nil {
		logger.Warn("authentication failed", "error", err)
		return errors.WrapTransient(err, "Session", "authenticate", "send handshake")
	}

	status, ok := reply.Reply().Status()
	if !ok || !status {
		logger.Warn("authentication rejected", "reply", reply.Reply().Value)
		return errors.WrapTransient(errors.ErrAuthRejected, "Session", "authenticate", "check handshake reply")
	}

	logger.Info("authenticated with relay", "name", s.cfg.Name)
	return nil
}

// armLiveness sets the read deadline and refreshes it on pings and pongs.
// Any inbound frame refreshes it too, in readLoop.
func (s *Session) armLiveness(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.DeadAfter))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.DeadAfter))
	})
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.DeadAfter))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.cfg.WriteTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
}

func (s *Session) pingLoop(conn *websocket.Conn, stop <-chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				logger.Warn("ping failed", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

// readLoop is the single consumer of inbound frames for one connection.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn, logger *slog.Logger) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.DeadAfter))

		f, err := s.codec.Decode(data)
		if err != nil {
			s.drop("decode")
			logger.Warn("dropping malformed frame", "error", err, "size", len(data))
			continue
		}

		s.framesReceived.Add(1)
		s.metrics.RecordFrameReceived(string(f.Cmd))
		s.route(ctx, f, logger)
	}
}

func (s *Session) route(ctx context.Context, f *frame.Frame, logger *slog.Logger) {
	switch f.Cmd {
	case frame.CmdResponse:
		s.correlator.Resolve(f)

	case frame.CmdHeartbeat:
		s.heartbeats.Add(1)
		s.lastHeartbeat.Store(time.Now().UnixNano())
		echo := frame.HeartbeatPayload{PID: s.cfg.PID, Name: s.cfg.Name}
		if _, err := s.correlator.Send(ctx, frame.CmdHeartbeat, echo, false, 0); err != nil {
			logger.Warn("heartbeat echo failed", "error", err)
		}

	case frame.CmdPush:
		msg := f.Message()
		if msg == nil || msg.Size() == 0 {
			s.drop("empty")
			logger.Debug("dropping empty push", "seq", f.Seq)
			return
		}
		s.logAccountEvent(msg, logger)

		select {
		case s.inbound <- msg:
		default:
			s.drop("dispatch_queue_full")
			logger.Warn("dispatch queue full, dropping message",
				"seq", f.Seq,
				"text", msg.Preview())
		}

	default:
		s.drop("unexpected")
		logger.Debug("ignoring unexpected command", "cmd", f.Cmd, "seq", f.Seq)
	}
}

// logAccountEvent records relay account notices (online, offline, account
// heartbeat, scheduled task). They are dispatched like any other message.
func (s *Session) logAccountEvent(msg *message.Message, logger *slog.Logger) {
	if message.KindOf(msg) != message.KindUnknown {
		return
	}

	var event, at string
	switch {
	case msg.Has(message.Goline):
		event, at = "online", msg.Get(message.Goline, "")
	case msg.Has(message.Offline):
		event, at = "offline", msg.Get(message.Offline, "")
	case msg.Has(message.Heartbeat):
		event, at = "heartbeat", msg.Get(message.Heartbeat, "")
	case msg.Has(message.OntimeTask):
		event, at = "scheduled_task", msg.Get(message.OntimeTask, "")
	default:
		return
	}

	logger.Debug("account event",
		"event", event,
		"account", msg.Get(message.Account, ""),
		"mode", msg.Get(message.GolineMode, ""),
		"at", at)
}

func (s *Session) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.inbound:
			if s.dispatcher == nil {
				s.logger.Debug("no dispatcher, discarding message", "text", msg.Preview())
				continue
			}
			if _, err := s.dispatcher.Dispatch(ctx, msg); err != nil {
				if ctx.Err() != nil || errors.Is(err, errors.ErrClosed) {
					return
				}
				s.logger.Warn("dispatch interrupted", "error", err)
			}
		}
	}
}

// Send is the outbound request contract: it writes one frame and, when rsp
// is true, waits for the reply. A zero timeout uses the configured request
// timeout. It fails with ErrNotConnected unless the session is Ready.
func (s *Session) Send(ctx context.Context, cmd frame.Command, data frame.Payload, rsp bool, timeout time.Duration) (*frame.Frame, error) {
	switch s.State() {
	case Ready:
	case Closed:
		return nil, errors.ErrClosed
	default:
		return nil, errors.ErrNotConnected
	}
	return s.correlator.Send(ctx, cmd, data, rsp, timeout)
}

// Close shuts the session down: pending requests fail with ErrCancelled, the
// dispatcher stops taking permits and the connection is closed. It waits for
// Run to return and is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		running, cancel := s.running, s.cancel
		s.mu.Unlock()

		s.correlator.Close()
		if cancel != nil {
			cancel()
		}
		if !running {
			s.setState(Closed)
		}
	})

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		<-s.done
	}
	return nil
}

// shutdown runs when Run exits.
func (s *Session) shutdown() {
	s.correlator.Close()
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}

	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.connMu.Unlock()

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	cancel()

	s.wg.Wait()
	s.setState(Closed)
	s.logger.Info("session closed")
}

func (s *Session) attach(conn *websocket.Conn, id string) {
	s.connMu.Lock()
	s.conn = conn
	s.connID = id
	s.connectedAt = time.Now()
	s.connMu.Unlock()
}

// detach forgets conn. Requests still waiting on it cannot be answered on
// the next connection, so they fail now unless the session is shutting down.
func (s *Session) detach(ctx context.Context, conn *websocket.Conn) {
	_ = conn.Close()

	s.connMu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connMu.Unlock()

	if ctx.Err() == nil && !s.isClosing() {
		if n := s.correlator.Abort(errors.ErrNotConnected); n > 0 {
			s.logger.Warn("failed pending requests on disconnect", "count", n)
		}
	}
}

func (s *Session) drop(reason string) {
	s.framesDropped.Add(1)
	s.metrics.RecordFrameDropped(reason)
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	from := s.state
	if from == to || from == Closed {
		s.mu.Unlock()
		return
	}
	s.state = to
	hooks := s.hooks
	s.mu.Unlock()

	s.metrics.SetSessionState(int(to))
	s.logger.Info("session state changed", "from", from.String(), "to", to.String())
	for _, h := range hooks {
		h(from, to)
	}
}

func (s *Session) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// writer puts frames on whichever connection is current.
type writer struct {
	s *Session
}

func (w writer) WriteFrame(ctx context.Context, f *frame.Frame) error {
	s := w.s

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return errors.ErrNotConnected
	}

	data, err := s.codec.Encode(f)
	if err != nil {
		return errors.WrapInvalid(err, "Session", "WriteFrame", "encode frame")
	}

	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(s.codec.MessageType(), data); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrTransport, err)
	}

	s.framesSent.Add(1)
	s.metrics.RecordFrameSent(string(f.Cmd))
	return nil
}

// Stats is a snapshot of session activity.
type Stats struct {
	State           string    `json:"state"`
	ConnectionID    string    `json:"connection_id,omitempty"`
	ConnectedAt     time.Time `json:"connected_at,omitempty"`
	Reconnects      int64     `json:"reconnects"`
	Heartbeats      int64     `json:"heartbeats"`
	LastHeartbeat   time.Time `json:"last_heartbeat,omitempty"`
	FramesReceived  int64     `json:"frames_received"`
	FramesSent      int64     `json:"frames_sent"`
	FramesDropped   int64     `json:"frames_dropped"`
	PendingRequests int       `json:"pending_requests"`
	LastSeq         uint64    `json:"last_seq"`
	LastError       string    `json:"last_error,omitempty"`
}

// Stats returns a snapshot of session activity.
func (s *Session) Stats() Stats {
	st := Stats{
		State:           s.State().String(),
		Reconnects:      s.reconnects.Load(),
		Heartbeats:      s.heartbeats.Load(),
		FramesReceived:  s.framesReceived.Load(),
		FramesSent:      s.framesSent.Load(),
		FramesDropped:   s.framesDropped.Load(),
		PendingRequests: s.correlator.Pending(),
		LastSeq:         s.correlator.LastSeq(),
	}
	if ns := s.lastHeartbeat.Load(); ns > 0 {
		st.LastHeartbeat = time.Unix(0, ns)
	}

	s.connMu.Lock()
	if s.conn != nil {
		st.ConnectionID = s.connID
		st.ConnectedAt = s.connectedAt
	}
	s.connMu.Unlock()

	s.mu.Lock()
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()
	return st
}

// Health maps the session state onto a health status: Ready is healthy,
// the connecting states are degraded, Disconnected and Closed are unhealthy.
func (s *Session) Health() health.Status {
	s.mu.Lock()
	state, lastErr, startedAt := s.state, s.lastErr, s.startedAt
	s.mu.Unlock()

	var st health.Status
	switch state {
	case Ready:
		st = health.NewHealthy("session", "connected to relay")
	case Connecting, Authenticating, Reconnecting:
		st = health.NewDegraded("session", state.String()).WithError(lastErr)
	default:
		st = health.NewUnhealthy("session", state.String()).WithError(lastErr)
	}

	m := &health.Metrics{
		ErrorCount:        int(s.reconnects.Load()),
		MessagesProcessed: s.framesReceived.Load(),
	}
	if !startedAt.IsZero() {
		m.Uptime = time.Since(startedAt)
	}
	if ns := s.lastHeartbeat.Load(); ns > 0 {
		m.LastActivity = time.Unix(0, ns)
	}
	return st.WithMetrics(m)
}
