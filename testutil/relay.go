package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/secplugin/frame"
	"github.com/c360/secplugin/message"
)

// ReplyFunc decides the reply to a request frame. Returning ok=false leaves
// the request unanswered.
type ReplyFunc func(req *frame.Frame) (data any, ok bool)

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithToken makes the relay accept only this token in the handshake.
func WithToken(token string) RelayOption {
	return func(r *Relay) {
		r.token = token
	}
}

// WithRelayCodec selects the codec the relay speaks.
func WithRelayCodec(c frame.Codec) RelayOption {
	return func(r *Relay) {
		r.codec = c
	}
}

// WithReplies sets how the relay answers SendOicqMsg requests. By default
// every request is answered with {"status": true}.
func WithReplies(fn ReplyFunc) RelayOption {
	return func(r *Relay) {
		r.replies = fn
	}
}

// Relay is an in-process relay host. It accepts websocket connections,
// answers the SyncOicq handshake and records every frame it receives.
type Relay struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	codec    frame.Codec
	token    string
	replies  ReplyFunc

	mu       sync.Mutex
	conn     *websocket.Conn
	received []*frame.Frame
	frames   chan *frame.Frame

	writeMu sync.Mutex
	seq     atomic.Uint64

	connections   atomic.Int64
	authenticated atomic.Int64
}

// NewRelay starts a relay on a loopback port. Call Close when done.
func NewRelay(opts ...RelayOption) *Relay {
	r := &Relay{
		codec:  frame.JSONCodec{},
		frames: make(chan *frame.Frame, 1024),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.server = httptest.NewServer(http.HandlerFunc(r.serve))
	return r
}

// URL returns the ws:// address of the relay.
func (r *Relay) URL() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

// Close stops the relay and drops the current connection.
func (r *Relay) Close() {
	r.DropConnection()
	r.server.CloseClientConnections()
	r.server.Close()
}

func (r *Relay) serve(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	r.connections.Add(1)

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	defer func() {
		_ = conn.Close()
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		r.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := r.codec.Decode(data)
		if err != nil {
			continue
		}

		r.mu.Lock()
		r.received = append(r.received, f)
		r.mu.Unlock()
		select {
		case r.frames <- f:
		default:
		}

		r.answer(conn, f)
	}
}

func (r *Relay) answer(conn *websocket.Conn, f *frame.Frame) {
	if !f.Rsp {
		return
	}

	var data any
	switch f.Cmd {
	case frame.CmdSync:
		auth, _ := f.Data.(frame.AuthPayload)
		ok := r.token == "" || auth.Token == r.token
		if ok {
			r.authenticated.Add(1)
		}
		data = map[string]any{"status": ok}
	default:
		if r.replies == nil {
			data = map[string]any{"status": true}
			break
		}
		v, ok := r.replies(f)
		if !ok {
			return
		}
		data = v
	}

	_ = r.write(conn, &frame.Frame{Seq: f.Seq, Cmd: frame.CmdResponse, Data: frame.ReplyPayload{Value: data}})
}

func (r *Relay) write(conn *websocket.Conn, f *frame.Frame) error {
	data, err := r.codec.Encode(f)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return conn.WriteMessage(r.codec.MessageType(), data)
}

func (r *Relay) current() (*websocket.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil, fmt.Errorf("relay: no client connected")
	}
	return r.conn, nil
}

// Push sends a PushOicqMsg frame carrying msg to the connected client.
func (r *Relay) Push(msg *message.Message) error {
	return r.Send(&frame.Frame{
		Seq:  r.seq.Add(1),
		Cmd:  frame.CmdPush,
		Data: frame.MessagePayload{Message: msg},
	})
}

// Heartbeat sends a relay keepalive.
func (r *Relay) Heartbeat() error {
	return r.Send(&frame.Frame{
		Seq:  r.seq.Add(1),
		Cmd:  frame.CmdHeartbeat,
		Data: frame.HeartbeatPayload{},
	})
}

// Send writes an arbitrary frame to the connected client.
func (r *Relay) Send(f *frame.Frame) error {
	conn, err := r.current()
	if err != nil {
		return err
	}
	return r.write(conn, f)
}

// SendRaw writes bytes as a text message, bypassing the codec.
func (r *Relay) SendRaw(data []byte) error {
	conn, err := r.current()
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// DropConnection closes the client connection without a close handshake.
func (r *Relay) DropConnection() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Connected reports whether a client is connected.
func (r *Relay) Connected() bool {
	_, err := r.current()
	return err == nil
}

// Connections returns the number of accepted websocket connections.
func (r *Relay) Connections() int {
	return int(r.connections.Load())
}

// Authenticated returns the number of accepted handshakes.
func (r *Relay) Authenticated() int {
	return int(r.authenticated.Load())
}

// Received returns every frame received so far.
func (r *Relay) Received() []*frame.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*frame.Frame(nil), r.received...)
}

// WaitFor returns the next received frame with the given command, skipping
// others, or an error after timeout.
func (r *Relay) WaitFor(cmd frame.Command, timeout time.Duration) (*frame.Frame, error) {
	deadline := time.After(timeout)
	for {
		select {
		case f := <-r.frames:
			if f.Cmd == cmd {
				return f, nil
			}
		case <-deadline:
			return nil, fmt.Errorf("relay: no %s frame within %v", cmd, timeout)
		}
	}
}
