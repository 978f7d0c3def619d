package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/c360/secplugin/frame"
	"github.com/c360/secplugin/message"
)

// SentFrame is one call recorded by MockRequester.
type SentFrame struct {
	Cmd     frame.Command
	Data    frame.Payload
	Rsp     bool
	Timeout time.Duration
}

// Message returns the attribute list of a message payload, or nil.
func (s SentFrame) Message() *message.Message {
	if p, ok := s.Data.(frame.MessagePayload); ok {
		return p.Message
	}
	return nil
}

// MockRequester records outbound requests without a connection.
// Thread-safe for concurrent use.
type MockRequester struct {
	mu   sync.Mutex
	sent []SentFrame

	// ReplyFunc produces the reply for requests with rsp set. The default
	// reply is {"status": true}.
	ReplyFunc func(SentFrame) (*frame.Frame, error)
	// Err, when set, fails every call.
	Err error
}

// NewMockRequester creates a MockRequester with the default reply.
func NewMockRequester() *MockRequester {
	return &MockRequester{}
}

// Send records the call and returns the configured reply.
func (m *MockRequester) Send(_ context.Context, cmd frame.Command, data frame.Payload, rsp bool, timeout time.Duration) (*frame.Frame, error) {
	m.mu.Lock()
	call := SentFrame{Cmd: cmd, Data: data, Rsp: rsp, Timeout: timeout}
	m.sent = append(m.sent, call)
	seq := uint64(len(m.sent))
	fn, err := m.ReplyFunc, m.Err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !rsp {
		return nil, nil
	}
	if fn != nil {
		return fn(call)
	}
	return &frame.Frame{
		Seq:  seq,
		Cmd:  frame.CmdResponse,
		Data: frame.ReplyPayload{Value: map[string]any{"status": true}},
	}, nil
}

// Sent returns every recorded call.
func (m *MockRequester) Sent() []SentFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentFrame(nil), m.sent...)
}

// Last returns the most recent call.
func (m *MockRequester) Last() (SentFrame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentFrame{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// Reset forgets recorded calls.
func (m *MockRequester) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// Reply builds a response frame carrying value.
func Reply(value any) *frame.Frame {
	return &frame.Frame{Cmd: frame.CmdResponse, Data: frame.ReplyPayload{Value: value}}
}
