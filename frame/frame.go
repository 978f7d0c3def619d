// Package frame defines the wire envelope exchanged with the relay and the
// codecs that carry it over the websocket.
package frame

import (
	"fmt"

	"github.com/c360/secplugin/errors"
	"github.com/c360/secplugin/message"
)

// Command is the closed set of envelope commands.
type Command string

const (
	// CmdSync authenticates the plugin with the relay.
	CmdSync Command = "SyncOicq"
	// CmdResponse marks a reply to an earlier request, matched by seq.
	CmdResponse Command = "Response"
	// CmdHeartbeat is the relay's keepalive; the plugin echoes it.
	CmdHeartbeat Command = "Heartbeat"
	// CmdPush carries an inbound conversation message.
	CmdPush Command = "PushOicqMsg"
	// CmdSendMessage carries an outbound message or operation.
	CmdSendMessage Command = "SendOicqMsg"
)

// ParseCommand validates s against the command vocabulary.
func ParseCommand(s string) (Command, error) {
	switch c := Command(s); c {
	case CmdSync, CmdResponse, CmdHeartbeat, CmdPush, CmdSendMessage:
		return c, nil
	case "":
		return "", errors.NewDecodeError("missing cmd", nil)
	default:
		return "", errors.NewDecodeError(fmt.Sprintf("cmd %q", s), errors.ErrUnknownCommand)
	}
}

// Frame is one envelope: {seq, cmd, rsp, data}.
type Frame struct {
	Seq  uint64
	Cmd  Command
	Rsp  bool
	Data Payload
}

// IsReply reports whether the frame resolves a pending request.
func (f *Frame) IsReply() bool {
	return f.Cmd == CmdResponse
}

// Message returns the attribute list carried by a message frame, or nil.
func (f *Frame) Message() *message.Message {
	if f == nil {
		return nil
	}
	if p, ok := f.Data.(MessagePayload); ok {
		return p.Message
	}
	return nil
}

// Reply returns the payload of a response frame, or an empty one.
func (f *Frame) Reply() ReplyPayload {
	if f == nil {
		return ReplyPayload{}
	}
	if p, ok := f.Data.(ReplyPayload); ok {
		return p
	}
	return ReplyPayload{}
}

// envelope is the codec-neutral shape of a frame.
type envelope struct {
	Seq  uint64 `json:"seq" cbor:"seq"`
	Cmd  string `json:"cmd" cbor:"cmd"`
	Rsp  bool   `json:"rsp" cbor:"rsp"`
	Data any    `json:"data,omitempty" cbor:"data,omitempty"`
}

func toEnvelope(f *Frame) envelope {
	env := envelope{Seq: f.Seq, Cmd: string(f.Cmd), Rsp: f.Rsp}
	if f.Data != nil {
		env.Data = f.Data.wire()
	}
	return env
}

func fromEnvelope(env envelope) (*Frame, error) {
	cmd, err := ParseCommand(env.Cmd)
	if err != nil {
		return nil, err
	}

	f := &Frame{Seq: env.Seq, Cmd: cmd, Rsp: env.Rsp}

	switch cmd {
	case CmdPush, CmdSendMessage:
		msg, err := message.FromAny(env.Data)
		if err != nil {
			return nil, err
		}
		f.Data = MessagePayload{Message: msg}
	case CmdSync:
		obj, err := object(env.Data)
		if err != nil {
			return nil, err
		}
		f.Data = AuthPayload{PID: str(obj["pid"]), Name: str(obj["name"]), Token: str(obj["token"])}
	case CmdHeartbeat:
		// Keepalives from the relay may carry anything; only identity fields are read.
		obj, _ := env.Data.(map[string]any)
		f.Data = HeartbeatPayload{PID: str(obj["pid"]), Name: str(obj["name"])}
	case CmdResponse:
		f.Data = ReplyPayload{Value: env.Data}
	}

	return f, nil
}

func object(v any) (map[string]any, error) {
	switch obj := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return obj, nil
	default:
		return nil, errors.NewDecodeError(fmt.Sprintf("control data has type %T", v), nil)
	}
}
