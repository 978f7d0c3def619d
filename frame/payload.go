package frame

import (
	"encoding/json"
	"fmt"

	"github.com/c360/secplugin/message"
)

// Payload is the data section of a frame. The set of implementations is
// closed: MessagePayload, AuthPayload, HeartbeatPayload and ReplyPayload.
type Payload interface {
	wire() any
}

// MessagePayload carries an attribute list.
type MessagePayload struct {
	Message *message.Message
}

func (p MessagePayload) wire() any {
	if p.Message == nil {
		return []any{}
	}
	return p.Message.ToAny()
}

// AuthPayload is the handshake request.
type AuthPayload struct {
	PID   string
	Name  string
	Token string
}

func (p AuthPayload) wire() any {
	return map[string]any{"pid": p.PID, "name": p.Name, "token": p.Token}
}

// HeartbeatPayload identifies the plugin in a keepalive echo.
type HeartbeatPayload struct {
	PID  string
	Name string
}

func (p HeartbeatPayload) wire() any {
	return map[string]any{"pid": p.PID, "name": p.Name}
}

// ReplyPayload holds the generically decoded data of a response frame.
type ReplyPayload struct {
	Value any
}

func (p ReplyPayload) wire() any {
	return p.Value
}

// Status reports the boolean "status" field of an object reply. ok is false
// when the reply is not an object or has no boolean status.
func (p ReplyPayload) Status() (status, ok bool) {
	obj, isObj := p.Value.(map[string]any)
	if !isObj {
		return false, false
	}
	status, ok = obj["status"].(bool)
	return status, ok
}

// Field returns a top-level field of an object reply.
func (p ReplyPayload) Field(key string) (any, bool) {
	obj, isObj := p.Value.(map[string]any)
	if !isObj {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

// Message interprets the reply as an attribute list.
func (p ReplyPayload) Message() (*message.Message, error) {
	return message.FromAny(p.Value)
}

// Strings interprets the reply as a list of scalars, the shape used for
// admin and group listings. Anything else yields nil.
func (p ReplyPayload) Strings() []string {
	list, ok := p.Value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, str(v))
	}
	return out
}

func str(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
