// Package sender builds outbound messages and operations on top of the
// request contract of a session.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/c360/secplugin/errors"
	"github.com/c360/secplugin/frame"
	"github.com/c360/secplugin/message"
)

// ErrNoContent is returned when a helper is called without anything to send.
var ErrNoContent = errors.New("nothing to send")

// Requester is the outbound send contract, implemented by *session.Session.
type Requester interface {
	Send(ctx context.Context, cmd frame.Command, data frame.Payload, rsp bool, timeout time.Duration) (*frame.Frame, error)
}

// Option configures a Sender.
type Option func(*Sender)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout sets the reply timeout. Zero leaves it to the requester.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		s.timeout = d
	}
}

// Sender sends replies and operations addressed by a conversation message.
//
// Every helper takes a target message: either a received message, answered
// in its own conversation, or an explicit address from message.GroupTarget.
type Sender struct {
	r       Requester
	logger  *slog.Logger
	timeout time.Duration
}

// New creates a Sender over r.
func New(r Requester, opts ...Option) *Sender {
	s := &Sender{r: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sender")
	return s
}

func (s *Sender) base(to *message.Message, op string) (*message.Message, error) {
	reply, err := message.BaseReply(to)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Sender", op, "address reply")
	}
	return reply, nil
}

func (s *Sender) request(ctx context.Context, op string, msg *message.Message, rsp bool) (*frame.Frame, error) {
	reply, err := s.r.Send(ctx, frame.CmdSendMessage, frame.MessagePayload{Message: msg}, rsp, s.timeout)
	if err != nil {
		s.logger.Warn("send failed", "op", op, "text", msg.Preview(), "error", err)
		return nil, errors.Wrap(err, "Sender", op, "send message")
	}
	s.logger.Debug("sent", "op", op, "text", msg.Preview())
	return reply, nil
}

// each sends one message per value, all carrying the same base.
func (s *Sender) each(ctx context.Context, op string, base *message.Message, tag message.Tag, values []string) ([]*frame.Frame, error) {
	if len(values) == 0 {
		return nil, errors.WrapInvalid(ErrNoContent, "Sender", op, "check content")
	}
	replies := make([]*frame.Frame, 0, len(values))
	for _, v := range values {
		reply, err := s.request(ctx, op, base.Clone().Add(tag, v), true)
		if err != nil {
			return replies, err
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// together sends all values in a single message.
func (s *Sender) together(ctx context.Context, op string, base *message.Message, tag message.Tag, values []string) (*frame.Frame, error) {
	if len(values) == 0 {
		return nil, errors.WrapInvalid(ErrNoContent, "Sender", op, "check content")
	}
	for _, v := range values {
		base.Add(tag, v)
	}
	return s.request(ctx, op, base, true)
}

// SendText sends each text as its own message and returns the replies in
// order. It stops at the first failure.
func (s *Sender) SendText(ctx context.Context, to *message.Message, texts ...string) ([]*frame.Frame, error) {
	base, err := s.base(to, "SendText")
	if err != nil {
		return nil, err
	}
	return s.each(ctx, "SendText", base, message.Text, texts)
}

// SendTextInOne sends all texts as one message.
func (s *Sender) SendTextInOne(ctx context.Context, to *message.Message, texts ...string) (*frame.Frame, error) {
	base, err := s.base(to, "SendTextInOne")
	if err != nil {
		return nil, err
	}
	return s.together(ctx, "SendTextInOne", base, message.Text, texts)
}

// Reply answers src, quoting its message id, one message per text.
func (s *Sender) Reply(ctx context.Context, src *message.Message, texts ...string) ([]*frame.Frame, error) {
	base, err := s.base(src, "Reply")
	if err != nil {
		return nil, err
	}
	if id := src.Get(message.MsgID, ""); id != "" {
		base.Add(message.Reply, id)
	}
	return s.each(ctx, "Reply", base, message.Text, texts)
}

// SendImage sends the images as one message.
func (s *Sender) SendImage(ctx context.Context, to *message.Message, urls ...string) (*frame.Frame, error) {
	base, err := s.base(to, "SendImage")
	if err != nil {
		return nil, err
	}
	return s.together(ctx, "SendImage", base, message.Img, urls)
}

// SendCard sends raw JSON cards as one message.
func (s *Sender) SendCard(ctx context.Context, to *message.Message, cards ...string) (*frame.Frame, error) {
	base, err := s.base(to, "SendCard")
	if err != nil {
		return nil, err
	}
	return s.together(ctx, "SendCard", base, message.JSON, cards)
}

// cardFields are filled in order from the SendJSONCard arguments.
var cardFields = []message.Tag{message.Title, message.Info, message.Img, message.URL, message.Audio}

// SendJSONCard sends a templated card of cardType (for example "JSON_QQ").
// fields fill, in order, the title, description, image, link and audio of the
// card; extra fields are ignored.
func (s *Sender) SendJSONCard(ctx context.Context, to *message.Message, cardType string, fields ...string) (*frame.Frame, error) {
	if cardType == "" {
		return nil, errors.WrapInvalid(ErrNoContent, "Sender", "SendJSONCard", "check card type")
	}
	base, err := s.base(to, "SendJSONCard")
	if err != nil {
		return nil, err
	}

	base.AddMarker(message.CustomJSON).AddMarker(message.Tag(cardType))
	for i, v := range fields {
		if i >= len(cardFields) {
			break
		}
		base.Add(cardFields[i], v)
	}
	return s.request(ctx, "SendJSONCard", base, true)
}

// Withdraw recalls msgID in the conversation of to.
func (s *Sender) Withdraw(ctx context.Context, to *message.Message, msgID string) error {
	base, err := s.base(to, "Withdraw")
	if err != nil {
		return err
	}
	_, err = s.request(ctx, "Withdraw", base.Add(message.Withdraw, msgID), false)
	return err
}

// SetGroupMemberNick changes the group card of uin.
func (s *Sender) SetGroupMemberNick(ctx context.Context, to *message.Message, uin, nick string) error {
	base, err := s.base(to, "SetGroupMemberNick")
	if err != nil {
		return err
	}
	base.AddMarker(message.GroupMemberNickModify).
		Add(message.Uin, uin).
		Add(message.Nick, nick)
	_, err = s.request(ctx, "SetGroupMemberNick", base, false)
	return err
}

// IsOperator reports whether uin administers the group of to. An empty uin
// means the sender of to.
func (s *Sender) IsOperator(ctx context.Context, to *message.Message, uin string) (bool, error) {
	if uin == "" {
		uin = to.Get(message.Uin, "")
	}
	if uin == "" {
		return false, errors.WrapInvalid(fmt.Errorf("no member uin"), "Sender", "IsOperator", "check uin")
	}

	base, err := s.base(to, "IsOperator")
	if err != nil {
		return false, err
	}
	reply, err := s.request(ctx, "IsOperator", base.AddMarker(message.GroupMemberListGetAdmin), true)
	if err != nil {
		return false, err
	}
	return slices.Contains(reply.Reply().Strings(), uin), nil
}

// GroupList returns the ids of the groups account has joined.
func (s *Sender) GroupList(ctx context.Context, account string) ([]string, error) {
	if account == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("no account"), "Sender", "GroupList", "check account")
	}
	msg := message.New().
		Add(message.Account, account).
		AddMarker(message.GroupListGet)
	reply, err := s.request(ctx, "GroupList", msg, true)
	if err != nil {
		return nil, err
	}
	return reply.Reply().Strings(), nil
}
