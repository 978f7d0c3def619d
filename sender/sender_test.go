package sender

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/secplugin/errors"
	"github.com/c360/secplugin/frame"
	"github.com/c360/secplugin/message"
	"github.com/c360/secplugin/testutil"
)

func TestSendText_OnePerText(t *testing.T) {
	r := testutil.NewMockRequester()
	s := New(r)

	replies, err := s.SendText(context.Background(), testutil.GroupMessage("hi"), "a", "b")
	require.NoError(t, err)
	assert.Len(t, replies, 2)

	sent := r.Sent()
	require.Len(t, sent, 2)
	for i, want := range []string{"a", "b"} {
		assert.Equal(t, frame.CmdSendMessage, sent[i].Cmd)
		assert.True(t, sent[i].Rsp)
		msg := sent[i].Message()
		assert.Equal(t, want, msg.Get(message.Text, ""))
		assert.Equal(t, testutil.TestGroupID, msg.Get(message.GroupID, ""))
		assert.Equal(t, testutil.TestAccount, msg.Get(message.Account, ""))
		assert.True(t, msg.Has(message.Group))
		assert.False(t, msg.Has(message.MsgID))
	}
}

func TestSendTextInOne(t *testing.T) {
	r := testutil.NewMockRequester()
	s := New(r, WithTimeout(3*time.Second))

	_, err := s.SendTextInOne(context.Background(), testutil.FriendMessage("hi"), "a", "b")
	require.NoError(t, err)

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, last.Timeout)
	msg := last.Message()
	assert.Equal(t, []string{"a", "b"}, msg.Values(message.Text))
	assert.Equal(t, testutil.TestUin, msg.Get(message.Uin, ""))
	assert.True(t, msg.Has(message.Friend))
}

func TestReply_QuotesSource(t *testing.T) {
	r := testutil.NewMockRequester()
	s := New(r)

	_, err := s.Reply(context.Background(), testutil.GroupMessage("ping"), "pong")
	require.NoError(t, err)

	last, _ := r.Last()
	msg := last.Message()
	assert.Equal(t, testutil.TestMsgID, msg.Get(message.Reply, ""))
	assert.Equal(t, "pong", msg.Get(message.Text, ""))
}

func TestHelpers_RequireContentAndConversation(t *testing.T) {
	r := testutil.NewMockRequester()
	s := New(r)

	_, err := s.SendText(context.Background(), testutil.GroupMessage("x"))
	assert.True(t, stderrors.Is(err, ErrNoContent))
	assert.True(t, errors.IsInvalid(err))

	_, err = s.SendImage(context.Background(), testutil.OnlineEvent(), "a.png")
	assert.True(t, stderrors.Is(err, errors.ErrUnknownConversation))

	assert.Empty(t, r.Sent())
}

func TestSendImageAndCard(t *testing.T) {
	r := testutil.NewMockRequester()
	s := New(r)
	target := message.GroupTarget(testutil.TestAccount, "777")

	_, err := s.SendImage(context.Background(), target, "a.png", "b.png")
	require.NoError(t, err)
	last, _ := r.Last()
	assert.Equal(t, []string{"a.png", "b.png"}, last.Message().Values(message.Img))
	assert.Equal(t, "777", last.Message().Get(message.GroupID, ""))

	_, err = s.SendCard(context.Background(), target, `{"app":"x"}`)
	require.NoError(t, err)
	last, _ = r.Last()
	assert.Equal(t, `{"app":"x"}`, last.Message().Get(message.JSON, ""))
}

func TestSendJSONCard(t *testing.T) {
	r := testutil.NewMockRequester()
	s := New(r)

	_, err := s.SendJSONCard(context.Background(), testutil.GroupMessage("x"), "JSON_QQ",
		"title", "info", "img.png", "https://u", "https://a", "ignored")
	require.NoError(t, err)

	last, _ := r.Last()
	msg := last.Message()
	assert.Equal(t, "CustomJson", msg.Get(message.CustomJSON, ""))
	assert.Equal(t, "JSON_QQ", msg.Get("JSON_QQ", ""))
	assert.Equal(t, "title", msg.Get(message.Title, ""))
	assert.Equal(t, "info", msg.Get(message.Info, ""))
	assert.Equal(t, "img.png", msg.Get(message.Img, ""))
	assert.Equal(t, "https://u", msg.Get(message.URL, ""))
	assert.Equal(t, "https://a", msg.Get(message.Audio, ""))

	_, err = s.SendJSONCard(context.Background(), testutil.GroupMessage("x"), "")
	assert.True(t, errors.IsInvalid(err))
}

func TestOperations_FireAndForget(t *testing.T) {
	r := testutil.NewMockRequester()
	s := New(r)
	src := testutil.GroupMessage("x")

	require.NoError(t, s.Withdraw(context.Background(), src, "m-9"))
	last, _ := r.Last()
	assert.False(t, last.Rsp)
	assert.Equal(t, "m-9", last.Message().Get(message.Withdraw, ""))

	require.NoError(t, s.SetGroupMemberNick(context.Background(), src, "55", "nick"))
	last, _ = r.Last()
	assert.False(t, last.Rsp)
	msg := last.Message()
	assert.True(t, msg.Has(message.GroupMemberNickModify))
	assert.Equal(t, "55", msg.Get(message.Uin, ""))
	assert.Equal(t, "nick", msg.Get(message.Nick, ""))
}

func TestIsOperator(t *testing.T) {
	r := testutil.NewMockRequester()
	r.ReplyFunc = func(call testutil.SentFrame) (*frame.Frame, error) {
		if !call.Message().Has(message.GroupMemberListGetAdmin) {
			return nil, stderrors.New("unexpected request")
		}
		return testutil.Reply([]any{"1", "42"}), nil
	}
	s := New(r)
	src := testutil.GroupMessage("x")

	ok, err := s.IsOperator(context.Background(), src, "")
	require.NoError(t, err)
	assert.True(t, ok, "sender of src is an admin")

	ok, err = s.IsOperator(context.Background(), src, "7")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.IsOperator(context.Background(), message.GroupTarget("1", "2"), "")
	assert.True(t, errors.IsInvalid(err))
}

func TestGroupList(t *testing.T) {
	r := testutil.NewMockRequester()
	r.ReplyFunc = func(testutil.SentFrame) (*frame.Frame, error) {
		return testutil.Reply([]any{"100", "200"}), nil
	}
	s := New(r)

	groups, err := s.GroupList(context.Background(), testutil.TestAccount)
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "200"}, groups)

	last, _ := r.Last()
	assert.True(t, last.Message().Has(message.GroupListGet))
	assert.Equal(t, testutil.TestAccount, last.Message().Get(message.Account, ""))

	_, err = s.GroupList(context.Background(), "")
	assert.Error(t, err)
}

func TestSendFailureIsReturned(t *testing.T) {
	r := testutil.NewMockRequester()
	r.Err = errors.ErrNotConnected
	s := New(r)

	replies, err := s.SendText(context.Background(), testutil.GroupMessage("x"), "a", "b")
	assert.True(t, stderrors.Is(err, errors.ErrNotConnected))
	assert.Empty(t, replies)
	assert.Len(t, r.Sent(), 1, "stops at the first failure")
}
