package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/secplugin/dispatch"
	"github.com/c360/secplugin/frame"
	"github.com/c360/secplugin/message"
	"github.com/c360/secplugin/sender"
	"github.com/c360/secplugin/testutil"
)

func startHandlers(t *testing.T, mock *testutil.MockRequester) *dispatch.Dispatcher {
	t.Helper()
	reg := dispatch.NewRegistry()
	require.NoError(t, registerHandlers(reg, sender.New(mock)))

	d := dispatch.New(reg, dispatch.Config{})
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Stop)
	return d
}

func dispatchAndWait(t *testing.T, d *dispatch.Dispatcher, msg *message.Message) int {
	t.Helper()
	n, err := d.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
	return n
}

func TestHandlers_Ping(t *testing.T) {
	mock := testutil.NewMockRequester()
	d := startHandlers(t, mock)

	assert.Equal(t, 1, dispatchAndWait(t, d, testutil.GroupMessage("ping")))

	last, ok := mock.Last()
	require.True(t, ok)
	assert.Equal(t, frame.CmdSendMessage, last.Cmd)
	assert.Equal(t, "pong", last.Message().Get(message.Text, ""))
	assert.Equal(t, testutil.TestGroupID, last.Message().Get(message.GroupID, ""))
}

func TestHandlers_Echo(t *testing.T) {
	mock := testutil.NewMockRequester()
	d := startHandlers(t, mock)

	assert.Equal(t, 1, dispatchAndWait(t, d, testutil.FriendMessage("echo  hello there")))

	last, ok := mock.Last()
	require.True(t, ok)
	assert.Equal(t, "hello there", last.Message().Get(message.Text, ""))
	assert.Equal(t, testutil.TestUin, last.Message().Get(message.Uin, ""))
}

func TestHandlers_Groups(t *testing.T) {
	mock := testutil.NewMockRequester()
	mock.ReplyFunc = func(testutil.SentFrame) (*frame.Frame, error) {
		return testutil.Reply([]any{"111", "222"}), nil
	}
	d := startHandlers(t, mock)

	assert.Equal(t, 1, dispatchAndWait(t, d, testutil.GroupMessage("groups")))

	sent := mock.Sent()
	require.Len(t, sent, 2)
	assert.True(t, sent[0].Message().Has(message.GroupListGet))
	assert.Equal(t, "111\n222", sent[1].Message().Get(message.Text, ""))
}

func TestHandlers_NoMatch(t *testing.T) {
	mock := testutil.NewMockRequester()
	d := startHandlers(t, mock)

	assert.Equal(t, 0, dispatchAndWait(t, d, testutil.GroupMessage("say ping")))
	assert.Empty(t, mock.Sent())
}
