package frame

import (
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/secplugin/errors"
	"github.com/c360/secplugin/message"
)

func codecs() []Codec {
	return []Codec{JSONCodec{}, CBORCodec{}}
}

func TestParseCommand(t *testing.T) {
	for _, c := range []Command{CmdSync, CmdResponse, CmdHeartbeat, CmdPush, CmdSendMessage} {
		got, err := ParseCommand(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseCommand("Bogus")
	assert.ErrorIs(t, err, errors.ErrDecode)
	assert.ErrorIs(t, err, errors.ErrUnknownCommand)

	_, err = ParseCommand("")
	assert.ErrorIs(t, err, errors.ErrDecode)
}

func TestCodec_RoundTrip(t *testing.T) {
	msg := message.New().
		Add(message.Account, "10001").
		AddMarker(message.Group).
		Add(message.GroupID, "555").
		Add(message.Text, "hello ").
		Add(message.Img, "a.png").
		Add(message.Text, "world")

	frames := []*Frame{
		{Seq: 1, Cmd: CmdSync, Rsp: true, Data: AuthPayload{PID: "com.example", Name: "Demo", Token: "t"}},
		{Seq: 2, Cmd: CmdHeartbeat, Data: HeartbeatPayload{PID: "com.example", Name: "Demo"}},
		{Seq: 3, Cmd: CmdPush, Data: MessagePayload{Message: msg}},
		{Seq: 4, Cmd: CmdSendMessage, Rsp: true, Data: MessagePayload{Message: msg}},
		{Seq: 5, Cmd: CmdSendMessage, Data: MessagePayload{Message: message.New()}},
	}

	for _, codec := range codecs() {
		t.Run(codec.Name(), func(t *testing.T) {
			for _, f := range frames {
				data, err := codec.Encode(f)
				require.NoError(t, err)

				got, err := codec.Decode(data)
				require.NoError(t, err)
				assert.Equal(t, f.Seq, got.Seq)
				assert.Equal(t, f.Cmd, got.Cmd)
				assert.Equal(t, f.Rsp, got.Rsp)

				if want := f.Message(); want != nil {
					require.NotNil(t, got.Message())
					assert.Equal(t, want.Elements(), got.Message().Elements())
				} else {
					assert.Equal(t, f.Data, got.Data)
				}
			}
		})
	}
}

func TestCodec_ReplyStatus(t *testing.T) {
	for _, codec := range codecs() {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(&Frame{
				Seq:  9,
				Cmd:  CmdResponse,
				Data: ReplyPayload{Value: map[string]any{"status": true, "msg": "ok"}},
			})
			require.NoError(t, err)

			f, err := codec.Decode(data)
			require.NoError(t, err)
			assert.True(t, f.IsReply())

			status, ok := f.Reply().Status()
			assert.True(t, ok)
			assert.True(t, status)

			v, ok := f.Reply().Field("msg")
			assert.True(t, ok)
			assert.Equal(t, "ok", v)
		})
	}
}

func TestJSONCodec_Wire(t *testing.T) {
	codec := JSONCodec{}
	assert.Equal(t, websocket.TextMessage, codec.MessageType())

	data, err := codec.Encode(&Frame{
		Seq:  7,
		Cmd:  CmdSync,
		Rsp:  true,
		Data: AuthPayload{PID: "p", Name: "n", Token: "t"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":7,"cmd":"SyncOicq","rsp":true,"data":{"pid":"p","name":"n","token":"t"}}`, string(data))

	data, err = codec.Encode(&Frame{
		Seq:  8,
		Cmd:  CmdSendMessage,
		Data: MessagePayload{Message: message.New().Add(message.Text, "x")},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":8,"cmd":"SendOicqMsg","rsp":false,"data":[{"Text":"x"}]}`, string(data))
}

func TestJSONCodec_DecodeRelayFrames(t *testing.T) {
	codec := JSONCodec{}

	t.Run("push with numeric ids", func(t *testing.T) {
		f, err := codec.Decode([]byte(`{"seq":12,"cmd":"PushOicqMsg","rsp":false,"data":[{"Account":10001,"Group":"Group","GroupId":555},{"Text":"ping"}]}`))
		require.NoError(t, err)
		require.NotNil(t, f.Message())
		assert.Equal(t, "10001", f.Message().Get(message.Account, ""))
		assert.Equal(t, "ping", f.Message().Text())
		assert.False(t, f.IsReply())
	})

	t.Run("push without data", func(t *testing.T) {
		f, err := codec.Decode([]byte(`{"seq":1,"cmd":"PushOicqMsg"}`))
		require.NoError(t, err)
		assert.Equal(t, 0, f.Message().Size())
	})

	t.Run("heartbeat without data", func(t *testing.T) {
		f, err := codec.Decode([]byte(`{"seq":0,"cmd":"Heartbeat","rsp":false}`))
		require.NoError(t, err)
		assert.Equal(t, HeartbeatPayload{}, f.Data)
	})

	t.Run("list reply", func(t *testing.T) {
		f, err := codec.Decode([]byte(`{"seq":4,"cmd":"Response","data":["100",200]}`))
		require.NoError(t, err)
		assert.Equal(t, []string{"100", "200"}, f.Reply().Strings())
		_, ok := f.Reply().Status()
		assert.False(t, ok)
	})

	t.Run("message reply", func(t *testing.T) {
		f, err := codec.Decode([]byte(`{"seq":4,"cmd":"Response","data":[{"MsgId":"m-1"}]}`))
		require.NoError(t, err)
		m, err := f.Reply().Message()
		require.NoError(t, err)
		assert.Equal(t, "m-1", m.Get(message.MsgID, ""))
	})
}

func TestCodec_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `hello`},
		{"truncated", `{"seq":1,"cmd":"Push`},
		{"negative seq", `{"seq":-1,"cmd":"Response"}`},
		{"missing cmd", `{"seq":1}`},
		{"unknown cmd", `{"seq":1,"cmd":"Teleport"}`},
		{"push data not a list", `{"seq":1,"cmd":"PushOicqMsg","data":{"Text":"x"}}`},
		{"sync data not an object", `{"seq":1,"cmd":"SyncOicq","data":[1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JSONCodec{}.Decode([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrDecode)
			assert.True(t, errors.IsInvalid(err))
		})
	}

	_, err := CBORCodec{}.Decode([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, errors.ErrDecode)
}

func TestNewCodec(t *testing.T) {
	c, err := NewCodec("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	c, err = NewCodec("cbor")
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, c.MessageType())

	_, err = NewCodec("xml")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestReplyPayload_NonObject(t *testing.T) {
	var p ReplyPayload
	_, ok := p.Status()
	assert.False(t, ok)
	_, ok = p.Field("x")
	assert.False(t, ok)
	assert.Nil(t, p.Strings())

	raw, err := json.Marshal(p.wire())
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}
