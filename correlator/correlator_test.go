package correlator

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/secplugin/errors"
	"github.com/c360/secplugin/frame"
	"github.com/c360/secplugin/message"
)

// echoWriter answers every request asynchronously with a Response frame whose
// data names the request it answers.
type echoWriter struct {
	c *Correlator
}

func (w *echoWriter) WriteFrame(_ context.Context, f *frame.Frame) error {
	if !f.Rsp {
		return nil
	}
	text := f.Message().Get(message.Text, "")
	go w.c.Resolve(&frame.Frame{
		Seq:  f.Seq,
		Cmd:  frame.CmdResponse,
		Data: frame.ReplyPayload{Value: map[string]any{"status": true, "echo": text}},
	})
	return nil
}

// recordingWriter keeps every written frame and never answers.
type recordingWriter struct {
	mu     sync.Mutex
	frames []*frame.Frame
	err    error
}

func (w *recordingWriter) WriteFrame(_ context.Context, f *frame.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.frames = append(w.frames, f)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

func textPayload(s string) frame.Payload {
	return frame.MessagePayload{Message: message.New().Add(message.Text, s)}
}

func TestSend_SequenceIsolation(t *testing.T) {
	w := &echoWriter{}
	c := New(w)
	w.c = c

	const callers = 64
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("caller-%d", i)
			reply, err := c.Send(context.Background(), frame.CmdSendMessage, textPayload(want), true, time.Second)
			if err != nil {
				errs <- err
				return
			}
			got, _ := reply.Reply().Field("echo")
			if got != want {
				errs <- fmt.Errorf("caller %d got reply %v", i, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, uint64(callers), c.LastSeq())
}

func TestSend_MonotonicSequence(t *testing.T) {
	w := &recordingWriter{}
	c := New(w)

	for i := 0; i < 5; i++ {
		_, err := c.Send(context.Background(), frame.CmdSendMessage, textPayload("x"), false, 0)
		require.NoError(t, err)
	}

	require.Equal(t, 5, w.count())
	for i, f := range w.frames {
		assert.Equal(t, uint64(i+1), f.Seq)
		assert.False(t, f.Rsp)
	}
	assert.Equal(t, 0, c.Pending(), "fire-and-forget sends leave no slot")
}

func TestSend_Timeout(t *testing.T) {
	c := New(&recordingWriter{})

	start := time.Now()
	reply, err := c.Send(context.Background(), frame.CmdSendMessage, textPayload("x"), true, 30*time.Millisecond)

	require.Error(t, err)
	assert.Nil(t, reply)
	assert.True(t, stderrors.Is(err, errors.ErrRequestTimeout))

	var te *errors.TimeoutError
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, uint64(1), te.Seq)
	assert.Equal(t, 30*time.Millisecond, te.After)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, c.Pending(), "timed out slot must be removed")

	// A reply arriving after the timeout is discarded
	assert.False(t, c.Resolve(&frame.Frame{Seq: 1, Cmd: frame.CmdResponse}))
}

func TestSend_DefaultTimeout(t *testing.T) {
	c := New(&recordingWriter{}, WithTimeout(20*time.Millisecond))

	_, err := c.Send(context.Background(), frame.CmdSendMessage, textPayload("x"), true, 0)
	var te *errors.TimeoutError
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, 20*time.Millisecond, te.After)
}

func TestClose_CancelsPending(t *testing.T) {
	w := &recordingWriter{}
	c := New(w)

	const pending = 3
	errs := make(chan error, pending)
	for i := 0; i < pending; i++ {
		go func() {
			_, err := c.Send(context.Background(), frame.CmdSendMessage, textPayload("x"), true, time.Minute)
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return c.Pending() == pending }, time.Second, 5*time.Millisecond)

	c.Close()

	for i := 0; i < pending; i++ {
		select {
		case err := <-errs:
			assert.True(t, stderrors.Is(err, errors.ErrCancelled), "got %v", err)
		case <-time.After(time.Second):
			t.Fatal("pending request was not cancelled")
		}
	}
	assert.Equal(t, 0, c.Pending())
	assert.True(t, c.Closed())

	_, err := c.Send(context.Background(), frame.CmdSendMessage, textPayload("x"), true, time.Second)
	assert.True(t, stderrors.Is(err, errors.ErrClosed))

	// Idempotent
	c.Close()
}

func TestAbort_KeepsCorrelatorOpen(t *testing.T) {
	w := &recordingWriter{}
	c := New(w)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), frame.CmdSendMessage, textPayload("x"), true, time.Minute)
		errc <- err
	}()
	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, c.Abort(errors.ErrNotConnected))
	assert.True(t, stderrors.Is(<-errc, errors.ErrNotConnected))
	assert.False(t, c.Closed())

	_, err := c.Send(context.Background(), frame.CmdSendMessage, textPayload("y"), false, 0)
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), c.LastSeq(), "sequence continues after abort")
}

func TestResolve_Duplicate(t *testing.T) {
	w := &recordingWriter{}
	c := New(w)

	done := make(chan *frame.Frame, 1)
	go func() {
		reply, _ := c.Send(context.Background(), frame.CmdSendMessage, textPayload("x"), true, time.Minute)
		done <- reply
	}()
	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, 5*time.Millisecond)

	first := &frame.Frame{Seq: 1, Cmd: frame.CmdResponse, Data: frame.ReplyPayload{Value: "first"}}
	second := &frame.Frame{Seq: 1, Cmd: frame.CmdResponse, Data: frame.ReplyPayload{Value: "second"}}

	assert.True(t, c.Resolve(first))
	assert.False(t, c.Resolve(second))
	assert.Equal(t, "first", (<-done).Reply().Value)

	assert.False(t, c.Resolve(&frame.Frame{Seq: 99, Cmd: frame.CmdResponse}), "unknown seq")
}

func TestSend_ContextCancelled(t *testing.T) {
	c := New(&recordingWriter{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Send(ctx, frame.CmdSendMessage, textPayload("x"), true, time.Minute)
		errc <- err
	}()
	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.True(t, stderrors.Is(<-errc, context.Canceled))
	assert.Equal(t, 0, c.Pending())
}

func TestSend_WriteFailure(t *testing.T) {
	w := &recordingWriter{err: stderrors.New("broken pipe")}
	c := New(w)

	_, err := c.Send(context.Background(), frame.CmdSendMessage, textPayload("x"), true, time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 0, c.Pending(), "failed write leaves no slot")
}
