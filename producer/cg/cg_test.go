package cg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/producer"
)

type recordingHost struct {
	frames *frame.Factory
	frame  *frame.Frame
	cmds   []string
	closed bool
}

func (h *recordingHost) Frame() *frame.Frame { return h.frame }

func (h *recordingHost) Invoke(cmd string) <-chan producer.CallResult {
	h.cmds = append(h.cmds, cmd)
	ch := make(chan producer.CallResult, 1)
	ch <- producer.CallResult{Value: "done"}
	close(ch)
	return ch
}

func (h *recordingHost) Close() error {
	h.closed = true
	return nil
}

func TestReceiveForwardsHostFrame(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.PAL))
	rendered := frames.NewFrame()
	rendered.Image[0] = 7
	host := &recordingHost{frames: frames, frame: rendered}
	p := New(frames, host)

	f, err := p.Receive(1920)
	require.NoError(t, err)
	assert.Same(t, rendered, f)
}

func TestReceiveEmptyWhenHostIdle(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.PAL))
	host := &recordingHost{frames: frames}
	p := New(frames, host)

	f, err := p.Receive(1920)
	require.NoError(t, err)
	assert.True(t, frames.IsEmpty(f))
}

func TestCallDispatch(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.PAL))
	host := &recordingHost{frames: frames}
	p := New(frames, host).(producer.Caller)

	res := <-p.Call([]string{"PLAY", "lowerthird", "1"})
	require.NoError(t, res.Err)
	require.Len(t, host.cmds, 1)
	assert.Equal(t, "PLAY lowerthird 1", host.cmds[0])

	res = <-p.Call([]string{"EXPLODE"})
	assert.Error(t, res.Err)

	res = <-p.Call(nil)
	assert.Error(t, res.Err)
}

func TestCloseReachesHost(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.PAL))
	host := &recordingHost{frames: frames}
	p := New(frames, host)
	producer.Close(p)
	assert.True(t, host.closed)
}
