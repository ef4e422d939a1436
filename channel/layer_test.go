package channel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/producer"
)

type scriptedProducer struct {
	frames    *frame.Factory
	audio     bool
	left      int // receives until EOF; -1 = forever
	err       error
	panics    bool
	following producer.Producer
	leading   producer.Producer
	received  int
}

func (p *scriptedProducer) Receive(nb int) (*frame.Frame, error) {
	p.received++
	if p.panics {
		panic("scripted panic")
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.left == 0 {
		return nil, producer.EOF
	}
	if p.left > 0 {
		p.left--
	}
	f := p.frames.NewFrame()
	f.Image[0] = 42
	if p.audio {
		n := nb
		if n == 0 {
			n = 2
		}
		f.Audio = p.frames.Silence(n)
	}
	return f, nil
}

func (p *scriptedProducer) Following() producer.Producer  { return p.following }
func (p *scriptedProducer) SetLeading(l producer.Producer) { p.leading = l }

func palLayer() (*Layer, *frame.Factory) {
	frames := frame.NewFactory(format.Get(format.PAL))
	return newLayer(frames, 10), frames
}

func TestEmptyLayerEmitsEmptyFrame(t *testing.T) {
	l, frames := palLayer()
	f := l.Receive(1920)
	assert.True(t, frames.IsEmpty(f))
}

func TestPreviewHoldsOneFrameWithoutAudio(t *testing.T) {
	l, frames := palLayer()
	p := &scriptedProducer{frames: frames, audio: true, left: -1}

	require.NoError(t, l.Load(p, LoadPreview))
	f1 := l.Receive(1920)
	f2 := l.Receive(1920)
	assert.Same(t, f1, f2, "preview frame is held")
	assert.Equal(t, byte(42), f1.Image[0])
	assert.Empty(t, f1.Audio, "preview strips audio")
}

func TestPlayPromotesBackground(t *testing.T) {
	l, frames := palLayer()
	old := &scriptedProducer{frames: frames, left: -1}
	require.NoError(t, l.Load(old, LoadDefault))
	require.NoError(t, l.Play())

	next := &scriptedProducer{frames: frames, left: -1}
	require.NoError(t, l.Load(next, LoadDefault))
	require.NoError(t, l.Play())

	assert.Equal(t, producer.Producer(old), next.leading, "new producer sees its predecessor")
	f := l.Receive(1920)
	assert.Equal(t, byte(42), f.Image[0])
}

func TestPlayWithoutBackgroundFails(t *testing.T) {
	l, _ := palLayer()
	assert.Error(t, l.Play())
}

func TestAutoPlay(t *testing.T) {
	l, frames := palLayer()
	p := &scriptedProducer{frames: frames, left: -1}
	require.NoError(t, l.Load(p, LoadAutoPlay))
	f := l.Receive(1920)
	assert.Equal(t, byte(42), f.Image[0])
}

func TestStopKeepsBackground(t *testing.T) {
	l, frames := palLayer()
	fg := &scriptedProducer{frames: frames, left: -1}
	require.NoError(t, l.Load(fg, LoadAutoPlay))
	bg := &scriptedProducer{frames: frames, left: -1}
	require.NoError(t, l.Load(bg, LoadDefault))

	l.Stop()
	assert.Nil(t, l.Foreground())
	assert.NotNil(t, l.Background())
	assert.True(t, frames.IsEmpty(l.Receive(1920)))
}

func TestStopOnEmptyLayerIsNoop(t *testing.T) {
	l, _ := palLayer()
	l.Stop()
	l.Stop()
	assert.True(t, l.Empty())
}

func TestClearTwiceEqualsOnce(t *testing.T) {
	l, frames := palLayer()
	require.NoError(t, l.Load(&scriptedProducer{frames: frames, left: -1}, LoadAutoPlay))
	l.Clear()
	state1 := l.Empty()
	l.Clear()
	assert.Equal(t, state1, l.Empty())
	assert.True(t, l.Empty())
}

func TestEOFFallsThroughToFollowing(t *testing.T) {
	l, frames := palLayer()
	follower := &scriptedProducer{frames: frames, left: -1}
	first := &scriptedProducer{frames: frames, left: 2, following: follower}
	require.NoError(t, l.Load(first, LoadAutoPlay))

	l.Receive(1920)
	l.Receive(1920)
	f := l.Receive(1920) // first reports EOF, follower takes over
	assert.Equal(t, byte(42), f.Image[0])
	assert.Equal(t, producer.Producer(first), follower.leading)
	assert.Equal(t, producer.Producer(follower), l.Foreground())
}

func TestEOFWithoutFollowingEmptiesLayer(t *testing.T) {
	l, frames := palLayer()
	require.NoError(t, l.Load(&scriptedProducer{frames: frames, left: 1}, LoadAutoPlay))

	l.Receive(1920)
	f := l.Receive(1920)
	assert.True(t, frames.IsEmpty(f))
	assert.Nil(t, l.Foreground())
}

func TestFailingProducerIsRemoved(t *testing.T) {
	l, frames := palLayer()
	bad := &scriptedProducer{frames: frames, err: errors.New("decode blew up")}
	require.NoError(t, l.Load(bad, LoadAutoPlay))

	f := l.Receive(1920)
	assert.True(t, frames.IsEmpty(f))
	assert.Nil(t, l.Foreground(), "offending producer replaced with empty")

	// Subsequent ticks keep emitting empty without touching the producer.
	l.Receive(1920)
	l.Receive(1920)
	assert.Equal(t, 1, bad.received, "failing producer is called exactly once")
}

func TestPanickingProducerIsContained(t *testing.T) {
	l, frames := palLayer()
	bad := &scriptedProducer{frames: frames, panics: true}
	require.NoError(t, l.Load(bad, LoadAutoPlay))

	assert.NotPanics(t, func() {
		f := l.Receive(1920)
		assert.True(t, frames.IsEmpty(f))
	})
	assert.Nil(t, l.Foreground())
}
