package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/richinsley/goplayout/format"
)

func TestFactoryFrameSize(t *testing.T) {
	f := NewFactory(format.Get(format.PAL))
	fr := f.NewFrame()
	assert.Len(t, fr.Image, 720*576*4)
	assert.Empty(t, fr.Audio)
}

func TestEmptyIsSharedAndZero(t *testing.T) {
	f := NewFactory(format.Get(format.X720p5000))
	e1 := f.Empty()
	e2 := f.Empty()
	assert.Same(t, e1, e2)
	assert.True(t, f.IsEmpty(e1))
	assert.False(t, f.IsEmpty(f.NewFrame()))
	for _, b := range e1.Image[:64] {
		assert.Zero(t, b)
	}
}

func TestSilence(t *testing.T) {
	f := NewFactory(format.Get(format.PAL))
	s := f.Silence(1920)
	assert.Len(t, s, 1920*format.AudioChannels)
}
