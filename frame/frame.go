package frame

import (
	"github.com/richinsley/goplayout/format"
)

// Frame is one BGRA image plane plus the interleaved audio samples covering one
// frame period. Frames are value-typed in the pipeline: once a producer emits a
// frame it must not be mutated; compositing allocates a new frame.
type Frame struct {
	Image []byte
	Audio []int32
}

// Factory creates frames bound to a channel's format so every frame in a
// channel has identical dimensions.
type Factory struct {
	desc  format.Descriptor
	empty *Frame
}

func NewFactory(desc format.Descriptor) *Factory {
	return &Factory{
		desc:  desc,
		empty: &Frame{Image: make([]byte, desc.Size)},
	}
}

func (f *Factory) Desc() format.Descriptor {
	return f.desc
}

// NewFrame returns a zeroed frame of the channel's image size with no audio.
func (f *Factory) NewFrame() *Frame {
	return &Frame{Image: make([]byte, f.desc.Size)}
}

// Empty returns the shared all-zero frame with no audio. Callers must treat it
// as read-only.
func (f *Factory) Empty() *Frame {
	return f.empty
}

// Silence returns nbSamples frames worth of interleaved zero samples.
func (f *Factory) Silence(nbSamples int) []int32 {
	return make([]int32, nbSamples*format.AudioChannels)
}

// IsEmpty reports whether fr is the factory's shared empty frame.
func (f *Factory) IsEmpty(fr *Frame) bool {
	return fr == f.empty
}
