package producer

import (
	"errors"

	"github.com/richinsley/goplayout/frame"
)

// EOF is returned from Receive when a producer has no more frames to give. The
// layer machinery reacts by switching to the producer's following producer.
var EOF = errors.New("end of feed")

// ErrNotFound is returned by factories that do not recognize a media spec.
var ErrNotFound = errors.New("no producer for spec")

// Producer is a pull-model source of frames. Receive is called once per channel
// tick with the sample count of the current audio cadence slot and must not
// block on I/O; producers run I/O on their own workers feeding internal queues.
// A producer is only ever driven from its own channel's clock, so it need not
// be safe for concurrent Receive calls.
type Producer interface {
	// Receive returns the next frame, or (nil, EOF) when the feed has ended.
	// Any other error marks the producer as failed; the layer or transition
	// driving it drops it and emits the empty frame instead.
	Receive(nbSamples int) (*frame.Frame, error)

	// Following returns the producer that plays after this one reports EOF.
	Following() Producer

	// SetLeading tells the producer which producer played just before it.
	// Transitions use this to fetch their from-frames.
	SetLeading(Producer)
}

// CallResult is the eventual result of a template-host invocation.
type CallResult struct {
	Value string
	Err   error
}

// Caller is implemented by producers that accept control calls, such as the
// template-graphics producer.
type Caller interface {
	Call(params []string) <-chan CallResult
}

// PixelConstraints describes the native raster of a producer's source, for
// inspection tooling; frames are always emitted at the channel size.
type PixelConstraints struct {
	Width  int
	Height int
}

// Constrained is implemented by producers whose source has a native size.
type Constrained interface {
	PixelConstraints() PixelConstraints
}

// Closer is implemented by producers owning workers or native resources.
type Closer interface {
	Close() error
}

// emptyProducer is the sentinel producer: it emits the shared empty frame
// forever and has no following producer.
type emptyProducer struct {
	frames *frame.Factory
}

// NewEmpty returns the empty producer for a frame factory.
func NewEmpty(frames *frame.Factory) Producer {
	return &emptyProducer{frames: frames}
}

func (p *emptyProducer) Receive(int) (*frame.Frame, error) { return p.frames.Empty(), nil }
func (p *emptyProducer) Following() Producer               { return nil }
func (p *emptyProducer) SetLeading(Producer)               {}

// IsEmpty reports whether p is an empty producer (or nil).
func IsEmpty(p Producer) bool {
	if p == nil {
		return true
	}
	_, ok := p.(*emptyProducer)
	return ok
}

// Close shuts down p if it owns resources.
func Close(p Producer) {
	if c, ok := p.(Closer); ok {
		_ = c.Close()
	}
}
