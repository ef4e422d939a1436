// Package consumer defines the sink contract and the built-in sinks: screen
// preview, file recorder, audio device and SDI playout.
package consumer

import (
	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
)

// Index bands give consumers a stable ordering; lower indices win clock
// elections when the previous clock consumer is removed.
const (
	IndexSDI    = 100
	IndexFile   = 200
	IndexScreen = 300
	IndexAudio  = 400
)

// Consumer sinks completed frames. Prepare is called one tick ahead of Display
// with the same frame, so a sink can post DMA or schedule-for-output work
// before the frame is actually due. Display on the synchronizing consumer
// blocks until the physical output tick and thereby paces the whole channel.
type Consumer interface {
	Initialize(desc format.Descriptor) error
	// Prepare receives the frame that will be displayed one tick from now.
	// It must not block.
	Prepare(f *frame.Frame) error
	// Display presents the frame prepared one tick earlier. It may block on
	// vsync when this consumer is the channel clock.
	Display(f *frame.Frame) error
	// BufferDepth is the sink's pipeline latency in frames.
	BufferDepth() int
	HasSynchronizationClock() bool
	// Index is a stable ordering key; see the Index* bands.
	Index() int
}

// Closer is implemented by consumers owning threads or native resources.
type Closer interface {
	Close() error
}

// Close shuts down c if it owns resources.
func Close(c Consumer) {
	if cl, ok := c.(Closer); ok {
		_ = cl.Close()
	}
}
