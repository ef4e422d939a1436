package channel

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/producer"
)

// LoadOption controls what happens to a freshly loaded producer.
type LoadOption int

const (
	// LoadDefault stages the producer in the background slot only.
	LoadDefault LoadOption = iota
	// LoadPreview additionally renders one frame, held with audio stripped.
	LoadPreview
	// LoadAutoPlay promotes the producer to the foreground immediately.
	LoadAutoPlay
)

// Layer is one compositing slot in a channel: a foreground producer feeding
// the mix, a staged background producer, and an optional held preview frame.
// All mutations happen under the channel's layer mutex.
type Layer struct {
	frames     *frame.Factory
	foreground producer.Producer
	background producer.Producer
	preview    *frame.Frame
	logger     *log.Logger
}

func newLayer(frames *frame.Factory, index int) *Layer {
	return &Layer{
		frames: frames,
		logger: log.WithPrefix("layer").With("layer", index),
	}
}

// Load stages p in the background slot. The previous background is released;
// foreground playback is untouched unless the option says otherwise.
func (l *Layer) Load(p producer.Producer, option LoadOption) error {
	if p == nil {
		return fmt.Errorf("layer: nil producer")
	}
	if l.background != nil {
		producer.Close(l.background)
	}
	l.background = p

	switch option {
	case LoadPreview:
		f, err := p.Receive(0)
		if err != nil {
			f = l.frames.Empty()
		}
		if len(f.Audio) > 0 {
			f = &frame.Frame{Image: f.Image}
		}
		l.preview = f
		if l.foreground != nil {
			producer.Close(l.foreground)
			l.foreground = nil
		}
	case LoadAutoPlay:
		return l.Play()
	}
	return nil
}

// Play promotes the background producer to the foreground, wiring the old
// foreground as its leading producer so transitions can pull from-frames.
func (l *Layer) Play() error {
	if l.background == nil {
		return fmt.Errorf("layer: no background clip to play")
	}
	l.background.SetLeading(l.foreground)
	l.foreground = l.background
	l.background = nil
	l.preview = nil
	return nil
}

// Stop clears the foreground only; a staged background survives.
func (l *Layer) Stop() {
	if l.foreground != nil {
		producer.Close(l.foreground)
		l.foreground = nil
	}
	l.preview = nil
}

// Clear empties the layer completely.
func (l *Layer) Clear() {
	if l.foreground != nil {
		producer.Close(l.foreground)
		l.foreground = nil
	}
	if l.background != nil {
		producer.Close(l.background)
		l.background = nil
	}
	l.preview = nil
}

// Empty reports whether the layer holds nothing at all.
func (l *Layer) Empty() bool {
	return l.foreground == nil && l.background == nil && l.preview == nil
}

// Foreground returns the playing producer, or nil.
func (l *Layer) Foreground() producer.Producer { return l.foreground }

// Background returns the staged producer, or nil.
func (l *Layer) Background() producer.Producer { return l.background }

// Receive pulls this tick's frame. A producer error other than end-of-feed
// removes the producer so a broken clip cannot stall the channel; end-of-feed
// falls through to the producer's following producer once.
func (l *Layer) Receive(nbSamples int) *frame.Frame {
	return l.receive(nbSamples, 1)
}

func (l *Layer) receive(nbSamples, depth int) *frame.Frame {
	if l.foreground == nil {
		if l.preview != nil {
			return l.preview
		}
		return l.frames.Empty()
	}

	f, err := l.safeReceive(nbSamples)
	switch {
	case err == nil:
		return f

	case err == producer.EOF:
		next := l.foreground.Following()
		if next == nil || depth == 0 {
			producer.Close(l.foreground)
			l.foreground = nil
			return l.frames.Empty()
		}
		next.SetLeading(l.foreground)
		l.foreground = next
		return l.receive(nbSamples, depth-1)

	default:
		l.logger.Warn("removed producer from layer", "err", err)
		producer.Close(l.foreground)
		l.foreground = nil
		return l.frames.Empty()
	}
}

// safeReceive converts a panicking producer into an error.
func (l *Layer) safeReceive(nbSamples int) (f *frame.Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panic: %v", r)
		}
	}()
	return l.foreground.Receive(nbSamples)
}
