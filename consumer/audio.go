package consumer

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"

	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
)

// Audio drains the embedded audio of each frame into the default output
// device. The image plane is ignored and the consumer is never the clock.
type Audio struct {
	desc   format.Descriptor
	stream *portaudio.Stream

	in chan []int32

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	logger *log.Logger
}

func NewAudio() *Audio {
	return &Audio{
		in:     make(chan []int32, 8),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: log.WithPrefix("audio"),
	}
}

func (a *Audio) Initialize(desc format.Descriptor) error {
	a.desc = desc
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	go a.run()
	return nil
}

func (a *Audio) Prepare(*frame.Frame) error { return nil }

func (a *Audio) Display(f *frame.Frame) error {
	select {
	case <-a.done:
		return fmt.Errorf("audio: device stopped")
	default:
	}
	select {
	case a.in <- f.Audio:
	default:
		a.logger.Debug("audio queue full, dropped samples")
	}
	return nil
}

func (a *Audio) BufferDepth() int              { return 2 }
func (a *Audio) HasSynchronizationClock() bool { return false }
func (a *Audio) Index() int                    { return IndexAudio }

func (a *Audio) Close() error {
	a.closeOnce.Do(func() { close(a.stop) })
	<-a.done
	return nil
}

func (a *Audio) run() {
	defer close(a.done)
	defer portaudio.Terminate()

	// The stream buffer has a fixed size, the largest cadence slot; a shorter
	// slice is padded with silence up to that size before it is written.
	maxSlot := 0
	for _, n := range a.desc.Cadence {
		if n > maxSlot {
			maxSlot = n
		}
	}

	buf := make([]int32, maxSlot*format.AudioChannels)
	stream, err := portaudio.OpenDefaultStream(0, format.AudioChannels, float64(format.SampleRate), maxSlot, &buf)
	if err != nil {
		a.logger.Error("open stream failed", "err", err)
		return
	}
	a.stream = stream
	if err := stream.Start(); err != nil {
		a.logger.Error("start stream failed", "err", err)
		_ = stream.Close()
		return
	}
	defer func() {
		_ = stream.Stop()
		_ = stream.Close()
	}()

	for {
		select {
		case <-a.stop:
			return
		case samples := <-a.in:
			for len(samples) > 0 {
				n := copy(buf, samples)
				for i := n; i < len(buf); i++ {
					buf[i] = 0
				}
				if err := a.stream.Write(); err != nil {
					// Output underruns are routine when the machine stalls.
					a.logger.Debug("stream write", "err", err)
				}
				samples = samples[n:]
			}
		}
	}
}
