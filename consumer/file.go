package consumer

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
)

// File records the channel into a container by piping raw BGRA frames into an
// ffmpeg process. It is never the channel clock; backpressure is absorbed by
// an internal queue of 64 frames. When that queue is full, Prepare drops the
// frame from the recording, so a slow disk never stalls the channel.
type File struct {
	// Path may contain strftime directives (%Y%m%d-%H%M%S) which are expanded
	// when the consumer initializes.
	Path string
	// Codec selects the video encoder; empty means libx264.
	Codec string

	desc format.Descriptor
	pw   *io.PipeWriter

	in   chan []byte
	errc chan error

	closeOnce sync.Once
	done      chan struct{}

	logger *log.Logger
}

func NewFile(path, codec string) *File {
	return &File{
		Path:   path,
		Codec:  codec,
		in:     make(chan []byte, 64),
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
		logger: log.WithPrefix("file"),
	}
}

func (f *File) Initialize(desc format.Descriptor) error {
	f.desc = desc

	path := f.Path
	if p, err := strftime.Format(f.Path, time.Now()); err == nil {
		path = p
	}

	codec := f.Codec
	if codec == "" {
		codec = "libx264"
	}

	pr, pw := io.Pipe()
	f.pw = pw

	cmd := ffmpeg.Input("pipe:",
		ffmpeg.KwArgs{
			"format":  "rawvideo",
			"pix_fmt": "bgra",
			"s":       fmt.Sprintf("%dx%d", desc.Width, desc.Height),
			"r":       fmt.Sprintf("%d/%d", desc.TimeScale, desc.Duration),
		},
	).Output(path,
		ffmpeg.KwArgs{
			"c:v":     codec,
			"pix_fmt": "yuv420p",
		},
	).OverWriteOutput().WithInput(pr)

	go func() {
		f.errc <- cmd.Run()
	}()
	go f.writeLoop()

	f.logger.Info("recording", "path", path, "codec", codec)
	return nil
}

func (f *File) writeLoop() {
	for buf := range f.in {
		if _, err := f.pw.Write(buf); err != nil {
			f.logger.Error("write failed, stopping recording", "err", err)
			close(f.done)
			return
		}
	}
	_ = f.pw.Close()
	close(f.done)
}

func (f *File) Prepare(fr *frame.Frame) error {
	select {
	case <-f.done:
		return fmt.Errorf("file: recording stopped")
	default:
	}
	// The frame is immutable downstream of the compositor, so the image can
	// be handed to the writer without a copy.
	select {
	case f.in <- fr.Image:
		return nil
	default:
		f.logger.Debug("recording queue full, dropped frame")
		return nil
	}
}

func (f *File) Display(*frame.Frame) error { return nil }

func (f *File) BufferDepth() int              { return 1 }
func (f *File) HasSynchronizationClock() bool { return false }
func (f *File) Index() int                    { return IndexFile }

func (f *File) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.in)
		<-f.done
		err = <-f.errc
	})
	return err
}
