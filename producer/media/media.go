// Package media provides the codec-driven file producer. Demuxing and decoding
// run on a producer-owned worker; decoded video is converted to the channel's
// packed BGRA layout, audio is resampled to the channel rate, and the two are
// zipped per cadence slot into a bounded output queue that Receive drains.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/asticode/go-astiav"
	"github.com/charmbracelet/log"

	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/producer"
)

var extensions = map[string]bool{
	".mp4": true, ".mov": true, ".mxf": true, ".avi": true,
	".mkv": true, ".ts": true, ".m2t": true, ".webm": true,
	".mpg": true, ".mpeg": true, ".wmv": true, ".flv": true,
}

// Recognized reports whether ext (with leading dot) is a known media container.
func Recognized(ext string) bool {
	return extensions[strings.ToLower(ext)]
}

const outputQueueDepth = 8

// item is one assembled tick: a frame, or the end-of-feed marker.
type item struct {
	frame *frame.Frame
	eof   bool
}

type Producer struct {
	frames *frame.Factory
	path   string
	loop   bool

	out  chan item
	stop chan struct{}
	done chan struct{}

	next producer.Producer // optional chained clip

	// Observable lateness state: incremented whenever Receive finds the
	// output queue empty and has to substitute the empty frame.
	late atomic.Int64
	eof  bool // only touched from the channel's receive path

	closeOnce sync.Once
	logger    *log.Logger
}

// New opens path and starts the decode worker. The file is probed before the
// worker starts so open errors surface synchronously on load.
func New(frames *frame.Factory, path string, loop bool) (*Producer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("media %s: %w", filepath.Base(path), err)
	}

	p := &Producer{
		frames: frames,
		path:   path,
		loop:   loop,
		out:    make(chan item, outputQueueDepth),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: log.WithPrefix("media").With("clip", filepath.Base(path)),
	}

	// Probe synchronously: a broken file must fail the load, not the play.
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("media: alloc format context")
	}
	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("media %s: %w", filepath.Base(path), err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("media %s: %w", filepath.Base(path), err)
	}

	go p.run(fc)
	return p, nil
}

// SetNext chains the clip that plays after this one ends.
func (p *Producer) SetNext(next producer.Producer) { p.next = next }

func (p *Producer) Following() producer.Producer { return p.next }

func (p *Producer) SetLeading(producer.Producer) {}

// LateFrames returns how many ticks the producer failed to deliver in time.
func (p *Producer) LateFrames() int64 { return p.late.Load() }

func (p *Producer) String() string { return "media[" + filepath.Base(p.path) + "]" }

// Receive pops the next assembled frame without blocking; if the worker is
// behind it substitutes the empty frame and records the overrun.
func (p *Producer) Receive(nbSamples int) (*frame.Frame, error) {
	if p.eof {
		return nil, producer.EOF
	}
	select {
	case it, ok := <-p.out:
		if !ok || it.eof {
			p.eof = true
			return nil, producer.EOF
		}
		return it.frame, nil
	default:
		p.late.Add(1)
		p.logger.Debug("decode queue empty, substituting empty frame")
		return p.frames.Empty(), nil
	}
}

func (p *Producer) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		<-p.done
	})
	return nil
}

// run is the decode worker. It owns every libav object for the lifetime of the
// producer and is the only goroutine touching them.
func (p *Producer) run(fc *astiav.FormatContext) {
	defer close(p.done)
	defer func() {
		fc.CloseInput()
		fc.Free()
	}()

	d, err := newDecoder(fc, p.frames.Desc())
	if err != nil {
		p.logger.Error("decoder setup failed", "err", err)
		p.emit(item{eof: true})
		return
	}
	defer d.close()

	cadence := p.frames.Desc().Cadence
	slot := 0

	for {
		video, err := d.nextVideo()
		if errors.Is(err, errStreamEnd) {
			if p.loop {
				if err := d.rewind(); err != nil {
					p.logger.Warn("loop seek failed", "err", err)
					p.emit(item{eof: true})
					return
				}
				continue
			}
			p.emit(item{eof: true})
			return
		}
		if err != nil {
			p.logger.Warn("decode error", "err", err)
			p.emit(item{eof: true})
			return
		}

		f := p.frames.NewFrame()
		copy(f.Image, video)
		f.Audio = d.takeAudio(cadence[slot] * format.AudioChannels)
		slot = (slot + 1) % len(cadence)

		if !p.emit(item{frame: f}) {
			return
		}
	}
}

// emit pushes onto the bounded output queue, returning false on shutdown.
func (p *Producer) emit(it item) bool {
	select {
	case p.out <- it:
		return true
	case <-p.stop:
		return false
	}
}

// Factory recognizes specs with a known media container extension resolved
// against the media folder. A trailing LOOP token enables looping.
func Factory(deps producer.Deps, params []string) (producer.Producer, error) {
	if len(params) == 0 {
		return nil, producer.ErrNotFound
	}
	spec := params[0]
	if !Recognized(filepath.Ext(spec)) {
		return nil, producer.ErrNotFound
	}
	loop := false
	for _, t := range params[1:] {
		if strings.EqualFold(t, "LOOP") {
			loop = true
		}
	}
	path := spec
	if !filepath.IsAbs(path) {
		path = filepath.Join(deps.MediaFolder, path)
	}
	return New(deps.Frames, path, loop)
}
