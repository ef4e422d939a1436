package consumer

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	gl "github.com/go-gl/gl/v4.1-core/gl"

	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/glfwcontext"
)

// ScalePolicy controls how the channel raster maps onto the window.
type ScalePolicy int

const (
	ScaleNone ScalePolicy = iota
	ScaleUniform
	ScaleFill
	ScaleUniformToFill
)

// ParseScalePolicy resolves a config token.
func ParseScalePolicy(s string) (ScalePolicy, error) {
	switch strings.ToLower(s) {
	case "", "fill":
		return ScaleFill, nil
	case "none":
		return ScaleNone, nil
	case "uniform":
		return ScaleUniform, nil
	case "uniformtofill":
		return ScaleUniformToFill, nil
	}
	return ScaleFill, fmt.Errorf("unknown scale policy %q", s)
}

// Screen previews the channel in a window. The GL context lives on a
// dedicated, OS-locked goroutine; Display hands the frame over and, when the
// screen is the channel clock, blocks until the buffer swap so vsync paces
// the channel.
type Screen struct {
	Scale ScalePolicy
	Sync  bool // act as channel clock (vsync)

	desc format.Descriptor
	ctx  *glfwcontext.Context

	in  chan *frame.Frame
	ack chan struct{}

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	logger *log.Logger
}

func NewScreen(scale ScalePolicy, sync bool) *Screen {
	return &Screen{
		Scale:  scale,
		Sync:   sync,
		in:     make(chan *frame.Frame, 1),
		ack:    make(chan struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: log.WithPrefix("screen"),
	}
}

func (s *Screen) Initialize(desc format.Descriptor) error {
	s.desc = desc
	ctx, err := glfwcontext.New("goplayout "+desc.Name, desc.Width/2, desc.Height/2, true)
	if err != nil {
		return fmt.Errorf("screen: %w", err)
	}
	s.ctx = ctx
	go s.run()
	return nil
}

func (s *Screen) Prepare(*frame.Frame) error { return nil }

func (s *Screen) Display(f *frame.Frame) error {
	select {
	case <-s.done:
		return fmt.Errorf("screen: window closed")
	case s.in <- f:
	}
	if s.Sync {
		select {
		case <-s.ack:
		case <-s.done:
			return fmt.Errorf("screen: window closed")
		}
	}
	return nil
}

func (s *Screen) BufferDepth() int               { return 1 }
func (s *Screen) HasSynchronizationClock() bool  { return s.Sync }
func (s *Screen) Index() int                     { return IndexScreen }

func (s *Screen) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

// run owns the GL context: texture upload, letterboxed blit, buffer swap.
func (s *Screen) run() {
	defer close(s.done)
	runtime.LockOSThread()
	s.ctx.MakeCurrent()
	if s.Sync {
		s.ctx.SetSwapInterval(1)
	} else {
		s.ctx.SetSwapInterval(0)
	}

	var texture uint32
	gl.GenTextures(1, &texture)
	gl.BindTexture(gl.TEXTURE_2D, texture)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(s.desc.Width), int32(s.desc.Height), 0,
		gl.BGRA, gl.UNSIGNED_BYTE, nil)

	program, quadVAO, err := blitPipeline()
	if err != nil {
		s.logger.Error("blit pipeline failed", "err", err)
		return
	}

	for {
		var f *frame.Frame
		select {
		case <-s.stop:
			s.ctx.Shutdown()
			return
		case f = <-s.in:
		}
		if s.ctx.ShouldClose() {
			s.ctx.Shutdown()
			return
		}

		gl.BindTexture(gl.TEXTURE_2D, texture)
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(s.desc.Width), int32(s.desc.Height),
			gl.BGRA, gl.UNSIGNED_BYTE, gl.Ptr(f.Image))

		winW, winH := s.ctx.GetFramebufferSize()
		x, y, w, h := s.viewport(winW, winH)
		gl.ClearColor(0, 0, 0, 1)
		gl.Clear(gl.COLOR_BUFFER_BIT)
		gl.Viewport(int32(x), int32(y), int32(w), int32(h))

		gl.UseProgram(program)
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, texture)
		gl.BindVertexArray(quadVAO)
		gl.DrawArrays(gl.TRIANGLES, 0, 6)
		gl.BindVertexArray(0)

		s.ctx.EndFrame() // swap; blocks on vsync when enabled

		if s.Sync {
			select {
			case s.ack <- struct{}{}:
			case <-s.stop:
				s.ctx.Shutdown()
				return
			}
		}
	}
}

// viewport applies the scale policy inside a winW x winH window.
func (s *Screen) viewport(winW, winH int) (x, y, w, h int) {
	switch s.Scale {
	case ScaleNone:
		w, h = s.desc.Width, s.desc.Height
	case ScaleFill:
		return 0, 0, winW, winH
	case ScaleUniform:
		scale := min(float64(winW)/float64(s.desc.Width), float64(winH)/float64(s.desc.Height))
		w = int(float64(s.desc.Width) * scale)
		h = int(float64(s.desc.Height) * scale)
	case ScaleUniformToFill:
		scale := max(float64(winW)/float64(s.desc.Width), float64(winH)/float64(s.desc.Height))
		w = int(float64(s.desc.Width) * scale)
		h = int(float64(s.desc.Height) * scale)
	}
	x = (winW - w) / 2
	y = (winH - h) / 2
	return x, y, w, h
}
