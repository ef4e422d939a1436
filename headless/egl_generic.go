//go:build !linux

package headless

import "fmt"

// New is only available on Linux; other platforms run the compositor on a
// hidden GLFW window instead.
func New(width, height int) (*Context, error) {
	return nil, fmt.Errorf("headless: EGL rendering is not supported on this platform")
}

type Context struct{}

func (h *Context) MakeCurrent()                   {}
func (h *Context) Shutdown()                      {}
func (h *Context) ShouldClose() bool              { return false }
func (h *Context) EndFrame()                      {}
func (h *Context) GetFramebufferSize() (int, int) { return 0, 0 }
func (h *Context) Time() float64                  { return 0 }
