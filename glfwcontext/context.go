package glfwcontext

import (
	"runtime"

	"github.com/charmbracelet/log"
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// Context manages a GLFW window and its GL context. This is the ONLY package
// in the project that should import glfw.
type Context struct {
	window *glfw.Window
}

// New creates a context. With visible false the window is hidden, which is how
// the compositor gets an offscreen context without a windowing headache.
func New(title string, width, height int, visible bool) (*Context, error) {
	// All GLFW calls that can only run on the main thread are here.
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, err
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	if !visible {
		glfw.WindowHint(glfw.Visible, glfw.False)
	}

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, err
	}

	win.MakeContextCurrent()

	// gl.Init also needs to be called after a context is made current.
	if err := gl.Init(); err != nil {
		return nil, err
	}
	log.Debug("GLFW context ready", "version", gl.GoStr(gl.GetString(gl.VERSION)))

	// Release the context again; whichever worker adopts it calls MakeCurrent.
	glfw.DetachCurrentContext()

	return &Context{window: win}, nil
}

// MakeCurrent binds the context to the calling goroutine's OS thread.
func (c *Context) MakeCurrent() {
	c.window.MakeContextCurrent()
}

// Shutdown destroys the window. GLFW itself stays initialized because other
// contexts (the compositor's hidden window, another channel's preview) may
// still be alive; the process tears the library down on exit.
func (c *Context) Shutdown() {
	c.window.Destroy()
}

// ShouldClose returns true if the user has requested to close the window.
func (c *Context) ShouldClose() bool {
	return c.window.ShouldClose()
}

// EndFrame swaps the graphics buffers and polls for user events.
func (c *Context) EndFrame() {
	c.window.SwapBuffers()
	glfw.PollEvents()
}

// GetFramebufferSize returns the drawable area of the window in pixels.
func (c *Context) GetFramebufferSize() (int, int) {
	return c.window.GetFramebufferSize()
}

// SetSwapInterval enables (1) or disables (0) vsync on the current context.
func (c *Context) SetSwapInterval(interval int) {
	glfw.SwapInterval(interval)
}

// Time returns the number of seconds since the context was initialized.
func (c *Context) Time() float64 {
	return glfw.GetTime()
}
