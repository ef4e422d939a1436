package gpu

// Device abstracts the handful of GPU operations the compositor needs:
// asynchronous texture upload from a pinned buffer, framebuffer rendering of a
// textured quad with over blending, and asynchronous framebuffer readback.
// The OpenGL implementation lives in gldevice.go; tests use an in-memory one.
// Every method is called from the processor's worker goroutine only.
type Device interface {
	// Init is called once on the worker thread before any buffer is created.
	Init() error
	NewPixelBuffer(width, height int) (PixelBuffer, error)
	NewFrameBuffer(width, height int) (FrameBuffer, error)
	Shutdown()
}

// PixelBuffer is a pinned upload buffer paired with a texture.
type PixelBuffer interface {
	// BeginWrite copies src into the mapped upload buffer.
	BeginWrite(src []byte)
	// EndWrite starts the texture upload from the buffer.
	EndWrite()
	// Draw renders the texture as a fullscreen quad with
	// SRC_ALPHA, ONE_MINUS_SRC_ALPHA blending into the bound framebuffer.
	Draw()
}

// FrameBuffer is a render target with an attached pack buffer for readback.
type FrameBuffer interface {
	Bind()
	Clear()
	Unbind()
	// BeginRead queues an asynchronous readback of the color attachment.
	BeginRead()
	// EndRead maps the pack buffer and copies the pixels into dst.
	EndRead(dst []byte)
}
