package gpu

// SoftwareDevice is a CPU reference implementation of Device. It exists for
// machines without a usable GL context (CI, headless probes) and for tests;
// the blend math matches the GL path: straight over blending on the source
// alpha, drawn in submission order.
type SoftwareDevice struct {
	// bound mimics the GL framebuffer binding point. Only the processor
	// worker touches the device, so no locking is needed.
	bound *swFrameBuffer
}

func NewSoftwareDevice() *SoftwareDevice { return &SoftwareDevice{} }

func (d *SoftwareDevice) Init() error { return nil }
func (d *SoftwareDevice) Shutdown()   {}

func (d *SoftwareDevice) NewPixelBuffer(width, height int) (PixelBuffer, error) {
	return &swPixelBuffer{dev: d, data: make([]byte, width*height*4)}, nil
}

func (d *SoftwareDevice) NewFrameBuffer(width, height int) (FrameBuffer, error) {
	return &swFrameBuffer{dev: d, data: make([]byte, width*height*4)}, nil
}

type swPixelBuffer struct {
	dev  *SoftwareDevice
	data []byte
	// texture state is the staged copy itself; EndWrite is a no-op
}

func (pb *swPixelBuffer) BeginWrite(src []byte) {
	copy(pb.data, src)
}

func (pb *swPixelBuffer) EndWrite() {}

func (pb *swPixelBuffer) Draw() {
	target := pb.dev.bound
	if target == nil {
		return
	}
	dst := target.data
	for i := 0; i < len(dst); i += 4 {
		a := uint32(pb.data[i+3])
		ia := 255 - a
		dst[i+0] = byte((uint32(pb.data[i+0])*a + uint32(dst[i+0])*ia) / 255)
		dst[i+1] = byte((uint32(pb.data[i+1])*a + uint32(dst[i+1])*ia) / 255)
		dst[i+2] = byte((uint32(pb.data[i+2])*a + uint32(dst[i+2])*ia) / 255)
		dst[i+3] = byte((uint32(pb.data[i+3])*a + uint32(dst[i+3])*ia) / 255)
	}
}

type swFrameBuffer struct {
	dev  *SoftwareDevice
	data []byte
}

func (fb *swFrameBuffer) Bind() {
	fb.dev.bound = fb
}

func (fb *swFrameBuffer) Clear() {
	for i := range fb.data {
		fb.data[i] = 0
	}
}

func (fb *swFrameBuffer) Unbind() {
	fb.dev.bound = nil
}

func (fb *swFrameBuffer) BeginRead() {}

func (fb *swFrameBuffer) EndRead(dst []byte) {
	copy(dst, fb.data)
}
