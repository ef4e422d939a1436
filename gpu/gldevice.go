package gpu

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"github.com/richinsley/goplayout/graphics"
)

// glInitOnce guards gl.Init across devices; bindings only need loading once
// per process.
var glInitOnce sync.Once

// GLDevice is the OpenGL implementation of Device. It owns a context that is
// made current on the processor's worker goroutine and never touched from
// anywhere else.
type GLDevice struct {
	ctx     graphics.Context
	program uint32
	quadVAO uint32
}

func NewGLDevice(ctx graphics.Context) *GLDevice {
	return &GLDevice{ctx: ctx}
}

const vertexShaderSource = `#version 410 core
layout (location = 0) in vec2 aPos;
out vec2 vUV;
void main() {
	vUV = aPos * 0.5 + 0.5;
	gl_Position = vec4(aPos, 0.0, 1.0);
}
` + "\x00"

const fragmentShaderSource = `#version 410 core
in vec2 vUV;
out vec4 fragColor;
uniform sampler2D tex;
void main() {
	fragColor = texture(tex, vUV);
}
` + "\x00"

var quadVertices = []float32{
	-1.0, 1.0, -1.0, -1.0, 1.0, -1.0,
	-1.0, 1.0, 1.0, -1.0, 1.0, 1.0,
}

func (d *GLDevice) Init() error {
	// The GL context stays pinned to the worker goroutine for its lifetime.
	runtime.LockOSThread()
	d.ctx.MakeCurrent()

	var initErr error
	glInitOnce.Do(func() {
		initErr = gl.Init()
	})
	if initErr != nil {
		return fmt.Errorf("initialize OpenGL: %w", initErr)
	}

	var err error
	d.program, err = newProgram(vertexShaderSource, fragmentShaderSource)
	if err != nil {
		return err
	}

	var vbo uint32
	gl.GenVertexArrays(1, &d.quadVAO)
	gl.GenBuffers(1, &vbo)
	gl.BindVertexArray(d.quadVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(quadVertices)*4, gl.Ptr(quadVertices), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 2*4, gl.PtrOffset(0))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)

	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.ClearColor(0, 0, 0, 0)
	return nil
}

func (d *GLDevice) Shutdown() {
	gl.DeleteProgram(d.program)
	gl.DeleteVertexArrays(1, &d.quadVAO)
	d.ctx.Shutdown()
}

func (d *GLDevice) NewPixelBuffer(width, height int) (PixelBuffer, error) {
	pb := &glPixelBuffer{dev: d, width: int32(width), height: int32(height), size: width * height * 4}

	gl.GenTextures(1, &pb.texture)
	gl.BindTexture(gl.TEXTURE_2D, pb.texture)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, pb.width, pb.height, 0, gl.BGRA, gl.UNSIGNED_BYTE, nil)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.GenBuffers(1, &pb.pbo)
	gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, pb.pbo)
	gl.BufferData(gl.PIXEL_UNPACK_BUFFER, pb.size, nil, gl.STREAM_DRAW)
	gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, 0)
	return pb, nil
}

func (d *GLDevice) NewFrameBuffer(width, height int) (FrameBuffer, error) {
	fb := &glFrameBuffer{width: int32(width), height: int32(height), size: width * height * 4}

	gl.GenFramebuffers(1, &fb.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, fb.fbo)

	gl.GenTextures(1, &fb.texture)
	gl.BindTexture(gl.TEXTURE_2D, fb.texture)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, fb.width, fb.height, 0, gl.BGRA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, fb.texture, 0)

	gl.GenBuffers(1, &fb.pbo)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, fb.pbo)
	gl.BufferData(gl.PIXEL_PACK_BUFFER, fb.size, nil, gl.STREAM_READ)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)

	if gl.CheckFramebufferStatus(gl.FRAMEBUFFER) != gl.FRAMEBUFFER_COMPLETE {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		return nil, fmt.Errorf("framebuffer incomplete")
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	return fb, nil
}

type glPixelBuffer struct {
	dev     *GLDevice
	pbo     uint32
	texture uint32
	width   int32
	height  int32
	size    int
}

func (pb *glPixelBuffer) BeginWrite(src []byte) {
	gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, pb.pbo)
	// Orphan the previous store so the copy never stalls on in-flight uploads.
	gl.BufferData(gl.PIXEL_UNPACK_BUFFER, pb.size, nil, gl.STREAM_DRAW)
	ptr := gl.MapBufferRange(gl.PIXEL_UNPACK_BUFFER, 0, pb.size, gl.MAP_WRITE_BIT|gl.MAP_INVALIDATE_BUFFER_BIT)
	if ptr != nil {
		dst := unsafe.Slice((*byte)(ptr), pb.size)
		copy(dst, src)
		gl.UnmapBuffer(gl.PIXEL_UNPACK_BUFFER)
	}
	gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, 0)
}

func (pb *glPixelBuffer) EndWrite() {
	gl.BindTexture(gl.TEXTURE_2D, pb.texture)
	gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, pb.pbo)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, pb.width, pb.height, gl.BGRA, gl.UNSIGNED_BYTE, nil)
	gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

func (pb *glPixelBuffer) Draw() {
	gl.UseProgram(pb.dev.program)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, pb.texture)
	gl.BindVertexArray(pb.dev.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

type glFrameBuffer struct {
	fbo     uint32
	texture uint32
	pbo     uint32
	width   int32
	height  int32
	size    int
}

func (fb *glFrameBuffer) Bind() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, fb.fbo)
	gl.Viewport(0, 0, fb.width, fb.height)
}

func (fb *glFrameBuffer) Clear() {
	gl.Clear(gl.COLOR_BUFFER_BIT)
}

func (fb *glFrameBuffer) Unbind() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
}

func (fb *glFrameBuffer) BeginRead() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, fb.fbo)
	gl.ReadBuffer(gl.COLOR_ATTACHMENT0)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, fb.pbo)
	gl.BufferData(gl.PIXEL_PACK_BUFFER, fb.size, nil, gl.STREAM_READ)
	gl.ReadPixels(0, 0, fb.width, fb.height, gl.BGRA, gl.UNSIGNED_BYTE, nil)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
}

func (fb *glFrameBuffer) EndRead(dst []byte) {
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, fb.pbo)
	ptr := gl.MapBufferRange(gl.PIXEL_PACK_BUFFER, 0, fb.size, gl.MAP_READ_BIT)
	if ptr != nil {
		src := unsafe.Slice((*byte)(ptr), fb.size)
		copy(dst, src)
		gl.UnmapBuffer(gl.PIXEL_PACK_BUFFER)
	}
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
}

func newProgram(vertexShaderSource, fragmentShaderSource string) (uint32, error) {
	vertexShader, err := compileShader(vertexShaderSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fragmentShader, err := compileShader(fragmentShaderSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, vertexShader)
	gl.AttachShader(program, fragmentShader)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		infoLog := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(infoLog))
		return 0, fmt.Errorf("failed to link program: %v", infoLog)
	}

	gl.DeleteShader(vertexShader)
	gl.DeleteShader(fragmentShader)
	return program, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(logText))
		return 0, fmt.Errorf("failed to compile shader: %v", logText)
	}
	return shader, nil
}
