package consumer

import (
	"fmt"
	"strings"

	gl "github.com/go-gl/gl/v4.1-core/gl"
)

const blitVertexSource = `#version 410 core
layout (location = 0) in vec2 aPos;
out vec2 vUV;
void main() {
	vUV = vec2(aPos.x * 0.5 + 0.5, 0.5 - aPos.y * 0.5);
	gl_Position = vec4(aPos, 0.0, 1.0);
}
` + "\x00"

const blitFragmentSource = `#version 410 core
in vec2 vUV;
out vec4 fragColor;
uniform sampler2D tex;
void main() {
	fragColor = vec4(texture(tex, vUV).rgb, 1.0);
}
` + "\x00"

var blitQuad = []float32{
	-1.0, 1.0, -1.0, -1.0, 1.0, -1.0,
	-1.0, 1.0, 1.0, -1.0, 1.0, 1.0,
}

// blitPipeline builds the textured-quad program and VAO used to present a
// frame in a window. Must run on the goroutine owning the GL context.
func blitPipeline() (program, quadVAO uint32, err error) {
	program, err = newBlitProgram(blitVertexSource, blitFragmentSource)
	if err != nil {
		return 0, 0, err
	}

	var vbo uint32
	gl.GenVertexArrays(1, &quadVAO)
	gl.GenBuffers(1, &vbo)
	gl.BindVertexArray(quadVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(blitQuad)*4, gl.Ptr(blitQuad), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 2*4, gl.PtrOffset(0))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)
	return program, quadVAO, nil
}

func newBlitProgram(vertexSource, fragmentSource string) (uint32, error) {
	compile := func(source string, shaderType uint32) (uint32, error) {
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

	vs, err := compile(vertexSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fs, err := compile(fragmentSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
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
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)
	return program, nil
}
