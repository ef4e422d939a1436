// Package image provides the still-image producer. The file is decoded and
// scaled once at construction; Receive then returns the same frame forever.
package image

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/producer"
)

var extensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

type imageProducer struct {
	frame  *frame.Frame
	name   string
	native producer.PixelConstraints
}

// New loads path, scales it to the channel's dimensions and converts to packed
// BGRA with top-left origin.
func New(frames *frame.Factory, path string) (producer.Producer, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer fh.Close()

	src, _, err := image.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", filepath.Base(path), err)
	}

	desc := frames.Desc()
	scaled := image.NewRGBA(image.Rect(0, 0, desc.Width, desc.Height))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, src.Bounds(), draw.Src, nil)

	f := frames.NewFrame()
	toBGRA(f.Image, scaled, desc.Width, desc.Height)

	return &imageProducer{
		frame: f,
		name:  filepath.Base(path),
		native: producer.PixelConstraints{
			Width:  src.Bounds().Dx(),
			Height: src.Bounds().Dy(),
		},
	}, nil
}

func (p *imageProducer) Receive(int) (*frame.Frame, error) { return p.frame, nil }
func (p *imageProducer) Following() producer.Producer      { return nil }
func (p *imageProducer) SetLeading(producer.Producer)      {}

func (p *imageProducer) String() string { return "image[" + p.name + "]" }

func (p *imageProducer) PixelConstraints() producer.PixelConstraints { return p.native }

func toBGRA(dst []byte, src *image.RGBA, width, height int) {
	for y := 0; y < height; y++ {
		srow := src.Pix[y*src.Stride : y*src.Stride+width*4]
		drow := dst[y*width*4 : (y+1)*width*4]
		for x := 0; x < width; x++ {
			drow[x*4+0] = srow[x*4+2]
			drow[x*4+1] = srow[x*4+1]
			drow[x*4+2] = srow[x*4+0]
			drow[x*4+3] = srow[x*4+3]
		}
	}
}

// Recognized reports whether ext (with leading dot) is a decodable image type.
func Recognized(ext string) bool {
	return extensions[strings.ToLower(ext)]
}

// Factory recognizes specs whose first token has a known image extension,
// resolved relative to the media folder.
func Factory(deps producer.Deps, params []string) (producer.Producer, error) {
	if len(params) == 0 {
		return nil, producer.ErrNotFound
	}
	spec := params[0]
	if !Recognized(filepath.Ext(spec)) {
		return nil, producer.ErrNotFound
	}
	path := spec
	if !filepath.IsAbs(path) {
		path = filepath.Join(deps.MediaFolder, path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("image %s: %w", spec, err)
	}
	return New(deps.Frames, path)
}
