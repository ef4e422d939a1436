package image

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/producer"
)

func writePNG(t *testing.T, dir string, c color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	path := filepath.Join(dir, "still.png")
	fh, err := os.Create(path)
	require.NoError(t, err)
	defer fh.Close()
	require.NoError(t, png.Encode(fh, img))
	return path
}

func TestImageScaledToFormatAndBGRA(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.PAL))
	path := writePNG(t, t.TempDir(), color.NRGBA{R: 255, G: 0, B: 0, A: 255})

	p, err := New(frames, path)
	require.NoError(t, err)

	f, err := p.Receive(1920)
	require.NoError(t, err)
	assert.Len(t, f.Image, frames.Desc().Size)
	assert.Empty(t, f.Audio)

	// Red in BGRA: B=0, G=0, R=255, A=255, at every corner after scaling.
	w, h := frames.Desc().Width, frames.Desc().Height
	for _, off := range []int{0, (w - 1) * 4, (h - 1) * w * 4, (h*w - 1) * 4} {
		assert.Equal(t, byte(0x00), f.Image[off+0])
		assert.Equal(t, byte(0x00), f.Image[off+1])
		assert.Equal(t, byte(0xFF), f.Image[off+2])
		assert.Equal(t, byte(0xFF), f.Image[off+3])
	}
}

func TestSameFrameForever(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.PAL))
	path := writePNG(t, t.TempDir(), color.NRGBA{B: 255, A: 255})
	p, err := New(frames, path)
	require.NoError(t, err)

	f1, _ := p.Receive(1920)
	f2, _ := p.Receive(1920)
	assert.Same(t, f1, f2)
}

func TestFactorySpecHandling(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, color.NRGBA{A: 255})
	deps := producer.Deps{
		Frames:      frame.NewFactory(format.Get(format.PAL)),
		MediaFolder: dir,
	}

	p, err := Factory(deps, []string{"still.png"})
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = Factory(deps, []string{"clip.mov"})
	assert.ErrorIs(t, err, producer.ErrNotFound)

	_, err = Factory(deps, []string{"missing.png"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, producer.ErrNotFound, "missing file is a load error, not a pass")
}
