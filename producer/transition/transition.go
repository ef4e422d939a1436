// Package transition provides the time-bounded producer that blends a source
// producer into a destination producer over a fixed number of frames.
//
// On interlaced channels every frame is composed twice, at the half-step and
// full-step progress values, and the two renders are interleaved one scanline
// each so field motion stays smooth. Audio cross-fades on the full-step value.
package transition

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/producer"
)

type Kind int

const (
	Cut Kind = iota
	Mix
	Push
	Slide
	Wipe
)

func (k Kind) String() string {
	switch k {
	case Cut:
		return "cut"
	case Mix:
		return "mix"
	case Push:
		return "push"
	case Slide:
		return "slide"
	case Wipe:
		return "wipe"
	}
	return "unknown"
}

// ParseKind resolves an AMCP transition token.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToUpper(s) {
	case "CUT":
		return Cut, true
	case "MIX":
		return Mix, true
	case "PUSH":
		return Push, true
	case "SLIDE":
		return Slide, true
	case "WIPE":
		return Wipe, true
	}
	return Cut, false
}

type Direction int

const (
	FromLeft Direction = iota
	FromRight
)

// Tween shapes the progress curve. The default is linear.
type Tween func(t float64) float64

// Info is the immutable transition configuration.
type Info struct {
	Kind        Kind
	Duration    int // frames
	Direction   Direction
	BorderWidth int
	BorderColor uint32 // packed AARRGGBB
	Tween       Tween
}

type transitionProducer struct {
	frames  *frame.Factory
	info    Info
	current int

	source producer.Producer
	dest   producer.Producer

	logger *log.Logger
}

// New wraps dest in a transition. The leading producer set later by the layer
// becomes the transition's source; until then the source is the empty producer
// so the transition fades in from transparent black.
func New(frames *frame.Factory, dest producer.Producer, info Info) (producer.Producer, error) {
	if dest == nil {
		return nil, fmt.Errorf("transition: nil destination")
	}
	if info.Duration < 1 && info.Kind != Cut {
		return nil, fmt.Errorf("transition: %s requires a duration of at least one frame", info.Kind)
	}
	if info.Tween == nil {
		info.Tween = func(t float64) float64 { return t }
	}
	return &transitionProducer{
		frames: frames,
		info:   info,
		source: producer.NewEmpty(frames),
		dest:   dest,
		logger: log.WithPrefix("transition"),
	}, nil
}

func (p *transitionProducer) Following() producer.Producer { return p.dest }

func (p *transitionProducer) SetLeading(prev producer.Producer) {
	if prev != nil {
		p.source = prev
	}
}

func (p *transitionProducer) String() string {
	return fmt.Sprintf("transition[%s:%d]", p.info.Kind, p.info.Duration)
}

func (p *transitionProducer) Receive(nbSamples int) (*frame.Frame, error) {
	if p.current >= p.info.Duration {
		return nil, producer.EOF
	}
	p.current++

	var src, dst *frame.Frame
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		src = p.subFrame(&p.source, nbSamples)
	}()
	go func() {
		defer wg.Done()
		dst = p.subFrame(&p.dest, nbSamples)
	}()
	wg.Wait()

	return p.compose(src, dst, nbSamples), nil
}

// subFrame pulls one frame from a sub-producer, substituting the empty frame at
// end of feed and replacing the producer on failure so a broken clip cannot
// stall the transition.
func (p *transitionProducer) subFrame(pp *producer.Producer, nbSamples int) *frame.Frame {
	f, err := (*pp).Receive(nbSamples)
	if err == nil {
		return f
	}
	if err != producer.EOF {
		p.logger.Warn("removed producer from transition", "err", err)
		*pp = producer.NewEmpty(p.frames)
	}
	return p.frames.Empty()
}

func (p *transitionProducer) compose(src, dst *frame.Frame, nbSamples int) *frame.Frame {
	desc := p.frames.Desc()

	if p.info.Kind == Cut {
		return src
	}

	n := float64(p.info.Duration)
	t := float64(p.current)
	delta1 := p.info.Tween((2*t - 1) / (2 * n))
	delta2 := p.info.Tween((2 * t) / (2 * n))

	out := p.frames.NewFrame()
	if desc.Interlaced() {
		a := make([]byte, desc.Size)
		b := make([]byte, desc.Size)
		p.composeImage(a, src.Image, dst.Image, delta1)
		p.composeImage(b, src.Image, dst.Image, delta2)
		interleave(out.Image, a, b, desc)
	} else {
		p.composeImage(out.Image, src.Image, dst.Image, delta2)
	}

	out.Audio = crossFade(src.Audio, dst.Audio, delta2, nbSamples)
	return out
}

// composeImage renders one full progress step of the transition into dst.
func (p *transitionProducer) composeImage(out, src, dst []byte, delta float64) {
	desc := p.frames.Desc()
	width, height := desc.Width, desc.Height

	switch p.info.Kind {
	case Mix:
		lerpImage(out, src, dst, delta)

	case Slide:
		copy(out, src)
		offset := int(delta*float64(width) + 0.5)
		blitShifted(out, dst, width, height, offset-width, p.info.Direction)

	case Push:
		offset := int(delta*float64(width) + 0.5)
		blitShifted(out, src, width, height, offset, p.info.Direction)
		blitShifted(out, dst, width, height, offset-width, p.info.Direction)

	case Wipe:
		p.wipe(out, src, dst, delta)
	}
}

// lerpImage blends src into dst per byte: out = src*(1-delta) + dst*delta.
func lerpImage(out, src, dst []byte, delta float64) {
	d := uint32(delta*256 + 0.5)
	if d > 256 {
		d = 256
	}
	inv := 256 - d
	for i := range out {
		out[i] = byte((uint32(src[i])*inv + uint32(dst[i])*d) >> 8)
	}
}

// blitShifted copies img horizontally shifted by offset pixels. A positive
// offset moves the image toward the transition's direction of travel.
func blitShifted(out, img []byte, width, height, offset int, dir Direction) {
	if dir == FromRight {
		offset = -offset
	}
	for y := 0; y < height; y++ {
		srcRow := img[y*width*4 : (y+1)*width*4]
		dstRow := out[y*width*4 : (y+1)*width*4]
		if offset >= 0 {
			n := width - offset
			if n <= 0 {
				continue
			}
			copy(dstRow[offset*4:], srcRow[:n*4])
		} else {
			n := width + offset
			if n <= 0 {
				continue
			}
			copy(dstRow[:n*4], srcRow[-offset*4:])
		}
	}
}

// wipe reveals the destination behind a moving vertical edge, painting the
// border columns that straddle the edge in the configured border color.
func (p *transitionProducer) wipe(out, src, dst []byte, delta float64) {
	desc := p.frames.Desc()
	width, height := desc.Width, desc.Height
	bw := p.info.BorderWidth

	reveal := int(delta*float64(width+bw) + 0.5)
	border := make([]byte, 4)
	border[0] = byte(p.info.BorderColor)
	border[1] = byte(p.info.BorderColor >> 8)
	border[2] = byte(p.info.BorderColor >> 16)
	border[3] = byte(p.info.BorderColor >> 24)

	for y := 0; y < height; y++ {
		srcRow := src[y*width*4 : (y+1)*width*4]
		dstRow := dst[y*width*4 : (y+1)*width*4]
		outRow := out[y*width*4 : (y+1)*width*4]

		for x := 0; x < width; x++ {
			// Position relative to the leading edge of the reveal.
			pos := x
			if p.info.Direction == FromRight {
				pos = width - 1 - x
			}
			// A wipe samples both producers in place; only the edge moves.
			var px []byte
			switch {
			case pos < reveal-bw:
				px = dstRow[x*4:]
			case pos < reveal:
				px = border
			default:
				px = srcRow[x*4:]
			}
			copy(outRow[x*4:x*4+4], px[:4])
		}
	}
}

// interleave merges two progress renders one scanline each. The field that is
// displayed first takes the earlier progress value.
func interleave(out, first, second []byte, desc format.Descriptor) {
	rowBytes := desc.Width * 4
	for y := 0; y < desc.Height; y++ {
		src := first
		if fieldOfRow(y, desc.Mode) == 1 {
			src = second
		}
		copy(out[y*rowBytes:(y+1)*rowBytes], src[y*rowBytes:(y+1)*rowBytes])
	}
}

// fieldOfRow returns 0 for rows in the field displayed first.
func fieldOfRow(y int, mode format.FieldMode) int {
	if mode == format.Lower {
		// Lower field (odd rows) first.
		if y%2 == 1 {
			return 0
		}
		return 1
	}
	return y % 2
}

// crossFade scales the source audio by 1-delta and the destination audio by
// delta and sums them, padding either side with silence.
func crossFade(src, dst []int32, delta float64, nbSamples int) []int32 {
	total := nbSamples * format.AudioChannels
	out := make([]int32, total)
	sGain := 1 - delta
	dGain := delta
	for i := 0; i < total; i++ {
		var v float64
		if i < len(src) {
			v += float64(src[i]) * sGain
		}
		if i < len(dst) {
			v += float64(dst[i]) * dGain
		}
		out[i] = int32(v)
	}
	return out
}
