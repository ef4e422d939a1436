// Package color provides the constant-color producer. The frame is rendered
// once at construction: a single color fills the plane, several colors render
// as a horizontal gradient between evenly spaced stops.
package color

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/producer"
)

type colorProducer struct {
	frames *frame.Factory
	frame  *frame.Frame
	spec   string
}

// New builds a color producer from one or more packed AARRGGBB values.
func New(frames *frame.Factory, values []uint32, spec string) producer.Producer {
	p := &colorProducer{frames: frames, spec: spec}
	p.frame = render(frames, values)
	return p
}

func (p *colorProducer) Receive(int) (*frame.Frame, error) { return p.frame, nil }
func (p *colorProducer) Following() producer.Producer      { return nil }
func (p *colorProducer) SetLeading(producer.Producer)      {}

func (p *colorProducer) String() string { return "color[" + p.spec + "]" }

func render(frames *frame.Factory, values []uint32) *frame.Frame {
	desc := frames.Desc()
	f := frames.NewFrame()
	if len(values) == 0 {
		return f
	}

	row := make([]byte, desc.Width*4)
	if len(values) == 1 {
		b, g, r, a := split(values[0])
		for x := 0; x < desc.Width; x++ {
			row[x*4+0] = b
			row[x*4+1] = g
			row[x*4+2] = r
			row[x*4+3] = a
		}
	} else {
		// Gradient stops spread across the full width.
		span := float64(desc.Width-1) / float64(len(values)-1)
		for x := 0; x < desc.Width; x++ {
			pos := float64(x) / span
			i := int(pos)
			if i >= len(values)-1 {
				i = len(values) - 2
			}
			t := pos - float64(i)
			b0, g0, r0, a0 := split(values[i])
			b1, g1, r1, a1 := split(values[i+1])
			row[x*4+0] = lerp(b0, b1, t)
			row[x*4+1] = lerp(g0, g1, t)
			row[x*4+2] = lerp(r0, r1, t)
			row[x*4+3] = lerp(a0, a1, t)
		}
	}
	for y := 0; y < desc.Height; y++ {
		copy(f.Image[y*len(row):], row)
	}
	return f
}

func split(argb uint32) (b, g, r, a byte) {
	return byte(argb), byte(argb >> 8), byte(argb >> 16), byte(argb >> 24)
}

func lerp(a, b byte, t float64) byte {
	return byte(float64(a) + (float64(b)-float64(a))*t + 0.5)
}

var namedColors = map[string]string{
	"EMPTY":  "#00000000",
	"BLACK":  "#FF000000",
	"WHITE":  "#FFFFFFFF",
	"RED":    "#FFFF0000",
	"GREEN":  "#FF00FF00",
	"BLUE":   "#FF0000FF",
	"ORANGE": "#FFFFA500",
	"YELLOW": "#FFFFFF00",
	"BROWN":  "#FFA52A2A",
	"GRAY":   "#FF808080",
	"TEAL":   "#FF008080",
}

// HexColor normalizes a color token: named colors map to their hex form and
// six-digit #RRGGBB promotes to opaque #FFRRGGBB.
func HexColor(s string) string {
	if s == "" {
		return s
	}
	if s[0] == '#' {
		if len(s) == 7 {
			return "#FF" + s[1:]
		}
		return s
	}
	if hex, ok := namedColors[strings.ToUpper(s)]; ok {
		return hex
	}
	return s
}

// TryColor parses a color token into a packed AARRGGBB value.
func TryColor(s string) (uint32, bool) {
	hex := HexColor(s)
	if len(hex) != 9 || hex[0] != '#' {
		return 0, false
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// Factory recognizes specs whose first token parses as a color. Consecutive
// color tokens become gradient stops; parsing stops at the first non-color
// token, which is typically the start of a transition clause.
func Factory(deps producer.Deps, params []string) (producer.Producer, error) {
	if len(params) == 0 {
		return nil, producer.ErrNotFound
	}
	if _, ok := TryColor(params[0]); !ok {
		return nil, producer.ErrNotFound
	}
	var values []uint32
	var specs []string
	for _, p := range params {
		v, ok := TryColor(p)
		if !ok {
			break
		}
		values = append(values, v)
		specs = append(specs, p)
	}
	return New(deps.Frames, values, strings.Join(specs, ", ")), nil
}

// MustParse is a test and wiring convenience for a single color token.
func MustParse(s string) uint32 {
	v, ok := TryColor(s)
	if !ok {
		panic(fmt.Sprintf("invalid color %q", s))
	}
	return v
}
