package transition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/producer"
)

// constProducer emits the same frame until its feed runs out.
type constProducer struct {
	f    *frame.Frame
	left int // -1 = forever
}

func (p *constProducer) Receive(int) (*frame.Frame, error) {
	if p.left == 0 {
		return nil, producer.EOF
	}
	if p.left > 0 {
		p.left--
	}
	return p.f, nil
}
func (p *constProducer) Following() producer.Producer { return nil }
func (p *constProducer) SetLeading(producer.Producer) {}

func solid(frames *frame.Factory, b, g, r, a byte, audio int32, nb int) *frame.Frame {
	f := frames.NewFrame()
	for i := 0; i < len(f.Image); i += 4 {
		f.Image[i] = b
		f.Image[i+1] = g
		f.Image[i+2] = r
		f.Image[i+3] = a
	}
	if nb > 0 {
		f.Audio = make([]int32, nb*format.AudioChannels)
		for i := range f.Audio {
			f.Audio[i] = audio
		}
	}
	return f
}

func mixOver(t *testing.T, frames *frame.Factory, n int) producer.Producer {
	t.Helper()
	dest := &constProducer{f: solid(frames, 255, 255, 255, 255, 2000, 960), left: -1}
	tp, err := New(frames, dest, Info{Kind: Mix, Duration: n})
	require.NoError(t, err)
	tp.SetLeading(&constProducer{f: solid(frames, 0, 0, 0, 255, 1000, 960), left: -1})
	return tp
}

func TestRejectsZeroDuration(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.X720p5000))
	dest := &constProducer{f: frames.Empty(), left: -1}

	_, err := New(frames, dest, Info{Kind: Mix, Duration: 0})
	assert.Error(t, err)

	_, err = New(frames, dest, Info{Kind: Cut, Duration: 0})
	assert.NoError(t, err)
}

func TestMixEndpointsAndEOF(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.X720p5000))
	const n = 25
	tp := mixOver(t, frames, n)

	f, err := tp.Receive(960)
	require.NoError(t, err)
	// First frame: nearly all source (black).
	assert.Less(t, f.Image[0], byte(16))
	assert.Equal(t, byte(255), f.Image[3]) // both sides opaque

	var last *frame.Frame
	for i := 1; i < n; i++ {
		last, err = tp.Receive(960)
		require.NoError(t, err)
	}
	// Final frame: fully destination (white).
	assert.Equal(t, byte(255), last.Image[0])

	_, err = tp.Receive(960)
	assert.ErrorIs(t, err, producer.EOF)
}

func TestMixProgressIsMonotone(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.X720p5000))
	tp := mixOver(t, frames, 10)

	prev := byte(0)
	for i := 0; i < 10; i++ {
		f, err := tp.Receive(960)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, f.Image[0], prev)
		prev = f.Image[0]
	}
}

func TestDurationOne(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.X720p5000))
	tp := mixOver(t, frames, 1)

	f, err := tp.Receive(960)
	require.NoError(t, err)
	// The single blended frame lands on full destination progress.
	assert.Equal(t, byte(255), f.Image[0])

	_, err = tp.Receive(960)
	assert.ErrorIs(t, err, producer.EOF)
}

func TestAudioCrossFade(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.X720p5000))
	const n = 25
	tp := mixOver(t, frames, n)

	var mid *frame.Frame
	for i := 0; i <= 12; i++ {
		var err error
		mid, err = tp.Receive(960)
		require.NoError(t, err)
	}
	require.Len(t, mid.Audio, 960*format.AudioChannels)
	// At the middle frame the gains are approximately equal:
	// 1000*(1-d) + 2000*d with d ~ 0.5.
	assert.InDelta(t, 1500, float64(mid.Audio[0]), 60)
}

func TestFollowingIsDestination(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.X720p5000))
	dest := &constProducer{f: frames.Empty(), left: -1}
	tp, err := New(frames, dest, Info{Kind: Mix, Duration: 5})
	require.NoError(t, err)
	assert.Equal(t, producer.Producer(dest), tp.Following())
}

func TestCutShowsSource(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.X720p5000))
	dest := &constProducer{f: solid(frames, 255, 255, 255, 255, 0, 0), left: -1}
	tp, err := New(frames, dest, Info{Kind: Cut, Duration: 3})
	require.NoError(t, err)
	tp.SetLeading(&constProducer{f: solid(frames, 1, 2, 3, 255, 0, 0), left: -1})

	f, err := tp.Receive(960)
	require.NoError(t, err)
	assert.Equal(t, byte(1), f.Image[0])
	assert.Equal(t, byte(2), f.Image[1])
	assert.Equal(t, byte(3), f.Image[2])
}

func TestNoLeadingFadesFromTransparent(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.X720p5000))
	dest := &constProducer{f: solid(frames, 255, 255, 255, 255, 0, 0), left: -1}
	tp, err := New(frames, dest, Info{Kind: Mix, Duration: 10})
	require.NoError(t, err)

	// No SetLeading: the source is the empty producer.
	f, err := tp.Receive(960)
	require.NoError(t, err)
	assert.Less(t, f.Image[3], byte(32)) // alpha still mostly transparent
}

func TestSourceEOFSubstitutesEmpty(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.X720p5000))
	dest := &constProducer{f: solid(frames, 255, 255, 255, 255, 0, 0), left: -1}
	tp, err := New(frames, dest, Info{Kind: Mix, Duration: 10})
	require.NoError(t, err)
	tp.SetLeading(&constProducer{f: solid(frames, 9, 9, 9, 255, 0, 0), left: 2})

	for i := 0; i < 10; i++ {
		f, err := tp.Receive(960)
		require.NoError(t, err)
		require.NotNil(t, f)
	}
}

func TestWipeBorderColumns(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.X720p5000))
	width := frames.Desc().Width // 1280
	dest := &constProducer{f: solid(frames, 200, 200, 200, 255, 0, 0), left: -1}
	tp, err := New(frames, dest, Info{
		Kind: Wipe, Duration: 50, Direction: FromLeft,
		BorderWidth: 4, BorderColor: 0xFF00FF00,
	})
	require.NoError(t, err)
	tp.SetLeading(&constProducer{f: solid(frames, 10, 10, 10, 255, 0, 0), left: -1})

	var f *frame.Frame
	for i := 0; i < 25; i++ {
		f, err = tp.Receive(960)
		require.NoError(t, err)
	}

	// Halfway: the reveal edge sits at 0.5*(width+border).
	reveal := (width + 4) / 2
	px := func(x int) []byte { return f.Image[x*4 : x*4+4] }

	assert.Equal(t, byte(200), px(reveal-4-1)[0], "destination side")
	assert.Equal(t, []byte{0x00, 0xFF, 0x00, 0xFF}, px(reveal-2), "border")
	assert.Equal(t, byte(10), px(reveal+1)[0], "source side")
}

func TestWipeFromRightMirrors(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.X720p5000))
	width := frames.Desc().Width
	newWipe := func(dir Direction) producer.Producer {
		dest := &constProducer{f: solid(frames, 200, 0, 0, 255, 0, 0), left: -1}
		tp, err := New(frames, dest, Info{Kind: Wipe, Duration: 50, Direction: dir})
		require.NoError(t, err)
		tp.SetLeading(&constProducer{f: solid(frames, 10, 0, 0, 255, 0, 0), left: -1})
		return tp
	}

	left := newWipe(FromLeft)
	right := newWipe(FromRight)
	var fl, fr *frame.Frame
	for i := 0; i < 20; i++ {
		var err error
		fl, err = left.Receive(960)
		require.NoError(t, err)
		fr, err = right.Receive(960)
		require.NoError(t, err)
	}

	// Pixel-level reflection across the vertical axis.
	for _, x := range []int{0, 100, width / 2, width - 50, width - 1} {
		mirror := width - 1 - x
		assert.Equal(t, fl.Image[x*4], fr.Image[mirror*4], "x=%d", x)
	}
}

func TestPushSplitsScreen(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.X720p5000))
	width := frames.Desc().Width
	dest := &constProducer{f: solid(frames, 200, 0, 0, 255, 0, 0), left: -1}
	tp, err := New(frames, dest, Info{Kind: Push, Duration: 50, Direction: FromLeft})
	require.NoError(t, err)
	tp.SetLeading(&constProducer{f: solid(frames, 10, 0, 0, 255, 0, 0), left: -1})

	var f *frame.Frame
	for i := 0; i < 25; i++ {
		f, err = tp.Receive(960)
		require.NoError(t, err)
	}

	// Halfway through a push from the left: destination occupies the left
	// half, source the right half.
	assert.Equal(t, byte(200), f.Image[(width/4)*4])
	assert.Equal(t, byte(10), f.Image[(width*3/4)*4])
}

func TestSlideKeepsSourceStationary(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.X720p5000))
	width := frames.Desc().Width
	// Source with a gradient so translation would be visible.
	src := frames.NewFrame()
	for y := 0; y < frames.Desc().Height; y++ {
		for x := 0; x < width; x++ {
			src.Image[(y*width+x)*4] = byte(x % 251)
			src.Image[(y*width+x)*4+3] = 255
		}
	}
	dest := &constProducer{f: solid(frames, 200, 0, 0, 255, 0, 0), left: -1}
	tp, err := New(frames, dest, Info{Kind: Slide, Duration: 50, Direction: FromLeft})
	require.NoError(t, err)
	tp.SetLeading(&constProducer{f: src, left: -1})

	var f *frame.Frame
	for i := 0; i < 25; i++ {
		f, err = tp.Receive(960)
		require.NoError(t, err)
	}

	// Right half still shows the source in place (unshifted gradient).
	x := width * 3 / 4
	assert.Equal(t, byte(x%251), f.Image[x*4])
	// Left half is covered by the entering destination.
	assert.Equal(t, byte(200), f.Image[(width/4)*4])
}

func TestInterlacedFieldsUseBothDeltas(t *testing.T) {
	frames := frame.NewFactory(format.Get(format.PAL)) // upper field first
	dest := &constProducer{f: solid(frames, 255, 255, 255, 255, 0, 0), left: -1}
	tp, err := New(frames, dest, Info{Kind: Mix, Duration: 2})
	require.NoError(t, err)
	tp.SetLeading(&constProducer{f: solid(frames, 0, 0, 0, 255, 0, 0), left: -1})

	f, err := tp.Receive(1920)
	require.NoError(t, err)

	width := frames.Desc().Width
	row0 := f.Image[0]           // upper field, earlier progress
	row1 := f.Image[width*4]     // lower field, later progress
	assert.Less(t, row0, row1, "the first field must lag the second by one half step")
}

func TestParseKind(t *testing.T) {
	for s, want := range map[string]Kind{"mix": Mix, "CUT": Cut, "Wipe": Wipe, "PUSH": Push, "slide": Slide} {
		k, ok := ParseKind(s)
		assert.True(t, ok, s)
		assert.Equal(t, want, k)
	}
	_, ok := ParseKind("dissolve")
	assert.False(t, ok)
}
