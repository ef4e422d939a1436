package consumer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
)

type fakeDriver struct {
	mu        sync.Mutex
	opened    bool
	keyer     KeyerMode
	channels  int
	scheduled [][]int32 // audio of each scheduled frame
	videos    [][]byte
	syncs     int
	closed    bool
}

func (d *fakeDriver) Open(desc format.Descriptor, keyer KeyerMode, audioChannels int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = true
	d.keyer = keyer
	d.channels = audioChannels
	return nil
}

func (d *fakeDriver) Schedule(video []byte, audio []int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.videos = append(d.videos, append([]byte(nil), video[:8]...))
	d.scheduled = append(d.scheduled, append([]int32(nil), audio...))
	return nil
}

func (d *fakeDriver) WaitSync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncs++
	return nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func TestSDIScheduledPlayback(t *testing.T) {
	drv := &fakeDriver{}
	s := NewSDI(drv, KeyerInternal, 8, 4, true)
	desc := format.Get(format.PAL)
	require.NoError(t, s.Initialize(desc))
	assert.True(t, drv.opened)
	assert.Equal(t, KeyerInternal, drv.keyer)

	frames := frame.NewFactory(desc)
	f := frames.NewFrame()
	f.Image[0] = 99
	f.Audio = []int32{111, 222, 333, 444} // two stereo sample frames

	require.NoError(t, s.Prepare(f))
	require.NoError(t, s.Display(f))

	assert.Len(t, drv.videos, 1)
	assert.Equal(t, byte(99), drv.videos[0][0])
	assert.Equal(t, 1, drv.syncs, "clock consumer waits for the card tick")

	// Stereo embedded into an 8 channel layout, extra channels silent.
	audio := drv.scheduled[0]
	require.Len(t, audio, 2*8)
	assert.Equal(t, int32(111), audio[0])
	assert.Equal(t, int32(222), audio[1])
	for ch := 2; ch < 8; ch++ {
		assert.Zero(t, audio[ch])
	}
	assert.Equal(t, int32(333), audio[8])
	assert.Equal(t, int32(444), audio[9])
}

func TestSDIRingReusesSlots(t *testing.T) {
	drv := &fakeDriver{}
	s := NewSDI(drv, KeyerNone, 2, 3, false)
	desc := format.Get(format.PAL)
	require.NoError(t, s.Initialize(desc))

	frames := frame.NewFactory(desc)
	for i := 0; i < 7; i++ {
		f := frames.NewFrame()
		f.Image[0] = byte(i)
		require.NoError(t, s.Prepare(f))
		require.NoError(t, s.Display(f))
	}
	assert.Len(t, drv.videos, 7)
	assert.Equal(t, 0, drv.syncs, "non-clock SDI never waits")
	for i, v := range drv.videos {
		assert.Equal(t, byte(i), v[0])
	}
}

func TestSDICloseReachesDriver(t *testing.T) {
	drv := &fakeDriver{}
	s := NewSDI(drv, KeyerNone, 2, 3, false)
	require.NoError(t, s.Initialize(format.Get(format.PAL)))
	require.NoError(t, s.Close())
	assert.True(t, drv.closed)
}

func TestParseHelpers(t *testing.T) {
	k, err := ParseKeyerMode("external")
	require.NoError(t, err)
	assert.Equal(t, KeyerExternal, k)
	_, err = ParseKeyerMode("chroma")
	assert.Error(t, err)

	p, err := ParseScalePolicy("uniformtofill")
	require.NoError(t, err)
	assert.Equal(t, ScaleUniformToFill, p)
	_, err = ParseScalePolicy("stretchy")
	assert.Error(t, err)
}
