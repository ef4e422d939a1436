package media

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/producer"
)

func TestRecognizedExtensions(t *testing.T) {
	assert.True(t, Recognized(".mov"))
	assert.True(t, Recognized(".MP4"))
	assert.True(t, Recognized(".mxf"))
	assert.False(t, Recognized(".png"))
	assert.False(t, Recognized(""))
}

func TestFactoryPassesOnUnknownSpec(t *testing.T) {
	deps := producer.Deps{Frames: frame.NewFactory(format.Get(format.PAL))}
	_, err := Factory(deps, []string{"#FFFF0000"})
	assert.ErrorIs(t, err, producer.ErrNotFound)

	_, err = Factory(deps, nil)
	assert.ErrorIs(t, err, producer.ErrNotFound)
}

func TestFactoryMissingFileFailsSynchronously(t *testing.T) {
	deps := producer.Deps{
		Frames:      frame.NewFactory(format.Get(format.PAL)),
		MediaFolder: t.TempDir(),
	}
	_, err := Factory(deps, []string{"nope.mov"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, producer.ErrNotFound)
}
