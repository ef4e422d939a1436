package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playoutd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
media-folder: /srv/media
log-level: debug
amcp:
  port: 6250
channels:
  - video-mode: 1080i5000
    renderer: software
    consumers:
      - type: screen
        sync: true
        scale: uniform
      - type: file
        path: capture-%Y%m%d.mp4
        codec: libx264
  - video-mode: PAL
    consumers:
      - type: audio
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/media", cfg.MediaFolder)
	assert.Equal(t, "templates", cfg.TemplateFolder, "default survives partial config")
	assert.Equal(t, 6250, cfg.AMCP.Port)
	require.Len(t, cfg.Channels, 2)
	assert.Equal(t, "1080i5000", cfg.Channels[0].VideoMode)
	assert.Equal(t, "software", cfg.Channels[0].Renderer)
	require.Len(t, cfg.Channels[0].Consumers, 2)
	assert.True(t, cfg.Channels[0].Consumers[0].Sync)
	assert.Equal(t, "capture-%Y%m%d.mp4", cfg.Channels[0].Consumers[1].Path)
}

func TestLoadRejectsEmptyChannels(t *testing.T) {
	_, err := Load(writeConfig(t, "amcp:\n  port: 5250\n"))
	assert.Error(t, err)
}

func TestLoadRejectsChannelWithoutConsumers(t *testing.T) {
	_, err := Load(writeConfig(t, "channels:\n  - video-mode: PAL\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 5250, cfg.AMCP.Port)
	require.Len(t, cfg.Channels, 1)
	assert.Equal(t, "PAL", cfg.Channels[0].VideoMode)
}
