// Package config loads the server configuration: folder paths, the AMCP
// endpoint and the per-channel consumer lists.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	MediaFolder    string `yaml:"media-folder"`
	TemplateFolder string `yaml:"template-folder"`
	DataFolder     string `yaml:"data-folder"`
	LogFolder      string `yaml:"log-folder"`
	LogLevel       string `yaml:"log-level"`

	AMCP struct {
		Port int `yaml:"port"`
	} `yaml:"amcp"`

	Channels []ChannelConfig `yaml:"channels"`
}

type ChannelConfig struct {
	VideoMode string `yaml:"video-mode"`
	// Renderer selects the compositor device: "opengl" (default, hidden GLFW
	// window), "egl" (Linux pbuffer, no display server) or "software".
	Renderer  string           `yaml:"renderer"`
	Consumers []ConsumerConfig `yaml:"consumers"`
}

type ConsumerConfig struct {
	Type string `yaml:"type"` // screen | file | audio | sdi

	// screen
	Scale string `yaml:"scale"`
	Sync  bool   `yaml:"sync"`

	// file
	Path  string `yaml:"path"`
	Codec string `yaml:"codec"`

	// sdi
	Device        int    `yaml:"device"`
	Keyer         string `yaml:"keyer"`
	AudioChannels int    `yaml:"audio-channels"`
	RingDepth     int    `yaml:"ring-depth"`
}

// Default is the configuration used when no file is given: one PAL channel
// with a synchronizing screen consumer.
func Default() *Config {
	c := &Config{
		MediaFolder:    "media",
		TemplateFolder: "templates",
		DataFolder:     "data",
		LogFolder:      "log",
		LogLevel:       "info",
	}
	c.AMCP.Port = 5250
	c.Channels = []ChannelConfig{{
		VideoMode: "PAL",
		Consumers: []ConsumerConfig{{Type: "screen", Sync: true, Scale: "uniform"}},
	}}
	return c
}

// Load reads path and fills in defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c := Default()
	c.Channels = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(c.Channels) == 0 {
		return nil, fmt.Errorf("config: no channels defined in %s", path)
	}
	for i, ch := range c.Channels {
		if ch.VideoMode == "" {
			return nil, fmt.Errorf("config: channel %d has no video-mode", i+1)
		}
		if len(ch.Consumers) == 0 {
			return nil, fmt.Errorf("config: channel %d has no consumers", i+1)
		}
	}
	return c, nil
}
