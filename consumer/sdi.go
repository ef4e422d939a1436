package consumer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
)

// KeyerMode selects how an SDI card outputs alpha.
type KeyerMode int

const (
	KeyerNone KeyerMode = iota
	KeyerInternal
	KeyerExternal
)

// ParseKeyerMode resolves a config token.
func ParseKeyerMode(s string) (KeyerMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return KeyerNone, nil
	case "internal":
		return KeyerInternal, nil
	case "external":
		return KeyerExternal, nil
	}
	return KeyerNone, fmt.Errorf("unknown keyer mode %q", s)
}

// SDIDriver is the seam to a vendor playout SDK. Implementations wrap the
// card's scheduled-playback API; the consumer never sees vendor types.
type SDIDriver interface {
	// Open enables video (and audio) output for the given format.
	Open(desc format.Descriptor, keyer KeyerMode, audioChannels int) error
	// Schedule posts one video frame with embedded audio for a future output
	// slot. It must not block; the card DMAs from the given buffers.
	Schedule(video []byte, audio []int32) error
	// WaitSync blocks until the card has consumed a frame slot. Cards drive
	// the channel clock through this.
	WaitSync() error
	Close() error
}

// SDI is the hardware playout consumer: a scheduled-playback ring of
// preallocated frames, audio embedding, optional keyer, and (usually) the
// channel clock.
type SDI struct {
	Driver        SDIDriver
	Keyer         KeyerMode
	AudioChannels int // embedded audio channels, up to the card's limit
	RingDepth     int // preallocated schedule depth, typically 3-8
	Sync          bool

	desc format.Descriptor

	mu        sync.Mutex
	ring      []sdiSlot
	ringPos   int
	scheduled int

	logger *log.Logger
}

type sdiSlot struct {
	video []byte
	audio []int32
}

func NewSDI(driver SDIDriver, keyer KeyerMode, audioChannels, ringDepth int, sync bool) *SDI {
	if ringDepth < 3 {
		ringDepth = 3
	}
	if audioChannels <= 0 {
		audioChannels = format.AudioChannels
	}
	return &SDI{
		Driver:        driver,
		Keyer:         keyer,
		AudioChannels: audioChannels,
		RingDepth:     ringDepth,
		Sync:          sync,
		logger:        log.WithPrefix("sdi"),
	}
}

func (s *SDI) Initialize(desc format.Descriptor) error {
	s.desc = desc
	if err := s.Driver.Open(desc, s.Keyer, s.AudioChannels); err != nil {
		return fmt.Errorf("sdi: %w", err)
	}
	maxSlot := 0
	for _, n := range desc.Cadence {
		if n > maxSlot {
			maxSlot = n
		}
	}
	s.ring = make([]sdiSlot, s.RingDepth)
	for i := range s.ring {
		s.ring[i] = sdiSlot{
			video: make([]byte, desc.Size),
			audio: make([]int32, maxSlot*s.AudioChannels),
		}
	}
	return nil
}

// Prepare copies the frame into the next ring slot and posts it to the card
// one tick ahead of its display time.
func (s *SDI) Prepare(f *frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := &s.ring[s.ringPos]
	s.ringPos = (s.ringPos + 1) % len(s.ring)

	copy(slot.video, f.Image)
	audio := s.embedAudio(slot.audio, f.Audio)

	if err := s.Driver.Schedule(slot.video, audio); err != nil {
		return fmt.Errorf("sdi: schedule: %w", err)
	}
	s.scheduled++
	return nil
}

// Display waits for the card's frame tick when this consumer is the clock.
func (s *SDI) Display(*frame.Frame) error {
	if !s.Sync {
		return nil
	}
	if err := s.Driver.WaitSync(); err != nil {
		return fmt.Errorf("sdi: sync: %w", err)
	}
	return nil
}

func (s *SDI) BufferDepth() int              { return s.RingDepth }
func (s *SDI) HasSynchronizationClock() bool { return s.Sync }
func (s *SDI) Index() int                    { return IndexSDI }

func (s *SDI) Close() error {
	return s.Driver.Close()
}

// embedAudio lays the channel's (stereo-interleaved) audio into the card's
// embedding layout, zero-filling channels beyond what the composite carries.
func (s *SDI) embedAudio(dst []int32, src []int32) []int32 {
	srcFrames := len(src) / format.AudioChannels
	n := srcFrames * s.AudioChannels
	if n > len(dst) {
		n = len(dst)
		srcFrames = n / s.AudioChannels
	}
	out := dst[:n]
	for i := range out {
		out[i] = 0
	}
	for f := 0; f < srcFrames; f++ {
		for ch := 0; ch < format.AudioChannels && ch < s.AudioChannels; ch++ {
			out[f*s.AudioChannels+ch] = src[f*format.AudioChannels+ch]
		}
	}
	return out
}
