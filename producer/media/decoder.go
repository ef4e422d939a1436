package media

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/asticode/go-astiav"

	"github.com/richinsley/goplayout/format"
)

// errStreamEnd reports that the demuxer and decoders are fully drained.
var errStreamEnd = errors.New("stream end")

// decoder wraps the libav demux/decode/convert chain for one file. All methods
// must be called from the worker goroutine that created it.
type decoder struct {
	fc   *astiav.FormatContext
	desc format.Descriptor

	vStream *astiav.Stream
	vCtx    *astiav.CodecContext
	aStream *astiav.Stream
	aCtx    *astiav.CodecContext

	pkt    *astiav.Packet
	vFrame *astiav.Frame
	aFrame *astiav.Frame

	ssc    *astiav.SoftwareScaleContext
	scaled *astiav.Frame

	swr       *astiav.SoftwareResampleContext
	resampled *astiav.Frame

	// Decoded, resampled samples waiting to be zipped with video.
	fifo []int32

	draining bool
}

func newDecoder(fc *astiav.FormatContext, desc format.Descriptor) (*decoder, error) {
	d := &decoder{fc: fc, desc: desc}

	for _, s := range fc.Streams() {
		switch s.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if d.vStream == nil {
				d.vStream = s
			}
		case astiav.MediaTypeAudio:
			if d.aStream == nil {
				d.aStream = s
			}
		}
	}
	if d.vStream == nil {
		return nil, errors.New("no video stream")
	}

	var err error
	if d.vCtx, err = openCodec(d.vStream); err != nil {
		d.close()
		return nil, fmt.Errorf("video: %w", err)
	}
	if d.aStream != nil {
		if d.aCtx, err = openCodec(d.aStream); err != nil {
			d.close()
			return nil, fmt.Errorf("audio: %w", err)
		}
		d.swr = astiav.AllocSoftwareResampleContext()
		if d.swr == nil {
			d.close()
			return nil, errors.New("alloc resample context")
		}
		d.resampled = astiav.AllocFrame()
	}

	d.pkt = astiav.AllocPacket()
	d.vFrame = astiav.AllocFrame()
	d.aFrame = astiav.AllocFrame()
	return d, nil
}

func openCodec(s *astiav.Stream) (*astiav.CodecContext, error) {
	par := s.CodecParameters()
	dec := astiav.FindDecoder(par.CodecID())
	if dec == nil {
		return nil, fmt.Errorf("no decoder for %s", par.CodecID())
	}
	ctx := astiav.AllocCodecContext(dec)
	if ctx == nil {
		return nil, errors.New("alloc codec context")
	}
	if err := par.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("codec parameters: %w", err)
	}
	if err := ctx.Open(dec, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("open codec: %w", err)
	}
	return ctx, nil
}

// nextVideo returns the next decoded video frame as packed BGRA at the channel
// dimensions, decoding interleaved audio into the fifo along the way.
func (d *decoder) nextVideo() ([]byte, error) {
	for {
		if err := d.vCtx.ReceiveFrame(d.vFrame); err == nil {
			out, err := d.toBGRA(d.vFrame)
			d.vFrame.Unref()
			return out, err
		} else if !errors.Is(err, astiav.ErrEagain) && !errors.Is(err, astiav.ErrEof) {
			return nil, fmt.Errorf("receive video: %w", err)
		} else if errors.Is(err, astiav.ErrEof) {
			return nil, errStreamEnd
		}

		if d.draining {
			// Flush already sent; keep pulling until EOF above.
			continue
		}

		if err := d.fc.ReadFrame(d.pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				d.draining = true
				_ = d.vCtx.SendPacket(nil)
				if d.aCtx != nil {
					_ = d.aCtx.SendPacket(nil)
					d.drainAudio()
				}
				continue
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}

		switch d.pkt.StreamIndex() {
		case d.vStream.Index():
			if err := d.vCtx.SendPacket(d.pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
				d.pkt.Unref()
				return nil, fmt.Errorf("send video packet: %w", err)
			}
		default:
			if d.aStream != nil && d.pkt.StreamIndex() == d.aStream.Index() {
				if err := d.aCtx.SendPacket(d.pkt); err == nil || errors.Is(err, astiav.ErrEagain) {
					d.drainAudio()
				}
			}
		}
		d.pkt.Unref()
	}
}

// toBGRA scales/converts a decoded frame to the channel's plane.
func (d *decoder) toBGRA(src *astiav.Frame) ([]byte, error) {
	if d.ssc == nil {
		var err error
		d.ssc, err = astiav.CreateSoftwareScaleContext(
			src.Width(), src.Height(), src.PixelFormat(),
			d.desc.Width, d.desc.Height, astiav.PixelFormatBgra,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBicubic),
		)
		if err != nil {
			return nil, fmt.Errorf("create scale context: %w", err)
		}
		d.scaled = astiav.AllocFrame()
		d.scaled.SetWidth(d.desc.Width)
		d.scaled.SetHeight(d.desc.Height)
		d.scaled.SetPixelFormat(astiav.PixelFormatBgra)
		if err := d.scaled.AllocBuffer(1); err != nil {
			return nil, fmt.Errorf("alloc scaled buffer: %w", err)
		}
	}
	if err := d.ssc.ScaleFrame(src, d.scaled); err != nil {
		return nil, fmt.Errorf("scale frame: %w", err)
	}
	n, err := d.scaled.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("image buffer size: %w", err)
	}
	out := make([]byte, n)
	if _, err := d.scaled.ImageCopyToBuffer(out, 1); err != nil {
		return nil, fmt.Errorf("image copy: %w", err)
	}
	return out, nil
}

// drainAudio receives every pending decoded audio frame, resamples to the
// channel rate/layout and appends to the fifo.
func (d *decoder) drainAudio() {
	for {
		if err := d.aCtx.ReceiveFrame(d.aFrame); err != nil {
			return
		}
		d.resampled.SetSampleFormat(astiav.SampleFormatS32)
		d.resampled.SetChannelLayout(astiav.ChannelLayoutStereo)
		d.resampled.SetSampleRate(format.SampleRate)
		d.resampled.SetNbSamples(d.aFrame.NbSamples())
		if err := d.resampled.AllocBuffer(0); err != nil {
			d.aFrame.Unref()
			continue
		}
		if err := d.swr.ConvertFrame(d.aFrame, d.resampled); err != nil {
			d.aFrame.Unref()
			d.resampled.Unref()
			continue
		}
		if pcm, err := d.resampled.Data().Bytes(0); err == nil && len(pcm) >= 4 {
			n := d.resampled.NbSamples() * format.AudioChannels * 4
			if n > len(pcm) {
				n = len(pcm)
			}
			samples := unsafe.Slice((*int32)(unsafe.Pointer(&pcm[0])), n/4)
			d.fifo = append(d.fifo, samples...)
		}
		d.aFrame.Unref()
		d.resampled.Unref()
	}
}

// takeAudio removes up to n interleaved samples from the fifo, zero-padding
// when the clip has no (or not enough) audio so cadence is preserved.
func (d *decoder) takeAudio(n int) []int32 {
	out := make([]int32, n)
	got := copy(out, d.fifo)
	d.fifo = d.fifo[got:]
	return out
}

// rewind seeks back to the start of the file for looping playback.
func (d *decoder) rewind() error {
	if err := d.fc.SeekFrame(d.vStream.Index(), 0, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	d.vCtx.FlushBuffers()
	if d.aCtx != nil {
		d.aCtx.FlushBuffers()
	}
	d.draining = false
	d.fifo = d.fifo[:0]
	return nil
}

func (d *decoder) close() {
	if d.ssc != nil {
		d.ssc.Free()
	}
	if d.scaled != nil {
		d.scaled.Free()
	}
	if d.swr != nil {
		d.swr.Free()
	}
	if d.resampled != nil {
		d.resampled.Free()
	}
	if d.pkt != nil {
		d.pkt.Free()
	}
	if d.vFrame != nil {
		d.vFrame.Free()
	}
	if d.aFrame != nil {
		d.aFrame.Free()
	}
	if d.vCtx != nil {
		d.vCtx.Free()
	}
	if d.aCtx != nil {
		d.aCtx.Free()
	}
}
