// Package gpu implements the channel compositor: a single worker goroutine
// owning a graphics device, fed through a bounded job queue and drained in
// submission order. Uploads for job K overlap the readback of job K-1, so a
// composite surfaces two jobs after it was pushed.
package gpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
)

const jobQueueDepth = 5

type job struct {
	frames    []*frame.Frame
	nbSamples int
}

// Processor composites ordered frame stacks into single frames.
type Processor struct {
	desc   format.Descriptor
	frames *frame.Factory
	dev    Device

	mu sync.Mutex // guards in for the drop-oldest push
	in chan *job

	out chan *frame.Frame

	// Pipeline state, worker-only.
	writingPBOs   []PixelBuffer
	writingResult *frame.Frame
	readingFBO    FrameBuffer
	readingResult *frame.Frame

	pboPool []PixelBuffer
	fboPool []FrameBuffer

	empties  map[int]*frame.Frame // cached empty composites keyed by nbSamples
	draining bool
	failed   atomic.Bool

	done   chan struct{}
	logger *log.Logger
}

// NewProcessor starts the compositor worker on dev.
func NewProcessor(desc format.Descriptor, dev Device) *Processor {
	p := &Processor{
		desc:    desc,
		frames:  frame.NewFactory(desc),
		dev:     dev,
		in:      make(chan *job, jobQueueDepth),
		out:     make(chan *frame.Frame, jobQueueDepth),
		empties: make(map[int]*frame.Frame),
		done:    make(chan struct{}),
		logger:  log.WithPrefix("gpu"),
	}

	// Two composites of head start so pop never starves while the pipeline
	// warms up.
	p.out <- p.emptyComposite(desc.Cadence[0])
	p.out <- p.emptyComposite(desc.Cadence[0])

	go p.run()
	return p
}

// Push enqueues one tick's layer frames, ordered lowest z first. It never
// blocks: when the job queue is full the oldest job is dropped and the overrun
// logged. An empty stack short-circuits to a cached empty composite.
func (p *Processor) Push(frames []*frame.Frame, nbSamples int) {
	if len(frames) == 0 {
		p.out <- p.emptyComposite(nbSamples)
		return
	}
	j := &job{frames: frames, nbSamples: nbSamples}
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		select {
		case p.in <- j:
			return
		default:
		}
		select {
		case <-p.in:
			p.logger.Debug("job queue overrun, dropped oldest")
		default:
		}
	}
}

// Pop blocks until the next composite is available. Composites surface in
// submission order. After Close, Pop returns nil.
func (p *Processor) Pop() *frame.Frame {
	return <-p.out
}

// Failed reports whether the graphics device was lost. A channel whose
// processor failed must stop; there is no recovery from a dead context.
func (p *Processor) Failed() bool {
	return p.failed.Load()
}

// Close flushes the pipeline and stops the worker. Pending composites are
// drained so a worker blocked on a full queue can always reach the sentinel.
func (p *Processor) Close() {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range p.out {
		}
	}()
	p.mu.Lock()
	p.in <- nil
	p.mu.Unlock()
	<-p.done
	<-drained
}

func (p *Processor) emptyComposite(nbSamples int) *frame.Frame {
	if f, ok := p.empties[nbSamples]; ok {
		return f
	}
	f := p.frames.NewFrame()
	f.Audio = p.frames.Silence(nbSamples)
	p.empties[nbSamples] = f
	return f
}

func (p *Processor) run() {
	defer close(p.done)
	defer p.dev.Shutdown()

	if err := p.dev.Init(); err != nil {
		p.logger.Error("device init failed", "err", err)
		p.failed.Store(true)
		// Keep emitting empties so a caller mid-push cannot deadlock; the
		// channel checks Failed and stops.
		for j := range p.in {
			if j == nil {
				close(p.out)
				return
			}
			p.out <- p.emptyComposite(j.nbSamples)
		}
		return
	}

	for j := range p.in {
		if j == nil {
			p.flush()
			close(p.out)
			return
		}
		if err := p.process(j); err != nil {
			p.logger.Error("compositor failure", "err", err)
			p.failed.Store(true)
			p.out <- p.emptyComposite(j.nbSamples)
		}
	}
}

// process advances the triple-buffered pipeline by one job.
func (p *Processor) process(j *job) error {
	// Finish the read queued two jobs ago and release its composite.
	p.finishRead()

	// Finish the uploads of the previous job and compose them.
	written, err := p.compose()
	if err != nil {
		return err
	}

	// Begin reading the freshly composed framebuffer.
	if written != nil {
		written.BeginRead()
		p.readingFBO = written
		p.readingResult = p.writingResult
		p.writingResult = nil
	}

	// Begin uploading the new job and assemble its audio on the CPU.
	for _, f := range j.frames {
		pbo, err := p.getPBO()
		if err != nil {
			return err
		}
		pbo.BeginWrite(f.Image)
		p.writingPBOs = append(p.writingPBOs, pbo)
	}
	result := p.frames.NewFrame()
	result.Audio = concatAudio(j.frames, j.nbSamples)
	p.writingResult = result
	return nil
}

func (p *Processor) finishRead() {
	if p.readingFBO == nil {
		return
	}
	p.readingFBO.EndRead(p.readingResult.Image)
	if p.draining {
		// Nobody may be popping anymore; do not block shutdown.
		select {
		case p.out <- p.readingResult:
		default:
		}
	} else {
		p.out <- p.readingResult
	}
	p.fboPool = append(p.fboPool, p.readingFBO)
	p.readingFBO = nil
	p.readingResult = nil
}

// compose draws the pending upload group into a fresh framebuffer, lowest z
// first so the stacking order equals the submission order.
func (p *Processor) compose() (FrameBuffer, error) {
	if len(p.writingPBOs) == 0 {
		return nil, nil
	}
	fbo, err := p.getFBO()
	if err != nil {
		return nil, err
	}
	fbo.Bind()
	fbo.Clear()
	for _, pbo := range p.writingPBOs {
		pbo.EndWrite()
		pbo.Draw()
	}
	fbo.Unbind()
	p.pboPool = append(p.pboPool, p.writingPBOs...)
	p.writingPBOs = p.writingPBOs[:0]
	return fbo, nil
}

// flush drains the two in-flight pipeline stages on shutdown.
func (p *Processor) flush() {
	p.draining = true
	for i := 0; i < 2; i++ {
		p.finishRead()
		written, err := p.compose()
		if err != nil || written == nil {
			continue
		}
		written.BeginRead()
		p.readingFBO = written
		p.readingResult = p.writingResult
		p.writingResult = nil
	}
}

func (p *Processor) getPBO() (PixelBuffer, error) {
	if n := len(p.pboPool); n > 0 {
		pbo := p.pboPool[n-1]
		p.pboPool = p.pboPool[:n-1]
		return pbo, nil
	}
	pbo, err := p.dev.NewPixelBuffer(p.desc.Width, p.desc.Height)
	if err != nil {
		return nil, fmt.Errorf("pixel buffer: %w", err)
	}
	return pbo, nil
}

func (p *Processor) getFBO() (FrameBuffer, error) {
	if n := len(p.fboPool); n > 0 {
		fbo := p.fboPool[n-1]
		p.fboPool = p.fboPool[:n-1]
		return fbo, nil
	}
	fbo, err := p.dev.NewFrameBuffer(p.desc.Width, p.desc.Height)
	if err != nil {
		return nil, fmt.Errorf("frame buffer: %w", err)
	}
	return fbo, nil
}

// concatAudio joins layer audio in z order; if no layer carried audio the
// composite gets cadence-length silence so consumers always stay in phase.
func concatAudio(frames []*frame.Frame, nbSamples int) []int32 {
	var out []int32
	for _, f := range frames {
		out = append(out, f.Audio...)
	}
	if len(out) == 0 {
		out = make([]int32, nbSamples*format.AudioChannels)
	}
	return out
}
