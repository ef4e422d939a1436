// Package channel implements the render device: a per-format clock pulling
// one frame per layer in parallel, compositing through the GPU processor and
// fanning completed frames out to consumers in lockstep with the format's
// cadence.
package channel

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/richinsley/goplayout/consumer"
	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/gpu"
	"github.com/richinsley/goplayout/producer"
)

const outboundDepth = 3

// Channel owns a render thread, a display thread and the GPU worker, plus the
// layer stack they feed from.
type Channel struct {
	desc   format.Descriptor
	frames *frame.Factory
	proc   *gpu.Processor

	mu     sync.Mutex
	layers map[int]*Layer

	out  chan *frame.Frame
	stop chan struct{}

	running atomic.Bool
	tick    atomic.Int64

	runners []*consumerRunner

	wgRender  sync.WaitGroup
	wgDisplay sync.WaitGroup

	logger *log.Logger
}

// New builds a channel for desc, compositing on dev and fanning out to
// consumers. At least one consumer is required. The channel starts ticking
// immediately.
func New(desc format.Descriptor, dev gpu.Device, consumers []consumer.Consumer) (*Channel, error) {
	if len(consumers) == 0 {
		return nil, fmt.Errorf("channel: requires at least one consumer")
	}

	c := &Channel{
		desc:   desc,
		frames: frame.NewFactory(desc),
		layers: make(map[int]*Layer),
		out:    make(chan *frame.Frame, outboundDepth),
		stop:   make(chan struct{}),
		logger: log.WithPrefix("channel").With("format", desc.Name),
	}

	for _, cons := range consumers {
		if err := cons.Initialize(desc); err != nil {
			return nil, fmt.Errorf("channel: initialize consumer %d: %w", cons.Index(), err)
		}
		c.runners = append(c.runners, newConsumerRunner(cons, c.frames))
	}
	c.electClock()

	c.proc = gpu.NewProcessor(desc, dev)
	c.running.Store(true)

	c.wgDisplay.Add(1)
	go c.displayLoop()
	c.wgRender.Add(1)
	go c.renderLoop()

	c.logger.Info("initialized channel", "fps", fmt.Sprintf("%.3f", desc.FPS()))
	return c, nil
}

// Frames exposes the channel's frame factory so producers are built against
// the right format.
func (c *Channel) Frames() *frame.Factory { return c.frames }

func (c *Channel) Desc() format.Descriptor { return c.desc }

// Load stages a producer on a layer. The producer must already be constructed;
// a failed construction never reaches the layer, which is what keeps load
// all-or-nothing.
func (c *Channel) Load(layerIdx int, p producer.Producer, option LoadOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layer(layerIdx).Load(p, option)
}

func (c *Channel) Play(layerIdx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.layers[layerIdx]
	if !ok {
		return fmt.Errorf("channel: no such layer %d", layerIdx)
	}
	return l.Play()
}

func (c *Channel) Stop(layerIdx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.layers[layerIdx]
	if !ok {
		return fmt.Errorf("channel: no such layer %d", layerIdx)
	}
	l.Stop()
	return nil
}

func (c *Channel) Clear(layerIdx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.layers[layerIdx]
	if !ok {
		return fmt.Errorf("channel: no such layer %d", layerIdx)
	}
	l.Clear()
	delete(c.layers, layerIdx)
	return nil
}

// ClearAll wipes every layer.
func (c *Channel) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for idx, l := range c.layers {
		l.Clear()
		delete(c.layers, idx)
	}
}

// Foreground returns the producer playing on a layer, or nil.
func (c *Channel) Foreground(layerIdx int) producer.Producer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.layers[layerIdx]; ok {
		return l.Foreground()
	}
	return nil
}

// LayerInfo is a read-only snapshot of one layer.
type LayerInfo struct {
	Index      int
	State      string
	Foreground string
	Background string
}

// Info snapshots the channel's layer stack for the INFO command.
func (c *Channel) Info() []LayerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []LayerInfo
	for _, idx := range c.zOrder() {
		l := c.layers[idx]
		info := LayerInfo{Index: idx, State: "empty"}
		if l.Foreground() != nil {
			info.State = "playing"
			info.Foreground = describe(l.Foreground())
		} else if l.preview != nil {
			info.State = "previewing"
		}
		if l.Background() != nil {
			info.Background = describe(l.Background())
			if info.State == "playing" {
				info.State = "playing+background"
			}
		}
		out = append(out, info)
	}
	return out
}

func describe(p producer.Producer) string {
	if s, ok := p.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", p)
}

// layer returns the layer at idx, creating it on first use.
func (c *Channel) layer(idx int) *Layer {
	l, ok := c.layers[idx]
	if !ok {
		l = newLayer(c.frames, idx)
		c.layers[idx] = l
	}
	return l
}

func (c *Channel) zOrder() []int {
	idx := make([]int, 0, len(c.layers))
	for i := range c.layers {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// renderLoop pulls one frame from every layer in parallel each tick, pushes
// the stack into the compositor and forwards the finished composite to the
// display side. A failure anywhere clears the layer stack and carries on; the
// channel itself never dies from a render fault.
func (c *Channel) renderLoop() {
	defer c.wgRender.Done()
	c.logger.Debug("render loop started")

	for c.running.Load() {
		if c.proc.Failed() {
			c.logger.Error("graphics device lost, stopping channel")
			go c.Shutdown()
			return
		}
		c.renderTick()
	}
	c.logger.Debug("render loop ended")
}

func (c *Channel) renderTick() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("unexpected render fault, cleared layers", "panic", r)
			c.ClearAll()
		}
	}()

	nb := c.desc.Cadence[int(c.tick.Load())%len(c.desc.Cadence)]
	frames := c.receiveFrames(nb)
	c.proc.Push(frames, nb)

	composite := c.proc.Pop()
	if composite == nil {
		return
	}
	select {
	case c.out <- composite:
		c.tick.Add(1)
	case <-c.stop:
	}
}

// receiveFrames snapshots the layer stack under the layer lock and pulls one
// frame per layer in parallel; the result vector stays in ascending z order
// regardless of completion order.
func (c *Channel) receiveFrames(nb int) []*frame.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	order := c.zOrder()
	frames := make([]*frame.Frame, len(order))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, idx := range order {
		l := c.layers[idx]
		g.Go(func() error {
			frames[i] = l.Receive(nb)
			return nil
		})
	}
	_ = g.Wait()
	return frames
}

// displayLoop drains the outbound queue and feeds every consumer, double
// buffered: the frame prepared on the previous tick is displayed while the
// next one is prepared. One consumer's Display blocks until the physical
// output tick; without such a consumer an internal timer paces the loop.
func (c *Channel) displayLoop() {
	defer c.wgDisplay.Done()
	c.logger.Debug("display loop started")

	period := c.desc.FramePeriod()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		var f *frame.Frame
		select {
		case f = <-c.out:
		case <-c.stop:
			return
		}
		if f == nil {
			return
		}

		hasClock := c.dispatch(f, period)

		if !hasClock {
			// No consumer paces the channel; a high resolution timer does.
			select {
			case <-ticker.C:
			case <-c.stop:
				return
			}
		}

		if len(c.runners) == 0 {
			c.logger.Error("no consumers left, stopping channel")
			go c.Shutdown()
			return
		}
	}
}

// dispatch hands the frame to every consumer in parallel and reaps the ones
// that fail or wedge. It reports whether a synchronizing consumer paced the
// tick.
func (c *Channel) dispatch(f *frame.Frame, period time.Duration) bool {
	hasClock := false
	for _, r := range c.runners {
		if r.clock {
			hasClock = true
		}
		r.submit(f)
	}

	kept := c.runners[:0]
	clockLost := false
	for _, r := range c.runners {
		if err := r.wait(period, c.stop); err != nil {
			c.logger.Error("removed consumer from channel", "index", r.c.Index(), "err", err)
			if r.clock {
				clockLost = true
			}
			r.close()
			continue
		}
		kept = append(kept, r)
	}
	c.runners = kept
	if clockLost {
		c.electClock()
	}
	return hasClock
}

// electClock designates the synchronizing consumer: the clock-capable consumer
// with the lowest index (hardware before preview); with none, the internal
// timer takes over.
func (c *Channel) electClock() {
	best := -1
	for i, r := range c.runners {
		r.clock = false
		if !r.c.HasSynchronizationClock() {
			continue
		}
		if best == -1 || r.c.Index() < c.runners[best].c.Index() {
			best = i
		}
	}
	if best >= 0 {
		c.runners[best].clock = true
		c.logger.Info("clock consumer elected", "index", c.runners[best].c.Index())
	} else {
		c.logger.Info("no clock consumer, using internal timer")
	}
}

// Shutdown stops the channel: display first, then the GPU worker, then the
// render loop.
func (c *Channel) Shutdown() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	close(c.stop)
	c.wgDisplay.Wait()
	c.proc.Close()
	c.wgRender.Wait()
	c.shutdown()
	c.logger.Info("channel stopped")
}

func (c *Channel) shutdown() {
	c.ClearAll()
	for _, r := range c.runners {
		r.close()
	}
	c.runners = nil
}

// Ticks returns how many composites the channel has emitted.
func (c *Channel) Ticks() int64 { return c.tick.Load() }
