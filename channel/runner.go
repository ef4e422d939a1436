package channel

import (
	"fmt"
	"time"

	"github.com/richinsley/goplayout/consumer"
	"github.com/richinsley/goplayout/frame"
)

const preparedDepth = 3

// consumerRunner drives one consumer on its own goroutine so a wedged sink can
// be timed out and removed without stalling the display loop. It owns the
// consumer's rolling window of prepared frames: Prepare sees the new frame,
// Display gets the frame prepared one tick earlier.
type consumerRunner struct {
	c     consumer.Consumer
	clock bool

	jobs    chan *frame.Frame
	results chan error

	prepared []*frame.Frame
}

func newConsumerRunner(c consumer.Consumer, frames *frame.Factory) *consumerRunner {
	r := &consumerRunner{
		c:       c,
		jobs:    make(chan *frame.Frame),
		results: make(chan error, 1),
	}
	// Until real frames arrive the window holds a silent black frame, so even
	// the first Display sees cadence-length audio.
	seed := frames.NewFrame()
	seed.Audio = frames.Silence(frames.Desc().Cadence[0])
	for i := 0; i < preparedDepth; i++ {
		r.prepared = append(r.prepared, seed)
	}
	go r.run()
	return r
}

func (r *consumerRunner) run() {
	for f := range r.jobs {
		r.results <- r.tick(f)
	}
}

func (r *consumerRunner) tick(next *frame.Frame) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("consumer panic: %v", rec)
		}
	}()
	if err := r.c.Prepare(next); err != nil {
		return err
	}
	if err := r.c.Display(r.prepared[len(r.prepared)-1]); err != nil {
		return err
	}
	r.prepared = append(r.prepared[1:], next)
	return nil
}

// submit hands the next frame to the runner. Submission never blocks the
// display loop; a runner still busy with the previous tick is simply late and
// gets caught by wait.
func (r *consumerRunner) submit(f *frame.Frame) {
	select {
	case r.jobs <- f:
	default:
	}
}

// wait blocks until the runner finished the tick. The clock consumer is
// allowed to block indefinitely, it is the thing pacing the channel; any other
// consumer that exceeds one frame period of grace is reported stuck. A channel
// shutdown aborts the wait without condemning the consumer.
func (r *consumerRunner) wait(period time.Duration, stop <-chan struct{}) error {
	if r.clock {
		select {
		case err := <-r.results:
			return err
		case <-stop:
			return nil
		}
	}
	select {
	case err := <-r.results:
		return err
	case <-time.After(period):
		return fmt.Errorf("consumer stuck for more than %v", period)
	case <-stop:
		return nil
	}
}

func (r *consumerRunner) close() {
	close(r.jobs)
	consumer.Close(r.c)
}
