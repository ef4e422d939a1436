// Package cg wraps an opaque template-graphics host as a producer. The host
// renders on its own; this producer pulls its latest frame each tick and
// forwards control calls (add, play, update, invoke, ...) as host commands.
package cg

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/producer"
)

// TemplateHost is the opaque graphics host. Implementations own their object
// lifetime and threading; the producer only ever calls through this interface.
type TemplateHost interface {
	// Frame returns the host's most recently rendered frame, or nil if the
	// host has nothing to show yet.
	Frame() *frame.Frame
	// Invoke sends a command string to the host and resolves asynchronously.
	Invoke(cmd string) <-chan producer.CallResult
	// Close tears the host down.
	Close() error
}

// Layer-command verbs understood by the host dispatcher.
const (
	CmdAdd    = "ADD"
	CmdPlay   = "PLAY"
	CmdStop   = "STOP"
	CmdNext   = "NEXT"
	CmdUpdate = "UPDATE"
	CmdInvoke = "INVOKE"
	CmdRemove = "REMOVE"
	CmdClear  = "CLEAR"
)

type cgProducer struct {
	frames *frame.Factory
	host   TemplateHost
	logger *log.Logger
}

// New wraps host as a producer bound to the channel's frame factory.
func New(frames *frame.Factory, host TemplateHost) producer.Producer {
	return &cgProducer{
		frames: frames,
		host:   host,
		logger: log.WithPrefix("cg"),
	}
}

func (p *cgProducer) Receive(int) (*frame.Frame, error) {
	f := p.host.Frame()
	if f == nil {
		return p.frames.Empty(), nil
	}
	return f, nil
}

func (p *cgProducer) Following() producer.Producer { return nil }
func (p *cgProducer) SetLeading(producer.Producer) {}

func (p *cgProducer) Close() error { return p.host.Close() }

// Call dispatches a template command. The first parameter is the verb, the
// remainder verb-specific (template name, play-on-load flag, XML data, ...).
func (p *cgProducer) Call(params []string) <-chan producer.CallResult {
	if len(params) == 0 {
		ch := make(chan producer.CallResult, 1)
		ch <- producer.CallResult{Err: fmt.Errorf("cg: empty command")}
		close(ch)
		return ch
	}
	verb := strings.ToUpper(params[0])
	switch verb {
	case CmdAdd, CmdPlay, CmdStop, CmdNext, CmdUpdate, CmdInvoke, CmdRemove, CmdClear:
		return p.host.Invoke(strings.Join(params, " "))
	}
	ch := make(chan producer.CallResult, 1)
	ch <- producer.CallResult{Err: fmt.Errorf("cg: unknown command %q", verb)}
	close(ch)
	return ch
}

func (p *cgProducer) String() string { return "cg" }
