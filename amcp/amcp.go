// Package amcp implements the control surface consumed by the text protocol:
// command handlers that translate LOAD/PLAY/STOP/CLEAR/CG/INFO onto channels,
// and a line-oriented TCP front-end.
package amcp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/richinsley/goplayout/channel"
	"github.com/richinsley/goplayout/producer"
	"github.com/richinsley/goplayout/producer/color"
	"github.com/richinsley/goplayout/producer/transition"
)

// Paths are the read-only folder inputs for producer factories.
type Paths struct {
	Media    string
	Template string
	Data     string
}

// Server dispatches protocol commands onto a set of channels.
type Server struct {
	channels map[int]*channel.Channel
	registry *producer.Registry
	paths    Paths
	logger   *log.Logger
}

func NewServer(channels map[int]*channel.Channel, registry *producer.Registry, paths Paths) *Server {
	return &Server{
		channels: channels,
		registry: registry,
		paths:    paths,
		logger:   log.WithPrefix("amcp"),
	}
}

// Dispatch executes one command line and returns the protocol reply.
func (s *Server) Dispatch(line string) string {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return reply(400, "ERROR")
	}
	cmd := strings.ToUpper(tokens[0])

	switch cmd {
	case "LOAD":
		return s.load(tokens[1:], false)
	case "LOADBG":
		return s.load(tokens[1:], true)
	case "PLAY":
		return s.simple(cmd, tokens[1:], func(ch *channel.Channel, layer int) error {
			return ch.Play(layer)
		})
	case "STOP":
		return s.simple(cmd, tokens[1:], func(ch *channel.Channel, layer int) error {
			return ch.Stop(layer)
		})
	case "CLEAR":
		return s.clear(tokens[1:])
	case "CG":
		return s.cg(tokens[1:])
	case "INFO":
		return s.info(tokens[1:])
	}
	return reply(400, cmd+" ERROR")
}

// address parses "<ch>[-<layer>]"; layers default to 0.
func (s *Server) address(token string) (*channel.Channel, int, error) {
	chStr, layerStr, hasLayer := strings.Cut(token, "-")
	chIdx, err := strconv.Atoi(chStr)
	if err != nil {
		return nil, 0, fmt.Errorf("bad channel %q", token)
	}
	ch, ok := s.channels[chIdx]
	if !ok {
		return nil, 0, fmt.Errorf("no channel %d", chIdx)
	}
	layer := 0
	if hasLayer {
		if layer, err = strconv.Atoi(layerStr); err != nil {
			return nil, 0, fmt.Errorf("bad layer %q", token)
		}
	}
	return ch, layer, nil
}

func (s *Server) deps(ch *channel.Channel) producer.Deps {
	return producer.Deps{
		Frames:         ch.Frames(),
		MediaFolder:    s.paths.Media,
		TemplateFolder: s.paths.Template,
		DataFolder:     s.paths.Data,
	}
}

func (s *Server) load(tokens []string, background bool) string {
	name := "LOAD"
	if background {
		name = "LOADBG"
	}
	if len(tokens) < 2 {
		return reply(402, name+" ERROR")
	}
	ch, layer, err := s.address(tokens[0])
	if err != nil {
		return reply(401, name+" ERROR")
	}

	params := tokens[1:]
	// LOAD previews by default, LOADBG only stages; AUTOPLAY flips either
	// straight into playback.
	option := channel.LoadPreview
	if background {
		option = channel.LoadDefault
	}

	var trans *transition.Info
	var rest []string
	for i := 0; i < len(params); i++ {
		t := strings.ToUpper(params[i])
		if t == "AUTOPLAY" {
			option = channel.LoadAutoPlay
			continue
		}
		if background && trans == nil {
			if kind, ok := transition.ParseKind(t); ok && i > 0 {
				info, consumed, err := parseTransition(kind, params[i:])
				if err != nil {
					return reply(403, name+" ERROR")
				}
				trans = info
				i += consumed - 1
				continue
			}
		}
		rest = append(rest, params[i])
	}

	dest, err := s.registry.Create(s.deps(ch), rest)
	if err == producer.ErrNotFound {
		return reply(404, name+" ERROR")
	}
	if err != nil {
		s.logger.Warn("load failed", "spec", strings.Join(rest, " "), "err", err)
		return reply(502, name+" ERROR")
	}

	p := dest
	if trans != nil {
		if p, err = transition.New(ch.Frames(), dest, *trans); err != nil {
			producer.Close(dest)
			return reply(403, name+" ERROR")
		}
	}

	if err := ch.Load(layer, p, option); err != nil {
		producer.Close(p)
		return reply(500, name+" ERROR")
	}
	return reply(202, name+" OK")
}

// parseTransition consumes "<kind> <duration> [FROMLEFT|FROMRIGHT] [border px]
// [bordercolor #col]" and reports how many tokens it used.
func parseTransition(kind transition.Kind, tokens []string) (*transition.Info, int, error) {
	info := &transition.Info{Kind: kind, Direction: transition.FromLeft}
	consumed := 1
	if kind != transition.Cut {
		if len(tokens) < 2 {
			return nil, 0, fmt.Errorf("transition needs a duration")
		}
		dur, err := strconv.Atoi(tokens[1])
		if err != nil || dur < 1 {
			return nil, 0, fmt.Errorf("bad transition duration %q", tokens[1])
		}
		info.Duration = dur
		consumed = 2
	}
	for consumed < len(tokens) {
		switch strings.ToUpper(tokens[consumed]) {
		case "FROMLEFT":
			info.Direction = transition.FromLeft
			consumed++
		case "FROMRIGHT":
			info.Direction = transition.FromRight
			consumed++
		case "BORDER":
			if consumed+1 >= len(tokens) {
				return nil, 0, fmt.Errorf("border needs a width")
			}
			w, err := strconv.Atoi(tokens[consumed+1])
			if err != nil || w < 0 {
				return nil, 0, fmt.Errorf("bad border width %q", tokens[consumed+1])
			}
			info.BorderWidth = w
			consumed += 2
		case "BORDERCOLOR":
			if consumed+1 >= len(tokens) {
				return nil, 0, fmt.Errorf("bordercolor needs a color")
			}
			c, ok := color.TryColor(tokens[consumed+1])
			if !ok {
				return nil, 0, fmt.Errorf("bad border color %q", tokens[consumed+1])
			}
			info.BorderColor = c
			consumed += 2
		default:
			return info, consumed, nil
		}
	}
	return info, consumed, nil
}

func (s *Server) simple(name string, tokens []string, op func(*channel.Channel, int) error) string {
	if len(tokens) < 1 {
		return reply(402, name+" ERROR")
	}
	ch, layer, err := s.address(tokens[0])
	if err != nil {
		return reply(401, name+" ERROR")
	}
	if err := op(ch, layer); err != nil {
		return reply(403, name+" ERROR")
	}
	return reply(202, name+" OK")
}

func (s *Server) clear(tokens []string) string {
	if len(tokens) < 1 {
		return reply(402, "CLEAR ERROR")
	}
	_, _, hasLayer := strings.Cut(tokens[0], "-")
	ch, layer, err := s.address(tokens[0])
	if err != nil {
		return reply(401, "CLEAR ERROR")
	}
	if hasLayer {
		_ = ch.Clear(layer)
	} else {
		ch.ClearAll()
	}
	return reply(202, "CLEAR OK")
}

func (s *Server) cg(tokens []string) string {
	if len(tokens) < 2 {
		return reply(402, "CG ERROR")
	}
	ch, layer, err := s.address(tokens[0])
	if err != nil {
		return reply(401, "CG ERROR")
	}
	p := ch.Foreground(layer)
	caller, ok := p.(producer.Caller)
	if !ok {
		return reply(403, "CG ERROR")
	}
	verb := strings.ToUpper(tokens[1])
	res := caller.Call(tokens[1:])
	if verb == "INVOKE" {
		select {
		case r := <-res:
			if r.Err != nil {
				return reply(500, "CG ERROR")
			}
			return reply(201, "CG OK\r\n"+r.Value)
		case <-time.After(2 * time.Second):
			return reply(500, "CG ERROR")
		}
	}
	return reply(202, "CG OK")
}

func (s *Server) info(tokens []string) string {
	if len(tokens) < 1 {
		var b strings.Builder
		b.WriteString(reply(200, "INFO OK"))
		for idx := range s.channels {
			fmt.Fprintf(&b, "\r\n%d %s PLAYING", idx, s.channels[idx].Desc().Name)
		}
		return b.String()
	}
	ch, _, err := s.address(tokens[0])
	if err != nil {
		return reply(401, "INFO ERROR")
	}
	var b strings.Builder
	b.WriteString(reply(201, "INFO OK"))
	for _, li := range ch.Info() {
		fmt.Fprintf(&b, "\r\nlayer %d: %s", li.Index, li.State)
		if li.Foreground != "" {
			fmt.Fprintf(&b, " fg=%s", li.Foreground)
		}
		if li.Background != "" {
			fmt.Fprintf(&b, " bg=%s", li.Background)
		}
	}
	return b.String()
}

func reply(code int, msg string) string {
	return fmt.Sprintf("%d %s", code, msg)
}
