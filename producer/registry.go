package producer

import (
	"errors"
	"strings"

	"github.com/richinsley/goplayout/frame"
)

// Deps is the context a factory needs to construct a producer. It is captured
// by value at construction; producers never reach back into the channel.
type Deps struct {
	Frames       *frame.Factory
	MediaFolder  string
	TemplateFolder string
	DataFolder   string
}

// FactoryFunc constructs a producer from a tokenized media spec. A factory
// that does not recognize the spec returns ErrNotFound so the next registered
// factory gets a chance.
type FactoryFunc func(deps Deps, params []string) (Producer, error)

// Registry resolves tokenized media specs against an ordered factory list.
type Registry struct {
	factories []FactoryFunc
}

func NewRegistry(factories ...FactoryFunc) *Registry {
	return &Registry{factories: factories}
}

func (r *Registry) Register(f FactoryFunc) {
	r.factories = append(r.factories, f)
}

// Create resolves params to a producer. The literal EMPTY always resolves to
// the empty producer; an unrecognized spec yields ErrNotFound.
func (r *Registry) Create(deps Deps, params []string) (Producer, error) {
	if len(params) == 0 {
		return nil, ErrNotFound
	}
	if strings.EqualFold(params[0], "EMPTY") {
		return NewEmpty(deps.Frames), nil
	}
	for _, f := range r.factories {
		p, err := f(deps, params)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, ErrNotFound
}
