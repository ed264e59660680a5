package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/casa-core/internal/device"
)

// ParseFunc converts one payload into the mutations it implies.
// now is the receive time, used for fields like the last update stamp.
type ParseFunc func(payload []byte, now time.Time) ([]device.Mutation, error)

// Binding pairs an exact topic with its payload parser.
type Binding struct {
	Topic string
	Parse ParseFunc
}

// DefaultBindings returns the binding table of the reference installation.
func DefaultBindings() []Binding {
	climate := device.Labels{Active: device.StatusLigado, Inactive: device.StatusDesligado}
	return []Binding{
		{Topic: TopicSalaDados, Parse: ParseSensorData},
		{Topic: TopicSalaAr, Parse: OnOffParser(device.ArCondicionado, climate)},
		{Topic: TopicSalaUmidificador, Parse: OnOffParser(device.Umidificador, climate)},
		{Topic: TopicGaragemStatus, Parse: ParseGarageStatus},
	}
}

// Router resolves topics against a binding table.
//
// A Router is immutable after construction and safe for concurrent use.
type Router struct {
	bindings map[string]ParseFunc
	now      func() time.Time
}

// New creates a Router from a binding table.
//
// Returns ErrInvalidBinding if a topic is empty or repeated, or a parser is nil.
func New(bindings []Binding) (*Router, error) {
	r := &Router{
		bindings: make(map[string]ParseFunc, len(bindings)),
		now:      time.Now,
	}
	for _, b := range bindings {
		if b.Topic == "" || b.Parse == nil {
			return nil, fmt.Errorf("%w: topic %q", ErrInvalidBinding, b.Topic)
		}
		if _, dup := r.bindings[b.Topic]; dup {
			return nil, fmt.Errorf("%w: duplicate topic %q", ErrInvalidBinding, b.Topic)
		}
		r.bindings[b.Topic] = b.Parse
	}
	return r, nil
}

// Default returns a Router over DefaultBindings.
func Default() *Router {
	r, err := New(DefaultBindings())
	if err != nil {
		panic(err) // the built-in table is static
	}
	return r
}

// Bound reports whether topic has a binding.
func (r *Router) Bound(topic string) bool {
	_, ok := r.bindings[topic]
	return ok
}

// Route parses a message into mutations.
//
// Parameters:
//   - topic: Exact topic the message arrived on
//   - payload: Raw message payload
//
// Returns:
//   - []device.Mutation: Mutations to apply atomically; nil for unbound topics
//   - error: Wraps ErrMalformedPayload when the payload cannot be parsed
func (r *Router) Route(topic string, payload []byte) (muts []device.Mutation, err error) {
	parse, ok := r.bindings[topic]
	if !ok {
		return nil, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			muts = nil
			err = fmt.Errorf("%w: parser for %s panicked: %v", ErrMalformedPayload, topic, rec)
		}
	}()

	muts, err = parse(payload, r.now())
	if err != nil {
		if !errors.Is(err, ErrMalformedPayload) {
			err = fmt.Errorf("%w: %s: %v", ErrMalformedPayload, topic, err)
		}
		return nil, err
	}
	return muts, nil
}
