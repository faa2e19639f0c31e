package event

import (
	"fmt"
	"sort"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
)

// SagaHandler is an envelope handler that declares its place in the saga graph
type SagaHandler interface {
	shared.EnvelopeHandler
	Subscribes() topic.Set
	Emits() topic.Set
}

// DispatchTable maps topics to the handlers that react to them.
// It is built once at startup and read-only afterwards.
type DispatchTable struct {
	handlers map[topic.Topic][]shared.EnvelopeHandler
	nodes    []topic.Node
}

// NewDispatchTable creates an empty dispatch table
func NewDispatchTable() *DispatchTable {
	return &DispatchTable{
		handlers: make(map[topic.Topic][]shared.EnvelopeHandler),
	}
}

// Register adds a handler for the given topics. Unknown topics are rejected.
func (d *DispatchTable) Register(handler shared.EnvelopeHandler, topics ...topic.Topic) error {
	if len(topics) == 0 {
		return fmt.Errorf("handler %s registered without topics", handler.Name())
	}
	for _, t := range topics {
		if !t.IsValid() {
			return fmt.Errorf("handler %s: %w: %q", handler.Name(), shared.ErrUnknownTopic, t)
		}
	}
	for _, t := range topics {
		d.handlers[t] = append(d.handlers[t], handler)
	}
	return nil
}

// RegisterSaga adds a saga handler for every topic it subscribes to and records it as a
// node of the saga graph
func (d *DispatchTable) RegisterSaga(h SagaHandler) error {
	if err := d.Register(h, h.Subscribes().Topics()...); err != nil {
		return err
	}
	d.nodes = append(d.nodes, h)
	return nil
}

// Handlers returns the handlers registered for t, in registration order
func (d *DispatchTable) Handlers(t topic.Topic) []shared.EnvelopeHandler {
	return d.handlers[t]
}

// Topics returns the set of topics with at least one handler
func (d *DispatchTable) Topics() topic.Set {
	topics := make([]topic.Topic, 0, len(d.handlers))
	for t := range d.handlers {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })
	return topic.NewSet(topics...)
}

// Graph returns the saga graph of the registered saga handlers
func (d *DispatchTable) Graph() *topic.Graph {
	return topic.NewGraph(d.nodes...)
}

// Len returns the number of (topic, handler) registrations
func (d *DispatchTable) Len() int {
	n := 0
	for _, hs := range d.handlers {
		n += len(hs)
	}
	return n
}
