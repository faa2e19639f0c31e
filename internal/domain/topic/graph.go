package topic

import (
	"fmt"
	"sort"
	"strings"
)

// Node is a participant of the saga graph: something that consumes some topics and
// emits others. Handlers implement it so the graph is derived from code, not documentation.
type Node interface {
	Name() string
	Subscribes() Set
	Emits() Set
}

// Edge connects an emitted topic to a subscriber
type Edge struct {
	From    Topic
	Node    string
	Emitted []Topic
}

// Graph is the saga graph assembled from node declarations
type Graph struct {
	nodes       []Node
	subscribers map[Topic][]string
	emitters    map[Topic][]string
}

// NewGraph builds a graph from the given nodes
func NewGraph(nodes ...Node) *Graph {
	g := &Graph{
		subscribers: make(map[Topic][]string),
		emitters:    make(map[Topic][]string),
	}
	for _, n := range nodes {
		g.Add(n)
	}
	return g
}

// Add registers a node
func (g *Graph) Add(n Node) {
	g.nodes = append(g.nodes, n)
	for _, t := range n.Subscribes().Topics() {
		g.subscribers[t] = append(g.subscribers[t], n.Name())
	}
	for _, t := range n.Emits().Topics() {
		g.emitters[t] = append(g.emitters[t], n.Name())
	}
}

// Subscribers returns the names of nodes consuming t
func (g *Graph) Subscribers(t Topic) []string {
	return append([]string(nil), g.subscribers[t]...)
}

// Emitters returns the names of nodes emitting t
func (g *Graph) Emitters(t Topic) []string {
	return append([]string(nil), g.emitters[t]...)
}

// Edges returns every (topic, subscriber) pair with the topics that subscriber emits
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, n := range g.nodes {
		emitted := n.Emits().Topics()
		for _, t := range n.Subscribes().Topics() {
			out = append(out, Edge{From: t, Node: n.Name(), Emitted: emitted})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].Node < out[j].Node
	})
	return out
}

// DeadEndError lists non-terminal topics that are emitted but consumed by nobody
type DeadEndError struct {
	Topics []Topic
}

func (e *DeadEndError) Error() string {
	names := make([]string, len(e.Topics))
	for i, t := range e.Topics {
		names[i] = string(t)
	}
	return fmt.Sprintf("saga graph has dead ends: %s", strings.Join(names, ", "))
}

// Validate reports emitted topics that no node consumes. Terminal topics are allowed
// to end a branch; every other emitted topic must have at least one subscriber.
func (g *Graph) Validate() error {
	var dead []Topic
	for t := range g.emitters {
		if t.IsTerminal() {
			continue
		}
		if len(g.subscribers[t]) == 0 {
			dead = append(dead, t)
		}
	}
	if len(dead) == 0 {
		return nil
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i] < dead[j] })
	return &DeadEndError{Topics: dead}
}

// Describe renders the graph as one line per edge
func (g *Graph) Describe() string {
	var b strings.Builder
	for _, e := range g.Edges() {
		emitted := make([]string, len(e.Emitted))
		for i, t := range e.Emitted {
			emitted[i] = string(t)
		}
		fmt.Fprintf(&b, "%s -> %s -> [%s]\n", e.From, e.Node, strings.Join(emitted, ", "))
	}
	return b.String()
}
