package flow

import (
	"fmt"
)

// Flow is a named container owning a set of nodes and one flow scoped context.
type Flow struct {
	id      string
	name    string
	context *Context
	global  *Context
	nodes   map[string]Node
	order   []Node
}

// New creates an empty flow bound to the given global context.
func New(id, name string, global *Context) *Flow {
	return &Flow{
		id:      id,
		name:    name,
		context: NewContext(),
		global:  global,
		nodes:   make(map[string]Node),
	}
}

func (f *Flow) ID() string {
	if f == nil {
		return ""
	}

	return f.id
}

func (f *Flow) Name() string {
	return f.name
}

// Context returns the flow scoped context.
func (f *Flow) Context() *Context {
	return f.context
}

// Global returns the global context shared by every flow of the graph.
func (f *Flow) Global() *Context {
	return f.global
}

// AddNode registers n. Node ids must be unique within the flow.
func (f *Flow) AddNode(n Node) error {
	if _, exists := f.nodes[n.ID()]; exists {
		return fmt.Errorf("%w: %s in flow %s", ErrDuplicateNode, n.ID(), f.id)
	}

	f.nodes[n.ID()] = n
	f.order = append(f.order, n)

	return nil
}

// Node looks a node up by id.
func (f *Flow) Node(id string) (Node, bool) {
	n, ok := f.nodes[id]

	return n, ok
}

// Nodes returns the nodes in registration order.
func (f *Flow) Nodes() []Node {
	out := make([]Node, len(f.order))
	copy(out, f.order)

	return out
}

// Len returns the number of nodes in the flow.
func (f *Flow) Len() int {
	return len(f.order)
}

// Set is the resolution handle over every flow of a graph. It is handed to node
// factories so nodes can resolve configuration nodes and link targets without
// reaching for process wide state.
type Set struct {
	global *Context
	byID   map[string]*Flow
	order  []*Flow
}

// NewSet creates an empty flow set with a fresh global context.
func NewSet() *Set {
	return &Set{
		global: NewContext(),
		byID:   make(map[string]*Flow),
	}
}

// Global returns the global context.
func (s *Set) Global() *Context {
	return s.global
}

// Create adds a new flow to the set.
func (s *Set) Create(id, name string) (*Flow, error) {
	if _, exists := s.byID[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateFlow, id)
	}

	f := New(id, name, s.global)
	s.byID[id] = f
	s.order = append(s.order, f)

	return f, nil
}

// Get returns the flow with the given id.
func (s *Set) Get(id string) (*Flow, bool) {
	f, ok := s.byID[id]

	return f, ok
}

// Flows returns every flow in creation order.
func (s *Set) Flows() []*Flow {
	out := make([]*Flow, len(s.order))
	copy(out, s.order)

	return out
}

// Node resolves a node inside a specific flow.
func (s *Set) Node(flowID, nodeID string) (Node, bool) {
	f, ok := s.byID[flowID]
	if !ok {
		return nil, false
	}

	return f.Node(nodeID)
}

// FindNode searches every flow, in creation order, for a node id.
func (s *Set) FindNode(id string) (Node, bool) {
	for _, f := range s.order {
		if n, ok := f.Node(id); ok {
			return n, true
		}
	}

	return nil, false
}
