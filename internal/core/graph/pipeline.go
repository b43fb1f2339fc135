// Copyright 2024 The Membrane Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package graph

import (
	"log"
	"time"

	"github.com/ajvincent/es7-membrane/errors"
)

// TrapCall describes one trap invocation as it travels down a Pipeline
// (spec.md §4.5). Shadow is always populated; the remaining fields are
// populated according to which trap is firing and are read by nodes that
// care (Tracing, GraphInvariantIn/Out) and by the terminal GraphHandler
// dispatch (see dispatchTerminal in the façade package).
type TrapCall struct {
	Trap   string
	Shadow *ShadowTarget
	Key    PropertyKey
	Args   []Value

	// Receiver is the proxy-side receiver for get/set (the "this" the
	// descriptor's accessor pair should observe).
	Receiver Object
	// Value is the assigned value for set, or the this-argument for
	// apply. Construct leaves it unset.
	Value Value
	// Desc is the descriptor argument for defineProperty.
	Desc Descriptor
	// Proto is the prototype argument for setPrototypeOf.
	Proto Object
	// NewTarget is the new-target argument for construct.
	NewTarget Object
}

// Node is one link in a graph's handler pipeline. Invoke may inspect or
// validate call, then must call next exactly once (forwarding) to
// continue down the chain, or return directly to short-circuit.
type Node interface {
	Name() string
	Invoke(call *TrapCall, next func(*TrapCall) (Value, error)) (Value, error)
}

// Pipeline is a graph's effective handler: a singly-linked list of Nodes
// terminating at a [GraphHandler] (spec.md §4.5). The fixed phases
// (Tracing, GraphInvariantIn, Forwarding, ConvertFromShadow, UpdateShadow,
// GraphInvariantOut) are themselves Nodes. Tracing, GraphInvariantIn,
// Forwarding and ConvertFromShadow are stored in the node list, so
// insertHandler can splice application nodes after them by name;
// UpdateShadow and GraphInvariantOut are appended by Run after every
// stored node and cannot be named as a splice point.
type Pipeline struct {
	name  string
	nodes []Node
	terminal func(call *TrapCall) (Value, error)
}

// NewPipeline builds a graph's pipeline with the standard phase order and
// terminal, which performs the actual trap semantics (ordinarily a
// [GraphHandler] dispatch table, see dispatchTerminal in the façade
// package).
func NewPipeline(name string, trace bool, terminal func(call *TrapCall) (Value, error)) *Pipeline {
	p := &Pipeline{name: name, terminal: terminal}
	if trace {
		p.nodes = append(p.nodes, &tracingNode{graphName: name})
	}
	p.nodes = append(p.nodes,
		&graphInvariantInNode{},
		&forwardingNode{},
		&convertFromShadowNode{},
	)
	return p
}

// InsertHandler splices node into the pipeline immediately after the
// node named leadName (spec.md §4.5 "insertHandler"). It takes no phase
// or insert-target argument: node is installed on this pipeline, which
// serves every trap that runs through it.
func (p *Pipeline) InsertHandler(leadName string, node Node) error {
	for i, n := range p.nodes {
		if n.Name() == leadName {
			rest := make([]Node, len(p.nodes)-i-1)
			copy(rest, p.nodes[i+1:])
			p.nodes = append(p.nodes[:i+1], append([]Node{node}, rest...)...)
			return nil
		}
	}
	return errors.NewForGraph(errors.ValidationFailure, p.name, "insertHandler: no node named %q", leadName)
}

// Run drives call through every node in order, finishing with
// UpdateShadow, GraphInvariantOut, and finally the terminal GraphHandler.
func (p *Pipeline) Run(call *TrapCall) (Value, error) {
	chain := append(append([]Node{}, p.nodes...),
		&updateShadowNode{}, &graphInvariantOutNode{})

	var invoke func(i int, c *TrapCall) (Value, error)
	invoke = func(i int, c *TrapCall) (Value, error) {
		if i >= len(chain) {
			return p.terminal(c)
		}
		return chain[i].Invoke(c, func(c2 *TrapCall) (Value, error) {
			return invoke(i+1, c2)
		})
	}
	return invoke(0, call)
}

// ---- standard phase nodes --------------------------------------------

type tracingNode struct{ graphName string }

func (n *tracingNode) Name() string { return "Tracing" }
func (n *tracingNode) Invoke(call *TrapCall, next func(*TrapCall) (Value, error)) (Value, error) {
	start := time.Now()
	rv, err := next(call)
	log.Printf("membrane[%s]: trap %s took %s (err=%v)", n.graphName, call.Trap, time.Since(start), err)
	return rv, err
}

type graphInvariantInNode struct{}

func (n *graphInvariantInNode) Name() string { return "GraphInvariantIn" }
func (n *graphInvariantInNode) Invoke(call *TrapCall, next func(*TrapCall) (Value, error)) (Value, error) {
	if call.Shadow == nil {
		return nil, errors.Newf(errors.InvariantViolation, "pipeline: trap %q called with no shadow target", call.Trap)
	}
	return next(call)
}

type forwardingNode struct{}

func (n *forwardingNode) Name() string { return "Forwarding" }
func (n *forwardingNode) Invoke(call *TrapCall, next func(*TrapCall) (Value, error)) (Value, error) {
	return next(call)
}

type convertFromShadowNode struct{}

func (n *convertFromShadowNode) Name() string { return "ConvertFromShadow" }
func (n *convertFromShadowNode) Invoke(call *TrapCall, next func(*TrapCall) (Value, error)) (Value, error) {
	// The terminal GraphHandler resolves shadow -> cylinder -> real value
	// itself (see resolve in handler.go); this node's place in the chain
	// is preserved so insertHandler("ConvertFromShadow", ...) has a
	// well-defined splice point even though the resolution work happens
	// at the terminal.
	return next(call)
}

type updateShadowNode struct{}

func (n *updateShadowNode) Name() string { return "UpdateShadow" }
func (n *updateShadowNode) Invoke(call *TrapCall, next func(*TrapCall) (Value, error)) (Value, error) {
	rv, err := next(call)
	if err != nil {
		return rv, err
	}
	switch call.Trap {
	case TrapDefineProperty:
		// Reflected onto the shadow by DefineProperty itself via
		// pinNonConfigurable; nothing further to do here.
	case TrapPreventExtensions:
		// Reflected by lockShadow, called from PreventExtensions itself.
	}
	return rv, err
}

type graphInvariantOutNode struct{}

func (n *graphInvariantOutNode) Name() string { return "GraphInvariantOut" }
func (n *graphInvariantOutNode) Invoke(call *TrapCall, next func(*TrapCall) (Value, error)) (Value, error) {
	return next(call)
}
