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

package membrane

import (
	"github.com/ajvincent/es7-membrane/errors"
	"github.com/ajvincent/es7-membrane/internal/core/graph"
)

func errFor(graphName, msg string) error {
	return errors.NewForGraph(errors.ValidationFailure, graphName, "%s", msg)
}

// proxyObject is the concrete [graph.Object] a caller actually holds
// after ConvertArgumentToProxy: every meta-object-protocol operation
// builds a [graph.TrapCall] and runs it through the graph's
// [graph.Pipeline] (spec.md §4.5), with shadow as the trap's
// shadow-target argument. Routing through the pipeline rather than
// calling the handler directly is what lets Membrane.InsertHandler and
// createChainHandler/Override (spec.md §4.4) actually intercept traffic
// aimed at this proxy, not just a handler a test built by hand.
//
// graph.Object carries no error return (it mirrors the host-language
// object model, where [[Get]]/[[DefineOwnProperty]]/etc. either succeed
// or throw synchronously); a revoked or otherwise failing trap therefore
// panics here with the underlying [errors.Error] rather than silently
// reporting "not found". Callers that need an explicit error return use
// the Get/Set/Has methods on [Membrane], or the proxy's own Call and
// Construct, instead of treating the proxy as a bare graph.Object.
type proxyObject struct {
	shadow   *graph.ShadowTarget
	pipeline *graph.Pipeline
	handler  *graph.GraphHandler
	membrane *Membrane
}

// run drives call through p's pipeline, panicking on error per the
// graph.Object contract documented above.
func (p *proxyObject) run(call *graph.TrapCall) graph.Value {
	rv, err := p.pipeline.Run(call)
	if err != nil {
		panic(err)
	}
	return rv
}

func (p *proxyObject) Kind() graph.Kind { return p.shadow.Kind() }

func (p *proxyObject) GetOwnPropertyDescriptor(key graph.PropertyKey) (graph.Descriptor, bool) {
	rv := p.run(&graph.TrapCall{Trap: graph.TrapGetOwnPropertyDescriptor, Shadow: p.shadow, Key: key})
	res := rv.(gopdResult)
	return res.desc, res.found
}

func (p *proxyObject) DefineOwnProperty(key graph.PropertyKey, desc graph.Descriptor) bool {
	return p.run(&graph.TrapCall{Trap: graph.TrapDefineProperty, Shadow: p.shadow, Key: key, Desc: desc}).(bool)
}

func (p *proxyObject) DeleteOwnProperty(key graph.PropertyKey) bool {
	return p.run(&graph.TrapCall{Trap: graph.TrapDeleteProperty, Shadow: p.shadow, Key: key}).(bool)
}

func (p *proxyObject) OwnKeys() []graph.PropertyKey {
	rv := p.run(&graph.TrapCall{Trap: graph.TrapOwnKeys, Shadow: p.shadow})
	keys, _ := rv.([]graph.PropertyKey)
	return keys
}

func (p *proxyObject) GetPrototype() graph.Object {
	rv := p.run(&graph.TrapCall{Trap: graph.TrapGetPrototypeOf, Shadow: p.shadow})
	proto, _ := rv.(graph.Object)
	return proto
}

func (p *proxyObject) SetPrototype(proto graph.Object) bool {
	return p.run(&graph.TrapCall{Trap: graph.TrapSetPrototypeOf, Shadow: p.shadow, Proto: proto}).(bool)
}

func (p *proxyObject) IsExtensible() bool {
	return p.run(&graph.TrapCall{Trap: graph.TrapIsExtensible, Shadow: p.shadow}).(bool)
}

func (p *proxyObject) PreventExtensions() bool {
	return p.run(&graph.TrapCall{Trap: graph.TrapPreventExtensions, Shadow: p.shadow}).(bool)
}

// Call implements [graph.Callable] for function-kind proxies.
func (p *proxyObject) Call(this graph.Value, args []graph.Value) (graph.Value, error) {
	return p.pipeline.Run(&graph.TrapCall{Trap: graph.TrapApply, Shadow: p.shadow, Value: this, Args: args})
}

// Construct implements [graph.Constructable] for function-kind proxies.
func (p *proxyObject) Construct(args []graph.Value, newTarget graph.Object) (graph.Value, error) {
	return p.pipeline.Run(&graph.TrapCall{Trap: graph.TrapConstruct, Shadow: p.shadow, Args: args, NewTarget: newTarget})
}

// Length implements [graph.Arity] and always reports 0; it does not
// forward to the real callee. Arity is only consulted internally by
// truncateArgList resolution against the *real* object, never the proxy,
// so nothing in the engine calls Length() on one.
func (p *proxyObject) Length() int { return 0 }

// Get/Set/Has are convenience wrappers that run a trap through the
// proxy's pipeline, given receiver defaulting to the proxy itself — the
// common case of a direct (non-Reflect-style) property access.
func (m *Membrane) Get(graphName string, proxy graph.Object, key graph.PropertyKey) (graph.Value, error) {
	p, err := m.asProxy(graphName, proxy)
	if err != nil {
		return nil, err
	}
	return p.pipeline.Run(&graph.TrapCall{Trap: graph.TrapGet, Shadow: p.shadow, Key: key, Receiver: proxy})
}

func (m *Membrane) Set(graphName string, proxy graph.Object, key graph.PropertyKey, value graph.Value) (bool, error) {
	p, err := m.asProxy(graphName, proxy)
	if err != nil {
		return false, err
	}
	rv, err := p.pipeline.Run(&graph.TrapCall{Trap: graph.TrapSet, Shadow: p.shadow, Key: key, Value: value, Receiver: proxy})
	if err != nil {
		return false, err
	}
	ok, _ := rv.(bool)
	return ok, nil
}

func (m *Membrane) Has(graphName string, proxy graph.Object, key graph.PropertyKey) (bool, error) {
	p, err := m.asProxy(graphName, proxy)
	if err != nil {
		return false, err
	}
	rv, err := p.pipeline.Run(&graph.TrapCall{Trap: graph.TrapHas, Shadow: p.shadow, Key: key})
	if err != nil {
		return false, err
	}
	ok, _ := rv.(bool)
	return ok, nil
}

func (m *Membrane) asProxy(graphName string, proxy graph.Object) (*proxyObject, error) {
	p, ok := proxy.(*proxyObject)
	if !ok {
		return nil, errFor(graphName, "value is not a proxy this membrane minted")
	}
	return p, nil
}

// InsertHandler splices node into proxy's live pipeline immediately after
// leadName (spec.md §4.5 "insertHandler"), so a [graph.ChainHandler] built
// with ModifyRules.CreateChainHandler actually intercepts traffic aimed at
// a real, membrane-minted proxy rather than a handler built by hand.
func (m *Membrane) InsertHandler(graphName string, proxy graph.Object, leadName string, node graph.Node) error {
	p, err := m.asProxy(graphName, proxy)
	if err != nil {
		return err
	}
	return p.pipeline.InsertHandler(leadName, node)
}
