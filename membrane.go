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

// Package membrane implements the façade of spec.md §4.3: it owns the
// graph-handler registry, the shared value map, the ModifyRules API, the
// function-listener list, and the pass-through filter, and exposes the
// public construction and wrap/bind operations of spec.md §6.
package membrane

import (
	"fmt"
	"sync"

	"github.com/ajvincent/es7-membrane/errors"
	"github.com/ajvincent/es7-membrane/internal/core/graph"
)

// Options configures a new Membrane (spec.md §6 "new Membrane({
// passThroughFilter?, showGraphName?, logger?, refactor? })").
type Options struct {
	// PassThroughFilter, if non-nil, causes ConvertArgumentToProxy to
	// return arg unchanged whenever it reports true.
	PassThroughFilter func(v graph.Value) bool
	// ShowGraphName lists the membraneGraphName sentinel property in every
	// proxy's own keys (spec.md §6). Get, Has and GetOwnPropertyDescriptor
	// answer the sentinel whether or not this is set.
	ShowGraphName bool
	// Logger receives warnOnce output. A nil Logger disables that output
	// (it is never required for correctness).
	Logger Logger
	// Refactor is a free-form compatibility tag. Per SPEC_FULL.md §C,
	// this engine's only graph-owner strategy is the pipeline-based one;
	// Refactor is retained purely as a construction-time acknowledgement
	// of that choice and is rejected if set to anything but "" or
	// "pipeline".
	Refactor string
}

// Logger is the minimal sink Membrane writes warnOnce messages to.
type Logger interface {
	Printf(format string, args ...any)
}

// FunctionListenerReason re-exports graph's reason enum at the façade
// boundary so callers need not import the internal package directly.
type FunctionListenerReason = graph.FunctionListenerReason

const (
	ReasonEnter  = graph.ReasonEnter
	ReasonReturn = graph.ReasonReturn
	ReasonThrow  = graph.ReasonThrow
)

// FunctionListener receives apply/construct notifications (spec.md §6
// "Function listener receives (reason, trapName, thisGraph, originGraph,
// target, rvOrExn)").
type FunctionListener func(reason FunctionListenerReason, trapName, thisGraph, originGraph string, target graph.Object, rv graph.Value, callErr error)

// Membrane is the mediation engine's façade (spec.md §4.3).
type Membrane struct {
	mu sync.Mutex

	opts     Options
	valueMap *graph.GraphValueMap
	handlers map[string]*graph.GraphHandler
	rules    *graph.ModifyRules

	funcListeners  []FunctionListener
	proxyListeners []graph.ProxyListener
	construction   *graph.InConstruction

	warned map[string]bool
}

// New constructs a Membrane per spec.md §6.
func New(opts Options) (*Membrane, error) {
	if opts.Refactor != "" && opts.Refactor != "pipeline" {
		return nil, errors.Newf(errors.ValidationFailure, "membrane: refactor %q is not supported; this engine only implements the pipeline-style graph owner", opts.Refactor)
	}
	m := &Membrane{
		opts:         opts,
		valueMap:     graph.NewGraphValueMap(),
		handlers:     make(map[string]*graph.GraphHandler),
		construction: graph.NewInConstruction(),
		warned:       make(map[string]bool),
	}
	m.rules = graph.NewModifyRules(m.valueMap)
	return m, nil
}

// ModifyRules returns the membrane's ModifyRules API surface (spec.md
// §4.4).
func (m *Membrane) ModifyRules() *graph.ModifyRules { return m.rules }

// GetHandlerByName returns the named graph's handler, creating it if
// mustCreate is true and it does not yet exist
// (spec.md §4.3 "getHandlerByName(graph, {mustCreate?})").
func (m *Membrane) GetHandlerByName(name string, mustCreate bool) (*graph.GraphHandler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handlers[name]; ok {
		return h, nil
	}
	if !mustCreate {
		return nil, errors.NewForGraph(errors.UnknownGraph, name, "no handler registered for this graph")
	}
	h := graph.NewGraphHandler(name, m.valueMap, m)
	m.handlers[name] = h
	return h, nil
}

// AddFunctionListener registers fn. It returns a token RemoveFunctionListener accepts.
func (m *Membrane) AddFunctionListener(fn FunctionListener) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcListeners = append(m.funcListeners, fn)
	return len(m.funcListeners) - 1
}

// RemoveFunctionListener removes the listener registered with the token
// AddFunctionListener returned.
func (m *Membrane) RemoveFunctionListener(token int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token < 0 || token >= len(m.funcListeners) {
		return
	}
	m.funcListeners[token] = nil
}

// AddProxyListener registers a listener notified on every new
// foreign-graph proxy (spec.md §4.2.3).
func (m *Membrane) AddProxyListener(l graph.ProxyListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proxyListeners = append(m.proxyListeners, l)
}

// WarnOnce logs msg through opts.Logger at most once per distinct
// message (spec.md §4.3 "warnOnce(msg)").
func (m *Membrane) WarnOnce(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warned[msg] {
		return
	}
	m.warned[msg] = true
	if m.opts.Logger != nil {
		m.opts.Logger.Printf("membrane: %s", msg)
	}
}

// HasProxyForValue reports whether v (a value known in some other graph)
// already has a proxy installed for graphName.
func (m *Membrane) HasProxyForValue(graphName string, v graph.Value) bool {
	cyl, dead, found := m.valueMap.Lookup(v)
	if !found || dead {
		return false
	}
	_, err := cyl.GetProxy(graphName)
	return err == nil
}

// GetMembraneValue returns the real value bound to v's cylinder, if any.
func (m *Membrane) GetMembraneValue(v graph.Value) (graph.Value, bool) {
	cyl, dead, found := m.valueMap.Lookup(v)
	if !found || dead {
		return nil, false
	}
	val, err := cyl.GetOriginal()
	if err != nil {
		return nil, false
	}
	return val, true
}

// GetMembraneProxy returns graphName's proxy for v's cylinder, if any.
func (m *Membrane) GetMembraneProxy(graphName string, v graph.Value) (graph.Value, bool) {
	cyl, dead, found := m.valueMap.Lookup(v)
	if !found || dead {
		return nil, false
	}
	p, err := cyl.GetProxy(graphName)
	if err != nil {
		return nil, false
	}
	return p, true
}

// passThrough reports whether arg should cross unconverted: it is a
// primitive, or the global filter accepts it.
func (m *Membrane) passThrough(arg graph.Value) bool {
	if graph.IsPrimitive(arg) {
		return true
	}
	if m.opts.PassThroughFilter != nil && m.opts.PassThroughFilter(arg) {
		return true
	}
	return false
}

// ConvertArgumentToProxy is the central wrap operation (spec.md §4.3).
// If override is true, any existing cylinder for arg is self-destructed
// first.
func (m *Membrane) ConvertArgumentToProxy(originGraph, targetGraph string, arg graph.Value, override bool) (graph.Value, error) {
	if m.passThrough(arg) {
		return arg, nil
	}
	realObj, ok := arg.(graph.Object)
	if !ok {
		return arg, nil
	}

	if override {
		if cyl, dead, found := m.valueMap.Lookup(realObj); found && !dead {
			cyl.SelfDestruct(m.valueMap)
		}
	}

	cyl, dead, found := m.valueMap.Lookup(realObj)
	if !found || dead {
		cyl = graph.NewProxyCylinder(originGraph)
		if err := cyl.SetOriginValue(m.valueMap, realObj, true); err != nil {
			return nil, err
		}
	}

	if existing, err := cyl.GetProxy(targetGraph); err == nil {
		return existing, nil
	}

	if err := m.buildForeignMapping(cyl, originGraph, targetGraph, realObj); err != nil {
		return nil, err
	}
	return cyl.GetProxy(targetGraph)
}

// buildForeignMapping creates the shadow and the proxy/revoke pair for
// real in targetGraph, installing them on cyl and notifying proxy
// listeners (spec.md §4.3 "buildMapping").
func (m *Membrane) buildForeignMapping(cyl *graph.ProxyCylinder, originGraph, targetGraph string, real graph.Object) error {
	if !m.construction.Enter(real) {
		done := make(chan struct{})
		m.construction.Defer(real, func() { close(done) })
		<-done
		return nil
	}
	defer m.construction.Leave(real)

	handler, err := m.GetHandlerByName(targetGraph, true)
	if err != nil {
		return err
	}
	shadow := graph.NewShadowTarget(real.Kind())
	pipeline := graph.NewPipeline(targetGraph, false, dispatchTerminal(handler))
	proxy := &proxyObject{shadow: shadow, pipeline: pipeline, handler: handler, membrane: m}

	if err := cyl.SetForeignEntry(m.valueMap, targetGraph, graph.ForeignEntry{
		Proxy:  proxy,
		Revoke: func() { m.valueMap.MarkDead(shadow) },
		Shadow: shadow,
	}, true); err != nil {
		return err
	}
	if m.opts.ShowGraphName {
		// Same flag name the graph package's ownKeys trap reads.
		if err := cyl.SetLocalFlag(targetGraph, "showGraphName", true); err != nil {
			return err
		}
	}

	if !real.IsExtensible() {
		shadow.PreventExtensions()
	}

	originHandler, err := m.GetHandlerByName(originGraph, true)
	if err != nil {
		return err
	}
	// getProxy(originGraph) is defined as the real value itself (spec.md
	// §4.2.3), so the origin-side notification's Proxy is real, not the
	// foreign proxy just minted; distortions.ApplyConfiguration relies on
	// this to target the right side of the mapping.
	meta := graph.NewProxyMeta(shadow, real, real, originHandler, true, func() {}, func(mode graph.ShadowTargetMode) {})
	if err := graph.FireProxyListeners(m.proxyListeners, meta); err != nil {
		return err
	}
	meta2 := graph.NewProxyMeta(shadow, proxy, real, handler, false, func() {}, func(mode graph.ShadowTargetMode) {})
	return graph.FireProxyListeners(m.proxyListeners, meta2)
}

// Convert implements [graph.Services]: it is ConvertArgumentToProxy
// without the override option, the form GraphHandler traps need.
func (m *Membrane) Convert(originGraph, targetGraph string, arg graph.Value) (graph.Value, error) {
	return m.ConvertArgumentToProxy(originGraph, targetGraph, arg, false)
}

// WrapDescriptor implements [graph.Services] and spec.md §4.3
// "wrapDescriptor": normalizes flags, recursively converts Value/Get/Set.
func (m *Membrane) WrapDescriptor(originGraph, targetGraph string, desc graph.Descriptor) (graph.Descriptor, error) {
	out := desc
	if !desc.Accessor {
		wrapped, err := m.Convert(originGraph, targetGraph, desc.Value)
		if err != nil {
			return graph.Descriptor{}, err
		}
		out.Value = wrapped
		return out, nil
	}
	if desc.Get != nil {
		wrapped, err := m.Convert(originGraph, targetGraph, desc.Get)
		if err != nil {
			return graph.Descriptor{}, err
		}
		out.Get, _ = wrapped.(graph.Callable)
	}
	if desc.Set != nil {
		wrapped, err := m.Convert(originGraph, targetGraph, desc.Set)
		if err != nil {
			return graph.Descriptor{}, err
		}
		out.Set, _ = wrapped.(graph.Callable)
	}
	return out, nil
}

// FireFunctionListeners implements [graph.Services]: notify every
// registered function listener, swallowing and logging any error or
// panic a listener produces (spec.md §6 "Exceptions thrown by listeners
// are swallowed and logged; they never interrupt the traced call.").
func (m *Membrane) FireFunctionListeners(reason graph.FunctionListenerReason, trapName, thisGraph, originGraph string, target graph.Object, rv graph.Value, callErr error) {
	m.mu.Lock()
	snapshot := make([]FunctionListener, len(m.funcListeners))
	copy(snapshot, m.funcListeners)
	m.mu.Unlock()

	for _, fn := range snapshot {
		if fn == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.WarnOnce(fmt.Sprintf("function listener panicked: %v", r))
				}
			}()
			fn(reason, trapName, thisGraph, originGraph, target, rv, callErr)
		}()
	}
}

// BindValuesByHandlers binds two real values across graphs such that
// each is the other's proxy in the opposite graph (spec.md §4.3
// "bindValuesByHandlers"). It fails atomically if either value is
// already bound to a different partner in the opposing graph, if both
// sides share a graph with different values, or if both are primitives.
func (m *Membrane) BindValuesByHandlers(h0 string, v0 graph.Value, h1 string, v1 graph.Value) error {
	if graph.IsPrimitive(v0) && graph.IsPrimitive(v1) {
		return errors.Newf(errors.PrimitiveWrap, "bindValuesByHandlers: both values are primitives")
	}
	if h0 == h1 {
		if v0 != v1 {
			return errors.NewForGraph(errors.RuleConflict, h0, "bindValuesByHandlers: same graph bound to two different values")
		}
		return nil
	}
	if existing, ok := m.GetMembraneProxy(h1, v0); ok && existing != v1 {
		return errors.NewForGraph(errors.RuleConflict, h1, "bindValuesByHandlers: %v already bound to a different partner", v0)
	}
	if existing, ok := m.GetMembraneProxy(h0, v1); ok && existing != v0 {
		return errors.NewForGraph(errors.RuleConflict, h0, "bindValuesByHandlers: %v already bound to a different partner", v1)
	}

	realObj0, ok0 := v0.(graph.Object)
	if !ok0 {
		_, err := m.ConvertArgumentToProxy(h1, h0, v1, false)
		return err
	}
	cyl, dead, found := m.valueMap.Lookup(realObj0)
	if !found || dead {
		cyl = graph.NewProxyCylinder(h0)
		if err := cyl.SetOriginValue(m.valueMap, realObj0, true); err != nil {
			return err
		}
	}
	realObj1, ok1 := v1.(graph.Object)
	if !ok1 {
		return m.buildForeignMapping(cyl, h0, h1, realObj0)
	}
	if existing, err := cyl.GetProxy(h1); err == nil && existing == v1 {
		return nil
	}
	return cyl.SetForeignEntry(m.valueMap, h1, graph.ForeignEntry{
		Proxy:  realObj1,
		Shadow: graph.NewShadowTarget(realObj1.Kind()),
	}, false)
}

// RevokeMapping marks v's cylinder entirely dead (spec.md §4.3
// "revokeMapping(key)").
func (m *Membrane) RevokeMapping(v graph.Value) {
	cyl, dead, found := m.valueMap.Lookup(v)
	if !found || dead {
		return
	}
	cyl.RevokeAll(m.valueMap)
}
