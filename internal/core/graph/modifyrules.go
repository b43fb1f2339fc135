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
	"github.com/ajvincent/es7-membrane/errors"
)

// ModifyRules exposes the per-proxy rule-mutating operations of spec.md
// §4.4. Every operation first asserts that proxy is the current proxy
// installed for graph in the membrane before touching the cylinder.
type ModifyRules struct {
	valueMap *GraphValueMap
}

// NewModifyRules builds a ModifyRules bound to the membrane's shared
// value map.
func NewModifyRules(valueMap *GraphValueMap) *ModifyRules {
	return &ModifyRules{valueMap: valueMap}
}

// assertCurrentProxy resolves proxy to its cylinder and confirms graph's
// foreign entry is exactly this proxy (spec.md §4.4 "asserts that proxy
// is the current proxy for graph in the membrane").
func (mr *ModifyRules) assertCurrentProxy(graph string, proxy Object) (*ProxyCylinder, error) {
	cyl, dead, found := mr.valueMap.Lookup(proxy)
	if !found || dead {
		return nil, errors.NewForGraph(errors.UnknownGraph, graph, "proxy is not registered with this membrane")
	}
	current, err := cyl.GetProxy(graph)
	if err != nil {
		return nil, err
	}
	if current != Value(proxy) {
		return nil, errors.NewForGraph(errors.GraphOwnershipViolation, graph, "proxy is not the current proxy for this graph")
	}
	return cyl, nil
}

// StoreUnknownAsLocal enables storeUnknownAsLocal for graph's entry.
func (mr *ModifyRules) StoreUnknownAsLocal(graph string, proxy Object) error {
	cyl, err := mr.assertCurrentProxy(graph, proxy)
	if err != nil {
		return err
	}
	return cyl.SetLocalFlag(graph, FlagStoreUnknownAsLocal, true)
}

// RequireLocalDelete enables requireLocalDelete for graph's entry.
func (mr *ModifyRules) RequireLocalDelete(graph string, proxy Object) error {
	cyl, err := mr.assertCurrentProxy(graph, proxy)
	if err != nil {
		return err
	}
	return cyl.SetLocalFlag(graph, FlagRequireLocalDelete, true)
}

// KeyFilterSpec is the union of ways filterOwnKeys may be invoked
// (spec.md §4.4 "accepts predicate, array, or set; array/set interpreted
// as allow-list").
type KeyFilterSpec struct {
	Predicate func(PropertyKey) bool
	AllowList []PropertyKey
}

func (spec KeyFilterSpec) toFilter() func(PropertyKey) bool {
	if spec.Predicate != nil {
		return spec.Predicate
	}
	allow := make(map[PropertyKey]struct{}, len(spec.AllowList))
	for _, k := range spec.AllowList {
		allow[k] = struct{}{}
	}
	return func(k PropertyKey) bool {
		_, ok := allow[k]
		return ok
	}
}

// FilterOwnKeys installs spec as graph's own-keys filter. It rejects
// when any shadow in proxy's cylinder is already non-extensible (spec.md
// §4.4).
func (mr *ModifyRules) FilterOwnKeys(graph string, proxy Object, spec KeyFilterSpec) error {
	cyl, err := mr.assertCurrentProxy(graph, proxy)
	if err != nil {
		return err
	}
	if cyl.AnyShadowNonExtensible() {
		return errors.NewForGraph(errors.RuleConflict, graph, "filterOwnKeys: a shadow in this cylinder is already non-extensible")
	}
	return cyl.SetOwnKeysFilter(graph, spec.toFilter())
}

// TruncateArgList installs graph's argument-truncation limit for a
// function proxy.
func (mr *ModifyRules) TruncateArgList(graph string, proxy Object, limit ArgTruncation) error {
	cyl, err := mr.assertCurrentProxy(graph, proxy)
	if err != nil {
		return err
	}
	return cyl.SetTruncateArgList(graph, limit)
}

// DisableTraps disables every trap named in traps for graph's entry.
func (mr *ModifyRules) DisableTraps(graph string, proxy Object, traps []string) error {
	cyl, err := mr.assertCurrentProxy(graph, proxy)
	if err != nil {
		return err
	}
	for _, t := range traps {
		if err := cyl.SetLocalFlag(graph, DisableTrapFlag(t), true); err != nil {
			return err
		}
	}
	return nil
}

// ChainHandler is a protected, user-extensible Node built by
// createChainHandler (spec.md §4.4): nextHandler/baseHandler/membrane
// are fixed at construction, and only the thirteen recognized trap names
// may be overridden with functions via Override.
type ChainHandler struct {
	name      string
	base      Node
	overrides map[string]func(call *TrapCall, next func(*TrapCall) (Value, error)) (Value, error)
}

var recognizedTraps = map[string]bool{
	TrapGet: true, TrapSet: true, TrapHas: true, TrapOwnKeys: true,
	TrapGetOwnPropertyDescriptor: true, TrapDefineProperty: true,
	TrapDeleteProperty: true, TrapGetPrototypeOf: true, TrapSetPrototypeOf: true,
	TrapIsExtensible: true, TrapPreventExtensions: true, TrapApply: true, TrapConstruct: true,
}

// reflectNode is the Reflect-equivalent base: pure forwarding, used when
// createChainHandler is given no existing handler.
type reflectNode struct{}

func (reflectNode) Name() string { return "Reflect" }
func (reflectNode) Invoke(call *TrapCall, next func(*TrapCall) (Value, error)) (Value, error) {
	return next(call)
}

// CreateChainHandler builds a new ChainHandler whose base is existing if
// non-nil, or the Reflect-equivalent forwarding node otherwise.
func (mr *ModifyRules) CreateChainHandler(name string, existing Node) *ChainHandler {
	base := existing
	if base == nil {
		base = reflectNode{}
	}
	return &ChainHandler{name: name, base: base, overrides: make(map[string]func(*TrapCall, func(*TrapCall) (Value, error)) (Value, error))}
}

// Override installs fn as trapName's implementation on this chain
// handler. Only the thirteen recognized trap names are accepted (spec.md
// §4.4 "only the recognized trap names may be overridden").
func (h *ChainHandler) Override(trapName string, fn func(call *TrapCall, next func(*TrapCall) (Value, error)) (Value, error)) error {
	if !recognizedTraps[trapName] {
		return errors.Newf(errors.ValidationFailure, "createChainHandler: %q is not a recognized trap name", trapName)
	}
	h.overrides[trapName] = fn
	return nil
}

func (h *ChainHandler) Name() string { return h.name }

func (h *ChainHandler) Invoke(call *TrapCall, next func(*TrapCall) (Value, error)) (Value, error) {
	if fn, ok := h.overrides[call.Trap]; ok {
		return fn(call, func(c *TrapCall) (Value, error) { return h.base.Invoke(c, next) })
	}
	return h.base.Invoke(call, next)
}

// ReplaceProxy swaps newProxy and newRevoke into the foreign entry for
// graph in oldProxy's cylinder, reusing the existing shadow (spec.md §4.4
// "replaceProxy"). newProxy/newRevoke are supplied by the caller. The old
// proxy's revoke callback is dropped: it is neither invoked nor rewired,
// and the old proxy stays registered in the value map.
func (mr *ModifyRules) ReplaceProxy(graph string, oldProxy Object, newProxy Object, newRevoke func()) error {
	cyl, err := mr.assertCurrentProxy(graph, oldProxy)
	if err != nil {
		return err
	}
	shadow, err := cyl.GetShadowTarget(graph)
	if err != nil {
		return err
	}
	return cyl.SetForeignEntry(mr.valueMap, graph, ForeignEntry{
		Proxy:  newProxy,
		Revoke: newRevoke,
		Shadow: shadow,
	}, true)
}
