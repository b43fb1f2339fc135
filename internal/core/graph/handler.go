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

// Trap names, used both for tracing and for ModifyRules.disableTraps
// (spec.md §4.1, §4.2). There are thirteen: this is the "per-graph
// vtable of 13 function pointers" design note from spec.md §9, expressed
// as named methods on [GraphHandler] rather than a string-keyed table —
// the trap name strings below exist only for the disable/trace surface,
// not for dispatch.
const (
	TrapGet                      = "get"
	TrapSet                      = "set"
	TrapHas                      = "has"
	TrapGetOwnPropertyDescriptor = "getOwnPropertyDescriptor"
	TrapDefineProperty           = "defineProperty"
	TrapDeleteProperty           = "deleteProperty"
	TrapOwnKeys                  = "ownKeys"
	TrapGetPrototypeOf           = "getPrototypeOf"
	TrapSetPrototypeOf           = "setPrototypeOf"
	TrapIsExtensible             = "isExtensible"
	TrapPreventExtensions        = "preventExtensions"
	TrapApply                    = "apply"
	TrapConstruct                = "construct"
)

// AllTraps lists every trap name, in the order spec.md §2 lists them.
var AllTraps = []string{
	TrapGet, TrapSet, TrapHas, TrapOwnKeys, TrapGetOwnPropertyDescriptor,
	TrapDefineProperty, TrapDeleteProperty, TrapGetPrototypeOf,
	TrapSetPrototypeOf, TrapIsExtensible, TrapPreventExtensions,
	TrapApply, TrapConstruct,
}

// FunctionListenerReason is the "enter"/"return"/"throw" tag delivered to
// function listeners (spec.md §6).
type FunctionListenerReason uint8

const (
	ReasonEnter FunctionListenerReason = iota
	ReasonReturn
	ReasonThrow
)

func (r FunctionListenerReason) String() string {
	switch r {
	case ReasonEnter:
		return "enter"
	case ReasonReturn:
		return "return"
	case ReasonThrow:
		return "throw"
	default:
		return "unknown"
	}
}

// Services is the set of membrane-façade operations a [GraphHandler]
// needs in order to mediate traps: re-wrapping crossing values and
// descriptors, and notifying function listeners. Declared here (rather
// than imported from the façade package) to keep graph free of a
// dependency on its own caller.
type Services interface {
	// Convert wraps arg, which lives in originGraph, for observation in
	// targetGraph (the central convertArgumentToProxy operation, spec.md
	// §4.3).
	Convert(originGraph, targetGraph string, arg Value) (Value, error)

	// WrapDescriptor rewrites desc's Value/Get/Set slots from
	// originGraph into targetGraph (spec.md §4.3 wrapDescriptor).
	WrapDescriptor(originGraph, targetGraph string, desc Descriptor) (Descriptor, error)

	// FireFunctionListeners notifies every registered function listener.
	// Errors the listeners raise are swallowed by the façade; this method
	// never returns one.
	FireFunctionListeners(reason FunctionListenerReason, trapName string, thisGraph, originGraph string, target Object, rv Value, callErr error)
}

// GraphHandler mediates every trap for one graph (spec.md §4.2). A
// membrane owns one GraphHandler per registered graph name.
type GraphHandler struct {
	name     string
	valueMap *GraphValueMap
	services Services
	revoked  bool

	// locking/deferredLocks guard lockShadow (spec.md §4.2.2) against
	// re-entrancy: a lazy getter firing while its own shadow is still
	// mid-lock defers the nested lock request instead of recursing.
	locking       map[*ShadowTarget]bool
	deferredLocks []lockJob
}

// NewGraphHandler creates the handler for graph name, backed by
// valueMap (shared across every graph the owning membrane knows about)
// and services (the owning membrane's wrap/notify operations).
func NewGraphHandler(name string, valueMap *GraphValueMap, services Services) *GraphHandler {
	return &GraphHandler{name: name, valueMap: valueMap, services: services}
}

// Name returns this handler's graph name.
func (h *GraphHandler) Name() string { return h.name }

// RevokeEverything terminates every proxy whose foreign entry lives in
// this graph (spec.md §6 "graphHandler.revokeEverything()"). After this
// call every subsequent trap on this graph's proxies fails with
// [errors.Revoked].
func (h *GraphHandler) RevokeEverything() {
	h.revoked = true
}

// Revoked reports whether RevokeEverything has been called on this
// handler.
func (h *GraphHandler) Revoked() bool { return h.revoked }

// resolved bundles what every trap needs after step 1-2 of the general
// algorithm (spec.md §4.2): the cylinder, the real value it guards (as
// an Object — traps never run on primitives), and the origin graph name
// real values should be wrapped "from" when crossing back into h.
type resolved struct {
	cyl    *ProxyCylinder
	real   Object
	origin string
}

// resolve implements step 1-2 of the general trap algorithm: find the
// cylinder for shadow, the real object it guards, and fail fast on
// revocation or disablement.
func (h *GraphHandler) resolve(shadow *ShadowTarget, trapName string) (resolved, error) {
	if h.revoked {
		return resolved{}, errors.NewForGraph(errors.Revoked, h.name, "graph has been revoked")
	}
	cyl, dead, found := h.valueMap.Lookup(shadow)
	if !found {
		return resolved{}, errors.NewForGraph(errors.UnknownGraph, h.name, "shadow target is not registered with this membrane")
	}
	if dead {
		return resolved{}, errors.NewForGraph(errors.Revoked, h.name, "proxy has been revoked")
	}
	if disabled, _ := cyl.GetLocalFlag(h.name, DisableTrapFlag(trapName)); disabled {
		return resolved{}, errors.NewForGraph(errors.TrapDisabled, h.name, "trap %q is disabled for this proxy", trapName)
	}
	realValue, err := cyl.GetOriginal()
	if err != nil {
		if kind, ok := errors.KindOf(err); ok && kind == errors.DeadGraph {
			// Open Question (c), resolved in SPEC_FULL.md: origin death is
			// observed lazily, at the next trap, rather than eagerly
			// pushed to every foreign entry.
			return resolved{}, errors.NewForGraph(errors.Revoked, h.name, "origin graph has died")
		}
		return resolved{}, err
	}
	real, ok := realValue.(Object)
	if !ok {
		return resolved{}, errors.NewForGraph(errors.InvariantViolation, h.name, "cylinder's real value is a primitive")
	}
	return resolved{cyl: cyl, real: real, origin: cyl.OriginGraph()}, nil
}

// shouldBeLocal resolves a boolean local flag starting at real and
// ascending its prototype chain until a cylinder reports the flag set
// for this graph, or the chain is exhausted (spec.md §4.2 step 3).
func (h *GraphHandler) shouldBeLocal(real Object, flagName string) bool {
	for cur := real; cur != nil; cur = cur.GetPrototype() {
		if cyl, dead, found := h.valueMap.Lookup(cur); found && !dead {
			if v, _ := cyl.GetLocalFlag(h.name, flagName); v {
				return true
			}
		}
	}
	return false
}

// pinNonConfigurable mirrors a non-configurable descriptor observation
// onto the shadow, satisfying the host-language proxy invariant that a
// non-configurable own property may never disappear or relax from the
// proxy's point of view (spec.md §4.2 step 6).
func pinNonConfigurable(shadow *ShadowTarget, key PropertyKey, wrapped Descriptor) {
	if wrapped.Configurable {
		return
	}
	if _, has := shadow.GetOwnPropertyDescriptor(key); has {
		return
	}
	shadow.DefineOwnProperty(key, wrapped)
}

func (h *GraphHandler) wrapDescriptor(origin string, desc Descriptor) Descriptor {
	wrapped, err := h.services.WrapDescriptor(origin, h.name, desc)
	if err != nil {
		// WrapDescriptor only fails on caller misuse the engine itself
		// never triggers (e.g. binding conflicts); surfacing the
		// original descriptor unwrapped would be unsafe, so this
		// indicates an engine bug.
		panic("graph: WrapDescriptor failed for a descriptor observed internally: " + err.Error())
	}
	return wrapped
}

func (h *GraphHandler) readDescriptor(origin string, desc Descriptor, receiver Object) (Value, error) {
	if !desc.Accessor {
		return h.services.Convert(origin, h.name, desc.Value)
	}
	if desc.Get == nil {
		return nil, nil
	}
	return desc.Get.Call(receiver, nil)
}

// ---- get -----------------------------------------------------------------

// Get implements the ordinary-object [[Get]] algorithm against
// (cylinder, this graph): local descriptor first, then the wrapped own
// descriptor, else ascend the prototype chain (spec.md §4.2 "get").
func (h *GraphHandler) Get(shadow *ShadowTarget, key PropertyKey, receiver Object) (Value, error) {
	r, err := h.resolve(shadow, TrapGet)
	if err != nil {
		return nil, err
	}
	if key == MembraneGraphName {
		return h.name, nil
	}
	if local, ok, _ := r.cyl.GetLocalDescriptor(h.name, key); ok {
		return h.readDescriptor(h.name, local, receiver)
	}
	if deleted, _ := r.cyl.WasDeletedLocally(h.name, key); deleted {
		return nil, nil
	}
	for cur := r.real; cur != nil; cur = cur.GetPrototype() {
		if desc, ok := cur.GetOwnPropertyDescriptor(key); ok {
			if cur == r.real {
				pinNonConfigurable(shadow, key, h.wrapDescriptor(r.origin, desc))
			}
			return h.readDescriptor(r.origin, desc, receiver)
		}
	}
	return nil, nil
}

// ---- set -----------------------------------------------------------------

// Set implements [[Set]]. If receiver has never crossed the membrane, a
// mapping is bootstrapped for it on demand (spec.md §4.2 "set", §5
// re-entrancy hazard "Reassigning a receiver...").
func (h *GraphHandler) Set(shadow *ShadowTarget, key PropertyKey, value Value, receiver Object) (bool, error) {
	r, err := h.resolve(shadow, TrapSet)
	if err != nil {
		return false, err
	}
	if key == MembraneGraphName {
		return false, errors.NewForGraph(errors.InvariantViolation, h.name, "membraneGraphName is not writable")
	}
	if !h.valueMap.Has(receiver) {
		h.valueMap.Register(receiver, r.cyl)
	}
	if h.shouldBeLocal(r.real, FlagStoreUnknownAsLocal) {
		if err := r.cyl.SetLocalDescriptor(h.name, key, DataDescriptor(value, true, true, true)); err != nil {
			return false, err
		}
		return true, nil
	}
	desc, hasOwn := r.real.GetOwnPropertyDescriptor(key)
	if hasOwn && desc.Accessor {
		if desc.Set == nil {
			return false, nil
		}
		wrappedValue, err := h.services.Convert(h.name, r.origin, value)
		if err != nil {
			return false, err
		}
		if _, err := desc.Set.Call(receiver, []Value{wrappedValue}); err != nil {
			return false, err
		}
		return true, nil
	}
	if hasOwn && !desc.Writable {
		return false, nil
	}
	wrappedValue, err := h.services.Convert(h.name, r.origin, value)
	if err != nil {
		return false, err
	}
	newDesc := DataDescriptor(wrappedValue, true, true, true)
	if hasOwn {
		newDesc.Enumerable = desc.Enumerable
		newDesc.Configurable = desc.Configurable
	}
	ok := r.real.DefineOwnProperty(key, newDesc)
	if ok {
		_ = r.cyl.InvalidateOwnKeysCache(h.name)
	}
	return ok, nil
}

// ---- has -------------------------------------------------------------

// Has ascends with own-descriptor lookups until found or the prototype
// chain is exhausted (spec.md §4.2 "has").
func (h *GraphHandler) Has(shadow *ShadowTarget, key PropertyKey) (bool, error) {
	r, err := h.resolve(shadow, TrapHas)
	if err != nil {
		return false, err
	}
	if key == MembraneGraphName {
		return true, nil
	}
	if _, ok, _ := r.cyl.GetLocalDescriptor(h.name, key); ok {
		return true, nil
	}
	if deleted, _ := r.cyl.WasDeletedLocally(h.name, key); deleted {
		return false, nil
	}
	if filter, _ := r.cyl.GetOwnKeysFilter(h.name); filter != nil && !filter(key) {
		return false, nil
	}
	for cur := r.real; cur != nil; cur = cur.GetPrototype() {
		if _, ok := cur.GetOwnPropertyDescriptor(key); ok {
			return true, nil
		}
	}
	return false, nil
}

// ---- getOwnPropertyDescriptor ------------------------------------------

// GetOwnPropertyDescriptor consults the locally-deleted set, then local
// descriptors, then own-keys filters, then the real descriptor wrapped
// across graphs (spec.md §4.2 "getOwnPropertyDescriptor").
func (h *GraphHandler) GetOwnPropertyDescriptor(shadow *ShadowTarget, key PropertyKey) (Descriptor, bool, error) {
	r, err := h.resolve(shadow, TrapGetOwnPropertyDescriptor)
	if err != nil {
		return Descriptor{}, false, err
	}
	if key == MembraneGraphName {
		return DataDescriptor(h.name, false, true, false), true, nil
	}
	if deleted, _ := r.cyl.WasDeletedLocally(h.name, key); deleted {
		return Descriptor{}, false, nil
	}
	if local, ok, _ := r.cyl.GetLocalDescriptor(h.name, key); ok {
		return local, true, nil
	}
	if filter, _ := r.cyl.GetOwnKeysFilter(h.name); filter != nil && !filter(key) {
		return Descriptor{}, false, nil
	}
	desc, ok := r.real.GetOwnPropertyDescriptor(key)
	if !ok {
		return Descriptor{}, false, nil
	}
	wrapped := h.wrapDescriptor(r.origin, desc)
	pinNonConfigurable(shadow, key, wrapped)
	return wrapped, true, nil
}

// ---- defineProperty ------------------------------------------------------

// DefineProperty installs desc for key, honoring key filters and the
// storeUnknownAsLocal rule (spec.md §4.2 "defineProperty").
func (h *GraphHandler) DefineProperty(shadow *ShadowTarget, key PropertyKey, desc Descriptor) (bool, error) {
	r, err := h.resolve(shadow, TrapDefineProperty)
	if err != nil {
		return false, err
	}
	if key == MembraneGraphName {
		return false, errors.NewForGraph(errors.InvariantViolation, h.name, "membraneGraphName cannot be defined")
	}
	if filter, _ := r.cyl.GetOwnKeysFilter(h.name); filter != nil && !filter(key) {
		return false, nil
	}
	_, hasOwnReal := r.real.GetOwnPropertyDescriptor(key)
	shouldBeLocal := h.shouldBeLocal(r.real, FlagStoreUnknownAsLocal)
	if shouldBeLocal && !hasOwnReal {
		if err := r.cyl.SetLocalDescriptor(h.name, key, desc); err != nil {
			return false, err
		}
		pinNonConfigurable(shadow, key, desc)
		return true, nil
	}
	wrapped, err := h.services.WrapDescriptor(h.name, r.origin, desc)
	if err != nil {
		return false, err
	}
	ok := r.real.DefineOwnProperty(key, wrapped)
	if ok {
		_ = r.cyl.InvalidateOwnKeysCache(h.name)
		pinNonConfigurable(shadow, key, h.wrapDescriptor(r.origin, wrapped))
	}
	return ok, nil
}

// ---- deleteProperty --------------------------------------------------

// DeleteProperty is a no-op success for a filtered key, leaving the real
// side unmutated (spec.md §8 invariant 3); otherwise, if requireLocalDelete is
// set, it hides key for this graph without touching the real value
// (spec.md §8 "S4 Local delete": `("x" in p) === false`, `o.x === 10`);
// otherwise it performs a real delete plus deleteLocalDescriptor
// bookkeeping (spec.md §4.2 "deleteProperty").
func (h *GraphHandler) DeleteProperty(shadow *ShadowTarget, key PropertyKey) (bool, error) {
	r, err := h.resolve(shadow, TrapDeleteProperty)
	if err != nil {
		return false, err
	}
	if key == MembraneGraphName {
		return false, nil
	}
	if filter, _ := r.cyl.GetOwnKeysFilter(h.name); filter != nil && !filter(key) {
		return true, nil
	}
	if h.shouldBeLocal(r.real, FlagRequireLocalDelete) {
		if err := r.cyl.DeleteLocalDescriptor(h.name, key, true); err != nil {
			return false, err
		}
		_ = shadow.DeleteOwnProperty(key)
		return true, nil
	}
	ok := r.real.DeleteOwnProperty(key)
	if !ok {
		return false, nil
	}
	if err := r.cyl.DeleteLocalDescriptor(h.name, key, false); err != nil {
		return false, err
	}
	_ = shadow.DeleteOwnProperty(key)
	return true, nil
}

// ---- getPrototypeOf / setPrototypeOf -----------------------------------

// GetPrototypeOf reads the real prototype, wraps it into this graph, and
// mirrors it onto the shadow (spec.md §4.2).
func (h *GraphHandler) GetPrototypeOf(shadow *ShadowTarget) (Object, error) {
	r, err := h.resolve(shadow, TrapGetPrototypeOf)
	if err != nil {
		return nil, err
	}
	proto := r.real.GetPrototype()
	if proto == nil {
		shadow.SetPrototype(nil)
		return nil, nil
	}
	wrapped, err := h.services.Convert(r.origin, h.name, proto)
	if err != nil {
		return nil, err
	}
	wrappedObj, _ := wrapped.(Object)
	shadow.SetPrototype(wrappedObj)
	return wrappedObj, nil
}

// SetPrototypeOf sets the real prototype from a value already wrapped
// into this graph, unwrapping it back to origin space first, and mirrors
// the result onto the shadow.
func (h *GraphHandler) SetPrototypeOf(shadow *ShadowTarget, proto Object) (bool, error) {
	r, err := h.resolve(shadow, TrapSetPrototypeOf)
	if err != nil {
		return false, err
	}
	var realProto Object
	if proto != nil {
		wrapped, err := h.services.Convert(h.name, r.origin, proto)
		if err != nil {
			return false, err
		}
		realProto, _ = wrapped.(Object)
	}
	ok := r.real.SetPrototype(realProto)
	if ok {
		shadow.SetPrototype(proto)
	}
	return ok, nil
}

// ---- isExtensible / preventExtensions ----------------------------------

// IsExtensible reports the real object's extensibility, locking the
// shadow to match if it has already become non-extensible (spec.md
// §4.2).
func (h *GraphHandler) IsExtensible(shadow *ShadowTarget) (bool, error) {
	r, err := h.resolve(shadow, TrapIsExtensible)
	if err != nil {
		return false, err
	}
	extensible := r.real.IsExtensible()
	if !extensible && shadow.IsExtensible() {
		h.lockShadow(shadow, r)
	}
	return shadow.IsExtensible(), nil
}

// PreventExtensions prevents further extension of the real object and
// locks the shadow to match (spec.md §4.2, §4.2.2).
func (h *GraphHandler) PreventExtensions(shadow *ShadowTarget) (bool, error) {
	r, err := h.resolve(shadow, TrapPreventExtensions)
	if err != nil {
		return false, err
	}
	ok := r.real.PreventExtensions()
	if ok {
		h.lockShadow(shadow, r)
	}
	return ok, nil
}

// ---- apply / construct -------------------------------------------------

func (h *GraphHandler) resolveTruncation(r resolved, declaredArity int) int {
	thisLimit, _ := r.cyl.GetTruncateArgList(h.name)
	originLimit, _ := r.cyl.GetTruncateArgList(r.origin)
	tl := thisLimit.resolvedLimit(declaredArity)
	ol := originLimit.resolvedLimit(declaredArity)
	switch {
	case tl < 0:
		return ol
	case ol < 0:
		return tl
	case tl < ol:
		return tl
	default:
		return ol
	}
}

func declaredArityOf(real Object) int {
	if a, ok := real.(Arity); ok {
		return a.Length()
	}
	return 0
}

func truncate(args []Value, limit int) []Value {
	if limit < 0 || limit >= len(args) {
		return args
	}
	return args[:limit]
}

// Apply invokes the real callee with this and args truncated and wrapped
// into origin space, firing enter/return-or-throw function-listener
// events and wrapping the return value back into this graph (spec.md
// §4.2 "apply").
func (h *GraphHandler) Apply(shadow *ShadowTarget, this Value, args []Value) (Value, error) {
	r, err := h.resolve(shadow, TrapApply)
	if err != nil {
		return nil, err
	}
	callee, ok := r.real.(Callable)
	if !ok {
		return nil, errors.NewForGraph(errors.InvariantViolation, h.name, "real value is not callable")
	}
	limit := h.resolveTruncation(r, declaredArityOf(r.real))
	truncated := truncate(args, limit)

	wrappedThis, err := h.services.Convert(h.name, r.origin, this)
	if err != nil {
		return nil, err
	}
	wrappedArgs := make([]Value, len(truncated))
	for i, a := range truncated {
		wa, err := h.services.Convert(h.name, r.origin, a)
		if err != nil {
			return nil, err
		}
		wrappedArgs[i] = wa
	}

	h.services.FireFunctionListeners(ReasonEnter, TrapApply, h.name, r.origin, r.real, nil, nil)
	rv, callErr := callee.Call(wrappedThis, wrappedArgs)
	if callErr != nil {
		h.services.FireFunctionListeners(ReasonThrow, TrapApply, h.name, r.origin, r.real, nil, callErr)
		return nil, callErr
	}
	wrappedRV, err := h.services.Convert(r.origin, h.name, rv)
	h.services.FireFunctionListeners(ReasonReturn, TrapApply, h.name, r.origin, r.real, wrappedRV, nil)
	return wrappedRV, err
}

// Construct invokes the real callee as a constructor, truncating and
// wrapping args, and wrapping newTarget (spec.md §4.2 "construct").
func (h *GraphHandler) Construct(shadow *ShadowTarget, args []Value, newTarget Object) (Value, error) {
	r, err := h.resolve(shadow, TrapConstruct)
	if err != nil {
		return nil, err
	}
	callee, ok := r.real.(Constructable)
	if !ok {
		return nil, errors.NewForGraph(errors.InvariantViolation, h.name, "real value is not constructable")
	}
	limit := h.resolveTruncation(r, declaredArityOf(r.real))
	truncated := truncate(args, limit)

	wrappedArgs := make([]Value, len(truncated))
	for i, a := range truncated {
		wa, err := h.services.Convert(h.name, r.origin, a)
		if err != nil {
			return nil, err
		}
		wrappedArgs[i] = wa
	}
	var realNewTarget Object
	if newTarget != nil {
		wnt, err := h.services.Convert(h.name, r.origin, newTarget)
		if err != nil {
			return nil, err
		}
		realNewTarget, _ = wnt.(Object)
	}

	h.services.FireFunctionListeners(ReasonEnter, TrapConstruct, h.name, r.origin, r.real, nil, nil)
	rv, callErr := callee.Construct(wrappedArgs, realNewTarget)
	if callErr != nil {
		h.services.FireFunctionListeners(ReasonThrow, TrapConstruct, h.name, r.origin, r.real, nil, callErr)
		return nil, callErr
	}
	wrappedRV, err := h.services.Convert(r.origin, h.name, rv)
	h.services.FireFunctionListeners(ReasonReturn, TrapConstruct, h.name, r.origin, r.real, wrappedRV, nil)
	return wrappedRV, err
}
