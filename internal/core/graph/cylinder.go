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

// entryKind distinguishes the three states a cylinder's per-graph entry
// can be in (spec.md §3 ProxyCylinder.perGraph).
type entryKind uint8

const (
	entryOrigin entryKind = iota
	entryForeign
	entryDead
)

// ArgTruncation is the resolved form of a truncateArgList setting
// (spec.md §4.2 apply/construct, §9 "Argument truncation"): either
// unlimited, the function's declared arity, or a fixed count.
type ArgTruncation struct {
	Unlimited bool
	UseArity  bool
	N         int
}

// Unlimited is the default truncation: no argument is ever dropped.
var Unlimited = ArgTruncation{Unlimited: true}

// UseDeclaredArity truncates to the callee's own declared parameter
// count (the `true` setting in spec.md §4.2/§9).
var UseDeclaredArity = ArgTruncation{UseArity: true}

// FixedArgCount truncates to exactly n arguments.
func FixedArgCount(n int) ArgTruncation {
	return ArgTruncation{N: n}
}

// resolvedLimit returns the concrete argument count this truncation
// implies for a callee with the given declared arity.
func (t ArgTruncation) resolvedLimit(declaredArity int) int {
	switch {
	case t.Unlimited:
		return -1 // sentinel: no limit
	case t.UseArity:
		return declaredArity
	default:
		return t.N
	}
}

// graphEntry is one row of a ProxyCylinder's per-graph table. For the
// origin graph only Value is meaningful; for foreign graphs everything
// else is.
type graphEntry struct {
	kind entryKind

	// Origin-graph fields.
	value Value

	// Foreign-graph fields.
	proxy  Object
	revoke func()
	shadow *ShadowTarget

	localDescriptors map[PropertyKey]Descriptor
	deletedLocals    map[PropertyKey]struct{}
	ownKeysFilter    func(PropertyKey) bool
	cachedOwnKeys    []PropertyKey
	cachedOriginal   map[PropertyKey]struct{}
	truncateArgList  *ArgTruncation
	localFlags       map[string]bool
}

// ValueMap is the subset of the membrane's graph-indexed weak value map
// (spec.md §3 "Membrane value map") that a cylinder needs in order to
// keep registrations and tombstones in sync with its own state. The
// membrane façade implements this; graph never imports it directly,
// avoiding an import cycle and keeping the cylinder testable in
// isolation.
type ValueMap interface {
	// Register records that ref (a real value, proxy, or shadow) maps
	// to cylinder c. Overwriting a live key with a different cylinder is
	// the caller's responsibility to have prevented.
	Register(ref any, c *ProxyCylinder)
	// MarkDead transitions ref's entry, if any, to a tombstone.
	MarkDead(ref any)
}

// ProxyCylinder is the spine for one real value: for every graph it
// inhabits, it records either the real value itself (origin graph) or a
// proxy/shadow/revoke triple (foreign graph), plus that graph's local
// rule overrides (spec.md §3, §4.1).
type ProxyCylinder struct {
	originGraph string
	originSet   bool
	entries     map[string]*graphEntry
}

// NewProxyCylinder creates a cylinder whose origin graph is originGraph.
// The origin value itself is installed later via SetOriginValue.
func NewProxyCylinder(originGraph string) *ProxyCylinder {
	return &ProxyCylinder{
		originGraph: originGraph,
		entries:     make(map[string]*graphEntry),
	}
}

// OriginGraph returns the name of the graph that owns this cylinder's
// real value.
func (c *ProxyCylinder) OriginGraph() string { return c.originGraph }

func (c *ProxyCylinder) resolve(g string) (*graphEntry, error) {
	e, ok := c.entries[g]
	if !ok {
		return nil, errors.NewForGraph(errors.UnknownGraph, g, "cylinder has no entry for graph")
	}
	if e.kind == entryDead {
		return nil, errors.NewForGraph(errors.DeadGraph, g, "graph is dead for this cylinder")
	}
	return e, nil
}

// GetOriginal returns the real value bound to this cylinder.
func (c *ProxyCylinder) GetOriginal() (Value, error) {
	if !c.originSet {
		return nil, errors.Newf(errors.OriginalNotSet, "cylinder's original value was never set")
	}
	e, err := c.resolve(c.originGraph)
	if err != nil {
		return nil, err
	}
	return e.value, nil
}

// GetProxy returns the real value if g is the origin graph, or the proxy
// installed for g otherwise.
func (c *ProxyCylinder) GetProxy(g string) (Value, error) {
	e, err := c.resolve(g)
	if err != nil {
		return nil, err
	}
	if g == c.originGraph {
		return e.value, nil
	}
	return e.proxy, nil
}

// GetShadowTarget returns the shadow installed for foreign graph g.
func (c *ProxyCylinder) GetShadowTarget(g string) (*ShadowTarget, error) {
	if g == c.originGraph {
		return nil, errors.NewForGraph(errors.ValidationFailure, g, "origin graph has no shadow target")
	}
	e, err := c.resolve(g)
	if err != nil {
		return nil, err
	}
	return e.shadow, nil
}

// IsShadowTarget reports whether x is the shadow stored in any live
// foreign entry of this cylinder.
func (c *ProxyCylinder) IsShadowTarget(x any) bool {
	for name, e := range c.entries {
		if name == c.originGraph || e.kind != entryForeign {
			continue
		}
		if Object(e.shadow) == x {
			return true
		}
	}
	return false
}

// SetOriginValue installs the real value for this cylinder's origin
// graph and registers it in vm. It is an error to call this twice
// without override.
func (c *ProxyCylinder) SetOriginValue(vm ValueMap, value Value, override bool) error {
	e, exists := c.entries[c.originGraph]
	if exists && e.kind != entryDead && c.originSet && !override {
		return errors.NewForGraph(errors.DuplicateGraph, c.originGraph, "origin value already set")
	}
	e = &graphEntry{kind: entryOrigin, value: value}
	c.entries[c.originGraph] = e
	c.originSet = true
	if vm != nil {
		vm.Register(value, c)
	}
	return nil
}

// ForeignEntry bundles the three pieces of state a foreign graph must
// supply together (spec.md §3 ProxyCylinder.perGraph Foreign variant).
type ForeignEntry struct {
	Proxy  Object
	Revoke func()
	Shadow *ShadowTarget
}

// SetForeignEntry installs or, if override is true, overrides the
// foreign-graph entry for g, registering proxy and shadow in vm.
func (c *ProxyCylinder) SetForeignEntry(vm ValueMap, g string, fe ForeignEntry, override bool) error {
	if g == c.originGraph {
		return errors.NewForGraph(errors.ValidationFailure, g, "origin graph cannot hold a foreign entry")
	}
	if fe.Proxy == nil || fe.Shadow == nil {
		return errors.NewForGraph(errors.ValidationFailure, g, "foreign entry requires proxy and shadow")
	}
	existing, exists := c.entries[g]
	if exists && existing.kind == entryForeign && !override {
		return errors.NewForGraph(errors.DuplicateGraph, g, "graph already has a foreign entry")
	}
	e := &graphEntry{
		kind:   entryForeign,
		proxy:  fe.Proxy,
		revoke: fe.Revoke,
		shadow: fe.Shadow,
	}
	c.entries[g] = e
	if vm != nil {
		vm.Register(fe.Proxy, c)
		vm.Register(Object(fe.Shadow), c)
	}
	return nil
}

// RemoveGraph marks g's entry Dead. Removing the origin graph requires
// every other graph to be Dead already (spec.md §3 invariant).
func (c *ProxyCylinder) RemoveGraph(g string) error {
	e, err := c.resolve(g)
	if err != nil {
		return err
	}
	if g == c.originGraph {
		for name, other := range c.entries {
			if name == g || other.kind == entryDead {
				continue
			}
			return errors.NewForGraph(errors.InvariantViolation, g,
				"cannot remove origin graph while graph %q is still live", name)
		}
	}
	e.kind = entryDead
	e.value, e.proxy, e.shadow, e.revoke = nil, nil, nil, nil
	return nil
}

// SelfDestruct tears down every graph's entry (foreign first, then
// origin), removing the corresponding keys from vm, without invoking any
// revoke callback. Membrane.ConvertArgumentToProxy uses it when called
// with override set.
func (c *ProxyCylinder) SelfDestruct(vm ValueMap) {
	c.teardown(vm, false)
}

// RevokeAll tears down every graph's entry like SelfDestruct, but also
// invokes each foreign entry's revoke callback first. After RevokeAll the
// cylinder is terminal: every graph is Dead.
func (c *ProxyCylinder) RevokeAll(vm ValueMap) {
	c.teardown(vm, true)
}

func (c *ProxyCylinder) teardown(vm ValueMap, invokeRevoke bool) {
	for name, e := range c.entries {
		if name == c.originGraph || e.kind != entryForeign {
			continue
		}
		if invokeRevoke && e.revoke != nil {
			e.revoke()
		}
		if vm != nil {
			if e.proxy != nil {
				vm.MarkDead(e.proxy)
			}
			if e.shadow != nil {
				vm.MarkDead(Object(e.shadow))
			}
		}
		e.kind = entryDead
		e.proxy, e.shadow, e.revoke = nil, nil, nil
	}
	if oe, ok := c.entries[c.originGraph]; ok && oe.kind != entryDead {
		if vm != nil && oe.value != nil {
			vm.MarkDead(oe.value)
		}
		oe.kind = entryDead
		oe.value = nil
	}
}

// --- Local property machinery -------------------------------------------

// foreign resolves g's entry for local-rule storage. Despite the name
// (kept for continuity with spec.md's "foreign entry" framing, since
// local rules exist to modify how a *foreign* graph sees a value), local
// rules may be installed against the origin graph's own entry as well:
// ModifyRules operations address a cylinder by (graph, proxy), and
// getProxy(originGraph) is defined as the real value itself, so a caller
// can legitimately call filterOwnKeys(originGraph, realValue, ...). This
// is what spec.md §4.2.1 means by an "origin-side filter" distinct from
// "this"/local-side filter, and what §8 property 3 means by "in either
// origin or local side": both are ordinary local-rule entries on the
// same cylinder, one of them simply keyed by the origin graph's name.
func (c *ProxyCylinder) foreign(g string) (*graphEntry, error) {
	return c.resolve(g)
}

// GetLocalDescriptor returns a local (per-proxy) override descriptor for
// key on graph g, if one is installed.
func (c *ProxyCylinder) GetLocalDescriptor(g string, key PropertyKey) (Descriptor, bool, error) {
	e, err := c.foreign(g)
	if err != nil {
		return Descriptor{}, false, err
	}
	d, ok := e.localDescriptors[key]
	return d, ok, nil
}

// SetLocalDescriptor installs a local override for key on graph g. This
// unmasks any prior local deletion of the same key, since local
// descriptors and deleted-locals are disjoint sets (spec.md §3
// invariant).
func (c *ProxyCylinder) SetLocalDescriptor(g string, key PropertyKey, desc Descriptor) error {
	e, err := c.foreign(g)
	if err != nil {
		return err
	}
	if e.localDescriptors == nil {
		e.localDescriptors = make(map[PropertyKey]Descriptor)
	}
	e.localDescriptors[key] = desc
	delete(e.deletedLocals, key)
	e.cachedOwnKeys = nil
	e.cachedOriginal = nil
	return nil
}

// DeleteLocalDescriptor removes any local override for key on graph g.
// If recordLocalDelete is true, key is additionally recorded in the
// deleted-locals set so that getOwnPropertyDescriptor and friends treat
// it as absent even if it reappears on the real value.
func (c *ProxyCylinder) DeleteLocalDescriptor(g string, key PropertyKey, recordLocalDelete bool) error {
	e, err := c.foreign(g)
	if err != nil {
		return err
	}
	delete(e.localDescriptors, key)
	if recordLocalDelete {
		if e.deletedLocals == nil {
			e.deletedLocals = make(map[PropertyKey]struct{})
		}
		e.deletedLocals[key] = struct{}{}
	}
	e.cachedOwnKeys = nil
	e.cachedOriginal = nil
	return nil
}

// AppendDeletedNames adds every key this graph has locally deleted into
// set.
func (c *ProxyCylinder) AppendDeletedNames(g string, set map[PropertyKey]struct{}) error {
	e, err := c.foreign(g)
	if err != nil {
		return err
	}
	for k := range e.deletedLocals {
		set[k] = struct{}{}
	}
	return nil
}

// WasDeletedLocally reports whether key was locally deleted on graph g.
func (c *ProxyCylinder) WasDeletedLocally(g string, key PropertyKey) (bool, error) {
	e, err := c.foreign(g)
	if err != nil {
		return false, err
	}
	_, ok := e.deletedLocals[key]
	return ok, nil
}

// UnmaskDeletion removes key from the locally-deleted set for graph g,
// restoring visibility of the real key.
func (c *ProxyCylinder) UnmaskDeletion(g string, key PropertyKey) error {
	e, err := c.foreign(g)
	if err != nil {
		return err
	}
	delete(e.deletedLocals, key)
	e.cachedOwnKeys = nil
	e.cachedOriginal = nil
	return nil
}

// LocalOwnKeys returns the keys of graph g's local descriptor overrides,
// in no particular order (callers that need stable order should sort or
// fold them into setOwnKeys, see ownkeys.go).
func (c *ProxyCylinder) LocalOwnKeys(g string) ([]PropertyKey, error) {
	e, err := c.foreign(g)
	if err != nil {
		return nil, err
	}
	keys := make([]PropertyKey, 0, len(e.localDescriptors))
	for k := range e.localDescriptors {
		keys = append(keys, k)
	}
	return keys, nil
}

// Well-known local flag names (spec.md §4.1).
const (
	FlagStoreUnknownAsLocal = "storeUnknownAsLocal"
	FlagRequireLocalDelete  = "requireLocalDelete"
)

// DisableTrapFlag builds the local-flag name that disables trapName for
// a proxy (spec.md §4.1 "disableTrap(<trapName>)").
func DisableTrapFlag(trapName string) string {
	return "disableTrap(" + trapName + ")"
}

// GetLocalFlag returns the boolean local flag named name on graph g.
func (c *ProxyCylinder) GetLocalFlag(g string, name string) (bool, error) {
	e, err := c.foreign(g)
	if err != nil {
		return false, err
	}
	return e.localFlags[name], nil
}

// SetLocalFlag sets the boolean local flag named name on graph g.
func (c *ProxyCylinder) SetLocalFlag(g string, name string, value bool) error {
	e, err := c.foreign(g)
	if err != nil {
		return err
	}
	if e.localFlags == nil {
		e.localFlags = make(map[string]bool)
	}
	e.localFlags[name] = value
	return nil
}

// GetOwnKeysFilter returns the own-keys predicate installed for graph g,
// or nil if none is installed.
func (c *ProxyCylinder) GetOwnKeysFilter(g string) (func(PropertyKey) bool, error) {
	e, err := c.foreign(g)
	if err != nil {
		return nil, err
	}
	return e.ownKeysFilter, nil
}

// SetOwnKeysFilter installs (or, with f == nil, disables) the own-keys
// predicate for graph g.
func (c *ProxyCylinder) SetOwnKeysFilter(g string, f func(PropertyKey) bool) error {
	e, err := c.foreign(g)
	if err != nil {
		return err
	}
	e.ownKeysFilter = f
	e.cachedOwnKeys = nil
	e.cachedOriginal = nil
	return nil
}

// CachedOwnKeys returns the cached own-keys list for graph g and the
// original real-key snapshot it was computed from, if the cache is
// populated.
func (c *ProxyCylinder) CachedOwnKeys(g string) (keys []PropertyKey, original map[PropertyKey]struct{}, ok bool, err error) {
	e, err := c.foreign(g)
	if err != nil {
		return nil, nil, false, err
	}
	if e.cachedOwnKeys == nil {
		return nil, nil, false, nil
	}
	return e.cachedOwnKeys, e.cachedOriginal, true, nil
}

// SetCachedOwnKeys installs the own-keys cache for graph g, together
// with the real-key snapshot (original) it was computed from. A cache is
// valid only so long as that snapshot still matches the real key set
// (spec.md §3 invariant); ownkeys.go is responsible for that comparison.
func (c *ProxyCylinder) SetCachedOwnKeys(g string, keys []PropertyKey, original map[PropertyKey]struct{}) error {
	e, err := c.foreign(g)
	if err != nil {
		return err
	}
	e.cachedOwnKeys = keys
	e.cachedOriginal = original
	return nil
}

// InvalidateOwnKeysCache clears graph g's own-keys cache, e.g. because a
// mutation was observed through ownKeys reconciliation.
func (c *ProxyCylinder) InvalidateOwnKeysCache(g string) error {
	e, err := c.foreign(g)
	if err != nil {
		return err
	}
	e.cachedOwnKeys = nil
	e.cachedOriginal = nil
	return nil
}

// GetTruncateArgList returns the argument-truncation setting for
// function graph g, defaulting to Unlimited if none was set.
func (c *ProxyCylinder) GetTruncateArgList(g string) (ArgTruncation, error) {
	e, err := c.foreign(g)
	if err != nil {
		return ArgTruncation{}, err
	}
	if e.truncateArgList == nil {
		return Unlimited, nil
	}
	return *e.truncateArgList, nil
}

// SetTruncateArgList installs the argument-truncation setting for
// function graph g.
func (c *ProxyCylinder) SetTruncateArgList(g string, limit ArgTruncation) error {
	e, err := c.foreign(g)
	if err != nil {
		return err
	}
	e.truncateArgList = &limit
	return nil
}

// AnyShadowNonExtensible reports whether any foreign graph's shadow in
// this cylinder has already become non-extensible. ModifyRules.
// filterOwnKeys rejects installation once this is true (spec.md §4.4
// "rejects when any shadow in the cylinder is already non-extensible").
func (c *ProxyCylinder) AnyShadowNonExtensible() bool {
	for name, e := range c.entries {
		if name == c.originGraph || e.kind != entryForeign || e.shadow == nil {
			continue
		}
		if !e.shadow.IsExtensible() {
			return true
		}
	}
	return false
}

// GraphOfProxy returns the name of the foreign graph whose entry holds
// proxy, if any.
func (c *ProxyCylinder) GraphOfProxy(proxy Object) (string, bool) {
	for name, e := range c.entries {
		if name == c.originGraph || e.kind != entryForeign {
			continue
		}
		if e.proxy == proxy {
			return name, true
		}
	}
	return "", false
}
