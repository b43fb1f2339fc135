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

// This file implements setOwnKeys (spec.md §4.2.1) and shadow locking
// (spec.md §4.2.2): the two algorithms that keep a ShadowTarget's own
// keys and extensibility honest once a real value becomes sealed or
// frozen, without ever mutating the real value's observable shape.

// OwnKeys implements the ownKeys trap (spec.md §4.2 "ownKeys"): if the
// shadow is already non-extensible its own keys are authoritative; else
// the cache is consulted and, failing that, recomputed.
func (h *GraphHandler) OwnKeys(shadow *ShadowTarget) ([]PropertyKey, error) {
	r, err := h.resolve(shadow, TrapOwnKeys)
	if err != nil {
		return nil, err
	}
	if !shadow.IsExtensible() {
		return shadow.OwnKeys(), nil
	}
	if cached, original, ok, _ := r.cyl.CachedOwnKeys(h.name); ok {
		if sameKeySet(original, r.real.OwnKeys()) {
			return cached, nil
		}
	}
	keys, err := h.computeOwnKeys(shadow, r)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// sameKeySet reports whether real's current keys are set-equal to the
// snapshot a cache was computed from (spec.md §3 "cachedOwnKeys is valid
// only while the underlying real key set has not changed").
func sameKeySet(snapshot map[PropertyKey]struct{}, real []PropertyKey) bool {
	if len(snapshot) != len(real) {
		return false
	}
	for _, k := range real {
		if _, ok := snapshot[k]; !ok {
			return false
		}
	}
	return true
}

// computeOwnKeys runs the setOwnKeys algorithm, caches the result, and
// reconciles it with the shadow's own existing invariants.
func (h *GraphHandler) computeOwnKeys(shadow *ShadowTarget, r resolved) ([]PropertyKey, error) {
	realKeys := r.real.OwnKeys()

	original := make(map[PropertyKey]struct{}, len(realKeys))
	for _, k := range realKeys {
		original[k] = struct{}{}
	}

	deleted := make(map[PropertyKey]struct{})
	_ = r.cyl.AppendDeletedNames(r.origin, deleted)
	_ = r.cyl.AppendDeletedNames(h.name, deleted)

	originFilter, _ := r.cyl.GetOwnKeysFilter(r.origin)
	localFilter, _ := r.cyl.GetOwnKeysFilter(h.name)

	seen := make(map[PropertyKey]bool, len(realKeys))
	result := make([]PropertyKey, 0, len(realKeys))

	accept := func(k PropertyKey) bool {
		if _, isDeleted := deleted[k]; isDeleted {
			return false
		}
		if originFilter != nil && !originFilter(k) {
			return false
		}
		if localFilter != nil && !localFilter(k) {
			return false
		}
		return true
	}

	// Step 1-4: real own-keys, filtered, in their original order.
	for _, k := range realKeys {
		if !accept(k) {
			continue
		}
		if !seen[k] {
			seen[k] = true
			result = append(result, k)
		}
	}

	// Step 4 (continued): append local-only keys that are not already
	// present on the real value, origin-graph local keys first, then
	// this-graph's, preserving first-seen order within each. No
	// sort-based dedupe library is used here (see DESIGN.md): spec.md
	// §4.2.1 requires first-seen insertion order, which a sort+unique
	// pass would not preserve.
	appendLocalOnly := func(g string) {
		localKeys, _ := r.cyl.LocalOwnKeys(g)
		for _, k := range localKeys {
			if _, onReal := original[k]; onReal {
				continue
			}
			if seen[k] {
				continue
			}
			seen[k] = true
			result = append(result, k)
		}
	}
	appendLocalOnly(r.origin)
	appendLocalOnly(h.name)

	// Step 5: sentinel key, if enabled. showGraphName is carried on the
	// local-flags side-table under a private flag name so it travels
	// with the cylinder rather than needing a separate field.
	if show, _ := r.cyl.GetLocalFlag(h.name, flagShowGraphName); show && !seen[MembraneGraphName] {
		result = append(result, MembraneGraphName)
	}

	// Step 6: cache.
	_ = r.cyl.SetCachedOwnKeys(h.name, result, original)

	// Step 7: reconcile with the shadow's existing invariants.
	for _, k := range shadow.OwnKeys() {
		d, _ := shadow.GetOwnPropertyDescriptor(k)
		if !d.Configurable && !seen[k] {
			result = append(result, k)
			seen[k] = true
		}
		if !shadow.IsExtensible() && !seen[k] {
			result = append(result, k)
			seen[k] = true
		}
	}

	return result, nil
}

// flagShowGraphName is the local-flag name used to carry
// Options.ShowGraphName down onto a cylinder's per-graph entry (set by
// the façade at buildMapping time).
const flagShowGraphName = "showGraphName"

// lockShadow implements the shadow-locking algorithm (spec.md §4.2.2):
// install a lazy accessor for every computed own key, fix the prototype,
// and mark the shadow non-extensible. Re-entrant calls for the same
// shadow (a lazy getter firing while this very shadow is mid-lock, e.g.
// because sealing walks a cyclic structure) are deferred rather than
// processed immediately.
func (h *GraphHandler) lockShadow(shadow *ShadowTarget, r resolved) {
	if h.locking == nil {
		h.locking = make(map[*ShadowTarget]bool)
	}
	if h.locking[shadow] {
		h.deferredLocks = append(h.deferredLocks, lockJob{shadow: shadow, r: r})
		return
	}
	h.locking[shadow] = true
	h.doLockShadow(shadow, r)
	delete(h.locking, shadow)

	for len(h.deferredLocks) > 0 {
		job := h.deferredLocks[0]
		h.deferredLocks = h.deferredLocks[1:]
		h.locking[job.shadow] = true
		h.doLockShadow(job.shadow, job.r)
		delete(h.locking, job.shadow)
	}
}

func (h *GraphHandler) doLockShadow(shadow *ShadowTarget, r resolved) {
	keys, err := h.computeOwnKeys(shadow, r)
	if err != nil {
		return
	}
	for _, key := range keys {
		if _, has := shadow.GetOwnPropertyDescriptor(key); has {
			continue
		}
		k := key
		getter := &nativeFunc{
			name: "lazy:" + keyString(k),
			fn: func(Value, []Value) (Value, error) {
				return h.resolveLazy(shadow, r, k)
			},
		}
		shadow.DefineOwnProperty(k, AccessorDescriptor(getter, nil, true, true))
	}

	var wrappedProto Object
	if proto := r.real.GetPrototype(); proto != nil {
		if wp, err := h.services.Convert(r.origin, h.name, proto); err == nil {
			wrappedProto, _ = wp.(Object)
		}
	}
	shadow.SetPrototype(wrappedProto)
	shadow.PreventExtensions()
}

type lockJob struct {
	shadow *ShadowTarget
	r      resolved
}

// resolveLazy is the lazy getter's one-shot body (spec.md §9 "Prepared
// lazy getters"): resolve the real descriptor, replace the lazy
// placeholder on the shadow with it, and return the value this access
// observes.
func (h *GraphHandler) resolveLazy(shadow *ShadowTarget, r resolved, key PropertyKey) (Value, error) {
	desc, ok := r.real.GetOwnPropertyDescriptor(key)
	if !ok {
		return nil, nil
	}
	wrapped := h.wrapDescriptor(r.origin, desc)
	// The placeholder we installed is configurable, so this redefinition
	// is always accepted even when wrapped.Configurable is false — the
	// "temporarily flip configurable, then reseal" trick in spec.md
	// §4.2.2 is exactly this: the shadow only ever needs the *existing*
	// entry to be configurable to accept one more redefinition.
	shadow.DefineOwnProperty(key, wrapped)
	return h.readDescriptor(r.origin, wrapped, shadow)
}

func keyString(k PropertyKey) string {
	switch v := k.(type) {
	case string:
		return v
	case *Symbol:
		return v.String()
	default:
		return "?"
	}
}

// nativeFunc is a minimal internal [Callable] used for lazy getters. It
// is never exposed across a graph boundary and never itself wrapped.
type nativeFunc struct {
	name string
	fn   func(this Value, args []Value) (Value, error)
}

func (n *nativeFunc) Kind() Kind { return KindFunction }
func (n *nativeFunc) GetOwnPropertyDescriptor(PropertyKey) (Descriptor, bool) {
	return Descriptor{}, false
}
func (n *nativeFunc) DefineOwnProperty(PropertyKey, Descriptor) bool { return false }
func (n *nativeFunc) DeleteOwnProperty(PropertyKey) bool             { return false }
func (n *nativeFunc) OwnKeys() []PropertyKey                         { return nil }
func (n *nativeFunc) GetPrototype() Object                           { return nil }
func (n *nativeFunc) SetPrototype(Object) bool                       { return false }
func (n *nativeFunc) IsExtensible() bool                             { return false }
func (n *nativeFunc) PreventExtensions() bool                        { return true }
func (n *nativeFunc) Call(this Value, args []Value) (Value, error)   { return n.fn(this, args) }
func (n *nativeFunc) Length() int                                    { return 0 }
