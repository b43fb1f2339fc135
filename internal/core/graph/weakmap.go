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
	"reflect"
	"runtime"
	"sync"
	"weak"
)

// TODO: this was inspired by (but rewritten from) a suggestion in
// https://github.com/golang/go/issues/43615, the same discussion
// internal/core/adt's own weak-map memoizer cites. That memoizer can
// afford to key by a cheap comparable (a string) and weakly hold only
// the value; here the keys themselves are heap references (real values,
// proxies, shadow targets) of heterogeneous concrete types, so the roles
// are swapped: identity() turns a key into a GC-invisible uintptr, and a
// type-erased runtime.SetFinalizer on the original key prunes that
// uintptr from the table once the key becomes unreachable. The cylinder
// itself is additionally held through a weak.Pointer so that a cylinder
// with no remaining live graph can also be collected even while stale
// uintptr entries linger.

// GraphValueMap is the membrane's weak mapping from any known reference
// (real value, proxy, or shadow) to its [ProxyCylinder] (spec.md §3
// "Membrane value map"). It implements [ValueMap].
type GraphValueMap struct {
	mu      sync.Mutex
	entries map[uintptr]*mapSlot
}

type mapSlot struct {
	cyl  weak.Pointer[ProxyCylinder]
	dead bool
}

// NewGraphValueMap creates an empty value map.
func NewGraphValueMap() *GraphValueMap {
	return &GraphValueMap{entries: make(map[uintptr]*mapSlot)}
}

// identity returns a GC-invisible handle for ref's pointer identity, and
// whether ref was a supported reference kind at all.
func identity(ref any) (uintptr, bool) {
	if ref == nil {
		return 0, false
	}
	v := reflect.ValueOf(ref)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		if v.IsNil() {
			return 0, false
		}
		return v.Pointer(), true
	default:
		return 0, false
	}
}

// Register records that ref maps to cylinder c, and arranges for that
// mapping to be pruned once ref becomes unreachable.
func (m *GraphValueMap) Register(ref any, c *ProxyCylinder) {
	id, ok := identity(ref)
	if !ok {
		return
	}
	m.mu.Lock()
	m.entries[id] = &mapSlot{cyl: weak.Make(c)}
	m.mu.Unlock()

	// A ref may be registered more than once (a proxy that is also its own
	// shadow, or a value re-wrapped after revocation); the runtime refuses
	// a second finalizer, so clear any earlier one first.
	runtime.SetFinalizer(ref, nil)
	runtime.SetFinalizer(ref, func(any) {
		m.mu.Lock()
		delete(m.entries, id)
		m.mu.Unlock()
	})
}

// MarkDead transitions ref's entry to a tombstone. A subsequent Lookup
// reports dead=true rather than simply "not found", matching spec.md §3
// ("Setting a key to Dead is permitted").
func (m *GraphValueMap) MarkDead(ref any) {
	id, ok := identity(ref)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, exists := m.entries[id]
	if !exists {
		slot = &mapSlot{}
		m.entries[id] = slot
	}
	slot.dead = true
	slot.cyl = weak.Pointer[ProxyCylinder]{}
}

// Lookup resolves ref to its cylinder. found is false if ref was never
// registered, or if its cylinder has since been garbage collected. dead
// is true if ref was explicitly tombstoned via MarkDead.
func (m *GraphValueMap) Lookup(ref any) (c *ProxyCylinder, dead bool, found bool) {
	id, ok := identity(ref)
	if !ok {
		return nil, false, false
	}
	m.mu.Lock()
	slot, exists := m.entries[id]
	m.mu.Unlock()
	if !exists {
		return nil, false, false
	}
	if slot.dead {
		return nil, true, true
	}
	c = slot.cyl.Value()
	if c == nil {
		return nil, false, false
	}
	return c, false, true
}

// Has reports whether ref currently resolves to a live cylinder.
func (m *GraphValueMap) Has(ref any) bool {
	_, dead, found := m.Lookup(ref)
	return found && !dead
}
