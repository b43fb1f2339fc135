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
	"testing"

	"github.com/ajvincent/es7-membrane/errors"
)

func TestProxyCylinderOriginLifecycle(t *testing.T) {
	vm := NewGraphValueMap()
	cyl := NewProxyCylinder("dry")
	real := NewShadowTarget(KindObject)

	if err := cyl.SetOriginValue(vm, real, false); err != nil {
		t.Fatalf("SetOriginValue: %v", err)
	}
	if err := cyl.SetOriginValue(vm, real, false); err == nil {
		t.Fatalf("expected DuplicateGraph error on second SetOriginValue without override")
	} else if kind, _ := errors.KindOf(err); kind != errors.DuplicateGraph {
		t.Fatalf("expected DuplicateGraph, got %v", kind)
	}

	got, err := cyl.GetOriginal()
	if err != nil || got != Value(real) {
		t.Fatalf("GetOriginal() = %v, %v", got, err)
	}
}

func TestProxyCylinderForeignEntry(t *testing.T) {
	vm := NewGraphValueMap()
	cyl := NewProxyCylinder("dry")
	real := NewShadowTarget(KindObject)
	cyl.SetOriginValue(vm, real, false)

	shadow := NewShadowTarget(KindObject)
	revoked := false
	fe := ForeignEntry{Proxy: shadow, Revoke: func() { revoked = true }, Shadow: shadow}
	if err := cyl.SetForeignEntry(vm, "wet", fe, false); err != nil {
		t.Fatalf("SetForeignEntry: %v", err)
	}
	if err := cyl.SetForeignEntry(vm, "wet", fe, false); err == nil {
		t.Fatalf("expected DuplicateGraph without override")
	}
	if err := cyl.SetForeignEntry(vm, "dry", fe, true); err == nil {
		t.Fatalf("expected ValidationFailure installing a foreign entry on the origin graph")
	}

	p, err := cyl.GetProxy("wet")
	if err != nil || p != Value(shadow) {
		t.Fatalf("GetProxy(wet) = %v, %v", p, err)
	}

	cyl.RevokeAll(vm)
	if !revoked {
		t.Fatalf("RevokeAll did not invoke the foreign entry's revoke callback")
	}
	if _, err := cyl.GetProxy("wet"); err == nil {
		t.Fatalf("expected DeadGraph after RevokeAll")
	}
}

func TestProxyCylinderLocalDescriptorsAndDeletion(t *testing.T) {
	vm := NewGraphValueMap()
	cyl := NewProxyCylinder("dry")
	real := NewShadowTarget(KindObject)
	cyl.SetOriginValue(vm, real, false)
	shadow := NewShadowTarget(KindObject)
	cyl.SetForeignEntry(vm, "wet", ForeignEntry{Proxy: shadow, Shadow: shadow}, false)

	if err := cyl.SetLocalDescriptor("wet", "secret", DataDescriptor(1, true, true, true)); err != nil {
		t.Fatalf("SetLocalDescriptor: %v", err)
	}
	if _, ok, _ := cyl.GetLocalDescriptor("wet", "secret"); !ok {
		t.Fatalf("local descriptor not found after SetLocalDescriptor")
	}

	if err := cyl.DeleteLocalDescriptor("wet", "secret", true); err != nil {
		t.Fatalf("DeleteLocalDescriptor: %v", err)
	}
	if deleted, _ := cyl.WasDeletedLocally("wet", "secret"); !deleted {
		t.Fatalf("expected WasDeletedLocally to report true after recordLocalDelete")
	}

	// Re-installing a local descriptor unmasks the deletion.
	if err := cyl.SetLocalDescriptor("wet", "secret", DataDescriptor(2, true, true, true)); err != nil {
		t.Fatalf("SetLocalDescriptor (2): %v", err)
	}
	if deleted, _ := cyl.WasDeletedLocally("wet", "secret"); deleted {
		t.Fatalf("SetLocalDescriptor should unmask a prior local deletion")
	}
}

func TestProxyCylinderLocalRulesOnOriginGraph(t *testing.T) {
	// Regression test: local rules (filters, descriptors) may be
	// installed against the origin graph's own cylinder entry, since
	// getProxy(originGraph) is defined as the real value itself.
	vm := NewGraphValueMap()
	cyl := NewProxyCylinder("dry")
	real := NewShadowTarget(KindObject)
	cyl.SetOriginValue(vm, real, false)

	if err := cyl.SetOwnKeysFilter("dry", func(PropertyKey) bool { return true }); err != nil {
		t.Fatalf("installing an own-keys filter on the origin graph should be permitted: %v", err)
	}
	if f, err := cyl.GetOwnKeysFilter("dry"); err != nil || f == nil {
		t.Fatalf("GetOwnKeysFilter(dry): non-nil = %v, err = %v", f != nil, err)
	}
}

func TestProxyCylinderRemoveGraphRequiresOthersDead(t *testing.T) {
	vm := NewGraphValueMap()
	cyl := NewProxyCylinder("dry")
	real := NewShadowTarget(KindObject)
	cyl.SetOriginValue(vm, real, false)
	shadow := NewShadowTarget(KindObject)
	cyl.SetForeignEntry(vm, "wet", ForeignEntry{Proxy: shadow, Shadow: shadow}, false)

	if err := cyl.RemoveGraph("dry"); err == nil {
		t.Fatalf("expected InvariantViolation removing origin graph while wet is alive")
	}
	if err := cyl.RemoveGraph("wet"); err != nil {
		t.Fatalf("RemoveGraph(wet): %v", err)
	}
	if err := cyl.RemoveGraph("dry"); err != nil {
		t.Fatalf("RemoveGraph(dry) after wet is dead: %v", err)
	}
}
