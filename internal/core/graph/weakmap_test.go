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

import "testing"

func TestGraphValueMapRegisterAndLookup(t *testing.T) {
	vm := NewGraphValueMap()
	cyl := NewProxyCylinder("dry")
	real := NewShadowTarget(KindObject)

	if vm.Has(real) {
		t.Fatalf("Has() reported true before Register")
	}

	vm.Register(Object(real), cyl)
	got, dead, found := vm.Lookup(Object(real))
	if !found || dead || got != cyl {
		t.Fatalf("Lookup() = %v, dead=%v, found=%v", got, dead, found)
	}
	if !vm.Has(real) {
		t.Fatalf("Has() reported false after Register")
	}
}

func TestGraphValueMapMarkDead(t *testing.T) {
	vm := NewGraphValueMap()
	real := NewShadowTarget(KindObject)

	vm.MarkDead(Object(real))
	_, dead, found := vm.Lookup(Object(real))
	if !found || !dead {
		t.Fatalf("Lookup() after MarkDead = dead=%v found=%v, want dead=true found=true", dead, found)
	}
	if vm.Has(real) {
		t.Fatalf("Has() should report false for a tombstoned entry")
	}
}

func TestGraphValueMapUnsupportedReferenceIsIgnored(t *testing.T) {
	vm := NewGraphValueMap()
	cyl := NewProxyCylinder("dry")

	// A plain int has no stable pointer identity; Register must be a
	// silent no-op rather than panicking.
	vm.Register(7, cyl)
	if _, _, found := vm.Lookup(7); found {
		t.Fatalf("Lookup() on an unsupported reference kind reported found=true")
	}
}

func TestGraphValueMapLookupUnknownReference(t *testing.T) {
	vm := NewGraphValueMap()
	real := NewShadowTarget(KindObject)
	if _, dead, found := vm.Lookup(Object(real)); dead || found {
		t.Fatalf("Lookup() on a never-registered reference = dead=%v found=%v", dead, found)
	}
}
