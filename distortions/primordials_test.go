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

package distortions

import "testing"

// withCleanPrimordials resets the package-level primordials list after the
// test, so registrations in one test never leak into another.
func withCleanPrimordials(t *testing.T) {
	t.Helper()
	saved := primordials
	primordials = nil
	t.Cleanup(func() { primordials = saved })
}

func TestRegisterAndListPrimordials(t *testing.T) {
	withCleanPrimordials(t)

	RegisterPrimordial("Object.prototype")
	RegisterPrimordial("Array.prototype")

	got := Primordials()
	if len(got) != 2 || got[0] != "Object.prototype" || got[1] != "Array.prototype" {
		t.Fatalf("Primordials() = %v", got)
	}

	// The returned slice is a copy.
	got[0] = "mutated"
	if Primordials()[0] != "Object.prototype" {
		t.Fatalf("Primordials() leaked its internal slice to the caller")
	}
}

func TestIgnorePrimordialsAddsEveryEntryToCatalog(t *testing.T) {
	withCleanPrimordials(t)
	RegisterPrimordial("Function.prototype")

	cat := NewCatalog()
	if cat.PassThrough("Function.prototype") {
		t.Fatalf("PassThrough should be false before IgnorePrimordials")
	}
	cat.IgnorePrimordials()
	if !cat.PassThrough("Function.prototype") {
		t.Fatalf("IgnorePrimordials did not add the registered primordial to the pass-through set")
	}
}
