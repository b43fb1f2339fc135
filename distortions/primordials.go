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

import "github.com/ajvincent/es7-membrane/internal/core/graph"

// Primordials is the frozen, process-wide list of host-language
// primordial constructors and prototypes the engine ships (spec.md §6
// "Primordials", §5 "Global mutable state: ... the frozen primordials
// list is the only process-wide datum and is read-only"). It starts
// empty: a host embedding registers its own primordials via
// RegisterPrimordial before calling IgnorePrimordials, since graph has
// no notion of what a host language's primordials even are.
var primordials []graph.Value

// RegisterPrimordial appends v to the frozen primordials list. Intended
// to be called during process init by a host embedding, never at
// request-serving time.
func RegisterPrimordial(v graph.Value) {
	primordials = append(primordials, v)
}

// Primordials returns the registered primordials list, read-only (the
// caller receives a copy so it cannot mutate the shared slice).
func Primordials() []graph.Value {
	out := make([]graph.Value, len(primordials))
	copy(out, primordials)
	return out
}

// IgnorePrimordials adds every registered primordial to cat's
// ignorable-values set, so they pass through any membrane unconverted
// (spec.md §6 "distortions.ignorePrimordials() adds them to the
// pass-through set").
func (c *Catalog) IgnorePrimordials() {
	for _, p := range primordials {
		c.IgnoreValue(p)
	}
}
