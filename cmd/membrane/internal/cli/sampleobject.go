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

package cli

import "github.com/ajvincent/es7-membrane/internal/core/graph"

// plainObject is a minimal, in-memory [graph.Object] used to demonstrate
// wrapping without requiring a host language binding. It is not part of
// the engine proper; real embeddings supply their own Object
// implementation backed by their host's actual objects.
type plainObject struct {
	kind       graph.Kind
	extensible bool
	proto      graph.Object
	own        map[graph.PropertyKey]graph.Descriptor
	order      []graph.PropertyKey
}

func newPlainObject(kind graph.Kind) *plainObject {
	return &plainObject{kind: kind, extensible: true, own: make(map[graph.PropertyKey]graph.Descriptor)}
}

func (o *plainObject) Kind() graph.Kind { return o.kind }

func (o *plainObject) GetOwnPropertyDescriptor(key graph.PropertyKey) (graph.Descriptor, bool) {
	d, ok := o.own[key]
	return d, ok
}

func (o *plainObject) DefineOwnProperty(key graph.PropertyKey, desc graph.Descriptor) bool {
	if _, has := o.own[key]; !has {
		if !o.extensible {
			return false
		}
		o.order = append(o.order, key)
	}
	o.own[key] = desc
	return true
}

func (o *plainObject) DeleteOwnProperty(key graph.PropertyKey) bool {
	if _, has := o.own[key]; !has {
		return true
	}
	delete(o.own, key)
	for i, k := range o.order {
		if k == key {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	return true
}

func (o *plainObject) OwnKeys() []graph.PropertyKey {
	out := make([]graph.PropertyKey, len(o.order))
	copy(out, o.order)
	return out
}

func (o *plainObject) GetPrototype() graph.Object  { return o.proto }
func (o *plainObject) SetPrototype(p graph.Object) bool {
	o.proto = p
	return true
}
func (o *plainObject) IsExtensible() bool     { return o.extensible }
func (o *plainObject) PreventExtensions() bool { o.extensible = false; return true }
