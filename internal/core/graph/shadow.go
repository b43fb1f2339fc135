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

// ShadowTarget is the minimal mirror object created for each (real
// value, graph != origin) pair (spec.md §3, component "ShadowTarget
// registry"). It is the apparent target of the proxy installed in that
// graph, so that host-language proxy invariants (non-configurable once
// set, non-extensible once set) constrain only the mirror, never the
// real value.
//
// ShadowTarget implements [Object] directly: it behaves like an
// ordinary, empty object of the given Kind until traps populate it via
// pinning (§4.2) or locking (§4.2.2).
type ShadowTarget struct {
	kind       Kind
	extensible bool
	proto      Object

	own      map[PropertyKey]Descriptor
	keyOrder []PropertyKey

	// callee is never set by NewShadowTarget and never read; apply and
	// construct traps resolve the real callee through the cylinder.
	// ShadowTarget implements neither Callable nor Constructable, whatever
	// its Kind.
	callee Object
}

// NewShadowTarget creates a fresh, extensible, empty shadow of the given
// structural kind, with a nil prototype (the getPrototypeOf trap mirrors
// the real prototype onto it lazily, see handler.go).
func NewShadowTarget(kind Kind) *ShadowTarget {
	return &ShadowTarget{
		kind:       kind,
		extensible: true,
		own:        make(map[PropertyKey]Descriptor),
	}
}

func (s *ShadowTarget) Kind() Kind { return s.kind }

func (s *ShadowTarget) GetOwnPropertyDescriptor(key PropertyKey) (Descriptor, bool) {
	d, ok := s.own[key]
	return d, ok
}

func (s *ShadowTarget) DefineOwnProperty(key PropertyKey, desc Descriptor) bool {
	existing, has := s.own[key]
	if !has {
		if !s.extensible {
			return false
		}
		s.own[key] = desc
		s.keyOrder = append(s.keyOrder, key)
		return true
	}
	if !existing.Configurable {
		// A non-configurable property accepts any redefinition that
		// stays non-configurable; only an attempt to flip Configurable
		// back to true is rejected. The engine only ever pins
		// descriptors it already computed from the real value.
		if desc.Configurable {
			return false
		}
	}
	s.own[key] = desc
	return true
}

func (s *ShadowTarget) DeleteOwnProperty(key PropertyKey) bool {
	existing, has := s.own[key]
	if !has {
		return true
	}
	if !existing.Configurable {
		return false
	}
	delete(s.own, key)
	for i, k := range s.keyOrder {
		if k == key {
			s.keyOrder = append(s.keyOrder[:i], s.keyOrder[i+1:]...)
			break
		}
	}
	return true
}

func (s *ShadowTarget) OwnKeys() []PropertyKey {
	out := make([]PropertyKey, len(s.keyOrder))
	copy(out, s.keyOrder)
	return out
}

func (s *ShadowTarget) GetPrototype() Object { return s.proto }

func (s *ShadowTarget) SetPrototype(proto Object) bool {
	if !s.extensible && s.proto != proto {
		return false
	}
	s.proto = proto
	return true
}

func (s *ShadowTarget) IsExtensible() bool { return s.extensible }

func (s *ShadowTarget) PreventExtensions() bool {
	s.extensible = false
	return true
}
