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

// Package graph implements the membrane's mediation engine: the
// per-value cylinder, the graph-indexed value map, the per-graph
// GraphHandler with its trap implementations, the handler pipeline, the
// ModifyRules API, and the wrap/unwrap machinery that moves values,
// descriptors, and arguments across graph boundaries.
//
// The package intentionally does not depend on any particular host
// language's object model: a [Value] is either a primitive (anything not
// implementing [Object]) or an [Object], and the membrane mediates only
// the latter.
package graph

// A Kind classifies the structural shape of an [Object]. A ShadowTarget
// must be created with the same Kind as the real object it mirrors so
// that host-language proxy invariants (which differ for ordinary objects,
// arrays, and callables) are enforced correctly.
type Kind uint8

const (
	// KindObject is an ordinary, non-callable object.
	KindObject Kind = iota
	// KindArray is an object whose own keys are conventionally treated as
	// a dense integer-indexed sequence plus a length.
	KindArray
	// KindFunction is a callable (and possibly constructable) object.
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// A Symbol is an opaque property key, distinct from any string key no
// matter its contents. Two Symbols are the same key only if they are the
// same pointer.
type Symbol struct {
	// Description is informational only; it plays no role in identity or
	// comparison.
	Description string
}

func NewSymbol(description string) *Symbol {
	return &Symbol{Description: description}
}

func (s *Symbol) String() string {
	return "Symbol(" + s.Description + ")"
}

// PropertyKey identifies a property on an [Object]. Valid dynamic types
// are string and *Symbol; both are comparable, so a PropertyKey may be
// used as a Go map key directly.
type PropertyKey = any

// MembraneGraphName is the reserved sentinel key exposed on every proxy
// when a membrane is constructed with ShowGraphName (spec.md §6). It is
// never writable, configurable, or maskable by local rules.
const MembraneGraphName = "membraneGraphName"

// Value is anything that can flow across a membrane boundary: either a
// primitive (any Go value that is not an [Object]) or an [Object].
// Primitives are never wrapped (spec.md §8 property 2).
type Value = any

// IsPrimitive reports whether v is not an [Object], and therefore passes
// through the membrane unchanged.
func IsPrimitive(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Object)
	return !ok
}

// Descriptor is the tagged union of ECMAScript-style property
// descriptors: either a data descriptor (Value/Writable) or an accessor
// descriptor (Get/Set). Accessor is true for the latter.
type Descriptor struct {
	Accessor bool

	// Data descriptor fields. Meaningful only when Accessor is false.
	Value    Value
	Writable bool

	// Accessor descriptor fields. Meaningful only when Accessor is true.
	// Either may be nil (absent getter/setter).
	Get Callable
	Set Callable

	Enumerable   bool
	Configurable bool
}

// DataDescriptor builds a data property descriptor.
func DataDescriptor(value Value, writable, enumerable, configurable bool) Descriptor {
	return Descriptor{
		Value:        value,
		Writable:     writable,
		Enumerable:   enumerable,
		Configurable: configurable,
	}
}

// AccessorDescriptor builds an accessor property descriptor.
func AccessorDescriptor(get, set Callable, enumerable, configurable bool) Descriptor {
	return Descriptor{
		Accessor:     true,
		Get:          get,
		Set:          set,
		Enumerable:   enumerable,
		Configurable: configurable,
	}
}

// IsDataDescriptor reports whether d describes a data property; mirrors
// the ECMAScript abstract operation of the same name closely enough for
// the membrane's purposes (it is simply !d.Accessor here, since Descriptor
// already carries the tag explicitly rather than inferring it from which
// fields are present).
func (d Descriptor) IsDataDescriptor() bool { return !d.Accessor }

// Object is the meta-object protocol every real value, shadow target,
// and proxy implements. It mirrors the eight object-level ECMAScript-style
// traps the engine mediates (spec.md §4.2), expressed as direct method
// calls rather than a string-keyed trap table. The remaining traps are
// not methods here: get, set and has are built by GraphHandler from these
// eight, and apply and construct live on [Callable] and [Constructable].
type Object interface {
	// Kind reports the structural kind used to build a matching
	// ShadowTarget.
	Kind() Kind

	// GetOwnPropertyDescriptor returns the own-property descriptor for
	// key, if this object has one.
	GetOwnPropertyDescriptor(key PropertyKey) (Descriptor, bool)

	// DefineOwnProperty installs desc for key, returning false if the
	// operation is rejected (e.g. object not extensible and key is new,
	// or an existing non-configurable property cannot be redefined this
	// way).
	DefineOwnProperty(key PropertyKey, desc Descriptor) bool

	// DeleteOwnProperty removes key, returning false only if the key
	// exists and is non-configurable.
	DeleteOwnProperty(key PropertyKey) bool

	// OwnKeys returns this object's own property keys, in definition
	// order.
	OwnKeys() []PropertyKey

	// GetPrototype returns the object's prototype, or nil for a null
	// prototype.
	GetPrototype() Object

	// SetPrototype attempts to change the prototype, returning false if
	// rejected (e.g. the object is not extensible and the prototype
	// would actually change).
	SetPrototype(proto Object) bool

	IsExtensible() bool

	// PreventExtensions marks the object non-extensible. It is
	// idempotent and always succeeds for ordinary objects.
	PreventExtensions() bool
}

// Callable is implemented by [Object] values that can be invoked via the
// apply trap.
type Callable interface {
	Object
	// Call invokes the function with the given receiver and arguments,
	// already unwrapped into the callee's origin graph.
	Call(this Value, args []Value) (Value, error)
}

// Constructable is implemented by [Object] values that can be invoked via
// the construct trap. A constructable real value should also implement
// Callable if it can be called without `new`; the engine does not
// require it.
type Constructable interface {
	Object
	// Construct invokes the function as a constructor with newTarget
	// already unwrapped into the callee's origin graph.
	Construct(args []Value, newTarget Object) (Value, error)
}

// Arity is implemented by function objects that can report their
// declared parameter count, used to resolve truncateArgList(true)
// (spec.md §4.2, §9 "Argument truncation").
type Arity interface {
	Object
	Length() int
}
