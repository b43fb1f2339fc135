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

// Package errors defines the error taxonomy shared by every membrane
// package. The pivotal type is [Error], whose [Error.Kind] lets callers
// branch on failure category without string matching.
package errors

import (
	"errors"
	"fmt"
)

// New is a convenience wrapper for [errors.New] in the core library. It
// does not return a membrane [Error].
func New(msg string) error {
	return errors.New(msg)
}

// Unwrap returns the result of calling the Unwrap method on err, if err
// implements Unwrap. Otherwise, Unwrap returns nil.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches the type to which
// target points, and if so, sets the target to its value and returns true.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Kind classifies a membrane [Error]. See spec.md §7 for the authoritative
// list; the surface names here are indicative, not prescriptive.
type Kind uint8

const (
	_ Kind = iota

	// PrimitiveWrap: caller attempted to wrap or bind a primitive where an
	// object or function was required.
	PrimitiveWrap

	// UnknownGraph: a cylinder operation named a graph it has no entry for.
	UnknownGraph

	// DeadGraph: a cylinder operation named a graph whose entry is a
	// tombstone.
	DeadGraph

	// OriginalNotSet: getOriginal was called before any origin value was
	// recorded.
	OriginalNotSet

	// GraphOwnershipViolation: a proxy or handler was presented to a
	// membrane that did not mint it.
	GraphOwnershipViolation

	// DuplicateGraph: a graph name was registered twice without override.
	DuplicateGraph

	// InvariantViolation: a host-language proxy invariant would be broken
	// (non-configurable property rejected by the shadow, non-extensible
	// shadow rejecting a new key, a lazy getter discovering a sealed
	// shadow after the fact).
	InvariantViolation

	// TrapDisabled: the trap is disabled for this proxy via ModifyRules.
	TrapDisabled

	// Revoked: the proxy, or its cylinder, has been revoked.
	Revoked

	// RuleConflict: a ModifyRules call conflicts with existing state
	// (filterOwnKeys on a non-extensible proxy, replaceProxy across
	// graphs).
	RuleConflict

	// ValidationFailure: a caller-supplied argument failed validation
	// (wrong type, non-function listener, unsupported option value).
	ValidationFailure
)

func (k Kind) String() string {
	switch k {
	case PrimitiveWrap:
		return "PrimitiveWrap"
	case UnknownGraph:
		return "UnknownGraph"
	case DeadGraph:
		return "DeadGraph"
	case OriginalNotSet:
		return "OriginalNotSet"
	case GraphOwnershipViolation:
		return "GraphOwnershipViolation"
	case DuplicateGraph:
		return "DuplicateGraph"
	case InvariantViolation:
		return "InvariantViolation"
	case TrapDisabled:
		return "TrapDisabled"
	case Revoked:
		return "Revoked"
	case RuleConflict:
		return "RuleConflict"
	case ValidationFailure:
		return "ValidationFailure"
	default:
		return "Unknown"
	}
}

// Error is the interface implemented by every error the membrane packages
// return directly (as opposed to errors surfacing from user callbacks,
// which propagate untouched per spec.md §7).
type Error interface {
	error
	Kind() Kind
	// Graph is the name of the graph the failing operation was scoped to,
	// if any.
	Graph() string
}

type membraneError struct {
	kind  Kind
	graph string
	msg   string
}

func (e *membraneError) Error() string {
	if e.graph == "" {
		return fmt.Sprintf("%s: %s", e.kind, e.msg)
	}
	return fmt.Sprintf("%s[%s]: %s", e.kind, e.graph, e.msg)
}

func (e *membraneError) Kind() Kind   { return e.kind }
func (e *membraneError) Graph() string { return e.graph }

// Newf builds an [Error] of the given kind, scoped to no particular graph.
func Newf(kind Kind, format string, args ...interface{}) Error {
	return &membraneError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// NewForGraph builds an [Error] of the given kind, scoped to graph.
func NewForGraph(kind Kind, graph string, format string, args ...interface{}) Error {
	return &membraneError{kind: kind, graph: graph, msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the [Kind] from err if it (or something in its chain)
// implements [Error].
func KindOf(err error) (Kind, bool) {
	var me Error
	if As(err, &me) {
		return me.Kind(), true
	}
	return 0, false
}
