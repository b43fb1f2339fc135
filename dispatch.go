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

package membrane

import (
	"fmt"

	"github.com/ajvincent/es7-membrane/internal/core/graph"
)

// gopdResult boxes GetOwnPropertyDescriptor's two-value return (a
// Descriptor plus a found flag) into the single graph.Value a
// [graph.Pipeline] threads through its nodes.
type gopdResult struct {
	desc  graph.Descriptor
	found bool
}

// dispatchTerminal builds the terminal node every graph's [graph.Pipeline]
// ends at: a plain switch over call.Trap that forwards to h's matching
// method (spec.md §4.5 "the pipeline always terminates at a
// GraphHandler"). This is the only place a TrapCall's native Go-typed
// return value (bool, Descriptor, graph.Object, ...) gets boxed into the
// graph.Value the pipeline carries; proxyObject's MOP methods unbox it
// again on the way out.
func dispatchTerminal(h *graph.GraphHandler) func(*graph.TrapCall) (graph.Value, error) {
	return func(call *graph.TrapCall) (graph.Value, error) {
		switch call.Trap {
		case graph.TrapGet:
			return h.Get(call.Shadow, call.Key, call.Receiver)
		case graph.TrapSet:
			ok, err := h.Set(call.Shadow, call.Key, call.Value, call.Receiver)
			return ok, err
		case graph.TrapHas:
			ok, err := h.Has(call.Shadow, call.Key)
			return ok, err
		case graph.TrapOwnKeys:
			keys, err := h.OwnKeys(call.Shadow)
			return keys, err
		case graph.TrapGetOwnPropertyDescriptor:
			desc, found, err := h.GetOwnPropertyDescriptor(call.Shadow, call.Key)
			if err != nil {
				return nil, err
			}
			return gopdResult{desc: desc, found: found}, nil
		case graph.TrapDefineProperty:
			ok, err := h.DefineProperty(call.Shadow, call.Key, call.Desc)
			return ok, err
		case graph.TrapDeleteProperty:
			ok, err := h.DeleteProperty(call.Shadow, call.Key)
			return ok, err
		case graph.TrapGetPrototypeOf:
			proto, err := h.GetPrototypeOf(call.Shadow)
			return proto, err
		case graph.TrapSetPrototypeOf:
			ok, err := h.SetPrototypeOf(call.Shadow, call.Proto)
			return ok, err
		case graph.TrapIsExtensible:
			ok, err := h.IsExtensible(call.Shadow)
			return ok, err
		case graph.TrapPreventExtensions:
			ok, err := h.PreventExtensions(call.Shadow)
			return ok, err
		case graph.TrapApply:
			return h.Apply(call.Shadow, call.Value, call.Args)
		case graph.TrapConstruct:
			return h.Construct(call.Shadow, call.Args, call.NewTarget)
		default:
			return nil, errFor(h.Name(), fmt.Sprintf("dispatchTerminal: unrecognized trap %q", call.Trap))
		}
	}
}
