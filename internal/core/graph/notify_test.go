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
	"errors"
	"testing"
)

func TestFireProxyListenersRunsInOrder(t *testing.T) {
	target := NewShadowTarget(KindObject)
	meta := NewProxyMeta(target, Object(target), nil, nil, true, nil, nil)

	var order []int
	listeners := []ProxyListener{
		func(m *ProxyMeta) { order = append(order, 1) },
		func(m *ProxyMeta) { order = append(order, 2) },
		func(m *ProxyMeta) { order = append(order, 3) },
	}
	if err := FireProxyListeners(listeners, meta); err != nil {
		t.Fatalf("FireProxyListeners: %v", err)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("order = %v, want [1 2 3]", order)
	}
}

func TestFireProxyListenersStopIteration(t *testing.T) {
	target := NewShadowTarget(KindObject)
	meta := NewProxyMeta(target, Object(target), nil, nil, true, nil, nil)

	var ran []int
	listeners := []ProxyListener{
		func(m *ProxyMeta) { ran = append(ran, 1); m.StopIteration() },
		func(m *ProxyMeta) { ran = append(ran, 2) },
	}
	if err := FireProxyListeners(listeners, meta); err != nil {
		t.Fatalf("FireProxyListeners: %v", err)
	}
	if len(ran) != 1 {
		t.Fatalf("ran = %v, want only the first listener to run", ran)
	}
}

func TestFireProxyListenersThrowException(t *testing.T) {
	target := NewShadowTarget(KindObject)
	meta := NewProxyMeta(target, Object(target), nil, nil, true, nil, nil)

	boom := errors.New("boom")
	ranSecond := false
	listeners := []ProxyListener{
		func(m *ProxyMeta) { m.ThrowException(boom) },
		func(m *ProxyMeta) { ranSecond = true },
	}
	err := FireProxyListeners(listeners, meta)
	if err != boom {
		t.Fatalf("FireProxyListeners() error = %v, want %v", err, boom)
	}
	if ranSecond {
		t.Fatalf("a thrown exception should stop remaining listeners")
	}
}

func TestFireProxyListenersSwallowsPanic(t *testing.T) {
	target := NewShadowTarget(KindObject)
	meta := NewProxyMeta(target, Object(target), nil, nil, true, nil, nil)

	ranSecond := false
	listeners := []ProxyListener{
		func(m *ProxyMeta) { panic("listener exploded") },
		func(m *ProxyMeta) { ranSecond = true },
	}
	if err := FireProxyListeners(listeners, meta); err != nil {
		t.Fatalf("FireProxyListeners: %v", err)
	}
	if !ranSecond {
		t.Fatalf("a panicking listener should not prevent later listeners from running")
	}
}

func TestProxyMetaRebuildAndUseShadowTarget(t *testing.T) {
	target := NewShadowTarget(KindObject)
	rebuilt := false
	var usedMode ShadowTargetMode
	usedCalled := false
	meta := NewProxyMeta(target, Object(target), nil, nil, false,
		func() { rebuilt = true },
		func(mode ShadowTargetMode) { usedCalled = true; usedMode = mode })

	meta.RebuildProxy()
	if !rebuilt {
		t.Fatalf("RebuildProxy did not invoke the façade callback")
	}
	meta.UseShadowTarget(ShadowPrepared)
	if !usedCalled || usedMode != ShadowPrepared {
		t.Fatalf("UseShadowTarget did not forward mode=%v", usedMode)
	}
}

func TestInConstructionEnterDeferLeave(t *testing.T) {
	ic := NewInConstruction()
	v := "value-under-construction"

	if !ic.Enter(v) {
		t.Fatalf("first Enter() should succeed")
	}
	if ic.Enter(v) {
		t.Fatalf("second Enter() for the same value should report already-active")
	}

	ran := false
	ic.Defer(v, func() { ran = true })
	if ran {
		t.Fatalf("deferred finalizer ran before Leave()")
	}
	ic.Leave(v)
	if !ran {
		t.Fatalf("Leave() did not run the deferred finalizer")
	}

	if !ic.Enter(v) {
		t.Fatalf("Enter() after Leave() should succeed again")
	}
}
