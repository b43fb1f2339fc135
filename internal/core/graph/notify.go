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

import "log"

// ShadowTargetMode is the argument to [ProxyMeta.UseShadowTarget]
// (spec.md §4.2.3 "useShadowTarget(mode)").
type ShadowTargetMode uint8

const (
	ShadowFrozen ShadowTargetMode = iota
	ShadowSealed
	ShadowPrepared
)

// ProxyMeta is the metadata object delivered to every proxy listener the
// first time a foreign-graph proxy is created for a value (spec.md
// §4.2.3). The façade constructs one of these per notification and owns
// Proxy/Handler; graph only defines the shape and the iteration
// mechanics, so that a listener's mutations (useShadowTarget,
// rebuildProxy) stay entirely inside the façade's bookkeeping.
type ProxyMeta struct {
	// Target is the shadow target the new proxy wraps.
	Target *ShadowTarget
	// Proxy is the proxy object itself. A listener may reassign it, e.g.
	// after calling UseShadowTarget or RebuildProxy.
	Proxy Object
	// Real is the original (dry-side) value being wrapped, the same
	// identity across both notifications of a single crossing. Catalog
	// lookups (spec.md §4.6) match against Real, never Target or Proxy,
	// since Real is the only one of the three with a stable identity a
	// caller could have registered a distortion against beforehand.
	Real Value
	// Handler is the GraphHandler mediating Proxy. A listener may
	// reassign it, e.g. after CreateChainHandler.
	Handler *GraphHandler
	// IsOriginGraph is true when this notification concerns the graph
	// that owns the real value's origin entry.
	IsOriginGraph bool

	rebuild        func()
	useShadow      func(ShadowTargetMode)
	stopped        bool
	thrown         error
}

// NewProxyMeta builds a metadata object for one listener notification.
// rebuild and useShadow are façade-supplied closures implementing
// rebuildProxy() and useShadowTarget(mode) against this specific
// cylinder entry.
func NewProxyMeta(target *ShadowTarget, proxy Object, real Value, handler *GraphHandler, isOrigin bool, rebuild func(), useShadow func(ShadowTargetMode)) *ProxyMeta {
	return &ProxyMeta{
		Target:        target,
		Proxy:         proxy,
		Real:          real,
		Handler:       handler,
		IsOriginGraph: isOrigin,
		rebuild:       rebuild,
		useShadow:     useShadow,
	}
}

// RebuildProxy asks the façade to discard and recreate Proxy from
// Target's current state.
func (m *ProxyMeta) RebuildProxy() {
	if m.rebuild != nil {
		m.rebuild()
	}
}

// UseShadowTarget installs the shadow (in the given mode) as the proxy's
// apparent target, per spec.md §4.2.3: "prepared" installs lazy getters
// for every own key.
func (m *ProxyMeta) UseShadowTarget(mode ShadowTargetMode) {
	if m.useShadow != nil {
		m.useShadow(mode)
	}
}

// StopIteration halts the remaining listeners in this notification's
// snapshot. It does not affect future notifications.
func (m *ProxyMeta) StopIteration() { m.stopped = true }

// ThrowException records an error to propagate once the current listener
// returns (spec.md §4.2.3 "throwException(e) causes e to propagate after
// the current listener returns").
func (m *ProxyMeta) ThrowException(e error) { m.thrown = e }

// ProxyListener observes every new foreign-graph proxy as it is built.
type ProxyListener func(meta *ProxyMeta)

// FireProxyListeners runs a snapshot of listeners against meta in order,
// honoring StopIteration and ThrowException, and swallowing (but
// logging) any panic or plain error a listener produces outside of
// ThrowException — the notify loop is the one place spec.md §7 says
// listener errors are swallowed rather than propagated.
func FireProxyListeners(listeners []ProxyListener, meta *ProxyMeta) error {
	snapshot := make([]ProxyListener, len(listeners))
	copy(snapshot, listeners)

	for _, listener := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("membrane: proxy listener panicked: %v", r)
				}
			}()
			listener(meta)
		}()
		if meta.thrown != nil {
			err := meta.thrown
			meta.thrown = nil
			return err
		}
		if meta.stopped {
			break
		}
	}
	return nil
}

// InConstruction tracks real values whose proxy is still being built on
// the current call stack, so a ProxyListener that recursively triggers
// another wrap for the same value defers its finalization instead of
// reentering buildMapping (spec.md §5 "ProxyListeners creating nested
// proxies").
type InConstruction struct {
	active map[any]bool
	queued map[any][]func()
}

// NewInConstruction creates an empty re-entrancy tracker.
func NewInConstruction() *InConstruction {
	return &InConstruction{active: make(map[any]bool), queued: make(map[any][]func())}
}

// Enter marks value as under construction, returning false if it already
// was (the caller should then queue via Defer rather than proceed).
func (ic *InConstruction) Enter(value any) bool {
	if ic.active[value] {
		return false
	}
	ic.active[value] = true
	return true
}

// Defer queues fn to run once value's construction completes.
func (ic *InConstruction) Defer(value any, fn func()) {
	ic.queued[value] = append(ic.queued[value], fn)
}

// Leave clears value's in-construction mark and runs any finalizers that
// were queued against it while it was active.
func (ic *InConstruction) Leave(value any) {
	delete(ic.active, value)
	pending := ic.queued[value]
	delete(ic.queued, value)
	for _, fn := range pending {
		fn()
	}
}
