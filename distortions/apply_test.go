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

import (
	"testing"

	"github.com/ajvincent/es7-membrane/internal/core/graph"
)

func TestApplyConfigurationStoreUnknownAsLocalAndFilter(t *testing.T) {
	vm := graph.NewGraphValueMap()
	cyl := graph.NewProxyCylinder("dry")
	real := graph.NewShadowTarget(graph.KindObject)
	if err := cyl.SetOriginValue(vm, real, false); err != nil {
		t.Fatalf("SetOriginValue: %v", err)
	}
	proxy := graph.NewShadowTarget(graph.KindObject)
	if err := cyl.SetForeignEntry(vm, "wet", graph.ForeignEntry{Proxy: proxy, Shadow: proxy}, false); err != nil {
		t.Fatalf("SetForeignEntry: %v", err)
	}

	rules := graph.NewModifyRules(vm)
	h := graph.NewGraphHandler("wet", vm, nil)
	meta := graph.NewProxyMeta(proxy, graph.Object(proxy), graph.Value(real), h, false, nil, nil)

	cfg := Config{
		StoreUnknownAsLocal: true,
		FilterOwnKeys:       []graph.PropertyKey{"allowed"},
		ProxyTraps:          []string{graph.TrapGet, graph.TrapHas},
	}
	if err := ApplyConfiguration(rules, meta, cfg); err != nil {
		t.Fatalf("ApplyConfiguration: %v", err)
	}

	if v, _ := cyl.GetLocalFlag("wet", graph.FlagStoreUnknownAsLocal); !v {
		t.Fatalf("storeUnknownAsLocal was not applied")
	}
	filter, err := cyl.GetOwnKeysFilter("wet")
	if err != nil || filter == nil {
		t.Fatalf("GetOwnKeysFilter: %v, %v", filter, err)
	}
	if !filter("allowed") || filter("other") {
		t.Fatalf("own-keys filter not applied as expected")
	}
	if v, _ := cyl.GetLocalFlag("wet", graph.DisableTrapFlag(graph.TrapSet)); !v {
		t.Fatalf("set trap should have been disabled (not in ProxyTraps)")
	}
	if v, _ := cyl.GetLocalFlag("wet", graph.DisableTrapFlag(graph.TrapGet)); v {
		t.Fatalf("get trap should remain enabled")
	}
}

func TestApplyConfigurationPreventsExtensionsWhenTargetIsSealed(t *testing.T) {
	vm := graph.NewGraphValueMap()
	cyl := graph.NewProxyCylinder("dry")
	real := graph.NewShadowTarget(graph.KindObject)
	cyl.SetOriginValue(vm, real, false)
	proxy := graph.NewShadowTarget(graph.KindObject)
	cyl.SetForeignEntry(vm, "wet", graph.ForeignEntry{Proxy: proxy, Shadow: proxy}, false)

	target := graph.NewShadowTarget(graph.KindObject)
	target.PreventExtensions()
	h := graph.NewGraphHandler("wet", vm, nil)
	meta := graph.NewProxyMeta(target, graph.Object(proxy), graph.Value(real), h, false, nil, nil)

	if err := ApplyConfiguration(graph.NewModifyRules(vm), meta, Config{}); err != nil {
		t.Fatalf("ApplyConfiguration: %v", err)
	}
	if proxy.IsExtensible() {
		t.Fatalf("proxy should have been prevent-extensioned to match a sealed target")
	}
}
