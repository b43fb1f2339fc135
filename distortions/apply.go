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

// ApplyConfiguration translates cfg into ModifyRules calls against
// meta.Handler's graph name and the object that represents this
// notification's proxy slot — meta.Proxy for a foreign graph, or the
// real value itself (which the façade also stores in meta.Proxy when
// IsOriginGraph, since getProxy(originGraph) is defined as the real
// value) for the origin graph (spec.md §4.6 "applyConfiguration(cfg,
// meta) translates the config into ModifyRules calls against
// meta.handler.graphName and meta.target (origin graph) or meta.proxy
// (foreign graph)"). If the real value is already non-extensible, the
// proxy is also prevent-extensioned.
func ApplyConfiguration(rules *graph.ModifyRules, meta *graph.ProxyMeta, cfg Config) error {
	graphName := meta.Handler.Name()
	target := meta.Proxy

	if cfg.StoreUnknownAsLocal {
		if err := rules.StoreUnknownAsLocal(graphName, target); err != nil {
			return err
		}
	}
	if cfg.RequireLocalDelete {
		if err := rules.RequireLocalDelete(graphName, target); err != nil {
			return err
		}
	}
	if cfg.FilterOwnKeys != nil {
		if err := rules.FilterOwnKeys(graphName, target, graph.KeyFilterSpec{AllowList: cfg.FilterOwnKeys}); err != nil {
			return err
		}
	}
	if cfg.ProxyTraps != nil {
		disabled := disabledTraps(cfg.ProxyTraps)
		if len(disabled) > 0 {
			if err := rules.DisableTraps(graphName, target, disabled); err != nil {
				return err
			}
		}
	}
	if cfg.TruncateArgList != nil {
		if err := rules.TruncateArgList(graphName, target, *cfg.TruncateArgList); err != nil {
			return err
		}
	}
	if !meta.Target.IsExtensible() {
		_ = meta.Proxy.PreventExtensions()
	}
	return nil
}

// AsProxyListener adapts cat and rules into a [graph.ProxyListener] that
// applies a matching distortion the first time a value crosses into a
// foreign graph (spec.md §4.6 "applied... at first-crossing time"). It
// ignores the origin-graph half of each crossing's two notifications: a
// distortion is a property of the foreign-side proxy, and
// ApplyConfiguration's ModifyRules calls are scoped to meta.Handler's
// graph and meta.Proxy, which only line up with the foreign entry
// ApplyConfiguration's doc comment describes on that half.
func AsProxyListener(cat *Catalog, rules *graph.ModifyRules) graph.ProxyListener {
	return func(meta *graph.ProxyMeta) {
		if meta.IsOriginGraph {
			return
		}
		var proto graph.Value
		if realObj, ok := meta.Real.(graph.Object); ok {
			proto = realObj.GetPrototype()
		}
		cfg, ok := cat.Lookup(meta.Real, proto)
		if !ok {
			return
		}
		if err := ApplyConfiguration(rules, meta, cfg); err != nil {
			meta.ThrowException(err)
		}
	}
}

func disabledTraps(enabled []string) []string {
	allow := make(map[string]bool, len(enabled))
	for _, t := range enabled {
		allow[t] = true
	}
	var disabled []string
	for _, t := range graph.AllTraps {
		if !allow[t] {
			disabled = append(disabled, t)
		}
	}
	return disabled
}
