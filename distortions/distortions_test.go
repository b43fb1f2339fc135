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
	"strings"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/ajvincent/es7-membrane/internal/core/graph"
)

func TestCatalogLookupOrderValueBeatsPrototype(t *testing.T) {
	cat := NewCatalog()
	proto := "the-prototype"
	value := "the-value"

	protoCfg := Config{RequireLocalDelete: true}
	valueCfg := Config{StoreUnknownAsLocal: true}
	if _, err := cat.AddListener(CategoryPrototype, proto, protoCfg); err != nil {
		t.Fatalf("AddListener(prototype): %v", err)
	}
	if _, err := cat.AddListener(CategoryValue, value, valueCfg); err != nil {
		t.Fatalf("AddListener(value): %v", err)
	}

	got, ok := cat.Lookup(value, proto)
	qt.Assert(t, ok, qt.Equals(true))
	qt.Assert(t, got.StoreUnknownAsLocal, qt.Equals(true))
	qt.Assert(t, got.RequireLocalDelete, qt.Equals(false))
}

func TestCatalogLookupFallsBackToPrototypeThenFilter(t *testing.T) {
	cat := NewCatalog()
	proto := "array-like-prototype"
	cat.AddListener(CategoryPrototype, proto, Config{RequireLocalDelete: true})

	got, ok := cat.Lookup("some-other-value", proto)
	qt.Assert(t, ok, qt.Equals(true))
	qt.Assert(t, got.RequireLocalDelete, qt.Equals(true))

	isString := func(v graph.Value) bool {
		_, ok := v.(string)
		return ok
	}
	cat.AddListener(CategoryFilter, isString, Config{StoreUnknownAsLocal: true})

	got, ok = cat.Lookup("unmatched-by-value-or-proto", nil)
	qt.Assert(t, ok, qt.Equals(true))
	qt.Assert(t, got.StoreUnknownAsLocal, qt.Equals(true))
}

func TestCatalogLookupNoMatch(t *testing.T) {
	cat := NewCatalog()
	_, ok := cat.Lookup("nothing-registered", nil)
	if ok {
		t.Fatalf("Lookup() matched with an empty catalog")
	}
}

func TestCatalogFilterRequiresPredicate(t *testing.T) {
	cat := NewCatalog()
	if _, err := cat.AddListener(CategoryFilter, "not-a-predicate", Config{}); err == nil {
		t.Fatalf("expected an error registering a filter category with a non-predicate key")
	}
}

func TestCatalogRemoveListener(t *testing.T) {
	cat := NewCatalog()
	id, err := cat.AddListener(CategoryValue, "v", Config{StoreUnknownAsLocal: true})
	if err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	cat.RemoveListener(id)
	if _, ok := cat.Lookup("v", nil); ok {
		t.Fatalf("Lookup() found a value whose listener was removed")
	}
}

func TestCatalogIgnoreValuePassThrough(t *testing.T) {
	cat := NewCatalog()
	if cat.PassThrough("x") {
		t.Fatalf("PassThrough should be false before IgnoreValue")
	}
	cat.IgnoreValue("x")
	if !cat.PassThrough("x") {
		t.Fatalf("PassThrough should be true after IgnoreValue")
	}
}

func TestSampleConfigEnablesEveryTrap(t *testing.T) {
	cfg := SampleConfig(false)
	if len(cfg.ProxyTraps) != len(graph.AllTraps) {
		t.Fatalf("SampleConfig().ProxyTraps = %v, want all %d traps", cfg.ProxyTraps, len(graph.AllTraps))
	}
}

func TestLoadCatalogResolvesRulesViaCallback(t *testing.T) {
	doc := `
rules:
  - match: { kind: prototype, name: "Array.prototype" }
    config: { storeUnknownAsLocal: true, filterOwnKeys: ["length", "push"] }
  - match: { kind: value, ref: "unresolvable-ref" }
    config: { requireLocalDelete: true }
`
	arrayPrototype := "array-prototype-sentinel"
	resolve := func(m Match) (graph.Value, bool, bool) {
		if m.Kind == "prototype" && m.Name == "Array.prototype" {
			return arrayPrototype, true, true
		}
		return nil, false, false
	}

	cat, err := LoadCatalog(strings.NewReader(doc), resolve)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	cfg, ok := cat.Lookup("some-array-instance", arrayPrototype)
	if !ok {
		t.Fatalf("Lookup() did not find the resolved prototype rule")
	}
	if !cfg.StoreUnknownAsLocal {
		t.Fatalf("resolved config missing storeUnknownAsLocal")
	}
	if len(cfg.FilterOwnKeys) != 2 {
		t.Fatalf("resolved config FilterOwnKeys = %v, want 2 entries", cfg.FilterOwnKeys)
	}
}

func TestMatchString(t *testing.T) {
	named := Match{Kind: "prototype", Name: "Array.prototype"}
	if named.String() != "prototype:Array.prototype" {
		t.Fatalf("Match.String() = %q", named.String())
	}
	byRef := Match{Kind: "value", Ref: "r1"}
	if byRef.String() != "value:r1" {
		t.Fatalf("Match.String() = %q", byRef.String())
	}
}
