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

// Package distortions implements the membrane's DistortionsListener
// subsystem (spec.md §4.6): a declarative catalog of per-value,
// per-prototype, and per-predicate rule configurations, consulted by a
// ProxyListener the first time a value crosses into a new graph.
package distortions

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ajvincent/es7-membrane/errors"
	"github.com/ajvincent/es7-membrane/internal/core/graph"
)

// Category is the kind of match addListener registers a config under
// (spec.md §4.6 "category ∈ {value,prototype,instance,iterable,filter}").
type Category string

const (
	CategoryValue     Category = "value"
	CategoryPrototype Category = "prototype"
	CategoryInstance  Category = "instance"
	CategoryIterable  Category = "iterable"
	CategoryFilter    Category = "filter"
)

// Config is the default config shape emitted by SampleConfig and consumed
// by ApplyConfiguration (spec.md §4.6).
type Config struct {
	// FilterOwnKeys is nil (not filtered) or an explicit allow-list.
	FilterOwnKeys []graph.PropertyKey
	// ProxyTraps lists the traps that remain enabled; every trap not
	// present here is disabled via ModifyRules.DisableTraps.
	ProxyTraps []string
	StoreUnknownAsLocal bool
	RequireLocalDelete  bool
	UseShadowTarget     graph.ShadowTargetMode
	UseShadowTargetSet  bool
	// TruncateArgList is nil for "false" (unlimited); functions only.
	TruncateArgList *graph.ArgTruncation
}

// SampleConfig returns the default config shape (spec.md §4.6): every
// trap enabled, no filtering, no local storage, and no truncation
// (TruncateArgList nil). isFunction does not change the result; a nil
// TruncateArgList is a no-op when applied to any value.
func SampleConfig(isFunction bool) Config {
	cfg := Config{
		ProxyTraps: append([]string{}, graph.AllTraps...),
	}
	_ = isFunction
	return cfg
}

type ruleEntry struct {
	id     string
	config Config
}

// Catalog is the in-memory form of a distortions configuration (spec.md
// §4.6): keyed maps from value, prototype, and predicate to Config, plus
// an ignorable-values set feeding the membrane's pass-through filter.
type Catalog struct {
	byValue     map[any]ruleEntry
	byPrototype map[any]ruleEntry
	filters     []filterEntry
	ignorable   map[any]struct{}
}

type filterEntry struct {
	id     string
	pred   func(v graph.Value) bool
	config Config
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byValue:     make(map[any]ruleEntry),
		byPrototype: make(map[any]ruleEntry),
		ignorable:   make(map[any]struct{}),
	}
}

// AddListener registers cfg under category, keyed by key. For
// CategoryValue and CategoryInstance, key is the exact value or
// prototype object. For CategoryPrototype, key is the prototype whose
// instances should match. For CategoryFilter, key must be a
// func(graph.Value) bool. CategoryIterable is accepted as an alias of
// CategoryInstance (an iterable's own prototype is matched the same way);
// it exists as a distinct category purely for catalog-authoring clarity,
// per spec.md §4.6.
func (c *Catalog) AddListener(category Category, key any, cfg Config) (string, error) {
	id := uuid.NewString()
	switch category {
	case CategoryValue:
		c.byValue[key] = ruleEntry{id: id, config: cfg}
	case CategoryPrototype, CategoryInstance, CategoryIterable:
		c.byPrototype[key] = ruleEntry{id: id, config: cfg}
	case CategoryFilter:
		pred, ok := key.(func(graph.Value) bool)
		if !ok {
			return "", errors.Newf(errors.ValidationFailure, "distortions: filter category requires a func(graph.Value) bool key")
		}
		c.filters = append(c.filters, filterEntry{id: id, pred: pred, config: cfg})
	default:
		return "", errors.Newf(errors.ValidationFailure, "distortions: unknown category %q", category)
	}
	return id, nil
}

// RemoveListener removes the registration with the given id from every
// map it could be in.
func (c *Catalog) RemoveListener(id string) {
	for k, e := range c.byValue {
		if e.id == id {
			delete(c.byValue, k)
		}
	}
	for k, e := range c.byPrototype {
		if e.id == id {
			delete(c.byPrototype, k)
		}
	}
	kept := c.filters[:0]
	for _, f := range c.filters {
		if f.id != id {
			kept = append(kept, f)
		}
	}
	c.filters = kept
}

// IgnoreValue adds v to the ignorable-values set, feeding the
// membrane's pass-through filter (spec.md §4.6 "ignorableValues set
// feeding the pass-through filter").
func (c *Catalog) IgnoreValue(v graph.Value) {
	c.ignorable[v] = struct{}{}
}

// PassThrough reports whether v should cross the membrane unconverted
// because it was added via IgnoreValue or ignorePrimordials.
func (c *Catalog) PassThrough(v graph.Value) bool {
	_, ok := c.ignorable[v]
	return ok
}

// Lookup resolves v's configuration in spec.md §4.6 order: exact value,
// then the instance map keyed by v's prototype, then the first matching
// filter predicate (short-circuit). found is false if nothing matched.
func (c *Catalog) Lookup(v graph.Value, proto graph.Value) (Config, bool) {
	if e, ok := c.byValue[v]; ok {
		return e.config, true
	}
	if proto != nil {
		if e, ok := c.byPrototype[proto]; ok {
			return e.config, true
		}
	}
	for _, f := range c.filters {
		if f.pred(v) {
			return f.config, true
		}
	}
	return Config{}, false
}

// --- YAML loading -----------------------------------------------------

type yamlCatalog struct {
	Rules []yamlRule `yaml:"rules"`
}

type yamlRule struct {
	Match  yamlMatch  `yaml:"match"`
	Config yamlConfig `yaml:"config"`
}

type yamlMatch struct {
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
	Ref  string `yaml:"ref"`
}

type yamlConfig struct {
	StoreUnknownAsLocal bool     `yaml:"storeUnknownAsLocal"`
	RequireLocalDelete  bool     `yaml:"requireLocalDelete"`
	ProxyTraps          []string `yaml:"proxyTraps"`
	FilterOwnKeys       []string `yaml:"filterOwnKeys"`
}

// LoadCatalog parses a YAML distortions document (spec.md §A.3) into a
// fresh Catalog. Because YAML rules name values/prototypes by string
// reference rather than holding a live handle, resolve is consulted to
// turn each rule's match.ref/match.name into the actual in-process value
// or prototype object; a rule whose reference does not resolve is
// skipped rather than treated as an error, since catalogs are commonly
// shared across builds that do not all define every named value.
func LoadCatalog(r io.Reader, resolve func(match Match) (value graph.Value, isPrototype bool, ok bool)) (*Catalog, error) {
	var doc yamlCatalog
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Newf(errors.ValidationFailure, "distortions: parsing catalog: %v", err)
	}
	cat := NewCatalog()
	for _, rule := range doc.Rules {
		m := Match{Kind: rule.Match.Kind, Name: rule.Match.Name, Ref: rule.Match.Ref}
		value, isPrototype, ok := resolve(m)
		if !ok {
			continue
		}
		cfg := Config{
			StoreUnknownAsLocal: rule.Config.StoreUnknownAsLocal,
			RequireLocalDelete:  rule.Config.RequireLocalDelete,
			ProxyTraps:          rule.Config.ProxyTraps,
		}
		for _, k := range rule.Config.FilterOwnKeys {
			cfg.FilterOwnKeys = append(cfg.FilterOwnKeys, k)
		}
		category := CategoryValue
		if isPrototype {
			category = CategoryPrototype
		}
		if _, err := cat.AddListener(category, value, cfg); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

// Match is the resolved form of a YAML rule's match clause.
type Match struct {
	Kind string
	Name string
	Ref  string
}

func (m Match) String() string {
	if m.Name != "" {
		return fmt.Sprintf("%s:%s", m.Kind, m.Name)
	}
	return fmt.Sprintf("%s:%s", m.Kind, m.Ref)
}
