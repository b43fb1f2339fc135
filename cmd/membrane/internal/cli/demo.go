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

package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	membrane "github.com/ajvincent/es7-membrane"
	"github.com/ajvincent/es7-membrane/distortions"
	"github.com/ajvincent/es7-membrane/internal/core/graph"
)

func newDemoCommand() *cobra.Command {
	var graphName string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Wrap a sample object across two graphs and print what each side observes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, graphName)
		},
	}
	cmd.Flags().StringVar(&graphName, "target-graph", "wetGraph", "name of the foreign graph the sample object is wrapped into")
	return cmd
}

func runDemo(cmd *cobra.Command, targetGraph string) error {
	m, err := membrane.New(membrane.Options{ShowGraphName: true})
	if err != nil {
		return err
	}

	obj := newPlainObject(graph.KindObject)
	obj.DefineOwnProperty("name", graph.DataDescriptor("dry-side value", true, true, true))
	obj.DefineOwnProperty("count", graph.DataDescriptor(42, true, true, true))

	// A distortions catalog with a single rule: obj, by exact identity,
	// should only show its "name" key across the membrane. Wiring it as a
	// live proxy listener is what makes ModifyRules.FilterOwnKeys take
	// effect on the proxy below, rather than only on a handler a test
	// built by hand.
	cat := distortions.NewCatalog()
	if _, err := cat.AddListener(distortions.CategoryValue, graph.Value(obj), distortions.Config{
		FilterOwnKeys: []graph.PropertyKey{"name"},
	}); err != nil {
		return err
	}
	m.AddProxyListener(distortions.AsProxyListener(cat, m.ModifyRules()))

	proxy, err := m.ConvertArgumentToProxy("dryGraph", targetGraph, obj, false)
	if err != nil {
		return err
	}
	proxyObj, ok := proxy.(graph.Object)
	if !ok {
		return fmt.Errorf("demo: conversion did not yield an object proxy")
	}

	keys := proxyObj.OwnKeys()
	sort.Slice(keys, func(i, j int) bool { return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j]) })

	fmt.Fprintf(cmd.OutOrStdout(), "proxy in graph %q exposes keys (after a filterOwnKeys distortion):\n", targetGraph)
	for _, k := range keys {
		v, err := m.Get(targetGraph, proxyObj, k)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %v = %v\n", k, v)
	}

	m.RevokeMapping(graph.Value(obj))
	if _, err := m.Get(targetGraph, proxyObj, "name"); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "after revokeMapping, Get fails: %v\n", err)
	} else {
		return fmt.Errorf("demo: expected Get to fail after revokeMapping")
	}
	return nil
}
