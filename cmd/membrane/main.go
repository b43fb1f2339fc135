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

// Command membrane is a small inspection CLI for the membrane engine: it
// drives a handful of scripted demonstrations of wrap/revoke/ModifyRules
// behavior, useful for manual exploration and for the package's golden
// testscript suite.
package main

import (
	"fmt"
	"os"

	"github.com/ajvincent/es7-membrane/cmd/membrane/internal/cli"
)

func main() {
	root := cli.New()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
