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

// Package cli implements the membrane command's cobra command tree,
// kept importable separately from main so testscript can exercise it
// in-process via a single-binary test harness.
package cli

import (
	"github.com/spf13/cobra"
)

// New builds the root "membrane" command with its subcommands attached.
func New() *cobra.Command {
	root := &cobra.Command{
		Use:           "membrane",
		Short:         "Inspect and exercise the object-graph membrane engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newInspectCommand())
	root.AddCommand(newDemoCommand())
	return root
}
