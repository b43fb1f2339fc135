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

import "github.com/google/uuid"

// NewAnonymousName mints a fresh graph name for callers that do not care
// to pick a human-readable one (spec.md §3 "a named namespace (identifier:
// string or opaque symbol)"). Two anonymous names are never equal.
func NewAnonymousName() string {
	return "graph:" + uuid.NewString()
}
