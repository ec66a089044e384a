/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "strings"

// SplitTokens turns comma-delimited free text into tokens: surrounding spaces are
// trimmed, empty tokens dropped and duplicates (case-sensitive) removed, keeping the
// first occurrence order.
func SplitTokens(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ",") {
		out = AppendUnique(out, part)
	}
	return out
}

// AppendUnique appends the trimmed token when it is non-empty and not present yet.
func AppendUnique(set []string, token string) []string {
	token = strings.TrimSpace(token)
	if token == "" {
		return set
	}
	for _, s := range set {
		if s == token {
			return set
		}
	}
	return append(set, token)
}

// Normalize applies SplitTokens semantics to an already split list.
func Normalize(tokens []string) []string {
	var out []string
	for _, t := range tokens {
		out = AppendUnique(out, t)
	}
	return out
}

// Without returns set minus token. The input slice is not modified.
func Without(set []string, token string) []string {
	out := make([]string, 0, len(set))
	for _, s := range set {
		if s != token {
			out = append(out, s)
		}
	}
	return out
}

// Replace substitutes old with repl, collapsing a duplicate when repl is already present.
func Replace(set []string, old, repl string) []string {
	var out []string
	for _, s := range set {
		if s == old {
			s = repl
		}
		out = AppendUnique(out, s)
	}
	return out
}
