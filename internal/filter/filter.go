/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package filter is the read-through filter and sort view over the catalog. It
// never mutates the catalog; View projects a snapshot of its rows.
package filter

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"matlib/internal/domain"
)

// Attribute is a filterable asset attribute.
type Attribute int

const (
	Name     Attribute = iota // case-insensitive substring of the name
	Category                  // exact category membership
	Tag                       // case-insensitive tag substring, "=value" for exact
	Favorite                  // "true"/"false"
	Renderer                  // renderer kind, case-insensitive
)

var attributeNames = map[Attribute]string{
	Name: "name", Category: "category", Tag: "tag", Favorite: "favorite", Renderer: "renderer",
}

func (a Attribute) String() string {
	if s, ok := attributeNames[a]; ok {
		return s
	}
	return "attribute(" + strconv.Itoa(int(a)) + ")"
}

// ParseAttribute maps a name such as "tag" to its Attribute.
func ParseAttribute(s string) (Attribute, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, n := range attributeNames {
		if n == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown filter attribute %q", s)
}

// exactPrefix switches the tag predicate to exact equality.
const exactPrefix = "="

type predicate func(domain.Asset) bool

// Filter holds at most one active predicate per attribute. The zero value has no
// predicates and passes every asset.
type Filter struct {
	values map[Attribute]string
	preds  map[Attribute]predicate
}

// SetFilter replaces the predicate of attr. An empty value clears it.
func (f *Filter) SetFilter(attr Attribute, value string) error {
	if f.preds == nil {
		f.preds = map[Attribute]predicate{}
		f.values = map[Attribute]string{}
	}
	if strings.TrimSpace(value) == "" {
		delete(f.preds, attr)
		delete(f.values, attr)
		return nil
	}
	p, err := compile(attr, value)
	if err != nil {
		return err
	}
	f.preds[attr] = p
	f.values[attr] = value
	return nil
}

// Clear removes every predicate.
func (f *Filter) Clear() {
	f.preds = nil
	f.values = nil
}

// Active returns the current filter values by attribute.
func (f *Filter) Active() map[Attribute]string {
	out := make(map[Attribute]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Evaluate reports whether a passes every active predicate.
func (f *Filter) Evaluate(a domain.Asset) bool {
	for _, p := range f.preds {
		if !p(a) {
			return false
		}
	}
	return true
}

func compile(attr Attribute, value string) (predicate, error) {
	v := strings.TrimSpace(value)
	switch attr {
	case Name:
		needle := strings.ToLower(v)
		return func(a domain.Asset) bool { return strings.Contains(strings.ToLower(a.Name), needle) }, nil
	case Category:
		return func(a domain.Asset) bool { return a.HasCategory(v) }, nil
	case Tag:
		if exact, ok := strings.CutPrefix(v, exactPrefix); ok {
			return func(a domain.Asset) bool { return a.HasTag(exact) }, nil
		}
		needle := strings.ToLower(v)
		return func(a domain.Asset) bool {
			return slices.ContainsFunc(a.Tags, func(t string) bool { return strings.Contains(strings.ToLower(t), needle) })
		}, nil
	case Favorite:
		want, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("favorite filter %q: %w", value, err)
		}
		return func(a domain.Asset) bool { return a.Favorite == want }, nil
	case Renderer:
		r, err := domain.ParseRenderer(v)
		if err != nil {
			return nil, err
		}
		return func(a domain.Asset) bool { return a.Renderer == r }, nil
	}
	return nil, fmt.Errorf("unknown filter attribute %d", int(attr))
}

// SortKey selects the sort order of a view.
type SortKey int

const (
	ByName SortKey = iota
	ByDate
	ByRenderer
)

// ParseSortKey maps "name", "date" or "renderer" to a SortKey.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "name":
		return ByName, nil
	case "date":
		return ByDate, nil
	case "renderer":
		return ByRenderer, nil
	}
	return 0, fmt.Errorf("unknown sort key %q", s)
}

// Sort orders assets in place. The sort is stable; names compare
// case-insensitively and break ties for the other keys.
func Sort(assets []domain.Asset, key SortKey, descending bool) {
	byName := func(a, b domain.Asset) int { return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)) }
	var f func(a, b domain.Asset) int
	switch key {
	case ByDate:
		f = func(a, b domain.Asset) int {
			if c := a.Date.Compare(b.Date); c != 0 {
				return c
			}
			return byName(a, b)
		}
	case ByRenderer:
		f = func(a, b domain.Asset) int {
			if c := cmp.Compare(a.Renderer, b.Renderer); c != 0 {
				return c
			}
			return byName(a, b)
		}
	default:
		f = byName
	}
	if descending {
		slices.SortStableFunc(assets, func(a, b domain.Asset) int { return -f(a, b) })
		return
	}
	slices.SortStableFunc(assets, f)
}

// Source is what a view projects. *catalog.Catalog implements it.
type Source interface {
	Assets() []domain.Asset
}

// View combines a filter with a sort order.
type View struct {
	Filter
	Key        SortKey
	Descending bool
}

// Visible returns the sorted assets of src that pass the filter.
func (v *View) Visible(src Source) []domain.Asset {
	all := src.Assets()
	out := make([]domain.Asset, 0, len(all))
	for _, a := range all {
		if v.Evaluate(a) {
			out = append(out, a)
		}
	}
	Sort(out, v.Key, v.Descending)
	return out
}

// VisibleIDs returns the ids of Visible in order.
func (v *View) VisibleIDs(src Source) []string {
	vis := v.Visible(src)
	ids := make([]string, len(vis))
	for i, a := range vis {
		ids[i] = a.ID
	}
	return ids
}
