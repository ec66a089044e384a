/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package filter

import (
	"slices"
	"testing"
	"time"

	"matlib/internal/domain"
)

type assets []domain.Asset

func (a assets) Assets() []domain.Asset { return slices.Clone(a) }

var sample = assets{
	{ID: "1", Name: "Walnut wood", Categories: []string{"Wood"}, Tags: []string{"Dark", "polished"}, Favorite: true, Renderer: domain.Redshift, Date: time.Unix(300, 0)},
	{ID: "2", Name: "driftwood", Categories: []string{"Wood", "Outdoor"}, Tags: []string{"weathered"}, Renderer: domain.Mantra, Date: time.Unix(100, 0)},
	{ID: "3", Name: "Granite", Categories: []string{"Stone"}, Tags: []string{"dark"}, Favorite: true, Renderer: domain.Octane, Date: time.Unix(200, 0)},
	{ID: "4", Name: "brushed steel", Categories: []string{"Metal"}, Renderer: domain.Redshift, Date: time.Unix(200, 0)},
}

func ids(as []domain.Asset) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}

func TestConjunction(t *testing.T) {
	var f Filter
	if err := f.SetFilter(Name, "wood"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetFilter(Favorite, "true"); err != nil {
		t.Fatal(err)
	}
	for _, a := range sample {
		want := a.Favorite && (a.ID == "1" || a.ID == "2")
		if got := f.Evaluate(a); got != want {
			t.Fatalf("%s: got %v want %v", a.Name, got, want)
		}
	}
	_ = f.SetFilter(Name, "")
	_ = f.SetFilter(Favorite, "")
	for _, a := range sample {
		if !f.Evaluate(a) {
			t.Fatalf("cleared filter rejected %s", a.Name)
		}
	}
}

func TestZeroFilterPassesEverything(t *testing.T) {
	var f Filter
	for _, a := range sample {
		if !f.Evaluate(a) {
			t.Fatalf("rejected %s", a.Name)
		}
	}
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		attr  Attribute
		value string
		want  []string
	}{
		{Category, "Wood", []string{"1", "2"}},
		{Category, "wood", nil},
		{Tag, "dark", []string{"1", "3"}},
		{Tag, "=dark", []string{"3"}},
		{Tag, "ath", []string{"2"}},
		{Renderer, "redshift", []string{"1", "4"}},
		{Favorite, "false", []string{"2", "4"}},
		{Name, "STEEL", []string{"4"}},
	}
	for _, c := range cases {
		var f Filter
		if err := f.SetFilter(c.attr, c.value); err != nil {
			t.Fatalf("%v=%q: %v", c.attr, c.value, err)
		}
		var got []string
		for _, a := range sample {
			if f.Evaluate(a) {
				got = append(got, a.ID)
			}
		}
		if !slices.Equal(got, c.want) {
			t.Fatalf("%v=%q: got %v want %v", c.attr, c.value, got, c.want)
		}
	}
}

func TestInvalidValues(t *testing.T) {
	var f Filter
	if err := f.SetFilter(Favorite, "maybe"); err == nil {
		t.Fatalf("bad bool accepted")
	}
	if err := f.SetFilter(Renderer, "Cycles"); err == nil {
		t.Fatalf("unknown renderer accepted")
	}
	if len(f.Active()) != 0 {
		t.Fatalf("failed SetFilter left a predicate")
	}
}

func TestSortIsStableAndCaseInsensitive(t *testing.T) {
	v := View{}
	if got := ids(v.Visible(sample)); !slices.Equal(got, []string{"4", "2", "3", "1"}) {
		t.Fatalf("by name = %v", got)
	}
	v.Key = ByDate
	if got := ids(v.Visible(sample)); !slices.Equal(got, []string{"2", "4", "3", "1"}) {
		t.Fatalf("by date = %v", got)
	}
	v.Descending = true
	if got := ids(v.Visible(sample)); !slices.Equal(got, []string{"1", "3", "4", "2"}) {
		t.Fatalf("by date desc = %v", got)
	}
	v = View{Key: ByRenderer}
	if got := ids(v.Visible(sample)); !slices.Equal(got, []string{"2", "3", "4", "1"}) {
		t.Fatalf("by renderer = %v", got)
	}

	dup := []domain.Asset{{ID: "a", Name: "same"}, {ID: "b", Name: "SAME"}, {ID: "c", Name: "Same"}}
	Sort(dup, ByName, false)
	if got := ids(dup); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("unstable: %v", got)
	}
}

func TestViewDoesNotMutateSource(t *testing.T) {
	src := slices.Clone(sample)
	v := View{Key: ByName}
	_ = v.SetFilter(Renderer, "Redshift")
	_ = v.Visible(assets(src))
	if !slices.EqualFunc(src, sample, func(a, b domain.Asset) bool { return a.ID == b.ID }) {
		t.Fatalf("source reordered")
	}
}

func TestParse(t *testing.T) {
	if a, err := ParseAttribute(" Tag "); err != nil || a != Tag {
		t.Fatalf("ParseAttribute = %v %v", a, err)
	}
	if _, err := ParseAttribute("colour"); err == nil {
		t.Fatalf("unknown attribute accepted")
	}
	if k, err := ParseSortKey("date"); err != nil || k != ByDate {
		t.Fatalf("ParseSortKey = %v %v", k, err)
	}
}
