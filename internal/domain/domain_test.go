/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestSplitTokensNormalizes(t *testing.T) {
	got := SplitTokens("  Wood, Stone ,,Wood,  ,stone")
	want := []string{"Wood", "Stone", "stone"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitTokens = %v, want %v", got, want)
	}
	if SplitTokens("") != nil {
		t.Fatalf("empty input should yield no tokens")
	}
}

func TestReplaceCollapsesDuplicates(t *testing.T) {
	got := Replace([]string{"Wood", "Timber", "Stone"}, "Timber", "Wood")
	if !reflect.DeepEqual(got, []string{"Wood", "Stone"}) {
		t.Fatalf("Replace = %v", got)
	}
}

func TestNewAssetIDIsOrdered(t *testing.T) {
	prev := NewAssetID()
	for i := 0; i < 200; i++ {
		next := NewAssetID()
		if next <= prev {
			t.Fatalf("id %q not after %q", next, prev)
		}
		prev = next
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		typ     string
		want    Renderer
		builder bool
		usd     bool
	}{
		{"redshift_vopnet", Redshift, true, false},
		{"redshift_usd_material", Redshift, true, true},
		{"octane_vopnet", Octane, true, false},
		{"arnold_materialbuilder", Arnold, true, false},
		{"karmamaterial", MaterialX, true, true},
		{TypeMantraBuilder, Mantra, true, false},
		{TypeMantraLeaf, Mantra, false, false},
	}
	for _, c := range cases {
		got, err := Classify(c.typ)
		if err != nil {
			t.Fatalf("Classify(%q): %v", c.typ, err)
		}
		if got.Renderer != c.want || got.BuilderKind != c.builder || got.USD != c.usd {
			t.Fatalf("Classify(%q) = %+v", c.typ, got)
		}
	}
	if _, err := Classify("geo"); !errors.Is(err, ErrUnsupportedNodeKind) {
		t.Fatalf("expected ErrUnsupportedNodeKind, got %v", err)
	}
}

func TestRendererTablesCoverEveryKind(t *testing.T) {
	for _, r := range Renderers {
		if !r.Valid() {
			t.Fatalf("%s not valid", r)
		}
		if _, err := BuilderType(r, false); err != nil {
			t.Fatalf("BuilderType(%s): %v", r, err)
		}
		if _, err := RopType(r); err != nil {
			t.Fatalf("RopType(%s): %v", r, err)
		}
	}
	if Renderer("VRay").Valid() {
		t.Fatalf("unknown renderer must not be valid")
	}
	if _, err := ParseRenderer("redshift"); err != nil {
		t.Fatalf("ParseRenderer should be case-insensitive: %v", err)
	}
}

func TestDocumentKeepsUnknownFields(t *testing.T) {
	in := []byte(`{"assets":[],"categories":["Wood"],"tags":[],"thumbsize":96,"rendersize":256,"renderOnImport":true,"layoutVersion":3}`)
	var d Document
	if err := json.Unmarshal(in, &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.ThumbSize != 96 || !d.RenderOnImport || len(d.Categories) != 1 {
		t.Fatalf("known fields lost: %+v", d)
	}
	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	_ = json.Unmarshal(out, &m)
	if m["layoutVersion"] != float64(3) {
		t.Fatalf("unknown field dropped: %s", out)
	}
}

func TestDocumentValidateRejectsDuplicateIDs(t *testing.T) {
	d := NewDocument()
	d.Assets = []Asset{{ID: "a"}, {ID: "a"}}
	if err := d.Validate(); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestIOErrorMatchesBoth(t *testing.T) {
	base := errors.New("disk full")
	err := IOError("write catalog", base)
	if !errors.Is(err, ErrIO) || !errors.Is(err, base) {
		t.Fatalf("IOError should match ErrIO and cause: %v", err)
	}
}
