/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package materialize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"reflect"
	"testing"

	"matlib/internal/domain"
	"matlib/internal/host"
	"matlib/internal/host/hosttest"
	"matlib/internal/resolve"
	"matlib/internal/storage"
)

type fakePreview struct {
	calls []string
	err   error
}

func (f *fakePreview) Render(_ context.Context, a domain.Asset, material host.NodeRef) error {
	f.calls = append(f.calls, a.ID+"@"+material.Path)
	return f.err
}

func setup(t *testing.T) (*hosttest.Host, *storage.Store, *fakePreview, *Materializer) {
	t.Helper()
	h := hosttest.New()
	s, err := storage.Open(t.TempDir(), domain.DefaultPreferences())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	fp := &fakePreview{}
	return h, s, fp, New(h, s, fp)
}

func mustCreate(t *testing.T, h *hosttest.Host, parent host.Location, typ, name string) host.NodeRef {
	t.Helper()
	n, err := h.CreateNode(parent, typ, name)
	if err != nil {
		t.Fatalf("create %s: %v", typ, err)
	}
	return n
}

func TestSaveAndImportBuilder(t *testing.T) {
	h, s, fp, m := setup(t)
	ctx := context.Background()
	b := mustCreate(t, h, h.ShaderRoot(), "redshift_vopnet", "wood")
	mustCreate(t, h, b.Location(h.KindOf(b)), "rs_texture", "tex")
	if err := h.SetParam(b, "roughness", 0.4); err != nil {
		t.Fatal(err)
	}
	a, err := m.Save(ctx, b, domain.Asset{ID: "a1", Name: "wood"}, SaveOptions{Render: true})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if a.Renderer != domain.Redshift || !a.BuilderKind || a.USD || len(a.Hash) != 64 {
		t.Fatalf("asset = %+v", a)
	}
	for _, p := range []string{s.NetworkPath("a1"), s.InterfacePath("a1")} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("artifact %s: %v", p, err)
		}
	}
	if !reflect.DeepEqual(fp.calls, []string{"a1@/mat/wood"}) {
		t.Fatalf("preview calls = %v", fp.calls)
	}
	if err := h.DestroyNode(b); err != nil {
		t.Fatal(err)
	}

	res, err := m.Import(ctx, a, h.ShaderRoot())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Node.Path != "/mat/wood" || res.Node.Type != "redshift_vopnet" || res.Point != nil {
		t.Fatalf("result = %+v", res)
	}
	want := []string{"/mat/wood", "/mat/wood/default_output", "/mat/wood/tex"}
	if got := h.Tree(hosttest.MatRoot); !reflect.DeepEqual(got, want) {
		t.Fatalf("tree = %v", got)
	}
	if v, ok := h.Param(res.Node, "roughness"); !ok || v != 0.4 {
		t.Fatalf("roughness = %v %v", v, ok)
	}
}

func TestSaveAndImportLeaf(t *testing.T) {
	h, _, _, m := setup(t)
	ctx := context.Background()
	leaf := mustCreate(t, h, h.ShaderRoot(), domain.TypeMantraLeaf, "plastic")
	if err := h.SetParam(leaf, "basecolor", []float64{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	a, err := m.Save(ctx, leaf, domain.Asset{ID: "l1", Name: "plastic"}, SaveOptions{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if a.Renderer != domain.Mantra || a.BuilderKind {
		t.Fatalf("asset = %+v", a)
	}
	if got := h.Tree(hosttest.MatRoot); !reflect.DeepEqual(got, []string{"/mat/plastic"}) {
		t.Fatalf("wrapper left behind: %v", got)
	}
	if err := h.DestroyNode(leaf); err != nil {
		t.Fatal(err)
	}
	res, err := m.Import(ctx, a, h.ShaderRoot())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Node.Type != domain.TypeMantraLeaf || res.Node.Path != "/mat/plastic" {
		t.Fatalf("node = %+v", res.Node)
	}
	if got := h.Tree(hosttest.MatRoot); !reflect.DeepEqual(got, []string{"/mat/plastic"}) {
		t.Fatalf("tree = %v", got)
	}
	if v, ok := h.Param(res.Node, "basecolor"); !ok || fmt.Sprint(v) != "[1 0 0]" {
		t.Fatalf("basecolor = %v", v)
	}
}

func TestSaveRejectsUnsupportedNode(t *testing.T) {
	h, s, _, m := setup(t)
	n := mustCreate(t, h, h.ShaderRoot(), "cycles_material", "x")
	if _, err := m.Save(context.Background(), n, domain.Asset{ID: "u"}, SaveOptions{}); !errors.Is(err, domain.ErrUnsupportedNodeKind) {
		t.Fatalf("want ErrUnsupportedNodeKind, got %v", err)
	}
	if _, err := os.Stat(s.AssetDir()); !os.IsNotExist(err) {
		t.Fatalf("artifacts written for rejected node")
	}
}

func TestSaveNeedsColourConfig(t *testing.T) {
	h, s, fp, m := setup(t)
	h.Colour = false
	n := mustCreate(t, h, h.ShaderRoot(), "arnold_materialbuilder", "ai")
	_, err := m.Save(context.Background(), n, domain.Asset{ID: "c"}, SaveOptions{Render: true})
	if !errors.Is(err, domain.ErrMissingColorConfig) {
		t.Fatalf("want ErrMissingColorConfig, got %v", err)
	}
	if _, err := os.Stat(s.NetworkPath("c")); !os.IsNotExist(err) {
		t.Fatalf("network written despite missing config")
	}
	if len(fp.calls) != 0 {
		t.Fatalf("render attempted")
	}
	// renderers without the requirement are unaffected
	rs := mustCreate(t, h, h.ShaderRoot(), "redshift_vopnet", "rs")
	if _, err := m.Save(context.Background(), rs, domain.Asset{ID: "r"}, SaveOptions{}); err != nil {
		t.Fatalf("redshift save: %v", err)
	}
}

func TestPreviewTimeoutIsSoft(t *testing.T) {
	h, _, fp, m := setup(t)
	fp.err = fmt.Errorf("wait: %w", domain.ErrRenderTimeout)
	n := mustCreate(t, h, h.ShaderRoot(), "octane_vopnet", "oc")
	if _, err := m.Save(context.Background(), n, domain.Asset{ID: "o"}, SaveOptions{Render: true}); err != nil {
		t.Fatalf("timeout must not fail the save: %v", err)
	}
}

func TestImportUnknownRendererCreatesNothing(t *testing.T) {
	h, _, _, m := setup(t)
	before := h.NodeCount()
	_, err := m.Import(context.Background(), domain.Asset{ID: "z", Renderer: "Cycles", BuilderKind: true}, h.ShaderRoot())
	if !errors.Is(err, domain.ErrUnsupportedNodeKind) {
		t.Fatalf("want ErrUnsupportedNodeKind, got %v", err)
	}
	if h.NodeCount() != before {
		t.Fatalf("nodes created: %d -> %d", before, h.NodeCount())
	}
}

func TestImportMissingNetwork(t *testing.T) {
	h, _, _, m := setup(t)
	_, err := m.Import(context.Background(), domain.Asset{ID: "gone", Renderer: domain.Redshift, BuilderKind: true}, h.ShaderRoot())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestImportCleansUpOnFailure(t *testing.T) {
	h, s, _, m := setup(t)
	if err := s.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.NetworkPath("bad"), []byte("not a network"), 0o644); err != nil {
		t.Fatal(err)
	}
	before := h.NodeCount()
	_, err := m.Import(context.Background(), domain.Asset{ID: "bad", Renderer: domain.Redshift, BuilderKind: true, USD: true}, h.ShaderRoot())
	if err == nil {
		t.Fatalf("expected failure")
	}
	if h.NodeCount() != before {
		t.Fatalf("partial import left nodes: %v", h.Tree("/"))
	}
}

func TestImportUSDAssetIntoStage(t *testing.T) {
	h, _, _, m := setup(t)
	ctx := context.Background()
	b := mustCreate(t, h, h.ShaderRoot(), "redshift_usd_material", "usdwood")
	a, err := m.Save(ctx, b, domain.Asset{ID: "u1", Name: "usd wood"}, SaveOptions{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !a.USD {
		t.Fatalf("usd flag not recorded")
	}
	res, err := m.Import(ctx, a, h.ShaderRoot())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Point == nil || res.Point.Type != domain.TypeMaterialLib {
		t.Fatalf("no material library created: %+v", res)
	}
	if res.Node.Path != res.Point.Path+"/usd_wood" || res.Node.Type != "redshift_usd_material" {
		t.Fatalf("node = %+v", res.Node)
	}
	if _, ok := h.Lookup(hosttest.MatRoot + "/usd_wood"); ok {
		t.Fatalf("staging copy left in shader root")
	}
}

func TestUSDFlagFollowsAuthoringLocation(t *testing.T) {
	h, _, _, m := setup(t)
	ctx := context.Background()
	lib := mustCreate(t, h, h.StageRoot(), domain.TypeMaterialLib, "lib")
	libLoc := lib.Location(h.KindOf(lib))
	// both builder types also exist in shader networks
	for i, typ := range []string{"arnold_materialbuilder", domain.TypeMantraBuilder} {
		id := fmt.Sprintf("s%d", i)
		b := mustCreate(t, h, libLoc, typ, "shared_"+id)
		a, err := m.Save(ctx, b, domain.Asset{ID: id, Name: "shared " + id}, SaveOptions{})
		if err != nil {
			t.Fatalf("save %s: %v", typ, err)
		}
		if !a.USD {
			t.Fatalf("%s saved under %s: usd flag not recorded", typ, lib.Path)
		}
		res, err := m.Import(ctx, a, h.ShaderRoot())
		if err != nil {
			t.Fatalf("import %s: %v", typ, err)
		}
		if res.Plan.Rule != resolve.RuleUSDOverride {
			t.Fatalf("%s: rule = %s, want %s", typ, res.Plan.Rule, resolve.RuleUSDOverride)
		}
		if res.Point == nil || path.Dir(res.Point.Path) != hosttest.StageRoot {
			t.Fatalf("%s: no material library under the stage: %+v", typ, res)
		}
		if _, ok := h.Lookup(hosttest.MatRoot + "/shared_" + id); ok {
			t.Fatalf("%s imported into the shader network", typ)
		}
	}

	b := mustCreate(t, h, h.ShaderRoot(), "arnold_materialbuilder", "legacy")
	a, err := m.Save(ctx, b, domain.Asset{ID: "s9", Name: "legacy"}, SaveOptions{})
	if err != nil {
		t.Fatalf("save legacy: %v", err)
	}
	if a.USD {
		t.Fatalf("builder in the shader network marked usd")
	}
}

func TestNodeName(t *testing.T) {
	cases := map[string]string{
		"Brick 01":  "Brick_01",
		"  ":        "material",
		"01 rust":   "_01_rust",
		"copper-ox": "copper_ox",
	}
	for in, want := range cases {
		if got := NodeName(in); got != want {
			t.Fatalf("NodeName(%q) = %q, want %q", in, got, want)
		}
	}
}
