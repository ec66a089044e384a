/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package catalog

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
	"time"

	"matlib/internal/domain"
	"matlib/internal/host"
	"matlib/internal/materialize"
	"matlib/internal/storage"
)

// stubSerializer records the assets it was asked to save.
type stubSerializer struct {
	hash  string
	err   error
	saves []materialize.SaveOptions
}

func (s *stubSerializer) Save(_ context.Context, node host.NodeRef, draft domain.Asset, opts materialize.SaveOptions) (domain.Asset, error) {
	s.saves = append(s.saves, opts)
	if s.err != nil {
		return domain.Asset{}, s.err
	}
	c, err := domain.Classify(node.Type)
	if err != nil {
		return domain.Asset{}, err
	}
	a := draft.Clone()
	a.Renderer, a.BuilderKind, a.USD, a.Hash = c.Renderer, c.BuilderKind, c.USD, s.hash
	return a, nil
}

func newCatalog(t *testing.T) (*Catalog, *stubSerializer) {
	t.Helper()
	s, err := storage.Seed(t.TempDir(), domain.DefaultPreferences())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	ser := &stubSerializer{hash: "h1"}
	c := New(s, ser)
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return c, ser
}

func add(t *testing.T, c *Catalog, name, cats, tags string, fav bool) domain.Asset {
	t.Helper()
	a, err := c.AddAsset(context.Background(), host.NodeRef{Path: "/mat/" + name, Name: name, Type: "redshift_vopnet"}, cats, tags, fav)
	if err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
	return a
}

func reload(t *testing.T, c *Catalog) *Catalog {
	t.Helper()
	s, err := storage.Open(c.Store().Root, domain.DefaultPreferences())
	if err != nil {
		t.Fatal(err)
	}
	c2 := New(s, nil)
	if err := c2.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	return c2
}

func TestCheckAddIsIdempotent(t *testing.T) {
	inputs := []string{"", "Wood", "Wood, Stone", " a ,, b ,a", ",,,", "Metal,metal", "x,y,z,x"}
	for _, in := range inputs {
		c, _ := newCatalog(t)
		if _, err := c.CheckAddCategory(in); err != nil {
			t.Fatalf("first %q: %v", in, err)
		}
		once := c.Categories()
		added, err := c.CheckAddCategory(in)
		if err != nil {
			t.Fatalf("second %q: %v", in, err)
		}
		if len(added) != 0 || !slices.Equal(once, c.Categories()) {
			t.Fatalf("%q not idempotent: %v then %v", in, once, c.Categories())
		}
		if _, err := c.CheckAddTag(in); err != nil {
			t.Fatal(err)
		}
		tagsOnce := c.Tags()
		_, _ = c.CheckAddTag(in)
		if !slices.Equal(tagsOnce, c.Tags()) {
			t.Fatalf("tags %q not idempotent", in)
		}
		if slices.Contains(c.Categories(), "") {
			t.Fatalf("empty category accepted for %q", in)
		}
	}
}

func TestCheckAddNormalizes(t *testing.T) {
	c, _ := newCatalog(t)
	added, err := c.CheckAddCategory(" Wood ,Stone,,Wood, stone")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Wood", "Stone", "stone"}
	if !slices.Equal(added, want) || !slices.Equal(c.Categories(), want) {
		t.Fatalf("added %v, vocabulary %v", added, c.Categories())
	}
}

func TestRemoveCategoryClearsEveryAsset(t *testing.T) {
	c, _ := newCatalog(t)
	add(t, c, "a", "Wood,Stone", "", false)
	add(t, c, "b", "Stone", "", false)
	add(t, c, "c", "Metal", "", false)
	if err := c.RemoveCategory("Stone"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	for _, cat := range [][]domain.Asset{c.Assets(), reload(t, c).Assets()} {
		for _, a := range cat {
			if a.HasCategory("Stone") {
				t.Fatalf("%s still has Stone", a.Name)
			}
		}
	}
	if slices.Contains(c.Categories(), "Stone") {
		t.Fatalf("vocabulary still has Stone")
	}
}

func TestRenameCategoryMerges(t *testing.T) {
	c, _ := newCatalog(t)
	a := add(t, c, "a", "Wood,Timber", "", false)
	if err := c.RenameCategory("Timber", "Wood"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, _ := c.Get(a.ID)
	if !slices.Equal(got.Categories, []string{"Wood"}) || !slices.Equal(c.Categories(), []string{"Wood"}) {
		t.Fatalf("asset %v vocabulary %v", got.Categories, c.Categories())
	}
	if err := c.RenameCategory("Nope", "X"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := c.RenameCategory("Wood", " "); err == nil {
		t.Fatalf("empty name accepted")
	}
}

func TestTagVocabulary(t *testing.T) {
	c, _ := newCatalog(t)
	a := add(t, c, "a", "", "rough,aged", false)
	if err := c.RemoveTag("rough"); err != nil {
		t.Fatal(err)
	}
	got, _ := c.Get(a.ID)
	if !got.HasTag("rough") || slices.Contains(c.Tags(), "rough") {
		t.Fatalf("remove tag: asset %v vocabulary %v", got.Tags, c.Tags())
	}
	if err := c.RenameTag("aged", "old"); err != nil {
		t.Fatal(err)
	}
	got, _ = c.Get(a.ID)
	if !slices.Equal(got.Tags, []string{"rough", "old"}) || !slices.Equal(c.Tags(), []string{"old"}) {
		t.Fatalf("rename tag: asset %v vocabulary %v", got.Tags, c.Tags())
	}
}

func TestRoundTrip(t *testing.T) {
	c, _ := newCatalog(t)
	add(t, c, "wood", "Wood", "rough", true)
	add(t, c, "stone", "Stone,Wood", "", false)
	if _, err := c.CheckAddTag("glossy"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetLayout(Layout{ThumbSize: 96, RenderSize: 300, RenderOnImport: true}); err != nil {
		t.Fatal(err)
	}
	if err := c.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	c2 := reload(t, c)
	if !reflect.DeepEqual(c.Assets(), c2.Assets()) {
		t.Fatalf("assets differ:\n%+v\n%+v", c.Assets(), c2.Assets())
	}
	if !slices.Equal(c.Categories(), c2.Categories()) || !slices.Equal(c.Tags(), c2.Tags()) {
		t.Fatalf("vocabularies differ")
	}
	if c.Layout() != c2.Layout() {
		t.Fatalf("layout %+v vs %+v", c.Layout(), c2.Layout())
	}
}

func TestMutatorsPersist(t *testing.T) {
	c, _ := newCatalog(t)
	a := add(t, c, "wood", "", "", false)
	when := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	steps := []error{
		c.SetName(a.ID, "Oak"),
		c.SetCategories(a.ID, []string{"Wood", " Tree ", "Wood"}),
		c.SetTags(a.ID, []string{"brown"}),
		c.SetFavorite(a.ID, true),
		c.TouchDate(a.ID, when),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	got, _ := reload(t, c).Get(a.ID)
	if got.Name != "Oak" || !slices.Equal(got.Categories, []string{"Wood", "Tree"}) ||
		!slices.Equal(got.Tags, []string{"brown"}) || !got.Favorite || !got.Date.Equal(when) {
		t.Fatalf("persisted = %+v", got)
	}
	if !slices.Contains(c.Categories(), "Tree") {
		t.Fatalf("assigned category not in vocabulary")
	}
	if err := c.SetName("missing", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRemoveAssetIsIdempotent(t *testing.T) {
	c, _ := newCatalog(t)
	a := add(t, c, "a", "Wood", "", false)
	if err := c.RemoveAsset("unknown"); err != nil {
		t.Fatalf("unknown id: %v", err)
	}
	if err := c.RemoveAsset(a.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := c.RemoveAsset(a.ID); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if c.Len() != 0 || reload(t, c).Len() != 0 {
		t.Fatalf("row survived")
	}
	if !slices.Contains(c.Categories(), "Wood") {
		t.Fatalf("delete must keep the vocabulary")
	}
}

func TestAddAssetFailureAddsNothing(t *testing.T) {
	c, ser := newCatalog(t)
	_, err := c.AddAsset(context.Background(), host.NodeRef{Name: "x", Type: "cycles_material"}, "A", "", false)
	if !errors.Is(err, domain.ErrUnsupportedNodeKind) {
		t.Fatalf("want ErrUnsupportedNodeKind, got %v", err)
	}
	ser.err = domain.ErrMissingColorConfig
	if _, err := c.AddAsset(context.Background(), host.NodeRef{Name: "y", Type: "arnold_materialbuilder"}, "", "", false); !errors.Is(err, domain.ErrMissingColorConfig) {
		t.Fatalf("want ErrMissingColorConfig, got %v", err)
	}
	if c.Len() != 0 || len(c.Categories()) != 0 {
		t.Fatalf("failed add left state: %d rows, %v", c.Len(), c.Categories())
	}
}

func TestIDsAreUniqueAndOrdered(t *testing.T) {
	c, _ := newCatalog(t)
	var ids []string
	for i := 0; i < 20; i++ {
		ids = append(ids, add(t, c, "m", "", "", false).ID)
	}
	if !slices.IsSorted(ids) {
		t.Fatalf("ids not time ordered: %v", ids)
	}
	if len(slices.Compact(slices.Clone(ids))) != len(ids) {
		t.Fatalf("duplicate ids")
	}
}

func TestUndoRedo(t *testing.T) {
	c, _ := newCatalog(t)
	a := add(t, c, "wood", "", "", false)
	_ = c.SetName(a.ID, "Oak")
	_ = c.SetFavorite(a.ID, true)
	if ok, err := c.Undo(a.ID); !ok || err != nil {
		t.Fatalf("undo: %v %v", ok, err)
	}
	got, _ := c.Get(a.ID)
	if got.Name != "Oak" || got.Favorite {
		t.Fatalf("after one undo: %+v", got)
	}
	_, _ = c.Undo(a.ID)
	got, _ = reload(t, c).Get(a.ID)
	if got.Name != "wood" {
		t.Fatalf("undo not persisted: %+v", got)
	}
	if ok, _ := c.Undo(a.ID); ok {
		t.Fatalf("undo past the first edit")
	}
	if ok, err := c.Redo(a.ID); !ok || err != nil {
		t.Fatalf("redo: %v %v", ok, err)
	}
	got, _ = c.Get(a.ID)
	if got.Name != "Oak" {
		t.Fatalf("after redo: %+v", got)
	}
}

func TestResaveRefreshesDateOnlyOnChange(t *testing.T) {
	c, ser := newCatalog(t)
	a := add(t, c, "wood", "", "", false)
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := c.TouchDate(a.ID, old); err != nil {
		t.Fatal(err)
	}
	node := host.NodeRef{Path: "/mat/wood", Name: "wood", Type: "redshift_vopnet"}
	got, err := c.Resave(context.Background(), a.ID, node, true)
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	if !got.Date.Equal(old) {
		t.Fatalf("date refreshed without change")
	}
	if last := ser.saves[len(ser.saves)-1]; last.Render {
		t.Fatalf("passive resave rendered with renderOnImport off")
	}
	ser.hash = "h2"
	got, err = c.Resave(context.Background(), a.ID, node, false)
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	if !got.Date.After(old) || got.Hash != "h2" {
		t.Fatalf("changed resave = %+v", got)
	}
	if _, err := c.Resave(context.Background(), a.ID, host.NodeRef{Type: "octane_vopnet"}, false); !errors.Is(err, domain.ErrUnsupportedNodeKind) {
		t.Fatalf("renderer change accepted: %v", err)
	}
}

func TestEventsAndThumbnails(t *testing.T) {
	c, _ := newCatalog(t)
	var got []EventKind
	cancel := c.Subscribe(func(e Event) { got = append(got, e.Kind) })
	a := add(t, c, "wood", "", "", false)
	if _, ok := c.ThumbnailAt(0); ok {
		t.Fatalf("slot should start empty")
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	c.SetThumbnail(a.ID, img)
	if got, ok := c.ThumbnailAt(0); !ok || got != img {
		t.Fatalf("slot not filled")
	}
	_ = c.SetFavorite(a.ID, true)
	_ = c.RemoveAsset(a.ID)
	if _, ok := c.Thumbnail(a.ID); ok {
		t.Fatalf("slot survived delete")
	}
	cancel()
	_ = c.Load()
	want := []EventKind{Added, Thumbnail, Changed, Removed}
	if !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestLoadFailureKeepsState(t *testing.T) {
	c, _ := newCatalog(t)
	add(t, c, "wood", "", "", false)
	s, _ := storage.Open(t.TempDir(), domain.DefaultPreferences())
	c.store = s
	if err := c.Load(); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("failed load changed the catalog")
	}
}

func TestLateThumbnailForRemovedAsset(t *testing.T) {
	c, _ := newCatalog(t)
	a := add(t, c, "wood", "", "", false)
	if err := c.RemoveAsset(a.ID); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	c.SetThumbnail(a.ID, img)
	if _, ok := c.Thumbnail(a.ID); ok {
		t.Fatalf("slot of removed asset refilled")
	}
	// results may still precede the row of a new asset
	c.SetThumbnail("pending", img)
	if _, ok := c.Thumbnail("pending"); !ok {
		t.Fatalf("early result dropped")
	}
}

func TestSetCategoriesWritesRowAndVocabularyOnce(t *testing.T) {
	c, _ := newCatalog(t)
	a := add(t, c, "wood", "Wood", "", false)
	root := c.Store().Root
	before, err := storage.Backups(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetCategories(a.ID, []string{"Wood", "Stone"}); err != nil {
		t.Fatalf("set categories: %v", err)
	}
	after, _ := storage.Backups(root)
	if len(after) != len(before)+1 {
		t.Fatalf("document written %d times, want 1", len(after)-len(before))
	}
	c2 := reload(t, c)
	got, _ := c2.Get(a.ID)
	if !reflect.DeepEqual(got.Categories, []string{"Wood", "Stone"}) || !slices.Contains(c2.Categories(), "Stone") {
		t.Fatalf("reloaded row %v, vocabulary %v", got.Categories, c2.Categories())
	}
}

func TestSetTagsWriteFailureChangesNothing(t *testing.T) {
	c, _ := newCatalog(t)
	a := add(t, c, "wood", "Wood", "oak", false)
	// a non-empty directory in place of the document makes every save fail
	doc := c.Store().DocPath
	if err := os.Remove(doc); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(doc, "blocker"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := c.SetTags(a.ID, []string{"oak", "rough"}); err == nil {
		t.Fatalf("expected write failure")
	}
	if err := c.SetCategories(a.ID, []string{"Stone"}); err == nil {
		t.Fatalf("expected write failure")
	}
	got, _ := c.Get(a.ID)
	if !reflect.DeepEqual(got.Tags, []string{"oak"}) || !reflect.DeepEqual(got.Categories, []string{"Wood"}) {
		t.Fatalf("row changed: %+v", got)
	}
	if slices.Contains(c.Tags(), "rough") || slices.Contains(c.Categories(), "Stone") {
		t.Fatalf("vocabulary changed: %v %v", c.Tags(), c.Categories())
	}
}
