//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// These tests validate the Fyne-based browser. They are gated behind the
// "fyne" build tag so CI (which is headless) does not need Fyne or a display.
// To run locally:
//
//	go test -tags fyne ./internal/ui
package ui

import (
	"context"
	"testing"

	"fyne.io/fyne/v2/test"

	"matlib/internal/domain"
	"matlib/internal/filter"
	"matlib/internal/host"
	"matlib/internal/host/hosttest"
	"matlib/internal/library"
	"matlib/internal/storage"
)

func testBrowser(t *testing.T) (*browser, *library.Library) {
	t.Helper()
	test.NewApp()
	h := hosttest.New()
	h.Render = hosttest.Signal
	root := t.TempDir()
	if _, err := storage.Seed(root, domain.DefaultPreferences()); err != nil {
		t.Fatal(err)
	}
	lib, err := library.Open(context.Background(), h, root, library.Options{NoCache: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close() })
	var nodes []host.NodeRef
	for _, n := range []string{"oak", "slate"} {
		ref, err := h.CreateNode(h.ShaderRoot(), "redshift_vopnet", n)
		if err != nil {
			t.Fatal(err)
		}
		nodes = append(nodes, ref)
	}
	if _, err := lib.Save(context.Background(), nodes, "Wood", "", false); err != nil {
		t.Fatal(err)
	}
	w := test.NewWindow(nil)
	t.Cleanup(w.Close)
	b := newBrowser(lib, w)
	w.SetContent(b.content())
	return b, lib
}

func TestBrowserShowsVisibleAssets(t *testing.T) {
	b, _ := testBrowser(t)
	if len(b.visible) != 2 || b.grid.Length() != 2 {
		t.Fatalf("visible = %d, grid = %d", len(b.visible), b.grid.Length())
	}
	if b.status.Text != "2 of 2 materials" {
		t.Fatalf("status = %q", b.status.Text)
	}
}

func TestBrowserFilterNarrowsGrid(t *testing.T) {
	b, _ := testBrowser(t)
	b.setFilter(filter.Name, "sla")
	if len(b.visible) != 1 || b.visible[0].Name != "slate" {
		t.Fatalf("visible = %+v", b.visible)
	}
	b.setFilter(filter.Name, anyChoice)
	if len(b.visible) != 2 {
		t.Fatalf("clearing filter: visible = %d", len(b.visible))
	}
}

func TestBrowserToggleFavorite(t *testing.T) {
	b, lib := testBrowser(t)
	b.grid.Select(0)
	id := b.selected
	if id == "" {
		t.Fatalf("nothing selected")
	}
	b.toggleFavorite()
	a, _ := lib.Catalog.Get(id)
	if !a.Favorite {
		t.Fatalf("favorite not set")
	}
}
