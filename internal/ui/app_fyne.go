//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"matlib/internal/catalog"
	"matlib/internal/config"
	"matlib/internal/crash"
	"matlib/internal/domain"
	"matlib/internal/export"
	"matlib/internal/filter"
	"matlib/internal/host"
	"matlib/internal/library"
	applog "matlib/internal/log"
	"matlib/internal/version"
)

const anyChoice = "(any)"

// Run opens the library in dir (or the remembered one) and shows the browser.
func Run(dir string, h host.Host) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI")

	cfg, err := config.Load()
	if err != nil {
		l.Warn("config not loaded, using defaults", slog.Any("err", err))
	}
	if dir == "" {
		dir = cfg.Library.Dir
	}
	prefsPath, _ := config.PrefsPath()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lib, err := library.Open(ctx, h, dir, library.Options{
		PrefsPath:     prefsPath,
		Workers:       cfg.Thumbnails.Workers,
		Queue:         cfg.Thumbnails.Queue,
		CacheMaxBytes: cfg.Thumbnails.CacheMaxBytes,
	})
	if err != nil {
		return err
	}
	defer func() { _ = lib.Close() }()
	defer crash.Recover(lib.Catalog)

	fyneApp := app.NewWithID("matlib")
	w := fyneApp.NewWindow("Material Library " + version.String())
	prefs := fyneApp.Preferences()
	w.Resize(fyne.NewSize(float32(prefs.IntWithFallback("window.width", 1100)), float32(prefs.IntWithFallback("window.height", 760))))

	b := newBrowser(lib, w)
	w.SetContent(b.content())
	unsub := lib.Catalog.Subscribe(func(catalog.Event) { fyne.Do(b.refresh) })
	defer unsub()
	go lib.DeliverThumbnails(ctx, fyne.Do)

	w.SetOnClosed(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
	})
	w.ShowAndRun()
	l.Info("UI closed")
	return nil
}

// browser is the main window: filter bar, thumbnail grid and commands on the
// selected asset.
type browser struct {
	lib      *library.Library
	win      fyne.Window
	grid     *widget.GridWrap
	status   *widget.Label
	category *widget.Select
	visible  []domain.Asset
	selected string
	l        *slog.Logger
}

func newBrowser(lib *library.Library, win fyne.Window) *browser {
	b := &browser{lib: lib, win: win, status: widget.NewLabel("Ready"), l: applog.WithComponent("ui")}
	b.grid = widget.NewGridWrap(
		func() int { return len(b.visible) },
		b.newCell,
		b.updateCell,
	)
	b.grid.OnSelected = func(id widget.GridWrapItemID) {
		if id >= 0 && id < len(b.visible) {
			b.selected = b.visible[id].ID
			b.status.SetText(describe(b.visible[id]))
		}
	}
	b.grid.OnUnselected = func(widget.GridWrapItemID) { b.selected = "" }
	b.visible = lib.Visible()
	return b
}

func (b *browser) newCell() fyne.CanvasObject {
	size := float32(b.lib.Catalog.Layout().ThumbSize)
	img := canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	img.FillMode = canvas.ImageFillContain
	img.SetMinSize(fyne.NewSize(size, size))
	name := widget.NewLabel("")
	name.Truncation = fyne.TextTruncateEllipsis
	return container.NewBorder(nil, name, nil, nil, img)
}

func (b *browser) updateCell(id widget.GridWrapItemID, o fyne.CanvasObject) {
	if id < 0 || id >= len(b.visible) {
		return
	}
	a := b.visible[id]
	c := o.(*fyne.Container)
	for _, obj := range c.Objects {
		switch v := obj.(type) {
		case *canvas.Image:
			if img, ok := b.lib.Catalog.Thumbnail(a.ID); ok {
				v.Image = img
			} else {
				v.Image = image.NewRGBA(image.Rect(0, 0, 1, 1))
			}
			v.Refresh()
		case *widget.Label:
			label := a.Name
			if a.Favorite {
				label = "* " + label
			}
			v.SetText(label)
		}
	}
}

// refresh re-evaluates the view; it must run on the fyne main goroutine.
func (b *browser) refresh() {
	b.visible = b.lib.Visible()
	if b.category != nil {
		b.category.Options = append([]string{anyChoice}, b.lib.Catalog.Categories()...)
	}
	b.grid.Refresh()
	b.status.SetText(fmt.Sprintf("%d of %d materials", len(b.visible), b.lib.Catalog.Len()))
}

func (b *browser) setFilter(attr filter.Attribute, value string) {
	if value == anyChoice {
		value = ""
	}
	if err := b.lib.View.SetFilter(attr, value); err != nil {
		b.status.SetText(err.Error())
		return
	}
	b.refresh()
}

func (b *browser) filterBar() fyne.CanvasObject {
	name := widget.NewEntry()
	name.SetPlaceHolder("Name")
	name.OnChanged = func(s string) { b.setFilter(filter.Name, s) }

	tag := widget.NewEntry()
	tag.SetPlaceHolder("Tag (=exact)")
	tag.OnChanged = func(s string) { b.setFilter(filter.Tag, s) }

	b.category = widget.NewSelect(append([]string{anyChoice}, b.lib.Catalog.Categories()...), func(s string) { b.setFilter(filter.Category, s) })
	b.category.PlaceHolder = "Category"

	renderers := []string{anyChoice}
	for _, r := range domain.Renderers {
		renderers = append(renderers, string(r))
	}
	renderer := widget.NewSelect(renderers, func(s string) { b.setFilter(filter.Renderer, s) })
	renderer.PlaceHolder = "Renderer"

	fav := widget.NewCheck("Favorites", func(on bool) {
		v := ""
		if on {
			v = "true"
		}
		b.setFilter(filter.Favorite, v)
	})

	sortBy := widget.NewSelect([]string{"name", "date", "renderer"}, func(s string) {
		if k, err := filter.ParseSortKey(s); err == nil {
			b.lib.View.Key = k
			b.refresh()
		}
	})
	sortBy.SetSelected("name")
	desc := widget.NewCheck("Descending", func(on bool) {
		b.lib.View.Descending = on
		b.refresh()
	})

	return container.NewVBox(
		container.NewGridWithColumns(5, name, tag, b.category, renderer, fav),
		container.NewHBox(widget.NewLabel("Sort"), sortBy, desc),
	)
}

func (b *browser) toolbar() *widget.Toolbar {
	return widget.NewToolbar(
		widget.NewToolbarAction(theme.DownloadIcon(), b.importSelected),
		widget.NewToolbarAction(theme.ViewRefreshIcon(), b.rerenderSelected),
		widget.NewToolbarAction(theme.MediaPlayIcon(), b.renderVisible),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ConfirmIcon(), b.toggleFavorite),
		widget.NewToolbarAction(theme.DocumentCreateIcon(), b.editSelected),
		widget.NewToolbarAction(theme.DeleteIcon(), b.deleteSelected),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), b.exportSheet),
	)
}

func (b *browser) content() fyne.CanvasObject {
	top := container.NewVBox(b.toolbar(), b.filterBar())
	b.refresh()
	return container.NewBorder(top, b.status, nil, nil, b.grid)
}

func (b *browser) report(op string, err error) {
	if err == nil {
		return
	}
	b.l.Error(op+" failed", slog.Any("err", err))
	dialog.ShowError(err, b.win)
}

func (b *browser) needSelection() (domain.Asset, bool) {
	a, ok := b.lib.Catalog.Get(b.selected)
	if !ok {
		dialog.ShowInformation("No selection", "Select a material first.", b.win)
	}
	return a, ok
}

func (b *browser) importSelected() {
	a, ok := b.needSelection()
	if !ok {
		return
	}
	res, err := b.lib.Import(context.Background(), b.lib.CurrentLocation(), a.ID)
	b.report("import", err)
	if len(res) > 0 {
		b.status.SetText("Imported " + a.Name + " to " + res[0].Node.Path)
	}
}

func (b *browser) rerenderSelected() {
	a, ok := b.needSelection()
	if !ok {
		return
	}
	b.status.SetText("Rendering " + a.Name + "...")
	b.report("rerender", b.lib.Rerender(context.Background(), a.ID))
}

func (b *browser) renderVisible() {
	b.status.SetText(fmt.Sprintf("Rendering %d materials...", len(b.visible)))
	b.report("render visible", b.lib.RenderAllVisible(context.Background()))
}

func (b *browser) toggleFavorite() {
	a, ok := b.needSelection()
	if !ok {
		return
	}
	b.report("favorite", b.lib.Catalog.SetFavorite(a.ID, !a.Favorite))
}

func (b *browser) editSelected() {
	a, ok := b.needSelection()
	if !ok {
		return
	}
	name := widget.NewEntry()
	name.SetText(a.Name)
	cats := widget.NewEntry()
	cats.SetText(a.CategoryLabel())
	tags := widget.NewEntry()
	tags.SetText(a.TagLabel())
	items := []*widget.FormItem{
		widget.NewFormItem("Name", name),
		widget.NewFormItem("Categories", cats),
		widget.NewFormItem("Tags", tags),
	}
	dialog.ShowForm("Edit material", "Save", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		c := b.lib.Catalog
		if n := strings.TrimSpace(name.Text); n != "" && n != a.Name {
			b.report("rename", c.SetName(a.ID, n))
		}
		if _, err := c.CheckAddCategory(cats.Text); err != nil {
			b.report("categories", err)
			return
		}
		b.report("categories", c.SetCategories(a.ID, domain.SplitTokens(cats.Text)))
		if _, err := c.CheckAddTag(tags.Text); err != nil {
			b.report("tags", err)
			return
		}
		b.report("tags", c.SetTags(a.ID, domain.SplitTokens(tags.Text)))
	}, b.win)
}

func (b *browser) deleteSelected() {
	a, ok := b.needSelection()
	if !ok {
		return
	}
	n, err := b.lib.Delete(a.ID)
	b.report("delete", err)
	if n > 0 {
		b.selected = ""
		b.grid.UnselectAll()
	}
}

func (b *browser) exportSheet() {
	entries := export.Entries(b.lib.Store(), b.visible)
	out := filepath.Join(b.lib.Root(), "exports", "contact-sheet.pdf")
	if err := export.ContactSheetPDF(entries, out, export.SheetOptions{Title: filepath.Base(b.lib.Root())}); err != nil {
		b.report("export", err)
		return
	}
	b.status.SetText("Contact sheet written to " + out)
}

func describe(a domain.Asset) string {
	parts := []string{a.Name, string(a.Renderer)}
	if len(a.Categories) > 0 {
		parts = append(parts, a.CategoryLabel())
	}
	if len(a.Tags) > 0 {
		parts = append(parts, "tags: "+a.TagLabel())
	}
	return strings.Join(parts, " | ")
}
