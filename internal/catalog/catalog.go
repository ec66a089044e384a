/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package catalog is the observable, ordered collection of assets of an open
// library. Every mutator persists the whole catalog document through the store
// before it returns; observers are notified afterwards.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync"
	"time"

	"matlib/internal/domain"
	"matlib/internal/host"
	applog "matlib/internal/log"
	"matlib/internal/materialize"
	"matlib/internal/storage"
	"matlib/internal/undo"
)

// Serializer writes the artifacts of a node. *materialize.Materializer implements it.
type Serializer interface {
	Save(ctx context.Context, node host.NodeRef, draft domain.Asset, opts materialize.SaveOptions) (domain.Asset, error)
}

// EventKind tells observers what changed.
type EventKind int

const (
	Added EventKind = iota
	Removed
	Changed
	Thumbnail
	Reset
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Changed:
		return "changed"
	case Thumbnail:
		return "thumbnail"
	default:
		return "reset"
	}
}

// Event is delivered to observers. Row is the asset's row at the time of the event,
// -1 for Reset and for rows that no longer exist.
type Event struct {
	Kind EventKind
	ID   string
	Row  int
}

// Catalog holds the in-memory collection. It is safe for concurrent use, but the
// design assumes one interactive writer; concurrent writers get last-writer-wins.
type Catalog struct {
	mu    sync.RWMutex
	store *storage.Store
	ser   Serializer
	undo  *undo.Manager
	log   *slog.Logger

	assets         []domain.Asset
	categories     []string
	tags           []string
	thumbSize      int
	renderSize     int
	renderOnImport bool
	extra          map[string]json.RawMessage

	thumbs map[string]image.Image
	// removed holds deleted ids so late worker results do not refill their slots.
	removed map[string]struct{}

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// New returns an empty catalog bound to store. ser may be nil for catalogs that
// never create assets (read-only tooling).
func New(store *storage.Store, ser Serializer) *Catalog {
	doc := domain.NewDocument()
	return &Catalog{
		store:      store,
		ser:        ser,
		undo:       undo.NewManager(undo.Config{}),
		log:        applog.WithComponent("catalog"),
		assets:     doc.Assets,
		categories: doc.Categories,
		tags:       doc.Tags,
		thumbSize:  doc.ThumbSize,
		renderSize: doc.RenderSize,
		thumbs:     map[string]image.Image{},
		removed:    map[string]struct{}{},
		subs:       map[int]func(Event){},
	}
}

// SetSerializer replaces the serializer used by AddAsset and Resave.
func (c *Catalog) SetSerializer(s Serializer) {
	c.mu.Lock()
	c.ser = s
	c.mu.Unlock()
}

// Store returns the backing store.
func (c *Catalog) Store() *storage.Store { return c.store }

// Subscribe registers fn for catalog events and returns a function removing it.
// fn runs on the goroutine that made the change, after the catalog lock is released.
func (c *Catalog) Subscribe(fn func(Event)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Catalog) emit(events ...Event) {
	c.subMu.Lock()
	fns := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, e := range events {
		for _, fn := range fns {
			fn(e)
		}
	}
}

// Load replaces the catalog with the store's document. On NotFound or Corrupt the
// current contents are left as they were.
func (c *Catalog) Load() error {
	doc, err := c.store.Load()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.assets = doc.Assets
	c.categories = doc.Categories
	c.tags = doc.Tags
	c.thumbSize = doc.ThumbSize
	c.renderSize = doc.RenderSize
	c.renderOnImport = doc.RenderOnImport
	c.extra = doc.Extra
	c.thumbs = map[string]image.Image{}
	c.mu.Unlock()
	c.undo.Reset()
	c.log.Info("catalog loaded", slog.Int("assets", len(doc.Assets)))
	c.emit(Event{Kind: Reset, Row: -1})
	return nil
}

// Save writes the full in-memory state to the catalog document.
func (c *Catalog) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveLocked()
}

func (c *Catalog) saveLocked() error {
	doc := domain.Document{
		Assets:         make([]domain.Asset, len(c.assets)),
		Categories:     slices.Clone(c.categories),
		Tags:           slices.Clone(c.tags),
		ThumbSize:      c.thumbSize,
		RenderSize:     c.renderSize,
		RenderOnImport: c.renderOnImport,
		Extra:          c.extra,
	}
	for i, a := range c.assets {
		doc.Assets[i] = a.Clone()
	}
	if err := c.store.Save(doc); err != nil {
		c.log.Error("catalog save failed", slog.Any("err", err))
		return err
	}
	return nil
}

// Len returns the number of rows.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.assets)
}

// Assets returns a copy of all rows in catalog order.
func (c *Catalog) Assets() []domain.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Asset, len(c.assets))
	for i, a := range c.assets {
		out[i] = a.Clone()
	}
	return out
}

// At returns the asset in row i.
func (c *Catalog) At(i int) (domain.Asset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.assets) {
		return domain.Asset{}, false
	}
	return c.assets[i].Clone(), true
}

// Get returns the asset with id.
func (c *Catalog) Get(id string) (domain.Asset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.rowLocked(id)
	if i < 0 {
		return domain.Asset{}, false
	}
	return c.assets[i].Clone(), true
}

// Row returns the row of id, or -1.
func (c *Catalog) Row(id string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rowLocked(id)
}

func (c *Catalog) rowLocked(id string) int {
	return slices.IndexFunc(c.assets, func(a domain.Asset) bool { return a.ID == id })
}

// Categories returns the category vocabulary.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.categories)
}

// Tags returns the tag vocabulary.
func (c *Catalog) Tags() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.tags)
}

// Layout holds the layout preferences stored in the catalog document.
type Layout struct {
	ThumbSize      int
	RenderSize     int
	RenderOnImport bool
}

// Layout returns the current layout preferences.
func (c *Catalog) Layout() Layout {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Layout{ThumbSize: c.thumbSize, RenderSize: c.renderSize, RenderOnImport: c.renderOnImport}
}

// SetLayout updates and persists the layout preferences.
func (c *Catalog) SetLayout(l Layout) error {
	if l.ThumbSize <= 0 || l.RenderSize <= 0 {
		return fmt.Errorf("layout sizes must be positive: %+v", l)
	}
	c.mu.Lock()
	prev := Layout{ThumbSize: c.thumbSize, RenderSize: c.renderSize, RenderOnImport: c.renderOnImport}
	c.thumbSize, c.renderSize, c.renderOnImport = l.ThumbSize, l.RenderSize, l.RenderOnImport
	if err := c.saveLocked(); err != nil {
		c.thumbSize, c.renderSize, c.renderOnImport = prev.ThumbSize, prev.RenderSize, prev.RenderOnImport
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	c.emit(Event{Kind: Reset, Row: -1})
	return nil
}

// AddAsset serializes node into a new asset named after it, appends the row and
// persists. The node must classify into the renderer set, see materialize.Save.
func (c *Catalog) AddAsset(ctx context.Context, node host.NodeRef, categories, tags string, favorite bool) (domain.Asset, error) {
	c.mu.RLock()
	ser := c.ser
	c.mu.RUnlock()
	if ser == nil {
		return domain.Asset{}, errors.New("catalog has no serializer")
	}
	draft := domain.Asset{
		ID:         domain.NewAssetID(),
		Name:       node.Name,
		Categories: domain.SplitTokens(categories),
		Tags:       domain.SplitTokens(tags),
		Favorite:   favorite,
	}
	l := applog.WithAsset(applog.WithOperation(c.log, "add"), draft.ID)
	a, err := ser.Save(ctx, node, draft, materialize.SaveOptions{Render: true})
	if err != nil {
		l.Warn("asset not created", slog.Any("err", err))
		return domain.Asset{}, err
	}
	a.Date = domain.Now()

	c.mu.Lock()
	prevCats, prevTags := c.categories, c.tags
	c.assets = append(c.assets, a)
	for _, t := range a.Categories {
		c.categories = domain.AppendUnique(c.categories, t)
	}
	for _, t := range a.Tags {
		c.tags = domain.AppendUnique(c.tags, t)
	}
	if err := c.saveLocked(); err != nil {
		// artifacts stay behind; prune finds them
		c.assets = c.assets[:len(c.assets)-1]
		c.categories, c.tags = prevCats, prevTags
		c.mu.Unlock()
		return domain.Asset{}, err
	}
	row := len(c.assets) - 1
	c.mu.Unlock()
	l.Info("asset added", slog.String("name", a.Name), slog.String("renderer", string(a.Renderer)))
	c.emit(Event{Kind: Added, ID: a.ID, Row: row})
	return a.Clone(), nil
}

// Resave re-serializes an existing asset from node. The date is refreshed only when
// the network content changed. A passive resave renders a preview only when the
// catalog's render-on-import flag is set.
func (c *Catalog) Resave(ctx context.Context, id string, node host.NodeRef, passive bool) (domain.Asset, error) {
	c.mu.RLock()
	ser, i, render := c.ser, c.rowLocked(id), !passive || c.renderOnImport
	var prev domain.Asset
	if i >= 0 {
		prev = c.assets[i].Clone()
	}
	c.mu.RUnlock()
	if i < 0 {
		return domain.Asset{}, fmt.Errorf("asset %s: %w", id, domain.ErrNotFound)
	}
	if ser == nil {
		return domain.Asset{}, errors.New("catalog has no serializer")
	}
	cl, err := domain.Classify(node.Type)
	if err != nil {
		return domain.Asset{}, err
	}
	if cl.Renderer != prev.Renderer {
		return domain.Asset{}, fmt.Errorf("asset %s is %s, node %s is %s: %w", id, prev.Renderer, node.Path, cl.Renderer, domain.ErrUnsupportedNodeKind)
	}
	a, err := ser.Save(ctx, node, prev, materialize.SaveOptions{Render: render})
	if err != nil {
		return domain.Asset{}, err
	}
	if a.Hash != prev.Hash {
		a.Date = domain.Now()
	}
	return a, c.replace(id, a, "resave")
}

// RemoveAsset deletes the artifacts of id, best effort, then its row. Unknown ids
// are a no-op.
func (c *Catalog) RemoveAsset(id string) error {
	c.mu.Lock()
	i := c.rowLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return nil
	}
	l := applog.WithAsset(applog.WithOperation(c.log, "remove"), id)
	if errs := c.store.RemoveArtifacts(id); len(errs) > 0 {
		l.Warn("some artifacts could not be removed", slog.Any("err", errors.Join(errs...)))
	}
	removed := c.assets[i]
	c.assets = slices.Delete(c.assets, i, i+1)
	if err := c.saveLocked(); err != nil {
		c.assets = slices.Insert(c.assets, i, removed)
		c.mu.Unlock()
		return err
	}
	delete(c.thumbs, id)
	c.removed[id] = struct{}{}
	c.mu.Unlock()
	c.undo.Clear(id)
	l.Info("asset removed")
	c.emit(Event{Kind: Removed, ID: id, Row: i})
	return nil
}

// mutate applies fn to the row of id and persists. fn runs with the catalog locked
// and may also extend the vocabularies; both are written in one save and rolled
// back together. fn reports whether it changed anything; unchanged rows are not
// written.
func (c *Catalog) mutate(id, op string, fn func(a *domain.Asset) bool) error {
	c.mu.Lock()
	i := c.rowLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%s %s: %w", op, id, domain.ErrNotFound)
	}
	before := c.assets[i].Clone()
	prevCats, prevTags := c.categories, c.tags
	after := before.Clone()
	if !fn(&after) {
		c.mu.Unlock()
		return nil
	}
	c.assets[i] = after
	if err := c.saveLocked(); err != nil {
		c.assets[i] = before
		c.categories, c.tags = prevCats, prevTags
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	if blob, err := json.Marshal(before); err == nil {
		c.undo.PushSnapshot(undo.Snapshot{Key: id, Blob: blob, TS: time.Now()})
	}
	c.log.Debug("asset changed", slog.String("asset", id), slog.String("op", op))
	c.emit(Event{Kind: Changed, ID: id, Row: i})
	return nil
}

// replace swaps the row of id for a without recording undo state.
func (c *Catalog) replace(id string, a domain.Asset, op string) error {
	c.mu.Lock()
	i := c.rowLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%s %s: %w", op, id, domain.ErrNotFound)
	}
	before := c.assets[i]
	c.assets[i] = a
	if err := c.saveLocked(); err != nil {
		c.assets[i] = before
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	c.emit(Event{Kind: Changed, ID: id, Row: i})
	return nil
}

// SetName renames an asset.
func (c *Catalog) SetName(id, name string) error {
	return c.mutate(id, "set_name", func(a *domain.Asset) bool {
		if a.Name == name {
			return false
		}
		a.Name = name
		return true
	})
}

// SetCategories replaces the categories of an asset and extends the vocabulary.
func (c *Catalog) SetCategories(id string, categories []string) error {
	categories = domain.Normalize(categories)
	return c.mutate(id, "set_categories", func(a *domain.Asset) bool {
		grown := extendLocked(&c.categories, categories)
		if slices.Equal(a.Categories, categories) {
			return grown
		}
		a.Categories = slices.Clone(categories)
		return true
	})
}

// SetTags replaces the tags of an asset and extends the vocabulary.
func (c *Catalog) SetTags(id string, tags []string) error {
	tags = domain.Normalize(tags)
	return c.mutate(id, "set_tags", func(a *domain.Asset) bool {
		grown := extendLocked(&c.tags, tags)
		if slices.Equal(a.Tags, tags) {
			return grown
		}
		a.Tags = slices.Clone(tags)
		return true
	})
}

// SetFavorite sets the favourite flag.
func (c *Catalog) SetFavorite(id string, favorite bool) error {
	return c.mutate(id, "set_favorite", func(a *domain.Asset) bool {
		if a.Favorite == favorite {
			return false
		}
		a.Favorite = favorite
		return true
	})
}

// TouchDate sets the last-modified timestamp.
func (c *Catalog) TouchDate(id string, t time.Time) error {
	t = t.UTC().Round(0)
	return c.mutate(id, "touch_date", func(a *domain.Asset) bool {
		if a.Date.Equal(t) {
			return false
		}
		a.Date = t
		return true
	})
}

// Undo restores the state of id before its last metadata edit.
func (c *Catalog) Undo(id string) (bool, error) { return c.step(id, c.undo.Undo) }

// Redo re-applies the last undone edit of id.
func (c *Catalog) Redo(id string) (bool, error) { return c.step(id, c.undo.Redo) }

// CanUndo reports whether id has edits to undo.
func (c *Catalog) CanUndo(id string) bool { return c.undo.CanUndo(id) }

// CanRedo reports whether id has undone edits.
func (c *Catalog) CanRedo(id string) bool { return c.undo.CanRedo(id) }

func (c *Catalog) step(id string, pop func(string, []byte) (undo.Snapshot, bool)) (bool, error) {
	cur, ok := c.Get(id)
	if !ok {
		return false, fmt.Errorf("asset %s: %w", id, domain.ErrNotFound)
	}
	blob, err := json.Marshal(cur)
	if err != nil {
		return false, err
	}
	s, ok := pop(id, blob)
	if !ok {
		return false, nil
	}
	var prev domain.Asset
	if err := json.Unmarshal(s.Blob, &prev); err != nil {
		return false, fmt.Errorf("undo state of %s: %w", id, err)
	}
	if prev.ID != id {
		return false, fmt.Errorf("undo state belongs to %s, not %s", prev.ID, id)
	}
	return true, c.replace(id, prev, "undo")
}
