/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package library ties an open material library together: the store and its
// catalog, the materializer, the thumbnail pipeline with its worker and the
// filter view. It exposes the commands the user interface and the CLI run on a
// selection of asset ids.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"matlib/internal/catalog"
	"matlib/internal/domain"
	"matlib/internal/filter"
	"matlib/internal/host"
	applog "matlib/internal/log"
	"matlib/internal/materialize"
	"matlib/internal/storage"
	"matlib/internal/thumbnail"
)

// Options configure Open. Zero values use the package defaults.
type Options struct {
	// PrefsPath is the preferences document. Empty keeps preferences in memory only.
	PrefsPath     string
	Thumb         thumbnail.Config
	Workers       int
	Queue         int
	CacheMaxBytes int64
	// NoCache disables the sqlite thumbnail cache.
	NoCache bool
}

// maxPicks bounds how often Open asks for another directory.
const maxPicks = 3

// Library is an open material library. Methods touching the scene graph must be
// called from the host's main context.
type Library struct {
	Catalog *catalog.Catalog
	View    filter.View

	host     host.Host
	store    *storage.Store
	prefs    domain.Preferences
	mat      *materialize.Materializer
	pipeline *thumbnail.Pipeline
	worker   *thumbnail.Worker
	cache    *storage.ThumbCache
	cancel   context.CancelFunc
	unsub    func()
	log      *slog.Logger
}

// Open loads the library at root. An empty root falls back to the directory in the
// preferences document and then to a directory chosen through the host. When no
// catalog document exists the user is asked whether to seed one; declining lets
// them pick another directory. A corrupt document is returned as an error wrapping
// domain.ErrCorrupt and nothing is opened.
func Open(ctx context.Context, h host.Host, root string, opts Options) (*Library, error) {
	l := applog.WithOperation(applog.WithComponent("library"), "open")
	prefs := domain.DefaultPreferences()
	if opts.PrefsPath != "" {
		p, err := storage.LoadPreferences(opts.PrefsPath)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			l.Warn("preferences unreadable, using defaults", slog.Any("err", err))
		}
		prefs = p
	}
	if strings.TrimSpace(root) == "" {
		root = prefs.Directory
	}
	if strings.TrimSpace(root) == "" {
		root = h.SelectFile("directory")
	}
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("no library directory: %w", domain.ErrNotFound)
	}

	var (
		store *storage.Store
		cat   *catalog.Catalog
	)
	for pick := 0; ; pick++ {
		s, err := storage.Open(root, prefs)
		if err != nil {
			return nil, err
		}
		c := catalog.New(s, nil)
		err = c.Load()
		if err == nil {
			store, cat = s, c
			break
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if h.Confirm(fmt.Sprintf("No material library in %s. Create one?", root)) {
			if s, err = storage.Seed(root, prefs); err != nil {
				return nil, err
			}
			c = catalog.New(s, nil)
			if err := c.Load(); err != nil {
				return nil, err
			}
			store, cat = s, c
			break
		}
		next := h.SelectFile("directory")
		if strings.TrimSpace(next) == "" || pick+1 >= maxPicks {
			return nil, err
		}
		root = next
	}

	prefs.Directory = root
	if opts.PrefsPath != "" {
		if err := storage.SavePreferences(opts.PrefsPath, prefs); err != nil {
			l.Warn("preferences not saved", slog.Any("err", err))
		}
	}

	lib := &Library{Catalog: cat, host: h, store: store, prefs: prefs, log: applog.WithComponent("library").With(slog.String("root", root))}
	if !opts.NoCache {
		limit := opts.CacheMaxBytes
		if limit <= 0 {
			limit = storage.ThumbCacheBytesFromEnv(storage.DefaultThumbCacheBytes)
		}
		cache, err := storage.OpenThumbCache(root, limit)
		if err != nil {
			l.Warn("thumbnail cache unavailable", slog.Any("err", err))
		} else {
			lib.cache = cache
		}
	}
	lib.worker = thumbnail.NewWorker(thumbnail.WorkerConfig{Workers: opts.Workers, Queue: opts.Queue, Cache: lib.cache})
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	lib.cancel = cancel
	lib.worker.Start(wctx)

	layout := cat.Layout()
	cfg := opts.Thumb
	cfg.ThumbSize, cfg.RenderSize = layout.ThumbSize, layout.RenderSize
	lib.pipeline = thumbnail.NewPipeline(h, store, lib.worker, cfg)
	lib.mat = materialize.New(h, store, lib.pipeline)
	cat.SetSerializer(lib.mat)
	lib.unsub = cat.Subscribe(lib.onEvent)

	queued := 0
	for _, a := range cat.Assets() {
		if lib.pipeline.Queue(a) {
			queued++
		}
	}
	lib.log.Info("library opened", slog.Int("assets", cat.Len()), slog.Int("thumbnails_queued", queued))
	return lib, nil
}

// Root is the library directory.
func (l *Library) Root() string { return l.store.Root }

// Store returns the library's store.
func (l *Library) Store() *storage.Store { return l.store }

// CurrentLocation is where imports land when the user does not pick a location.
func (l *Library) CurrentLocation() host.Location { return l.host.CurrentLocation() }

// Preferences returns the preferences the library was opened with.
func (l *Library) Preferences() domain.Preferences { return l.prefs }

func (l *Library) onEvent(ev catalog.Event) {
	switch ev.Kind {
	case catalog.Changed:
		// the favourite badge may have changed
		if a, ok := l.Catalog.Get(ev.ID); ok {
			l.pipeline.Queue(a)
		}
	case catalog.Removed:
		if l.cache != nil {
			if err := l.cache.Delete(context.Background(), ev.ID); err != nil {
				l.log.Warn("thumbnail cache delete failed", slog.String("asset", ev.ID), slog.Any("err", err))
			}
		}
	case catalog.Reset:
		layout := l.Catalog.Layout()
		l.pipeline.SetSizes(layout.ThumbSize, layout.RenderSize)
		for _, a := range l.Catalog.Assets() {
			l.pipeline.Queue(a)
		}
	}
}

// DeliverThumbnails forwards processed thumbnails to the main context until ctx
// ends or the library is closed. post must run its argument on the main context.
func (l *Library) DeliverThumbnails(ctx context.Context, post func(func())) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-l.worker.Results():
			if !ok {
				return
			}
			if res.Err != nil {
				l.log.Warn("thumbnail not loaded", slog.String("asset", res.AssetID), slog.Any("err", res.Err))
				continue
			}
			post(func() { l.Catalog.SetThumbnail(res.AssetID, res.Image) })
		}
	}
}

// ApplyPending fills the thumbnail slots of every result that is ready now and
// returns how many were applied. It never blocks.
func (l *Library) ApplyPending() int {
	n := 0
	for {
		select {
		case res, ok := <-l.worker.Results():
			if !ok {
				return n
			}
			if res.Err != nil {
				l.log.Warn("thumbnail not loaded", slog.String("asset", res.AssetID), slog.Any("err", res.Err))
				continue
			}
			l.Catalog.SetThumbnail(res.AssetID, res.Image)
			n++
		default:
			return n
		}
	}
}

// Visible returns the assets passing the view's filter, in view order.
func (l *Library) Visible() []domain.Asset { return l.View.Visible(l.Catalog) }

// Import materializes the assets ids below the location from. Unknown ids and
// failed imports are reported together; the remaining ids are still imported.
func (l *Library) Import(ctx context.Context, from host.Location, ids ...string) ([]materialize.Result, error) {
	var (
		out  []materialize.Result
		errs []error
	)
	for _, id := range ids {
		a, ok := l.Catalog.Get(id)
		if !ok {
			errs = append(errs, fmt.Errorf("asset %s: %w", id, domain.ErrNotFound))
			continue
		}
		res, err := l.mat.Import(ctx, a, from)
		if err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", a.Name, err))
			continue
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

// Save adds one asset per node, all sharing categories, tags and the favourite flag.
func (l *Library) Save(ctx context.Context, nodes []host.NodeRef, categories, tags string, favorite bool) ([]domain.Asset, error) {
	var (
		out  []domain.Asset
		errs []error
	)
	for _, n := range nodes {
		a, err := l.Catalog.AddAsset(ctx, n, categories, tags, favorite)
		if err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", n.Path, err))
			continue
		}
		out = append(out, a)
	}
	return out, errors.Join(errs...)
}

// Delete removes the assets ids after the user confirmed. It returns the number of
// rows removed; declining removes nothing.
func (l *Library) Delete(ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	prompt := fmt.Sprintf("Delete %d material(s)? Their files are removed from the library.", len(ids))
	if !l.host.Confirm(prompt) {
		return 0, nil
	}
	n := 0
	var errs []error
	for _, id := range ids {
		if _, ok := l.Catalog.Get(id); !ok {
			continue
		}
		if err := l.Catalog.RemoveAsset(id); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Rerender renders fresh previews for ids, one after another. Each asset is
// imported into a scratch location, rendered and removed again. A render timeout
// is logged and leaves the slot empty; other failures are returned.
func (l *Library) Rerender(ctx context.Context, ids ...string) error {
	var errs []error
	for _, id := range ids {
		a, ok := l.Catalog.Get(id)
		if !ok {
			errs = append(errs, fmt.Errorf("asset %s: %w", id, domain.ErrNotFound))
			continue
		}
		if err := l.rerender(ctx, a); err != nil {
			if errors.Is(err, domain.ErrRenderTimeout) {
				l.log.Warn("preview render timed out", slog.String("asset", id), slog.Any("err", err))
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Library) rerender(ctx context.Context, a domain.Asset) error {
	lg := applog.WithAsset(applog.WithOperation(l.log, "rerender"), a.ID)
	l.Catalog.ClearThumbnail(a.ID)
	res, err := l.mat.Import(ctx, a, l.host.ShaderRoot())
	if err != nil {
		return fmt.Errorf("rerender %s: %w", a.Name, err)
	}
	defer func() {
		if err := l.host.DestroyNode(res.Node); err != nil {
			lg.Warn("scratch material not removed", slog.Any("err", err))
		}
		if res.Point != nil {
			if err := l.host.DestroyNode(*res.Point); err != nil {
				lg.Warn("scratch insertion point not removed", slog.Any("err", err))
			}
		}
	}()
	return l.pipeline.Render(ctx, a, res.Node)
}

// RenderAllVisible re-renders every visible asset sequentially.
func (l *Library) RenderAllVisible(ctx context.Context) error {
	return l.Rerender(ctx, l.View.VisibleIDs(l.Catalog)...)
}

// Prune lists artifact files belonging to no row and, unless dryRun, removes them.
func (l *Library) Prune(dryRun bool) ([]string, error) {
	ids := make([]string, 0, l.Catalog.Len())
	for _, a := range l.Catalog.Assets() {
		ids = append(ids, a.ID)
	}
	orphans, err := l.store.Orphans(ids)
	if err != nil || dryRun {
		return orphans, err
	}
	var errs []error
	for _, rel := range orphans {
		if err := os.Remove(filepath.Join(l.store.Root, rel)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, domain.IOError("remove "+rel, err))
		}
	}
	l.log.Info("orphans pruned", slog.Int("files", len(orphans)))
	return orphans, errors.Join(errs...)
}

// Close stops the worker and releases the cache. Queued thumbnails are dropped.
func (l *Library) Close() error {
	if l.unsub != nil {
		l.unsub()
	}
	l.worker.Close()
	l.cancel()
	for range l.worker.Results() {
	}
	if l.cache != nil {
		return l.cache.Close()
	}
	return nil
}
