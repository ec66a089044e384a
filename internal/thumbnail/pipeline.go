/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package thumbnail renders asset previews in a throwaway scene and turns the
// rendered images into catalog thumbnails on a background worker pool.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"matlib/internal/domain"
	"matlib/internal/host"
	applog "matlib/internal/log"
)

// Paths locates preview images. *storage.Store implements it.
type Paths interface {
	ImagePath(id string) string
	DoneFilePath() string
	EnsureDirs() error
}

// Config tunes the pipeline. Zero values fall back to the catalog defaults.
type Config struct {
	ThumbSize  int
	RenderSize int
	Timeout    time.Duration
}

// Pipeline renders previews. Render must run on the host's main context; image
// post-processing happens on the Worker.
type Pipeline struct {
	host   host.Host
	paths  Paths
	worker *Worker
	cfg    Config
	log    *slog.Logger
}

// NewPipeline returns a pipeline posting its images to w. w may be nil, then
// previews are rendered but not loaded.
func NewPipeline(h host.Host, paths Paths, w *Worker, cfg Config) *Pipeline {
	if cfg.ThumbSize <= 0 {
		cfg.ThumbSize = domain.DefaultThumbSize
	}
	if cfg.RenderSize <= 0 {
		cfg.RenderSize = domain.DefaultRenderSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Pipeline{host: h, paths: paths, worker: w, cfg: cfg, log: applog.WithComponent("thumbnail")}
}

// SetSizes updates the sizes read from the catalog document.
func (p *Pipeline) SetSizes(thumb, render int) {
	if thumb > 0 {
		p.cfg.ThumbSize = thumb
	}
	if render > 0 {
		p.cfg.RenderSize = render
	}
}

// previewName is the disposable scene's root node.
const previewName = "matlib_preview"

// outputParm is the image path parameter of each renderer's output driver.
var outputParm = map[domain.Renderer]string{
	domain.Redshift:  "RS_outputFileNamePrefix",
	domain.Mantra:    "vm_picture",
	domain.Arnold:    "ar_picture",
	domain.Octane:    "HO_img_fileName",
	domain.MaterialX: "picture",
}

// Render renders a preview of material for asset a and queues it for loading into
// the thumbnail slot. A render that does not complete within the timeout returns
// an error wrapping domain.ErrRenderTimeout; the previous image, if any, is gone.
func (p *Pipeline) Render(ctx context.Context, a domain.Asset, material host.NodeRef) error {
	l := applog.WithAsset(applog.WithOperation(p.log, "render"), a.ID)
	rop, err := domain.RopType(a.Renderer)
	if err != nil {
		return err
	}
	if a.Renderer.RequiresColorConfig() && !p.host.ColorConfigured() {
		return fmt.Errorf("render %s: %w", a.Renderer, domain.ErrMissingColorConfig)
	}
	if err := p.paths.EnsureDirs(); err != nil {
		return err
	}
	out, done := p.paths.ImagePath(a.ID), p.paths.DoneFilePath()
	for _, f := range []string{out, done} {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return domain.IOError("clear previous render", err)
		}
	}

	root, driver, err := p.buildScene(a.Renderer, rop, material, out)
	if root.Path != "" {
		defer func() {
			if derr := p.host.DestroyNode(root); derr != nil {
				l.Warn("preview scene teardown failed", slog.Any("err", derr))
			}
		}()
	}
	if err != nil {
		return fmt.Errorf("build preview scene: %w", err)
	}

	start := time.Now()
	signal, err := p.host.InvokeRender(ctx, host.RenderConfig{Driver: driver, Output: out, DoneFile: done, Size: p.cfg.RenderSize})
	if err != nil {
		return fmt.Errorf("render %s: %w", a.ID, err)
	}
	if signal != nil {
		err = waitSignal(ctx, signal, p.cfg.Timeout)
	} else {
		err = WaitForFile(ctx, done, p.cfg.Timeout)
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", a.ID, err)
	}
	_ = os.Remove(done)
	l.Info("preview rendered", slog.Duration("took", time.Since(start)), slog.Bool("native", signal != nil))
	p.Queue(a)
	return nil
}

// Queue hands the existing preview image of a to the worker.
func (p *Pipeline) Queue(a domain.Asset) bool {
	if p.worker == nil {
		return false
	}
	src := p.paths.ImagePath(a.ID)
	if _, err := os.Stat(src); err != nil {
		return false
	}
	return p.worker.Submit(Job{AssetID: a.ID, Source: src, Size: p.cfg.ThumbSize, Badge: a.Favorite})
}

// buildScene creates camera, light rig, backdrop, preview sphere and render driver
// under a single disposable root. root is set as soon as it exists so the caller
// can tear down a half-built scene.
func (p *Pipeline) buildScene(r domain.Renderer, ropType string, material host.NodeRef, out string) (root, driver host.NodeRef, err error) {
	root, err = p.host.CreateNode(p.host.SceneRoot(), domain.TypeSubnet, previewName)
	if err != nil {
		return host.NodeRef{}, host.NodeRef{}, err
	}
	at := root.Location(p.host.KindOf(root))
	type spec struct {
		typ, name string
		params    map[string]any
	}
	parts := []spec{
		{"cam", "preview_cam", map[string]any{"t": []float64{0, 0.6, 4.2}, "r": []float64{-8, 0, 0}, "resx": p.cfg.RenderSize, "resy": p.cfg.RenderSize}},
		{"envlight", "preview_env", map[string]any{"light_intensity": 0.6}},
		{"hlight", "preview_key", map[string]any{"t": []float64{3, 4, 3}, "light_intensity": 1.2}},
		{"geo", "preview_backdrop", map[string]any{"shape": "plane", "t": []float64{0, -1, 0}, "scale": 20.0}},
		{"geo", "preview_sphere", map[string]any{"shape": "sphere", "shop_materialpath": material.Path}},
	}
	nodes := make(map[string]host.NodeRef, len(parts))
	for _, s := range parts {
		n, err := p.host.CreateNode(at, s.typ, s.name)
		if err != nil {
			return root, host.NodeRef{}, err
		}
		for k, v := range s.params {
			if err := p.host.SetParam(n, k, v); err != nil {
				return root, host.NodeRef{}, err
			}
		}
		nodes[s.name] = n
	}
	driver, err = p.host.CreateNode(at, ropType, "preview_rop")
	if err != nil {
		return root, host.NodeRef{}, err
	}
	params := map[string]any{
		"camera":       nodes["preview_cam"].Path,
		"vobject":      nodes["preview_sphere"].Path,
		outputParm[r]:  out,
		"override_res": true,
	}
	for k, v := range params {
		if err := p.host.SetParam(driver, k, v); err != nil {
			return root, host.NodeRef{}, err
		}
	}
	return root, driver, nil
}
