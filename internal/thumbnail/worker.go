/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package thumbnail

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	applog "matlib/internal/log"
	"matlib/internal/storage"
)

// Job asks for the thumbnail of one asset.
type Job struct {
	AssetID string
	Source  string // full-size preview image
	Size    int
	Badge   bool
}

// Result is posted back for every processed job. Image is nil when Err is set.
type Result struct {
	AssetID string
	Image   image.Image
	Cached  bool
	Err     error
}

// WorkerConfig sizes the pool. Cache is optional.
type WorkerConfig struct {
	Workers int
	Queue   int
	Cache   *storage.ThumbCache
}

// Worker decodes, scales and badges preview images off the main context. It never
// touches the scene graph or the catalog; results are read from Results and applied
// by the owner. Submit never blocks: when the queue is full the job is dropped.
type Worker struct {
	cfg  WorkerConfig
	log  *slog.Logger
	jobs chan Job
	out  chan Result

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// NewWorker creates a worker; call Start to run it.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Workers <= 0 {
		cfg.Workers = max(1, min(4, runtime.NumCPU()/2))
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 256
	}
	return &Worker{
		cfg:  cfg,
		log:  applog.WithComponent("thumbnail"),
		jobs: make(chan Job, cfg.Queue),
		out:  make(chan Result, cfg.Queue),
	}
}

// Start runs the pool until ctx ends or Close drains the queue. Results is closed
// once every worker has stopped.
func (w *Worker) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case j, ok := <-w.jobs:
					if !ok {
						return nil
					}
					res := w.process(gctx, j)
					select {
					case w.out <- res:
					case <-gctx.Done():
						return nil
					}
				}
			}
		})
	}
	go func() {
		_ = g.Wait()
		close(w.out)
	}()
}

// Submit queues j. It reports false when the job was dropped.
func (w *Worker) Submit(j Job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.jobs <- j:
		return true
	default:
		w.log.Warn("thumbnail queue full, job dropped", slog.String("asset", j.AssetID))
		return false
	}
}

// Results delivers processed thumbnails.
func (w *Worker) Results() <-chan Result { return w.out }

// Close stops accepting jobs; queued jobs are still processed.
func (w *Worker) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.jobs)
		w.mu.Unlock()
	})
}

func (w *Worker) process(ctx context.Context, j Job) Result {
	l := applog.WithAsset(w.log, j.AssetID)
	fi, err := os.Stat(j.Source)
	if err != nil {
		return Result{AssetID: j.AssetID, Err: err}
	}
	key := storage.ThumbKey{AssetID: j.AssetID, Size: j.Size, Badge: j.Badge}
	if w.cfg.Cache != nil {
		if blob, err := w.cfg.Cache.Get(ctx, key, fi.ModTime()); err != nil {
			l.Debug("thumb cache read failed", slog.Any("err", err))
		} else if blob != nil {
			if img, err := png.Decode(bytes.NewReader(blob)); err == nil {
				return Result{AssetID: j.AssetID, Image: img, Cached: true}
			}
		}
	}
	img, encoded, err := Render(j.Source, j.Size, j.Badge)
	if err != nil {
		l.Warn("thumbnail failed", slog.Any("err", err))
		return Result{AssetID: j.AssetID, Err: err}
	}
	if w.cfg.Cache != nil {
		if err := w.cfg.Cache.Put(ctx, key, fi.ModTime(), encoded); err != nil {
			l.Debug("thumb cache write failed", slog.Any("err", err))
		}
	}
	return Result{AssetID: j.AssetID, Image: img}
}
