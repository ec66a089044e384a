/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package thumbnail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"matlib/internal/domain"
	applog "matlib/internal/log"
)

// DefaultTimeout bounds the wait for a render's completion.
const DefaultTimeout = 60 * time.Second

// pollInterval backs up the file watcher; some network shares deliver no events.
var pollInterval = 250 * time.Millisecond

// WaitForFile blocks until path exists, ctx ends or timeout elapses. A timeout is
// reported as domain.ErrRenderTimeout.
func WaitForFile(ctx context.Context, path string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if exists(path) {
		return nil
	}
	var events <-chan fsnotify.Event
	var errs <-chan error
	if w, err := fsnotify.NewWatcher(); err == nil {
		defer w.Close()
		if err := w.Add(filepath.Dir(path)); err == nil {
			events, errs = w.Events, w.Errors
		}
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	want := filepath.Clean(path)
	for {
		// the file may have appeared between the first check and the watch
		if exists(path) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("waiting for %s after %s: %w", filepath.Base(path), timeout, domain.ErrRenderTimeout)
		case <-tick.C:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == want && ev.Op&(fsnotify.Create|fsnotify.Write) != 0 && exists(path) {
				return nil
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			applog.WithComponent("thumbnail").Debug("watch error", "err", err)
		}
	}
}

// waitSignal waits for a renderer's native completion signal with the same bound.
func waitSignal(ctx context.Context, done <-chan error, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return fmt.Errorf("render signal after %s: %w", timeout, domain.ErrRenderTimeout)
	case err, ok := <-done:
		if !ok {
			return nil
		}
		return err
	}
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
