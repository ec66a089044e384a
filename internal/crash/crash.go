/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic at an entry point into a crash report and a last
// attempt to persist the open catalog.
package crash

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"matlib/internal/catalog"
	applog "matlib/internal/log"
	"matlib/internal/storage"
	"matlib/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// saveTimeout bounds the emergency save; the panic may have left the catalog locked.
var saveTimeout = 3 * time.Second

// Recover captures a panic, logs an error with stacktrace, writes an error report
// file and attempts an emergency save of the catalog (if provided).
//
// Usage: defer crash.Recover(cat)
func Recover(cat *catalog.Catalog) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, _ := writeReport(cat, r, stack)
		if cat != nil {
			if err := emergencySave(cat); err != nil {
				l.Error("emergency catalog save failed", slog.Any("err", err))
			} else {
				l.Info("emergency catalog save written", slog.String("path", cat.Store().DocPath))
			}
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		// Exit with a non-zero code to indicate failure in CLI context.
		exitFn(2)
	}
}

func emergencySave(cat *catalog.Catalog) error {
	done := make(chan error, 1)
	go func() { done <- cat.Save() }()
	select {
	case err := <-done:
		return err
	case <-time.After(saveTimeout):
		return errors.New("catalog locked, save abandoned")
	}
}

func writeReport(cat *catalog.Catalog, panicVal any, stack []byte) (string, error) {
	dir := os.TempDir()
	if cat != nil && cat.Store().Root != "" {
		dir = filepath.Join(cat.Store().Root, storage.BackupsDirName)
		_ = os.MkdirAll(dir, 0o755)
	}
	stamp := time.Now().Format("20060102-150405")
	fname := fmt.Sprintf("crash-%s.log", stamp)
	path := filepath.Join(dir, fname)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Material Library Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if cat != nil {
		_, _ = fmt.Fprintf(&buf, "Library: %s\n", cat.Store().Root)
		_, _ = fmt.Fprintf(&buf, "Catalog: %s\n", cat.Store().DocPath)
		_, _ = fmt.Fprintf(&buf, "Assets: %d\n", cat.Len())
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()
	return path, nil
}
