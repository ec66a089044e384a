/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	for _, k := range []string{EnvLibraryDir, EnvThumbWorkers, EnvRenderTimeoutMs, EnvThumbCacheBytes, EnvLogLevel, EnvLogFormat, EnvLogSource, EnvLogFile} {
		t.Setenv(k, "")
	}
	return dir
}

func TestDefaultsWithoutFile(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Thumbnails.RenderTimeout() != 60*time.Second {
		t.Fatalf("render timeout = %v", cfg.Thumbnails.RenderTimeout())
	}
	if cfg.Logging.Level != "info" || cfg.Thumbnails.Workers != 2 {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := isolate(t)
	cfg := Defaults()
	cfg.Library.Dir = "/libs/main"
	cfg.Thumbnails.Workers = 6
	cfg.Logging.Format = "json"
	if err := Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("config file: %v", err)
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != cfg {
		t.Fatalf("round trip: %+v != %+v", got, cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLibraryDir, "/env/lib")
	t.Setenv(EnvThumbWorkers, "3")
	t.Setenv(EnvRenderTimeoutMs, "1500")
	t.Setenv(EnvThumbCacheBytes, "1024")
	t.Setenv(EnvLogSource, "yes")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Library.Dir != "/env/lib" || cfg.Thumbnails.Workers != 3 || cfg.Thumbnails.RenderTimeout() != 1500*time.Millisecond ||
		cfg.Thumbnails.CacheMaxBytes != 1024 || !cfg.Logging.Source {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if env, ok := EnvOverrideFor("library.dir"); !ok || env != EnvLibraryDir {
		t.Fatalf("EnvOverrideFor = %q %v", env, ok)
	}
	if _, ok := EnvOverrideFor("thumbnails.queue"); ok {
		t.Fatalf("queue has no env override")
	}
}

func TestInvalidEnvIgnored(t *testing.T) {
	isolate(t)
	t.Setenv(EnvThumbWorkers, "many")
	cfg, _ := Load()
	if cfg.Thumbnails.Workers != Defaults().Thumbnails.Workers {
		t.Fatalf("invalid env applied: %d", cfg.Thumbnails.Workers)
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = " DEBUG "
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "C:/tmp/matlib.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "C:/tmp/matlib.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
}

func TestBrokenFileStillReturnsDefaults(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("library: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if cfg.Thumbnails.Queue != Defaults().Thumbnails.Queue {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	p, _ := PrefsPath()
	if p != filepath.Join(dir, "prefs.json") {
		t.Fatalf("prefs path = %s", p)
	}
}
