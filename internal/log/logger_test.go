/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestInitWritesJSONToRotatedFile checks that the file handler receives JSON records
// carrying both the static and the contextual attributes.
func TestInitWritesJSONToRotatedFile(t *testing.T) {
	fpath := filepath.Join(os.TempDir(), fmt.Sprintf("mlb_log_%d.json", time.Now().UnixNano()))
	t.Cleanup(func() { _ = os.Remove(fpath) })

	Init(Options{Level: "debug", Format: "json", File: fpath})
	l := WithAsset(WithOperation(WithComponent("catalog"), "rename"), "0190abc")
	l.Info("asset renamed", slog.String("name", "Brick01"))

	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var last string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines written")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for k, want := range map[string]string{"app": "matlib", "component": "catalog", "op": "rename", "asset": "0190abc", "msg": "asset renamed", "name": "Brick01"} {
		if m[k] != want {
			t.Fatalf("%s = %v, want %q", k, m[k], want)
		}
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvLevel, "warn")
	t.Setenv(EnvFormat, "json")
	t.Setenv(EnvSource, "yes")
	t.Setenv(EnvFile, "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
}

func TestConsoleHandlerFormatsAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	var h slog.Handler = &consoleHandler{level: slog.LevelWarn, w: &buf}
	if h.Enabled(nil, slog.LevelInfo) {
		t.Fatalf("info must be filtered at warn level")
	}
	h = h.WithAttrs([]slog.Attr{slog.String("component", "thumbnail")}).WithGroup("job")

	r := slog.NewRecord(time.Now(), slog.LevelWarn, "render timed out", 0)
	r.AddAttrs(slog.String("asset", "a1"), slog.Float64("secs", 60.5), slog.String("path", "/tmp/with space"))
	if err := h.Handle(nil, r); err != nil {
		t.Fatalf("handle: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"WRN", "render timed out", "component=thumbnail", "job.asset=a1", "job.secs=60.5", `job.path="/tmp/with space"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestFanoutRespectsEachHandlerLevel(t *testing.T) {
	var quiet, loud bytes.Buffer
	f := fanout{
		&consoleHandler{level: slog.LevelError, w: &quiet},
		&consoleHandler{level: slog.LevelDebug, w: &loud},
	}
	l := slog.New(f)
	l.Info("only loud")
	if quiet.Len() != 0 {
		t.Fatalf("error-level handler received info record: %q", quiet.String())
	}
	if !strings.Contains(loud.String(), "only loud") {
		t.Fatalf("debug-level handler missed record: %q", loud.String())
	}
}
