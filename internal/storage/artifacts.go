/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"lukechampine.com/blake3"

	"matlib/internal/domain"
)

// AssetDir is the directory holding network and interface artifacts.
func (s *Store) AssetDir() string { return filepath.Join(s.Root, s.Prefs.AssetDir) }

// ImageDir is the directory holding preview images and the render sentinel.
func (s *Store) ImageDir() string { return filepath.Join(s.Root, s.Prefs.ImgDir) }

// NetworkPath is <assetDir>/<id>.<extension>.
func (s *Store) NetworkPath(id string) string {
	return filepath.Join(s.AssetDir(), id+"."+s.Prefs.Extension)
}

// InterfacePath is <assetDir>/<id>.interface.
func (s *Store) InterfacePath(id string) string {
	return filepath.Join(s.AssetDir(), id+".interface")
}

// ImagePath is <imgDir>/<id>.<imgExtension>.
func (s *Store) ImagePath(id string) string {
	return filepath.Join(s.ImageDir(), id+"."+s.Prefs.ImgExtension)
}

// DoneFilePath is the sentinel written by renderers without a completion signal.
func (s *Store) DoneFilePath() string { return filepath.Join(s.ImageDir(), s.Prefs.DoneFile) }

// ArtifactPaths returns the three artifact files of an asset.
func (s *Store) ArtifactPaths(id string) []string {
	return []string{s.NetworkPath(id), s.InterfacePath(id), s.ImagePath(id)}
}

// EnsureDirs creates the asset and image directories.
func (s *Store) EnsureDirs() error {
	for _, d := range []string{s.AssetDir(), s.ImageDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return domain.IOError("create "+d, err)
		}
	}
	return nil
}

// RemoveArtifacts deletes the artifacts of id. Missing files are fine; other failures
// are logged and returned, but never stop the remaining removals.
func (s *Store) RemoveArtifacts(id string) []error {
	var errs []error
	for _, p := range s.ArtifactPaths(id) {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("artifact removal failed", slog.String("path", p), slog.Any("err", err))
			errs = append(errs, domain.IOError("remove "+p, err))
		}
	}
	return errs
}

// HashFile returns the hex blake3-256 digest of the file at p.
func HashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", domain.IOError("hash "+p, err)
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", domain.IOError("hash "+p, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Orphans lists artifact files (relative to the library root) whose id has no row
// among known. Files that do not look like artifacts are ignored.
func (s *Store) Orphans(known []string) ([]string, error) {
	ids := make(map[string]struct{}, len(known))
	for _, id := range known {
		ids[id] = struct{}{}
	}
	assetDir := filepath.ToSlash(s.Prefs.AssetDir)
	imgDir := filepath.ToSlash(s.Prefs.ImgDir)
	patterns := []string{
		path.Join(assetDir, fmt.Sprintf("*.{%s,interface}", s.Prefs.Extension)),
		path.Join(imgDir, "*."+s.Prefs.ImgExtension),
	}
	fsys := os.DirFS(s.Root)
	var out []string
	for _, pat := range patterns {
		matches, err := doublestar.Glob(fsys, pat)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pat, err)
		}
		for _, m := range matches {
			base := path.Base(m)
			id := strings.TrimSuffix(base, path.Ext(base))
			if _, ok := ids[id]; ok {
				continue
			}
			out = append(out, filepath.FromSlash(m))
		}
	}
	sort.Strings(out)
	return out, nil
}
