/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"matlib/internal/domain"
	applog "matlib/internal/log"
)

const (
	DocumentFileName = "library.json"
	BackupsDirName   = "backups"

	// MaxBackups is the number of compressed document backups kept per library.
	MaxBackups = 10

	backupSuffix = ".zst"
	stampLayout  = "20060102-150405.000000"
)

// Store is the handle of an open library. It keeps the single parsed copy of the
// catalog document; the catalog replaces it through Save.
type Store struct {
	Root    string
	DocPath string
	Prefs   domain.Preferences

	doc domain.Document
	log *slog.Logger
}

// Open returns a store for the library at root. Nothing is read until Load.
func Open(root string, prefs domain.Preferences) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("library root is required")
	}
	return &Store{
		Root:    root,
		DocPath: filepath.Join(root, DocumentFileName),
		Prefs:   prefs.WithDefaults(),
		doc:     domain.NewDocument(),
		log:     applog.WithComponent("storage").With(slog.String("root", root)),
	}, nil
}

// Seed creates the directory layout and, when none exists yet, a default catalog
// document. It is the recovery path for a NotFound Load.
func Seed(root string, prefs domain.Preferences) (*Store, error) {
	s, err := Open(root, prefs)
	if err != nil {
		return nil, err
	}
	for _, d := range []string{root, s.AssetDir(), s.ImageDir(), filepath.Join(root, BackupsDirName)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, domain.IOError("create "+d, err)
		}
	}
	if _, err := os.Stat(s.DocPath); err == nil {
		return s, nil
	}
	if err := s.Save(domain.NewDocument()); err != nil {
		return nil, err
	}
	s.log.Info("library seeded")
	return s, nil
}

// Document returns the in-memory document as last loaded or saved.
func (s *Store) Document() domain.Document { return s.doc }

// Load parses the catalog document. It fails with domain.ErrNotFound when the file
// is absent and domain.ErrCorrupt when it does not parse or validate; in both cases
// the in-memory document is left untouched.
func (s *Store) Load() (domain.Document, error) {
	b, err := os.ReadFile(s.DocPath)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Document{}, fmt.Errorf("catalog %s: %w", s.DocPath, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, domain.IOError("read catalog", err)
	}
	doc, err := decodeDocument(b)
	if err != nil {
		s.log.Error("catalog rejected", slog.Any("err", err))
		return domain.Document{}, fmt.Errorf("catalog %s: %w", s.DocPath, err)
	}
	s.doc = doc
	s.log.Debug("catalog loaded", slog.Int("assets", len(doc.Assets)))
	return doc, nil
}

func decodeDocument(b []byte) (domain.Document, error) {
	if err := ValidateDocument(b); err != nil {
		return domain.Document{}, err
	}
	var doc domain.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return domain.Document{}, fmt.Errorf("%w: %v", domain.ErrCorrupt, err)
	}
	if err := doc.Validate(); err != nil {
		return domain.Document{}, fmt.Errorf("%w: %v", domain.ErrCorrupt, err)
	}
	return doc, nil
}

// Save replaces the document on disk: the previous file is backed up, the new one is
// written to a temp file in the same directory and renamed over the target.
func (s *Store) Save(doc domain.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	data = append(data, '\n')

	if prev, err := os.ReadFile(s.DocPath); err == nil && !bytes.Equal(prev, data) {
		if berr := s.backup(prev); berr != nil {
			// a failed backup must not block the user's edit
			s.log.Warn("catalog backup failed", slog.Any("err", berr))
		}
	}
	if err := os.MkdirAll(filepath.Dir(s.DocPath), 0o755); err != nil {
		return domain.IOError("create library root", err)
	}
	if err := atomicWrite(s.DocPath, data); err != nil {
		return domain.IOError("write catalog", err)
	}
	s.doc = doc
	return nil
}

func (s *Store) backupDir() string { return filepath.Join(s.Root, BackupsDirName) }

func (s *Store) backup(prev []byte) error {
	dir := s.backupDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	packed := enc.EncodeAll(prev, nil)
	_ = enc.Close()
	name := fmt.Sprintf("%s.%s%s", DocumentFileName, time.Now().UTC().Format(stampLayout), backupSuffix)
	if err := atomicWrite(filepath.Join(dir, name), packed); err != nil {
		return err
	}
	return pruneBackups(dir, MaxBackups)
}

// Backups lists the backup files of the library, oldest first.
func Backups(root string) ([]string, error) {
	dir := filepath.Join(root, BackupsDirName)
	ents, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		n := e.Name()
		if strings.HasPrefix(n, DocumentFileName+".") && strings.HasSuffix(n, backupSuffix) {
			out = append(out, filepath.Join(dir, n))
		}
	}
	sort.Strings(out) // the stamp sorts chronologically
	return out, nil
}

func pruneBackups(dir string, keep int) error {
	all, err := Backups(filepath.Dir(dir))
	if err != nil {
		return err
	}
	for len(all) > keep {
		if err := os.Remove(all[0]); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		all = all[1:]
	}
	return nil
}

// RestoreLatestBackup replaces the catalog document with the newest backup that
// decodes and validates. It returns the path of the backup used.
func RestoreLatestBackup(root string) (string, error) {
	all, err := Backups(root)
	if err != nil {
		return "", domain.IOError("list backups", err)
	}
	if len(all) == 0 {
		return "", fmt.Errorf("no backups: %w", domain.ErrNotFound)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return "", err
	}
	defer dec.Close()
	for i := len(all) - 1; i >= 0; i-- {
		packed, err := os.ReadFile(all[i])
		if err != nil {
			continue
		}
		raw, err := dec.DecodeAll(packed, nil)
		if err != nil {
			continue
		}
		if _, err := decodeDocument(raw); err != nil {
			continue
		}
		if err := atomicWrite(filepath.Join(root, DocumentFileName), raw); err != nil {
			return "", domain.IOError("restore catalog", err)
		}
		return all[i], nil
	}
	return "", fmt.Errorf("no usable backup: %w", domain.ErrCorrupt)
}

// atomicWrite writes data to a temp file next to path, syncs it and renames it over path.
func atomicWrite(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if err := writeFileSync(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		// Windows refuses to rename over an existing file
		_ = os.Remove(path)
		if err2 := os.Rename(tmp, path); err2 != nil {
			_ = os.Remove(tmp)
			return err2
		}
	}
	return nil
}

func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
