/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"matlib/internal/domain"
)

// LoadPreferences reads the preferences document. When the file is missing it
// returns the defaults together with an error wrapping domain.ErrNotFound.
func LoadPreferences(path string) (domain.Preferences, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.DefaultPreferences(), fmt.Errorf("preferences %s: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return domain.DefaultPreferences(), domain.IOError("read preferences", err)
	}
	var p domain.Preferences
	if err := json.Unmarshal(b, &p); err != nil {
		return domain.DefaultPreferences(), fmt.Errorf("preferences %s: %w: %v", path, domain.ErrCorrupt, err)
	}
	return p.WithDefaults(), nil
}

// SavePreferences writes the preferences document transactionally.
func SavePreferences(path string, p domain.Preferences) error {
	b, err := json.MarshalIndent(p.WithDefaults(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.IOError("create preferences dir", err)
	}
	if err := atomicWrite(path, append(b, '\n')); err != nil {
		return domain.IOError("write preferences", err)
	}
	return nil
}
