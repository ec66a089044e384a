/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage owns the material library on disk.
// It loads and saves the catalog document (library.json) with transactional writes and
// compressed timestamped backups, reads the preferences document, names and removes
// the per-asset artifacts, and keeps a disposable SQLite cache of scaled thumbnails at
// <library>/.matlib/index.sqlite.
package storage
