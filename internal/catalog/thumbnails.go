/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package catalog

import "image"

// SetThumbnail fills the thumbnail slot of id. It is called from the main context
// with results of the thumbnail worker; the image is never computed here. A result
// may arrive before AddAsset has appended its row, so the slot is kept even when
// id has no row yet. Results for removed assets are dropped.
func (c *Catalog) SetThumbnail(id string, img image.Image) {
	c.mu.Lock()
	if _, gone := c.removed[id]; gone {
		c.mu.Unlock()
		return
	}
	c.thumbs[id] = img
	row := c.rowLocked(id)
	c.mu.Unlock()
	if row >= 0 {
		c.emit(Event{Kind: Thumbnail, ID: id, Row: row})
	}
}

// ClearThumbnail empties the slot of id.
func (c *Catalog) ClearThumbnail(id string) {
	c.mu.Lock()
	_, had := c.thumbs[id]
	delete(c.thumbs, id)
	row := c.rowLocked(id)
	c.mu.Unlock()
	if had {
		c.emit(Event{Kind: Thumbnail, ID: id, Row: row})
	}
}

// Thumbnail returns the slot of id; ok is false while it is empty.
func (c *Catalog) Thumbnail(id string) (img image.Image, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok = c.thumbs[id]
	return img, ok
}

// ThumbnailAt returns the slot of row i.
func (c *Catalog) ThumbnailAt(i int) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.assets) {
		return nil, false
	}
	img, ok := c.thumbs[c.assets[i].ID]
	return img, ok
}
