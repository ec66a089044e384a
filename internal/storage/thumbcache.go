/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultThumbCacheBytes caps the thumbnail cache when no limit is configured.
const DefaultThumbCacheBytes = 64 * 1024 * 1024

// language=SQL
// dialect=SQLite
const selectThumbSQL = `SELECT png, src_mtime FROM thumbs WHERE asset_id=? AND size=? AND badge=?`

// language=SQL
// dialect=SQLite
const touchThumbSQL = `UPDATE thumbs SET last_access=? WHERE asset_id=? AND size=? AND badge=?`

// language=SQL
// dialect=SQLite
const upsertThumbSQL = `INSERT INTO thumbs(asset_id, size, badge, src_mtime, png, bytes, updated_at, last_access)
	VALUES(?,?,?,?,?,?,?,?)
	ON CONFLICT(asset_id, size, badge) DO UPDATE SET
		src_mtime=excluded.src_mtime, png=excluded.png, bytes=excluded.bytes,
		updated_at=excluded.updated_at, last_access=excluded.last_access`

// ThumbKey identifies one cached thumbnail variant.
type ThumbKey struct {
	AssetID string
	Size    int
	Badge   bool
}

// ThumbCache stores encoded thumbnails so that opening a library does not decode and
// scale every full-size preview again. Entries are validated against the preview
// image's modification time and evicted least-recently-used beyond MaxBytes.
// It is safe for concurrent use.
type ThumbCache struct {
	db       *sql.DB
	MaxBytes int64
}

// OpenThumbCache opens the cache in the library's index database.
func OpenThumbCache(root string, maxBytes int64) (*ThumbCache, error) {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	if maxBytes <= 0 {
		maxBytes = DefaultThumbCacheBytes
	}
	return &ThumbCache{db: db, MaxBytes: maxBytes}, nil
}

// Close releases the database handle.
func (c *ThumbCache) Close() error { return c.db.Close() }

// Get returns the cached PNG for key when it was produced from a source with the
// given modification time, or nil on a miss.
func (c *ThumbCache) Get(ctx context.Context, key ThumbKey, srcMtime time.Time) ([]byte, error) {
	var blob []byte
	var mt int64
	err := c.db.QueryRowContext(ctx, selectThumbSQL, key.AssetID, key.Size, boolInt(key.Badge)).Scan(&blob, &mt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query thumb: %w", err)
	}
	if mt != srcMtime.UnixNano() {
		return nil, nil
	}
	now := accessStamp()
	_, _ = c.db.ExecContext(ctx, touchThumbSQL, now, key.AssetID, key.Size, boolInt(key.Badge))
	return blob, nil
}

// Put stores png for key and evicts old entries beyond the size cap.
func (c *ThumbCache) Put(ctx context.Context, key ThumbKey, srcMtime time.Time, png []byte) error {
	if key.AssetID == "" || len(png) == 0 {
		return errors.New("thumb key and data are required")
	}
	now := accessStamp()
	if _, err := c.db.ExecContext(ctx, upsertThumbSQL, key.AssetID, key.Size, boolInt(key.Badge),
		srcMtime.UnixNano(), png, len(png), now, now); err != nil {
		return fmt.Errorf("upsert thumb: %w", err)
	}
	return c.evictToFit(ctx)
}

// Delete drops every cached variant of an asset.
func (c *ThumbCache) Delete(ctx context.Context, assetID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM thumbs WHERE asset_id=?`, assetID); err != nil {
		return fmt.Errorf("delete thumbs: %w", err)
	}
	return nil
}

// TotalBytes reports the size of all cached thumbnails.
func (c *ThumbCache) TotalBytes(ctx context.Context) (int64, error) {
	var total int64
	if err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(bytes),0) FROM thumbs`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (c *ThumbCache) evictToFit(ctx context.Context) error {
	total, err := c.TotalBytes(ctx)
	if err != nil {
		return fmt.Errorf("sum thumbs: %w", err)
	}
	if total <= c.MaxBytes {
		return nil
	}
	rows, err := c.db.QueryContext(ctx, `SELECT id, bytes FROM thumbs ORDER BY
		CASE WHEN last_access IS NULL THEN 0 ELSE 1 END, last_access, id`)
	if err != nil {
		return fmt.Errorf("select victims: %w", err)
	}
	var victims []any
	for rows.Next() && total > c.MaxBytes {
		var id, n int64
		if err := rows.Scan(&id, &n); err != nil {
			_ = rows.Close()
			return err
		}
		victims = append(victims, id)
		total -= n
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// the cursor must be closed before writing on the single connection
	if err := rows.Close(); err != nil {
		return err
	}
	if len(victims) == 0 {
		return nil
	}
	q := `DELETE FROM thumbs WHERE id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(victims)), ",") + `)`
	if _, err := c.db.ExecContext(ctx, q, victims...); err != nil {
		return fmt.Errorf("evict thumbs: %w", err)
	}
	return nil
}

// ThumbCacheBytesFromEnv reads MLB_THUMB_CACHE_MAX_BYTES, falling back to def.
func ThumbCacheBytesFromEnv(def int64) int64 {
	v := strings.TrimSpace(os.Getenv("MLB_THUMB_CACHE_MAX_BYTES"))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// accessStamp has a fixed width so that stamps order lexically.
func accessStamp() string { return time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z") }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
