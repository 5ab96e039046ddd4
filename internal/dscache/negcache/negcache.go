// Copyright © 2024 OpenIM. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package negcache

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/dscache/corekv/internal/dscache/core"
)

// sampleSize is the number of entries evict_one samples before dropping
// the oldest.
const sampleSize = 3

// Cache is the per-process negative cache for all databases.
type Cache struct {
	mu     sync.Mutex
	dbs    map[core.DBID]map[core.Key]time.Time
	mirror *Mirror
	rng    *rand.Rand
}

// New creates an empty negative cache. mirror may be nil to disable the
// distributed mirror.
func New(mirror *Mirror) *Cache {
	return &Cache{
		dbs:    make(map[core.DBID]map[core.Key]time.Time),
		mirror: mirror,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// MarkAbsent inserts or refreshes the negative-cache timestamp for k.
// Called synchronously from the DEL command path (eager negative caching,
// see DESIGN.md's resolution of the stale-read race — and from the completion
// dispatcher when a LOAD returns NotFound.
func (c *Cache) MarkAbsent(ctx context.Context, dbKey core.DBKey, now time.Time) {
	c.mu.Lock()
	db, ok := c.dbs[dbKey.DB]
	if !ok {
		db = make(map[core.Key]time.Time)
		c.dbs[dbKey.DB] = db
	}
	db[dbKey.Key] = now
	c.mu.Unlock()

	if c.mirror != nil {
		c.mirror.MarkAbsent(ctx, dbKey)
	}
}

// MarkPossiblyPresent removes any negative-cache entry for k, called
// whenever a write or delete schedules a SAVE for the same key — the key
// cannot stay negatively cached once it may exist again — and whenever a
// LOAD installs a live value.
func (c *Cache) MarkPossiblyPresent(ctx context.Context, dbKey core.DBKey) {
	c.mu.Lock()
	if db, ok := c.dbs[dbKey.DB]; ok {
		delete(db, dbKey.Key)
	}
	c.mu.Unlock()

	if c.mirror != nil {
		c.mirror.MarkPossiblyPresent(ctx, dbKey)
	}
}

// MayExist reports whether k is not known to be absent. A false result
// lets callers skip scheduling a LOAD entirely (wait_for).
func (c *Cache) MayExist(ctx context.Context, dbKey core.DBKey) bool {
	c.mu.Lock()
	_, absent := c.dbs[dbKey.DB][dbKey.Key]
	c.mu.Unlock()
	if absent {
		return false
	}
	if c.mirror != nil {
		return c.mirror.MayExist(ctx, dbKey)
	}
	return true
}

// EvictOne samples sampleSize entries from one random non-empty database
// and removes whichever has the oldest timestamp. It reports whether it
// made progress, for the C9 cron loop's "no progress" termination rule.
func (c *Cache) EvictOne() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	var nonEmpty []core.DBID
	for db, m := range c.dbs {
		if len(m) > 0 {
			nonEmpty = append(nonEmpty, db)
		}
	}
	if len(nonEmpty) == 0 {
		return false
	}
	db := nonEmpty[c.rng.Intn(len(nonEmpty))]
	m := c.dbs[db]

	keys := make([]core.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	n := sampleSize
	if n > len(keys) {
		n = len(keys)
	}
	var oldestKey core.Key
	var oldestTS time.Time
	found := false
	for _, i := range c.rng.Perm(len(keys))[:n] {
		k := keys[i]
		ts := m[k]
		if !found || ts.Before(oldestTS) {
			oldestKey, oldestTS = k, ts
			found = true
		}
	}
	if !found {
		return false
	}
	delete(m, oldestKey)
	return true
}

// Len returns the number of negatively cached keys across all databases,
// used by C9's slow sweep bound and stats log and by the engine's metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, m := range c.dbs {
		total += len(m)
	}
	return total
}
