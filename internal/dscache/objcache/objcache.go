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

package objcache

import (
	"math/rand"
	"sync"
	"time"

	"github.com/dscache/corekv/internal/dscache/core"
)

// maxSamplesPerDB is "sample up to 5 entries" for the approximate-LRU scan.
const maxSamplesPerDB = 5

// maxTries is the shared sampling budget across all databases in one
// try_evict_one call.
const maxTries = 100

type entry struct {
	handle core.Handle
	expiry time.Time
}

// Stats mirrors the hit/success/failed counters pkg/localcache/lru.Target
// exposes, so a dscache.Engine can feed the same metrics surface the
// teacher's local caches do.
type Stats interface {
	IncrGetHit()
	IncrGetMiss()
	IncrEvicted()
}

// Cache is the per-process resident set for every database.
type Cache struct {
	mu    sync.RWMutex
	dbs   map[core.DBID]map[core.Key]*entry
	stats Stats
	rng   *rand.Rand
}

// New creates an empty object cache. stats may be nil.
func New(stats Stats) *Cache {
	return &Cache{
		dbs:   make(map[core.DBID]map[core.Key]*entry),
		stats: stats,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Cache) db(dbID core.DBID) map[core.Key]*entry {
	m, ok := c.dbs[dbID]
	if !ok {
		m = make(map[core.Key]*entry)
		c.dbs[dbID] = m
	}
	return m
}

// Lookup returns the handle resident for dbKey, if any.
func (c *Cache) Lookup(dbKey core.DBKey) (core.Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.dbs[dbKey.DB][dbKey.Key]
	if !ok {
		if c.stats != nil {
			c.stats.IncrGetMiss()
		}
		return core.Handle{}, false
	}
	if c.stats != nil {
		c.stats.IncrGetHit()
	}
	return e.handle, true
}

// Add installs handle as a new resident entry, replacing any prior one.
// Ownership of handle transfers to the cache.
func (c *Cache) Add(dbKey core.DBKey, handle core.Handle, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.db(dbKey.DB)[dbKey.Key]; ok {
		old.handle.Release()
	}
	c.db(dbKey.DB)[dbKey.Key] = &entry{handle: handle, expiry: expiry}
}

// Overwrite replaces the value for an already-resident key, releasing the
// prior handle. It is a no-op (returns false) if the key is not resident.
func (c *Cache) Overwrite(dbKey core.DBKey, handle core.Handle, expiry time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.db(dbKey.DB)[dbKey.Key]
	if !ok {
		return false
	}
	e.handle.Release()
	e.handle = handle
	e.expiry = expiry
	return true
}

// Delete removes dbKey from the resident set, releasing its handle.
// Reports whether the key had been present.
func (c *Cache) Delete(dbKey core.DBKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.dbs[dbKey.DB]
	if !ok {
		return false
	}
	e, ok := m[dbKey.Key]
	if !ok {
		return false
	}
	delete(m, dbKey.Key)
	e.handle.Release()
	return true
}

// Expiry returns the expiry recorded for dbKey, if resident. Mirrors
// the per-key `expires` map, which the I/O scheduler consults when pushing a
// SAVE job for an existing key.
func (c *Cache) Expiry(dbKey core.DBKey) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.dbs[dbKey.DB][dbKey.Key]
	if !ok {
		return time.Time{}, false
	}
	return e.expiry, true
}

// RandomEntry returns a uniformly random resident key from dbID, the
// random_entry operation. TryEvictOne does its own sampling and does not
// call it.
func (c *Cache) RandomEntry(dbID core.DBID) (core.Key, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := c.dbs[dbID]
	if len(m) == 0 {
		return "", false
	}
	i := c.rng.Intn(len(m))
	for k := range m {
		if i == 0 {
			return k, true
		}
		i--
	}
	return "", false
}

// Len reports the number of resident keys across every database, used by
// C9's slow-sweep stats log and by the engine's metrics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, m := range c.dbs {
		total += len(m)
	}
	return total
}

// TryEvictOne implements try_evict_one: it
// samples up to maxSamplesPerDB entries per database, skipping any key for
// which isBusy reports a pending I/O flag, tracks the highest-idle
// eligible candidate across all databases under a shared maxTries sampling
// budget, and evicts the winner. It returns (dbKey, ok): dbKey is the
// evicted key, and ok is
// false only when no eligible candidate existed, leaving step 4's fallback
// (drain the scheduler) to the caller (internal/dscache/cron).
func (c *Cache) TryEvictOne(nowUnixMinutes int64, isBusy func(core.DBKey) bool) (dbKey core.DBKey, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		bestKey  core.DBKey
		bestIdle uint32
		found    bool
		tries    int
	)

	for dbID, m := range c.dbs {
		if len(m) == 0 {
			continue
		}
		keys := make([]core.Key, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sampled := 0
		for _, i := range c.rng.Perm(len(keys)) {
			if sampled >= maxSamplesPerDB || tries >= maxTries {
				break
			}
			tries++
			key := keys[i]
			dbKey := core.DBKey{DB: dbID, Key: key}
			if isBusy(dbKey) {
				continue
			}
			sampled++
			idle := m[key].handle.Value().Idle(nowUnixMinutes)
			if !found || idle > bestIdle {
				bestKey, bestIdle, found = dbKey, idle, true
			}
		}
		if tries >= maxTries {
			break
		}
	}

	if !found {
		return core.DBKey{}, false
	}

	e := c.dbs[bestKey.DB][bestKey.Key]
	delete(c.dbs[bestKey.DB], bestKey.Key)
	e.handle.Release()
	if c.stats != nil {
		c.stats.IncrEvicted()
	}
	return bestKey, true
}
