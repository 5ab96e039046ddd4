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

package rocks

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/dtm-labs/rockscache"
	"github.com/openimsdk/tools/errs"
	"github.com/redis/go-redis/v9"

	"github.com/dscache/corekv/internal/dscache/core"
	"github.com/dscache/corekv/internal/dscache/store"
)

// cacheTimeout bounds the rockscache distributed lock and replica-wait,
// mirroring pkg/common/storage/cache/redis/batch_handler.go's
// rocksCacheTimeout constant.
const cacheTimeout = 11 * time.Second

// Options returns the rockscache configuration this package always uses,
// grounded verbatim on GetRocksCacheOptions in
// pkg/common/storage/cache/redis/batch_handler.go.
func Options() rockscache.Options {
	opts := rockscache.NewDefaultOptions()
	opts.LockExpire = cacheTimeout
	opts.WaitReplicasTimeout = cacheTimeout
	opts.StrongConsistency = true
	opts.RandomExpireAdjustment = 0.2
	return opts
}

// record is the JSON shape cached in Redis by Fetch2, carrying enough of
// the disk-store document to reconstruct a LOAD result without a second
// round trip to Mongo.
type record struct {
	Payload []byte    `json:"payload"`
	Expiry  time.Time `json:"expiry"`
}

// LoadCache fronts a Store with a rockscache.Client so that simultaneous
// misses for the same key across processes collapse into one disk read.
type LoadCache struct {
	disk   *store.Store
	client *rockscache.Client
	ttl    time.Duration
}

// New wraps disk with a rockscache client built over rdb, caching
// negative results for ttl like every positive Fetch2 result.
func New(disk *store.Store, rdb redis.UniversalClient, ttl time.Duration) *LoadCache {
	return &LoadCache{
		disk:   disk,
		client: rockscache.NewClient(rdb, Options()),
		ttl:    ttl,
	}
}

func keyFor(dbKey core.DBKey) string {
	return "dscache:obj:" + strconv.Itoa(int(dbKey.DB)) + ":" + string(dbKey.Key)
}

// Get returns the cached or freshly loaded payload for dbKey. It returns
// store.ErrNotFound when the key is absent both in the distributed cache
// and on disk, exactly as Store.Get would for a single-process caller.
func (c *LoadCache) Get(ctx context.Context, dbKey core.DBKey) ([]byte, time.Time, error) {
	var missed bool
	v, err := c.client.Fetch2(ctx, keyFor(dbKey), c.ttl, func() (string, error) {
		payload, expiry, err := c.disk.Get(ctx, dbKey)
		if err == store.ErrNotFound {
			missed = true
			return "", nil
		}
		if err != nil {
			return "", err
		}
		bs, err := json.Marshal(record{Payload: payload, Expiry: expiry})
		if err != nil {
			return "", errs.WrapMsg(err, "marshal dscache load-cache record")
		}
		return string(bs), nil
	})
	if err != nil {
		return nil, time.Time{}, errs.Wrap(err)
	}
	if missed || v == "" {
		return nil, time.Time{}, store.ErrNotFound
	}
	var rec record
	if err := json.Unmarshal([]byte(v), &rec); err != nil {
		return nil, time.Time{}, errs.WrapMsg(err, "unmarshal dscache load-cache record")
	}
	return rec.Payload, rec.Expiry, nil
}

// Invalidate tags the distributed cache entry for dbKey as deleted, called
// whenever a SAVE or delete completes so sibling processes stop serving a
// stale Fetch2 result.
func (c *LoadCache) Invalidate(ctx context.Context, dbKey core.DBKey) error {
	return errs.Wrap(c.client.TagAsDeleted2(ctx, keyFor(dbKey)))
}
