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
	"strconv"
	"time"

	"github.com/openimsdk/tools/log"
	"github.com/redis/go-redis/v9"

	"github.com/dscache/corekv/internal/dscache/core"
)

// Mirror is a best-effort Redis mirror of the negative cache, so sibling
// dscache processes skip a redundant disk miss. It is always consulted
// second, after the in-process LRU, because the in-process invariants are
// process-local and unaffected by the mirror being eventually consistent.
type Mirror struct {
	rdb       redis.UniversalClient
	ttl       time.Duration
	namespace string
}

// NewMirror builds a Mirror over rdb. namespace prefixes every key, so one
// Redis instance can back several disjoint dscache deployments.
func NewMirror(rdb redis.UniversalClient, namespace string, ttl time.Duration) *Mirror {
	return &Mirror{rdb: rdb, ttl: ttl, namespace: namespace}
}

func (m *Mirror) key(dbKey core.DBKey) string {
	return m.namespace + ":negcache:" + strconv.Itoa(int(dbKey.DB)) + ":" + string(dbKey.Key)
}

// MarkAbsent records dbKey as absent with a TTL, mirroring the in-process
// entry's presence without requiring the same eviction policy.
func (m *Mirror) MarkAbsent(ctx context.Context, dbKey core.DBKey) {
	if err := m.rdb.SetNX(ctx, m.key(dbKey), 1, m.ttl).Err(); err != nil {
		log.ZWarn(ctx, "dscache negcache mirror SetNX failed", err, "key", dbKey.Key)
	}
}

// MarkPossiblyPresent clears the mirrored entry.
func (m *Mirror) MarkPossiblyPresent(ctx context.Context, dbKey core.DBKey) {
	if err := m.rdb.Del(ctx, m.key(dbKey)).Err(); err != nil {
		log.ZWarn(ctx, "dscache negcache mirror Del failed", err, "key", dbKey.Key)
	}
}

// MayExist reports false only when the mirror positively confirms
// absence; any Redis error fails open (treated as "may exist") so a
// transient Redis outage never blocks a LOAD that would otherwise succeed.
func (m *Mirror) MayExist(ctx context.Context, dbKey core.DBKey) bool {
	n, err := m.rdb.Exists(ctx, m.key(dbKey)).Result()
	if err != nil {
		log.ZWarn(ctx, "dscache negcache mirror Exists failed", err, "key", dbKey.Key)
		return true
	}
	return n == 0
}
