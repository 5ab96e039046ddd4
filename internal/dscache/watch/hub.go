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

package watch

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/openimsdk/tools/errs"
	"github.com/openimsdk/tools/log"
	"github.com/redis/go-redis/v9"

	"github.com/dscache/corekv/internal/dscache/core"
)

// Hub is the per-process dirty-key notification hub.
type Hub struct {
	mu        sync.Mutex
	watchers  map[core.DBKey][]chan struct{}
	rdb       redis.UniversalClient
	namespace string
}

// NewHub creates a hub. rdb may be nil to disable the distributed mirror.
func NewHub(rdb redis.UniversalClient, namespace string) *Hub {
	return &Hub{
		watchers:  make(map[core.DBKey][]chan struct{}),
		rdb:       rdb,
		namespace: namespace,
	}
}

// Watch registers interest in dbKey, returning a channel closed the next
// time Touch runs for it. The registration is one-shot: callers that want
// to keep observing a key call Watch again after the channel fires.
func (h *Hub) Watch(dbKey core.DBKey) <-chan struct{} {
	ch := make(chan struct{})
	h.mu.Lock()
	h.watchers[dbKey] = append(h.watchers[dbKey], ch)
	h.mu.Unlock()
	return ch
}

// Touch fires every channel currently watching dbKey and, if a distributed
// mirror is configured, publishes the touch so sibling processes relying
// on Subscribe see it too.
func (h *Hub) Touch(ctx context.Context, dbKey core.DBKey) {
	h.mu.Lock()
	chans := h.watchers[dbKey]
	delete(h.watchers, dbKey)
	h.mu.Unlock()

	for _, ch := range chans {
		close(ch)
	}

	if h.rdb == nil {
		return
	}
	payload, err := json.Marshal([]string{string(dbKey.Key)})
	if err != nil {
		log.ZError(ctx, "dscache watch touch json.Marshal error", err)
		return
	}
	if err := h.rdb.Publish(ctx, h.channel(dbKey.DB), payload).Err(); err != nil {
		log.ZWarn(ctx, "dscache watch touch publish failed", err, "db", dbKey.DB)
	}
}

func (h *Hub) channel(db core.DBID) string {
	return h.namespace + ":" + strconv.Itoa(int(db))
}

// Subscribe blocks, forwarding remote touches for db into onRemoteTouch
// until ctx is cancelled. It is a no-op if the hub has no distributed
// mirror configured. Grounded directly on subscriberRedisDeleteCache's
// panic-recovery-wrapped subscribe loop.
func (h *Hub) Subscribe(ctx context.Context, db core.DBID, onRemoteTouch func(ctx context.Context, keys ...core.Key)) {
	if h.rdb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.ZPanic(ctx, "dscache watch subscriber panic", errs.ErrPanic(r))
		}
	}()

	pubsub := h.rdb.Subscribe(ctx, h.channel(db))
	defer pubsub.Close()

	for message := range pubsub.Channel() {
		var keys []string
		if err := json.Unmarshal([]byte(message.Payload), &keys); err != nil {
			log.ZError(ctx, "dscache watch subscriber json.Unmarshal error", err)
			continue
		}
		if len(keys) == 0 {
			continue
		}
		coreKeys := make([]core.Key, len(keys))
		for i, k := range keys {
			coreKeys[i] = core.Key(k)
		}
		onRemoteTouch(ctx, coreKeys...)
	}
}
