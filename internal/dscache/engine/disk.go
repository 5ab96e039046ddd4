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

package engine

import (
	"context"
	"time"

	"github.com/dscache/corekv/internal/dscache/core"
	"github.com/dscache/corekv/internal/dscache/rocks"
	"github.com/dscache/corekv/internal/dscache/store"
)

// diskFacade is the iopool.Disk a worker executes jobs against. Reads go
// through the distributed load cache when one is configured, since
// cross-process miss coalescing only benefits GETs; writes always go
// straight to Mongo, with the distributed cache entry invalidated
// separately once the completion dispatcher observes the SAVE finish.
type diskFacade struct {
	store *store.Store
	cache *rocks.LoadCache
}

func (d *diskFacade) Get(ctx context.Context, dbKey core.DBKey) ([]byte, time.Time, error) {
	if d.cache != nil {
		return d.cache.Get(ctx, dbKey)
	}
	return d.store.Get(ctx, dbKey)
}

func (d *diskFacade) Set(ctx context.Context, dbKey core.DBKey, payload []byte, expiry time.Time) error {
	return d.store.Set(ctx, dbKey, payload, expiry)
}

func (d *diskFacade) Delete(ctx context.Context, dbKey core.DBKey) error {
	return d.store.Delete(ctx, dbKey)
}
