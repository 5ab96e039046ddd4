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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dscache/corekv/internal/dscache/core"
)

func TestMarkAbsentThenMayExist(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	dbKey := core.DBKey{DB: 0, Key: "k"}

	assert.True(t, c.MayExist(ctx, dbKey))
	c.MarkAbsent(ctx, dbKey, time.Now())
	assert.False(t, c.MayExist(ctx, dbKey))
}

func TestMarkPossiblyPresentClearsEntry(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	dbKey := core.DBKey{DB: 0, Key: "k"}

	c.MarkAbsent(ctx, dbKey, time.Now())
	require.False(t, c.MayExist(ctx, dbKey))

	c.MarkPossiblyPresent(ctx, dbKey)
	assert.True(t, c.MayExist(ctx, dbKey))
}

func TestEvictOneRemovesOldestOfSample(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	base := time.Now()

	// Only the oldest entry should ever have a chance of being picked
	// across repeated evictions, since the sample covers the whole set
	// whenever there are sampleSize or fewer entries.
	c.MarkAbsent(ctx, core.DBKey{DB: 0, Key: "oldest"}, base)
	c.MarkAbsent(ctx, core.DBKey{DB: 0, Key: "mid"}, base.Add(time.Minute))
	c.MarkAbsent(ctx, core.DBKey{DB: 0, Key: "newest"}, base.Add(2*time.Minute))

	require.Equal(t, 3, c.Len())
	require.True(t, c.EvictOne())
	assert.Equal(t, 2, c.Len())
	assert.True(t, c.MayExist(ctx, core.DBKey{DB: 0, Key: "oldest"}))
}

func TestEvictOneOnEmptyCacheMakesNoProgress(t *testing.T) {
	c := New(nil)
	assert.False(t, c.EvictOne())
}

func TestNegativeCacheIsPerDatabase(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	c.MarkAbsent(ctx, core.DBKey{DB: 0, Key: "k"}, time.Now())

	assert.False(t, c.MayExist(ctx, core.DBKey{DB: 0, Key: "k"}))
	assert.True(t, c.MayExist(ctx, core.DBKey{DB: 1, Key: "k"}))
}
