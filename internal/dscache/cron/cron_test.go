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

package cron

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dscache/corekv/internal/dscache/core"
	"github.com/dscache/corekv/internal/dscache/ioqueue"
	"github.com/dscache/corekv/internal/dscache/negcache"
	"github.com/dscache/corekv/internal/dscache/objcache"
)

type fakePool struct {
	mu        sync.Mutex
	pending   int
	submitted []core.IOJob
}

func (f *fakePool) Submit(jobs []core.IOJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, jobs...)
}

func (f *fakePool) PendingLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func noLookup(core.DBKey) (core.Handle, time.Time, bool, bool) {
	return core.Handle{}, time.Time{}, true, true
}

func TestTickPushesJobsFromSchedule(t *testing.T) {
	sched := ioqueue.New(0)
	objs := objcache.New(nil)
	negs := negcache.New(nil)
	pool := &fakePool{}

	dbKey := core.DBKey{DB: 0, Key: "k"}
	sched.ScheduleIO(dbKey, core.Save, time.Now())

	c := New(sched, pool, objs, negs, noLookup, Config{TickInterval: time.Second}, nil, nil)
	c.tick(context.Background())

	require.Len(t, pool.submitted, 1)
	assert.Equal(t, dbKey, pool.submitted[0].DBKey)
}

func TestTickEvictsWhileOverBudget(t *testing.T) {
	sched := ioqueue.New(0)
	objs := objcache.New(nil)
	negs := negcache.New(nil)
	pool := &fakePool{}

	for i := 0; i < 3; i++ {
		dbKey := core.DBKey{DB: 0, Key: core.Key(string(rune('a' + i)))}
		v := core.NewValue([]byte("v"), 0)
		objs.Add(dbKey, v.Acquire(), time.Time{})
	}

	calls := 0
	usage := func() (uint64, error) {
		calls++
		if calls <= 3 {
			return 200, nil // over budget for the first 3 checks
		}
		return 0, nil // then back under budget
	}

	c := New(sched, pool, objs, negs, noLookup, Config{TickInterval: time.Second, MaxMemoryBytes: 100}, nil, usage)
	c.tick(context.Background())

	assert.LessOrEqual(t, objs.Len(), 1, "eviction should have drained resident entries while over budget")
}

func TestTickStopsEvictingWhenNoProgressPossible(t *testing.T) {
	sched := ioqueue.New(0)
	objs := objcache.New(nil) // empty: nothing to evict
	negs := negcache.New(nil)
	pool := &fakePool{}

	usage := func() (uint64, error) { return 1000, nil } // always over budget

	c := New(sched, pool, objs, negs, noLookup, Config{TickInterval: time.Second, MaxMemoryBytes: 1}, nil, usage)
	c.tick(context.Background()) // must return rather than loop forever
}

func TestOverBudgetDisabledWhenMaxMemoryZero(t *testing.T) {
	sched := ioqueue.New(0)
	objs := objcache.New(nil)
	negs := negcache.New(nil)
	pool := &fakePool{}

	c := New(sched, pool, objs, negs, noLookup, Config{TickInterval: time.Second}, nil, func() (uint64, error) { return 1 << 30, nil })
	assert.False(t, c.overBudget(context.Background()))
}

func TestSlowSweepBoundsNegativeCache(t *testing.T) {
	sched := ioqueue.New(0)
	objs := objcache.New(nil)
	negs := negcache.New(nil)
	pool := &fakePool{}

	for i := 0; i < 5; i++ {
		negs.MarkAbsent(context.Background(), core.DBKey{DB: 0, Key: core.Key(string(rune('a' + i)))}, time.Now())
	}

	c := New(sched, pool, objs, negs, noLookup, Config{TickInterval: time.Second, NegCacheMaxEntries: 2}, nil, nil)
	c.slowSweep(context.Background())

	assert.LessOrEqual(t, negs.Len(), 2)
}
