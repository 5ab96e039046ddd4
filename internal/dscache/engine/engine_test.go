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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dscache/corekv/internal/dscache/blockreg"
	"github.com/dscache/corekv/internal/dscache/core"
	"github.com/dscache/corekv/internal/dscache/dispatch"
	"github.com/dscache/corekv/internal/dscache/iopool"
	"github.com/dscache/corekv/internal/dscache/ioqueue"
	"github.com/dscache/corekv/internal/dscache/keylock"
	"github.com/dscache/corekv/internal/dscache/negcache"
	"github.com/dscache/corekv/internal/dscache/objcache"
	"github.com/dscache/corekv/internal/dscache/reactor"
	"github.com/dscache/corekv/internal/dscache/store"
	"github.com/dscache/corekv/internal/dscache/watch"
)

// fakeDisk is a local in-memory stand-in for iopool.Disk; engine_test.go
// wires a real *iopool.Pool and *dispatch.Dispatcher over it instead of
// mocking either, so these tests exercise the full blocking-read path.
type fakeDisk struct {
	mu       sync.Mutex
	values   map[core.DBKey][]byte
	expiries map[core.DBKey]time.Time
}

func newFakeDisk() *fakeDisk {
	return &fakeDisk{values: make(map[core.DBKey][]byte), expiries: make(map[core.DBKey]time.Time)}
}

func (f *fakeDisk) Get(_ context.Context, dbKey core.DBKey) ([]byte, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[dbKey]
	if !ok {
		return nil, time.Time{}, store.ErrNotFound
	}
	return v, f.expiries[dbKey], nil
}

func (f *fakeDisk) Set(_ context.Context, dbKey core.DBKey, payload []byte, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[dbKey] = payload
	f.expiries[dbKey] = expiry
	return nil
}

func (f *fakeDisk) Delete(_ context.Context, dbKey core.DBKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, dbKey)
	delete(f.expiries, dbKey)
	return nil
}

// newTestEngine wires every component by hand over a fakeDisk, skipping
// Mongo/Redis entirely, and starts only the completion dispatcher (not the
// cron) since none of these tests depend on memory-budget eviction.
func newTestEngine(t *testing.T, ctx context.Context) (*Engine, *fakeDisk) {
	t.Helper()
	disk := newFakeDisk()

	e := &Engine{
		objects:    objcache.New(nil),
		negatives:  negcache.New(nil),
		scheduler:  ioqueue.New(0),
		locks:      keylock.New(),
		watchHub:   watch.NewHub(nil, "test"),
		notifier:   reactor.NewNotifier(),
		nowMinutes: func() int64 { return time.Now().Unix() / 60 },
	}
	e.blocks = blockreg.New(e.scheduler)
	e.pool = iopool.New(ctx, disk, 2, nil)
	e.scheduler.SetPushTrigger(e.drainLoads)
	e.dispatcher = dispatch.New(e.pool, e.scheduler, e.objects, e.negatives, e.blocks,
		nil, e.touchWatch, e.notifier.Wake, e.nowMinutes)

	go e.dispatcher.Run(ctx)

	return e, disk
}

func TestGetReturnsLiveValueWithoutBlocking(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, _ := newTestEngine(t, ctx)

	dbKey := core.DBKey{DB: 0, Key: "k"}
	handle := core.NewValue([]byte("v"), 0).Acquire()
	e.objects.Add(dbKey, handle, time.Time{})

	payload, err := e.Get(ctx, "client-1", dbKey, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), payload)
}

func TestGetReturnsAbsentWithoutBlocking(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, _ := newTestEngine(t, ctx)

	dbKey := core.DBKey{DB: 0, Key: "missing"}
	e.negatives.MarkAbsent(ctx, dbKey, time.Now())

	_, err := e.Get(ctx, "client-1", dbKey, time.Second)
	assert.ErrorIs(t, err, ErrAbsent)
}

func TestGetBlocksUntilLoadCompletesThenWakes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, disk := newTestEngine(t, ctx)

	dbKey := core.DBKey{DB: 0, Key: "k"}
	require.NoError(t, disk.Set(ctx, dbKey, []byte("loaded"), time.Time{}))

	payload, err := e.Get(ctx, "client-1", dbKey, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("loaded"), payload)
}

func TestGetTimesOutWhenNothingEverArrives(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, _ := newTestEngine(t, ctx)
	// Suspend job pushes so the LOAD that Get schedules never reaches a
	// worker and no completion ever arrives.
	e.scheduler.SetSnapshotting(true)

	dbKey := core.DBKey{DB: 0, Key: "never"}
	_, err := e.Get(ctx, "client-1", dbKey, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	assert.Empty(t, e.blocks.WaitedKeys("client-1"), "timed-out wait should be released from the registry")
}

func TestSetInstallsValueAndSchedulesSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, _ := newTestEngine(t, ctx)

	dbKey := core.DBKey{DB: 0, Key: "k"}
	e.Set(ctx, dbKey, []byte("v"), time.Time{})

	handle, live := e.objects.Lookup(dbKey)
	require.True(t, live)
	assert.Equal(t, []byte("v"), handle.Value().Payload)
	assert.True(t, e.scheduler.Flags(dbKey).Has(core.FlagSave), "Set must schedule a SAVE")

	require.Eventually(t, func() bool {
		payload, err := e.Get(ctx, "client-2", dbKey, 2*time.Second)
		return err == nil && string(payload) == "v"
	}, time.Second, 5*time.Millisecond)
}

func TestDeleteMarksKeyAbsentEagerly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, _ := newTestEngine(t, ctx)

	dbKey := core.DBKey{DB: 0, Key: "k"}
	handle := core.NewValue([]byte("v"), 0).Acquire()
	e.objects.Add(dbKey, handle, time.Time{})

	e.Delete(ctx, dbKey)

	_, live := e.objects.Lookup(dbKey)
	assert.False(t, live)

	_, err := e.Get(ctx, "client-1", dbKey, time.Second)
	assert.ErrorIs(t, err, ErrAbsent, "delete must mark the key absent synchronously, not rely on a later LOAD miss")
}

func TestGrabThenReleaseHandsOffToNextWaiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, _ := newTestEngine(t, ctx)

	dbKey := core.DBKey{DB: 0, Key: "locked"}
	require.True(t, e.Grab("client-1", dbKey, time.Second))

	granted := make(chan bool, 1)
	go func() { granted <- e.Grab("client-2", dbKey, time.Second) }()

	time.Sleep(20 * time.Millisecond)
	require.True(t, e.Release("client-1", dbKey))

	select {
	case ok := <-granted:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("client-2 was never handed the lock")
	}
}

func TestDisconnectReleasesWaitsAndLocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, _ := newTestEngine(t, ctx)

	waitKey := core.DBKey{DB: 0, Key: "waited"}
	lockKey := core.DBKey{DB: 0, Key: "locked"}

	require.True(t, e.Grab("client-1", lockKey, time.Second))
	require.True(t, e.blocks.WaitFor("client-1", waitKey, e.isLive, e.mayExist, time.Now()))

	e.Disconnect("client-1")

	assert.Empty(t, e.blocks.WaitedKeys("client-1"))
	_, held := e.locks.Owner(lockKey)
	assert.False(t, held)
}
