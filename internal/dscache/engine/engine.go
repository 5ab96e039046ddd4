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

	"github.com/openimsdk/tools/errs"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dscache/corekv/internal/dscache/blockreg"
	"github.com/dscache/corekv/internal/dscache/core"
	"github.com/dscache/corekv/internal/dscache/cron"
	"github.com/dscache/corekv/internal/dscache/dispatch"
	"github.com/dscache/corekv/internal/dscache/iopool"
	"github.com/dscache/corekv/internal/dscache/ioqueue"
	"github.com/dscache/corekv/internal/dscache/keylock"
	"github.com/dscache/corekv/internal/dscache/negcache"
	"github.com/dscache/corekv/internal/dscache/objcache"
	"github.com/dscache/corekv/internal/dscache/reactor"
	"github.com/dscache/corekv/internal/dscache/rocks"
	"github.com/dscache/corekv/internal/dscache/store"
	"github.com/dscache/corekv/internal/dscache/watch"
)

// ErrAbsent is returned by Get when the key is known absent on disk, the
// not-blocked/absent outcome of a lookup that finds nothing to wait for.
var ErrAbsent = errs.New("dscache: key is absent")

// ErrTimeout is returned by Get when timeout elapses before the key
// becomes resident.
var ErrTimeout = errs.New("dscache: timed out waiting for key")

// Config bundles every tunable the engine exposes, plus the Go-native
// additions (load-cache TTL, watch/negative-cache namespaces) this module
// wires in on top.
type Config struct {
	// CacheFlushDelay is cache_flush_delay: seconds between a SAVE op's
	// creation and its earliest dispatch.
	CacheFlushDelay time.Duration
	// IOThreadsMax is io_threads_max: the worker pool size.
	IOThreadsMax int
	// CacheMaxMemory is cache_max_memory: C9's soft memory budget in bytes.
	CacheMaxMemory uint64
	// CronTick is how often C9's hot loop runs.
	CronTick time.Duration
	// NegCacheMaxEntries bounds the slow maintenance sweep's negative-cache
	// GC pass; zero disables the bound.
	NegCacheMaxEntries int
	// LoadCacheTTL is how long a Fetch2 result stays valid in the
	// distributed load cache, when Redis is configured.
	LoadCacheTTL time.Duration
	// WatchNamespace prefixes the distributed WATCH-touch pub/sub channel.
	WatchNamespace string
	// NegCacheNamespace prefixes the distributed negative-cache mirror's
	// keys.
	NegCacheNamespace string
}

// Engine is the top-level owning handle wiring every component together.
type Engine struct {
	cfg        Config
	objects    *objcache.Cache
	negatives  *negcache.Cache
	scheduler  *ioqueue.Scheduler
	pool       *iopool.Pool
	blocks     *blockreg.Registry
	locks      *keylock.Registry
	dispatcher *dispatch.Dispatcher
	cron       *cron.Cron
	reactor    *reactor.Reactor
	notifier   *reactor.Notifier
	watchHub   *watch.Hub
	nowMinutes func() int64
	cancel     context.CancelFunc
}

// New builds an Engine over a Mongo-backed disk store. rdb may be nil to
// disable every distributed feature (load-cache coalescing, the negative
// cache mirror, and WATCH-touch fan-out); objStats feeds objcache's
// hit/miss counters and may be nil.
func New(ctx context.Context, db *mongo.Database, rdb redis.UniversalClient, cfg Config, objStats objcache.Stats) (*Engine, error) {
	disk, err := store.New(ctx, db)
	if err != nil {
		return nil, err
	}

	var loadCache *rocks.LoadCache
	var mirror *negcache.Mirror
	var watchHub *watch.Hub
	if rdb != nil {
		loadCache = rocks.New(disk, rdb, cfg.LoadCacheTTL)
		mirror = negcache.NewMirror(rdb, cfg.NegCacheNamespace, cfg.LoadCacheTTL)
		watchHub = watch.NewHub(rdb, cfg.WatchNamespace)
	} else {
		watchHub = watch.NewHub(nil, cfg.WatchNamespace)
	}

	e := &Engine{
		cfg:        cfg,
		objects:    objcache.New(objStats),
		negatives:  negcache.New(mirror),
		scheduler:  ioqueue.New(cfg.CacheFlushDelay),
		blocks:     nil, // set below, needs the scheduler
		locks:      keylock.New(),
		watchHub:   watchHub,
		notifier:   reactor.NewNotifier(),
		nowMinutes: func() int64 { return time.Now().Unix() / 60 },
	}
	e.blocks = blockreg.New(e.scheduler)
	e.scheduler.SetPushTrigger(e.drainLoads)

	facade := &diskFacade{store: disk, cache: loadCache}
	poolCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.pool = iopool.New(poolCtx, facade, cfg.IOThreadsMax, nil)

	var invalidate dispatch.InvalidateFunc
	if loadCache != nil {
		invalidate = loadCache.Invalidate
	}
	e.dispatcher = dispatch.New(e.pool, e.scheduler, e.objects, e.negatives, e.blocks,
		invalidate, e.touchWatch, e.notifier.Wake, e.nowMinutes)

	e.cron = cron.New(e.scheduler, e.pool, e.objects, e.negatives, e.lookupForSave,
		cron.Config{
			TickInterval:       cfg.CronTick,
			MaxMemoryBytes:     cfg.CacheMaxMemory,
			NegCacheMaxEntries: cfg.NegCacheMaxEntries,
		}, e.nowMinutes, nil)

	e.reactor = reactor.New(
		reactor.AsRunner(e.dispatcher.Run),
		e.cron,
	)

	return e, nil
}

// Run starts every background loop (the completion dispatcher and the
// cache cron) and blocks until ctx is cancelled or one of them fails.
func (e *Engine) Run(ctx context.Context) error {
	return e.reactor.Run(ctx)
}

// Close stops accepting new I/O work and waits for in-flight jobs to
// finish.
func (e *Engine) Close() error {
	e.cancel()
	return e.pool.Close()
}

// Get is the cache's read path, folding in the preload-and-wait the
// blocking-key registry does on the caller's behalf: if the key isn't resident it
// schedules (or joins) a LOAD and blocks client's goroutine until the key
// becomes live, timeout elapses, or ctx is cancelled. timeout <= 0 waits
// indefinitely.
func (e *Engine) Get(ctx context.Context, client core.ClientID, dbKey core.DBKey, timeout time.Duration) ([]byte, error) {
	if handle, live := e.objects.Lookup(dbKey); live {
		handle.Value().Touch(e.nowMinutes())
		return handle.Value().Payload, nil
	}

	// Register before WaitFor schedules the LOAD, so a completion that
	// lands before this goroutine starts waiting still wakes it.
	await := e.notifier.Await(client)
	if !e.blocks.WaitFor(client, dbKey, e.isLive, e.mayExist, time.Now()) {
		e.notifier.Wake([]core.ClientID{client})
		return nil, ErrAbsent
	}

	if err := e.waitFor(ctx, await, timeout); err != nil {
		e.blocks.ReleaseKey(client, dbKey)
		return nil, err
	}

	if handle, live := e.objects.Lookup(dbKey); live {
		handle.Value().Touch(e.nowMinutes())
		return handle.Value().Payload, nil
	}
	return nil, ErrAbsent
}

func (e *Engine) waitFor(ctx context.Context, await <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		select {
		case <-await:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-await:
		return nil
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Set installs the value, clears any negative-cache entry, and schedules
// a SAVE.
func (e *Engine) Set(ctx context.Context, dbKey core.DBKey, payload []byte, expiry time.Time) {
	handle := core.NewValue(payload, e.nowMinutes()).Acquire()
	if !e.objects.Overwrite(dbKey, handle, expiry) {
		e.objects.Add(dbKey, handle, expiry)
	}
	e.negatives.MarkPossiblyPresent(ctx, dbKey)
	e.scheduler.ScheduleIO(dbKey, core.Save, time.Now())
}

// Delete removes the value and eagerly marks the key absent (see
// DESIGN.md's resolution of the DEL-then-GET stale read race), then
// schedules a SAVE encoding the delete (a tombstone, resolved by
// lookupForSave finding nothing resident).
func (e *Engine) Delete(ctx context.Context, dbKey core.DBKey) {
	e.objects.Delete(dbKey)
	e.negatives.MarkAbsent(ctx, dbKey, time.Now())
	e.scheduler.ScheduleIO(dbKey, core.Save, time.Now())
}

// Grab implements GRAB. timeout <= 0 waits indefinitely.
func (e *Engine) Grab(client core.ClientID, dbKey core.DBKey, timeout time.Duration) bool {
	return e.locks.Grab(client, dbKey, timeout, e.ensurePlaceholder)
}

// Release implements RELEASE.
func (e *Engine) Release(client core.ClientID, dbKey core.DBKey) bool {
	return e.locks.Release(client, dbKey, e.deletePlaceholder)
}

// Disconnect purges every key a client was blocked on and hands off every
// lock it held, the client-disconnect cleanup path.
func (e *Engine) Disconnect(client core.ClientID) {
	e.blocks.Disconnect(client)
	e.locks.ReleaseAll(client, e.deletePlaceholder)
}

// ResidentCount reports the number of keys currently resident in the
// object cache, across every database.
func (e *Engine) ResidentCount() int { return e.objects.Len() }

// NegativeCacheCount reports the number of keys currently marked absent.
func (e *Engine) NegativeCacheCount() int { return e.negatives.Len() }

// ScheduleDepth reports the number of pending (not yet dispatched) I/O
// operations.
func (e *Engine) ScheduleDepth() int { return e.scheduler.ScheduleLen() }

// PendingIOJobs reports the number of jobs submitted to the worker pool
// but not yet completed.
func (e *Engine) PendingIOJobs() int { return e.pool.PendingLen() }

func (e *Engine) isLive(dbKey core.DBKey) bool {
	_, live := e.objects.Lookup(dbKey)
	return live
}

func (e *Engine) mayExist(dbKey core.DBKey) bool {
	return e.negatives.MayExist(context.Background(), dbKey)
}

func (e *Engine) drainLoads() {
	room := ioqueue.JobQueueCap - e.pool.PendingLen()
	if room <= 0 {
		return
	}
	jobs := e.scheduler.PushJobs(time.Now(), room, ioqueue.PushMode{OnlyLoads: true}, e.lookupForSave)
	if len(jobs) > 0 {
		e.pool.Submit(jobs)
	}
}

func (e *Engine) lookupForSave(dbKey core.DBKey) (core.Handle, time.Time, bool, bool) {
	handle, live := e.objects.Lookup(dbKey)
	if !live {
		return core.Handle{}, time.Time{}, true, true
	}
	expiry, _ := e.objects.Expiry(dbKey)
	return handle.Clone(), expiry, false, true
}

// ensurePlaceholder backs GRAB's implicit dbAdd: a key locked while absent
// gets an empty resident value so it "exists as a string" for the
// duration of the lock, matching grabCommand's behavior exactly.
func (e *Engine) ensurePlaceholder(dbKey core.DBKey) {
	if e.isLive(dbKey) {
		return
	}
	handle := core.NewValue(nil, e.nowMinutes()).Acquire()
	e.objects.Add(dbKey, handle, time.Time{})
	e.negatives.MarkPossiblyPresent(context.Background(), dbKey)
	e.scheduler.ScheduleIO(dbKey, core.Save, time.Now())
}

func (e *Engine) deletePlaceholder(dbKey core.DBKey) {
	e.watchHub.Touch(context.Background(), dbKey)
}

func (e *Engine) touchWatch(dbKey core.DBKey) {
	e.watchHub.Touch(context.Background(), dbKey)
}
