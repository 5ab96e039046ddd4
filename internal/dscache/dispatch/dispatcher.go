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

package dispatch

import (
	"context"
	"math"
	"time"

	"github.com/openimsdk/tools/log"

	"github.com/dscache/corekv/internal/dscache/blockreg"
	"github.com/dscache/corekv/internal/dscache/core"
	"github.com/dscache/corekv/internal/dscache/iopool"
	"github.com/dscache/corekv/internal/dscache/ioqueue"
	"github.com/dscache/corekv/internal/dscache/negcache"
	"github.com/dscache/corekv/internal/dscache/objcache"
)

// InvalidateFunc tags a distributed load-cache entry as stale once a SAVE
// completes. nil disables the hook.
type InvalidateFunc func(ctx context.Context, dbKey core.DBKey) error

// NotifyFunc announces a key mutation to watchers once a SAVE completes.
// nil disables the hook.
type NotifyFunc func(dbKey core.DBKey)

// ReadyFunc receives the clients a completion just unblocked, so a reactor
// can resume whatever command each was parked on.
type ReadyFunc func(clients []core.ClientID)

// CompletionSource is the subset of *iopool.Pool the dispatcher drains;
// narrowed to an interface so tests can feed it completions without a real
// worker pool or disk store behind it.
type CompletionSource interface {
	Completions() <-chan iopool.Result
	PendingLen() int
}

// Dispatcher is the completion dispatcher (C6): it owns the resident set
// and negative cache mutations that follow an I/O completion, and is the
// only component that performs them.
type Dispatcher struct {
	pool       CompletionSource
	scheduler  *ioqueue.Scheduler
	objects    *objcache.Cache
	negatives  *negcache.Cache
	blocks     *blockreg.Registry
	invalidate InvalidateFunc
	notify     NotifyFunc
	ready      ReadyFunc
	nowMinutes func() int64
}

// New builds a dispatcher over the given components. invalidate, notify and
// ready may each be nil to disable that hook. nowMinutes may be nil to use
// the wall clock; tests supply a deterministic one.
func New(
	pool CompletionSource,
	scheduler *ioqueue.Scheduler,
	objects *objcache.Cache,
	negatives *negcache.Cache,
	blocks *blockreg.Registry,
	invalidate InvalidateFunc,
	notify NotifyFunc,
	ready ReadyFunc,
	nowMinutes func() int64,
) *Dispatcher {
	if nowMinutes == nil {
		nowMinutes = func() int64 { return time.Now().Unix() / 60 }
	}
	return &Dispatcher{
		pool:       pool,
		scheduler:  scheduler,
		objects:    objects,
		negatives:  negatives,
		blocks:     blocks,
		invalidate: invalidate,
		notify:     notify,
		ready:      ready,
		nowMinutes: nowMinutes,
	}
}

// Run drains the pool's completions until ctx is cancelled or the channel
// is closed by Pool.Close. Each wake applies the toprocess
// batching rule: the first completion of a wake sizes
// toprocess = max(1, ceil(pending*0.10)), and up to that many completions
// are applied before Run waits for the next wake, so one slow burst of I/O
// cannot starve the goroutine driving it indefinitely on a single wake.
func (d *Dispatcher) Run(ctx context.Context) {
	completions := d.pool.Completions()
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-completions:
			if !ok {
				return
			}
			d.drainWake(ctx, result)
		}
	}
}

func (d *Dispatcher) drainWake(ctx context.Context, first iopool.Result) {
	pending := len(d.pool.Completions()) + 1 // first was already popped off the channel
	toprocess := int(math.Ceil(float64(pending) * 0.10))
	if toprocess < 1 {
		toprocess = 1
	}

	d.apply(ctx, first)
	processed := 1

	completions := d.pool.Completions()
	for processed < toprocess {
		select {
		case result, ok := <-completions:
			if !ok {
				return
			}
			d.apply(ctx, result)
			processed++
		default:
			return // nothing more pending right now
		}
	}
}

// apply handles one completed job, then clears its in-progress flag and
// resumes any client the completion unblocked.
func (d *Dispatcher) apply(ctx context.Context, result iopool.Result) {
	job := result.Job
	switch job.Kind {
	case core.Load:
		d.applyLoad(ctx, job, result)
	case core.Save:
		d.applySave(ctx, job, result)
	}

	d.scheduler.ClearInProgress(job.DBKey, job.Kind)

	readyClients := d.blocks.OnKeyLoaded(job.DBKey)
	if len(readyClients) > 0 && d.ready != nil {
		d.ready(readyClients)
	}
}

func (d *Dispatcher) applyLoad(ctx context.Context, job core.IOJob, result iopool.Result) {
	if result.Err != nil {
		return // the worker already routed this to the fatal-IO handler
	}

	if result.Found {
		if _, live := d.objects.Lookup(job.DBKey); !live {
			handle := core.NewValue(result.Payload, d.nowMinutes()).Acquire()
			d.objects.Add(job.DBKey, handle, result.Expiry)
		}
		d.negatives.MarkPossiblyPresent(ctx, job.DBKey)
		return
	}

	if _, live := d.objects.Lookup(job.DBKey); live {
		return // a concurrent write already made the key live
	}
	if flags := d.scheduler.Flags(job.DBKey); flags.Has(core.FlagSave) || flags.Has(core.FlagSaveInProgress) {
		return // a pending or in-flight SAVE may still write the key to disk
	}
	d.negatives.MarkAbsent(ctx, job.DBKey, time.Now())
}

func (d *Dispatcher) applySave(ctx context.Context, job core.IOJob, result iopool.Result) {
	if result.Err != nil {
		return
	}
	if d.invalidate != nil {
		if err := d.invalidate(ctx, job.DBKey); err != nil {
			log.ZWarn(ctx, "dscache failed to invalidate distributed load cache after save", err,
				"db", job.DBKey.DB, "key", job.DBKey.Key)
		}
	}
	if d.notify != nil {
		d.notify(job.DBKey)
	}
}
