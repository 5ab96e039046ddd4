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
	"os"
	"time"

	robfigcron "github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/process"

	"github.com/openimsdk/tools/errs"
	"github.com/openimsdk/tools/log"

	"github.com/dscache/corekv/internal/dscache/core"
	"github.com/dscache/corekv/internal/dscache/ioqueue"
	"github.com/dscache/corekv/internal/dscache/negcache"
	"github.com/dscache/corekv/internal/dscache/objcache"
)

// Submitter is the subset of *iopool.Pool the hot loop needs to push jobs
// through the pipeline.
type Submitter interface {
	Submit(jobs []core.IOJob)
	PendingLen() int
}

// MemoryUsageFunc reports the current process's resident memory in bytes.
type MemoryUsageFunc func() (uint64, error)

// Config bundles the cron's tunables, sourced from the core's
// cache_max_memory / cache_flush_delay-adjacent settings.
type Config struct {
	// TickInterval is how often the hot loop runs, driven by a simple
	// ticker rather than the event loop's own scheduling.
	TickInterval time.Duration
	// MaxMemoryBytes is cache_max_memory. Zero disables the budget check
	// entirely (cron still drains the schedule but never evicts for
	// memory pressure).
	MaxMemoryBytes uint64
	// NegCacheMaxEntries bounds the slow sweep's negative-cache GC pass.
	// Zero or negative disables the bound (the sweep only logs stats).
	NegCacheMaxEntries int
}

// Cron is the cache cron (C9).
type Cron struct {
	scheduler   *ioqueue.Scheduler
	pool        Submitter
	objects     *objcache.Cache
	negatives   *negcache.Cache
	lookup      ioqueue.LookupForSave
	cfg         Config
	nowMinutes  func() int64
	memoryUsage MemoryUsageFunc
	slow        *robfigcron.Cron
}

// New builds a cron over the given components. nowMinutes and memoryUsage
// may be nil to use the wall clock and real process RSS respectively;
// tests supply deterministic fakes for both.
func New(
	scheduler *ioqueue.Scheduler,
	pool Submitter,
	objects *objcache.Cache,
	negatives *negcache.Cache,
	lookup ioqueue.LookupForSave,
	cfg Config,
	nowMinutes func() int64,
	memoryUsage MemoryUsageFunc,
) *Cron {
	if nowMinutes == nil {
		nowMinutes = func() int64 { return time.Now().Unix() / 60 }
	}
	if memoryUsage == nil {
		memoryUsage = processRSS
	}
	return &Cron{
		scheduler:   scheduler,
		pool:        pool,
		objects:     objects,
		negatives:   negatives,
		lookup:      lookup,
		cfg:         cfg,
		nowMinutes:  nowMinutes,
		memoryUsage: memoryUsage,
		slow:        robfigcron.New(robfigcron.WithSeconds()),
	}
}

// Run starts the fast hot loop on a time.Ticker and the slow robfig sweep,
// blocking until ctx is cancelled.
func (c *Cron) Run(ctx context.Context) error {
	if _, err := c.slow.AddFunc("0 * * * * *", func() { c.slowSweep(ctx) }); err != nil {
		return errs.WrapMsg(err, "register dscache maintenance sweep")
	}
	c.slow.Start()
	defer c.slow.Stop()

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick implements cacheCron: push whatever jobs room
// allows, then, while memory is over budget, evict from the object cache
// and negative cache until a pass makes no progress — the original's
// "while memory usage exceeds budget" loop guard, evaluated fresh after
// each eviction.
func (c *Cron) tick(ctx context.Context) {
	c.pushJobs()

	for c.overBudget(ctx) {
		if !c.evictOnce() {
			break
		}
	}
}

func (c *Cron) pushJobs() {
	room := ioqueue.JobQueueCap - c.pool.PendingLen()
	if room <= 0 {
		return
	}
	jobs := c.scheduler.PushJobs(time.Now(), room, ioqueue.PushMode{}, c.lookup)
	if len(jobs) > 0 {
		c.pool.Submit(jobs)
	}
}

func (c *Cron) overBudget(ctx context.Context) bool {
	if c.cfg.MaxMemoryBytes == 0 {
		return false
	}
	used, err := c.memoryUsage()
	if err != nil {
		log.ZWarn(ctx, "dscache failed to read process memory for budget check", err)
		return false
	}
	return used > c.cfg.MaxMemoryBytes
}

// evictOnce is try_evict_one() + neg_cache.evict_one(),
// falling back to cacheFreeOneEntry's "nothing evictable, drain one IO job
// instead" when neither cache has an eligible candidate.
func (c *Cron) evictOnce() bool {
	_, objEvicted := c.objects.TryEvictOne(c.nowMinutes(), c.scheduler.IsBusy)
	negEvicted := c.negatives.EvictOne()
	if objEvicted || negEvicted {
		return true
	}

	if c.scheduler.ScheduleLen() == 0 {
		return false
	}
	jobs := c.scheduler.PushJobs(time.Now(), 1, ioqueue.PushMode{ASAP: true}, c.lookup)
	if len(jobs) == 0 {
		return false
	}
	c.pool.Submit(jobs)
	return true
}

// slowSweep is the once-a-minute maintenance pass: it bounds the negative
// cache to NegCacheMaxEntries (a backstop independent of the hot loop's
// memory-triggered eviction) and logs resident/negative key counts.
func (c *Cron) slowSweep(ctx context.Context) {
	evicted := 0
	if c.cfg.NegCacheMaxEntries > 0 {
		for c.negatives.Len() > c.cfg.NegCacheMaxEntries {
			if !c.negatives.EvictOne() {
				break
			}
			evicted++
		}
	}
	log.ZInfo(ctx, "dscache maintenance sweep",
		"resident_keys", c.objects.Len(),
		"negative_keys", c.negatives.Len(),
		"negative_evicted", evicted)
}

func processRSS() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, errs.WrapMsg(err, "open process handle for RSS read")
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, errs.WrapMsg(err, "read process memory info")
	}
	return info.RSS, nil
}
