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

package iopool

import (
	"context"
	"time"

	"github.com/openimsdk/tools/log"
	"golang.org/x/sync/errgroup"

	"github.com/dscache/corekv/internal/dscache/core"
	"github.com/dscache/corekv/internal/dscache/ioqueue"
	"github.com/dscache/corekv/internal/dscache/store"
)

// Disk is the persistent store a worker executes jobs against. *store.Store
// satisfies it directly; engine wraps it with a rocks.LoadCache-backed
// facade when distributed load coalescing is enabled, since only the read
// path benefits from that cache (writes always go straight to Mongo and
// are invalidated by the completion dispatcher after the fact).
type Disk interface {
	Get(ctx context.Context, dbKey core.DBKey) ([]byte, time.Time, error)
	Set(ctx context.Context, dbKey core.DBKey, payload []byte, expiry time.Time) error
	Delete(ctx context.Context, dbKey core.DBKey) error
}

// Result is a completed job as reported to the completion dispatcher (C6).
// Found distinguishes a LOAD hit from a LOAD miss; Err is set only on a
// disk failure, which callers surface as a FatalIO event rather than
// retrying silently.
type Result struct {
	Job     core.IOJob
	Payload []byte
	Expiry  time.Time
	Found   bool
	Err     error
}

// FatalIOHandler is invoked when a worker's disk operation fails outright
// (not a NotFound, a real I/O error). The caller decides whether that's
// fatal to the process; this package never exits on its own.
type FatalIOHandler func(ctx context.Context, job core.IOJob, err error)

// Pool is the fixed-size IO worker pool.
type Pool struct {
	disk        Disk
	jobs        chan core.IOJob
	completions chan Result
	g           *errgroup.Group
	ctx         context.Context
	onFatal     FatalIOHandler
}

// New starts a pool of size workers, each consuming from an internal job
// channel of capacity ioqueue.JobQueueCap (the Go analogue of new_jobs'
// bounded capacity). Cancelling ctx (or calling Close) stops every
// worker cooperatively once its current job finishes.
func New(ctx context.Context, disk Disk, size int, onFatal FatalIOHandler) *Pool {
	g, gctx := errgroup.WithContext(ctx)
	p := &Pool{
		disk:        disk,
		jobs:        make(chan core.IOJob, ioqueue.JobQueueCap),
		completions: make(chan Result, ioqueue.JobQueueCap),
		g:           g,
		ctx:         gctx,
		onFatal:     onFatal,
	}
	for i := 0; i < size; i++ {
		g.Go(func() error {
			p.run(gctx)
			return nil
		})
	}
	return p
}

// Completions is the channel the dispatcher drains; it is this package's
// concrete stand-in for the wake self-pipe's readable side.
func (p *Pool) Completions() <-chan Result { return p.completions }

// PendingLen approximates |new_jobs| for push_jobs' room computation
// ("remaining room = max(0, JOB_QUEUE_CAP − |new_jobs|)").
func (p *Pool) PendingLen() int { return len(p.jobs) }

// Submit enqueues jobs for workers to pick up. It blocks if the channel is
// full, which is the correct backpressure: callers size roomAvailable from
// PendingLen so this should never actually block in steady state.
func (p *Pool) Submit(jobs []core.IOJob) {
	for _, job := range jobs {
		select {
		case p.jobs <- job:
		case <-p.ctx.Done():
			return
		}
	}
}

// Close stops accepting new jobs and waits for every in-flight job to
// finish, the Go equivalent of cacheForcePointInTime's drain-before-fork
// discipline and of a clean process shutdown.
func (p *Pool) Close() error {
	close(p.jobs)
	err := p.g.Wait()
	close(p.completions)
	return err
}

func (p *Pool) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			result := p.execute(ctx, job)
			select {
			case p.completions <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pool) execute(ctx context.Context, job core.IOJob) Result {
	switch job.Kind {
	case core.Load:
		payload, expiry, err := p.disk.Get(ctx, job.DBKey)
		if err == store.ErrNotFound {
			return Result{Job: job, Found: false}
		}
		if err != nil {
			p.fatal(ctx, job, err)
			return Result{Job: job, Err: err}
		}
		return Result{Job: job, Payload: payload, Expiry: expiry, Found: true}
	case core.Save:
		defer job.Snapshot.Release()
		var err error
		if job.Tombstone {
			err = p.disk.Delete(ctx, job.DBKey)
		} else {
			err = p.disk.Set(ctx, job.DBKey, job.Snapshot.Value().Payload, job.Expiry)
		}
		if err != nil {
			p.fatal(ctx, job, err)
		}
		return Result{Job: job, Err: err}
	default:
		return Result{Job: job}
	}
}

func (p *Pool) fatal(ctx context.Context, job core.IOJob, err error) {
	log.ZError(ctx, "dscache io worker fatal disk error", err, "db", job.DBKey.DB, "key", job.DBKey.Key, "kind", job.Kind.String())
	if p.onFatal != nil {
		p.onFatal(ctx, job, err)
	}
}
